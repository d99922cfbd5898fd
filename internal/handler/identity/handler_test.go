package identity_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	handler "github.com/jwalitptl/clinic-identity/internal/handler/identity"
	"github.com/jwalitptl/clinic-identity/internal/middleware"
	"github.com/jwalitptl/clinic-identity/internal/model"
	harness "github.com/jwalitptl/clinic-identity/internal/testutil"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Kind string `json:"kind"`
	} `json:"error"`
}

type client struct {
	engine *gin.Engine
	token  string
}

func newClient(t *testing.T, clinicID uuid.UUID, role string) (*client, *harness.Harness) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := harness.New(t, harness.NewModel)
	auth := middleware.NewSessionAuth("test-secret")
	engine := gin.New()
	api := engine.Group("/api/v1")
	api.Use(auth.Authenticate())
	handler.NewHandler(h.Identities).RegisterRoutes(api)

	token, err := auth.Sign(middleware.Session{ClinicID: clinicID, Role: role}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	return &client{engine: engine, token: token}, h
}

func (c *client) post(t *testing.T, path string, body interface{}) (int, envelope) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return c.send(t, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw)))
}

func (c *client) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	rec := httptest.NewRecorder()
	c.engine.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestFindOrCreateIdentityIsIdempotent(t *testing.T) {
	c, _ := newClient(t, uuid.New(), middleware.RoleStaff)
	body := gin.H{"kind": "patient", "email": "Ani@Example.com", "phone": "098 123 456"}

	code, first := c.post(t, "/api/v1/identities", body)
	require.Equal(t, http.StatusOK, code)
	code, second := c.post(t, "/api/v1/identities", body)
	require.Equal(t, http.StatusOK, code)

	var a, b model.GlobalIdentity
	require.NoError(t, json.Unmarshal(first.Data, &a))
	require.NoError(t, json.Unmarshal(second.Data, &b))
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "ani@example.com", *a.Email)
	assert.Equal(t, "+37498123456", *a.Phone)
}

func TestCreateAndFindProfile(t *testing.T) {
	clinicID := uuid.New()
	c, _ := newClient(t, clinicID, middleware.RoleStaff)
	_, env := c.post(t, "/api/v1/identities", gin.H{"kind": "patient", "email": "ani@example.com"})
	var global model.GlobalIdentity
	require.NoError(t, json.Unmarshal(env.Data, &global))

	profilePath := "/api/v1/clinics/" + clinicID.String() + "/profiles"
	code, _ := c.post(t, profilePath, gin.H{"kind": "patient", "global_identity_id": global.ID, "first_name": "Ani"})
	require.Equal(t, http.StatusCreated, code)

	code, env = c.post(t, profilePath, gin.H{"kind": "patient", "global_identity_id": global.ID, "first_name": "Ani"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "duplicate_profile", env.Error.Kind)

	code, env = c.send(t, httptest.NewRequest(http.MethodGet, profilePath+"/"+global.ID.String(), nil))
	require.Equal(t, http.StatusOK, code)
	var profile model.ClinicProfile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, clinicID, profile.ClinicID)

	code, _ = c.send(t, httptest.NewRequest(http.MethodGet, profilePath+"/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProfileRoutesAreClinicScoped(t *testing.T) {
	c, _ := newClient(t, uuid.New(), middleware.RoleStaff)
	code, env := c.send(t, httptest.NewRequest(http.MethodGet,
		"/api/v1/clinics/"+uuid.NewString()+"/profiles/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", env.Error.Kind)
}

func TestRegisterPatientAndAssociateDoctor(t *testing.T) {
	c, _ := newClient(t, uuid.New(), middleware.RoleStaff)
	patient := gin.H{"first_name": "Ani", "phone": "+37498123456"}

	code, _ := c.post(t, "/api/v1/patients/register", patient)
	assert.Equal(t, http.StatusCreated, code)
	code, _ = c.post(t, "/api/v1/patients/register", patient)
	assert.Equal(t, http.StatusOK, code, "second registration returns the existing profile")

	code, env := c.post(t, "/api/v1/patients/register", gin.H{"phone": "+37498123456"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", env.Error.Kind)

	code, _ = c.post(t, "/api/v1/doctors/associate", gin.H{"account_id": uuid.New(), "first_name": "Aram"})
	assert.Equal(t, http.StatusCreated, code)
}
