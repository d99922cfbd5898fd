package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/clinic-identity/pkg/errors"
	"github.com/jwalitptl/clinic-identity/pkg/httputil"
)

const (
	ContextSession = "session"

	RoleAdmin  = "admin"
	RoleDoctor = "doctor"
	RoleStaff  = "staff"
)

// Session is what the authentication collaborator vouches for: the caller's
// clinic and role.
type Session struct {
	ClinicID uuid.UUID
	Role     string
}

// SessionClaims is the token body issued by the authentication service.
type SessionClaims struct {
	ClinicID string `json:"clinic_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// SessionAuth verifies HS256 bearer tokens signed with the shared secret.
type SessionAuth struct {
	secret []byte
}

func NewSessionAuth(secret string) *SessionAuth {
	return &SessionAuth{secret: []byte(secret)}
}

// Authenticate rejects requests without a valid session and stores the
// session in the gin context.
func (a *SessionAuth) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("missing bearer token")))
			return
		}

		session, err := a.Parse(token)
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}
		c.Set(ContextSession, session)
		c.Next()
	}
}

func (a *SessionAuth) Parse(token string) (*Session, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	clinicID, err := uuid.Parse(claims.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("invalid clinic_id claim: %w", err)
	}
	if claims.Role == "" {
		return nil, errors.New("missing role claim")
	}
	return &Session{ClinicID: clinicID, Role: claims.Role}, nil
}

// Sign issues a token for the given session. Used by tests and local tooling.
func (a *SessionAuth) Sign(session Session, claims jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		ClinicID:         session.ClinicID.String(),
		Role:             session.Role,
		RegisteredClaims: claims,
	})
	return token.SignedString(a.secret)
}

func SessionFrom(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil, false
	}
	session, ok := v.(*Session)
	return session, ok
}
