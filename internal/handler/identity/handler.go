package identity

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-identity/internal/handler"
	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/service/identity"
	apperrors "github.com/jwalitptl/clinic-identity/pkg/errors"
	"github.com/jwalitptl/clinic-identity/pkg/httputil"
)

type Handler struct {
	service *identity.Service
}

func NewHandler(service *identity.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/identities", h.FindOrCreateIdentity)

	profiles := r.Group("/clinics/:clinic_id/profiles")
	{
		profiles.POST("", h.CreateProfile)
		profiles.GET("/:identity_id", h.FindProfile)
	}

	r.POST("/patients/register", h.RegisterPatient)
	r.POST("/doctors/associate", h.AssociateDoctor)
}

func (h *Handler) FindOrCreateIdentity(c *gin.Context) {
	var req model.FindOrCreateIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	key, err := h.service.NaturalKey(req.Kind, req.AccountID, req.Email, req.Phone)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	global, err := h.service.FindOrCreateGlobalIdentity(c.Request.Context(), key)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, global)
}

func (h *Handler) CreateProfile(c *gin.Context) {
	clinicID, ok := handler.ClinicParam(c)
	if !ok {
		return
	}

	var req model.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}
	global, err := h.service.GetGlobalIdentity(c.Request.Context(), req.GlobalIdentityID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if global.Kind != req.Kind {
		httputil.RespondWithError(c, apperrors.BadRequest("kind does not match the global identity", nil))
		return
	}

	status := req.Status
	if status == "" {
		status = model.ProfileStatusActive
	}
	profile, err := h.service.CreateClinicProfile(c.Request.Context(), clinicID, global.ID, model.ProfileAttributes{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          optional(req.Email),
		Phone:          optional(req.Phone),
		Specialization: optional(req.Specialization),
		LicenseNumber:  optional(req.LicenseNumber),
		Status:         status,
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, profile)
}

func (h *Handler) FindProfile(c *gin.Context) {
	clinicID, ok := handler.ClinicParam(c)
	if !ok {
		return
	}
	identityID, ok := handler.ParseUUID(c, "identity_id")
	if !ok {
		return
	}

	profile, err := h.service.FindClinicProfileForGlobalIdentity(c.Request.Context(), clinicID, identityID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if profile == nil {
		handler.RespondError(c, apperrors.NotFound("clinic profile", nil))
		return
	}
	httputil.RespondWithSuccess(c, profile)
}

func (h *Handler) RegisterPatient(c *gin.Context) {
	clinicID, ok := handler.SessionClinic(c)
	if !ok {
		return
	}

	var req model.PatientDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}
	profile, created, err := h.service.RegisterPatient(c.Request.Context(), clinicID, req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	respondProfile(c, profile, created)
}

func (h *Handler) AssociateDoctor(c *gin.Context) {
	clinicID, ok := handler.SessionClinic(c)
	if !ok {
		return
	}

	var req model.AssociateDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}
	profile, created, err := h.service.AssociateDoctor(c.Request.Context(), clinicID, req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	respondProfile(c, profile, created)
}

func respondProfile(c *gin.Context, profile *model.ClinicProfile, created bool) {
	if created {
		httputil.RespondWithStatus(c, http.StatusCreated, profile)
		return
	}
	httputil.RespondWithSuccess(c, profile)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

