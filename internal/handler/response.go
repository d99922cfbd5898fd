// Package handler holds the HTTP helpers shared by the resource handlers.
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-identity/internal/middleware"
	"github.com/jwalitptl/clinic-identity/internal/repository"
	apperrors "github.com/jwalitptl/clinic-identity/pkg/errors"
	"github.com/jwalitptl/clinic-identity/pkg/httputil"
)

// RespondError writes the error envelope. Store outages that reach the
// handler untyped are reported as unavailable rather than internal.
func RespondError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrStoreUnavailable) && apperrors.CodeOf(err) == apperrors.ErrInternal {
		err = apperrors.Wrap(apperrors.ErrUnavailable, "service temporarily unavailable", err)
	}
	httputil.RespondWithError(c, err)
}

func RespondBindError(c *gin.Context, err error) {
	httputil.RespondWithError(c, apperrors.BadRequest("invalid request", err))
}

// ParseUUID reads a path parameter, writing a 400 when it is malformed.
func ParseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+param, err))
		return uuid.Nil, false
	}
	return id, true
}

// SessionClinic returns the caller's clinic from the session.
func SessionClinic(c *gin.Context) (uuid.UUID, bool) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("no session")))
		return uuid.Nil, false
	}
	return session.ClinicID, true
}

// ClinicParam reads the clinic path parameter and checks the caller may act
// for it.
func ClinicParam(c *gin.Context) (uuid.UUID, bool) {
	clinicID, ok := ParseUUID(c, "clinic_id")
	if !ok {
		return uuid.Nil, false
	}
	session, ok := middleware.SessionFrom(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("no session")))
		return uuid.Nil, false
	}
	if session.ClinicID != clinicID && session.Role != middleware.RoleAdmin {
		httputil.RespondWithError(c, apperrors.Forbidden(errors.New("clinic outside session")))
		return uuid.Nil, false
	}
	return clinicID, true
}
