package appointment

import (
	apperrors "github.com/jwalitptl/clinic-identity/pkg/errors"
)

var (
	ErrAppointmentNotFound = apperrors.New(apperrors.ErrNotFound, "appointment not found")
	ErrDoctorNotFound      = apperrors.New(apperrors.ErrNotFound, "doctor not found")
	ErrPatientNotFound     = apperrors.New(apperrors.ErrNotFound, "patient not found")
	ErrPatientRequired     = apperrors.New(apperrors.ErrBadRequest, "patient id or details required")
	ErrInvalidSchedule     = apperrors.New(apperrors.ErrBadRequest, "invalid appointment schedule")
	ErrInvalidTransition   = apperrors.New(apperrors.ErrInvalidTransition, "invalid status transition")
	ErrAmountRequired      = apperrors.New(apperrors.ErrAmountRequired, "a non-negative amount is required to complete an appointment")
	ErrSchedulingConflict  = apperrors.New(apperrors.ErrSchedulingConflict, "doctor already has an appointment in this window")
)
