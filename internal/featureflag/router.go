// Package featureflag exposes the rollout switches that choose between the
// legacy and the global-identity code paths. A Router is immutable once
// built and safe for concurrent use without locking.
package featureflag

import (
	"errors"
	"fmt"

	"github.com/jwalitptl/clinic-identity/internal/config"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
)

var ErrUnsafeRollout = errors.New("unsafe feature flag combination")

type Router struct {
	flags config.Flags
}

func New(flags config.Flags) *Router {
	return &Router{flags: flags}
}

func (r *Router) AppointmentReadUsesNewModel() bool  { return r.flags.AppointmentReadNewModel }
func (r *Router) AppointmentWriteUsesNewModel() bool { return r.flags.AppointmentWriteNewModel }
func (r *Router) DoctorResolutionUsesNewModel() bool { return r.flags.DoctorResolutionNewModel }
func (r *Router) PatientResolutionUsesNewModel() bool {
	return r.flags.PatientResolutionNewModel
}
func (r *Router) GlobalClinicSeparationEnabled() bool { return r.flags.GlobalClinicSeparation }

// Flags returns a copy of the underlying switches.
func (r *Router) Flags() config.Flags { return r.flags }

// Validate checks the rollout order: appointment reads may only move to the
// new model once writes populate it. In strict mode a violation is an error,
// otherwise it is logged.
func (r *Router) Validate(log *logger.Logger) error {
	if r.flags.AppointmentReadNewModel && !r.flags.AppointmentWriteNewModel {
		err := fmt.Errorf("%w: appointment reads use the new model while writes do not", ErrUnsafeRollout)
		if r.flags.StrictRollout {
			return err
		}
		log.Warn("feature flags out of rollout order", "error", err.Error())
	}
	return nil
}

// Fields renders the switches for startup logging.
func (r *Router) Fields() map[string]interface{} {
	return map[string]interface{}{
		"appointment_read_new_model":   r.flags.AppointmentReadNewModel,
		"appointment_write_new_model":  r.flags.AppointmentWriteNewModel,
		"doctor_resolution_new_model":  r.flags.DoctorResolutionNewModel,
		"patient_resolution_new_model": r.flags.PatientResolutionNewModel,
		"global_clinic_separation":     r.flags.GlobalClinicSeparation,
		"strict_rollout":               r.flags.StrictRollout,
	}
}
