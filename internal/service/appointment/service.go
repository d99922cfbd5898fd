package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
	"github.com/jwalitptl/clinic-identity/internal/service/clinic"
	"github.com/jwalitptl/clinic-identity/internal/service/event"
	"github.com/jwalitptl/clinic-identity/internal/service/identity"
	"github.com/jwalitptl/clinic-identity/internal/service/resolution"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
	"github.com/jwalitptl/clinic-identity/pkg/metrics"
)

const (
	MinAppointmentDuration = 5
	MaxAppointmentDuration = 8 * 60
)

type Options struct {
	DefaultDurationMinutes int
}

// Service owns the appointment state machine. Person references are resolved
// and written through the strategy picked from the feature flags.
type Service struct {
	repo       repository.AppointmentRepository
	strategy   *resolution.Strategy
	identities *identity.Service
	policies   *clinic.PolicyService
	notifier   event.Notifier
	metrics    *metrics.Metrics
	opts       Options
	log        *logger.Logger
}

func NewService(
	repo repository.AppointmentRepository,
	strategy *resolution.Strategy,
	identities *identity.Service,
	policies *clinic.PolicyService,
	notifier event.Notifier,
	m *metrics.Metrics,
	opts Options,
	log *logger.Logger,
) *Service {
	if opts.DefaultDurationMinutes <= 0 {
		opts.DefaultDurationMinutes = 30
	}
	return &Service{
		repo:       repo,
		strategy:   strategy,
		identities: identities,
		policies:   policies,
		notifier:   notifier,
		metrics:    m,
		opts:       opts,
		log:        log.WithFields(map[string]interface{}{"component": "appointment"}),
	}
}

func (s *Service) Create(ctx context.Context, clinicID uuid.UUID, req model.CreateAppointmentRequest) (*model.Appointment, error) {
	duration := req.DurationMinutes
	if duration == 0 {
		duration = s.opts.DefaultDurationMinutes
	}
	if req.ScheduledAt.IsZero() || duration < MinAppointmentDuration || duration > MaxAppointmentDuration {
		return nil, fmt.Errorf("%w: scheduled_at %v, duration %d minutes", ErrInvalidSchedule, req.ScheduledAt, duration)
	}

	doctor, err := s.strategy.Doctors.Resolve(ctx, model.KindDoctor, clinicID, req.DoctorID)
	if err != nil {
		if errors.Is(err, resolution.ErrPersonNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrDoctorNotFound, err)
		}
		return nil, fmt.Errorf("failed to resolve doctor: %w", err)
	}

	patient, err := s.resolvePatient(ctx, clinicID, req.Patient)
	if err != nil {
		return nil, err
	}

	doctorRef, err := s.strategy.Writer.Reference(ctx, doctor)
	if err != nil {
		return nil, fmt.Errorf("failed to build doctor reference: %w", err)
	}
	patientRef, err := s.strategy.Writer.Reference(ctx, patient)
	if err != nil {
		return nil, fmt.Errorf("failed to build patient reference: %w", err)
	}

	policy, err := s.policies.Policy(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	appointment := &model.Appointment{
		ClinicID:        clinicID,
		Doctor:          doctorRef,
		Patient:         patientRef,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: duration,
		Status:          model.AppointmentStatusPending,
		Reason:          model.StringPtr(strings.TrimSpace(req.Reason)),
	}
	if err := s.repo.CreateChecked(ctx, appointment, policy.EnforceNonOverlap); err != nil {
		if errors.Is(err, repository.ErrOverlap) {
			return nil, fmt.Errorf("%w: %w", ErrSchedulingConflict, err)
		}
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	s.metrics.AppointmentsCreated.WithLabelValues(s.strategy.Writer.Model()).Inc()
	s.log.Info("appointment created",
		"appointment_id", appointment.ID.String(),
		"clinic_id", clinicID.String(),
		"doctor", appointment.Doctor.String(),
		"patient", appointment.Patient.String(),
	)

	title, message := event.CreatedText(appointment)
	s.notifier.Notify(ctx, &model.LifecycleEvent{
		ClinicID:      clinicID,
		PatientRef:    appointment.Patient.String(),
		Type:          model.EventAppointmentCreated,
		Title:         title,
		Message:       message,
		AppointmentID: &appointment.ID,
		NewStatus:     appointment.Status,
	})
	return appointment, nil
}

func (s *Service) resolvePatient(ctx context.Context, clinicID uuid.UUID, input model.PatientInput) (*model.Identity, error) {
	switch {
	case input.ID != nil:
		patient, err := s.strategy.Patients.Resolve(ctx, model.KindPatient, clinicID, *input.ID)
		if err != nil {
			if errors.Is(err, resolution.ErrPersonNotFound) {
				return nil, fmt.Errorf("%w: %w", ErrPatientNotFound, err)
			}
			return nil, fmt.Errorf("failed to resolve patient: %w", err)
		}
		return patient, nil
	case input.Details != nil:
		profile, _, err := s.identities.RegisterPatient(ctx, clinicID, *input.Details)
		if err != nil {
			return nil, err
		}
		return model.IdentityFromProfile(profile), nil
	}
	return nil, ErrPatientRequired
}

// Transition moves an appointment along the state machine. Completing
// requires a non-negative amount; cancelling stores the optional reason and
// suggested time as given.
func (s *Service) Transition(ctx context.Context, clinicID, id uuid.UUID, to model.AppointmentStatus, payload model.TransitionPayload) (*model.Appointment, error) {
	var from model.AppointmentStatus
	updated, err := s.repo.Mutate(ctx, id, func(a *model.Appointment) error {
		if a.ClinicID != clinicID {
			return repository.ErrNotFound
		}
		from = a.Status
		return applyTransition(a, to, payload)
	})
	if err != nil {
		s.metrics.AppointmentTransitions.WithLabelValues(string(to), "rejected").Inc()
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
		}
		if errors.Is(err, ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		if errors.Is(err, ErrAmountRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to transition appointment: %w", err)
	}

	s.metrics.AppointmentTransitions.WithLabelValues(string(to), "applied").Inc()
	s.log.Info("appointment status changed",
		"appointment_id", id.String(),
		"from", string(from),
		"to", string(to),
	)

	title, message := event.StatusChangedText(updated, from)
	s.notifier.Notify(ctx, &model.LifecycleEvent{
		ClinicID:      updated.ClinicID,
		PatientRef:    updated.Patient.String(),
		Type:          model.EventAppointmentStatusChanged,
		Title:         title,
		Message:       message,
		AppointmentID: &updated.ID,
		OldStatus:     from,
		NewStatus:     updated.Status,
	})
	return updated, nil
}

func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if appointment.ClinicID != clinicID {
		return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	return appointment, nil
}

// ResolveIdentity returns the single identity an appointment's doctor or
// patient reference stands for.
func (s *Service) ResolveIdentity(ctx context.Context, ref model.PersonRef, kind model.PersonKind) (*model.Identity, error) {
	resolved, err := s.strategy.References.Resolve(ctx, kind, ref)
	if err != nil {
		return nil, err
	}
	s.metrics.IdentityResolutions.WithLabelValues(string(kind), string(resolved.Source)).Inc()
	return resolved, nil
}

// Describe loads an appointment with both participants resolved.
func (s *Service) Describe(ctx context.Context, clinicID, id uuid.UUID) (*model.AppointmentView, error) {
	appointment, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	doctor, err := s.ResolveIdentity(ctx, appointment.Doctor, model.KindDoctor)
	if err != nil {
		return nil, err
	}
	patient, err := s.ResolveIdentity(ctx, appointment.Patient, model.KindPatient)
	if err != nil {
		return nil, err
	}
	return &model.AppointmentView{Appointment: appointment, DoctorIdentity: doctor, PatientIdentity: patient}, nil
}

// ListByDoctor returns the doctor's appointments in the clinic, matched on
// the reference the read path selects.
func (s *Service) ListByDoctor(ctx context.Context, clinicID, doctorID uuid.UUID) ([]*model.Appointment, error) {
	doctor, err := s.strategy.Doctors.Resolve(ctx, model.KindDoctor, clinicID, doctorID)
	if err != nil {
		if errors.Is(err, resolution.ErrPersonNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrDoctorNotFound, err)
		}
		return nil, fmt.Errorf("failed to resolve doctor: %w", err)
	}
	appointments, err := s.repo.ListByDoctor(ctx, clinicID, s.strategy.Reads.Filter(doctor))
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// Upcoming filters appointments that have not ended and are still active.
func Upcoming(appointments []*model.Appointment, now time.Time) []*model.Appointment {
	var out []*model.Appointment
	for _, a := range appointments {
		if !a.Status.Terminal() && a.EndsAt().After(now) {
			out = append(out, a)
		}
	}
	return out
}
