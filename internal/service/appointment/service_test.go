package appointment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/service/appointment"
	"github.com/jwalitptl/clinic-identity/internal/service/event"
	"github.com/jwalitptl/clinic-identity/internal/service/resolution"
	harness "github.com/jwalitptl/clinic-identity/internal/testutil"
	apperrors "github.com/jwalitptl/clinic-identity/pkg/errors"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
)

var allStatuses = []model.AppointmentStatus{
	model.AppointmentStatusPending,
	model.AppointmentStatusConfirmed,
	model.AppointmentStatusCompleted,
	model.AppointmentStatusCancelled,
}

func amount(v int64) *int64 { return &v }

func book(t *testing.T, h *harness.Harness, clinicID uuid.UUID, doctorID, patientID uuid.UUID, at time.Time) *model.Appointment {
	t.Helper()
	a, err := h.Appointments.Create(context.Background(), clinicID, model.CreateAppointmentRequest{
		DoctorID:    doctorID,
		Patient:     model.PatientInput{ID: &patientID},
		ScheduledAt: at,
		Reason:      "checkup",
	})
	require.NoError(t, err)
	return a
}

// drive moves a fresh appointment into status s along legal edges.
func drive(t *testing.T, h *harness.Harness, a *model.Appointment, s model.AppointmentStatus) {
	t.Helper()
	ctx := context.Background()
	var path []model.AppointmentStatus
	switch s {
	case model.AppointmentStatusConfirmed:
		path = []model.AppointmentStatus{model.AppointmentStatusConfirmed}
	case model.AppointmentStatusCompleted:
		path = []model.AppointmentStatus{model.AppointmentStatusConfirmed, model.AppointmentStatusCompleted}
	case model.AppointmentStatusCancelled:
		path = []model.AppointmentStatus{model.AppointmentStatusCancelled}
	}
	for _, next := range path {
		_, err := h.Appointments.Transition(ctx, a.ClinicID, a.ID, next, model.TransitionPayload{Amount: amount(100)})
		require.NoError(t, err)
	}
}

func TestCreateStartsPendingAndEmitsEvent(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	doctor := h.Doctor(t, clinicID)
	patient := h.Patient(t, clinicID, "+37498123456")

	a := book(t, h, clinicID, doctor.ID, patient.ID, time.Now().Add(time.Hour))

	assert.Equal(t, model.AppointmentStatusPending, a.Status)
	assert.Equal(t, 30, a.DurationMinutes)
	profileID, ok := a.Doctor.ProfileID()
	require.True(t, ok)
	assert.Equal(t, doctor.ID, profileID)

	events := h.Notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAppointmentCreated, events[0].Type)
	assert.Equal(t, clinicID, events[0].ClinicID)
	assert.Equal(t, a.ID, *events[0].AppointmentID)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.Metrics.AppointmentsCreated.WithLabelValues("new")))
}

func TestCreateUnknownParticipants(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	doctor := h.Doctor(t, clinicID)
	patient := h.Patient(t, clinicID, "+37498123456")
	ctx := context.Background()
	at := time.Now().Add(time.Hour)

	missing := uuid.New()
	_, err := h.Appointments.Create(ctx, clinicID, model.CreateAppointmentRequest{
		DoctorID: missing, Patient: model.PatientInput{ID: &patient.ID}, ScheduledAt: at,
	})
	assert.ErrorIs(t, err, appointment.ErrDoctorNotFound)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))

	_, err = h.Appointments.Create(ctx, clinicID, model.CreateAppointmentRequest{
		DoctorID: doctor.ID, Patient: model.PatientInput{ID: &missing}, ScheduledAt: at,
	})
	assert.ErrorIs(t, err, appointment.ErrPatientNotFound)

	// A doctor from another clinic does not resolve here.
	other := h.Doctor(t, uuid.New())
	_, err = h.Appointments.Create(ctx, clinicID, model.CreateAppointmentRequest{
		DoctorID: other.ID, Patient: model.PatientInput{ID: &patient.ID}, ScheduledAt: at,
	})
	assert.ErrorIs(t, err, appointment.ErrDoctorNotFound)

	_, err = h.Appointments.Create(ctx, clinicID, model.CreateAppointmentRequest{DoctorID: doctor.ID, ScheduledAt: at})
	assert.ErrorIs(t, err, appointment.ErrPatientRequired)
}

func TestCreateRegistersInlinePatient(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	doctor := h.Doctor(t, clinicID)

	a, err := h.Appointments.Create(context.Background(), clinicID, model.CreateAppointmentRequest{
		DoctorID:    doctor.ID,
		Patient:     model.PatientInput{Details: &model.PatientDetails{FirstName: "Narek", Phone: "+37477000111"}},
		ScheduledAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	patientID, ok := a.Patient.ProfileID()
	require.True(t, ok)
	profile, err := h.Identities.GetClinicProfile(context.Background(), patientID)
	require.NoError(t, err)
	assert.Equal(t, "Narek", profile.FirstName)
}

func TestTransitionRequiresAmountToComplete(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	a := book(t, h, clinicID, h.Doctor(t, clinicID).ID, h.Patient(t, clinicID, "+37498123456").ID, time.Now().Add(time.Hour))
	ctx := context.Background()

	_, err := h.Appointments.Transition(ctx, clinicID, a.ID, model.AppointmentStatusCompleted, model.TransitionPayload{})
	assert.ErrorIs(t, err, appointment.ErrAmountRequired)
	assert.Equal(t, apperrors.ErrAmountRequired, apperrors.CodeOf(err))

	_, err = h.Appointments.Transition(ctx, clinicID, a.ID, model.AppointmentStatusCompleted, model.TransitionPayload{Amount: amount(-1)})
	assert.ErrorIs(t, err, appointment.ErrAmountRequired)

	stored, err := h.Appointments.Get(ctx, clinicID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPending, stored.Status, "failed transition leaves state untouched")

	done, err := h.Appointments.Transition(ctx, clinicID, a.ID, model.AppointmentStatusCompleted, model.TransitionPayload{Amount: amount(15000)})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, done.Status)
	assert.Equal(t, int64(15000), *done.Amount)
}

func TestTransitionFromCompletedToPendingIsInvalid(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	a := book(t, h, clinicID, h.Doctor(t, clinicID).ID, h.Patient(t, clinicID, "+37498123456").ID, time.Now().Add(time.Hour))
	drive(t, h, a, model.AppointmentStatusCompleted)

	_, err := h.Appointments.Transition(context.Background(), clinicID, a.ID, model.AppointmentStatusPending, model.TransitionPayload{})
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)
	assert.Equal(t, apperrors.ErrInvalidTransition, apperrors.CodeOf(err))
}

func TestTransitionGrid(t *testing.T) {
	legal := map[[2]model.AppointmentStatus]bool{
		{model.AppointmentStatusPending, model.AppointmentStatusConfirmed}:   true,
		{model.AppointmentStatusPending, model.AppointmentStatusCompleted}:   true,
		{model.AppointmentStatusPending, model.AppointmentStatusCancelled}:   true,
		{model.AppointmentStatusConfirmed, model.AppointmentStatusCompleted}: true,
		{model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled}: true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			from, to := from, to
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				h := harness.New(t, harness.NewModel)
				clinicID := uuid.New()
				a := book(t, h, clinicID, h.Doctor(t, clinicID).ID, h.Patient(t, clinicID, "+37498123456").ID, time.Now().Add(time.Hour))
				drive(t, h, a, from)

				_, err := h.Appointments.Transition(context.Background(), clinicID, a.ID, to, model.TransitionPayload{Amount: amount(0)})
				assert.Equal(t, legal[[2]model.AppointmentStatus{from, to}], appointment.CanTransition(from, to))
				if legal[[2]model.AppointmentStatus{from, to}] {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, appointment.ErrInvalidTransition)
				}
			})
		}
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	for _, terminal := range []model.AppointmentStatus{model.AppointmentStatusCompleted, model.AppointmentStatusCancelled} {
		h := harness.New(t, harness.NewModel)
		clinicID := uuid.New()
		a := book(t, h, clinicID, h.Doctor(t, clinicID).ID, h.Patient(t, clinicID, "+37498123456").ID, time.Now().Add(time.Hour))
		drive(t, h, a, terminal)

		for _, to := range allStatuses {
			_, err := h.Appointments.Transition(context.Background(), clinicID, a.ID, to, model.TransitionPayload{Amount: amount(1)})
			assert.Error(t, err, "%s -> %s", terminal, to)
		}
	}
}

func TestCancelStoresReasonAndSuggestionVerbatim(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	a := book(t, h, clinicID, h.Doctor(t, clinicID).ID, h.Patient(t, clinicID, "+37498123456").ID, time.Now().Add(time.Hour))
	reason := "  doctor is ill "
	suggested := time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)

	cancelled, err := h.Appointments.Transition(context.Background(), clinicID, a.ID, model.AppointmentStatusCancelled,
		model.TransitionPayload{CancelReason: &reason, SuggestedAt: &suggested})
	require.NoError(t, err)
	assert.Equal(t, reason, *cancelled.CancelReason)
	assert.Equal(t, suggested, *cancelled.SuggestedAt)

	events := h.Notifier.Events()
	require.Len(t, events, 2)
	last := events[1]
	assert.Equal(t, model.EventAppointmentStatusChanged, last.Type)
	assert.Equal(t, model.AppointmentStatusPending, last.OldStatus)
	assert.Equal(t, model.AppointmentStatusCancelled, last.NewStatus)
}

func TestTransitionInAnotherClinicIsNotFound(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	a := book(t, h, clinicID, h.Doctor(t, clinicID).ID, h.Patient(t, clinicID, "+37498123456").ID, time.Now().Add(time.Hour))

	_, err := h.Appointments.Transition(context.Background(), uuid.New(), a.ID, model.AppointmentStatusConfirmed, model.TransitionPayload{})
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestConcurrentOverlappingCreatesExactlyOneWins(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	doctor := h.Doctor(t, clinicID)
	p1 := h.Patient(t, clinicID, "+37498000001")
	p2 := h.Patient(t, clinicID, "+37498000002")
	at := time.Now().Add(24 * time.Hour).Truncate(time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i, patientID := range []uuid.UUID{p1.ID, p2.ID} {
		wg.Add(1)
		go func(i int, patientID uuid.UUID) {
			defer wg.Done()
			<-start
			_, errs[i] = h.Appointments.Create(context.Background(), clinicID, model.CreateAppointmentRequest{
				DoctorID: doctor.ID, Patient: model.PatientInput{ID: &patientID}, ScheduledAt: at, DurationMinutes: 30,
			})
		}(i, patientID)
	}
	close(start)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, appointment.ErrSchedulingConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
}

func TestOverlapIgnoresCancelledAndAdjacent(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	doctor := h.Doctor(t, clinicID)
	patient := h.Patient(t, clinicID, "+37498123456")
	at := time.Now().Add(24 * time.Hour).Truncate(time.Minute)

	first := book(t, h, clinicID, doctor.ID, patient.ID, at)
	// Back-to-back is not an overlap.
	book(t, h, clinicID, doctor.ID, patient.ID, at.Add(30*time.Minute))

	_, err := h.Appointments.Create(context.Background(), clinicID, model.CreateAppointmentRequest{
		DoctorID: doctor.ID, Patient: model.PatientInput{ID: &patient.ID}, ScheduledAt: at.Add(10 * time.Minute),
	})
	assert.ErrorIs(t, err, appointment.ErrSchedulingConflict)

	drive(t, h, first, model.AppointmentStatusCancelled)
	rebooked := book(t, h, clinicID, doctor.ID, patient.ID, at)
	assert.True(t, rebooked.EndsAt().Equal(at.Add(30*time.Minute)))
}

func TestOverlapAllowedWhenClinicDisablesCheck(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	h.Store.SetPolicy(model.ClinicPolicy{ClinicID: clinicID, EnforceNonOverlap: false})
	doctor := h.Doctor(t, clinicID)
	patient := h.Patient(t, clinicID, "+37498123456")
	at := time.Now().Add(time.Hour)

	book(t, h, clinicID, doctor.ID, patient.ID, at)
	book(t, h, clinicID, doctor.ID, patient.ID, at)
}

func TestOverlapDetectedAcrossGenerations(t *testing.T) {
	// Legacy writes first, then the flag flips and the doctor is addressed
	// by profile id. Both bookings must still collide.
	legacyH := harness.New(t, harness.LegacyModel)
	clinicID := uuid.New()
	doctor := legacyH.LegacyPerson(t, model.KindDoctor, clinicID, "+37491000001")
	patient := legacyH.LegacyPerson(t, model.KindPatient, clinicID, "+37491000002")
	at := time.Now().Add(time.Hour).Truncate(time.Minute)
	book(t, legacyH, clinicID, doctor.ID, patient.ID, at)

	profile, _, err := legacyH.Legacy.Migrate(context.Background(), doctor)
	require.NoError(t, err)
	_, err = legacyH.Appointments.Create(context.Background(), clinicID, model.CreateAppointmentRequest{
		DoctorID: profile.ID, Patient: model.PatientInput{ID: &patient.ID}, ScheduledAt: at,
	})
	assert.ErrorIs(t, err, appointment.ErrSchedulingConflict)
}

func TestLegacyWritePathStoresBothReferences(t *testing.T) {
	h := harness.New(t, harness.LegacyModel)
	clinicID := uuid.New()
	doctor := h.Doctor(t, clinicID)
	patient := h.LegacyPerson(t, model.KindPatient, clinicID, "+37491000002")

	a := book(t, h, clinicID, doctor.ID, patient.ID, time.Now().Add(time.Hour))

	assert.Equal(t, model.RefDual, a.Doctor.Variant(), "profile-only doctor gets a legacy shadow")
	assert.Equal(t, model.RefLegacy, a.Patient.Variant(), "unmigrated patient stays legacy")

	refreshed, err := h.Identities.GetClinicProfile(context.Background(), doctor.ID)
	require.NoError(t, err)
	shadowID, _ := a.Doctor.LegacyID()
	assert.Equal(t, shadowID, *refreshed.LegacyID)
}

func TestNewWritePathMigratesLegacyParticipants(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	doctor := h.LegacyPerson(t, model.KindDoctor, clinicID, "+37491000001")
	patient := h.LegacyPerson(t, model.KindPatient, clinicID, "+37491000002")

	a := book(t, h, clinicID, doctor.ID, patient.ID, time.Now().Add(time.Hour))

	assert.Equal(t, model.RefDual, a.Doctor.Variant())
	assert.Equal(t, model.RefDual, a.Patient.Variant())
	legacyID, _ := a.Patient.LegacyID()
	assert.Equal(t, patient.ID, legacyID)
}

func TestResolveIdentityPrefersProfileWithSeparation(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	doctor := h.LegacyPerson(t, model.KindDoctor, clinicID, "+37491000001")
	patient := h.LegacyPerson(t, model.KindPatient, clinicID, "+37491000002")
	a := book(t, h, clinicID, doctor.ID, patient.ID, time.Now().Add(time.Hour))
	require.Equal(t, model.RefDual, a.Doctor.Variant())

	for i := 0; i < 10; i++ {
		resolved, err := h.Appointments.ResolveIdentity(context.Background(), a.Doctor, model.KindDoctor)
		require.NoError(t, err)
		assert.Equal(t, model.SourceProfile, resolved.Source)
	}

	view, err := h.Appointments.Describe(context.Background(), clinicID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SourceProfile, view.DoctorIdentity.Source)
	assert.Equal(t, model.SourceProfile, view.PatientIdentity.Source)
}

func TestResolveIdentityFallsBackToLegacyWithoutSeparation(t *testing.T) {
	flags := harness.NewModel
	flags.GlobalClinicSeparation = false
	h := harness.New(t, flags)
	clinicID := uuid.New()
	doctor := h.LegacyPerson(t, model.KindDoctor, clinicID, "+37491000001")
	patient := h.LegacyPerson(t, model.KindPatient, clinicID, "+37491000002")
	a := book(t, h, clinicID, doctor.ID, patient.ID, time.Now().Add(time.Hour))

	resolved, err := h.Appointments.ResolveIdentity(context.Background(), a.Doctor, model.KindDoctor)
	require.NoError(t, err)
	assert.Equal(t, model.SourceLegacy, resolved.Source)
	assert.NotNil(t, resolved.ProfileID, "legacy descriptor still names the migrated profile")
}

func TestResolveIdentityAmbiguousClinic(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicA, clinicB := uuid.New(), uuid.New()
	profile := h.Doctor(t, clinicA)
	stray := h.LegacyPerson(t, model.KindDoctor, clinicB, "+37491000009")

	_, err := h.Appointments.ResolveIdentity(context.Background(), model.DualRef(stray.ID, profile.ID), model.KindDoctor)
	assert.ErrorIs(t, err, resolution.ErrResolutionAmbiguous)
	assert.Equal(t, apperrors.ErrResolutionAmbiguous, apperrors.CodeOf(err))
}

func TestListByDoctorUsesReadPath(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	clinicID := uuid.New()
	doctor := h.Doctor(t, clinicID)
	patient := h.Patient(t, clinicID, "+37498123456")
	at := time.Now().Add(time.Hour)
	book(t, h, clinicID, doctor.ID, patient.ID, at)
	book(t, h, clinicID, doctor.ID, patient.ID, at.Add(2*time.Hour))

	list, err := h.Appointments.ListByDoctor(context.Background(), clinicID, doctor.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].ScheduledAt.Before(list[1].ScheduledAt))
	assert.Len(t, appointment.Upcoming(list, time.Now()), 2)
}

type failingBroker struct{}

func (failingBroker) Publish(context.Context, string, interface{}) error {
	return errors.New("broker down")
}
func (failingBroker) Close() error { return nil }

func TestNotifierFailureDoesNotRollBack(t *testing.T) {
	h := harness.New(t, harness.NewModel)
	notifier := event.NewBrokerNotifier(failingBroker{}, "", h.Metrics, logger.Nop())
	svc := appointment.NewService(h.Store.Appointments(), h.Strategy, h.Identities, h.Policies, notifier, h.Metrics,
		appointment.Options{}, logger.Nop())
	clinicID := uuid.New()
	doctor := h.Doctor(t, clinicID)
	patient := h.Patient(t, clinicID, "+37498123456")

	a, err := svc.Create(context.Background(), clinicID, model.CreateAppointmentRequest{
		DoctorID: doctor.ID, Patient: model.PatientInput{ID: &patient.ID}, ScheduledAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	confirmed, err := svc.Transition(context.Background(), clinicID, a.ID, model.AppointmentStatusConfirmed, model.TransitionPayload{})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, confirmed.Status)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.Metrics.NotificationsFailed))
}
