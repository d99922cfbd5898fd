// Package testutil wires the services over the in-memory store for tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-identity/internal/config"
	"github.com/jwalitptl/clinic-identity/internal/featureflag"
	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository/memory"
	"github.com/jwalitptl/clinic-identity/internal/service/appointment"
	"github.com/jwalitptl/clinic-identity/internal/service/clinic"
	"github.com/jwalitptl/clinic-identity/internal/service/event"
	"github.com/jwalitptl/clinic-identity/internal/service/identity"
	"github.com/jwalitptl/clinic-identity/internal/service/legacy"
	"github.com/jwalitptl/clinic-identity/internal/service/resolution"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
	"github.com/jwalitptl/clinic-identity/pkg/metrics"
	"github.com/jwalitptl/clinic-identity/pkg/validator"
)

// NewModel enables every new-model flag.
var NewModel = config.Flags{
	AppointmentReadNewModel:   true,
	AppointmentWriteNewModel:  true,
	DoctorResolutionNewModel:  true,
	PatientResolutionNewModel: true,
	GlobalClinicSeparation:    true,
	StrictRollout:             true,
}

// LegacyModel leaves every flag off.
var LegacyModel = config.Flags{StrictRollout: true}

type Harness struct {
	Store        *memory.Store
	Flags        *featureflag.Router
	Identities   *identity.Service
	Legacy       *legacy.Service
	Strategy     *resolution.Strategy
	Policies     *clinic.PolicyService
	Notifier     *RecordingNotifier
	Metrics      *metrics.Metrics
	Appointments *appointment.Service
	Log          *logger.Logger
}

func New(t testing.TB, flags config.Flags) *Harness {
	t.Helper()
	log := logger.Nop()
	store := memory.NewStore()
	router := featureflag.New(flags)
	require.NoError(t, router.Validate(log))

	identities := identity.NewService(store.Identities(), validator.New("AM"), 5, log)
	legacySvc := legacy.NewService(store.Legacy(), identities, log)
	strategy := resolution.Select(router, identities, legacySvc)
	policies := clinic.NewPolicyService(store.Clinics(), time.Minute)
	notifier := &RecordingNotifier{}
	m := metrics.New("test", nil)

	return &Harness{
		Store:      store,
		Flags:      router,
		Identities: identities,
		Legacy:     legacySvc,
		Strategy:   strategy,
		Policies:   policies,
		Notifier:   notifier,
		Metrics:    m,
		Appointments: appointment.NewService(store.Appointments(), strategy, identities, policies, notifier, m,
			appointment.Options{DefaultDurationMinutes: 30}, log),
		Log: log,
	}
}

// Doctor associates a new account-holding doctor with the clinic.
func (h *Harness) Doctor(t testing.TB, clinicID uuid.UUID) *model.ClinicProfile {
	t.Helper()
	profile, _, err := h.Identities.AssociateDoctor(context.Background(), clinicID, model.AssociateDoctorRequest{
		AccountID: uuid.New(),
		FirstName: "Aram",
		LastName:  "Sargsyan",
	})
	require.NoError(t, err)
	return profile
}

// Patient registers a patient in the clinic.
func (h *Harness) Patient(t testing.TB, clinicID uuid.UUID, phone string) *model.ClinicProfile {
	t.Helper()
	profile, _, err := h.Identities.RegisterPatient(context.Background(), clinicID, model.PatientDetails{
		FirstName: "Ani",
		LastName:  "Hakobyan",
		Phone:     phone,
	})
	require.NoError(t, err)
	return profile
}

// LegacyPerson writes a pre-migration record.
func (h *Harness) LegacyPerson(t testing.TB, kind model.PersonKind, clinicID uuid.UUID, phone string) *model.LegacyPerson {
	t.Helper()
	person := &model.LegacyPerson{
		Kind:     kind,
		ClinicID: clinicID,
		ProfileAttributes: model.ProfileAttributes{
			FirstName: "Legacy",
			LastName:  string(kind),
			Phone:     model.StringPtr(phone),
			Status:    model.ProfileStatusActive,
		},
	}
	require.NoError(t, h.Store.Legacy().Create(context.Background(), person))
	return person
}

// RecordingNotifier keeps every event it is given.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []model.LifecycleEvent
}

var _ event.Notifier = (*RecordingNotifier)(nil)

func (n *RecordingNotifier) Notify(_ context.Context, e *model.LifecycleEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, *e)
}

func (n *RecordingNotifier) Events() []model.LifecycleEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.LifecycleEvent(nil), n.events...)
}
