package migration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
	"github.com/jwalitptl/clinic-identity/internal/service/migration"
	harness "github.com/jwalitptl/clinic-identity/internal/testutil"
	apperrors "github.com/jwalitptl/clinic-identity/pkg/errors"
)

func newMigration(h *harness.Harness) *migration.Service {
	return migration.NewService(h.Legacy, h.Store.Appointments(), h.Store.Audit(), h.Metrics, h.Log)
}

func seedPatients(t *testing.T, h *harness.Harness, clinicID uuid.UUID, n int) []*model.LegacyPerson {
	t.Helper()
	people := make([]*model.LegacyPerson, 0, n)
	for i := 0; i < n; i++ {
		person := &model.LegacyPerson{
			Kind:     model.KindPatient,
			ClinicID: clinicID,
			ProfileAttributes: model.ProfileAttributes{
				FirstName:    fmt.Sprintf("Patient%d", i),
				Email:        model.StringPtr(fmt.Sprintf("Patient%d@Example.com", i)),
				Phone:        model.StringPtr(fmt.Sprintf("+3749810%04d", i)),
				PasswordHash: model.StringPtr("$2a$10$legacyhash"),
				Status:       model.ProfileStatusActive,
			},
		}
		require.NoError(t, h.Store.Legacy().Create(context.Background(), person))
		people = append(people, person)
	}
	return people
}

func TestBackfillPatientsIsIdempotent(t *testing.T) {
	h := harness.New(t, harness.LegacyModel)
	svc := newMigration(h)
	ctx := context.Background()
	seedPatients(t, h, uuid.New(), 100)

	first, err := svc.BackfillPatients(ctx, model.BackfillOptions{BatchSize: 30})
	require.NoError(t, err)
	assert.Equal(t, 100, first.Processed)
	assert.Equal(t, 100, first.Migrated)
	assert.Zero(t, first.Failed)
	identities, profiles := h.Store.Counts()
	assert.Equal(t, 100, identities)
	assert.Equal(t, 100, profiles)

	second, err := svc.BackfillPatients(ctx, model.BackfillOptions{BatchSize: 30})
	require.NoError(t, err)
	assert.Equal(t, 100, second.Processed)
	assert.Zero(t, second.Migrated)
	assert.Equal(t, 100, second.Skipped)
	identities, profiles = h.Store.Counts()
	assert.Equal(t, 100, identities)
	assert.Equal(t, 100, profiles)

	report, err := svc.Verify(ctx)
	require.NoError(t, err)
	patients := report.Entity(model.EntityPatient)
	assert.Equal(t, int64(100), patients.Total)
	assert.Equal(t, int64(100), patients.Migrated)
	assert.Equal(t, int64(100), patients.WithBothReferences)
	assert.Equal(t, float64(100), testutil.ToFloat64(h.Metrics.MigrationRecords.WithLabelValues(model.EntityPatient, "skipped")))
}

func TestBackfillCarriesCredentialsVerbatim(t *testing.T) {
	h := harness.New(t, harness.LegacyModel)
	people := seedPatients(t, h, uuid.New(), 1)

	_, err := newMigration(h).BackfillPatients(context.Background(), model.BackfillOptions{})
	require.NoError(t, err)

	profile, err := h.Identities.FindProfileByLegacy(context.Background(), model.KindPatient, people[0].ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "$2a$10$legacyhash", *profile.PasswordHash)
	assert.Equal(t, model.ProfileStatusActive, profile.Status)

	global, err := h.Identities.GetGlobalIdentity(context.Background(), profile.GlobalIdentityID)
	require.NoError(t, err)
	assert.Equal(t, "patient0@example.com", *global.Email)
}

func TestBackfillToleratesPartialPriorRun(t *testing.T) {
	h := harness.New(t, harness.LegacyModel)
	clinicID := uuid.New()
	people := seedPatients(t, h, clinicID, 5)

	// Two records were already migrated by hand, without a legacy link.
	for _, p := range people[:2] {
		_, _, err := h.Identities.RegisterPatient(context.Background(), clinicID, model.PatientDetails{
			FirstName: p.FirstName,
			Email:     *p.Email,
			Phone:     *p.Phone,
		})
		require.NoError(t, err)
	}

	summary, err := newMigration(h).BackfillPatients(context.Background(), model.BackfillOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Migrated)
	assert.Equal(t, 2, summary.Skipped)
	_, profiles := h.Store.Counts()
	assert.Equal(t, 5, profiles)

	linked, err := h.Identities.FindProfileByLegacy(context.Background(), model.KindPatient, people[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, linked, "natural-key match gets the legacy link recorded")
}

func TestBackfillRecordsPerRecordFailures(t *testing.T) {
	h := harness.New(t, harness.LegacyModel)
	ctx := context.Background()
	clinicA, clinicB := uuid.New(), uuid.New()
	// Same email in another clinic: patient emails are unique across profiles.
	// Fixed ids make the original page before the copy.
	original := &model.LegacyPerson{
		Base:     model.Base{ID: uuid.MustParse("00000000-0000-4000-8000-000000000001")},
		Kind:     model.KindPatient,
		ClinicID: clinicA,
		ProfileAttributes: model.ProfileAttributes{
			FirstName: "Original",
			Email:     model.StringPtr("patient0@example.com"),
			Status:    model.ProfileStatusActive,
		},
	}
	dup := &model.LegacyPerson{
		Base:     model.Base{ID: uuid.MustParse("00000000-0000-4000-8000-000000000002")},
		Kind:     model.KindPatient,
		ClinicID: clinicB,
		ProfileAttributes: model.ProfileAttributes{
			FirstName: "Copy",
			Email:     model.StringPtr("patient0@example.com"),
			Status:    model.ProfileStatusActive,
		},
	}
	require.NoError(t, h.Store.Legacy().Create(ctx, dup))
	require.NoError(t, h.Store.Legacy().Create(ctx, original))

	summary, err := newMigration(h).BackfillPatients(ctx, model.BackfillOptions{})
	require.NoError(t, err, "per-record errors do not abort the run")
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Migrated)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, dup.ID, summary.Errors[0].RecordID)
	assert.Equal(t, clinicB, summary.Errors[0].ClinicID)
}

func TestBackfillAbortsWhenStoreUnavailable(t *testing.T) {
	h := harness.New(t, harness.LegacyModel)
	svc := newMigration(h)
	ctx := context.Background()
	seedPatients(t, h, uuid.New(), 10)

	h.Store.FailAfter(20, errors.New("connection refused"))
	summary, err := svc.BackfillPatients(ctx, model.BackfillOptions{BatchSize: 4})
	require.Error(t, err)

	var abort *migration.AbortError
	require.ErrorAs(t, err, &abort)
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
	assert.Equal(t, apperrors.ErrUnavailable, apperrors.CodeOf(err))
	assert.Equal(t, summary.Processed, abort.Processed)
	assert.Less(t, abort.Processed, 10)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.Metrics.MigrationAborts.WithLabelValues(model.EntityPatient)))

	h.Store.FailAfter(-1, nil)
	resumed, err := svc.BackfillPatients(ctx, model.BackfillOptions{BatchSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 10, resumed.Processed)
	assert.Zero(t, resumed.Failed)
	identities, profiles := h.Store.Counts()
	assert.Equal(t, 10, identities)
	assert.Equal(t, 10, profiles)
}

func TestBackfillStopsOnCancelledContext(t *testing.T) {
	h := harness.New(t, harness.LegacyModel)
	seedPatients(t, h, uuid.New(), 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newMigration(h).BackfillPatients(ctx, model.BackfillOptions{BatchSize: 4})
	var abort *migration.AbortError
	require.ErrorAs(t, err, &abort)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Processed)
	assert.Zero(t, summary.Failed)
	assert.Empty(t, summary.Errors)

	_, profiles := h.Store.Counts()
	assert.Zero(t, profiles)
}

func TestBackfillScopedToClinic(t *testing.T) {
	h := harness.New(t, harness.LegacyModel)
	clinicA := uuid.New()
	seedPatients(t, h, clinicA, 3)
	h.LegacyPerson(t, model.KindPatient, uuid.New(), "+37477999999")

	summary, err := newMigration(h).BackfillPatients(context.Background(), model.BackfillOptions{ClinicID: &clinicA})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Migrated)
}

func TestBackfillAppointmentReferences(t *testing.T) {
	h := harness.New(t, harness.LegacyModel)
	svc := newMigration(h)
	ctx := context.Background()
	clinicID := uuid.New()
	doctor := h.LegacyPerson(t, model.KindDoctor, clinicID, "+37491000001")
	patient := h.LegacyPerson(t, model.KindPatient, clinicID, "+37491000002")

	a, err := h.Appointments.Create(ctx, clinicID, model.CreateAppointmentRequest{
		DoctorID:    doctor.ID,
		Patient:     model.PatientInput{ID: &patient.ID},
		ScheduledAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, model.RefLegacy, a.Doctor.Variant())

	// Nobody migrated yet: both references stay unresolved.
	summaries, err := svc.BackfillAppointmentReferences(ctx, model.BackfillOptions{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 1, summaries[0].Unresolved)
	assert.Equal(t, 1, summaries[1].Unresolved)

	_, err = svc.BackfillDoctors(ctx, model.BackfillOptions{})
	require.NoError(t, err)
	_, err = svc.BackfillPatients(ctx, model.BackfillOptions{})
	require.NoError(t, err)

	summaries, err = svc.BackfillAppointmentReferences(ctx, model.BackfillOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.EntityAppointmentDoctor, summaries[0].Entity)
	assert.Equal(t, 1, summaries[0].Migrated)
	assert.Equal(t, 1, summaries[1].Migrated)

	stored, err := h.Appointments.Get(ctx, clinicID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefDual, stored.Doctor.Variant())
	assert.Equal(t, model.RefDual, stored.Patient.Variant())

	report, err := svc.Verify(ctx)
	require.NoError(t, err)
	refs := report.Entity(model.EntityAppointmentDoctor)
	assert.Equal(t, int64(1), refs.Total)
	assert.Equal(t, int64(1), refs.WithBothReferences)

	// Nothing left to fill.
	summaries, err = svc.BackfillAppointmentReferences(ctx, model.BackfillOptions{})
	require.NoError(t, err)
	assert.Zero(t, summaries[0].Processed)
}
