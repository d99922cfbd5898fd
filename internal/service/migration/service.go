// Package migration backfills the global identity model from legacy person
// records and reports how far the migration has progressed. Runs are
// idempotent: records already migrated are skipped, so an interrupted run is
// resumed by running it again.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
	"github.com/jwalitptl/clinic-identity/internal/service/legacy"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
	"github.com/jwalitptl/clinic-identity/pkg/metrics"
)

const DefaultBatchSize = 500

type Service struct {
	legacy       *legacy.Service
	appointments repository.AppointmentRepository
	audit        repository.AuditRepository
	metrics      *metrics.Metrics
	log          *logger.Logger
	now          func() time.Time
}

func NewService(
	legacySvc *legacy.Service,
	appointments repository.AppointmentRepository,
	audit repository.AuditRepository,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		legacy:       legacySvc,
		appointments: appointments,
		audit:        audit,
		metrics:      m,
		log:          log.WithFields(map[string]interface{}{"component": "migration"}),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) BackfillPatients(ctx context.Context, opts model.BackfillOptions) (*model.BatchSummary, error) {
	return s.backfillPeople(ctx, model.KindPatient, model.EntityPatient, opts)
}

func (s *Service) BackfillDoctors(ctx context.Context, opts model.BackfillOptions) (*model.BatchSummary, error) {
	return s.backfillPeople(ctx, model.KindDoctor, model.EntityDoctor, opts)
}

// BackfillAppointmentReferences fills the missing profile reference of every
// appointment whose doctor or patient was migrated. Rows whose legacy person
// has no profile yet are counted as unresolved and left for a later run.
func (s *Service) BackfillAppointmentReferences(ctx context.Context, opts model.BackfillOptions) ([]*model.BatchSummary, error) {
	var summaries []*model.BatchSummary
	for _, kind := range []model.PersonKind{model.KindDoctor, model.KindPatient} {
		summary, err := s.backfillRefs(ctx, kind, opts)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, err
		}
	}
	return summaries, nil
}

func (s *Service) backfillPeople(ctx context.Context, kind model.PersonKind, entity string, opts model.BackfillOptions) (*model.BatchSummary, error) {
	run := s.start(entity)
	defer run.finish()

	after := uuid.Nil
	for {
		page, err := s.legacy.List(ctx, kind, opts.ClinicID, after, batchSize(opts))
		if err != nil {
			return run.summary, run.abort(err)
		}
		if len(page) == 0 {
			return run.summary, nil
		}

		for _, person := range page {
			if err := ctx.Err(); err != nil {
				return run.summary, run.abort(err)
			}
			after = person.ID
			_, outcome, err := s.legacy.Migrate(ctx, person)
			if err != nil {
				if fatal(err) {
					return run.summary, run.abort(err)
				}
				run.fail(person.ID, person.ClinicID, err)
				continue
			}
			if outcome == legacy.OutcomeMigrated {
				run.count("migrated")
			} else {
				run.count("skipped")
			}
		}

		s.log.Info("backfill batch committed", "entity", entity, "processed", run.summary.Processed, "last_id", after.String())
		if err := ctx.Err(); err != nil {
			return run.summary, run.abort(err)
		}
	}
}

func (s *Service) backfillRefs(ctx context.Context, kind model.PersonKind, opts model.BackfillOptions) (*model.BatchSummary, error) {
	entity := model.EntityAppointmentDoctor
	if kind == model.KindPatient {
		entity = model.EntityAppointmentPatient
	}
	run := s.start(entity)
	defer run.finish()

	after := uuid.Nil
	for {
		page, err := s.appointments.ListMissingProfileRefs(ctx, kind, after, batchSize(opts))
		if err != nil {
			return run.summary, run.abort(err)
		}
		if len(page) == 0 {
			return run.summary, nil
		}

		for _, a := range page {
			if err := ctx.Err(); err != nil {
				return run.summary, run.abort(err)
			}
			after = a.ID
			if opts.ClinicID != nil && a.ClinicID != *opts.ClinicID {
				continue
			}
			if err := s.fillRef(ctx, run, kind, a); err != nil {
				if fatal(err) {
					return run.summary, run.abort(err)
				}
				run.fail(a.ID, a.ClinicID, err)
			}
		}

		s.log.Info("backfill batch committed", "entity", entity, "processed", run.summary.Processed, "last_id", after.String())
		if err := ctx.Err(); err != nil {
			return run.summary, run.abort(err)
		}
	}
}

func (s *Service) fillRef(ctx context.Context, run *batchRun, kind model.PersonKind, a *model.Appointment) error {
	ref := a.Doctor
	if kind == model.KindPatient {
		ref = a.Patient
	}
	legacyID, ok := ref.LegacyID()
	if !ok {
		run.count("skipped")
		return nil
	}

	person, err := s.legacy.Get(ctx, kind, legacyID)
	if errors.Is(err, legacy.ErrLegacyNotFound) {
		run.unresolved(a.ID, "legacy record missing")
		return nil
	}
	if err != nil {
		return err
	}
	profile, err := s.legacy.ProfileFor(ctx, person)
	if err != nil {
		return err
	}
	if profile == nil {
		run.unresolved(a.ID, "legacy record not migrated")
		return nil
	}

	set, err := s.appointments.SetProfileRef(ctx, a.ID, kind, profile.ID)
	if err != nil {
		return fmt.Errorf("failed to set profile reference: %w", err)
	}
	if set {
		run.count("migrated")
	} else {
		run.count("skipped")
	}
	return nil
}

// Verify counts migration progress per entity without writing anything.
func (s *Service) Verify(ctx context.Context) (*model.VerifyReport, error) {
	report := &model.VerifyReport{GeneratedAt: s.now()}
	for _, kind := range []model.PersonKind{model.KindDoctor, model.KindPatient} {
		audit, err := s.audit.AuditPersons(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to audit %ss: %w", kind, err)
		}
		report.Entities = append(report.Entities, *audit)
	}
	for _, kind := range []model.PersonKind{model.KindDoctor, model.KindPatient} {
		audit, err := s.audit.AuditAppointmentRefs(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to audit appointment %s references: %w", kind, err)
		}
		report.Entities = append(report.Entities, *audit)
	}
	return report, nil
}

func batchSize(opts model.BackfillOptions) int {
	if opts.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return opts.BatchSize
}

// batchRun accumulates one entity's summary and mirrors it into metrics.
type batchRun struct {
	s       *Service
	summary *model.BatchSummary
	timer   *prometheus.Timer
}

func (s *Service) start(entity string) *batchRun {
	s.log.Info("backfill started", "entity", entity)
	return &batchRun{
		s:       s,
		summary: &model.BatchSummary{Entity: entity, StartedAt: s.now()},
		timer:   prometheus.NewTimer(s.metrics.MigrationDuration.WithLabelValues(entity)),
	}
}

func (r *batchRun) count(outcome string) {
	r.summary.Processed++
	switch outcome {
	case "migrated":
		r.summary.Migrated++
	case "skipped":
		r.summary.Skipped++
	}
	r.s.metrics.MigrationRecords.WithLabelValues(r.summary.Entity, outcome).Inc()
}

func (r *batchRun) unresolved(id uuid.UUID, why string) {
	r.summary.Processed++
	r.summary.Unresolved++
	r.s.metrics.MigrationRecords.WithLabelValues(r.summary.Entity, "unresolved").Inc()
	r.s.log.Debug("reference left unresolved", "entity", r.summary.Entity, "record_id", id.String(), "reason", why)
}

// fail records a per-record error with enough context to retry it alone.
func (r *batchRun) fail(id, clinicID uuid.UUID, err error) {
	r.summary.Processed++
	r.summary.Failed++
	r.summary.Errors = append(r.summary.Errors, model.RecordError{
		Entity:   r.summary.Entity,
		RecordID: id,
		ClinicID: clinicID,
		Error:    err.Error(),
	})
	r.s.metrics.MigrationRecords.WithLabelValues(r.summary.Entity, "failed").Inc()
	r.s.log.Error(err, "record migration failed",
		"entity", r.summary.Entity,
		"record_id", id.String(),
		"clinic_id", clinicID.String(),
	)
}

// fatal reports errors that end the whole run instead of one record.
func fatal(err error) bool {
	return errors.Is(err, repository.ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (r *batchRun) abort(err error) error {
	r.s.metrics.MigrationAborts.WithLabelValues(r.summary.Entity).Inc()
	r.s.log.Error(err, "backfill aborted", "entity", r.summary.Entity, "processed", r.summary.Processed)
	return &AbortError{Entity: r.summary.Entity, Processed: r.summary.Processed, Err: err}
}

func (r *batchRun) finish() {
	r.summary.FinishedAt = r.s.now()
	r.timer.ObserveDuration()
	r.s.log.Info("backfill finished",
		"entity", r.summary.Entity,
		"processed", r.summary.Processed,
		"migrated", r.summary.Migrated,
		"skipped", r.summary.Skipped,
		"unresolved", r.summary.Unresolved,
		"failed", r.summary.Failed,
	)
}
