package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
)

const appointmentColumns = `id, clinic_id, legacy_doctor_id, doctor_profile_id,
	legacy_patient_id, patient_profile_id, scheduled_at, duration_minutes,
	status, reason, amount, cancel_reason, suggested_at, created_at, updated_at`

// appointmentRow is the two-column storage shape of an appointment.
type appointmentRow struct {
	ID               uuid.UUID     `db:"id"`
	ClinicID         uuid.UUID     `db:"clinic_id"`
	LegacyDoctorID   uuid.NullUUID `db:"legacy_doctor_id"`
	DoctorProfileID  uuid.NullUUID `db:"doctor_profile_id"`
	LegacyPatientID  uuid.NullUUID `db:"legacy_patient_id"`
	PatientProfileID uuid.NullUUID `db:"patient_profile_id"`
	ScheduledAt      time.Time     `db:"scheduled_at"`
	DurationMinutes  int           `db:"duration_minutes"`
	Status           string        `db:"status"`
	Reason           *string       `db:"reason"`
	Amount           *int64        `db:"amount"`
	CancelReason     *string       `db:"cancel_reason"`
	SuggestedAt      *time.Time    `db:"suggested_at"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

func toRow(a *model.Appointment) appointmentRow {
	row := appointmentRow{
		ID:              a.ID,
		ClinicID:        a.ClinicID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Reason:          a.Reason,
		Amount:          a.Amount,
		CancelReason:    a.CancelReason,
		SuggestedAt:     a.SuggestedAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	row.LegacyDoctorID, row.DoctorProfileID = a.Doctor.Columns()
	row.LegacyPatientID, row.PatientProfileID = a.Patient.Columns()
	return row
}

func (row *appointmentRow) toModel() *model.Appointment {
	return &model.Appointment{
		Base:            model.Base{ID: row.ID, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt},
		ClinicID:        row.ClinicID,
		Doctor:          model.RefFromColumns(row.LegacyDoctorID, row.DoctorProfileID),
		Patient:         model.RefFromColumns(row.LegacyPatientID, row.PatientProfileID),
		ScheduledAt:     row.ScheduledAt,
		DurationMinutes: row.DurationMinutes,
		Status:          model.AppointmentStatus(row.Status),
		Reason:          row.Reason,
		Amount:          row.Amount,
		CancelReason:    row.CancelReason,
		SuggestedAt:     row.SuggestedAt,
	}
}

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{NewBaseRepository(db)}
}

// scheduleLockKeys returns one advisory lock key per doctor id generation, in
// a stable order so concurrent writers acquire them identically.
func scheduleLockKeys(doctor model.PersonRef) []string {
	var keys []string
	if id, ok := doctor.LegacyID(); ok {
		keys = append(keys, "doctor-schedule:"+id.String())
	}
	if id, ok := doctor.ProfileID(); ok {
		keys = append(keys, "doctor-schedule:"+id.String())
	}
	sort.Strings(keys)
	return keys
}

func (r *appointmentRepository) CreateChecked(ctx context.Context, appointment *model.Appointment, enforceOverlap bool) error {
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	appointment.CreatedAt = time.Now().UTC()
	appointment.UpdatedAt = appointment.CreatedAt

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if enforceOverlap {
			for _, key := range scheduleLockKeys(appointment.Doctor) {
				if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
					return wrap("lock doctor schedule", err)
				}
			}

			legacy, profile := appointment.Doctor.Columns()
			var clash bool
			err := tx.GetContext(ctx, &clash, `
				SELECT EXISTS (
					SELECT 1 FROM appointments
					WHERE (legacy_doctor_id = $1 OR doctor_profile_id = $2)
					  AND status <> 'cancelled'
					  AND scheduled_at < $4
					  AND scheduled_at + make_interval(mins => duration_minutes) > $3
				)`, legacy, profile, appointment.ScheduledAt, appointment.EndsAt())
			if err != nil {
				return wrap("check appointment conflicts", err)
			}
			if clash {
				return fmt.Errorf("doctor %s: %w", appointment.Doctor, repository.ErrOverlap)
			}
		}

		query := `
			INSERT INTO appointments (
				id, clinic_id, legacy_doctor_id, doctor_profile_id,
				legacy_patient_id, patient_profile_id, scheduled_at, duration_minutes,
				status, reason, amount, cancel_reason, suggested_at, created_at, updated_at
			) VALUES (
				:id, :clinic_id, :legacy_doctor_id, :doctor_profile_id,
				:legacy_patient_id, :patient_profile_id, :scheduled_at, :duration_minutes,
				:status, :reason, :amount, :cancel_reason, :suggested_at, :created_at, :updated_at
			)
		`
		if _, err := tx.NamedExecContext(ctx, query, toRow(appointment)); err != nil {
			return wrap("create appointment", err)
		}
		return nil
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var row appointmentRow
	err := r.db.GetContext(ctx, &row, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	if err != nil {
		return nil, wrap("get appointment", err)
	}
	return row.toModel(), nil
}

func (r *appointmentRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(*model.Appointment) error) (*model.Appointment, error) {
	var updated *model.Appointment
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var row appointmentRow
		err := tx.GetContext(ctx, &row, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return wrap("get appointment", err)
		}

		appointment := row.toModel()
		if err := fn(appointment); err != nil {
			return err
		}
		appointment.UpdatedAt = time.Now().UTC()

		_, err = tx.NamedExecContext(ctx, `
			UPDATE appointments
			SET status = :status, amount = :amount, cancel_reason = :cancel_reason,
				suggested_at = :suggested_at, updated_at = :updated_at
			WHERE id = :id`, toRow(appointment))
		if err != nil {
			return wrap("update appointment", err)
		}
		updated = appointment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, clinicID uuid.UUID, doctor model.PersonRef) ([]*model.Appointment, error) {
	legacy, profile := doctor.Columns()
	query := `
		SELECT ` + appointmentColumns + ` FROM appointments
		WHERE clinic_id = $1 AND (legacy_doctor_id = $2 OR doctor_profile_id = $3)
		ORDER BY scheduled_at
	`
	return r.selectRows(ctx, "list doctor appointments", query, clinicID, legacy, profile)
}

func refColumns(kind model.PersonKind) (legacy, profile string, err error) {
	switch kind {
	case model.KindDoctor:
		return "legacy_doctor_id", "doctor_profile_id", nil
	case model.KindPatient:
		return "legacy_patient_id", "patient_profile_id", nil
	}
	return "", "", fmt.Errorf("unknown person kind %q", kind)
}

func (r *appointmentRepository) ListMissingProfileRefs(ctx context.Context, kind model.PersonKind, after uuid.UUID, limit int) ([]*model.Appointment, error) {
	legacyCol, profileCol, err := refColumns(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s FROM appointments
		WHERE id > $1 AND %s IS NULL AND %s IS NOT NULL
		ORDER BY id
		LIMIT $2`, appointmentColumns, profileCol, legacyCol)
	return r.selectRows(ctx, "list appointments missing profile refs", query, after, limit)
}

func (r *appointmentRepository) SetProfileRef(ctx context.Context, id uuid.UUID, kind model.PersonKind, profileID uuid.UUID) (bool, error) {
	_, profileCol, err := refColumns(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE appointments SET %[1]s = $1, updated_at = NOW() WHERE id = $2 AND %[1]s IS NULL`, profileCol)
	result, err := r.db.ExecContext(ctx, query, profileID, id)
	if err != nil {
		return false, wrap("set appointment profile ref", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, wrap("set appointment profile ref", err)
	}
	return rows > 0, nil
}

func (r *appointmentRepository) selectRows(ctx context.Context, op, query string, args ...interface{}) ([]*model.Appointment, error) {
	var rows []appointmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrap(op, err)
	}
	appointments := make([]*model.Appointment, 0, len(rows))
	for i := range rows {
		appointments = append(appointments, rows[i].toModel())
	}
	return appointments, nil
}
