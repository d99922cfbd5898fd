package model

import (
	"time"

	"github.com/google/uuid"
)

// Migration entity names used in summaries, audits and metrics.
const (
	EntityDoctor             = "doctor"
	EntityPatient            = "patient"
	EntityAppointmentDoctor  = "appointment_doctor_ref"
	EntityAppointmentPatient = "appointment_patient_ref"
)

// RecordError is enough context to retry one record alone.
type RecordError struct {
	Entity   string    `json:"entity"`
	RecordID uuid.UUID `json:"record_id"`
	ClinicID uuid.UUID `json:"clinic_id"`
	Error    string    `json:"error"`
}

// BatchSummary is the return contract of every backfill run.
type BatchSummary struct {
	Entity     string        `json:"entity"`
	Processed  int           `json:"processed"`
	Migrated   int           `json:"migrated"`
	Skipped    int           `json:"skipped"`
	Unresolved int           `json:"unresolved"`
	Failed     int           `json:"failed"`
	Errors     []RecordError `json:"errors,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// EntityAudit holds the read-only counts verify produces per entity.
type EntityAudit struct {
	Entity             string `json:"entity" db:"entity"`
	Total              int64  `json:"total" db:"total"`
	Migrated           int64  `json:"migrated" db:"migrated"`
	WithNewReference   int64  `json:"with_new_reference" db:"with_new_reference"`
	WithBothReferences int64  `json:"with_both_references" db:"with_both_references"`
}

type VerifyReport struct {
	Entities    []EntityAudit `json:"entities"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Entity returns the audit for name, or a zero audit.
func (r *VerifyReport) Entity(name string) EntityAudit {
	for _, e := range r.Entities {
		if e.Entity == name {
			return e
		}
	}
	return EntityAudit{Entity: name}
}

// BackfillOptions bounds a backfill run.
type BackfillOptions struct {
	BatchSize int
	ClinicID  *uuid.UUID
}
