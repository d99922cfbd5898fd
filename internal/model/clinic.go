package model

import "github.com/google/uuid"

// ClinicPolicy is the per-clinic configuration the lifecycle manager consults.
type ClinicPolicy struct {
	ClinicID          uuid.UUID `db:"id" json:"clinic_id"`
	EnforceNonOverlap bool      `db:"enforce_non_overlap" json:"enforce_non_overlap"`
}
