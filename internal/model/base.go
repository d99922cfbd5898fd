package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PersonKind distinguishes doctor and patient records in every representation.
type PersonKind string

const (
	KindDoctor  PersonKind = "doctor"
	KindPatient PersonKind = "patient"
)

func (k PersonKind) Valid() bool {
	return k == KindDoctor || k == KindPatient
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
