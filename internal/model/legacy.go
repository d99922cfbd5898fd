package model

import "github.com/google/uuid"

// LegacyPerson is the pre-migration row: clinic id and personal data in one
// record, no global identity indirection. Doctors and patients live in
// separate tables; Kind records which one the row came from.
type LegacyPerson struct {
	Base
	Kind      PersonKind `db:"-" json:"kind"`
	ClinicID  uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	AccountID *uuid.UUID `db:"account_id" json:"account_id,omitempty"`
	ProfileAttributes
}
