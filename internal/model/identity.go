package model

import (
	"strings"

	"github.com/google/uuid"
)

// Profile statuses. Patients start active; doctors use active/inactive only.
const (
	ProfileStatusActive   = "active"
	ProfileStatusInactive = "inactive"
	ProfileStatusBlocked  = "blocked"
)

// GlobalIdentity is the clinic-independent record for one real person.
type GlobalIdentity struct {
	Base
	Kind      PersonKind `db:"kind" json:"kind"`
	AccountID *uuid.UUID `db:"account_id" json:"account_id,omitempty"`
	Email     *string    `db:"email" json:"email,omitempty"`
	Phone     *string    `db:"phone" json:"phone,omitempty"`
}

// NaturalKey is the best-effort tuple used to match an existing identity.
// Values are expected to be normalized by the identity service.
type NaturalKey struct {
	Kind      PersonKind
	AccountID *uuid.UUID
	Email     string
	Phone     string
}

func (k NaturalKey) Empty() bool {
	return k.AccountID == nil && k.Email == "" && k.Phone == ""
}

// ClinicProfile is a person's data as known to one clinic.
type ClinicProfile struct {
	Base
	Kind             PersonKind `db:"kind" json:"kind"`
	ClinicID         uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	GlobalIdentityID uuid.UUID  `db:"global_identity_id" json:"global_identity_id"`
	LegacyID         *uuid.UUID `db:"legacy_id" json:"legacy_id,omitempty"`
	ProfileAttributes
}

// ProfileAttributes are the clinic-scoped attributes shared by profiles and
// legacy person records.
type ProfileAttributes struct {
	FirstName      string  `db:"first_name" json:"first_name"`
	LastName       string  `db:"last_name" json:"last_name"`
	Email          *string `db:"email" json:"email,omitempty"`
	Phone          *string `db:"phone" json:"phone,omitempty"`
	PasswordHash   *string `db:"password_hash" json:"-"`
	Specialization *string `db:"specialization" json:"specialization,omitempty"`
	LicenseNumber  *string `db:"license_number" json:"license_number,omitempty"`
	Status         string  `db:"status" json:"status"`
}

func (a ProfileAttributes) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// PatientDetails carries inline registration data for a patient that may not
// exist yet in the clinic.
type PatientDetails struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" binding:"omitempty,email"`
	Phone     string `json:"phone"`
}

type FindOrCreateIdentityRequest struct {
	Kind      PersonKind `json:"kind" binding:"required,oneof=doctor patient"`
	AccountID *uuid.UUID `json:"account_id"`
	Email     string     `json:"email" binding:"omitempty,email"`
	Phone     string     `json:"phone"`
}

type CreateProfileRequest struct {
	Kind             PersonKind `json:"kind" binding:"required,oneof=doctor patient"`
	GlobalIdentityID uuid.UUID  `json:"global_identity_id" binding:"required"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Email            string     `json:"email" binding:"omitempty,email"`
	Phone            string     `json:"phone"`
	Specialization   string     `json:"specialization"`
	LicenseNumber    string     `json:"license_number"`
	Status           string     `json:"status" binding:"omitempty,oneof=active inactive blocked"`
}

type AssociateDoctorRequest struct {
	AccountID      uuid.UUID `json:"account_id" binding:"required"`
	FirstName      string    `json:"first_name" binding:"required"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email" binding:"omitempty,email"`
	Phone          string    `json:"phone"`
	Specialization string    `json:"specialization"`
	LicenseNumber  string    `json:"license_number"`
}
