package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-identity/internal/model"
)

// Store-level failures. Implementations wrap these so callers can use errors.Is.
var (
	ErrNotFound         = errors.New("record not found")
	ErrConflict         = errors.New("unique constraint violated")
	ErrOverlap          = errors.New("overlapping appointment")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// All repository interfaces in one file
type (
	IdentityRepository interface {
		GetIdentity(ctx context.Context, id uuid.UUID) (*model.GlobalIdentity, error)
		FindIdentityByAccount(ctx context.Context, kind model.PersonKind, accountID uuid.UUID) (*model.GlobalIdentity, error)
		FindIdentityByEmail(ctx context.Context, kind model.PersonKind, email string) (*model.GlobalIdentity, error)
		FindIdentityByPhone(ctx context.Context, kind model.PersonKind, phone string) (*model.GlobalIdentity, error)
		// CreateIdentity returns ErrConflict when any natural key column is taken.
		CreateIdentity(ctx context.Context, identity *model.GlobalIdentity) error
		// BindAccount sets the account link of an identity that has none.
		// ErrConflict means the identity is already bound or another identity
		// holds the account.
		BindAccount(ctx context.Context, identityID, accountID uuid.UUID) error

		// CreateProfile returns ErrConflict on a duplicate (clinic, identity)
		// pair, legacy link or patient email.
		CreateProfile(ctx context.Context, profile *model.ClinicProfile) error
		GetProfile(ctx context.Context, id uuid.UUID) (*model.ClinicProfile, error)
		FindProfile(ctx context.Context, clinicID, identityID uuid.UUID) (*model.ClinicProfile, error)
		FindProfileByLegacy(ctx context.Context, kind model.PersonKind, legacyID uuid.UUID) (*model.ClinicProfile, error)
		FindProfileByNaturalKey(ctx context.Context, clinicID uuid.UUID, key model.NaturalKey) (*model.ClinicProfile, error)
		// LinkLegacy sets the legacy link of a profile that has none.
		// ErrConflict means the profile is already linked elsewhere.
		LinkLegacy(ctx context.Context, profileID, legacyID uuid.UUID) error
	}

	LegacyRepository interface {
		Get(ctx context.Context, kind model.PersonKind, id uuid.UUID) (*model.LegacyPerson, error)
		Create(ctx context.Context, person *model.LegacyPerson) error
		// ListAfter pages through records in id order, starting after the given id.
		ListAfter(ctx context.Context, kind model.PersonKind, clinicID *uuid.UUID, after uuid.UUID, limit int) ([]*model.LegacyPerson, error)
	}

	AppointmentRepository interface {
		// CreateChecked inserts the appointment. When enforceOverlap is set
		// the doctor's schedule is locked and checked in the same
		// transaction; ErrOverlap is returned on a clash.
		CreateChecked(ctx context.Context, appointment *model.Appointment, enforceOverlap bool) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// Mutate loads the row for update, applies fn and persists the
		// lifecycle fields. Returning an error from fn rolls back.
		Mutate(ctx context.Context, id uuid.UUID, fn func(*model.Appointment) error) (*model.Appointment, error)
		ListByDoctor(ctx context.Context, clinicID uuid.UUID, doctor model.PersonRef) ([]*model.Appointment, error)
		ListMissingProfileRefs(ctx context.Context, kind model.PersonKind, after uuid.UUID, limit int) ([]*model.Appointment, error)
		// SetProfileRef fills an empty profile reference. It reports false
		// when the reference was already populated.
		SetProfileRef(ctx context.Context, id uuid.UUID, kind model.PersonKind, profileID uuid.UUID) (bool, error)
	}

	ClinicRepository interface {
		GetPolicy(ctx context.Context, clinicID uuid.UUID) (*model.ClinicPolicy, error)
	}

	// AuditRepository backs the read-only migration verification.
	AuditRepository interface {
		AuditPersons(ctx context.Context, kind model.PersonKind) (*model.EntityAudit, error)
		AuditAppointmentRefs(ctx context.Context, kind model.PersonKind) (*model.EntityAudit, error)
	}
)
