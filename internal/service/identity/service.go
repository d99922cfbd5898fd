package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
	"github.com/jwalitptl/clinic-identity/pkg/validator"
)

const defaultMaxAttempts = 5

// Service is the authoritative source of global identities and clinic
// profiles.
type Service struct {
	repo        repository.IdentityRepository
	validate    *validator.Validator
	maxAttempts int
	log         *logger.Logger
}

func NewService(repo repository.IdentityRepository, validate *validator.Validator, maxAttempts int, log *logger.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Service{
		repo:        repo,
		validate:    validate,
		maxAttempts: maxAttempts,
		log:         log.WithFields(map[string]interface{}{"component": "identity"}),
	}
}

// NaturalKey builds a normalized key. Malformed email or phone values are
// rejected.
func (s *Service) NaturalKey(kind model.PersonKind, accountID *uuid.UUID, email, phone string) (model.NaturalKey, error) {
	if !kind.Valid() {
		return model.NaturalKey{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidNaturalKey, kind)
	}
	normalizedEmail, err := s.validate.NormalizeEmail(email)
	if err != nil {
		return model.NaturalKey{}, fmt.Errorf("%w: %w", ErrInvalidNaturalKey, err)
	}
	normalizedPhone, err := s.validate.NormalizePhone(phone)
	if err != nil {
		return model.NaturalKey{}, fmt.Errorf("%w: %w", ErrInvalidNaturalKey, err)
	}
	return model.NaturalKey{Kind: kind, AccountID: accountID, Email: normalizedEmail, Phone: normalizedPhone}, nil
}

// LenientKey builds a key from stored data, dropping values that do not
// normalize instead of failing.
func (s *Service) LenientKey(kind model.PersonKind, accountID *uuid.UUID, email, phone *string) model.NaturalKey {
	key := model.NaturalKey{Kind: kind, AccountID: accountID}
	if e, err := s.validate.NormalizeEmail(model.StringValue(email)); err == nil {
		key.Email = e
	}
	if p, err := s.validate.NormalizePhone(model.StringValue(phone)); err == nil {
		key.Phone = p
	}
	return key
}

// FindOrCreateGlobalIdentity returns the identity matching key, looking up by
// account link, then email, then phone, and creates one when none matches.
// Concurrent callers racing on the same key converge on a single row: the
// store's unique indexes reject the losers, which re-read and return the
// winner.
func (s *Service) FindOrCreateGlobalIdentity(ctx context.Context, key model.NaturalKey) (*model.GlobalIdentity, error) {
	if !key.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidNaturalKey, key.Kind)
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		existing, err := s.lookup(ctx, key)
		if err == nil {
			if key.AccountID == nil || existing.AccountID != nil {
				return existing, nil
			}
			// Contact-detail match on an identity without an account link.
			err = s.repo.BindAccount(ctx, existing.ID, *key.AccountID)
			if err == nil {
				existing.AccountID = key.AccountID
				s.log.Debug("account bound to global identity", "identity_id", existing.ID.String(), "kind", string(key.Kind))
				return existing, nil
			}
			if !errors.Is(err, repository.ErrConflict) {
				return nil, fmt.Errorf("failed to bind account: %w", err)
			}
			s.log.Debug("account bind lost race, retrying", "attempt", attempt, "kind", string(key.Kind))
			continue
		}
		if errors.Is(err, ErrAccountMismatch) {
			return nil, err
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up global identity: %w", err)
		}

		identity := &model.GlobalIdentity{
			Kind:      key.Kind,
			AccountID: key.AccountID,
			Email:     model.StringPtr(key.Email),
			Phone:     model.StringPtr(key.Phone),
		}
		err = s.repo.CreateIdentity(ctx, identity)
		if err == nil {
			s.log.Debug("global identity created", "identity_id", identity.ID.String(), "kind", string(key.Kind))
			return identity, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("failed to create global identity: %w", err)
		}
		s.log.Debug("global identity create lost race, retrying", "attempt", attempt, "kind", string(key.Kind))
	}
	return nil, ErrIdentityContention
}

func (s *Service) lookup(ctx context.Context, key model.NaturalKey) (*model.GlobalIdentity, error) {
	if key.AccountID != nil {
		identity, err := s.repo.FindIdentityByAccount(ctx, key.Kind, *key.AccountID)
		if !errors.Is(err, repository.ErrNotFound) {
			return identity, err
		}
	}
	if key.Email != "" {
		identity, err := s.repo.FindIdentityByEmail(ctx, key.Kind, key.Email)
		if !errors.Is(err, repository.ErrNotFound) {
			return checkAccount(key, identity, err)
		}
	}
	if key.Phone != "" {
		identity, err := s.repo.FindIdentityByPhone(ctx, key.Kind, key.Phone)
		if !errors.Is(err, repository.ErrNotFound) {
			return checkAccount(key, identity, err)
		}
	}
	return nil, repository.ErrNotFound
}

// checkAccount refuses a contact-detail match that is already bound to a
// different account holder.
func checkAccount(key model.NaturalKey, identity *model.GlobalIdentity, err error) (*model.GlobalIdentity, error) {
	if err != nil {
		return nil, err
	}
	if key.AccountID != nil && identity.AccountID != nil && *identity.AccountID != *key.AccountID {
		return nil, fmt.Errorf("%w: identity %s", ErrAccountMismatch, identity.ID)
	}
	return identity, nil
}

func (s *Service) GetGlobalIdentity(ctx context.Context, id uuid.UUID) (*model.GlobalIdentity, error) {
	identity, err := s.repo.GetIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, id)
		}
		return nil, fmt.Errorf("failed to get global identity: %w", err)
	}
	return identity, nil
}

// CreateClinicProfile creates the profile of an identity in one clinic. A
// second profile for the same pair fails with ErrDuplicateProfile.
func (s *Service) CreateClinicProfile(ctx context.Context, clinicID, globalIdentityID uuid.UUID, attrs model.ProfileAttributes) (*model.ClinicProfile, error) {
	return s.createProfile(ctx, clinicID, globalIdentityID, nil, attrs)
}

// CreateLinkedProfile is CreateClinicProfile for a profile migrated from a
// legacy record.
func (s *Service) CreateLinkedProfile(ctx context.Context, clinicID, globalIdentityID, legacyID uuid.UUID, attrs model.ProfileAttributes) (*model.ClinicProfile, error) {
	return s.createProfile(ctx, clinicID, globalIdentityID, &legacyID, attrs)
}

func (s *Service) createProfile(ctx context.Context, clinicID, globalIdentityID uuid.UUID, legacyID *uuid.UUID, attrs model.ProfileAttributes) (*model.ClinicProfile, error) {
	identity, err := s.GetGlobalIdentity(ctx, globalIdentityID)
	if err != nil {
		return nil, err
	}

	profile := &model.ClinicProfile{
		Kind:              identity.Kind,
		ClinicID:          clinicID,
		GlobalIdentityID:  identity.ID,
		LegacyID:          legacyID,
		ProfileAttributes: attrs,
	}
	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", ErrDuplicateProfile, err)
		}
		return nil, fmt.Errorf("failed to create clinic profile: %w", err)
	}

	s.log.Info("clinic profile created",
		"profile_id", profile.ID.String(),
		"clinic_id", clinicID.String(),
		"global_identity_id", identity.ID.String(),
		"kind", string(identity.Kind),
	)
	return profile, nil
}

// FindClinicProfileForGlobalIdentity returns nil, nil when the identity has no
// profile in the clinic.
func (s *Service) FindClinicProfileForGlobalIdentity(ctx context.Context, clinicID, globalIdentityID uuid.UUID) (*model.ClinicProfile, error) {
	profile, err := s.repo.FindProfile(ctx, clinicID, globalIdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find clinic profile: %w", err)
	}
	return profile, nil
}

func (s *Service) GetClinicProfile(ctx context.Context, id uuid.UUID) (*model.ClinicProfile, error) {
	profile, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
		}
		return nil, fmt.Errorf("failed to get clinic profile: %w", err)
	}
	return profile, nil
}

// FindProfileByLegacy returns nil, nil when the legacy record was never linked.
func (s *Service) FindProfileByLegacy(ctx context.Context, kind model.PersonKind, legacyID uuid.UUID) (*model.ClinicProfile, error) {
	profile, err := s.repo.FindProfileByLegacy(ctx, kind, legacyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find profile by legacy link: %w", err)
	}
	return profile, nil
}

// FindProfileByNaturalKey returns nil, nil when no profile in the clinic
// matches.
func (s *Service) FindProfileByNaturalKey(ctx context.Context, clinicID uuid.UUID, key model.NaturalKey) (*model.ClinicProfile, error) {
	if key.Empty() {
		return nil, nil
	}
	profile, err := s.repo.FindProfileByNaturalKey(ctx, clinicID, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find profile by natural key: %w", err)
	}
	return profile, nil
}

// LinkLegacy records which legacy row a profile supersedes. It reports false
// when the profile is already linked to a different row.
func (s *Service) LinkLegacy(ctx context.Context, profile *model.ClinicProfile, legacyID uuid.UUID) (bool, error) {
	if err := s.repo.LinkLegacy(ctx, profile.ID, legacyID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("failed to link legacy record: %w", err)
	}
	profile.LegacyID = &legacyID
	return true, nil
}

// EnsureProfile returns the identity's profile in the clinic, creating it from
// attrs when missing. created reports whether this call created it.
func (s *Service) EnsureProfile(ctx context.Context, clinicID uuid.UUID, identity *model.GlobalIdentity, attrs model.ProfileAttributes) (profile *model.ClinicProfile, created bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		profile, err = s.FindClinicProfileForGlobalIdentity(ctx, clinicID, identity.ID)
		if err != nil || profile != nil {
			return profile, false, err
		}
		profile, err = s.CreateClinicProfile(ctx, clinicID, identity.ID, attrs)
		if err == nil {
			return profile, true, nil
		}
		if !errors.Is(err, ErrDuplicateProfile) {
			return nil, false, err
		}
	}
	return nil, false, err
}

// RegisterPatient finds or creates the patient's global identity and their
// profile in the clinic.
func (s *Service) RegisterPatient(ctx context.Context, clinicID uuid.UUID, details model.PatientDetails) (*model.ClinicProfile, bool, error) {
	if err := s.validate.Struct(details); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidNaturalKey, err)
	}
	key, err := s.NaturalKey(model.KindPatient, nil, details.Email, details.Phone)
	if err != nil {
		return nil, false, err
	}
	identity, err := s.FindOrCreateGlobalIdentity(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return s.EnsureProfile(ctx, clinicID, identity, model.ProfileAttributes{
		FirstName: details.FirstName,
		LastName:  details.LastName,
		Email:     model.StringPtr(key.Email),
		Phone:     model.StringPtr(key.Phone),
		Status:    model.ProfileStatusActive,
	})
}

// AssociateDoctor links an account-holding doctor to a clinic, creating the
// doctor's global identity on first association.
func (s *Service) AssociateDoctor(ctx context.Context, clinicID uuid.UUID, req model.AssociateDoctorRequest) (*model.ClinicProfile, bool, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidNaturalKey, err)
	}
	accountID := req.AccountID
	key, err := s.NaturalKey(model.KindDoctor, &accountID, req.Email, req.Phone)
	if err != nil {
		return nil, false, err
	}
	identity, err := s.FindOrCreateGlobalIdentity(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return s.EnsureProfile(ctx, clinicID, identity, model.ProfileAttributes{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          model.StringPtr(key.Email),
		Phone:          model.StringPtr(key.Phone),
		Specialization: model.StringPtr(req.Specialization),
		LicenseNumber:  model.StringPtr(req.LicenseNumber),
		Status:         model.ProfileStatusActive,
	})
}
