// Package legacy presents pre-migration person records next to the global
// identity model and converts single records between the two.
package legacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
	"github.com/jwalitptl/clinic-identity/internal/service/identity"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
)

// Outcome of migrating one legacy record.
type Outcome string

const (
	OutcomeMigrated Outcome = "migrated"
	// OutcomeSkipped means a matching profile already existed.
	OutcomeSkipped Outcome = "skipped"
)

type Service struct {
	repo       repository.LegacyRepository
	identities *identity.Service
	log        *logger.Logger
}

func NewService(repo repository.LegacyRepository, identities *identity.Service, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		identities: identities,
		log:        log.WithFields(map[string]interface{}{"component": "legacy"}),
	}
}

func (s *Service) Get(ctx context.Context, kind model.PersonKind, id uuid.UUID) (*model.LegacyPerson, error) {
	person, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s %s", ErrLegacyNotFound, kind, id)
		}
		return nil, fmt.Errorf("failed to get legacy %s: %w", kind, err)
	}
	return person, nil
}

func (s *Service) List(ctx context.Context, kind model.PersonKind, clinicID *uuid.UUID, after uuid.UUID, limit int) ([]*model.LegacyPerson, error) {
	people, err := s.repo.ListAfter(ctx, kind, clinicID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy %ss: %w", kind, err)
	}
	return people, nil
}

func (s *Service) keyFor(person *model.LegacyPerson) model.NaturalKey {
	return s.identities.LenientKey(person.Kind, person.AccountID, person.Email, person.Phone)
}

// ProfileFor returns the clinic profile that supersedes person: the one
// linked to it, else one in the same clinic matching its natural key. It
// returns nil, nil when the record has not been migrated.
func (s *Service) ProfileFor(ctx context.Context, person *model.LegacyPerson) (*model.ClinicProfile, error) {
	profile, err := s.identities.FindProfileByLegacy(ctx, person.Kind, person.ID)
	if err != nil || profile != nil {
		return profile, err
	}
	return s.identities.FindProfileByNaturalKey(ctx, person.ClinicID, s.keyFor(person))
}

// Migrate converts one legacy record into a global identity plus clinic
// profile. Re-running it for a migrated record is a no-op. Credentials and
// status are carried over verbatim.
func (s *Service) Migrate(ctx context.Context, person *model.LegacyPerson) (*model.ClinicProfile, Outcome, error) {
	existing, err := s.existing(ctx, person)
	if err != nil || existing != nil {
		return existing, OutcomeSkipped, err
	}

	global, err := s.identities.FindOrCreateGlobalIdentity(ctx, s.keyFor(person))
	if err != nil {
		return nil, "", err
	}

	profile, err := s.identities.CreateLinkedProfile(ctx, person.ClinicID, global.ID, person.ID, person.ProfileAttributes)
	if errors.Is(err, identity.ErrDuplicateProfile) {
		// A concurrent run or request got there first.
		existing, lookupErr := s.existing(ctx, person)
		if lookupErr != nil {
			return nil, "", lookupErr
		}
		if existing != nil {
			return existing, OutcomeSkipped, nil
		}
	}
	if err != nil {
		return nil, "", err
	}

	s.log.Debug("legacy record migrated",
		"kind", string(person.Kind),
		"legacy_id", person.ID.String(),
		"profile_id", profile.ID.String(),
	)
	return profile, OutcomeMigrated, nil
}

// existing finds an already-migrated profile and records the legacy link on
// it when the match was by natural key.
func (s *Service) existing(ctx context.Context, person *model.LegacyPerson) (*model.ClinicProfile, error) {
	profile, err := s.ProfileFor(ctx, person)
	if err != nil || profile == nil {
		return nil, err
	}
	if profile.LegacyID == nil {
		if _, err := s.identities.LinkLegacy(ctx, profile, person.ID); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// EnsureLegacy returns the legacy record behind a profile, writing a shadow
// record when the profile was created under the new model.
func (s *Service) EnsureLegacy(ctx context.Context, profile *model.ClinicProfile) (*model.LegacyPerson, error) {
	if profile.LegacyID != nil {
		return s.Get(ctx, profile.Kind, *profile.LegacyID)
	}

	global, err := s.identities.GetGlobalIdentity(ctx, profile.GlobalIdentityID)
	if err != nil {
		return nil, err
	}
	shadow := &model.LegacyPerson{
		Kind:              profile.Kind,
		ClinicID:          profile.ClinicID,
		AccountID:         global.AccountID,
		ProfileAttributes: profile.ProfileAttributes,
	}
	if err := s.repo.Create(ctx, shadow); err != nil {
		return nil, fmt.Errorf("failed to create legacy %s: %w", profile.Kind, err)
	}

	linked, err := s.identities.LinkLegacy(ctx, profile, shadow.ID)
	if err != nil {
		return nil, err
	}
	if !linked {
		// Another writer linked its own shadow first; use that one.
		current, err := s.identities.GetClinicProfile(ctx, profile.ID)
		if err != nil {
			return nil, err
		}
		if current.LegacyID == nil {
			return nil, fmt.Errorf("profile %s lost its legacy link", profile.ID)
		}
		*profile = *current
		return s.Get(ctx, profile.Kind, *current.LegacyID)
	}

	s.log.Debug("legacy shadow record written", "kind", string(profile.Kind), "profile_id", profile.ID.String(), "legacy_id", shadow.ID.String())
	return shadow, nil
}

// Describe returns the identity descriptor for a legacy record, including
// the profile it was migrated into when there is one.
func (s *Service) Describe(ctx context.Context, kind model.PersonKind, id uuid.UUID) (*model.Identity, error) {
	person, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	profile, err := s.ProfileFor(ctx, person)
	if err != nil {
		return nil, err
	}
	return model.IdentityFromLegacy(person, profile), nil
}
