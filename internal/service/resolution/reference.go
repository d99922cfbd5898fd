package resolution

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/service/identity"
	"github.com/jwalitptl/clinic-identity/internal/service/legacy"
)

// ReferenceResolver turns a stored appointment reference into one identity.
// With separation enabled a profile reference always wins; otherwise the
// legacy reference does, and the profile is only used when no legacy
// reference exists.
type ReferenceResolver struct {
	identities    *identity.Service
	legacy        *legacy.Service
	preferProfile bool
}

func NewReferenceResolver(identities *identity.Service, legacySvc *legacy.Service, preferProfile bool) *ReferenceResolver {
	return &ReferenceResolver{identities: identities, legacy: legacySvc, preferProfile: preferProfile}
}

func (r *ReferenceResolver) Resolve(ctx context.Context, kind model.PersonKind, ref model.PersonRef) (*model.Identity, error) {
	legacyID, hasLegacy := ref.LegacyID()
	profileID, hasProfile := ref.ProfileID()

	switch {
	case hasLegacy && hasProfile:
		fromProfile, profileErr := r.viaProfile(ctx, profileID)
		fromLegacy, legacyErr := r.viaLegacy(ctx, kind, legacyID)
		if profileErr != nil && !errors.Is(profileErr, ErrPersonNotFound) {
			return nil, profileErr
		}
		if legacyErr != nil && !errors.Is(legacyErr, ErrPersonNotFound) {
			return nil, legacyErr
		}
		if profileErr != nil && legacyErr != nil {
			return nil, profileErr
		}
		if profileErr == nil && legacyErr == nil {
			if fromProfile.ClinicID != fromLegacy.ClinicID {
				return nil, fmt.Errorf("%w: %s profile %s in clinic %s, legacy %s in clinic %s",
					ErrResolutionAmbiguous, kind, profileID, fromProfile.ClinicID, legacyID, fromLegacy.ClinicID)
			}
			if r.preferProfile {
				return fromProfile, nil
			}
			return fromLegacy, nil
		}
		// One side is gone; the survivor is the only candidate.
		if profileErr == nil {
			return fromProfile, nil
		}
		return fromLegacy, nil
	case hasProfile:
		return r.viaProfile(ctx, profileID)
	case hasLegacy:
		return r.viaLegacy(ctx, kind, legacyID)
	}
	return nil, ErrUnsetReference
}

func (r *ReferenceResolver) viaProfile(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	profile, err := r.identities.GetClinicProfile(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: profile %s", ErrPersonNotFound, id)
		}
		return nil, err
	}
	return model.IdentityFromProfile(profile), nil
}

func (r *ReferenceResolver) viaLegacy(ctx context.Context, kind model.PersonKind, id uuid.UUID) (*model.Identity, error) {
	described, err := r.legacy.Describe(ctx, kind, id)
	if err != nil {
		if errors.Is(err, legacy.ErrLegacyNotFound) {
			return nil, fmt.Errorf("%w: legacy %s %s", ErrPersonNotFound, kind, id)
		}
		return nil, err
	}
	return described, nil
}
