// Package resolution turns doctor and patient ids into identity descriptors.
// Which representation is consulted first, and which one writes must
// populate, is decided once from the feature flags when the Strategy is
// built; callers only see the interfaces.
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

// Resolver looks a person up by an id of either generation and checks it
// belongs to the clinic. Unknown ids fail with ErrPersonNotFound.
type Resolver interface {
	Resolve(ctx context.Context, kind model.PersonKind, clinicID, id uuid.UUID) (*model.Identity, error)
}

type profileFirst struct {
	identities *identity.Service
	legacy     *legacy.Service
}

// NewProfileResolver consults clinic profiles first, then legacy records.
func NewProfileResolver(identities *identity.Service, legacySvc *legacy.Service) Resolver {
	return &profileFirst{identities: identities, legacy: legacySvc}
}

func (r *profileFirst) Resolve(ctx context.Context, kind model.PersonKind, clinicID, id uuid.UUID) (*model.Identity, error) {
	found, err := fromProfile(ctx, r.identities, kind, clinicID, id)
	if err == nil || !errors.Is(err, ErrPersonNotFound) {
		return found, err
	}
	return fromLegacy(ctx, r.legacy, kind, clinicID, id)
}

type legacyFirst struct {
	identities *identity.Service
	legacy     *legacy.Service
}

// NewLegacyResolver consults legacy records first, then clinic profiles.
func NewLegacyResolver(identities *identity.Service, legacySvc *legacy.Service) Resolver {
	return &legacyFirst{identities: identities, legacy: legacySvc}
}

func (r *legacyFirst) Resolve(ctx context.Context, kind model.PersonKind, clinicID, id uuid.UUID) (*model.Identity, error) {
	found, err := fromLegacy(ctx, r.legacy, kind, clinicID, id)
	if err == nil || !errors.Is(err, ErrPersonNotFound) {
		return found, err
	}
	return fromProfile(ctx, r.identities, kind, clinicID, id)
}

func fromProfile(ctx context.Context, identities *identity.Service, kind model.PersonKind, clinicID, id uuid.UUID) (*model.Identity, error) {
	profile, err := identities.GetClinicProfile(ctx, id)
	if errors.Is(err, identity.ErrProfileNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrPersonNotFound, kind, id)
	}
	if err != nil {
		return nil, err
	}
	if profile.Kind != kind || profile.ClinicID != clinicID {
		return nil, fmt.Errorf("%w: %s %s in clinic %s", ErrPersonNotFound, kind, id, clinicID)
	}
	return model.IdentityFromProfile(profile), nil
}

func fromLegacy(ctx context.Context, legacySvc *legacy.Service, kind model.PersonKind, clinicID, id uuid.UUID) (*model.Identity, error) {
	described, err := legacySvc.Describe(ctx, kind, id)
	if errors.Is(err, legacy.ErrLegacyNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrPersonNotFound, kind, id)
	}
	if err != nil {
		return nil, err
	}
	if described.ClinicID != clinicID {
		return nil, fmt.Errorf("%w: %s %s in clinic %s", ErrPersonNotFound, kind, id, clinicID)
	}
	return described, nil
}
