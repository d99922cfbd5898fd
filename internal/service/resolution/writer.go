package resolution

import (
	"context"
	"fmt"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/service/identity"
	"github.com/jwalitptl/clinic-identity/internal/service/legacy"
)

// ReferenceWriter produces the reference an appointment stores for a
// resolved person. Both implementations include every generation the person
// already has; they differ in which generation they create when missing.
type ReferenceWriter interface {
	Reference(ctx context.Context, person *model.Identity) (model.PersonRef, error)
	// Model names the representation this writer guarantees.
	Model() string
}

type profileWriter struct {
	identities *identity.Service
	legacy     *legacy.Service
}

func (w *profileWriter) Model() string { return "new" }

// Reference migrates a legacy-only person on the spot so the profile
// reference can be written.
func (w *profileWriter) Reference(ctx context.Context, person *model.Identity) (model.PersonRef, error) {
	if person.ProfileID == nil {
		if person.LegacyID == nil {
			return model.PersonRef{}, ErrUnsetReference
		}
		record, err := w.legacy.Get(ctx, person.Kind, *person.LegacyID)
		if err != nil {
			return model.PersonRef{}, err
		}
		profile, _, err := w.legacy.Migrate(ctx, record)
		if err != nil {
			return model.PersonRef{}, fmt.Errorf("failed to migrate %s %s: %w", person.Kind, record.ID, err)
		}
		gid, pid := profile.GlobalIdentityID, profile.ID
		person.GlobalIdentityID, person.ProfileID = &gid, &pid
	}
	return person.Ref(), nil
}

type legacyWriter struct {
	identities *identity.Service
	legacy     *legacy.Service
}

func (w *legacyWriter) Model() string { return "legacy" }

// Reference writes a shadow legacy record for a profile-only person so old
// readers can still follow the legacy reference.
func (w *legacyWriter) Reference(ctx context.Context, person *model.Identity) (model.PersonRef, error) {
	if person.LegacyID == nil {
		if person.ProfileID == nil {
			return model.PersonRef{}, ErrUnsetReference
		}
		profile, err := w.identities.GetClinicProfile(ctx, *person.ProfileID)
		if err != nil {
			return model.PersonRef{}, err
		}
		record, err := w.legacy.EnsureLegacy(ctx, profile)
		if err != nil {
			return model.PersonRef{}, fmt.Errorf("failed to write legacy %s for profile %s: %w", person.Kind, profile.ID, err)
		}
		lid := record.ID
		person.LegacyID = &lid
	}
	return person.Ref(), nil
}
