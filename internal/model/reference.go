package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RefVariant tags which identity generation a PersonRef points at.
type RefVariant uint8

const (
	RefUnset RefVariant = iota
	RefLegacy
	RefProfile
	// RefDual points at both generations. Backfill and dual writes produce it.
	RefDual
)

func (v RefVariant) String() string {
	switch v {
	case RefLegacy:
		return "legacy"
	case RefProfile:
		return "profile"
	case RefDual:
		return "dual"
	default:
		return "unset"
	}
}

// PersonRef is the domain view of an appointment's doctor or patient
// reference. Storage keeps two nullable columns; nothing above the repository
// layer touches them directly.
type PersonRef struct {
	variant   RefVariant
	legacyID  uuid.UUID
	profileID uuid.UUID
}

func LegacyRef(id uuid.UUID) PersonRef {
	return PersonRef{variant: RefLegacy, legacyID: id}
}

func ProfileRef(id uuid.UUID) PersonRef {
	return PersonRef{variant: RefProfile, profileID: id}
}

func DualRef(legacyID, profileID uuid.UUID) PersonRef {
	return PersonRef{variant: RefDual, legacyID: legacyID, profileID: profileID}
}

// RefFromColumns builds a reference from the two storage columns.
func RefFromColumns(legacy, profile uuid.NullUUID) PersonRef {
	switch {
	case legacy.Valid && profile.Valid:
		return DualRef(legacy.UUID, profile.UUID)
	case profile.Valid:
		return ProfileRef(profile.UUID)
	case legacy.Valid:
		return LegacyRef(legacy.UUID)
	default:
		return PersonRef{}
	}
}

func (r PersonRef) Variant() RefVariant { return r.variant }

func (r PersonRef) IsZero() bool { return r.variant == RefUnset }

func (r PersonRef) LegacyID() (uuid.UUID, bool) {
	return r.legacyID, r.variant == RefLegacy || r.variant == RefDual
}

func (r PersonRef) ProfileID() (uuid.UUID, bool) {
	return r.profileID, r.variant == RefProfile || r.variant == RefDual
}

// WithProfile returns r with the profile side filled in.
func (r PersonRef) WithProfile(id uuid.UUID) PersonRef {
	if legacy, ok := r.LegacyID(); ok {
		return DualRef(legacy, id)
	}
	return ProfileRef(id)
}

// Columns returns the storage representation.
func (r PersonRef) Columns() (legacy, profile uuid.NullUUID) {
	if id, ok := r.LegacyID(); ok {
		legacy = uuid.NullUUID{UUID: id, Valid: true}
	}
	if id, ok := r.ProfileID(); ok {
		profile = uuid.NullUUID{UUID: id, Valid: true}
	}
	return legacy, profile
}

func (r PersonRef) String() string {
	switch r.variant {
	case RefLegacy:
		return "legacy:" + r.legacyID.String()
	case RefProfile:
		return "profile:" + r.profileID.String()
	case RefDual:
		return fmt.Sprintf("dual:%s/%s", r.legacyID, r.profileID)
	default:
		return "unset"
	}
}

type personRefJSON struct {
	Variant   string     `json:"variant"`
	LegacyID  *uuid.UUID `json:"legacy_id,omitempty"`
	ProfileID *uuid.UUID `json:"profile_id,omitempty"`
}

func (r PersonRef) MarshalJSON() ([]byte, error) {
	out := personRefJSON{Variant: r.variant.String()}
	if id, ok := r.LegacyID(); ok {
		out.LegacyID = &id
	}
	if id, ok := r.ProfileID(); ok {
		out.ProfileID = &id
	}
	return json.Marshal(out)
}

func (r *PersonRef) UnmarshalJSON(data []byte) error {
	var in personRefJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var legacy, profile uuid.NullUUID
	if in.LegacyID != nil {
		legacy = uuid.NullUUID{UUID: *in.LegacyID, Valid: true}
	}
	if in.ProfileID != nil {
		profile = uuid.NullUUID{UUID: *in.ProfileID, Valid: true}
	}
	*r = RefFromColumns(legacy, profile)
	return nil
}
