package model

import "github.com/google/uuid"

// IdentitySource names the representation an Identity was built from.
type IdentitySource string

const (
	SourceLegacy  IdentitySource = "legacy"
	SourceProfile IdentitySource = "profile"
)

// Identity is the normalized descriptor returned for a doctor or patient
// reference, whichever representation it came from.
type Identity struct {
	Kind             PersonKind     `json:"kind"`
	Source           IdentitySource `json:"source"`
	ClinicID         uuid.UUID      `json:"clinic_id"`
	GlobalIdentityID *uuid.UUID     `json:"global_identity_id,omitempty"`
	ProfileID        *uuid.UUID     `json:"profile_id,omitempty"`
	LegacyID         *uuid.UUID     `json:"legacy_id,omitempty"`
	DisplayName      string         `json:"display_name"`
	Email            *string        `json:"email,omitempty"`
	Phone            *string        `json:"phone,omitempty"`
	Status           string         `json:"status"`
}

// Ref returns the reference that points at every generation known for i.
func (i *Identity) Ref() PersonRef {
	switch {
	case i.ProfileID != nil && i.LegacyID != nil:
		return DualRef(*i.LegacyID, *i.ProfileID)
	case i.ProfileID != nil:
		return ProfileRef(*i.ProfileID)
	case i.LegacyID != nil:
		return LegacyRef(*i.LegacyID)
	}
	return PersonRef{}
}

// IdentityFromProfile describes a clinic profile.
func IdentityFromProfile(p *ClinicProfile) *Identity {
	gid, pid := p.GlobalIdentityID, p.ID
	return &Identity{
		Kind:             p.Kind,
		Source:           SourceProfile,
		ClinicID:         p.ClinicID,
		GlobalIdentityID: &gid,
		ProfileID:        &pid,
		LegacyID:         p.LegacyID,
		DisplayName:      p.DisplayName(),
		Email:            p.Email,
		Phone:            p.Phone,
		Status:           p.Status,
	}
}

// IdentityFromLegacy describes a legacy record, optionally linked to the
// profile it was migrated into.
func IdentityFromLegacy(l *LegacyPerson, linked *ClinicProfile) *Identity {
	lid := l.ID
	id := &Identity{
		Kind:        l.Kind,
		Source:      SourceLegacy,
		ClinicID:    l.ClinicID,
		LegacyID:    &lid,
		DisplayName: l.DisplayName(),
		Email:       l.Email,
		Phone:       l.Phone,
		Status:      l.Status,
	}
	if linked != nil {
		gid, pid := linked.GlobalIdentityID, linked.ID
		id.GlobalIdentityID = &gid
		id.ProfileID = &pid
	}
	return id
}
