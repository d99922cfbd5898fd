package resolution

import (
	"github.com/jwalitptl/clinic-identity/internal/featureflag"
	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/service/identity"
	"github.com/jwalitptl/clinic-identity/internal/service/legacy"
)

// ReadPath picks the reference used to look up a person's appointments.
type ReadPath interface {
	Filter(person *model.Identity) model.PersonRef
	Model() string
}

type profileReads struct{}

func (profileReads) Model() string { return "new" }

func (profileReads) Filter(person *model.Identity) model.PersonRef {
	if person.ProfileID != nil {
		return model.ProfileRef(*person.ProfileID)
	}
	return person.Ref()
}

type legacyReads struct{}

func (legacyReads) Model() string { return "legacy" }

func (legacyReads) Filter(person *model.Identity) model.PersonRef {
	if person.LegacyID != nil {
		return model.LegacyRef(*person.LegacyID)
	}
	return person.Ref()
}

// Strategy is the set of collaborators chosen by the feature flags.
type Strategy struct {
	Doctors    Resolver
	Patients   Resolver
	Writer     ReferenceWriter
	Reads      ReadPath
	References *ReferenceResolver
}

// Select builds the strategy for the given flags. It is the only place the
// flags are consulted.
func Select(flags *featureflag.Router, identities *identity.Service, legacySvc *legacy.Service) *Strategy {
	pick := func(useNew bool) Resolver {
		if useNew {
			return NewProfileResolver(identities, legacySvc)
		}
		return NewLegacyResolver(identities, legacySvc)
	}

	s := &Strategy{
		Doctors:    pick(flags.DoctorResolutionUsesNewModel()),
		Patients:   pick(flags.PatientResolutionUsesNewModel()),
		References: NewReferenceResolver(identities, legacySvc, flags.GlobalClinicSeparationEnabled()),
	}

	if flags.AppointmentWriteUsesNewModel() {
		s.Writer = &profileWriter{identities: identities, legacy: legacySvc}
	} else {
		s.Writer = &legacyWriter{identities: identities, legacy: legacySvc}
	}

	if flags.AppointmentReadUsesNewModel() {
		s.Reads = profileReads{}
	} else {
		s.Reads = legacyReads{}
	}
	return s
}

// For returns the resolver for kind.
func (s *Strategy) For(kind model.PersonKind) Resolver {
	if kind == model.KindDoctor {
		return s.Doctors
	}
	return s.Patients
}
