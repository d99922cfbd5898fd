package memory

import (
	"context"
	"strings"

	"github.com/jwalitptl/clinic-identity/internal/model"
)

type auditRepo struct{ s *Store }

func (r *auditRepo) AuditPersons(ctx context.Context, kind model.PersonKind) (*model.EntityAudit, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	audit := &model.EntityAudit{Entity: string(kind)}
	for _, l := range r.s.state.legacy[kind] {
		audit.Total++
		if r.s.migrated(kind, l) {
			audit.Migrated++
		}
	}
	for _, p := range r.s.state.profiles {
		if p.Kind != kind {
			continue
		}
		audit.WithNewReference++
		if p.LegacyID != nil {
			audit.WithBothReferences++
		}
	}
	return audit, nil
}

// migrated must be called with the lock held.
func (s *Store) migrated(kind model.PersonKind, l model.LegacyPerson) bool {
	for _, p := range s.state.profiles {
		if p.Kind != kind {
			continue
		}
		if p.LegacyID != nil && *p.LegacyID == l.ID {
			return true
		}
		if p.ClinicID != l.ClinicID {
			continue
		}
		g := s.state.identities[p.GlobalIdentityID]
		if l.AccountID != nil && g.AccountID != nil && *l.AccountID == *g.AccountID {
			return true
		}
		if l.Email != nil && g.Email != nil && strings.ToLower(strings.TrimSpace(*l.Email)) == *g.Email {
			return true
		}
		if eqPtr(l.Phone, p.Phone) {
			return true
		}
	}
	return false
}

func (r *auditRepo) AuditAppointmentRefs(ctx context.Context, kind model.PersonKind) (*model.EntityAudit, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	entity := model.EntityAppointmentDoctor
	if kind == model.KindPatient {
		entity = model.EntityAppointmentPatient
	}
	audit := &model.EntityAudit{Entity: entity}
	for _, a := range r.s.state.appointments {
		ref := refOf(&a, kind)
		_, hasLegacy := ref.LegacyID()
		_, hasProfile := ref.ProfileID()
		audit.Total++
		if hasProfile || !hasLegacy {
			audit.Migrated++
		}
		if hasProfile {
			audit.WithNewReference++
		}
		if hasProfile && hasLegacy {
			audit.WithBothReferences++
		}
	}
	return audit, nil
}
