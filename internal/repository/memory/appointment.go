package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
)

type appointmentRepo struct{ s *Store }

// sameDoctor reports whether two references share any id generation.
func sameDoctor(a, b model.PersonRef) bool {
	if x, ok := a.LegacyID(); ok {
		if y, ok := b.LegacyID(); ok && x == y {
			return true
		}
	}
	if x, ok := a.ProfileID(); ok {
		if y, ok := b.ProfileID(); ok && x == y {
			return true
		}
	}
	return false
}

func (r *appointmentRepo) CreateChecked(ctx context.Context, appointment *model.Appointment, enforceOverlap bool) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if enforceOverlap {
		start, end := appointment.ScheduledAt, appointment.EndsAt()
		for _, existing := range r.s.state.appointments {
			if existing.Status == model.AppointmentStatusCancelled || !sameDoctor(existing.Doctor, appointment.Doctor) {
				continue
			}
			if existing.Overlaps(start, end) {
				return fmt.Errorf("doctor %s: %w", appointment.Doctor, repository.ErrOverlap)
			}
		}
	}

	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	appointment.CreatedAt = r.s.now()
	appointment.UpdatedAt = appointment.CreatedAt
	r.s.state.appointments[appointment.ID] = *appointment
	return nil
}

func (r *appointmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	appointment, ok := r.s.state.appointments[id]
	if !ok {
		return nil, notFound("appointment")
	}
	return &appointment, nil
}

func (r *appointmentRepo) Mutate(ctx context.Context, id uuid.UUID, fn func(*model.Appointment) error) (*model.Appointment, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	appointment, ok := r.s.state.appointments[id]
	if !ok {
		return nil, notFound("appointment")
	}
	if err := fn(&appointment); err != nil {
		return nil, err
	}
	appointment.UpdatedAt = r.s.now()
	r.s.state.appointments[id] = appointment
	return &appointment, nil
}

func (r *appointmentRepo) ListByDoctor(ctx context.Context, clinicID uuid.UUID, doctor model.PersonRef) ([]*model.Appointment, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*model.Appointment
	for _, a := range r.s.state.appointments {
		if a.ClinicID == clinicID && sameDoctor(a.Doctor, doctor) {
			appointment := a
			out = append(out, &appointment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func refOf(a *model.Appointment, kind model.PersonKind) model.PersonRef {
	if kind == model.KindDoctor {
		return a.Doctor
	}
	return a.Patient
}

func (r *appointmentRepo) ListMissingProfileRefs(ctx context.Context, kind model.PersonKind, after uuid.UUID, limit int) ([]*model.Appointment, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*model.Appointment
	for id, a := range r.s.state.appointments {
		if !uuidLess(after, id) {
			continue
		}
		ref := refOf(&a, kind)
		if ref.Variant() == model.RefLegacy {
			appointment := a
			out = append(out, &appointment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return uuidLess(out[i].ID, out[j].ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *appointmentRepo) SetProfileRef(ctx context.Context, id uuid.UUID, kind model.PersonKind, profileID uuid.UUID) (bool, error) {
	if err := r.s.lock(); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()
	a, ok := r.s.state.appointments[id]
	if !ok {
		return false, notFound("appointment")
	}
	ref := refOf(&a, kind)
	if _, has := ref.ProfileID(); has {
		return false, nil
	}
	if kind == model.KindDoctor {
		a.Doctor = ref.WithProfile(profileID)
	} else {
		a.Patient = ref.WithProfile(profileID)
	}
	a.UpdatedAt = r.s.now()
	r.s.state.appointments[id] = a
	return true, nil
}
