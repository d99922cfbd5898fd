// Package memory is an in-process implementation of the repository
// interfaces. It enforces the same uniqueness rules as the postgres schema
// and serializes every operation behind one mutex, which stands in for the
// transactional guarantees of the real store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
)

type state struct {
	identities   map[uuid.UUID]model.GlobalIdentity
	profiles     map[uuid.UUID]model.ClinicProfile
	legacy       map[model.PersonKind]map[uuid.UUID]model.LegacyPerson
	appointments map[uuid.UUID]model.Appointment
	policies     map[uuid.UUID]model.ClinicPolicy
}

// Store holds all state. Use the accessor methods to get repository views.
type Store struct {
	mu    sync.Mutex
	state state

	failAfter int
	failErr   error
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		state: state{
			identities: make(map[uuid.UUID]model.GlobalIdentity),
			profiles:   make(map[uuid.UUID]model.ClinicProfile),
			legacy: map[model.PersonKind]map[uuid.UUID]model.LegacyPerson{
				model.KindDoctor:  make(map[uuid.UUID]model.LegacyPerson),
				model.KindPatient: make(map[uuid.UUID]model.LegacyPerson),
			},
			appointments: make(map[uuid.UUID]model.Appointment),
			policies:     make(map[uuid.UUID]model.ClinicPolicy),
		},
		failAfter: -1,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Identities() repository.IdentityRepository     { return &identityRepo{s} }
func (s *Store) Legacy() repository.LegacyRepository           { return &legacyRepo{s} }
func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepo{s} }
func (s *Store) Clinics() repository.ClinicRepository           { return &clinicRepo{s} }
func (s *Store) Audit() repository.AuditRepository              { return &auditRepo{s} }

// SetPolicy stores a clinic's conflict policy.
func (s *Store) SetPolicy(policy model.ClinicPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.policies[policy.ClinicID] = policy
}

// FailAfter makes every operation after the next n return err wrapped in
// repository.ErrStoreUnavailable. A negative n disables the failure.
func (s *Store) FailAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
	s.failErr = err
}

// Counts reports the number of identities and profiles held.
func (s *Store) Counts() (identities, profiles int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.identities), len(s.state.profiles)
}

// lock acquires the store and applies any injected failure.
func (s *Store) lock() error {
	s.mu.Lock()
	if s.failAfter < 0 {
		return nil
	}
	if s.failAfter == 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, s.failErr)
	}
	s.failAfter--
	return nil
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
}

func conflict(constraint string) error {
	return fmt.Errorf("%w: %s", repository.ErrConflict, constraint)
}

func eqPtr(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

type identityRepo struct{ s *Store }

func (r *identityRepo) GetIdentity(ctx context.Context, id uuid.UUID) (*model.GlobalIdentity, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	identity, ok := r.s.state.identities[id]
	if !ok {
		return nil, notFound("global identity")
	}
	return &identity, nil
}

func (r *identityRepo) findIdentity(match func(model.GlobalIdentity) bool) (*model.GlobalIdentity, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	for _, identity := range r.s.state.identities {
		if match(identity) {
			found := identity
			return &found, nil
		}
	}
	return nil, notFound("global identity")
}

func (r *identityRepo) FindIdentityByAccount(ctx context.Context, kind model.PersonKind, accountID uuid.UUID) (*model.GlobalIdentity, error) {
	return r.findIdentity(func(g model.GlobalIdentity) bool {
		return g.Kind == kind && g.AccountID != nil && *g.AccountID == accountID
	})
}

func (r *identityRepo) FindIdentityByEmail(ctx context.Context, kind model.PersonKind, email string) (*model.GlobalIdentity, error) {
	return r.findIdentity(func(g model.GlobalIdentity) bool {
		return g.Kind == kind && g.Email != nil && *g.Email == email
	})
}

func (r *identityRepo) FindIdentityByPhone(ctx context.Context, kind model.PersonKind, phone string) (*model.GlobalIdentity, error) {
	return r.findIdentity(func(g model.GlobalIdentity) bool {
		return g.Kind == kind && g.Phone != nil && *g.Phone == phone
	})
}

func (r *identityRepo) CreateIdentity(ctx context.Context, identity *model.GlobalIdentity) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	for _, existing := range r.s.state.identities {
		if existing.Kind != identity.Kind {
			continue
		}
		if identity.AccountID != nil && existing.AccountID != nil && *identity.AccountID == *existing.AccountID {
			return conflict("global_identities_account_uq")
		}
		if eqPtr(identity.Email, existing.Email) {
			return conflict("global_identities_email_uq")
		}
		if eqPtr(identity.Phone, existing.Phone) {
			return conflict("global_identities_phone_uq")
		}
	}

	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	identity.CreatedAt = r.s.now()
	identity.UpdatedAt = identity.CreatedAt
	r.s.state.identities[identity.ID] = *identity
	return nil
}

func (r *identityRepo) BindAccount(ctx context.Context, identityID, accountID uuid.UUID) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	identity, ok := r.s.state.identities[identityID]
	if !ok || identity.AccountID != nil {
		return conflict("bind account")
	}
	for _, existing := range r.s.state.identities {
		if existing.Kind == identity.Kind && existing.AccountID != nil && *existing.AccountID == accountID {
			return conflict("global_identities_account_uq")
		}
	}
	identity.AccountID = &accountID
	identity.UpdatedAt = r.s.now()
	r.s.state.identities[identityID] = identity
	return nil
}

func (r *identityRepo) CreateProfile(ctx context.Context, profile *model.ClinicProfile) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.state.identities[profile.GlobalIdentityID]; !ok {
		return fmt.Errorf("global identity %s: foreign key violation", profile.GlobalIdentityID)
	}
	for _, existing := range r.s.state.profiles {
		if existing.Kind != profile.Kind {
			continue
		}
		if existing.ClinicID == profile.ClinicID && existing.GlobalIdentityID == profile.GlobalIdentityID {
			return conflict("clinic_profiles_identity_uq")
		}
		if profile.LegacyID != nil && existing.LegacyID != nil && *profile.LegacyID == *existing.LegacyID {
			return conflict("clinic_profiles_legacy_uq")
		}
		if profile.Kind == model.KindPatient && profile.Email != nil && existing.Email != nil &&
			strings.EqualFold(*profile.Email, *existing.Email) {
			return conflict("clinic_profiles_patient_email_uq")
		}
	}

	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if profile.Status == "" {
		profile.Status = model.ProfileStatusActive
	}
	profile.CreatedAt = r.s.now()
	profile.UpdatedAt = profile.CreatedAt
	r.s.state.profiles[profile.ID] = *profile
	return nil
}

func (r *identityRepo) GetProfile(ctx context.Context, id uuid.UUID) (*model.ClinicProfile, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	profile, ok := r.s.state.profiles[id]
	if !ok {
		return nil, notFound("clinic profile")
	}
	return &profile, nil
}

func (r *identityRepo) findProfile(match func(model.ClinicProfile) bool) (*model.ClinicProfile, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	for _, profile := range r.s.state.profiles {
		if match(profile) {
			found := profile
			return &found, nil
		}
	}
	return nil, notFound("clinic profile")
}

func (r *identityRepo) FindProfile(ctx context.Context, clinicID, identityID uuid.UUID) (*model.ClinicProfile, error) {
	return r.findProfile(func(p model.ClinicProfile) bool {
		return p.ClinicID == clinicID && p.GlobalIdentityID == identityID
	})
}

func (r *identityRepo) FindProfileByLegacy(ctx context.Context, kind model.PersonKind, legacyID uuid.UUID) (*model.ClinicProfile, error) {
	return r.findProfile(func(p model.ClinicProfile) bool {
		return p.Kind == kind && p.LegacyID != nil && *p.LegacyID == legacyID
	})
}

func (r *identityRepo) FindProfileByNaturalKey(ctx context.Context, clinicID uuid.UUID, key model.NaturalKey) (*model.ClinicProfile, error) {
	if key.Empty() {
		return nil, notFound("clinic profile")
	}
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.s.profileByNaturalKey(clinicID, key)
}

// profileByNaturalKey must be called with the lock held.
func (s *Store) profileByNaturalKey(clinicID uuid.UUID, key model.NaturalKey) (*model.ClinicProfile, error) {
	var best *model.ClinicProfile
	bestRank := 3
	for _, p := range s.state.profiles {
		if p.Kind != key.Kind || p.ClinicID != clinicID {
			continue
		}
		g := s.state.identities[p.GlobalIdentityID]
		rank := 3
		switch {
		case key.AccountID != nil && g.AccountID != nil && *key.AccountID == *g.AccountID:
			rank = 0
		case key.Email != "" && g.Email != nil && *g.Email == key.Email:
			rank = 1
		case key.Phone != "" && g.Phone != nil && *g.Phone == key.Phone:
			rank = 2
		}
		if rank < bestRank || (rank == bestRank && best != nil && p.CreatedAt.Before(best.CreatedAt)) {
			found := p
			best, bestRank = &found, rank
		}
	}
	if best == nil {
		return nil, notFound("clinic profile")
	}
	return best, nil
}

func (r *identityRepo) LinkLegacy(ctx context.Context, profileID, legacyID uuid.UUID) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	profile, ok := r.s.state.profiles[profileID]
	if !ok {
		return notFound("clinic profile")
	}
	if profile.LegacyID != nil && *profile.LegacyID != legacyID {
		return conflict("legacy link already set")
	}
	for id, other := range r.s.state.profiles {
		if id != profileID && other.Kind == profile.Kind && other.LegacyID != nil && *other.LegacyID == legacyID {
			return conflict("clinic_profiles_legacy_uq")
		}
	}
	profile.LegacyID = &legacyID
	profile.UpdatedAt = r.s.now()
	r.s.state.profiles[profileID] = profile
	return nil
}

type legacyRepo struct{ s *Store }

func (r *legacyRepo) Get(ctx context.Context, kind model.PersonKind, id uuid.UUID) (*model.LegacyPerson, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	person, ok := r.s.state.legacy[kind][id]
	if !ok {
		return nil, notFound("legacy " + string(kind))
	}
	return &person, nil
}

func (r *legacyRepo) Create(ctx context.Context, person *model.LegacyPerson) error {
	if !person.Kind.Valid() {
		return fmt.Errorf("unknown person kind %q", person.Kind)
	}
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if person.ID == uuid.Nil {
		person.ID = uuid.New()
	}
	if _, ok := r.s.state.legacy[person.Kind][person.ID]; ok {
		return conflict("legacy primary key")
	}
	if person.Status == "" {
		person.Status = model.ProfileStatusActive
	}
	person.CreatedAt = r.s.now()
	person.UpdatedAt = person.CreatedAt
	r.s.state.legacy[person.Kind][person.ID] = *person
	return nil
}

func (r *legacyRepo) ListAfter(ctx context.Context, kind model.PersonKind, clinicID *uuid.UUID, after uuid.UUID, limit int) ([]*model.LegacyPerson, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var people []*model.LegacyPerson
	for id, person := range r.s.state.legacy[kind] {
		if uuidLess(after, id) && (clinicID == nil || person.ClinicID == *clinicID) {
			p := person
			people = append(people, &p)
		}
	}
	sort.Slice(people, func(i, j int) bool { return uuidLess(people[i].ID, people[j].ID) })
	if len(people) > limit {
		people = people[:limit]
	}
	return people, nil
}

// uuidLess orders ids bytewise, which matches postgres uuid ordering.
func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

type clinicRepo struct{ s *Store }

func (r *clinicRepo) GetPolicy(ctx context.Context, clinicID uuid.UUID) (*model.ClinicPolicy, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	policy, ok := r.s.state.policies[clinicID]
	if !ok {
		return nil, notFound("clinic")
	}
	return &policy, nil
}
