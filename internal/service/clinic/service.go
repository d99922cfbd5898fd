package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
)

// PolicyService answers whether a clinic enforces non-overlapping
// appointments. Policies change rarely, so lookups are cached for ttl.
type PolicyService struct {
	repo  repository.ClinicRepository
	cache *cache.Cache
}

func NewPolicyService(repo repository.ClinicRepository, ttl time.Duration) *PolicyService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PolicyService{
		repo:  repo,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Policy returns the clinic's policy. Clinics without a row get the default,
// which enforces non-overlap.
func (s *PolicyService) Policy(ctx context.Context, clinicID uuid.UUID) (model.ClinicPolicy, error) {
	key := clinicID.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(model.ClinicPolicy), nil
	}

	policy, err := s.repo.GetPolicy(ctx, clinicID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		policy = &model.ClinicPolicy{ClinicID: clinicID, EnforceNonOverlap: true}
	case err != nil:
		return model.ClinicPolicy{}, fmt.Errorf("failed to get clinic policy: %w", err)
	}

	s.cache.SetDefault(key, *policy)
	return *policy, nil
}

// Invalidate drops a cached policy.
func (s *PolicyService) Invalidate(clinicID uuid.UUID) {
	s.cache.Delete(clinicID.String())
}
