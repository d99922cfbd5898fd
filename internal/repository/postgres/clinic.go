package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
)

type clinicRepository struct {
	BaseRepository
}

func NewClinicRepository(db *sqlx.DB) repository.ClinicRepository {
	return &clinicRepository{NewBaseRepository(db)}
}

func (r *clinicRepository) GetPolicy(ctx context.Context, clinicID uuid.UUID) (*model.ClinicPolicy, error) {
	var policy model.ClinicPolicy
	err := r.db.GetContext(ctx, &policy, `SELECT id, enforce_non_overlap FROM clinics WHERE id = $1`, clinicID)
	if err != nil {
		return nil, wrap("get clinic policy", err)
	}
	return &policy, nil
}
