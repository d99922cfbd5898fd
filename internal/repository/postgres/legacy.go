package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
)

const legacyColumns = `id, clinic_id, account_id, first_name, last_name, email, phone,
	password_hash, specialization, license_number, status, created_at, updated_at`

type legacyRepository struct {
	BaseRepository
}

func NewLegacyRepository(db *sqlx.DB) repository.LegacyRepository {
	return &legacyRepository{NewBaseRepository(db)}
}

func legacyTable(kind model.PersonKind) (string, error) {
	switch kind {
	case model.KindDoctor:
		return "legacy_doctors", nil
	case model.KindPatient:
		return "legacy_patients", nil
	}
	return "", fmt.Errorf("unknown person kind %q", kind)
}

func (r *legacyRepository) Get(ctx context.Context, kind model.PersonKind, id uuid.UUID) (*model.LegacyPerson, error) {
	table, err := legacyTable(kind)
	if err != nil {
		return nil, err
	}
	var person model.LegacyPerson
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, legacyColumns, table)
	if err := r.db.GetContext(ctx, &person, query, id); err != nil {
		return nil, wrap("get legacy "+string(kind), err)
	}
	person.Kind = kind
	return &person, nil
}

func (r *legacyRepository) Create(ctx context.Context, person *model.LegacyPerson) error {
	table, err := legacyTable(person.Kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, clinic_id, account_id, first_name, last_name, email, phone,
			password_hash, specialization, license_number, status, created_at, updated_at
		) VALUES (
			:id, :clinic_id, :account_id, :first_name, :last_name, :email, :phone,
			:password_hash, :specialization, :license_number, :status, :created_at, :updated_at
		)`, table)

	if person.ID == uuid.Nil {
		person.ID = uuid.New()
	}
	if person.Status == "" {
		person.Status = model.ProfileStatusActive
	}
	person.CreatedAt = time.Now().UTC()
	person.UpdatedAt = person.CreatedAt

	if _, err := r.db.NamedExecContext(ctx, query, person); err != nil {
		return wrap("create legacy "+string(person.Kind), err)
	}
	return nil
}

func (r *legacyRepository) ListAfter(ctx context.Context, kind model.PersonKind, clinicID *uuid.UUID, after uuid.UUID, limit int) ([]*model.LegacyPerson, error) {
	table, err := legacyTable(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id > $1 AND ($2::uuid IS NULL OR clinic_id = $2)
		ORDER BY id
		LIMIT $3`, legacyColumns, table)

	var people []*model.LegacyPerson
	if err := r.db.SelectContext(ctx, &people, query, after, nullableUUID(clinicID), limit); err != nil {
		return nil, wrap("list legacy "+string(kind)+"s", err)
	}
	for _, p := range people {
		p.Kind = kind
	}
	return people, nil
}
