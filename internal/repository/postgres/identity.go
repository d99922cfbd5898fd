package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
)

const identityColumns = `id, kind, account_id, email, phone, created_at, updated_at`

const profileColumns = `id, kind, clinic_id, global_identity_id, legacy_id,
	first_name, last_name, email, phone, password_hash,
	specialization, license_number, status, created_at, updated_at`

type identityRepository struct {
	BaseRepository
}

func NewIdentityRepository(db *sqlx.DB) repository.IdentityRepository {
	return &identityRepository{NewBaseRepository(db)}
}

func (r *identityRepository) GetIdentity(ctx context.Context, id uuid.UUID) (*model.GlobalIdentity, error) {
	return r.getIdentity(ctx, `SELECT `+identityColumns+` FROM global_identities WHERE id = $1`, id)
}

func (r *identityRepository) FindIdentityByAccount(ctx context.Context, kind model.PersonKind, accountID uuid.UUID) (*model.GlobalIdentity, error) {
	return r.getIdentity(ctx, `SELECT `+identityColumns+` FROM global_identities WHERE kind = $1 AND account_id = $2`, kind, accountID)
}

func (r *identityRepository) FindIdentityByEmail(ctx context.Context, kind model.PersonKind, email string) (*model.GlobalIdentity, error) {
	return r.getIdentity(ctx, `SELECT `+identityColumns+` FROM global_identities WHERE kind = $1 AND email = $2`, kind, email)
}

func (r *identityRepository) FindIdentityByPhone(ctx context.Context, kind model.PersonKind, phone string) (*model.GlobalIdentity, error) {
	return r.getIdentity(ctx, `SELECT `+identityColumns+` FROM global_identities WHERE kind = $1 AND phone = $2`, kind, phone)
}

func (r *identityRepository) getIdentity(ctx context.Context, query string, args ...interface{}) (*model.GlobalIdentity, error) {
	var identity model.GlobalIdentity
	if err := r.db.GetContext(ctx, &identity, query, args...); err != nil {
		return nil, wrap("get global identity", err)
	}
	return &identity, nil
}

func (r *identityRepository) CreateIdentity(ctx context.Context, identity *model.GlobalIdentity) error {
	query := `
		INSERT INTO global_identities (id, kind, account_id, email, phone, created_at, updated_at)
		VALUES (:id, :kind, :account_id, :email, :phone, :created_at, :updated_at)
	`
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	identity.CreatedAt = time.Now().UTC()
	identity.UpdatedAt = identity.CreatedAt

	if _, err := r.db.NamedExecContext(ctx, query, identity); err != nil {
		return wrap("create global identity", err)
	}
	return nil
}

func (r *identityRepository) CreateProfile(ctx context.Context, profile *model.ClinicProfile) error {
	query := `
		INSERT INTO clinic_profiles (
			id, kind, clinic_id, global_identity_id, legacy_id,
			first_name, last_name, email, phone, password_hash,
			specialization, license_number, status, created_at, updated_at
		) VALUES (
			:id, :kind, :clinic_id, :global_identity_id, :legacy_id,
			:first_name, :last_name, :email, :phone, :password_hash,
			:specialization, :license_number, :status, :created_at, :updated_at
		)
	`
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if profile.Status == "" {
		profile.Status = model.ProfileStatusActive
	}
	profile.CreatedAt = time.Now().UTC()
	profile.UpdatedAt = profile.CreatedAt

	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return wrap("create clinic profile", err)
	}
	return nil
}

func (r *identityRepository) GetProfile(ctx context.Context, id uuid.UUID) (*model.ClinicProfile, error) {
	return r.getProfile(ctx, `SELECT `+profileColumns+` FROM clinic_profiles WHERE id = $1`, id)
}

func (r *identityRepository) FindProfile(ctx context.Context, clinicID, identityID uuid.UUID) (*model.ClinicProfile, error) {
	return r.getProfile(ctx, `
		SELECT `+profileColumns+` FROM clinic_profiles
		WHERE clinic_id = $1 AND global_identity_id = $2`,
		clinicID, identityID)
}

func (r *identityRepository) FindProfileByLegacy(ctx context.Context, kind model.PersonKind, legacyID uuid.UUID) (*model.ClinicProfile, error) {
	return r.getProfile(ctx, `SELECT `+profileColumns+` FROM clinic_profiles WHERE kind = $1 AND legacy_id = $2`, kind, legacyID)
}

func (r *identityRepository) FindProfileByNaturalKey(ctx context.Context, clinicID uuid.UUID, key model.NaturalKey) (*model.ClinicProfile, error) {
	if key.Empty() {
		return nil, wrap("find clinic profile by natural key", repository.ErrNotFound)
	}
	// Same precedence as identity matching: account, then email, then phone.
	query := `
		SELECT p.id, p.kind, p.clinic_id, p.global_identity_id, p.legacy_id,
			p.first_name, p.last_name, p.email, p.phone, p.password_hash,
			p.specialization, p.license_number, p.status, p.created_at, p.updated_at
		FROM clinic_profiles p
		JOIN global_identities g ON g.id = p.global_identity_id
		WHERE p.kind = $1 AND p.clinic_id = $2
		  AND (g.account_id = $3 OR g.email = $4 OR g.phone = $5)
		ORDER BY
			CASE WHEN g.account_id = $3 THEN 0 WHEN g.email = $4 THEN 1 ELSE 2 END,
			p.created_at
		LIMIT 1
	`
	return r.getProfile(ctx, query, key.Kind, clinicID,
		nullableUUID(key.AccountID), model.StringPtr(key.Email), model.StringPtr(key.Phone))
}

func (r *identityRepository) getProfile(ctx context.Context, query string, args ...interface{}) (*model.ClinicProfile, error) {
	var profile model.ClinicProfile
	if err := r.db.GetContext(ctx, &profile, query, args...); err != nil {
		return nil, wrap("get clinic profile", err)
	}
	return &profile, nil
}

func (r *identityRepository) BindAccount(ctx context.Context, identityID, accountID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE global_identities SET account_id = $1, updated_at = NOW()
		WHERE id = $2 AND account_id IS NULL`,
		accountID, identityID)
	if err != nil {
		return wrap("bind account", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return wrap("bind account", err)
	}
	if rows == 0 {
		return wrap("bind account", repository.ErrConflict)
	}
	return nil
}

func (r *identityRepository) LinkLegacy(ctx context.Context, profileID, legacyID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE clinic_profiles SET legacy_id = $1, updated_at = NOW()
		WHERE id = $2 AND (legacy_id IS NULL OR legacy_id = $1)`,
		legacyID, profileID)
	if err != nil {
		return wrap("link legacy record", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return wrap("link legacy record", err)
	}
	if rows == 0 {
		return wrap("link legacy record", repository.ErrConflict)
	}
	return nil
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
