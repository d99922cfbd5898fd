package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{NewBaseRepository(db)}
}

// AuditPersons counts legacy records of a kind and how many of them have a
// clinic profile, either linked directly or matched by natural key.
func (r *auditRepository) AuditPersons(ctx context.Context, kind model.PersonKind) (*model.EntityAudit, error) {
	table, err := legacyTable(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT
			$1::text AS entity,
			(SELECT COUNT(*) FROM %[1]s) AS total,
			(SELECT COUNT(*) FROM %[1]s l WHERE EXISTS (
				SELECT 1 FROM clinic_profiles p
				JOIN global_identities g ON g.id = p.global_identity_id
				WHERE p.kind = $2 AND (
					p.legacy_id = l.id
					OR (p.clinic_id = l.clinic_id AND (
						g.account_id = l.account_id
						OR g.email = lower(trim(l.email))
						OR (l.phone IS NOT NULL AND p.phone = l.phone)))
				)
			)) AS migrated,
			(SELECT COUNT(*) FROM clinic_profiles WHERE kind = $2) AS with_new_reference,
			(SELECT COUNT(*) FROM clinic_profiles WHERE kind = $2 AND legacy_id IS NOT NULL) AS with_both_references
	`, table)

	var audit model.EntityAudit
	if err := r.db.GetContext(ctx, &audit, query, string(kind), kind); err != nil {
		return nil, wrap("audit "+string(kind)+" records", err)
	}
	return &audit, nil
}

// AuditAppointmentRefs counts appointments by which reference columns are
// populated for the given role. Rows with no legacy reference count as
// migrated since there is nothing left to backfill.
func (r *auditRepository) AuditAppointmentRefs(ctx context.Context, kind model.PersonKind) (*model.EntityAudit, error) {
	legacyCol, profileCol, err := refColumns(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT
			$1::text AS entity,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE %[2]s IS NOT NULL OR %[1]s IS NULL) AS migrated,
			COUNT(*) FILTER (WHERE %[2]s IS NOT NULL) AS with_new_reference,
			COUNT(*) FILTER (WHERE %[2]s IS NOT NULL AND %[1]s IS NOT NULL) AS with_both_references
		FROM appointments
	`, legacyCol, profileCol)

	entity := model.EntityAppointmentDoctor
	if kind == model.KindPatient {
		entity = model.EntityAppointmentPatient
	}
	var audit model.EntityAudit
	if err := r.db.GetContext(ctx, &audit, query, entity); err != nil {
		return nil, wrap("audit appointment references", err)
	}
	return &audit, nil
}
