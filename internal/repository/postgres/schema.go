package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
)

//go:embed schema/*.sql
var schemaFiles embed.FS

// ApplySchema runs every embedded schema file in name order. Files are
// written to be re-runnable, so no version table is kept.
func ApplySchema(ctx context.Context, db *sqlx.DB) ([]string, error) {
	names, err := fs.Glob(schemaFiles, "schema/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(names)

	base := NewBaseRepository(db)
	for _, name := range names {
		content, err := schemaFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read schema file %s: %w", name, err)
		}
		err = base.WithTx(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, string(content))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("apply schema file %s: %w", name, storeError(err))
		}
	}
	return names, nil
}
