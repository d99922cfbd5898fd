package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-identity/internal/bootstrap"
	"github.com/jwalitptl/clinic-identity/internal/config"
	"github.com/jwalitptl/clinic-identity/internal/repository/postgres"
	"github.com/jwalitptl/clinic-identity/internal/service/migration"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
	"github.com/jwalitptl/clinic-identity/pkg/metrics"
)

var configDir string

// env is what every subcommand needs once config and database are up.
type env struct {
	cfg *config.Config
	db  *sqlx.DB
	log *logger.Logger
}

func main() {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Schema, backfill and verification for the global identity migration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "", "directory holding config.yaml")

	root.AddCommand(newSchemaCommand(), newBackfillCommand(), newVerifyCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*env, error) {
	var paths []string
	if configDir != "" {
		paths = append(paths, configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	log := bootstrap.Logger(cfg.Logging, "migrate")

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &env{cfg: cfg, db: db, log: log}, nil
}

func (e *env) migration() *migration.Service {
	return bootstrap.NewCore(e.db, e.cfg, e.log).Migration(e.db, metrics.New("clinic", nil), e.log)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Apply the embedded schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.db.Close()

			applied, err := postgres.ApplySchema(cmd.Context(), e.db)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"applied": applied})
		},
	}
}

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Count migrated records per entity without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.db.Close()

			report, err := e.migration().Verify(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

// reportAbort prints what was committed before an abort and keeps the error
// so the process exits non-zero.
func reportAbort(cmd *cobra.Command, summaries interface{}, err error) error {
	var abort *migration.AbortError
	if errors.As(err, &abort) {
		if printErr := printJSON(cmd, summaries); printErr != nil {
			return errors.Join(err, printErr)
		}
	}
	return err
}
