package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-identity/internal/model"
	"github.com/jwalitptl/clinic-identity/internal/service/migration"
)

type backfillFlags struct {
	batchSize int
	clinic    string
}

func (f *backfillFlags) options(defaultBatch int) (model.BackfillOptions, error) {
	opts := model.BackfillOptions{BatchSize: f.batchSize}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatch
	}
	if f.clinic != "" {
		id, err := uuid.Parse(f.clinic)
		if err != nil {
			return opts, fmt.Errorf("invalid --clinic: %w", err)
		}
		opts.ClinicID = &id
	}
	return opts, nil
}

func newBackfillCommand() *cobra.Command {
	flags := &backfillFlags{}
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Migrate legacy records into the global identity model",
	}
	cmd.PersistentFlags().IntVar(&flags.batchSize, "batch-size", 0, "records per batch (default from config)")
	cmd.PersistentFlags().StringVar(&flags.clinic, "clinic", "", "restrict the run to one clinic id")

	people := func(use, short string, run func(*migration.Service, context.Context, model.BackfillOptions) (*model.BatchSummary, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := setup(cmd.Context())
				if err != nil {
					return err
				}
				defer e.db.Close()

				opts, err := flags.options(e.cfg.Migration.BatchSize)
				if err != nil {
					return err
				}
				summary, err := run(e.migration(), cmd.Context(), opts)
				if err != nil {
					return reportAbort(cmd, summary, err)
				}
				return printJSON(cmd, summary)
			},
		}
	}

	cmd.AddCommand(
		people("patients", "Backfill legacy patients", (*migration.Service).BackfillPatients),
		people("doctors", "Backfill legacy doctors", (*migration.Service).BackfillDoctors),
		&cobra.Command{
			Use:   "appointments",
			Short: "Fill missing profile references on appointments",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := setup(cmd.Context())
				if err != nil {
					return err
				}
				defer e.db.Close()

				opts, err := flags.options(e.cfg.Migration.BatchSize)
				if err != nil {
					return err
				}
				summaries, err := e.migration().BackfillAppointmentReferences(cmd.Context(), opts)
				if err != nil {
					return reportAbort(cmd, summaries, err)
				}
				return printJSON(cmd, summaries)
			},
		},
	)
	return cmd
}
