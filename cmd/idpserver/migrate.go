package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/idpserver/internal/config"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/store/pg"
	migrations "github.com/dropDatabas3/idpserver/migrations/postgres"
)

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes del store PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cfg.Database.WriterDSN == "" {
				return errors.New("migrate: database.writer_dsn is required")
			}
			logger.Init(logger.Config{Env: cfg.Logging.Env, Level: cfg.Logging.Level})
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			dal, err := pg.Open(ctx, pg.Config{
				WriterDSN:      cfg.Database.WriterDSN,
				MaxConns:       2,
				ConnectTimeout: config.Duration(cfg.Database.ConnectTimeout),
			})
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer dal.Close()

			res, err := pg.NewMigrator(migrations.SchemaFS, migrations.SchemaDir).Run(ctx, dal.Writer())
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied=%v skipped=%v duration=%s\n", res.Applied, res.Skipped, res.Duration)
			return nil
		},
	}
}
