package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/db"
	"github.com/vrsandeep/tunedl/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|version]",
	Short: "Apply, roll back or inspect database migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "up"
		if len(args) == 1 {
			action = args[0]
		}

		cfg, log, err := setup()
		if err != nil {
			return err
		}
		database, err := db.InitDB(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer database.Close()

		m, err := db.NewMigrator(database, migrations.FS)
		if err != nil {
			return err
		}

		switch action {
		case "up":
			err = m.Up()
		case "down":
			err = m.Steps(-1)
		case "version":
		default:
			return fmt.Errorf("unknown action %q", action)
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}

		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return err
		}
		log.Info("database schema", zap.String("path", cfg.Database.Path), zap.Uint("version", version), zap.Bool("dirty", dirty))
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%v)\n", version, dirty)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
