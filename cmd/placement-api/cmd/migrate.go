package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/placement-rounds-api/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logr, err := bootstrap()
		if err != nil {
			return err
		}
		defer logr.Sync() //nolint:errcheck

		db, err := database.NewPostgres(cmd.Context(), cfg.Database)
		if err != nil {
			logr.Error("database connection failed", zap.Error(err))
			return err
		}
		defer db.Close()

		if err := database.Migrate(db.DB); err != nil {
			logr.Error("migration failed", zap.Error(err))
			return err
		}
		logr.Info("migrations applied", zap.String("database", cfg.Database.Name))
		return nil
	},
}
