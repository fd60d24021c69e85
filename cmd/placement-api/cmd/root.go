package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/placement-rounds-api/pkg/config"
	"github.com/noah-isme/placement-rounds-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "placement-api",
	Short: "Round progression engine for campus placement drives",
	Long: `placement-api tracks student applications through the ordered rounds of a job,
runs rotating attendance code sessions per round and advances students in bulk.

Configuration is read from a .env file in the working directory and from the
environment (DB_*, REDIS_*, JWT_SECRET, ATTENDANCE_*, BULK_ADVANCE_*, ...).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}
