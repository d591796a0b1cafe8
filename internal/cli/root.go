package cli

import (
	"os"

	"github.com/spf13/cobra"

	"lesson-progress-service/internal/config"
	"lesson-progress-service/internal/logger"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "lesson-service",
		Short:        "Lesson progress tracking service",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewOutlineCmd())
	cmd.AddCommand(NewProgressCmd(&configPath))
	cmd.AddCommand(NewImportCmd(&configPath))
	return cmd
}

func newLogger(cfg config.Config) (*logger.Logger, error) {
	return logger.New(cfg.Log.Mode)
}
