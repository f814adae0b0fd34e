package cli

import (
	"os"

	"github.com/spf13/cobra"
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
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "quiz-service",
		Short:         "Chronotech quiz backend: scoring, missions, achievements and forum",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// an empty --port falls back to PORT, then server.port
	cmd.PersistentFlags().StringVar(&port, "port", "", "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewSeedCmd(&configPath))
	cmd.AddCommand(NewMissionCmd(&configPath))
	cmd.AddCommand(NewTokenCmd(&configPath))
	return cmd
}
