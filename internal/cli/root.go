package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BlockAce01/Examind-sub001/internal/config"
	"github.com/BlockAce01/Examind-sub001/internal/scoring"
	"github.com/BlockAce01/Examind-sub001/internal/server"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "examind",
		Short: "Quiz submission and gamification engine",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", configPath, "path to config file")
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	cmd.AddCommand(newReconcileCmd(&configPath))
	return cmd
}

func loadConfig(path string) (server.Config, error) {
	var c server.Config
	c.HTTP.Port = 8080
	c.Scoring = scoring.DefaultWeights()

	if err := config.Load(path, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
