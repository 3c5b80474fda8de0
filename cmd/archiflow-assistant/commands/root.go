// Package commands implements the ArchiFlow assistant CLI using cobra.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Attafii/Archiflow-sub001/pkg/archiflow/assistant"
)

// defaultConfigPath is used when --config is not given.
const defaultConfigPath = "./config.yaml"

// NewRootCmd creates the CLI root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "archiflow-assistant",
		Short: "ArchiFlow Assistant - AI help for materials and invoices",
		Long: `ArchiFlow Assistant is the AI companion of the ArchiFlow
materials/invoice manager. It forwards questions to an OpenAI-compatible
chat endpoint with automatic model fallback and retry.

Examples:
  archiflow-assistant chat "Summarize last month's cement purchases"
  archiflow-assistant chat --json "Estimate the cost of 200 bricks"
  archiflow-assistant config set-key
  archiflow-assistant health`,
		Version: version,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newConfigCmd(),
		newHealthCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig resolves the config file, builds the logger, and resolves the
// API key. Shared by all subcommands.
func loadConfig(cmd *cobra.Command) (*assistant.Config, *slog.Logger, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = defaultConfigPath
	}

	var cfg *assistant.Config
	if _, err := os.Stat(path); err == nil {
		loaded, err := assistant.LoadConfigFromFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = assistant.DefaultConfig()
	}

	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	logger := assistant.NewLogger(cfg.Logging)

	assistant.ResolveAPIKey(cfg, logger)
	return cfg, logger, nil
}
