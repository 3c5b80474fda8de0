package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Attafii/Archiflow-sub001/pkg/archiflow/assistant"
)

// newConfigCmd creates the `archiflow-assistant config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage assistant configuration",
		Long: `Manage the ArchiFlow assistant configuration.

Examples:
  archiflow-assistant config init
  archiflow-assistant config show
  archiflow-assistant config set-key`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
	)

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Root().PersistentFlags().GetString("config")
			if path == "" {
				path = defaultConfigPath
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", path)
			}
			if err := assistant.SaveConfigToFile(assistant.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Never print the secret itself.
			shown := *cfg
			if shown.Client.APIKey != "" {
				shown.Client.APIKey = "****" + tail(cfg.Client.APIKey, 4)
			}

			data, err := yaml.Marshal(&shown)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the API key in the OS keyring",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if !assistant.KeyringAvailable() {
				return fmt.Errorf("OS keyring not available; set ARCHIFLOW_API_KEY in the environment instead")
			}

			key, err := assistant.ReadPassword("API key: ")
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("empty API key")
			}

			return assistant.MigrateKeyToKeyring(key, logger)
		},
	}
}

// tail returns the last n characters of s, or s itself when shorter.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
