package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Attafii/Archiflow-sub001/pkg/archiflow/assistant"
)

// newHealthCmd creates the `archiflow-assistant health` command.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the LLM endpoint",
		Long: `Sends one probe completion to the primary model and reports
whether the endpoint is reachable with the configured credentials.`,
		RunE: runHealth,
	}
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("endpoint:  %s\n", cfg.Client.BaseURL)
	fmt.Printf("models:    %v\n", cfg.Client.Models)
	fmt.Printf("keyring:   %v\n", assistant.KeyringAvailable())

	if cfg.Client.APIKey == "" {
		fmt.Println("api key:   missing")
		return fmt.Errorf("no API key configured; run: archiflow-assistant config set-key")
	}
	fmt.Println("api key:   configured")

	// Probe with a single attempt against the primary model only, so a
	// broken endpoint reports quickly instead of walking the fallback
	// chain.
	probe := cfg.Client
	probe.Models = cfg.Client.Models[:1]
	probe.MaxRetries = 1

	client, err := assistant.New(probe, nil, logger)
	if err != nil {
		return err
	}

	conv := assistant.NewConversation(probe.MaxWindow)
	conv.Append(assistant.NewMessage(assistant.RoleUser, "Reply with the single word: ok"))

	start := time.Now()
	result, err := client.Send(cmd.Context(), conv)
	if err != nil {
		fmt.Println("status:    unreachable")
		return err
	}

	fmt.Printf("status:    ok (%dms, %q)\n",
		time.Since(start).Milliseconds(), result.Content)
	return nil
}
