// keyring.go provides secure credential storage using the operating
// system's native keyring (Linux: Secret Service/GNOME Keyring, macOS:
// Keychain, Windows: Credential Manager).
//
// Priority for resolving the API key:
//  1. OS keyring (encrypted by the OS, requires user session)
//  2. Environment variable (ARCHIFLOW_API_KEY, then OPENAI_API_KEY)
//  3. config.yaml value (least secure — plaintext on disk)
package assistant

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "archiflow-assistant"

	// keyringAPIKey is the key name for the LLM API key.
	keyringAPIKey = "api_key"
)

// apiKeyEnvVars are checked in order when the keyring has no entry.
var apiKeyEnvVars = []string{"ARCHIFLOW_API_KEY", "OPENAI_API_KEY"}

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__archiflow_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveAPIKey resolves the API key using the priority chain
// keyring → env → config value, updating the config in place.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	if val := GetKeyring(keyringAPIKey); val != "" {
		cfg.Client.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return
	}

	for _, name := range apiKeyEnvVars {
		if val := os.Getenv(name); val != "" {
			cfg.Client.APIKey = val
			logger.Debug("API key loaded from environment", "var", name)
			return
		}
	}

	if cfg.Client.APIKey != "" {
		logger.Debug("API key loaded from config file")
		return
	}

	logger.Warn("no API key found. Set one with: archiflow-assistant config set-key")
}

// MigrateKeyToKeyring moves an API key into the OS keyring.
func MigrateKeyToKeyring(apiKey string, logger *slog.Logger) error {
	if err := StoreKeyring(keyringAPIKey, apiKey); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	logger.Info("API key stored in OS keyring",
		"service", keyringService,
		"hint", "You can now remove it from .env and config.yaml")
	return nil
}

// ReadPassword reads a secret from the terminal without echoing.
// Falls back to regular stdin reading if a terminal is not available.
func ReadPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	password, err := term.ReadPassword(fd)
	if err != nil {
		var buf [1024]byte
		n, readErr := os.Stdin.Read(buf[:])
		if readErr != nil {
			return "", fmt.Errorf("reading password: %w", readErr)
		}
		password = buf[:n]
	}
	fmt.Println()

	return strings.TrimSpace(string(password)), nil
}
