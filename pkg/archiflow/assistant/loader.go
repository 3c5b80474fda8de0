// loader.go handles loading configuration from YAML files with secure
// credential management via environment variables and .env files.
package assistant

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable references in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - $VAR_NAME            - bare variable
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Loads .env files first (silently ignored when absent) and expands
// environment variable references before parsing.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, path)
	checkFilePermissions(path)
	return cfg, nil
}

// ParseConfig parses YAML bytes into a Config. Starts with defaults and
// overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("mapping config: %w", err)
	}

	// Legacy configs carry a single scalar `model:` under client. Treat it
	// as the highest-priority entry of the fallback chain.
	if clientRaw, ok := raw["client"].(map[string]any); ok {
		if legacy, ok := clientRaw["model"].(string); ok && legacy != "" {
			cfg.Client.Models = prependModel(legacy, cfg.Client.Models)
		}
	}

	return cfg, nil
}

// prependModel puts legacy at the head of models, deduplicating.
func prependModel(legacy string, models []string) []string {
	out := []string{legacy}
	for _, m := range models {
		if m != legacy {
			out = append(out, m)
		}
	}
	return out
}

// SaveConfigToFile writes a Config as YAML. The API key is replaced with an
// environment variable reference so the plaintext secret never lands on
// disk.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	if sanitized.Client.APIKey != "" {
		sanitized.Client.APIKey = "${ARCHIFLOW_API_KEY}"
	}

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// loadEnvFiles loads .env files from the working directory.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		_ = godotenv.Load(name)
	}
}

// expandEnvVars substitutes environment variable references in the raw YAML
// text. Unset variables without a default expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[3]
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return groups[2] // default value, possibly empty
	})
}

// resolveRelativePaths anchors relative file paths at the config file's
// directory so the CLI behaves the same from any working directory.
func resolveRelativePaths(cfg *Config, configPath string) {
	base := filepath.Dir(configPath)
	if cfg.History.Path != "" && !filepath.IsAbs(cfg.History.Path) {
		cfg.History.Path = filepath.Join(base, cfg.History.Path)
	}
}

// checkFilePermissions warns when the config file is group/world readable;
// it may contain an inlined API key.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o044 != 0 {
		fmt.Fprintf(os.Stderr, "warning: %s is readable by other users; run chmod 600\n", path)
	}
}
