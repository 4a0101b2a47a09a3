package config

import (
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Render serializes the redacted configuration as yaml or json
func Render(cfg *Config, format string) ([]byte, error) {
	redacted := cfg.Redacted()

	switch strings.ToLower(format) {
	case "", "yaml", "yml":
		data, err := yaml.Marshal(redacted)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return data, nil
	case "json":
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// Save writes the redacted configuration to a YAML file
func Save(filePath string, cfg *Config) error {
	data, err := Render(cfg, "yaml")
	if err != nil {
		return err
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
