package mcpserver

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed tools.yaml
var defaultConfig []byte

// Config holds the server instructions and per-tool descriptions and
// annotations.
type Config struct {
	Instructions string                  `yaml:"instructions"`
	Tools        map[string]ToolOverride `yaml:"tools"`
}

// ToolOverride customizes one tool. Nil hints are left unset.
type ToolOverride struct {
	Description string `yaml:"description"`
	ReadOnly    *bool  `yaml:"readonly"`
	Destructive *bool  `yaml:"destructive"`
	Idempotent  *bool  `yaml:"idempotent"`
}

// DefaultConfig returns the embedded tool configuration.
func DefaultConfig() (*Config, error) {
	return ParseConfig(defaultConfig)
}

// ParseConfig parses tool configuration from raw YAML.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse mcp config: %w", err)
	}
	if cfg.Tools == nil {
		cfg.Tools = map[string]ToolOverride{}
	}
	return &cfg, nil
}
