// Package config provides environment-variable-first configuration loading
// with optional YAML or TOML file fallback for the MIME parser.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// defaultMaxLineLength is 1 MiB.
	defaultMaxLineLength = 1 << 20
	// defaultChunkSize is 32 KiB.
	defaultChunkSize = 32 << 10
)

// Config holds the complete application configuration.
type Config struct {
	Parser   ParserConfig  `yaml:"parser" toml:"parser"`
	Extract  ExtractConfig `yaml:"extract" toml:"extract"`
	Provider string        `yaml:"provider" toml:"provider"`
	SES      SESConfig     `yaml:"ses" toml:"ses"`
	Logging  LoggingConfig `yaml:"logging" toml:"logging"`
}

// ParserConfig holds parser limits and the parsing mode.
type ParserConfig struct {
	MaxLineLength int  `yaml:"max_line_length" toml:"max_line_length"`
	ChunkSize     int  `yaml:"chunk_size" toml:"chunk_size"`
	Streaming     bool `yaml:"streaming" toml:"streaming"`
}

// ExtractConfig selects which body parts are written to disk.
type ExtractConfig struct {
	Dir      string   `yaml:"dir" toml:"dir"`
	Patterns []string `yaml:"patterns" toml:"patterns"`
}

// SESConfig holds AWS SES v2 configuration.
type SESConfig struct {
	Region          string `yaml:"region" toml:"region"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
	Sender          string `yaml:"sender" toml:"sender"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file, or a TOML file when the
// path ends in ".toml", as the base layer, then overrides with environment
// variables. Returns an error if the specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override file values
	cfg.applyEnvVars()
	cfg.Provider = strings.ToLower(cfg.Provider)

	return cfg, nil
}

// SESConfigured returns true if an SES region is set. The sender is
// optional and defaults to each message's From address.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// ExtractEnabled returns true if an extraction directory is set.
func (c *Config) ExtractEnabled() bool {
	return c.Extract.Dir != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Parser.MaxLineLength = defaultMaxLineLength
	c.Parser.ChunkSize = defaultChunkSize
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("PARSER_MAX_LINE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Parser.MaxLineLength = n
		}
	}
	if v := os.Getenv("PARSER_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Parser.ChunkSize = n
		}
	}
	if v := os.Getenv("PARSER_STREAMING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Parser.Streaming = b
		}
	}

	if v := os.Getenv("EXTRACT_DIR"); v != "" {
		c.Extract.Dir = v
	}
	if v := os.Getenv("EXTRACT_PATTERNS"); v != "" {
		c.Extract.Patterns = splitList(v)
	}

	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
