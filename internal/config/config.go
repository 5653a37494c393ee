// Package config manages the server policy file, server_config.yaml.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// FileName is the default name of the server policy file.
const FileName = "server_config.yaml"

// Config stores the server-wide policy.
// Loaded from server_config.yaml, created with defaults if missing.
type Config struct {
	// MaxPerPage caps the per_page query parameter of listings. 0 disables the
	// cap.
	MaxPerPage int `yaml:"max_per_page" json:"max_per_page" jsonschema:"description=Upper bound for per_page; 0 disables the cap,minimum=0"`

	// MaxRequestBodyBytes limits the size of any single HTTP request body.
	MaxRequestBodyBytes int64 `yaml:"max_request_body_bytes" json:"max_request_body_bytes" jsonschema:"description=Largest accepted request body in bytes; 0 means unlimited,minimum=0"`

	// JWTSecret enables bearer token authentication on writes when set.
	JWTSecret string `yaml:"jwt_secret,omitempty" json:"jwt_secret,omitempty" jsonschema:"description=HS256 secret required on PUT and DELETE when set; at least 32 bytes"`

	// RateLimits defines rate limiting per client IP.
	RateLimits RateLimits `yaml:"rate_limits" json:"rate_limits"`
}

// RateLimits defines rate limiting configuration (requests per minute).
type RateLimits struct {
	// ReadPerMin limits GET requests. 0 means unlimited.
	ReadPerMin int `yaml:"read_per_min" json:"read_per_min" jsonschema:"description=GET requests per minute per client IP; 0 means unlimited,minimum=0"`

	// WritePerMin limits PUT and DELETE requests. 0 means unlimited.
	WritePerMin int `yaml:"write_per_min" json:"write_per_min" jsonschema:"description=PUT and DELETE requests per minute per client IP; 0 means unlimited,minimum=0"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.ReadPerMin < 0 {
		return errors.New("read_per_min must be non-negative")
	}
	if r.WritePerMin < 0 {
		return errors.New("write_per_min must be non-negative")
	}
	return nil
}

// Default returns the default policy.
func Default() Config {
	return Config{
		MaxPerPage:          100,
		MaxRequestBodyBytes: 1024 * 1024, // 1 MiB
		RateLimits: RateLimits{
			ReadPerMin:  6000,
			WritePerMin: 60,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxPerPage < 0 {
		return errors.New("max_per_page must be non-negative")
	}
	if c.MaxRequestBodyBytes < 0 {
		return errors.New("max_request_body_bytes must be non-negative")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	return nil
}

// Load reads the configuration at path. The file is created with defaults if
// it doesn't exist. Keys absent from the file keep their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the --config flag
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Schema returns the JSON Schema of the configuration file.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(&Config{})
	s.Title = FileName
	return json.MarshalIndent(s, "", "  ")
}
