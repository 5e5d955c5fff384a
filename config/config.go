package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the validation engine.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Validation ValidationConfig `yaml:"validation"`
	Registry   RegistryConfig   `yaml:"registry"`
	Quarantine QuarantineConfig `yaml:"quarantine"`
	// Overrides carries per-contract threshold overrides keyed by scope id.
	Overrides []ScopeOverride `yaml:"overrides"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	HealthPort int    `yaml:"health_port"`
	LogLevel   string `yaml:"log_level"`
}

// ValidationConfig contains the quarantine thresholds and worker settings.
type ValidationConfig struct {
	// MaxQuarantinePct fails the job when the cumulative quarantine ratio
	// exceeds this percentage.
	MaxQuarantinePct float64 `yaml:"max_quarantine_pct"`
	// MaxQuarantineCount fails the job when this many rows have been
	// quarantined. 0 means unlimited.
	MaxQuarantineCount int64 `yaml:"max_quarantine_count"`
	// WarnOnQuarantine logs a warning for every batch that quarantines
	// rows below the threshold.
	WarnOnQuarantine bool `yaml:"warn_on_quarantine"`
	// ViolationSampleSize is how many violations are retained for triage
	// when a job fails.
	ViolationSampleSize int `yaml:"violation_sample_size"`
	// WorkerCount is the number of batches validated concurrently.
	WorkerCount int `yaml:"worker_count"`
	// DevelopmentMode permits running without an approved contract.
	DevelopmentMode bool `yaml:"development_mode"`
}

// RegistryConfig locates the contract store.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// QuarantineConfig locates the output database.
type QuarantineConfig struct {
	DBPath      string `yaml:"db_path"`
	TablePrefix string `yaml:"table_prefix"`
}

// ScopeOverride overrides thresholds for one contract scope.
type ScopeOverride struct {
	ScopeID            string   `yaml:"scope_id"`
	MaxQuarantinePct   *float64 `yaml:"max_quarantine_pct"`
	MaxQuarantineCount *int64   `yaml:"max_quarantine_count"`
	WarnOnQuarantine   *bool    `yaml:"warn_on_quarantine"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:       "schema-contract-engine",
			Version:    "v1.0.0",
			HealthPort: 8089,
			LogLevel:   "info",
		},
		Validation: ValidationConfig{
			MaxQuarantinePct:    10.0,
			MaxQuarantineCount:  0,
			WarnOnQuarantine:    true,
			ViolationSampleSize: 10,
			WorkerCount:         4,
		},
		Registry: RegistryConfig{
			Path: "contracts.db",
		},
		Quarantine: QuarantineConfig{
			DBPath:      "output.duckdb",
			TablePrefix: "quarantine_",
		},
	}
}

// Load reads YAML configuration from path, applies defaults, and then
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		c.Service.Name = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Service.LogLevel = v
	}
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HEALTH_PORT: %w", err)
		}
		c.Service.HealthPort = port
	}
	if v := os.Getenv("MAX_QUARANTINE_PCT"); v != "" {
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_QUARANTINE_PCT: %w", err)
		}
		c.Validation.MaxQuarantinePct = pct
	}
	if v := os.Getenv("MAX_QUARANTINE_COUNT"); v != "" {
		count, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_QUARANTINE_COUNT: %w", err)
		}
		c.Validation.MaxQuarantineCount = count
	}
	if v := os.Getenv("WARN_ON_QUARANTINE"); v != "" {
		c.Validation.WarnOnQuarantine = v == "true" || v == "1"
	}
	if v := os.Getenv("WORKER_COUNT"); v != "" {
		count, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WORKER_COUNT: %w", err)
		}
		c.Validation.WorkerCount = count
	}
	if v := os.Getenv("DEVELOPMENT_MODE"); v != "" {
		c.Validation.DevelopmentMode = v == "true" || v == "1"
	}
	if v := os.Getenv("REGISTRY_PATH"); v != "" {
		c.Registry.Path = v
	}
	if v := os.Getenv("QUARANTINE_DB_PATH"); v != "" {
		c.Quarantine.DBPath = v
	}
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Validation.MaxQuarantinePct < 0 || c.Validation.MaxQuarantinePct > 100 {
		return fmt.Errorf("max_quarantine_pct must be in [0, 100], got %g", c.Validation.MaxQuarantinePct)
	}
	if c.Validation.MaxQuarantineCount < 0 {
		return fmt.Errorf("max_quarantine_count must be >= 0")
	}
	if c.Validation.WorkerCount <= 0 {
		return fmt.Errorf("worker_count must be positive")
	}
	if c.Validation.ViolationSampleSize < 0 {
		return fmt.Errorf("violation_sample_size must be >= 0")
	}
	if c.Service.HealthPort <= 0 || c.Service.HealthPort > 65535 {
		return fmt.Errorf("invalid health port: %d", c.Service.HealthPort)
	}
	for _, o := range c.Overrides {
		if o.ScopeID == "" {
			return fmt.Errorf("override requires a scope_id")
		}
		if o.MaxQuarantinePct != nil && (*o.MaxQuarantinePct < 0 || *o.MaxQuarantinePct > 100) {
			return fmt.Errorf("override for %s: max_quarantine_pct must be in [0, 100]", o.ScopeID)
		}
	}
	return nil
}

// Thresholds resolves the effective thresholds for a scope, applying any
// per-contract override.
func (c *Config) Thresholds(scopeID string) (pct float64, count int64, warn bool) {
	pct = c.Validation.MaxQuarantinePct
	count = c.Validation.MaxQuarantineCount
	warn = c.Validation.WarnOnQuarantine
	for _, o := range c.Overrides {
		if o.ScopeID != scopeID {
			continue
		}
		if o.MaxQuarantinePct != nil {
			pct = *o.MaxQuarantinePct
		}
		if o.MaxQuarantineCount != nil {
			count = *o.MaxQuarantineCount
		}
		if o.WarnOnQuarantine != nil {
			warn = *o.WarnOnQuarantine
		}
		break
	}
	return pct, count, warn
}
