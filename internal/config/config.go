// Package config provides configuration loading and validation for the
// service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults
const (
	DefaultPort           = 8080
	DefaultStaleAfter     = 12 * time.Hour
	DefaultAdapterTimeout = 5 * time.Minute
)

// Duration is a time.Duration that reads and writes strings like "12h".
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"12h\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config holds service settings. It can be loaded from a JSON file and is
// completed from the environment; file values win.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	Port        int    `json:"port,omitempty"`

	// Upstream credentials
	CongressAPIKey    string `json:"congress_api_key,omitempty"`
	RegulationsAPIKey string `json:"regulations_api_key,omitempty"`
	GeminiAPIKey      string `json:"gemini_api_key,omitempty"`

	// Sync behavior
	StaleAfter         Duration `json:"stale_after,omitempty"`
	AdapterTimeout     Duration `json:"adapter_timeout,omitempty"`
	SyncInterval       Duration `json:"sync_interval,omitempty"`       // Background check period; zero disables it
	DetailConcurrency  int      `json:"detail_concurrency,omitempty"`  // Regulations detail fan-out limit; zero is unbounded
	CongressMaxResults int      `json:"congress_max_results,omitempty"` // Zero means every page
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv reads configuration from environment variables.
func FromEnv() (Config, error) {
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) (Config, error) {
	cfg := Config{
		DatabaseURL:       getenv("DATABASE_URL"),
		CongressAPIKey:    getenv("CONGRESS_API_KEY"),
		RegulationsAPIKey: getenv("REGULATIONS_API_KEY"),
		GeminiAPIKey:      getenv("GEMINI_API_KEY"),
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT: %v", err)
		}
		cfg.Port = port
	}
	for name, dst := range map[string]*Duration{
		"STALE_AFTER":     &cfg.StaleAfter,
		"ADAPTER_TIMEOUT": &cfg.AdapterTimeout,
		"SYNC_INTERVAL":   &cfg.SyncInterval,
	} {
		v := getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %v", name, err)
		}
		*dst = Duration(d)
	}
	return cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: credentials are not required here; commands that reach an upstream
// check for the key they need.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.StaleAfter != 0 && time.Duration(c.StaleAfter) < time.Hour {
		return fmt.Errorf("config error: 'stale_after' must be at least 1h")
	}
	if c.AdapterTimeout < 0 {
		return fmt.Errorf("config error: 'adapter_timeout' must be non-negative")
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("config error: 'sync_interval' must be non-negative")
	}
	if c.DetailConcurrency < 0 {
		return fmt.Errorf("config error: 'detail_concurrency' must be non-negative")
	}
	if c.CongressMaxResults < 0 {
		return fmt.Errorf("config error: 'congress_max_results' must be non-negative")
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.CongressAPIKey == "" {
		result.CongressAPIKey = defaults.CongressAPIKey
	}
	if result.RegulationsAPIKey == "" {
		result.RegulationsAPIKey = defaults.RegulationsAPIKey
	}
	if result.GeminiAPIKey == "" {
		result.GeminiAPIKey = defaults.GeminiAPIKey
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.StaleAfter == 0 {
		result.StaleAfter = defaults.StaleAfter
	}
	if result.AdapterTimeout == 0 {
		result.AdapterTimeout = defaults.AdapterTimeout
	}
	if result.SyncInterval == 0 {
		result.SyncInterval = defaults.SyncInterval
	}
	if result.DetailConcurrency == 0 {
		result.DetailConcurrency = defaults.DetailConcurrency
	}
	if result.CongressMaxResults == 0 {
		result.CongressMaxResults = defaults.CongressMaxResults
	}
	return result
}

// WithBuiltinDefaults fills anything still unset with the built-in defaults.
func (c *Config) WithBuiltinDefaults() Config {
	return c.MergeWithDefaults(Config{
		Port:           DefaultPort,
		StaleAfter:     Duration(DefaultStaleAfter),
		AdapterTimeout: Duration(DefaultAdapterTimeout),
	})
}

// Load resolves the effective configuration: the optional file at path, then
// the environment, then built-in defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		fileCfg, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	env, err := FromEnv()
	if err != nil {
		return nil, err
	}
	merged := cfg.MergeWithDefaults(env)
	merged = merged.WithBuiltinDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}
