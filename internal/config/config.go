// Package config provides configuration loading and validation for the
// interview agent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the agent configuration, loadable from a JSON file. All fields
// are optional; missing values use defaults or environment variables.
type Config struct {
	// Profile paths
	Job       string `json:"job,omitempty"`       // Path to job profile JSON
	Company   string `json:"company,omitempty"`   // Path to company profile JSON
	Candidate string `json:"candidate,omitempty"` // Path to candidate profile JSON

	// Model access
	APIKey   string `json:"api_key,omitempty"`  // Gemini API key
	Provider string `json:"provider,omitempty"` // Model provider (default gemini)

	// Interview behavior
	Demo                bool    `json:"demo,omitempty"`                 // Shortened interview
	FollowUpBudget      int     `json:"follow_up_budget,omitempty"`     // Max follow-ups per question
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"` // Duplicate detection threshold (0.0-1.0)

	// Gateway
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`
	Retries               int `json:"retries,omitempty"`

	// Server
	Port              int    `json:"port,omitempty"`
	SessionTTLMinutes int    `json:"session_ttl_minutes,omitempty"`
	DatabaseURL       string `json:"database_url,omitempty"` // PostgreSQL archive, optional

	// Logging
	Verbose  bool `json:"verbose,omitempty"`
	JSONLogs bool `json:"json_logs,omitempty"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Provider:              "gemini",
		SimilarityThreshold:   0.8,
		RequestTimeoutSeconds: 30,
		Retries:               1,
		Port:                  8080,
		SessionTTLMinutes:     60,
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

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

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("config error: 'similarity_threshold' must be between 0.0 and 1.0")
	}
	if c.FollowUpBudget < 0 {
		return fmt.Errorf("config error: 'follow_up_budget' must be non-negative")
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("config error: 'request_timeout_seconds' must be non-negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be a valid port number")
	}
	if c.SessionTTLMinutes < 0 {
		return fmt.Errorf("config error: 'session_ttl_minutes' must be non-negative")
	}

	for _, path := range []string{c.Job, c.Company, c.Candidate} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("config error: profile file not found: %s", path)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from
// defaults. The config file wins where it says anything.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Job == "" {
		result.Job = defaults.Job
	}
	if result.Company == "" {
		result.Company = defaults.Company
	}
	if result.Candidate == "" {
		result.Candidate = defaults.Candidate
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.Provider == "" {
		result.Provider = defaults.Provider
	}
	if result.FollowUpBudget == 0 {
		result.FollowUpBudget = defaults.FollowUpBudget
	}
	if result.SimilarityThreshold == 0 {
		result.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if result.RequestTimeoutSeconds == 0 {
		result.RequestTimeoutSeconds = defaults.RequestTimeoutSeconds
	}
	if result.Retries == 0 {
		result.Retries = defaults.Retries
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.SessionTTLMinutes == 0 {
		result.SessionTTLMinutes = defaults.SessionTTLMinutes
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	return result
}

// ApplyEnv fills credentials and connection settings from the environment
// when the config file left them empty.
func (c *Config) ApplyEnv() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
}

// RequestTimeout returns the gateway timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SessionTTL returns the idle session lifetime as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}
