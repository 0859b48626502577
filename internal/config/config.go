package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/planforge-io/planforge/internal/jira"
	"github.com/planforge-io/planforge/internal/provider"
)

// Config is the top-level planforge configuration. Jira and LLM settings may
// also be supplied at runtime through the settings API, in which case the
// persisted values win over the file.
type Config struct {
	DataDir       string           `json:"data_dir"`
	API           APIConfig        `json:"api"`
	Jira          *jira.Config     `json:"jira,omitempty"`
	LLM           *provider.Config `json:"llm,omitempty"`
	Notifications NotifyConfig     `json:"notifications"`
	History       HistoryConfig    `json:"history"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// NotifyConfig holds settings for outbound notifications.
type NotifyConfig struct {
	Slack *SlackConfig `json:"slack,omitempty"`
}

// SlackConfig holds Slack notification settings.
type SlackConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

// HistoryConfig controls generation-history retention.
type HistoryConfig struct {
	Keep          int    `json:"keep,omitempty"`           // records to retain, default 500
	PruneSchedule string `json:"prune_schedule,omitempty"` // cron expression, default daily
}

// Defaults applied when the config leaves fields unset.
const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8080
	DefaultDataDir       = "./data"
	DefaultHistoryKeep   = 500
	DefaultPruneSchedule = "@daily"
)

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with PLANFORGE_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DataDir: getenv("PLANFORGE_DATA_DIR", DefaultDataDir),
		API: APIConfig{
			Host: getenv("PLANFORGE_API_HOST", DefaultHost),
			Port: getenvInt("PLANFORGE_API_PORT", DefaultPort),
		},
	}

	if baseURL := os.Getenv("PLANFORGE_JIRA_BASE_URL"); baseURL != "" {
		cfg.Jira = &jira.Config{
			BaseURL:  baseURL,
			Username: os.Getenv("PLANFORGE_JIRA_USERNAME"),
			APIToken: os.Getenv("PLANFORGE_JIRA_API_TOKEN"),
		}
	}

	if providerName := os.Getenv("PLANFORGE_LLM_PROVIDER"); providerName != "" {
		cfg.LLM = &provider.Config{
			Provider:    providerName,
			APIKey:      os.Getenv("PLANFORGE_LLM_API_KEY"),
			Model:       os.Getenv("PLANFORGE_LLM_MODEL"),
			BaseURL:     os.Getenv("PLANFORGE_LLM_BASE_URL"),
			Temperature: getenvFloat("PLANFORGE_LLM_TEMPERATURE", 0.7),
		}
	}

	if token := os.Getenv("PLANFORGE_SLACK_TOKEN"); token != "" {
		cfg.Notifications.Slack = &SlackConfig{
			Token:   token,
			Channel: os.Getenv("PLANFORGE_SLACK_CHANNEL"),
		}
	}

	cfg.History.Keep = getenvInt("PLANFORGE_HISTORY_KEEP", DefaultHistoryKeep)
	cfg.History.PruneSchedule = getenv("PLANFORGE_HISTORY_PRUNE_SCHEDULE", DefaultPruneSchedule)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.API.Host == "" {
		c.API.Host = DefaultHost
	}
	if c.API.Port == 0 {
		c.API.Port = DefaultPort
	}
	if c.History.Keep == 0 {
		c.History.Keep = DefaultHistoryKeep
	}
	if c.History.PruneSchedule == "" {
		c.History.PruneSchedule = DefaultPruneSchedule
	}
}

// Validate checks for missing or out-of-range fields.
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d out of range", c.API.Port))
	}

	if c.Jira != nil {
		if c.Jira.BaseURL == "" {
			errs = append(errs, "jira.base_url is required")
		}
		if c.Jira.Username == "" {
			errs = append(errs, "jira.username is required")
		}
		if c.Jira.APIToken == "" {
			errs = append(errs, "jira.api_token is required")
		}
	}

	if c.LLM != nil {
		if err := c.LLM.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
		if c.LLM.Provider == provider.ProviderHosted && c.LLM.APIKey == "" {
			errs = append(errs, "llm.api_key is required for the hosted provider")
		}
	}

	if c.Notifications.Slack != nil {
		if c.Notifications.Slack.Token == "" {
			errs = append(errs, "notifications.slack.token is required")
		}
		if c.Notifications.Slack.Channel == "" {
			errs = append(errs, "notifications.slack.channel is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
