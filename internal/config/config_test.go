package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.Host != DefaultHost || cfg.API.Port != DefaultPort {
		t.Errorf("api defaults = %s:%d", cfg.API.Host, cfg.API.Port)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.History.Keep != DefaultHistoryKeep || cfg.History.PruneSchedule != DefaultPruneSchedule {
		t.Errorf("history defaults = %+v", cfg.History)
	}
	if cfg.Jira != nil || cfg.LLM != nil {
		t.Error("optional sections should stay nil when absent")
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"data_dir": "/var/lib/planforge",
		"api": {"host": "127.0.0.1", "port": 9090},
		"jira": {
			"base_url": "https://example.atlassian.net",
			"username": "bot@example.com",
			"api_token": "tok"
		},
		"llm": {"provider": "hosted", "api_key": "k", "model": "m", "temperature": 0.2},
		"notifications": {"slack": {"token": "xoxb-1", "channel": "#qa"}},
		"history": {"keep": 100, "prune_schedule": "@hourly"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("port = %d", cfg.API.Port)
	}
	if cfg.Jira == nil || cfg.Jira.BaseURL != "https://example.atlassian.net" {
		t.Errorf("jira = %+v", cfg.Jira)
	}
	if cfg.LLM == nil || cfg.LLM.Provider != "hosted" || cfg.LLM.Temperature != 0.2 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Notifications.Slack == nil || cfg.Notifications.Slack.Channel != "#qa" {
		t.Errorf("slack = %+v", cfg.Notifications.Slack)
	}
	if cfg.History.Keep != 100 {
		t.Errorf("keep = %d", cfg.History.Keep)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"incomplete jira",
			`{"jira": {"base_url": "https://x"}}`,
			"jira.username is required",
		},
		{
			"hosted without key",
			`{"llm": {"provider": "hosted"}}`,
			"llm.api_key is required",
		},
		{
			"unknown provider",
			`{"llm": {"provider": "openai"}}`,
			"unknown provider",
		},
		{
			"slack without channel",
			`{"notifications": {"slack": {"token": "t"}}}`,
			"notifications.slack.channel is required",
		},
		{
			"bad port",
			`{"api": {"port": 99999}}`,
			"api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("want validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PLANFORGE_API_PORT", "9191")
	t.Setenv("PLANFORGE_JIRA_BASE_URL", "https://env.atlassian.net")
	t.Setenv("PLANFORGE_JIRA_USERNAME", "env@example.com")
	t.Setenv("PLANFORGE_JIRA_API_TOKEN", "tok")
	t.Setenv("PLANFORGE_LLM_PROVIDER", "local")
	t.Setenv("PLANFORGE_HISTORY_KEEP", "42")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.API.Port != 9191 {
		t.Errorf("port = %d", cfg.API.Port)
	}
	if cfg.Jira == nil || cfg.Jira.Username != "env@example.com" {
		t.Errorf("jira = %+v", cfg.Jira)
	}
	if cfg.LLM == nil || cfg.LLM.Provider != "local" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.History.Keep != 42 {
		t.Errorf("keep = %d", cfg.History.Keep)
	}
}
