package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/socialsync/socialsync/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const minimalConfig = `
agent:
  provider: bedrock
  bedrock_agent_id: AGENT123
  bedrock_alias_id: ALIAS456
`

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("server.addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Agent.Timeout != 2*time.Minute {
		t.Errorf("agent.timeout = %v, want 2m", cfg.Agent.Timeout)
	}
	if cfg.Session.IdleTimeout != 24*time.Hour {
		t.Errorf("session.idle_timeout = %v, want 24h", cfg.Session.IdleTimeout)
	}
	if cfg.Session.SeedHistory != 0 {
		t.Errorf("session.seed_history = %d, want 0", cfg.Session.SeedHistory)
	}
	if cfg.History.DefaultLimit != 50 || cfg.History.MaxLimit != 200 {
		t.Errorf("unexpected history limits: %+v", cfg.History)
	}
	if cfg.Translate.Enabled {
		t.Error("translate should default to disabled")
	}

	task, ok := cfg.Scheduler.Tasks["db_maintenance"]
	if !ok || !task.Enabled || task.Schedule == "" {
		t.Errorf("db_maintenance task not configured by default: %+v", task)
	}
	if _, ok := cfg.Scheduler.Tasks["session_sweep"]; !ok {
		t.Error("session_sweep task not configured by default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, `
server:
  addr: ":9090"
agent:
  provider: gemini
  gemini_api_key: test-key
  timeout: 30s
session:
  idle_timeout: 2h
  seed_history: 20
translate:
  enabled: true
  languages:
    - code: en
      name: English
    - code: hi
      name: Hindi
platforms:
  whatsapp:
    access_token: wa-token
    verify_token: sesame
    phone_number_id: "1055512345"
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("server.addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Agent.Provider != "gemini" || cfg.Agent.Timeout != 30*time.Second {
		t.Errorf("unexpected agent config: %+v", cfg.Agent)
	}
	if cfg.Session.SeedHistory != 20 {
		t.Errorf("session.seed_history = %d, want 20", cfg.Session.SeedHistory)
	}
	if len(cfg.Translate.Languages) != 2 || cfg.Translate.Languages[1].Code != "hi" {
		t.Errorf("unexpected languages: %+v", cfg.Translate.Languages)
	}
	if cfg.Platforms.WhatsApp.PhoneNumberID != "1055512345" {
		t.Errorf("whatsapp.phone_number_id = %q", cfg.Platforms.WhatsApp.PhoneNumberID)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown provider",
			content: `
agent:
  provider: llama
`,
		},
		{
			name: "bedrock without agent id",
			content: `
agent:
  provider: bedrock
`,
		},
		{
			name: "gemini without api key",
			content: `
agent:
  provider: gemini
`,
		},
		{
			name: "bad log level",
			content: minimalConfig + `
logger:
  level: loud
`,
		},
		{
			name: "agent timeout too large",
			content: `
agent:
  provider: bedrock
  bedrock_agent_id: AGENT123
  bedrock_alias_id: ALIAS456
  timeout: 30m
`,
		},
		{
			name: "seed history out of range",
			content: minimalConfig + `
session:
  seed_history: 500
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := config.LoadConfig(writeConfig(t, tc.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	// Not parallel: relies on process environment for required fields.
	t.Setenv("SOCIALSYNC_AGENT_PROVIDER", "gemini")
	t.Setenv("SOCIALSYNC_AGENT_GEMINI_API_KEY", "env-key")

	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Agent.Provider != "gemini" || cfg.Agent.GeminiAPIKey != "env-key" {
		t.Errorf("environment overrides not applied: %+v", cfg.Agent)
	}
}
