package config_test

import (
	"os"
	"strings"
	"testing"

	"github.com/aletheia-mem/aletheia/internal/config"
)

func TestLoadFromReader_RequiresPostgresDSN(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: info
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing storage.postgres_dsn, got nil")
	}
	if !strings.Contains(err.Error(), "postgres_dsn") {
		t.Errorf("error should mention postgres_dsn, got: %v", err)
	}
}

func TestLoadFromReader_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
storage:
  postgres_dsn: "postgres://localhost/test"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestLoadFromReader_NegativeBudget(t *testing.T) {
	t.Parallel()
	yaml := `
storage:
  postgres_dsn: "postgres://localhost/test"
budget:
  max_wakes_per_nous_per_hour: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative budget, got nil")
	}
	if !strings.Contains(err.Error(), "max_wakes_per_nous_per_hour") {
		t.Errorf("error should mention max_wakes_per_nous_per_hour, got: %v", err)
	}
}

func TestLoadFromReader_SignalEnabledRequiresInterval(t *testing.T) {
	t.Parallel()
	yaml := `
storage:
  postgres_dsn: "postgres://localhost/test"
signals:
  calendar:
    enabled: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for enabled signal with no interval, got nil")
	}
	if !strings.Contains(err.Error(), "interval_seconds") {
		t.Errorf("error should mention interval_seconds, got: %v", err)
	}
}

func TestLoadFromReader_NegativeNousWeight(t *testing.T) {
	t.Parallel()
	yaml := `
storage:
  postgres_dsn: "postgres://localhost/test"
nous:
  main:
    weights:
      calendar: -0.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative weight, got nil")
	}
	if !strings.Contains(err.Error(), "weights") {
		t.Errorf("error should mention weights, got: %v", err)
	}
}

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: info
  listen_addr: ":8080"
storage:
  postgres_dsn: "postgres://localhost/test"
  embedding_dimensions: 1024
backend:
  llm:
    name: anthropic-oauth
  embeddings:
    name: openai
nous:
  main:
    weights:
      calendar: 1.0
      tasks: 0.8
signals:
  calendar:
    enabled: true
    interval_seconds: 300
gateway:
  url: "http://localhost:9000"
  token: "secret"
budget:
  max_wakes_per_nous_per_hour: 4
  max_wakes_total_per_hour: 10
  cooldown_after_wake_seconds: 900
quiet_hours:
  start: "22:00"
  end: "07:00"
  timezone: "America/Los_Angeles"
rhythm:
  morning_prep: "0 7 * * *"
  midday_check: "0 12 * * *"
  evening_review: "0 20 * * *"
data_dir: "/var/lib/aletheia"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.EmbeddingDimensions != 1024 {
		t.Errorf("embedding_dimensions: got %d, want 1024", cfg.Storage.EmbeddingDimensions)
	}
	if cfg.Nous["main"].Weights["calendar"] != 1.0 {
		t.Errorf("nous.main.weights.calendar: got %v, want 1.0", cfg.Nous["main"].Weights["calendar"])
	}
}

func TestLoadFromReader_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_ALETHEIA_TOKEN", "expanded-secret")
	yaml := `
storage:
  postgres_dsn: "postgres://localhost/test"
server:
  token: "${TEST_ALETHEIA_TOKEN}"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Token != "expanded-secret" {
		t.Errorf("server.token: got %q, want %q", cfg.Server.Token, "expanded-secret")
	}
}

func TestLoadFromReader_UnsetEnvLeftUntouched(t *testing.T) {
	t.Parallel()
	os.Unsetenv("TEST_ALETHEIA_DOES_NOT_EXIST")
	yaml := `
storage:
  postgres_dsn: "postgres://localhost/test"
server:
  token: "${TEST_ALETHEIA_DOES_NOT_EXIST}"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Token != "${TEST_ALETHEIA_DOES_NOT_EXIST}" {
		t.Errorf("server.token should be left unexpanded, got %q", cfg.Server.Token)
	}
}

func TestValidBackendNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidBackendNames) == 0 {
		t.Fatal("ValidBackendNames should not be empty")
	}
	llmNames := config.ValidBackendNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidBackendNames[\"llm\"] should not be empty")
	}
	found := false
	for _, n := range llmNames {
		if n == "anthropic-oauth" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidBackendNames[\"llm\"] should contain \"anthropic-oauth\"")
	}
}
