package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("AI_MODEL", "")

	cfg := LoadFile("")
	if cfg.AI.Provider != "openai" || cfg.AI.Model != "gpt-4o-mini" || cfg.AI.Timeout != 20*time.Second {
		t.Fatalf("unexpected ai defaults: %+v", cfg.AI)
	}
	if cfg.Stream.HeartbeatInterval != 30*time.Second || cfg.Stream.WriteTimeout != 10*time.Second || cfg.Pipeline.Throttle != time.Second {
		t.Fatalf("unexpected timing defaults: %+v %+v", cfg.Stream, cfg.Pipeline)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("unexpected driver: %s", cfg.Database.Driver)
	}
}

func TestLoadFileMergesYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
logging:
  level: debug
database:
  driver: Postgres
  dsn: postgres://file
ai:
  provider: anthropic
  model: claude-haiku-4-5
  timeout: 5s
stream:
  heartbeatInterval: 10s
scheduler:
  owners: [u1, u2]
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ANTHROPIC_API_KEY", "secret")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("AI_MODEL", "")

	cfg := LoadFile(path)
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected level: %s", cfg.Logging.Level)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://env" {
		t.Fatalf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.AI.Provider != "anthropic" || cfg.AI.APIKey != "secret" || cfg.AI.Timeout != 5*time.Second {
		t.Fatalf("unexpected ai config: %+v", cfg.AI)
	}
	if cfg.Stream.HeartbeatInterval != 10*time.Second {
		t.Fatalf("unexpected heartbeat: %s", cfg.Stream.HeartbeatInterval)
	}
	if len(cfg.Scheduler.Owners) != 2 || cfg.Scheduler.Interval != 15*time.Minute {
		t.Fatalf("unexpected scheduler: %+v", cfg.Scheduler)
	}
}

func TestLoadFileIgnoresBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("ai: [nope"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AI_PROVIDER", "")

	cfg := LoadFile(path)
	if cfg.AI.Provider != "openai" {
		t.Fatalf("expected defaults after parse failure, got %+v", cfg.AI)
	}
}

func TestLoadFileAcceptsZeroThrottle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n  throttle: 0s\n  previewLength: 20\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AI_PROVIDER", "")

	cfg := LoadFile(path)
	if cfg.Pipeline.Throttle != 0 {
		t.Fatalf("expected throttle disabled, got %s", cfg.Pipeline.Throttle)
	}
	if cfg.Pipeline.PreviewLength != 20 {
		t.Fatalf("unexpected preview length: %d", cfg.Pipeline.PreviewLength)
	}

	omitted := filepath.Join(t.TempDir(), "omitted.yaml")
	if err := os.WriteFile(omitted, []byte("pipeline:\n  previewLength: 20\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if cfg := LoadFile(omitted); cfg.Pipeline.Throttle != time.Second {
		t.Fatalf("expected default throttle when omitted, got %s", cfg.Pipeline.Throttle)
	}
}
