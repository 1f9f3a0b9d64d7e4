package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  host: 0.0.0.0
  port: 9000
  path: /ws
  write_timeout: 3s
matching:
  remove_matched: true
evaluation:
  path: /tmp/eval.json
  flush_interval: 2s
logging:
  frames: false
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Path != "/ws" {
		t.Errorf("Server.Path = %q, want %q", cfg.Server.Path, "/ws")
	}
	if cfg.Server.WriteTimeout != 3*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want 3s", cfg.Server.WriteTimeout)
	}
	if !cfg.Matching.RemoveMatched {
		t.Error("Matching.RemoveMatched = false, want true")
	}
	if cfg.Evaluation.FlushInterval != 2*time.Second {
		t.Errorf("Evaluation.FlushInterval = %v, want 2s", cfg.Evaluation.FlushInterval)
	}
	if cfg.Logging.Frames {
		t.Error("Logging.Frames = true, want explicit false to survive")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true when omitted")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_EVAL_DB_PASSWORD", "secret123")

	yaml := `
evaluation:
  postgres:
    enabled: true
    database:
      host: localhost
      name: mist
      user: relay
      password: ${TEST_EVAL_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Evaluation.Postgres.Database.Password != "secret123" {
		t.Errorf("Postgres password = %q, want %q", cfg.Evaluation.Postgres.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "matching:\n  remove_matched: false\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Server.Addr() != "localhost:8080" {
		t.Errorf("Server.Addr() = %q, want localhost:8080", cfg.Server.Addr())
	}
	if cfg.Server.Path != DefaultPath {
		t.Errorf("Server.Path = %q, want default %q", cfg.Server.Path, DefaultPath)
	}
	if cfg.Evaluation.FlushInterval != DefaultFlushInterval {
		t.Errorf("Evaluation.FlushInterval = %v, want default %v", cfg.Evaluation.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Evaluation.Path != DefaultEvaluationPath {
		t.Errorf("Evaluation.Path = %q, want default %q", cfg.Evaluation.Path, DefaultEvaluationPath)
	}
	if cfg.Evaluation.Postgres.Database.Port != DefaultDBPort {
		t.Errorf("Postgres port = %d, want default %d", cfg.Evaluation.Postgres.Database.Port, DefaultDBPort)
	}
	if cfg.Logging.Dir != DefaultLogDir {
		t.Errorf("Logging.Dir = %q, want default %q", cfg.Logging.Dir, DefaultLogDir)
	}
	if !cfg.Logging.Frames {
		t.Error("Logging.Frames = false, want default true")
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestLoadAndValidate_EmptyPath(t *testing.T) {
	cfg, err := LoadAndValidate("")
	if err != nil {
		t.Fatalf("LoadAndValidate(\"\") error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() RelayConfig { return *Default() }

	tests := []struct {
		name    string
		mutate  func(*RelayConfig)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *RelayConfig) {},
			wantErr: "",
		},
		{
			name:    "port out of range",
			mutate:  func(c *RelayConfig) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "path without slash",
			mutate:  func(c *RelayConfig) { c.Server.Path = "ws" },
			wantErr: `server.path must start with /, got "ws"`,
		},
		{
			name: "ping not below pong timeout",
			mutate: func(c *RelayConfig) {
				c.Server.PingInterval = time.Minute
				c.Server.PongTimeout = time.Minute
			},
			wantErr: "server.ping_interval (1m0s) must be less than server.pong_timeout (1m0s)",
		},
		{
			name:    "negative max buckets",
			mutate:  func(c *RelayConfig) { c.Evaluation.MaxBuckets = -1 },
			wantErr: "evaluation.max_buckets must be >= 0",
		},
		{
			name:    "postgres enabled without host",
			mutate:  func(c *RelayConfig) { c.Evaluation.Postgres.Enabled = true },
			wantErr: "evaluation.postgres.database.host is required",
		},
		{
			name: "postgres min_conns exceeds max_conns",
			mutate: func(c *RelayConfig) {
				c.Evaluation.Postgres.Enabled = true
				c.Evaluation.Postgres.Database = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 2, MinConns: 5}
			},
			wantErr: "evaluation.postgres.database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "mongo enabled without uri",
			mutate:  func(c *RelayConfig) { c.Evaluation.Mongo.Enabled = true },
			wantErr: "evaluation.mongo.uri is required when mongo is enabled",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *RelayConfig) { c.Logging.Level = "loud" },
			wantErr: `logging.level "loud" is not one of debug, info, warn, error`,
		},
		{
			name: "metrics port ignored when disabled",
			mutate: func(c *RelayConfig) {
				c.Metrics.Enabled = false
				c.Metrics.Port = -1
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
