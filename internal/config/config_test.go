package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalConfig = `
auth:
  username: admin
  password_hash: c2VjcmV0aGFzaA==
  salt: c2FsdHNhbHQ=
paths:
  base_dir: /srv/transfer
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.Server.BindAddr != "127.0.0.1:23000" {
		t.Errorf("bind_addr = %q", cfg.Server.BindAddr)
	}
	if cfg.Auth.Iterations != 200000 {
		t.Errorf("iterations = %d, want 200000", cfg.Auth.Iterations)
	}
	if cfg.Fetch.MaxWorkers != 4 {
		t.Errorf("max_workers = %d, want 4", cfg.Fetch.MaxWorkers)
	}
	if cfg.RateLimit.MaxAttempts != 5 {
		t.Errorf("max_attempts = %d, want 5", cfg.RateLimit.MaxAttempts)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoad_PathAccessors(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if got := cfg.Paths.GetDataDir(); got != "/srv/transfer/data" {
		t.Errorf("GetDataDir() = %q", got)
	}
	if got := cfg.Paths.GetDownloadsDir(); got != "/srv/transfer/data/downloads" {
		t.Errorf("GetDownloadsDir() = %q", got)
	}
	if got := cfg.Paths.GetArchiveDir(); got != "/srv/transfer/data/archives" {
		t.Errorf("GetArchiveDir() = %q", got)
	}
	if got := cfg.Paths.GetSharesFile(); got != "/srv/transfer/data/shares.json" {
		t.Errorf("GetSharesFile() = %q", got)
	}
	if got := cfg.GetHistoryPath(); got != "/srv/transfer/data/history.db" {
		t.Errorf("GetHistoryPath() = %q", got)
	}
}

func TestLoad_DurationAccessors(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if got := cfg.Fetch.GetProbeTimeout(); got != 30*time.Second {
		t.Errorf("GetProbeTimeout() = %v", got)
	}
	if got := cfg.Fetch.GetTransferTimeout(); got != 60*time.Second {
		t.Errorf("GetTransferTimeout() = %v", got)
	}
	if got := cfg.Fetch.GetMinSplitSize(); got != 1024*1024 {
		t.Errorf("GetMinSplitSize() = %d", got)
	}
	if got := cfg.RateLimit.GetWindow(); got != 5*time.Minute {
		t.Errorf("GetWindow() = %v", got)
	}
	if got := cfg.Auth.GetSessionTTL(); got != time.Hour {
		t.Errorf("GetSessionTTL() = %v", got)
	}
	if got := cfg.Server.GetWriteTimeout(); got != 120*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want long enough for a streamed download", got)
	}
	if got := cfg.Server.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v", got)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing credentials", "auth:\n  username: admin\n"},
		{"too many workers", minimalConfig + "fetch:\n  max_workers: 9\n"},
		{"bad window", minimalConfig + "ratelimit:\n  window: soon\n"},
		{"bad log level", minimalConfig + "logging:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load() = nil, want validation error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load(missing file) = nil, want error")
	}
}
