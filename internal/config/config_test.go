// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes content to a temp config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configContent := `
server:
  host: "127.0.0.1"
  preferred_port: 4817
  port_range_min: 4817
  port_range_max: 4827

database:
  path: "./test.db"

auth:
  min_token_length: 48

rate_limit:
  points: 5
  duration: "60s"
  block_duration: "5m"

secret_store:
  driver: "file"
  file_path: "./token.enc"
  passphrase: "hunter2"

providers:
  manifest_dir: "./providers"
  invoke_timeout: "15s"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`
	cfg, err := Load(writeConfig(t, configContent))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.PreferredPort != 4817 {
		t.Errorf("PreferredPort = %d, want 4817", cfg.Server.PreferredPort)
	}
	if cfg.Server.PortRangeMax != 4827 {
		t.Errorf("PortRangeMax = %d, want 4827", cfg.Server.PortRangeMax)
	}
	if cfg.Auth.MinTokenLength != 48 {
		t.Errorf("MinTokenLength = %d, want 48", cfg.Auth.MinTokenLength)
	}
	if cfg.RateLimit.Points != 5 {
		t.Errorf("Points = %d, want 5", cfg.RateLimit.Points)
	}
	if cfg.RateLimit.Duration != 60*time.Second {
		t.Errorf("Duration = %v, want 60s", cfg.RateLimit.Duration)
	}
	if cfg.RateLimit.BlockDuration != 5*time.Minute {
		t.Errorf("BlockDuration = %v, want 5m", cfg.RateLimit.BlockDuration)
	}
	if cfg.SecretStore.Driver != "file" {
		t.Errorf("Driver = %q, want file", cfg.SecretStore.Driver)
	}
	if cfg.Providers.InvokeTimeout != 15*time.Second {
		t.Errorf("InvokeTimeout = %v, want 15s", cfg.Providers.InvokeTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  path: \"./test.db\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.BindProbes != 10 {
		t.Errorf("BindProbes = %d, want 10", cfg.Server.BindProbes)
	}
	if cfg.Auth.MinTokenLength != 32 {
		t.Errorf("MinTokenLength = %d, want 32", cfg.Auth.MinTokenLength)
	}
	if cfg.RateLimit.Points != 60 {
		t.Errorf("Points = %d, want 60", cfg.RateLimit.Points)
	}
	if cfg.RateLimit.Duration != time.Minute {
		t.Errorf("Duration = %v, want 1m", cfg.RateLimit.Duration)
	}
	if cfg.SecretStore.Driver != "auto" {
		t.Errorf("Driver = %q, want auto", cfg.SecretStore.Driver)
	}
	if cfg.Providers.InvokeTimeout != 30*time.Second {
		t.Errorf("InvokeTimeout = %v, want 30s", cfg.Providers.InvokeTimeout)
	}
	if cfg.Health.CheckTimeout != 2*time.Second {
		t.Errorf("CheckTimeout = %v, want 2s", cfg.Health.CheckTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("EMBER_TEST_PASSPHRASE", "from-env")

	configContent := `
database:
  path: "./test.db"
secret_store:
  driver: "file"
  file_path: "./token.enc"
  passphrase: "${EMBER_TEST_PASSPHRASE}"
`
	cfg, err := Load(writeConfig(t, configContent))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SecretStore.Passphrase != "from-env" {
		t.Errorf("Passphrase = %q, want from-env", cfg.SecretStore.Passphrase)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing database path",
			content: "logging:\n  level: info\n",
			wantErr: "database.path",
		},
		{
			name:    "inverted port range",
			content: "database:\n  path: x.db\nserver:\n  port_range_min: 5000\n  port_range_max: 4000\n",
			wantErr: "port_range_max",
		},
		{
			name:    "unknown secret driver",
			content: "database:\n  path: x.db\nsecret_store:\n  driver: vault\n",
			wantErr: "secret_store.driver",
		},
		{
			name:    "file driver without passphrase",
			content: "database:\n  path: x.db\nsecret_store:\n  driver: file\n  file_path: t.enc\n",
			wantErr: "passphrase",
		},
		{
			name:    "fallback without file path",
			content: "database:\n  path: x.db\nsecret_store:\n  driver: auto\n  fallback_enabled: true\n",
			wantErr: "file_path",
		},
		{
			name:    "bad duration",
			content: "database:\n  path: x.db\nrate_limit:\n  duration: \"soon\"\n",
			wantErr: "rate_limit.duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() on missing file succeeded, want error")
	}
}
