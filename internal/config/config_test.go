package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `
schema_version: 1
isolarcloud:
  app_key_file: /run/secrets/appkey
  access_key_file: /run/secrets/access_key
  bootstrap_file: /run/secrets/bootstrap.json
  plant_ids: ["1234567"]
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Core.GRPCAddr != DefaultGRPCAddr || cfg.Core.HTTPAddr != DefaultHTTPAddr {
		t.Fatalf("unexpected listen addrs: %+v", cfg.Core)
	}
	if cfg.Core.LogLevel != DefaultLogLevel {
		t.Fatalf("unexpected log level: %s", cfg.Core.LogLevel)
	}
	if cfg.OAuth.RefreshEnabled == nil || !*cfg.OAuth.RefreshEnabled {
		t.Fatalf("expected refresh enabled by default")
	}
	if cfg.ISolarCloud.PollIntervalSeconds != DefaultPollIntervalSeconds {
		t.Fatalf("unexpected poll interval: %d", cfg.ISolarCloud.PollIntervalSeconds)
	}
	if cfg.OAuth.BlobConfigured() {
		t.Fatalf("blob mirror should be off without an endpoint")
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("SOLARCLOUD_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("SOLARCLOUD_PLANT_IDS", " 1, 2 ,,3")
	t.Setenv("SOLARCLOUD_POLL_INTERVAL_SECONDS", "60")

	cfg, err := Parse([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Core.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("unexpected http addr: %s", cfg.Core.HTTPAddr)
	}
	if strings.Join(cfg.ISolarCloud.PlantIDs, "|") != "1|2|3" {
		t.Fatalf("unexpected plant ids: %v", cfg.ISolarCloud.PlantIDs)
	}
	if cfg.ISolarCloud.PollIntervalSeconds != 60 {
		t.Fatalf("unexpected poll interval: %d", cfg.ISolarCloud.PollIntervalSeconds)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"schema":   "schema_version: 2\n",
		"appkey":   "schema_version: 1\nisolarcloud:\n  access_key_file: a\n  bootstrap_file: b\n",
		"blob":     "schema_version: 1\noauth:\n  blob_endpoint: https://s3.local\n",
		"mqtt qos": "schema_version: 1\nsinks:\n  mqtt:\n    broker: tcp://localhost:1883\n    qos: 3\n",
		"kafka":    "schema_version: 1\nsinks:\n  kafka:\n    topic: readings\n",
		"loglevel": "schema_version: 1\ncore:\n  log_level: verbose\n",
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadAndProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimalConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !EnabledPlugins(cfg)["isolarcloud"] {
		t.Fatalf("expected isolarcloud enabled")
	}
	bootstrap, err := BootstrapPathForProvider(cfg, "isolarcloud")
	if err != nil || bootstrap != "/run/secrets/bootstrap.json" {
		t.Fatalf("unexpected bootstrap path %q: %v", bootstrap, err)
	}
	if _, err := BootstrapPathForProvider(cfg, "tado"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestReadSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appkey")
	if err := os.WriteFile(path, []byte("  key-123\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	value, err := ReadSecret(path)
	if err != nil || value != "key-123" {
		t.Fatalf("ReadSecret = %q, %v", value, err)
	}

	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSecret(empty); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty secret error, got %v", err)
	}
}

func TestOAuthRefreshInterval(t *testing.T) {
	var unset *OAuthConfig
	if got := unset.RefreshInterval(); got != 10*time.Minute {
		t.Fatalf("nil config interval = %s", got)
	}
	disabled := false
	if got := (&OAuthConfig{RefreshEnabled: &disabled, RefreshIntervalSeconds: 90}).RefreshInterval(); got != 0 {
		t.Fatalf("disabled interval = %s", got)
	}
	cases := map[int]time.Duration{
		0:  10 * time.Minute,
		5:  30 * time.Second,
		90: 90 * time.Second,
	}
	for seconds, want := range cases {
		if got := (&OAuthConfig{RefreshIntervalSeconds: seconds}).RefreshInterval(); got != want {
			t.Fatalf("interval for %ds = %s, want %s", seconds, got, want)
		}
	}
}
