// internal/appconfig/appconfig_test.go
package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// TestDefaults verifies that a zero Config falls back to the documented defaults for
// every accessor, so callers never have to special-case missing settings.
func TestDefaults(t *testing.T) {
	var cfg Config

	if got := cfg.BaseURL(); got != DefaultServerURL {
		t.Fatalf("BaseURL = %q, want %q", got, DefaultServerURL)
	}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Fatalf("RequestTimeout = %v, want 30s", got)
	}
	if got := cfg.ReadyTimeout(); got != 30*time.Second {
		t.Fatalf("ReadyTimeout = %v, want 30s", got)
	}
	if got := cfg.PollInterval(); got != time.Second {
		t.Fatalf("PollInterval = %v, want 1s", got)
	}
	if got := cfg.MonitorTimeout(); got != 30*time.Minute {
		t.Fatalf("MonitorTimeout = %v, want 30m", got)
	}
	if !cfg.InsecureTLS() {
		t.Fatalf("InsecureTLS should default to true")
	}
	if got := cfg.ServerPort(); got != DefaultPort {
		t.Fatalf("ServerPort = %d, want %d", got, DefaultPort)
	}
	if got := cfg.ServerLogPath(); !strings.HasSuffix(got, "kolosal-server.log") {
		t.Fatalf("ServerLogPath = %q", got)
	}
	if got := cfg.MaxNewTokens(); got != 2048 {
		t.Fatalf("MaxNewTokens = %d, want 2048", got)
	}
	if got := cfg.Temperature(); got != 0.7 {
		t.Fatalf("Temperature = %v, want 0.7", got)
	}
	if got := cfg.TopP(); got != 0.9 {
		t.Fatalf("TopP = %v, want 0.9", got)
	}
	if got := cfg.ChatProvider(); got != "kolosal" {
		t.Fatalf("ChatProvider = %q", got)
	}
}

// TestBaseURLTrimsSlash verifies that the base URL has no trailing slash.
func TestBaseURLTrimsSlash(t *testing.T) {
	cfg := Config{Server: Server{URL: "http://127.0.0.1:9000/"}}
	if got := cfg.BaseURL(); got != "http://127.0.0.1:9000" {
		t.Fatalf("BaseURL = %q", got)
	}
}

// TestLogLevelDebugOverride verifies that the debug flag forces the debug level.
func TestLogLevelDebugOverride(t *testing.T) {
	cfg := Config{Log: Log{Level: "WARN"}}
	if got := cfg.LogLevel(); got != "warn" {
		t.Fatalf("LogLevel = %q, want warn", got)
	}
	cfg.Debug = true
	if got := cfg.LogLevel(); got != "debug" {
		t.Fatalf("LogLevel with debug = %q", got)
	}
}

// TestValidate verifies that unknown providers and out of range ports are rejected.
func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.Chat.Provider = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	cfg = Default()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for out of range port")
	}
}

// TestFromViper loads a YAML file through viper, layers an environment override on top,
// and checks that both end up in the decoded Config.
func TestFromViper(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kolosalctl.yaml")
	payload := `
server:
  url: http://10.0.0.5:8080
  timeout: 12
  insecure_skip_verify: false
download:
  interval_ms: 250
chat:
  temperature: 0.2
`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KOLOSAL_SERVER_API_KEY", "secret-key")

	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	if cfg.BaseURL() != "http://10.0.0.5:8080" {
		t.Fatalf("BaseURL = %q", cfg.BaseURL())
	}
	if cfg.RequestTimeout() != 12*time.Second {
		t.Fatalf("RequestTimeout = %v", cfg.RequestTimeout())
	}
	if cfg.InsecureTLS() {
		t.Fatalf("expected TLS verification to be enabled")
	}
	if cfg.PollInterval() != 250*time.Millisecond {
		t.Fatalf("PollInterval = %v", cfg.PollInterval())
	}
	if cfg.Temperature() != 0.2 {
		t.Fatalf("Temperature = %v", cfg.Temperature())
	}
	if cfg.TopP() != 0.9 {
		t.Fatalf("TopP default lost: %v", cfg.TopP())
	}
	if cfg.Server.APIKey != "secret-key" {
		t.Fatalf("APIKey from env = %q", cfg.Server.APIKey)
	}
	if cfg.ConfigPath != path {
		t.Fatalf("ConfigPath = %q", cfg.ConfigPath)
	}
}

// TestLoadDotEnv verifies that missing env files are skipped and values from an existing one are loaded.
func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("KOLOSAL_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("KOLOSAL_TEST_DOTENV", "")
	os.Unsetenv("KOLOSAL_TEST_DOTENV")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("KOLOSAL_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("env = %q, want from-file", got)
	}
}

// TestShowConfigMasksKey verifies that the rendered config masks the API key.
func TestShowConfigMasksKey(t *testing.T) {
	cfg := Default()
	cfg.Server.APIKey = "abcdef123456"
	var buf bytes.Buffer
	ShowConfig(&buf, "cfg.yaml", &cfg)
	out := buf.String()
	if strings.Contains(out, "abcdef123456") {
		t.Fatalf("api key leaked: %s", out)
	}
	if !strings.Contains(out, "ab****56") {
		t.Fatalf("expected masked key, got: %s", out)
	}
	if !strings.Contains(out, "Config file: cfg.yaml") {
		t.Fatalf("missing config file line: %s", out)
	}
}

// TestWithPortRewritesURL verifies that overriding the port moves both the spawn port and
// the URL used for health checks, and that out of range ports are rejected.
func TestWithPortRewritesURL(t *testing.T) {
	cfg := Default()
	cfg.Server.URL = "http://127.0.0.1:8080/"

	got, err := cfg.WithPort(9091)
	if err != nil {
		t.Fatalf("WithPort: %v", err)
	}
	if got.BaseURL() != "http://127.0.0.1:9091" {
		t.Fatalf("BaseURL = %q, want http://127.0.0.1:9091", got.BaseURL())
	}
	if got.ServerPort() != 9091 {
		t.Fatalf("ServerPort = %d, want 9091", got.ServerPort())
	}
	if cfg.BaseURL() != "http://127.0.0.1:8080" {
		t.Fatalf("original config was modified: %q", cfg.BaseURL())
	}

	cfg.Server.URL = "http://localhost"
	if got, _ := cfg.WithPort(7000); got.BaseURL() != "http://localhost:7000" {
		t.Fatalf("BaseURL = %q, want http://localhost:7000", got.BaseURL())
	}

	for _, port := range []int{-1, 0, 70000} {
		if _, err := cfg.WithPort(port); err == nil {
			t.Fatalf("WithPort(%d) should fail", port)
		}
	}
}
