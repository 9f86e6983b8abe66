package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `launchflow:
  name: "TestApp"
  version: "1.0"
api:
  base_url: "https://backend.example.com/api"
  timeout: 5s
stream:
  transport: sse
  reconnect_delay: 100ms
  max_reconnect_attempts: 2
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Launchflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Launchflow.Name)
	}
	if cfg.API.Timeout.Duration() != 5*time.Second {
		t.Errorf("unexpected timeout: %v", cfg.API.Timeout.Duration())
	}
	if cfg.Stream.ReconnectDelay.Duration() != 100*time.Millisecond {
		t.Errorf("unexpected reconnect delay: %v", cfg.Stream.ReconnectDelay.Duration())
	}
	if cfg.Stream.MaxReconnectAttempts != 2 {
		t.Errorf("unexpected max attempts: %d", cfg.Stream.MaxReconnectAttempts)
	}
	if !cfg.Stream.AutoReconnectEnabled() {
		t.Errorf("auto reconnect should default to enabled")
	}
	if cfg.StreamBaseURL() != "https://backend.example.com/api" {
		t.Errorf("stream base url should fall back to api base url, got %s", cfg.StreamBaseURL())
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	content := `launchflow:
  name: "TestApp"
  version: "1.0"
api:
  base_url: "https://backend.example.com/api"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Stream.ReconnectDelay.Duration() != 3*time.Second {
		t.Errorf("expected default reconnect delay 3s, got %v", cfg.Stream.ReconnectDelay.Duration())
	}
	if cfg.Stream.MaxReconnectAttempts != 10 {
		t.Errorf("expected default max attempts 10, got %d", cfg.Stream.MaxReconnectAttempts)
	}
	if cfg.Stream.Transport != "sse" {
		t.Errorf("expected default transport sse, got %s", cfg.Stream.Transport)
	}
	if cfg.API.RateLimit.RequestsPerSecond != 5 {
		t.Errorf("expected default rate limit 5, got %d", cfg.API.RateLimit.RequestsPerSecond)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	t.Setenv("LAUNCHFLOW_API_URL", "https://other.example.com")
	t.Setenv("LAUNCHFLOW_WALLET", "SomeWallet")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.API.BaseURL != "https://other.example.com" {
		t.Errorf("env override not applied: %s", cfg.API.BaseURL)
	}
	if cfg.Auth.Wallet != "SomeWallet" {
		t.Errorf("wallet override not applied: %s", cfg.Auth.Wallet)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	cases := map[string]string{
		"missing name": `launchflow:
  version: "1.0"
api:
  base_url: "https://backend.example.com"
`,
		"bad url": `launchflow:
  name: "TestApp"
  version: "1.0"
api:
  base_url: "not-a-url"
`,
		"bad transport": `launchflow:
  name: "TestApp"
  version: "1.0"
api:
  base_url: "https://backend.example.com"
stream:
  transport: carrier-pigeon
`,
	}

	for name, content := range cases {
		f, err := os.CreateTemp("", "cfg-*.yml")
		if err != nil {
			t.Fatalf("%s: create temp file: %v", name, err)
		}
		if _, err := f.WriteString(content); err != nil {
			t.Fatalf("%s: write temp file: %v", name, err)
		}
		f.Close()

		if _, err := LoadConfig(f.Name()); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
		os.Remove(f.Name())
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if env := AppEnvironment(); env != EnvironmentProduction {
		t.Fatalf("expected production, got %s", env)
	}
	if !IsProductionLike(EnvironmentStaging) {
		t.Fatal("staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Fatal("development should not be production-like")
	}
}
