package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Launchflow LaunchflowConfig `yaml:"launchflow"`
	API        APIConfig        `yaml:"api"`
	Stream     StreamConfig     `yaml:"stream"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type LaunchflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type APIConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        Duration             `yaml:"timeout"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	MaxConnsPerHost int      `yaml:"max_conns_per_host"`
	IdleConnTimeout Duration `yaml:"idle_conn_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type StreamConfig struct {
	BaseURL              string   `yaml:"base_url"`
	Transport            string   `yaml:"transport"`
	AutoReconnect        *bool    `yaml:"auto_reconnect"`
	ReconnectDelay       Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
}

type AuthConfig struct {
	KeypairPath string `yaml:"keypair_path"`
	Wallet      string `yaml:"wallet"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Duration decodes yaml durations given either as Go duration strings
// ("3s", "500ms") or as integer milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration '%s': %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ms int64
	if err := value.Decode(&ms); err != nil {
		return fmt.Errorf("invalid duration value at line %d", value.Line)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// AutoReconnectEnabled resolves the tri-state yaml flag; absent means enabled.
func (s StreamConfig) AutoReconnectEnabled() bool {
	if s.AutoReconnect == nil {
		return true
	}
	return *s.AutoReconnect
}

// StreamBaseURL falls back to the API base URL when no dedicated stream
// endpoint is configured.
func (c *Config) StreamBaseURL() string {
	if c.Stream.BaseURL != "" {
		return c.Stream.BaseURL
	}
	return c.API.BaseURL
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		API: APIConfig{
			Timeout: Duration(15 * time.Second),
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				BurstSize:         10,
			},
		},
		Stream: StreamConfig{
			Transport:            "sse",
			ReconnectDelay:       Duration(3 * time.Second),
			MaxReconnectAttempts: 10,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override settings from environment variables if available
	if v := os.Getenv("LAUNCHFLOW_API_URL"); v != "" {
		config.API.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("LAUNCHFLOW_STREAM_URL"); v != "" {
		config.Stream.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("LAUNCHFLOW_KEYPAIR"); v != "" {
		config.Auth.KeypairPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("LAUNCHFLOW_WALLET"); v != "" {
		config.Auth.Wallet = strings.TrimSpace(v)
	}

	config.API.BaseURL = strings.TrimRight(strings.TrimSpace(config.API.BaseURL), "/")
	config.Stream.BaseURL = strings.TrimRight(strings.TrimSpace(config.Stream.BaseURL), "/")

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Launchflow.Name == "" {
		return fmt.Errorf("launchflow.name is required")
	}

	if cfg.Launchflow.Version == "" {
		return fmt.Errorf("launchflow.version is required")
	}

	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if !isValidHTTPURL(cfg.API.BaseURL) {
		return fmt.Errorf("api.base_url '%s' is invalid", cfg.API.BaseURL)
	}
	if cfg.Stream.BaseURL != "" && !isValidHTTPURL(cfg.Stream.BaseURL) {
		return fmt.Errorf("stream.base_url '%s' is invalid", cfg.Stream.BaseURL)
	}

	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be greater than 0")
	}
	if cfg.API.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("api.rate_limit.requests_per_second must be greater than 0")
	}
	if cfg.API.RateLimit.BurstSize <= 0 {
		return fmt.Errorf("api.rate_limit.burst_size must be greater than 0")
	}

	switch cfg.Stream.Transport {
	case "sse", "websocket":
	default:
		return fmt.Errorf("stream.transport must be 'sse' or 'websocket', got '%s'", cfg.Stream.Transport)
	}
	if cfg.Stream.ReconnectDelay <= 0 {
		return fmt.Errorf("stream.reconnect_delay must be greater than 0")
	}
	if cfg.Stream.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("stream.max_reconnect_attempts must be greater than 0")
	}

	return nil
}

func isValidHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
