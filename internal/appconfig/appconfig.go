// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultServerURL is the address kolosal-server listens on out of the box.
	DefaultServerURL = "http://localhost:8080"
	// DefaultPort is the port kolosal-server uses when none is configured.
	DefaultPort = 8080
	// DefaultServerConfigYAML is the server config file updated after an engine is registered.
	DefaultServerConfigYAML = "config.yaml"
	// EnvPrefix is the prefix for environment overrides (KOLOSAL_SERVER_API_KEY, ...).
	EnvPrefix = "KOLOSAL"

	defaultRequestTimeout = 30 * time.Second
	defaultReadyTimeout   = 30 * time.Second
	defaultPollInterval   = 1 * time.Second
	defaultMonitorTimeout = 30 * time.Minute
	defaultMaxNewTokens   = 2048
	defaultTemperature    = 0.7
	defaultTopP           = 0.9
)

// Config represents the top-level application configuration.
type Config struct {
	Server     Server   `mapstructure:"server"`
	Download   Download `mapstructure:"download"`
	Chat       Chat     `mapstructure:"chat"`
	Log        Log      `mapstructure:"log"`
	Metrics    Metrics  `mapstructure:"metrics"`
	Debug      bool     `mapstructure:"debug"`
	ConfigPath string   `mapstructure:"-"`
}

// Server describes how to reach, and if necessary launch, kolosal-server.
type Server struct {
	URL                 string `mapstructure:"url"`
	APIKey              string `mapstructure:"api_key"`
	Path                string `mapstructure:"path"`
	Port                int    `mapstructure:"port"`
	TimeoutSeconds      int    `mapstructure:"timeout"`
	InsecureSkipVerify  *bool  `mapstructure:"insecure_skip_verify"`
	LogFile             string `mapstructure:"log_file"`
	ReadyTimeoutSeconds int    `mapstructure:"ready_timeout"`
	ConfigYAML          string `mapstructure:"config_yaml"`
}

// Download controls progress polling.
type Download struct {
	IntervalMillis int `mapstructure:"interval_ms"`
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
}

// Chat holds generation settings for chat completions.
type Chat struct {
	Provider     string   `mapstructure:"provider"`
	MaxNewTokens int      `mapstructure:"max_new_tokens"`
	Temperature  *float64 `mapstructure:"temperature"`
	TopP         *float64 `mapstructure:"top_p"`
	NoStream     bool     `mapstructure:"no_stream"`
}

// Log configures the client's own log output.
type Log struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// Metrics configures the optional prometheus endpoint.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	insecure := true
	temp := defaultTemperature
	topP := defaultTopP
	return Config{
		Server: Server{
			URL:                 DefaultServerURL,
			Port:                DefaultPort,
			TimeoutSeconds:      int(defaultRequestTimeout.Seconds()),
			InsecureSkipVerify:  &insecure,
			ReadyTimeoutSeconds: int(defaultReadyTimeout.Seconds()),
			ConfigYAML:          DefaultServerConfigYAML,
		},
		Download: Download{
			IntervalMillis: int(defaultPollInterval.Milliseconds()),
			TimeoutMinutes: int(defaultMonitorTimeout.Minutes()),
		},
		Chat: Chat{
			Provider:     "kolosal",
			MaxNewTokens: defaultMaxNewTokens,
			Temperature:  &temp,
			TopP:         &topP,
		},
		Log: Log{Level: "info"},
	}
}

// BaseURL returns the server URL without a trailing slash.
func (c Config) BaseURL() string {
	u := strings.TrimSpace(c.Server.URL)
	if u == "" {
		u = DefaultServerURL
	}
	return strings.TrimRight(u, "/")
}

// WithPort returns a copy of c that targets port: both Server.Port and the port in the
// server URL are replaced, so health checks reach the server that will be started.
func (c Config) WithPort(port int) (Config, error) {
	if port <= 0 || port > 65535 {
		return c, fmt.Errorf("invalid server port %d", port)
	}
	u, err := url.Parse(c.BaseURL())
	if err != nil || u.Host == "" {
		return c, fmt.Errorf("cannot set port on server url %q", c.BaseURL())
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	c.Server.URL = u.String()
	c.Server.Port = port
	return c, nil
}

// RequestTimeout returns the timeout duration for HTTP requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.Server.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// ReadyTimeout returns how long to wait for a freshly started server to report healthy.
func (c Config) ReadyTimeout() time.Duration {
	if c.Server.ReadyTimeoutSeconds <= 0 {
		return defaultReadyTimeout
	}
	return time.Duration(c.Server.ReadyTimeoutSeconds) * time.Second
}

// PollInterval returns the delay between download progress polls.
func (c Config) PollInterval() time.Duration {
	if c.Download.IntervalMillis <= 0 {
		return defaultPollInterval
	}
	return time.Duration(c.Download.IntervalMillis) * time.Millisecond
}

// MonitorTimeout returns the overall deadline for a single download.
func (c Config) MonitorTimeout() time.Duration {
	if c.Download.TimeoutMinutes <= 0 {
		return defaultMonitorTimeout
	}
	return time.Duration(c.Download.TimeoutMinutes) * time.Minute
}

// InsecureTLS reports whether certificate verification is skipped. Unset means true.
func (c Config) InsecureTLS() bool {
	if c.Server.InsecureSkipVerify == nil {
		return true
	}
	return *c.Server.InsecureSkipVerify
}

// ServerPort returns the configured port, or DefaultPort.
func (c Config) ServerPort() int {
	if c.Server.Port <= 0 {
		return DefaultPort
	}
	return c.Server.Port
}

// ServerLogPath returns where a spawned server's output is written.
func (c Config) ServerLogPath() string {
	if p := strings.TrimSpace(c.Server.LogFile); p != "" {
		return p
	}
	return filepath.Join(os.TempDir(), "kolosal-server.log")
}

// ServerConfigYAML returns the server config file the persister edits.
func (c Config) ServerConfigYAML() string {
	if p := strings.TrimSpace(c.Server.ConfigYAML); p != "" {
		return p
	}
	return DefaultServerConfigYAML
}

// LogFilePath returns the path to the application log file. Empty disables file logging.
func (c Config) LogFilePath() string {
	return strings.TrimSpace(c.Log.File)
}

// LogLevel returns the configured level, forcing debug when Debug is set.
func (c Config) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	if lvl := strings.TrimSpace(c.Log.Level); lvl != "" {
		return strings.ToLower(lvl)
	}
	return "info"
}

// ChatProvider returns the configured chat backend name.
func (c Config) ChatProvider() string {
	if p := strings.ToLower(strings.TrimSpace(c.Chat.Provider)); p != "" {
		return p
	}
	return "kolosal"
}

// MaxNewTokens returns the generation length cap.
func (c Config) MaxNewTokens() int {
	if c.Chat.MaxNewTokens <= 0 {
		return defaultMaxNewTokens
	}
	return c.Chat.MaxNewTokens
}

// Temperature returns the sampling temperature.
func (c Config) Temperature() float64 {
	if c.Chat.Temperature == nil {
		return defaultTemperature
	}
	return *c.Chat.Temperature
}

// TopP returns the nucleus sampling threshold.
func (c Config) TopP() float64 {
	if c.Chat.TopP == nil {
		return defaultTopP
	}
	return *c.Chat.TopP
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	switch c.ChatProvider() {
	case "kolosal", "openai":
	default:
		return fmt.Errorf("invalid configuration: unknown chat provider %q", c.Chat.Provider)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid configuration: port %d out of range", c.Server.Port)
	}
	return nil
}

// LoadDotEnv loads environment overrides from the given .env files. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
