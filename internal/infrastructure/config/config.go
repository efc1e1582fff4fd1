// Package config loads the broadcaster configuration from an optional YAML
// file, applies environment overrides and validates the result.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"go-message-broadcaster/internal/infrastructure/logger"
)

// Default values for the broadcaster configuration.
const (
	DefaultPort            = 3000
	DefaultReadTimeout     = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 5 * time.Second

	DefaultSendBuffer   = 256
	DefaultWriteTimeout = 10 * time.Second
	DefaultPongTimeout  = 60 * time.Second
	DefaultSSEKeepAlive = 30 * time.Second

	DefaultMetricsPath = "/metrics"
)

// Config is the root of config.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Hub     HubConfig     `yaml:"hub"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Port is the TCP port the page, the WebSocket endpoint and the API share.
	Port int `yaml:"port"`

	// StaticDir serves the client bundle from disk instead of the embedded copy.
	StaticDir string `yaml:"static_dir"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address for Port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// HubConfig tunes per-connection behaviour of the broadcast hub.
type HubConfig struct {
	// SendBuffer is the outgoing queue depth of every connection. A connection
	// whose queue is full when a broadcast arrives is dropped.
	SendBuffer int `yaml:"send_buffer"`

	WriteTimeout time.Duration `yaml:"write_timeout"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`

	// PingInterval defaults to 9/10 of PongTimeout.
	PingInterval time.Duration `yaml:"ping_interval"`

	// MaxMessageSize caps inbound WebSocket frames in bytes. Zero means no limit.
	MaxMessageSize int64 `yaml:"max_message_size"`

	SSEKeepAlive time.Duration `yaml:"sse_keepalive"`
}

// LogConfig mirrors logger.Config with a textual level.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// LoggerConfig converts the section into a logger.Config carrying the default
// container fields.
func (l LogConfig) LoggerConfig() (*logger.Config, error) {
	level, err := logger.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	cfg := logger.NewDefaultConfig()
	cfg.Level = level
	if l.Format != "" {
		cfg.Format = l.Format
	}
	if l.Output != "" {
		cfg.Output = l.Output
	}
	cfg.FilePath = l.FilePath
	if l.MaxSize > 0 {
		cfg.MaxSize = l.MaxSize
	}
	if l.MaxBackups > 0 {
		cfg.MaxBackups = l.MaxBackups
	}
	if l.MaxAge > 0 {
		cfg.MaxAge = l.MaxAge
	}
	cfg.Compress = l.Compress
	return cfg, nil
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.Hub.PingInterval == 0 {
		cfg.Hub.PingInterval = cfg.Hub.PongTimeout * 9 / 10
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Hub: HubConfig{
			SendBuffer:   DefaultSendBuffer,
			WriteTimeout: DefaultWriteTimeout,
			PongTimeout:  DefaultPongTimeout,
			SSEKeepAlive: DefaultSSEKeepAlive,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q is not a number", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.Server.StaticDir = v
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port)
	}
	if cfg.Server.StaticDir != "" {
		info, err := os.Stat(cfg.Server.StaticDir)
		if err != nil {
			return fmt.Errorf("server.static_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("server.static_dir %q is not a directory", cfg.Server.StaticDir)
		}
	}
	if cfg.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive")
	}
	if cfg.Hub.WriteTimeout <= 0 || cfg.Hub.PongTimeout <= 0 || cfg.Hub.SSEKeepAlive <= 0 {
		return fmt.Errorf("hub timeouts must be positive")
	}
	if cfg.Hub.PingInterval <= 0 || cfg.Hub.PingInterval >= cfg.Hub.PongTimeout {
		return fmt.Errorf("hub.ping_interval %s must be positive and below hub.pong_timeout %s",
			cfg.Hub.PingInterval, cfg.Hub.PongTimeout)
	}
	if cfg.Hub.MaxMessageSize < 0 {
		return fmt.Errorf("hub.max_message_size must not be negative")
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "console", "text", "json":
	default:
		return fmt.Errorf("log.format %q unknown: want console|text|json", cfg.Log.Format)
	}
	switch cfg.Log.Output {
	case "stdout", "stderr", "discard":
	case "file":
		if cfg.Log.FilePath == "" {
			return fmt.Errorf("log.file_path is required when log.output is file")
		}
	default:
		return fmt.Errorf("log.output %q unknown: want stdout|stderr|file|discard", cfg.Log.Output)
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Path == "" || cfg.Metrics.Path[0] != '/') {
		return fmt.Errorf("metrics.path %q must start with /", cfg.Metrics.Path)
	}
	return nil
}
