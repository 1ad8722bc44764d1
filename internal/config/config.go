package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/blobget/internal/progress"
)

// Error scopes accepted by ErrorScope.
const (
	ScopeSession = "session"
	ScopeShared  = "shared"
)

// Config defines configuration for the blobget CLI.
type Config struct {
	Address       string        `yaml:"address"`
	QueueCapacity int           `yaml:"queue_capacity"`
	Workers       int           `yaml:"workers"`
	Progress      bool          `yaml:"progress"`
	ErrorScope    string        `yaml:"error_scope"`
	LogVerbosity  int           `yaml:"log_verbosity"`
	Connect       ConnectConfig `yaml:"connect"`
	Server        ServerConfig  `yaml:"server"`
}

// ConnectConfig defines how the client reaches the blob service.
type ConnectConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// ServerConfig defines the reference blob server.
type ServerConfig struct {
	Listen         string `yaml:"listen"`
	Bucket         string `yaml:"bucket"`
	ChunkSize      int64  `yaml:"chunk_size"`
	VerifyChecksum bool   `yaml:"verify_checksum"`
	MetricsListen  string `yaml:"metrics_listen"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		QueueCapacity: 100,
		Workers:       4,
		ErrorScope:    ScopeSession,
		LogVerbosity:  0,
		Connect: ConnectConfig{
			Timeout:    10 * time.Second,
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Server: ServerConfig{
			Listen:    ":50053",
			ChunkSize: 1024 * 1024, // 1MiB
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	Address       string            `yaml:"address"`
	QueueCapacity int               `yaml:"queue_capacity"`
	Workers       int               `yaml:"workers"`
	Progress      bool              `yaml:"progress"`
	ErrorScope    string            `yaml:"error_scope"`
	LogVerbosity  int               `yaml:"log_verbosity"`
	Connect       yamlConnectConfig `yaml:"connect"`
	Server        yamlServerConfig  `yaml:"server"`
}

type yamlConnectConfig struct {
	Timeout    string `yaml:"timeout"`
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

type yamlServerConfig struct {
	Listen         string `yaml:"listen"`
	Bucket         string `yaml:"bucket"`
	ChunkSize      string `yaml:"chunk_size"`
	VerifyChecksum bool   `yaml:"verify_checksum"`
	MetricsListen  string `yaml:"metrics_listen"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Address != "" {
		cfg.Address = yc.Address
	}
	if yc.QueueCapacity != 0 {
		cfg.QueueCapacity = yc.QueueCapacity
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	cfg.Progress = yc.Progress
	if yc.ErrorScope != "" {
		cfg.ErrorScope = yc.ErrorScope
	}
	if yc.LogVerbosity != 0 {
		cfg.LogVerbosity = yc.LogVerbosity
	}

	if err := parseDuration(yc.Connect.Timeout, "connect.timeout", &cfg.Connect.Timeout); err != nil {
		return Config{}, err
	}
	if yc.Connect.Attempts != 0 {
		cfg.Connect.Attempts = yc.Connect.Attempts
	}
	if err := parseDuration(yc.Connect.Backoff, "connect.backoff", &cfg.Connect.Backoff); err != nil {
		return Config{}, err
	}
	if err := parseDuration(yc.Connect.MaxBackoff, "connect.max_backoff", &cfg.Connect.MaxBackoff); err != nil {
		return Config{}, err
	}

	if yc.Server.Listen != "" {
		cfg.Server.Listen = yc.Server.Listen
	}
	if yc.Server.Bucket != "" {
		cfg.Server.Bucket = yc.Server.Bucket
	}
	if yc.Server.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.Server.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse server.chunk_size: %w", err)
		}
		cfg.Server.ChunkSize = size
	}
	cfg.Server.VerifyChecksum = yc.Server.VerifyChecksum
	if yc.Server.MetricsListen != "" {
		cfg.Server.MetricsListen = yc.Server.MetricsListen
	}

	return cfg, nil
}

func parseDuration(s, name string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}

// LoadDotEnv loads environment variables from a .env file if it exists.
// Variables already set in the environment are not overridden.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the BLOBGET_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("BLOBGET_ADDRESS"); v != "" {
		c.Address = v
	}
	if err := envInt("BLOBGET_QUEUE_CAPACITY", &c.QueueCapacity); err != nil {
		return err
	}
	if err := envInt("BLOBGET_WORKERS", &c.Workers); err != nil {
		return err
	}
	if v := os.Getenv("BLOBGET_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("BLOBGET_ERROR_SCOPE"); v != "" {
		c.ErrorScope = v
	}
	if err := envInt("BLOBGET_LOG_VERBOSITY", &c.LogVerbosity); err != nil {
		return err
	}

	if err := envDuration("BLOBGET_CONNECT_TIMEOUT", &c.Connect.Timeout); err != nil {
		return err
	}
	if err := envInt("BLOBGET_CONNECT_ATTEMPTS", &c.Connect.Attempts); err != nil {
		return err
	}
	if err := envDuration("BLOBGET_CONNECT_BACKOFF", &c.Connect.Backoff); err != nil {
		return err
	}
	if err := envDuration("BLOBGET_CONNECT_MAX_BACKOFF", &c.Connect.MaxBackoff); err != nil {
		return err
	}

	if v := os.Getenv("BLOBGET_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("BLOBGET_BUCKET"); v != "" {
		c.Server.Bucket = v
	}
	if v := os.Getenv("BLOBGET_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse BLOBGET_CHUNK_SIZE: %w", err)
		}
		c.Server.ChunkSize = size
	}
	if v := os.Getenv("BLOBGET_VERIFY_CHECKSUM"); v != "" {
		c.Server.VerifyChecksum = v == "true" || v == "1"
	}
	if v := os.Getenv("BLOBGET_METRICS_LISTEN"); v != "" {
		c.Server.MetricsListen = v
	}

	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = n
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}

// Validate validates the client side of the configuration.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("config: address is required")
	}
	if c.QueueCapacity <= 0 {
		return errors.New("config: queue_capacity must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.ErrorScope != ScopeSession && c.ErrorScope != ScopeShared {
		return fmt.Errorf("config: error_scope must be %q or %q, got %q", ScopeSession, ScopeShared, c.ErrorScope)
	}
	if c.Connect.Timeout <= 0 {
		return errors.New("config: connect.timeout must be positive")
	}
	if c.Connect.Attempts < 0 {
		return errors.New("config: connect.attempts must not be negative")
	}
	return nil
}

// ValidateServer validates the server side of the configuration.
func (c *Config) ValidateServer() error {
	if c.Server.Listen == "" {
		return errors.New("config: server.listen is required")
	}
	if c.Server.Bucket == "" {
		return errors.New("config: server.bucket is required")
	}
	if c.Server.ChunkSize <= 0 {
		return errors.New("config: server.chunk_size must be positive")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Address != "" {
		c.Address = override.Address
	}
	if override.QueueCapacity != 0 {
		c.QueueCapacity = override.QueueCapacity
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.ErrorScope != "" {
		c.ErrorScope = override.ErrorScope
	}
	if override.LogVerbosity != 0 {
		c.LogVerbosity = override.LogVerbosity
	}
	if override.Connect.Timeout != 0 {
		c.Connect.Timeout = override.Connect.Timeout
	}
	if override.Connect.Attempts != 0 {
		c.Connect.Attempts = override.Connect.Attempts
	}
	if override.Connect.Backoff != 0 {
		c.Connect.Backoff = override.Connect.Backoff
	}
	if override.Connect.MaxBackoff != 0 {
		c.Connect.MaxBackoff = override.Connect.MaxBackoff
	}
	if override.Server.Listen != "" {
		c.Server.Listen = override.Server.Listen
	}
	if override.Server.Bucket != "" {
		c.Server.Bucket = override.Server.Bucket
	}
	if override.Server.ChunkSize != 0 {
		c.Server.ChunkSize = override.Server.ChunkSize
	}
	if override.Server.VerifyChecksum {
		c.Server.VerifyChecksum = override.Server.VerifyChecksum
	}
	if override.Server.MetricsListen != "" {
		c.Server.MetricsListen = override.Server.MetricsListen
	}
	return c
}
