package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	defaultListen      = "127.0.0.1:8766"
	defaultEndpoint    = "ws://localhost:8765"
	defaultLogLevel    = LogLevelInfo
	defaultMaxRetries  = 5
	defaultBackoffBase = time.Second
	defaultDedupWindow = 30 * time.Second

	envListen   = "FETCHBRIDGE_LISTEN"
	envEndpoint = "FETCHBRIDGE_ENDPOINT"
	envRedisURL = "FETCHBRIDGE_REDIS_URL"
	envLogLevel = "FETCHBRIDGE_LOG_LEVEL"
	envCapture  = "FETCHBRIDGE_CAPTURE"
)

// Duration wraps time.Duration so values like "5s" work in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("cannot parse duration %q: %w", raw, err)
	}

	*d = Duration(v)

	return nil
}

func (d Duration) Value() time.Duration {
	return time.Duration(d)
}

type ConnectionConfig struct {
	Endpoint    string   `yaml:"endpoint"`
	MaxRetries  int      `yaml:"max_retries"`
	BackoffBase Duration `yaml:"backoff_base"`
}

type CaptureConfig struct {
	// Enabled is a pointer so an absent key means "default on" while an
	// explicit enabled: false still turns capture off.
	Enabled       *bool    `yaml:"enabled"`
	UserAgent     string   `yaml:"user_agent"`
	DedupWindow   Duration `yaml:"dedup_window"`
	DownloadTypes []string `yaml:"download_types"`
	MediaMarkers  []string `yaml:"media_markers"`
}

// CaptureEnabled resolves the capture flag, on unless explicitly
// disabled.
func (c *CaptureConfig) CaptureEnabled() bool {
	if c.Enabled == nil {
		return true
	}

	return *c.Enabled
}

type Config struct {
	Listen           string           `yaml:"listen"`
	RedisURL         string           `yaml:"redis_url"`
	LogLevel         string           `yaml:"log_level"`
	ConnectionConfig ConnectionConfig `yaml:"connection"`
	CaptureConfig    CaptureConfig    `yaml:"capture"`
}

func (c *Config) setDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	if c.ConnectionConfig.Endpoint == "" {
		c.ConnectionConfig.Endpoint = defaultEndpoint
	}

	if c.ConnectionConfig.MaxRetries < 1 {
		c.ConnectionConfig.MaxRetries = defaultMaxRetries
	}

	if c.ConnectionConfig.BackoffBase < 1 {
		c.ConnectionConfig.BackoffBase = Duration(defaultBackoffBase)
	}

	if c.CaptureConfig.Enabled == nil {
		enabled := true
		c.CaptureConfig.Enabled = &enabled
	}

	if c.CaptureConfig.DedupWindow < 1 {
		c.CaptureConfig.DedupWindow = Duration(defaultDedupWindow)
	}
}

// applyEnv lets the environment override file values. A .env file next
// to the process is honored when present.
func (c *Config) applyEnv() {
	godotenv.Load()

	if v := os.Getenv(envListen); v != "" {
		c.Listen = v
	}

	if v := os.Getenv(envEndpoint); v != "" {
		c.ConnectionConfig.Endpoint = v
	}

	if v := os.Getenv(envRedisURL); v != "" {
		c.RedisURL = v
	}

	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv(envCapture); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.CaptureConfig.Enabled = &enabled
		}
	}
}

// Load reads the config file from fs. A missing file is not an error:
// the bridge runs fine on defaults plus environment.
func Load(fs afero.Fs, path string) (*Config, error) {
	var cfg Config

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("cannot check config file: %w", err)
	}

	if exists {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(afero.NewOsFs(), path)
	if err != nil {
		panic(err)
	}

	return cfg
}
