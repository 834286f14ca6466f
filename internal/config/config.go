package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Limits   LimitsConfig   `yaml:"limits"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Server   ServerConfig   `yaml:"server"`
	History  HistoryConfig  `yaml:"history"`
}

// TelegramConfig holds bot transport configuration.
type TelegramConfig struct {
	Token       string        `yaml:"token" envconfig:"TELEGRAM_TOKEN"`
	PollTimeout time.Duration `yaml:"poll_timeout" envconfig:"TELEGRAM_POLL_TIMEOUT" default:"10s"`
}

// StorageConfig holds filesystem storage configuration.
type StorageConfig struct {
	DownloadsDir string `yaml:"downloads_dir" envconfig:"DOWNLOADS_DIR" default:"downloads"`
}

// FetchConfig holds media extraction configuration.
type FetchConfig struct {
	SocketTimeout  time.Duration `yaml:"socket_timeout" envconfig:"FETCH_SOCKET_TIMEOUT" default:"15s"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" envconfig:"FETCH_ATTEMPT_TIMEOUT" default:"10m"`
	MaxRetries     int           `yaml:"max_retries" envconfig:"FETCH_MAX_RETRIES" default:"3"`
}

// LimitsConfig holds the policy limits applied around acquisition and delivery.
type LimitsConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" envconfig:"MAX_CONCURRENT_DOWNLOADS" default:"5"`
	MaxDuration   time.Duration `yaml:"max_duration" envconfig:"MAX_DURATION" default:"1h"`
	MaxFileSize   int64         `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE" default:"2040109465"` // 1.9 GiB
	CaptionMax    int           `yaml:"caption_max" envconfig:"CAPTION_MAX" default:"90"`
	ErrorMax      int           `yaml:"error_max" envconfig:"ERROR_MAX" default:"200"`
	TitleMax      int           `yaml:"title_max" envconfig:"TITLE_MAX" default:"50"`
}

// DeliveryConfig holds media send configuration.
type DeliveryConfig struct {
	VideoTimeout time.Duration `yaml:"video_timeout" envconfig:"DELIVERY_VIDEO_TIMEOUT" default:"120s"`
	AudioTimeout time.Duration `yaml:"audio_timeout" envconfig:"DELIVERY_AUDIO_TIMEOUT" default:"60s"`
}

// ServerConfig holds the ops HTTP endpoint configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" envconfig:"SERVER_ADDR" default:":8080"`
}

// HistoryConfig holds job history persistence configuration.
// An empty path disables persistence.
type HistoryConfig struct {
	Path string `yaml:"path" envconfig:"HISTORY_PATH" default:"clipfetch.db"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.Storage.DownloadsDir == "" {
		return fmt.Errorf("DOWNLOADS_DIR is required")
	}
	if c.Limits.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT_DOWNLOADS must be at least 1")
	}
	if c.Limits.MaxDuration <= 0 {
		return fmt.Errorf("MAX_DURATION must be positive")
	}
	if c.Limits.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.Fetch.MaxRetries < 1 {
		return fmt.Errorf("FETCH_MAX_RETRIES must be at least 1")
	}
	return nil
}
