package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

var (
	GlobalConfigCallback ConfigCallback[GlobalConfig] = ConfigCallback[GlobalConfig]{}
	CfgFlag                                           = flag.String("config", "config.toml", "Configuration file (toml format)")
)

const (
	FeedTimeoutDefault    = 3 * time.Second
	PollIntervalDefault   = 2 * time.Second
	BatchSizeDefault      = 100
	MaxRetriesDefault     = 3
	BackoffInitialDefault = 500 * time.Millisecond
	BackoffMaxDefault     = 30 * time.Second
)

type GlobalConfig interface {
	LoggerConfig() LoggerConfig
}

type Config struct {
	DB       DBConfig       `toml:"db"`
	Logger   LoggerConfig   `toml:"logger"`
	Feed     FeedConfig     `toml:"feed"`
	Consumer ConsumerConfig `toml:"consumer"`
	Monitor  MonitorConfig  `toml:"monitor"`
}

type LoggerConfig struct {
	Level       string `toml:"level"` // valid values are: DEBUG, INFO, WARN, ERROR, DPANIC, PANIC, FATAL (zap)
	File        string `toml:"file"`
	MaxFileSize int    `toml:"max_file_size"` // In megabytes
	Console     bool   `toml:"console"`
}

type DBConfig struct {
	Host             string `toml:"host" envconfig:"DB_HOST"`
	Port             int    `toml:"port" envconfig:"DB_PORT"`
	Database         string `toml:"database" envconfig:"DB_DATABASE"`
	Username         string `toml:"username" envconfig:"DB_USERNAME"`
	Password         string `toml:"password" envconfig:"DB_PASSWORD"`
	LogQueries       bool   `toml:"log_queries"`
	DropTableAtStart bool   `toml:"drop_table_at_start"`
}

type FeedConfig struct {
	BaseURL       string `toml:"base_url" envconfig:"FEED_BASE_URL"`
	APIKey        string `toml:"api_key" envconfig:"FEED_API_KEY"`
	TimeoutMillis int    `toml:"timeout_millis"`
}

type ConsumerConfig struct {
	BatchSize          int  `toml:"batch_size"`
	PollIntervalMillis int  `toml:"poll_interval_millis"`
	MaxRetries         uint `toml:"max_retries"`
	BackoffInitMillis  int  `toml:"backoff_init_millis"`
	BackoffMaxMillis   int  `toml:"backoff_max_millis"`
}

type MonitorConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address" envconfig:"MONITOR_ADDRESS"`
}

func newConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			TimeoutMillis: int(FeedTimeoutDefault.Milliseconds()),
		},
		Consumer: ConsumerConfig{
			BatchSize:          BatchSizeDefault,
			PollIntervalMillis: int(PollIntervalDefault.Milliseconds()),
			MaxRetries:         MaxRetriesDefault,
			BackoffInitMillis:  int(BackoffInitialDefault.Milliseconds()),
			BackoffMaxMillis:   int(BackoffMaxDefault.Milliseconds()),
		},
		Monitor: MonitorConfig{
			Address: ":8090",
		},
	}
}

func BuildConfig() (*Config, error) {
	cfgFileName := *CfgFlag

	cfg := newConfig()
	err := ParseConfigFile(cfg, cfgFileName)
	if err != nil {
		return nil, err
	}
	err = ReadEnv(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseConfigFile(cfg *Config, fileName string) error {
	content, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("error opening config file: %w", err)
	}

	_, err = toml.Decode(string(content), cfg)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func ReadEnv(cfg interface{}) error {
	err := envconfig.Process("", cfg)
	if err != nil {
		return fmt.Errorf("error reading env config: %w", err)
	}
	return nil
}

func (c Config) LoggerConfig() LoggerConfig {
	return c.Logger
}

func (f FeedConfig) Timeout() time.Duration {
	if f.TimeoutMillis <= 0 {
		return FeedTimeoutDefault
	}
	return time.Duration(f.TimeoutMillis) * time.Millisecond
}

// FullURL validates the configured feed base URL.
func (f FeedConfig) FullURL() (*url.URL, error) {
	return url.Parse(f.BaseURL)
}

func (c ConsumerConfig) PollInterval() time.Duration {
	if c.PollIntervalMillis <= 0 {
		return PollIntervalDefault
	}
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c ConsumerConfig) BackoffInitial() time.Duration {
	if c.BackoffInitMillis <= 0 {
		return BackoffInitialDefault
	}
	return time.Duration(c.BackoffInitMillis) * time.Millisecond
}

func (c ConsumerConfig) BackoffMax() time.Duration {
	if c.BackoffMaxMillis <= 0 {
		return BackoffMaxDefault
	}
	return time.Duration(c.BackoffMaxMillis) * time.Millisecond
}
