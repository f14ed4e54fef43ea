package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sink kinds.
const (
	SinkIndex  = "index"
	SinkJSONL  = "jsonl"
	SinkStore  = "store"
	SinkMemory = "memory"
)

type Config struct {
	Port string `mapstructure:"port"`

	// Auth
	APIKey string `mapstructure:"api_key"`

	CORSOrigins []string `mapstructure:"cors_origins"`

	LogLevel string `mapstructure:"log_level"`

	// Worker pool
	Workers      int `mapstructure:"workers"`
	MaxQueueSize int `mapstructure:"max_queue_size"`

	// Job state
	JobTTL time.Duration `mapstructure:"job_ttl"`

	// Record destination
	Sink   string `mapstructure:"sink"`
	Output string `mapstructure:"output"`

	Index IndexConfig `mapstructure:"index"`
	Store StoreConfig `mapstructure:"store"`
	S3    S3Config    `mapstructure:"s3"`
}

type IndexConfig struct {
	URL           string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
}

var defaults = map[string]any{
	"port":                 "8090",
	"log_level":            "info",
	"cors_origins":         []string{"*"},
	"workers":              4,
	"max_queue_size":       100,
	"job_ttl":              time.Hour,
	"sink":                 SinkIndex,
	"output":               "-",
	"index.url":            "http://localhost:8983/solr/ap",
	"index.batch_size":     100,
	"index.flush_interval": 5 * time.Second,
	"index.max_retries":    3,
	"store.driver":         "sqlite",
	"store.dsn":            "apindex.sqlite",
	"s3.region":            "us-east-1",
}

// Load reads .env, then the optional config file, then APINDEX_* environment
// variables. An empty cfgFile looks for config.yaml in . and $HOME/.apindex.
func Load(cfgFile string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("APINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.apindex")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Sink {
	case SinkIndex:
		if c.Index.URL == "" {
			return fmt.Errorf("index.url is required for the index sink")
		}
	case SinkStore:
		if c.Store.Driver != "sqlite" && c.Store.Driver != "pgx" {
			return fmt.Errorf("store.driver must be sqlite or pgx, got %q", c.Store.Driver)
		}
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the store sink")
		}
	case SinkJSONL:
		if c.Output == "" {
			return fmt.Errorf("output is required for the jsonl sink")
		}
	case SinkMemory:
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	return nil
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
