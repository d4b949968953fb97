package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "5m" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Logger struct {
	Level string `yaml:"level"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Mongo struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type R2 struct {
	AccountID       string `yaml:"account_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
}

// Local points the sync loop at a directory of report files instead of a
// bucket. Takes precedence over R2 when set.
type Local struct {
	Path string `yaml:"path"`
}

type Sync struct {
	Interval               Duration `yaml:"interval"`
	MaxConcurrentDownloads int64    `yaml:"max_concurrent_downloads"`
}

type Analytics struct {
	UpStates             []string `yaml:"up_states"`
	HealthAlertThreshold float64  `yaml:"health_alert_threshold"`
	SummarySampleSize    int64    `yaml:"summary_sample_size"`
}

type Auth struct {
	TokenSecret   string   `yaml:"token_secret"`
	TokenTTL      Duration `yaml:"token_ttl"`
	AdminPassword string   `yaml:"admin_password"`
}

type Config struct {
	Logger    Logger    `yaml:"logger"`
	HTTP      HTTP      `yaml:"http"`
	Mongo     Mongo     `yaml:"mongo"`
	R2        R2        `yaml:"r2"`
	Local     Local     `yaml:"local"`
	Sync      Sync      `yaml:"sync"`
	Analytics Analytics `yaml:"analytics"`
	Auth      Auth      `yaml:"auth"`
}

func NewFromFile(fpath string) (*Config, error) {
	bs, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8000"
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "hpe_reports"
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = Duration(5 * time.Minute)
	}
	if c.Sync.MaxConcurrentDownloads == 0 {
		c.Sync.MaxConcurrentDownloads = 50
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = Duration(12 * time.Hour)
	}
	if c.Auth.AdminPassword == "" {
		c.Auth.AdminPassword = "admin"
	}
}
