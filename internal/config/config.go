package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"courtbook/internal/models"
)

type Config struct {
	Server struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address    string `yaml:"address"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"redis"`

	Gateway struct {
		BaseURL   string `yaml:"base_url"`
		KeyID     string `yaml:"key_id"`
		KeySecret string `yaml:"key_secret"`
		Currency  string `yaml:"currency"`
	} `yaml:"gateway"`

	Commission struct {
		Kind  string  `yaml:"kind"` // percentage or flat
		Value float64 `yaml:"value"`
	} `yaml:"commission"`

	Booking struct {
		ProcessingTimeoutMinutes int `yaml:"processing_timeout_minutes"`
		SweepIntervalMinutes     int `yaml:"sweep_interval_minutes"`
	} `yaml:"booking"`

	Payout struct {
		Timezone    string `yaml:"timezone"`
		DailyHour   int    `yaml:"daily_hour"`
		DailyMinute int    `yaml:"daily_minute"`
	} `yaml:"payout"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		StoragePath   string `yaml:"storage_path"`
		IntervalHours int    `yaml:"interval_hours"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
	} `yaml:"sheets"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/courtbook.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Gateway.Currency == "" {
		cfg.Gateway.Currency = "INR"
	}

	return &cfg, nil
}

// PlatformCommission returns the platform-wide default rule. A missing or
// malformed default is a configuration error: payments cannot be captured
// without a fallback rule.
func (c *Config) PlatformCommission() (models.CommissionRule, error) {
	switch models.CommissionKind(c.Commission.Kind) {
	case models.CommissionPercentage, models.CommissionFlat:
	default:
		return models.CommissionRule{}, fmt.Errorf("invalid platform commission kind %q", c.Commission.Kind)
	}
	if c.Commission.Value < 0 {
		return models.CommissionRule{}, fmt.Errorf("negative platform commission value %v", c.Commission.Value)
	}
	return models.CommissionRule{
		Kind:  models.CommissionKind(c.Commission.Kind),
		Value: c.Commission.Value,
	}, nil
}

func (c *Config) ProcessingTimeout() time.Duration {
	if c.Booking.ProcessingTimeoutMinutes <= 0 {
		return 20 * time.Minute
	}
	return time.Duration(c.Booking.ProcessingTimeoutMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	if c.Booking.SweepIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Booking.SweepIntervalMinutes) * time.Minute
}

func (c *Config) RedisTTL() time.Duration {
	if c.Redis.TTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}
