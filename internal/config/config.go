// This file defines the configuration structure for the application.
package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Log struct {
		Level      string `mapstructure:"level"`
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"log"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`
	Progress struct {
		RetentionSeconds     int `mapstructure:"retention_seconds"`
		SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	} `mapstructure:"progress"`
	Gateway struct {
		PingIntervalSeconds int `mapstructure:"ping_interval_seconds"`
		TimeoutMultiplier   int `mapstructure:"timeout_multiplier"`
		SendBuffer          int `mapstructure:"send_buffer"`
	} `mapstructure:"gateway"`
	Batch struct {
		MaxConcurrent    int `mapstructure:"max_concurrent"` // 0 means no cap
		LogRetentionDays int `mapstructure:"log_retention_days"`
	} `mapstructure:"batch"`
	Fetcher struct {
		DownloadDir    string `mapstructure:"download_dir"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"fetcher"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Channel  string `mapstructure:"channel"`
	} `mapstructure:"redis"`
}

// Retention is how long a finished progress record stays visible.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Progress.RetentionSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Progress.SweepIntervalSeconds) * time.Second
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Gateway.PingIntervalSeconds) * time.Second
}

// IdleTimeout is how long a connection may stay silent before it is closed.
func (c *Config) IdleTimeout() time.Duration {
	return c.PingInterval() * time.Duration(c.Gateway.TimeoutMultiplier)
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

func setDefaults() {
	viper.SetDefault("port", 8080)
	viper.SetDefault("database.path", "./tunedl.db")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age_days", 28)
	viper.SetDefault("auth.jwt_secret", "change-me")
	viper.SetDefault("progress.retention_seconds", 5)
	viper.SetDefault("progress.sweep_interval_seconds", 1)
	viper.SetDefault("gateway.ping_interval_seconds", 30)
	viper.SetDefault("gateway.timeout_multiplier", 2)
	viper.SetDefault("gateway.send_buffer", 64)
	viper.SetDefault("batch.max_concurrent", 0)
	viper.SetDefault("batch.log_retention_days", 30)
	viper.SetDefault("fetcher.download_dir", "./downloads")
	viper.SetDefault("fetcher.timeout_seconds", 600)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.channel", "tunedl:events")
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")

	// e.g. TUNEDL_DATABASE_PATH overrides `database.path`.
	viper.SetEnvPrefix("TUNEDL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Watch re-reads config.yml whenever it changes on disk and hands the new
// values to onChange. Only settings that are safe to swap at runtime should
// be applied by the callback.
func Watch(onChange func(*Config, fsnotify.Event)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		var config Config
		if err := viper.Unmarshal(&config); err != nil {
			return
		}
		onChange(&config, e)
	})
	viper.WatchConfig()
}
