// Package config loads and hot-reloads the iot2mqtt bridge's configuration
// via spf13/viper: a config file, overridden by IOT2MQTT_-prefixed
// environment variables, with fsnotify-driven reload of the two settings
// safe to change without re-dialing MQTT (log level and the staleness
// sweep window).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds every setting the bridge needs to run.
type Config struct {
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Directory DirectoryConfig `mapstructure:"directory"`
	API       APIConfig       `mapstructure:"api"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// MQTTConfig describes how to dial the broker.
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	TLSSkipVerify  bool          `mapstructure:"tls_skip_verify"`
	CACertPath     string        `mapstructure:"ca_cert_path"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CleanSession   bool          `mapstructure:"clean_session"`
	AutoReconnect  bool          `mapstructure:"auto_reconnect"`
}

// PipelineConfig sizes the bounded channels between stages and the
// discovery-settle delay.
type PipelineConfig struct {
	QueueCapacity    int           `mapstructure:"queue_capacity"`
	QueueTimeout     time.Duration `mapstructure:"queue_timeout"`
	DiscoverySettle  time.Duration `mapstructure:"discovery_settle"`
}

// DirectoryConfig controls the optional write-behind mirrors.
type DirectoryConfig struct {
	SQLitePath   string `mapstructure:"sqlite_path"`
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisKey     string `mapstructure:"redis_key"`
	RedisDB      int    `mapstructure:"redis_db"`
}

// APIConfig controls the admin HTTP+WebSocket surface.
type APIConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// TelemetryConfig controls the InfluxDB sink.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

// SchedulerConfig controls the cron staleness sweep.
type SchedulerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	CronSpec         string        `mapstructure:"cron_spec"`
	StalenessWindow  time.Duration `mapstructure:"staleness_window"`
}

// LoggerConfig mirrors internal/logger.Config, kept here so config owns the
// single source of mapstructure tags.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	LogDir     string `mapstructure:"log_dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

const envPrefix = "IOT2MQTT"

// Load reads configuration from configPath (or the default search path if
// empty), applies environment overrides, and returns the result alongside
// the viper instance so the caller can register a hot-reload watch.
func Load(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("config: read: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, v, nil
}

// WatchForChanges registers onLogLevelChange/onStalenessChange against
// viper's fsnotify-backed file watch. Only the log level and the staleness
// window are reloaded live; every other setting requires a restart since
// changing them mid-run would mean re-dialing MQTT or re-subscribing
// topics.
func WatchForChanges(v *viper.Viper, onLogLevelChange func(string), onStalenessChange func(time.Duration)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		if onLogLevelChange != nil {
			onLogLevelChange(cfg.Logger.Level)
		}
		if onStalenessChange != nil {
			onStalenessChange(cfg.Scheduler.StalenessWindow)
		}
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "iot2mqtt")
	v.SetDefault("mqtt.keep_alive", 60*time.Second)
	v.SetDefault("mqtt.connect_timeout", 30*time.Second)
	v.SetDefault("mqtt.clean_session", true)
	v.SetDefault("mqtt.auto_reconnect", true)

	v.SetDefault("pipeline.queue_capacity", 1024)
	v.SetDefault("pipeline.queue_timeout", time.Second)
	v.SetDefault("pipeline.discovery_settle", 2*time.Second)

	v.SetDefault("directory.sqlite_path", "./data/iot2mqtt.db")
	v.SetDefault("directory.redis_key", "iot2mqtt:devices")
	v.SetDefault("directory.redis_db", 0)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.address", ":8090")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.bucket", "iot2mqtt")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron_spec", "0 * * * * *")
	v.SetDefault("scheduler.staleness_window", 30*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_dir", "./logs")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 7)
	v.SetDefault("logger.compress", true)
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".iot2mqtt")
}
