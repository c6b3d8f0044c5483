package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Posture  PostureConfig  `mapstructure:"posture"`
	Session  SessionConfig  `mapstructure:"session"`
	Detector DetectorConfig `mapstructure:"detector"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PostureConfig holds the classification thresholds
type PostureConfig struct {
	NeckMaxAngle    float64       `mapstructure:"neck_max_angle"`    // degrees from vertical, exclusive
	BackMinAngle    float64       `mapstructure:"back_min_angle"`    // shoulder-hip-knee degrees, inclusive
	ShoulderDiffMax float64       `mapstructure:"shoulder_diff_max"` // percent of frame height, inclusive
	AlertLatency    time.Duration `mapstructure:"alert_latency"`
	MinVisibility   float64       `mapstructure:"min_visibility"` // 0 = accept every detected keypoint
}

// SessionConfig holds per-session tracking configuration
type SessionConfig struct {
	HistorySize int           `mapstructure:"history_size"`
	QueueSize   int           `mapstructure:"queue_size"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// DetectorConfig holds pose-inference service configuration
type DetectorConfig struct {
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// MQTTConfig holds frame ingress configuration
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
}

// RedisConfig holds event stream configuration
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	AlertStream   string `mapstructure:"alert_stream"`
	SummaryStream string `mapstructure:"summary_stream"`
	MaxLen        int64  `mapstructure:"max_len"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath      string `mapstructure:"db_path"`
	MaxSessions int    `mapstructure:"max_sessions"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// POSTUREWATCH_POSTURE_NECK_MAX_ANGLE etc.
	v.SetEnvPrefix("POSTUREWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Posture defaults
	v.SetDefault("posture.neck_max_angle", 15.0)
	v.SetDefault("posture.back_min_angle", 160.0)
	v.SetDefault("posture.shoulder_diff_max", 15.0)
	v.SetDefault("posture.alert_latency", "10s")
	v.SetDefault("posture.min_visibility", 0.0)

	// Session defaults
	v.SetDefault("session.history_size", 100)
	v.SetDefault("session.queue_size", 32)
	v.SetDefault("session.idle_timeout", "2m")

	// Detector defaults
	v.SetDefault("detector.url", "http://127.0.0.1:8500")
	v.SetDefault("detector.timeout", "10s")
	v.SetDefault("detector.max_retries", 3)
	v.SetDefault("detector.retry_delay_base", "1s")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "posturewatch")
	v.SetDefault("mqtt.topic_prefix", "posture")
	v.SetDefault("mqtt.qos", 0)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.alert_stream", "posture:alerts")
	v.SetDefault("redis.summary_stream", "posture:sessions")
	v.SetDefault("redis.max_len", 10000)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/posturewatch.db")
	v.SetDefault("storage.max_sessions", 10000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Posture config
	if c.Posture.NeckMaxAngle <= 0 || c.Posture.NeckMaxAngle > 180 {
		return fmt.Errorf("posture.neck_max_angle must be in (0, 180]")
	}
	if c.Posture.BackMinAngle <= 0 || c.Posture.BackMinAngle > 180 {
		return fmt.Errorf("posture.back_min_angle must be in (0, 180]")
	}
	if c.Posture.ShoulderDiffMax < 0 || c.Posture.ShoulderDiffMax > 100 {
		return fmt.Errorf("posture.shoulder_diff_max must be between 0 and 100")
	}
	if c.Posture.AlertLatency < 0 {
		return fmt.Errorf("posture.alert_latency must not be negative")
	}
	if c.Posture.MinVisibility < 0 || c.Posture.MinVisibility > 1 {
		return fmt.Errorf("posture.min_visibility must be between 0.0 and 1.0")
	}

	// Validate Session config
	if c.Session.HistorySize < 1 {
		return fmt.Errorf("session.history_size must be at least 1")
	}
	if c.Session.QueueSize < 1 {
		return fmt.Errorf("session.queue_size must be at least 1")
	}
	if c.Session.IdleTimeout < time.Second {
		return fmt.Errorf("session.idle_timeout must be at least 1 second")
	}

	// Validate Detector config
	if c.Detector.URL == "" {
		return fmt.Errorf("detector.url is required")
	}
	if c.Detector.Timeout <= 0 {
		return fmt.Errorf("detector.timeout must be positive")
	}
	if c.Detector.MaxRetries < 0 {
		return fmt.Errorf("detector.max_retries must not be negative")
	}

	// Validate MQTT config
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topic_prefix is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	// Validate Redis config
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when redis is enabled")
		}
		if c.Redis.AlertStream == "" || c.Redis.SummaryStream == "" {
			return fmt.Errorf("redis.alert_stream and redis.summary_stream are required when redis is enabled")
		}
		if c.Redis.MaxLen < 0 {
			return fmt.Errorf("redis.max_len must not be negative")
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.MaxSessions < 1 {
		return fmt.Errorf("storage.max_sessions must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
