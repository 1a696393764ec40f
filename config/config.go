package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	Mode              string        `mapstructure:"mode" validate:"oneof=debug release test"`
	JWTSecret         string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=silent error warn info"`
}

type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format      string `mapstructure:"format" validate:"oneof=json console"`
	Development bool   `mapstructure:"development"`
}

// TelegramConfig 两个 bot：主 bot 负责匿名投递，review bot 负责管理员审核
type TelegramConfig struct {
	APIBase        string        `mapstructure:"api_base" validate:"required,url"`
	MainToken      string        `mapstructure:"main_token"`
	MainUsername   string        `mapstructure:"main_username"`
	ReviewToken    string        `mapstructure:"review_token"`
	Mode           string        `mapstructure:"mode" validate:"oneof=polling webhook off"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PollTimeout    int           `mapstructure:"poll_timeout" validate:"min=0,max=50"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryMax       int           `mapstructure:"retry_max" validate:"min=0,max=10"`
	RateLimit      float64       `mapstructure:"rate_limit" validate:"gt=0"`
	Workers        int           `mapstructure:"workers" validate:"min=1"`
	QueueSize      int           `mapstructure:"queue_size" validate:"min=1"`
}

type RelayConfig struct {
	DeliverTimeout time.Duration `mapstructure:"deliver_timeout"`
}

type ModerationConfig struct {
	Admins           []int64       `mapstructure:"admins"`
	NotifyTimeout    time.Duration `mapstructure:"notify_timeout"`
	DefaultBanReason string        `mapstructure:"default_ban_reason"`
	ReportBanReason  string        `mapstructure:"report_ban_reason"`
}

type TierConfig struct {
	Threshold int64  `mapstructure:"threshold" validate:"min=0"`
	Label     string `mapstructure:"label" validate:"required"`
}

type ReputationConfig struct {
	Tiers    []TierConfig `mapstructure:"tiers" validate:"required,min=1,dive"`
	MaxLabel string       `mapstructure:"max_label" validate:"required"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"min=0,max=1"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// Load 加载配置：默认值 -> config.yaml -> 环境变量（ANONRELAY_ 前缀）
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ANONRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验结构体 tag 以及跨字段约束
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	hasZero := false
	for _, t := range c.Reputation.Tiers {
		if t.Threshold == 0 {
			hasZero = true
		}
	}
	if !hasZero {
		return errors.New("invalid config: reputation.tiers must define a threshold 0 entry")
	}
	// getUpdates 会挂起 poll_timeout 秒，HTTP 超时必须更长
	pollWait := time.Duration(c.Telegram.PollTimeout) * time.Second
	if c.Telegram.Mode == "polling" && c.Telegram.RequestTimeout <= pollWait {
		return fmt.Errorf("invalid config: telegram.request_timeout (%s) must exceed telegram.poll_timeout (%s)", c.Telegram.RequestTimeout, pollWait)
	}
	if c.Telegram.Mode == "webhook" && c.Telegram.WebhookSecret == "" {
		return errors.New("invalid config: telegram.webhook_secret is required in webhook mode")
	}
	return nil
}

// DefaultTiers 原始 bot 的称号表
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{Threshold: 0, Label: "🟢 novice"},
		{Threshold: 5, Label: "🔵 active"},
		{Threshold: 10, Label: "🟣 loved"},
		{Threshold: 20, Label: "🟠 star"},
		{Threshold: 50, Label: "🔴 legend"},
		{Threshold: 100, Label: "👑 king of candor"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.token_ttl", 12*time.Hour)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	// 以下空默认值让 AutomaticEnv 能够覆盖对应 key
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.admin_password_hash", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "anonymous_messages.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_ttl", 30*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.development", false)

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.mode", "polling")
	v.SetDefault("telegram.main_token", "")
	v.SetDefault("telegram.main_username", "")
	v.SetDefault("telegram.review_token", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.poll_interval", time.Second)
	v.SetDefault("telegram.poll_timeout", 25)
	v.SetDefault("telegram.request_timeout", 30*time.Second)
	v.SetDefault("telegram.retry_max", 2)
	v.SetDefault("telegram.rate_limit", 25.0)
	v.SetDefault("telegram.workers", 8)
	v.SetDefault("telegram.queue_size", 10000)

	v.SetDefault("relay.deliver_timeout", 15*time.Second)

	v.SetDefault("moderation.admins", []int64{})
	v.SetDefault("moderation.notify_timeout", 10*time.Second)
	v.SetDefault("moderation.default_ban_reason", "violation of the terms of use")
	v.SetDefault("moderation.report_ban_reason", "violation of the terms of use (reported)")

	tiers := make([]map[string]interface{}, 0, len(DefaultTiers()))
	for _, t := range DefaultTiers() {
		tiers = append(tiers, map[string]interface{}{"threshold": t.Threshold, "label": t.Label})
	}
	v.SetDefault("reputation.tiers", tiers)
	v.SetDefault("reputation.max_label", "🏆 top level")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "anonrelay")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "")
}
