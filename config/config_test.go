package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("CONFIG_PATH", path)
}

func TestLoad_Defaults(t *testing.T) {
	writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("ANONRELAY_SERVER_JWT_SECRET", testJWTSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "polling", cfg.Telegram.Mode)
	assert.Equal(t, 25, cfg.Telegram.PollTimeout)
	assert.Equal(t, 15*time.Second, cfg.Relay.DeliverTimeout)
	require.Len(t, cfg.Reputation.Tiers, len(DefaultTiers()))
	assert.Equal(t, int64(0), cfg.Reputation.Tiers[0].Threshold)
}

func TestLoad_FileAndEnv(t *testing.T) {
	writeConfig(t, `
telegram:
  main_username: relay_bot
moderation:
  admins: [11, 22]
reputation:
  max_label: top
  tiers:
    - { threshold: 0, label: new }
    - { threshold: 3, label: known }
`)
	t.Setenv("ANONRELAY_SERVER_JWT_SECRET", testJWTSecret)
	t.Setenv("ANONRELAY_TELEGRAM_MODE", "off")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testJWTSecret, cfg.Server.JWTSecret)
	assert.Equal(t, "off", cfg.Telegram.Mode)
	assert.Equal(t, "relay_bot", cfg.Telegram.MainUsername)
	assert.Equal(t, []int64{11, 22}, cfg.Moderation.Admins)
	assert.Equal(t, []TierConfig{{Threshold: 0, Label: "new"}, {Threshold: 3, Label: "known"}}, cfg.Reputation.Tiers)
	assert.Equal(t, "top", cfg.Reputation.MaxLabel)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	writeConfig(t, "server:\n  port: 9090\n")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWTSecret")
}

func TestLoad_InvalidFile(t *testing.T) {
	writeConfig(t, "server: [unclosed\n")
	_, err := Load()
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, Mode: "test", JWTSecret: testJWTSecret},
		Database: DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Telegram: TelegramConfig{
			APIBase:        "https://api.telegram.org",
			Mode:           "polling",
			PollTimeout:    25,
			RequestTimeout: 30 * time.Second,
			RateLimit:      25,
			Workers:        1,
			QueueSize:      1,
		},
		Reputation: ReputationConfig{Tiers: DefaultTiers(), MaxLabel: "max"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{
			name:    "no zero tier",
			mutate:  func(c *Config) { c.Reputation.Tiers = []TierConfig{{Threshold: 5, Label: "five"}} },
			wantErr: "threshold 0",
		},
		{
			name:    "empty tiers",
			mutate:  func(c *Config) { c.Reputation.Tiers = nil },
			wantErr: "invalid config",
		},
		{
			name:    "empty jwt secret",
			mutate:  func(c *Config) { c.Server.JWTSecret = "" },
			wantErr: "JWTSecret",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Server.JWTSecret = "s3cret" },
			wantErr: "JWTSecret",
		},
		{
			name:    "poll timeout not below request timeout",
			mutate:  func(c *Config) { c.Telegram.PollTimeout = 30 },
			wantErr: "request_timeout",
		},
		{
			name: "long poll outside polling mode",
			mutate: func(c *Config) {
				c.Telegram.Mode = "off"
				c.Telegram.PollTimeout = 50
			},
		},
		{
			name:    "webhook without secret",
			mutate:  func(c *Config) { c.Telegram.Mode = "webhook" },
			wantErr: "webhook_secret",
		},
		{
			name: "webhook with secret",
			mutate: func(c *Config) {
				c.Telegram.Mode = "webhook"
				c.Telegram.WebhookSecret = "x"
			},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: "Driver",
		},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.Telegram.Mode = "push" },
			wantErr: "Mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
