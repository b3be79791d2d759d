package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shopbuddy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data/shopbuddy.db", cfg.DB.Path)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, "fake", cfg.Gateway.Provider)
	assert.Equal(t, "eur", cfg.Gateway.Currency)
	assert.Equal(t, 5*time.Second, cfg.Gateway.CallTimeout)
	assert.Equal(t, "none", cfg.Geocoding.Provider)
	assert.Equal(t, "8.00", cfg.Lifecycle.MinDeliveryFee)
	assert.Empty(t, cfg.Telegram.CoordinatorIDs)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
db:
  path: /var/lib/shopbuddy/app.db
http:
  addr: ":9000"
  request_timeout: 30s
gateway:
  provider: stripe
  secret_key: sk_test_123
  publishable_key: pk_test_123
telegram:
  token: "123:abc"
  shopper_chat: -100200
  coordinator_ids: [11, 22]
lifecycle:
  min_delivery_fee: "5.50"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/shopbuddy/app.db", cfg.DB.Path)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, "stripe", cfg.Gateway.Provider)
	assert.Equal(t, "sk_test_123", cfg.Gateway.SecretKey)
	assert.Equal(t, int64(-100200), cfg.Telegram.ShopperChat)
	assert.Equal(t, []int64{11, 22}, cfg.Telegram.CoordinatorIDs)
	// untouched keys keep their defaults
	assert.Equal(t, "eur", cfg.Gateway.Currency)
	require.NoError(t, cfg.Validate())

	fee, err := cfg.MinDeliveryFee()
	require.NoError(t, err)
	assert.Equal(t, "5.5", fee.String())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9000"
gateway:
  currency: usd
`)
	t.Setenv("SHOPBUDDY_HTTP_ADDR", ":7000")
	t.Setenv("SHOPBUDDY_GATEWAY_CALL_TIMEOUT", "3s")
	t.Setenv("SHOPBUDDY_TELEGRAM_COORDINATOR_IDS", "101,202")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "usd", cfg.Gateway.Currency)
	assert.Equal(t, 3*time.Second, cfg.Gateway.CallTimeout)
	assert.Equal(t, []int64{101, 202}, cfg.Telegram.CoordinatorIDs)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"stripe without key", func(c *Config) { c.Gateway.Provider = "stripe" }, "gateway.secret_key"},
		{"unknown gateway", func(c *Config) { c.Gateway.Provider = "paypal" }, "gateway.provider"},
		{"bad currency", func(c *Config) { c.Gateway.Currency = "euro" }, "gateway.currency"},
		{"zero rate", func(c *Config) { c.Gateway.RatePerSecond = 0 }, "rate_per_second"},
		{"gateway budget over request deadline", func(c *Config) { c.Gateway.CallTimeout = 10 * time.Second }, "gateway.call_timeout"},
		{"zero gateway timeout", func(c *Config) { c.Gateway.CallTimeout = 0 }, "gateway.call_timeout"},
		{"google without key", func(c *Config) { c.Geocoding.Provider = "google" }, "geocoding.api_key"},
		{"negative fee", func(c *Config) { c.Lifecycle.MinDeliveryFee = "-1" }, "min_delivery_fee"},
		{"unparsable fee", func(c *Config) { c.Lifecycle.MinDeliveryFee = "eight" }, "min_delivery_fee"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"empty db path", func(c *Config) { c.DB.Path = "" }, "db.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{
		Gateway:   GatewayConfig{SecretKey: "sk_test_123", PublishableKey: "pk_test_123"},
		Geocoding: GeocodingConfig{APIKey: "maps-key"},
		Telegram:  TelegramConfig{CoordinatorIDs: []int64{1}},
	}

	r := cfg.Redacted()
	assert.Equal(t, "********", r.Gateway.SecretKey)
	assert.Equal(t, "pk_test_123", r.Gateway.PublishableKey)
	assert.Equal(t, "********", r.Geocoding.APIKey)
	assert.Empty(t, r.Telegram.Token)
	assert.Equal(t, "sk_test_123", cfg.Gateway.SecretKey)

	r.Telegram.CoordinatorIDs[0] = 9
	assert.Equal(t, int64(1), cfg.Telegram.CoordinatorIDs[0])
}

func TestIsCoordinator(t *testing.T) {
	tg := TelegramConfig{CoordinatorIDs: []int64{5, 9}}
	assert.True(t, tg.IsCoordinator(9))
	assert.False(t, tg.IsCoordinator(7))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "request_id", 3)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"request_id":3`)

	_, err = LogConfig{Level: "nope"}.NewLogger(&buf)
	assert.Error(t, err)
}
