// Package config loads shopbuddy settings from defaults, an optional YAML
// file and SHOPBUDDY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "SHOPBUDDY"

type Config struct {
	DB        DBConfig        `mapstructure:"db" yaml:"db"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Gateway   GatewayConfig   `mapstructure:"gateway" yaml:"gateway"`
	Geocoding GeocodingConfig `mapstructure:"geocoding" yaml:"geocoding"`
	Telegram  TelegramConfig  `mapstructure:"telegram" yaml:"telegram"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle" yaml:"lifecycle"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type DBConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// GatewayConfig selects the card processor. Provider "fake" keeps intents
// in memory and is meant for development only.
type GatewayConfig struct {
	Provider       string        `mapstructure:"provider" yaml:"provider"`
	SecretKey      string        `mapstructure:"secret_key" yaml:"secret_key"`
	PublishableKey string        `mapstructure:"publishable_key" yaml:"publishable_key"`
	Currency       string        `mapstructure:"currency" yaml:"currency"`
	CallTimeout    time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst          int           `mapstructure:"burst" yaml:"burst"`
}

type GeocodingConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TelegramConfig enables the shopper bot and chat notifications when Token
// is set.
type TelegramConfig struct {
	Token          string  `mapstructure:"token" yaml:"token"`
	ShopperChat    int64   `mapstructure:"shopper_chat" yaml:"shopper_chat"`
	CoordinatorIDs []int64 `mapstructure:"coordinator_ids" yaml:"coordinator_ids"`
}

type LifecycleConfig struct {
	MinDeliveryFee string `mapstructure:"min_delivery_fee" yaml:"min_delivery_fee"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", "./data/shopbuddy.db")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.request_timeout", 15*time.Second)
	v.SetDefault("http.read_header_timeout", 3*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("gateway.provider", "fake")
	v.SetDefault("gateway.secret_key", "")
	v.SetDefault("gateway.publishable_key", "")
	v.SetDefault("gateway.currency", "eur")
	v.SetDefault("gateway.call_timeout", 5*time.Second)
	v.SetDefault("gateway.rate_per_second", 20.0)
	v.SetDefault("gateway.burst", 5)

	v.SetDefault("geocoding.provider", "none")
	v.SetDefault("geocoding.api_key", "")
	v.SetDefault("geocoding.timeout", 5*time.Second)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.shopper_chat", 0)
	v.SetDefault("telegram.coordinator_ids", []int64{})

	v.SetDefault("lifecycle.min_delivery_fee", "8.00")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration. When path is empty, shopbuddy.yaml is looked up
// in the working directory and /etc/shopbuddy; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("shopbuddy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/shopbuddy")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return errors.New("db.path is required")
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}

	switch c.Gateway.Provider {
	case "fake":
	case "stripe":
		if c.Gateway.SecretKey == "" {
			return errors.New("gateway.secret_key is required for the stripe provider")
		}
	default:
		return fmt.Errorf("unknown gateway.provider %q", c.Gateway.Provider)
	}
	if len(c.Gateway.Currency) != 3 {
		return fmt.Errorf("gateway.currency must be a three-letter code, got %q", c.Gateway.Currency)
	}
	if c.Gateway.RatePerSecond <= 0 {
		return errors.New("gateway.rate_per_second must be positive")
	}
	// a cancel makes two sequential gateway calls within one request
	if c.Gateway.CallTimeout <= 0 || 2*c.Gateway.CallTimeout >= c.HTTP.RequestTimeout {
		return fmt.Errorf("gateway.call_timeout (%s) must be positive and under half of http.request_timeout (%s)",
			c.Gateway.CallTimeout, c.HTTP.RequestTimeout)
	}

	switch c.Geocoding.Provider {
	case "none":
	case "google":
		if c.Geocoding.APIKey == "" {
			return errors.New("geocoding.api_key is required for the google provider")
		}
	default:
		return fmt.Errorf("unknown geocoding.provider %q", c.Geocoding.Provider)
	}

	if _, err := c.MinDeliveryFee(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func (c *Config) MinDeliveryFee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.Lifecycle.MinDeliveryFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lifecycle.min_delivery_fee: %w", err)
	}
	if fee.IsNegative() {
		return decimal.Zero, errors.New("lifecycle.min_delivery_fee must not be negative")
	}
	return fee, nil
}

// Redacted returns a copy of c with credentials masked, for display.
func (c Config) Redacted() Config {
	c.Gateway.SecretKey = mask(c.Gateway.SecretKey)
	c.Geocoding.APIKey = mask(c.Geocoding.APIKey)
	c.Telegram.Token = mask(c.Telegram.Token)
	c.Telegram.CoordinatorIDs = append([]int64(nil), c.Telegram.CoordinatorIDs...)
	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// IsCoordinator reports whether the Telegram user may link shoppers.
func (c TelegramConfig) IsCoordinator(userID int64) bool {
	for _, id := range c.CoordinatorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
