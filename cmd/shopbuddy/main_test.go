package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centromex/shopping-buddy/internal/config"
	"github.com/centromex/shopping-buddy/internal/db"
	"github.com/centromex/shopping-buddy/internal/gateway"
	"github.com/centromex/shopping-buddy/internal/geocode"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUserAdd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shopbuddy.db")
	t.Setenv("SHOPBUDDY_DB_PATH", dbPath)
	t.Setenv("SHOPBUDDY_LOG_LEVEL", "error")

	out, err := run(t, "user", "add", "shopper", "sam@example.com", "--first", "Sam")
	require.NoError(t, err)
	assert.Contains(t, out, "registered for sam@example.com")

	_, err = run(t, "user", "add", "customer", "ana@example.com")
	require.NoError(t, err)

	database, err := db.New(dbPath)
	require.NoError(t, err)
	defer database.Close()

	s, err := database.GetShopperByEmail(context.Background(), "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Sam", s.User.FirstName)

	_, err = database.GetCustomerByEmail(context.Background(), "ana@example.com")
	assert.NoError(t, err)
}

func TestUserAddRejectsUnknownRole(t *testing.T) {
	t.Setenv("SHOPBUDDY_DB_PATH", filepath.Join(t.TempDir(), "shopbuddy.db"))

	_, err := run(t, "user", "add", "admin", "root@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "shopbuddy.db")
	t.Setenv("SHOPBUDDY_DB_PATH", dbPath)
	t.Setenv("SHOPBUDDY_LOG_LEVEL", "error")

	_, err := run(t, "migrate")
	require.NoError(t, err)
	assert.FileExists(t, dbPath)
}

func TestInvalidConfigIsReported(t *testing.T) {
	t.Setenv("SHOPBUDDY_GATEWAY_PROVIDER", "stripe")

	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.secret_key")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	t.Setenv("SHOPBUDDY_GATEWAY_PROVIDER", "stripe")
	t.Setenv("SHOPBUDDY_GATEWAY_SECRET_KEY", "sk_live_secret")
	t.Setenv("SHOPBUDDY_LOG_LEVEL", "error")

	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: stripe")
	assert.Contains(t, out, "********")
	assert.Contains(t, out, "request_timeout: 15s")
	assert.NotContains(t, out, "sk_live_secret")
}

func TestNewGateway(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw, err := newGateway(config.GatewayConfig{Provider: "fake", RatePerSecond: 5, Burst: 1}, logger)
	require.NoError(t, err)
	assert.IsType(t, &gateway.Throttled{}, gw)

	_, err = newGateway(config.GatewayConfig{Provider: "stripe", RatePerSecond: 5, Burst: 1}, logger)
	assert.Error(t, err, "stripe needs a secret key")
}

func TestNewGeocoder(t *testing.T) {
	geo, err := newGeocoder(config.GeocodingConfig{Provider: "none"}, nil)
	require.NoError(t, err)
	assert.Equal(t, geocode.Nop{}, geo)
}
