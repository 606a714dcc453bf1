package config

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost:5432/envioex?sslmode=disable",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "test-secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "rt", cfg.RefreshCookieName)
	require.Equal(t, http.SameSiteLaxMode, cfg.RefreshCookieSameSite)
	require.True(t, cfg.BaseTaxEnabled)
	require.Equal(t, "1", cfg.ExchangeRateDefault.String())
	require.Equal(t, "3.5", cfg.CostPerPound.String())
	require.Equal(t, 30, cfg.AnalyticsDefaultRange)
	require.True(t, cfg.WebhookDeliveryEnabled)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveExchangeRate(t *testing.T) {
	env := baseEnv()
	env["EXCHANGE_RATE_DEFAULT"] = "0"
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadPricingOverrides(t *testing.T) {
	env := baseEnv()
	env["EXCHANGE_RATE_DEFAULT"] = "36.5"
	env["COST_PER_POUND"] = "4.25"
	env["BASE_TAX_ENABLED"] = "false"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, "36.5", cfg.ExchangeRateDefault.String())
	require.Equal(t, "4.25", cfg.CostPerPound.String())
	require.False(t, cfg.BaseTaxEnabled)
}

func TestParseTopicToggles(t *testing.T) {
	toggles := parseTopicToggles("order.purchased=true, invoice.created=false ,delivery.delivered")
	require.Equal(t, map[string]bool{
		"order.purchased":    true,
		"invoice.created":    false,
		"delivery.delivered": true,
	}, toggles)
	require.Nil(t, parseTopicToggles(""))
}
