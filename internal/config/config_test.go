package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"JWT_SECRET":   "secret",
		"DATABASE_URL": "",
		"REDIS_URL":    "",
		"PORT":         "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Empty(t, cfg.DatabaseURL)
	require.Equal(t, 5*time.Second, cfg.FinalizeTimeout)
	require.Equal(t, 12*time.Hour, cfg.DraftTTL)
	require.Equal(t, 10, cfg.LowStockThreshold)
	require.Equal(t, "Rs.", cfg.CurrencyLabel)
	require.Equal(t, "10-M", cfg.LoginRateLimit)
	require.True(t, cfg.RunMigrations)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"JWT_SECRET":           "secret",
		"PORT":                 ":9090",
		"FINALIZE_TIMEOUT":     "750ms",
		"LOW_STOCK_THRESHOLD":  "3",
		"CURRENCY_LABEL":       "IDR",
		"CORS_ALLOWED_ORIGINS": "https://a.example, ,https://b.example",
		"RUN_MIGRATIONS":       "false",
		"DRAFT_TTL":            "not-a-duration",
		"RECEIPT_TIMEZONE":     "UTC",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 750*time.Millisecond, cfg.FinalizeTimeout)
	require.Equal(t, 3, cfg.LowStockThreshold)
	require.Equal(t, "IDR", cfg.CurrencyLabel)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.RunMigrations)
	require.Equal(t, 12*time.Hour, cfg.DraftTTL, "invalid durations fall back to the default")
	require.Equal(t, "UTC", cfg.Location().String())
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := LoadForTests(map[string]string{"JWT_SECRET": ""})
	require.ErrorContains(t, err, "JWT_SECRET")
}
