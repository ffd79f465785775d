package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.Filter.MaxAgeMinutes)
	assert.Equal(t, 500.0, cfg.Filter.MinLiquidityUSD)
	assert.Equal(t, 100.0, cfg.Filter.MinVolumeH1USD)
	assert.Equal(t, 15*time.Second, cfg.Monitor.PollInterval.Std())
	assert.Equal(t, time.Second, cfg.Monitor.InitialBackoff.Std())
	assert.Equal(t, 64*time.Second, cfg.Monitor.MaxBackoff.Std())
	assert.Equal(t, []string{WrappedSOLMint, USDCMint, USDTMint}, cfg.Listing.ExcludedAddresses)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, 1000, cfg.Storage.MaxAlerts)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
listing:
  limit: 25
  excluded_addresses:
    - So11111111111111111111111111111111111111112
filter:
  max_age_minutes: 10
monitor:
  poll_interval: 1m
  notify_unknown_age: true
telegram:
  bot_token: file-token
  chat_id: "-100123"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Listing.Limit)
	assert.Equal(t, []string{WrappedSOLMint}, cfg.Listing.ExcludedAddresses)
	assert.Equal(t, 10.0, cfg.Filter.MaxAgeMinutes)
	assert.Equal(t, 500.0, cfg.Filter.MinLiquidityUSD, "unset keys keep defaults")
	assert.Equal(t, time.Minute, cfg.Monitor.PollInterval.Std())
	assert.True(t, cfg.Monitor.NotifyUnknownAge)
	assert.Equal(t, "file-token", cfg.Telegram.BotToken)
	assert.NoError(t, cfg.ValidateNotifier())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "telegram:\n  bot_token: file-token\n")

	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("NEWER_THAN_MINUTES", "3")
	t.Setenv("MIN_LIQUIDITY_USD", "1500.5")
	t.Setenv("MIN_VOLUME_1H", "250")
	t.Setenv("POLL_INTERVAL", "1d")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
	assert.Equal(t, 3.0, cfg.Filter.MaxAgeMinutes)
	assert.Equal(t, 1500.5, cfg.Filter.MinLiquidityUSD)
	assert.Equal(t, 250.0, cfg.Filter.MinVolumeH1USD)
	assert.Equal(t, 24*time.Hour, cfg.Monitor.PollInterval.Std())
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, "config.env", "BIRDEYE_API_KEY=from-dotenv\n")

	// godotenv never overrides variables that are already set; make sure the
	// key is unset for this test and restored afterwards.
	t.Setenv("BIRDEYE_API_KEY", "")
	require.NoError(t, os.Unsetenv("BIRDEYE_API_KEY"))

	cfg, err := Load("", envPath, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Listing.APIKey)
}

func TestLoad_BadValues(t *testing.T) {
	t.Run("bad env float", func(t *testing.T) {
		t.Setenv("MIN_LIQUIDITY_USD", "plenty")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("bad yaml duration", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", "monitor:\n  poll_interval: soon\n")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative age", func(c *Config) { c.Filter.MaxAgeMinutes = -1 }},
		{"negative liquidity", func(c *Config) { c.Filter.MinLiquidityUSD = -1 }},
		{"zero limit", func(c *Config) { c.Listing.Limit = 0 }},
		{"zero poll interval", func(c *Config) { c.Monitor.PollInterval = 0 }},
		{"zero max alerts", func(c *Config) { c.Storage.MaxAlerts = 0 }},
		{"backoff max below initial", func(c *Config) { c.Monitor.MaxBackoff = Duration(time.Millisecond) }},
		{"malformed excluded address", func(c *Config) { c.Listing.ExcludedAddresses = []string{"0OIl"} }},
		{"short excluded address", func(c *Config) { c.Listing.ExcludedAddresses = []string{"abc"} }},
		{"malformed wallet", func(c *Config) { c.Signals.Wallets = map[string]string{"alice": "nope!"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateNotifier(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ValidateNotifier())

	cfg.Telegram.BotToken = "token"
	assert.Error(t, cfg.ValidateNotifier())

	cfg.Telegram.ChatID = "@channel"
	assert.NoError(t, cfg.ValidateNotifier())
}

func TestSignalsEnabled(t *testing.T) {
	s := SignalsConfig{}
	assert.False(t, s.Enabled())

	s.RPCEndpoint = "http://localhost:8899"
	assert.False(t, s.Enabled())

	s.Wallets = map[string]string{"alice": WrappedSOLMint}
	assert.True(t, s.Enabled())
}
