package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	"github.com/vitos/listing_alert_bot/internal/domain"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

// Well-known mints that are never new listings.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

type Config struct {
	Listing     ListingConfig     `yaml:"listing"`
	Dexscreener DexscreenerConfig `yaml:"dexscreener"`
	Filter      FilterConfig      `yaml:"filter"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Signals     SignalsConfig     `yaml:"signals"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
	Server      ServerConfig      `yaml:"server"`
}

type ListingConfig struct {
	BaseURL            string   `yaml:"base_url"`
	APIKey             string   `yaml:"api_key"`
	Chain              string   `yaml:"chain"`
	Limit              int      `yaml:"limit"`
	Timeout            Duration `yaml:"timeout"`
	ExcludedAddresses  []string `yaml:"excluded_addresses"`
	ResolveConcurrency int      `yaml:"resolve_concurrency"`
}

type DexscreenerConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

type FilterConfig struct {
	MaxAgeMinutes   float64 `yaml:"max_age_minutes"`
	MinLiquidityUSD float64 `yaml:"min_liquidity_usd"`
	MinVolumeH1USD  float64 `yaml:"min_volume_1h_usd"`
}

type TelegramConfig struct {
	BaseURL  string   `yaml:"base_url"`
	BotToken string   `yaml:"bot_token"`
	ChatID   string   `yaml:"chat_id"`
	Timeout  Duration `yaml:"timeout"`
}

// SignalsConfig enables the wallet-holdings signal source when both an RPC
// endpoint and at least one wallet are set.
type SignalsConfig struct {
	RPCEndpoint string            `yaml:"rpc_endpoint"`
	Wallets     map[string]string `yaml:"wallets"` // observer name -> wallet address
	Timeout     Duration          `yaml:"timeout"`
}

type MonitorConfig struct {
	PollInterval     Duration `yaml:"poll_interval"`
	InitialBackoff   Duration `yaml:"initial_backoff"`
	MaxBackoff       Duration `yaml:"max_backoff"`
	NotifyUnknownAge bool     `yaml:"notify_unknown_age"`
}

type StorageConfig struct {
	DSN       string `yaml:"dsn"`
	MaxAlerts int    `yaml:"max_alerts"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the status server
}

// Duration accepts "15s", "1m30s" and day/week units such as "1d".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := str2duration.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Default() *Config {
	return &Config{
		Listing: ListingConfig{
			BaseURL:            "https://public-api.birdeye.so",
			Chain:              "solana",
			Limit:              10,
			Timeout:            Duration(10 * time.Second),
			ExcludedAddresses:  []string{WrappedSOLMint, USDCMint, USDTMint},
			ResolveConcurrency: 4,
		},
		Dexscreener: DexscreenerConfig{
			BaseURL: "https://api.dexscreener.com",
			Timeout: Duration(5 * time.Second),
		},
		Filter: FilterConfig{
			MaxAgeMinutes:   5,
			MinLiquidityUSD: 500,
			MinVolumeH1USD:  100,
		},
		Telegram: TelegramConfig{
			BaseURL: "https://api.telegram.org",
			Timeout: Duration(10 * time.Second),
		},
		Signals: SignalsConfig{
			Timeout: Duration(5 * time.Second),
		},
		Monitor: MonitorConfig{
			PollInterval:   Duration(15 * time.Second),
			InitialBackoff: Duration(time.Second),
			MaxBackoff:     Duration(64 * time.Second),
		},
		Storage: StorageConfig{
			DSN:       ":memory:",
			MaxAlerts: 1000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (a
// missing file is not an error), the given .env files and finally the process
// environment.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("open config %s: %w", path, err)
		}
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setFloat := func(key string, dst *float64) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = f
		return nil
	}

	setString("TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken)
	setString("TELEGRAM_CHAT_ID", &cfg.Telegram.ChatID)
	setString("BIRDEYE_API_KEY", &cfg.Listing.APIKey)
	setString("SOLANA_RPC_ENDPOINT", &cfg.Signals.RPCEndpoint)
	setString("LOG_LEVEL", &cfg.Logging.Level)

	if err := setFloat("NEWER_THAN_MINUTES", &cfg.Filter.MaxAgeMinutes); err != nil {
		return err
	}
	if err := setFloat("MIN_LIQUIDITY_USD", &cfg.Filter.MinLiquidityUSD); err != nil {
		return err
	}
	if err := setFloat("MIN_VOLUME_1H", &cfg.Filter.MinVolumeH1USD); err != nil {
		return err
	}

	if v, ok := os.LookupEnv("POLL_INTERVAL"); ok && v != "" {
		d, err := str2duration.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("env POLL_INTERVAL: %w", err)
		}
		cfg.Monitor.PollInterval = Duration(d)
	}
	return nil
}

// Validate checks everything the fetch pipeline needs.
func (c *Config) Validate() error {
	if c.Filter.MaxAgeMinutes < 0 {
		return fmt.Errorf("filter.max_age_minutes must be >= 0")
	}
	if c.Filter.MinLiquidityUSD < 0 {
		return fmt.Errorf("filter.min_liquidity_usd must be >= 0")
	}
	if c.Filter.MinVolumeH1USD < 0 {
		return fmt.Errorf("filter.min_volume_1h_usd must be >= 0")
	}
	if c.Listing.BaseURL == "" {
		return fmt.Errorf("listing.base_url is required")
	}
	if c.Listing.Limit <= 0 {
		return fmt.Errorf("listing.limit must be > 0")
	}
	if c.Storage.MaxAlerts <= 0 {
		return fmt.Errorf("storage.max_alerts must be > 0")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be > 0")
	}
	if c.Monitor.InitialBackoff <= 0 || c.Monitor.MaxBackoff < c.Monitor.InitialBackoff {
		return fmt.Errorf("monitor backoff must satisfy 0 < initial_backoff <= max_backoff")
	}
	for _, addr := range c.Listing.ExcludedAddresses {
		if err := ValidateAddress(addr); err != nil {
			return fmt.Errorf("listing.excluded_addresses: %w", err)
		}
	}
	for name, addr := range c.Signals.Wallets {
		if err := ValidateAddress(addr); err != nil {
			return fmt.Errorf("signals.wallets[%s]: %w", name, err)
		}
	}
	return nil
}

// ValidateNotifier checks the chat credentials.
func (c *Config) ValidateNotifier() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required (TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram chat id is required (TELEGRAM_CHAT_ID)")
	}
	return nil
}

// ValidateAddress checks that addr is a base58 encoded 32 byte public key.
func ValidateAddress(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("address %q is not base58: %w", addr, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address %q decodes to %d bytes, want 32", addr, len(raw))
	}
	return nil
}

func (f FilterConfig) ToDomain() domain.FilterConfig {
	return domain.FilterConfig{
		MaxAgeMinutes:   f.MaxAgeMinutes,
		MinLiquidityUSD: f.MinLiquidityUSD,
		MinVolumeH1USD:  f.MinVolumeH1USD,
	}
}

// Enabled reports whether the wallet-holdings source should be used.
func (s SignalsConfig) Enabled() bool {
	return s.RPCEndpoint != "" && len(s.Wallets) > 0
}
