package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Hyperliquid struct {
		InfoURL string        `yaml:"info_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"hyperliquid"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Ledger    struct {
		// Driver selects the durable slot: "file" or "sqlite".
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"ledger"`
	Pagination struct {
		FillsPageCap   int           `yaml:"fills_page_cap"`
		FundingPageCap int           `yaml:"funding_page_cap"`
		MaxPages       int           `yaml:"max_pages"`
		PageDelay      time.Duration `yaml:"page_delay"`
		Lookback       time.Duration `yaml:"lookback"`
	} `yaml:"pagination"`
	Accounts []string `yaml:"accounts"`
	Schedule struct {
		RefreshCron string `yaml:"refresh_cron"`
		DigestCron  string `yaml:"digest_cron"`
		Parallelism int    `yaml:"parallelism"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Logging struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Proxy string `yaml:"proxy"`
}

// RateLimit configures the weight budget shared by all info requests.
type RateLimit struct {
	Limit        int            `yaml:"limit"`
	Window       time.Duration  `yaml:"window"`
	MinSpacing   time.Duration  `yaml:"min_spacing"`
	SafetyMargin time.Duration  `yaml:"safety_margin"`
	MaxWait      time.Duration  `yaml:"max_wait"`
	RetryMax     int            `yaml:"retry_max"`
	BackoffBase  time.Duration  `yaml:"backoff_base"`
	BackoffMax   time.Duration  `yaml:"backoff_max"`
	LightWeight  int            `yaml:"light_weight"`
	HeavyWeight  int            `yaml:"heavy_weight"`
	LightTypes   []string       `yaml:"light_types"`
	Overrides    map[string]int `yaml:"overrides"`
}

// DefaultLightTypes lists the info request types billed at the light weight.
var DefaultLightTypes = []string{
	"allMids",
	"clearinghouseState",
	"spotClearinghouseState",
	"l2Book",
	"orderStatus",
	"exchangeStatus",
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Zero is a valid setting for these, so they are seeded before parsing
	// and only replaced when the file names them.
	cfg.RateLimit.MinSpacing = 200 * time.Millisecond
	cfg.RateLimit.SafetyMargin = 50 * time.Millisecond
	cfg.RateLimit.RetryMax = 3

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("HL_INFO_URL"); v != "" {
		cfg.Hyperliquid.InfoURL = v
	}
	if v := os.Getenv("HL_ACCOUNTS"); v != "" {
		cfg.Accounts = splitList(v)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_ENV"); v != "" {
		cfg.Logging.Env = v
	}
	if v := os.Getenv("RATE_LIMIT_WEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Limit = n
		}
	}
	if v := os.Getenv("CRON_REFRESH"); v != "" {
		cfg.Schedule.RefreshCron = v
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Hyperliquid.InfoURL == "" {
		cfg.Hyperliquid.InfoURL = "https://api.hyperliquid.xyz/info"
	}
	if cfg.Hyperliquid.Timeout == 0 {
		cfg.Hyperliquid.Timeout = 15 * time.Second
	}

	rl := &cfg.RateLimit
	if rl.Limit == 0 {
		rl.Limit = 1100
	}
	if rl.Window == 0 {
		rl.Window = time.Minute
	}
	if rl.MaxWait == 0 {
		rl.MaxWait = 5 * time.Second
	}
	if rl.BackoffBase == 0 {
		rl.BackoffBase = time.Second
	}
	if rl.BackoffMax == 0 {
		rl.BackoffMax = 8 * time.Second
	}
	if rl.LightWeight == 0 {
		rl.LightWeight = 2
	}
	if rl.HeavyWeight == 0 {
		rl.HeavyWeight = 20
	}
	if len(rl.LightTypes) == 0 {
		rl.LightTypes = append([]string(nil), DefaultLightTypes...)
	}

	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = "file"
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "data/ratelimit_ledger.json"
	}

	pg := &cfg.Pagination
	if pg.FillsPageCap == 0 {
		pg.FillsPageCap = 2000
	}
	if pg.FundingPageCap == 0 {
		pg.FundingPageCap = 500
	}
	if pg.MaxPages == 0 {
		pg.MaxPages = 10
	}
	if pg.Lookback == 0 {
		pg.Lookback = 30 * 24 * time.Hour
	}

	if cfg.Schedule.RefreshCron == "" {
		cfg.Schedule.RefreshCron = "0 */5 * * * *"
	}
	if cfg.Schedule.DigestCron == "" {
		cfg.Schedule.DigestCron = "0 0 8 * * *"
	}
	if cfg.Schedule.Parallelism == 0 {
		cfg.Schedule.Parallelism = 2
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/liquid_sentinel.db"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Logging.Env == "" {
		cfg.Logging.Env = "prod"
	}
}

// Validate checks that all required fields are set and mutually consistent.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("accounts: at least one address is required")
	}
	for _, a := range c.Accounts {
		if !IsAddress(a) {
			return fmt.Errorf("accounts: %q is not a 0x-prefixed 20-byte address", a)
		}
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return c.ValidateClient()
}

// ValidateClient checks only the settings the info API client needs, for
// one-shot commands that do not track accounts.
func (c *Config) ValidateClient() error {
	rl := c.RateLimit
	if rl.Limit <= 0 {
		return fmt.Errorf("rate_limit.limit must be positive")
	}
	if rl.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if rl.RetryMax < 0 {
		return fmt.Errorf("rate_limit.retry_max must not be negative")
	}
	if rl.MinSpacing < 0 || rl.SafetyMargin < 0 {
		return fmt.Errorf("rate_limit.min_spacing and safety_margin must not be negative")
	}
	if rl.LightWeight <= 0 || rl.LightWeight > rl.Limit {
		return fmt.Errorf("rate_limit.light_weight must be in (0, limit]")
	}
	if rl.HeavyWeight <= 0 || rl.HeavyWeight > rl.Limit {
		return fmt.Errorf("rate_limit.heavy_weight must be in (0, limit]")
	}
	for typ, w := range rl.Overrides {
		if w <= 0 || w > rl.Limit {
			return fmt.Errorf("rate_limit.overrides.%s must be in (0, limit]", typ)
		}
	}
	switch c.Ledger.Driver {
	case "file", "sqlite":
	default:
		return fmt.Errorf("ledger.driver must be \"file\" or \"sqlite\", got %q", c.Ledger.Driver)
	}
	if c.Pagination.MaxPages < 1 {
		return fmt.Errorf("pagination.max_pages must be at least 1")
	}
	return nil
}

// IsAddress reports whether s looks like a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// TelegramEnabled reports whether digests should be sent.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
