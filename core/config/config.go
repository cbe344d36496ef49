package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// TokenParam names an SSM parameter holding the token; used only when Token is empty.
	TokenParam string `yaml:"token_param" envconfig:"BOT_TOKEN_PARAM"`
	AdminID    int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for per-user rate limiting.
// ExcludeUpdates accepts update kinds that bypass limiting: "callback" or "message".
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// UpdatesConfig tunes the long-poll loop and the per-user handler pool.
type UpdatesConfig struct {
	BatchLimit      int `yaml:"batch_limit" envconfig:"UPDATES_BATCH_LIMIT"`
	PollWaitSeconds int `yaml:"poll_wait_seconds" envconfig:"UPDATES_POLL_WAIT_SECONDS"`
	MaxInFlight     int `yaml:"max_in_flight" envconfig:"UPDATES_MAX_IN_FLIGHT"`
	ErrorThreshold  int `yaml:"error_threshold" envconfig:"UPDATES_ERROR_THRESHOLD"`
	CooldownSeconds int `yaml:"cooldown_seconds" envconfig:"UPDATES_COOLDOWN_SECONDS"`
	HandlerTimeoutS int `yaml:"handler_timeout_seconds" envconfig:"UPDATES_HANDLER_TIMEOUT_SECONDS"`
	DedupeTTLMinute int `yaml:"dedupe_ttl_minutes" envconfig:"UPDATES_DEDUPE_TTL_MINUTES"`
}

// PollWait returns the long-poll wait as a duration.
func (u UpdatesConfig) PollWait() time.Duration {
	return time.Duration(u.PollWaitSeconds) * time.Second
}

// Cooldown returns the pause applied after an error burst.
func (u UpdatesConfig) Cooldown() time.Duration {
	return time.Duration(u.CooldownSeconds) * time.Second
}

// HandlerTimeout bounds handling of a single update.
func (u UpdatesConfig) HandlerTimeout() time.Duration {
	return time.Duration(u.HandlerTimeoutS) * time.Second
}

// DedupeTTL is how long processed update ids are remembered.
func (u UpdatesConfig) DedupeTTL() time.Duration {
	return time.Duration(u.DedupeTTLMinute) * time.Minute
}

// HealthConfig configures the side HTTP surface for liveness probes.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"HEALTH_ENABLED"`
	Listen  string `yaml:"listen" envconfig:"HEALTH_LISTEN"`
}

// RedisConfig points at an optional Redis used for the update ledger.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Updates   UpdatesConfig   `yaml:"updates"`
	Health    HealthConfig    `yaml:"health"`
	Redis     RedisConfig     `yaml:"redis"`
}

// LoadDotEnv loads variables from a .env file when it exists. Already set
// variables win over the file.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Decode reads YAML from path into out and applies the environment overlay.
// It is shared by every config type that embeds Config.
func Decode(path string, out any) error {
	if err := LoadDotEnv(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", out); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	cfg.Telegram.TokenParam = strings.TrimSpace(cfg.Telegram.TokenParam)
	if cfg.Telegram.Token == "" && cfg.Telegram.TokenParam == "" {
		return fmt.Errorf("telegram token is required (telegram.token or telegram.token_param)")
	}

	u := &cfg.Updates
	switch {
	case u.BatchLimit <= 0:
		u.BatchLimit = 100
	case u.BatchLimit > 100:
		u.BatchLimit = 100
	}
	if u.PollWaitSeconds < 0 {
		return fmt.Errorf("updates.poll_wait_seconds must be >= 0")
	}
	if u.PollWaitSeconds == 0 {
		u.PollWaitSeconds = 30
	}
	if u.MaxInFlight <= 0 {
		u.MaxInFlight = 64
	}
	if u.ErrorThreshold <= 0 {
		u.ErrorThreshold = 10
	}
	if u.CooldownSeconds <= 0 {
		u.CooldownSeconds = 30
	}
	if u.HandlerTimeoutS <= 0 {
		u.HandlerTimeoutS = 30
	}
	if u.DedupeTTLMinute <= 0 {
		u.DedupeTTLMinute = 60
	}

	if strings.TrimSpace(cfg.Health.Listen) == "" {
		cfg.Health.Listen = ":8080"
	}
	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = "farmbot"
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	return nil
}
