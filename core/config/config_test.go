package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNormalizeRequiresToken(t *testing.T) {
	err := Normalize(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestNormalizeAcceptsTokenParam(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{TokenParam: "/farmbot/token"}}
	require.NoError(t, Normalize(cfg))
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "123:abc"}}
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, 100, cfg.Updates.BatchLimit)
	assert.Equal(t, 30*time.Second, cfg.Updates.PollWait())
	assert.Equal(t, 10, cfg.Updates.ErrorThreshold)
	assert.Equal(t, 30*time.Second, cfg.Updates.Cooldown())
	assert.Equal(t, time.Hour, cfg.Updates.DedupeTTL())
	assert.Equal(t, ":8080", cfg.Health.Listen)
	assert.Equal(t, "farmbot", cfg.Redis.Prefix)
}

func TestNormalizeClampsBatchLimit(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t"}, Updates: UpdatesConfig{BatchLimit: 500}}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, 100, cfg.Updates.BatchLimit)
}

func TestNormalizeRateLimitExclusions(t *testing.T) {
	cfg := &Config{
		Telegram:  TelegramConfig{Token: "t"},
		RateLimit: RateLimitConfig{ExcludeUpdates: []string{" Callback ", "MESSAGE"}},
	}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, []string{"callback", "message"}, cfg.RateLimit.ExcludeUpdates)

	cfg.RateLimit.ExcludeUpdates = []string{"inline_query"}
	assert.Error(t, Normalize(cfg))
}

func TestLoadAppliesEnvOverlay(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: from-file
  admin_id: 7
updates:
  poll_wait_seconds: 5
`)
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, int64(7), cfg.Telegram.AdminID)
	assert.Equal(t, 5*time.Second, cfg.Updates.PollWait())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadDotEnvReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FARMBOT_TEST_DOTENV=yes\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("FARMBOT_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "yes", os.Getenv("FARMBOT_TEST_DOTENV"))
}
