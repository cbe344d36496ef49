package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/farmbot/core/config"
	coredatabase "github.com/m3rciful/farmbot/core/database"
	"github.com/m3rciful/farmbot/core/ledger"
	"github.com/m3rciful/farmbot/core/telegram"
	"github.com/m3rciful/farmbot/core/telegram/updates"
	"github.com/m3rciful/farmbot/internal/fsm"
	"github.com/m3rciful/farmbot/internal/store/storetest"
)

type fakeClient struct {
	mu       sync.Mutex
	sent     []string
	acks     []string
	commands []tele.Command
	webhook  bool
	batch    []tele.Update
	sentCh   chan struct{}
}

func newFakeClient(batch ...tele.Update) *fakeClient {
	return &fakeClient{batch: batch, sentCh: make(chan struct{}, 16)}
}

func (f *fakeClient) Send(_ context.Context, _ int64, msg telegram.Message) (int, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg.Text)
	n := len(f.sent)
	f.mu.Unlock()
	f.sentCh <- struct{}{}
	return n, nil
}

func (f *fakeClient) SendAsync(ctx context.Context, chatID int64, msg telegram.Message) error {
	_, err := f.Send(ctx, chatID, msg)
	return err
}

func (f *fakeClient) Edit(context.Context, int64, int, telegram.Message) error { return nil }

func (f *fakeClient) Delete(context.Context, int64, int) error { return nil }

func (f *fakeClient) Ack(_ context.Context, _ string, toast string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, toast)
	return nil
}

func (f *fakeClient) Poll(ctx context.Context, _, _ int, _ time.Duration) ([]tele.Update, error) {
	f.mu.Lock()
	batch := f.batch
	f.batch = nil
	f.mu.Unlock()
	if len(batch) > 0 {
		return batch, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeClient) Me(context.Context) (*tele.User, error) {
	return &tele.User{ID: 1, Username: "farm_bot", IsBot: true}, nil
}

func (f *fakeClient) DeleteWebhook(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhook = true
	return nil
}

func (f *fakeClient) SetCommands(_ context.Context, reg *telegram.Registry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = reg.ListCommands(true)
	return nil
}

func testConfig() *Config {
	cfg := &Config{Config: coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "1:t"}}}
	cfg.Database = coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: "unused.db"}
	return cfg
}

func newTestApp(t *testing.T, client *fakeClient) *App {
	t.Helper()
	cfg := testConfig()
	require.NoError(t, cfg.Normalize())
	a, err := New(context.Background(), cfg, Deps{
		DB:     storetest.OpenDB(t),
		Client: client,
		Ledger: ledger.NewMemory(time.Minute),
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
telegram:
  admin_id: 7
database:
  driver: sqlite3
  path: farm.db
shop:
  max_quantity: 50
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("BOT_TOKEN", "123:env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "123:env", cfg.Telegram.Token)
	assert.Equal(t, int64(7), cfg.Telegram.AdminID)
	assert.Equal(t, coredatabase.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 1, cfg.Database.MaxConnections)
	assert.Equal(t, 50.0, cfg.Shop.MaxQuantity)
	assert.Equal(t, 5, cfg.Shop.RecentLimit)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestNormalizeShopDefaults(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, float64(fsm.DefaultMaxQuantity), cfg.Shop.MaxQuantity)

	cfg = testConfig()
	cfg.Shop.MaxQuantity = -1
	assert.Error(t, cfg.Normalize())
}

func TestNewRequiresDatabase(t *testing.T) {
	_, err := New(context.Background(), testConfig(), Deps{})
	assert.Error(t, err)
	_, err = New(context.Background(), nil, Deps{})
	assert.Error(t, err)
}

func TestCommandsMenu(t *testing.T) {
	reg := Commands()
	var names []string
	for _, c := range reg.ListCommands(true) {
		names = append(names, c.Text)
	}
	assert.Equal(t, []string{"cancel", "help", "start"}, names)

	key, cmd, ok := reg.LookupCommand("/stats")
	require.True(t, ok)
	assert.Equal(t, "/stats", key)
	assert.True(t, cmd.AdminOnly)
}

func TestRunHandlesUpdatesUntilCancelled(t *testing.T) {
	client := newFakeClient(tele.Update{
		ID: 10,
		Message: &tele.Message{
			ID:     1,
			Sender: &tele.User{ID: 42, FirstName: "Olena"},
			Chat:   &tele.Chat{ID: 42},
			Text:   "/start",
		},
	})
	a := newTestApp(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-client.sentCh:
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.True(t, client.webhook)
	assert.Len(t, client.commands, 3)
	assert.NotEmpty(t, client.sent)
	assert.Equal(t, 10, a.updates.Cursor())
}

func TestOnLimitedAnswersEveryKind(t *testing.T) {
	client := newFakeClient()
	a := newTestApp(t, client)

	msg := tele.Update{Message: &tele.Message{Text: "hi", Chat: &tele.Chat{ID: 42}}}
	require.NoError(t, a.onLimited(context.Background(), msg))
	require.NoError(t, a.onLimited(context.Background(), tele.Update{Callback: &tele.Callback{ID: "c1"}}))
	assert.Equal(t, []string{rateLimitToast}, client.acks)
	assert.Equal(t, []string{rateLimitReply}, client.sent)
}

func TestExampleConfigKeepsBackToBackAnswers(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:env")
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	require.Positive(t, cfg.RateLimit.IntervalMS)
	assert.Contains(t, cfg.RateLimit.ExcludeUpdates, "message")

	var handled []string
	var limited []int
	h := updates.Chain(func(_ context.Context, u tele.Update) error {
		handled = append(handled, u.Message.Text)
		return nil
	}, telegram.DefaultMiddlewares(&cfg.Config, func(_ context.Context, u tele.Update) error {
		limited = append(limited, u.ID)
		return nil
	})...)

	user := &tele.User{ID: 42}
	chat := &tele.Chat{ID: 42, Type: tele.ChatPrivate}
	ctx := context.Background()
	require.NoError(t, h(ctx, tele.Update{ID: 1, Message: &tele.Message{Sender: user, Chat: chat, Text: "Ivan"}}))
	require.NoError(t, h(ctx, tele.Update{ID: 2, Message: &tele.Message{Sender: user, Chat: chat, Text: "0501234567"}}))

	assert.Equal(t, []string{"Ivan", "0501234567"}, handled)
	assert.Empty(t, limited)
}

func TestStatsMergesStoreAndLoop(t *testing.T) {
	a := newTestApp(t, newFakeClient())
	st, err := a.stats(context.Background())
	require.NoError(t, err)
	assert.Contains(t, st, "orders")
	assert.Contains(t, st, "users")
	assert.Contains(t, st, "updates_received")
	assert.NotContains(t, st, "send_errors")
}
