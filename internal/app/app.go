// Package app wires the bot's components together and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/farmbot/core/buildinfo"
	"github.com/m3rciful/farmbot/core/health"
	"github.com/m3rciful/farmbot/core/ledger"
	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/core/telegram"
	"github.com/m3rciful/farmbot/core/telegram/commands"
	"github.com/m3rciful/farmbot/core/telegram/sender"
	"github.com/m3rciful/farmbot/core/telegram/updates"
	"github.com/m3rciful/farmbot/internal/bot"
	"github.com/m3rciful/farmbot/internal/cart"
	"github.com/m3rciful/farmbot/internal/catalog"
	"github.com/m3rciful/farmbot/internal/fsm"
	"github.com/m3rciful/farmbot/internal/notify"
	"github.com/m3rciful/farmbot/internal/orders"
	"github.com/m3rciful/farmbot/internal/render"
	"github.com/m3rciful/farmbot/internal/store"
)

const (
	startupTimeout = 15 * time.Second
	rateLimitToast = "Too fast, please wait a moment."
	rateLimitReply = "You're sending messages too fast. Please repeat your last message."
)

// Messenger is the Telegram surface the app needs beyond the handler's.
type Messenger interface {
	bot.Messenger
	notify.AsyncSender
	updates.Poller
	Me(ctx context.Context) (*tele.User, error)
	DeleteWebhook(ctx context.Context) error
	SetCommands(ctx context.Context, reg *telegram.Registry) error
}

// Deps carries infrastructure built by bootstrap. Client and Ledger are
// optional and built from the config when nil.
type Deps struct {
	DB     *sqlx.DB
	Client Messenger
	Ledger ledger.Ledger
}

// App owns every long-lived component of the bot.
type App struct {
	cfg      *Config
	store    *store.Store
	shop     *catalog.Shop
	client   Messenger
	sender   *sender.Dispatcher
	registry *telegram.Registry
	updates  *updates.Dispatcher
	health   *health.Server
	closers  []func() error
}

// New builds the application graph without contacting Telegram.
func New(ctx context.Context, cfg *Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if deps.DB == nil {
		return nil, errors.New("app: database is required")
	}

	shop, err := catalog.Load(cfg.Shop.Path)
	if err != nil {
		return nil, err
	}
	st := store.New(deps.DB)
	a := &App{cfg: cfg, store: st, shop: shop, registry: Commands()}

	a.client = deps.Client
	if a.client == nil {
		a.sender = sender.NewDispatcher(sender.Options{MaxRetries: 3})
		a.closers = append(a.closers, func() error { a.sender.Close(); return nil })
		client, err := telegram.NewClient(telegram.ClientOptions{
			Token:    cfg.Telegram.Token,
			PollWait: cfg.Updates.PollWait(),
			Sender:   a.sender,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.client = client
	}

	carts := cart.NewManager(st, shop.Catalog)
	svc := orders.NewService(st, st, shop.Catalog)
	machine, err := fsm.NewMachine(fsm.Options{
		Shop:        shop,
		Cart:        carts,
		MaxQuantity: cfg.Shop.MaxQuantity,
		AdminID:     cfg.Telegram.AdminID,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	handler, err := bot.New(bot.Options{
		Client:  a.client,
		Store:   st,
		Machine: machine,
		Cart:    carts,
		Orders:  svc,
		Renderer: render.New(render.Options{
			Shop:        shop,
			Cart:        carts,
			Orders:      svc,
			Stats:       st,
			MaxQuantity: cfg.Shop.MaxQuantity,
			RecentLimit: cfg.Shop.RecentLimit,
		}),
		Notifier: notify.New(a.client, cfg.Telegram.AdminID, shop),
		Commands: a.registry,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	led := deps.Ledger
	if led == nil {
		if led, err = a.buildLedger(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	u := cfg.Updates
	a.updates, err = updates.New(updates.Options{
		Poller:         a.client,
		Handler:        updates.Chain(handler.Handle, telegram.DefaultMiddlewares(&cfg.Config, a.onLimited)...),
		Ledger:         led,
		BatchLimit:     u.BatchLimit,
		PollWait:       u.PollWait(),
		MaxInFlight:    u.MaxInFlight,
		ErrorThreshold: u.ErrorThreshold,
		Cooldown:       u.Cooldown(),
		HandlerTimeout: u.HandlerTimeout(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Health.Enabled {
		a.health = health.New(health.Options{
			Listen:  cfg.Health.Listen,
			Service: "farmbot",
			Version: buildinfo.Version,
			Ping:    st.Ping,
			Stats:   a.stats,
		})
	}
	return a, nil
}

// Commands lists the slash commands the bot answers to.
func Commands() *telegram.Registry {
	reg := telegram.NewRegistry()
	reg.RegisterCommand("/start", commands.Command{Description: "Main menu", Aliases: []string{"menu"}})
	reg.RegisterCommand("/help", commands.Command{Description: "How to order"})
	reg.RegisterCommand("/cancel", commands.Command{Description: "Cancel the current step"})
	reg.RegisterCommand("/stats", commands.Command{Description: "Shop statistics", AdminOnly: true, Hidden: true})
	return reg
}

func (a *App) buildLedger(ctx context.Context) (ledger.Ledger, error) {
	ttl := a.cfg.Updates.DedupeTTL()
	r := a.cfg.Redis
	if r.Addr == "" {
		logger.Info(ctx, logger.CompLedger, "ledger.ready",
			slog.String("backend", "memory"),
			slog.Duration("ttl", ttl),
		)
		return ledger.NewMemory(ttl), nil
	}
	red, err := ledger.NewRedis(ctx, ledger.RedisOptions{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Prefix:   r.Prefix,
		TTL:      ttl,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, red.Close)
	return red, nil
}

// onLimited answers throttled updates. Callbacks get a toast so the client
// stops its spinner; dropped messages get a reply asking to resend.
func (a *App) onLimited(ctx context.Context, u tele.Update) error {
	switch {
	case u.Callback != nil:
		return a.client.Ack(ctx, u.Callback.ID, rateLimitToast)
	case u.Message != nil && u.Message.Chat != nil:
		_, err := a.client.Send(ctx, u.Message.Chat.ID, telegram.Message{Text: rateLimitReply})
		return err
	}
	return nil
}

// stats merges store counters with the poll loop's.
func (a *App) stats(ctx context.Context) (map[string]int64, error) {
	st, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := st.Map()
	for k, v := range a.updates.Stats() {
		out[k] = v
	}
	if a.sender != nil {
		out["send_errors"] = int64(a.sender.ErrorCount())
	}
	return out, nil
}

// Run prepares the Telegram side and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.updates.Run(gctx)
	})
	if a.health != nil {
		g.Go(func() error {
			if err := a.health.Run(gctx); err != nil {
				return fmt.Errorf("app: health: %w", err)
			}
			return nil
		})
	}
	err := g.Wait()
	logger.Info(context.Background(), logger.CompApp, "shutdown",
		slog.Int("cursor", a.updates.Cursor()),
	)
	return err
}

func (a *App) start(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	me, err := a.client.Me(sctx)
	if err != nil {
		return fmt.Errorf("app: getMe: %w", err)
	}
	if err := a.client.DeleteWebhook(sctx); err != nil {
		return fmt.Errorf("app: delete webhook: %w", err)
	}
	if err := a.client.SetCommands(sctx, a.registry); err != nil {
		logger.Warn(ctx, logger.CompWire, "commands.skipped", slog.String("err", err.Error()))
	}

	attrs := []slog.Attr{
		slog.String("bot", me.Username),
		slog.Int("items", a.shop.Catalog.Len()),
		slog.Bool("admin_notify", a.cfg.Telegram.AdminID != 0),
		slog.Bool("health", a.health != nil),
	}
	if st, err := a.store.Stats(sctx); err != nil {
		logger.Warn(ctx, logger.CompDB, "stats.failed", slog.String("err", err.Error()))
	} else {
		attrs = append(attrs,
			slog.Int64("users", st.Users),
			slog.Int64("orders", st.Orders),
			slog.Int64("quick_orders", st.QuickOrders),
			slog.Int64("messages", st.Messages),
			slog.Int64("active_carts", st.ActiveCarts),
		)
	}
	logger.Info(ctx, logger.CompApp, "ready", attrs...)
	return nil
}

// OnClose registers fn to run on Close, after the components built by New.
func (a *App) OnClose(fn func() error) {
	a.closers = append([]func() error{fn}, a.closers...)
}

// Close releases the sender, the ledger and anything added with OnClose.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn(context.Background(), logger.CompApp, "close.failed", slog.String("err", err.Error()))
		}
	}
	a.closers = nil
}
