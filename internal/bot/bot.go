// Package bot runs the state machine for one update and carries out the
// effects it asks for.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/core/telegram"
	"github.com/m3rciful/farmbot/internal/cart"
	"github.com/m3rciful/farmbot/internal/fsm"
	"github.com/m3rciful/farmbot/internal/notify"
	"github.com/m3rciful/farmbot/internal/orders"
	"github.com/m3rciful/farmbot/internal/render"
	"github.com/m3rciful/farmbot/internal/store"
)

// Messenger is the part of the Telegram client the handler talks to.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg telegram.Message) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, msg telegram.Message) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	Ack(ctx context.Context, callbackID, toast string) error
}

// Store persists users, sessions and free-text messages.
type Store interface {
	SaveUser(ctx context.Context, u store.User) error
	Session(ctx context.Context, userID int64) (store.SessionRecord, error)
	SaveSession(ctx context.Context, rec store.SessionRecord) error
	DeleteSession(ctx context.Context, userID int64) error
	SaveMessage(ctx context.Context, m store.InboundMessage) (int64, error)
}

// Options wire a Handler. Notifier is optional.
type Options struct {
	Client   Messenger
	Store    Store
	Machine  *fsm.Machine
	Cart     *cart.Manager
	Orders   *orders.Service
	Renderer *render.Renderer
	Notifier *notify.Notifier
	// Commands resolves aliases and @bot suffixes of slash commands.
	Commands *telegram.Registry
}

// Handler processes updates one at a time per user.
type Handler struct {
	client   Messenger
	store    Store
	machine  *fsm.Machine
	cart     *cart.Manager
	orders   *orders.Service
	renderer *render.Renderer
	notifier *notify.Notifier
	commands *telegram.Registry
}

// New validates opts and builds a Handler.
func New(opts Options) (*Handler, error) {
	switch {
	case opts.Client == nil:
		return nil, errors.New("bot: client is required")
	case opts.Store == nil:
		return nil, errors.New("bot: store is required")
	case opts.Machine == nil:
		return nil, errors.New("bot: machine is required")
	case opts.Cart == nil:
		return nil, errors.New("bot: cart is required")
	case opts.Orders == nil:
		return nil, errors.New("bot: orders are required")
	case opts.Renderer == nil:
		return nil, errors.New("bot: renderer is required")
	}
	return &Handler{
		client:   opts.Client,
		store:    opts.Store,
		machine:  opts.Machine,
		cart:     opts.Cart,
		orders:   opts.Orders,
		renderer: opts.Renderer,
		notifier: opts.Notifier,
		commands: opts.Commands,
	}, nil
}

// Handle processes one update. Ignored updates return nil.
func (h *Handler) Handle(ctx context.Context, u tele.Update) error {
	ev, ok := EventFrom(u)
	if !ok {
		logger.Debug(ctx, logger.CompTG, "update.ignored")
		return nil
	}
	ctx = logger.WithHandler(ctx, handlerName(ev))
	return h.HandleEvent(ctx, ev)
}

// HandleEvent runs one transition for ev and applies its effects.
func (h *Handler) HandleEvent(ctx context.Context, ev fsm.Event) error {
	uid := ev.User.ID
	if err := h.store.SaveUser(ctx, store.User{
		ID:        uid,
		FirstName: ev.User.FirstName,
		LastName:  ev.User.LastName,
		Username:  ev.User.Username,
	}); err != nil {
		logger.Warn(ctx, logger.CompSessions, "user.save_failed", slog.String("err", err.Error()))
	}
	if ev.Kind == fsm.EventCallback {
		if err := h.client.Ack(ctx, ev.CallbackID, ""); err != nil {
			logger.Warn(ctx, logger.CompTG, "callback.ack_failed", slog.String("err", err.Error()))
		}
	}

	rec, err := h.store.Session(ctx, uid)
	if err != nil {
		h.showFailure(ctx, ev)
		return fmt.Errorf("bot: load session: %w", err)
	}
	cur, err := fsm.FromRecord(rec)
	stale := err != nil
	if stale {
		logger.Warn(ctx, logger.CompSessions, "session.invalid",
			slog.String("state", rec.State),
			slog.String("err", err.Error()),
		)
	}

	if ev.Kind == fsm.EventText && h.commands != nil {
		if key, _, ok := h.commands.LookupCommand(ev.Text); ok {
			ev.Text = key
		}
	}
	res, err := h.machine.Transition(ctx, cur, ev)
	if err != nil {
		h.showFailure(ctx, ev)
		return fmt.Errorf("bot: transition: %w", err)
	}
	next, err := h.apply(ctx, ev, cur, res)
	if err != nil {
		return err
	}
	if next == cur && !stale {
		return nil
	}
	if err := h.persist(ctx, next); err != nil {
		return err
	}
	logger.Debug(ctx, logger.CompSessions, "session.saved",
		slog.String("state", next.State.String()),
		slog.String("from", cur.State.String()),
	)
	return nil
}

// apply runs effects in order and returns the session to store. A failed data
// effect stops the sequence.
func (h *Handler) apply(ctx context.Context, ev fsm.Event, cur fsm.Session, res fsm.Result) (fsm.Session, error) {
	uid := ev.User.ID
	var out render.Outcome
	for _, e := range res.Effects {
		var err error
		switch e := e.(type) {
		case fsm.Send:
			h.send(ctx, ev, e.View, out)
		case fsm.Edit:
			h.edit(ctx, ev, e.View, out)
		case fsm.DeleteMenu:
			h.deleteMenu(ctx, ev)
		case fsm.AddToCart:
			err = h.cart.Add(ctx, uid, e.ItemID, e.Qty)
		case fsm.RemoveLine:
			err = h.cart.Remove(ctx, uid, e.LineID)
		case fsm.ClearCart:
			err = h.cart.Clear(ctx, uid)
		case fsm.PlaceOrder:
			f := orders.Fields{
				Name:          e.Name,
				Username:      e.Username,
				Phone:         e.Phone,
				City:          e.City,
				DeliveryPoint: e.DeliveryPoint,
			}
			rc, cerr := h.orders.Checkout(ctx, uid, f, e.ExpectedTotal)
			if cerr != nil {
				return h.checkoutFailed(ctx, ev, cur, cerr)
			}
			out = render.Outcome{OrderID: rc.OrderID, Total: rc.Total}
			h.notifier.OrderPlaced(ctx, ev.User, f, rc)
		case fsm.PlaceQuickOrder:
			var rc orders.Receipt
			rc, err = h.orders.QuickOrder(ctx, uid, orders.QuickFields{
				ItemID:        e.ItemID,
				Name:          ev.User.DisplayName(),
				Username:      ev.User.Username,
				Phone:         e.Phone,
				ContactMethod: e.Method,
			})
			if err == nil {
				out = render.Outcome{OrderID: rc.OrderID}
				h.notifier.QuickOrder(ctx, ev.User, e.Phone, e.Method, rc)
			}
		case fsm.SaveMessage:
			_, err = h.store.SaveMessage(ctx, store.InboundMessage{
				UserID:   uid,
				UserName: ev.User.DisplayName(),
				Username: ev.User.Username,
				Text:     e.Text,
				Kind:     e.Kind,
				ItemID:   e.ItemID,
			})
			if err == nil {
				h.notifier.Message(ctx, ev.User, e.Kind, e.Text, e.ItemID)
			}
		default:
			err = fmt.Errorf("unknown effect %T", e)
		}
		if err != nil {
			h.showFailure(ctx, ev)
			return cur, fmt.Errorf("bot: apply %T: %w", e, err)
		}
	}
	return res.Next, nil
}

// checkoutFailed decides what the user sees when the order transaction fails.
func (h *Handler) checkoutFailed(ctx context.Context, ev fsm.Event, cur fsm.Session, err error) (fsm.Session, error) {
	var changed *orders.TotalChangedError
	switch {
	case errors.As(err, &changed):
		next := cur
		next.Temp.Total = changed.Current
		next.Temp.Error = fsm.NoticeTotalChanged
		logger.Info(ctx, logger.CompOrders, "order.total_changed",
			slog.Float64("expected", changed.Expected),
			slog.Float64("current", changed.Current),
		)
		h.edit(ctx, ev, fsm.View{Kind: fsm.ViewConfirmOrder, Notice: fsm.NoticeTotalChanged, Temp: next.Temp}, render.Outcome{})
		return next, nil
	case errors.Is(err, orders.ErrEmptyCart):
		logger.Info(ctx, logger.CompOrders, "order.empty_cart")
		h.edit(ctx, ev, fsm.View{Kind: fsm.ViewCartEmpty}, render.Outcome{})
		return fsm.Default(cur.UserID), nil
	}
	logger.Error(ctx, logger.CompOrders, "order.failed", slog.String("err", err.Error()))
	h.edit(ctx, ev, fsm.View{Kind: fsm.ViewOrderFailed}, render.Outcome{})
	return cur, fmt.Errorf("bot: place order: %w", err)
}

func (h *Handler) persist(ctx context.Context, next fsm.Session) error {
	if next.IsDefault() {
		if err := h.store.DeleteSession(ctx, next.UserID); err != nil {
			return fmt.Errorf("bot: reset session: %w", err)
		}
		return nil
	}
	rec, err := next.Record()
	if err != nil {
		return err
	}
	if err := h.store.SaveSession(ctx, rec); err != nil {
		return fmt.Errorf("bot: save session: %w", err)
	}
	return nil
}

func (h *Handler) draw(ctx context.Context, ev fsm.Event, v fsm.View, out render.Outcome) telegram.Message {
	msg, err := h.renderer.Render(ctx, ev.User.ID, v, out)
	if err != nil {
		logger.Error(ctx, logger.CompTG, "render.failed",
			slog.Int("view", int(v.Kind)),
			slog.String("err", err.Error()),
		)
		msg, _ = h.renderer.Render(ctx, ev.User.ID, fsm.View{Kind: fsm.ViewFailure}, render.Outcome{})
	}
	return msg
}

func (h *Handler) send(ctx context.Context, ev fsm.Event, v fsm.View, out render.Outcome) {
	h.sendMessage(ctx, ev, h.draw(ctx, ev, v, out))
}

func (h *Handler) sendMessage(ctx context.Context, ev fsm.Event, msg telegram.Message) {
	if _, err := h.client.Send(ctx, ev.ChatID, msg); err != nil {
		logger.Warn(ctx, logger.CompTG, "send.failed", slog.String("err", err.Error()))
	}
}

// edit redraws the callback's message, falling back to a new message when it
// cannot be edited or the event is not a callback.
func (h *Handler) edit(ctx context.Context, ev fsm.Event, v fsm.View, out render.Outcome) {
	msg := h.draw(ctx, ev, v, out)
	if ev.Kind != fsm.EventCallback || ev.MessageID == 0 {
		h.sendMessage(ctx, ev, msg)
		return
	}
	err := h.client.Edit(ctx, ev.ChatID, ev.MessageID, msg)
	switch {
	case err == nil, telegram.IsNotModified(err):
	case telegram.IsUneditable(err):
		logger.Debug(ctx, logger.CompTG, "edit.fallback_send", slog.String("err", err.Error()))
		h.sendMessage(ctx, ev, msg)
	default:
		logger.Warn(ctx, logger.CompTG, "edit.failed", slog.String("err", err.Error()))
	}
}

func (h *Handler) deleteMenu(ctx context.Context, ev fsm.Event) {
	if ev.Kind != fsm.EventCallback || ev.MessageID == 0 {
		return
	}
	if err := h.client.Delete(ctx, ev.ChatID, ev.MessageID); err != nil {
		logger.Debug(ctx, logger.CompTG, "delete.failed", slog.String("err", err.Error()))
	}
}

func (h *Handler) showFailure(ctx context.Context, ev fsm.Event) {
	h.send(ctx, ev, fsm.View{Kind: fsm.ViewFailure}, render.Outcome{})
}
