package bot

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/farmbot/core/telegram"
	"github.com/m3rciful/farmbot/core/telegram/commands"
	"github.com/m3rciful/farmbot/internal/callback"
	"github.com/m3rciful/farmbot/internal/cart"
	"github.com/m3rciful/farmbot/internal/catalog"
	"github.com/m3rciful/farmbot/internal/fsm"
	"github.com/m3rciful/farmbot/internal/notify"
	"github.com/m3rciful/farmbot/internal/orders"
	"github.com/m3rciful/farmbot/internal/render"
	"github.com/m3rciful/farmbot/internal/store"
	"github.com/m3rciful/farmbot/internal/store/storetest"
)

const (
	customerID = int64(42)
	adminID    = int64(7)
)

type call struct {
	op        string
	chatID    int64
	messageID int
	text      string
}

type fakeMessenger struct {
	mu      sync.Mutex
	calls   []call
	nextID  int
	editErr error
}

func (f *fakeMessenger) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeMessenger) Send(_ context.Context, chatID int64, msg telegram.Message) (int, error) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()
	f.record(call{op: "send", chatID: chatID, messageID: id, text: msg.Text})
	return id, nil
}

func (f *fakeMessenger) Edit(_ context.Context, chatID int64, messageID int, msg telegram.Message) error {
	f.record(call{op: "edit", chatID: chatID, messageID: messageID, text: msg.Text})
	return f.editErr
}

func (f *fakeMessenger) Delete(_ context.Context, chatID int64, messageID int) error {
	f.record(call{op: "delete", chatID: chatID, messageID: messageID})
	return nil
}

func (f *fakeMessenger) Ack(_ context.Context, callbackID, _ string) error {
	f.record(call{op: "ack", text: callbackID})
	return nil
}

func (f *fakeMessenger) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].op == "send" || f.calls[i].op == "edit" {
			return f.calls[i]
		}
	}
	return call{}
}

func (f *fakeMessenger) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

func (f *fakeMessenger) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

type adminInbox struct {
	mu   sync.Mutex
	msgs []string
}

func (a *adminInbox) SendAsync(_ context.Context, _ int64, msg telegram.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg.Text)
	return nil
}

// failingMessages wraps a store and fails SaveMessage.
type failingMessages struct {
	*store.Store
}

func (failingMessages) SaveMessage(context.Context, store.InboundMessage) (int64, error) {
	return 0, errors.New("disk full")
}

type brokenTx struct{}

func (brokenTx) InTx(context.Context, func(store.Tx) error) error {
	return errors.New("connection reset")
}

type harness struct {
	t        *testing.T
	handler  *Handler
	store    *store.Store
	cart     *cart.Manager
	msgr     *fakeMessenger
	admin    *adminInbox
	updateID int
}

type harnessOption func(*Options, *store.Store, *catalog.Shop)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	st := storetest.New(t)
	shop := catalog.Default()
	carts := cart.NewManager(st, shop.Catalog)
	svc := orders.NewService(st, st, shop.Catalog)
	machine, err := fsm.NewMachine(fsm.Options{Shop: shop, Cart: carts, AdminID: adminID})
	require.NoError(t, err)
	msgr := &fakeMessenger{}
	admin := &adminInbox{}

	o := Options{
		Client:   msgr,
		Store:    st,
		Machine:  machine,
		Cart:     carts,
		Orders:   svc,
		Renderer: render.New(render.Options{Shop: shop, Cart: carts, Orders: svc, Stats: st}),
		Notifier: notify.New(admin, adminID, shop),
	}
	for _, fn := range opts {
		fn(&o, st, shop)
	}
	h, err := New(o)
	require.NoError(t, err)
	return &harness{t: t, handler: h, store: st, cart: carts, msgr: msgr, admin: admin}
}

func (hs *harness) sender() *tele.User {
	return &tele.User{ID: customerID, FirstName: "Olena", LastName: "Koval", Username: "olena"}
}

func (hs *harness) text(s string) error {
	hs.updateID++
	return hs.handler.Handle(context.Background(), tele.Update{
		ID: hs.updateID,
		Message: &tele.Message{
			ID:     1000 + hs.updateID,
			Sender: hs.sender(),
			Chat:   &tele.Chat{ID: customerID},
			Text:   s,
		},
	})
}

// press clicks a button on the last message the bot sent.
func (hs *harness) press(data string) error {
	hs.updateID++
	msgID := hs.msgr.last().messageID
	if msgID == 0 {
		msgID = 1
	}
	return hs.handler.Handle(context.Background(), tele.Update{
		ID: hs.updateID,
		Callback: &tele.Callback{
			ID:      "cb" + strconv.Itoa(hs.updateID),
			Sender:  hs.sender(),
			Message: &tele.Message{ID: msgID, Chat: &tele.Chat{ID: customerID}},
			Data:    data,
		},
	})
}

func (hs *harness) session() fsm.Session {
	hs.t.Helper()
	rec, err := hs.store.Session(context.Background(), customerID)
	require.NoError(hs.t, err)
	s, err := fsm.FromRecord(rec)
	require.NoError(hs.t, err)
	return s
}

func (hs *harness) mustText(s string) {
	hs.t.Helper()
	require.NoError(hs.t, hs.text(s))
}

func (hs *harness) mustPress(data string) {
	hs.t.Helper()
	require.NoError(hs.t, hs.press(data))
}

func (hs *harness) fillCart() {
	hs.mustPress(callback.WithID(callback.AddToCart, 1))
	hs.mustText("2")
	hs.mustPress(callback.WithID(callback.AddToCart, 2))
	hs.mustText("1")
}

func (hs *harness) reachConfirm() {
	hs.mustPress(callback.To(callback.Checkout))
	hs.mustText("Olena Koval")
	hs.mustText("050 123 45 67")
	hs.mustText("Kyiv")
	hs.mustText("Branch 5")
}

func TestCheckoutEndToEnd(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()

	hs.fillCart()
	lines, err := hs.cart.Lines(ctx, customerID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	hs.reachConfirm()
	s := hs.session()
	require.Equal(t, fsm.StateCheckoutConfirm, s.State)
	assert.Equal(t, "+380501234567", s.Temp.Phone)
	assert.InDelta(t, 980, s.Temp.Total, 0.001)
	assert.Contains(t, hs.msgr.last().text, "980 UAH")

	hs.mustPress(callback.To(callback.ConfirmYes))

	recent, err := hs.store.RecentOrders(ctx, customerID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(2), recent[0].LineCount)
	assert.InDelta(t, 980, recent[0].Total, 0.001)

	orderLines, err := hs.store.OrderLines(ctx, recent[0].ID)
	require.NoError(t, err)
	assert.Len(t, orderLines, 2)

	lines, err = hs.cart.Lines(ctx, customerID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	assert.True(t, hs.session().IsDefault())
	placed := hs.msgr.last()
	assert.Equal(t, "edit", placed.op)
	assert.Contains(t, placed.text, "Order placed")
	assert.Contains(t, placed.text, "980 UAH")

	require.NotEmpty(t, hs.admin.msgs)
	assert.Contains(t, hs.admin.msgs[len(hs.admin.msgs)-1], "New order")
}

func TestCallbackIsAcknowledgedFirst(t *testing.T) {
	hs := newHarness(t)
	hs.mustPress(callback.To(callback.Products))
	ops := hs.msgr.ops()
	require.NotEmpty(t, ops)
	assert.Equal(t, "ack", ops[0])
	assert.Equal(t, "edit", ops[len(ops)-1])
}

func TestAddToCartReplacesMenu(t *testing.T) {
	hs := newHarness(t)
	hs.mustPress(callback.WithID(callback.AddToCart, 3))
	assert.Equal(t, []string{"ack", "delete", "send"}, hs.msgr.ops())
	s := hs.session()
	assert.Equal(t, fsm.StateAwaitingQuantity, s.State)
	assert.Equal(t, int64(3), s.Temp.ItemID)
}

func TestBadQuantityKeepsState(t *testing.T) {
	hs := newHarness(t)
	hs.mustPress(callback.WithID(callback.AddToCart, 3))
	hs.mustText("lots")
	s := hs.session()
	assert.Equal(t, fsm.StateAwaitingQuantity, s.State)
	assert.Equal(t, fsm.NoticeBadQuantity, s.Temp.Error)

	lines, err := hs.cart.Lines(context.Background(), customerID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestStoreFailureKeepsSession(t *testing.T) {
	hs := newHarness(t, func(o *Options, st *store.Store, _ *catalog.Shop) {
		o.Store = failingMessages{Store: st}
	})
	hs.mustPress(callback.To(callback.WriteHere))
	require.Equal(t, fsm.StateAwaitingFreeMessage, hs.session().State)

	err := hs.text("please call me back")
	require.Error(t, err)
	assert.Equal(t, fsm.StateAwaitingFreeMessage, hs.session().State)
	assert.Contains(t, hs.msgr.last().text, "Something went wrong")
	assert.Empty(t, hs.admin.msgs)
}

func TestTotalChangedKeepsConfirm(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()
	hs.fillCart()
	hs.reachConfirm()

	// Another device adds to the cart while the summary is on screen.
	require.NoError(t, hs.cart.Add(ctx, customerID, 3, 5))
	hs.mustPress(callback.To(callback.ConfirmYes))

	s := hs.session()
	assert.Equal(t, fsm.StateCheckoutConfirm, s.State)
	assert.InDelta(t, 1280, s.Temp.Total, 0.001)
	assert.Equal(t, fsm.NoticeTotalChanged, s.Temp.Error)
	assert.Contains(t, hs.msgr.last().text, "Your cart has changed")
	assert.Contains(t, hs.msgr.last().text, "1280 UAH")

	recent, err := hs.store.RecentOrders(ctx, customerID, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	hs.mustPress(callback.To(callback.ConfirmYes))
	recent, err = hs.store.RecentOrders(ctx, customerID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.InDelta(t, 1280, recent[0].Total, 0.001)
}

func TestEmptyCartAtConfirmResets(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()
	hs.fillCart()
	hs.reachConfirm()

	require.NoError(t, hs.cart.Clear(ctx, customerID))
	hs.mustPress(callback.To(callback.ConfirmYes))

	assert.True(t, hs.session().IsDefault())
	assert.Contains(t, hs.msgr.last().text, "Your cart is empty")
}

func TestOrderFailureLeavesSessionForRetry(t *testing.T) {
	hs := newHarness(t, func(o *Options, st *store.Store, shop *catalog.Shop) {
		o.Orders = orders.NewService(brokenTx{}, st, shop.Catalog)
	})
	hs.fillCart()
	hs.reachConfirm()
	before := hs.session()

	err := hs.press(callback.To(callback.ConfirmYes))
	require.Error(t, err)
	assert.Equal(t, before, hs.session())
	assert.Contains(t, hs.msgr.last().text, "Could not place the order")

	lines, lerr := hs.cart.Lines(context.Background(), customerID)
	require.NoError(t, lerr)
	assert.Len(t, lines, 2)
}

func TestQuickCallOrder(t *testing.T) {
	hs := newHarness(t)
	hs.mustPress(callback.WithID(callback.QuickCall, 6))
	hs.mustText("+380 50 123 45 67")

	recent, err := hs.store.RecentOrders(context.Background(), customerID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, store.KindQuick, recent[0].Kind)
	assert.Contains(t, hs.msgr.last().text, "Quick order accepted")
	assert.True(t, hs.session().IsDefault())
	require.Len(t, hs.admin.msgs, 1)
	assert.Contains(t, hs.admin.msgs[0], "Quick order")
}

func TestResetDeletesSession(t *testing.T) {
	hs := newHarness(t)
	hs.mustPress(callback.To(callback.Checkout))
	hs.fillCart()
	hs.mustPress(callback.To(callback.Checkout))
	require.Equal(t, fsm.StateCheckoutName, hs.session().State)

	hs.mustText("/cancel")
	assert.True(t, hs.session().IsDefault())
}

func TestCommandAliasResolves(t *testing.T) {
	reg := telegram.NewRegistry()
	reg.RegisterCommand("/start", commands.Command{Description: "Main menu", Aliases: []string{"menu"}})
	hs := newHarness(t, func(o *Options, _ *store.Store, _ *catalog.Shop) { o.Commands = reg })
	hs.mustPress(callback.To(callback.Checkout))
	hs.fillCart()
	hs.mustPress(callback.To(callback.Checkout))
	require.Equal(t, fsm.StateCheckoutName, hs.session().State)

	hs.mustText("/menu@farm_bot")
	assert.True(t, hs.session().IsDefault())
}

func TestUnchangedSessionIsNotWritten(t *testing.T) {
	hs := newHarness(t)
	hs.mustText("/help")
	rec, err := hs.store.Session(context.Background(), customerID)
	require.NoError(t, err)
	assert.True(t, rec.UpdatedAt.IsZero())
}

func TestEditFallsBackToSend(t *testing.T) {
	hs := newHarness(t)
	hs.msgr.editErr = errors.New("telegram: Bad Request: message to edit not found (400)")
	hs.mustPress(callback.To(callback.FAQ))
	ops := hs.msgr.ops()
	assert.Equal(t, []string{"ack", "edit", "send"}, ops)

	hs.msgr.reset()
	hs.msgr.editErr = errors.New("telegram: Bad Request: message is not modified (400)")
	hs.mustPress(callback.To(callback.FAQ))
	assert.Equal(t, []string{"ack", "edit"}, hs.msgr.ops())
}

func TestPhotoDuringCheckoutRepromptsPhone(t *testing.T) {
	hs := newHarness(t)
	hs.fillCart()
	hs.mustPress(callback.To(callback.Checkout))
	hs.mustText("Olena Koval")
	require.Equal(t, fsm.StateCheckoutPhone, hs.session().State)

	hs.msgr.reset()
	hs.updateID++
	require.NoError(t, hs.handler.Handle(context.Background(), tele.Update{
		ID: hs.updateID,
		Message: &tele.Message{
			ID:     1000 + hs.updateID,
			Sender: hs.sender(),
			Chat:   &tele.Chat{ID: customerID},
			Photo:  &tele.Photo{},
		},
	}))

	assert.Equal(t, []string{"send"}, hs.msgr.ops())
	s := hs.session()
	assert.Equal(t, fsm.StateCheckoutPhone, s.State)
	assert.Equal(t, "Olena Koval", s.Temp.Name)
	assert.Equal(t, fsm.NoticeBadPhone, s.Temp.Error)
}

func TestStickerInIdleRedrawsMenu(t *testing.T) {
	hs := newHarness(t)
	hs.updateID++
	require.NoError(t, hs.handler.Handle(context.Background(), tele.Update{
		ID: hs.updateID,
		Message: &tele.Message{
			ID:      1000 + hs.updateID,
			Sender:  hs.sender(),
			Chat:    &tele.Chat{ID: customerID},
			Sticker: &tele.Sticker{},
		},
	}))
	assert.Equal(t, []string{"send"}, hs.msgr.ops())
	assert.True(t, hs.session().IsDefault())
}

func TestEventFrom(t *testing.T) {
	user := &tele.User{ID: 5, FirstName: "Ann"}

	_, ok := EventFrom(tele.Update{Message: &tele.Message{Text: "hi"}})
	assert.False(t, ok, "no sender")

	ev, ok := EventFrom(tele.Update{Message: &tele.Message{Sender: user, Chat: &tele.Chat{ID: 5}, Sticker: &tele.Sticker{}}})
	require.True(t, ok, "no text")
	assert.Equal(t, fsm.EventText, ev.Kind)
	assert.Empty(t, ev.Text)

	ev, ok = EventFrom(tele.Update{Message: &tele.Message{Sender: user, Photo: &tele.Photo{}, Caption: "my order"}})
	require.True(t, ok)
	assert.Equal(t, "my order", ev.Text)

	_, ok = EventFrom(tele.Update{})
	assert.False(t, ok)

	ev, ok = EventFrom(tele.Update{Callback: &tele.Callback{
		ID:      "q1",
		Sender:  user,
		Message: &tele.Message{ID: 9, Chat: &tele.Chat{ID: -100}},
		Data:    callback.WithID(callback.Product, 4),
	}})
	require.True(t, ok)
	assert.Equal(t, fsm.EventCallback, ev.Kind)
	assert.Equal(t, int64(-100), ev.ChatID)
	assert.Equal(t, 9, ev.MessageID)
	assert.Equal(t, callback.Product, ev.Command.Action)
	assert.Equal(t, int64(4), ev.Command.ID)

	ev, ok = EventFrom(tele.Update{Message: &tele.Message{ID: 3, Sender: user, Text: "hello"}})
	require.True(t, ok)
	assert.Equal(t, int64(5), ev.ChatID)
	assert.Equal(t, "hello", ev.Text)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
