// Package notify tells the shop admin about new orders and messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/core/telegram"
	"github.com/m3rciful/farmbot/core/telegram/format"
	"github.com/m3rciful/farmbot/core/telegram/sender"
	"github.com/m3rciful/farmbot/internal/catalog"
	"github.com/m3rciful/farmbot/internal/fsm"
	"github.com/m3rciful/farmbot/internal/orders"
)

// AsyncSender queues a message without waiting for delivery.
type AsyncSender interface {
	SendAsync(ctx context.Context, chatID int64, msg telegram.Message) error
}

// Notifier sends admin notifications. The zero admin id disables it.
type Notifier struct {
	sender  AsyncSender
	adminID int64
	shop    *catalog.Shop
}

// New builds a Notifier.
func New(s AsyncSender, adminID int64, shop *catalog.Shop) *Notifier {
	return &Notifier{sender: s, adminID: adminID, shop: shop}
}

// Enabled reports whether notifications go anywhere.
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil && n.adminID != 0
}

// OrderPlaced reports a completed checkout.
func (n *Notifier) OrderPlaced(ctx context.Context, u fsm.User, f orders.Fields, rc orders.Receipt) {
	if !n.Enabled() {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✅ <b>New order #%d</b>\n\n", rc.OrderID)
	writeCustomer(&b, u, f.Name)
	fmt.Fprintf(&b, "📞 Phone: %s\n", format.Code(f.Phone))
	fmt.Fprintf(&b, "🏙️ City: %s\n", format.EscapeHTML(f.City))
	fmt.Fprintf(&b, "🏣 Branch: %s\n\n", format.EscapeHTML(f.DeliveryPoint))
	for _, l := range rc.Lines {
		fmt.Fprintf(&b, "• %s, %s %s\n", format.EscapeHTML(l.Item.Name), format.Quantity(l.Quantity), format.EscapeHTML(l.Item.Unit))
	}
	fmt.Fprintf(&b, "\n💰 Total: <b>%s</b>", format.Money(rc.Total, n.shop.Currency))
	n.send(ctx, "order", b.String())
}

// QuickOrder reports a quick order.
func (n *Notifier) QuickOrder(ctx context.Context, u fsm.User, phone, method string, rc orders.Receipt) {
	if !n.Enabled() {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⚡ <b>Quick order #%d</b> (%s)\n\n", rc.OrderID, format.EscapeHTML(method))
	writeCustomer(&b, u, "")
	if phone != "" {
		fmt.Fprintf(&b, "📞 Phone: %s\n", format.Code(phone))
	}
	for _, l := range rc.Lines {
		fmt.Fprintf(&b, "📦 Product: %s\n", format.EscapeHTML(l.Item.Title()))
	}
	n.send(ctx, "quick_order", b.String())
}

// Message reports free text left by a customer.
func (n *Notifier) Message(ctx context.Context, u fsm.User, kind, text string, itemID int64) {
	if !n.Enabled() {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "💬 <b>New message</b> (%s)\n\n", format.EscapeHTML(kind))
	writeCustomer(&b, u, "")
	if it, ok := n.shop.Catalog.Lookup(itemID); ok {
		fmt.Fprintf(&b, "📦 Product: %s\n", format.EscapeHTML(it.Title()))
	}
	fmt.Fprintf(&b, "\n%s", format.EscapeHTML(text))
	n.send(ctx, "message", b.String())
}

func writeCustomer(b *strings.Builder, u fsm.User, name string) {
	if name == "" {
		name = u.DisplayName()
	}
	fmt.Fprintf(b, "👤 Customer: %s\n", format.EscapeHTML(name))
	if u.Username != "" {
		fmt.Fprintf(b, "📱 Username: @%s\n", format.EscapeHTML(u.Username))
	}
	fmt.Fprintf(b, "🆔 User ID: %s\n", format.Code(fmt.Sprint(u.ID)))
}

func (n *Notifier) send(ctx context.Context, kind, text string) {
	err := n.sender.SendAsync(ctx, n.adminID, telegram.Message{Text: text})
	if err == nil {
		return
	}
	level := slog.LevelError
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		level = slog.LevelWarn
	}
	logger.Event(ctx, logger.CompSender, level, "notify.failed",
		slog.String("kind", kind),
		slog.String("err", sender.SanitizeError(err)),
	)
}
