// Package render turns state machine views into Telegram HTML messages.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/farmbot/core/telegram"
	"github.com/m3rciful/farmbot/core/telegram/format"
	"github.com/m3rciful/farmbot/internal/callback"
	"github.com/m3rciful/farmbot/internal/cart"
	"github.com/m3rciful/farmbot/internal/catalog"
	"github.com/m3rciful/farmbot/internal/fsm"
	"github.com/m3rciful/farmbot/internal/store"
)

// CartReader lists a user's cart.
type CartReader interface {
	Lines(ctx context.Context, userID int64) ([]cart.Line, error)
}

// OrderReader lists a user's latest orders.
type OrderReader interface {
	Recent(ctx context.Context, userID int64, limit int) ([]store.OrderSummary, error)
}

// StatsReader reports store-wide counters.
type StatsReader interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// Options configure a Renderer.
type Options struct {
	Shop        *catalog.Shop
	Cart        CartReader
	Orders      OrderReader
	Stats       StatsReader
	MaxQuantity float64
	RecentLimit int
}

// Renderer draws screens.
type Renderer struct {
	shop        *catalog.Shop
	cart        CartReader
	orders      OrderReader
	stats       StatsReader
	maxQty      float64
	recentLimit int
}

// Outcome carries results of data effects that a later screen shows.
type Outcome struct {
	OrderID int64
	Total   float64
}

// New builds a Renderer.
func New(opts Options) *Renderer {
	if opts.MaxQuantity <= 0 {
		opts.MaxQuantity = fsm.DefaultMaxQuantity
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 5
	}
	return &Renderer{
		shop:        opts.Shop,
		cart:        opts.Cart,
		orders:      opts.Orders,
		stats:       opts.Stats,
		maxQty:      opts.MaxQuantity,
		recentLimit: opts.RecentLimit,
	}
}

// Render draws v for userID.
func (r *Renderer) Render(ctx context.Context, userID int64, v fsm.View, out Outcome) (telegram.Message, error) {
	switch v.Kind {
	case fsm.ViewWelcome:
		return telegram.Message{Text: r.welcome(), Layout: mainMenu()}, nil
	case fsm.ViewMainMenu:
		return telegram.Message{Text: "🏠 <b>Main menu</b>\n\nChoose an option 👇", Layout: mainMenu()}, nil
	case fsm.ViewHelp:
		return telegram.Message{Text: helpText, Layout: mainMenu()}, nil
	case fsm.ViewStats:
		return r.statsView(ctx)
	case fsm.ViewCompany:
		return telegram.Message{Text: r.company(), Layout: backLayout(callback.SectionMain)}, nil
	case fsm.ViewProducts:
		return telegram.Message{Text: "📦 <b>Our products</b>\n\nChoose a product for details:", Layout: r.productsMenu()}, nil
	case fsm.ViewProduct:
		return r.withItem(v, func(it catalog.Item) telegram.Message {
			return telegram.Message{Text: r.product(it), Layout: productMenu(it.ID)}
		})
	case fsm.ViewQuickOrder:
		return r.withItem(v, func(it catalog.Item) telegram.Message {
			return telegram.Message{Text: quickOrderText(it), Layout: quickOrderMenu(it.ID)}
		})
	case fsm.ViewNotFound:
		back := v.Back
		if back == "" {
			back = callback.SectionMain
		}
		return telegram.Message{Text: "❌ Not found", Layout: backLayout(back)}, nil
	case fsm.ViewAskQuantity:
		return r.withItem(v, func(it catalog.Item) telegram.Message {
			return telegram.Message{Text: r.notice(v.Notice) + r.askQuantity(it), Layout: cancelLayout()}
		})
	case fsm.ViewAddedToCart:
		return r.addedToCart(ctx, userID, v)
	case fsm.ViewFAQ:
		return telegram.Message{Text: "❓ <b>Frequently asked questions</b>\n\nChoose a question:", Layout: r.faqMenu()}, nil
	case fsm.ViewFAQEntry:
		e, ok := r.shop.FAQAt(v.FAQ)
		if !ok {
			return telegram.Message{Text: "❌ Question not found", Layout: backLayout(callback.SectionFAQ)}, nil
		}
		text := fmt.Sprintf("<b>❔ %s</b>\n\n%s\n\n%s",
			format.EscapeHTML(e.Question), format.EscapeHTML(e.Answer), format.Italic("📞 Other questions? Contact us!"))
		return telegram.Message{Text: text, Layout: backLayout(callback.SectionFAQ)}, nil
	case fsm.ViewCart:
		return r.cartView(ctx, userID)
	case fsm.ViewCartEmpty:
		return telegram.Message{
			Text:   "🛒 <b>Your cart is empty</b>\n\nAdd products from the catalog before placing an order!",
			Layout: backLayout(callback.SectionMain),
		}, nil
	case fsm.ViewCartCleared:
		return telegram.Message{
			Text:   "🗑️ <b>Cart cleared!</b>\n\nYour cart is empty now.\n<i>Add products from the catalog.</i>",
			Layout: backLayout(callback.SectionMain),
		}, nil
	case fsm.ViewMyOrders:
		return r.myOrders(ctx, userID)
	case fsm.ViewContact:
		return telegram.Message{Text: contactText, Layout: contactMenu()}, nil
	case fsm.ViewWriteHere:
		return telegram.Message{Text: r.notice(v.Notice) + writeHereText, Layout: cancelLayout()}, nil
	case fsm.ViewCallUs:
		return telegram.Message{Text: r.callUs(), Layout: backLayout(callback.SectionContact)}, nil
	case fsm.ViewEmailUs:
		return telegram.Message{Text: r.emailUs(), Layout: backLayout(callback.SectionContact)}, nil
	case fsm.ViewAddress:
		return telegram.Message{Text: r.address(), Layout: backLayout(callback.SectionContact)}, nil
	case fsm.ViewAskName:
		return r.askName(ctx, userID, v)
	case fsm.ViewAskPhone:
		return telegram.Message{Text: r.notice(v.Notice) + askPhoneText, Layout: cancelLayout()}, nil
	case fsm.ViewAskCity:
		return telegram.Message{
			Text:   r.notice(v.Notice) + "🏙️ <b>Enter the delivery city:</b>\n\n<i>For example: Kyiv, Lviv, Odesa</i>",
			Layout: cancelLayout(),
		}, nil
	case fsm.ViewAskDeliveryPoint:
		return telegram.Message{
			Text:   r.notice(v.Notice) + "🏣 <b>Enter the Nova Poshta branch:</b>\n\n<i>For example: Branch No. 25</i>",
			Layout: cancelLayout(),
		}, nil
	case fsm.ViewConfirmOrder:
		return r.confirm(ctx, userID, v)
	case fsm.ViewOrderPlaced:
		return telegram.Message{Text: r.orderPlaced(v, out), Layout: mainMenu()}, nil
	case fsm.ViewOrderCancelled:
		return telegram.Message{
			Text:   "❌ <b>Order cancelled</b>\n\nYou can keep shopping.\n<i>Your cart has been kept.</i>",
			Layout: mainMenu(),
		}, nil
	case fsm.ViewOrderFailed:
		return telegram.Message{
			Text:   "❌ <b>Could not place the order!</b>\n\nPlease try again.\n\n<i>Sorry for the inconvenience.</i>",
			Layout: confirmMenu(),
		}, nil
	case fsm.ViewAskQuickPhone:
		return r.withItem(v, func(it catalog.Item) telegram.Message {
			text := fmt.Sprintf("%s📞 <b>Call me: %s</b>\n\n💰 Price: %s\n\n%s\n\n<b>We will call you to agree the details!</b>",
				r.notice(v.Notice), format.EscapeHTML(it.Name), r.unitPrice(it), askPhoneText)
			return telegram.Message{Text: text, Layout: cancelLayout()}
		})
	case fsm.ViewQuickOrderPlaced:
		return r.withItem(v, func(it catalog.Item) telegram.Message {
			return telegram.Message{Text: quickPlaced(it, v.Temp.Phone, out.OrderID), Layout: mainMenu()}
		})
	case fsm.ViewQuickChat:
		return r.withItem(v, func(it catalog.Item) telegram.Message {
			return telegram.Message{Text: r.quickChat(it), Layout: cancelLayout()}
		})
	case fsm.ViewMessageThanks, fsm.ViewChatAck:
		return telegram.Message{Text: thanksText, Layout: mainMenu()}, nil
	case fsm.ViewFailure:
		return telegram.Message{
			Text:   "❌ <b>Something went wrong</b>\n\nPlease try again or use /start",
			Layout: mainMenu(),
		}, nil
	}
	return telegram.Message{}, fmt.Errorf("render: unknown view %d", v.Kind)
}

func (r *Renderer) withItem(v fsm.View, fn func(catalog.Item) telegram.Message) (telegram.Message, error) {
	it, ok := r.shop.Catalog.Lookup(v.ItemID)
	if !ok {
		return telegram.Message{Text: "❌ Product not found", Layout: backLayout(callback.SectionProducts)}, nil
	}
	return fn(it), nil
}

func (r *Renderer) money(v float64) string {
	return format.Money(v, r.shop.Currency)
}

func (r *Renderer) unitPrice(it catalog.Item) string {
	return r.money(it.Price) + "/" + format.EscapeHTML(it.Unit)
}

func (r *Renderer) notice(n fsm.Notice) string {
	var s string
	switch n {
	case fsm.NoticeBadQuantity:
		s = "❌ <b>Invalid format!</b> Please enter a number, for example 1, 1.5 or 2.3."
	case fsm.NoticeQuantityLimit:
		s = fmt.Sprintf("❌ <b>Too large.</b> The maximum is %s.", format.Quantity(r.maxQty))
	case fsm.NoticeBadPhone:
		s = "❌ <b>Invalid phone number!</b>"
	case fsm.NoticeEmptyInput:
		s = "❌ <b>Please type a reply.</b>"
	case fsm.NoticeUseButtons:
		s = "👇 <b>Please use the buttons below.</b>"
	case fsm.NoticeTotalChanged:
		s = "⚠️ <b>Your cart has changed.</b> Please check the new total."
	default:
		return ""
	}
	return s + "\n\n"
}

func (r *Renderer) welcome() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>🇺🇦 Welcome to %s! 🌱</b>\n\n", format.EscapeHTML(r.shop.Company.Name))
	b.WriteString("We grow <b>organic</b> produce:\n\n")
	for _, it := range r.shop.Catalog.Items() {
		fmt.Fprintf(&b, "%s <b>%s</b>\n", it.Emoji, format.EscapeHTML(it.Name))
	}
	b.WriteString("\n<b>Choose an option from the menu 👇</b>")
	return b.String()
}

func (r *Renderer) company() string {
	c := r.shop.Company
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n%s\n\n<b>📋 Details:</b>\n", format.EscapeHTML(c.Name), format.EscapeHTML(c.Description))
	for _, d := range c.Details {
		fmt.Fprintf(&b, "• %s\n", format.EscapeHTML(d))
	}
	return b.String()
}

func (r *Renderer) product(it catalog.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", format.EscapeHTML(it.Title()))
	if it.Description != "" {
		fmt.Fprintf(&b, "📝 %s\n\n", format.Italic(it.Description))
	}
	fmt.Fprintf(&b, "💰 <b>Price:</b> %s\n", r.unitPrice(it))
	if it.Category != "" {
		fmt.Fprintf(&b, "🏷️ <b>Category:</b> %s\n", format.EscapeHTML(it.Category))
	}
	b.WriteString("📦 <b>Availability:</b> in stock")
	return b.String()
}

func quickOrderText(it catalog.Item) string {
	return fmt.Sprintf("<b>⚡ Quick order: %s</b>\n\n"+
		"💬 <b>How should we contact you?</b>\n\n"+
		"📞 <b>Call me</b> - we call you to agree the details\n"+
		"💬 <b>Write me in chat</b> - write the details here and we reply\n\n"+
		"<i>Choose what suits you 👇</i>", format.EscapeHTML(it.Title()))
}

func (r *Renderer) askQuantity(it catalog.Item) string {
	return fmt.Sprintf("📦 <b>Adding %s to the cart</b>\n\n💰 Price: %s\n\n📊 <b>Enter the quantity (a number only):</b>\n\n<i>For example: 1, 1.5, 2.3 (%s)</i>",
		format.EscapeHTML(it.Name), r.unitPrice(it), format.EscapeHTML(it.Unit))
}

func (r *Renderer) addedToCart(ctx context.Context, userID int64, v fsm.View) (telegram.Message, error) {
	it, ok := r.shop.Catalog.Lookup(v.ItemID)
	if !ok {
		return telegram.Message{Text: "❌ Product not found", Layout: backLayout(callback.SectionProducts)}, nil
	}
	lines, err := r.cart.Lines(ctx, userID)
	if err != nil {
		return telegram.Message{}, fmt.Errorf("render: added to cart: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✅ <b>%s</b> added to the cart!\n\n", format.EscapeHTML(it.Name))
	fmt.Fprintf(&b, "📊 Quantity: <b>%s %s</b>\n", format.Quantity(v.Quantity), format.EscapeHTML(it.Unit))
	fmt.Fprintf(&b, "💰 Price: %s\n", r.unitPrice(it))
	fmt.Fprintf(&b, "💵 Sum: <b>%s</b>\n\n", r.money(cart.RoundCents(it.Price*v.Quantity)))
	fmt.Fprintf(&b, "🛒 In the cart: <b>%d item(s)</b>\n\n", len(lines))
	b.WriteString("<i>Keep adding products or go to checkout.</i>")
	return telegram.Message{Text: b.String()}, nil
}

func (r *Renderer) cartView(ctx context.Context, userID int64) (telegram.Message, error) {
	lines, err := r.cart.Lines(ctx, userID)
	if err != nil {
		return telegram.Message{}, fmt.Errorf("render: cart: %w", err)
	}
	if len(lines) == 0 {
		return telegram.Message{Text: "🛒 <b>Your cart is empty</b>\n\nAdd products from the catalog!", Layout: cartMenu(nil)}, nil
	}
	var b strings.Builder
	b.WriteString("🛒 <b>Your cart</b>\n\n")
	for i, l := range lines {
		fmt.Fprintf(&b, "<b>%d. %s</b>\n", i+1, format.EscapeHTML(l.Item.Name))
		fmt.Fprintf(&b, "   📊 Quantity: <b>%s %s</b>\n", format.Quantity(l.Quantity), format.EscapeHTML(l.Item.Unit))
		fmt.Fprintf(&b, "   💰 %s × %s = <b>%s</b>\n\n", r.unitPrice(l.Item), format.Quantity(l.Quantity), r.money(l.Subtotal()))
	}
	fmt.Fprintf(&b, "<b>📊 Items:</b> %d\n", len(lines))
	fmt.Fprintf(&b, "<b>💰 Total:</b> <b>%s</b>\n\n", r.money(cart.Total(lines)))
	b.WriteString("<i>Press the button below to place the order</i>")
	return telegram.Message{Text: b.String(), Layout: cartMenu(lines)}, nil
}

func (r *Renderer) myOrders(ctx context.Context, userID int64) (telegram.Message, error) {
	list, err := r.orders.Recent(ctx, userID, r.recentLimit)
	if err != nil {
		return telegram.Message{}, fmt.Errorf("render: my orders: %w", err)
	}
	var b strings.Builder
	b.WriteString("📋 <b>My orders</b>\n\n")
	if len(list) == 0 {
		b.WriteString("You have no orders yet.\n<i>Browse the catalog to place one.</i>")
		return telegram.Message{Text: b.String(), Layout: backLayout(callback.SectionMain)}, nil
	}
	for _, o := range list {
		kind := "🛒"
		if o.Kind == store.KindQuick {
			kind = "⚡"
		}
		fmt.Fprintf(&b, "%s <b>#%d</b> · %s · %s\n", kind, o.ID, o.CreatedAt.Format("02.01.2006"), format.EscapeHTML(o.Status))
		if o.Kind == store.KindQuick {
			b.WriteString("   quick order, price to be agreed\n")
		} else {
			fmt.Fprintf(&b, "   %d item(s), %s\n", o.LineCount, r.money(o.Total))
		}
	}
	return telegram.Message{Text: b.String(), Layout: backLayout(callback.SectionMain)}, nil
}

func (r *Renderer) statsView(ctx context.Context) (telegram.Message, error) {
	st, err := r.stats.Stats(ctx)
	if err != nil {
		return telegram.Message{}, fmt.Errorf("render: stats: %w", err)
	}
	var b strings.Builder
	b.WriteString("📊 <b>Statistics</b>\n\n")
	fmt.Fprintf(&b, "🛒 Orders: <b>%d</b>\n", st.Orders)
	fmt.Fprintf(&b, "⚡ Quick orders: <b>%d</b>\n", st.QuickOrders)
	fmt.Fprintf(&b, "💰 Revenue: <b>%s</b>\n", r.money(st.Revenue))
	fmt.Fprintf(&b, "💬 Messages: <b>%d</b>\n", st.Messages)
	fmt.Fprintf(&b, "👤 Users: <b>%d</b>\n", st.Users)
	fmt.Fprintf(&b, "🧺 Active carts: <b>%d</b>", st.ActiveCarts)
	return telegram.Message{Text: b.String()}, nil
}

func (r *Renderer) callUs() string {
	var b strings.Builder
	b.WriteString("📞 <b>Call us:</b>\n\n")
	for _, p := range r.shop.Contacts.Phones {
		fmt.Fprintf(&b, "✅ %s\n", format.Code(p))
	}
	if h := r.shop.Contacts.PhoneHours; h != "" {
		fmt.Fprintf(&b, "\n%s", format.Italic("Hours: "+h))
	}
	return b.String()
}

func (r *Renderer) emailUs() string {
	var b strings.Builder
	b.WriteString("📧 <b>Email us:</b>\n\n")
	for _, e := range r.shop.Contacts.Emails {
		fmt.Fprintf(&b, "✅ %s\n", format.Code(e))
	}
	if n := r.shop.Contacts.EmailNote; n != "" {
		fmt.Fprintf(&b, "\n%s", format.Italic(n))
	}
	return b.String()
}

func (r *Renderer) address() string {
	var b strings.Builder
	b.WriteString("📍 <b>Our address:</b>\n\n")
	for _, a := range r.shop.Contacts.Address {
		fmt.Fprintf(&b, "📌 %s\n", format.EscapeHTML(a))
	}
	if h := r.shop.Contacts.PickupHours; h != "" {
		fmt.Fprintf(&b, "\n%s", format.Italic("Self pickup: "+h))
	}
	return b.String()
}

func (r *Renderer) askName(ctx context.Context, userID int64, v fsm.View) (telegram.Message, error) {
	lines, err := r.cart.Lines(ctx, userID)
	if err != nil {
		return telegram.Message{}, fmt.Errorf("render: ask name: %w", err)
	}
	var b strings.Builder
	b.WriteString(r.notice(v.Notice))
	b.WriteString("🛒 <b>Checkout</b>\n\n")
	fmt.Fprintf(&b, "📦 In your cart: <b>%d item(s)</b>\n", len(lines))
	fmt.Fprintf(&b, "💰 Total: <b>%s</b>\n\n", r.money(cart.Total(lines)))
	b.WriteString("📝 <b>Enter your full name:</b>\n\n<i>For example: Ivan Petrenko</i>")
	return telegram.Message{Text: b.String(), Layout: cancelLayout()}, nil
}

func (r *Renderer) confirm(ctx context.Context, userID int64, v fsm.View) (telegram.Message, error) {
	lines, err := r.cart.Lines(ctx, userID)
	if err != nil {
		return telegram.Message{}, fmt.Errorf("render: confirm: %w", err)
	}
	t := v.Temp
	var b strings.Builder
	b.WriteString(r.notice(v.Notice))
	b.WriteString("✅ <b>Please check your details:</b>\n\n")
	fmt.Fprintf(&b, "👤 <b>Name:</b> %s\n", format.EscapeHTML(t.Name))
	fmt.Fprintf(&b, "📱 <b>Phone:</b> %s\n", format.EscapeHTML(t.Phone))
	fmt.Fprintf(&b, "🏙️ <b>City:</b> %s\n", format.EscapeHTML(t.City))
	fmt.Fprintf(&b, "🏣 <b>Nova Poshta branch:</b> %s\n", format.EscapeHTML(t.DeliveryPoint))
	fmt.Fprintf(&b, "🛒 <b>Items in cart:</b> %d\n", len(lines))
	fmt.Fprintf(&b, "💰 <b>Total:</b> %s\n\n", r.money(t.Total))
	b.WriteString("<b>Place the order?</b>")
	return telegram.Message{Text: b.String(), Layout: confirmMenu()}, nil
}

func (r *Renderer) orderPlaced(v fsm.View, out Outcome) string {
	t := v.Temp
	total := out.Total
	if total == 0 {
		total = t.Total
	}
	var b strings.Builder
	b.WriteString("✅ <b>Order placed!</b>\n\n")
	fmt.Fprintf(&b, "🆔 Order number: <b>#%d</b>\n", out.OrderID)
	fmt.Fprintf(&b, "👤 Name: <b>%s</b>\n", format.EscapeHTML(t.Name))
	fmt.Fprintf(&b, "📱 Phone: <b>%s</b>\n", format.EscapeHTML(t.Phone))
	fmt.Fprintf(&b, "🏙️ City: <b>%s</b>\n", format.EscapeHTML(t.City))
	fmt.Fprintf(&b, "🏣 Nova Poshta branch: <b>%s</b>\n", format.EscapeHTML(t.DeliveryPoint))
	fmt.Fprintf(&b, "💰 Sum: <b>%s</b>\n\n", r.money(total))
	b.WriteString("📞 <b>We will contact you to confirm!</b>\n\n<i>Thank you for your order! 🌱</i>")
	return b.String()
}

func quickPlaced(it catalog.Item, phone string, orderID int64) string {
	var b strings.Builder
	b.WriteString("✅ <b>Quick order accepted!</b>\n\n")
	fmt.Fprintf(&b, "🆔 <b>Order number:</b> #%d\n", orderID)
	fmt.Fprintf(&b, "📦 <b>Product:</b> %s\n", format.EscapeHTML(it.Name))
	fmt.Fprintf(&b, "📞 <b>Your phone:</b> %s\n\n", format.EscapeHTML(phone))
	b.WriteString("<b>We will call you shortly to agree the details!</b>\n\n<i>Thank you for your order! 🌱</i>")
	return b.String()
}

func (r *Renderer) quickChat(it catalog.Item) string {
	return fmt.Sprintf("💬 <b>Write me in chat: %s</b>\n\n💰 Price: %s\n\n"+
		"💬 <b>Just write your message in this chat!</b>\n\n"+
		"Please include:\n• The quantity you want\n• Your contact details\n• Preferred delivery time\n\n"+
		"<b>We will reply shortly to agree the details!</b>",
		format.EscapeHTML(it.Name), r.unitPrice(it))
}

const (
	helpText = "ℹ️ <b>Help</b>\n\nUse the menu buttons to browse products and build your cart.\n\n" +
		"/start - main menu\n/cancel - cancel the current step"

	contactText = "<b>📞 Contact us</b>\n\nWe are always happy to help!\n\n" +
		"<b>Choose how to reach us:</b>\n" +
		"• <b>Phone</b> - for quick questions\n" +
		"• <b>Email</b> - for detailed consultations\n" +
		"• <b>Address</b> - for self pickup\n" +
		"• <b>Write here</b> - a quick message in this chat"

	writeHereText = "💬 <b>Write to us here</b>\n\nType your message right in this chat:\n\n" +
		"• Questions about products\n• Consultation\n• Partnership offers\n• Anything else\n\n" +
		"<i>We will reply shortly!</i>"

	askPhoneText = "📱 <b>Enter your phone number:</b>\n\n<i>Example: +380501234567 or 0501234567</i>"

	thanksText = "✅ <b>Message received!</b>\n\nWe will reply shortly.\n<i>Thank you for reaching out! 🌱</i>"
)
