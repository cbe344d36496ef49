package render

import (
	"fmt"
	"unicode/utf8"

	"github.com/m3rciful/farmbot/core/telegram/format"
	"github.com/m3rciful/farmbot/core/telegram/keyboard"
	"github.com/m3rciful/farmbot/internal/callback"
	"github.com/m3rciful/farmbot/internal/cart"
)

func btn(label string, a callback.Action) keyboard.Button {
	return keyboard.Button{Label: label, Data: callback.To(a)}
}

func btnID(label string, a callback.Action, id int64) keyboard.Button {
	return keyboard.Button{Label: label, Data: callback.WithID(a, id)}
}

func backBtn(section string) keyboard.Button {
	return keyboard.Button{Label: "🔙 Back", Data: callback.BackTo(section)}
}

func backLayout(section string) keyboard.Layout {
	return keyboard.Column(backBtn(section))
}

func cancelLayout() keyboard.Layout {
	return keyboard.Column(btn("✖️ Cancel", callback.Cancel))
}

func mainMenu() keyboard.Layout {
	return keyboard.Layout{
		keyboard.Row(btn("🏢 About us", callback.Company)),
		keyboard.Row(btn("📦 Our products", callback.Products)),
		keyboard.Row(btn("❓ FAQ", callback.FAQ)),
		keyboard.Row(btn("🛒 My cart", callback.Cart), btn("📋 My orders", callback.MyOrders)),
		keyboard.Row(btn("📞 Contact us", callback.Contact)),
	}
}

func (r *Renderer) productsMenu() keyboard.Layout {
	var l keyboard.Layout
	for _, it := range r.shop.Catalog.Items() {
		label := fmt.Sprintf("%s - %s/%s", it.Title(), format.Money(it.Price, r.shop.Currency), it.Unit)
		l = l.Append(keyboard.Row(btnID(label, callback.Product, it.ID)))
	}
	return l.Append(keyboard.Row(backBtn(callback.SectionMain)))
}

func productMenu(id int64) keyboard.Layout {
	return keyboard.Column(
		btnID("🛒 Add to cart", callback.AddToCart, id),
		btnID("⚡ Quick order", callback.QuickOrder, id),
		backBtn(callback.SectionProducts),
	)
}

func quickOrderMenu(id int64) keyboard.Layout {
	return keyboard.Column(
		btnID("📞 Call me", callback.QuickCall, id),
		btnID("💬 Write me in chat", callback.QuickChat, id),
		btnID("🔙 Back", callback.Product, id),
	)
}

func (r *Renderer) faqMenu() keyboard.Layout {
	var l keyboard.Layout
	for i, e := range r.shop.FAQ {
		l = l.Append(keyboard.Row(btnID("❔ "+truncate(e.Question, 40), callback.FAQEntry, int64(i+1))))
	}
	return l.Append(keyboard.Row(backBtn(callback.SectionMain)))
}

func contactMenu() keyboard.Layout {
	return keyboard.Column(
		btn("📞 Call", callback.CallUs),
		btn("📧 Email", callback.EmailUs),
		btn("📍 Our address", callback.Address),
		btn("💬 Write to us here", callback.WriteHere),
		backBtn(callback.SectionMain),
	)
}

func cartMenu(lines []cart.Line) keyboard.Layout {
	var l keyboard.Layout
	if len(lines) > 0 {
		l = l.Append(
			keyboard.Row(btn("✅ Place order", callback.Checkout)),
			keyboard.Row(btn("🗑️ Clear cart", callback.ClearCart)),
		)
		for _, ln := range lines {
			label := fmt.Sprintf("❌ %s (%s %s)", truncate(ln.Item.Name, 20), format.Quantity(ln.Quantity), ln.Item.Unit)
			l = l.Append(keyboard.Row(btnID(label, callback.RemoveLine, ln.ID)))
		}
	}
	return l.Append(keyboard.Row(backBtn(callback.SectionMain)))
}

func confirmMenu() keyboard.Layout {
	return keyboard.Column(
		btn("✅ Yes, place the order", callback.ConfirmYes),
		btn("❌ No, cancel", callback.ConfirmNo),
	)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
