// Package callback decodes inline button data into typed commands.
package callback

import (
	"sort"
	"strconv"
	"strings"
)

// Action identifies what a button asks the bot to do.
type Action uint8

const (
	Unknown Action = iota
	Main
	Back
	Company
	Products
	Product
	AddToCart
	QuickOrder
	QuickCall
	QuickChat
	FAQ
	FAQEntry
	Cart
	RemoveLine
	Checkout
	ClearCart
	MyOrders
	Contact
	WriteHere
	CallUs
	EmailUs
	Address
	ConfirmYes
	ConfirmNo
	Cancel
)

// Sections a Back command can return to.
const (
	SectionMain     = "main_menu"
	SectionProducts = "products"
	SectionFAQ      = "faq"
	SectionContact  = "contact"
	SectionCart     = "cart"
)

var actionNames = [...]string{
	Unknown:    "unknown",
	Main:       "main",
	Back:       "back",
	Company:    "company",
	Products:   "products",
	Product:    "product",
	AddToCart:  "add_to_cart",
	QuickOrder: "quick_order",
	QuickCall:  "quick_call",
	QuickChat:  "quick_chat",
	FAQ:        "faq",
	FAQEntry:   "faq_entry",
	Cart:       "cart",
	RemoveLine: "remove_line",
	Checkout:   "checkout",
	ClearCart:  "clear_cart",
	MyOrders:   "my_orders",
	Contact:    "contact",
	WriteHere:  "write_here",
	CallUs:     "call_us",
	EmailUs:    "email_us",
	Address:    "address",
	ConfirmYes: "confirm_yes",
	ConfirmNo:  "confirm_no",
	Cancel:     "cancel",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// HasID reports whether the action carries a numeric id.
func (a Action) HasID() bool {
	_, ok := idPrefixes[a]
	return ok
}

// Command is decoded callback data. ID is set for id-carrying actions and
// Section for Back.
type Command struct {
	Action  Action
	ID      int64
	Section string
}

const backPrefix = "back_"

var exact = map[string]Action{
	SectionMain:         Main,
	"company":           Company,
	"products":          Products,
	"faq":               FAQ,
	"cart":              Cart,
	"checkout_cart":     Checkout,
	"clear_cart":        ClearCart,
	"my_orders":         MyOrders,
	"contact":           Contact,
	"write_here":        WriteHere,
	"call_us":           CallUs,
	"email_us":          EmailUs,
	"our_address":       Address,
	"confirm_order_yes": ConfirmYes,
	"confirm_order_no":  ConfirmNo,
	"cancel":            Cancel,
}

var idPrefixes = map[Action]string{
	Product:    "product_",
	AddToCart:  "add_to_cart_",
	QuickOrder: "quick_order_",
	QuickCall:  "quick_call_",
	QuickChat:  "quick_chat_",
	FAQEntry:   "faq_",
	RemoveLine: "remove_from_cart_",
}

type prefixRule struct {
	prefix string
	action Action
}

// prefixOrder lists id prefixes longest first so no prefix shadows a longer one.
var prefixOrder = func() []prefixRule {
	rules := make([]prefixRule, 0, len(idPrefixes))
	for a, p := range idPrefixes {
		rules = append(rules, prefixRule{prefix: p, action: a})
	}
	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].prefix) != len(rules[j].prefix) {
			return len(rules[i].prefix) > len(rules[j].prefix)
		}
		return rules[i].prefix < rules[j].prefix
	})
	return rules
}()

// Parse decodes raw callback data. It never fails: anything unrecognised,
// including a malformed id, yields an Unknown command.
func Parse(data string) Command {
	data = strings.TrimSpace(data)
	if data == "" {
		return Command{Action: Unknown}
	}
	if section, ok := strings.CutPrefix(data, backPrefix); ok {
		if section == "" {
			return Command{Action: Unknown}
		}
		return Command{Action: Back, Section: section}
	}
	if a, ok := exact[data]; ok {
		return Command{Action: a}
	}
	for _, r := range prefixOrder {
		rest, ok := strings.CutPrefix(data, r.prefix)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 || strconv.FormatInt(id, 10) != rest {
			return Command{Action: Unknown}
		}
		return Command{Action: r.action, ID: id}
	}
	return Command{Action: Unknown}
}

// Encode renders cmd as callback data. Parse(Encode(c)) == c for every
// well-formed command.
func Encode(cmd Command) string {
	if cmd.Action == Back {
		return backPrefix + cmd.Section
	}
	if p, ok := idPrefixes[cmd.Action]; ok {
		return p + strconv.FormatInt(cmd.ID, 10)
	}
	for token, a := range exact {
		if a == cmd.Action {
			return token
		}
	}
	return ""
}

// To encodes an action without payload.
func To(a Action) string { return Encode(Command{Action: a}) }

// WithID encodes an id-carrying action.
func WithID(a Action, id int64) string { return Encode(Command{Action: a, ID: id}) }

// BackTo encodes a Back command to section.
func BackTo(section string) string { return Encode(Command{Action: Back, Section: section}) }
