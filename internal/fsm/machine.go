package fsm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/farmbot/internal/callback"
	"github.com/m3rciful/farmbot/internal/cart"
	"github.com/m3rciful/farmbot/internal/catalog"
)

// CartReader lists a user's cart joined with the catalog.
type CartReader interface {
	Lines(ctx context.Context, userID int64) ([]cart.Line, error)
}

// Options configure a Machine.
type Options struct {
	Shop        *catalog.Shop
	Cart        CartReader
	MaxQuantity float64
	AdminID     int64
}

// Machine decides the next session and effects for an event.
type Machine struct {
	shop    *catalog.Shop
	cart    CartReader
	maxQty  float64
	adminID int64
	text    map[State]textHandler
}

type textHandler func(ctx context.Context, s Session, ev Event, text string) (Result, error)

// NewMachine builds a Machine. Shop and Cart are required.
func NewMachine(opts Options) (*Machine, error) {
	if opts.Shop == nil || opts.Shop.Catalog == nil {
		return nil, errors.New("fsm: shop is required")
	}
	if opts.Cart == nil {
		return nil, errors.New("fsm: cart reader is required")
	}
	if opts.MaxQuantity <= 0 {
		opts.MaxQuantity = DefaultMaxQuantity
	}
	m := &Machine{
		shop:    opts.Shop,
		cart:    opts.Cart,
		maxQty:  opts.MaxQuantity,
		adminID: opts.AdminID,
	}
	m.text = map[State]textHandler{
		StateIdle:                    m.idleText,
		StateAwaitingQuantity:        m.quantityText,
		StateAwaitingFreeMessage:     m.freeMessageText,
		StateCheckoutName:            m.nameText,
		StateCheckoutPhone:           m.phoneText,
		StateCheckoutCity:            m.cityText,
		StateCheckoutDeliveryPoint:   m.deliveryPointText,
		StateCheckoutConfirm:         m.confirmText,
		StateQuickOrderAwaitingPhone: m.quickPhoneText,
	}
	return m, nil
}

// Transition returns the next session and the effects to apply. It only
// fails when reading the cart fails.
func (m *Machine) Transition(ctx context.Context, s Session, ev Event) (Result, error) {
	if !s.State.Valid() {
		s = Default(s.UserID)
	}
	if isReset(ev) {
		return m.reset(s, ev), nil
	}
	switch ev.Kind {
	case EventCallback:
		return m.onCallback(ctx, s, ev)
	case EventText:
		return m.onText(ctx, s, ev)
	}
	return Result{Next: s}, nil
}

func isReset(ev Event) bool {
	switch ev.Kind {
	case EventCallback:
		return ev.Command.Action == callback.Cancel
	case EventText:
		text := strings.ToLower(strings.TrimSpace(ev.Text))
		switch commandName(text) {
		case "/start", "/cancel":
			return true
		}
		return text == "cancel" || text == "скасувати"
	}
	return false
}

// commandName returns the leading /command of text without arguments or @bot suffix.
func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name, _, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return name
}

func (m *Machine) reset(s Session, ev Event) Result {
	next := Default(s.UserID)
	if ev.Kind == EventCallback {
		return Result{Next: next, Effects: []Effect{Edit{View: View{Kind: ViewWelcome}}}}
	}
	return Result{Next: next, Effects: []Effect{Send{View: View{Kind: ViewWelcome}}}}
}

// navigate abandons any flow and redraws the callback's message.
func navigate(s Session, section string, v View, extra ...Effect) Result {
	next := Default(s.UserID)
	next.LastSection = section
	return Result{Next: next, Effects: append(extra, Edit{View: v})}
}

func (m *Machine) onCallback(ctx context.Context, s Session, ev Event) (Result, error) {
	cmd := ev.Command
	switch cmd.Action {
	case callback.Main:
		return navigate(s, callback.SectionMain, View{Kind: ViewMainMenu}), nil
	case callback.Back:
		return m.back(ctx, s, cmd.Section)
	case callback.Company:
		return navigate(s, "company", View{Kind: ViewCompany}), nil
	case callback.Products:
		return navigate(s, callback.SectionProducts, View{Kind: ViewProducts}), nil
	case callback.Product:
		if _, ok := m.shop.Catalog.Lookup(cmd.ID); !ok {
			return m.notFound(s, callback.SectionProducts), nil
		}
		return navigate(s, productSection(cmd.ID), View{Kind: ViewProduct, ItemID: cmd.ID}), nil
	case callback.QuickOrder:
		if _, ok := m.shop.Catalog.Lookup(cmd.ID); !ok {
			return m.notFound(s, callback.SectionProducts), nil
		}
		return navigate(s, productSection(cmd.ID), View{Kind: ViewQuickOrder, ItemID: cmd.ID}), nil
	case callback.AddToCart:
		if _, ok := m.shop.Catalog.Lookup(cmd.ID); !ok {
			return m.notFound(s, callback.SectionProducts), nil
		}
		return Result{
			Next: Session{
				UserID:      s.UserID,
				State:       StateAwaitingQuantity,
				Temp:        TempData{ItemID: cmd.ID},
				LastSection: productSection(cmd.ID),
			},
			Effects: []Effect{DeleteMenu{}, Send{View: View{Kind: ViewAskQuantity, ItemID: cmd.ID}}},
		}, nil
	case callback.QuickCall:
		if _, ok := m.shop.Catalog.Lookup(cmd.ID); !ok {
			return m.notFound(s, callback.SectionProducts), nil
		}
		return Result{
			Next: Session{
				UserID:      s.UserID,
				State:       StateQuickOrderAwaitingPhone,
				Temp:        TempData{ItemID: cmd.ID},
				LastSection: productSection(cmd.ID),
			},
			Effects: []Effect{DeleteMenu{}, Send{View: View{Kind: ViewAskQuickPhone, ItemID: cmd.ID}}},
		}, nil
	case callback.QuickChat:
		if _, ok := m.shop.Catalog.Lookup(cmd.ID); !ok {
			return m.notFound(s, callback.SectionProducts), nil
		}
		return Result{
			Next: Session{
				UserID:      s.UserID,
				State:       StateAwaitingFreeMessage,
				Temp:        TempData{ItemID: cmd.ID},
				LastSection: productSection(cmd.ID),
			},
			Effects: []Effect{
				PlaceQuickOrder{ItemID: cmd.ID, Method: MethodChat},
				DeleteMenu{},
				Send{View: View{Kind: ViewQuickChat, ItemID: cmd.ID}},
			},
		}, nil
	case callback.FAQ:
		return navigate(s, callback.SectionFAQ, View{Kind: ViewFAQ}), nil
	case callback.FAQEntry:
		if _, ok := m.shop.FAQAt(int(cmd.ID)); !ok {
			return m.notFound(s, callback.SectionFAQ), nil
		}
		return navigate(s, callback.SectionFAQ, View{Kind: ViewFAQEntry, FAQ: int(cmd.ID)}), nil
	case callback.Cart:
		return navigate(s, callback.SectionCart, View{Kind: ViewCart}), nil
	case callback.RemoveLine:
		return navigate(s, callback.SectionCart, View{Kind: ViewCart}, RemoveLine{LineID: cmd.ID}), nil
	case callback.ClearCart:
		return navigate(s, callback.SectionMain, View{Kind: ViewCartCleared}, ClearCart{}), nil
	case callback.Checkout:
		return m.startCheckout(ctx, s)
	case callback.MyOrders:
		return navigate(s, "my_orders", View{Kind: ViewMyOrders}), nil
	case callback.Contact:
		return navigate(s, callback.SectionContact, View{Kind: ViewContact}), nil
	case callback.WriteHere:
		return Result{
			Next: Session{
				UserID:      s.UserID,
				State:       StateAwaitingFreeMessage,
				LastSection: callback.SectionContact,
			},
			Effects: []Effect{DeleteMenu{}, Send{View: View{Kind: ViewWriteHere}}},
		}, nil
	case callback.CallUs:
		return navigate(s, callback.SectionContact, View{Kind: ViewCallUs}), nil
	case callback.EmailUs:
		return navigate(s, callback.SectionContact, View{Kind: ViewEmailUs}), nil
	case callback.Address:
		return navigate(s, callback.SectionContact, View{Kind: ViewAddress}), nil
	case callback.ConfirmYes:
		if s.State != StateCheckoutConfirm {
			return navigate(s, callback.SectionMain, View{Kind: ViewMainMenu}), nil
		}
		t := s.Temp
		t.Error = ""
		return Result{
			Next: Default(s.UserID),
			Effects: []Effect{
				PlaceOrder{
					Name:          t.Name,
					Username:      ev.User.Username,
					Phone:         t.Phone,
					City:          t.City,
					DeliveryPoint: t.DeliveryPoint,
					ExpectedTotal: t.Total,
				},
				Edit{View: View{Kind: ViewOrderPlaced, Temp: t}},
			},
		}, nil
	case callback.ConfirmNo:
		if s.State != StateCheckoutConfirm {
			return navigate(s, callback.SectionMain, View{Kind: ViewMainMenu}), nil
		}
		return navigate(s, callback.SectionMain, View{Kind: ViewOrderCancelled}), nil
	}
	return navigate(s, callback.SectionMain, View{Kind: ViewMainMenu}), nil
}

func (m *Machine) back(ctx context.Context, s Session, section string) (Result, error) {
	switch section {
	case callback.SectionProducts:
		return navigate(s, section, View{Kind: ViewProducts}), nil
	case callback.SectionFAQ:
		return navigate(s, section, View{Kind: ViewFAQ}), nil
	case callback.SectionContact:
		return navigate(s, section, View{Kind: ViewContact}), nil
	case callback.SectionCart:
		return navigate(s, section, View{Kind: ViewCart}), nil
	}
	return navigate(s, callback.SectionMain, View{Kind: ViewMainMenu}), nil
}

func (m *Machine) notFound(s Session, back string) Result {
	return navigate(s, back, View{Kind: ViewNotFound, Back: back})
}

func (m *Machine) startCheckout(ctx context.Context, s Session) (Result, error) {
	lines, err := m.cart.Lines(ctx, s.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("fsm: checkout: %w", err)
	}
	if len(lines) == 0 {
		return navigate(s, callback.SectionCart, View{Kind: ViewCartEmpty}), nil
	}
	return Result{
		Next: Session{
			UserID:      s.UserID,
			State:       StateCheckoutName,
			LastSection: callback.SectionCart,
		},
		Effects: []Effect{DeleteMenu{}, Send{View: View{Kind: ViewAskName}}},
	}, nil
}

func productSection(id int64) string {
	return "product_" + strconv.FormatInt(id, 10)
}

func (m *Machine) onText(ctx context.Context, s Session, ev Event) (Result, error) {
	text := CleanText(ev.Text)
	switch commandName(strings.ToLower(text)) {
	case "/help":
		return Result{Next: s, Effects: []Effect{Send{View: View{Kind: ViewHelp}}}}, nil
	case "/stats":
		if m.adminID != 0 && ev.User.ID == m.adminID {
			return Result{Next: s, Effects: []Effect{Send{View: View{Kind: ViewStats}}}}, nil
		}
	}
	h, ok := m.text[s.State]
	if !ok {
		return m.idleText(ctx, Default(s.UserID), ev, text)
	}
	return h(ctx, s, ev, text)
}

// reprompt keeps the state and records the notice for display.
func reprompt(s Session, n Notice, v View) Result {
	next := s
	next.Temp.Error = n
	v.Notice = n
	return Result{Next: next, Effects: []Effect{Send{View: v}}}
}

// advance moves to state with temp and sends v.
func advance(s Session, state State, temp TempData, v View) Result {
	temp.Error = ""
	return Result{
		Next:    Session{UserID: s.UserID, State: state, Temp: temp, LastSection: s.LastSection},
		Effects: []Effect{Send{View: v}},
	}
}

func (m *Machine) idleText(_ context.Context, s Session, _ Event, text string) (Result, error) {
	if text == "" {
		return Result{Next: s, Effects: []Effect{Send{View: View{Kind: ViewMainMenu}}}}, nil
	}
	return Result{
		Next: Default(s.UserID),
		Effects: []Effect{
			SaveMessage{Kind: MessageChat, Text: text},
			Send{View: View{Kind: ViewChatAck}},
		},
	}, nil
}

func (m *Machine) quantityText(_ context.Context, s Session, _ Event, text string) (Result, error) {
	item, ok := m.shop.Catalog.Lookup(s.Temp.ItemID)
	if !ok {
		next := Default(s.UserID)
		return Result{Next: next, Effects: []Effect{Send{View: View{Kind: ViewNotFound, Back: callback.SectionProducts}}}}, nil
	}
	ask := View{Kind: ViewAskQuantity, ItemID: item.ID}
	qty, err := ParseQuantity(text, m.maxQty)
	switch {
	case errors.Is(err, ErrTooLarge):
		return reprompt(s, NoticeQuantityLimit, ask), nil
	case err != nil:
		return reprompt(s, NoticeBadQuantity, ask), nil
	}
	next := Default(s.UserID)
	next.LastSection = callback.SectionProducts
	return Result{
		Next: next,
		Effects: []Effect{
			AddToCart{ItemID: item.ID, Qty: qty},
			Send{View: View{Kind: ViewAddedToCart, ItemID: item.ID, Quantity: qty}},
			Send{View: View{Kind: ViewProducts}},
		},
	}, nil
}

func (m *Machine) freeMessageText(_ context.Context, s Session, _ Event, text string) (Result, error) {
	if text == "" {
		return reprompt(s, NoticeEmptyInput, View{Kind: ViewWriteHere}), nil
	}
	kind := MessageContact
	if s.Temp.ItemID != 0 {
		kind = MessageQuickOrder
	}
	return Result{
		Next: Default(s.UserID),
		Effects: []Effect{
			SaveMessage{Kind: kind, Text: text, ItemID: s.Temp.ItemID},
			Send{View: View{Kind: ViewMessageThanks}},
		},
	}, nil
}

func (m *Machine) nameText(_ context.Context, s Session, _ Event, text string) (Result, error) {
	if text == "" {
		return reprompt(s, NoticeEmptyInput, View{Kind: ViewAskName}), nil
	}
	return advance(s, StateCheckoutPhone, TempData{Name: text}, View{Kind: ViewAskPhone}), nil
}

func (m *Machine) phoneText(_ context.Context, s Session, _ Event, text string) (Result, error) {
	phone, err := NormalizePhone(text)
	if err != nil {
		return reprompt(s, NoticeBadPhone, View{Kind: ViewAskPhone}), nil
	}
	t := s.Temp
	t.Phone = phone
	return advance(s, StateCheckoutCity, t, View{Kind: ViewAskCity}), nil
}

func (m *Machine) cityText(_ context.Context, s Session, _ Event, text string) (Result, error) {
	if text == "" {
		return reprompt(s, NoticeEmptyInput, View{Kind: ViewAskCity}), nil
	}
	t := s.Temp
	t.City = text
	return advance(s, StateCheckoutDeliveryPoint, t, View{Kind: ViewAskDeliveryPoint}), nil
}

func (m *Machine) deliveryPointText(ctx context.Context, s Session, _ Event, text string) (Result, error) {
	if text == "" {
		return reprompt(s, NoticeEmptyInput, View{Kind: ViewAskDeliveryPoint}), nil
	}
	lines, err := m.cart.Lines(ctx, s.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("fsm: delivery point: %w", err)
	}
	if len(lines) == 0 {
		next := Default(s.UserID)
		next.LastSection = callback.SectionCart
		return Result{Next: next, Effects: []Effect{Send{View: View{Kind: ViewCartEmpty}}}}, nil
	}
	t := s.Temp
	t.DeliveryPoint = text
	t.Total = cart.Total(lines)
	t.Error = ""
	return advance(s, StateCheckoutConfirm, t, View{Kind: ViewConfirmOrder, Temp: t}), nil
}

func (m *Machine) confirmText(_ context.Context, s Session, _ Event, _ string) (Result, error) {
	t := s.Temp
	t.Error = ""
	return reprompt(s, NoticeUseButtons, View{Kind: ViewConfirmOrder, Temp: t}), nil
}

func (m *Machine) quickPhoneText(_ context.Context, s Session, _ Event, text string) (Result, error) {
	item, ok := m.shop.Catalog.Lookup(s.Temp.ItemID)
	if !ok {
		return Result{Next: Default(s.UserID), Effects: []Effect{Send{View: View{Kind: ViewNotFound, Back: callback.SectionProducts}}}}, nil
	}
	phone, err := NormalizePhone(text)
	if err != nil {
		return reprompt(s, NoticeBadPhone, View{Kind: ViewAskQuickPhone, ItemID: item.ID}), nil
	}
	return Result{
		Next: Default(s.UserID),
		Effects: []Effect{
			PlaceQuickOrder{ItemID: item.ID, Phone: phone, Method: MethodCall},
			Send{View: View{Kind: ViewQuickOrderPlaced, ItemID: item.ID, Temp: TempData{Phone: phone}}},
		},
	}, nil
}
