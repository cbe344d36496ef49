// Package fsm holds the per-user dialogue state machine. Transition is pure
// decision logic: it reads the cart but leaves every write to the effects it
// returns.
package fsm

import (
	"errors"
	"fmt"

	"github.com/m3rciful/farmbot/internal/callback"
)

// State identifies a dialogue step.
type State string

// Dialogue states. Idle is the initial state; completed or cancelled flows return to it.
const (
	StateIdle                    State = "idle"
	StateAwaitingQuantity        State = "awaiting_quantity"
	StateAwaitingFreeMessage     State = "awaiting_free_message"
	StateCheckoutName            State = "checkout_name"
	StateCheckoutPhone           State = "checkout_phone"
	StateCheckoutCity            State = "checkout_city"
	StateCheckoutDeliveryPoint   State = "checkout_delivery_point"
	StateCheckoutConfirm         State = "checkout_confirm"
	StateQuickOrderAwaitingPhone State = "quick_order_awaiting_phone"
)

// States lists every state in flow order.
func States() []State {
	return []State{
		StateIdle,
		StateAwaitingQuantity,
		StateAwaitingFreeMessage,
		StateCheckoutName,
		StateCheckoutPhone,
		StateCheckoutCity,
		StateCheckoutDeliveryPoint,
		StateCheckoutConfirm,
		StateQuickOrderAwaitingPhone,
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, st := range States() {
		if s == st {
			return true
		}
	}
	return false
}

func (s State) String() string { return string(s) }

// TempData is the scratch data of an in-progress flow. Error carries the
// notice of the last rejected input and is allowed in every state.
type TempData struct {
	ItemID        int64   `json:"item_id,omitempty"`
	Name          string  `json:"name,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	City          string  `json:"city,omitempty"`
	DeliveryPoint string  `json:"delivery_point,omitempty"`
	Total         float64 `json:"total,omitempty"`
	Error         Notice  `json:"error,omitempty"`
}

// Session is the dialogue state of one user.
type Session struct {
	UserID      int64
	State       State
	Temp        TempData
	LastSection string
}

// Default returns the idle session a user has before any interaction.
func Default(userID int64) Session {
	return Session{UserID: userID, State: StateIdle, LastSection: callback.SectionMain}
}

// IsDefault reports whether s carries nothing worth storing.
func (s Session) IsDefault() bool {
	return s == Default(s.UserID)
}

// ErrInvalidSession is returned when temp data does not fit the state.
var ErrInvalidSession = errors.New("fsm: invalid session")

type field uint8

const (
	fItem field = 1 << iota
	fName
	fPhone
	fCity
	fDeliveryPoint
	fTotal
)

var fieldNames = []struct {
	f    field
	name string
}{
	{fItem, "item_id"},
	{fName, "name"},
	{fPhone, "phone"},
	{fCity, "city"},
	{fDeliveryPoint, "delivery_point"},
	{fTotal, "total"},
}

// required and optional fields per state; anything else is forbidden.
var stateFields = map[State]struct{ required, optional field }{
	StateIdle:                    {},
	StateAwaitingQuantity:        {required: fItem},
	StateAwaitingFreeMessage:     {optional: fItem},
	StateCheckoutName:            {},
	StateCheckoutPhone:           {required: fName},
	StateCheckoutCity:            {required: fName | fPhone},
	StateCheckoutDeliveryPoint:   {required: fName | fPhone | fCity},
	StateCheckoutConfirm:         {required: fName | fPhone | fCity | fDeliveryPoint, optional: fTotal},
	StateQuickOrderAwaitingPhone: {required: fItem},
}

func (t TempData) present() field {
	var f field
	if t.ItemID != 0 {
		f |= fItem
	}
	if t.Name != "" {
		f |= fName
	}
	if t.Phone != "" {
		f |= fPhone
	}
	if t.City != "" {
		f |= fCity
	}
	if t.DeliveryPoint != "" {
		f |= fDeliveryPoint
	}
	if t.Total != 0 {
		f |= fTotal
	}
	return f
}

// Validate checks that the session's temp data holds exactly the fields its state needs.
func Validate(s Session) error {
	spec, ok := stateFields[s.State]
	if !ok {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidSession, s.State)
	}
	have := s.Temp.present()
	for _, fn := range fieldNames {
		switch {
		case spec.required&fn.f != 0 && have&fn.f == 0:
			return fmt.Errorf("%w: state %s requires %s", ErrInvalidSession, s.State, fn.name)
		case (spec.required|spec.optional)&fn.f == 0 && have&fn.f != 0:
			return fmt.Errorf("%w: state %s does not allow %s", ErrInvalidSession, s.State, fn.name)
		}
	}
	if s.Temp.Error != "" && !s.Temp.Error.Valid() {
		return fmt.Errorf("%w: unknown notice %q", ErrInvalidSession, s.Temp.Error)
	}
	return nil
}
