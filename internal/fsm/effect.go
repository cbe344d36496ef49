package fsm

// ViewKind names a screen the renderer knows how to draw.
type ViewKind uint8

const (
	ViewWelcome ViewKind = iota + 1
	ViewMainMenu
	ViewHelp
	ViewStats
	ViewCompany
	ViewProducts
	ViewProduct
	ViewQuickOrder
	ViewNotFound
	ViewAskQuantity
	ViewAddedToCart
	ViewFAQ
	ViewFAQEntry
	ViewCart
	ViewCartEmpty
	ViewCartCleared
	ViewMyOrders
	ViewContact
	ViewWriteHere
	ViewCallUs
	ViewEmailUs
	ViewAddress
	ViewAskName
	ViewAskPhone
	ViewAskCity
	ViewAskDeliveryPoint
	ViewConfirmOrder
	ViewOrderPlaced
	ViewOrderCancelled
	ViewOrderFailed
	ViewAskQuickPhone
	ViewQuickOrderPlaced
	ViewQuickChat
	ViewMessageThanks
	ViewChatAck
	ViewFailure
)

// Notice is a short annotation shown above a re-prompt.
type Notice string

const (
	NoticeBadQuantity   Notice = "bad_quantity"
	NoticeBadPhone      Notice = "bad_phone"
	NoticeEmptyInput    Notice = "empty_input"
	NoticeUseButtons    Notice = "use_buttons"
	NoticeTotalChanged  Notice = "total_changed"
	NoticeQuantityLimit Notice = "quantity_limit"
)

// Valid reports whether n is a known notice.
func (n Notice) Valid() bool {
	switch n {
	case NoticeBadQuantity, NoticeBadPhone, NoticeEmptyInput, NoticeUseButtons, NoticeTotalChanged, NoticeQuantityLimit:
		return true
	}
	return false
}

// View identifies a screen plus the data it needs beyond what the renderer reads itself.
type View struct {
	Kind ViewKind
	// Back is the section a not-found screen returns to.
	Back     string
	ItemID   int64
	FAQ      int
	Quantity float64
	Notice   Notice
	Temp     TempData
}

// Effect is a side effect requested by a transition. Effects run in order.
type Effect interface {
	effect()
}

type (
	// Send posts View as a new message.
	Send struct{ View View }
	// Edit redraws the message the callback came from.
	Edit struct{ View View }
	// DeleteMenu removes the message the callback came from.
	DeleteMenu struct{}
	// AddToCart merges Qty of ItemID into the cart.
	AddToCart struct {
		ItemID int64
		Qty    float64
	}
	// RemoveLine deletes one cart line of the user.
	RemoveLine struct{ LineID int64 }
	// ClearCart empties the user's cart.
	ClearCart struct{}
	// PlaceOrder runs the order transaction.
	PlaceOrder struct {
		Name          string
		Username      string
		Phone         string
		City          string
		DeliveryPoint string
		ExpectedTotal float64
	}
	// PlaceQuickOrder records a single-item quick order.
	PlaceQuickOrder struct {
		ItemID int64
		Phone  string
		Method string
	}
	// SaveMessage stores free text for human follow-up.
	SaveMessage struct {
		Kind   string
		Text   string
		ItemID int64
	}
)

func (Send) effect()            {}
func (Edit) effect()            {}
func (DeleteMenu) effect()      {}
func (AddToCart) effect()       {}
func (RemoveLine) effect()      {}
func (ClearCart) effect()       {}
func (PlaceOrder) effect()      {}
func (PlaceQuickOrder) effect() {}
func (SaveMessage) effect()     {}

// Message kinds stored by SaveMessage.
const (
	MessageChat       = "chat"
	MessageContact    = "contact"
	MessageQuickOrder = "quick_order"
)

// Contact methods of a quick order.
const (
	MethodCall = "call"
	MethodChat = "chat"
)

// Result is the outcome of one transition.
type Result struct {
	Next    Session
	Effects []Effect
}
