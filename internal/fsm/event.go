package fsm

import (
	"strings"

	"github.com/m3rciful/farmbot/internal/callback"
)

// EventKind distinguishes text messages from button presses.
type EventKind uint8

const (
	EventText EventKind = iota + 1
	EventCallback
)

// User is the sender of an event as reported by the gateway.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Event is one inbound update in transport-neutral form.
type Event struct {
	Kind       EventKind
	ChatID     int64
	MessageID  int
	CallbackID string
	User       User
	Text       string
	// Command is the decoded callback data; zero for text events.
	Command callback.Command
}
