// Package updates polls Telegram for updates and runs a handler for each of
// them, one at a time per user and in parallel across users.
package updates

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

// HandlerFunc handles one update.
type HandlerFunc func(ctx context.Context, u tele.Update) error

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that the first middleware runs outermost.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Kinds reported by Kind.
const (
	KindCallback = "callback"
	KindMessage  = "message"
	KindOther    = "other"
)

// Kind classifies an update for rate-limit exclusions and logs.
func Kind(u tele.Update) string {
	switch {
	case u.Callback != nil:
		return KindCallback
	case u.Message != nil:
		return KindMessage
	}
	return KindOther
}

// Sender returns the user and chat an update came from. Either may be nil.
func Sender(u tele.Update) (*tele.User, *tele.Chat) {
	switch {
	case u.Callback != nil:
		var chat *tele.Chat
		if u.Callback.Message != nil {
			chat = u.Callback.Message.Chat
		}
		return u.Callback.Sender, chat
	case u.Message != nil:
		return u.Message.Sender, u.Message.Chat
	}
	return nil, nil
}

// SenderID is the key updates are serialized on. Updates without a sender
// share key 0.
func SenderID(u tele.Update) int64 {
	if user, _ := Sender(u); user != nil {
		return user.ID
	}
	return 0
}
