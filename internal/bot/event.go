package bot

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/farmbot/internal/callback"
	"github.com/m3rciful/farmbot/internal/fsm"
)

// EventFrom converts an update into a state machine event. Updates without a
// sender are ignored. Messages without text carry their caption, or empty text,
// so the current state can re-prompt.
func EventFrom(u tele.Update) (fsm.Event, bool) {
	switch {
	case u.Callback != nil:
		cb := u.Callback
		if cb.Sender == nil {
			return fsm.Event{}, false
		}
		ev := fsm.Event{
			Kind:       fsm.EventCallback,
			ChatID:     cb.Sender.ID,
			CallbackID: cb.ID,
			User:       userFrom(cb.Sender),
			Command:    callback.Parse(cb.Data),
		}
		if cb.Message != nil {
			ev.MessageID = cb.Message.ID
			if cb.Message.Chat != nil {
				ev.ChatID = cb.Message.Chat.ID
			}
		}
		return ev, true
	case u.Message != nil:
		m := u.Message
		if m.Sender == nil {
			return fsm.Event{}, false
		}
		text := m.Text
		if text == "" {
			text = m.Caption
		}
		ev := fsm.Event{
			Kind:      fsm.EventText,
			ChatID:    m.Sender.ID,
			MessageID: m.ID,
			User:      userFrom(m.Sender),
			Text:      text,
		}
		if m.Chat != nil {
			ev.ChatID = m.Chat.ID
		}
		return ev, true
	}
	return fsm.Event{}, false
}

func userFrom(u *tele.User) fsm.User {
	return fsm.User{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Username: u.Username}
}

// handlerName labels an event for logs.
func handlerName(ev fsm.Event) string {
	if ev.Kind == fsm.EventCallback {
		return "callback." + ev.Command.Action.String()
	}
	return "text"
}
