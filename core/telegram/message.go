package telegram

import (
	"github.com/m3rciful/farmbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// Message is a rendered screen: HTML text plus an optional inline keyboard.
type Message struct {
	Text   string
	Layout keyboard.Layout
}

func (m Message) sendOptions() *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:   tele.ModeHTML,
		ReplyMarkup: keyboard.Markup(m.Layout),
	}
}
