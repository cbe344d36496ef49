package middleware

import (
	"context"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/core/telegram/updates"
)

// Logger attaches the rid and update metadata to ctx and logs a sampled
// receipt line per update.
func Logger(next updates.HandlerFunc) updates.HandlerFunc {
	return func(ctx context.Context, u tele.Update) error {
		user, chat := updates.Sender(u)
		chatID, userID := int64(0), int64(0)
		if chat != nil {
			chatID = chat.ID
		}
		if user != nil {
			userID = user.ID
			if chatID == 0 {
				chatID = user.ID
			}
		}
		rid := logger.BuildRID(u.ID, chatID, userID)
		ctx = logger.WithRID(ctx, rid)
		ctx = logger.WithUpdateMeta(ctx, u.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component(logger.CompTG))

		if logger.ShouldSampleDebug() {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("kind", updates.Kind(u)),
			}
			if chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user != nil {
				if user.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
				}
				if user.LanguageCode != "" {
					attrs = append(attrs, slog.String("lang", user.LanguageCode))
				}
			}
			if p := payload(u); p != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(p, 256)))
			}
			logger.LogEvent(ctx, nil, slog.LevelDebug, "update.received", attrs...)
		}
		return next(ctx, u)
	}
}

func payload(u tele.Update) string {
	switch {
	case u.Callback != nil:
		return strings.TrimSpace(u.Callback.Data)
	case u.Message != nil:
		return u.Message.Text
	}
	return ""
}
