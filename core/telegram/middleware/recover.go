package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/core/telegram/updates"
)

// Recover catches panics in handlers and returns them as errors.
func Recover(next updates.HandlerFunc) updates.HandlerFunc {
	return func(ctx context.Context, u tele.Update) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, logger.CompTG, "tg.panic",
					slog.Int("update_id", u.ID),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return next(ctx, u)
	}
}
