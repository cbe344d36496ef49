package middleware

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/core/telegram/updates"
)

// Summary logs one handler.handled line per update with status, duration and
// the error code of a failure.
func Summary(next updates.HandlerFunc) updates.HandlerFunc {
	return func(ctx context.Context, u tele.Update) error {
		start := time.Now()
		name := HandlerName(u)
		ctx = logger.WithHandler(ctx, name)
		err := next(ctx, u)

		outcome := logger.Status(err)
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.String("outcome", outcome),
			slog.String("kind", updates.Kind(u)),
			slog.Duration("duration", logger.Took(start)),
		}
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
			attrs = append(attrs,
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
				slog.String("err_code", deriveErrorCode(err)),
			)
		}
		logger.LogEvent(ctx, nil, level, "handler.handled", attrs...)
		return err
	}
}

// HandlerName labels an update by its command or callback key.
func HandlerName(u tele.Update) string {
	switch {
	case u.Callback != nil:
		key := strings.TrimSpace(u.Callback.Data)
		if i := strings.LastIndexByte(key, '_'); i > 0 && isDigits(key[i+1:]) {
			key = key[:i]
		}
		return "callback." + normalizeHandlerName(key)
	case u.Message != nil:
		text := strings.TrimSpace(u.Message.Text)
		if strings.HasPrefix(text, "/") {
			cmd, _, _ := strings.Cut(text, " ")
			cmd, _, _ = strings.Cut(cmd, "@")
			return "command." + normalizeHandlerName(cmd)
		}
		return "message.text"
	}
	return "other"
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "unknown"
	}
	name = strings.ReplaceAll(name, " ", "_")
	return logger.SanitizeLimit(strings.ToLower(name), 64)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}
