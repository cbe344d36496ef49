package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/core/telegram/updates"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists update kinds (updates.KindCallback, updates.KindMessage)
	// that bypass the limit.
	Exclude   map[string]struct{}
	OnLimited updates.HandlerFunc
}

// RateLimit enforces a minimum interval between updates from the same user.
// Limited updates are dropped after OnLimited runs.
func RateLimit(opts RateLimitOptions) updates.Middleware {
	var (
		mu       sync.Mutex
		lastSeen = make(map[int64]time.Time)
		now      = time.Now
	)
	return func(next updates.HandlerFunc) updates.HandlerFunc {
		return func(ctx context.Context, u tele.Update) error {
			user, _ := updates.Sender(u)
			if user == nil || opts.Interval <= 0 {
				return next(ctx, u)
			}
			kind := updates.Kind(u)
			if _, skip := opts.Exclude[kind]; skip {
				return next(ctx, u)
			}

			t := now()
			mu.Lock()
			if last, ok := lastSeen[user.ID]; ok && t.Sub(last) < opts.Interval {
				mu.Unlock()
				logger.Warn(ctx, logger.CompTG, "tg.rate_limit",
					slog.String("kind", kind),
					slog.Int64("user_id", user.ID),
				)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(ctx, u)
				}
				return nil
			}
			lastSeen[user.ID] = t
			for id, ts := range lastSeen {
				if t.Sub(ts) > time.Minute {
					delete(lastSeen, id)
				}
			}
			mu.Unlock()
			return next(ctx, u)
		}
	}
}
