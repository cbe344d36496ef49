package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/farmbot/core/config"
	"github.com/m3rciful/farmbot/core/telegram/middleware"
	"github.com/m3rciful/farmbot/core/telegram/updates"
)

// DefaultMiddlewares builds the shared middleware chain for the update
// handler: recover, logger, the optional rate limit and the summary line.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited updates.HandlerFunc) []updates.Middleware {
	mws := []updates.Middleware{
		middleware.Recover,
		middleware.Logger,
	}

	if cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			mws = append(mws, middleware.RateLimit(middleware.RateLimitOptions{
				Interval:  interval,
				Exclude:   ex,
				OnLimited: onLimited,
			}))
		}
	}

	return append(mws, middleware.Summary)
}
