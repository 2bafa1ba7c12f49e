package platform

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter implements two-tier rate limiting for platform REST calls: a
// global limiter protecting the bot's overall budget and per-guild limiters
// so one busy guild cannot starve the others.
type RateLimiter struct {
	global     *rate.Limiter
	perGuild   *sync.Map // map[string]*rate.Limiter
	guildRate  float64
	guildBurst int
}

// NewRateLimiter creates a limiter with the given global and per-guild
// request rates (requests per second).
func NewRateLimiter(globalRate, perGuildRate float64) *RateLimiter {
	return &RateLimiter{
		global:     rate.NewLimiter(rate.Limit(globalRate), int(globalRate*2)),
		perGuild:   &sync.Map{},
		guildRate:  perGuildRate,
		guildBurst: int(perGuildRate * 2),
	}
}

// Wait blocks until both tiers admit one request, or the context is done.
func (rl *RateLimiter) Wait(ctx context.Context, guildID string) error {
	if err := rl.global.Wait(ctx); err != nil {
		return err
	}
	if guildID == "" {
		return nil
	}
	return rl.guildLimiter(guildID).Wait(ctx)
}

func (rl *RateLimiter) guildLimiter(guildID string) *rate.Limiter {
	if l, ok := rl.perGuild.Load(guildID); ok {
		return l.(*rate.Limiter)
	}
	l, _ := rl.perGuild.LoadOrStore(guildID, rate.NewLimiter(rate.Limit(rl.guildRate), rl.guildBurst))
	return l.(*rate.Limiter)
}
