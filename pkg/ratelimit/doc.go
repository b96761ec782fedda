// Package ratelimit throttles requests to the site's JSON API.
//
// File transfers are not limited; only listing, login and profile lookups go
// through a Limiter.
//
//	limiter := ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
