// Package site is the client for one kemono/coomer style host.
//
// A Client holds the session for the whole run. Its token goes out as the
// session cookie on every request, and is "anonymous" until Authenticate
// succeeds. API requests (feed pages, favorites, profiles, login)
// pass through a rate limiter; file transfers do not.
//
//	client := site.NewClient(cfg.Site, site.WithLimiter(limiter))
//	if _, err := client.AppVersion(ctx); err != nil {
//		return err // ErrorTypeSiteUnavailable
//	}
//	if _, err := client.Authenticate(ctx, user, pass); err != nil {
//		return err // ErrorTypeAuth
//	}
//	page, err := client.Posts(ctx, "someone", 0)
package site
