package scanner

import (
	"context"
	"net/http"
	"time"

	errs "ckscraper/pkg/errors"
	"ckscraper/pkg/logger"
	"ckscraper/pkg/retry"
)

// Prober looks up the status of a handle's profile
type Prober interface {
	ProfileStatus(ctx context.Context, handle string) (int, error)
}

// Options controls how hard the checker tries
type Options struct {
	Attempts int
	Delay    time.Duration
}

// DefaultOptions are three tries three seconds apart
func DefaultOptions() Options {
	return Options{Attempts: 3, Delay: 3 * time.Second}
}

// Checker answers whether a collaborator handle exists
type Checker struct {
	prober Prober
	opts   Options
	logger logger.Logger
}

// NewChecker creates a checker. A nil logger uses the global one.
func NewChecker(p Prober, opts Options, log logger.Logger) *Checker {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultOptions().Attempts
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Checker{prober: p, opts: opts, logger: log}
}

// Exists reports true on a 200 and false on a 404. Any other answer is
// retried; when tries run out the handle counts as missing.
func (c *Checker) Exists(ctx context.Context, handle string) bool {
	found := false

	err := retry.Do(func() error {
		status, err := c.prober.ProfileStatus(ctx, handle)
		if err != nil {
			return err
		}
		switch status {
		case http.StatusOK:
			found = true
			return nil
		case http.StatusNotFound:
			return nil
		default:
			return errs.New(errs.ErrorTypeServerError, status, "profile lookup for %s", handle)
		}
	}, &retry.Config{
		MaxAttempts: c.opts.Attempts,
		Backoff:     &retry.ConstantBackoff{Delay: c.opts.Delay},
		RetryIf:     func(err error) bool { return ctx.Err() == nil },
		Context:     ctx,
		Logger:      c.logger,
	})
	if err != nil {
		c.logger.DebugWithFields("Profile check gave up", map[string]interface{}{
			"handle": handle,
			"error":  err.Error(),
		})
		return false
	}
	return found
}
