// Package retry provides bounded retries with backoff for transient failures
// such as dropped connections, 5xx responses and short file transfers.
//
//	page, err := retry.DoWithResult(func() ([]site.Post, error) {
//		return client.Posts(ctx, userID, offset)
//	}, retry.FromConfig(ctx, cfg.Retry, log))
//
// Errors typed by pkg/errors are retried only when their type is retryable;
// context cancellation is never retried and interrupts any pending wait.
package retry
