// Package posts walks a user's feed page by page and applies the date and
// post id window.
package posts

import (
	"context"
	"slices"
	"time"

	"ckscraper/pkg/config"
	"ckscraper/pkg/logger"
	"ckscraper/pkg/retry"
	"ckscraper/pkg/site"
)

// PageSource serves raw feed pages
type PageSource interface {
	Posts(ctx context.Context, userID string, offset int) ([]site.Post, error)
	Favorites(ctx context.Context) ([]site.Post, error)
}

// Query selects the posts to list. Feeds are newest first: FromDate and
// FromPostID mark where listing starts, ToDate and ToPostID where it stops.
type Query struct {
	UserID     string
	Favorites  bool
	FromDate   *time.Time
	ToDate     *time.Time
	FromPostID string
	ToPostID   string
	Reverse    bool
}

// Paginator materializes a filtered post list
type Paginator struct {
	source PageSource
	retry  config.RetryConfig
	logger logger.Logger
}

// Option configures a Paginator
type Option func(*Paginator)

// WithRetry sets the retry policy for page requests
func WithRetry(rc config.RetryConfig) Option {
	return func(p *Paginator) { p.retry = rc }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(p *Paginator) { p.logger = l }
}

// NewPaginator creates a paginator over source
func NewPaginator(source PageSource, opts ...Option) *Paginator {
	p := &Paginator{
		source: source,
		retry:  config.DefaultConfig().Retry,
		logger: logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// List fetches pages until an empty one (or the stop condition) and returns
// the posts inside the query window, in feed order or reversed.
func (p *Paginator) List(ctx context.Context, q Query) ([]site.Post, error) {
	favorites := q.Favorites || q.UserID == site.FavoritesUserID
	fromID, fromDate := q.FromPostID, q.FromDate

	var out []site.Post
	finish := func() []site.Post {
		if q.Reverse {
			slices.Reverse(out)
		}
		return out
	}

	seen := make(map[site.PostID]struct{})
	for offset := 0; ; offset += site.PageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := p.fetch(ctx, q.UserID, favorites, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return finish(), nil
		}

		kept := 0
		for _, post := range page {
			if _, dup := seen[post.ID]; dup {
				continue
			}
			seen[post.ID] = struct{}{}

			if (fromID != "" && post.ID.String() != fromID) ||
				(fromDate != nil && post.Added.After(*fromDate)) {
				continue
			}
			fromID, fromDate = "", nil

			if (q.ToPostID != "" && post.ID.String() == q.ToPostID) ||
				(q.ToDate != nil && post.Added.Before(*q.ToDate)) {
				logger.LogPage(p.logger, q.UserID, offset, len(page), kept)
				return finish(), nil
			}

			out = append(out, post)
			kept++
		}
		logger.LogPage(p.logger, q.UserID, offset, len(page), kept)
	}
}

func (p *Paginator) fetch(ctx context.Context, userID string, favorites bool, offset int) ([]site.Post, error) {
	if favorites && offset > 0 {
		return nil, nil
	}

	cfg := retry.FromConfig(ctx, p.retry, p.logger.WithField("user_id", userID))
	return retry.DoWithResult(func() ([]site.Post, error) {
		if favorites {
			return p.source.Favorites(ctx)
		}
		return p.source.Posts(ctx, userID, offset)
	}, cfg)
}
