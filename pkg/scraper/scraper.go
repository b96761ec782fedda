package scraper

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"ckscraper/internal/downloader"
	"ckscraper/pkg/config"
	"ckscraper/pkg/files"
	"ckscraper/pkg/logger"
	"ckscraper/pkg/posts"
	"ckscraper/pkg/retry"
	"ckscraper/pkg/scanner"
	"ckscraper/pkg/site"
	"ckscraper/pkg/storage"
)

// Request selects the posts and files an action works on
type Request struct {
	UserID     string
	Favorites  bool
	FileType   *files.FileType
	FromDate   *time.Time
	ToDate     *time.Time
	FromPostID string
	ToPostID   string
	Reverse    bool
}

// userID is the feed id, which also names the download directory
func (r Request) userID() string {
	if r.Favorites {
		return site.FavoritesUserID
	}
	return r.UserID
}

func (r Request) query() posts.Query {
	return posts.Query{
		UserID:     r.userID(),
		Favorites:  r.Favorites,
		FromDate:   r.FromDate,
		ToDate:     r.ToDate,
		FromPostID: r.FromPostID,
		ToPostID:   r.ToPostID,
		Reverse:    r.Reverse,
	}
}

// Scraper wires the paginator, extractor, downloader and scanner together
type Scraper struct {
	config    *config.Config
	client    SiteClient
	paginator *posts.Paginator
	extractor *files.Extractor
	progress  downloader.Progress
	out       io.Writer
	logger    logger.Logger
}

// Option configures a Scraper
type Option func(*Scraper)

// WithProgress sets where download progress goes
func WithProgress(p downloader.Progress) Option {
	return func(s *Scraper) { s.progress = p }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scraper) { s.logger = l }
}

// New creates a scraper that prints listings to out
func New(cfg *config.Config, client SiteClient, out io.Writer, opts ...Option) *Scraper {
	s := &Scraper{
		config: cfg,
		client: client,
		out:    out,
		logger: logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.paginator = posts.NewPaginator(client,
		posts.WithRetry(cfg.Retry),
		posts.WithLogger(s.logger),
	)
	s.extractor = files.NewExtractor(client, files.WithLogger(s.logger))
	return s
}

func (s *Scraper) collect(ctx context.Context, req Request, withSize bool) ([]files.Record, error) {
	list, err := s.paginator.List(ctx, req.query())
	if err != nil {
		return nil, err
	}
	return s.extractor.Collect(ctx, list, files.Options{Type: req.FileType, WithSize: withSize})
}

// ListFiles prints the files in the request window
func (s *Scraper) ListFiles(ctx context.Context, req Request) error {
	showSize := s.config.Download.ShowSize
	records, err := s.collect(ctx, req, showSize)
	if err != nil {
		return err
	}

	var total int64
	for _, rec := range records {
		size := ""
		if showSize {
			size = ":"
			if rec.Size >= 0 {
				size += strconv.FormatInt(rec.Size, 10)
				total += rec.Size
			}
		}
		fmt.Fprintf(s.out, "%s:%s%s:%s:%s\n",
			rec.Published.Format(site.TimeLayout), rec.Type, size, rec.PostTitle, rec.URL)
	}
	if showSize {
		fmt.Fprintf(s.out, "Total size:%d\n", total)
	}
	return nil
}

// DownloadFiles downloads the files in the request window. The error is of
// type incomplete when at least one file failed.
func (s *Scraper) DownloadFiles(ctx context.Context, req Request) (downloader.Summary, error) {
	records, err := s.collect(ctx, req, false)
	if err != nil {
		return downloader.Summary{}, err
	}

	store, err := storage.NewManager(s.config.Output.BaseDirectory)
	if err != nil {
		return downloader.Summary{}, err
	}

	rc := s.config.Retry
	d := downloader.New(s.client, store, downloader.Options{
		Overwrite:   s.config.Download.Overwrite,
		Quiet:       s.config.UI.Quiet,
		MaxAttempts: s.config.Download.MaxAttempts,
		ChunkSize:   s.config.Download.ChunkSize,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    rc.BaseDelay,
			MaxDelay:     rc.MaxDelay,
			Multiplier:   rc.Multiplier,
			JitterFactor: 0.1,
		},
	}, s.progress, s.logger)

	s.logger.InfoWithFields("Starting downloads", map[string]interface{}{
		"user_id": req.userID(),
		"files":   len(records),
		"output":  store.GetOutputDir(),
	})

	summary := d.DownloadAll(ctx, req.userID(), records)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, summary.Err()
}

// ListCollabs prints each handle mentioned in the user's posts with its
// profile URL, or nothing after the colon when the handle is unknown
func (s *Scraper) ListCollabs(ctx context.Context, req Request) error {
	list, err := s.paginator.List(ctx, posts.Query{UserID: req.userID(), Favorites: req.Favorites})
	if err != nil {
		return err
	}

	checker := scanner.NewChecker(s.client, scanner.Options{
		Attempts: s.config.Retry.ProbeTries,
		Delay:    s.config.Retry.ProbeDelay,
	}, s.logger)

	for _, handle := range scanner.CollabHandles(list, scanner.CollabDomain(s.client.Service())) {
		if err := ctx.Err(); err != nil {
			return err
		}
		profile := ""
		if checker.Exists(ctx, handle) {
			profile = s.client.ProfileURL(handle)
		}
		fmt.Fprintf(s.out, "%s : %s\n", handle, profile)
	}
	return nil
}

// ListLinks prints every link found in the user's posts
func (s *Scraper) ListLinks(ctx context.Context, req Request) error {
	list, err := s.paginator.List(ctx, posts.Query{UserID: req.userID(), Favorites: req.Favorites})
	if err != nil {
		return err
	}

	for _, link := range scanner.Links(list) {
		fmt.Fprintln(s.out, link)
	}
	return nil
}
