package files

import (
	"context"
	"path"
	"time"

	"ckscraper/pkg/logger"
	"ckscraper/pkg/site"
)

// UnknownSize marks a record whose size was not requested
const UnknownSize int64 = -1

// Record is a downloadable file with the context of its post
type Record struct {
	Name      string
	URL       string
	Type      FileType
	PostID    string
	PostTitle string
	Added     time.Time
	Published time.Time
	Size      int64
}

// Resolver turns post file paths into URLs and, on demand, sizes
type Resolver interface {
	DataURL(path string) string
	ContentLength(ctx context.Context, url string) (int64, error)
}

// Options controls Collect
type Options struct {
	// Type keeps only files of this type when set
	Type *FileType
	// WithSize issues one HEAD request per kept file
	WithSize bool
}

// Extractor derives file records from posts
type Extractor struct {
	resolver Resolver
	logger   logger.Logger
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithLogger sets the logger
func WithLogger(l logger.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor creates an extractor resolving URLs through r
func NewExtractor(r Resolver, opts ...ExtractorOption) *Extractor {
	e := &Extractor{resolver: r, logger: logger.GetLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FilesFor returns the post's main file followed by its attachments, with
// repeated URLs dropped
func (e *Extractor) FilesFor(post site.Post) []Record {
	title := SanitizeTitle(post.Title, post.ID.String())

	descriptors := make([]site.FileDescriptor, 0, len(post.Attachments)+1)
	if !post.File.Empty() {
		descriptors = append(descriptors, *post.File)
	}
	descriptors = append(descriptors, post.Attachments...)

	seen := make(map[string]struct{}, len(descriptors))
	records := make([]Record, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Path == "" {
			continue
		}
		url := e.resolver.DataURL(d.Path)
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}

		name := d.Name
		if name == "" {
			name = path.Base(d.Path)
		}
		records = append(records, Record{
			Name:      name,
			URL:       url,
			Type:      Classify(name),
			PostID:    post.ID.String(),
			PostTitle: title,
			Added:     post.Added.Time,
			Published: post.Published.Time,
			Size:      UnknownSize,
		})
	}
	return records
}

// Collect builds the file list for a run. The type filter applies before
// de-duplication, so a URL is kept the first time it appears with a wanted
// type.
func (e *Extractor) Collect(ctx context.Context, posts []site.Post, opts Options) ([]Record, error) {
	var out []Record
	seen := make(map[string]struct{})

	for _, post := range posts {
		for _, rec := range e.FilesFor(post) {
			if opts.Type != nil && rec.Type != *opts.Type {
				continue
			}
			if _, dup := seen[rec.URL]; dup {
				continue
			}
			seen[rec.URL] = struct{}{}

			if opts.WithSize {
				size, err := e.resolver.ContentLength(ctx, rec.URL)
				if err != nil {
					return nil, err
				}
				rec.Size = size
			}
			out = append(out, rec)
		}
	}

	e.logger.DebugWithFields("collected files", map[string]interface{}{
		"posts": len(posts),
		"files": len(out),
	})
	return out, nil
}
