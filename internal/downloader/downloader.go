package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	errs "ckscraper/pkg/errors"
	"ckscraper/pkg/files"
	"ckscraper/pkg/logger"
	"ckscraper/pkg/retry"
	"ckscraper/pkg/storage"
)

// Outcome is what happened to one file
type Outcome string

const (
	Downloaded      Outcome = "downloaded"
	SkippedExisting Outcome = "skipped-existing"
	SkippedIgnored  Outcome = "skipped-ignored"
	Failed          Outcome = "failed"
)

// Fetcher reads file sizes and byte ranges from the data host
type Fetcher interface {
	ContentLength(ctx context.Context, url string) (int64, error)
	OpenRange(ctx context.Context, url string, offset int64) (*http.Response, error)
}

// Storage is the filesystem side of a download
type Storage interface {
	Target(userID, postTitle, name string) storage.Target
	Prepare(t storage.Target) error
	Exists(t storage.Target) bool
	Ignored(t storage.Target) bool
	TempSize(t storage.Target) (int64, error)
	OpenTemp(t storage.Target, resume bool) (*os.File, error)
	Commit(t storage.Target) error
	Touch(path string, ts time.Time) error
}

// Progress receives transfer updates. Message carries the informative lines
// that quiet mode suppresses.
type Progress interface {
	Start(name string, done, total int64)
	Advance(n int64)
	Finish()
	Message(text string)
}

// Options configures a Downloader
type Options struct {
	Overwrite   bool
	Quiet       bool
	MaxAttempts int
	ChunkSize   int
	Backoff     retry.BackoffStrategy
}

// Result describes the handling of one file
type Result struct {
	Record   files.Record
	Path     string
	Outcome  Outcome
	Bytes    int64
	Attempts int
	Err      error
}

// Summary totals a DownloadAll run
type Summary struct {
	Downloaded int
	Skipped    int
	Ignored    int
	Failed     int
	Bytes      int64
	Errors     []error
}

// Err reports an incomplete run, or nil when every file was handled
func (s Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return &errs.Error{
		Type:    errs.ErrorTypeIncomplete,
		Message: fmt.Sprintf("%d file(s) could not be downloaded", s.Failed),
		Err:     errors.Join(s.Errors...),
	}
}

func (s *Summary) add(r Result) {
	s.Bytes += r.Bytes
	switch r.Outcome {
	case Downloaded:
		s.Downloaded++
	case SkippedExisting:
		s.Skipped++
	case SkippedIgnored:
		s.Ignored++
	case Failed:
		s.Failed++
		if r.Err != nil {
			s.Errors = append(s.Errors, r.Err)
		}
	}
}

// Downloader fetches files one at a time, resuming partial transfers
type Downloader struct {
	client   Fetcher
	storage  Storage
	opts     Options
	progress Progress
	logger   logger.Logger
}

// New creates a downloader. A nil progress discards updates and a nil logger
// uses the global one.
func New(client Fetcher, store Storage, opts Options, progress Progress, log logger.Logger) *Downloader {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 32 * 1024
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultExponentialBackoff()
	}
	if progress == nil {
		progress = NopProgress{}
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Downloader{
		client:   client,
		storage:  store,
		opts:     opts,
		progress: progress,
		logger:   log,
	}
}

// DownloadAll handles records in order. A failed file does not stop the run;
// cancellation does.
func (d *Downloader) DownloadAll(ctx context.Context, userID string, records []files.Record) Summary {
	var summary Summary

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			summary.Errors = append(summary.Errors, err)
			break
		}
		summary.add(d.Download(ctx, userID, rec))
	}

	d.logger.InfoWithFields("Download run finished", map[string]interface{}{
		"downloaded": summary.Downloaded,
		"skipped":    summary.Skipped,
		"ignored":    summary.Ignored,
		"failed":     summary.Failed,
		"bytes":      summary.Bytes,
	})
	return summary
}

// Download handles one file
func (d *Downloader) Download(ctx context.Context, userID string, rec files.Record) Result {
	t := d.storage.Target(userID, rec.PostTitle, rec.Name)
	res := Result{Record: rec, Path: t.Path}

	switch {
	case d.storage.Exists(t) && !d.opts.Overwrite:
		d.notice("Download skipped, file already exists :'%s'", t.Path)
		d.touch(t.Path, rec.Published)
		d.touch(t.Dir, rec.Published)
		res.Outcome = SkippedExisting
		return d.finish(res)

	case d.storage.Ignored(t):
		d.notice("Download skipped, file ignored :'%s'", t.Path)
		d.touch(t.Dir, rec.Published)
		res.Outcome = SkippedIgnored
		return d.finish(res)
	}

	if err := d.storage.Prepare(t); err != nil {
		res.Outcome = Failed
		res.Err = err
		return d.finish(res)
	}

	log := d.logger.WithFields(map[string]interface{}{
		"path": t.Path,
		"url":  rec.URL,
	})

	err := retry.Do(func() error {
		res.Attempts++
		n, err := d.attempt(ctx, t, rec.Name, rec.URL)
		res.Bytes += n
		return err
	}, &retry.Config{
		MaxAttempts: d.opts.MaxAttempts,
		Backoff:     d.opts.Backoff,
		RetryIf:     retryTransfer,
		Context:     ctx,
		Logger:      log,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			d.notice("Try again from bytes already downloaded : %d", attempt)
		},
	})
	if err == nil {
		err = d.storage.Commit(t)
	}

	if err != nil {
		res.Outcome = Failed
		switch {
		case ctx.Err() != nil:
			res.Err = ctx.Err()
		case errors.As(err, new(*probeError)):
			d.notice("Connection error, skip file '%s'", t.Path)
			res.Err = errs.Wrap(errs.ErrorTypeIncomplete, err, "skipped %s", rec.Name)
		default:
			res.Err = errs.Wrap(errs.ErrorTypeIncomplete, err, "download of %s did not complete", rec.Name)
		}
		return d.finish(res)
	}

	d.touch(t.Path, rec.Published)
	d.touch(t.Dir, rec.Published)
	res.Outcome = Downloaded
	return d.finish(res)
}

// attempt makes one pass at the file, continuing from whatever the temporary
// file already holds
func (d *Downloader) attempt(ctx context.Context, t storage.Target, name, url string) (int64, error) {
	offset, err := d.storage.TempSize(t)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeUnknown, err, "inspecting partial file")
	}

	total, err := d.client.ContentLength(ctx, url)
	if err != nil {
		if errs.Is(err, errs.ErrorTypeNetwork) {
			return 0, &probeError{err: err}
		}
		return 0, err
	}
	if total >= 0 && offset > total {
		offset = 0
	}

	tr := &transfer{
		client:   d.client,
		storage:  d.storage,
		target:   t,
		name:     name,
		url:      url,
		offset:   offset,
		total:    total,
		chunk:    d.opts.ChunkSize,
		progress: d.progress,
	}
	written, err := tr.run(ctx)
	if err != nil {
		return written, err
	}

	size, err := d.storage.TempSize(t)
	if err != nil {
		return written, errs.Wrap(errs.ErrorTypeUnknown, err, "inspecting partial file")
	}
	if tr.total >= 0 && size < tr.total {
		return written, errs.New(errs.ErrorTypeIncomplete, 0, "received %d of %d bytes", size, tr.total)
	}
	return written, nil
}

func (d *Downloader) notice(format string, args ...interface{}) {
	if d.opts.Quiet {
		return
	}
	d.progress.Message(fmt.Sprintf(format, args...))
}

func (d *Downloader) touch(path string, ts time.Time) {
	if err := d.storage.Touch(path, ts); err != nil {
		d.logger.WarnWithFields("Failed to set file times", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
}

func (d *Downloader) finish(res Result) Result {
	logger.LogDownload(d.logger, res.Path, string(res.Outcome), res.Bytes, res.Err)
	return res
}

// probeError marks a size lookup that could not reach the host. Such files
// are given up on at once.
type probeError struct {
	err error
}

func (e *probeError) Error() string { return e.err.Error() }
func (e *probeError) Unwrap() error { return e.err }

func retryTransfer(err error) bool {
	var pe *probeError
	if errors.As(err, &pe) {
		return false
	}
	return retry.DefaultRetryIf(err)
}

// transfer streams one response into the temporary file
type transfer struct {
	client   Fetcher
	storage  Storage
	target   storage.Target
	name     string
	url      string
	offset   int64
	total    int64
	chunk    int
	progress Progress
}

// run returns the number of bytes appended to disk. When the size was not
// known beforehand, total is filled in from the response headers.
func (tr *transfer) run(ctx context.Context) (int64, error) {
	resp, err := tr.client.OpenRange(ctx, tr.url, tr.offset)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	resume := tr.offset > 0
	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		if tr.total < 0 || tr.offset >= tr.total {
			return 0, nil
		}
		// the host refuses to continue, so start over next time
		f, err := tr.storage.OpenTemp(tr.target, false)
		if err != nil {
			return 0, errs.Wrap(errs.ErrorTypeUnknown, err, "resetting partial file")
		}
		f.Close()
		return 0, errs.New(errs.ErrorTypeIncomplete, resp.StatusCode, "range from byte %d rejected", tr.offset)
	case http.StatusOK:
		if resume {
			resume = false
			tr.offset = 0
		}
	}
	if tr.total < 0 {
		tr.total = responseTotal(resp, tr.offset)
	}

	f, err := tr.storage.OpenTemp(tr.target, resume)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeUnknown, err, "opening partial file")
	}
	defer f.Close()

	tr.progress.Start(tr.name, tr.offset, tr.total)
	defer tr.progress.Finish()

	var written int64
	buf := make([]byte, tr.chunk)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			w, err := f.Write(buf[:n])
			written += int64(w)
			tr.progress.Advance(int64(w))
			if err != nil {
				return written, errs.Wrap(errs.ErrorTypeUnknown, err, "writing %s", tr.target.Temp)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return written, ctxErr
			}
			return written, errs.Wrap(errs.ErrorTypeNetwork, readErr, "reading %s", tr.url)
		}
	}

	if err := f.Close(); err != nil {
		return written, errs.Wrap(errs.ErrorTypeUnknown, err, "closing %s", tr.target.Temp)
	}
	return written, nil
}

// responseTotal works out the full file size from a GET response, or -1
func responseTotal(resp *http.Response, offset int64) int64 {
	if resp.StatusCode == http.StatusPartialContent {
		cr := resp.Header.Get("Content-Range")
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if n, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				return n
			}
		}
	}
	if resp.ContentLength < 0 {
		return -1
	}
	return resp.ContentLength + offset
}

// NopProgress discards progress updates
type NopProgress struct{}

func (NopProgress) Start(string, int64, int64) {}
func (NopProgress) Advance(int64)              {}
func (NopProgress) Finish()                    {}
func (NopProgress) Message(string)             {}
