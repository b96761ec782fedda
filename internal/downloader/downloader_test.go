package downloader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ckscraper/internal/sitetest"
	errs "ckscraper/pkg/errors"
	"ckscraper/pkg/files"
	"ckscraper/pkg/logger"
	"ckscraper/pkg/retry"
	"ckscraper/pkg/site"
	"ckscraper/pkg/storage"
)

var published = time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC)

type recordingProgress struct {
	mu       sync.Mutex
	starts   []int64
	advanced int64
	finished int
	messages []string
}

func (p *recordingProgress) Start(name string, done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts = append(p.starts, done)
}

func (p *recordingProgress) Advance(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanced += n
}

func (p *recordingProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished++
}

func (p *recordingProgress) Message(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, text)
}

type harness struct {
	srv      *sitetest.Server
	client   *site.Client
	store    *storage.Manager
	progress *recordingProgress
	logger   *logger.TestLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := sitetest.New(t)
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)

	return &harness{
		srv:      srv,
		client:   site.NewClient(srv.SiteConfig(), site.WithLogger(logger.NewNopLogger())),
		store:    store,
		progress: &recordingProgress{},
		logger:   logger.NewTestLogger(),
	}
}

func (h *harness) downloader(opts Options) *Downloader {
	if opts.Backoff == nil {
		opts.Backoff = &retry.ConstantBackoff{Delay: time.Millisecond}
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = 64
	}
	return New(h.client, h.store, opts, h.progress, h.logger)
}

func (h *harness) record(path, name string, content []byte) files.Record {
	if content != nil {
		h.srv.AddFile(path, content)
	}
	return files.Record{
		Name:      name,
		URL:       h.client.DataURL(path),
		Type:      files.Classify(name),
		PostID:    "101",
		PostTitle: "Beach day",
		Added:     published,
		Published: published,
		Size:      files.UnknownSize,
	}
}

func (h *harness) target(name string) storage.Target {
	return h.store.Target("alice", "Beach day", name)
}

func (h *harness) dataRanges(path string) []string {
	var ranges []string
	for _, r := range h.srv.Requests() {
		if r.Method == "GET" && r.Path == "/data"+path {
			ranges = append(ranges, r.Range)
		}
	}
	return ranges
}

func payload(n int) []byte {
	return bytes.Repeat([]byte("0123456789abcdef"), n/16+1)[:n]
}

func assertModTime(t *testing.T, path string, want time.Time) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, want, info.ModTime(), time.Second, path)
}

func TestDownloadFreshFile(t *testing.T) {
	h := newHarness(t)
	content := payload(1000)
	rec := h.record("/aa/bb/clip.mp4", "clip.mp4", content)

	res := h.downloader(Options{}).Download(context.Background(), "alice", rec)

	require.NoError(t, res.Err)
	assert.Equal(t, Downloaded, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int64(1000), res.Bytes)

	target := h.target("clip.mp4")
	assert.Equal(t, target.Path, res.Path)
	got, err := os.ReadFile(target.Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.NoFileExists(t, target.Temp)

	assertModTime(t, target.Path, published)
	assertModTime(t, target.Dir, published)

	assert.Equal(t, []string{""}, h.dataRanges("/aa/bb/clip.mp4"))
	assert.Equal(t, []int64{0}, h.progress.starts)
	assert.Equal(t, int64(1000), h.progress.advanced)
	assert.Equal(t, 1, h.progress.finished)
}

func TestDownloadResumesPartialFile(t *testing.T) {
	h := newHarness(t)
	content := payload(1000)
	rec := h.record("/aa/bb/clip.mp4", "clip.mp4", content)

	target := h.target("clip.mp4")
	require.NoError(t, h.store.Prepare(target))
	require.NoError(t, os.WriteFile(target.Temp, content[:400], 0644))

	res := h.downloader(Options{}).Download(context.Background(), "alice", rec)

	require.NoError(t, res.Err)
	assert.Equal(t, Downloaded, res.Outcome)
	assert.Equal(t, int64(600), res.Bytes)
	assert.Equal(t, []string{"bytes=400-"}, h.dataRanges("/aa/bb/clip.mp4"))
	assert.Equal(t, []int64{400}, h.progress.starts)

	got, err := os.ReadFile(target.Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadRetriesTruncatedTransfer(t *testing.T) {
	h := newHarness(t)
	content := payload(1000)
	rec := h.record("/aa/bb/clip.mp4", "clip.mp4", content)
	h.srv.TruncateNext["/aa/bb/clip.mp4"] = 1

	res := h.downloader(Options{}).Download(context.Background(), "alice", rec)

	require.NoError(t, res.Err)
	assert.Equal(t, Downloaded, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int64(1000), res.Bytes)
	assert.Equal(t, []string{"", "bytes=500-"}, h.dataRanges("/aa/bb/clip.mp4"))
	assert.Contains(t, h.progress.messages, "Try again from bytes already downloaded : 1")

	got, err := os.ReadFile(h.target("clip.mp4").Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadUsesContentRangeWhenSizeUnknown(t *testing.T) {
	h := newHarness(t)
	content := payload(4096)
	rec := h.record("/aa/bb/clip.mp4", "clip.mp4", content)
	h.srv.HideLength = true
	h.srv.TruncateNext["/aa/bb/clip.mp4"] = 1

	target := h.target("clip.mp4")
	require.NoError(t, h.store.Prepare(target))
	require.NoError(t, os.WriteFile(target.Temp, content[:1024], 0644))

	res := h.downloader(Options{}).Download(context.Background(), "alice", rec)

	require.NoError(t, res.Err)
	assert.Equal(t, Downloaded, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int64(3072), res.Bytes)
	assert.Equal(t, []string{"bytes=1024-", "bytes=2560-"}, h.dataRanges("/aa/bb/clip.mp4"))

	got, err := os.ReadFile(target.Path)
	require.NoError(t, err)
	assert.Len(t, got, 4096)
	assert.Equal(t, content, got)
}

func TestResponseTotal(t *testing.T) {
	partial := &http.Response{
		StatusCode:    http.StatusPartialContent,
		ContentLength: 100,
		Header:        http.Header{"Content-Range": {"bytes 900-999/5000"}},
	}
	assert.Equal(t, int64(5000), responseTotal(partial, 900))

	partial.Header.Set("Content-Range", "bytes 900-999/*")
	assert.Equal(t, int64(1000), responseTotal(partial, 900))

	assert.Equal(t, int64(42), responseTotal(&http.Response{StatusCode: http.StatusOK, ContentLength: 42}, 0))
	assert.Equal(t, int64(-1), responseTotal(&http.Response{StatusCode: http.StatusOK, ContentLength: -1}, 0))
}

func TestDownloadRestartsWhenRangeIgnored(t *testing.T) {
	h := newHarness(t)
	content := payload(300)
	rec := h.record("/cc/photo.jpg", "photo.jpg", content)
	h.srv.IgnoreRange = true

	target := h.target("photo.jpg")
	require.NoError(t, h.store.Prepare(target))
	require.NoError(t, os.WriteFile(target.Temp, []byte("stale bytes"), 0644))

	res := h.downloader(Options{}).Download(context.Background(), "alice", rec)

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"bytes=11-"}, h.dataRanges("/cc/photo.jpg"))

	got, err := os.ReadFile(target.Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadAcceptsCompleteTempFile(t *testing.T) {
	h := newHarness(t)
	content := payload(256)
	rec := h.record("/cc/photo.jpg", "photo.jpg", content)

	target := h.target("photo.jpg")
	require.NoError(t, h.store.Prepare(target))
	require.NoError(t, os.WriteFile(target.Temp, content, 0644))

	res := h.downloader(Options{}).Download(context.Background(), "alice", rec)

	require.NoError(t, res.Err)
	assert.Equal(t, Downloaded, res.Outcome)
	assert.Equal(t, int64(0), res.Bytes)
	assert.Equal(t, []string{"bytes=256-"}, h.dataRanges("/cc/photo.jpg"))
	assert.FileExists(t, target.Path)
	assert.NoFileExists(t, target.Temp)
}

func TestDownloadSkipsExistingFile(t *testing.T) {
	h := newHarness(t)
	rec := h.record("/cc/photo.jpg", "photo.jpg", payload(64))

	target := h.target("photo.jpg")
	require.NoError(t, h.store.Prepare(target))
	require.NoError(t, os.WriteFile(target.Path, []byte("old"), 0644))

	res := h.downloader(Options{}).Download(context.Background(), "alice", rec)

	assert.Equal(t, SkippedExisting, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, 0, res.Attempts)
	assert.Empty(t, h.dataRanges("/cc/photo.jpg"))
	assert.Equal(t, []string{"Download skipped, file already exists :'" + target.Path + "'"}, h.progress.messages)

	got, err := os.ReadFile(target.Path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	assertModTime(t, target.Path, published)
	assertModTime(t, target.Dir, published)
}

func TestDownloadOverwritesExistingFile(t *testing.T) {
	h := newHarness(t)
	content := payload(64)
	rec := h.record("/cc/photo.jpg", "photo.jpg", content)

	target := h.target("photo.jpg")
	require.NoError(t, h.store.Prepare(target))
	require.NoError(t, os.WriteFile(target.Path, []byte("old"), 0644))

	res := h.downloader(Options{Overwrite: true}).Download(context.Background(), "alice", rec)

	require.NoError(t, res.Err)
	assert.Equal(t, Downloaded, res.Outcome)
	got, err := os.ReadFile(target.Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadSkipsIgnoredFile(t *testing.T) {
	for _, overwrite := range []bool{false, true} {
		t.Run(fmt.Sprintf("overwrite=%v", overwrite), func(t *testing.T) {
			h := newHarness(t)
			rec := h.record("/cc/photo.jpg", "photo.jpg", payload(64))

			target := h.target("photo.jpg")
			require.NoError(t, h.store.Prepare(target))
			require.NoError(t, os.WriteFile(target.Ignore, nil, 0644))

			res := h.downloader(Options{Overwrite: overwrite}).Download(context.Background(), "alice", rec)

			assert.Equal(t, SkippedIgnored, res.Outcome)
			assert.Equal(t, 0, res.Attempts)
			assert.Empty(t, h.srv.Requests())
			assert.NoFileExists(t, target.Path)
			assert.Equal(t, []string{"Download skipped, file ignored :'" + target.Path + "'"}, h.progress.messages)
			assertModTime(t, target.Dir, published)
		})
	}
}

func TestDownloadQuietSuppressesMessages(t *testing.T) {
	h := newHarness(t)
	rec := h.record("/cc/photo.jpg", "photo.jpg", payload(64))

	target := h.target("photo.jpg")
	require.NoError(t, h.store.Prepare(target))
	require.NoError(t, os.WriteFile(target.Path, []byte("old"), 0644))

	res := h.downloader(Options{Quiet: true}).Download(context.Background(), "alice", rec)

	assert.Equal(t, SkippedExisting, res.Outcome)
	assert.Empty(t, h.progress.messages)
}

func TestDownloadGivesUpWhenHostUnreachable(t *testing.T) {
	h := newHarness(t)
	rec := h.record("/cc/photo.jpg", "photo.jpg", payload(64))
	h.srv.Close()

	res := h.downloader(Options{MaxAttempts: 4}).Download(context.Background(), "alice", rec)

	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, errs.Is(res.Err, errs.ErrorTypeIncomplete))
	assert.Contains(t, h.progress.messages, "Connection error, skip file '"+h.target("photo.jpg").Path+"'")
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	h := newHarness(t)
	content := payload(128)
	rec := h.record("/cc/photo.jpg", "photo.jpg", content)
	h.srv.FailNext["/data/cc/photo.jpg"] = 1

	res := h.downloader(Options{}).Download(context.Background(), "alice", rec)

	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, Downloaded, res.Outcome)
}

func TestDownloadFailsAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	rec := h.record("/aa/bb/clip.mp4", "clip.mp4", payload(1024))
	h.srv.TruncateNext["/aa/bb/clip.mp4"] = 10

	res := h.downloader(Options{MaxAttempts: 3}).Download(context.Background(), "alice", rec)

	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, errs.Is(res.Err, errs.ErrorTypeIncomplete))

	target := h.target("clip.mp4")
	assert.NoFileExists(t, target.Path)
	assert.FileExists(t, target.Temp)
	assert.True(t, h.logger.HasError())
}

func TestDownloadMissingFileFailsWithoutRetry(t *testing.T) {
	h := newHarness(t)
	rec := h.record("/nope.zip", "nope.zip", nil)

	res := h.downloader(Options{}).Download(context.Background(), "alice", rec)

	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, errs.Is(res.Err, errs.ErrorTypeIncomplete))
	assert.True(t, strings.Contains(res.Err.Error(), "not found"))
}

func TestDownloadAllContinuesAfterFailure(t *testing.T) {
	h := newHarness(t)
	missing := h.record("/nope.zip", "nope.zip", nil)
	good := h.record("/cc/photo.jpg", "photo.jpg", payload(100))

	summary := h.downloader(Options{}).DownloadAll(context.Background(), "alice", []files.Record{missing, good})

	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(100), summary.Bytes)
	require.Len(t, summary.Errors, 1)

	err := summary.Err()
	require.Error(t, err)
	assert.Equal(t, errs.ExitIncomplete, errs.ExitCode(err))
	assert.FileExists(t, filepath.Join(h.store.GetOutputDir(), "alice", "Beach day", "photo.jpg"))
}

func TestDownloadAllStopsWhenCancelled(t *testing.T) {
	h := newHarness(t)
	rec := h.record("/cc/photo.jpg", "photo.jpg", payload(100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := h.downloader(Options{}).DownloadAll(ctx, "alice", []files.Record{rec})

	assert.Zero(t, summary.Downloaded)
	assert.Empty(t, h.srv.Requests())
	require.Len(t, summary.Errors, 1)
	assert.ErrorIs(t, summary.Errors[0], context.Canceled)
	assert.NoError(t, summary.Err())
}

func TestSummaryCountsOutcomes(t *testing.T) {
	var s Summary
	s.add(Result{Outcome: Downloaded, Bytes: 10})
	s.add(Result{Outcome: SkippedExisting})
	s.add(Result{Outcome: SkippedIgnored})
	s.add(Result{Outcome: Downloaded, Bytes: 5})

	assert.Equal(t, Summary{Downloaded: 2, Skipped: 1, Ignored: 1, Bytes: 15}, s)
	assert.NoError(t, s.Err())
}
