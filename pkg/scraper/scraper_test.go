package scraper

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ckscraper/internal/sitetest"
	"ckscraper/pkg/config"
	errs "ckscraper/pkg/errors"
	"ckscraper/pkg/files"
	"ckscraper/pkg/logger"
	"ckscraper/pkg/site"
)

var (
	older = time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC)
	newer = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	srv    *sitetest.Server
	client *site.Client
	cfg    *config.Config
	out    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := sitetest.New(t)

	cfg := config.DefaultConfig()
	cfg.Site = srv.SiteConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = time.Millisecond
	cfg.Retry.ProbeDelay = time.Millisecond
	cfg.Retry.ProbeTries = 2
	cfg.UI.Quiet = true

	video := srv.AddFile("/aa/video.mp4", []byte("video-bytes"))
	photo := srv.AddFile("/bb/photo.jpg", []byte("jpeg"))
	notes := srv.AddFile("/cc/notes.pdf", []byte("pdf document"))

	srv.Feeds["alice"] = []site.Post{
		sitetest.Post("2", "Second/Post!", "Thanks @Bob-Smith. Also https://onlyfans.com/alice",
			newer, &site.FileDescriptor{Name: "video.mp4", Path: video}),
		sitetest.Post("1", "First", `See https://example.com/x and <a href="https://example.com/y">`,
			older, nil,
			site.FileDescriptor{Name: "photo.jpg", Path: photo},
			site.FileDescriptor{Name: "notes.pdf", Path: notes},
			site.FileDescriptor{Name: "video.mp4", Path: video}),
	}

	return &fixture{
		srv:    srv,
		client: site.NewClient(cfg.Site, site.WithLogger(logger.NewNopLogger())),
		cfg:    cfg,
		out:    &bytes.Buffer{},
	}
}

func (f *fixture) scraper() *Scraper {
	return New(f.cfg, f.client, f.out, WithLogger(logger.NewNopLogger()))
}

func (f *fixture) lines() []string {
	return strings.Split(strings.TrimSpace(f.out.String()), "\n")
}

func TestListFiles(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.scraper().ListFiles(context.Background(), Request{UserID: "alice"}))

	base := f.srv.URL + "/data"
	assert.Equal(t, []string{
		"2024-03-10T12:00:00:video:Second-Post:" + base + "/aa/video.mp4",
		"2024-03-09T18:30:00:image:First:" + base + "/bb/photo.jpg",
		"2024-03-09T18:30:00:document:First:" + base + "/cc/notes.pdf",
	}, f.lines())
	assert.Zero(t, f.srv.Count(http.MethodHead, "/data/aa/video.mp4"))
}

func TestListFilesWithSizes(t *testing.T) {
	f := newFixture(t)
	f.cfg.Download.ShowSize = true
	image := files.Image

	req := Request{UserID: "alice", FileType: &image}
	require.NoError(t, f.scraper().ListFiles(context.Background(), req))

	assert.Equal(t, []string{
		"2024-03-09T18:30:00:image:4:First:" + f.srv.URL + "/data/bb/photo.jpg",
		"Total size:4",
	}, f.lines())
}

func TestListFilesWithUnknownSizes(t *testing.T) {
	f := newFixture(t)
	f.cfg.Download.ShowSize = true
	f.srv.HideLength = true
	image := files.Image

	req := Request{UserID: "alice", FileType: &image}
	require.NoError(t, f.scraper().ListFiles(context.Background(), req))

	assert.Equal(t, []string{
		"2024-03-09T18:30:00:image::First:" + f.srv.URL + "/data/bb/photo.jpg",
		"Total size:0",
	}, f.lines())
}

func TestListFilesReverseWindow(t *testing.T) {
	f := newFixture(t)
	to := newer

	req := Request{UserID: "alice", FromPostID: "2", ToDate: &to, Reverse: true}
	require.NoError(t, f.scraper().ListFiles(context.Background(), req))

	assert.Equal(t, []string{
		"2024-03-10T12:00:00:video:Second-Post:" + f.srv.URL + "/data/aa/video.mp4",
	}, f.lines())
}

func TestDownloadFiles(t *testing.T) {
	f := newFixture(t)

	summary, err := f.scraper().DownloadFiles(context.Background(), Request{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Downloaded)
	assert.Zero(t, summary.Failed)

	got, err := os.ReadFile(filepath.Join(f.cfg.Output.BaseDirectory, "alice", "Second-Post", "video.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(got))
	assert.FileExists(t, filepath.Join(f.cfg.Output.BaseDirectory, "alice", "First", "notes.pdf"))

	// a second run finds everything in place
	summary, err = f.scraper().DownloadFiles(context.Background(), Request{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 1, f.srv.Count(http.MethodGet, "/data/aa/video.mp4"))
}

func TestDownloadFilesReportsIncomplete(t *testing.T) {
	f := newFixture(t)
	delete(f.srv.Files, "/bb/photo.jpg")

	summary, err := f.scraper().DownloadFiles(context.Background(), Request{UserID: "alice"})
	require.Error(t, err)
	assert.Equal(t, errs.ExitIncomplete, errs.ExitCode(err))
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
}

func TestDownloadFilesCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.scraper().DownloadFiles(ctx, Request{UserID: "alice"})
	require.Error(t, err)
	assert.Equal(t, errs.ExitInterrupted, errs.ExitCode(err))
}

func TestDownloadFavorites(t *testing.T) {
	f := newFixture(t)
	f.srv.Favorites = []site.Post{
		sitetest.Post("9", "Fav", "", newer, &site.FileDescriptor{Name: "photo.jpg", Path: "/bb/photo.jpg"}),
	}
	_, err := f.client.Authenticate(context.Background(), sitetest.Username, sitetest.Password)
	require.NoError(t, err)

	summary, err := f.scraper().DownloadFiles(context.Background(), Request{Favorites: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)
	assert.FileExists(t, filepath.Join(f.cfg.Output.BaseDirectory, site.FavoritesUserID, "Fav", "photo.jpg"))
}

func TestListCollabs(t *testing.T) {
	f := newFixture(t)
	f.srv.Profiles["alice"] = http.StatusOK

	// the post window does not apply to collab scans
	req := Request{UserID: "alice", FromPostID: "1"}
	require.NoError(t, f.scraper().ListCollabs(context.Background(), req))

	assert.Equal(t, []string{
		"alice : " + f.srv.URL + "/onlyfans/user/alice",
		"bob-smith :",
	}, f.lines())
}

func TestListLinks(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.scraper().ListLinks(context.Background(), Request{UserID: "alice"}))

	assert.Equal(t, []string{
		"https://example.com/x",
		"https://example.com/y",
		"https://onlyfans.com/alice",
	}, f.lines())
}

func TestActionsSurfaceFeedErrors(t *testing.T) {
	f := newFixture(t)
	f.cfg.Retry.MaxAttempts = 2
	f.srv.FailNext["/api/v1/onlyfans/user/alice"] = 5

	err := f.scraper().ListLinks(context.Background(), Request{UserID: "alice"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeServerError))
	assert.Equal(t, errs.ExitNetwork, errs.ExitCode(err))
}
