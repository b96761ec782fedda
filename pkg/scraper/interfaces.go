package scraper

import (
	"ckscraper/internal/downloader"
	"ckscraper/pkg/files"
	"ckscraper/pkg/posts"
	"ckscraper/pkg/scanner"
)

// SiteClient is everything the scraper needs from the site
type SiteClient interface {
	posts.PageSource
	files.Resolver
	downloader.Fetcher
	scanner.Prober
	ProfileURL(handle string) string
	Service() string
}
