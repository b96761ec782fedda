package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"ckscraper/internal/downloader"
)

// PrintDownloadSummary prints the totals of a download run
func PrintDownloadSummary(w io.Writer, s downloader.Summary, elapsed time.Duration) {
	mark := Green("✓")
	if s.Failed > 0 {
		mark = Red("✗")
	}

	fmt.Fprintf(w, "\n%s Downloaded %d file(s), %s in %s\n",
		mark,
		s.Downloaded,
		humanize.IBytes(uint64(s.Bytes)),
		formatDuration(elapsed),
	)
	if s.Skipped > 0 {
		fmt.Fprintf(w, "  %s %d already present\n", Dim("•"), s.Skipped)
	}
	if s.Ignored > 0 {
		fmt.Fprintf(w, "  %s %d ignored\n", Dim("•"), s.Ignored)
	}
	if s.Failed > 0 {
		fmt.Fprintf(w, "  %s %s\n", Dim("•"), Red(fmt.Sprintf("%d failed", s.Failed)))
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
