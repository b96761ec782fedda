package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
)

const (
	barWidth     = 30
	nameWidth    = 32
	redrawPeriod = 100 * time.Millisecond
)

var (
	nameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF")).Bold(true)
	statsStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
)

// FileProgress draws one progress line per file transfer. On a terminal the
// line is redrawn in place; elsewhere only the finished line is written.
type FileProgress struct {
	mu sync.Mutex

	w           io.Writer
	interactive bool
	bar         progress.Model
	now         func() time.Time

	name     string
	initial  int64
	done     int64
	total    int64
	started  time.Time
	lastDraw time.Time
	active   bool
}

// NewFileProgress creates a progress line writing to w. interactive selects
// in-place redraws.
func NewFileProgress(w io.Writer, interactive bool) *FileProgress {
	opts := []progress.Option{
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	}
	if !colorEnabled() {
		opts = append(opts, progress.WithColorProfile(termenv.Ascii))
	}

	return &FileProgress{
		w:           w,
		interactive: interactive,
		bar:         progress.New(opts...),
		now:         time.Now,
	}
}

// Start begins a transfer that already has done bytes on disk
func (p *FileProgress) Start(name string, done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.name = name
	p.initial = done
	p.done = done
	p.total = total
	p.started = p.now()
	p.lastDraw = time.Time{}
	p.active = true
	p.draw(false)
}

// Advance records n more bytes, redrawing at most every redrawPeriod
func (p *FileProgress) Advance(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += n
	if p.now().Sub(p.lastDraw) >= redrawPeriod {
		p.draw(false)
	}
}

// Finish draws the final state of the line and moves to the next one
func (p *FileProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return
	}
	p.draw(true)
	fmt.Fprintln(p.w)
	p.active = false
}

// Message prints text above a running progress line
func (p *FileProgress) Message(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active && p.interactive {
		fmt.Fprint(p.w, "\r\033[K")
	}
	fmt.Fprintln(p.w, text)
	if p.active {
		p.draw(false)
	}
}

func (p *FileProgress) draw(final bool) {
	if !p.interactive && !final {
		return
	}
	p.lastDraw = p.now()
	line := p.render()
	if p.interactive {
		fmt.Fprint(p.w, "\r\033[K"+line)
	} else {
		fmt.Fprint(p.w, line)
	}
}

func (p *FileProgress) render() string {
	name := p.name
	if r := []rune(name); len(r) > nameWidth {
		name = string(r[:nameWidth-3]) + "..."
	}
	parts := []string{nameStyle.Render(fmt.Sprintf("%-*s", nameWidth, name))}

	if p.total > 0 {
		percent := float64(p.done) / float64(p.total)
		if percent > 1 {
			percent = 1
		}
		parts = append(parts, p.bar.ViewAs(percent), fmt.Sprintf("%3.0f%%", percent*100))
		parts = append(parts, statsStyle.Render(humanize.IBytes(uint64(p.done))+"/"+humanize.IBytes(uint64(p.total))))
	} else {
		parts = append(parts, statsStyle.Render(humanize.IBytes(uint64(p.done))))
	}

	if elapsed := p.now().Sub(p.started); elapsed > 0 && p.done > p.initial {
		rate := float64(p.done-p.initial) / elapsed.Seconds()
		parts = append(parts, statsStyle.Render(humanize.IBytes(uint64(rate))+"/s"))
	}
	return strings.Join(parts, " ")
}
