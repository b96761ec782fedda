package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// TempSuffix marks a partial download that the next run resumes
	TempSuffix = ".tmp"
	// IgnoreSuffix marks a file the user never wants downloaded
	IgnoreSuffix = ".ignore"
)

// Target is where one file lives on disk
type Target struct {
	Dir    string
	Path   string
	Temp   string
	Ignore string
}

// Manager lays out downloads under a base directory as
// {user}/{post title}/{file name}
type Manager struct {
	outputDir string
}

// NewManager creates a new storage manager
func NewManager(outputDir string) (*Manager, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{outputDir: outputDir}, nil
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// Target computes the paths for a file of a post
func (m *Manager) Target(userID, postTitle, name string) Target {
	dir := filepath.Join(m.outputDir, SanitizeUserID(userID), cleanSegment(postTitle))
	path := filepath.Join(dir, cleanSegment(name))
	return Target{
		Dir:    dir,
		Path:   path,
		Temp:   path + TempSuffix,
		Ignore: path + IgnoreSuffix,
	}
}

// SanitizeUserID turns a possibly URL-escaped user id into a directory name
func SanitizeUserID(userID string) string {
	if unescaped, err := url.PathUnescape(userID); err == nil {
		userID = unescaped
	}
	return cleanSegment(userID)
}

// cleanSegment keeps a name inside its parent directory
func cleanSegment(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", "\x00", "").Replace(s)
	switch s {
	case "", ".", "..":
		return "_" + s
	}
	return s
}

// Prepare creates the target directory
func (m *Manager) Prepare(t Target) error {
	if err := os.MkdirAll(t.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", t.Dir, err)
	}
	return nil
}

// Exists reports whether the final file is present
func (m *Manager) Exists(t Target) bool {
	info, err := os.Stat(t.Path)
	return err == nil && info.Mode().IsRegular()
}

// Ignored reports whether an .ignore sentinel sits next to the target
func (m *Manager) Ignored(t Target) bool {
	_, err := os.Stat(t.Ignore)
	return err == nil
}

// TempSize returns how many bytes a previous attempt left behind
func (m *Manager) TempSize(t Target) (int64, error) {
	info, err := os.Stat(t.Temp)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", t.Temp, err)
	}
	return info.Size(), nil
}

// OpenTemp opens the partial file for appending, or truncates it when
// restarting from scratch
func (m *Manager) OpenTemp(t Target, resume bool) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if resume {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(t.Temp, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open temporary file: %w", err)
	}
	return f, nil
}

// Commit moves the finished partial file into place
func (m *Manager) Commit(t Target) error {
	if err := os.Rename(t.Temp, t.Path); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// Touch sets access and modification time. A zero time leaves the file as is.
func (m *Manager) Touch(path string, ts time.Time) error {
	if ts.IsZero() {
		return nil
	}
	if err := os.Chtimes(path, ts, ts); err != nil {
		return fmt.Errorf("failed to set times on %s: %w", path, err)
	}
	return nil
}
