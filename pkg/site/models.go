package site

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FileDescriptor is a raw file reference inside a post
type FileDescriptor struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Empty reports whether the descriptor carries no file. The API sends `{}`
// for posts without a main file.
func (f *FileDescriptor) Empty() bool {
	return f == nil || f.Path == ""
}

// Post represents a single post from the user feed
type Post struct {
	ID          PostID           `json:"id"`
	User        string           `json:"user"`
	Service     string           `json:"service"`
	Title       string           `json:"title"`
	Content     string           `json:"content"`
	Added       Timestamp        `json:"added"`
	Published   Timestamp        `json:"published"`
	File        *FileDescriptor  `json:"file"`
	Attachments []FileDescriptor `json:"attachments"`
}

// PostID accepts both string and numeric ids
type PostID string

func (id *PostID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PostID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("post id: %w", err)
	}
	*id = PostID(n.String())
	return nil
}

func (id PostID) String() string { return string(id) }

// TimeLayout is how timestamps are printed in listings
const TimeLayout = "2006-01-02T15:04:05"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	TimeLayout,
	"2006-01-02 15:04:05",
}

// Timestamp decodes the API's ISO-8601 dates. Values without an offset are
// taken as UTC.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// String renders the timestamp as the API does, without offset
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// ParseTimestamp parses an API date string
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type apiError struct {
	Error string `json:"error"`
}
