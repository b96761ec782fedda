package files

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// FileType is the coarse kind of a file, derived from its extension
type FileType string

const (
	Video    FileType = "video"
	Image    FileType = "image"
	Archive  FileType = "archive"
	Document FileType = "document"
	Other    FileType = "other"
)

var extensionTypes = map[string]FileType{
	".m4v":  Video,
	".mp4":  Video,
	".jpg":  Image,
	".jpeg": Image,
	".png":  Image,
	".gif":  Image,
	".rar":  Archive,
	".zip":  Archive,
	".7z":   Archive,
	".pdf":  Document,
}

// Types lists every file type in display order
func Types() []FileType {
	return []FileType{Video, Image, Archive, Document, Other}
}

// Classify maps a file name to its type by lowercased extension
func Classify(name string) FileType {
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return Other
}

// ParseFileType parses a type name as given on the command line
func ParseFileType(s string) (FileType, error) {
	want := FileType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range Types() {
		if t == want {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown file type %q (want one of video, image, archive, document, other)", s)
}

func (t FileType) String() string { return string(t) }

var disallowedTitleChars = regexp.MustCompile(`[^A-Za-z0-9 '_-]+`)

// SanitizeTitle turns a post title into a directory name. Slashes become
// dashes, everything outside letters, digits, space, quote, underscore and
// dash is dropped, and an empty result falls back to the post id.
func SanitizeTitle(title, postID string) string {
	clean := disallowedTitleChars.ReplaceAllString(strings.ReplaceAll(title, "/", "-"), "")
	if clean == "" {
		return postID
	}
	return clean
}
