package scanner

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"ckscraper/pkg/site"
)

var (
	mentionPattern = regexp.MustCompile(`@[\w.-]+`)
	linkPattern    = regexp.MustCompile(`https://[^ <"]+`)
)

// CollabDomain returns the domain whose profile URLs name collaborators for
// a service
func CollabDomain(service string) string {
	switch strings.ToLower(service) {
	case "onlyfans":
		return "onlyfans.com"
	case "fansly":
		return "fansly.com"
	case "candfans":
		return "candfans.jp"
	default:
		return strings.ToLower(service) + ".com"
	}
}

// CollabHandles returns the sorted set of handles mentioned in post bodies,
// either as @handle or as a profile URL on domain
func CollabHandles(posts []site.Post, domain string) []string {
	profilePattern := regexp.MustCompile(`https://` + regexp.QuoteMeta(domain) + `/[\w/.-]*`)
	prefix := "https://" + strings.ToLower(domain) + "/"

	set := make(map[string]struct{})
	for _, post := range posts {
		for _, m := range mentionPattern.FindAllString(post.Content, -1) {
			addHandle(set, strings.TrimPrefix(strings.ToLower(m), "@"))
		}
		for _, m := range profilePattern.FindAllString(post.Content, -1) {
			rest := strings.TrimPrefix(strings.ToLower(m), prefix)
			segment, _, _ := strings.Cut(rest, "/")
			addHandle(set, segment)
		}
	}
	return slices.Sorted(maps.Keys(set))
}

func addHandle(set map[string]struct{}, handle string) {
	handle = trimTrailing(handle)
	if handle == "" {
		return
	}
	set[handle] = struct{}{}
}

// trimTrailing drops one sentence-ending '.' or '-'
func trimTrailing(s string) string {
	if n := len(s); n > 0 && (s[n-1] == '.' || s[n-1] == '-') {
		return s[:n-1]
	}
	return s
}

// Links returns the sorted set of https links found in post bodies
func Links(posts []site.Post) []string {
	set := make(map[string]struct{})
	for _, post := range posts {
		for _, m := range linkPattern.FindAllString(post.Content, -1) {
			set[m] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}
