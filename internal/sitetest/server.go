// Package sitetest runs an in-process fake of the content site for tests.
package sitetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"ckscraper/pkg/config"
	"ckscraper/pkg/site"
)

const (
	Service    = "onlyfans"
	Username   = "tester"
	Password   = "s3cret"
	Token      = "tok-123"
	AppVersion = "2025.06.01"
)

// Request is one request the server received
type Request struct {
	Method string
	Path   string
	Query  string
	Range  string
	Cookie string
}

// Server is a fake site. Fields may be changed between requests; all access
// is guarded by the server's mutex.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// Feeds maps user id to that user's posts, newest first
	Feeds map[string][]site.Post
	// Favorites is returned to authenticated sessions
	Favorites []site.Post
	// Files maps a data path (starting with "/") to its content
	Files map[string][]byte
	// Profiles maps a handle to the status its profile lookup returns;
	// unknown handles get 404
	Profiles map[string]int

	// VersionStatus is the app_version response code
	VersionStatus int
	// FailNext makes the next n requests to a path answer 500
	FailNext map[string]int
	// TruncateNext makes the next n data responses send only half of the
	// requested bytes
	TruncateNext map[string]int
	// IgnoreRange makes data responses always return the full file
	IgnoreRange bool
	// HideLength omits Content-Length from data HEAD responses
	HideLength bool

	requests []Request
}

// New starts a fake site that is closed when the test ends
func New(t testing.TB) *Server {
	s := &Server{
		Feeds:         map[string][]site.Post{},
		Files:         map[string][]byte{},
		Profiles:      map[string]int{},
		VersionStatus: http.StatusOK,
		FailNext:      map[string]int{},
		TruncateNext:  map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/authentication/login", s.handleLogin)
	mux.HandleFunc("GET /api/v1/app_version", s.handleVersion)
	mux.HandleFunc("GET /api/v1/account/favorites", s.handleFavorites)
	mux.HandleFunc("GET /api/v1/{service}/user/{id}", s.handleFeed)
	mux.HandleFunc("GET /api/v1/{service}/user/{id}/profile", s.handleProfile)
	mux.HandleFunc("GET /data/{path...}", s.handleData)

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// SiteConfig returns a site configuration pointing at the fake
func (s *Server) SiteConfig() config.SiteConfig {
	u, _ := url.Parse(s.URL)
	return config.SiteConfig{
		Host:      u.Host,
		Service:   Service,
		BaseURL:   s.URL,
		UserAgent: "ckscraper-test",
		Timeout:   5 * time.Second,
	}
}

// Requests returns a copy of every request received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many requests matched method and path
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// AddFile registers data content and returns the path to put in a post
func (s *Server) AddFile(path string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Files[path] = content
	return path
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie := ""
		if c, err := r.Cookie("session"); err == nil {
			cookie = c.Value
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Range:  r.Header.Get("Range"),
			Cookie: cookie,
		})
		failing := s.FailNext[r.URL.Path] > 0
		if failing {
			s.FailNext[r.URL.Path]--
		}
		s.mu.Unlock()

		if failing {
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}
	if body.Username != Username || body.Password != Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Username or password is incorrect"})
		return
	}
	w.Header().Add("Set-Cookie", "theme=dark; Path=/")
	w.Header().Add("Set-Cookie", fmt.Sprintf("session=%s; Path=/; HttpOnly", Token))
	writeJSON(w, http.StatusOK, map[string]string{"username": body.Username})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.VersionStatus
	s.mu.Unlock()

	w.WriteHeader(status)
	if status == http.StatusOK {
		fmt.Fprint(w, AppVersion)
	}
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie("session"); err != nil || c.Value != Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not logged in"})
		return
	}
	s.mu.Lock()
	favs := s.Favorites
	s.mu.Unlock()
	if favs == nil {
		favs = []site.Post{}
	}
	writeJSON(w, http.StatusOK, favs)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("o"))

	s.mu.Lock()
	feed := s.Feeds[r.PathValue("id")]
	s.mu.Unlock()

	page := []site.Post{}
	if offset < len(feed) {
		end := offset + site.PageSize
		if end > len(feed) {
			end = len(feed)
		}
		page = feed[offset:end]
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status, ok := s.Profiles[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		status = http.StatusNotFound
	}
	w.WriteHeader(status)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	path := "/" + r.PathValue("path")

	s.mu.Lock()
	content, ok := s.Files[path]
	ignoreRange := s.IgnoreRange
	hideLength := s.HideLength
	truncate := false
	if r.Method == http.MethodGet && s.TruncateNext[path] > 0 {
		s.TruncateNext[path]--
		truncate = true
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodHead {
		if !hideLength {
			w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	status := http.StatusOK
	start := 0
	if rng := r.Header.Get("Range"); rng != "" && !ignoreRange {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"))
		if err != nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		if n >= len(content) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(content)))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		start = n
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", n, len(content)-1, len(content)))
	}

	body := content[start:]
	if truncate {
		body = body[:len(body)/2]
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Post builds a post whose added and published times are the same
func Post(id, title, content string, at time.Time, file *site.FileDescriptor, attachments ...site.FileDescriptor) site.Post {
	return site.Post{
		ID:          site.PostID(id),
		Service:     Service,
		Title:       title,
		Content:     content,
		Added:       site.Timestamp{Time: at},
		Published:   site.Timestamp{Time: at},
		File:        file,
		Attachments: attachments,
	}
}
