package site

import (
	"fmt"
	"strings"
)

const (
	// PageSize is the number of posts the feed returns per offset step
	PageSize = 50

	// FavoritesUserID is the pseudo user id that selects the account's favorites
	FavoritesUserID = "myFavoritePosts"

	// AnonymousToken is the session token used without login
	AnonymousToken = "anonymous"

	LoginPath      = "/api/v1/authentication/login"
	AppVersionPath = "/api/v1/app_version"
	FavoritesPath  = "/api/v1/account/favorites?type=post"
)

// PostsPath returns the feed page of a user at the given offset
func PostsPath(service, userID string, offset int) string {
	return fmt.Sprintf("/api/v1/%s/user/%s?o=%d", service, userID, offset)
}

// ProfilePath returns the profile lookup used to check a handle exists
func ProfilePath(service, handle string) string {
	return fmt.Sprintf("/api/v1/%s/user/%s/profile", service, handle)
}

// DataURL resolves a file path from a post into an absolute URL
func (c *Client) DataURL(path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + "/data" + path
}

// ProfileURL returns the public page of a handle on this site
func (c *Client) ProfileURL(handle string) string {
	return fmt.Sprintf("%s/%s/user/%s", c.baseURL, c.service, handle)
}
