// Package scanner pulls collaborator handles and links out of post text and
// checks whether a handle has a profile on the site.
package scanner
