package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowLoginGuide explains how credentials are found for a run
func ShowLoginGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "LOGIN")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Favorites are only visible to a logged-in account. Credentials are")
	fmt.Fprintln(w, "looked up in this order:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. --credentials username:password")
	fmt.Fprintln(w, "  2. CKSCRAPER_USERNAME and CKSCRAPER_PASSWORD")
	fmt.Fprintln(w, "  3. an account saved with 'ckscraper auth login -w <site>'")
	fmt.Fprintln(w, "  4. an interactive prompt")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Saved accounts live in the system keychain when one is available,")
	fmt.Fprintln(w, "otherwise in an encrypted file under your config directory.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
