// Package ui renders terminal output: colored one-line messages, the
// per-file download progress line and the end-of-run summary.
package ui
