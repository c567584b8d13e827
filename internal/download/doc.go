// Package download fetches episode audio over HTTP with streaming writes,
// progress reporting, and bounded retries for transient failures.
package download
