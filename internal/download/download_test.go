package download_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"podscribe/internal/download"
	"podscribe/internal/queue"
	"podscribe/internal/services"
	"podscribe/internal/testsupport"
)

func TestFetchWritesFile(t *testing.T) {
	payload := strings.Repeat("audio-bytes ", 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	client := download.NewHTTPClient(cfg)
	dest := filepath.Join(t.TempDir(), "ep.mp3")

	var updates []download.ProgressUpdate
	written, err := client.Fetch(context.Background(), srv.URL, dest, func(u download.ProgressUpdate) {
		updates = append(updates, u)
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if written != int64(len(payload)) {
		t.Fatalf("written = %d, want %d", written, len(payload))
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != payload {
		t.Fatal("file content mismatch")
	}
	if len(updates) == 0 {
		t.Fatal("expected at least one progress update")
	}
	final := updates[len(updates)-1]
	if final.Percent != 100 {
		t.Fatalf("final percent = %v, want 100", final.Percent)
	}
}

func TestFetchUnknownLength(t *testing.T) {
	// No Content-Length forces a chunked response, so percent stays unknown
	// while the byte counts still advance.
	payload := strings.Repeat("chunked-bytes ", 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	client := download.NewHTTPClient(cfg)
	dest := filepath.Join(t.TempDir(), "ep.mp3")

	var updates []download.ProgressUpdate
	written, err := client.Fetch(context.Background(), srv.URL, dest, func(u download.ProgressUpdate) {
		updates = append(updates, u)
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if written != int64(len(payload)) {
		t.Fatalf("written = %d, want %d", written, len(payload))
	}
	if len(updates) == 0 {
		t.Fatal("expected at least one progress update")
	}
	final := updates[len(updates)-1]
	if final.Percent != -1 {
		t.Fatalf("final percent = %v, want -1 for unknown length", final.Percent)
	}
	if final.BytesCopied != int64(len(payload)) {
		t.Fatalf("final bytes = %d, want %d", final.BytesCopied, len(payload))
	}
}

func TestFetchRemovesShortDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	client := download.NewHTTPClient(cfg)
	dest := filepath.Join(t.TempDir(), "ep.mp3")

	_, err := client.Fetch(context.Background(), srv.URL, dest, nil)
	if err == nil {
		t.Fatal("expected error on truncated body")
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("partial file should be removed, stat err = %v", statErr)
	}
}

func TestFetchClientErrorIsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	client := download.NewHTTPClient(cfg)
	dest := filepath.Join(t.TempDir(), "ep.mp3")

	_, err := client.Fetch(context.Background(), srv.URL, dest, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for 404, got %v", err)
	}
}

type fakeClient struct {
	failures int
	calls    int
}

func (f *fakeClient) Fetch(ctx context.Context, url, dest string, progress download.ProgressFunc) (int64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, services.Wrap(services.ErrTransient, "download", "fetch", "simulated", nil)
	}
	if err := os.WriteFile(dest, []byte("ok"), 0o644); err != nil {
		return 0, err
	}
	return 2, nil
}

func TestRunRetriesTransientFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := &fakeClient{failures: 1}
	d := download.NewDownloader(cfg, client, nil)
	ep := &queue.Episode{ID: 7, Title: "Deep Dive: Go!", AudioURL: "https://example.com/a.mp3"}

	path, err := d.Run(context.Background(), ep, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("calls = %d, want 2", client.calls)
	}
	base := filepath.Base(path)
	if !strings.HasSuffix(base, "-7.mp3") {
		t.Fatalf("filename %q missing episode suffix", base)
	}
	if strings.ContainsAny(base, ":!") {
		t.Fatalf("filename %q not sanitized", base)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := &fakeClient{failures: 10}
	d := download.NewDownloader(cfg, client, nil)
	ep := &queue.Episode{ID: 1, Title: "Cancelled", AudioURL: "https://example.com/a.mp3"}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := d.Run(ctx, ep, nil)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("calls = %d, want 1 before cancellation", client.calls)
	}
}
