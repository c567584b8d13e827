package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"podscribe/internal/config"
	"podscribe/internal/services"
)

// ProgressUpdate reports download progress. Percent is negative when the
// server did not send a Content-Length.
type ProgressUpdate struct {
	Percent     float64
	BytesCopied int64
	TotalBytes  int64
}

// ProgressFunc receives progress updates during a fetch. May be nil.
type ProgressFunc func(ProgressUpdate)

// Client fetches a remote audio file to a local path.
type Client interface {
	Fetch(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error)
}

// HTTPClient downloads episode audio over HTTP with streaming writes, so a
// large file never has to fit in memory.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient builds a client using the configured connect and overall
// request timeouts.
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	dialer := &net.Dialer{Timeout: time.Duration(cfg.Download.ConnectTimeout) * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   time.Duration(cfg.Download.ConnectTimeout) * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Download.ConnectTimeout) * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
	}
	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Download.RequestTimeout) * time.Second,
		},
	}
}

// Fetch streams url into dest. If the server advertises a Content-Length and
// the body ends short of it, the partial file is removed and an error
// returned, so a resumed run starts the download from scratch.
func (c *HTTPClient) Fetch(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "download", "request", "invalid audio URL", err)
	}
	req.Header.Set("User-Agent", "podscribe/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "download", "fetch", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			marker = services.ErrValidation
		}
		return 0, services.Wrap(marker, "download", "fetch",
			fmt.Sprintf("unexpected status %s", resp.Status), nil)
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "download", "fetch", "create audio file", err)
	}

	written, copyErr := copyWithProgress(ctx, out, resp.Body, resp.ContentLength, progress)
	closeErr := out.Close()

	if copyErr == nil && closeErr != nil {
		copyErr = closeErr
	}
	if copyErr == nil && resp.ContentLength > 0 && written != resp.ContentLength {
		copyErr = fmt.Errorf("expected %d bytes, received %d", resp.ContentLength, written)
	}
	if copyErr != nil {
		os.Remove(dest)
		marker := services.ErrTransient
		if errors.Is(copyErr, context.Canceled) {
			marker = services.ErrCancelled
		}
		return 0, services.Wrap(marker, "download", "fetch", "incomplete download", copyErr)
	}
	return written, nil
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, 64*1024)
	var written int64
	lastReport := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, writeErr
			}
			if wn < n {
				return written, io.ErrShortWrite
			}
			if progress != nil && time.Since(lastReport) >= 200*time.Millisecond {
				progress(progressUpdate(written, total))
				lastReport = time.Now()
			}
		}
		if readErr == io.EOF {
			if progress != nil {
				progress(progressUpdate(written, total))
			}
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func progressUpdate(written, total int64) ProgressUpdate {
	update := ProgressUpdate{Percent: -1, BytesCopied: written, TotalBytes: total}
	if total > 0 {
		update.Percent = float64(written) / float64(total) * 100
	}
	return update
}
