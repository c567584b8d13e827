package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"podscribe/internal/config"
	"podscribe/internal/logging"
	"podscribe/internal/queue"
	"podscribe/internal/services"
	"podscribe/internal/textutil"
)

// retryDelays spaces out repeated attempts against a flaky host.
var retryDelays = []time.Duration{2 * time.Second, 8 * time.Second, 30 * time.Second}

// Downloader runs the download stage for a single episode.
type Downloader struct {
	cfg    *config.Config
	client Client
	logger *slog.Logger
}

func NewDownloader(cfg *config.Config, client Client, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{cfg: cfg, client: client, logger: logger}
}

// DestinationPath returns the local path episode audio is saved to. The name
// embeds the episode ID so two episodes with the same title never collide.
func (d *Downloader) DestinationPath(ep *queue.Episode) string {
	name := fmt.Sprintf("%s-%d.mp3", textutil.SafeFileName(ep.Title), ep.ID)
	return filepath.Join(d.cfg.Paths.AudioDir, name)
}

// Run downloads the episode's audio, retrying transient failures with
// increasing delays. Returns the path of the downloaded file.
func (d *Downloader) Run(ctx context.Context, ep *queue.Episode, progress ProgressFunc) (string, error) {
	if ep.AudioURL == "" {
		return "", services.Wrap(services.ErrValidation, "download", "run", "episode has no audio URL", nil)
	}
	dest := d.DestinationPath(ep)
	log := logging.WithContext(ctx, d.logger)

	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if attempt > 0 {
			delay := retryDelays[attempt-1]
			log.Warn("retrying download",
				logging.Int("attempt", attempt+1),
				logging.Duration("delay", delay),
				logging.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", services.Wrap(services.ErrCancelled, "download", "run", "cancelled while waiting to retry", ctx.Err())
			case <-time.After(delay):
			}
		}

		written, err := d.client.Fetch(ctx, ep.AudioURL, dest, progress)
		if err == nil {
			log.Info("download complete",
				logging.String("path", dest),
				logging.String("size", humanize.Bytes(uint64(written))))
			return dest, nil
		}
		if errors.Is(err, services.ErrCancelled) || errors.Is(err, services.ErrValidation) {
			return "", err
		}
		lastErr = err
	}
	return "", services.Wrap(services.ErrTransient, "download", "run", "download failed after retries", lastErr)
}
