package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"podscribe/internal/config"
	"podscribe/internal/diarize"
	"podscribe/internal/download"
	"podscribe/internal/logging"
	"podscribe/internal/notifications"
	"podscribe/internal/queue"
	"podscribe/internal/transcribe"
)

// ErrNoActiveJob is returned when a cancel is requested while the worker is
// between episodes.
var ErrNoActiveJob = errors.New("no episode is currently processing")

// Manager drives the single processing lane: it claims queue items and walks
// each episode through download, transcription, diarization, and persistence.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service

	downloader  *download.Downloader
	transcriber transcribe.Client
	diarizer    diarize.Client

	pollInterval  time.Duration
	retryInterval time.Duration

	mu        sync.Mutex
	running   bool
	stopRun   context.CancelFunc
	jobCancel context.CancelFunc
	wg        sync.WaitGroup

	state *workerState
}

// NewManager wires the manager with the real stage clients.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	httpClient := download.NewHTTPClient(cfg)
	return NewManagerWithClients(cfg, store, logger, notifier, Clients{
		Download:   httpClient,
		Transcribe: transcribe.NewCLI(cfg),
		Diarize:    diarize.NewScript(cfg),
	})
}

// Clients bundles the stage implementations, letting tests substitute stubs.
type Clients struct {
	Download   download.Client
	Transcribe transcribe.Client
	Diarize    diarize.Client
}

func NewManagerWithClients(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service, clients Clients) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Manager{
		cfg:           cfg,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		notifier:      notifier,
		downloader:    download.NewDownloader(cfg, clients.Download, logger),
		transcriber:   clients.Transcribe,
		diarizer:      clients.Diarize,
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		state:         newWorkerState(),
	}
}

// Status reports a snapshot of the worker lane.
func (m *Manager) Status() Status {
	return m.state.snapshot()
}

// CancelCurrent aborts the episode being processed. The episode's queue item
// is marked failed with a message the download-retry sweep will not match, so
// a user cancellation stays cancelled across restarts.
func (m *Manager) CancelCurrent() error {
	if !m.state.requestCancel() {
		return ErrNoActiveJob
	}
	m.mu.Lock()
	cancel := m.jobCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
