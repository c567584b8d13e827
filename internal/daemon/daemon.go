// Package daemon ties the queue store and workflow manager into a single
// long-running process guarded by a lock file, so only one worker ever owns
// the queue database.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"podscribe/internal/config"
	"podscribe/internal/logging"
	"podscribe/internal/notifications"
	"podscribe/internal/queue"
	"podscribe/internal/workflow"
)

const lockFileName = "podscribed.lock"

// Daemon owns the background worker and exposes the operations the control
// socket serves.
type Daemon struct {
	cfg      *config.Config
	store    *queue.Store
	manager  *workflow.Manager
	notifier notifications.Service
	logger   *slog.Logger

	lock      *flock.Flock
	running   atomic.Bool
	startedAt time.Time
}

// Status describes the daemon for status queries.
type Status struct {
	Running       bool            `json:"running"`
	StartedAt     time.Time       `json:"started_at"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	DatabasePath  string          `json:"database_path"`
	Worker        workflow.Status `json:"worker"`
	Queue         queue.HealthSummary `json:"queue"`
}

// New acquires the daemon lock and wires the worker. Fails fast when another
// daemon already holds the lock.
func New(cfg *config.Config, store *queue.Store, manager *workflow.Manager, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	lock := flock.New(filepath.Join(cfg.Paths.LogDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another daemon instance holds %s", lock.Path())
	}
	return &Daemon{
		cfg:      cfg,
		store:    store,
		manager:  manager,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lock:     lock,
	}, nil
}

// Start launches the background worker.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("daemon already started")
	}
	d.startedAt = time.Now()
	if err := d.manager.Start(ctx); err != nil {
		d.running.Store(false)
		return err
	}
	d.logger.Info("daemon started", logging.String("database", d.store.Path()))
	return nil
}

// Stop shuts the worker down, waiting for any in-flight episode to unwind.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.manager.Stop()
	d.logger.Info("daemon stopped")
}

// Close stops the worker and releases the daemon lock.
func (d *Daemon) Close() error {
	d.Stop()
	if d.lock != nil {
		if err := d.lock.Unlock(); err != nil {
			return fmt.Errorf("release daemon lock: %w", err)
		}
	}
	return nil
}

// Status assembles a daemon-wide snapshot.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	health, err := d.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	status := Status{
		Running:      d.running.Load(),
		StartedAt:    d.startedAt,
		DatabasePath: d.store.Path(),
		Worker:       d.manager.Status(),
		Queue:        health,
	}
	if status.Running {
		status.UptimeSeconds = int64(time.Since(d.startedAt).Seconds())
	}
	return status, nil
}

// Store exposes the queue store for control-socket handlers.
func (d *Daemon) Store() *queue.Store {
	return d.store
}

// CancelCurrent aborts the episode being processed, if any.
func (d *Daemon) CancelCurrent() error {
	return d.manager.CancelCurrent()
}

// TestNotification pushes a test message through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}
