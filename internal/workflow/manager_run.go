package workflow

import (
	"context"
	"errors"
	"time"

	"podscribe/internal/logging"
	"podscribe/internal/queue"
)

// Start launches the worker loop. Returns an error if already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow manager already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.stopRun = cancel
	m.state.setRunning(true)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(runCtx)
	}()
	return nil
}

// Stop shuts the worker loop down and waits for any in-flight episode to
// unwind. The interrupted item is left in processing; the startup sweep of
// the next run returns it to pending.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.stopRun
	m.stopRun = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.state.setRunning(false)
}

func (m *Manager) run(ctx context.Context) {
	m.recover(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		item, err := m.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("claim next queue item", logging.Error(err))
			if !m.wait(ctx, m.retryInterval) {
				return
			}
			continue
		}

		if item != nil {
			m.processItem(ctx, item)
			continue
		}

		if m.cfg.Workflow.AutoTranscribe {
			if m.enqueueNextUntranscribed(ctx) {
				continue
			}
		}
		if !m.wait(ctx, m.pollInterval) {
			return
		}
	}
}

// recover repairs queue state left over from a crash or unclean shutdown.
func (m *Manager) recover(ctx context.Context) {
	if reset, err := m.store.ResetStuckProcessing(ctx); err != nil {
		m.logger.Error("reset stuck items", logging.Error(err))
	} else if reset > 0 {
		m.logger.Info("reset interrupted items to pending", logging.Int64("count", reset))
	}

	if retried, err := m.store.RetryFailedDownloads(ctx); err != nil {
		m.logger.Error("retry failed downloads", logging.Error(err))
	} else if retried > 0 {
		m.logger.Info("requeued failed downloads", logging.Int64("count", retried))
	}

	if m.cfg.DiarizationEnabled() {
		m.sweepUndiarized(ctx)
	}
}

// sweepUndiarized queues diarize-only work for transcribed episodes that were
// processed before diarization was configured.
func (m *Manager) sweepUndiarized(ctx context.Context) {
	episodes, err := m.store.ListUndiarized(ctx)
	if err != nil {
		m.logger.Error("list undiarized episodes", logging.Error(err))
		return
	}
	var queued int
	for _, ep := range episodes {
		err := m.store.RequeueForDiarization(ctx, ep.ID, 0)
		if errors.Is(err, queue.ErrEpisodeProcessing) {
			continue
		}
		if err != nil {
			m.logger.Error("requeue for diarization",
				logging.Int64("episode_id", ep.ID),
				logging.Error(err))
			continue
		}
		queued++
	}
	if queued > 0 {
		m.logger.Info("queued episodes for diarization", logging.Int("count", queued))
	}
}

// enqueueNextUntranscribed feeds the queue from the episode backlog when
// auto-transcription is on. Returns true if an episode was queued.
func (m *Manager) enqueueNextUntranscribed(ctx context.Context) bool {
	ep, err := m.store.NextUntranscribed(ctx)
	if err != nil {
		m.logger.Error("find next untranscribed episode", logging.Error(err))
		return false
	}
	if ep == nil {
		return false
	}
	if _, err := m.store.Enqueue(ctx, ep.ID, 0); err != nil {
		m.logger.Error("auto-enqueue episode",
			logging.Int64("episode_id", ep.ID),
			logging.Error(err))
		return false
	}
	m.logger.Info("auto-queued episode",
		logging.Int64("episode_id", ep.ID),
		logging.String("title", ep.Title))
	return true
}

// wait sleeps for d or until the context ends. Returns false on shutdown.
func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
