package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"podscribe/internal/diarize"
	"podscribe/internal/download"
	"podscribe/internal/logging"
	"podscribe/internal/queue"
	"podscribe/internal/services"
)

func (m *Manager) processItem(ctx context.Context, item *queue.Item) {
	jobCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.jobCancel = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.jobCancel = nil
		m.mu.Unlock()
		cancel()
	}()

	jobCtx = services.WithEpisodeID(jobCtx, item.EpisodeID)
	jobCtx = services.WithRequestID(jobCtx, uuid.NewString())
	log := logging.WithContext(jobCtx, m.logger)

	ep, err := m.store.GetEpisode(jobCtx, item.EpisodeID)
	if err != nil {
		log.Error("load episode for queue item", logging.Error(err))
		m.markFailed(item.EpisodeID, "", fmt.Errorf("load episode: %w", err))
		return
	}
	if ep == nil {
		m.markFailed(item.EpisodeID, "", errors.New("episode row missing for queue item"))
		return
	}

	m.state.beginJob(ep.ID, ep.Title)
	log.Info("processing episode",
		logging.String("title", ep.Title),
		logging.String("queue_type", string(item.Type)))
	if !item.DiarizeOnly() {
		if err := m.notifier.NotifyEpisodeStarted(jobCtx, ep.Title); err != nil {
			log.Warn("start notification failed", logging.Error(err))
		}
	}

	transcriptPath, numSpeakers, err := m.runStages(jobCtx, log, ep)

	switch {
	case err == nil:
		m.state.setStage(StageSaving)
		if markErr := m.store.MarkCompleted(context.Background(), ep.ID, transcriptPath); markErr != nil {
			log.Error("mark episode completed", logging.Error(markErr))
			m.state.endJob(markErr)
			return
		}
		log.Info("episode complete", logging.Int("speakers", numSpeakers))
		if notifyErr := m.notifier.NotifyEpisodeCompleted(context.Background(), ep.Title, numSpeakers); notifyErr != nil {
			log.Warn("completion notification failed", logging.Error(notifyErr))
		}
		m.state.endJob(nil)

	case ctx.Err() != nil && !m.Status().CancelRequested:
		// Daemon shutdown mid-episode. Leave the item in processing; the
		// startup sweep returns it to pending on the next run.
		log.Info("episode interrupted by shutdown")
		m.state.endJob(err)

	case errors.Is(err, services.ErrCancelled), errors.Is(err, context.Canceled):
		log.Info("episode cancelled")
		m.markFailed(ep.ID, ep.Title, errors.New(queue.CancelledMessage))
		m.state.endJob(err)

	default:
		log.Error("episode failed", logging.Error(err))
		m.markFailed(ep.ID, ep.Title, err)
		if notifyErr := m.notifier.NotifyEpisodeFailed(context.Background(), ep.Title, err); notifyErr != nil {
			log.Warn("failure notification failed", logging.Error(notifyErr))
		}
		m.state.endJob(err)
	}
}

// runStages walks the episode through the pipeline. Stages whose work the
// episode flags already record are skipped, so a resumed or requeued item
// never repeats a finished download or transcription.
func (m *Manager) runStages(ctx context.Context, log *slog.Logger, ep *queue.Episode) (string, int, error) {
	audioPath, err := m.stageDownload(ctx, log, ep)
	if err != nil {
		return "", 0, err
	}

	transcriptPath, err := m.stageTranscribe(ctx, log, ep, audioPath)
	if err != nil {
		return "", 0, err
	}

	numSpeakers, err := m.stageDiarize(ctx, log, ep, audioPath, transcriptPath)
	if err != nil {
		return "", 0, err
	}
	return transcriptPath, numSpeakers, nil
}

func (m *Manager) stageDownload(ctx context.Context, log *slog.Logger, ep *queue.Episode) (string, error) {
	if ep.AudioFilePath != "" {
		if _, err := os.Stat(ep.AudioFilePath); err == nil {
			log.Debug("audio already present, skipping download",
				logging.String("path", ep.AudioFilePath))
			return ep.AudioFilePath, nil
		}
		log.Warn("recorded audio file missing, downloading again",
			logging.String("path", ep.AudioFilePath))
	}

	m.state.setStage(StageDownloading)
	ctx = services.WithStage(ctx, "download")
	path, err := m.downloader.Run(ctx, ep, func(u download.ProgressUpdate) {
		m.state.setProgress(u.Percent)
	})
	if err != nil {
		return "", err
	}
	if err := m.store.MarkDownloaded(ctx, ep.ID, path); err != nil {
		return "", fmt.Errorf("record downloaded audio: %w", err)
	}
	return path, nil
}

func (m *Manager) stageTranscribe(ctx context.Context, log *slog.Logger, ep *queue.Episode, audioPath string) (string, error) {
	if ep.Transcribed && ep.TranscriptPath != "" {
		if _, err := os.Stat(ep.TranscriptPath); err == nil {
			log.Debug("transcript already present, skipping transcription",
				logging.String("path", ep.TranscriptPath))
			return ep.TranscriptPath, nil
		}
		log.Warn("recorded transcript missing, transcribing again",
			logging.String("path", ep.TranscriptPath))
	}

	m.state.setStage(StageTranscribing)
	ctx = services.WithStage(ctx, "transcribe")
	return m.transcriber.Transcribe(ctx, audioPath, func(percent int) {
		m.state.setProgress(float64(percent))
	})
}

// stageDiarize annotates the transcript with speakers. Diarization failure is
// not fatal: the transcript is still useful, so the episode completes and the
// failure is only logged.
func (m *Manager) stageDiarize(ctx context.Context, log *slog.Logger, ep *queue.Episode, audioPath, transcriptPath string) (int, error) {
	if !m.cfg.DiarizationEnabled() {
		return 0, nil
	}

	m.state.setStage(StageDiarizing)
	ctx = services.WithStage(ctx, "diarize")
	hintsPath := diarize.HintsPath(m.cfg.Paths.TranscriptDir, ep.ID)
	if _, err := os.Stat(hintsPath); err != nil {
		hintsPath = ""
	}

	res, err := m.diarizer.Diarize(ctx, audioPath, transcriptPath, hintsPath, func(percent int) {
		m.state.setProgress(float64(percent))
	})
	if err != nil {
		if errors.Is(err, services.ErrCancelled) {
			return 0, err
		}
		log.Warn("diarization failed, keeping transcript without speakers",
			logging.Error(err))
		return 0, nil
	}

	if err := m.store.UpdateDiarization(ctx, ep.ID, res.NumSpeakers); err != nil {
		return 0, fmt.Errorf("record diarization: %w", err)
	}
	log.Info("diarization complete",
		logging.Int("speakers", res.NumSpeakers),
		logging.String("output", res.OutputPath))
	return res.NumSpeakers, nil
}

// markFailed records a failure outside the job context so a cancelled context
// cannot block persisting the failure itself.
func (m *Manager) markFailed(episodeID int64, title string, cause error) {
	if err := m.store.MarkFailed(context.Background(), episodeID, cause.Error()); err != nil {
		m.logger.Error("mark episode failed",
			logging.Int64("episode_id", episodeID),
			logging.String("title", title),
			logging.Error(err))
	}
}
