package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"podscribe/internal/config"
	"podscribe/internal/diarize"
	"podscribe/internal/download"
	"podscribe/internal/queue"
	"podscribe/internal/services"
	"podscribe/internal/testsupport"
	"podscribe/internal/transcribe"
	"podscribe/internal/workflow"
)

type stubDownload struct {
	calls atomic.Int32
	err   error
}

func (s *stubDownload) Fetch(ctx context.Context, url, dest string, progress download.ProgressFunc) (int64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	if err := os.WriteFile(dest, []byte("audio"), 0o644); err != nil {
		return 0, err
	}
	if progress != nil {
		progress(download.ProgressUpdate{Percent: 100, BytesCopied: 5, TotalBytes: 5})
	}
	return 5, nil
}

type stubTranscribe struct {
	cfg   *config.Config
	calls atomic.Int32
	block bool
	err   error
}

func (s *stubTranscribe) Transcribe(ctx context.Context, audioPath string, progress transcribe.ProgressFunc) (string, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return "", services.Wrap(services.ErrCancelled, "transcribe", "run", "transcription cancelled", ctx.Err())
	}
	if s.err != nil {
		return "", s.err
	}
	base := filepath.Base(audioPath)
	path := filepath.Join(s.cfg.Paths.TranscriptDir, base+".json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		return "", err
	}
	if progress != nil {
		progress(100)
	}
	return path, nil
}

type stubDiarize struct {
	calls    atomic.Int32
	speakers int
	err      error
}

func (s *stubDiarize) Diarize(ctx context.Context, audioPath, transcriptPath, hintsPath string, progress diarize.ProgressFunc) (*diarize.Result, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &diarize.Result{OutputPath: transcriptPath, NumSpeakers: s.speakers}, nil
}

type pipeline struct {
	cfg        *config.Config
	store      *queue.Store
	manager    *workflow.Manager
	download   *stubDownload
	transcribe *stubTranscribe
	diarize    *stubDiarize
}

func newPipeline(t *testing.T, opts ...testsupport.ConfigOption) *pipeline {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	p := &pipeline{
		cfg:        cfg,
		store:      store,
		download:   &stubDownload{},
		transcribe: &stubTranscribe{cfg: cfg},
		diarize:    &stubDiarize{speakers: 2},
	}
	p.manager = workflow.NewManagerWithClients(cfg, store, nil, nil, workflow.Clients{
		Download:   p.download,
		Transcribe: p.transcribe,
		Diarize:    p.diarize,
	})
	return p
}

func (p *pipeline) start(t *testing.T) {
	t.Helper()
	if err := p.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.manager.Stop)
}

func (p *pipeline) waitForStatus(t *testing.T, episodeID int64, want queue.Status) *queue.Item {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		item, err := p.store.GetItemByEpisode(context.Background(), episodeID)
		if err != nil {
			t.Fatalf("GetItemByEpisode: %v", err)
		}
		if item != nil && item.Status == want {
			return item
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("episode %d never reached %s", episodeID, want)
	return nil
}

func TestFullPipeline(t *testing.T) {
	p := newPipeline(t)
	ep := testsupport.SeedEpisode(t, p.store, "First Episode", "https://example.com/1.mp3")
	if _, err := p.store.Enqueue(context.Background(), ep.ID, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	p.start(t)
	p.waitForStatus(t, ep.ID, queue.StatusCompleted)

	got, err := p.store.GetEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if !got.Downloaded || !got.Transcribed {
		t.Fatalf("episode not fully processed: %+v", got)
	}
	if got.TranscriptPath == "" {
		t.Fatal("transcript path not recorded")
	}
	// Diarization is off without a token, so its client must stay unused.
	if p.diarize.calls.Load() != 0 {
		t.Fatal("diarize should not run without a token")
	}
	deadline := time.Now().Add(5 * time.Second)
	for p.manager.Status().ProcessedToday != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("processed today = %d, want 1", p.manager.Status().ProcessedToday)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPipelineWithDiarization(t *testing.T) {
	p := newPipeline(t, testsupport.WithDiarization())
	ep := testsupport.SeedEpisode(t, p.store, "Spoken Word", "https://example.com/2.mp3")
	if _, err := p.store.Enqueue(context.Background(), ep.ID, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	p.start(t)
	p.waitForStatus(t, ep.ID, queue.StatusCompleted)

	got, err := p.store.GetEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if !got.HasDiarization || got.NumSpeakers != 2 {
		t.Fatalf("diarization not recorded: %+v", got)
	}
}

func TestDiarizationFailureIsNotFatal(t *testing.T) {
	p := newPipeline(t, testsupport.WithDiarization())
	p.diarize.err = services.Wrap(services.ErrExternalTool, "diarize", "run", "pipeline crashed", nil)
	ep := testsupport.SeedEpisode(t, p.store, "Flaky", "https://example.com/3.mp3")
	if _, err := p.store.Enqueue(context.Background(), ep.ID, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	p.start(t)
	p.waitForStatus(t, ep.ID, queue.StatusCompleted)

	got, err := p.store.GetEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if !got.Transcribed {
		t.Fatal("episode should complete without diarization")
	}
	if got.HasDiarization {
		t.Fatal("diarization should not be recorded on failure")
	}
}

func TestDiarizeOnlySkipsEarlierStages(t *testing.T) {
	p := newPipeline(t, testsupport.WithDiarization())
	ctx := context.Background()
	ep := testsupport.SeedEpisode(t, p.store, "Already Done", "https://example.com/4.mp3")

	audio := filepath.Join(p.cfg.Paths.AudioDir, "already-done.mp3")
	transcript := filepath.Join(p.cfg.Paths.TranscriptDir, "already-done.json")
	testsupport.WriteFile(t, audio, 16)
	if err := os.WriteFile(transcript, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.store.MarkDownloaded(ctx, ep.ID, audio); err != nil {
		t.Fatalf("MarkDownloaded: %v", err)
	}
	if _, err := p.store.Enqueue(ctx, ep.ID, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := p.store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := p.store.MarkCompleted(ctx, ep.ID, transcript); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := p.store.RequeueForDiarization(ctx, ep.ID, 0); err != nil {
		t.Fatalf("RequeueForDiarization: %v", err)
	}

	p.start(t)
	p.waitForStatus(t, ep.ID, queue.StatusCompleted)

	if p.download.calls.Load() != 0 {
		t.Fatal("download should be skipped when audio exists")
	}
	if p.transcribe.calls.Load() != 0 {
		t.Fatal("transcription should be skipped for a diarize-only item")
	}
	if p.diarize.calls.Load() == 0 {
		t.Fatal("diarization should run")
	}
}

func TestFullItemSkipsFinishedTranscription(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	ep := testsupport.SeedEpisode(t, p.store, "Re-run", "https://example.com/7.mp3")

	audio := filepath.Join(p.cfg.Paths.AudioDir, "re-run.mp3")
	transcript := filepath.Join(p.cfg.Paths.TranscriptDir, "re-run.json")
	testsupport.WriteFile(t, audio, 16)
	if err := os.WriteFile(transcript, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.store.MarkDownloaded(ctx, ep.ID, audio); err != nil {
		t.Fatalf("MarkDownloaded: %v", err)
	}
	if _, err := p.store.Enqueue(ctx, ep.ID, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := p.store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := p.store.MarkCompleted(ctx, ep.ID, transcript); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	// Enqueue again as a regular full item. The episode flags record the
	// finished work, so no stage before diarization may repeat.
	if _, err := p.store.Enqueue(ctx, ep.ID, 0); err != nil {
		t.Fatalf("Enqueue again: %v", err)
	}

	p.start(t)
	p.waitForStatus(t, ep.ID, queue.StatusCompleted)

	if got := p.download.calls.Load(); got != 0 {
		t.Fatalf("downloader invoked %d times, want 0 when audio exists", got)
	}
	if got := p.transcribe.calls.Load(); got != 0 {
		t.Fatalf("transcriber invoked %d times, want 0 when the transcript exists", got)
	}
}

func TestCancelCurrentMarksItemCancelled(t *testing.T) {
	p := newPipeline(t)
	p.transcribe.block = true
	ep := testsupport.SeedEpisode(t, p.store, "Long One", "https://example.com/5.mp3")
	if _, err := p.store.Enqueue(context.Background(), ep.ID, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	p.start(t)

	deadline := time.Now().Add(10 * time.Second)
	for p.manager.Status().Stage != workflow.StageTranscribing {
		if time.Now().After(deadline) {
			t.Fatal("worker never reached transcription")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := p.manager.CancelCurrent(); err != nil {
		t.Fatalf("CancelCurrent: %v", err)
	}

	item := p.waitForStatus(t, ep.ID, queue.StatusFailed)
	if item.ErrorMessage != queue.CancelledMessage {
		t.Fatalf("error message = %q, want %q", item.ErrorMessage, queue.CancelledMessage)
	}
	// A cancellation must not look like a download failure to the retry sweep.
	if services.IsDownloadFailure(item.ErrorMessage) {
		t.Fatal("cancellation message must not match the download-retry heuristic")
	}
}

func TestCancelWithoutActiveJob(t *testing.T) {
	p := newPipeline(t)
	p.start(t)
	if err := p.manager.CancelCurrent(); err == nil {
		t.Fatal("expected error when no job is active")
	}
}

func TestStartupSweepQueuesUndiarized(t *testing.T) {
	p := newPipeline(t, testsupport.WithDiarization())
	ctx := context.Background()
	ep := testsupport.SeedEpisode(t, p.store, "Legacy", "https://example.com/6.mp3")

	audio := filepath.Join(p.cfg.Paths.AudioDir, "legacy.mp3")
	transcript := filepath.Join(p.cfg.Paths.TranscriptDir, "legacy.json")
	testsupport.WriteFile(t, audio, 16)
	if err := os.WriteFile(transcript, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.store.MarkDownloaded(ctx, ep.ID, audio); err != nil {
		t.Fatalf("MarkDownloaded: %v", err)
	}
	if _, err := p.store.Enqueue(ctx, ep.ID, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := p.store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := p.store.MarkCompleted(ctx, ep.ID, transcript); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	p.start(t)

	deadline := time.Now().Add(10 * time.Second)
	for {
		got, err := p.store.GetEpisode(ctx, ep.ID)
		if err != nil {
			t.Fatalf("GetEpisode: %v", err)
		}
		if got.HasDiarization {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("startup sweep should have diarized the legacy episode")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
