package workflow

import (
	"sync"
	"time"
)

// Stage labels for the worker's current activity.
const (
	StageIdle         = "idle"
	StageDownloading  = "downloading"
	StageTranscribing = "transcribing"
	StageDiarizing    = "diarizing"
	StageSaving       = "saving"
)

// Status is a point-in-time snapshot of the worker.
type Status struct {
	Running         bool       `json:"running"`
	Stage           string     `json:"stage"`
	EpisodeID       int64      `json:"episode_id,omitempty"`
	EpisodeTitle    string     `json:"episode_title,omitempty"`
	Progress        *float64   `json:"progress,omitempty"`
	ETASeconds      *int64     `json:"eta_seconds,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	ProcessedToday  int        `json:"processed_today"`
	LastError       string     `json:"last_error,omitempty"`
	CancelRequested bool       `json:"cancel_requested,omitempty"`
}

// workerState tracks what the single worker lane is doing. All access goes
// through the mutex so status queries never race the worker goroutine.
type workerState struct {
	mu sync.RWMutex

	running         bool
	stage           string
	episodeID       int64
	episodeTitle    string
	progress        *float64
	stageStarted    time.Time
	jobStarted      *time.Time
	lastError       string
	cancelRequested bool

	processedDay   string
	processedCount int

	now func() time.Time
}

func newWorkerState() *workerState {
	return &workerState{stage: StageIdle, now: time.Now}
}

func (s *workerState) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
	if !running {
		s.resetJobLocked()
	}
}

func (s *workerState) beginJob(episodeID int64, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	started := s.now()
	s.episodeID = episodeID
	s.episodeTitle = title
	s.jobStarted = &started
	s.stage = StageIdle
	s.progress = nil
	s.cancelRequested = false
	s.lastError = ""
}

func (s *workerState) setStage(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
	s.stageStarted = s.now()
	s.progress = nil
}

func (s *workerState) setProgress(percent float64) {
	if percent < 0 {
		return
	}
	if percent > 100 {
		percent = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = &percent
}

func (s *workerState) endJob(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.bumpProcessedLocked()
	}
	s.resetJobLocked()
}

func (s *workerState) requestCancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobStarted == nil {
		return false
	}
	s.cancelRequested = true
	return true
}

func (s *workerState) snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		Running:         s.running,
		Stage:           s.stage,
		LastError:       s.lastError,
		CancelRequested: s.cancelRequested,
		ProcessedToday:  s.processedTodayLocked(),
	}
	if s.jobStarted != nil {
		status.EpisodeID = s.episodeID
		status.EpisodeTitle = s.episodeTitle
		started := *s.jobStarted
		status.StartedAt = &started
	}
	if s.progress != nil {
		p := *s.progress
		status.Progress = &p
		if p > 0 {
			elapsed := s.now().Sub(s.stageStarted).Seconds()
			eta := int64(elapsed/(p/100) - elapsed)
			if eta < 0 {
				eta = 0
			}
			status.ETASeconds = &eta
		}
	}
	return status
}

func (s *workerState) resetJobLocked() {
	s.stage = StageIdle
	s.episodeID = 0
	s.episodeTitle = ""
	s.progress = nil
	s.jobStarted = nil
	s.cancelRequested = false
}

func (s *workerState) bumpProcessedLocked() {
	day := s.now().Format("2006-01-02")
	if s.processedDay != day {
		s.processedDay = day
		s.processedCount = 0
	}
	s.processedCount++
}

func (s *workerState) processedTodayLocked() int {
	if s.processedDay != s.now().Format("2006-01-02") {
		return 0
	}
	return s.processedCount
}
