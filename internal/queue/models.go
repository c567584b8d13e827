package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// QueueType selects which stages a queue item runs through.
type QueueType string

const (
	// TypeFull runs download, transcription, and diarization.
	TypeFull QueueType = "full"
	// TypeDiarizeOnly reuses the existing transcript and runs diarization alone.
	TypeDiarizeOnly QueueType = "diarize_only"
)

// MaxDownloadRetries bounds how many times a failed download is re-queued
// by the startup retry sweep.
const MaxDownloadRetries = 3

// CancelledMessage is recorded when a user aborts the in-flight job.
const CancelledMessage = "cancelled by user"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Item represents a queue item persisted in SQLite. Exactly one item exists
// per episode; re-enqueueing replaces the previous row.
type Item struct {
	ID           int64
	EpisodeID    int64
	Priority     int
	RetryCount   int
	Status       Status
	Type         QueueType
	AddedAt      time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// Episode represents a podcast episode row.
type Episode struct {
	ID                 int64
	EpisodeNumber      int
	Title              string
	AudioURL           string
	AudioFilePath      string
	DurationSeconds    int64
	PublishedAt        *time.Time
	AddedAt            time.Time
	Downloaded         bool
	Transcribed        bool
	TranscriptPath     string
	TranscriptionState string
	TranscriptionError string
	HasDiarization     bool
	NumSpeakers        int
	InQueue            bool
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status ends an item's run through the pipeline.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DiarizeOnly reports whether the item skips the download and transcription stages.
func (i Item) DiarizeOnly() bool {
	return i.Type == TypeDiarizeOnly
}
