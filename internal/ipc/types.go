package ipc

import (
	"time"

	"podscribe/internal/daemon"
	"podscribe/internal/queue"
)

// QueueItem is the wire form of a queue row joined with its episode title.
type QueueItem struct {
	ID           int64      `json:"id"`
	EpisodeID    int64      `json:"episode_id"`
	Title        string     `json:"title"`
	Priority     int        `json:"priority"`
	RetryCount   int        `json:"retry_count"`
	Status       string     `json:"status"`
	QueueType    string     `json:"queue_type"`
	AddedAt      time.Time  `json:"added_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Episode is the wire form of an episode row.
type Episode struct {
	ID             int64      `json:"id"`
	EpisodeNumber  int        `json:"episode_number,omitempty"`
	Title          string     `json:"title"`
	AudioURL       string     `json:"audio_url"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	Downloaded     bool       `json:"downloaded"`
	Transcribed    bool       `json:"transcribed"`
	TranscriptPath string     `json:"transcript_path,omitempty"`
	HasDiarization bool       `json:"has_diarization"`
	NumSpeakers    int        `json:"num_speakers"`
	InQueue        bool       `json:"in_queue"`
}

type Empty struct{}

type StatusReply struct {
	Daemon daemon.Status `json:"daemon"`
}

type ListQueueArgs struct {
	Statuses []string `json:"statuses,omitempty"`
}

type ListQueueReply struct {
	Items []QueueItem `json:"items"`
}

type ListEpisodesReply struct {
	Episodes []Episode `json:"episodes"`
}

type AddEpisodeArgs struct {
	Title         string     `json:"title"`
	AudioURL      string     `json:"audio_url"`
	EpisodeNumber int        `json:"episode_number,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	Priority      int        `json:"priority"`
	Enqueue       bool       `json:"enqueue"`
}

type AddEpisodeReply struct {
	EpisodeID int64 `json:"episode_id"`
	Existing  bool  `json:"existing"`
	Queued    bool  `json:"queued"`
}

type EnqueueArgs struct {
	EpisodeID int64 `json:"episode_id"`
	Priority  int   `json:"priority"`
}

type RequeueArgs struct {
	EpisodeID int64 `json:"episode_id"`
	Priority  int   `json:"priority"`
}

type RetryArgs struct {
	ItemIDs []int64 `json:"item_ids,omitempty"`
}

type RemoveArgs struct {
	ItemID int64 `json:"item_id"`
}

type CountReply struct {
	Count int64 `json:"count"`
}

// ClearArgs selects which terminal items to drop: "completed", "failed", or
// "all".
type ClearArgs struct {
	Scope string `json:"scope"`
}

func itemFromQueue(item *queue.Item, title string) QueueItem {
	return QueueItem{
		ID:           item.ID,
		EpisodeID:    item.EpisodeID,
		Title:        title,
		Priority:     item.Priority,
		RetryCount:   item.RetryCount,
		Status:       string(item.Status),
		QueueType:    string(item.Type),
		AddedAt:      item.AddedAt,
		StartedAt:    item.StartedAt,
		CompletedAt:  item.CompletedAt,
		ErrorMessage: item.ErrorMessage,
	}
}

func episodeFromQueue(ep *queue.Episode) Episode {
	return Episode{
		ID:             ep.ID,
		EpisodeNumber:  ep.EpisodeNumber,
		Title:          ep.Title,
		AudioURL:       ep.AudioURL,
		PublishedAt:    ep.PublishedAt,
		Downloaded:     ep.Downloaded,
		Transcribed:    ep.Transcribed,
		TranscriptPath: ep.TranscriptPath,
		HasDiarization: ep.HasDiarization,
		NumSpeakers:    ep.NumSpeakers,
		InQueue:        ep.InQueue,
	}
}
