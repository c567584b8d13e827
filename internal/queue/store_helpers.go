package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, episode_id, priority, retry_count, status, queue_type, added_at, started_at, completed_at, error_message"

const episodeColumns = "id, episode_number, title, audio_url, audio_file_path, duration_seconds, published_at, added_at, is_downloaded, is_transcribed, transcript_path, transcription_status, transcription_error, has_diarization, num_speakers, is_in_queue"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           int64
		episodeID    int64
		priority     int
		retryCount   int
		statusStr    string
		queueType    string
		addedRaw     sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		errorMessage sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&episodeID,
		&priority,
		&retryCount,
		&statusStr,
		&queueType,
		&addedRaw,
		&startedRaw,
		&completedRaw,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		EpisodeID:    episodeID,
		Priority:     priority,
		RetryCount:   retryCount,
		Status:       Status(statusStr),
		Type:         QueueType(queueType),
		ErrorMessage: errorMessage.String,
	}
	if added, err := parseTimeString(addedRaw.String); err == nil {
		item.AddedAt = added
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			item.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			item.CompletedAt = &completed
		}
	}
	return item, nil
}

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		id                 int64
		episodeNumber      sql.NullInt64
		title              string
		audioURL           string
		audioFilePath      sql.NullString
		durationSeconds    sql.NullInt64
		publishedRaw       sql.NullString
		addedRaw           sql.NullString
		downloaded         sql.NullInt64
		transcribed        sql.NullInt64
		transcriptPath     sql.NullString
		transcriptionState sql.NullString
		transcriptionErr   sql.NullString
		hasDiarization     sql.NullInt64
		numSpeakers        sql.NullInt64
		inQueue            sql.NullInt64
	)

	if err := scanner.Scan(
		&id,
		&episodeNumber,
		&title,
		&audioURL,
		&audioFilePath,
		&durationSeconds,
		&publishedRaw,
		&addedRaw,
		&downloaded,
		&transcribed,
		&transcriptPath,
		&transcriptionState,
		&transcriptionErr,
		&hasDiarization,
		&numSpeakers,
		&inQueue,
	); err != nil {
		return nil, err
	}

	ep := &Episode{
		ID:                 id,
		EpisodeNumber:      int(episodeNumber.Int64),
		Title:              title,
		AudioURL:           audioURL,
		AudioFilePath:      audioFilePath.String,
		DurationSeconds:    durationSeconds.Int64,
		Downloaded:         downloaded.Int64 != 0,
		Transcribed:        transcribed.Int64 != 0,
		TranscriptPath:     transcriptPath.String,
		TranscriptionState: transcriptionState.String,
		TranscriptionError: transcriptionErr.String,
		HasDiarization:     hasDiarization.Int64 != 0,
		NumSpeakers:        int(numSpeakers.Int64),
		InQueue:            inQueue.Int64 != 0,
	}
	if publishedRaw.Valid {
		if published, err := parseTimeString(publishedRaw.String); err == nil {
			ep.PublishedAt = &published
		}
	}
	if added, err := parseTimeString(addedRaw.String); err == nil {
		ep.AddedAt = added
	}
	return ep, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
