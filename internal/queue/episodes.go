package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// AddEpisode inserts a new episode row. Episodes are deduplicated by audio
// URL; adding an existing URL returns the stored row unchanged.
func (s *Store) AddEpisode(ctx context.Context, ep *Episode) (*Episode, error) {
	if ep == nil {
		return nil, errors.New("episode is nil")
	}
	title := strings.TrimSpace(ep.Title)
	if title == "" {
		return nil, errors.New("episode title required")
	}
	audioURL := strings.TrimSpace(ep.AudioURL)
	if audioURL == "" {
		return nil, errors.New("episode audio url required")
	}

	ctx = ensureContext(ctx)
	existing, err := s.GetEpisodeByAudioURL(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO episodes (episode_number, title, audio_url, duration_seconds, published_at, added_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		ep.EpisodeNumber,
		title,
		audioURL,
		ep.DurationSeconds,
		nullableTime(ep.PublishedAt),
		timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert episode: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetEpisode(ctx, id)
}

// GetEpisode fetches an episode by identifier.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return ep, nil
}

// GetEpisodeByAudioURL fetches an episode by its audio URL.
func (s *Store) GetEpisodeByAudioURL(ctx context.Context, audioURL string) (*Episode, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+episodeColumns+` FROM episodes WHERE audio_url = ?`, audioURL)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode by url: %w", err)
	}
	return ep, nil
}

// ListEpisodes returns all episodes ordered by insertion.
func (s *Store) ListEpisodes(ctx context.Context) ([]*Episode, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+episodeColumns+` FROM episodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// MarkDownloaded records a finished audio download for an episode.
func (s *Store) MarkDownloaded(ctx context.Context, episodeID int64, audioPath string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET is_downloaded = 1, audio_file_path = ? WHERE id = ?`,
		audioPath,
		episodeID,
	)
	if err != nil {
		return fmt.Errorf("mark downloaded: %w", err)
	}
	return requireEpisodeRow(res, episodeID)
}

// UpdateDiarization records a successful diarization pass.
func (s *Store) UpdateDiarization(ctx context.Context, episodeID int64, numSpeakers int) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET has_diarization = 1, num_speakers = ? WHERE id = ?`,
		numSpeakers,
		episodeID,
	)
	if err != nil {
		return fmt.Errorf("update diarization: %w", err)
	}
	return requireEpisodeRow(res, episodeID)
}

// NextUntranscribed returns the best auto-transcribe candidate: not yet
// transcribed, not queued, preferring episodes whose audio is already on disk,
// then the most recently published.
func (s *Store) NextUntranscribed(ctx context.Context) (*Episode, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+episodeColumns+` FROM episodes
         WHERE is_transcribed = 0 AND is_in_queue = 0
         ORDER BY is_downloaded DESC, published_at DESC, id DESC
         LIMIT 1`,
	)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next untranscribed: %w", err)
	}
	return ep, nil
}

// ListUndiarized returns transcribed episodes that have no diarization yet and
// are not queued. The startup sweep feeds these back in as diarize-only items.
func (s *Store) ListUndiarized(ctx context.Context) ([]*Episode, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+episodeColumns+` FROM episodes
         WHERE is_transcribed = 1 AND has_diarization = 0 AND is_in_queue = 0
         ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list undiarized: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

func requireEpisodeRow(res interface{ RowsAffected() (int64, error) }, episodeID int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrEpisodeNotFound, episodeID)
	}
	return nil
}

// touchEpisodeQueueFlag keeps episodes.is_in_queue consistent with queue rows.
func (s *Store) touchEpisodeQueueFlag(ctx context.Context, tx *sql.Tx, episodeID int64, inQueue bool) error {
	_, err := tx.ExecContext(ctx, `UPDATE episodes SET is_in_queue = ? WHERE id = ?`, boolToInt(inQueue), episodeID)
	return err
}
