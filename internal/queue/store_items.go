package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Enqueue adds an episode to the work queue with the given priority. An
// existing item for the same episode is replaced, resetting its retry count
// and error state.
func (s *Store) Enqueue(ctx context.Context, episodeID int64, priority int) (*Item, error) {
	return s.enqueue(ctx, episodeID, priority, TypeFull)
}

func (s *Store) enqueue(ctx context.Context, episodeID int64, priority int, queueType QueueType) (*Item, error) {
	ctx = ensureContext(ctx)
	ep, err := s.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if ep == nil {
		return nil, fmt.Errorf("%w: id %d", ErrEpisodeNotFound, episodeID)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT OR REPLACE INTO queue_items (episode_id, priority, retry_count, status, queue_type, added_at)
             VALUES (?, ?, 0, ?, ?, ?)`,
			episodeID,
			priority,
			StatusPending,
			queueType,
			timestamp(),
		); err != nil {
			return fmt.Errorf("enqueue episode: %w", err)
		}
		return s.touchEpisodeQueueFlag(ctx, tx, episodeID, true)
	})
	if err != nil {
		return nil, err
	}
	return s.GetItemByEpisode(ctx, episodeID)
}

// ClaimNext atomically selects the highest-priority pending item (oldest
// first within a priority) and transitions it to processing. Returns nil when
// the queue has no pending work.
func (s *Store) ClaimNext(ctx context.Context) (*Item, error) {
	ctx = ensureContext(ctx)
	var claimed *Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(
			ctx,
			`SELECT `+itemColumns+` FROM queue_items
             WHERE status = ?
             ORDER BY priority DESC, added_at ASC, id ASC
             LIMIT 1`,
			StatusPending,
		)
		item, err := scanItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select pending item: %w", err)
		}

		now := timestamp()
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE queue_items SET status = ?, started_at = ?, error_message = NULL WHERE id = ?`,
			StatusProcessing,
			now,
			item.ID,
		); err != nil {
			return fmt.Errorf("claim item: %w", err)
		}
		item.Status = StatusProcessing
		if started, perr := parseTimeString(now); perr == nil {
			item.StartedAt = &started
		}
		item.ErrorMessage = ""
		claimed = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkCompleted finishes an episode's queue item and records the transcript.
func (s *Store) MarkCompleted(ctx context.Context, episodeID int64, transcriptPath string) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE queue_items SET status = ?, completed_at = ?, error_message = NULL WHERE episode_id = ?`,
			StatusCompleted,
			timestamp(),
			episodeID,
		)
		if err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		if err := requireEpisodeRow(res, episodeID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE episodes
             SET is_transcribed = 1, transcript_path = ?, transcription_status = 'completed',
                 transcription_error = NULL, is_in_queue = 0
             WHERE id = ?`,
			nullableString(transcriptPath),
			episodeID,
		); err != nil {
			return fmt.Errorf("mark episode transcribed: %w", err)
		}
		return nil
	})
}

// MarkFailed finishes an episode's queue item with an error, bumping the
// retry counter used by the startup download-retry sweep.
func (s *Store) MarkFailed(ctx context.Context, episodeID int64, message string) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE queue_items
             SET status = ?, error_message = ?, retry_count = retry_count + 1, completed_at = ?
             WHERE episode_id = ?`,
			StatusFailed,
			message,
			timestamp(),
			episodeID,
		)
		if err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		if err := requireEpisodeRow(res, episodeID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE episodes SET transcription_status = 'failed', transcription_error = ?, is_in_queue = 0 WHERE id = ?`,
			message,
			episodeID,
		); err != nil {
			return fmt.Errorf("mark episode failed: %w", err)
		}
		return nil
	})
}

// ResetToPending returns an episode's queue item to the pending state.
func (s *Store) ResetToPending(ctx context.Context, episodeID int64) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE queue_items
             SET status = ?, started_at = NULL, completed_at = NULL, error_message = NULL
             WHERE episode_id = ?`,
			StatusPending,
			episodeID,
		)
		if err != nil {
			return fmt.Errorf("reset to pending: %w", err)
		}
		if err := requireEpisodeRow(res, episodeID); err != nil {
			return err
		}
		return s.touchEpisodeQueueFlag(ctx, tx, episodeID, true)
	})
}

// RequeueForDiarization re-queues a transcribed episode to run diarization
// alone. Returns ErrEpisodeProcessing while the worker holds the episode. The
// status check and the upsert share one transaction so a claim cannot slip in
// between them.
func (s *Store) RequeueForDiarization(ctx context.Context, episodeID int64, priority int) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM episodes WHERE id = ?`, episodeID).Scan(&exists); err != nil {
			return fmt.Errorf("look up episode: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: id %d", ErrEpisodeNotFound, episodeID)
		}

		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM queue_items WHERE episode_id = ?`, episodeID).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("check queue status: %w", err)
		case Status(status) == StatusProcessing:
			return fmt.Errorf("%w: episode %d", ErrEpisodeProcessing, episodeID)
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT OR REPLACE INTO queue_items (episode_id, priority, retry_count, status, queue_type, added_at)
             VALUES (?, ?, 0, ?, ?, ?)`,
			episodeID,
			priority,
			StatusPending,
			TypeDiarizeOnly,
			timestamp(),
		); err != nil {
			return fmt.Errorf("requeue for diarization: %w", err)
		}
		return s.touchEpisodeQueueFlag(ctx, tx, episodeID, true)
	})
}

// GetItem fetches a queue item by identifier.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetItemByEpisode fetches the queue item for an episode, if any.
func (s *Store) GetItemByEpisode(ctx context.Context, episodeID int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM queue_items WHERE episode_id = ?`, episodeID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by episode: %w", err)
	}
	return item, nil
}

// List returns queue items filtered by status set (or all items when no
// status is provided), in dispatch order.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM queue_items`
	orderClause := ` ORDER BY priority DESC, added_at ASC, id ASC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Remove deletes a queue item by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	ctx = ensureContext(ctx)
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		return s.touchEpisodeQueueFlag(ctx, tx, item.EpisodeID, false)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}
