package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ResetStuckProcessing returns items left in processing (after a crash or
// unclean shutdown) back to pending so the worker can pick them up again.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items SET status = ?, started_at = NULL WHERE status = ?`,
		StatusPending,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailedDownloads re-queues failed items whose error describes a download
// failure and whose retry budget is not exhausted.
func (s *Store) RetryFailedDownloads(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var updated int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(
			ctx,
			`SELECT episode_id FROM queue_items
             WHERE status = ? AND retry_count < ? AND lower(error_message) LIKE '%download%'`,
			StatusFailed,
			MaxDownloadRetries,
		)
		if err != nil {
			return fmt.Errorf("select retryable downloads: %w", err)
		}
		var episodeIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			episodeIDs = append(episodeIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, episodeID := range episodeIDs {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE queue_items
                 SET status = ?, started_at = NULL, completed_at = NULL, error_message = NULL
                 WHERE episode_id = ?`,
				StatusPending,
				episodeID,
			); err != nil {
				return fmt.Errorf("retry download for episode %d: %w", episodeID, err)
			}
			if err := s.touchEpisodeQueueFlag(ctx, tx, episodeID, true); err != nil {
				return err
			}
		}
		updated = int64(len(episodeIDs))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// RetryFailed moves failed items back to pending for reprocessing. With no
// IDs, all failed items are retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	ctx = ensureContext(ctx)
	query := `SELECT episode_id FROM queue_items WHERE status = ?`
	args := []any{StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	var updated int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("select failed items: %w", err)
		}
		var episodeIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			episodeIDs = append(episodeIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, episodeID := range episodeIDs {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE queue_items
                 SET status = ?, started_at = NULL, completed_at = NULL, error_message = NULL
                 WHERE episode_id = ?`,
				StatusPending,
				episodeID,
			); err != nil {
				return fmt.Errorf("retry episode %d: %w", episodeID, err)
			}
			if err := s.touchEpisodeQueueFlag(ctx, tx, episodeID, true); err != nil {
				return err
			}
		}
		updated = int64(len(episodeIDs))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'queue_items'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM queue_items")
		if err := row.Scan(&health.TotalItems); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count queue items: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// ClearCompleted removes only completed items from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	return s.clearByStatus(ctx, StatusCompleted)
}

// ClearFailed removes only failed items from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	return s.clearByStatus(ctx, StatusFailed)
}

// Clear removes all items from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM queue_items`)
		if err != nil {
			return fmt.Errorf("clear queue: %w", err)
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE episodes SET is_in_queue = 0`)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) clearByStatus(ctx context.Context, status Status) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE episodes SET is_in_queue = 0
             WHERE id IN (SELECT episode_id FROM queue_items WHERE status = ?)`,
			status,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM queue_items WHERE status = ?`, status)
		if err != nil {
			return fmt.Errorf("clear %s items: %w", status, err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
