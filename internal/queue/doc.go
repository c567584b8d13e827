// Package queue persists episodes and the durable work queue in SQLite.
//
// The queue holds at most one item per episode; re-enqueueing an episode
// replaces its previous item. The dispatch order is priority descending, then
// enqueue time ascending. Queue transitions that affect episode state (a
// completed transcription, a failed download) span both tables in a single
// transaction, and startup recovery helpers return crashed processing rows to
// pending and re-queue bounded download failures.
package queue
