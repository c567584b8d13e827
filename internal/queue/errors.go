package queue

import "errors"

// ErrEpisodeProcessing is returned when an operation targets an episode whose
// queue item is currently being processed by the worker.
var ErrEpisodeProcessing = errors.New("episode is currently processing")

// ErrEpisodeNotFound is returned when the referenced episode row does not exist.
var ErrEpisodeNotFound = errors.New("episode not found")
