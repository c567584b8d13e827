package testsupport

import (
	"context"
	"testing"

	"podscribe/internal/config"
	"podscribe/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedEpisode inserts an episode row for tests using the provided store.
func SeedEpisode(t testing.TB, store *queue.Store, title, audioURL string) *queue.Episode {
	t.Helper()

	ep, err := store.AddEpisode(context.Background(), &queue.Episode{
		Title:    title,
		AudioURL: audioURL,
	})
	if err != nil {
		t.Fatalf("store.AddEpisode: %v", err)
	}
	return ep
}
