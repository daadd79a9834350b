package testsupport

import (
	"testing"

	"subvoice/internal/config"
	"subvoice/internal/history"
)

// MustOpenStore opens the history store for cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
