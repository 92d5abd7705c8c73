package testsupport

import (
	"context"
	"testing"
	"time"

	"camrelay/internal/config"
	"camrelay/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MarkDelivered seeds the delivered set.
func MarkDelivered(t testing.TB, store *ledger.Store, keys ...string) {
	t.Helper()

	for _, key := range keys {
		if err := store.MarkDelivered(context.Background(), key, key+".mp4", time.Now()); err != nil {
			t.Fatalf("store.MarkDelivered: %v", err)
		}
	}
}
