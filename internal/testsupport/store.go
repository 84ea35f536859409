package testsupport

import (
	"context"
	"testing"

	"discflow/internal/config"
	"discflow/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// Disable stores a disabled preference for guid.
func Disable(t testing.TB, st *store.Store, guid string) {
	t.Helper()

	if err := st.SetPluginEnabled(context.Background(), guid, false); err != nil {
		t.Fatalf("SetPluginEnabled: %v", err)
	}
}
