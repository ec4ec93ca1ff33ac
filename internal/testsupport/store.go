package testsupport

import (
	"context"
	"testing"

	"scriptlab/internal/config"
	"scriptlab/internal/store"
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

// NewWorkflow inserts an empty draft workflow for accountID.
func NewWorkflow(t testing.TB, st *store.Store, accountID, title string) *store.Workflow {
	t.Helper()

	wf := &store.Workflow{AccountID: accountID, Title: title}
	if err := st.CreateWorkflow(context.Background(), wf); err != nil {
		t.Fatalf("store.CreateWorkflow: %v", err)
	}
	return wf
}
