package store

import (
	"testing"

	"clientdesk/pkg/logx"
)

// SetupTestDB opens an in-memory sqlite database with the full schema applied.
func SetupTestDB(t *testing.T) *Store {
	t.Helper()

	st, err := Open(Config{Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}
