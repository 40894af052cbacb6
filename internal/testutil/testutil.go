// Package testutil provides shared test helpers: a temporary sandbox, a
// temporary state database and an in-memory fake of the content platform.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/postdesk/internal/state"
	"github.com/starford/postdesk/internal/vfs"
)

// TestState opens a temporary state database that is closed on cleanup.
func TestState(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "postdesk.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a sandbox store under a temporary directory.
func TestStore(t *testing.T) *vfs.Store {
	t.Helper()
	store, err := vfs.New(filepath.Join(t.TempDir(), "sandbox"), "builder")
	if err != nil {
		t.Fatal(err)
	}
	return store
}
