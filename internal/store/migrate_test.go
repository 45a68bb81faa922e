package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestQueueMigrations_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")

	states, err := QueueMigrations(context.Background(), path)
	if err != nil {
		t.Fatalf("QueueMigrations: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("migrations = %d, want 2", len(states))
	}
	for _, st := range states {
		if st.Applied {
			t.Errorf("migration %d reported applied on a missing file", st.Version)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("dry run created the queue file (stat err = %v)", err)
	}
}

func TestQueueMigrations_AfterOpen(t *testing.T) {
	q := newTestQueue(t)

	states, err := QueueMigrations(context.Background(), q.Path())
	if err != nil {
		t.Fatalf("QueueMigrations: %v", err)
	}
	for _, st := range states {
		if !st.Applied {
			t.Errorf("migration %d (%s) pending after open", st.Version, st.Name)
		}
	}
}
