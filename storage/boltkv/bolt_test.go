package boltkv

import (
	"path/filepath"
	"testing"

	"github.com/boutros/quadstore/storage"
)

func TestOpenCreatesAllFamilies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	e, err := Open(path, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Close()
	for _, f := range storage.Families {
		// Get on a freshly created, empty bucket must not panic and
		// must report absence, not treat a missing bucket as an error.
		if got := snap.Get(f, []byte("nope")); got != nil {
			t.Errorf("family %s: expected nil for an absent key", f)
		}
	}
}

func TestReopenSeesCommittedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	e, err := Open(path, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b := e.NewBatch()
	b.Put("meta", []byte("k"), []byte("v"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := Open(path, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()
	snap, err := e2.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Close()
	if got := snap.Get("meta", []byte("k")); string(got) != "v" {
		t.Fatalf("Get after reopen = %q, want %q", got, "v")
	}
}

func TestReadOnlyOpenRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	e, err := Open(path, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ro, err := Open(path, storage.Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open read-only: %v", err)
	}
	defer ro.Close()

	b := ro.NewBatch()
	if err := b.Commit(); err == nil {
		t.Fatalf("expected a write batch against a read-only Bolt handle to fail")
	}
}
