package memkv

import (
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	e := New()
	b := e.NewBatch()
	b.Put("dict", []byte("k"), []byte("v"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Close()
	if got := snap.Get("dict", []byte("k")); string(got) != "v" {
		t.Fatalf("Get = %q, want %q", got, "v")
	}
}

func TestSnapshotIsolationFromLaterWrites(t *testing.T) {
	e := New()
	b := e.NewBatch()
	b.Put("dict", []byte("k"), []byte("v1"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Close()

	b2 := e.NewBatch()
	b2.Put("dict", []byte("k"), []byte("v2"))
	if err := b2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := snap.Get("dict", []byte("k")); string(got) != "v1" {
		t.Fatalf("snapshot observed a write committed after it was taken: got %q, want %q", got, "v1")
	}

	snap2, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap2.Close()
	if got := snap2.Get("dict", []byte("k")); string(got) != "v2" {
		t.Fatalf("new snapshot = %q, want %q", got, "v2")
	}
}

func TestRollbackDiscardsBatch(t *testing.T) {
	e := New()
	b := e.NewBatch()
	b.Put("dict", []byte("k"), []byte("v"))
	b.Rollback()

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Close()
	if got := snap.Get("dict", []byte("k")); got != nil {
		t.Fatalf("Get after rollback = %q, want nil", got)
	}
}

func TestCursorPrefixScan(t *testing.T) {
	e := New()
	b := e.NewBatch()
	b.Put("meta", []byte("a/1"), []byte("1"))
	b.Put("meta", []byte("a/2"), []byte("2"))
	b.Put("meta", []byte("b/1"), []byte("3"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Close()

	cur := snap.Cursor("meta", []byte("a/"))
	defer cur.Close()
	n := 0
	for ok := cur.Seek([]byte("a/")); ok; ok = cur.Next() {
		n++
	}
	if n != 2 {
		t.Fatalf("prefix scan found %d keys, want 2", n)
	}
}
