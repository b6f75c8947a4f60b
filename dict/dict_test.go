package dict

import (
	"testing"

	"github.com/boutros/quadstore/storage"
	"github.com/boutros/quadstore/storage/memkv"
	"github.com/boutros/quadstore/term"
)

func newEngine(t *testing.T) storage.Engine {
	t.Helper()
	return memkv.New()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := newEngine(t)
	d := New("http://example.org/")

	terms := []term.Term{
		term.IRI("http://example.org/a-very-long-iri-that-cannot-be-inlined-because-it-exceeds-the-inline-budget-by-quite-a-margin"),
		term.NewStringLiteral("a long literal value that should not fit inline in a 128-bit id, forcing a dictionary entry"),
		term.NewLangLiteral("bonjour, ceci est un texte assez long pour forcer une entrée du dictionnaire", "fr"),
		term.NewTypedLiteral("3.14159265358979323846", term.XSDdecimal),
	}

	for _, tm := range terms {
		snap, err := e.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		batch := e.NewBatch()
		id, err := d.Encode(snap, batch, tm)
		if err != nil {
			t.Fatalf("Encode(%v): %v", tm, err)
		}
		if err := batch.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		snap.Close()

		snap2, err := e.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		got, err := d.Decode(snap2, id)
		if err != nil {
			t.Fatalf("Decode(%v): %v", id, err)
		}
		if !term.Equal(got, tm) {
			t.Errorf("round trip %v: got %v", tm, got)
		}
		snap2.Close()
	}
}

func TestEncodeIsIdempotent(t *testing.T) {
	e := newEngine(t)
	d := New("http://example.org/")
	tm := term.NewStringLiteral("idempotence check: encoding the same term twice yields the same id")

	snap, _ := e.Snapshot()
	batch := e.NewBatch()
	id1, err := d.Encode(snap, batch, tm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	snap.Close()

	snap2, _ := e.Snapshot()
	batch2 := e.NewBatch()
	id2, err := d.Encode(snap2, batch2, tm)
	if err != nil {
		t.Fatalf("Encode (2nd time): %v", err)
	}
	batch2.Rollback()
	snap2.Close()

	if id1 != id2 {
		t.Fatalf("Encode not idempotent: got %v and %v", id1, id2)
	}
}

func TestEncodeExistingMissingTerm(t *testing.T) {
	e := newEngine(t)
	d := New("http://example.org/")
	snap, _ := e.Snapshot()
	defer snap.Close()

	_, ok := d.EncodeExisting(snap, term.NewStringLiteral("never written to the dictionary"))
	if ok {
		t.Fatalf("EncodeExisting reported ok for a term never encoded")
	}
}

func TestEncodeExistingFindsEncodedTerm(t *testing.T) {
	e := newEngine(t)
	d := New("http://example.org/")
	tm := term.NewStringLiteral("findable after being encoded once, a long enough literal to avoid inlining")

	snap, _ := e.Snapshot()
	batch := e.NewBatch()
	id, err := d.Encode(snap, batch, tm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	snap.Close()

	snap2, _ := e.Snapshot()
	defer snap2.Close()
	got, ok := d.EncodeExisting(snap2, tm)
	if !ok {
		t.Fatalf("EncodeExisting did not find a previously encoded term")
	}
	if got != id {
		t.Fatalf("EncodeExisting id = %v, want %v", got, id)
	}
}

func TestDecodeCorruptID(t *testing.T) {
	e := newEngine(t)
	d := New("http://example.org/")
	snap, _ := e.Snapshot()
	defer snap.Close()

	tm := term.NewStringLiteral("encoded once, then the dictionary entry is presumed lost")
	batch := e.NewBatch()
	id, err := d.Encode(snap, batch, tm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	batch.Rollback() // never actually committed: the family entry never lands

	snap2, _ := e.Snapshot()
	defer snap2.Close()
	if _, err := d.Decode(snap2, id); err != ErrCorrupt {
		t.Fatalf("Decode of an unwritten id: got %v, want ErrCorrupt", err)
	}
}

func TestInlineTermsSkipDictionary(t *testing.T) {
	e := newEngine(t)
	d := New("http://example.org/")
	snap, _ := e.Snapshot()
	defer snap.Close()

	short := term.IRI("http://example.org/a")
	id, ok := d.EncodeExisting(snap, short)
	if !ok {
		t.Fatalf("short IRI should encode inline without a dictionary write")
	}
	if !id.IsInline() {
		t.Fatalf("expected an inline id for a short relative IRI")
	}
	got, err := d.Decode(snap, id)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !term.Equal(got, short) {
		t.Fatalf("Decode = %v, want %v", got, short)
	}
}
