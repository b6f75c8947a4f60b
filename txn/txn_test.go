package txn

import (
	"testing"

	"github.com/boutros/quadstore/index"
	"github.com/boutros/quadstore/storage/memkv"
	"github.com/boutros/quadstore/term"
)

func TestWriteThenReadIsVisible(t *testing.T) {
	st := NewStore(memkv.New(), "http://example.org/")
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}

	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	o := term.NewStringLiteral("hello")

	sid, err := wtx.Encode(a)
	if err != nil {
		t.Fatalf("Encode subject: %v", err)
	}
	pid, err := wtx.Encode(p)
	if err != nil {
		t.Fatalf("Encode predicate: %v", err)
	}
	oid, err := wtx.Encode(o)
	if err != nil {
		t.Fatalf("Encode object: %v", err)
	}
	if err := wtx.Insert(term.Quad{Subject: sid, Predicate: pid, Object: oid, Graph: term.DefaultGraph}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rtx, err := st.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	defer rtx.Close()

	gotSid, ok := rtx.EncodeExisting(a)
	if !ok || gotSid != sid {
		t.Fatalf("EncodeExisting(a) = %v, %v; want %v, true", gotSid, ok, sid)
	}
	decoded, err := rtx.Decode(oid)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !term.Equal(decoded, o) {
		t.Fatalf("Decode(oid) = %v, want %v", decoded, o)
	}
}

func TestBeginWriteRejectsSecondWriter(t *testing.T) {
	st := NewStore(memkv.New(), "http://example.org/")
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	defer wtx.Rollback()

	if _, err := st.BeginWrite(); err != ErrWriterBusy {
		t.Fatalf("second BeginWrite: got %v, want ErrWriterBusy", err)
	}
}

func TestRollbackReleasesWriterSlot(t *testing.T) {
	st := NewStore(memkv.New(), "http://example.org/")
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	wtx.Rollback()

	wtx2, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite after rollback: %v", err)
	}
	wtx2.Rollback()
}

func TestRollbackDiscardsWrites(t *testing.T) {
	st := NewStore(memkv.New(), "http://example.org/")
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}

	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	o := term.NewStringLiteral("never committed")
	sid, _ := wtx.Encode(a)
	pid, _ := wtx.Encode(p)
	oid, _ := wtx.Encode(o)
	if err := wtx.Insert(term.Quad{Subject: sid, Predicate: pid, Object: oid, Graph: term.DefaultGraph}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	wtx.Rollback()

	rtx, err := st.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	defer rtx.Close()
	if _, ok := rtx.EncodeExisting(a); ok {
		t.Fatalf("EncodeExisting(a) found a term from a rolled-back transaction")
	}
}

func TestDropGraphRemovesOnlyThatGraph(t *testing.T) {
	st := NewStore(memkv.New(), "http://example.org/")
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}

	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	b := term.IRI("http://example.org/b")
	g1 := term.IRI("http://example.org/g1")
	g2 := term.IRI("http://example.org/g2")

	aid, _ := wtx.Encode(a)
	pid, _ := wtx.Encode(p)
	bid, _ := wtx.Encode(b)
	g1id, _ := wtx.Encode(g1)
	g2id, _ := wtx.Encode(g2)

	if err := wtx.InsertNamedGraph(g1id); err != nil {
		t.Fatalf("InsertNamedGraph: %v", err)
	}
	if err := wtx.Insert(term.Quad{Subject: aid, Predicate: pid, Object: bid, Graph: g1id}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := wtx.Insert(term.Quad{Subject: aid, Predicate: pid, Object: bid, Graph: g2id}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	wtx2, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := wtx2.DropGraph(g1id); err != nil {
		t.Fatalf("DropGraph: %v", err)
	}
	if err := wtx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rtx, err := st.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	defer rtx.Close()
	if got := len(rtx.Probe(index.Pattern{Graph: &g1id})); got != 0 {
		t.Fatalf("graph g1 still has %d quads after DropGraph", got)
	}
	if got := len(rtx.Probe(index.Pattern{Graph: &g2id})); got != 1 {
		t.Fatalf("graph g2 has %d quads, want 1", got)
	}
}
