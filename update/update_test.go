package update

import (
	"testing"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/index"
	"github.com/boutros/quadstore/storage/memkv"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/txn"
)

func newTestStore(t *testing.T) *txn.Store {
	t.Helper()
	return txn.NewStore(memkv.New(), "http://example.org/")
}

func TestInsertDataThenDeleteData(t *testing.T) {
	st := newTestStore(t)
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}

	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	b := term.IRI("http://example.org/b")

	ex := &Executor{Env: Env{Base: "http://example.org/"}}
	err = ex.Run(wtx, []algebra.Update{
		algebra.InsertData{Quads: []algebra.GroundQuad{{Subject: a, Predicate: p, Object: b}}},
	})
	if err != nil {
		t.Fatalf("Run(InsertData): %v", err)
	}

	sid, ok := wtx.EncodeExisting(a)
	if !ok {
		t.Fatalf("subject not in dictionary after InsertData")
	}
	pid, _ := wtx.EncodeExisting(p)
	oid, _ := wtx.EncodeExisting(b)
	if !hasQuad(wtx, term.Quad{Subject: sid, Predicate: pid, Object: oid, Graph: term.DefaultGraph}) {
		t.Fatalf("quad not present after InsertData")
	}

	err = ex.Run(wtx, []algebra.Update{
		algebra.DeleteData{Quads: []algebra.GroundQuad{{Subject: a, Predicate: p, Object: b}}},
	})
	if err != nil {
		t.Fatalf("Run(DeleteData): %v", err)
	}
	if hasQuad(wtx, term.Quad{Subject: sid, Predicate: pid, Object: oid, Graph: term.DefaultGraph}) {
		t.Fatalf("quad still present after DeleteData")
	}

	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func hasQuad(wtx *txn.WriteTxn, q term.Quad) bool {
	for _, got := range wtx.Probe(index.Pattern{Subject: &q.Subject, Predicate: &q.Predicate, Object: &q.Object}) {
		if got == q {
			return true
		}
	}
	return false
}

func TestDeleteDataOnUnencodedTermIsNoop(t *testing.T) {
	st := newTestStore(t)
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	ex := &Executor{Env: Env{Base: "http://example.org/"}}

	a := term.IRI("http://example.org/never-inserted")
	p := term.IRI("http://example.org/p")
	b := term.IRI("http://example.org/b")

	err = ex.Run(wtx, []algebra.Update{
		algebra.DeleteData{Quads: []algebra.GroundQuad{{Subject: a, Predicate: p, Object: b}}},
	})
	if err != nil {
		t.Fatalf("Run(DeleteData) on a never-inserted quad should be a no-op, got: %v", err)
	}
}

func TestCreateThenClearGraph(t *testing.T) {
	st := newTestStore(t)
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	ex := &Executor{Env: Env{Base: "http://example.org/"}}

	g := term.IRI("http://example.org/g1")
	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	b := term.IRI("http://example.org/b")

	err = ex.Run(wtx, []algebra.Update{
		algebra.Create{Graph: g},
		algebra.InsertData{Quads: []algebra.GroundQuad{{Subject: a, Predicate: p, Object: b, Graph: g}}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	gid, ok := wtx.EncodeExisting(g)
	if !ok {
		t.Fatalf("graph not recorded after CREATE")
	}
	if !wtx.GraphExists(gid) {
		t.Fatalf("GraphExists false after CREATE")
	}
	if got := len(wtx.Probe(index.Pattern{Graph: &gid})); got != 1 {
		t.Fatalf("graph has %d quads before CLEAR, want 1", got)
	}

	err = ex.Run(wtx, []algebra.Update{
		algebra.Clear{Graph: algebra.GraphRef{Graph: &g}},
	})
	if err != nil {
		t.Fatalf("Run(Clear): %v", err)
	}
	if got := len(wtx.Probe(index.Pattern{Graph: &gid})); got != 0 {
		t.Fatalf("graph has %d quads after CLEAR, want 0", got)
	}
	if !wtx.GraphExists(gid) {
		t.Fatalf("CLEAR must not remove the graph's existence record, only its quads")
	}
}

func TestDropGraphRemovesExistenceRecord(t *testing.T) {
	st := newTestStore(t)
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	ex := &Executor{Env: Env{Base: "http://example.org/"}}
	g := term.IRI("http://example.org/g1")

	if err := ex.Run(wtx, []algebra.Update{algebra.Create{Graph: g}}); err != nil {
		t.Fatalf("Run(Create): %v", err)
	}
	gid, _ := wtx.EncodeExisting(g)
	if !wtx.GraphExists(gid) {
		t.Fatalf("GraphExists false after CREATE")
	}

	if err := ex.Run(wtx, []algebra.Update{algebra.Drop{Graph: algebra.GraphRef{Graph: &g}}}); err != nil {
		t.Fatalf("Run(Drop): %v", err)
	}
	if wtx.GraphExists(gid) {
		t.Fatalf("GraphExists true after DROP")
	}
}

func TestMoveGraphClearsDestinationAndDropsSource(t *testing.T) {
	st := newTestStore(t)
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	ex := &Executor{Env: Env{Base: "http://example.org/"}}

	src := term.IRI("http://example.org/src")
	dst := term.IRI("http://example.org/dst")
	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	b := term.IRI("http://example.org/b")
	stale := term.IRI("http://example.org/stale")

	err = ex.Run(wtx, []algebra.Update{
		algebra.InsertData{Quads: []algebra.GroundQuad{{Subject: a, Predicate: p, Object: b, Graph: src}}},
		algebra.InsertData{Quads: []algebra.GroundQuad{{Subject: a, Predicate: p, Object: stale, Graph: dst}}},
		algebra.Move{GraphCopyOp: algebra.GraphCopyOp{
			Source:      algebra.GraphRef{Graph: &src},
			Destination: algebra.GraphRef{Graph: &dst},
		}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	srcID, srcOK := wtx.EncodeExisting(src)
	if srcOK && wtx.GraphExists(srcID) {
		t.Fatalf("source graph should no longer exist after MOVE")
	}
	dstID, _ := wtx.EncodeExisting(dst)
	got := wtx.Probe(index.Pattern{Graph: &dstID})
	if len(got) != 1 {
		t.Fatalf("destination graph has %d quads after MOVE, want 1 (destination must be cleared first)", len(got))
	}
}

func TestRunAbortsWholeSequenceOnError(t *testing.T) {
	st := newTestStore(t)
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	ex := &Executor{Env: Env{Base: "http://example.org/"}}

	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	b := term.IRI("http://example.org/b")

	err = ex.Run(wtx, []algebra.Update{
		algebra.InsertData{Quads: []algebra.GroundQuad{{Subject: a, Predicate: p, Object: b}}},
		algebra.Load{Source: term.IRI("http://example.org/never-served.nt")},
	})
	if err == nil {
		t.Fatalf("expected the LOAD statement (no Source configured) to fail")
	}
}
