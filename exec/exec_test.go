package exec

import (
	"testing"
	"time"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/limits"
	"github.com/boutros/quadstore/storage/memkv"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/txn"
)

func newTestEnv(t *testing.T, quads [][3]term.Term) (*Env, func()) {
	t.Helper()
	st := txn.NewStore(memkv.New(), "http://example.org/")
	wtx, err := st.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	for _, q := range quads {
		sid, err := wtx.Encode(q[0])
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		pid, err := wtx.Encode(q[1])
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		oid, err := wtx.Encode(q[2])
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if err := wtx.Insert(term.Quad{Subject: sid, Predicate: pid, Object: oid, Graph: term.DefaultGraph}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	rtx, err := st.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	return &Env{Rtx: rtx, Caps: limits.DefaultCaps(), Base: "http://example.org/", Now: time.Now()},
		func() { rtx.Close() }
}

func collect(t *testing.T, it Iterator) []Row {
	t.Helper()
	tok := limits.NewToken()
	defer it.Close()
	var out []Row
	for {
		ok, err := it.Next(tok)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, it.Row().Clone())
	}
}

func TestCompilePatternMatchesBoundPredicate(t *testing.T) {
	a := term.IRI("http://example.org/a")
	b := term.IRI("http://example.org/b")
	c := term.IRI("http://example.org/c")
	p := term.IRI("http://example.org/p")
	env, closeEnv := newTestEnv(t, [][3]term.Term{{a, p, b}, {a, p, c}})
	defer closeEnv()

	pat := algebra.QuadPattern{
		Subject:   algebra.BoundTerm(a),
		Predicate: algebra.BoundTerm(p),
		Object:    algebra.VarPos("o"),
	}
	it, err := Compile(env, pat)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	rows := collect(t, it)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if _, ok := r["o"]; !ok {
			t.Fatalf("row missing ?o binding: %v", r)
		}
	}
}

func TestCompilePatternUnboundTermNeverMatches(t *testing.T) {
	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	b := term.IRI("http://example.org/b")
	env, closeEnv := newTestEnv(t, [][3]term.Term{{a, p, b}})
	defer closeEnv()

	pat := algebra.QuadPattern{
		Subject:   algebra.BoundTerm(term.IRI("http://example.org/never-inserted")),
		Predicate: algebra.BoundTerm(p),
		Object:    algebra.VarPos("o"),
	}
	it, err := Compile(env, pat)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if rows := collect(t, it); len(rows) != 0 {
		t.Fatalf("got %d rows, want 0", len(rows))
	}
}

func TestCompileJoinRequiresSharedVariable(t *testing.T) {
	a := term.IRI("http://example.org/a")
	b := term.IRI("http://example.org/b")
	p := term.IRI("http://example.org/p")
	q := term.IRI("http://example.org/q")
	c := term.IRI("http://example.org/c")
	env, closeEnv := newTestEnv(t, [][3]term.Term{{a, p, b}, {b, q, c}})
	defer closeEnv()

	join := algebra.Join{
		Left:  algebra.QuadPattern{Subject: algebra.BoundTerm(a), Predicate: algebra.BoundTerm(p), Object: algebra.VarPos("x")},
		Right: algebra.QuadPattern{Subject: algebra.VarPos("x"), Predicate: algebra.BoundTerm(q), Object: algebra.VarPos("y")},
	}
	it, err := Compile(env, join)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	rows := collect(t, it)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["y"] == (term.ID{}) {
		t.Fatalf("expected ?y bound in the joined row")
	}
}

func TestCompileSliceAppliesOffsetAndLimit(t *testing.T) {
	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	env, closeEnv := newTestEnv(t, [][3]term.Term{
		{a, p, term.NewLiteral(1)},
		{a, p, term.NewLiteral(2)},
		{a, p, term.NewLiteral(3)},
	})
	defer closeEnv()

	slice := algebra.Slice{
		Input:  algebra.QuadPattern{Subject: algebra.BoundTerm(a), Predicate: algebra.BoundTerm(p), Object: algebra.VarPos("o")},
		Offset: 1,
		Limit:  1,
	}
	it, err := Compile(env, slice)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	rows := collect(t, it)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
}

func TestCompileNilIsEmpty(t *testing.T) {
	env, closeEnv := newTestEnv(t, nil)
	defer closeEnv()
	if _, err := Compile(env, nil); err != nil {
		t.Fatalf("Compile(nil) should yield an always-empty iterator, got error: %v", err)
	}
}
