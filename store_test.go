package sopp

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/boutros/quadstore/term"
)

type rawQuad struct {
	s, p, o, g term.Term
}

func mustInsert(t *testing.T, s *Store, quads []rawQuad) {
	t.Helper()
	wtx, err := s.WriteTransaction()
	if err != nil {
		t.Fatalf("WriteTransaction: %v", err)
	}
	for _, q := range quads {
		sid, err := wtx.Encode(q.s)
		if err != nil {
			t.Fatalf("encode subject: %v", err)
		}
		pid, err := wtx.Encode(q.p)
		if err != nil {
			t.Fatalf("encode predicate: %v", err)
		}
		oid, err := wtx.Encode(q.o)
		if err != nil {
			t.Fatalf("encode object: %v", err)
		}
		gid := term.DefaultGraph
		if q.g != nil {
			gid, err = wtx.Encode(q.g)
			if err != nil {
				t.Fatalf("encode graph: %v", err)
			}
		}
		if err := wtx.Insert(term.Quad{Subject: sid, Predicate: pid, Object: oid, Graph: gid}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// TestQueryLanguageTaggedLiterals covers S1: two language-tagged
// literals on the same subject/predicate, ordered by the bound
// variable.
func TestQueryLanguageTaggedLiterals(t *testing.T) {
	s := InMemory(Options{Base: "http://example.org/"})
	defer s.Close()

	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	mustInsert(t, s, []rawQuad{
		{a, p, term.NewLangLiteral("hi", "en"), nil},
		{a, p, term.NewLangLiteral("bonjour", "fr"), nil},
	})

	res, err := s.Query(`SELECT ?l WHERE { <http://example.org/a> <http://example.org/p> ?l } ORDER BY ?l`, QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer res.Solutions.Close()

	var got []string
	for {
		row, ok, err := res.Solutions.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, row["l"].String())
	}
	want := []string{"bonjour", "hi"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestQueryNamedGraphIsolation covers S2: the same subject/predicate in
// two different named graphs, queried through GRAPH <g1>.
func TestQueryNamedGraphIsolation(t *testing.T) {
	s := InMemory(Options{Base: "http://example.org/"})
	defer s.Close()

	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	b := term.IRI("http://example.org/b")
	c := term.IRI("http://example.org/c")
	g1 := term.IRI("http://example.org/g1")
	g2 := term.IRI("http://example.org/g2")
	mustInsert(t, s, []rawQuad{
		{a, p, b, g1},
		{a, p, c, g2},
	})

	res, err := s.Query(`SELECT ?o WHERE { GRAPH <http://example.org/g1> { <http://example.org/a> <http://example.org/p> ?o } }`, QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer res.Solutions.Close()

	row, ok, err := res.Solutions.Next()
	if err != nil || !ok {
		t.Fatalf("expected one row, got ok=%v err=%v", ok, err)
	}
	if row["o"].String() != b.String() {
		t.Fatalf("?o = %v, want %v", row["o"], b)
	}
	_, ok, err = res.Solutions.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatalf("expected exactly one row")
	}
}

// TestQueryPropertyPathPlus covers S3: a one-or-more property path
// walking a three-hop chain.
func TestQueryPropertyPathPlus(t *testing.T) {
	s := InMemory(Options{Base: "http://example.org/"})
	defer s.Close()

	a := term.IRI("http://example.org/a")
	b := term.IRI("http://example.org/b")
	c := term.IRI("http://example.org/c")
	d := term.IRI("http://example.org/d")
	k := term.IRI("http://example.org/k")
	mustInsert(t, s, []rawQuad{
		{a, k, b, nil},
		{b, k, c, nil},
		{c, k, d, nil},
	})

	res, err := s.Query(`SELECT ?x WHERE { <http://example.org/a> <http://example.org/k>+ ?x } ORDER BY ?x`, QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer res.Solutions.Close()

	var got []string
	for {
		row, ok, err := res.Solutions.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, row["x"].String())
	}
	sort.Strings(got)
	want := []string{b.String(), c.String(), d.String()}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// TestQueryOptionalLeavesUnbound covers S4: an OPTIONAL whose filter
// rejects every candidate binding leaves the optional variable unbound
// rather than dropping the solution.
func TestQueryOptionalLeavesUnbound(t *testing.T) {
	s := InMemory(Options{Base: "http://example.org/"})
	defer s.Close()

	a := term.IRI("http://example.org/a")
	b := term.IRI("http://example.org/b")
	p := term.IRI("http://example.org/p")
	mustInsert(t, s, []rawQuad{
		{a, p, term.NewLiteral(1), nil},
		{b, p, term.NewLiteral(2), nil},
	})

	res, err := s.Query(`SELECT ?s ?v WHERE { ?s <http://example.org/p> ?v . OPTIONAL { ?s <http://example.org/q> ?w . FILTER(?w > 0) } }`, QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer res.Solutions.Close()

	n := 0
	for {
		row, ok, err := res.Solutions.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		n++
		if _, bound := row["w"]; bound {
			t.Fatalf("?w should be unbound, got %v", row["w"])
		}
	}
	if n != 2 {
		t.Fatalf("got %d rows, want 2", n)
	}
}

// TestUpdateDeleteInsertWhere covers S5's commit path: a DELETE/INSERT/
// WHERE update replaces a bound object.
func TestUpdateDeleteInsertWhere(t *testing.T) {
	s := InMemory(Options{Base: "http://example.org/"})
	defer s.Close()

	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	b := term.IRI("http://example.org/b")
	c := term.IRI("http://example.org/c")
	mustInsert(t, s, []rawQuad{{a, p, b, nil}})

	err := s.Update(`DELETE { <http://example.org/a> <http://example.org/p> ?o }
INSERT { <http://example.org/a> <http://example.org/p> <http://example.org/c> }
WHERE { <http://example.org/a> <http://example.org/p> ?o }`, UpdateOptions{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	quads, err := s.QuadsForPattern(a, p, nil, nil)
	if err != nil {
		t.Fatalf("QuadsForPattern: %v", err)
	}
	if len(quads) != 1 || quads[0].Object.String() != c.String() {
		t.Fatalf("got %v, want one quad with object %v", quads, c)
	}
}

// TestQueryTimeoutIsResourceExceeded covers S6's error-kind taxonomy:
// a deadline that elapses before a query finishes surfaces as
// ErrResourceExceeded, never ErrCancelled, and the store stays usable
// afterward.
func TestQueryTimeoutIsResourceExceeded(t *testing.T) {
	s := InMemory(Options{Base: "http://example.org/"})
	defer s.Close()

	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	var quads []rawQuad
	for i := 0; i < 2000; i++ {
		quads = append(quads, rawQuad{a, p, term.NewLiteral(i), nil})
	}
	mustInsert(t, s, quads)

	res, err := s.Query(`SELECT * WHERE { ?s ?p ?o }`, QueryOptions{Timeout: time.Nanosecond})
	if err == nil {
		defer res.Solutions.Close()
		for {
			_, ok, nerr := res.Solutions.Next()
			if nerr != nil {
				err = nerr
				break
			}
			if !ok {
				break
			}
		}
	}
	if err == nil {
		t.Fatalf("expected a resource-exceeded error from an elapsed deadline")
	}
	if !errors.Is(err, ErrResourceExceeded) {
		t.Fatalf("got %v, want ErrResourceExceeded", err)
	}
	if errors.Is(err, ErrCancelled) {
		t.Fatalf("a timeout must not also report as ErrCancelled")
	}

	got, err := s.QuadsForPattern(nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("QuadsForPattern after timeout: %v", err)
	}
	if len(got) != len(quads) {
		t.Fatalf("got %d quads, want %d", len(got), len(quads))
	}
}

// TestQueryExplicitCancellation checks that a caller-cancelled context,
// as opposed to an elapsed Timeout, reports ErrCancelled.
func TestQueryExplicitCancellation(t *testing.T) {
	s := InMemory(Options{Base: "http://example.org/"})
	defer s.Close()

	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	var quads []rawQuad
	for i := 0; i < 300; i++ {
		quads = append(quads, rawQuad{a, p, term.NewLiteral(i), nil})
	}
	mustInsert(t, s, quads)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Query(`SELECT * WHERE { ?s ?p ?o }`, QueryOptions{Cancellation: ctx})
	if err == nil {
		defer res.Solutions.Close()
		for {
			_, ok, nerr := res.Solutions.Next()
			if nerr != nil {
				err = nerr
				break
			}
			if !ok {
				break
			}
		}
	}
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("got %v, want ErrCancelled", err)
	}
}
