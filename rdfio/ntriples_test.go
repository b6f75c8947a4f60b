package rdfio

import (
	"io"
	"strings"
	"testing"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

func decodeAll(t *testing.T, input string, rdfStar bool) []algebra.GroundQuad {
	t.Helper()
	dec := NewDecoder(strings.NewReader(input), "")
	dec.RDFStar = rdfStar
	var got []algebra.GroundQuad
	for {
		q, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, q)
	}
	return got
}

func TestDecodeBasic(t *testing.T) {
	tests := []struct {
		input string
		want  []algebra.GroundQuad
	}{
		{"<s> <p> <o> .", []algebra.GroundQuad{
			{Subject: term.IRI("s"), Predicate: term.IRI("p"), Object: term.IRI("o")},
		}},
		{`<s> <p> "abc" .`, []algebra.GroundQuad{
			{Subject: term.IRI("s"), Predicate: term.IRI("p"), Object: term.NewStringLiteral("abc")},
		}},
		{`<s> <p> "1"^^<http://www.w3.org/2001/XMLSchema#int> .`, []algebra.GroundQuad{
			{Subject: term.IRI("s"), Predicate: term.IRI("p"), Object: term.NewTypedLiteral("1", "http://www.w3.org/2001/XMLSchema#int")},
		}},
		{`<s> <p> "hi"@en .`, []algebra.GroundQuad{
			{Subject: term.IRI("s"), Predicate: term.IRI("p"), Object: term.NewLangLiteral("hi", "en")},
		}},
		{`<s> <p> "a", "b" .`, []algebra.GroundQuad{
			{Subject: term.IRI("s"), Predicate: term.IRI("p"), Object: term.NewStringLiteral("a")},
			{Subject: term.IRI("s"), Predicate: term.IRI("p"), Object: term.NewStringLiteral("b")},
		}},
		{`<s> <p1> "a" ; <p2> "b" .`, []algebra.GroundQuad{
			{Subject: term.IRI("s"), Predicate: term.IRI("p1"), Object: term.NewStringLiteral("a")},
			{Subject: term.IRI("s"), Predicate: term.IRI("p2"), Object: term.NewStringLiteral("b")},
		}},
		{`<s> <p> <o> <g> .`, []algebra.GroundQuad{
			{Subject: term.IRI("s"), Predicate: term.IRI("p"), Object: term.IRI("o"), Graph: term.IRI("g")},
		}},
		{`_:b1 <p> _:b2 .`, []algebra.GroundQuad{
			{Subject: term.BlankNode("b1"), Predicate: term.IRI("p"), Object: term.BlankNode("b2")},
		}},
	}

	for _, test := range tests {
		got := decodeAll(t, test.input, false)
		if len(got) != len(test.want) {
			t.Fatalf("%q: got %d quads, want %d", test.input, len(got), len(test.want))
		}
		for i := range got {
			if got[i].Subject != test.want[i].Subject ||
				got[i].Predicate != test.want[i].Predicate ||
				got[i].Object != test.want[i].Object ||
				got[i].Graph != test.want[i].Graph {
				t.Errorf("%q: quad %d = %+v, want %+v", test.input, i, got[i], test.want[i])
			}
		}
	}
}

func TestDecodePrefixedNames(t *testing.T) {
	input := `@prefix ex: <http://example.org/> .
ex:s ex:p ex:o .`
	got := decodeAll(t, input, false)
	if len(got) != 1 {
		t.Fatalf("got %d quads, want 1", len(got))
	}
	q := got[0]
	if q.Subject != term.IRI("http://example.org/s") {
		t.Errorf("subject = %v", q.Subject)
	}
	if q.Object != term.IRI("http://example.org/o") {
		t.Errorf("object = %v", q.Object)
	}
}

func TestDecodeRDFStar(t *testing.T) {
	input := `<< <s> <p> <o> >> <meta> "trusted" .`
	got := decodeAll(t, input, true)
	if len(got) != 1 {
		t.Fatalf("got %d quads, want 1", len(got))
	}
	qt, ok := got[0].Subject.(term.QuotedTriple)
	if !ok {
		t.Fatalf("subject is %T, want term.QuotedTriple", got[0].Subject)
	}
	if qt.Subject != term.IRI("s") || qt.Predicate != term.IRI("p") || qt.Object != term.IRI("o") {
		t.Errorf("quoted triple = %+v", qt)
	}
}

func TestDecodeRDFStarDisabled(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`<< <s> <p> <o> >> <meta> "trusted" .`), "")
	if _, err := dec.Decode(); err == nil {
		t.Fatal("expected error decoding quoted triple with RDFStar disabled")
	}
}
