package rdfio

import (
	"strings"
	"testing"

	"github.com/boutros/quadstore/storage/memkv"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/txn"
)

func TestWriteQuadsRoundTrip(t *testing.T) {
	store := txn.NewStore(memkv.New(), "")
	wtx, err := store.BeginWrite()
	if err != nil {
		t.Fatal(err)
	}
	s, err := wtx.Encode(term.IRI("http://x/s"))
	if err != nil {
		t.Fatal(err)
	}
	p, err := wtx.Encode(term.IRI("http://x/p"))
	if err != nil {
		t.Fatal(err)
	}
	o, err := wtx.Encode(term.NewStringLiteral("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if err := wtx.Insert(term.Quad{Subject: s, Predicate: p, Object: o, Graph: term.DefaultGraph}); err != nil {
		t.Fatal(err)
	}
	g, err := wtx.Encode(term.IRI("http://x/g"))
	if err != nil {
		t.Fatal(err)
	}
	if err := wtx.InsertNamedGraph(g); err != nil {
		t.Fatal(err)
	}
	if err := wtx.Insert(term.Quad{Subject: s, Predicate: p, Object: o, Graph: g}); err != nil {
		t.Fatal(err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatal(err)
	}

	rtx, err := store.BeginRead()
	if err != nil {
		t.Fatal(err)
	}
	defer rtx.Close()

	var buf strings.Builder
	if err := WriteQuads(&buf, rtx, DumpOptions{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "<http://x/s> <http://x/p> \"hello\" .") {
		t.Errorf("missing default-graph quad in dump:\n%s", out)
	}
	if !strings.Contains(out, "<http://x/s> <http://x/p> \"hello\" <http://x/g> .") {
		t.Errorf("missing named-graph quad in dump:\n%s", out)
	}
}
