package index

import (
	"testing"

	"github.com/boutros/quadstore/storage"
	"github.com/boutros/quadstore/storage/memkv"
	"github.com/boutros/quadstore/term"
)

func id(b byte) term.ID {
	var i term.ID
	i[0] = 0x01
	i[15] = b
	return i
}

func commit(t *testing.T, e storage.Engine, fn func(storage.Batch)) {
	t.Helper()
	b := e.NewBatch()
	fn(b)
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestPutIsVisibleAcrossAllSixOrders(t *testing.T) {
	e := memkv.New()
	q := term.Quad{Subject: id(1), Predicate: id(2), Object: id(3), Graph: term.DefaultGraph}

	commit(t, e, func(b storage.Batch) { Put(b, q) })

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Close()

	if !Has(snap, q) {
		t.Fatalf("Has: expected inserted quad to be present")
	}
	for _, order := range allOrders {
		if snap.Get(family(order), q.Key(order)) == nil {
			t.Errorf("missing index entry in family %s for order %v", family(order), order)
		}
	}
}

func TestDeleteRemovesFromAllSixOrders(t *testing.T) {
	e := memkv.New()
	q := term.Quad{Subject: id(1), Predicate: id(2), Object: id(3), Graph: term.DefaultGraph}
	commit(t, e, func(b storage.Batch) { Put(b, q) })
	commit(t, e, func(b storage.Batch) { Delete(b, q) })

	snap, _ := e.Snapshot()
	defer snap.Close()
	if Has(snap, q) {
		t.Fatalf("Has: expected deleted quad to be absent")
	}
	for _, order := range allOrders {
		if snap.Get(family(order), q.Key(order)) != nil {
			t.Errorf("index entry still present in family %s after delete", family(order))
		}
	}
}

func TestProbeBoundSubjectAndPredicate(t *testing.T) {
	e := memkv.New()
	a, b1, b2, p := id(1), id(2), id(3), id(4)
	q1 := term.Quad{Subject: a, Predicate: p, Object: b1, Graph: term.DefaultGraph}
	q2 := term.Quad{Subject: a, Predicate: p, Object: b2, Graph: term.DefaultGraph}
	q3 := term.Quad{Subject: b1, Predicate: p, Object: a, Graph: term.DefaultGraph}
	commit(t, e, func(batch storage.Batch) {
		Put(batch, q1)
		Put(batch, q2)
		Put(batch, q3)
	})

	snap, _ := e.Snapshot()
	defer snap.Close()

	got := Probe(snap, Pattern{Subject: &a, Predicate: &p})
	if len(got) != 2 {
		t.Fatalf("Probe(s,p bound) = %d quads, want 2", len(got))
	}
	for _, q := range got {
		if q.Subject != a || q.Predicate != p {
			t.Errorf("unexpected quad in result: %+v", q)
		}
	}
}

func TestProbeFullyUnboundEnumeratesEverything(t *testing.T) {
	e := memkv.New()
	var quads []term.Quad
	for i := byte(1); i <= 5; i++ {
		quads = append(quads, term.Quad{Subject: id(i), Predicate: id(10), Object: id(20 + i), Graph: term.DefaultGraph})
	}
	commit(t, e, func(batch storage.Batch) {
		for _, q := range quads {
			Put(batch, q)
		}
	})

	snap, _ := e.Snapshot()
	defer snap.Close()
	got := Probe(snap, Pattern{})
	if len(got) != len(quads) {
		t.Fatalf("Probe(unbound) = %d quads, want %d", len(got), len(quads))
	}
}

func TestGraphExistenceLifecycle(t *testing.T) {
	e := memkv.New()
	g := id(9)

	snap, _ := e.Snapshot()
	if GraphExists(snap, g) {
		t.Fatalf("GraphExists reported true before PutGraph")
	}
	snap.Close()

	commit(t, e, func(b storage.Batch) { PutGraph(b, g) })
	snap2, _ := e.Snapshot()
	if !GraphExists(snap2, g) {
		t.Fatalf("GraphExists reported false after PutGraph")
	}
	graphs := ListGraphs(snap2)
	if len(graphs) != 1 || graphs[0] != g {
		t.Fatalf("ListGraphs = %v, want [%v]", graphs, g)
	}
	snap2.Close()

	commit(t, e, func(b storage.Batch) { DeleteGraph(b, g) })
	snap3, _ := e.Snapshot()
	defer snap3.Close()
	if GraphExists(snap3, g) {
		t.Fatalf("GraphExists reported true after DeleteGraph")
	}
}

func TestChosenOrderPrefersGraphWhenBound(t *testing.T) {
	g := id(1)
	order := ChosenOrder(Pattern{Graph: &g})
	if order != term.OrderGSPO {
		t.Fatalf("ChosenOrder(graph only) = %v, want OrderGSPO", order)
	}
}
