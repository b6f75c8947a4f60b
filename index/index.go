// Package index implements the six ordered quad indexes and the
// pattern-probe planner (spec.md §3, §4.3, component C3), generalizing
// the teacher's three posting-list buckets (db.go's bucketSPO/
// bucketOSP/bucketPOS) to six key-existence column families over full
// (s,p,o,g) keys.
package index

import (
	"github.com/boutros/quadstore/storage"
	"github.com/boutros/quadstore/term"
)

// family returns the storage column family backing a given IndexOrder,
// matching storage.Families' naming.
func family(o term.IndexOrder) string {
	switch o {
	case term.OrderSPOG:
		return "spog"
	case term.OrderPOSG:
		return "posg"
	case term.OrderOSPG:
		return "ospg"
	case term.OrderGSPO:
		return "gspo"
	case term.OrderGPOS:
		return "gpos"
	case term.OrderGOSP:
		return "gosp"
	}
	panic("index: unknown order")
}

var allOrders = []term.IndexOrder{
	term.OrderSPOG, term.OrderPOSG, term.OrderOSPG,
	term.OrderGSPO, term.OrderGPOS, term.OrderGOSP,
}

// Put writes all six index keys for q into batch (spec.md §3 "Invariant
// (index coherence)": inserts touch all six atomically in one batch).
func Put(batch storage.Batch, q term.Quad) {
	for _, o := range allOrders {
		batch.Put(family(o), q.Key(o), nil)
	}
}

// Delete removes all six index keys for q from batch.
func Delete(batch storage.Batch, q term.Quad) {
	for _, o := range allOrders {
		batch.Delete(family(o), q.Key(o))
	}
}

// Has reports whether q is present, by checking the SPOG index (a
// point lookup; spec.md §4.3 "a fully bound pattern becomes a point
// lookup").
func Has(snap storage.Snapshot, q term.Quad) bool {
	return snap.Get(family(term.OrderSPOG), q.Key(term.OrderSPOG)) != nil
	// Note: existence in SPOG implies existence in all six by the
	// coherence invariant; this check does not verify the other five.
}

// PutGraph records g in the named-graph existence set, independent of
// whether any quad currently uses it (spec.md §3 auxiliary structure).
func PutGraph(batch storage.Batch, g term.ID) {
	batch.Put("graphs", g.Bytes(), nil)
}

// DeleteGraph removes g from the named-graph existence set.
func DeleteGraph(batch storage.Batch, g term.ID) {
	batch.Delete("graphs", g.Bytes())
}

// GraphExists reports whether g was recorded via PutGraph (and not
// since dropped), regardless of whether it currently holds any quads.
func GraphExists(snap storage.Snapshot, g term.ID) bool {
	return snap.Get("graphs", g.Bytes()) != nil
}

// ListGraphs returns every named graph id currently recorded, for
// SPARQL Update's DROP/CLEAR NAMED|ALL and GRAPH-ref enumeration.
func ListGraphs(snap storage.Snapshot) []term.ID {
	c := snap.Cursor("graphs", nil)
	defer c.Close()
	var out []term.ID
	for ok := c.Seek(nil); ok; ok = c.Next() {
		var id term.ID
		copy(id[:], c.Key())
		out = append(out, id)
	}
	return out
}
