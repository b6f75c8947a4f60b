package index

import (
	"bytes"

	"github.com/boutros/quadstore/storage"
	"github.com/boutros/quadstore/term"
)

// Pattern is a quad pattern with optionally-bound positions. A nil
// pointer means unbound.
type Pattern struct {
	Subject, Predicate, Object, Graph *term.ID
}

// spoBound reports how many of s,p,o are bound, used to rank candidate
// indexes by prefix length.
func (p Pattern) spoBound() int {
	n := 0
	if p.Subject != nil {
		n++
	}
	if p.Predicate != nil {
		n++
	}
	if p.Object != nil {
		n++
	}
	return n
}

// choosePlan implements spec.md §4.3's deterministic, statistics-free
// index-choice policy:
//  1. graph bound -> prefer a G… index, longest bound prefix of s/p/o
//     after the graph position wins;
//  2. else pick the index with the longest bound prefix among
//     SPOG/POSG/OSPG;
//  3. ties broken by a fixed order, so the choice is reproducible.
func choosePlan(p Pattern) term.IndexOrder {
	if p.Graph != nil {
		switch {
		case p.Subject != nil && p.Predicate != nil && p.Object != nil:
			return term.OrderGSPO
		case p.Subject != nil && p.Predicate != nil:
			return term.OrderGSPO
		case p.Predicate != nil && p.Object != nil:
			return term.OrderGPOS
		case p.Object != nil && p.Subject != nil:
			return term.OrderGOSP
		case p.Subject != nil:
			return term.OrderGSPO
		case p.Predicate != nil:
			return term.OrderGPOS
		case p.Object != nil:
			return term.OrderGOSP
		default:
			return term.OrderGSPO // whole-graph enumeration
		}
	}

	switch {
	case p.Subject != nil && p.Predicate != nil:
		return term.OrderSPOG
	case p.Predicate != nil && p.Object != nil:
		return term.OrderPOSG
	case p.Object != nil && p.Subject != nil:
		return term.OrderOSPG
	case p.Subject != nil:
		return term.OrderSPOG
	case p.Predicate != nil:
		return term.OrderPOSG
	case p.Object != nil:
		return term.OrderOSPG
	default:
		return term.OrderSPOG // fully unbound: fixed tie-break default
	}
}

// prefixFor returns the byte prefix of order's key space that matches
// the bound positions of p, given the chosen order.
func prefixFor(order term.IndexOrder, p Pattern) []byte {
	// Build the positions in the order's own arrangement, stopping at
	// the first unbound one (index keys only support prefix probing,
	// not arbitrary position masks).
	var seq []*term.ID
	switch order {
	case term.OrderSPOG:
		seq = []*term.ID{p.Subject, p.Predicate, p.Object, p.Graph}
	case term.OrderPOSG:
		seq = []*term.ID{p.Predicate, p.Object, p.Subject, p.Graph}
	case term.OrderOSPG:
		seq = []*term.ID{p.Object, p.Subject, p.Predicate, p.Graph}
	case term.OrderGSPO:
		seq = []*term.ID{p.Graph, p.Subject, p.Predicate, p.Object}
	case term.OrderGPOS:
		seq = []*term.ID{p.Graph, p.Predicate, p.Object, p.Subject}
	case term.OrderGOSP:
		seq = []*term.ID{p.Graph, p.Object, p.Subject, p.Predicate}
	}
	var prefix []byte
	for _, id := range seq {
		if id == nil {
			break
		}
		prefix = append(prefix, id.Bytes()...)
	}
	return prefix
}

// Match is one (s,p,o,g) solution to a Probe call.
type Match struct {
	Quad term.Quad
}

// Probe returns every stored quad matching pattern p, using the
// index-choice policy above (spec.md §4.3). The returned slice is a
// materialized result, since the underlying storage.Cursor is only
// valid for the lifetime of its snapshot; callers on a hot path
// should prefer ProbeFunc when they can stream.
func Probe(snap storage.Snapshot, p Pattern) []term.Quad {
	var out []term.Quad
	ProbeFunc(snap, p, func(q term.Quad) bool {
		out = append(out, q)
		return true
	})
	return out
}

// ProbeFunc calls fn for every quad matching p, in the chosen index's
// key order, stopping early if fn returns false.
func ProbeFunc(snap storage.Snapshot, p Pattern, fn func(term.Quad) bool) {
	order := choosePlan(p)
	prefix := prefixFor(order, p)

	cur := snap.Cursor(family(order), prefix)
	defer cur.Close()

	if !cur.Seek(prefix) {
		return
	}
	for {
		key := cur.Key()
		if !bytes.HasPrefix(key, prefix) {
			return
		}
		q := term.QuadFromKey(order, key)
		if !fn(q) {
			return
		}
		if !cur.Next() {
			return
		}
	}
}

// ChosenOrder exposes the planner's decision for a pattern, used by
// the optimizer (C8) to estimate relative selectivity between sibling
// triple patterns without touching storage.
func ChosenOrder(p Pattern) term.IndexOrder {
	return choosePlan(p)
}
