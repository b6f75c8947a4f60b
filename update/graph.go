package update

import (
	"fmt"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/index"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/txn"
)

func probePatternForGraph(g term.ID) index.Pattern {
	return index.Pattern{Graph: &g}
}

// resolveGraphTargets returns the graph ids ref denotes: a bound
// literal id for a specific graph, DefaultGraph for DEFAULT, every
// recorded named graph for NAMED, and DefaultGraph plus every named
// graph for ALL.
func resolveGraphTargets(wtx *txn.WriteTxn, ref algebra.GraphRef) ([]term.ID, error) {
	switch {
	case ref.Default:
		return []term.ID{term.DefaultGraph}, nil
	case ref.Named:
		return wtx.ListGraphs(), nil
	case ref.All:
		out := append([]term.ID{term.DefaultGraph}, wtx.ListGraphs()...)
		return out, nil
	case ref.Graph != nil:
		id, ok := wtx.EncodeExisting(*ref.Graph)
		if !ok {
			return nil, nil
		}
		return []term.ID{id}, nil
	default:
		return nil, fmt.Errorf("update: empty graph reference")
	}
}

// resolveSingleGraph resolves a GraphRef naming exactly one graph (the
// shape LOAD/ADD/MOVE/COPY's source and destination always take:
// DEFAULT or a specific IRI, never NAMED/ALL), encoding a not-yet-seen
// IRI so it can be written to.
func resolveSingleGraph(wtx *txn.WriteTxn, ref algebra.GraphRef) (term.ID, error) {
	if ref.Default {
		return term.DefaultGraph, nil
	}
	if ref.Graph == nil {
		return term.ID{}, fmt.Errorf("update: graph reference must name DEFAULT or a specific graph")
	}
	return wtx.Encode(*ref.Graph)
}

func clearGraphs(wtx *txn.WriteTxn, ref algebra.GraphRef, silent bool) error {
	targets, err := resolveGraphTargets(wtx, ref)
	if err != nil {
		if silent {
			return nil
		}
		return err
	}
	if len(targets) == 0 && !silent && !ref.Named && !ref.All {
		return fmt.Errorf("update: CLEAR: graph not found")
	}
	for _, g := range targets {
		// DropGraph is already graph-scoped (it probes Pattern{Graph:
		// &g}), so it is safe to call for DefaultGraph too: it deletes
		// only default-graph quads and its DeleteGraph call is a
		// harmless no-op on a key that was never set.
		if err := wtx.DropGraph(g); err != nil {
			return err
		}
		if g != term.DefaultGraph {
			// CLEAR empties a graph but the graph itself keeps
			// existing, unlike DROP.
			if err := wtx.InsertNamedGraph(g); err != nil {
				return err
			}
		}
	}
	return nil
}

func dropGraphs(wtx *txn.WriteTxn, ref algebra.GraphRef, silent bool) error {
	targets, err := resolveGraphTargets(wtx, ref)
	if err != nil {
		if silent {
			return nil
		}
		return err
	}
	if len(targets) == 0 && !silent && !ref.Named && !ref.All {
		return fmt.Errorf("update: DROP: graph not found")
	}
	for _, g := range targets {
		if err := wtx.DropGraph(g); err != nil {
			return err
		}
	}
	return nil
}

func createGraph(wtx *txn.WriteTxn, iri term.IRI, silent bool) error {
	id, err := wtx.Encode(iri)
	if err != nil {
		return err
	}
	if wtx.GraphExists(id) {
		if silent {
			return nil
		}
		return fmt.Errorf("update: CREATE: graph %s already exists", iri)
	}
	return wtx.InsertNamedGraph(id)
}

// copyGraph implements the shared ADD/COPY/MOVE shape: copy every quad
// from source into destination (re-graphing each copied quad to
// destination), optionally clearing destination first (COPY/MOVE but
// not ADD) and, for MOVE, dropping source afterward. A no-op when
// source equals destination, per SPARQL Update's "the results are
// pending on the store supporting noop" footnote.
func copyGraph(wtx *txn.WriteTxn, srcRef, dstRef algebra.GraphRef, silent, clearDest, removeSource bool) error {
	src, err := resolveSingleGraph(wtx, srcRef)
	if err != nil {
		if silent {
			return nil
		}
		return err
	}
	dst, err := resolveSingleGraph(wtx, dstRef)
	if err != nil {
		if silent {
			return nil
		}
		return err
	}
	if src == dst {
		return nil
	}

	quads := wtx.Probe(probePatternForGraph(src))
	if clearDest {
		if err := wtx.DropGraph(dst); err != nil {
			return err
		}
	}
	if dst != term.DefaultGraph {
		if err := wtx.InsertNamedGraph(dst); err != nil {
			return err
		}
	}
	for _, q := range quads {
		q.Graph = dst
		if err := wtx.Insert(q); err != nil {
			return err
		}
	}
	if removeSource {
		if err := wtx.DropGraph(src); err != nil {
			return err
		}
	}
	return nil
}
