// Package update executes SPARQL Update requests (spec.md §4.10,
// component C10) against a txn.WriteTxn. Grounded on the teacher's
// db.go Insert/Delete/ImportGraph (the shape of "resolve terms to ids,
// then touch the six indexes"), generalized from a single-graph
// triple store to the quad-and-dataset-level operations SPARQL Update
// adds.
package update

import (
	"fmt"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/txn"
)

// Executor carries the context an update request needs beyond the
// write transaction itself: the environment WHERE-clause evaluation
// runs under, and an optional source for LOAD.
type Executor struct {
	Env    Env
	Source QuadSource // nil: LOAD fails unless Silent
}

// Env mirrors exec.Env's query-time knobs, duplicated here rather than
// imported so this package does not need to depend on exec's Compile
// signature for anything but DeleteInsert's WHERE evaluation (wired in
// modify.go, the only file that imports exec).
type Env struct {
	Base    term.IRI
	Service algebra.ServiceClient
}

// Run applies a sequence of updates as one transaction (spec.md §4.10:
// "a sequence of update statements submitted together is one
// transaction"): every update runs against wtx, none of it durable
// until the caller commits. An error aborts the whole sequence; the
// caller should Rollback wtx rather than Commit a partial effect.
func (ex *Executor) Run(wtx *txn.WriteTxn, updates []algebra.Update) error {
	for i, u := range updates {
		if err := ex.run1(wtx, u); err != nil {
			return fmt.Errorf("update: statement %d: %w", i, err)
		}
	}
	return nil
}

func (ex *Executor) run1(wtx *txn.WriteTxn, u algebra.Update) error {
	switch u := u.(type) {
	case algebra.InsertData:
		return ex.insertData(wtx, u)
	case algebra.DeleteData:
		return ex.deleteData(wtx, u)
	case algebra.DeleteInsert:
		return ex.deleteInsert(wtx, u)
	case algebra.Load:
		return ex.load(wtx, u)
	case algebra.Clear:
		return clearGraphs(wtx, u.Graph, u.Silent)
	case algebra.Drop:
		return dropGraphs(wtx, u.Graph, u.Silent)
	case algebra.Create:
		return createGraph(wtx, u.Graph, u.Silent)
	case algebra.Add:
		return copyGraph(wtx, u.Source, u.Destination, u.Silent, false, false)
	case algebra.Copy:
		return copyGraph(wtx, u.Source, u.Destination, u.Silent, true, false)
	case algebra.Move:
		return copyGraph(wtx, u.Source, u.Destination, u.Silent, true, true)
	default:
		return fmt.Errorf("update: unsupported update %T", u)
	}
}

// groundQuadID resolves a GroundQuad's terms to a term.Quad, writing
// new dictionary entries as needed (spec.md §4.10's INSERT DATA/DELETE
// DATA operate on a fixed, variable-free set of quads).
func groundQuadID(wtx *txn.WriteTxn, q algebra.GroundQuad) (term.Quad, error) {
	s, err := wtx.Encode(q.Subject)
	if err != nil {
		return term.Quad{}, err
	}
	p, err := wtx.Encode(q.Predicate)
	if err != nil {
		return term.Quad{}, err
	}
	o, err := wtx.Encode(q.Object)
	if err != nil {
		return term.Quad{}, err
	}
	g := term.DefaultGraph
	if q.Graph != nil {
		g, err = wtx.Encode(q.Graph)
		if err != nil {
			return term.Quad{}, err
		}
	}
	return term.Quad{Subject: s, Predicate: p, Object: o, Graph: g}, nil
}

func (ex *Executor) insertData(wtx *txn.WriteTxn, u algebra.InsertData) error {
	for _, gq := range u.Quads {
		q, err := groundQuadID(wtx, gq)
		if err != nil {
			return err
		}
		if q.Graph != term.DefaultGraph {
			if err := wtx.InsertNamedGraph(q.Graph); err != nil {
				return err
			}
		}
		if err := wtx.Insert(q); err != nil {
			return err
		}
	}
	return nil
}

// deleteData removes a ground set of quads; a quad whose terms were
// never encoded (so cannot possibly be stored) is simply not found and
// skipped, matching Delete/Insert idempotence (spec.md §8 property 6).
func (ex *Executor) deleteData(wtx *txn.WriteTxn, u algebra.DeleteData) error {
	for _, gq := range u.Quads {
		s, ok := wtx.EncodeExisting(gq.Subject)
		if !ok {
			continue
		}
		p, ok := wtx.EncodeExisting(gq.Predicate)
		if !ok {
			continue
		}
		o, ok := wtx.EncodeExisting(gq.Object)
		if !ok {
			continue
		}
		g := term.DefaultGraph
		if gq.Graph != nil {
			g, ok = wtx.EncodeExisting(gq.Graph)
			if !ok {
				continue
			}
		}
		if err := wtx.Delete(term.Quad{Subject: s, Predicate: p, Object: o, Graph: g}); err != nil {
			return err
		}
	}
	return nil
}
