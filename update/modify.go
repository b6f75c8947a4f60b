package update

import (
	"time"

	"github.com/google/uuid"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/exec"
	"github.com/boutros/quadstore/limits"
	"github.com/boutros/quadstore/optimize"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/txn"
)

// deleteInsert evaluates Where against the pre-update snapshot
// (txn.WriteTxn.ReadView, which shares the write transaction's pinned
// snapshot rather than opening a new one, so the two agree on exactly
// which writes are "pre-update") and, for each solution, deletes the
// DeleteTemplate's instantiations before inserting the InsertTemplate's
// (spec.md §4.10 "Modify": delete before insert, per solution).
func (ex *Executor) deleteInsert(wtx *txn.WriteTxn, u algebra.DeleteInsert) error {
	rtx := wtx.ReadView()
	defer rtx.Close()

	env := &exec.Env{
		Rtx:     rtx,
		Caps:    limits.Caps{},
		Base:    ex.Env.Base,
		Now:     time.Now(),
		Service: ex.Env.Service,
	}

	plan := optimize.Optimize(u.Where)
	it, err := exec.Compile(env, plan)
	if err != nil {
		return err
	}
	defer it.Close()

	tok := limits.NewToken()
	for {
		ok, err := it.Next(tok)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		row := it.Row()

		for _, t := range u.DeleteTemplate {
			q, ok, err := resolveDeleteTerm4(wtx, t, row)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := wtx.Delete(q); err != nil {
				return err
			}
		}

		blanks := map[term.BlankNode]term.BlankNode{}
		for _, t := range u.InsertTemplate {
			q, ok, err := resolveInsertTerm4(wtx, ex.Env.Base, t, row, blanks)
			if err != nil {
				return err
			}
			if !ok {
				continue
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
	}
}

// resolveDeleteTerm4 instantiates a full quad from a DELETE template
// and one WHERE solution row, skipping (ok=false) when any position is
// unbound: a variable the WHERE clause left out of this particular
// row, or a bound term never seen before (so it cannot match anything
// stored).
func resolveDeleteTerm4(wtx *txn.WriteTxn, t algebra.QuadTemplate, row exec.Row) (term.Quad, bool, error) {
	s, ok, err := resolveDeleteTerm(wtx, t.Subject, row)
	if !ok || err != nil {
		return term.Quad{}, false, err
	}
	p, ok, err := resolveDeleteTerm(wtx, t.Predicate, row)
	if !ok || err != nil {
		return term.Quad{}, false, err
	}
	o, ok, err := resolveDeleteTerm(wtx, t.Object, row)
	if !ok || err != nil {
		return term.Quad{}, false, err
	}
	g := term.DefaultGraph
	if t.Graph.IsVar() || t.Graph.Bound != nil {
		gid, ok, err := resolveDeleteTerm(wtx, t.Graph, row)
		if err != nil {
			return term.Quad{}, false, err
		}
		if ok {
			g = gid
		}
	}
	return term.Quad{Subject: s, Predicate: p, Object: o, Graph: g}, true, nil
}

func resolveDeleteTerm(wtx *txn.WriteTxn, t algebra.TermOrVar, row exec.Row) (term.ID, bool, error) {
	if t.IsVar() {
		id, ok := row[t.Variable]
		return id, ok, nil
	}
	id, ok := wtx.EncodeExisting(t.Bound)
	return id, ok, nil
}

// resolveInsertTerm4 mirrors exec/construct.go's instantiateTemplate,
// but against a WriteTxn so a bound term never seen before gets a
// fresh dictionary entry instead of being treated as unmatchable.
func resolveInsertTerm4(wtx *txn.WriteTxn, base term.IRI, t algebra.QuadTemplate, row exec.Row, blanks map[term.BlankNode]term.BlankNode) (term.Quad, bool, error) {
	s, ok, err := resolveInsertTerm(wtx, base, t.Subject, row, blanks)
	if !ok || err != nil {
		return term.Quad{}, false, err
	}
	p, ok, err := resolveInsertTerm(wtx, base, t.Predicate, row, blanks)
	if !ok || err != nil {
		return term.Quad{}, false, err
	}
	o, ok, err := resolveInsertTerm(wtx, base, t.Object, row, blanks)
	if !ok || err != nil {
		return term.Quad{}, false, err
	}
	g := term.DefaultGraph
	if t.Graph.IsVar() || t.Graph.Bound != nil {
		gid, ok, err := resolveInsertTerm(wtx, base, t.Graph, row, blanks)
		if err != nil {
			return term.Quad{}, false, err
		}
		if ok {
			g = gid
		}
	}
	return term.Quad{Subject: s, Predicate: p, Object: o, Graph: g}, true, nil
}

func resolveInsertTerm(wtx *txn.WriteTxn, base term.IRI, t algebra.TermOrVar, row exec.Row, blanks map[term.BlankNode]term.BlankNode) (term.ID, bool, error) {
	if t.IsVar() {
		id, ok := row[t.Variable]
		return id, ok, nil
	}
	if bn, ok := t.Bound.(term.BlankNode); ok {
		fresh, ok := blanks[bn]
		if !ok {
			fresh = term.BlankNode(uuid.NewString())
			blanks[bn] = fresh
		}
		if id, ok := term.EncodeInline(fresh, base); ok {
			return id, true, nil
		}
	}
	id, err := wtx.Encode(t.Bound)
	return id, true, err
}
