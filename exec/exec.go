// Package exec compiles an optimized algebra.Node into a pull-based
// solution iterator tree and runs it against a txn.ReadTxn (spec.md
// §4.9, component C9). Grounded on the teacher's cursor shape
// (storage.Cursor's Seek/Next/Key/Value) and on erigon's cancellation-
// token-through-iterators style: every Iterator.Next call threads a
// *limits.Token so a caller can cut a running query short without
// tearing down half-open state.
package exec

import (
	"errors"
	"fmt"
	"time"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/limits"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/txn"
)

// ErrCancelled is returned by Iterator.Next once a limits.Token has
// been observed cancelled or expired (spec.md §4.11).
var ErrCancelled = errors.New("exec: query cancelled")

// Row is one solution mapping: variable -> bound term id. A variable
// absent from the map is unbound for that row.
type Row map[algebra.Var]term.ID

// Clone returns a shallow copy of r, since iterators that branch
// (Join, LeftJoin) must not let one branch's extension mutate the
// other's view of a shared row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// compatible reports whether r and other agree on every variable they
// share (SPARQL's join condition).
func (r Row) compatible(other Row) bool {
	for k, v := range other {
		if existing, ok := r[k]; ok && existing != v {
			return false
		}
	}
	return true
}

// merge returns a new row with every binding from r and other; callers
// must have already checked compatible.
func (r Row) merge(other Row) Row {
	out := r.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Iterator is a pull-based solution source (spec.md §4.9 "pull-based
// solution iterator tree").
type Iterator interface {
	// Next advances to the next solution, reporting whether one was
	// found. tok is checked at a cadence set by the iterator's own
	// limits.Checkpoint, not on every call, to keep hot loops cheap.
	Next(tok *limits.Token) (bool, error)
	// Row returns the current solution; valid only after Next
	// returned (true, nil).
	Row() Row
	Close()
}

// Env carries the compile-time context every node needs: the
// transaction to probe/decode against and the resource caps queries
// run under (spec.md §4.11).
type Env struct {
	Rtx  *txn.ReadTxn
	Caps limits.Caps
	// Base resolves relative IRIs produced by the IRI()/URI() builtin.
	Base term.IRI
	// Now is the fixed timestamp NOW() returns; SPARQL requires every
	// call to NOW() within one query to return the same value, so the
	// caller stamps this once at compile time rather than exec calling
	// time.Now() itself.
	Now time.Time
	// Service is consulted by SERVICE clauses; nil means no federated
	// query support is configured.
	Service algebra.ServiceClient
}

// Compile turns an optimized algebra.Node into an Iterator. Terms
// bound in the algebra tree are resolved to term.ID here, via
// EncodeExisting: a bound term absent from the dictionary can never
// match anything stored, so its pattern compiles straight to an empty
// iterator rather than failing.
func Compile(env *Env, n algebra.Node) (Iterator, error) {
	switch n := n.(type) {
	case nil:
		return &emptyIter{}, nil
	case algebra.QuadPattern:
		return compilePattern(env, n)
	case algebra.Values:
		return compileValues(env, n)
	case algebra.Path:
		return compilePath(env, n)
	case algebra.Join:
		return compileJoin(env, n)
	case algebra.LeftJoin:
		return compileLeftJoin(env, n)
	case algebra.Union:
		return compileUnion(env, n)
	case algebra.Minus:
		return compileMinus(env, n)
	case algebra.Filter:
		return compileFilter(env, n)
	case algebra.Extend:
		return compileExtend(env, n)
	case algebra.Project:
		return compileProject(env, n)
	case algebra.Distinct:
		return compileDistinct(env, n)
	case algebra.Reduced:
		return compileReduced(env, n)
	case algebra.Slice:
		return compileSlice(env, n)
	case algebra.OrderBy:
		return compileOrderBy(env, n)
	case algebra.Group:
		return compileGroup(env, n)
	case algebra.Service:
		return compileService(env, n)
	}
	return nil, fmt.Errorf("exec: unsupported algebra node %T", n)
}

// emptyIter never yields a solution.
type emptyIter struct{}

func (*emptyIter) Next(*limits.Token) (bool, error) { return false, nil }
func (*emptyIter) Row() Row                         { return nil }
func (*emptyIter) Close()                           {}

// singleRowIter yields exactly one row (the identity element for an
// empty {} group graph pattern).
type singleRowIter struct {
	row  Row
	done bool
}

func (it *singleRowIter) Next(*limits.Token) (bool, error) {
	if it.done {
		return false, nil
	}
	it.done = true
	return true, nil
}
func (it *singleRowIter) Row() Row { return it.row }
func (it *singleRowIter) Close()   {}

// resolveBound resolves a TermOrVar's bound term to an id, returning
// ok=false when the term is unbound (a variable) or not present in
// the dictionary.
func resolveBound(env *Env, t algebra.TermOrVar) (term.ID, bool) {
	if t.IsVar() {
		return term.ID{}, false
	}
	if t.Bound == nil {
		return term.DefaultGraph, true
	}
	return env.Rtx.EncodeExisting(t.Bound)
}

// drain materializes every row of it into a slice, respecting
// caps.MaxBindings (spec.md §4.11).
func drain(env *Env, it Iterator, tok *limits.Token) ([]Row, error) {
	defer it.Close()
	var out []Row
	for {
		ok, err := it.Next(tok)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if env.Caps.MaxBindings != 0 && uint64(len(out)) >= env.Caps.MaxBindings {
			return nil, &limits.ResourceExceeded{Cap: "max_bindings", Limit: env.Caps.MaxBindings, Got: uint64(len(out)) + 1}
		}
		out = append(out, it.Row().Clone())
	}
}

// deferredIter defers draining input until its own first Next call,
// so the drain is governed by the caller's real token instead of a
// throwaway one minted at Compile time — Compile runs before any
// QueryOptions.Timeout/.Cancellation deadline exists (spec.md §4.11:
// "a cancellation token is passed top-down through every iterator").
// build turns the fully-drained rows into the operator's actual
// output iterator (Distinct, OrderBy, Group all buffer this way).
type deferredIter struct {
	env   *Env
	input Iterator
	build func(rows []Row) (Iterator, error)

	built bool
	out   Iterator
	err   error
}

func (it *deferredIter) Next(tok *limits.Token) (bool, error) {
	if !it.built {
		it.built = true
		rows, err := drain(it.env, it.input, tok)
		if err != nil {
			it.err = err
		} else {
			it.out, it.err = it.build(rows)
		}
	}
	if it.err != nil {
		return false, it.err
	}
	return it.out.Next(tok)
}

func (it *deferredIter) Row() Row {
	if it.out == nil {
		return nil
	}
	return it.out.Row()
}

func (it *deferredIter) Close() {
	if it.out != nil {
		it.out.Close()
		return
	}
	if !it.built {
		it.input.Close()
	}
}

// sliceIter turns a materialized slice back into an Iterator,
// for operators (Distinct, OrderBy, Group) that must see every row
// before producing their first output row.
type sliceIter struct {
	rows []Row
	pos  int
}

func (it *sliceIter) Next(*limits.Token) (bool, error) {
	if it.pos >= len(it.rows) {
		return false, nil
	}
	it.pos++
	return true, nil
}
func (it *sliceIter) Row() Row { return it.rows[it.pos-1] }
func (it *sliceIter) Close()   {}
