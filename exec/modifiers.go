package exec

import (
	"sort"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/limits"
	"github.com/boutros/quadstore/term"
)

type filterIter struct {
	input Iterator
	cond  algebra.Expr
	env   *Env
	cur   Row
}

func compileFilter(env *Env, n algebra.Filter) (Iterator, error) {
	in, err := Compile(env, n.Input)
	if err != nil {
		return nil, err
	}
	return &filterIter{input: in, cond: n.Cond, env: env}, nil
}

func (it *filterIter) Next(tok *limits.Token) (bool, error) {
	for {
		ok, err := it.input.Next(tok)
		if err != nil || !ok {
			return false, err
		}
		row := it.input.Row()
		b, err := ebv(evalExpr(&evalCtx{env: it.env, row: row}, it.cond))
		if err != nil {
			continue // a type-erroring condition rejects the row (spec.md §4.9), not a hard failure
		}
		if b {
			it.cur = row
			return true, nil
		}
	}
}
func (it *filterIter) Row() Row { return it.cur }
func (it *filterIter) Close()   { it.input.Close() }

// extendIter implements BIND: evaluation errors leave Var unbound
// rather than dropping the row (spec.md §4.9 "BIND errors leave the
// variable unbound rather than failing the whole solution").
type extendIter struct {
	input Iterator
	v     algebra.Var
	expr  algebra.Expr
	env   *Env
	cur   Row
}

func compileExtend(env *Env, n algebra.Extend) (Iterator, error) {
	in, err := Compile(env, n.Input)
	if err != nil {
		return nil, err
	}
	return &extendIter{input: in, v: n.Var, expr: n.Expr, env: env}, nil
}

func (it *extendIter) Next(tok *limits.Token) (bool, error) {
	ok, err := it.input.Next(tok)
	if err != nil || !ok {
		return false, err
	}
	row := it.input.Row().Clone()
	v := evalExpr(&evalCtx{env: it.env, row: row}, it.expr)
	if v.Err == nil && !v.Unbound {
		// Most computed literals (numbers, booleans, short strings) are
		// inline-encodable with no storage lookup at all; only a large,
		// content-addressed term needs to already be in the dictionary,
		// and one that was never stored can never join with anything
		// stored anyway, so it is left unbound rather than failing BIND.
		if id, ok := term.EncodeInline(v.Term, it.env.Base); ok {
			row[it.v] = id
		} else if id, ok := it.env.Rtx.EncodeExisting(v.Term); ok {
			row[it.v] = id
		}
	}
	it.cur = row
	return true, nil
}
func (it *extendIter) Row() Row { return it.cur }
func (it *extendIter) Close()   { it.input.Close() }

type projectIter struct {
	input Iterator
	vars  []algebra.Var
	cur   Row
}

func compileProject(env *Env, n algebra.Project) (Iterator, error) {
	in, err := Compile(env, n.Input)
	if err != nil {
		return nil, err
	}
	return &projectIter{input: in, vars: n.Vars}, nil
}

func (it *projectIter) Next(tok *limits.Token) (bool, error) {
	ok, err := it.input.Next(tok)
	if err != nil || !ok {
		return false, err
	}
	full := it.input.Row()
	out := make(Row, len(it.vars))
	for _, v := range it.vars {
		if id, ok := full[v]; ok {
			out[v] = id
		}
	}
	it.cur = out
	return true, nil
}
func (it *projectIter) Row() Row { return it.cur }
func (it *projectIter) Close()   { it.input.Close() }

// compileDistinct and compileReduced share an implementation: a
// hash-set-deduplicating materialization. REDUCED is permitted to
// forget duplicates across a wider window than its actual dedup set,
// but forgetting nothing is always a conforming REDUCED.
func compileDistinct(env *Env, n algebra.Distinct) (Iterator, error) {
	return compileDedup(env, n.Input)
}

func compileReduced(env *Env, n algebra.Reduced) (Iterator, error) {
	return compileDedup(env, n.Input)
}

func compileDedup(env *Env, inputN algebra.Node) (Iterator, error) {
	in, err := Compile(env, inputN)
	if err != nil {
		return nil, err
	}
	return &deferredIter{env: env, input: in, build: func(rows []Row) (Iterator, error) {
		seen := make(map[string]bool, len(rows))
		out := rows[:0]
		for _, r := range rows {
			key := rowKey(r)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
		return &sliceIter{rows: out}, nil
	}}, nil
}

func rowKey(r Row) string {
	vars := make([]algebra.Var, 0, len(r))
	for v := range r {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	b := make([]byte, 0, 24*len(vars))
	for _, v := range vars {
		b = append(b, []byte(v)...)
		b = append(b, 0)
		id := r[v]
		b = append(b, id[:]...)
	}
	return string(b)
}

type sliceOffsetIter struct {
	input   Iterator
	offset  int64
	limit   int64
	skipped int64
	emitted int64
	cur     Row
}

func compileSlice(env *Env, n algebra.Slice) (Iterator, error) {
	in, err := Compile(env, n.Input)
	if err != nil {
		return nil, err
	}
	return &sliceOffsetIter{input: in, offset: n.Offset, limit: n.Limit}, nil
}

func (it *sliceOffsetIter) Next(tok *limits.Token) (bool, error) {
	if it.limit >= 0 && it.emitted >= it.limit {
		return false, nil
	}
	for it.offset > 0 && it.skipped < it.offset {
		ok, err := it.input.Next(tok)
		if err != nil || !ok {
			return false, err
		}
		it.skipped++
	}
	ok, err := it.input.Next(tok)
	if err != nil || !ok {
		return false, err
	}
	it.cur = it.input.Row()
	it.emitted++
	return true, nil
}
func (it *sliceOffsetIter) Row() Row { return it.cur }
func (it *sliceOffsetIter) Close()   { it.input.Close() }

func compileOrderBy(env *Env, n algebra.OrderBy) (Iterator, error) {
	in, err := Compile(env, n.Input)
	if err != nil {
		return nil, err
	}
	return &deferredIter{env: env, input: in, build: func(rows []Row) (Iterator, error) {
		var sortErr error
		sort.SliceStable(rows, func(i, j int) bool {
			for _, key := range n.Keys {
				vi := evalExpr(&evalCtx{env: env, row: rows[i]}, key.Expr)
				vj := evalExpr(&evalCtx{env: env, row: rows[j]}, key.Expr)
				cmp, err := compareOrderValues(vi, vj)
				if err != nil {
					sortErr = err
				}
				if cmp == 0 {
					continue
				}
				if key.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
		if sortErr != nil {
			return nil, sortErr
		}
		return &sliceIter{rows: rows}, nil
	}}, nil
}

// compareOrderValues orders Unbound < errors < blank nodes < IRIs <
// other terms. Blank nodes and IRIs compare by their string form; two
// other terms fall back to compareValues.
func compareOrderValues(a, b Value) (int, error) {
	rank := func(v Value) int {
		switch {
		case v.Unbound:
			return 0
		case v.Err != nil:
			return 1
		}
		switch v.Term.(type) {
		case term.BlankNode:
			return 2
		case term.IRI:
			return 3
		}
		return 4
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb, nil
	}
	if ra < 2 {
		return 0, nil
	}
	if ra < 4 {
		return compareValues(litVal(term.NewStringLiteral(a.Term.String())), litVal(term.NewStringLiteral(b.Term.String())))
	}
	return compareValues(a, b)
}
