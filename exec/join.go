package exec

import (
	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/limits"
)

// bucketKey builds a join key from row's bindings for vars, reporting
// ok=false if any of vars is unbound in row (can't participate in a
// hash bucket, falls back to a full scan of the other side).
func bucketKey(row Row, vars []algebra.Var) (string, bool) {
	b := make([]byte, 0, 16*len(vars))
	for _, v := range vars {
		id, ok := row[v]
		if !ok {
			return "", false
		}
		b = append(b, id[:]...)
	}
	return string(b), true
}

func collectVars(rows []Row) map[algebra.Var]bool {
	vars := map[algebra.Var]bool{}
	for _, r := range rows {
		for v := range r {
			vars[v] = true
		}
	}
	return vars
}

// buildBuckets groups rightRows into a hash table keyed by their
// bindings for shared (every variable bound by any right row); rows
// missing one of those bindings can't use the hash key and all land in
// the "" bucket.
func buildBuckets(rightRows []Row, shared []algebra.Var) map[string][]Row {
	buckets := make(map[string][]Row, len(rightRows))
	for _, r := range rightRows {
		key, ok := bucketKey(r, shared)
		if !ok {
			key = "" // unkeyable rows collapse into one bucket, scanned by every probe
		}
		buckets[key] = append(buckets[key], r)
	}
	return buckets
}

func candidatesFor(buckets map[string][]Row, row Row, shared []algebra.Var) []Row {
	key, ok := bucketKey(row, shared)
	if !ok {
		// row itself can't produce a key: it must be checked against
		// every bucket.
		var out []Row
		for _, rows := range buckets {
			out = append(out, rows...)
		}
		return out
	}
	out := append([]Row(nil), buckets[key]...)
	out = append(out, buckets[""]...)
	return out
}

// joinIter is a hash join: the right side is materialized into
// buckets once, then the left side is streamed probe by probe
// (spec.md §4.9's Join leaf, the standard build-once/probe-stream
// shape).
type joinIter struct {
	left    Iterator
	buckets map[string][]Row
	shared  []algebra.Var

	cur     Row
	result  Row
	pending []Row
	pendPos int
}

func compileJoin(env *Env, n algebra.Join) (Iterator, error) {
	return compileJoinLike(env, n.Left, n.Right, joinInner, nil)
}

func compileLeftJoin(env *Env, n algebra.LeftJoin) (Iterator, error) {
	return compileJoinLike(env, n.Left, n.Right, joinLeftOuter, n.Filter)
}

func compileMinus(env *Env, n algebra.Minus) (Iterator, error) {
	return compileJoinLike(env, n.Left, n.Right, joinMinus, nil)
}

type joinKind int

const (
	joinInner joinKind = iota
	joinLeftOuter
	joinMinus
)

func compileJoinLike(env *Env, leftN, rightN algebra.Node, kind joinKind, filterExpr algebra.Expr) (Iterator, error) {
	left, err := Compile(env, leftN)
	if err != nil {
		return nil, err
	}
	right, err := Compile(env, rightN)
	if err != nil {
		left.Close()
		return nil, err
	}
	return &lazyJoinIter{env: env, left: left, right: right, kind: kind, filterExpr: filterExpr}, nil
}

// lazyJoinIter defers building the right side's hash buckets until its
// own first Next call, so the build's drain is governed by the
// caller's real cancellation token rather than one minted at Compile
// time, before any QueryOptions deadline exists (spec.md §4.11).
type lazyJoinIter struct {
	env        *Env
	left       Iterator
	right      Iterator
	kind       joinKind
	filterExpr algebra.Expr

	built bool
	inner Iterator
}

func (it *lazyJoinIter) Next(tok *limits.Token) (bool, error) {
	if !it.built {
		it.built = true
		rightRows, err := drain(it.env, it.right, tok)
		if err != nil {
			it.left.Close()
			return false, err
		}
		rightVars := collectVars(rightRows)
		var shared []algebra.Var
		for v := range rightVars {
			shared = append(shared, v)
		}
		buckets := buildBuckets(rightRows, shared)
		switch it.kind {
		case joinMinus:
			it.inner = &minusIter{left: it.left, buckets: buckets, shared: shared}
		case joinLeftOuter:
			it.inner = &leftJoinIter{left: it.left, buckets: buckets, shared: shared, env: it.env, filterExpr: it.filterExpr}
		default:
			it.inner = &joinIter{left: it.left, buckets: buckets, shared: shared}
		}
	}
	return it.inner.Next(tok)
}

func (it *lazyJoinIter) Row() Row {
	if it.inner == nil {
		return nil
	}
	return it.inner.Row()
}

func (it *lazyJoinIter) Close() {
	if it.inner != nil {
		it.inner.Close()
		return
	}
	it.left.Close()
	it.right.Close()
}

func (it *joinIter) Next(tok *limits.Token) (bool, error) {
	for {
		if it.pendPos < len(it.pending) {
			cand := it.pending[it.pendPos]
			it.pendPos++
			if !it.cur.compatible(cand) {
				continue
			}
			it.result = it.cur.merge(cand)
			return true, nil
		}
		ok, err := it.left.Next(tok)
		if err != nil || !ok {
			return false, err
		}
		it.cur = it.left.Row()
		it.pending = candidatesFor(it.buckets, it.cur, it.shared)
		it.pendPos = 0
	}
}

func (it *joinIter) Row() Row { return it.result }
func (it *joinIter) Close()   { it.left.Close() }

// leftJoinIter implements OPTIONAL: every left row is emitted at
// least once, extended by each compatible (and filter-passing) right
// row, or unextended if none qualify.
type leftJoinIter struct {
	left       Iterator
	buckets    map[string][]Row
	shared     []algebra.Var
	env        *Env
	filterExpr algebra.Expr

	cur        Row
	result     Row
	pending    []Row
	pendPos    int
	matchedAny bool
	haveLeft   bool // a left row is loaded and not yet resolved (matched or emitted bare)
}

func (it *leftJoinIter) Next(tok *limits.Token) (bool, error) {
	for {
		if !it.haveLeft {
			ok, err := it.left.Next(tok)
			if err != nil || !ok {
				return false, err
			}
			it.cur = it.left.Row()
			it.matchedAny = false
			it.pending = candidatesFor(it.buckets, it.cur, it.shared)
			it.pendPos = 0
			it.haveLeft = true
		}

		matched := false
		for it.pendPos < len(it.pending) {
			cand := it.pending[it.pendPos]
			it.pendPos++
			if !it.cur.compatible(cand) {
				continue
			}
			merged := it.cur.merge(cand)
			if it.filterExpr != nil {
				ok, err := ebv(evalExpr(&evalCtx{env: it.env, row: merged}, it.filterExpr))
				if err != nil || !ok {
					continue
				}
			}
			it.matchedAny = true
			it.result = merged
			matched = true
			break
		}
		if matched {
			return true, nil
		}
		it.haveLeft = false
		if !it.matchedAny {
			it.result = it.cur
			return true, nil
		}
	}
}

func (it *leftJoinIter) Row() Row { return it.result }
func (it *leftJoinIter) Close()   { it.left.Close() }

// minusIter excludes a left row when some right row is compatible
// with it AND shares at least one bound variable (SPARQL MINUS's
// "domain overlap" rule: rows with disjoint domains never exclude
// each other).
type minusIter struct {
	left    Iterator
	buckets map[string][]Row
	shared  []algebra.Var
	result  Row
}

func (it *minusIter) Next(tok *limits.Token) (bool, error) {
	for {
		ok, err := it.left.Next(tok)
		if err != nil || !ok {
			return false, err
		}
		row := it.left.Row()
		excluded := false
		for _, cand := range candidatesFor(it.buckets, row, it.shared) {
			if sharesVar(row, cand) && row.compatible(cand) {
				excluded = true
				break
			}
		}
		if !excluded {
			it.result = row
			return true, nil
		}
	}
}

func sharesVar(a, b Row) bool {
	for v := range a {
		if _, ok := b[v]; ok {
			return true
		}
	}
	return false
}

func (it *minusIter) Row() Row { return it.result }
func (it *minusIter) Close()   { it.left.Close() }

// compileUnion concatenates two independently-compiled branches: every
// left row, then every right row.
func compileUnion(env *Env, n algebra.Union) (Iterator, error) {
	left, err := Compile(env, n.Left)
	if err != nil {
		return nil, err
	}
	right, err := Compile(env, n.Right)
	if err != nil {
		left.Close()
		return nil, err
	}
	return &unionIter{iters: []Iterator{left, right}}, nil
}

type unionIter struct {
	iters []Iterator
	idx   int
	cur   Row
}

func (it *unionIter) Next(tok *limits.Token) (bool, error) {
	for it.idx < len(it.iters) {
		ok, err := it.iters[it.idx].Next(tok)
		if err != nil {
			return false, err
		}
		if ok {
			it.cur = it.iters[it.idx].Row()
			return true, nil
		}
		it.iters[it.idx].Close()
		it.idx++
	}
	return false, nil
}

func (it *unionIter) Row() Row { return it.cur }
func (it *unionIter) Close() {
	for ; it.idx < len(it.iters); it.idx++ {
		it.iters[it.idx].Close()
	}
}
