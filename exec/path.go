package exec

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/index"
	"github.com/boutros/quadstore/limits"
	"github.com/boutros/quadstore/term"
)

// pathIter evaluates a property path expression (spec.md §4.8 "Path
// rewriting" / §4.9's Path leaf) by recursively computing the
// (subject, object) pairs the path denotes, then streaming them as
// rows. Closure paths (`*`, `+`) run a breadth-first search over the
// underlying edge relation, tracking visited nodes in a
// github.com/RoaringBitmap/roaring bitmap the same way the teacher's
// own db.go tracks visited-term sets — rewired here from a one-off
// bucket scratch space into the BFS frontier/visited set a property
// path closure needs. Since a roaring.Bitmap indexes dense uint32s
// and term.ID is a 128-bit content address, each BFS run keeps a
// local id->uint32 sequence table (pathSpace) scoped to that one
// evaluation.
type pathIter struct {
	pairs []pathPair
	pos   int
	sVar  algebra.Var
	oVar  algebra.Var
	gVar  algebra.Var
	gID   term.ID
	tick  *limits.Checkpoint
}

type pathPair struct{ s, o term.ID }

// pathSpace assigns dense sequence numbers to term.IDs encountered
// during one path evaluation, so a roaring.Bitmap can serve as the
// visited set.
type pathSpace struct {
	seq map[term.ID]uint32
	n   uint32
}

func newPathSpace() *pathSpace { return &pathSpace{seq: make(map[term.ID]uint32)} }

func (s *pathSpace) id(t term.ID) uint32 {
	if n, ok := s.seq[t]; ok {
		return n
	}
	n := s.n
	s.seq[t] = n
	s.n++
	return n
}

func compilePath(env *Env, n algebra.Path) (Iterator, error) {
	var sBound, oBound, gBound *term.ID
	var sVar, oVar, gVar algebra.Var

	if n.Subject.IsVar() {
		sVar = n.Subject.Variable
	} else if id, ok := resolveBound(env, n.Subject); ok {
		sBound = &id
	} else {
		return &emptyIter{}, nil
	}
	if n.Object.IsVar() {
		oVar = n.Object.Variable
	} else if id, ok := resolveBound(env, n.Object); ok {
		oBound = &id
	} else {
		return &emptyIter{}, nil
	}
	if n.Graph.IsVar() {
		gVar = n.Graph.Variable
	} else if id, ok := resolveBound(env, n.Graph); ok {
		gBound = &id
	} else {
		return &emptyIter{}, nil
	}

	pairs, err := evalPath(env, n.Expr, sBound, oBound, gBound, newPathSpace())
	if err != nil {
		return nil, err
	}

	var gID term.ID
	if gBound != nil {
		gID = *gBound
	}
	return &pathIter{pairs: pairs, sVar: sVar, oVar: oVar, gVar: gVar, gID: gID, tick: limits.NewCheckpoint(256)}, nil
}

func (it *pathIter) Next(tok *limits.Token) (bool, error) {
	if it.pos >= len(it.pairs) {
		return false, nil
	}
	if it.tick.Tick(tok) {
		return false, ErrCancelled
	}
	it.pos++
	return true, nil
}

func (it *pathIter) Row() Row {
	p := it.pairs[it.pos-1]
	row := make(Row, 3)
	if it.sVar != "" {
		row[it.sVar] = p.s
	}
	if it.oVar != "" {
		row[it.oVar] = p.o
	}
	if it.gVar != "" {
		row[it.gVar] = it.gID
	}
	return row
}
func (it *pathIter) Close() {}

// edgesFrom returns every (s,o) edge matching predicate pred (forward)
// given optional bound endpoints, restricted to graph g if non-nil.
func edgesFrom(env *Env, pred term.ID, s, o, g *term.ID, inverse bool) []pathPair {
	p := index.Pattern{Predicate: &pred, Graph: g}
	if inverse {
		p.Subject, p.Object = o, s
	} else {
		p.Subject, p.Object = s, o
	}
	quads := env.Rtx.Probe(p)
	out := make([]pathPair, 0, len(quads))
	for _, q := range quads {
		if inverse {
			out = append(out, pathPair{s: q.Object, o: q.Subject})
		} else {
			out = append(out, pathPair{s: q.Subject, o: q.Object})
		}
	}
	return out
}

// evalPath is the recursive path-expression interpreter. It always
// returns the full set of (s,o) pairs satisfying expr given whichever
// endpoints are already bound; bound endpoints are pushed down as
// index probe restrictions rather than filtered after the fact.
func evalPath(env *Env, expr algebra.PathOp, s, o, g *term.ID, space *pathSpace) ([]pathPair, error) {
	switch p := expr.(type) {
	case algebra.PathIRI:
		id, ok := env.Rtx.EncodeExisting(p.IRI)
		if !ok {
			return nil, nil
		}
		return edgesFrom(env, id, s, o, g, false), nil

	case algebra.PathInverse:
		pairs, err := evalPath(env, p.Path, o, s, g, space)
		if err != nil {
			return nil, err
		}
		return swapPairs(pairs), nil

	case algebra.PathSeq:
		return evalSeq(env, p.Left, p.Right, s, o, g, space)

	case algebra.PathAlt:
		left, err := evalPath(env, p.Left, s, o, g, space)
		if err != nil {
			return nil, err
		}
		right, err := evalPath(env, p.Right, s, o, g, space)
		if err != nil {
			return nil, err
		}
		return dedupPairs(append(left, right...)), nil

	case algebra.PathZeroOrMore:
		return evalClosure(env, p.Path, s, o, g, space, true)

	case algebra.PathOneOrMore:
		return evalClosure(env, p.Path, s, o, g, space, false)

	case algebra.PathZeroOrOne:
		direct, err := evalPath(env, p.Path, s, o, g, space)
		if err != nil {
			return nil, err
		}
		zero := zeroLengthPairs(env, s, o, g)
		return dedupPairs(append(direct, zero...)), nil

	case algebra.PathNegatedPropertySet:
		return evalNegatedSet(env, p, s, o, g)
	}
	return nil, nil
}

// evalSeq composes Left then Right, pushing a bound endpoint into
// whichever side can use it and joining on the midpoint otherwise.
func evalSeq(env *Env, left, right algebra.PathOp, s, o, g *term.ID, space *pathSpace) ([]pathPair, error) {
	switch {
	case s != nil && o != nil:
		leftPairs, err := evalPath(env, left, s, nil, g, space)
		if err != nil {
			return nil, err
		}
		var out []pathPair
		for _, lp := range leftPairs {
			mid := lp.o
			rightPairs, err := evalPath(env, right, &mid, o, g, space)
			if err != nil {
				return nil, err
			}
			if len(rightPairs) > 0 {
				out = append(out, pathPair{s: lp.s, o: *o})
			}
		}
		return dedupPairs(out), nil
	case s != nil:
		leftPairs, err := evalPath(env, left, s, nil, g, space)
		if err != nil {
			return nil, err
		}
		var out []pathPair
		for _, lp := range leftPairs {
			mid := lp.o
			rightPairs, err := evalPath(env, right, &mid, nil, g, space)
			if err != nil {
				return nil, err
			}
			for _, rp := range rightPairs {
				out = append(out, pathPair{s: lp.s, o: rp.o})
			}
		}
		return dedupPairs(out), nil
	case o != nil:
		rightPairs, err := evalPath(env, right, nil, o, g, space)
		if err != nil {
			return nil, err
		}
		var out []pathPair
		for _, rp := range rightPairs {
			mid := rp.s
			leftPairs, err := evalPath(env, left, nil, &mid, g, space)
			if err != nil {
				return nil, err
			}
			for _, lp := range leftPairs {
				out = append(out, pathPair{s: lp.s, o: rp.o})
			}
		}
		return dedupPairs(out), nil
	default:
		leftPairs, err := evalPath(env, left, nil, nil, g, space)
		if err != nil {
			return nil, err
		}
		byMid := make(map[term.ID][]term.ID)
		for _, lp := range leftPairs {
			byMid[lp.o] = append(byMid[lp.o], lp.s)
		}
		rightPairs, err := evalPath(env, right, nil, nil, g, space)
		if err != nil {
			return nil, err
		}
		var out []pathPair
		for _, rp := range rightPairs {
			for _, sID := range byMid[rp.s] {
				out = append(out, pathPair{s: sID, o: rp.o})
			}
		}
		return dedupPairs(out), nil
	}
}

// evalClosure runs BFS from every relevant start node, following
// path's edges repeatedly and tracking visited nodes in a roaring
// bitmap keyed by space's dense ids. zeroOk includes the zero-length
// (n,n) reflexive pairs that PathZeroOrMore (but not PathOneOrMore)
// contributes.
func evalClosure(env *Env, path algebra.PathOp, s, o, g *term.ID, space *pathSpace, zeroOk bool) ([]pathPair, error) {
	var starts []term.ID
	if s != nil {
		starts = []term.ID{*s}
	} else {
		// Fully unbound start: every node that ever appears as a
		// subject or object is a candidate start of a closure.
		seen := map[term.ID]bool{}
		env.Rtx.ProbeFunc(index.Pattern{Graph: g}, func(q term.Quad) bool {
			seen[q.Subject] = true
			seen[q.Object] = true
			return true
		})
		for id := range seen {
			starts = append(starts, id)
		}
	}

	var out []pathPair
	for _, start := range starts {
		visited := roaring.New()
		visited.Add(space.id(start))
		frontier := []term.ID{start}
		if zeroOk {
			out = append(out, pathPair{s: start, o: start})
		}
		for len(frontier) > 0 {
			next := frontier[0]
			frontier = frontier[1:]
			edges, err := evalPath(env, path, &next, nil, g, space)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				seqID := space.id(e.o)
				if visited.Contains(seqID) {
					continue
				}
				visited.Add(seqID)
				out = append(out, pathPair{s: start, o: e.o})
				frontier = append(frontier, e.o)
			}
		}
	}
	if o != nil {
		filtered := out[:0]
		for _, p := range out {
			if p.o == *o {
				filtered = append(filtered, p)
			}
		}
		out = filtered
	}
	return dedupPairs(out), nil
}

func zeroLengthPairs(env *Env, s, o, g *term.ID) []pathPair {
	switch {
	case s != nil && o != nil:
		if *s == *o {
			return []pathPair{{s: *s, o: *o}}
		}
		return nil
	case s != nil:
		return []pathPair{{s: *s, o: *s}}
	case o != nil:
		return []pathPair{{s: *o, o: *o}}
	default:
		seen := map[term.ID]bool{}
		var out []pathPair
		env.Rtx.ProbeFunc(index.Pattern{Graph: g}, func(q term.Quad) bool {
			for _, id := range [2]term.ID{q.Subject, q.Object} {
				if !seen[id] {
					seen[id] = true
					out = append(out, pathPair{s: id, o: id})
				}
			}
			return true
		})
		return out
	}
}

// evalNegatedSet implements !(...): each listed IRI without a ^ rules
// out that forward predicate, each with a ^ rules out that reverse
// predicate. A direction is only considered at all if the set names
// at least one entry for it — plain !(:p1|:p2) matches forward edges
// only, never reverse ones, per the property path grammar.
func evalNegatedSet(env *Env, p algebra.PathNegatedPropertySet, s, o, g *term.ID) ([]pathPair, error) {
	excludeForward := map[term.ID]bool{}
	excludeReverse := map[term.ID]bool{}
	hasForward, hasReverse := false, false
	for i, iri := range p.IRIs {
		id, ok := env.Rtx.EncodeExisting(iri)
		inverse := i < len(p.Inverse) && p.Inverse[i]
		if inverse {
			hasReverse = true
			if ok {
				excludeReverse[id] = true
			}
		} else {
			hasForward = true
			if ok {
				excludeForward[id] = true
			}
		}
	}
	var out []pathPair
	if hasForward {
		env.Rtx.ProbeFunc(index.Pattern{Subject: s, Object: o, Graph: g}, func(q term.Quad) bool {
			if !excludeForward[q.Predicate] {
				out = append(out, pathPair{s: q.Subject, o: q.Object})
			}
			return true
		})
	}
	if hasReverse {
		env.Rtx.ProbeFunc(index.Pattern{Subject: o, Object: s, Graph: g}, func(q term.Quad) bool {
			if !excludeReverse[q.Predicate] {
				out = append(out, pathPair{s: q.Object, o: q.Subject})
			}
			return true
		})
	}
	return dedupPairs(out), nil
}

func swapPairs(pairs []pathPair) []pathPair {
	out := make([]pathPair, len(pairs))
	for i, p := range pairs {
		out[i] = pathPair{s: p.o, o: p.s}
	}
	return out
}

func dedupPairs(pairs []pathPair) []pathPair {
	if len(pairs) < 2 {
		return pairs
	}
	seen := make(map[pathPair]bool, len(pairs))
	out := pairs[:0]
	for _, p := range pairs {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
