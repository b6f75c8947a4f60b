package optimize

import "github.com/boutros/quadstore/algebra"

// normalizeOptionalFilters folds a FILTER written lexically inside an
// OPTIONAL block into the LeftJoin's own Filter field instead of
// leaving it as a Filter wrapping the OPTIONAL's Right pattern. The
// parser produces the latter shape (sparql's parseGroupGraphPatternSub
// applies trailing FILTERs to whichever node it is currently building,
// including an OPTIONAL's Right); compiled as a plain Filter, Right
// would be evaluated as its own isolated subplan and the condition
// would see any variable bound only by Left as unbound on every row,
// wrongly emptying Right instead of testing the joined candidate.
// LeftJoin.Filter is evaluated per merged candidate row (spec.md
// §4.9), which is the condition SPARQL's OPTIONAL actually specifies
// — this is the concrete realization of §4.8's "OPTIONAL
// normalization per SPARQL semantics (well-designed vs general)".
func normalizeOptionalFilters(n algebra.Node) algebra.Node {
	return recurse(n, normalizeOptionalFilterStep)
}

func normalizeOptionalFilterStep(n algebra.Node) algebra.Node {
	lj, ok := n.(algebra.LeftJoin)
	if !ok {
		return n
	}
	right := lj.Right
	filter := lj.Filter
	for {
		f, ok := right.(algebra.Filter)
		if !ok {
			break
		}
		right = f.Input
		if filter == nil {
			filter = f.Cond
		} else {
			filter = algebra.Binary{Op: algebra.OpAnd, Left: filter, Right: f.Cond}
		}
	}
	return algebra.LeftJoin{Left: lj.Left, Right: right, Filter: filter}
}

// pushdownFilters splits conjunctive FILTER conditions and pushes each
// conjunct into the smallest subplan whose free variables cover it
// (spec.md §4.8 "Filter pushdown").
func pushdownFilters(n algebra.Node) algebra.Node {
	return recurse(n, pushdownFilterStep)
}

func pushdownFilterStep(n algebra.Node) algebra.Node {
	f, ok := n.(algebra.Filter)
	if !ok {
		return n
	}
	result := f.Input
	for _, c := range splitConjunction(f.Cond) {
		result = pushFilterConjunct(result, c)
	}
	return result
}

func splitConjunction(e algebra.Expr) []algebra.Expr {
	if b, ok := e.(algebra.Binary); ok && b.Op == algebra.OpAnd {
		return append(splitConjunction(b.Left), splitConjunction(b.Right)...)
	}
	return []algebra.Expr{e}
}

// pushFilterConjunct pushes cond as far down n as its free variables
// allow, stopping at the smallest covering subplan. Pushing into an
// OPTIONAL's Right is unsound (it would drop unmatched-Left rows
// instead of leaving Right's variables unbound), so only Join's
// children and LeftJoin's Left are ever descended into.
func pushFilterConjunct(n algebra.Node, cond algebra.Expr) algebra.Node {
	need := algebra.Vars(cond)
	switch t := n.(type) {
	case algebra.Join:
		if covers(nodeVars(t.Left), need) {
			return algebra.Join{Left: pushFilterConjunct(t.Left, cond), Right: t.Right}
		}
		if covers(nodeVars(t.Right), need) {
			return algebra.Join{Left: t.Left, Right: pushFilterConjunct(t.Right, cond)}
		}
		return algebra.Filter{Input: t, Cond: cond}
	case algebra.LeftJoin:
		if covers(nodeVars(t.Left), need) {
			return algebra.LeftJoin{Left: pushFilterConjunct(t.Left, cond), Right: t.Right, Filter: t.Filter}
		}
		return algebra.Filter{Input: t, Cond: cond}
	default:
		return algebra.Filter{Input: n, Cond: cond}
	}
}

func covers(have, need []algebra.Var) bool {
	set := make(map[algebra.Var]bool, len(have))
	for _, v := range have {
		set[v] = true
	}
	for _, v := range need {
		if !set[v] {
			return false
		}
	}
	return true
}

// nodeVars returns n's free (outward-visible) variables.
func nodeVars(n algebra.Node) []algebra.Var {
	seen := map[algebra.Var]bool{}
	var out []algebra.Var
	add := func(vs []algebra.Var) {
		for _, v := range vs {
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	switch t := n.(type) {
	case algebra.QuadPattern:
		add(t.Vars())
	case algebra.Path:
		add(t.Vars())
	case algebra.Values:
		add(t.Vars())
	case algebra.Join:
		add(nodeVars(t.Left))
		add(nodeVars(t.Right))
	case algebra.LeftJoin:
		add(nodeVars(t.Left))
		add(nodeVars(t.Right))
	case algebra.Union:
		add(nodeVars(t.Left))
		add(nodeVars(t.Right))
	case algebra.Minus:
		add(nodeVars(t.Left))
	case algebra.Filter:
		add(nodeVars(t.Input))
	case algebra.Extend:
		add(nodeVars(t.Input))
		add([]algebra.Var{t.Var})
	case algebra.Project:
		add(t.Vars)
	case algebra.Distinct:
		add(nodeVars(t.Input))
	case algebra.Reduced:
		add(nodeVars(t.Input))
	case algebra.Slice:
		add(nodeVars(t.Input))
	case algebra.OrderBy:
		add(nodeVars(t.Input))
	case algebra.Group:
		for _, k := range t.Keys {
			add(algebra.Vars(k))
		}
		for _, a := range t.Aggregates {
			if a.As != "" {
				add([]algebra.Var{a.As})
			}
		}
		add(nodeVars(t.Input))
	case algebra.Service:
		add(nodeVars(t.Pattern))
	}
	return out
}
