package optimize

import "github.com/boutros/quadstore/algebra"

// reorderJoins reorders the leaves of a basic-graph-pattern join chain
// by spec.md §4.8's selectivity heuristic: patterns with more bound
// positions go first; among ties, patterns sharing an already-placed
// variable go first; remaining ties keep the original left-to-right
// order, which is itself fixed by parse order, so the result is total
// and deterministic.
func reorderJoins(n algebra.Node) algebra.Node {
	return recurse(n, reorderJoinStep)
}

func reorderJoinStep(n algebra.Node) algebra.Node {
	j, ok := n.(algebra.Join)
	if !ok {
		return n
	}
	return rebuildJoin(orderBySelectivity(flattenJoin(j)))
}

// flattenJoin collects every non-Join leaf of a contiguous run of Join
// nodes, left to right.
func flattenJoin(n algebra.Node) []algebra.Node {
	j, ok := n.(algebra.Join)
	if !ok {
		return []algebra.Node{n}
	}
	return append(flattenJoin(j.Left), flattenJoin(j.Right)...)
}

func rebuildJoin(nodes []algebra.Node) algebra.Node {
	if len(nodes) == 0 {
		return nil
	}
	result := nodes[0]
	for _, n := range nodes[1:] {
		result = algebra.Join{Left: result, Right: n}
	}
	return result
}

// boundPositions counts a pattern leaf's bound (non-variable)
// positions; non-pattern nodes (a nested Join subtree that couldn't
// be further flattened, a Union, ...) sort last, since their
// selectivity is unknown without cost estimates spec.md §4.8
// explicitly rules out.
func boundPositions(n algebra.Node) int {
	switch t := n.(type) {
	case algebra.QuadPattern:
		c := 0
		for _, tv := range [4]algebra.TermOrVar{t.Subject, t.Predicate, t.Object, t.Graph} {
			if !tv.IsVar() {
				c++
			}
		}
		return c
	case algebra.Path:
		c := 0
		for _, tv := range [3]algebra.TermOrVar{t.Subject, t.Object, t.Graph} {
			if !tv.IsVar() {
				c++
			}
		}
		return c
	default:
		return -1
	}
}

// orderBySelectivity greedily picks, at each step, the unplaced leaf
// with the most bound positions, breaking ties by how many variables
// it shares with leaves already placed, then by original order.
func orderBySelectivity(nodes []algebra.Node) []algebra.Node {
	remaining := append([]algebra.Node(nil), nodes...)
	placed := map[algebra.Var]bool{}
	out := make([]algebra.Node, 0, len(nodes))
	for len(remaining) > 0 {
		best := 0
		bestBound := boundPositions(remaining[0])
		bestShared := sharedCount(remaining[0], placed)
		for i := 1; i < len(remaining); i++ {
			bound := boundPositions(remaining[i])
			shared := sharedCount(remaining[i], placed)
			if bound > bestBound || (bound == bestBound && shared > bestShared) {
				best, bestBound, bestShared = i, bound, shared
			}
		}
		chosen := remaining[best]
		out = append(out, chosen)
		for _, v := range nodeVars(chosen) {
			placed[v] = true
		}
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return out
}

func sharedCount(n algebra.Node, placed map[algebra.Var]bool) int {
	c := 0
	for _, v := range nodeVars(n) {
		if placed[v] {
			c++
		}
	}
	return c
}
