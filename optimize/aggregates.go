package optimize

import "github.com/boutros/quadstore/algebra"

// liftAggregates moves every algebra.AggregateExpr the parser left
// sitting in ordinary expression position into the Aggregates list of
// its enclosing Group, rewriting the occurrence to an AggregateRef by
// position (spec.md §4.6's AggregateExpr doc: "the optimizer lifts it
// into the enclosing Group node's Aggregates list").
//
// The parser builds a query's solution modifiers as a straight chain
// —  SELECT-clause (expr AS ?v) extends, then GROUP, then HAVING's
// Filter, then ORDER BY, then SLICE, then PROJECT, then DISTINCT/
// REDUCED — with any aggregate calls left in place as AggregateExpr
// wherever they were written, including below the Group (SELECT-
// clause extends, which the parser attaches before GROUP BY since it
// does not yet know which expressions are aggregates). liftChain below
// walks that one chain and gathers every AggregateExpr it finds, both
// above and below the Group, into a single ordered Aggregates slice.
func liftAggregates(n algebra.Node) algebra.Node {
	switch t := n.(type) {
	case algebra.Join:
		return algebra.Join{Left: liftAggregates(t.Left), Right: liftAggregates(t.Right)}
	case algebra.LeftJoin:
		return algebra.LeftJoin{Left: liftAggregates(t.Left), Right: liftAggregates(t.Right), Filter: rewriteExistsPatterns(t.Filter, liftAggregates)}
	case algebra.Union:
		return algebra.Union{Left: liftAggregates(t.Left), Right: liftAggregates(t.Right)}
	case algebra.Minus:
		return algebra.Minus{Left: liftAggregates(t.Left), Right: liftAggregates(t.Right)}
	case algebra.Service:
		return algebra.Service{Endpoint: t.Endpoint, Pattern: liftAggregates(t.Pattern), Silent: t.Silent}
	case algebra.Construct:
		return algebra.Construct{Templates: t.Templates, Input: liftAggregates(t.Input), ShorthandSelf: t.ShorthandSelf}
	case algebra.Describe:
		if t.Input == nil {
			return t
		}
		return algebra.Describe{Targets: t.Targets, Star: t.Star, Input: liftAggregates(t.Input)}
	case algebra.Distinct, algebra.Reduced, algebra.Project, algebra.Slice,
		algebra.OrderBy, algebra.Filter, algebra.Extend, algebra.Group:
		return liftChain(n)
	default:
		return n
	}
}

// chainLayer is one solution-modifier node sitting above (or, for
// "extend", immediately below) a Group within liftChain's scan.
type chainLayer struct {
	kind  string // "distinct", "reduced", "project", "slice", "order", "filter", "extend"
	vars  []algebra.Var
	off   int64
	lim   int64
	keys  []algebra.SortKey
	cond  algebra.Expr
	v     algebra.Var
	expr  algebra.Expr
}

func liftChain(n algebra.Node) algebra.Node {
	var layers []chainLayer
	cur := n
walkDown:
	for {
		switch t := cur.(type) {
		case algebra.Distinct:
			layers = append(layers, chainLayer{kind: "distinct"})
			cur = t.Input
		case algebra.Reduced:
			layers = append(layers, chainLayer{kind: "reduced"})
			cur = t.Input
		case algebra.Project:
			layers = append(layers, chainLayer{kind: "project", vars: t.Vars})
			cur = t.Input
		case algebra.Slice:
			layers = append(layers, chainLayer{kind: "slice", off: t.Offset, lim: t.Limit})
			cur = t.Input
		case algebra.OrderBy:
			layers = append(layers, chainLayer{kind: "order", keys: t.Keys})
			cur = t.Input
		case algebra.Filter:
			layers = append(layers, chainLayer{kind: "filter", cond: t.Cond})
			cur = t.Input
		case algebra.Extend:
			layers = append(layers, chainLayer{kind: "extend", v: t.Var, expr: t.Expr})
			cur = t.Input
		default:
			break walkDown
		}
	}

	grp, ok := cur.(algebra.Group)
	if !ok {
		// No Group in this chain: recurse into whatever sits at the
		// bottom (a BGP join, a leaf, ...), and into any EXISTS
		// subquery nested in a layer's expression, then rewrap as-is.
		bottom := liftAggregates(cur)
		for i := range layers {
			switch layers[i].kind {
			case "filter":
				layers[i].cond = rewriteExistsPatterns(layers[i].cond, liftAggregates)
			case "extend":
				layers[i].expr = rewriteExistsPatterns(layers[i].expr, liftAggregates)
			case "order":
				newKeys := make([]algebra.SortKey, len(layers[i].keys))
				for j, k := range layers[i].keys {
					newKeys[j] = algebra.SortKey{Expr: rewriteExistsPatterns(k.Expr, liftAggregates), Desc: k.Desc}
				}
				layers[i].keys = newKeys
			}
		}
		return rewrapChain(bottom, layers)
	}

	groupInput, preExtends := extractAggregateExtends(grp.Input)
	aggregates := append([]algebra.Aggregate(nil), grp.Aggregates...)
	rewrittenPre := make([]chainLayer, len(preExtends))
	for i, pe := range preExtends {
		aggregates = append(aggregates, pe.agg)
		rewrittenPre[i] = chainLayer{kind: "extend", v: pe.v, expr: algebra.AggregateRef{Index: len(aggregates) - 1}}
	}

	liftExprFull := func(e algebra.Expr) algebra.Expr {
		return rewriteExistsPatterns(liftExprAggregates(e, &aggregates), liftAggregates)
	}
	for i := range layers {
		switch layers[i].kind {
		case "filter":
			layers[i].cond = liftExprFull(layers[i].cond)
		case "order":
			newKeys := make([]algebra.SortKey, len(layers[i].keys))
			for j, k := range layers[i].keys {
				newKeys[j] = algebra.SortKey{Expr: liftExprFull(k.Expr), Desc: k.Desc}
			}
			layers[i].keys = newKeys
		case "extend":
			layers[i].expr = liftExprFull(layers[i].expr)
		}
	}

	newGroup := algebra.Group{Input: liftAggregates(groupInput), Keys: grp.Keys, Aggregates: aggregates}
	// rewrittenPre is innermost-first (the SELECT clause's original
	// left-to-right aggregate order, e1 nearest the raw pattern); wrap
	// forward so the last one ends up outermost, mirroring how the
	// parser nested them below the Group in the first place.
	var result algebra.Node = newGroup
	for _, l := range rewrittenPre {
		result = algebra.Extend{Input: result, Var: l.v, Expr: l.expr}
	}
	return rewrapChain(result, layers)
}

// rewrapChain reconstructs the node chain from innermost (layers[len-1])
// to outermost (layers[0]) around base.
func rewrapChain(base algebra.Node, layers []chainLayer) algebra.Node {
	result := base
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		switch l.kind {
		case "distinct":
			result = algebra.Distinct{Input: result}
		case "reduced":
			result = algebra.Reduced{Input: result}
		case "project":
			result = algebra.Project{Input: result, Vars: l.vars}
		case "slice":
			result = algebra.Slice{Input: result, Offset: l.off, Limit: l.lim}
		case "order":
			result = algebra.OrderBy{Input: result, Keys: l.keys}
		case "filter":
			result = algebra.Filter{Input: result, Cond: l.cond}
		case "extend":
			result = algebra.Extend{Input: result, Var: l.v, Expr: l.expr}
		}
	}
	return result
}

type pendingAggExtend struct {
	v   algebra.Var
	agg algebra.Aggregate
}

// extractAggregateExtends strips a run of Extend layers off the
// bottom of input whose Expr is a pure AggregateExpr (the SELECT-
// clause (COUNT(*) AS ?c) style bindings the parser places below
// GROUP BY), returning the remaining input and the stripped bindings
// innermost first.
func extractAggregateExtends(input algebra.Node) (algebra.Node, []pendingAggExtend) {
	var pending []pendingAggExtend
	for {
		ext, ok := input.(algebra.Extend)
		if !ok {
			break
		}
		agg, ok := ext.Expr.(algebra.AggregateExpr)
		if !ok {
			break
		}
		pending = append([]pendingAggExtend{{v: ext.Var, agg: algebra.Aggregate{Func: agg.Func, Arg: agg.Arg, Distinct: agg.Distinct, Separator: agg.Separator}}}, pending...)
		input = ext.Input
	}
	return input, pending
}

// liftExprAggregates replaces every AggregateExpr in e with an
// AggregateRef, appending each to *aggregates in the order found.
func liftExprAggregates(e algebra.Expr, aggregates *[]algebra.Aggregate) algebra.Expr {
	switch t := e.(type) {
	case algebra.AggregateExpr:
		*aggregates = append(*aggregates, algebra.Aggregate{Func: t.Func, Arg: t.Arg, Distinct: t.Distinct, Separator: t.Separator})
		return algebra.AggregateRef{Index: len(*aggregates) - 1}
	case algebra.Unary:
		return algebra.Unary{Op: t.Op, Expr: liftExprAggregates(t.Expr, aggregates)}
	case algebra.Binary:
		return algebra.Binary{Op: t.Op, Left: liftExprAggregates(t.Left, aggregates), Right: liftExprAggregates(t.Right, aggregates)}
	case algebra.Func:
		args := make([]algebra.Expr, len(t.Args))
		for i, a := range t.Args {
			args[i] = liftExprAggregates(a, aggregates)
		}
		return algebra.Func{Name: t.Name, Args: args}
	case algebra.In:
		list := make([]algebra.Expr, len(t.List))
		for i, a := range t.List {
			list[i] = liftExprAggregates(a, aggregates)
		}
		return algebra.In{Expr: liftExprAggregates(t.Expr, aggregates), List: list, Negated: t.Negated}
	case algebra.Coalesce:
		args := make([]algebra.Expr, len(t.Args))
		for i, a := range t.Args {
			args[i] = liftExprAggregates(a, aggregates)
		}
		return algebra.Coalesce{Args: args}
	case algebra.If:
		return algebra.If{Cond: liftExprAggregates(t.Cond, aggregates), Then: liftExprAggregates(t.Then, aggregates), Else: liftExprAggregates(t.Else, aggregates)}
	case algebra.Exists:
		// A nested EXISTS pattern is its own query context; its
		// aggregates (if any) are lifted by the top-level recursion
		// into that Pattern, not folded into the outer Group.
		return t
	default:
		return e
	}
}
