// Package optimize rewrites an algebra.Node tree produced by sparql
// (component C7) into an equivalent tree shaped for cheap execution
// by exec (spec.md §4.8, component C8). Every rule is a pure function
// on the algebra: no cost estimates, no statistics, a fixed pipeline
// applied in the same order every time, so two calls on the same
// input tree always produce the same plan.
//
// There is no teacher equivalent (sopp has no query planner); the
// rule set follows spec.md §4.8's list directly, written the way the
// teacher prefers small composable free functions over a class
// hierarchy (rdf/graph.go's eqTerms/split).
package optimize

import "github.com/boutros/quadstore/algebra"

// Rule is one pure rewrite pass.
type Rule func(algebra.Node) algebra.Node

// pipeline is the fixed rule order. Aggregate lifting runs first since
// later rules (filter pushdown, constant folding) need AggregateRef in
// place rather than raw AggregateExpr sitting in arbitrary expression
// positions. Path rewriting runs before join reordering so small
// fixed-length paths participate in the same BGP reordering as any
// other triple pattern. Pruning runs last so it sees the final shape.
var pipeline = []Rule{
	liftAggregates,
	rewritePaths,
	normalizeOptionalFilters,
	pushdownFilters,
	reorderJoins,
	foldConstants,
	prune,
}

// Optimize runs the fixed rule pipeline over n and returns the
// rewritten tree. n is not mutated; algebra.Node values are immutable
// data, so every rule returns a new tree rather than editing in place.
func Optimize(n algebra.Node) algebra.Node {
	for _, rule := range pipeline {
		n = rule(n)
	}
	return n
}

// walkChildren applies fn to every direct Node child of n and
// rebuilds n with the results; fn decides whether to recurse further.
// Service's Pattern is handed to fn like any other child. Leaves
// (QuadPattern, Values, Path) are returned unchanged. Rules that only care about a handful of node kinds call
// this as their default case.
func walkChildren(n algebra.Node, fn func(algebra.Node) algebra.Node) algebra.Node {
	switch t := n.(type) {
	case algebra.Join:
		return algebra.Join{Left: fn(t.Left), Right: fn(t.Right)}
	case algebra.LeftJoin:
		return algebra.LeftJoin{Left: fn(t.Left), Right: fn(t.Right), Filter: t.Filter}
	case algebra.Union:
		return algebra.Union{Left: fn(t.Left), Right: fn(t.Right)}
	case algebra.Minus:
		return algebra.Minus{Left: fn(t.Left), Right: fn(t.Right)}
	case algebra.Filter:
		return algebra.Filter{Input: fn(t.Input), Cond: t.Cond}
	case algebra.Extend:
		return algebra.Extend{Input: fn(t.Input), Var: t.Var, Expr: t.Expr}
	case algebra.Project:
		return algebra.Project{Input: fn(t.Input), Vars: t.Vars}
	case algebra.Distinct:
		return algebra.Distinct{Input: fn(t.Input)}
	case algebra.Reduced:
		return algebra.Reduced{Input: fn(t.Input)}
	case algebra.Slice:
		return algebra.Slice{Input: fn(t.Input), Offset: t.Offset, Limit: t.Limit}
	case algebra.OrderBy:
		return algebra.OrderBy{Input: fn(t.Input), Keys: t.Keys}
	case algebra.Group:
		return algebra.Group{Input: fn(t.Input), Keys: t.Keys, Aggregates: t.Aggregates}
	case algebra.Service:
		return algebra.Service{Endpoint: t.Endpoint, Pattern: fn(t.Pattern), Silent: t.Silent}
	case algebra.Construct:
		return algebra.Construct{Templates: t.Templates, Input: fn(t.Input), ShorthandSelf: t.ShorthandSelf}
	case algebra.Describe:
		if t.Input == nil {
			return t
		}
		return algebra.Describe{Targets: t.Targets, Star: t.Star, Input: fn(t.Input)}
	case algebra.Ask:
		return algebra.Ask{Input: fn(t.Input)}
	default:
		return n
	}
}

// recurse applies rule bottom-up: children first (including any EXISTS
// subquery nested in an expression field), then rule itself on the
// rebuilt node.
func recurse(n algebra.Node, rule Rule) algebra.Node {
	if n == nil {
		return nil
	}
	sub := func(c algebra.Node) algebra.Node { return recurse(c, rule) }
	n = walkChildren(n, sub)
	n = rewriteNodeExprs(n, sub)
	return rule(n)
}

// rewriteNodeExprs rewrites EXISTS subqueries embedded in n's own
// expression fields with nodeFn, so a rule applied through recurse
// also reaches a subquery nested inside FILTER EXISTS{...}.
func rewriteNodeExprs(n algebra.Node, nodeFn func(algebra.Node) algebra.Node) algebra.Node {
	switch t := n.(type) {
	case algebra.Filter:
		return algebra.Filter{Input: t.Input, Cond: rewriteExistsPatterns(t.Cond, nodeFn)}
	case algebra.Extend:
		return algebra.Extend{Input: t.Input, Var: t.Var, Expr: rewriteExistsPatterns(t.Expr, nodeFn)}
	case algebra.LeftJoin:
		return algebra.LeftJoin{Left: t.Left, Right: t.Right, Filter: rewriteExistsPatterns(t.Filter, nodeFn)}
	case algebra.Group:
		keys := make([]algebra.Expr, len(t.Keys))
		for i, k := range t.Keys {
			keys[i] = rewriteExistsPatterns(k, nodeFn)
		}
		return algebra.Group{Input: t.Input, Keys: keys, Aggregates: t.Aggregates}
	case algebra.OrderBy:
		keys := make([]algebra.SortKey, len(t.Keys))
		for i, k := range t.Keys {
			keys[i] = algebra.SortKey{Expr: rewriteExistsPatterns(k.Expr, nodeFn), Desc: k.Desc}
		}
		return algebra.OrderBy{Input: t.Input, Keys: keys}
	default:
		return n
	}
}

// rewriteExistsPatterns rewrites every EXISTS/NOT EXISTS pattern
// reachable from e with nodeFn, so rules that recurse into sibling
// Node trees (aggregate lifting, join reordering) also reach a
// subquery nested inside a FILTER EXISTS{...}.
func rewriteExistsPatterns(e algebra.Expr, nodeFn func(algebra.Node) algebra.Node) algebra.Expr {
	switch t := e.(type) {
	case algebra.Unary:
		return algebra.Unary{Op: t.Op, Expr: rewriteExistsPatterns(t.Expr, nodeFn)}
	case algebra.Binary:
		return algebra.Binary{Op: t.Op, Left: rewriteExistsPatterns(t.Left, nodeFn), Right: rewriteExistsPatterns(t.Right, nodeFn)}
	case algebra.Func:
		args := make([]algebra.Expr, len(t.Args))
		for i, a := range t.Args {
			args[i] = rewriteExistsPatterns(a, nodeFn)
		}
		return algebra.Func{Name: t.Name, Args: args}
	case algebra.In:
		list := make([]algebra.Expr, len(t.List))
		for i, a := range t.List {
			list[i] = rewriteExistsPatterns(a, nodeFn)
		}
		return algebra.In{Expr: rewriteExistsPatterns(t.Expr, nodeFn), List: list, Negated: t.Negated}
	case algebra.Coalesce:
		args := make([]algebra.Expr, len(t.Args))
		for i, a := range t.Args {
			args[i] = rewriteExistsPatterns(a, nodeFn)
		}
		return algebra.Coalesce{Args: args}
	case algebra.If:
		return algebra.If{Cond: rewriteExistsPatterns(t.Cond, nodeFn), Then: rewriteExistsPatterns(t.Then, nodeFn), Else: rewriteExistsPatterns(t.Else, nodeFn)}
	case algebra.Exists:
		return algebra.Exists{Pattern: nodeFn(t.Pattern), Negated: t.Negated}
	default:
		return e
	}
}
