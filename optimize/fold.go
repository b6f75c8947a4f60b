package optimize

import (
	"strconv"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

// foldConstants folds expressions with literal operands at plan time
// (spec.md §4.8 "Constant folding"). Scope is deliberately modest:
// boolean short-circuiting and literal arithmetic, the cases cheap to
// get right without duplicating exec's full three-valued numeric type
// system here — anything beyond that is left for exec to evaluate at
// run time, where the real typing rules already live.
func foldConstants(n algebra.Node) algebra.Node {
	return recurse(n, foldConstantsStep)
}

func foldConstantsStep(n algebra.Node) algebra.Node {
	switch t := n.(type) {
	case algebra.Filter:
		return algebra.Filter{Input: t.Input, Cond: foldExpr(t.Cond)}
	case algebra.Extend:
		return algebra.Extend{Input: t.Input, Var: t.Var, Expr: foldExpr(t.Expr)}
	case algebra.LeftJoin:
		if t.Filter == nil {
			return t
		}
		return algebra.LeftJoin{Left: t.Left, Right: t.Right, Filter: foldExpr(t.Filter)}
	case algebra.OrderBy:
		keys := make([]algebra.SortKey, len(t.Keys))
		for i, k := range t.Keys {
			keys[i] = algebra.SortKey{Expr: foldExpr(k.Expr), Desc: k.Desc}
		}
		return algebra.OrderBy{Input: t.Input, Keys: keys}
	case algebra.Group:
		keys := make([]algebra.Expr, len(t.Keys))
		for i, k := range t.Keys {
			keys[i] = foldExpr(k)
		}
		return algebra.Group{Input: t.Input, Keys: keys, Aggregates: t.Aggregates}
	default:
		return n
	}
}

func foldExpr(e algebra.Expr) algebra.Expr {
	switch t := e.(type) {
	case algebra.Unary:
		inner := foldExpr(t.Expr)
		if t.Op == algebra.OpNot {
			if b, ok := litBool(inner); ok {
				return algebra.ExprLit{Term: term.NewLiteral(!b)}
			}
		}
		return algebra.Unary{Op: t.Op, Expr: inner}
	case algebra.Binary:
		left := foldExpr(t.Left)
		right := foldExpr(t.Right)
		switch t.Op {
		case algebra.OpAnd:
			if b, ok := litBool(left); ok {
				if !b {
					return algebra.ExprLit{Term: term.NewLiteral(false)}
				}
				return right
			}
			if b, ok := litBool(right); ok && !b {
				return algebra.ExprLit{Term: term.NewLiteral(false)}
			}
		case algebra.OpOr:
			if b, ok := litBool(left); ok {
				if b {
					return algebra.ExprLit{Term: term.NewLiteral(true)}
				}
				return right
			}
			if b, ok := litBool(right); ok && b {
				return algebra.ExprLit{Term: term.NewLiteral(true)}
			}
		case algebra.OpAdd, algebra.OpSub, algebra.OpMul:
			if lv, lok := litInt(left); lok {
				if rv, rok := litInt(right); rok {
					folded := strconv.FormatInt(applyIntOp(t.Op, lv, rv), 10)
					return algebra.ExprLit{Term: term.NewTypedLiteral(folded, term.XSDinteger)}
				}
			}
		}
		return algebra.Binary{Op: t.Op, Left: left, Right: right}
	case algebra.Func:
		args := make([]algebra.Expr, len(t.Args))
		for i, a := range t.Args {
			args[i] = foldExpr(a)
		}
		return algebra.Func{Name: t.Name, Args: args}
	case algebra.In:
		list := make([]algebra.Expr, len(t.List))
		for i, a := range t.List {
			list[i] = foldExpr(a)
		}
		return algebra.In{Expr: foldExpr(t.Expr), List: list, Negated: t.Negated}
	case algebra.Coalesce:
		args := make([]algebra.Expr, len(t.Args))
		for i, a := range t.Args {
			args[i] = foldExpr(a)
		}
		return algebra.Coalesce{Args: args}
	case algebra.If:
		cond := foldExpr(t.Cond)
		if b, ok := litBool(cond); ok {
			if b {
				return foldExpr(t.Then)
			}
			return foldExpr(t.Else)
		}
		return algebra.If{Cond: cond, Then: foldExpr(t.Then), Else: foldExpr(t.Else)}
	case algebra.Exists:
		return algebra.Exists{Pattern: foldConstants(t.Pattern), Negated: t.Negated}
	default:
		return e
	}
}

func litBool(e algebra.Expr) (bool, bool) {
	lit, ok := e.(algebra.ExprLit)
	if !ok {
		return false, false
	}
	l, ok := lit.Term.(term.Literal)
	if !ok || l.DataType() != term.XSDboolean {
		return false, false
	}
	return l.String() == "true", true
}

func litInt(e algebra.Expr) (int64, bool) {
	lit, ok := e.(algebra.ExprLit)
	if !ok {
		return 0, false
	}
	l, ok := lit.Term.(term.Literal)
	if !ok || l.DataType() != term.XSDinteger {
		return 0, false
	}
	v, err := strconv.ParseInt(l.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func applyIntOp(op algebra.BinOp, a, b int64) int64 {
	switch op {
	case algebra.OpAdd:
		return a + b
	case algebra.OpSub:
		return a - b
	case algebra.OpMul:
		return a * b
	default:
		return 0
	}
}

// prune removes plumbing the rest of the plan no longer needs: nested
// Projects collapse to the outer one, and a BIND immediately beneath a
// Project whose variable the projection never asks for is dropped
// (spec.md §4.8 "Projection pruning").
func prune(n algebra.Node) algebra.Node {
	return recurse(n, pruneStep)
}

func pruneStep(n algebra.Node) algebra.Node {
	proj, ok := n.(algebra.Project)
	if !ok {
		return n
	}
	if inner, ok := proj.Input.(algebra.Project); ok {
		return algebra.Project{Input: inner.Input, Vars: proj.Vars}
	}
	if ext, ok := proj.Input.(algebra.Extend); ok && !varIn(ext.Var, proj.Vars) {
		return algebra.Project{Input: ext.Input, Vars: proj.Vars}
	}
	return proj
}

func varIn(v algebra.Var, vars []algebra.Var) bool {
	for _, x := range vars {
		if x == v {
			return true
		}
	}
	return false
}
