package optimize

import "github.com/boutros/quadstore/algebra"

// rewritePaths expands a fixed-length property path (one built only
// from IRI, inverse, and sequence steps — no alternative, closure, or
// negated-property-set) into a Join of ordinary QuadPatterns, threaded
// through fresh intermediate variables (spec.md §4.8 "Path rewriting:
// small fixed-length paths expand into joins of triple patterns").
// `*`/`+`/`?`/alternative/negated-set paths are left as a Path node
// for exec's dedicated fixed-point operator, per the same sentence's
// second half.
func rewritePaths(n algebra.Node) algebra.Node {
	return recurse(n, rewritePathStep)
}

func rewritePathStep(n algebra.Node) algebra.Node {
	p, ok := n.(algebra.Path)
	if !ok || !isFixedLength(p.Expr) {
		return n
	}
	return expandFixedPath(p.Subject, p.Expr, p.Object, p.Graph)
}

func isFixedLength(p algebra.PathOp) bool {
	switch t := p.(type) {
	case algebra.PathIRI:
		return true
	case algebra.PathInverse:
		return isFixedLength(t.Path)
	case algebra.PathSeq:
		return isFixedLength(t.Left) && isFixedLength(t.Right)
	default:
		return false
	}
}

var pathVarCounter int

// freshPathVar allocates a join variable standing in for an
// intermediate node of a rewritten path, the same fresh-variable
// convention the parser uses for anonymous blank node syntax
// (sparql's freshBlankVar).
func freshPathVar() algebra.Var {
	pathVarCounter++
	return algebra.Var("_path" + itoaSmall(pathVarCounter))
}

func itoaSmall(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

func expandFixedPath(s algebra.TermOrVar, p algebra.PathOp, o, g algebra.TermOrVar) algebra.Node {
	switch t := p.(type) {
	case algebra.PathIRI:
		return algebra.QuadPattern{Subject: s, Predicate: algebra.BoundTerm(t.IRI), Object: o, Graph: g}
	case algebra.PathInverse:
		return expandFixedPath(o, t.Path, s, g)
	case algebra.PathSeq:
		mid := algebra.VarPos(freshPathVar())
		return algebra.Join{Left: expandFixedPath(s, t.Left, mid, g), Right: expandFixedPath(mid, t.Right, o, g)}
	default:
		return algebra.Path{Subject: s, Object: o, Graph: g, Expr: p}
	}
}
