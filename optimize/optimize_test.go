package optimize

import (
	"reflect"
	"testing"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

func TestReorderJoinsPutsMostBoundPatternFirst(t *testing.T) {
	a := term.IRI("http://example.org/a")
	p := term.IRI("http://example.org/p")
	q := term.IRI("http://example.org/q")

	unbound := algebra.QuadPattern{Subject: algebra.VarPos("s"), Predicate: algebra.VarPos("p"), Object: algebra.VarPos("o")}
	bound := algebra.QuadPattern{Subject: algebra.BoundTerm(a), Predicate: algebra.BoundTerm(p), Object: algebra.VarPos("x")}
	partial := algebra.QuadPattern{Subject: algebra.VarPos("x"), Predicate: algebra.BoundTerm(q), Object: algebra.VarPos("y")}

	out := reorderJoinStep(algebra.Join{Left: unbound, Right: algebra.Join{Left: bound, Right: partial}})

	leaves := flattenJoin(out)
	if len(leaves) != 3 {
		t.Fatalf("got %d leaves, want 3", len(leaves))
	}
	if !reflect.DeepEqual(leaves[0], algebra.Node(bound)) {
		t.Fatalf("expected the fully-bound pattern first, got %+v", leaves[0])
	}
	if !reflect.DeepEqual(leaves[1], algebra.Node(partial)) {
		t.Fatalf("expected the pattern sharing ?x placed second, got %+v", leaves[1])
	}
}

func TestNormalizeOptionalFiltersMovesFilterIntoLeftJoin(t *testing.T) {
	s := term.IRI("http://example.org/s")
	lj := algebra.LeftJoin{
		Left: algebra.QuadPattern{Subject: algebra.BoundTerm(s), Predicate: algebra.VarPos("p"), Object: algebra.VarPos("v")},
		Right: algebra.Filter{
			Input: algebra.QuadPattern{Subject: algebra.BoundTerm(s), Predicate: algebra.VarPos("q"), Object: algebra.VarPos("w")},
			Cond:  algebra.Binary{Op: algebra.OpGreater, Left: algebra.ExprVar{Var: "w"}, Right: algebra.ExprLit{Term: term.NewTypedLiteral("0", term.XSDinteger)}},
		},
	}
	out := normalizeOptionalFilters(lj)
	got, ok := out.(algebra.LeftJoin)
	if !ok {
		t.Fatalf("expected algebra.LeftJoin, got %T", out)
	}
	if got.Filter == nil {
		t.Fatalf("expected the FILTER to be lifted onto LeftJoin.Filter")
	}
	if _, isFilter := got.Right.(algebra.Filter); isFilter {
		t.Fatalf("Right should no longer be wrapped in a Filter")
	}
}

func TestPushdownFiltersSplitsConjunctionAcrossJoinSides(t *testing.T) {
	a := term.IRI("http://example.org/a")
	left := algebra.QuadPattern{Subject: algebra.BoundTerm(a), Predicate: algebra.VarPos("p"), Object: algebra.VarPos("x")}
	right := algebra.QuadPattern{Subject: algebra.VarPos("x"), Predicate: algebra.VarPos("q"), Object: algebra.VarPos("y")}
	cond := algebra.Binary{
		Op:   algebra.OpAnd,
		Left: algebra.Binary{Op: algebra.OpGreater, Left: algebra.ExprVar{Var: "x"}, Right: algebra.ExprLit{Term: term.NewTypedLiteral("0", term.XSDinteger)}},
		Right: algebra.Binary{Op: algebra.OpGreater, Left: algebra.ExprVar{Var: "y"}, Right: algebra.ExprLit{Term: term.NewTypedLiteral("0", term.XSDinteger)}},
	}
	in := algebra.Filter{Input: algebra.Join{Left: left, Right: right}, Cond: cond}

	out := pushdownFilterStep(in)
	j, ok := out.(algebra.Join)
	if !ok {
		t.Fatalf("expected the Filter wrapper to disappear, leaving a bare Join, got %T", out)
	}
	if _, ok := j.Left.(algebra.Filter); !ok {
		t.Fatalf("expected the ?x>0 conjunct pushed onto Join.Left, got %T", j.Left)
	}
	if _, ok := j.Right.(algebra.Filter); !ok {
		t.Fatalf("expected the ?y>0 conjunct pushed onto Join.Right, got %T", j.Right)
	}
}

func TestFoldConstantsShortCircuitsAnd(t *testing.T) {
	e := algebra.Binary{
		Op:   algebra.OpAnd,
		Left: algebra.ExprLit{Term: term.NewLiteral(false)},
		Right: algebra.Binary{
			Op:    algebra.OpEqual,
			Left:  algebra.ExprVar{Var: "x"},
			Right: algebra.ExprVar{Var: "y"},
		},
	}
	got := foldExpr(e)
	lit, ok := got.(algebra.ExprLit)
	if !ok {
		t.Fatalf("expected folding to short-circuit to a literal, got %T", got)
	}
	b, ok := lit.Term.(term.Literal)
	if !ok || b.String() != "false" {
		t.Fatalf("got %v, want literal false", lit.Term)
	}
}

func TestFoldConstantsFoldsIntegerArithmetic(t *testing.T) {
	e := algebra.Binary{
		Op:    algebra.OpAdd,
		Left:  algebra.ExprLit{Term: term.NewTypedLiteral("2", term.XSDinteger)},
		Right: algebra.ExprLit{Term: term.NewTypedLiteral("3", term.XSDinteger)},
	}
	got := foldExpr(e)
	lit, ok := got.(algebra.ExprLit)
	if !ok {
		t.Fatalf("expected a folded literal, got %T", got)
	}
	l, ok := lit.Term.(term.Literal)
	if !ok || l.String() != "5" {
		t.Fatalf("got %v, want 5", lit.Term)
	}
}

func TestPruneCollapsesNestedProjects(t *testing.T) {
	inner := algebra.Project{Input: algebra.Values{}, Vars: []algebra.Var{"s", "p"}}
	outer := algebra.Project{Input: inner, Vars: []algebra.Var{"s"}}
	got := pruneStep(outer)
	proj, ok := got.(algebra.Project)
	if !ok {
		t.Fatalf("expected algebra.Project, got %T", got)
	}
	if _, nested := proj.Input.(algebra.Project); nested {
		t.Fatalf("expected the nested Project to collapse away")
	}
	if len(proj.Vars) != 1 || proj.Vars[0] != "s" {
		t.Fatalf("got Vars=%v, want [s]", proj.Vars)
	}
}

func TestPruneDropsUnusedBind(t *testing.T) {
	ext := algebra.Extend{Input: algebra.Values{}, Var: "unused", Expr: algebra.ExprLit{Term: term.NewLiteral(1)}}
	proj := algebra.Project{Input: ext, Vars: []algebra.Var{"s"}}
	got := pruneStep(proj)
	p, ok := got.(algebra.Project)
	if !ok {
		t.Fatalf("expected algebra.Project, got %T", got)
	}
	if _, isExtend := p.Input.(algebra.Extend); isExtend {
		t.Fatalf("expected the unused BIND to be dropped")
	}
}

func TestWalkChildrenRecursesIntoAsk(t *testing.T) {
	inner := algebra.QuadPattern{Subject: algebra.VarPos("s"), Predicate: algebra.VarPos("p"), Object: algebra.VarPos("o")}
	ask := algebra.Ask{Input: inner}
	called := false
	out := walkChildren(ask, func(n algebra.Node) algebra.Node {
		called = true
		return n
	})
	if !called {
		t.Fatalf("walkChildren must recurse into Ask.Input")
	}
	if _, ok := out.(algebra.Ask); !ok {
		t.Fatalf("expected algebra.Ask, got %T", out)
	}
}

func TestOptimizeIsIdempotentOnAlreadyOptimizedTree(t *testing.T) {
	a := term.IRI("http://example.org/a")
	n := algebra.Project{
		Input: algebra.QuadPattern{Subject: algebra.BoundTerm(a), Predicate: algebra.VarPos("p"), Object: algebra.VarPos("o")},
		Vars:  []algebra.Var{"p", "o"},
	}
	once := Optimize(n)
	twice := Optimize(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("Optimize should be a fixpoint on an already-optimized tree: %+v != %+v", once, twice)
	}
}
