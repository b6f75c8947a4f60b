package algebra

import (
	"reflect"
	"testing"

	"github.com/boutros/quadstore/term"
)

func TestQuadPatternVars(t *testing.T) {
	pred := term.NewIRI("http://example.org/p")
	p := QuadPattern{
		Subject:   VarPos("s"),
		Predicate: BoundTerm(pred),
		Object:    VarPos("o"),
		Graph:     TermOrVar{},
	}
	got := p.Vars()
	want := []Var{"s", "o"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Vars() = %v, want %v", got, want)
	}
}

func TestExprVars(t *testing.T) {
	e := Binary{
		Op:   OpAnd,
		Left: ExprVar{Var: "x"},
		Right: Func{
			Name: "STRLEN",
			Args: []Expr{ExprVar{Var: "y"}},
		},
	}
	got := Vars(e)
	want := []Var{"x", "y"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Vars() = %v, want %v", got, want)
	}
}

func TestBoundVars(t *testing.T) {
	got := Vars(Bound{Var: "z"})
	want := []Var{"z"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Vars() = %v, want %v", got, want)
	}
}
