package algebra

import "github.com/boutros/quadstore/term"

// Expr is a SPARQL expression node (spec.md §4.6 "Expression:
// boolean/arithmetic/string/numeric/date functions, EXISTS/NOT
// EXISTS, IN, COALESCE, IF, BOUND, aggregates inside GROUP contexts").
// Evaluation lives in exec, which turns an Expr into a three-valued
// Value|Error|Unbound result against a solution mapping.
type Expr interface {
	isExpr()
}

// ExprVar references a variable's current binding.
type ExprVar struct{ Var Var }

func (ExprVar) isExpr() {}

// ExprLit is a constant term (IRI, literal, or blank node are all
// legal constants in expression position per the grammar, though
// blank nodes are rejected by later semantic checks where illegal).
type ExprLit struct{ Term term.Term }

func (ExprLit) isExpr() {}

// UnaryOp is a prefix/unary operator: NOT, unary +/-.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpUnaryPlus
	OpUnaryMinus
)

type Unary struct {
	Op   UnaryOp
	Expr Expr
}

func (Unary) isExpr() {}

// BinOp is an infix binary operator.
type BinOp int

const (
	OpOr BinOp = iota
	OpAnd
	OpEqual
	OpNotEqual
	OpLess
	OpGreater
	OpLessEq
	OpGreaterEq
	OpAdd
	OpSub
	OpMul
	OpDiv
)

type Binary struct {
	Op          BinOp
	Left, Right Expr
}

func (Binary) isExpr() {}

// Func is a named built-in function call: string (STRLEN, SUBSTR,
// CONTAINS, STRSTARTS, STRENDS, REPLACE, UCASE, LCASE, CONCAT,
// ENCODE_FOR_URI, ...), numeric (ABS, ROUND, CEIL, FLOOR), date
// (YEAR, MONTH, DAY, HOURS, MINUTES, SECONDS, TIMEZONE, TZ, NOW),
// term-inspection (STR, LANG, DATATYPE, isIRI, isBLANK, isLITERAL,
// isNUMERIC, BNODE, IRI, STRDT, STRLANG, UUID, STRUUID), hashing
// (MD5, SHA1, SHA256, SHA384, SHA512), and REGEX.
type Func struct {
	Name string
	Args []Expr
}

func (Func) isExpr() {}

// Bound is the BOUND(?var) test, special-cased because unlike other
// functions it does not propagate Unbound from an unbound argument.
type Bound struct{ Var Var }

func (Bound) isExpr() {}

// In is `expr IN (list...)`; Negated makes it NOT IN.
type In struct {
	Expr    Expr
	List    []Expr
	Negated bool
}

func (In) isExpr() {}

// Coalesce evaluates each Args entry in order, returning the first
// that does not error/unbind.
type Coalesce struct{ Args []Expr }

func (Coalesce) isExpr() {}

// If is IF(cond, then, else).
type If struct {
	Cond, Then, Else Expr
}

func (If) isExpr() {}

// Exists is EXISTS/NOT EXISTS { pattern }, evaluated by substituting
// the current solution's bound variables into Pattern and checking
// for at least one matching row (spec.md §4.9 "Exists / Not-Exists").
type Exists struct {
	Pattern Node
	Negated bool
}

func (Exists) isExpr() {}

// AggregateExpr is an aggregate function call appearing in expression
// position (e.g. SELECT (COUNT(*) AS ?c) or inside HAVING). The
// optimizer lifts it into the enclosing Group node's Aggregates list
// and rewrites this occurrence to an AggregateRef.
type AggregateExpr struct {
	Func      AggFunc
	Arg       Expr // nil for COUNT(*)
	Distinct  bool
	Separator string
}

func (AggregateExpr) isExpr() {}

// AggregateRef is an aggregate expression used outside its defining
// Group node (e.g. HAVING), resolved by the optimizer/executor to the
// matching Aggregate's bound value by position.
type AggregateRef struct {
	Index int
}

func (AggregateRef) isExpr() {}

// Vars returns e's free variables by walking the expression tree.
func Vars(e Expr) []Var {
	var out []Var
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case ExprVar:
			out = append(out, e.Var)
		case ExprLit:
		case Unary:
			walk(e.Expr)
		case Binary:
			walk(e.Left)
			walk(e.Right)
		case Func:
			for _, a := range e.Args {
				walk(a)
			}
		case Bound:
			out = append(out, e.Var)
		case In:
			walk(e.Expr)
			for _, a := range e.List {
				walk(a)
			}
		case Coalesce:
			for _, a := range e.Args {
				walk(a)
			}
		case If:
			walk(e.Cond)
			walk(e.Then)
			walk(e.Else)
		case Exists:
			if vl, ok := e.Pattern.(VarLister); ok {
				out = append(out, vl.Vars()...)
			}
		case AggregateExpr:
			if e.Arg != nil {
				walk(e.Arg)
			}
		case AggregateRef:
		}
	}
	walk(e)
	return out
}
