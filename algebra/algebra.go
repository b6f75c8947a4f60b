// Package algebra defines the SPARQL algebra value tree (spec.md
// §4.6, component C6): the language-neutral intermediate
// representation that the parser (sparql), optimizer (optimize) and
// executor (exec) all operate on. It holds no storage or evaluation
// logic of its own, matching spec.md's "the algebra is language-
// neutral data; all further passes operate on it".
//
// There is no teacher equivalent (sopp has no query language); the
// node shapes follow spec.md §4.6 directly, named the way the
// teacher names its own small ASTs (rdf/graph.go's Triple, Graph).
package algebra

import "github.com/boutros/quadstore/term"

// Var is a SPARQL variable name, without its leading '?' or '$'.
type Var string

// Node is any algebra tree node: pattern leaves, binary and unary
// operators, and path expressions.
type Node interface {
	isNode()
}

// Vars returns the node's free variables, used by projection pruning
// and filter pushdown (spec.md §4.8).
type VarLister interface {
	Vars() []Var
}

// --- Leaves ---

// TermOrVar is either a bound term.Term or an unbound Var, appearing
// in pattern leaves. Exactly one of Bound/Variable is set. Terms stay
// unencoded at this layer: the parser has no dictionary access (spec.md
// §4.7 "no semantic checks happen here"); exec resolves Bound to a
// term.ID via the dictionary's read-only lookup when compiling the
// pattern into a probe.
type TermOrVar struct {
	Bound    term.Term
	Variable Var
}

func BoundTerm(t term.Term) TermOrVar { return TermOrVar{Bound: t} }
func VarPos(v Var) TermOrVar          { return TermOrVar{Variable: v} }

func (t TermOrVar) IsVar() bool { return t.Bound == nil && t.Variable != "" }

// QuadPattern is a single (s,p,o,g) pattern leaf; Graph.Variable == ""
// with Graph.Bound == nil denotes the default graph.
type QuadPattern struct {
	Subject, Predicate, Object, Graph TermOrVar
}

func (QuadPattern) isNode() {}

func (p QuadPattern) Vars() []Var {
	var out []Var
	for _, t := range []TermOrVar{p.Subject, p.Predicate, p.Object, p.Graph} {
		if t.IsVar() && t.Variable != "" {
			out = append(out, t.Variable)
		}
	}
	return out
}

// Values is an inline bindings table leaf (a SPARQL VALUES clause).
type Values struct {
	Columns []Var
	// Rows holds one term.Term per column per row; nil means UNDEF for
	// that (row, column).
	Rows [][]term.Term
}

func (Values) isNode() {}

func (v Values) Vars() []Var { return v.Columns }

// --- Binary operators ---

type Join struct{ Left, Right Node }

func (Join) isNode() {}

// LeftJoin is SPARQL OPTIONAL: Right is attempted per Left solution,
// with an optional join Filter (nil means none).
type LeftJoin struct {
	Left, Right Node
	Filter      Expr
}

func (LeftJoin) isNode() {}

type Union struct{ Left, Right Node }

func (Union) isNode() {}

// Minus is SPARQL MINUS: Left rows compatible with and sharing a
// variable with some Right row are dropped.
type Minus struct{ Left, Right Node }

func (Minus) isNode() {}

// --- Unary operators ---

type Filter struct {
	Input Node
	Cond  Expr
}

func (Filter) isNode() {}

type Project struct {
	Input Node
	Vars  []Var
}

func (Project) isNode() {}

type Distinct struct{ Input Node }

func (Distinct) isNode() {}

// Reduced is SPARQL REDUCED: like Distinct, but the executor is
// permitted to forget and emit duplicates (spec.md §4.9).
type Reduced struct{ Input Node }

func (Reduced) isNode() {}

type Slice struct {
	Input  Node
	Offset int64 // -1 means unset
	Limit  int64 // -1 means unset
}

func (Slice) isNode() {}

// SortKey is one ORDER BY expression, ascending unless Desc is set.
type SortKey struct {
	Expr Expr
	Desc bool
}

type OrderBy struct {
	Input Node
	Keys  []SortKey
}

func (OrderBy) isNode() {}

// Extend is SPARQL BIND: evaluates Expr per input solution and binds
// it to Var, leaving Var unbound on expression error.
type Extend struct {
	Input Node
	Var   Var
	Expr  Expr
}

func (Extend) isNode() {}

// Aggregate is one aggregate function applied within a Group.
type Aggregate struct {
	Func    AggFunc
	Arg     Expr // nil for COUNT(*)
	Distinct bool
	As      Var
	// Separator is GROUP_CONCAT's join string; defaults to " ".
	Separator string
}

type AggFunc int

const (
	AggCount AggFunc = iota
	AggSum
	AggMin
	AggMax
	AggAvg
	AggSample
	AggGroupConcat
)

// Group partitions Input on Keys and applies each Aggregate per
// partition (spec.md §4.9 "Group + aggregate").
type Group struct {
	Input      Node
	Keys       []Expr
	Aggregates []Aggregate
}

func (Group) isNode() {}

// ServiceClient is the external collaborator interface for SPARQL
// SERVICE delegation (spec.md §4.9 "delegate to an external SPARQL
// endpoint via the externally provided client interface"). Out of
// scope per spec.md §1: the core only defines the seam.
type ServiceClient interface {
	// Query sends query text to endpoint and returns solution rows as
	// variable-name -> lexical-form maps (one row per binding set); the
	// exact wire protocol is the caller's concern.
	Query(endpoint, query string) ([]map[string]string, error)
}

// Service is SPARQL SERVICE[ SILENT ] <endpoint> { pattern }.
type Service struct {
	Endpoint string
	Pattern  Node
	Silent   bool
}

func (Service) isNode() {}

// PathOp is a property path expression, evaluated by exec's dedicated
// path operator rather than compiled to joins when it involves
// `*`/`+` (spec.md §4.8 "Path rewriting").
type PathOp interface {
	isPath()
}

type PathIRI struct{ IRI term.IRI }

func (PathIRI) isPath() {}

type PathInverse struct{ Path PathOp }

func (PathInverse) isPath() {}

type PathSeq struct{ Left, Right PathOp }

func (PathSeq) isPath() {}

type PathAlt struct{ Left, Right PathOp }

func (PathAlt) isPath() {}

type PathZeroOrMore struct{ Path PathOp }

func (PathZeroOrMore) isPath() {}

type PathOneOrMore struct{ Path PathOp }

func (PathOneOrMore) isPath() {}

type PathZeroOrOne struct{ Path PathOp }

func (PathZeroOrOne) isPath() {}

// PathNegatedPropertySet is !(:p1|:p2|^:p3|...): matches any single
// edge whose predicate is not among IRIs, optionally traversed in
// reverse when Inverse[i] is set for that IRI.
type PathNegatedPropertySet struct {
	IRIs    []term.IRI
	Inverse []bool
}

func (PathNegatedPropertySet) isPath() {}

// Construct is a CONSTRUCT query: Templates are instantiated once per
// Input solution, with blank node labels scoped per solution (like an
// insert template, spec.md §4.10's "freshly allocated per solution").
// ShorthandSelf marks CONSTRUCT WHERE { ... }, where Templates is nil
// and the matched quad patterns of Input double as the template.
type Construct struct {
	Templates     []QuadTemplate
	Input         Node
	ShorthandSelf bool
}

func (Construct) isNode() {}

// Describe is a DESCRIBE query: Targets lists the resources to
// describe (ignored, with Star true, when all query result bindings
// and WHERE-free IRIs should be described instead).
type Describe struct {
	Targets []TermOrVar
	Star    bool
	Input   Node // nil when there is no WHERE clause
}

func (Describe) isNode() {}

// Ask is an ASK query: the result is whether Input has at least one
// solution, not the solutions themselves. A distinct node type rather
// than reusing Slice{Limit: 1} so a top-level caller can tell "ASK"
// apart from "SELECT * ... LIMIT 1", which produce an identically
// shaped Slice otherwise.
type Ask struct {
	Input Node
}

func (Ask) isNode() {}

// Path is the s path-expr o pattern leaf (spec.md §4.6).
type Path struct {
	Subject, Object TermOrVar
	Graph           TermOrVar
	Expr            PathOp
}

func (Path) isNode() {}

func (p Path) Vars() []Var {
	var out []Var
	for _, t := range []TermOrVar{p.Subject, p.Object, p.Graph} {
		if t.IsVar() && t.Variable != "" {
			out = append(out, t.Variable)
		}
	}
	return out
}
