package sparql

import (
	"testing"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

func mustParseQuery(t *testing.T, src string) algebra.Node {
	t.Helper()
	n, err := ParseQuery(src, Options{Base: "http://example.org/"})
	if err != nil {
		t.Fatalf("ParseQuery(%q): %v", src, err)
	}
	return n
}

func TestParseSelectStarHasNoProjectWrapper(t *testing.T) {
	n := mustParseQuery(t, `SELECT * WHERE { ?s ?p ?o }`)
	pat, ok := n.(algebra.QuadPattern)
	if !ok {
		t.Fatalf("SELECT * WHERE { single triple } should parse to a bare QuadPattern (no Project wrapper), got %T", n)
	}
	if !pat.Subject.IsVar() || !pat.Predicate.IsVar() || !pat.Object.IsVar() {
		t.Fatalf("expected all three positions to be variables, got %+v", pat)
	}
}

func TestParseSelectProjectsNamedVars(t *testing.T) {
	n := mustParseQuery(t, `PREFIX ex: <http://example.org/> SELECT ?s WHERE { ?s ex:p ex:o }`)
	proj, ok := n.(algebra.Project)
	if !ok {
		t.Fatalf("expected algebra.Project, got %T", n)
	}
	if len(proj.Vars) != 1 || proj.Vars[0] != "s" {
		t.Fatalf("projected vars = %v, want [s]", proj.Vars)
	}
	pat, ok := proj.Input.(algebra.QuadPattern)
	if !ok {
		t.Fatalf("expected QuadPattern body, got %T", proj.Input)
	}
	if pat.Predicate.Bound != term.IRI("http://example.org/p") {
		t.Fatalf("predicate = %v, want ex:p resolved", pat.Predicate.Bound)
	}
}

func TestParseSelectDistinct(t *testing.T) {
	n := mustParseQuery(t, `SELECT DISTINCT ?s WHERE { ?s ?p ?o }`)
	d, ok := n.(algebra.Distinct)
	if !ok {
		t.Fatalf("expected algebra.Distinct, got %T", n)
	}
	if _, ok := d.Input.(algebra.Project); !ok {
		t.Fatalf("expected Distinct to wrap Project, got %T", d.Input)
	}
}

func TestParseAskReturnsAskNode(t *testing.T) {
	n := mustParseQuery(t, `ASK { ?s ?p ?o }`)
	if _, ok := n.(algebra.Ask); !ok {
		t.Fatalf("expected algebra.Ask, got %T", n)
	}
}

func TestParseConstructWithTemplate(t *testing.T) {
	n := mustParseQuery(t, `PREFIX ex: <http://example.org/> CONSTRUCT { ?s ex:knows ?o } WHERE { ?s ex:p ?o }`)
	c, ok := n.(algebra.Construct)
	if !ok {
		t.Fatalf("expected algebra.Construct, got %T", n)
	}
	if c.ShorthandSelf {
		t.Fatalf("explicit template should not set ShorthandSelf")
	}
	if len(c.Templates) != 1 {
		t.Fatalf("got %d templates, want 1", len(c.Templates))
	}
}

func TestParseConstructWhereShorthand(t *testing.T) {
	n := mustParseQuery(t, `CONSTRUCT WHERE { ?s ?p ?o }`)
	c, ok := n.(algebra.Construct)
	if !ok {
		t.Fatalf("expected algebra.Construct, got %T", n)
	}
	if !c.ShorthandSelf {
		t.Fatalf("CONSTRUCT WHERE shorthand must set ShorthandSelf")
	}
	if c.Templates != nil {
		t.Fatalf("shorthand form should carry no explicit templates, got %v", c.Templates)
	}
}

func TestParseDescribeStar(t *testing.T) {
	n := mustParseQuery(t, `DESCRIBE *`)
	d, ok := n.(algebra.Describe)
	if !ok {
		t.Fatalf("expected algebra.Describe, got %T", n)
	}
	if !d.Star {
		t.Fatalf("expected Star=true")
	}
}

func TestParseOptionalProducesLeftJoin(t *testing.T) {
	n := mustParseQuery(t, `PREFIX ex: <http://example.org/> SELECT * WHERE { ?s ex:p ?o . OPTIONAL { ?s ex:q ?w } }`)
	lj, ok := n.(algebra.LeftJoin)
	if !ok {
		t.Fatalf("expected algebra.LeftJoin, got %T", n)
	}
	if _, ok := lj.Left.(algebra.QuadPattern); !ok {
		t.Fatalf("expected LeftJoin.Left to be a QuadPattern, got %T", lj.Left)
	}
}

func TestParseFilterWrapsPattern(t *testing.T) {
	n := mustParseQuery(t, `SELECT * WHERE { ?s ?p ?o . FILTER(?o > 1) }`)
	f, ok := n.(algebra.Filter)
	if !ok {
		t.Fatalf("expected algebra.Filter, got %T", n)
	}
	if f.Cond == nil {
		t.Fatalf("Filter.Cond must not be nil")
	}
}

func TestParseOrderByLimitOffset(t *testing.T) {
	n := mustParseQuery(t, `SELECT * WHERE { ?s ?p ?o } ORDER BY ?o LIMIT 10 OFFSET 5`)
	slice, ok := n.(algebra.Slice)
	if !ok {
		t.Fatalf("expected algebra.Slice as outermost node, got %T", n)
	}
	if slice.Limit != 10 || slice.Offset != 5 {
		t.Fatalf("got Offset=%d Limit=%d, want 5/10", slice.Offset, slice.Limit)
	}
	if _, ok := slice.Input.(algebra.OrderBy); !ok {
		t.Fatalf("expected Slice to wrap OrderBy, got %T", slice.Input)
	}
}

func TestParseGraphClauseSetsGraphContext(t *testing.T) {
	n := mustParseQuery(t, `PREFIX ex: <http://example.org/> SELECT * WHERE { GRAPH ex:g1 { ?s ?p ?o } }`)
	pat, ok := n.(algebra.QuadPattern)
	if !ok {
		t.Fatalf("expected algebra.QuadPattern, got %T", n)
	}
	if pat.Graph.Bound != term.IRI("http://example.org/g1") {
		t.Fatalf("graph = %v, want ex:g1", pat.Graph.Bound)
	}
}

func TestParsePropertyPathPlus(t *testing.T) {
	n := mustParseQuery(t, `PREFIX ex: <http://example.org/> SELECT * WHERE { ex:a ex:p+ ?x }`)
	path, ok := n.(algebra.Path)
	if !ok {
		t.Fatalf("expected algebra.Path, got %T", n)
	}
	if _, ok := path.Expr.(algebra.PathOneOrMore); !ok {
		t.Fatalf("expected PathOneOrMore, got %T", path.Expr)
	}
}

func TestParseValuesClause(t *testing.T) {
	n := mustParseQuery(t, `SELECT * WHERE { VALUES ?s { <http://example.org/a> <http://example.org/b> } }`)
	v, ok := n.(algebra.Values)
	if !ok {
		t.Fatalf("expected algebra.Values, got %T", n)
	}
	if len(v.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(v.Rows))
	}
}

func TestParseUndefinedPrefixIsAnError(t *testing.T) {
	_, err := ParseQuery(`SELECT * WHERE { ?s ex:p ?o }`, Options{Base: "http://example.org/"})
	if err == nil {
		t.Fatalf("expected an error for an undefined prefix")
	}
}

func TestParseInsertDataUpdate(t *testing.T) {
	updates, err := ParseUpdate(
		`PREFIX ex: <http://example.org/> INSERT DATA { ex:a ex:p ex:b }`,
		Options{Base: "http://example.org/"},
	)
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d update units, want 1", len(updates))
	}
	ins, ok := updates[0].(algebra.InsertData)
	if !ok {
		t.Fatalf("expected algebra.InsertData, got %T", updates[0])
	}
	if len(ins.Quads) != 1 {
		t.Fatalf("got %d quads, want 1", len(ins.Quads))
	}
}

func TestParseMultipleUpdatesSeparatedBySemicolon(t *testing.T) {
	updates, err := ParseUpdate(
		`PREFIX ex: <http://example.org/> INSERT DATA { ex:a ex:p ex:b } ; CLEAR GRAPH ex:g1`,
		Options{Base: "http://example.org/"},
	)
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d update units, want 2", len(updates))
	}
	if _, ok := updates[1].(algebra.Clear); !ok {
		t.Fatalf("expected second unit to be algebra.Clear, got %T", updates[1])
	}
}

func TestParseRDFStarQuotedTriple(t *testing.T) {
	n, err := ParseQuery(
		`PREFIX ex: <http://example.org/> SELECT * WHERE { <<ex:a ex:p ex:b>> ex:certainty ?c }`,
		Options{Base: "http://example.org/", RDFStar: true},
	)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	pat, ok := n.(algebra.QuadPattern)
	if !ok {
		t.Fatalf("expected algebra.QuadPattern, got %T", n)
	}
	qt, ok := pat.Subject.Bound.(term.QuotedTriple)
	if !ok {
		t.Fatalf("expected subject bound to a term.QuotedTriple, got %T", pat.Subject.Bound)
	}
	if qt.Predicate != term.IRI("http://example.org/p") {
		t.Fatalf("quoted triple predicate = %v, want ex:p", qt.Predicate)
	}
}

func TestParseRDFStarDisabledByDefault(t *testing.T) {
	_, err := ParseQuery(
		`PREFIX ex: <http://example.org/> SELECT * WHERE { <<ex:a ex:p ex:b>> ex:certainty ?c }`,
		Options{Base: "http://example.org/"},
	)
	if err == nil {
		t.Fatalf("expected an error parsing RDF-star syntax with RDFStar: false")
	}
}
