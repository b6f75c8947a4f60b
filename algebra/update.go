package algebra

import "github.com/boutros/quadstore/term"

// Update is one SPARQL Update Unit (spec.md §4.6 "Update algebra
// adds: insert-data, delete-data, delete-insert(where, delete-
// template, insert-template), load, clear, create, drop, add/move/
// copy-graph"). A request is a sequence of Updates applied as one
// transaction (spec.md §4.10 "a sequence of update statements
// submitted together is one transaction").
type Update interface {
	isUpdate()
}

// QuadTemplate is a quad pattern used as an insert/delete template:
// like QuadPattern but Subject/Object may additionally be Bound to a
// term.BlankNode, which exec allocates fresh per solution for insert
// templates and which the parser rejects outright for delete templates
// (spec.md §4.10).
type QuadTemplate struct {
	Subject, Predicate, Object, Graph TermOrVar
}

// GroundQuad is a fully-specified (s,p,o,g) in term form, not yet
// resolved to term.ID; InsertData/DeleteData bodies are ground (no
// variables) but still need the dictionary to become ids.
type GroundQuad struct {
	Subject, Predicate, Object term.Term
	Graph                      term.Term // nil means the default graph
}

// InsertData inserts a ground set of quads (no variables, no blank
// node scoping across solutions needed: each blank node label names
// one fixed node for the whole operation).
type InsertData struct {
	Quads []GroundQuad
}

func (InsertData) isUpdate() {}

// DeleteData removes a ground set of quads. Blank nodes are illegal
// here per SPARQL Update (the parser rejects them).
type DeleteData struct {
	Quads []GroundQuad
}

func (DeleteData) isUpdate() {}

// DeleteInsert is SPARQL Update's "Modify": evaluate Where against the
// pre-update snapshot, then for each solution compute bindings for
// DeleteTemplate and InsertTemplate, deleting before inserting
// (spec.md §4.10).
type DeleteInsert struct {
	// UsingDefault/UsingNamed restrict Where's default/named graph set
	// (SPARQL Update's USING / USING NAMED); empty means unrestricted.
	UsingDefault []term.IRI
	UsingNamed   []term.IRI

	Where          Node
	DeleteTemplate []QuadTemplate
	InsertTemplate []QuadTemplate
}

func (DeleteInsert) isUpdate() {}

// Load fetches Source (an IRI) via an external RDF parser (spec.md
// §4.10 "delegated to an external RDF parser; the core only owns
// inserting parsed quads") and inserts its quads into Into (the
// default graph if Into is nil).
type Load struct {
	Source term.IRI
	Into   *term.IRI
	Silent bool
}

func (Load) isUpdate() {}

// GraphRef selects a graph-set target: a specific graph, or one of
// the SPARQL Update keywords DEFAULT/NAMED/ALL.
type GraphRef struct {
	Graph   *term.IRI
	Default bool
	Named   bool
	All     bool
}

type Clear struct {
	Graph  GraphRef
	Silent bool
}

func (Clear) isUpdate() {}

type Drop struct {
	Graph  GraphRef
	Silent bool
}

func (Drop) isUpdate() {}

type Create struct {
	Graph  term.IRI
	Silent bool
}

func (Create) isUpdate() {}

// GraphCopyOp is the shared shape of ADD/MOVE/COPY: Source's quads
// are copied into Destination (MOVE additionally clears Source after).
type GraphCopyOp struct {
	Source, Destination GraphRef
	Silent               bool
}

type Add struct{ GraphCopyOp }

func (Add) isUpdate() {}

type Move struct{ GraphCopyOp }

func (Move) isUpdate() {}

type Copy struct{ GraphCopyOp }

func (Copy) isUpdate() {}
