package sparql

import (
	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

func (p *parser) parseUpdateUnit() (algebra.Update, error) {
	switch {
	case p.kw("INSERT"):
		return p.parseInsertOrModify(true)
	case p.kw("DELETE"):
		return p.parseInsertOrModify(false)
	case p.kw("WITH"):
		return p.parseWithModify()
	case p.kw("LOAD"):
		return p.parseLoad()
	case p.kw("CLEAR"):
		return p.parseClear()
	case p.kw("CREATE"):
		return p.parseCreate()
	case p.kw("DROP"):
		return p.parseDrop()
	case p.kw("ADD"):
		return p.parseGraphCopy("ADD")
	case p.kw("MOVE"):
		return p.parseGraphCopy("MOVE")
	case p.kw("COPY"):
		return p.parseGraphCopy("COPY")
	}
	return nil, p.errorf("expected an update operation, got %q", p.tok.Raw)
}

func (p *parser) parseLoad() (algebra.Update, error) {
	p.advance() // LOAD
	silent := p.acceptKw("SILENT")
	src, err := p.expect(tokenIRIRef, "IRI reference")
	if err != nil {
		return nil, err
	}
	srcIRI, err := p.resolveIRI(src)
	if err != nil {
		return nil, err
	}
	var into *term.IRI
	if p.acceptKw("INTO") {
		if err := p.expectKw("GRAPH"); err != nil {
			return nil, err
		}
		g, err := p.expect(tokenIRIRef, "IRI reference")
		if err != nil {
			return nil, err
		}
		gIRI, err := p.resolveIRI(g)
		if err != nil {
			return nil, err
		}
		into = &gIRI
	}
	return algebra.Load{Source: srcIRI, Into: into, Silent: silent}, nil
}

func (p *parser) parseGraphRef() (algebra.GraphRef, error) {
	switch {
	case p.acceptKw("DEFAULT"):
		return algebra.GraphRef{Default: true}, nil
	case p.acceptKw("NAMED"):
		return algebra.GraphRef{Named: true}, nil
	case p.acceptKw("ALL"):
		return algebra.GraphRef{All: true}, nil
	case p.acceptKw("GRAPH"):
		t := p.tok
		if t.Kind != tokenIRIRef && t.Kind != tokenPNameLN && t.Kind != tokenPNameNS {
			return algebra.GraphRef{}, p.errorf("expected IRI reference, got %q", t.Raw)
		}
		p.advance()
		iri, err := p.resolveIRI(t)
		if err != nil {
			return algebra.GraphRef{}, err
		}
		return algebra.GraphRef{Graph: &iri}, nil
	}
	t, err := p.expect(tokenIRIRef, "IRI reference or DEFAULT/NAMED/ALL/GRAPH")
	if err != nil {
		return algebra.GraphRef{}, err
	}
	iri, err := p.resolveIRI(t)
	if err != nil {
		return algebra.GraphRef{}, err
	}
	return algebra.GraphRef{Graph: &iri}, nil
}

func (p *parser) parseClear() (algebra.Update, error) {
	p.advance() // CLEAR
	silent := p.acceptKw("SILENT")
	ref, err := p.parseGraphRef()
	if err != nil {
		return nil, err
	}
	return algebra.Clear{Graph: ref, Silent: silent}, nil
}

func (p *parser) parseDrop() (algebra.Update, error) {
	p.advance() // DROP
	silent := p.acceptKw("SILENT")
	ref, err := p.parseGraphRef()
	if err != nil {
		return nil, err
	}
	return algebra.Drop{Graph: ref, Silent: silent}, nil
}

func (p *parser) parseCreate() (algebra.Update, error) {
	p.advance() // CREATE
	silent := p.acceptKw("SILENT")
	if err := p.expectKw("GRAPH"); err != nil {
		return nil, err
	}
	t, err := p.expect(tokenIRIRef, "IRI reference")
	if err != nil {
		return nil, err
	}
	iri, err := p.resolveIRI(t)
	if err != nil {
		return nil, err
	}
	return algebra.Create{Graph: iri, Silent: silent}, nil
}

func (p *parser) parseGraphCopy(keyword string) (algebra.Update, error) {
	p.advance() // ADD/MOVE/COPY
	silent := p.acceptKw("SILENT")
	src, err := p.parseGraphRefSingle()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("TO"); err != nil {
		return nil, err
	}
	dst, err := p.parseGraphRefSingle()
	if err != nil {
		return nil, err
	}
	op := algebra.GraphCopyOp{Source: src, Destination: dst, Silent: silent}
	switch keyword {
	case "ADD":
		return algebra.Add{GraphCopyOp: op}, nil
	case "MOVE":
		return algebra.Move{GraphCopyOp: op}, nil
	default:
		return algebra.Copy{GraphCopyOp: op}, nil
	}
}

// parseGraphRefSingle is ADD/MOVE/COPY's narrower GraphOrDefault: only
// DEFAULT or an explicit graph IRI, no NAMED/ALL.
func (p *parser) parseGraphRefSingle() (algebra.GraphRef, error) {
	if p.acceptKw("DEFAULT") {
		return algebra.GraphRef{Default: true}, nil
	}
	p.acceptKw("GRAPH")
	t, err := p.expect(tokenIRIRef, "IRI reference")
	if err != nil {
		return algebra.GraphRef{}, err
	}
	iri, err := p.resolveIRI(t)
	if err != nil {
		return algebra.GraphRef{}, err
	}
	return algebra.GraphRef{Graph: &iri}, nil
}

func (p *parser) parseWithModify() (algebra.Update, error) {
	p.advance() // WITH
	t, err := p.expect(tokenIRIRef, "IRI reference")
	if err != nil {
		return nil, err
	}
	g, err := p.resolveIRI(t)
	if err != nil {
		return nil, err
	}
	di, err := p.parseModifyBody(&g)
	if err != nil {
		return nil, err
	}
	return di, nil
}

// parseInsertOrModify handles both INSERT DATA/DELETE DATA (ground
// quads) and the INSERT/DELETE ... WHERE "Modify" form.
func (p *parser) parseInsertOrModify(insert bool) (algebra.Update, error) {
	p.advance() // INSERT/DELETE
	if insert && p.acceptKw("DATA") {
		quads, err := p.parseQuadData()
		if err != nil {
			return nil, err
		}
		return algebra.InsertData{Quads: quads}, nil
	}
	if !insert && p.acceptKw("DATA") {
		quads, err := p.parseQuadData()
		if err != nil {
			return nil, err
		}
		return algebra.DeleteData{Quads: quads}, nil
	}
	if !insert && p.kw("WHERE") {
		// DELETE WHERE { ... } shorthand: the pattern doubles as its own
		// delete template (every matched quad is removed).
		p.advance()
		pattern, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		tmpl := patternToDeleteTemplate(pattern)
		return algebra.DeleteInsert{Where: pattern, DeleteTemplate: tmpl}, nil
	}

	var deleteTemplate, insertTemplate []algebra.QuadTemplate
	var err error
	if insert {
		insertTemplate, err = p.parseQuadTemplateBlock()
	} else {
		deleteTemplate, err = p.parseQuadTemplateBlock()
	}
	if err != nil {
		return nil, err
	}
	if insert {
		if p.acceptKw("WHERE") {
			pattern, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			return algebra.DeleteInsert{Where: pattern, InsertTemplate: insertTemplate}, nil
		}
		return nil, p.errorf("expected WHERE after INSERT template")
	}

	// DELETE { ... } [ INSERT { ... } ] WHERE { ... }
	if p.acceptKw("INSERT") {
		insertTemplate, err = p.parseQuadTemplateBlock()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectKw("WHERE"); err != nil {
		return nil, err
	}
	pattern, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	return algebra.DeleteInsert{Where: pattern, DeleteTemplate: deleteTemplate, InsertTemplate: insertTemplate}, nil
}

func (p *parser) parseModifyBody(withGraph *term.IRI) (algebra.Update, error) {
	var deleteTemplate, insertTemplate []algebra.QuadTemplate
	var err error
	switch {
	case p.kw("DELETE"):
		p.advance()
		if p.acceptKw("WHERE") {
			pattern, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			return algebra.DeleteInsert{Where: pattern, DeleteTemplate: patternToDeleteTemplate(pattern)}, nil
		}
		deleteTemplate, err = p.parseQuadTemplateBlock()
		if err != nil {
			return nil, err
		}
		if p.acceptKw("INSERT") {
			insertTemplate, err = p.parseQuadTemplateBlock()
			if err != nil {
				return nil, err
			}
		}
	case p.kw("INSERT"):
		p.advance()
		insertTemplate, err = p.parseQuadTemplateBlock()
		if err != nil {
			return nil, err
		}
	default:
		return nil, p.errorf("expected INSERT or DELETE after WITH, got %q", p.tok.Raw)
	}
	var usingDefault, usingNamed []term.IRI
	for p.kw("USING") {
		p.advance()
		named := p.acceptKw("NAMED")
		t, err := p.expect(tokenIRIRef, "IRI reference")
		if err != nil {
			return nil, err
		}
		iri, err := p.resolveIRI(t)
		if err != nil {
			return nil, err
		}
		if named {
			usingNamed = append(usingNamed, iri)
		} else {
			usingDefault = append(usingDefault, iri)
		}
	}
	if err := p.expectKw("WHERE"); err != nil {
		return nil, err
	}
	pattern, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	if withGraph != nil {
		for i := range deleteTemplate {
			deleteTemplate[i].Graph = algebra.BoundTerm(*withGraph)
		}
		for i := range insertTemplate {
			insertTemplate[i].Graph = algebra.BoundTerm(*withGraph)
		}
	}
	return algebra.DeleteInsert{
		UsingDefault: usingDefault, UsingNamed: usingNamed,
		Where: pattern, DeleteTemplate: deleteTemplate, InsertTemplate: insertTemplate,
	}, nil
}

// patternToDeleteTemplate turns a parsed WHERE pattern into its own
// delete template for the DELETE WHERE {...} shorthand: valid only
// when the pattern is a plain conjunction of quad patterns with no
// blank nodes, which the caller (exec, at bind time) is responsible
// for checking; the parser performs no semantic checks (spec.md §4.7).
func patternToDeleteTemplate(n algebra.Node) []algebra.QuadTemplate {
	var out []algebra.QuadTemplate
	var walk func(algebra.Node)
	walk = func(n algebra.Node) {
		switch n := n.(type) {
		case algebra.Join:
			walk(n.Left)
			walk(n.Right)
		case algebra.QuadPattern:
			out = append(out, algebra.QuadTemplate{Subject: n.Subject, Predicate: n.Predicate, Object: n.Object, Graph: n.Graph})
		}
	}
	walk(n)
	return out
}

// parseQuadData parses the ground QuadData block of INSERT/DELETE
// DATA: a TriplesTemplate, optionally wrapped per-graph in GRAPH
// blocks.
func (p *parser) parseQuadData() ([]algebra.GroundQuad, error) {
	if _, err := p.expect(tokenLBrace, "'{'"); err != nil {
		return nil, err
	}
	var quads []algebra.GroundQuad
	graph := algebra.TermOrVar{}
	for p.tok.Kind != tokenRBrace {
		if p.kw("GRAPH") {
			p.advance()
			tv, err := p.parseVarOrTerm()
			if err != nil {
				return nil, err
			}
			graph = tv
			if _, err := p.expect(tokenLBrace, "'{'"); err != nil {
				return nil, err
			}
			inner, err := p.parseGroundTriplesBlock(graph)
			if err != nil {
				return nil, err
			}
			quads = append(quads, inner...)
			if _, err := p.expect(tokenRBrace, "'}'"); err != nil {
				return nil, err
			}
			graph = algebra.TermOrVar{}
			continue
		}
		inner, err := p.parseGroundTriplesBlock(graph)
		if err != nil {
			return nil, err
		}
		quads = append(quads, inner...)
	}
	if _, err := p.expect(tokenRBrace, "'}'"); err != nil {
		return nil, err
	}
	return quads, nil
}

func (p *parser) parseGroundTriplesBlock(graph algebra.TermOrVar) ([]algebra.GroundQuad, error) {
	node, err := p.parseTriplesBlock()
	if err != nil {
		return nil, err
	}
	var quads []algebra.GroundQuad
	var walk func(algebra.Node) error
	walk = func(n algebra.Node) error {
		switch n := n.(type) {
		case nil:
			return nil
		case algebra.Join:
			if err := walk(n.Left); err != nil {
				return err
			}
			return walk(n.Right)
		case algebra.QuadPattern:
			if n.Subject.IsVar() || n.Predicate.IsVar() || n.Object.IsVar() {
				return p.errorf("variables are not legal in INSERT/DELETE DATA")
			}
			g := n.Graph
			if g.Bound == nil && g.Variable == "" {
				g = graph
			}
			quads = append(quads, algebra.GroundQuad{
				Subject: n.Subject.Bound, Predicate: n.Predicate.Bound, Object: n.Object.Bound, Graph: g.Bound,
			})
			return nil
		default:
			return p.errorf("only ground triples are legal in INSERT/DELETE DATA")
		}
		return p.errorf("variables are not legal in INSERT/DELETE DATA")
	}
	if err := walk(node); err != nil {
		return nil, err
	}
	return quads, nil
}

// parseQuadTemplateBlock parses the { ... } quad template used by
// DELETE/INSERT's modify form, allowing blank nodes and variables
// (spec.md §4.10).
func (p *parser) parseQuadTemplateBlock() ([]algebra.QuadTemplate, error) {
	if _, err := p.expect(tokenLBrace, "'{'"); err != nil {
		return nil, err
	}
	var templates []algebra.QuadTemplate
	graph := algebra.TermOrVar{}
	for p.tok.Kind != tokenRBrace {
		if p.kw("GRAPH") {
			p.advance()
			tv, err := p.parseVarOrTerm()
			if err != nil {
				return nil, err
			}
			graph = tv
			if _, err := p.expect(tokenLBrace, "'{'"); err != nil {
				return nil, err
			}
			node, err := p.parseTriplesBlock()
			if err != nil {
				return nil, err
			}
			templates = append(templates, quadPatternsToTemplates(node, graph)...)
			if _, err := p.expect(tokenRBrace, "'}'"); err != nil {
				return nil, err
			}
			graph = algebra.TermOrVar{}
			continue
		}
		node, err := p.parseTriplesBlock()
		if err != nil {
			return nil, err
		}
		templates = append(templates, quadPatternsToTemplates(node, graph)...)
	}
	if _, err := p.expect(tokenRBrace, "'}'"); err != nil {
		return nil, err
	}
	return templates, nil
}

// parseConstructTemplate parses CONSTRUCT's own ConstructTemplate: a
// brace-enclosed set of triples with no GRAPH blocks (unlike the
// Modify form's quad template), blank nodes allowed and freshly
// allocated per solution at exec time.
func (p *parser) parseConstructTemplate() ([]algebra.QuadTemplate, error) {
	if _, err := p.expect(tokenLBrace, "'{'"); err != nil {
		return nil, err
	}
	if p.tok.Kind == tokenRBrace {
		p.advance()
		return nil, nil
	}
	node, err := p.parseTriplesBlock()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenRBrace, "'}'"); err != nil {
		return nil, err
	}
	return quadPatternsToTemplates(node, algebra.TermOrVar{}), nil
}

func quadPatternsToTemplates(n algebra.Node, defaultGraph algebra.TermOrVar) []algebra.QuadTemplate {
	var out []algebra.QuadTemplate
	var walk func(algebra.Node)
	walk = func(n algebra.Node) {
		switch n := n.(type) {
		case algebra.Join:
			walk(n.Left)
			walk(n.Right)
		case algebra.QuadPattern:
			g := n.Graph
			if g.Bound == nil && g.Variable == "" {
				g = defaultGraph
			}
			out = append(out, algebra.QuadTemplate{Subject: n.Subject, Predicate: n.Predicate, Object: n.Object, Graph: g})
		}
	}
	walk(n)
	return out
}
