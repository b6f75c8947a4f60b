package sparql

import (
	"strings"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

// defaultGraphCtx is the zero TermOrVar, used as the sentinel "no
// GRAPH clause is currently open" context.
var defaultGraphCtx = algebra.TermOrVar{}

func (p *parser) currentGraph() algebra.TermOrVar { return p.graphCtx }

func (p *parser) parseGroupGraphPattern() (algebra.Node, error) {
	if _, err := p.expect(tokenLBrace, "'{'"); err != nil {
		return nil, err
	}
	if p.kw("SELECT") {
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRBrace, "'}'"); err != nil {
			return nil, err
		}
		return sub, nil
	}
	node, err := p.parseGroupGraphPatternSub()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenRBrace, "'}'"); err != nil {
		return nil, err
	}
	return node, nil
}

func joinNodes(a, b algebra.Node) algebra.Node {
	if a == nil {
		return b
	}
	return algebra.Join{Left: a, Right: b}
}

func (p *parser) parseGroupGraphPatternSub() (algebra.Node, error) {
	var node algebra.Node
	var filters []algebra.Expr

	for {
		switch {
		case p.tok.Kind == tokenDot:
			p.advance()
			continue
		case p.tok.Kind == tokenRBrace:
			goto done
		case p.kw("FILTER"):
			p.advance()
			expr, err := p.parseConstraint()
			if err != nil {
				return nil, err
			}
			filters = append(filters, expr)
		case p.kw("BIND"):
			p.advance()
			if _, err := p.expect(tokenLParen, "'('"); err != nil {
				return nil, err
			}
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectKw("AS"); err != nil {
				return nil, err
			}
			v, err := p.expect(tokenVar, "variable")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokenRParen, "')'"); err != nil {
				return nil, err
			}
			node = algebra.Extend{Input: node, Var: algebra.Var(v.Text), Expr: expr}
		case p.kw("OPTIONAL"):
			p.advance()
			right, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			node = algebra.LeftJoin{Left: node, Right: right}
		case p.kw("MINUS"):
			p.advance()
			right, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			node = algebra.Minus{Left: node, Right: right}
		case p.kw("GRAPH"):
			p.advance()
			tv, err := p.parseVarOrTerm()
			if err != nil {
				return nil, err
			}
			saved := p.graphCtx
			p.graphCtx = tv
			right, err := p.parseGroupGraphPattern()
			p.graphCtx = saved
			if err != nil {
				return nil, err
			}
			node = joinNodes(node, right)
		case p.kw("SERVICE"):
			p.advance()
			silent := p.acceptKw("SILENT")
			ep, err := p.parseVarOrTerm()
			if err != nil {
				return nil, err
			}
			pattern, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			endpoint := ""
			if iri, ok := ep.Bound.(term.IRI); ok {
				endpoint = string(iri)
			}
			node = joinNodes(node, algebra.Service{Endpoint: endpoint, Pattern: pattern, Silent: silent})
		case p.kw("VALUES"):
			p.advance()
			v, err := p.parseInlineData()
			if err != nil {
				return nil, err
			}
			node = joinNodes(node, v)
		case p.tok.Kind == tokenLBrace:
			left, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			for p.acceptKw("UNION") {
				right, err := p.parseGroupGraphPattern()
				if err != nil {
					return nil, err
				}
				left = algebra.Union{Left: left, Right: right}
			}
			node = joinNodes(node, left)
		default:
			triples, err := p.parseTriplesBlock()
			if err != nil {
				return nil, err
			}
			node = joinNodes(node, triples)
		}
	}
done:
	for _, f := range filters {
		node = algebra.Filter{Input: node, Cond: f}
	}
	if node == nil {
		// An empty {} pattern yields exactly one empty solution.
		node = algebra.Values{Columns: nil, Rows: [][]term.Term{{}}}
	}
	return node, nil
}

func (p *parser) parseConstraint() (algebra.Expr, error) {
	if p.tok.Kind == tokenLParen {
		return p.parseBracketedExpr()
	}
	return p.parsePrimaryExpr()
}

func (p *parser) parseInlineData() (algebra.Node, error) {
	var cols []algebra.Var
	single := p.tok.Kind == tokenVar
	if single {
		cols = append(cols, algebra.Var(p.tok.Text))
		p.advance()
	} else {
		if _, err := p.expect(tokenLParen, "'(' or variable"); err != nil {
			return nil, err
		}
		for p.tok.Kind == tokenVar {
			cols = append(cols, algebra.Var(p.tok.Text))
			p.advance()
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokenLBrace, "'{'"); err != nil {
		return nil, err
	}
	var rows [][]term.Term
	for p.tok.Kind != tokenRBrace {
		var row []term.Term
		if single {
			v, err := p.parseDataBlockValue()
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		} else {
			if _, err := p.expect(tokenLParen, "'('"); err != nil {
				return nil, err
			}
			for p.tok.Kind != tokenRParen {
				v, err := p.parseDataBlockValue()
				if err != nil {
					return nil, err
				}
				row = append(row, v)
			}
			if _, err := p.expect(tokenRParen, "')'"); err != nil {
				return nil, err
			}
		}
		rows = append(rows, row)
	}
	if _, err := p.expect(tokenRBrace, "'}'"); err != nil {
		return nil, err
	}
	return algebra.Values{Columns: cols, Rows: rows}, nil
}

func (p *parser) parseDataBlockValue() (term.Term, error) {
	if p.acceptKw("UNDEF") {
		return nil, nil
	}
	tv, err := p.parseVarOrTerm()
	if err != nil {
		return nil, err
	}
	return tv.Bound, nil
}

// parseTriplesBlock parses one or more '.'-separated
// TriplesSameSubjectPath productions, stopping before the next
// GraphPatternNotTriples keyword, '}', or a trailing '.'.
func (p *parser) parseTriplesBlock() (algebra.Node, error) {
	var node algebra.Node
	for {
		n, err := p.parseTriplesSameSubjectPath()
		if err != nil {
			return nil, err
		}
		node = joinNodes(node, n)
		if _, ok := p.accept(tokenDot); !ok {
			break
		}
		if p.tok.Kind == tokenRBrace || p.isGraphPatternKeyword() {
			break
		}
	}
	return node, nil
}

func (p *parser) isGraphPatternKeyword() bool {
	return p.kw("FILTER") || p.kw("BIND") || p.kw("OPTIONAL") || p.kw("MINUS") ||
		p.kw("GRAPH") || p.kw("SERVICE") || p.kw("VALUES") || p.tok.Kind == tokenLBrace
}

func (p *parser) parseTriplesSameSubjectPath() (algebra.Node, error) {
	subj, extra, err := p.parseTripleNodeTerm()
	if err != nil {
		return nil, err
	}
	node, err := p.parsePropertyListPathNotEmpty(subj)
	if err != nil {
		return nil, err
	}
	return joinNodes(extra, node), nil
}

// parseTripleNodeTerm parses a subject/object position: a plain
// VarOrTerm, an anonymous blank-node property list '[...]', or a
// collection '(...)'. extra holds any triples generated by nested
// structures (blank node property lists, collections), to be joined
// alongside the main pattern.
func (p *parser) parseTripleNodeTerm() (algebra.TermOrVar, algebra.Node, error) {
	switch p.tok.Kind {
	case tokenLBracket:
		p.advance()
		bnode := algebra.VarPos(p.freshBlankVar())
		var extra algebra.Node
		if p.tok.Kind != tokenRBracket {
			n, err := p.parsePropertyListPathNotEmpty(bnode)
			if err != nil {
				return algebra.TermOrVar{}, nil, err
			}
			extra = n
		}
		if _, err := p.expect(tokenRBracket, "']'"); err != nil {
			return algebra.TermOrVar{}, nil, err
		}
		return bnode, extra, nil
	case tokenLParen:
		return p.parseCollection()
	default:
		tv, err := p.parseVarOrTerm()
		return tv, nil, err
	}
}

var blankVarCounter int

// freshBlankVar allocates a fresh pattern-scoped variable standing in
// for an anonymous blank node syntax node ('[...]' or a collection
// cell); exec treats these the same as any other projected-out
// variable bound to a freshly minted blank node per solution.
func (p *parser) freshBlankVar() algebra.Var {
	blankVarCounter++
	return algebra.Var("_anon" + itoa(blankVarCounter))
}

func itoa(n int) string {
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

// parseCollection parses '(' term* ')' into an rdf:first/rdf:rest/
// rdf:nil chain, returning the head node and the triples generated.
func (p *parser) parseCollection() (algebra.TermOrVar, algebra.Node, error) {
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return algebra.TermOrVar{}, nil, err
	}
	var items []algebra.TermOrVar
	var extras algebra.Node
	for p.tok.Kind != tokenRParen {
		tv, extra, err := p.parseTripleNodeTerm()
		if err != nil {
			return algebra.TermOrVar{}, nil, err
		}
		items = append(items, tv)
		extras = joinNodes(extras, extra)
	}
	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return algebra.TermOrVar{}, nil, err
	}
	rdfFirst := term.NewIRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#first")
	rdfRest := term.NewIRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#rest")
	rdfNil := term.NewIRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#nil")
	if len(items) == 0 {
		return algebra.BoundTerm(rdfNil), extras, nil
	}

	head := algebra.VarPos(p.freshBlankVar())
	cur := head
	var chain algebra.Node
	for i, item := range items {
		chain = joinNodes(chain, algebra.QuadPattern{
			Subject: cur, Predicate: algebra.BoundTerm(rdfFirst), Object: item, Graph: p.currentGraph(),
		})
		var next algebra.TermOrVar
		if i == len(items)-1 {
			next = algebra.BoundTerm(rdfNil)
		} else {
			next = algebra.VarPos(p.freshBlankVar())
		}
		chain = joinNodes(chain, algebra.QuadPattern{
			Subject: cur, Predicate: algebra.BoundTerm(rdfRest), Object: next, Graph: p.currentGraph(),
		})
		cur = next
	}
	return head, joinNodes(extras, chain), nil
}

// parsePropertyListPathNotEmpty parses `verb objectList (';' [verb
// objectList])*` for subj, returning the Join of every resulting
// triple/path leaf.
func (p *parser) parsePropertyListPathNotEmpty(subj algebra.TermOrVar) (algebra.Node, error) {
	var node algebra.Node
	for {
		var pred algebra.TermOrVar
		var path algebra.PathOp
		isPath := false
		if p.tok.Kind == tokenVar {
			pred = algebra.VarPos(algebra.Var(p.tok.Text))
			p.advance()
		} else if p.kw("A") {
			p.advance()
			pred = algebra.BoundTerm(term.RDFtype)
		} else {
			pe, err := p.parsePathExpr()
			if err != nil {
				return nil, err
			}
			if iri, ok := pe.(algebra.PathIRI); ok {
				pred = algebra.BoundTerm(iri.IRI)
			} else {
				path = pe
				isPath = true
			}
		}

		for {
			obj, extra, err := p.parseTripleNodeTerm()
			if err != nil {
				return nil, err
			}
			node = joinNodes(node, extra)
			if isPath {
				node = joinNodes(node, algebra.Path{Subject: subj, Object: obj, Graph: p.currentGraph(), Expr: path})
			} else {
				node = joinNodes(node, algebra.QuadPattern{Subject: subj, Predicate: pred, Object: obj, Graph: p.currentGraph()})
			}
			if _, ok := p.accept(tokenComma); !ok {
				break
			}
		}

		if _, ok := p.accept(tokenSemicolon); !ok {
			break
		}
		if p.tok.Kind == tokenDot || p.tok.Kind == tokenRBrace || p.tok.Kind == tokenRBracket || p.isGraphPatternKeyword() {
			break
		}
	}
	return node, nil
}

// parseVarOrTerm parses a single var/IRI/literal/blank-node-label/
// RDF-star quoted triple term.
func (p *parser) parseVarOrTerm() (algebra.TermOrVar, error) {
	switch p.tok.Kind {
	case tokenVar:
		v := algebra.VarPos(algebra.Var(p.tok.Text))
		p.advance()
		return v, nil
	case tokenIRIRef, tokenPNameLN, tokenPNameNS:
		t := p.tok
		p.advance()
		iri, err := p.resolveIRI(t)
		if err != nil {
			return algebra.TermOrVar{}, err
		}
		return algebra.BoundTerm(iri), nil
	case tokenBlankNode:
		label := p.tok.Text
		p.advance()
		// A labeled blank node is a fixed node within the scope of one
		// query/update, not a variable: bind it directly rather than
		// threading it through solution mappings.
		return algebra.BoundTerm(term.BlankNode(label)), nil
	case tokenString:
		return p.parseLiteral()
	case tokenInteger:
		t := p.tok
		p.advance()
		return algebra.BoundTerm(term.NewTypedLiteral(t.Text, term.XSDinteger)), nil
	case tokenDecimal:
		t := p.tok
		p.advance()
		return algebra.BoundTerm(term.NewTypedLiteral(t.Text, term.XSDdecimal)), nil
	case tokenDouble:
		t := p.tok
		p.advance()
		return algebra.BoundTerm(term.NewTypedLiteral(t.Text, term.XSDdouble)), nil
	case tokenKeyword:
		switch strings.ToUpper(p.tok.Raw) {
		case "TRUE":
			p.advance()
			return algebra.BoundTerm(term.NewTypedLiteral("true", term.XSDboolean)), nil
		case "FALSE":
			p.advance()
			return algebra.BoundTerm(term.NewTypedLiteral("false", term.XSDboolean)), nil
		}
	case tokenLess:
		if p.opts.RDFStar {
			return p.parseQuotedTriple()
		}
	}
	return algebra.TermOrVar{}, p.errorf("expected term or variable, got %q", p.tok.Raw)
}

// tryParseVarOrTerm is parseVarOrTerm but returns ok=false instead of
// an error when the current token cannot start a term (used in
// optional-tail contexts like DESCRIBE's target list).
func (p *parser) tryParseVarOrTerm() (algebra.TermOrVar, bool, error) {
	switch p.tok.Kind {
	case tokenVar, tokenIRIRef, tokenPNameLN, tokenPNameNS, tokenBlankNode, tokenString, tokenInteger, tokenDecimal, tokenDouble:
		tv, err := p.parseVarOrTerm()
		return tv, true, err
	}
	return algebra.TermOrVar{}, false, nil
}

// parseQuotedTriple parses RDF-star's "<<" s p o ">>" term syntax.
// The lexer emits "<<" as two consecutive tokenLess tokens (each "<"
// resolved individually since IRIREF scanning bails out on a second
// '<'), so this consumes two tokenLess before the nested triple.
func (p *parser) parseQuotedTriple() (algebra.TermOrVar, error) {
	if _, err := p.expect(tokenLess, "'<<'"); err != nil {
		return algebra.TermOrVar{}, err
	}
	if _, err := p.expect(tokenLess, "'<<'"); err != nil {
		return algebra.TermOrVar{}, err
	}
	s, err := p.parseVarOrTerm()
	if err != nil {
		return algebra.TermOrVar{}, err
	}
	pr, err := p.parseVarOrTerm()
	if err != nil {
		return algebra.TermOrVar{}, err
	}
	o, err := p.parseVarOrTerm()
	if err != nil {
		return algebra.TermOrVar{}, err
	}
	if _, err := p.expect(tokenGreater, "'>>'"); err != nil {
		return algebra.TermOrVar{}, err
	}
	if _, err := p.expect(tokenGreater, "'>>'"); err != nil {
		return algebra.TermOrVar{}, err
	}
	if s.IsVar() || pr.IsVar() || o.IsVar() {
		// Only ground quoted triples parse; a variable anywhere inside
		// a quoted-triple term is rejected with a syntax error.
		return algebra.TermOrVar{}, p.errorf("variables inside quoted triple terms are not yet supported")
	}
	qt := term.QuotedTriple{Subject: s.Bound, Predicate: pr.Bound.(term.IRI), Object: o.Bound}
	return algebra.BoundTerm(qt), nil
}

func (p *parser) parseLiteral() (algebra.TermOrVar, error) {
	t := p.tok
	p.advance()
	if p.tok.Kind == tokenLangTag {
		lang := p.tok.Text
		p.advance()
		return algebra.BoundTerm(term.NewLangLiteral(t.Text, lang)), nil
	}
	if _, ok := p.accept(tokenCaretCaret); ok {
		dtTok, err := p.expect(tokenIRIRef, "IRI reference")
		if err != nil {
			if p.prev.Kind == tokenPNameLN || p.prev.Kind == tokenPNameNS {
				dt, err2 := p.resolveIRI(p.prev)
				if err2 == nil {
					return algebra.BoundTerm(term.NewTypedLiteral(t.Text, dt)), nil
				}
			}
			return algebra.TermOrVar{}, err
		}
		dt, err := p.resolveIRI(dtTok)
		if err != nil {
			return algebra.TermOrVar{}, err
		}
		return algebra.BoundTerm(term.NewTypedLiteral(t.Text, dt)), nil
	}
	return algebra.BoundTerm(term.NewStringLiteral(t.Text)), nil
}
