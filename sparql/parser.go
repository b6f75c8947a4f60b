// Package sparql implements the SPARQL 1.1 lexer and recursive-
// descent parser (spec.md §4.7, component C7): it turns query/update
// text into the algebra package's value tree, performing no semantic
// checks. Grounded in the teacher's hand-rolled rdf/scanner.go +
// rdf/decoder.go idiom (a rune-at-a-time scanner feeding a stateful
// decoder), scaled from Turtle's triple grammar up to full SPARQL 1.1.
package sparql

import (
	"strconv"
	"strings"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

// Options configures the parser.
type Options struct {
	// Base is the default base IRI used to resolve relative IRIs
	// absent an explicit BASE declaration.
	Base term.IRI
	// RDFStar enables the <<s p o>> quoted-triple term grammar
	// (spec.md §6 [EXPANSION] "Options.RDFStar").
	RDFStar bool
}

type parser struct {
	lex      *lexer
	tok      token
	prev     token
	opts     Options
	base     term.IRI
	prefixes map[string]string

	// graphCtx is the TermOrVar of the innermost enclosing GRAPH
	// clause; its zero value means the default graph.
	graphCtx algebra.TermOrVar

	// peeked buffers one token of lookahead beyond p.tok, since the
	// lexer is a forward-only scanner with no ungetting (unlike the
	// teacher's line-buffered scanner, this one has no natural resync
	// point to rewind to).
	peeked *token
}

func newParser(src string, opts Options) *parser {
	p := &parser{lex: newLexer(src), opts: opts, base: opts.Base, prefixes: map[string]string{}}
	p.advance()
	return p
}

func (p *parser) advance() {
	p.prev = p.tok
	if p.peeked != nil {
		p.tok = *p.peeked
		p.peeked = nil
		return
	}
	p.tok = p.lex.Scan()
}

// peekNext returns the token after p.tok without consuming it.
func (p *parser) peekNext() token {
	if p.peeked == nil {
		t := p.lex.Scan()
		p.peeked = &t
	}
	return *p.peeked
}

// kw reports whether the current token is the case-insensitive
// keyword s.
func (p *parser) kw(s string) bool {
	return p.tok.Kind == tokenKeyword && strings.EqualFold(p.tok.Raw, s)
}

func (p *parser) acceptKw(s string) bool {
	if p.kw(s) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectKw(s string) error {
	if !p.acceptKw(s) {
		return p.errorf("expected %q, got %q", s, p.tok.Raw)
	}
	return nil
}

func (p *parser) accept(k kind) (token, bool) {
	if p.tok.Kind == k {
		t := p.tok
		p.advance()
		return t, true
	}
	return token{}, false
}

func (p *parser) expect(k kind, what string) (token, error) {
	t, ok := p.accept(k)
	if !ok {
		return token{}, p.errorf("expected %s, got %q", what, p.tok.Raw)
	}
	return t, nil
}

// ParseQuery parses SPARQL query text (SELECT/ASK/CONSTRUCT/DESCRIBE)
// into an algebra.Node. The returned node already has solution
// modifiers (project/distinct/order/slice) applied as the outermost
// wrapping per spec.md §4.6.
func ParseQuery(src string, opts Options) (algebra.Node, error) {
	p := newParser(src, opts)
	if err := p.parsePrologue(); err != nil {
		return nil, err
	}
	node, err := p.parseQueryForm()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != tokenEOF {
		return nil, p.errorf("unexpected trailing input %q", p.tok.Raw)
	}
	return node, nil
}

// ParseUpdate parses a SPARQL Update request (one or more `;`-
// separated update units) into algebra.Update values.
func ParseUpdate(src string, opts Options) ([]algebra.Update, error) {
	p := newParser(src, opts)
	var units []algebra.Update
	for {
		if err := p.parsePrologue(); err != nil {
			return nil, err
		}
		if p.tok.Kind == tokenEOF {
			break
		}
		u, err := p.parseUpdateUnit()
		if err != nil {
			return nil, err
		}
		units = append(units, u)
		if _, ok := p.accept(tokenSemicolon); !ok {
			break
		}
	}
	if p.tok.Kind != tokenEOF {
		return nil, p.errorf("unexpected trailing input %q", p.tok.Raw)
	}
	return units, nil
}

func (p *parser) parsePrologue() error {
	for {
		switch {
		case p.acceptKw("BASE"):
			t, err := p.expect(tokenIRIRef, "IRI reference")
			if err != nil {
				return err
			}
			p.base = term.IRI(t.Text).Resolve(p.base)
		case p.acceptKw("PREFIX"):
			ns, err := p.expect(tokenPNameNS, "prefix name")
			if err != nil {
				return err
			}
			iri, err := p.expect(tokenIRIRef, "IRI reference")
			if err != nil {
				return err
			}
			p.prefixes[strings.TrimSuffix(ns.Text, ":")] = iri.Text
		default:
			return nil
		}
	}
}

func (p *parser) parseQueryForm() (algebra.Node, error) {
	switch {
	case p.kw("SELECT"):
		return p.parseSelect()
	case p.kw("ASK"):
		return p.parseAsk()
	case p.kw("CONSTRUCT"):
		return p.parseConstruct()
	case p.kw("DESCRIBE"):
		return p.parseDescribe()
	}
	return nil, p.errorf("expected SELECT, ASK, CONSTRUCT or DESCRIBE, got %q", p.tok.Raw)
}

func (p *parser) parseDatasetClauses() {
	for p.acceptKw("FROM") {
		p.acceptKw("NAMED")
		p.accept(tokenIRIRef) // dataset clauses affect the default/named graph set at bind time, not the algebra shape
	}
}

func (p *parser) parseSelect() (algebra.Node, error) {
	p.advance() // SELECT
	distinct := p.acceptKw("DISTINCT")
	reduced := false
	if !distinct {
		reduced = p.acceptKw("REDUCED")
	}

	var projVars []algebra.Var
	var extends []algebra.Extend
	star := false
	if p.tok.Kind == tokenStar {
		p.advance()
		star = true
	} else {
		for {
			if p.tok.Kind == tokenVar {
				projVars = append(projVars, algebra.Var(p.tok.Text))
				p.advance()
				continue
			}
			if _, ok := p.accept(tokenLParen); ok {
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
				vv := algebra.Var(v.Text)
				extends = append(extends, algebra.Extend{Var: vv, Expr: expr})
				projVars = append(projVars, vv)
				if _, err := p.expect(tokenRParen, "')'"); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}

	p.parseDatasetClauses()
	if err := p.expectKw("WHERE"); err != nil {
		return nil, err
	}
	body, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	for _, e := range extends {
		e.Input = body
		body = e
	}
	node, err := p.parseSolutionModifiers(body)
	if err != nil {
		return nil, err
	}
	if !star {
		node = algebra.Project{Input: node, Vars: projVars}
	}
	if distinct {
		node = algebra.Distinct{Input: node}
	} else if reduced {
		node = algebra.Reduced{Input: node}
	}
	return node, nil
}

func (p *parser) parseAsk() (algebra.Node, error) {
	p.advance() // ASK
	p.parseDatasetClauses()
	if err := p.expectKw("WHERE"); err != nil {
		return nil, err
	}
	body, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	return algebra.Ask{Input: body}, nil
}

func (p *parser) parseConstruct() (algebra.Node, error) {
	p.advance() // CONSTRUCT
	var templates []algebra.QuadTemplate
	if p.tok.Kind == tokenLBrace {
		var err error
		templates, err = p.parseConstructTemplate()
		if err != nil {
			return nil, err
		}
		p.parseDatasetClauses()
		if err := p.expectKw("WHERE"); err != nil {
			return nil, err
		}
		body, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		node, err := p.parseSolutionModifiers(body)
		if err != nil {
			return nil, err
		}
		return algebra.Construct{Templates: templates, Input: node}, nil
	}
	// CONSTRUCT WHERE { ... } shorthand: the pattern is also the template.
	p.parseDatasetClauses()
	if err := p.expectKw("WHERE"); err != nil {
		return nil, err
	}
	body, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	node, err := p.parseSolutionModifiers(body)
	if err != nil {
		return nil, err
	}
	return algebra.Construct{Templates: nil, Input: node, ShorthandSelf: true}, nil
}

func (p *parser) parseDescribe() (algebra.Node, error) {
	p.advance() // DESCRIBE
	var targets []algebra.TermOrVar
	star := false
	if p.tok.Kind == tokenStar {
		p.advance()
		star = true
	} else {
		for {
			tv, ok, err := p.tryParseVarOrTerm()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			targets = append(targets, tv)
		}
	}
	p.parseDatasetClauses()
	var body algebra.Node
	if p.acceptKw("WHERE") {
		b, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		node, err := p.parseSolutionModifiers(b)
		if err != nil {
			return nil, err
		}
		body = node
	}
	return algebra.Describe{Targets: targets, Star: star, Input: body}, nil
}

func (p *parser) parseSolutionModifiers(body algebra.Node) (algebra.Node, error) {
	node := body
	if p.kw("GROUP") {
		g, err := p.parseGroupClause(node)
		if err != nil {
			return nil, err
		}
		node = g
	}
	if p.acceptKw("HAVING") {
		expr, err := p.parseBracketedExpr()
		if err != nil {
			return nil, err
		}
		node = algebra.Filter{Input: node, Cond: expr}
	}
	if p.acceptKw("ORDER") {
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		var keys []algebra.SortKey
		for {
			desc := false
			if p.acceptKw("ASC") {
			} else if p.acceptKw("DESC") {
				desc = true
			}
			e, err := p.parseOrderExprTerm()
			if err != nil {
				return nil, err
			}
			keys = append(keys, algebra.SortKey{Expr: e, Desc: desc})
			if !p.canStartExpr() {
				break
			}
		}
		node = algebra.OrderBy{Input: node, Keys: keys}
	}
	offset, limit := int64(-1), int64(-1)
	for {
		if p.acceptKw("LIMIT") {
			n, err := p.expect(tokenInteger, "integer")
			if err != nil {
				return nil, err
			}
			limit, _ = strconv.ParseInt(n.Text, 10, 64)
			continue
		}
		if p.acceptKw("OFFSET") {
			n, err := p.expect(tokenInteger, "integer")
			if err != nil {
				return nil, err
			}
			offset, _ = strconv.ParseInt(n.Text, 10, 64)
			continue
		}
		break
	}
	if offset >= 0 || limit >= 0 {
		node = algebra.Slice{Input: node, Offset: offset, Limit: limit}
	}
	return node, nil
}

func (p *parser) parseOrderExprTerm() (algebra.Expr, error) {
	if _, ok := p.accept(tokenLParen); ok {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	}
	return p.parsePrimaryExpr()
}

func (p *parser) canStartExpr() bool {
	switch p.tok.Kind {
	case tokenVar, tokenLParen, tokenIRIRef, tokenPNameLN, tokenPNameNS,
		tokenString, tokenInteger, tokenDecimal, tokenDouble, tokenBang,
		tokenPlus, tokenMinus:
		return true
	case tokenKeyword:
		switch strings.ToUpper(p.tok.Raw) {
		case "TRUE", "FALSE", "BOUND", "EXISTS", "NOT", "IF", "COALESCE",
			"COUNT", "SUM", "MIN", "MAX", "AVG", "SAMPLE", "GROUP_CONCAT":
			return true
		}
	}
	return false
}

func (p *parser) parseGroupClause(input algebra.Node) (algebra.Node, error) {
	p.advance() // GROUP
	if err := p.expectKw("BY"); err != nil {
		return nil, err
	}
	var keys []algebra.Expr
	for {
		if p.tok.Kind == tokenVar {
			keys = append(keys, algebra.ExprVar{Var: algebra.Var(p.tok.Text)})
			p.advance()
		} else {
			e, err := p.parseBracketedExpr()
			if err != nil {
				return nil, err
			}
			keys = append(keys, e)
		}
		if !p.canStartExpr() {
			break
		}
	}
	return algebra.Group{Input: input, Keys: keys}, nil
}

func (p *parser) parseBracketedExpr() (algebra.Expr, error) {
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}
	return e, nil
}

// resolveIRI expands a PNAME or resolves a relative IRIREF against
// the current base.
func (p *parser) resolveIRI(t token) (term.IRI, error) {
	switch t.Kind {
	case tokenIRIRef:
		return term.IRI(t.Text).Resolve(p.base), nil
	case tokenPNameLN, tokenPNameNS:
		i := strings.IndexByte(t.Text, ':')
		prefix, local := t.Text[:i], t.Text[i+1:]
		ns, ok := p.prefixes[prefix]
		if !ok {
			return "", p.errorf("undefined prefix %q", prefix)
		}
		return term.NewIRI(ns + local), nil
	}
	return "", p.errorf("expected IRI, got %q", t.Raw)
}
