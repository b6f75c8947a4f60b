package sparql

import (
	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

// parsePathExpr parses a SPARQL 1.1 property path expression
// (spec.md §4.6 "path-expr supports sequence, alternative, inverse,
// zero-or-more, one-or-more, zero-or-one, negated-property-set").
// A plain IRI or 'a' parses down to a bare algebra.PathIRI, which the
// caller (parsePropertyListPathNotEmpty) unwraps back into an
// ordinary QuadPattern predicate when no path operator was present.
func (p *parser) parsePathExpr() (algebra.PathOp, error) {
	return p.parsePathAlternative()
}

func (p *parser) parsePathAlternative() (algebra.PathOp, error) {
	left, err := p.parsePathSequence()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(tokenPipe); !ok {
			break
		}
		right, err := p.parsePathSequence()
		if err != nil {
			return nil, err
		}
		left = algebra.PathAlt{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePathSequence() (algebra.PathOp, error) {
	left, err := p.parsePathEltOrInverse()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(tokenSlash); !ok {
			break
		}
		right, err := p.parsePathEltOrInverse()
		if err != nil {
			return nil, err
		}
		left = algebra.PathSeq{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePathEltOrInverse() (algebra.PathOp, error) {
	if _, ok := p.accept(tokenCaret); ok {
		inner, err := p.parsePathElt()
		if err != nil {
			return nil, err
		}
		return algebra.PathInverse{Path: inner}, nil
	}
	return p.parsePathElt()
}

func (p *parser) parsePathElt() (algebra.PathOp, error) {
	prim, err := p.parsePathPrimary()
	if err != nil {
		return nil, err
	}
	switch p.tok.Kind {
	case tokenStar:
		p.advance()
		return algebra.PathZeroOrMore{Path: prim}, nil
	case tokenPlus:
		p.advance()
		return algebra.PathOneOrMore{Path: prim}, nil
	}
	if p.tok.Kind == tokenQuestionMark {
		p.advance()
		return algebra.PathZeroOrOne{Path: prim}, nil
	}
	return prim, nil
}

func (p *parser) parsePathPrimary() (algebra.PathOp, error) {
	switch {
	case p.kw("A"):
		p.advance()
		return algebra.PathIRI{IRI: term.RDFtype}, nil
	case p.tok.Kind == tokenLParen:
		p.advance()
		inner, err := p.parsePathExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case p.tok.Kind == tokenBang:
		p.advance()
		return p.parsePathNegatedPropertySet()
	case p.tok.Kind == tokenIRIRef || p.tok.Kind == tokenPNameLN || p.tok.Kind == tokenPNameNS:
		t := p.tok
		p.advance()
		iri, err := p.resolveIRI(t)
		if err != nil {
			return nil, err
		}
		return algebra.PathIRI{IRI: iri}, nil
	}
	return nil, p.errorf("expected a property path element, got %q", p.tok.Raw)
}

func (p *parser) parsePathNegatedPropertySet() (algebra.PathOp, error) {
	var iris []term.IRI
	var inverse []bool
	addOne := func() error {
		inv := false
		if _, ok := p.accept(tokenCaret); ok {
			inv = true
		}
		if p.kw("A") {
			p.advance()
			iris = append(iris, term.RDFtype)
			inverse = append(inverse, inv)
			return nil
		}
		t := p.tok
		if t.Kind != tokenIRIRef && t.Kind != tokenPNameLN && t.Kind != tokenPNameNS {
			return p.errorf("expected IRI in negated property set, got %q", t.Raw)
		}
		p.advance()
		iri, err := p.resolveIRI(t)
		if err != nil {
			return err
		}
		iris = append(iris, iri)
		inverse = append(inverse, inv)
		return nil
	}
	if _, ok := p.accept(tokenLParen); ok {
		if p.tok.Kind != tokenRParen {
			if err := addOne(); err != nil {
				return nil, err
			}
			for {
				if _, ok := p.accept(tokenPipe); !ok {
					break
				}
				if err := addOne(); err != nil {
					return nil, err
				}
			}
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
	} else {
		if err := addOne(); err != nil {
			return nil, err
		}
	}
	return algebra.PathNegatedPropertySet{IRIs: iris, Inverse: inverse}, nil
}
