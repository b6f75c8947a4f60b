package rdfio

import (
	"fmt"
	"io"
	"strings"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

// prefixMap resolves Turtle prefixed names, the same Set/Resolve shape
// as the teacher's rdf.PrefixMap, generalized to term.IRI.
type prefixMap struct {
	m    map[string]term.IRI
	base term.IRI
}

func newPrefixMap() *prefixMap { return &prefixMap{m: map[string]term.IRI{}} }

func (p *prefixMap) set(prefix string, iri term.IRI) { p.m[prefix] = iri }

// resolve expands "prefix:local" using a previously declared @prefix.
// An empty prefix ("" before the colon) resolves against base.
func (p *prefixMap) resolve(s string) (term.IRI, error) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return "", fmt.Errorf("rdfio: malformed prefixed name %q", s)
	}
	prefix, local := s[:i], s[i+1:]
	if prefix == "" {
		return term.IRI(local).Resolve(p.base), nil
	}
	ns, ok := p.m[prefix]
	if !ok {
		return "", fmt.Errorf("rdfio: undeclared prefix %q", prefix)
	}
	return term.IRI(string(ns) + local), nil
}

// Decoder streams algebra.GroundQuad values out of an N-Quads/Turtle
// document. RDFStar, if set, enables parsing <<s p o>> as a quoted
// triple term (spec.md's RDF-star toggle); otherwise a quoted-triple
// token is a syntax error.
type Decoder struct {
	scanner *scanner
	prefix  *prefixMap
	RDFStar bool

	// pending holds a (subject, predicate) carried over from a Turtle
	// ',' abbreviation, or a subject carried over from a ';' one, so
	// the next Decode call continues the same statement instead of
	// starting a fresh triple.
	pendingSubj *term.Term
	pendingPred *term.IRI
}

// NewDecoder returns a Decoder reading from r, with base as the
// initial base IRI (overridden by any @base directive encountered).
func NewDecoder(r io.Reader, base term.IRI) *Decoder {
	pm := newPrefixMap()
	pm.base = base
	return &Decoder{scanner: newScanner(r), prefix: pm}
}

// Decode returns the next quad, or io.EOF once the stream is
// exhausted. Graph is nil for a bare triple (default graph).
func (d *Decoder) Decode() (algebra.GroundQuad, error) {
	for {
		if d.pendingSubj != nil {
			return d.decodeContinuation()
		}

		tok, err := d.scanner.Scan()
		if err != nil {
			return algebra.GroundQuad{}, err
		}
		switch tok.Type {
		case tokenEOF:
			return algebra.GroundQuad{}, io.EOF
		case tokenPrefixDecl:
			if err := d.parsePrefixDecl(); err != nil {
				return algebra.GroundQuad{}, err
			}
			continue
		case tokenBaseDecl:
			if err := d.parseBaseDecl(); err != nil {
				return algebra.GroundQuad{}, err
			}
			continue
		default:
			return d.decodeStatement(tok)
		}
	}
}

func (d *Decoder) parsePrefixDecl() error {
	name, err := d.scanner.Scan()
	if err != nil {
		return err
	}
	if name.Type != tokenPrefixedName {
		return fmt.Errorf("rdfio: expected prefix name after @prefix")
	}
	iriTok, err := d.scanner.Scan()
	if err != nil {
		return err
	}
	if iriTok.Type != tokenIRI {
		return fmt.Errorf("rdfio: expected IRI in @prefix declaration")
	}
	dot, err := d.scanner.Scan()
	if err != nil {
		return err
	}
	if dot.Type != tokenDot {
		return fmt.Errorf("rdfio: expected '.' terminating @prefix")
	}
	d.prefix.set(strings.TrimSuffix(name.Text, ":"), term.IRI(iriTok.Text).Resolve(d.prefix.base))
	return nil
}

func (d *Decoder) parseBaseDecl() error {
	iriTok, err := d.scanner.Scan()
	if err != nil {
		return err
	}
	if iriTok.Type != tokenIRI {
		return fmt.Errorf("rdfio: expected IRI in @base declaration")
	}
	dot, err := d.scanner.Scan()
	if err != nil {
		return err
	}
	if dot.Type != tokenDot {
		return fmt.Errorf("rdfio: expected '.' terminating @base")
	}
	d.prefix.base = term.IRI(iriTok.Text).Resolve(d.prefix.base)
	return nil
}

// decodeStatement parses a full "subject predicate object (, object)*
// (; predicate object-list)* [graph] ." statement starting from an
// already-scanned subject token, returning the first quad and
// buffering a continuation in d.pending* if the statement has more
// object/predicate-object pairs.
func (d *Decoder) decodeStatement(subjTok token) (algebra.GroundQuad, error) {
	subj, err := d.parseTermFrom(subjTok)
	if err != nil {
		return algebra.GroundQuad{}, err
	}
	predTok, err := d.scanner.Scan()
	if err != nil {
		return algebra.GroundQuad{}, err
	}
	pred, err := d.parseTermFrom(predTok)
	if err != nil {
		return algebra.GroundQuad{}, err
	}
	predIRI, ok := pred.(term.IRI)
	if !ok {
		return algebra.GroundQuad{}, fmt.Errorf("rdfio: predicate must be an IRI, got %T", pred)
	}
	d.pendingSubj = &subj
	d.pendingPred = &predIRI
	return d.decodeContinuation()
}

// decodeContinuation reads the next object in the current predicate's
// object list (or a fresh predicate via ';', or the next quad's
// graph/dot terminator), given subject and predicate already pending.
func (d *Decoder) decodeContinuation() (algebra.GroundQuad, error) {
	subj, pred := *d.pendingSubj, *d.pendingPred

	objTok, err := d.scanner.Scan()
	if err != nil {
		return algebra.GroundQuad{}, err
	}
	obj, err := d.parseTermFrom(objTok)
	if err != nil {
		return algebra.GroundQuad{}, err
	}

	q := algebra.GroundQuad{Subject: subj, Predicate: pred, Object: obj}

	next, err := d.scanner.Scan()
	if err != nil {
		return algebra.GroundQuad{}, err
	}
	switch next.Type {
	case tokenDot:
		d.pendingSubj, d.pendingPred = nil, nil
	case tokenComma:
		// same subject+predicate, another object follows.
	case tokenSemicolon:
		predTok, err := d.scanner.Scan()
		if err != nil {
			return algebra.GroundQuad{}, err
		}
		p, err := d.parseTermFrom(predTok)
		if err != nil {
			return algebra.GroundQuad{}, err
		}
		predIRI, ok := p.(term.IRI)
		if !ok {
			return algebra.GroundQuad{}, fmt.Errorf("rdfio: predicate must be an IRI, got %T", p)
		}
		d.pendingPred = &predIRI
	default:
		// An N-Quads graph term preceding the final dot.
		g, err := d.parseTermFrom(next)
		if err != nil {
			return algebra.GroundQuad{}, err
		}
		q.Graph = g
		dot, err := d.scanner.Scan()
		if err != nil {
			return algebra.GroundQuad{}, err
		}
		if dot.Type != tokenDot {
			return algebra.GroundQuad{}, fmt.Errorf("rdfio: expected '.' after graph term")
		}
		d.pendingSubj, d.pendingPred = nil, nil
	}
	return q, nil
}

// parseTermFrom interprets an already-scanned token as an RDF term,
// reading any trailing language tag / datatype for a literal, or a
// nested s/p/o for a quoted triple.
func (d *Decoder) parseTermFrom(tok token) (term.Term, error) {
	switch tok.Type {
	case tokenIRI:
		return term.IRI(tok.Text).Resolve(d.prefix.base), nil
	case tokenPrefixedName:
		return d.prefix.resolve(tok.Text)
	case tokenBlank:
		return term.BlankNode(tok.Text), nil
	case tokenLiteral:
		return d.parseLiteralTail(tok.Text)
	case tokenQuotedOpen:
		return d.parseQuotedTriple()
	default:
		return nil, fmt.Errorf("rdfio: unexpected token %v parsing term", tok.Type)
	}
}

func (d *Decoder) parseLiteralTail(lexical string) (term.Term, error) {
	tok, err := d.scanner.Scan()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case tokenLangTag:
		return term.NewLangLiteral(lexical, tok.Text), nil
	case tokenTypeMarker:
		dt, err := d.scanner.Scan()
		if err != nil {
			return nil, err
		}
		var iri term.IRI
		switch dt.Type {
		case tokenIRI:
			iri = term.IRI(dt.Text).Resolve(d.prefix.base)
		case tokenPrefixedName:
			iri, err = d.prefix.resolve(dt.Text)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("rdfio: expected datatype IRI after ^^")
		}
		return term.NewTypedLiteral(lexical, iri), nil
	default:
		d.unscan(tok)
		return term.NewStringLiteral(lexical), nil
	}
}

// unscan is a one-token pushback, implemented as a tiny re-entry
// buffer on the decoder rather than the scanner, since only Decode's
// literal-tail lookahead ever needs it.
func (d *Decoder) unscan(tok token) {
	d.scanner.pushback = &tok
}

func (d *Decoder) parseQuotedTriple() (term.Term, error) {
	if !d.RDFStar {
		return nil, fmt.Errorf("rdfio: RDF-star quoted triple encountered with RDFStar disabled")
	}
	sTok, err := d.scanner.Scan()
	if err != nil {
		return nil, err
	}
	s, err := d.parseTermFrom(sTok)
	if err != nil {
		return nil, err
	}
	pTok, err := d.scanner.Scan()
	if err != nil {
		return nil, err
	}
	p, err := d.parseTermFrom(pTok)
	if err != nil {
		return nil, err
	}
	pIRI, ok := p.(term.IRI)
	if !ok {
		return nil, fmt.Errorf("rdfio: quoted triple predicate must be an IRI")
	}
	oTok, err := d.scanner.Scan()
	if err != nil {
		return nil, err
	}
	o, err := d.parseTermFrom(oTok)
	if err != nil {
		return nil, err
	}
	closeTok, err := d.scanner.Scan()
	if err != nil {
		return nil, err
	}
	if closeTok.Type != tokenQuotedClose {
		return nil, fmt.Errorf("rdfio: expected '>>' closing quoted triple")
	}
	return term.QuotedTriple{Subject: s, Predicate: pIRI, Object: o}, nil
}
