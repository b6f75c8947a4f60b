package exec

import (
	"github.com/google/uuid"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/index"
	"github.com/boutros/quadstore/limits"
	"github.com/boutros/quadstore/term"
)

// QuadIter is the pull-based result shape for CONSTRUCT/DESCRIBE,
// mirroring Iterator but yielding term.Quad instead of Row since
// these query forms produce an RDF graph, not a solution sequence.
type QuadIter interface {
	Next(tok *limits.Token) (bool, error)
	Quad() term.Quad
	Close()
}

type quadSliceIter struct {
	quads []term.Quad
	pos   int
}

func (it *quadSliceIter) Next(*limits.Token) (bool, error) {
	if it.pos >= len(it.quads) {
		return false, nil
	}
	it.pos++
	return true, nil
}
func (it *quadSliceIter) Quad() term.Quad { return it.quads[it.pos-1] }
func (it *quadSliceIter) Close()          {}

// RunConstruct evaluates a CONSTRUCT query: Input's solutions each
// instantiate Templates once, with blank node labels scoped to that
// one solution (spec.md §4.10's insert-template scoping rule, reused
// here since CONSTRUCT's template instantiation is the same
// operation). Duplicate quads across solutions are deduplicated, per
// CONSTRUCT producing an RDF graph (a set), not a multiset. tok is
// checked the same way a regular Iterator.Next would (spec.md §4.11);
// a nil tok never cancels.
func RunConstruct(env *Env, n algebra.Construct, tok *limits.Token) (QuadIter, error) {
	if tok == nil {
		tok = limits.NewToken()
	}
	templates := n.Templates
	if n.ShorthandSelf {
		var err error
		templates, err = shorthandTemplates(n.Input)
		if err != nil {
			return nil, err
		}
	}

	it, err := Compile(env, n.Input)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	seen := map[term.Quad]bool{}
	var out []term.Quad
	for {
		ok, err := it.Next(tok)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		row := it.Row()
		blanks := map[term.BlankNode]term.BlankNode{}
		for _, t := range templates {
			q, ok, err := instantiateTemplate(env, t, row, blanks)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if !seen[q] {
				seen[q] = true
				out = append(out, q)
			}
			if env.Caps.MaxBindings != 0 && uint64(len(out)) > env.Caps.MaxBindings {
				return nil, &limits.ResourceExceeded{Cap: "max_bindings", Limit: env.Caps.MaxBindings, Got: uint64(len(out))}
			}
		}
	}
	return &quadSliceIter{quads: out}, nil
}

// shorthandTemplates recovers the template triples for CONSTRUCT
// WHERE {...}: the matched pattern doubles as its own template, so we
// walk the (already-optimized) Input tree collecting its QuadPattern
// leaves.
func shorthandTemplates(n algebra.Node) ([]algebra.QuadTemplate, error) {
	var out []algebra.QuadTemplate
	var walk func(algebra.Node)
	walk = func(n algebra.Node) {
		switch n := n.(type) {
		case algebra.QuadPattern:
			out = append(out, algebra.QuadTemplate{Subject: n.Subject, Predicate: n.Predicate, Object: n.Object, Graph: n.Graph})
		case algebra.Join:
			walk(n.Left)
			walk(n.Right)
		case algebra.Filter:
			walk(n.Input)
		case algebra.Project:
			walk(n.Input)
		}
	}
	walk(n)
	return out, nil
}

// instantiateTemplate substitutes row's bindings (and fresh per-
// solution blank nodes) into t, returning ok=false if a required
// variable is unbound (the template contributes nothing for this
// solution, per spec.md §4.10).
func instantiateTemplate(env *Env, t algebra.QuadTemplate, row Row, blanks map[term.BlankNode]term.BlankNode) (term.Quad, bool, error) {
	s, ok, err := resolveTemplateTerm(env, t.Subject, row, blanks)
	if !ok || err != nil {
		return term.Quad{}, false, err
	}
	p, ok, err := resolveTemplateTerm(env, t.Predicate, row, blanks)
	if !ok || err != nil {
		return term.Quad{}, false, err
	}
	o, ok, err := resolveTemplateTerm(env, t.Object, row, blanks)
	if !ok || err != nil {
		return term.Quad{}, false, err
	}
	g := term.DefaultGraph
	if t.Graph.IsVar() || t.Graph.Bound != nil {
		gid, ok, err := resolveTemplateTerm(env, t.Graph, row, blanks)
		if err != nil {
			return term.Quad{}, false, err
		}
		if ok {
			g = gid
		}
	}
	return term.Quad{Subject: s, Predicate: p, Object: o, Graph: g}, true, nil
}

func resolveTemplateTerm(env *Env, t algebra.TermOrVar, row Row, blanks map[term.BlankNode]term.BlankNode) (term.ID, bool, error) {
	if t.IsVar() {
		id, ok := row[t.Variable]
		return id, ok, nil
	}
	if bn, ok := t.Bound.(term.BlankNode); ok {
		fresh, ok := blanks[bn]
		if !ok {
			fresh = term.BlankNode(uuid.NewString())
			blanks[bn] = fresh
		}
		id, ok := term.EncodeInline(fresh, env.Base)
		return id, ok, nil
	}
	id, ok := resolveBound(env, t)
	return id, ok, nil
}

// RunDescribe evaluates a DESCRIBE query: for each described
// resource, every quad where it appears as subject or object is
// included (a concise bounded description, spec.md §4.10's generic
// reading of DESCRIBE since the exact description form is
// implementation-defined). tok is checked the same way RunConstruct
// does; a nil tok never cancels.
func RunDescribe(env *Env, n algebra.Describe, tok *limits.Token) (QuadIter, error) {
	if tok == nil {
		tok = limits.NewToken()
	}
	targets := map[term.ID]bool{}

	addTarget := func(tv algebra.TermOrVar, row Row) {
		if tv.IsVar() {
			if id, ok := row[tv.Variable]; ok {
				targets[id] = true
			}
			return
		}
		if id, ok := resolveBound(env, tv); ok {
			targets[id] = true
		}
	}

	if n.Input != nil {
		it, err := Compile(env, n.Input)
		if err != nil {
			return nil, err
		}
		for {
			ok, err := it.Next(tok)
			if err != nil {
				it.Close()
				return nil, err
			}
			if !ok {
				break
			}
			row := it.Row()
			if n.Star {
				for _, id := range row {
					targets[id] = true
				}
			}
			for _, tv := range n.Targets {
				addTarget(tv, row)
			}
		}
		it.Close()
	} else {
		for _, tv := range n.Targets {
			addTarget(tv, nil)
		}
	}

	var out []term.Quad
	for id := range targets {
		subj := id
		env.Rtx.ProbeFunc(probePatternFor(subj, true), func(q term.Quad) bool {
			out = append(out, q)
			return true
		})
		env.Rtx.ProbeFunc(probePatternFor(subj, false), func(q term.Quad) bool {
			out = append(out, q)
			return true
		})
	}
	return &quadSliceIter{quads: dedupQuads(out)}, nil
}

func probePatternFor(id term.ID, asSubject bool) index.Pattern {
	if asSubject {
		return index.Pattern{Subject: &id}
	}
	return index.Pattern{Object: &id}
}

func dedupQuads(qs []term.Quad) []term.Quad {
	seen := map[term.Quad]bool{}
	out := qs[:0]
	for _, q := range qs {
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}
