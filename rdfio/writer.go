package rdfio

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/boutros/quadstore/index"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/txn"
)

// DumpOptions controls WriteQuads' output shape.
type DumpOptions struct {
	// Base, if non-empty, is written as a leading "@base <...> ."
	// directive. Terms are always written out in full (Turtle's
	// base-relative IRI shortening is not implemented), matching the
	// teacher's Dump comment ("base is prefixed added, but then
	// stripped again here" — noted there as unfinished; this writer
	// sidesteps it by never shortening).
	Base term.IRI
}

// WriteQuads serializes every quad reachable from tx as N-Quads,
// one line per quad, grouped by (subject, predicate) the way the
// teacher's Dump groups by subject within the SPO bucket, generalized
// across named graphs: a graph's quads are emitted together, default
// graph last so a reader without graph support can safely ignore the
// tail once it sees the graph term appear.
func WriteQuads(to io.Writer, tx *txn.ReadTxn, opt DumpOptions) error {
	w := bufio.NewWriter(to)
	defer w.Flush()

	if opt.Base != "" {
		fmt.Fprintf(w, "@base <%s> .\n", opt.Base)
	}

	graphs := append([]term.ID{}, tx.ListGraphs()...)
	sort.Slice(graphs, func(i, j int) bool { return graphs[i].Less(graphs[j]) })
	graphs = append(graphs, term.DefaultGraph)

	for _, g := range graphs {
		quads := tx.Probe(index.Pattern{Graph: &g})
		sort.Slice(quads, func(i, j int) bool {
			if quads[i].Subject != quads[j].Subject {
				return quads[i].Subject.Less(quads[j].Subject)
			}
			return quads[i].Predicate.Less(quads[j].Predicate)
		})
		for _, q := range quads {
			s, err := tx.Decode(q.Subject)
			if err != nil {
				return err
			}
			p, err := tx.Decode(q.Predicate)
			if err != nil {
				return err
			}
			o, err := tx.Decode(q.Object)
			if err != nil {
				return err
			}
			if _, err := w.WriteString(serializeTerm(s)); err != nil {
				return err
			}
			w.WriteByte(' ')
			w.WriteString(serializeTerm(p))
			w.WriteByte(' ')
			w.WriteString(serializeTerm(o))
			if g != term.DefaultGraph {
				gt, err := tx.Decode(g)
				if err != nil {
					return err
				}
				w.WriteByte(' ')
				w.WriteString(serializeTerm(gt))
			}
			w.WriteString(" .\n")
		}
	}
	return nil
}

// serializeTerm renders t in N-Quads surface syntax. Grounded on the
// teacher's Dump (which wrote raw IRI/literal text inline rather than
// through a shared helper); factored out here since quads now need the
// same rendering for subject, predicate, object and graph position.
func serializeTerm(t term.Term) string {
	switch v := t.(type) {
	case term.IRI:
		return "<" + escapeIRI(string(v)) + ">"
	case term.BlankNode:
		return "_:" + string(v)
	case term.Literal:
		var b strings.Builder
		b.WriteByte('"')
		b.WriteString(escapeLiteral(v.String()))
		b.WriteByte('"')
		if lang := v.Lang(); lang != "" {
			b.WriteByte('@')
			b.WriteString(lang)
		} else if dt := v.DataType(); dt != term.XSDstring {
			b.WriteString("^^<")
			b.WriteString(escapeIRI(string(dt)))
			b.WriteByte('>')
		}
		return b.String()
	case term.QuotedTriple:
		return "<<" + serializeTerm(v.Subject) + " " + serializeTerm(v.Predicate) + " " + serializeTerm(v.Object) + ">>"
	default:
		return t.String()
	}
}

func escapeIRI(s string) string {
	return strings.NewReplacer(">", `\>`, `\`, `\\`).Replace(s)
}

func escapeLiteral(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"\"", `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(s)
}
