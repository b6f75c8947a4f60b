package exec

import (
	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/index"
	"github.com/boutros/quadstore/limits"
	"github.com/boutros/quadstore/term"
)

// patternIter streams the quads matching one QuadPattern, converting
// each to a Row. Bound positions are resolved to term.ID once, at
// compile time; the quads themselves are probed eagerly since
// index.Probe already materializes its result (the underlying cursor
// cannot outlive the probe call).
type patternIter struct {
	vars  [4]algebra.Var // subject, predicate, object, graph var names ("" if bound)
	quads []term.Quad
	pos   int
	tick  *limits.Checkpoint
}

func compilePattern(env *Env, n algebra.QuadPattern) (Iterator, error) {
	var pat index.Pattern
	var vars [4]algebra.Var

	bind := func(tv algebra.TermOrVar, slot int) (*term.ID, bool) {
		if tv.IsVar() {
			vars[slot] = tv.Variable
			return nil, true
		}
		id, ok := resolveBound(env, tv)
		if !ok {
			return nil, false
		}
		return &id, true
	}

	var ok bool
	var id *term.ID
	if id, ok = bind(n.Subject, 0); !ok {
		return &emptyIter{}, nil
	}
	pat.Subject = id
	if id, ok = bind(n.Predicate, 1); !ok {
		return &emptyIter{}, nil
	}
	pat.Predicate = id
	if id, ok = bind(n.Object, 2); !ok {
		return &emptyIter{}, nil
	}
	pat.Object = id
	if id, ok = bind(n.Graph, 3); !ok {
		return &emptyIter{}, nil
	}
	pat.Graph = id

	return &patternIter{
		vars:  vars,
		quads: env.Rtx.Probe(pat),
		tick:  limits.NewCheckpoint(256),
	}, nil
}

func (it *patternIter) Next(tok *limits.Token) (bool, error) {
	if it.pos >= len(it.quads) {
		return false, nil
	}
	if it.tick.Tick(tok) {
		return false, ErrCancelled
	}
	it.pos++
	return true, nil
}

func (it *patternIter) Row() Row {
	q := it.quads[it.pos-1]
	row := make(Row, 4)
	if it.vars[0] != "" {
		row[it.vars[0]] = q.Subject
	}
	if it.vars[1] != "" {
		row[it.vars[1]] = q.Predicate
	}
	if it.vars[2] != "" {
		row[it.vars[2]] = q.Object
	}
	if it.vars[3] != "" {
		row[it.vars[3]] = q.Graph
	}
	return row
}

func (it *patternIter) Close() {}

// compileValues turns an inline VALUES clause into a sliceIter,
// resolving each non-UNDEF term to an id up front. A value absent from
// the dictionary drops that row, since it can never join with stored
// data.
func compileValues(env *Env, n algebra.Values) (Iterator, error) {
	if len(n.Rows) == 0 {
		return &emptyIter{}, nil
	}
	if len(n.Columns) == 0 {
		return &singleRowIter{row: Row{}}, nil
	}
	rows := make([]Row, 0, len(n.Rows))
	for _, r := range n.Rows {
		row := make(Row, len(n.Columns))
		skip := false
		for i, col := range n.Columns {
			if i >= len(r) || r[i] == nil {
				continue // UNDEF: leave the column unbound for this row
			}
			id, ok := env.Rtx.EncodeExisting(r[i])
			if !ok {
				skip = true
				break
			}
			row[col] = id
		}
		if !skip {
			rows = append(rows, row)
		}
	}
	return &sliceIter{rows: rows}, nil
}
