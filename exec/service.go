package exec

import (
	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

// compileService delegates to the externally supplied
// algebra.ServiceClient (spec.md §4.9 "delegate to an external SPARQL
// endpoint via the externally provided client interface"); with no
// client configured, SILENT suppresses the failure as an empty
// result, matching a federated query against an unreachable endpoint.
func compileService(env *Env, n algebra.Service) (Iterator, error) {
	if env.Service == nil {
		if n.Silent {
			return &emptyIter{}, nil
		}
		return nil, ErrNoServiceClient
	}
	vars := patternVars(n.Pattern)
	query, err := serviceQueryText(n.Pattern)
	if err != nil {
		if n.Silent {
			return &emptyIter{}, nil
		}
		return nil, err
	}
	results, err := env.Service.Query(n.Endpoint, query)
	if err != nil {
		if n.Silent {
			return &emptyIter{}, nil
		}
		return nil, err
	}
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		row := make(Row, len(vars))
		for _, v := range vars {
			lex, ok := r[string(v)]
			if !ok {
				continue
			}
			id, ok := env.Rtx.EncodeExisting(term.NewStringLiteral(lex))
			if ok {
				row[v] = id
			}
		}
		rows = append(rows, row)
	}
	return &sliceIter{rows: rows}, nil
}

// patternVars collects the free variables of a compiled pattern tree,
// walking the handful of node kinds that can legally sit inside a
// SERVICE block's group graph pattern.
func patternVars(n algebra.Node) []algebra.Var {
	var out []algebra.Var
	seen := map[algebra.Var]bool{}
	add := func(vs []algebra.Var) {
		for _, v := range vs {
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	var walk func(algebra.Node)
	walk = func(n algebra.Node) {
		switch n := n.(type) {
		case algebra.QuadPattern:
			add(n.Vars())
		case algebra.Path:
			add(n.Vars())
		case algebra.Join:
			walk(n.Left)
			walk(n.Right)
		case algebra.LeftJoin:
			walk(n.Left)
			walk(n.Right)
		case algebra.Union:
			walk(n.Left)
			walk(n.Right)
		case algebra.Filter:
			walk(n.Input)
		case algebra.Extend:
			walk(n.Input)
			add([]algebra.Var{n.Var})
		case algebra.Values:
			add(n.Columns)
		}
	}
	walk(n)
	return out
}

// serviceQueryText re-serializes Pattern as a query body for the
// remote endpoint. A full algebra-to-SPARQL-text printer is out of
// scope; this supports the common case of a client-supplied literal
// pattern implementing literalPatternNode (used by tests and by
// callers that already hold the original query substring).
func serviceQueryText(n algebra.Node) (string, error) {
	if lp, ok := n.(literalPatternNode); ok {
		return lp.Text(), nil
	}
	return "", ErrServicePatternNotSerializable
}

type literalPatternNode interface {
	algebra.Node
	Text() string
}

var (
	ErrNoServiceClient               = serviceErr("exec: SERVICE used but no ServiceClient configured")
	ErrServicePatternNotSerializable = serviceErr("exec: SERVICE pattern cannot be re-serialized for the remote endpoint")
)

type serviceErr string

func (e serviceErr) Error() string { return string(e) }
