package exec

import (
	"strings"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
)

// groupIter partitions Input's rows by Keys and computes each
// Aggregate per partition, binding results to synthetic row keys
// (aggregateRefVar) that Project/HAVING read back by position, and
// also to each Aggregate's own As variable when that is set (spec.md
// §4.9 "Group + aggregate").
//
// Iteration order across partitions follows first-seen-key order
// (an insertion-ordered map, since SPARQL does not mandate GROUP BY
// output order and the optimizer/ORDER BY layer sorts when the query
// asks for it — see DESIGN.md's Open Question decision on
// non-deterministic aggregation order).
func compileGroup(env *Env, n algebra.Group) (Iterator, error) {
	in, err := Compile(env, n.Input)
	if err != nil {
		return nil, err
	}
	return &deferredIter{env: env, input: in, build: func(rows []Row) (Iterator, error) {
		type partition struct {
			keyRow Row // the bindings for Keys, shared by every row in the group
			rows   []Row
		}
		order := make([]string, 0)
		byKey := make(map[string]*partition)

		for _, r := range rows {
			keyRow := make(Row, len(n.Keys))
			var keyParts []byte
			for i, k := range n.Keys {
				v := evalExpr(&evalCtx{env: env, row: r}, k)
				keyVar := algebra.Var(groupKeyVar(i))
				if v.Err == nil && !v.Unbound {
					if id, ok := term.EncodeInline(v.Term, env.Base); ok {
						keyRow[keyVar] = id
					} else if id, ok := env.Rtx.EncodeExisting(v.Term); ok {
						keyRow[keyVar] = id
					}
				}
				if id, ok := keyRow[keyVar]; ok {
					keyParts = append(keyParts, id[:]...)
				} else {
					keyParts = append(keyParts, 0xff)
				}
			}
			key := string(keyParts)
			p, ok := byKey[key]
			if !ok {
				p = &partition{keyRow: keyRow}
				byKey[key] = p
				order = append(order, key)
			}
			p.rows = append(p.rows, r)
		}

		if len(n.Keys) == 0 && len(order) == 0 {
			// No GROUP BY and no input rows: aggregates still run once,
			// over the empty multiset (e.g. COUNT(*) of an empty pattern
			// is 0, not no-rows).
			order = append(order, "")
			byKey[""] = &partition{keyRow: Row{}}
		}

		out := make([]Row, 0, len(order))
		for _, key := range order {
			p := byKey[key]
			row := p.keyRow.Clone()
			for i, agg := range n.Aggregates {
				val := computeAggregate(env, agg, p.rows)
				ref := aggregateRefVar(i)
				if id, ok := term.EncodeInline(val, env.Base); ok {
					row[ref] = id
				} else if id, ok := env.Rtx.EncodeExisting(val); ok {
					row[ref] = id
				}
				if agg.As != "" {
					row[agg.As] = row[ref]
				}
			}
			out = append(out, row)
		}
		return &sliceIter{rows: out}, nil
	}}, nil
}

func groupKeyVar(i int) string {
	return "__group" + itoaSmall(i)
}

func itoaSmall(i int) string {
	if i == 0 {
		return "0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{byte('0' + i%10)}, b...)
		i /= 10
	}
	return string(b)
}

// computeAggregate reduces rows to a single term for one Aggregate. It
// never returns nil: an empty group yields 0 for COUNT/SUM/AVG and an
// empty string literal for MIN/MAX/SAMPLE/GROUP_CONCAT.
func computeAggregate(env *Env, agg algebra.Aggregate, rows []Row) term.Term {
	switch agg.Func {
	case algebra.AggCount:
		n := 0
		seen := map[string]bool{}
		for _, r := range rows {
			if agg.Arg == nil {
				n++
				continue
			}
			v := evalExpr(&evalCtx{env: env, row: r}, agg.Arg)
			if v.Err != nil || v.Unbound {
				continue
			}
			if agg.Distinct {
				k := v.Term.String()
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			n++
		}
		return term.NewTypedLiteral(itoaSmall(n), term.XSDinteger)
	case algebra.AggSum, algebra.AggAvg:
		sum := 0.0
		count := 0
		seen := map[string]bool{}
		dt := term.XSDinteger
		for _, r := range rows {
			v := evalExpr(&evalCtx{env: env, row: r}, agg.Arg)
			if v.Err != nil || v.Unbound {
				continue
			}
			if agg.Distinct {
				k := v.Term.String()
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			f, d, err := numeric(v)
			if err != nil {
				continue
			}
			sum += f
			dt = widerType(dt, d)
			count++
		}
		if agg.Func == algebra.AggAvg {
			if count == 0 {
				return term.NewTypedLiteral("0", term.XSDinteger)
			}
			return numericLiteral(sum/float64(count), term.XSDdecimal)
		}
		return numericLiteral(sum, dt)
	case algebra.AggMin, algebra.AggMax:
		var best Value
		have := false
		for _, r := range rows {
			v := evalExpr(&evalCtx{env: env, row: r}, agg.Arg)
			if v.Err != nil || v.Unbound {
				continue
			}
			if !have {
				best, have = v, true
				continue
			}
			cmp, err := compareValues(v, best)
			if err != nil {
				continue
			}
			if (agg.Func == algebra.AggMin && cmp < 0) || (agg.Func == algebra.AggMax && cmp > 0) {
				best = v
			}
		}
		if !have {
			return term.NewStringLiteral("")
		}
		return best.Term
	case algebra.AggSample:
		for _, r := range rows {
			v := evalExpr(&evalCtx{env: env, row: r}, agg.Arg)
			if v.Err == nil && !v.Unbound {
				return v.Term
			}
		}
		return term.NewStringLiteral("")
	case algebra.AggGroupConcat:
		sep := agg.Separator
		if sep == "" {
			sep = " "
		}
		var parts []string
		seen := map[string]bool{}
		for _, r := range rows {
			v := evalExpr(&evalCtx{env: env, row: r}, agg.Arg)
			if v.Err != nil || v.Unbound {
				continue
			}
			s := termLexical(v)
			if agg.Distinct {
				if seen[s] {
					continue
				}
				seen[s] = true
			}
			parts = append(parts, s)
		}
		return term.NewStringLiteral(strings.Join(parts, sep))
	}
	return term.NewStringLiteral("")
}

func numericLiteral(f float64, dt term.IRI) term.Term {
	v := numericVal(f, dt)
	return v.Term
}
