package update

import (
	"fmt"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/txn"
)

// QuadSource fetches and parses the RDF graph named by an IRI, for
// SPARQL Update's LOAD. The core module only owns inserting the
// parsed quads; dereferencing source IRIs and decoding a concrete RDF
// syntax is an external-collaborator concern supplied by rdfio.
type QuadSource interface {
	Load(source term.IRI) (QuadCursor, error)
}

// QuadCursor yields the quads parsed from one LOAD source.
type QuadCursor interface {
	Next() (algebra.GroundQuad, bool, error)
	Close()
}

func (ex *Executor) load(wtx *txn.WriteTxn, u algebra.Load) error {
	if ex.Source == nil {
		if u.Silent {
			return nil
		}
		return fmt.Errorf("update: LOAD <%s>: no quad source configured", u.Source)
	}
	cur, err := ex.Source.Load(u.Source)
	if err != nil {
		if u.Silent {
			return nil
		}
		return fmt.Errorf("update: LOAD <%s>: %w", u.Source, err)
	}
	defer cur.Close()

	var into *term.ID
	if u.Into != nil {
		id, err := wtx.Encode(*u.Into)
		if err != nil {
			if u.Silent {
				return nil
			}
			return err
		}
		if err := wtx.InsertNamedGraph(id); err != nil {
			if u.Silent {
				return nil
			}
			return err
		}
		into = &id
	}

	for {
		gq, ok, err := cur.Next()
		if err != nil {
			if u.Silent {
				return nil
			}
			return fmt.Errorf("update: LOAD <%s>: %w", u.Source, err)
		}
		if !ok {
			return nil
		}
		if into != nil {
			gq.Graph = *u.Into
		}
		q, err := groundQuadID(wtx, gq)
		if err != nil {
			if u.Silent {
				return nil
			}
			return err
		}
		if q.Graph != term.DefaultGraph {
			if err := wtx.InsertNamedGraph(q.Graph); err != nil {
				return err
			}
		}
		if err := wtx.Insert(q); err != nil {
			return err
		}
	}
}
