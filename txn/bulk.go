package txn

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/boutros/quadstore/index"
	"github.com/boutros/quadstore/storage"
	"github.com/boutros/quadstore/term"
)

// BulkLoader is the non-transactional high-throughput ingestion path
// (spec.md §4.5 "Bulk-load mode"): it disables durability guarantees
// mid-batch and groups writes by a configurable byte budget, instead
// of going through WriteTxn's per-call overlay. Grounded on the
// teacher's Import/ImportGraph batching (db.go:356-422), generalized
// from a triple-count threshold to a byte budget plus parallel term
// encoding, matching spec.md §4.5's "batches writes into large groups
// sized by a configurable byte budget".
type BulkLoader struct {
	store      *Store
	batchBytes uint64
	encodeJobs int64

	snap     storage.Snapshot
	batch    storage.Batch
	approxSz uint64

	// dictMu serializes access to snap/batch during the parallel
	// encode phase of LoadBatch: the storage.Snapshot/Batch contract
	// does not promise concurrent-call safety, so encodeJobs only
	// bounds how many goroutines are in flight waiting on this lock,
	// not how many touch storage at once.
	dictMu sync.Mutex
}

// LoadTerm is one unit of input to the bulk loader: a (subject,
// predicate, object, graph) in term form, not yet encoded to ids.
// Graph may be nil, meaning the default graph.
type LoadTerm struct {
	Subject, Predicate, Object, Graph term.Term
}

// BeginBulkLoad claims the store's single-writer slot for the
// duration of the load. batchBytes is the byte budget per committed
// group (spec.md §6 Options.bulk_load_batch_bytes); encodeJobs bounds
// how many quads are term-encoded concurrently before being folded
// into the serialized write batch.
func (s *Store) BeginBulkLoad(batchBytes uint64, encodeJobs int) (*BulkLoader, error) {
	s.writerMu.Lock()
	if s.writing {
		s.writerMu.Unlock()
		return nil, ErrWriterBusy
	}
	s.writing = true
	s.writerMu.Unlock()

	if encodeJobs < 1 {
		encodeJobs = 1
	}
	bl := &BulkLoader{store: s, batchBytes: batchBytes, encodeJobs: int64(encodeJobs)}
	if err := bl.openBatch(); err != nil {
		s.releaseWriter()
		return nil, err
	}
	return bl, nil
}

func (bl *BulkLoader) openBatch() error {
	snap, err := bl.store.Engine.Snapshot()
	if err != nil {
		return err
	}
	bl.snap = snap
	bl.batch = bl.store.Engine.NewBatch()
	bl.approxSz = 0
	return nil
}

// encodedQuad is a fully id-resolved quad awaiting the single
// serialized index write.
type encodedQuad struct {
	q  term.Quad
	ok bool
}

// LoadBatch encodes and inserts a slice of quads. Term encoding (the
// read-mostly dictionary lookup/hash step) is fanned out across
// encodeJobs goroutines; indexing the resulting ids stays strictly
// single-threaded to preserve the one-writer invariant. A commit is
// flushed whenever the accumulated byte budget is exceeded. Quads are
// deduplicated within the in-flight batch but not across flushed
// batches (spec.md §4.5: "may deduplicate within a batch in memory").
func (bl *BulkLoader) LoadBatch(items []LoadTerm) error {
	sem := semaphore.NewWeighted(bl.encodeJobs)
	g, ctx := errgroup.WithContext(context.Background())
	encoded := make([]encodedQuad, len(items))

	for i, it := range items {
		i, it := i, it
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			q, err := bl.encodeOne(it)
			if err != nil {
				return err
			}
			encoded[i] = encodedQuad{q: q, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	seen := make(map[term.Quad]struct{}, len(encoded))
	for _, eq := range encoded {
		if !eq.ok {
			continue
		}
		if _, dup := seen[eq.q]; dup {
			continue
		}
		seen[eq.q] = struct{}{}
		index.Put(bl.batch, eq.q)
		if eq.q.Graph != term.DefaultGraph {
			index.PutGraph(bl.batch, eq.q.Graph)
		}
		bl.approxSz += 64 * 6 // six index keys of 64 bytes each
	}

	if bl.approxSz >= bl.batchBytes {
		return bl.flush()
	}
	return nil
}

func (bl *BulkLoader) encodeOne(it LoadTerm) (term.Quad, error) {
	bl.dictMu.Lock()
	defer bl.dictMu.Unlock()

	sID, err := bl.store.Dict.Encode(bl.snap, bl.batch, it.Subject)
	if err != nil {
		return term.Quad{}, err
	}
	pID, err := bl.store.Dict.Encode(bl.snap, bl.batch, it.Predicate)
	if err != nil {
		return term.Quad{}, err
	}
	oID, err := bl.store.Dict.Encode(bl.snap, bl.batch, it.Object)
	if err != nil {
		return term.Quad{}, err
	}
	gID := term.DefaultGraph
	if it.Graph != nil {
		gID, err = bl.store.Dict.Encode(bl.snap, bl.batch, it.Graph)
		if err != nil {
			return term.Quad{}, err
		}
	}
	return term.Quad{Subject: sID, Predicate: pID, Object: oID, Graph: gID}, nil
}

func (bl *BulkLoader) flush() error {
	if err := bl.batch.Commit(); err != nil {
		return err
	}
	bl.snap.Close()
	return bl.openBatch()
}

// Finish flushes any remaining writes and releases the writer slot.
// Bulk-load is not transactional with respect to concurrent readers
// mid-load; its only guarantee is all-or-nothing by the time Finish
// returns successfully (spec.md §4.5).
func (bl *BulkLoader) Finish() error {
	defer bl.store.releaseWriter()
	if bl.approxSz > 0 {
		if err := bl.batch.Commit(); err != nil {
			bl.snap.Close()
			return err
		}
	} else {
		bl.batch.Rollback()
	}
	bl.snap.Close()
	return nil
}

// Abort discards the in-flight batch without committing it.
func (bl *BulkLoader) Abort() {
	defer bl.store.releaseWriter()
	bl.batch.Rollback()
	bl.snap.Close()
}
