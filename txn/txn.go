// Package txn implements the transaction layer (spec.md §4.5,
// component C5): read and write transaction handles over a
// storage.Engine, the single-writer invariant, and visibility rules.
// Generalizes the teacher's per-call db.kv.View/db.kv.Update closures
// (db.go) into long-lived handles, since the query/update pipeline
// needs a transaction object that outlives a single function call.
package txn

import (
	"errors"
	"sync"

	"github.com/boutros/quadstore/dict"
	"github.com/boutros/quadstore/index"
	"github.com/boutros/quadstore/storage"
	"github.com/boutros/quadstore/term"
)

// ErrWriterBusy is returned by Store.BeginWrite when another write
// transaction or bulk load is already active (spec.md §4.5: "at most
// one uncommitted write transaction exists per store at any time").
var ErrWriterBusy = errors.New("txn: a write transaction is already active")

// ErrClosed is returned by any method called on a closed transaction.
var ErrClosed = errors.New("txn: transaction is closed")

// Store owns the storage engine and dictionary, and serializes
// writers (spec.md §5: "at most one active write transaction or
// active bulk-load per store").
type Store struct {
	Engine storage.Engine
	Dict   *dict.Dictionary

	writerMu sync.Mutex
	writing  bool
}

func NewStore(engine storage.Engine, base term.IRI) *Store {
	return &Store{Engine: engine, Dict: dict.New(base)}
}

// ReadTxn holds a pinned snapshot; every probe within it observes the
// same version (spec.md §4.5 "Read transaction").
type ReadTxn struct {
	store    *Store
	snap     storage.Snapshot
	closed   bool
	borrowed bool // true when snap is owned by a WriteTxn; Close is a no-op
}

// BeginRead opens a new read transaction. Concurrent read
// transactions are unrestricted.
func (s *Store) BeginRead() (*ReadTxn, error) {
	snap, err := s.Engine.Snapshot()
	if err != nil {
		return nil, err
	}
	return &ReadTxn{store: s, snap: snap}, nil
}

func (t *ReadTxn) Snapshot() storage.Snapshot { return t.snap }

func (t *ReadTxn) Probe(p index.Pattern) []term.Quad {
	return index.Probe(t.snap, p)
}

func (t *ReadTxn) ProbeFunc(p index.Pattern, fn func(term.Quad) bool) {
	index.ProbeFunc(t.snap, p, fn)
}

func (t *ReadTxn) Decode(id term.ID) (term.Term, error) {
	return t.store.Dict.Decode(t.snap, id)
}

func (t *ReadTxn) EncodeExisting(tm term.Term) (term.ID, bool) {
	return t.store.Dict.EncodeExisting(t.snap, tm)
}

// ListGraphs enumerates every currently-recorded named graph.
func (t *ReadTxn) ListGraphs() []term.ID {
	return index.ListGraphs(t.snap)
}

// Close releases the pinned snapshot.
func (t *ReadTxn) Close() {
	if t.closed {
		return
	}
	t.closed = true
	if !t.borrowed {
		t.snap.Close()
	}
}

// WriteTxn accumulates puts/deletes in a storage.Batch, which is
// itself an in-memory overlay over a pinned snapshot until Commit
// (spec.md §4.5 "Write transaction").
type WriteTxn struct {
	store  *Store
	snap   storage.Snapshot
	batch  storage.Batch
	ov     *overlay
	closed bool
}

// view returns t's pending writes merged over its pinned base
// snapshot (spec.md §4.5/§8: "reads within the transaction see its
// own pending writes merged over the snapshot"). Every WriteTxn read
// path uses this instead of the raw base snapshot.
func (t *WriteTxn) view() storage.Snapshot {
	return &overlaySnapshot{base: t.snap, ov: t.ov}
}

// BeginWrite opens the store's single write transaction. It returns
// ErrWriterBusy if one is already active.
func (s *Store) BeginWrite() (*WriteTxn, error) {
	s.writerMu.Lock()
	if s.writing {
		s.writerMu.Unlock()
		return nil, ErrWriterBusy
	}
	s.writing = true
	s.writerMu.Unlock()

	snap, err := s.Engine.Snapshot()
	if err != nil {
		s.releaseWriter()
		return nil, err
	}
	ov := newOverlay()
	return &WriteTxn{
		store: s,
		snap:  snap,
		batch: &overlayBatch{Batch: s.Engine.NewBatch(), ov: ov},
		ov:    ov,
	}, nil
}

func (s *Store) releaseWriter() {
	s.writerMu.Lock()
	s.writing = false
	s.writerMu.Unlock()
}

// Insert adds q to the store if not already present (spec.md §8
// property 6: insert/delete idempotence).
func (t *WriteTxn) Insert(q term.Quad) error {
	if t.closed {
		return ErrClosed
	}
	if index.Has(t.view(), q) {
		return nil
	}
	index.Put(t.batch, q)
	if q.Graph != term.DefaultGraph {
		index.PutGraph(t.batch, q.Graph)
	}
	return nil
}

// Delete removes q if present; a no-op if absent (idempotent).
func (t *WriteTxn) Delete(q term.Quad) error {
	if t.closed {
		return ErrClosed
	}
	if !index.Has(t.view(), q) {
		return nil
	}
	index.Delete(t.batch, q)
	return nil
}

// InsertNamedGraph records g's existence even with no quads in it yet
// (spec.md §3: "an empty named graph can exist").
func (t *WriteTxn) InsertNamedGraph(g term.ID) error {
	if t.closed {
		return ErrClosed
	}
	index.PutGraph(t.batch, g)
	return nil
}

// DropGraph removes every quad in graph g and the graph's existence
// record.
func (t *WriteTxn) DropGraph(g term.ID) error {
	if t.closed {
		return ErrClosed
	}
	var toDelete []term.Quad
	index.ProbeFunc(t.view(), index.Pattern{Graph: &g}, func(q term.Quad) bool {
		toDelete = append(toDelete, q)
		return true
	})
	for _, q := range toDelete {
		index.Delete(t.batch, q)
	}
	index.DeleteGraph(t.batch, g)
	return nil
}

// Clear removes every quad in the store (all graphs).
func (t *WriteTxn) Clear() error {
	if t.closed {
		return ErrClosed
	}
	var toDelete []term.Quad
	index.ProbeFunc(t.view(), index.Pattern{}, func(q term.Quad) bool {
		toDelete = append(toDelete, q)
		return true
	})
	for _, q := range toDelete {
		index.Delete(t.batch, q)
	}
	return nil
}

// Encode allocates (or reuses) an id for tm, writing a dictionary
// entry through this transaction's batch if needed.
func (t *WriteTxn) Encode(tm term.Term) (term.ID, error) {
	if t.closed {
		return term.ID{}, ErrClosed
	}
	return t.store.Dict.Encode(t.view(), t.batch, tm)
}

func (t *WriteTxn) Decode(id term.ID) (term.Term, error) {
	return t.store.Dict.Decode(t.view(), id)
}

// EncodeExisting looks up tm without writing a new dictionary entry,
// for resolving a DELETE template's bound terms: a term absent from
// the dictionary can never match a stored quad, so the caller should
// treat ok=false as "nothing to delete" rather than an error.
func (t *WriteTxn) EncodeExisting(tm term.Term) (term.ID, bool) {
	return t.store.Dict.EncodeExisting(t.view(), tm)
}

func (t *WriteTxn) Probe(p index.Pattern) []term.Quad {
	return index.Probe(t.view(), p)
}

// Snapshot exposes the transaction's pending writes merged over its
// pinned base snapshot, for read-only helpers (graph existence checks,
// listing) that don't need a full ReadTxn.
func (t *WriteTxn) Snapshot() storage.Snapshot { return t.view() }

// ListGraphs enumerates every currently-recorded named graph, for
// resolving CLEAR/DROP NAMED|ALL and graph-copy operations.
func (t *WriteTxn) ListGraphs() []term.ID {
	return index.ListGraphs(t.view())
}

// GraphExists reports whether g has been recorded as a named graph.
func (t *WriteTxn) GraphExists(g term.ID) bool {
	return index.GraphExists(t.view(), g)
}

// ReadView returns a ReadTxn over this write transaction's pending
// writes merged with its pinned snapshot, for evaluating a
// DeleteInsert's WHERE clause against the effects of every update
// statement run so far in the same transaction (spec.md §4.10: a
// sequence of update operations behaves as if executed in order,
// each seeing the previous ones' effects). Closing the returned
// ReadTxn does not release the underlying snapshot; WriteTxn retains
// ownership until its own Commit or Rollback.
func (t *WriteTxn) ReadView() *ReadTxn {
	return &ReadTxn{store: t.store, snap: t.view(), borrowed: true}
}

// Commit atomically installs the transaction's writes (spec.md §4.5).
// On failure, the overlay is discarded and the caller may retry.
func (t *WriteTxn) Commit() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	defer func() {
		t.snap.Close()
		t.store.releaseWriter()
	}()
	if err := t.batch.Commit(); err != nil {
		return storage.ErrConflict
	}
	return nil
}

// Rollback discards the transaction's overlay without applying it.
func (t *WriteTxn) Rollback() {
	if t.closed {
		return
	}
	t.closed = true
	t.batch.Rollback()
	t.snap.Close()
	t.store.releaseWriter()
}
