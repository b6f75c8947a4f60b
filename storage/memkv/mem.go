// Package memkv implements storage.Engine entirely in memory, the
// second backend spec.md §4.4 mandates for environments without a
// filesystem. It is built on github.com/google/btree, whose
// copy-on-write BTree.Clone is an O(1), persistent snapshot
// primitive — exactly the shape spec.md's "snapshots, batches,
// iteration ordering" contract needs, without reimplementing an
// ordered map from scratch.
package memkv

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/boutros/quadstore/storage"
)

const degree = 32

type kvItem struct {
	key, value []byte
}

func (a kvItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(kvItem).key) < 0
}

// Engine is an in-memory storage.Engine: one copy-on-write BTree per
// column family. dataMu guards the families map reference itself
// (briefly, for clone-on-read / swap-on-commit); writerMu is held for
// the full lifetime of one write batch and is what enforces the
// single-writer invariant (spec.md §4.5) without blocking readers,
// since readers only ever take dataMu.RLock for the instant it takes
// to clone (an O(1) copy-on-write operation).
type Engine struct {
	dataMu   sync.RWMutex
	families map[string]*btree.BTree

	writerMu sync.Mutex
}

// New returns an empty in-memory engine with all storage.Families
// pre-created, matching boltkv.Open's bucket setup.
func New() *Engine {
	e := &Engine{families: make(map[string]*btree.BTree)}
	for _, f := range storage.Families {
		e.families[f] = btree.New(degree)
	}
	return e
}

func (e *Engine) Path() string { return "" }

func (e *Engine) Close() error { return nil }

func (e *Engine) Snapshot() (storage.Snapshot, error) {
	e.dataMu.RLock()
	defer e.dataMu.RUnlock()
	clones := make(map[string]*btree.BTree, len(e.families))
	for name, t := range e.families {
		clones[name] = t.Clone()
	}
	return &snapshot{families: clones}, nil
}

func (e *Engine) NewBatch() storage.Batch {
	e.writerMu.Lock()
	// Pin a clone to stage writes against; readers already holding
	// earlier snapshots are unaffected since BTree.Clone is
	// copy-on-write and e.families is only swapped, never mutated,
	// at Commit.
	e.dataMu.RLock()
	base := make(map[string]*btree.BTree, len(e.families))
	for name, t := range e.families {
		base[name] = t.Clone()
	}
	e.dataMu.RUnlock()
	return &batch{engine: e, staged: base}
}

type snapshot struct {
	families map[string]*btree.BTree
}

func (s *snapshot) Get(family string, key []byte) []byte {
	t := s.families[family]
	if t == nil {
		return nil
	}
	item := t.Get(kvItem{key: key})
	if item == nil {
		return nil
	}
	return item.(kvItem).value
}

func (s *snapshot) Cursor(family string, prefix []byte) storage.Cursor {
	t := s.families[family]
	if t == nil {
		return emptyCursor{}
	}
	return &cursor{tree: t, prefix: prefix}
}

func (s *snapshot) Close() {}

// cursor walks a snapshot-pinned BTree. Because the tree is an
// immutable copy-on-write clone for the lifetime of the cursor, it is
// safe (and simplest) to materialize the matching range once at Seek
// time rather than re-descend the tree on every Next.
type cursor struct {
	tree    *btree.BTree
	prefix  []byte
	items   []kvItem
	pos     int
}

func (c *cursor) Seek(target []byte) bool {
	seek := target
	if c.prefix != nil && bytes.Compare(target, c.prefix) < 0 {
		seek = c.prefix
	}
	c.items = c.items[:0]
	c.tree.AscendGreaterOrEqual(kvItem{key: seek}, func(i btree.Item) bool {
		it := i.(kvItem)
		if c.prefix != nil && !bytes.HasPrefix(it.key, c.prefix) {
			return false
		}
		c.items = append(c.items, it)
		return true
	})
	c.pos = 0
	return len(c.items) > 0
}

func (c *cursor) Next() bool {
	c.pos++
	return c.pos < len(c.items)
}

func (c *cursor) Key() []byte {
	if c.pos >= len(c.items) {
		return nil
	}
	return c.items[c.pos].key
}

func (c *cursor) Value() []byte {
	if c.pos >= len(c.items) {
		return nil
	}
	return c.items[c.pos].value
}

func (c *cursor) Close() {}

type emptyCursor struct{}

func (emptyCursor) Seek([]byte) bool { return false }
func (emptyCursor) Next() bool       { return false }
func (emptyCursor) Key() []byte      { return nil }
func (emptyCursor) Value() []byte    { return nil }
func (emptyCursor) Close()           {}

// batch stages puts/deletes against cloned per-family trees and, on
// Commit, swaps them into the engine atomically under its mutex.
type batch struct {
	engine  *Engine
	staged  map[string]*btree.BTree
	done    bool
}

func (b *batch) Put(family string, key, value []byte) {
	t := b.staged[family]
	if t == nil {
		return
	}
	k := append([]byte(nil), key...)
	// make, not append(nil, ...): a present key must read back a
	// non-nil value even when value is nil or empty (index.Put/PutGraph
	// record existence this way), so Get can tell "present with no
	// payload" apart from "absent". append(nil, nilSlice...) stays nil;
	// make(..., 0) never does.
	v := make([]byte, len(value))
	copy(v, value)
	t.ReplaceOrInsert(kvItem{key: k, value: v})
}

func (b *batch) Delete(family string, key []byte) {
	t := b.staged[family]
	if t == nil {
		return
	}
	t.Delete(kvItem{key: key})
}

func (b *batch) Commit() error {
	if b.done {
		return storage.ErrConflict
	}
	b.done = true
	b.engine.dataMu.Lock()
	b.engine.families = b.staged
	b.engine.dataMu.Unlock()
	b.engine.writerMu.Unlock()
	return nil
}

func (b *batch) Rollback() {
	if b.done {
		return
	}
	b.done = true
	b.engine.writerMu.Unlock()
}
