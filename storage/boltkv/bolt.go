// Package boltkv implements storage.Engine on top of the teacher's
// own storage library, github.com/boltdb/bolt. A Bolt bucket is a
// column family; Bolt's read-only transactions are already a
// copy-on-write, repeatable-read snapshot (db.go's db.kv.View), so
// this layer is a thin adapter rather than a reimplementation.
package boltkv

import (
	"bytes"

	"github.com/boltdb/bolt"

	"github.com/boutros/quadstore/storage"
)

// Engine wraps a *bolt.DB as a storage.Engine.
type Engine struct {
	db *bolt.DB
}

// Open opens (creating if absent) a Bolt-backed engine at path,
// generalizing the teacher's Open/setup (db.go:101-154) from a fixed
// five-bucket layout to storage.Families.
func Open(path string, opts storage.Options) (*Engine, error) {
	bopts := &bolt.Options{ReadOnly: opts.ReadOnly}
	db, err := bolt.Open(path, 0666, bopts)
	if err != nil {
		return nil, err
	}
	db.NoSync = opts.NoSync

	if !opts.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			for _, f := range storage.Families {
				if _, err := tx.CreateBucketIfNotExists([]byte(f)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Path() string { return e.db.Path() }

func (e *Engine) Close() error { return e.db.Close() }

func (e *Engine) Snapshot() (storage.Snapshot, error) {
	tx, err := e.db.Begin(false)
	if err != nil {
		return nil, err
	}
	return &snapshot{tx: tx}, nil
}

func (e *Engine) NewBatch() storage.Batch {
	tx, err := e.db.Begin(true)
	if err != nil {
		return &errBatch{err: err}
	}
	return &batch{tx: tx}
}

type snapshot struct {
	tx *bolt.Tx
}

func (s *snapshot) Get(family string, key []byte) []byte {
	bkt := s.tx.Bucket([]byte(family))
	if bkt == nil {
		return nil
	}
	v := bkt.Get(key)
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (s *snapshot) Cursor(family string, prefix []byte) storage.Cursor {
	bkt := s.tx.Bucket([]byte(family))
	if bkt == nil {
		return &emptyCursor{}
	}
	return &cursor{c: bkt.Cursor(), prefix: prefix}
}

func (s *snapshot) Close() { _ = s.tx.Rollback() }

type cursor struct {
	c           *bolt.Cursor
	prefix      []byte
	key, value  []byte
	exhausted   bool
}

func (c *cursor) Seek(target []byte) bool {
	seekKey := target
	if c.prefix != nil && len(target) < len(c.prefix) {
		seekKey = c.prefix
	}
	k, v := c.c.Seek(seekKey)
	return c.set(k, v)
}

func (c *cursor) Next() bool {
	k, v := c.c.Next()
	return c.set(k, v)
}

func (c *cursor) set(k, v []byte) bool {
	if k == nil || (c.prefix != nil && !bytes.HasPrefix(k, c.prefix)) {
		c.key, c.value, c.exhausted = nil, nil, true
		return false
	}
	c.key, c.value, c.exhausted = k, v, false
	return true
}

func (c *cursor) Key() []byte   { return c.key }
func (c *cursor) Value() []byte { return c.value }
func (c *cursor) Close()        {}

type emptyCursor struct{}

func (emptyCursor) Seek([]byte) bool { return false }
func (emptyCursor) Next() bool       { return false }
func (emptyCursor) Key() []byte      { return nil }
func (emptyCursor) Value() []byte    { return nil }
func (emptyCursor) Close()           {}

type batch struct {
	tx *bolt.Tx
}

func (b *batch) Put(family string, key, value []byte) {
	bkt := b.tx.Bucket([]byte(family))
	if bkt == nil {
		return
	}
	_ = bkt.Put(key, value)
}

func (b *batch) Delete(family string, key []byte) {
	bkt := b.tx.Bucket([]byte(family))
	if bkt == nil {
		return
	}
	_ = bkt.Delete(key)
}

func (b *batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return storage.ErrConflict
	}
	return nil
}

func (b *batch) Rollback() { _ = b.tx.Rollback() }

// errBatch is returned when Begin(true) itself fails (e.g. the database
// was opened read-only; a second writer blocks rather than fails here);
// every method surfaces the same error,
// matching spec.md §4.5's "attempts to open a second [writer] block
// or fail per caller configuration".
type errBatch struct{ err error }

func (b *errBatch) Put(string, []byte, []byte) {}
func (b *errBatch) Delete(string, []byte)      {}
func (b *errBatch) Commit() error              { return b.err }
func (b *errBatch) Rollback()                  {}
