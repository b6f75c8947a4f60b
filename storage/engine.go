// Package storage abstracts the ordered key-value engine the rest of
// the store is built on (spec.md §4.4, component C4): column
// families, snapshots, write batches and range iteration. Two
// implementations are provided: storage/boltkv (on-disk, wraps the
// teacher's own github.com/boltdb/bolt) and storage/memkv (in-memory,
// required by spec.md so the store works without a filesystem).
package storage

import "errors"

// ErrConflict is returned by Batch.Commit when the underlying engine
// refuses the write (spec.md §4.5 "ConflictOrCapacity").
var ErrConflict = errors.New("storage: write conflict or capacity exceeded")

// Families lists the column families every store opens at startup.
// Order is insignificant; each backend creates all of them idempotently.
var Families = []string{
	"dict",   // id -> term bytes (large terms only)
	"spog", "posg", "ospg", "gspo", "gpos", "gosp", // the six quad indexes
	"graphs", // graph id -> {} (named-graph existence set)
	"meta",   // small fixed keys: schema version, stats
}

// Engine is an ordered key-value store supporting multiple logical
// column families, snapshots and atomic write batches.
type Engine interface {
	// Snapshot pins a read-only, repeatable-read view of the engine.
	// The snapshot must be closed when no longer needed.
	Snapshot() (Snapshot, error)

	// NewBatch starts a write batch, an accumulating set of puts and
	// deletes committed or discarded as one unit.
	NewBatch() Batch

	// Path returns the on-disk location, or "" for an in-memory engine.
	Path() string

	// Close releases all resources. No Snapshot or Batch may be live.
	Close() error
}

// Snapshot is a read-only, repeatable-read view of an Engine.
type Snapshot interface {
	// Get returns the value for key in family, or nil if absent.
	Get(family string, key []byte) []byte

	// Cursor returns a positionable iterator over family, optionally
	// restricted to keys with the given prefix (nil for no restriction).
	Cursor(family string, prefix []byte) Cursor

	// Close releases the snapshot's pinned resources.
	Close()
}

// Cursor iterates over a range of keys in ascending order.
type Cursor interface {
	// Seek positions the cursor at the first key >= target (or, if
	// the cursor is restricted to a prefix, the first key in that
	// prefix >= target). It returns false if no such key exists.
	Seek(target []byte) bool

	// Next advances the cursor. It returns false when exhausted.
	Next() bool

	// Key and Value return the data at the cursor's current position.
	// Their backing arrays are only valid until the next cursor call.
	Key() []byte
	Value() []byte

	// Close releases cursor resources.
	Close()
}

// Batch accumulates puts/deletes across one or more column families
// and commits them atomically (spec.md §4.4 "write batches").
type Batch interface {
	Put(family string, key, value []byte)
	Delete(family string, key []byte)

	// Commit installs the batch atomically. On success, every
	// Snapshot acquired afterwards observes all of the batch's writes
	// or none of them.
	Commit() error

	// Rollback discards the batch without applying any of it.
	Rollback()
}

// Options configures how an Engine is opened, mirroring the knobs
// spec.md §6 lists on Store.open: cache size, open-file budget and
// bulk-load batching/durability trade-offs.
type Options struct {
	CacheBytes         uint64
	MaxOpenFiles       uint32
	BulkLoadBatchBytes uint64
	ReadOnly           bool
	// NoSync disables fsync-on-commit in boltkv. Nothing in this module
	// sets it: the bulk-load path commits each batch with the engine's
	// normal sync behaviour.
	NoSync bool
}

// DefaultOptions are the documented defaults for the environment
// knobs in spec.md §6.
func DefaultOptions() Options {
	return Options{
		CacheBytes:         64 << 20, // 64 MiB
		MaxOpenFiles:       256,
		BulkLoadBatchBytes: 32 << 20, // 32 MiB
	}
}
