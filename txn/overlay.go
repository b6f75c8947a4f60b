package txn

import (
	"bytes"
	"sort"

	"github.com/boutros/quadstore/storage"
)

// overlayEntry records one pending write: either a staged value or a
// tombstone marking a staged delete. A dedicated bool (rather than a
// nil-value sentinel) is required since a present key's value is
// itself legitimately nil/empty for existence-only entries (index.Put,
// index.PutGraph) — nil cannot double as "absent".
type overlayEntry struct {
	value   []byte
	deleted bool
}

// overlay buffers a WriteTxn's pending writes in memory, independent
// of whatever staging the underlying storage.Batch does, so the
// transaction's own reads can merge it over the pinned base snapshot
// (spec.md §4.5/§8: "reads within the transaction see its own pending
// writes merged over the snapshot"). Keyed by family then by raw key
// bytes (as a string, since []byte is not a valid map key).
type overlay struct {
	families map[string]map[string]overlayEntry
}

func newOverlay() *overlay {
	return &overlay{families: make(map[string]map[string]overlayEntry)}
}

func (o *overlay) put(family string, key, value []byte) {
	m := o.families[family]
	if m == nil {
		m = make(map[string]overlayEntry)
		o.families[family] = m
	}
	v := make([]byte, len(value))
	copy(v, value)
	m[string(key)] = overlayEntry{value: v}
}

func (o *overlay) del(family string, key []byte) {
	m := o.families[family]
	if m == nil {
		m = make(map[string]overlayEntry)
		o.families[family] = m
	}
	m[string(key)] = overlayEntry{deleted: true}
}

// overlayBatch wraps a storage.Batch, mirroring every Put/Delete into
// ov in addition to staging it in the real batch, so the batch keeps
// its normal Commit/Rollback behavior while the overlay gives the
// owning transaction a queryable view of its own pending writes.
type overlayBatch struct {
	storage.Batch
	ov *overlay
}

func (b *overlayBatch) Put(family string, key, value []byte) {
	b.ov.put(family, key, value)
	b.Batch.Put(family, key, value)
}

func (b *overlayBatch) Delete(family string, key []byte) {
	b.ov.del(family, key)
	b.Batch.Delete(family, key)
}

// overlaySnapshot presents ov merged over base as a single
// storage.Snapshot: a pending write shadows the base value for its
// key, and a pending delete hides it, without mutating base itself.
// It does not own base and Close is a no-op; the owning WriteTxn
// closes its pinned snapshot exactly once, on its own Commit/Rollback.
type overlaySnapshot struct {
	base storage.Snapshot
	ov   *overlay
}

func (s *overlaySnapshot) Get(family string, key []byte) []byte {
	if m := s.ov.families[family]; m != nil {
		if e, ok := m[string(key)]; ok {
			if e.deleted {
				return nil
			}
			return e.value
		}
	}
	return s.base.Get(family, key)
}

func (s *overlaySnapshot) Cursor(family string, prefix []byte) storage.Cursor {
	merged := map[string][]byte{}
	base := s.base.Cursor(family, prefix)
	for ok := base.Seek(prefix); ok; ok = base.Next() {
		k := append([]byte(nil), base.Key()...)
		v := append([]byte(nil), base.Value()...)
		merged[string(k)] = v
	}
	base.Close()

	for k, e := range s.ov.families[family] {
		if prefix != nil && !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if e.deleted {
			delete(merged, k)
		} else {
			merged[k] = e.value
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]overlayCursorItem, len(keys))
	for i, k := range keys {
		items[i] = overlayCursorItem{key: []byte(k), value: merged[k]}
	}
	return &overlayCursor{items: items, pos: -1}
}

func (s *overlaySnapshot) Close() {}

type overlayCursorItem struct {
	key, value []byte
}

// overlayCursor walks a pre-merged, sorted snapshot of one family's
// keys restricted to a prefix; cheap to materialize eagerly since a
// single transaction's pending write set is small relative to a
// query's own buffering costs (the same trade-off memkv's own cursor
// makes over its copy-on-write BTree clone).
type overlayCursor struct {
	items []overlayCursorItem
	pos   int
}

func (c *overlayCursor) Seek(target []byte) bool {
	c.pos = sort.Search(len(c.items), func(i int) bool {
		return bytes.Compare(c.items[i].key, target) >= 0
	})
	return c.pos < len(c.items)
}

func (c *overlayCursor) Next() bool {
	c.pos++
	return c.pos < len(c.items)
}

func (c *overlayCursor) Key() []byte {
	if c.pos < 0 || c.pos >= len(c.items) {
		return nil
	}
	return c.items[c.pos].key
}

func (c *overlayCursor) Value() []byte {
	if c.pos < 0 || c.pos >= len(c.items) {
		return nil
	}
	return c.items[c.pos].value
}

func (c *overlayCursor) Close() {}
