// Package dict implements the term dictionary (spec.md §4.1,
// component C1): a bidirectional mapping between RDF terms and
// 128-bit ids, generalizing the teacher's addTerm/getID/getTerm
// (db.go) from a Bolt-bucket-pair to the storage.Engine abstraction,
// and from 32-bit sequential ids to 128-bit ids that are either
// inline (no storage touched) or content-addressed (one dictionary
// entry, written once).
package dict

import (
	"errors"
	"fmt"

	"github.com/boutros/quadstore/storage"
	"github.com/boutros/quadstore/term"
)

// ErrCorrupt is returned when an id is present in an index but absent
// from the dictionary (spec.md §4.1 "fails with CorruptDictionary").
var ErrCorrupt = errors.New("dict: corrupt dictionary: id not found")

var (
	errNoBatch       = errors.New("dict: term not found and no write batch supplied")
	errSaltExhausted = errors.New("dict: exhausted salt space")
)

// family is the column family large terms are stored in: id bytes[1:]
// (the hash, minus the tag byte, which the caller already knows from
// context) -> encoded term bytes.
const family = "dict"

// Dictionary resolves terms to ids and back, reading through a
// storage.Snapshot and, when writable, adding new entries through a
// storage.Batch.
type Dictionary struct {
	base term.IRI
}

// New returns a Dictionary whose inline IRI encoding is relative to base.
func New(base term.IRI) *Dictionary {
	return &Dictionary{base: base}
}

// Encode returns the id for t, allocating and writing a new
// dictionary entry via batch if t is not inlineable and has not been
// seen before. Encode is idempotent: encoding the same term twice
// (even across process restarts) yields the same id.
func (d *Dictionary) Encode(snap storage.Snapshot, batch storage.Batch, t term.Term) (term.ID, error) {
	if id, ok := term.EncodeInline(t, d.base); ok {
		return id, nil
	}

	if qt, ok := t.(term.QuotedTriple); ok {
		return d.encodeQuoted(snap, batch, qt)
	}

	tag, canonical, ok := term.LargeTag(t)
	if !ok {
		return term.ID{}, fmt.Errorf("dict: term %v cannot be encoded", t)
	}

	var salt byte
	for {
		id := term.ContentHash(tag, canonical, salt)
		existing := snap.Get(family, id[1:])
		if existing == nil {
			if batch == nil {
				return term.ID{}, fmt.Errorf("dict: term not found and no write batch supplied")
			}
			enc := encodeTermBytes(t)
			batch.Put(family, append([]byte(nil), id[1:]...), enc)
			return id, nil
		}
		if bytesEqualTerm(existing, t) {
			return id, nil
		}
		// Hash clash against a different term: bump the salt and
		// retry, per spec.md §3 "rejecting a hash clash with a fresh
		// id" — collisions are vanishingly rare at 120 bits of hash
		// but must never silently alias two distinct terms.
		salt++
		if salt == 0 {
			return term.ID{}, fmt.Errorf("dict: exhausted salt space for term %v", t)
		}
	}
}

// EncodeExisting looks up t without writing, for use on the read-only
// query path (spec.md §4.1 "encode_existing").
func (d *Dictionary) EncodeExisting(snap storage.Snapshot, t term.Term) (term.ID, bool) {
	if id, ok := term.EncodeInline(t, d.base); ok {
		return id, true
	}
	if qt, ok := t.(term.QuotedTriple); ok {
		id, err := d.encodeQuoted(snap, nil, qt)
		return id, err == nil
	}
	tag, canonical, ok := term.LargeTag(t)
	if !ok {
		return term.ID{}, false
	}
	var salt byte
	for {
		id := term.ContentHash(tag, canonical, salt)
		existing := snap.Get(family, id[1:])
		if existing == nil {
			return term.ID{}, false
		}
		if bytesEqualTerm(existing, t) {
			return id, true
		}
		salt++
		if salt == 0 {
			return term.ID{}, false
		}
	}
}

// Decode resolves id back to a Term.
func (d *Dictionary) Decode(snap storage.Snapshot, id term.ID) (term.Term, error) {
	if id.IsInline() {
		return term.DecodeInline(id, d.base), nil
	}
	if id.Tag() == 0x84 { // tagLargeQuotedTriple
		sID, pID, oID, err := d.DecodeQuotedIDs(snap, id)
		if err != nil {
			return nil, err
		}
		s, err := d.Decode(snap, sID)
		if err != nil {
			return nil, err
		}
		p, err := d.Decode(snap, pID)
		if err != nil {
			return nil, err
		}
		pIRI, _ := p.(term.IRI)
		o, err := d.Decode(snap, oID)
		if err != nil {
			return nil, err
		}
		return term.QuotedTriple{Subject: s, Predicate: pIRI, Object: o}, nil
	}
	b := snap.Get(family, id[1:])
	if b == nil {
		return nil, ErrCorrupt
	}
	decoded := decodeTermBytes(id.Tag(), b)
	if decoded == nil {
		return nil, ErrCorrupt
	}
	return decoded, nil
}
