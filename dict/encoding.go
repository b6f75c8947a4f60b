package dict

import (
	"encoding/binary"

	"github.com/boutros/quadstore/storage"
	"github.com/boutros/quadstore/term"
)

// Wire layout for large (content-addressed) dictionary entries,
// generalizing db.go's single-byte-prefix encode/decode switch
// (db.go:812-947) from a fixed tag set to term.LargeTag's four kinds.
//
//	IRI:          bytes of the IRI
//	BlankNode:    bytes of the label
//	Literal:      u16(len(datatype)) | datatype bytes | lexical bytes
//	LangLiteral:  u8(len(lang)) | lang bytes | lexical bytes
//	QuotedTriple: 16 bytes subject id | 16 bytes predicate id | 16 bytes object id

func encodeTermBytes(t term.Term) []byte {
	switch v := t.(type) {
	case term.IRI:
		return []byte(v)
	case term.BlankNode:
		return []byte(v)
	case term.Literal:
		if v.Lang() != "" {
			lang := v.Lang()
			b := make([]byte, 1+len(lang)+len(v.String()))
			b[0] = byte(len(lang))
			copy(b[1:], lang)
			copy(b[1+len(lang):], v.String())
			return b
		}
		dt := string(v.DataType())
		b := make([]byte, 2+len(dt)+len(v.String()))
		binary.BigEndian.PutUint16(b[0:2], uint16(len(dt)))
		copy(b[2:], dt)
		copy(b[2+len(dt):], v.String())
		return b
	}
	return nil
}

func decodeTermBytes(tag byte, b []byte) term.Term {
	switch tag {
	case 0x80: // tagLargeIRI
		return term.IRI(string(b))
	case 0x81: // tagLargeBlankNode
		return term.BlankNode(string(b))
	case 0x82: // tagLargeLiteral
		l := binary.BigEndian.Uint16(b[0:2])
		dt := string(b[2 : 2+l])
		lex := string(b[2+l:])
		return term.NewTypedLiteral(lex, term.IRI(dt))
	case 0x83: // tagLargeLangLiteral
		l := int(b[0])
		lang := string(b[1 : 1+l])
		lex := string(b[1+l:])
		return term.NewLangLiteral(lex, lang)
	}
	return nil
}

func bytesEqualTerm(stored []byte, t term.Term) bool {
	tag, _, ok := term.LargeTag(t)
	if !ok {
		return false
	}
	decoded := decodeTermBytes(tag, stored)
	return decoded != nil && term.Equal(decoded, t)
}

// encodeQuoted recursively encodes the three components of a quoted
// triple, then content-addresses the triple of ids, so nested quoted
// triples never need special-casing deeper than one level of recursion.
func (d *Dictionary) encodeQuoted(snap storage.Snapshot, batch storage.Batch, qt term.QuotedTriple) (term.ID, error) {
	sID, err := d.Encode(snap, batch, qt.Subject)
	if err != nil {
		return term.ID{}, err
	}
	pID, err := d.Encode(snap, batch, qt.Predicate)
	if err != nil {
		return term.ID{}, err
	}
	oID, err := d.Encode(snap, batch, qt.Object)
	if err != nil {
		return term.ID{}, err
	}
	canonical := make([]byte, 48)
	copy(canonical[0:16], sID[:])
	copy(canonical[16:32], pID[:])
	copy(canonical[32:48], oID[:])

	const tagLargeQuotedTriple = 0x84
	var salt byte
	for {
		id := term.ContentHash(tagLargeQuotedTriple, canonical, salt)
		existing := snap.Get(family, id[1:])
		if existing == nil {
			if batch == nil {
				return term.ID{}, errNoBatch
			}
			batch.Put(family, append([]byte(nil), id[1:]...), canonical)
			return id, nil
		}
		if string(existing) == string(canonical) {
			return id, nil
		}
		salt++
		if salt == 0 {
			return term.ID{}, errSaltExhausted
		}
	}
}

// DecodeQuotedIDs resolves the nested ids of a quoted-triple dictionary
// entry. Callers that need the full term.QuotedTriple (rather than
// just its component ids) further Decode each of the three ids.
func (d *Dictionary) DecodeQuotedIDs(snap storage.Snapshot, id term.ID) (s, p, o term.ID, err error) {
	b := snap.Get(family, id[1:])
	if b == nil || len(b) != 48 {
		return s, p, o, ErrCorrupt
	}
	s = term.FromBytes(b[0:16])
	p = term.FromBytes(b[16:32])
	o = term.FromBytes(b[32:48])
	return s, p, o, nil
}
