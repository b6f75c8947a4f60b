package term

import (
	"encoding/binary"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ID is the 128-bit encoded identifier assigned to every RDF term
// (spec.md §3 "Encoded identifier"). It is big-endian so that the
// raw bytes of an ID sort the same way as the term's storage-key
// ordering, widening the teacher's 32-bit u32tob/btou32 idiom
// (db.go) to 128 bits.
type ID [16]byte

// Tag bytes occupy the high byte of the id. 0x00-0x3F are reserved
// for inline encodings (the value *is* the id, no dictionary entry
// needed); 0x80+ mark content-addressed ("large") terms, whose bytes
// 1-15 are a truncated cryptographic hash and whose full term bytes
// live in the dictionary's large-term column family.
const (
	tagInlineIRI        byte = 0x01 // default-graph sentinel reuses 0x00
	tagInlineShortIRI    byte = 0x02 // short absolute IRI, not base-relative
	tagInlineBaseIRI     byte = 0x03 // IRI relative to the store's base
	tagInlineBlankNode   byte = 0x04
	tagInlineString      byte = 0x05 // short xsd:string, <=14 bytes
	tagInlineBoolean     byte = 0x06
	tagInlineInt         byte = 0x07
	tagInlineLong        byte = 0x08
	tagInlineDateTime    byte = 0x09

	tagLargeIRI          byte = 0x80
	tagLargeBlankNode     byte = 0x81
	tagLargeLiteral       byte = 0x82
	tagLargeLangLiteral   byte = 0x83
	tagLargeQuotedTriple  byte = 0x84

	// DefaultGraph is the reserved id denoting the unnamed default
	// graph, distinct from any possible term id (all-zero is never
	// produced by encode, since inline tags start at 0x01).
	inlineMaxLen = 14
)

// DefaultGraph is the sentinel graph id for the unnamed default graph.
var DefaultGraph = ID{}

// IsInline reports whether id never required a dictionary lookup.
func (id ID) IsInline() bool {
	return id[0] < 0x80
}

// Tag returns the id's type tag (the high byte).
func (id ID) Tag() byte { return id[0] }

// Bytes returns the 16-byte big-endian encoding.
func (id ID) Bytes() []byte { return id[:] }

// FromBytes reconstructs an ID from a 16-byte slice.
func FromBytes(b []byte) (id ID) {
	copy(id[:], b)
	return id
}

// Less reports whether id sorts before other in the big-endian byte
// order used by every index key (spec.md §4.2).
func (id ID) Less(other ID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// contentHash computes the 128-bit content-address id for a large
// term: the tag byte followed by a 15-byte blake2b hash of the salt
// and canonical bytes, salted on collision (see dict.Dictionary.Encode).
func contentHash(tag byte, canonical []byte, salt byte) ID {
	h, _ := blake2b.New(15, nil) // 15 bytes of hash + 1 tag byte = 16
	h.Write([]byte{salt})
	h.Write(canonical)
	sum := h.Sum(nil)
	var id ID
	id[0] = tag
	copy(id[1:], sum)
	return id
}

// EncodeInline attempts to encode t without a dictionary entry. It
// returns ok=false when t must be content-addressed instead.
func EncodeInline(t Term, base IRI) (id ID, ok bool) {
	switch v := t.(type) {
	case IRI:
		s := string(v)
		if string(base) != "" && len(s) > len(base) && s[:len(base)] == string(base) {
			rest := s[len(base):]
			if len(rest) <= inlineMaxLen {
				id[0] = tagInlineBaseIRI
				copy(id[1:], rest)
				return id, true
			}
			return id, false
		}
		if len(s) <= inlineMaxLen {
			id[0] = tagInlineShortIRI
			copy(id[1:], s)
			return id, true
		}
		return id, false
	case BlankNode:
		s := string(v)
		if len(s) <= inlineMaxLen {
			id[0] = tagInlineBlankNode
			copy(id[1:], s)
			return id, true
		}
		return id, false
	case Literal:
		return encodeInlineLiteral(v)
	case QuotedTriple:
		return id, false
	}
	return id, false
}

func encodeInlineLiteral(l Literal) (id ID, ok bool) {
	switch l.datatype {
	case XSDstring:
		if len(l.lexical) <= inlineMaxLen {
			id[0] = tagInlineString
			copy(id[1:], l.lexical)
			return id, true
		}
	case XSDboolean:
		b, err := strconv.ParseBool(l.lexical)
		if err != nil {
			return id, false
		}
		id[0] = tagInlineBoolean
		if b {
			id[1] = 1
		}
		return id, true
	case XSDint, XSDshort, XSDbyte, XSDunsignedShort, XSDunsignedByte:
		n, err := strconv.ParseInt(l.lexical, 10, 32)
		if err != nil {
			return id, false
		}
		id[0] = tagInlineInt
		binary.BigEndian.PutUint32(id[1:5], uint32(int32(n)))
		id[5] = dtCode(l.datatype)
		return id, true
	case XSDlong, XSDinteger, XSDunsignedInt, XSDunsignedLong:
		n, err := strconv.ParseInt(l.lexical, 10, 64)
		if err != nil {
			return id, false
		}
		id[0] = tagInlineLong
		binary.BigEndian.PutUint64(id[1:9], uint64(n))
		id[9] = dtCode(l.datatype)
		return id, true
	case XSDdateTime, XSDdateTimeStamp, XSDdate:
		t, err := time.Parse(time.RFC3339Nano, l.lexical)
		if err != nil {
			return id, false
		}
		id[0] = tagInlineDateTime
		binary.BigEndian.PutUint64(id[1:9], uint64(t.UnixNano()))
		id[9] = dtCode(l.datatype)
		return id, true
	}
	return id, false
}

// dtCode packs a small set of numeric/date xsd datatypes into one
// byte so inline ints/longs/dates round-trip their exact datatype.
func dtCode(dt IRI) byte {
	switch dt {
	case XSDint:
		return 1
	case XSDshort:
		return 2
	case XSDbyte:
		return 3
	case XSDunsignedShort:
		return 4
	case XSDunsignedByte:
		return 5
	case XSDlong:
		return 6
	case XSDinteger:
		return 7
	case XSDunsignedInt:
		return 8
	case XSDunsignedLong:
		return 9
	case XSDdateTime:
		return 10
	case XSDdateTimeStamp:
		return 11
	case XSDdate:
		return 12
	}
	return 0
}

func codeDt(c byte) IRI {
	switch c {
	case 1:
		return XSDint
	case 2:
		return XSDshort
	case 3:
		return XSDbyte
	case 4:
		return XSDunsignedShort
	case 5:
		return XSDunsignedByte
	case 6:
		return XSDlong
	case 7:
		return XSDinteger
	case 8:
		return XSDunsignedInt
	case 9:
		return XSDunsignedLong
	case 10:
		return XSDdateTime
	case 11:
		return XSDdateTimeStamp
	case 12:
		return XSDdate
	}
	return XSDstring
}

// DecodeInline reverses EncodeInline. It panics if id is not an
// inline id; callers must check id.IsInline() first.
func DecodeInline(id ID, base IRI) Term {
	switch id[0] {
	case tagInlineBaseIRI:
		return IRI(string(base) + cstring(id[1:]))
	case tagInlineShortIRI:
		return IRI(cstring(id[1:]))
	case tagInlineBlankNode:
		return BlankNode(cstring(id[1:]))
	case tagInlineString:
		return NewStringLiteral(cstring(id[1:]))
	case tagInlineBoolean:
		return NewTypedLiteral(strconv.FormatBool(id[1] != 0), XSDboolean)
	case tagInlineInt:
		n := int32(binary.BigEndian.Uint32(id[1:5]))
		return NewTypedLiteral(strconv.FormatInt(int64(n), 10), codeDt(id[5]))
	case tagInlineLong:
		n := int64(binary.BigEndian.Uint64(id[1:9]))
		return NewTypedLiteral(strconv.FormatInt(n, 10), codeDt(id[9]))
	case tagInlineDateTime:
		n := int64(binary.BigEndian.Uint64(id[1:9]))
		t := time.Unix(0, n).UTC()
		return NewTypedLiteral(t.Format(time.RFC3339Nano), codeDt(id[9]))
	}
	panic("term: DecodeInline called on non-inline id")
}

// cstring trims trailing NUL padding from a fixed-size inline buffer.
func cstring(b []byte) string {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return string(b[:i])
}

// LargeTag reports whether t must be content-addressed, and the tag
// byte and canonical bytes to hash if so.
func LargeTag(t Term) (tag byte, canonical []byte, ok bool) {
	switch v := t.(type) {
	case IRI:
		return tagLargeIRI, []byte(v), true
	case BlankNode:
		return tagLargeBlankNode, []byte(v), true
	case Literal:
		if v.language != "" {
			return tagLargeLangLiteral, []byte(v.language + "\x00" + v.lexical), true
		}
		return tagLargeLiteral, []byte(string(v.datatype) + "\x00" + v.lexical), true
	case QuotedTriple:
		return tagLargeQuotedTriple, nil, true
	}
	return 0, nil, false
}

// ContentHash is exported for dict.Dictionary, which owns collision
// handling (bumping the salt) and therefore needs to recompute the
// hash for a candidate salt.
func ContentHash(tag byte, canonical []byte, salt byte) ID {
	return contentHash(tag, canonical, salt)
}
