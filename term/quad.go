package term

// Quad is a (subject, predicate, object, graph) tuple encoded as four
// term ids (spec.md §3). Graph is DefaultGraph for the unnamed graph.
type Quad struct {
	Subject   ID
	Predicate ID
	Object    ID
	Graph     ID
}

// IndexOrder names one of the six key orderings spec.md §3 requires.
type IndexOrder int

const (
	OrderSPOG IndexOrder = iota
	OrderPOSG
	OrderOSPG
	OrderGSPO
	OrderGPOS
	OrderGOSP
	numOrders
)

func (o IndexOrder) String() string {
	return [...]string{"SPOG", "POSG", "OSPG", "GSPO", "GPOS", "GOSP"}[o]
}

// Key returns the 64-byte (4*16) big-endian concatenation of q's ids
// in the given order. Sorting these byte slices lexicographically
// reproduces the corresponding permutation's ordering with no extra
// bookkeeping, exactly as spec.md §4.2 requires.
func (q Quad) Key(order IndexOrder) []byte {
	var a, b, c, d ID
	switch order {
	case OrderSPOG:
		a, b, c, d = q.Subject, q.Predicate, q.Object, q.Graph
	case OrderPOSG:
		a, b, c, d = q.Predicate, q.Object, q.Subject, q.Graph
	case OrderOSPG:
		a, b, c, d = q.Object, q.Subject, q.Predicate, q.Graph
	case OrderGSPO:
		a, b, c, d = q.Graph, q.Subject, q.Predicate, q.Object
	case OrderGPOS:
		a, b, c, d = q.Graph, q.Predicate, q.Object, q.Subject
	case OrderGOSP:
		a, b, c, d = q.Graph, q.Object, q.Subject, q.Predicate
	}
	key := make([]byte, 64)
	copy(key[0:16], a[:])
	copy(key[16:32], b[:])
	copy(key[32:48], c[:])
	copy(key[48:64], d[:])
	return key
}

// QuadFromKey decodes a 64-byte index key back into a Quad, given the
// order it was encoded with.
func QuadFromKey(order IndexOrder, key []byte) Quad {
	if len(key) != 64 {
		panic("term: QuadFromKey: key is not 64 bytes")
	}
	a := FromBytes(key[0:16])
	b := FromBytes(key[16:32])
	c := FromBytes(key[32:48])
	d := FromBytes(key[48:64])
	var q Quad
	switch order {
	case OrderSPOG:
		q.Subject, q.Predicate, q.Object, q.Graph = a, b, c, d
	case OrderPOSG:
		q.Predicate, q.Object, q.Subject, q.Graph = a, b, c, d
	case OrderOSPG:
		q.Object, q.Subject, q.Predicate, q.Graph = a, b, c, d
	case OrderGSPO:
		q.Graph, q.Subject, q.Predicate, q.Object = a, b, c, d
	case OrderGPOS:
		q.Graph, q.Predicate, q.Object, q.Subject = a, b, c, d
	case OrderGOSP:
		q.Graph, q.Object, q.Subject, q.Predicate = a, b, c, d
	}
	return q
}
