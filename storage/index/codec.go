// Package index implements the concurrent B+-tree index: fixed-width
// generic keys over internal/leaf page layouts, latch-crabbed descent,
// and the forward iterator over the leaf chain.
package index

// Comparator orders two keys: negative if a < b, zero if equal, positive
// if a > b. The tree never looks inside K beyond this function and the
// codec below, so any fixed-width key type works.
type Comparator[K any] func(a, b K) int

// KeyCodec fixes K's on-page width and its encode/decode to that width.
// The tree is a classic fixed-slot-width structure: every key on a given
// page occupies exactly Size() bytes, so Size() must be constant for the
// lifetime of an index.
type KeyCodec[K any] interface {
	Size() int
	Encode(k K, buf []byte)
	Decode(buf []byte) K
}

// Int64Codec is the KeyCodec for plain int64 keys, the common case for a
// synthetic or integer-column index.
type Int64Codec struct{}

func (Int64Codec) Size() int { return 8 }

func (Int64Codec) Encode(k int64, buf []byte) {
	u := uint64(k)
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
}

func (Int64Codec) Decode(buf []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(buf[i]) << (8 * i)
	}
	return int64(u)
}

// CompareInt64 is the Comparator for Int64Codec keys.
func CompareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
