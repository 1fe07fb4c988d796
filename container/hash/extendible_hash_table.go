// Package hash implements an in-memory extendible hash table: a
// directory of buckets, indexed by the low bits of a key's hash, that
// doubles the directory only when a bucket's local depth outgrows the
// table's global depth. The buffer pool manager uses one of these,
// keyed by page id, as its page table.
package hash

import (
	"encoding/binary"

	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/spaolacci/murmur3"

	"github.com/latchdb/latchdb/types"
)

// Hasher produces the hash an ExtendibleHashTable uses to place a key; the
// table only ever looks at its low globalDepth bits, so any function with
// good low-bit distribution works.
type Hasher[K any] func(key K) uint64

// HashPageID is the Hasher used for the buffer pool's page table, grounded
// on the corpus's container/hash/hash_util.go murmur3 usage.
func HashPageID(id types.PageID) uint64 {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(id))
	h := murmur3.New128()
	h.Write(buf)
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

type bucket[K comparable, V any] struct {
	localDepth uint
	items      map[K]V
	overflow   bool
}

func newBucket[K comparable, V any](localDepth uint) *bucket[K, V] {
	return &bucket[K, V]{localDepth: localDepth, items: make(map[K]V)}
}

// ExtendibleHashTable maps K to V with unique keys only. Shrink and
// bucket combination on delete are not implemented, matching the
// corpus's own scope (its extendible_hash.cpp: "Shrink & Combination is
// not required for this project").
type ExtendibleHashTable[K comparable, V any] struct {
	mu deadlock.Mutex

	hash       Hasher[K]
	bucketSize int

	globalDepth uint
	directory   []*bucket[K, V]
	bucketCount int
	pairCount   int
}

// New builds an extendible hash table whose buckets hold at most
// bucketSize pairs before splitting.
func New[K comparable, V any](bucketSize int, hasher Hasher[K]) *ExtendibleHashTable[K, V] {
	t := &ExtendibleHashTable[K, V]{
		hash:       hasher,
		bucketSize: bucketSize,
		directory:  make([]*bucket[K, V], 1),
	}
	t.directory[0] = newBucket[K, V](0)
	t.bucketCount = 1
	return t
}

func (t *ExtendibleHashTable[K, V]) bucketIndex(key K) uint64 {
	return t.hash(key) & ((uint64(1) << t.globalDepth) - 1)
}

// GlobalDepth returns the number of low hash bits the directory currently
// indexes on.
func (t *ExtendibleHashTable[K, V]) GlobalDepth() uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// LocalDepth returns the local depth of the bucket at directory slot
// bucketID, or -1 if nothing is there.
func (t *ExtendibleHashTable[K, V]) LocalDepth(bucketID uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(bucketID) >= len(t.directory) || t.directory[bucketID] == nil {
		return -1
	}
	return int(t.directory[bucketID].localDepth)
}

// NumBuckets returns the number of distinct buckets currently in use.
func (t *ExtendibleHashTable[K, V]) NumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bucketCount
}

// Size returns the number of key/value pairs stored.
func (t *ExtendibleHashTable[K, V]) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pairCount
}

// Find looks up key and reports whether it was present.
func (t *ExtendibleHashTable[K, V]) Find(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.directory[t.bucketIndex(key)]
	if b == nil {
		var zero V
		return zero, false
	}
	v, ok := b.items[key]
	return v, ok
}

// Remove deletes key, reporting whether it was present.
func (t *ExtendibleHashTable[K, V]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.directory[t.bucketIndex(key)]
	if b == nil {
		return false
	}
	if _, ok := b.items[key]; !ok {
		return false
	}
	delete(b.items, key)
	t.pairCount--
	return true
}

// Insert adds or overwrites the value for key, splitting and possibly
// doubling the directory if the target bucket overflows.
func (t *ExtendibleHashTable[K, V]) Insert(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(key)
	if t.directory[idx] == nil {
		t.directory[idx] = newBucket[K, V](t.globalDepth)
		t.bucketCount++
	}
	b := t.directory[idx]

	if _, exists := b.items[key]; exists {
		b.items[key] = value
		return
	}
	b.items[key] = value
	t.pairCount++

	if len(b.items) > t.bucketSize && !b.overflow {
		t.splitAndRedistribute(idx, b)
	}
}

// splitAndRedistribute implements the corpus's split()+directory-resize
// combination: grow b's local depth until its items partition into two
// non-empty halves by their next hash bit, doubling the directory if the
// new local depth exceeds the table's global depth. If every key in b
// hashes identically (more of them than bucketSize), the loop can never
// produce a non-empty sibling; once localDepth exhausts the hash's 64
// bits it gives up, marks b overflowed so later inserts stop retrying the
// split, and leaves b holding more than bucketSize items.
func (t *ExtendibleHashTable[K, V]) splitAndRedistribute(oldIndex uint64, b *bucket[K, V]) {
	oldDepth := b.localDepth
	sibling := newBucket[K, V](b.localDepth)

	for len(sibling.items) == 0 {
		if b.localDepth == 64 {
			b.localDepth = oldDepth
			b.overflow = true
			return
		}
		b.localDepth++
		sibling.localDepth++
		bit := uint64(1) << (b.localDepth - 1)
		for k, v := range b.items {
			if t.hash(k)&bit != 0 {
				sibling.items[k] = v
				delete(b.items, k)
			}
		}
		if len(b.items) == 0 {
			b.items, sibling.items = sibling.items, b.items
		}
	}
	t.bucketCount++

	if b.localDepth > t.globalDepth {
		factor := uint64(1) << (b.localDepth - t.globalDepth)
		oldSize := uint64(len(t.directory))
		t.globalDepth = b.localDepth

		grown := make([]*bucket[K, V], oldSize*factor)
		copy(grown, t.directory)
		t.directory = grown

		for i := uint64(0); i < oldSize; i++ {
			entry := t.directory[i]
			if entry == nil {
				continue
			}
			step := uint64(1) << entry.localDepth
			for j := i + step; j < uint64(len(t.directory)); j += step {
				t.directory[j] = entry
			}
		}
	}

	siblingIndex := oldIndex&((uint64(1)<<oldDepth)-1) | (uint64(1) << (b.localDepth - 1))
	step := uint64(1) << b.localDepth
	for i := oldIndex % step; i < uint64(len(t.directory)); i += step {
		t.directory[i] = b
	}
	for i := siblingIndex % step; i < uint64(len(t.directory)); i += step {
		t.directory[i] = sibling
	}
}
