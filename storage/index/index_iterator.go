package index

import (
	"github.com/latchdb/latchdb/buffer"
	"github.com/latchdb/latchdb/types"
)

// IndexIterator walks the leaf chain in ascending key order, holding a
// read latch and pin on exactly the leaf it is currently positioned in.
// Callers that stop before End() must call Close to release that latch.
type IndexIterator[K any] struct {
	bpm    *buffer.BufferPoolManager
	codec  KeyCodec[K]
	leafID types.PageID
	idx    int
	leaf   *LeafPage[K]
}

// Iterator returns an iterator positioned at the first key in the index.
func (t *BPlusTreeIndex[K]) Iterator() *IndexIterator[K] {
	rootID := t.getRootPageID()
	if !rootID.IsValid() {
		return &IndexIterator[K]{bpm: t.bpm, codec: t.codec, leafID: types.InvalidPageID}
	}

	pid := rootID
	cur, err := t.bpm.FetchPage(pid)
	if err != nil {
		return &IndexIterator[K]{bpm: t.bpm, codec: t.codec, leafID: types.InvalidPageID}
	}
	t.bpm.RLatchPage(pid)
	for !IsLeafPage(cur) {
		in := AsInternalPage[K](cur, t.codec)
		childID := in.ValueAt(0)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			t.bpm.RUnlatchPage(pid)
			t.bpm.UnpinPage(pid, false)
			return &IndexIterator[K]{bpm: t.bpm, codec: t.codec, leafID: types.InvalidPageID}
		}
		t.bpm.RLatchPage(childID)
		t.bpm.RUnlatchPage(pid)
		t.bpm.UnpinPage(pid, false)
		pid, cur = childID, child
	}
	return &IndexIterator[K]{bpm: t.bpm, codec: t.codec, leafID: pid, leaf: AsLeafPage[K](cur, t.codec)}
}

// IteratorFrom returns an iterator positioned at the first key >= key.
func (t *BPlusTreeIndex[K]) IteratorFrom(key K) *IndexIterator[K] {
	rootID := t.getRootPageID()
	if !rootID.IsValid() {
		return &IndexIterator[K]{bpm: t.bpm, codec: t.codec, leafID: types.InvalidPageID}
	}

	pid := rootID
	cur, err := t.bpm.FetchPage(pid)
	if err != nil {
		return &IndexIterator[K]{bpm: t.bpm, codec: t.codec, leafID: types.InvalidPageID}
	}
	t.bpm.RLatchPage(pid)
	for !IsLeafPage(cur) {
		in := AsInternalPage[K](cur, t.codec)
		childID := in.Lookup(key, t.cmp)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			t.bpm.RUnlatchPage(pid)
			t.bpm.UnpinPage(pid, false)
			return &IndexIterator[K]{bpm: t.bpm, codec: t.codec, leafID: types.InvalidPageID}
		}
		t.bpm.RLatchPage(childID)
		t.bpm.RUnlatchPage(pid)
		t.bpm.UnpinPage(pid, false)
		pid, cur = childID, child
	}

	leaf := AsLeafPage[K](cur, t.codec)
	idx := 0
	for idx < leaf.GetSize() && t.cmp(leaf.KeyAt(idx), key) < 0 {
		idx++
	}
	it := &IndexIterator[K]{bpm: t.bpm, codec: t.codec, leafID: pid, idx: idx, leaf: leaf}
	if idx >= leaf.GetSize() {
		// Every key in this leaf is below key: the first key >= key, if
		// any, is at the start of the next leaf.
		it.idx = leaf.GetSize() - 1
		it.Next()
	}
	return it
}

// End reports whether the iterator has exhausted the leaf chain.
func (it *IndexIterator[K]) End() bool {
	return !it.leafID.IsValid() || it.leaf == nil || it.idx >= it.leaf.GetSize()
}

func (it *IndexIterator[K]) Key() K            { return it.leaf.KeyAt(it.idx) }
func (it *IndexIterator[K]) Value() types.RID  { return it.leaf.ValueAt(it.idx) }

// Next advances to the next key, crossing into the following leaf (and
// releasing the one just exhausted) when needed.
func (it *IndexIterator[K]) Next() {
	if it.leaf == nil {
		return
	}
	it.idx++
	if it.idx < it.leaf.GetSize() {
		return
	}

	nextID := it.leaf.GetNextPageID()
	it.bpm.RUnlatchPage(it.leafID)
	it.bpm.UnpinPage(it.leafID, false)
	it.leafID, it.leaf = types.InvalidPageID, nil
	if !nextID.IsValid() {
		return
	}

	p, err := it.bpm.FetchPage(nextID)
	if err != nil {
		return
	}
	it.bpm.RLatchPage(nextID)
	it.leafID, it.idx, it.leaf = nextID, 0, AsLeafPage[K](p, it.codec)
}

// Close releases the current leaf's latch and pin; safe to call more
// than once, and safe to call on an already-exhausted iterator.
func (it *IndexIterator[K]) Close() {
	if it.leaf == nil {
		return
	}
	it.bpm.RUnlatchPage(it.leafID)
	it.bpm.UnpinPage(it.leafID, false)
	it.leafID, it.leaf = types.InvalidPageID, nil
}
