package index

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/buffer"
	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

func newTestIndex(t *testing.T, leafMax, internalMax int) *BPlusTreeIndex[int64] {
	dm := disk.NewMemoryDiskManager()
	t.Cleanup(dm.ShutDown)
	bpm := buffer.NewBufferPoolManager(64, dm, nil)
	// Reserve page 0 as the header page, as engine.Open does, so the
	// tree's own pages start at page 1.
	hp, err := bpm.NewPage()
	assert.NoError(t, err)
	page.AsHeaderPage(hp).Init()
	assert.NoError(t, bpm.UnpinPage(hp.GetPageID(), true))
	return NewBPlusTreeIndex[int64](bpm, "test_index", CompareInt64, Int64Codec{}, leafMax, internalMax)
}

func ridForKey(k int64) types.RID {
	return types.NewRID(types.PageID(k>>32), uint32(k&0xFFFFFFFF))
}

func TestBPlusTreeInsertAndFind99KeysWithSmallBucket(t *testing.T) {
	idx := newTestIndex(t, 2, 3)

	for k := int64(1); k <= 99; k++ {
		ok, err := idx.Insert(k, ridForKey(k))
		assert.NoError(t, err)
		assert.True(t, ok)
	}

	for k := int64(1); k <= 99; k++ {
		rid, ok := idx.GetValue(k)
		assert.True(t, ok, "key %d", k)
		assert.Equal(t, ridForKey(k), rid)
	}

	count := 0
	var lastKey int64 = -1
	for it := idx.Iterator(); !it.End(); it.Next() {
		k := it.Key()
		assert.Greater(t, k, lastKey)
		assert.Equal(t, ridForKey(k), it.Value())
		lastKey = k
		count++
	}
	assert.Equal(t, 99, count)
}

func TestBPlusTreeRejectsDuplicateKey(t *testing.T) {
	idx := newTestIndex(t, 4, 4)

	ok, err := idx.Insert(int64(10), ridForKey(10))
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = idx.Insert(int64(10), ridForKey(999))
	assert.NoError(t, err)
	assert.False(t, ok)

	rid, found := idx.GetValue(int64(10))
	assert.True(t, found)
	assert.Equal(t, ridForKey(10), rid)
}

func TestBPlusTreeRemoveThenMissing(t *testing.T) {
	idx := newTestIndex(t, 2, 3)

	for k := int64(1); k <= 20; k++ {
		_, err := idx.Insert(k, ridForKey(k))
		assert.NoError(t, err)
	}

	assert.True(t, idx.Remove(int64(5)))
	assert.False(t, idx.Remove(int64(5)))

	_, found := idx.GetValue(int64(5))
	assert.False(t, found)

	for k := int64(1); k <= 20; k++ {
		if k == 5 {
			continue
		}
		_, found := idx.GetValue(k)
		assert.True(t, found, "key %d", k)
	}
}

func TestBPlusTreeRemoveAllEmptiesTree(t *testing.T) {
	idx := newTestIndex(t, 2, 3)

	for k := int64(1); k <= 30; k++ {
		_, err := idx.Insert(k, ridForKey(k))
		assert.NoError(t, err)
	}
	for k := int64(1); k <= 30; k++ {
		assert.True(t, idx.Remove(k))
	}

	assert.True(t, idx.IsEmpty())
	for it := idx.Iterator(); !it.End(); it.Next() {
		t.Fatal("expected no keys left")
	}
}
