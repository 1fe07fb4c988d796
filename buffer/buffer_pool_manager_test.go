package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/storage"
	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/storage/page"
)

func newTestPool(t *testing.T, poolSize int) *BufferPoolManager {
	dm := disk.NewMemoryDiskManager()
	t.Cleanup(dm.ShutDown)
	return NewBufferPoolManager(poolSize, dm, nil)
}

func TestBufferPoolManagerNewPageThenFetchRoundTrips(t *testing.T) {
	bpm := newTestPool(t, 4)

	p, err := bpm.NewPage()
	assert.NoError(t, err)
	p.Copy(page.SizeOfHeader, []byte("hello"))
	id := p.GetPageID()
	assert.NoError(t, bpm.UnpinPage(id, true))
	assert.NoError(t, bpm.FlushPage(id))

	fetched, err := bpm.FetchPage(id)
	assert.NoError(t, err)
	assert.Equal(t, byte('h'), fetched.Data()[page.SizeOfHeader])
	assert.NoError(t, bpm.UnpinPage(id, false))
}

func TestBufferPoolManagerEvictsLRUWhenFull(t *testing.T) {
	bpm := newTestPool(t, 2)

	p1, _ := bpm.NewPage()
	p2, _ := bpm.NewPage()
	id1, id2 := p1.GetPageID(), p2.GetPageID()
	assert.NoError(t, bpm.UnpinPage(id1, false))
	assert.NoError(t, bpm.UnpinPage(id2, false))

	p3, err := bpm.NewPage()
	assert.NoError(t, err)
	id3 := p3.GetPageID()
	assert.NoError(t, bpm.UnpinPage(id3, false))

	stats := bpm.Stats()
	assert.Equal(t, 2, stats.PoolSize)
	assert.Equal(t, 2, stats.Occupied)

	_, err = bpm.FetchPage(id2)
	assert.NoError(t, err)
	_, err = bpm.FetchPage(id3)
	assert.NoError(t, err)
}

func TestBufferPoolManagerNoFreeFrameWhenAllPinned(t *testing.T) {
	bpm := newTestPool(t, 1)

	p1, err := bpm.NewPage()
	assert.NoError(t, err)
	defer bpm.UnpinPage(p1.GetPageID(), false)

	_, err = bpm.NewPage()
	assert.ErrorIs(t, err, storage.ErrNoFreeFrame)
}

func TestBufferPoolManagerDeletePageRefusesWhilePinned(t *testing.T) {
	bpm := newTestPool(t, 2)
	p, _ := bpm.NewPage()
	id := p.GetPageID()

	_, err := bpm.DeletePage(id)
	assert.ErrorIs(t, err, storage.ErrNotEnoughSpace)

	assert.NoError(t, bpm.UnpinPage(id, false))
	deleted, err := bpm.DeletePage(id)
	assert.NoError(t, err)
	assert.True(t, deleted)

	stats := bpm.Stats()
	assert.Equal(t, 0, stats.Occupied)
}

func TestBufferPoolManagerUnpinUnknownPageReturnsNotFound(t *testing.T) {
	bpm := newTestPool(t, 2)
	err := bpm.UnpinPage(999, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
