// Package buffer implements the buffer pool: a fixed set of frames
// caching disk pages in memory, an extendible hash table mapping page id
// to frame, and an LRU replacement policy choosing which unpinned frame
// to evict next.
package buffer

import (
	"github.com/pkg/errors"
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/container/hash"
	"github.com/latchdb/latchdb/recovery"
	"github.com/latchdb/latchdb/storage"
	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// BufferPoolManager owns every Frame and is the only component allowed to
// read or write the disk manager's page slots; everything above it works
// with pinned, latched Frame handles instead.
type BufferPoolManager struct {
	mu deadlock.Mutex

	diskManager disk.DiskManager
	logManager  *recovery.LogManager

	frames    []*Frame
	replacer  *LRUReplacer
	freeList  []types.FrameID
	pageTable *hash.ExtendibleHashTable[types.PageID, types.FrameID]
}

// NewBufferPoolManager builds a pool of poolSize frames. logManager may be
// nil, in which case dirty pages are written back without a WAL durability
// wait (used by tests that do not exercise recovery).
func NewBufferPoolManager(poolSize int, diskManager disk.DiskManager, logManager *recovery.LogManager) *BufferPoolManager {
	frames := make([]*Frame, poolSize)
	freeList := make([]types.FrameID, poolSize)
	for i := range frames {
		frames[i] = newFrame()
		freeList[i] = types.FrameID(i)
	}
	return &BufferPoolManager{
		diskManager: diskManager,
		logManager:  logManager,
		frames:      frames,
		replacer:    NewLRUReplacer(),
		freeList:    freeList,
		pageTable:   hash.New[types.PageID, types.FrameID](common.BucketSize, hash.HashPageID),
	}
}

// FetchPage pins and returns the page for id, reading it from disk into a
// free or evicted frame if it is not already cached.
func (b *BufferPoolManager) FetchPage(id types.PageID) (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameID, ok := b.pageTable.Find(id); ok {
		f := b.frames[frameID]
		f.pinCount++
		b.replacer.Pin(frameID)
		return f.page, nil
	}

	frameID, ok, err := b.allocateFrame()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNoFreeFrame
	}

	f := b.frames[frameID]
	f.page = page.NewPage(id)
	if err := b.diskManager.ReadPage(id, f.page.Data()); err != nil {
		return nil, errors.Wrapf(err, "read page %d", id)
	}
	f.pageID = id
	f.pinCount = 1
	f.dirty = false
	b.pageTable.Insert(id, frameID)
	return f.page, nil
}

// NewPage allocates a fresh page id from disk, pins it in a frame, and
// returns it zeroed except for its id.
func (b *BufferPoolManager) NewPage() (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok, err := b.allocateFrame()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNoFreeFrame
	}

	id := b.diskManager.AllocatePage()
	f := b.frames[frameID]
	f.page = page.NewPage(id)
	f.pageID = id
	f.pinCount = 1
	f.dirty = true
	b.pageTable.Insert(id, frameID)
	return f.page, nil
}

// UnpinPage drops one pin on id's frame. isDirty is OR'd into the frame's
// dirty flag: once dirty, a page stays dirty until flushed.
func (b *BufferPoolManager) UnpinPage(id types.PageID, isDirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable.Find(id)
	if !ok {
		return storage.ErrNotFound
	}
	f := b.frames[frameID]
	if f.pinCount == 0 {
		return nil
	}
	f.pinCount--
	if isDirty {
		f.dirty = true
	}
	if f.pinCount == 0 {
		b.replacer.Unpin(frameID)
	}
	return nil
}

// RLatchPage, RUnlatchPage, WLatchPage, and WUnlatchPage latch id's frame
// on behalf of a caller holding a pin on it (storage/table and
// storage/index latch-crabbing their way through pages fetched from this
// pool). The pin guarantees id's frame assignment cannot change while the
// latch is held, so looking the frame up again at unlatch time is safe.
// The lookup goes through the page table's own mutex, not the pool's, so
// latching never takes the pool mutex while a frame latch is held.
func (b *BufferPoolManager) RLatchPage(id types.PageID) {
	b.frameFor(id).RLatch()
}

func (b *BufferPoolManager) RUnlatchPage(id types.PageID) {
	b.frameFor(id).RUnlatch()
}

func (b *BufferPoolManager) WLatchPage(id types.PageID) {
	b.frameFor(id).WLatch()
}

func (b *BufferPoolManager) WUnlatchPage(id types.PageID) {
	b.frameFor(id).WUnlatch()
}

func (b *BufferPoolManager) frameFor(id types.PageID) *Frame {
	frameID, ok := b.pageTable.Find(id)
	common.Assert(ok, "latch requested for page %d not resident in pool", id)
	return b.frames[frameID]
}

// FlushPage unconditionally writes id's frame to disk regardless of its
// dirty flag. The WAL rule does not apply here: this is an explicit,
// caller-requested flush, not the buffer pool evicting a page behind the
// caller's back, so there is no need to wait on the log manager first.
func (b *BufferPoolManager) FlushPage(id types.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable.Find(id)
	if !ok {
		return storage.ErrNotFound
	}
	return b.writeFrame(b.frames[frameID])
}

// FlushAllDirtyPages writes back every dirty frame, used before a clean
// shutdown and by GCLogFile-driven checkpoints this engine does not have.
func (b *BufferPoolManager) FlushAllDirtyPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, f := range b.frames {
		if f.pageID.IsValid() && f.dirty {
			if err := b.writeFrame(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeletePage evicts id from the pool (refusing if still pinned) and tells
// the disk manager to reclaim its slot. Returns true if id was resident
// and is now gone, false if id was not cached (nothing to do).
func (b *BufferPoolManager) DeletePage(id types.PageID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable.Find(id)
	if !ok {
		b.diskManager.DeallocatePage(id)
		return false, nil
	}
	f := b.frames[frameID]
	if f.pinCount > 0 {
		return false, storage.ErrNotEnoughSpace
	}

	b.pageTable.Remove(id)
	b.replacer.Pin(frameID) // stop tracking it as a victim candidate
	f.page = nil
	f.pageID = types.InvalidPageID
	f.dirty = false
	b.freeList = append(b.freeList, frameID)

	b.diskManager.DeallocatePage(id)
	return true, nil
}

// Stats reports pool occupancy, for tests and diagnostics.
type Stats struct {
	PoolSize  int
	Occupied  int
	FreeCount int
}

func (b *BufferPoolManager) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		PoolSize:  len(b.frames),
		Occupied:  b.pageTable.Size(),
		FreeCount: len(b.freeList),
	}
}

// allocateFrame returns a frame id ready to hold a new page, preferring
// the free list; otherwise it evicts the LRU replacer's victim.
func (b *BufferPoolManager) allocateFrame() (types.FrameID, bool, error) {
	if len(b.freeList) > 0 {
		id := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		return id, true, nil
	}

	frameID, ok := b.replacer.Victim()
	if !ok {
		return 0, false, nil
	}
	f := b.frames[frameID]
	common.Assert(f.pinCount == 0, "victim frame %d has pin count %d", frameID, f.pinCount)
	if f.pageID.IsValid() {
		if f.dirty {
			if err := b.evictFrame(f); err != nil {
				return 0, false, err
			}
		}
		b.pageTable.Remove(f.pageID)
	}
	return frameID, true, nil
}

// evictFrame writes back a dirty frame the replacer chose as a victim.
// Callers hold b.mu. It honors the WAL force-before-evict rule: the log
// manager must durably hold the page's LSN before its bytes leave
// memory, so eviction wakes the flush thread and waits rather than
// writing the page out from under an unflushed log record.
func (b *BufferPoolManager) evictFrame(f *Frame) error {
	if b.logManager != nil {
		b.logManager.WakeupFlushThread()
	}
	return b.writeFrame(f)
}

// writeFrame writes f's page to disk unconditionally. Callers hold b.mu.
func (b *BufferPoolManager) writeFrame(f *Frame) error {
	f.WLatch()
	data := f.page.Data()
	err := b.diskManager.WritePage(f.pageID, data)
	f.WUnlatch()
	if err != nil {
		return errors.Wrapf(err, "flush page %d", f.pageID)
	}
	f.dirty = false
	return nil
}
