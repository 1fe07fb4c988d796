package disk

import (
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/pkg/errors"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/types"
)

// ErrDeallocatedPage is returned from ReadPage when the requested page id
// was previously handed to DeallocatePage.
var ErrDeallocatedPage = errors.New("page id was deallocated")

// MemoryDiskManager is an in-memory DiskManager backed by memfile.File,
// used by every test that does not specifically exercise the filesystem
// (and by the "before kill" half of a crash-recovery test, which hands the
// same underlying bytes to a second manager standing in for "after
// restart"). Unlike FileDiskManager, it reclaims and reuses deallocated
// page-id slots: an in-memory backend can do this cheaply without a real
// page bitmap, which lets tests exercise page-id reuse.
type MemoryDiskManager struct {
	db  *memfile.File
	log *memfile.File

	mu sync.Mutex

	nextPageID   types.PageID
	size         int64
	numWrites    uint64
	reusableIDs  []types.PageID
	spaceIDOf    map[types.PageID]types.PageID
	deallocated  map[types.PageID]bool
}

func NewMemoryDiskManager() *MemoryDiskManager {
	return &MemoryDiskManager{
		db:          memfile.New(nil),
		log:         memfile.New(nil),
		spaceIDOf:   make(map[types.PageID]types.PageID),
		deallocated: make(map[types.PageID]bool),
	}
}

func (d *MemoryDiskManager) spaceID(id types.PageID) types.PageID {
	if conv, ok := d.spaceIDOf[id]; ok {
		return conv
	}
	return id
}

func (d *MemoryDiskManager) ShutDown() {}

func (d *MemoryDiskManager) WritePage(id types.PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	offset := int64(d.spaceID(id)) * common.PageSize
	d.db.WriteAt(data, offset)
	d.numWrites++
	if offset+int64(len(data)) > d.size {
		d.size = offset + int64(len(data))
	}
	return nil
}

func (d *MemoryDiskManager) ReadPage(id types.PageID, out []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deallocated[id] {
		return ErrDeallocatedPage
	}
	offset := int64(d.spaceID(id)) * common.PageSize
	if offset+int64(len(out)) > d.size {
		return errors.Errorf("read past end of file: page %d", id)
	}
	_, err := d.db.ReadAt(out, offset)
	return err
}

func (d *MemoryDiskManager) AllocatePage() types.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextPageID
	if len(d.reusableIDs) > 0 {
		reused := d.reusableIDs[0]
		d.reusableIDs = d.reusableIDs[1:]
		d.spaceIDOf[id] = reused
	}
	d.nextPageID++
	return id
}

func (d *MemoryDiskManager) DeallocatePage(id types.PageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deallocated[id] = true
	if conv, ok := d.spaceIDOf[id]; ok {
		d.reusableIDs = append(d.reusableIDs, conv)
		delete(d.spaceIDOf, id)
	} else {
		d.reusableIDs = append(d.reusableIDs, id)
	}
}

func (d *MemoryDiskManager) GetNumWrites() uint64 { return d.numWrites }

func (d *MemoryDiskManager) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

func (d *MemoryDiskManager) WriteLog(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.WriteAt(data, int64(len(d.log.Bytes())))
	return nil
}

func (d *MemoryDiskManager) ReadLog(out []byte, offset int64, readBytes *int) bool {
	if offset >= d.GetLogFileSize() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, _ := d.log.ReadAt(out, offset)
	*readBytes = n
	return true
}

func (d *MemoryDiskManager) GetLogFileSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.log.Bytes()))
}

func (d *MemoryDiskManager) GCLogFile() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = memfile.New(nil)
	return nil
}
