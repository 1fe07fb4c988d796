package page

import (
	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/storage"
	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

// Slotted page format:
//
//	---------------------------------------------------------
//	| HEADER | ... FREE SPACE ... | ... INSERTED TUPLES ... |
//	---------------------------------------------------------
//	                              ^
//	                              free space pointer
//
// Header (bytes, past the common 8-byte id+LSN header):
//
//	----------------------------------------------------------------
//	| PrevPageID(4) | NextPageID(4) | FreeSpacePointer(4) | Count(4)|
//	----------------------------------------------------------------
//	| (offset, size) slot_0 (8) | (offset, size) slot_1 (8) | ...   |
//	----------------------------------------------------------------
const (
	offsetPrevPageID   = 8
	offsetNextPageID   = 12
	offsetFreeSpacePtr = 16
	offsetTupleCount   = 20
	tablePageHeaderSize = 24
	slotSize            = 8

	// deleteMask is the top bit of a slot's size field, set by MarkDeleteSlot
	// and cleared by RollbackDeleteSlot; the table-page package never
	// distinguishes "deleted" from "empty" except through this bit.
	deleteMask = uint32(1) << 31
)

// TablePage is a Page viewed as one node in a table heap's doubly-linked
// list of slotted pages.
type TablePage struct {
	*Page
}

// AsTablePage views p as a TablePage. p must already be a page that was
// initialized via Init (or read back from disk after such a page was
// written).
func AsTablePage(p *Page) *TablePage { return &TablePage{p} }

// Init lays out a fresh, empty table page.
func (tp *TablePage) Init(id, prevPageID types.PageID) {
	tp.SetPageID(id)
	tp.SetPrevPageID(prevPageID)
	tp.SetNextPageID(types.InvalidPageID)
	tp.SetTupleCount(0)
	tp.SetFreeSpacePointer(common.PageSize)
}

func (tp *TablePage) GetPrevPageID() types.PageID {
	return types.NewPageIDFromBytes(tp.Data()[offsetPrevPageID:])
}

func (tp *TablePage) SetPrevPageID(id types.PageID) {
	tp.Copy(offsetPrevPageID, id.Serialize())
}

func (tp *TablePage) GetNextPageID() types.PageID {
	return types.NewPageIDFromBytes(tp.Data()[offsetNextPageID:])
}

func (tp *TablePage) SetNextPageID(id types.PageID) {
	tp.Copy(offsetNextPageID, id.Serialize())
}

func (tp *TablePage) GetFreeSpacePointer() uint32 {
	return types.UInt32FromBytes(tp.Data()[offsetFreeSpacePtr:])
}

func (tp *TablePage) SetFreeSpacePointer(v uint32) {
	tp.Copy(offsetFreeSpacePtr, types.UInt32Bytes(v))
}

func (tp *TablePage) GetTupleCount() uint32 {
	return types.UInt32FromBytes(tp.Data()[offsetTupleCount:])
}

func (tp *TablePage) SetTupleCount(v uint32) {
	tp.Copy(offsetTupleCount, types.UInt32Bytes(v))
}

func slotOffset(slot uint32) uint32 { return tablePageHeaderSize + slotSize*slot }

func (tp *TablePage) GetTupleOffsetAtSlot(slot uint32) uint32 {
	return types.UInt32FromBytes(tp.Data()[slotOffset(slot):])
}

func (tp *TablePage) setTupleOffsetAtSlot(slot, offset uint32) {
	tp.Copy(slotOffset(slot), types.UInt32Bytes(offset))
}

func (tp *TablePage) GetTupleSize(slot uint32) uint32 {
	return types.UInt32FromBytes(tp.Data()[slotOffset(slot)+4:])
}

func (tp *TablePage) setTupleSize(slot, size uint32) {
	tp.Copy(slotOffset(slot)+4, types.UInt32Bytes(size))
}

func (tp *TablePage) freeSpaceRemaining() uint32 {
	return tp.GetFreeSpacePointer() - tablePageHeaderSize - slotSize*tp.GetTupleCount()
}

// InsertTuple places t's bytes in the first free slot (reusing an emptied
// slot before growing the slot array) and returns the slot used.
func (tp *TablePage) InsertTuple(t *tuple.Tuple) (slot uint32, err error) {
	if t.Size() == 0 {
		return 0, storage.ErrEmptyTuple
	}
	if tp.freeSpaceRemaining() < t.Size()+slotSize {
		return 0, storage.ErrNotEnoughSpace
	}

	count := tp.GetTupleCount()
	for slot = 0; slot < count; slot++ {
		if tp.GetTupleSize(slot) == 0 {
			break
		}
	}
	if slot == count && t.Size()+slotSize > tp.freeSpaceRemaining() {
		return 0, storage.ErrNotEnoughSpace
	}

	fsp := tp.GetFreeSpacePointer() - t.Size()
	tp.SetFreeSpacePointer(fsp)
	tp.Copy(fsp, t.Data())
	tp.setTupleOffsetAtSlot(slot, fsp)
	tp.setTupleSize(slot, t.Size())
	if slot == count {
		tp.SetTupleCount(count + 1)
	}
	return slot, nil
}

// GetTupleAtSlot copies out the tuple at slot. The returned tuple's RID is
// left zero; the caller (table heap) fills it in since only it knows this
// page's id.
func (tp *TablePage) GetTupleAtSlot(slot uint32) (*tuple.Tuple, error) {
	if slot >= tp.GetTupleCount() {
		return nil, storage.ErrNotFound
	}
	size := tp.GetTupleSize(slot)
	if IsDeleted(size) {
		return nil, storage.ErrNotFound
	}
	offset := tp.GetTupleOffsetAtSlot(slot)
	data := make([]byte, size)
	copy(data, tp.Data()[offset:offset+size])
	return tuple.NewTuple(types.RID{}, data), nil
}

// UpdateTupleInPlace overwrites the tuple at slot with newTuple, shifting
// every other tuple's bytes and recorded offset to keep the page compact.
// It returns the pre-update tuple whenever slot holds a live tuple (even
// on ErrNotEnoughSpace, so the caller can log/restore it), and nil with
// ErrNotFound otherwise. Size mismatches are accommodated, not rejected.
func (tp *TablePage) UpdateTupleInPlace(slot uint32, newTuple *tuple.Tuple) (old *tuple.Tuple, err error) {
	if slot >= tp.GetTupleCount() {
		return nil, storage.ErrNotFound
	}
	size := tp.GetTupleSize(slot)
	if IsDeleted(size) {
		return nil, storage.ErrNotFound
	}

	offset := tp.GetTupleOffsetAtSlot(slot)
	oldData := make([]byte, size)
	copy(oldData, tp.Data()[offset:offset+size])
	old = tuple.NewTuple(types.RID{}, oldData)

	if tp.freeSpaceRemaining()+size < newTuple.Size() {
		return old, storage.ErrNotEnoughSpace
	}

	fsp := tp.GetFreeSpacePointer()
	common.Assert(offset >= fsp, "tuple offset %d precedes free-space pointer %d", offset, fsp)

	copy(tp.Data()[fsp+size-newTuple.Size():], tp.Data()[fsp:offset])
	tp.SetFreeSpacePointer(fsp + size - newTuple.Size())
	copy(tp.Data()[offset+size-newTuple.Size():], newTuple.Data())
	tp.setTupleSize(slot, newTuple.Size())

	count := tp.GetTupleCount()
	for i := uint32(0); i < count; i++ {
		off := tp.GetTupleOffsetAtSlot(i)
		if tp.GetTupleSize(i) > 0 && off < offset+size {
			tp.setTupleOffsetAtSlot(i, off+size-newTuple.Size())
		}
	}
	return old, nil
}

// MarkDeleteSlot tombstones the slot without reclaiming its bytes; the
// caller commits the delete with ApplyDeleteSlot or undoes it with
// RollbackDeleteSlot.
func (tp *TablePage) MarkDeleteSlot(slot uint32) error {
	if slot >= tp.GetTupleCount() {
		return storage.ErrNotFound
	}
	size := tp.GetTupleSize(slot)
	if IsDeleted(size) {
		return storage.ErrNotFound
	}
	if size > 0 {
		tp.setTupleSize(slot, SetDeletedFlag(size))
	}
	return nil
}

// RollbackDeleteSlot undoes a MarkDeleteSlot that has not yet been applied.
func (tp *TablePage) RollbackDeleteSlot(slot uint32) {
	size := tp.GetTupleSize(slot)
	if IsDeleted(size) {
		tp.setTupleSize(slot, UnsetDeletedFlag(size))
	}
}

// ApplyDeleteSlot physically removes the tuple at slot, compacting the
// page, and returns its bytes (needed whether this is a commit of a
// tombstoned delete or the rollback of an insert).
func (tp *TablePage) ApplyDeleteSlot(slot uint32) *tuple.Tuple {
	count := tp.GetTupleCount()
	common.Assert(slot < count, "slot %d out of range (count %d)", slot, count)

	offset := tp.GetTupleOffsetAtSlot(slot)
	size := tp.GetTupleSize(slot)
	if IsDeleted(size) {
		size = UnsetDeletedFlag(size)
	}

	data := make([]byte, size)
	copy(data, tp.Data()[offset:offset+size])
	deleted := tuple.NewTuple(types.RID{}, data)

	fsp := tp.GetFreeSpacePointer()
	common.Assert(offset >= fsp, "tuple offset %d precedes free-space pointer %d", offset, fsp)
	copy(tp.Data()[fsp+size:], tp.Data()[fsp:offset])
	tp.SetFreeSpacePointer(fsp + size)
	tp.setTupleSize(slot, 0)
	tp.setTupleOffsetAtSlot(slot, 0)

	for i := uint32(0); i < count; i++ {
		off := tp.GetTupleOffsetAtSlot(i)
		if tp.GetTupleSize(i) != 0 && off < offset {
			tp.setTupleOffsetAtSlot(i, off+size)
		}
	}
	return deleted
}

// FirstTupleSlot returns the slot of the first non-empty, non-tombstoned
// tuple, for the table heap's iterator.
func (tp *TablePage) FirstTupleSlot() (uint32, bool) {
	count := tp.GetTupleCount()
	for i := uint32(0); i < count; i++ {
		if size := tp.GetTupleSize(i); size > 0 && !IsDeleted(size) {
			return i, true
		}
	}
	return 0, false
}

// NextTupleSlot returns the next occupied slot strictly after slot.
func (tp *TablePage) NextTupleSlot(slot uint32) (uint32, bool) {
	count := tp.GetTupleCount()
	for i := slot + 1; i < count; i++ {
		if size := tp.GetTupleSize(i); size > 0 && !IsDeleted(size) {
			return i, true
		}
	}
	return 0, false
}

// IsDeleted reports whether a tuple-size field marks a deleted or empty slot.
func IsDeleted(tupleSize uint32) bool {
	return tupleSize&deleteMask == deleteMask || tupleSize == 0
}

// SetDeletedFlag returns tupleSize with the tombstone bit set.
func SetDeletedFlag(tupleSize uint32) uint32 { return tupleSize | deleteMask }

// UnsetDeletedFlag returns tupleSize with the tombstone bit cleared.
func UnsetDeletedFlag(tupleSize uint32) uint32 { return tupleSize &^ deleteMask }
