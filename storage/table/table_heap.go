// Package table implements the table heap: a table's first page id plus
// the insert/get/update/delete operations that thread locking (via
// concurrency.LockManager) and write-ahead logging (via recovery.LogManager)
// around the pure slotted-page mechanics in storage/page.
package table

import (
	"github.com/latchdb/latchdb/buffer"
	"github.com/latchdb/latchdb/concurrency"
	"github.com/latchdb/latchdb/recovery"
	"github.com/latchdb/latchdb/storage"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

// TableHeap is a table's doubly-linked chain of slotted pages, identified
// by the id of its first page.
type TableHeap struct {
	bpm         *buffer.BufferPoolManager
	firstPageID types.PageID
	lockManager *concurrency.LockManager
	logManager  *recovery.LogManager
}

// NewTableHeap allocates a fresh, empty table heap: one page, logged as a
// NewPage record so a crash before the first insert still leaves the page
// chain in a recoverable state.
func NewTableHeap(bpm *buffer.BufferPoolManager, lockManager *concurrency.LockManager, logManager *recovery.LogManager, txn *concurrency.Transaction) (*TableHeap, error) {
	p, err := bpm.NewPage()
	if err != nil {
		return nil, err
	}
	page.AsTablePage(p).Init(p.GetPageID(), types.InvalidPageID)

	t := &TableHeap{bpm: bpm, firstPageID: p.GetPageID(), lockManager: lockManager, logManager: logManager}
	t.logNewPage(txn, types.InvalidPageID)
	bpm.UnpinPage(p.GetPageID(), true)
	return t, nil
}

// OpenTableHeap attaches to a table heap whose first page already exists,
// used after recovery replays the log and rebuilds the page chain.
func OpenTableHeap(bpm *buffer.BufferPoolManager, firstPageID types.PageID, lockManager *concurrency.LockManager, logManager *recovery.LogManager) *TableHeap {
	return &TableHeap{bpm: bpm, firstPageID: firstPageID, lockManager: lockManager, logManager: logManager}
}

// GetFirstPageID returns the id of the table's first page.
func (t *TableHeap) GetFirstPageID() types.PageID { return t.firstPageID }

// InsertTuple inserts tup into the first page with room for it, walking
// the page chain and appending a fresh page if none has space. It records
// the insert in txn's write set so Abort can undo it, and writes an
// Insert log record ahead of the page change.
func (t *TableHeap) InsertTuple(tup *tuple.Tuple, txn *concurrency.Transaction) (types.RID, error) {
	p, err := t.bpm.FetchPage(t.firstPageID)
	if err != nil {
		return types.RID{}, err
	}
	cur := page.AsTablePage(p)

	var slot uint32
	for {
		t.bpm.WLatchPage(cur.GetPageID())
		slot, err = cur.InsertTuple(tup)
		if err == nil {
			break
		}
		if err != storage.ErrNotEnoughSpace {
			t.bpm.WUnlatchPage(cur.GetPageID())
			t.bpm.UnpinPage(cur.GetPageID(), false)
			return types.RID{}, err
		}

		nextID := cur.GetNextPageID()
		if nextID.IsValid() {
			t.bpm.WUnlatchPage(cur.GetPageID())
			t.bpm.UnpinPage(cur.GetPageID(), false)
			p, err = t.bpm.FetchPage(nextID)
			if err != nil {
				return types.RID{}, err
			}
			cur = page.AsTablePage(p)
			continue
		}

		next, err := t.bpm.NewPage()
		if err != nil {
			t.bpm.WUnlatchPage(cur.GetPageID())
			t.bpm.UnpinPage(cur.GetPageID(), false)
			return types.RID{}, err
		}
		page.AsTablePage(next).Init(next.GetPageID(), cur.GetPageID())
		cur.SetNextPageID(next.GetPageID())
		t.logNewPage(txn, cur.GetPageID())
		t.bpm.WUnlatchPage(cur.GetPageID())
		t.bpm.UnpinPage(cur.GetPageID(), true)
		cur = page.AsTablePage(next)
	}

	rid := types.NewRID(cur.GetPageID(), slot)
	t.log(txn, recovery.NewLogRecordWrite(txn.ID(), txn.PrevLSN(), recovery.Insert, rid, tup), cur)
	t.bpm.WUnlatchPage(cur.GetPageID())
	t.bpm.UnpinPage(cur.GetPageID(), true)

	txn.AppendWriteRecord(concurrency.WriteRecord{RID: rid, Type: concurrency.WInsert, Table: t})
	return rid, nil
}

// GetTuple reads the tuple at rid, acquiring a shared lock first unless
// txn already holds shared or exclusive on it.
func (t *TableHeap) GetTuple(rid types.RID, txn *concurrency.Transaction) (*tuple.Tuple, error) {
	if !txn.IsSharedLocked(rid) && !txn.IsExclusiveLocked(rid) {
		if !t.lockManager.LockShared(txn, rid) {
			return nil, storage.ErrTxnAborted
		}
	}

	p, err := t.bpm.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	tp := page.AsTablePage(p)
	t.bpm.RLatchPage(rid.PageID)
	tup, err := tp.GetTupleAtSlot(rid.SlotNum)
	t.bpm.RUnlatchPage(rid.PageID)
	t.bpm.UnpinPage(rid.PageID, false)
	if err != nil {
		return nil, err
	}
	tup.SetRID(rid)
	return tup, nil
}

// UpdateTuple replaces the tuple at rid with newTuple in place, acquiring
// an exclusive lock (or upgrading a held shared lock) first. It logs the
// old and new images so Abort can restore the old one. If newTuple no
// longer fits in rid's page, it falls back to mark-deleting the old rid
// and inserting newTuple fresh, returning the rid the tuple now lives at.
func (t *TableHeap) UpdateTuple(newTuple *tuple.Tuple, rid types.RID, txn *concurrency.Transaction) (types.RID, error) {
	if !txn.IsExclusiveLocked(rid) {
		if txn.IsSharedLocked(rid) {
			if !t.lockManager.LockUpgrade(txn, rid) {
				return types.RID{}, storage.ErrTxnAborted
			}
		} else if !t.lockManager.LockExclusive(txn, rid) {
			return types.RID{}, storage.ErrTxnAborted
		}
	}

	p, err := t.bpm.FetchPage(rid.PageID)
	if err != nil {
		return types.RID{}, err
	}
	tp := page.AsTablePage(p)
	t.bpm.WLatchPage(rid.PageID)
	oldTuple, err := tp.UpdateTupleInPlace(rid.SlotNum, newTuple)
	if err != nil {
		t.bpm.WUnlatchPage(rid.PageID)
		t.bpm.UnpinPage(rid.PageID, false)
		if err == storage.ErrNotEnoughSpace {
			if err := t.MarkDelete(rid, txn); err != nil {
				return types.RID{}, err
			}
			return t.InsertTuple(newTuple, txn)
		}
		return types.RID{}, err
	}

	t.log(txn, recovery.NewLogRecordUpdate(txn.ID(), txn.PrevLSN(), rid, oldTuple, newTuple), tp)
	t.bpm.WUnlatchPage(rid.PageID)
	t.bpm.UnpinPage(rid.PageID, true)

	txn.AppendWriteRecord(concurrency.WriteRecord{RID: rid, Type: concurrency.WUpdate, OldTuple: oldTuple, Table: t})
	return rid, nil
}

// UpdateTupleInPlace restores oldTuple at rid without touching locks or
// the write set: the undo half of UpdateTuple, called by
// TransactionManager.Abort, which already owns every lock txn held.
func (t *TableHeap) UpdateTupleInPlace(oldTuple *tuple.Tuple, rid types.RID, txn *concurrency.Transaction) error {
	p, err := t.bpm.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	tp := page.AsTablePage(p)
	t.bpm.WLatchPage(rid.PageID)
	_, err = tp.UpdateTupleInPlace(rid.SlotNum, oldTuple)
	t.bpm.WUnlatchPage(rid.PageID)
	t.bpm.UnpinPage(rid.PageID, true)
	return err
}

// MarkDelete tombstones the tuple at rid without reclaiming its space,
// acquiring an exclusive lock first. ApplyDelete or RollbackDelete follows
// at commit or abort time.
func (t *TableHeap) MarkDelete(rid types.RID, txn *concurrency.Transaction) error {
	if !txn.IsExclusiveLocked(rid) {
		if txn.IsSharedLocked(rid) {
			if !t.lockManager.LockUpgrade(txn, rid) {
				return storage.ErrTxnAborted
			}
		} else if !t.lockManager.LockExclusive(txn, rid) {
			return storage.ErrTxnAborted
		}
	}

	p, err := t.bpm.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	tp := page.AsTablePage(p)
	t.bpm.WLatchPage(rid.PageID)
	if err := tp.MarkDeleteSlot(rid.SlotNum); err != nil {
		t.bpm.WUnlatchPage(rid.PageID)
		t.bpm.UnpinPage(rid.PageID, false)
		return err
	}

	t.log(txn, recovery.NewLogRecordWrite(txn.ID(), txn.PrevLSN(), recovery.MarkDelete, rid, &tuple.Tuple{}), tp)
	t.bpm.WUnlatchPage(rid.PageID)
	t.bpm.UnpinPage(rid.PageID, true)

	txn.AppendWriteRecord(concurrency.WriteRecord{RID: rid, Type: concurrency.WDelete, Table: t})
	return nil
}

// ApplyDelete physically removes the tuple at rid, committing a prior
// MarkDelete. Called either at transaction commit time (locks already
// held) or, with Type Insert, to undo an insert on abort.
func (t *TableHeap) ApplyDelete(rid types.RID, txn *concurrency.Transaction) error {
	p, err := t.bpm.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	tp := page.AsTablePage(p)
	t.bpm.WLatchPage(rid.PageID)
	deleted := tp.ApplyDeleteSlot(rid.SlotNum)

	t.log(txn, recovery.NewLogRecordWrite(txn.ID(), txn.PrevLSN(), recovery.ApplyDelete, rid, deleted), tp)
	t.bpm.WUnlatchPage(rid.PageID)
	t.bpm.UnpinPage(rid.PageID, true)
	return nil
}

// RollbackDelete undoes a MarkDelete that was never applied, called by
// TransactionManager.Abort on a transaction's own WDelete write records.
func (t *TableHeap) RollbackDelete(rid types.RID, txn *concurrency.Transaction) error {
	p, err := t.bpm.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	tp := page.AsTablePage(p)
	t.bpm.WLatchPage(rid.PageID)
	tp.RollbackDeleteSlot(rid.SlotNum)

	t.log(txn, recovery.NewLogRecordWrite(txn.ID(), txn.PrevLSN(), recovery.RollbackDelete, rid, &tuple.Tuple{}), tp)
	t.bpm.WUnlatchPage(rid.PageID)
	t.bpm.UnpinPage(rid.PageID, true)
	return nil
}

// GetFirstTuple returns the table's first live tuple, or ErrNotFound if
// the table is empty, for Iterator to seed its cursor.
func (t *TableHeap) GetFirstTuple(txn *concurrency.Transaction) (*tuple.Tuple, error) {
	pageID := t.firstPageID
	for pageID.IsValid() {
		p, err := t.bpm.FetchPage(pageID)
		if err != nil {
			return nil, err
		}
		tp := page.AsTablePage(p)
		t.bpm.RLatchPage(pageID)
		slot, ok := tp.FirstTupleSlot()
		next := tp.GetNextPageID()
		t.bpm.RUnlatchPage(pageID)
		t.bpm.UnpinPage(pageID, false)
		if ok {
			return t.GetTuple(types.NewRID(pageID, slot), txn)
		}
		pageID = next
	}
	return nil, storage.ErrNotFound
}

// Iterator returns a cursor over every live tuple in the table, in page
// and slot order.
func (t *TableHeap) Iterator(txn *concurrency.Transaction) *TableHeapIterator {
	return newTableHeapIterator(t, txn)
}

// log appends rec if logging is enabled, stamps tp's LSN, and advances
// txn's PrevLSN. Callers hold tp's write latch.
func (t *TableHeap) log(txn *concurrency.Transaction, rec *recovery.LogRecord, tp *page.TablePage) {
	if t.logManager == nil || !t.logManager.IsEnabledLogging() {
		return
	}
	lsn := t.logManager.AppendLogRecord(rec)
	txn.SetPrevLSN(lsn)
	tp.SetLSN(lsn)
}

// logNewPage appends a NewPage record marking the table heap's growth by
// one page, without a page to stamp (the new page is stamped by the first
// write logged against it).
func (t *TableHeap) logNewPage(txn *concurrency.Transaction, prevPageID types.PageID) {
	if t.logManager == nil || !t.logManager.IsEnabledLogging() {
		return
	}
	rec := recovery.NewLogRecordNewPage(txn.ID(), txn.PrevLSN(), prevPageID)
	txn.SetPrevLSN(t.logManager.AppendLogRecord(rec))
}
