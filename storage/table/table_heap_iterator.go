package table

import (
	"github.com/latchdb/latchdb/concurrency"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

// TableHeapIterator walks every live tuple of a table heap in page and
// slot order. It points at the first tuple on construction; Next advances
// it, and End reports whether the walk has run off the last page.
type TableHeapIterator struct {
	tableHeap *TableHeap
	txn       *concurrency.Transaction
	tuple     *tuple.Tuple
}

func newTableHeapIterator(tableHeap *TableHeap, txn *concurrency.Transaction) *TableHeapIterator {
	first, _ := tableHeap.GetFirstTuple(txn)
	return &TableHeapIterator{tableHeap: tableHeap, txn: txn, tuple: first}
}

// Current returns the tuple the iterator currently points at, or nil once
// End reports true.
func (it *TableHeapIterator) Current() *tuple.Tuple { return it.tuple }

// End reports whether the iterator has exhausted the table.
func (it *TableHeapIterator) End() bool { return it.tuple == nil }

// Next advances the iterator to the next live tuple, possibly crossing
// into the following page, and returns it (nil once exhausted).
func (it *TableHeapIterator) Next() *tuple.Tuple {
	if it.tuple == nil {
		return nil
	}
	bpm := it.tableHeap.bpm
	rid := it.tuple.GetRID()

	pageID := rid.PageID
	p, err := bpm.FetchPage(pageID)
	if err != nil {
		it.tuple = nil
		return nil
	}
	cur := page.AsTablePage(p)
	bpm.RLatchPage(pageID)
	nextSlot, ok := cur.NextTupleSlot(rid.SlotNum)
	nextPageID := cur.GetNextPageID()
	bpm.RUnlatchPage(pageID)

	for !ok && nextPageID.IsValid() {
		bpm.UnpinPage(pageID, false)
		pageID = nextPageID
		p, err = bpm.FetchPage(pageID)
		if err != nil {
			it.tuple = nil
			return nil
		}
		cur = page.AsTablePage(p)
		bpm.RLatchPage(pageID)
		nextSlot, ok = cur.FirstTupleSlot()
		nextPageID = cur.GetNextPageID()
		bpm.RUnlatchPage(pageID)
	}
	bpm.UnpinPage(pageID, false)

	if !ok {
		it.tuple = nil
		return nil
	}
	it.tuple, err = it.tableHeap.GetTuple(types.NewRID(pageID, nextSlot), it.txn)
	if err != nil {
		it.tuple = nil
	}
	return it.tuple
}
