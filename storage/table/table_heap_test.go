package table

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/buffer"
	"github.com/latchdb/latchdb/concurrency"
	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

func newTestTableHeap(t *testing.T, poolSize int) (*TableHeap, *concurrency.TransactionManager, *concurrency.Transaction) {
	dm := disk.NewMemoryDiskManager()
	bpm := buffer.NewBufferPoolManager(poolSize, dm, nil)
	lockManager := concurrency.NewLockManager(true)
	txnManager := concurrency.NewTransactionManager(lockManager, nil)
	txn := txnManager.Begin()

	th, err := NewTableHeap(bpm, lockManager, nil, txn)
	assert.NoError(t, err)
	return th, txnManager, txn
}

func intSchema() (*tuple.Schema, *tuple.Column, *tuple.Column) {
	a := tuple.NewColumn("a", tuple.Integer)
	b := tuple.NewColumn("b", tuple.Integer)
	return tuple.NewSchema([]*tuple.Column{a, b}), a, b
}

func TestTableHeapInsertAndGetAcrossPages(t *testing.T) {
	th, _, txn := newTestTableHeap(t, 10)
	schema, _, _ := intSchema()

	const n = 1000
	rids := make([]types.RID, n)
	for i := 0; i < n; i++ {
		tup := tuple.NewTupleFromSchema([]tuple.Value{
			tuple.NewInteger(int32(i * 2)),
			tuple.NewInteger(int32((i + 1) * 2)),
		}, schema)
		rid, err := th.InsertTuple(tup, txn)
		assert.NoError(t, err)
		rids[i] = rid
	}

	for i := 0; i < n; i++ {
		got, err := th.GetTuple(rids[i], txn)
		assert.NoError(t, err)
		assert.Equal(t, int32(i*2), got.GetValue(schema, 0).ToInteger())
		assert.Equal(t, int32((i+1)*2), got.GetValue(schema, 1).ToInteger())
	}
}

func TestTableHeapIterator(t *testing.T) {
	th, _, txn := newTestTableHeap(t, 10)
	schema, _, _ := intSchema()

	const n = 300
	for i := 0; i < n; i++ {
		tup := tuple.NewTupleFromSchema([]tuple.Value{
			tuple.NewInteger(int32(i)),
			tuple.NewInteger(int32(i * 10)),
		}, schema)
		_, err := th.InsertTuple(tup, txn)
		assert.NoError(t, err)
	}

	it := th.Iterator(txn)
	count := 0
	for cur := it.Current(); !it.End(); cur = it.Next() {
		assert.Equal(t, int32(count), cur.GetValue(schema, 0).ToInteger())
		count++
	}
	assert.Equal(t, n, count)
}

func TestTableHeapMarkAndApplyDelete(t *testing.T) {
	th, _, txn := newTestTableHeap(t, 10)
	schema, _, _ := intSchema()

	tup := tuple.NewTupleFromSchema([]tuple.Value{tuple.NewInteger(1), tuple.NewInteger(2)}, schema)
	rid, err := th.InsertTuple(tup, txn)
	assert.NoError(t, err)

	assert.NoError(t, th.MarkDelete(rid, txn))
	_, err = th.GetTuple(rid, txn)
	assert.Error(t, err)

	assert.NoError(t, th.ApplyDelete(rid, txn))
	_, err = th.GetTuple(rid, txn)
	assert.Error(t, err)
}

func TestTableHeapMarkDeleteRollback(t *testing.T) {
	th, _, txn := newTestTableHeap(t, 10)
	schema, _, _ := intSchema()

	tup := tuple.NewTupleFromSchema([]tuple.Value{tuple.NewInteger(7), tuple.NewInteger(8)}, schema)
	rid, err := th.InsertTuple(tup, txn)
	assert.NoError(t, err)

	assert.NoError(t, th.MarkDelete(rid, txn))
	assert.NoError(t, th.RollbackDelete(rid, txn))

	got, err := th.GetTuple(rid, txn)
	assert.NoError(t, err)
	assert.Equal(t, int32(7), got.GetValue(schema, 0).ToInteger())
}

func TestTableHeapUpdateInPlace(t *testing.T) {
	th, _, txn := newTestTableHeap(t, 10)
	schema, _, _ := intSchema()

	tup := tuple.NewTupleFromSchema([]tuple.Value{tuple.NewInteger(1), tuple.NewInteger(2)}, schema)
	rid, err := th.InsertTuple(tup, txn)
	assert.NoError(t, err)

	updated := tuple.NewTupleFromSchema([]tuple.Value{tuple.NewInteger(100), tuple.NewInteger(200)}, schema)
	newRid, err := th.UpdateTuple(updated, rid, txn)
	assert.NoError(t, err)
	assert.Equal(t, rid, newRid)

	got, err := th.GetTuple(rid, txn)
	assert.NoError(t, err)
	assert.Equal(t, int32(100), got.GetValue(schema, 0).ToInteger())
}

func TestTableHeapUpdateFallsBackToDeleteInsertWhenTupleGrows(t *testing.T) {
	th, _, txn := newTestTableHeap(t, 10)
	wide := tuple.NewSchema([]*tuple.Column{tuple.NewColumn("s", tuple.Varchar)})

	small := tuple.NewTupleFromSchema([]tuple.Value{tuple.NewVarchar("x")}, wide)
	rid, err := th.InsertTuple(small, txn)
	assert.NoError(t, err)

	// Pack the rest of the page so the in-place update has nowhere to grow.
	filler := tuple.NewTupleFromSchema([]tuple.Value{tuple.NewVarchar(string(make([]byte, 3000)))}, wide)
	_, err = th.InsertTuple(filler, txn)
	assert.NoError(t, err)

	grown := tuple.NewTupleFromSchema([]tuple.Value{tuple.NewVarchar(string(make([]byte, 3000)))}, wide)
	newRid, err := th.UpdateTuple(grown, rid, txn)
	assert.NoError(t, err)
	assert.NotEqual(t, rid, newRid)

	_, err = th.GetTuple(rid, txn)
	assert.Error(t, err)

	got, err := th.GetTuple(newRid, txn)
	assert.NoError(t, err)
	assert.Equal(t, 3000, len(got.GetValue(wide, 0).ToVarchar()))
}

func TestTableHeapAbortUndoesInsert(t *testing.T) {
	th, txnManager, txn := newTestTableHeap(t, 10)
	schema, _, _ := intSchema()

	tup := tuple.NewTupleFromSchema([]tuple.Value{tuple.NewInteger(9), tuple.NewInteger(9)}, schema)
	rid, err := th.InsertTuple(tup, txn)
	assert.NoError(t, err)

	txnManager.Abort(txn)

	_, err = th.GetTuple(rid, txnManager.Begin())
	assert.Error(t, err)
}
