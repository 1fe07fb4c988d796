package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/recovery"
	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

// fakeTable records which undo operation TransactionManager.Abort asked
// for against each rid, without touching a real table heap.
type fakeTable struct {
	deleted  map[types.RID]bool
	restored map[types.RID]bool
	updated  map[types.RID]*tuple.Tuple
}

func newFakeTable() *fakeTable {
	return &fakeTable{
		deleted:  make(map[types.RID]bool),
		restored: make(map[types.RID]bool),
		updated:  make(map[types.RID]*tuple.Tuple),
	}
}

func (f *fakeTable) ApplyDelete(rid types.RID, txn *Transaction) error {
	f.deleted[rid] = true
	return nil
}

func (f *fakeTable) RollbackDelete(rid types.RID, txn *Transaction) error {
	f.restored[rid] = true
	return nil
}

func (f *fakeTable) UpdateTupleInPlace(oldTuple *tuple.Tuple, rid types.RID, txn *Transaction) error {
	f.updated[rid] = oldTuple
	return nil
}

func TestTransactionManagerBeginAssignsIncreasingIDs(t *testing.T) {
	tm := NewTransactionManager(NewLockManager(true), nil)
	a := tm.Begin()
	b := tm.Begin()
	assert.Less(t, a.ID(), b.ID())
	assert.Equal(t, Growing, a.State())
}

func TestTransactionManagerCommitReleasesLocks(t *testing.T) {
	lm := NewLockManager(true)
	tm := NewTransactionManager(lm, nil)
	rid := types.NewRID(1, 0)

	txn := tm.Begin()
	assert.True(t, lm.LockExclusive(txn, rid))

	tm.Commit(txn)
	assert.Equal(t, Committed, txn.State())

	other := tm.Begin()
	assert.True(t, lm.LockExclusive(other, rid))
}

func TestTransactionManagerCommitAppliesDeferredDeletes(t *testing.T) {
	tm := NewTransactionManager(NewLockManager(true), nil)
	table := newFakeTable()

	txn := tm.Begin()
	insertedRID := types.NewRID(1, 0)
	deletedRID := types.NewRID(1, 1)
	txn.AppendWriteRecord(WriteRecord{RID: insertedRID, Type: WInsert, Table: table})
	txn.AppendWriteRecord(WriteRecord{RID: deletedRID, Type: WDelete, Table: table})

	tm.Commit(txn)

	assert.Equal(t, Committed, txn.State())
	assert.True(t, table.deleted[deletedRID])
	assert.False(t, table.restored[deletedRID])
}

func TestTransactionManagerAbortUndoesWritesNewestFirst(t *testing.T) {
	tm := NewTransactionManager(NewLockManager(true), nil)
	table := newFakeTable()

	txn := tm.Begin()
	insertedRID := types.NewRID(1, 0)
	deletedRID := types.NewRID(1, 1)
	updatedRID := types.NewRID(1, 2)
	oldTuple := &tuple.Tuple{}

	txn.AppendWriteRecord(WriteRecord{RID: insertedRID, Type: WInsert, Table: table})
	txn.AppendWriteRecord(WriteRecord{RID: deletedRID, Type: WDelete, Table: table})
	txn.AppendWriteRecord(WriteRecord{RID: updatedRID, Type: WUpdate, OldTuple: oldTuple, Table: table})

	tm.Abort(txn)

	assert.Equal(t, Aborted, txn.State())
	assert.True(t, table.deleted[insertedRID])
	assert.True(t, table.restored[deletedRID])
	assert.Same(t, oldTuple, table.updated[updatedRID])
}

func TestTransactionManagerAbortReleasesLocks(t *testing.T) {
	lm := NewLockManager(true)
	tm := NewTransactionManager(lm, nil)
	rid := types.NewRID(2, 0)

	txn := tm.Begin()
	assert.True(t, lm.LockShared(txn, rid))

	tm.Abort(txn)
	assert.Equal(t, Aborted, txn.State())

	other := tm.Begin()
	assert.True(t, lm.LockExclusive(other, rid))
}

func TestTransactionManagerAbortWaitsForAbortRecordToBeDurable(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	defer dm.ShutDown()
	lm := recovery.NewLogManager(dm)
	lm.RunFlushThread()
	defer lm.StopFlushThread()

	tm := NewTransactionManager(NewLockManager(true), lm)
	rid := types.NewRID(3, 0)

	txn := tm.Begin()
	assert.True(t, tm.lockManager.LockExclusive(txn, rid))

	tm.Abort(txn)

	assert.Equal(t, Aborted, txn.State())
	assert.GreaterOrEqual(t, lm.GetPersistentLSN(), txn.PrevLSN())
}

func TestTransactionManagerCommitWaitsForCommitRecordEvenWhenReadOnly(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	defer dm.ShutDown()
	lm := recovery.NewLogManager(dm)
	lm.RunFlushThread()
	defer lm.StopFlushThread()

	tm := NewTransactionManager(NewLockManager(true), lm)

	txn := tm.Begin()
	tm.Commit(txn)

	assert.Equal(t, Committed, txn.State())
	assert.GreaterOrEqual(t, lm.GetPersistentLSN(), txn.PrevLSN())
}

func TestTransactionManagerBlockAllTransactionsSerializesWithCheckpoint(t *testing.T) {
	tm := NewTransactionManager(NewLockManager(true), nil)

	txn := tm.Begin()
	tm.Commit(txn)

	tm.BlockAllTransactions()
	done := make(chan struct{})
	go func() {
		tm.Begin()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Begin proceeded while checkpoint held the global latch")
	case <-time.After(50 * time.Millisecond):
	}
	tm.ResumeTransactions()
	<-done
}
