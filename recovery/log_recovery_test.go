package recovery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/buffer"
	"github.com/latchdb/latchdb/recovery"
	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

// TestLogRecoveryRedoReappliesUnflushedWrite simulates a crash where a
// transaction committed but its page never made it to disk: a fresh
// buffer pool manager over the same disk should see the write only after
// Redo replays the log.
func TestLogRecoveryRedoReappliesUnflushedWrite(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	defer dm.ShutDown()

	bpm := buffer.NewBufferPoolManager(10, dm, nil)
	p, err := bpm.NewPage()
	assert.NoError(t, err)
	pageID := p.GetPageID()
	page.AsTablePage(p).Init(pageID, types.InvalidPageID)
	assert.NoError(t, bpm.FlushPage(pageID))
	assert.NoError(t, bpm.UnpinPage(pageID, false))

	lm := recovery.NewLogManager(dm)

	txnID := types.TxnID(1)
	prevLSN := types.InvalidLSN
	prevLSN = lm.AppendLogRecord(recovery.NewLogRecordTxn(txnID, prevLSN, recovery.Begin))

	tup := tuple.NewTuple(types.RID{}, []byte("hello"))

	p, err = bpm.FetchPage(pageID)
	assert.NoError(t, err)
	tp := page.AsTablePage(p)
	bpm.WLatchPage(pageID)
	slot, err := tp.InsertTuple(tup)
	assert.NoError(t, err)
	rid := types.NewRID(pageID, slot)
	insertLSN := lm.AppendLogRecord(recovery.NewLogRecordWrite(txnID, prevLSN, recovery.Insert, rid, tup))
	prevLSN = insertLSN
	tp.SetLSN(insertLSN)
	bpm.WUnlatchPage(pageID)
	assert.NoError(t, bpm.UnpinPage(pageID, true))

	lm.AppendLogRecord(recovery.NewLogRecordTxn(txnID, prevLSN, recovery.Commit))
	lm.Flush()

	// A fresh buffer pool manager reading the same disk sees only the
	// pristine page: the insert above was never flushed.
	bpm2 := buffer.NewBufferPoolManager(10, dm, nil)
	stale, err := bpm2.FetchPage(pageID)
	assert.NoError(t, err)
	_, err = page.AsTablePage(stale).GetTupleAtSlot(slot)
	assert.Error(t, err)
	assert.NoError(t, bpm2.UnpinPage(pageID, false))

	lr := recovery.NewLogRecovery(dm, bpm2)
	lr.Redo()
	lr.Undo()

	recovered, err := bpm2.FetchPage(pageID)
	assert.NoError(t, err)
	got, err := page.AsTablePage(recovered).GetTupleAtSlot(slot)
	assert.NoError(t, err)
	assert.Equal(t, tup.Data(), got.Data())
	assert.NoError(t, bpm2.UnpinPage(pageID, false))
}

// TestLogRecoveryUndoesUncommittedTransaction checks that a write whose
// transaction never reached COMMIT or ABORT is rolled back by Undo after
// Redo has reapplied it.
func TestLogRecoveryUndoesUncommittedTransaction(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	defer dm.ShutDown()

	bpm := buffer.NewBufferPoolManager(10, dm, nil)
	p, err := bpm.NewPage()
	assert.NoError(t, err)
	pageID := p.GetPageID()
	page.AsTablePage(p).Init(pageID, types.InvalidPageID)
	assert.NoError(t, bpm.FlushPage(pageID))
	assert.NoError(t, bpm.UnpinPage(pageID, false))

	lm := recovery.NewLogManager(dm)

	txnID := types.TxnID(7)
	prevLSN := lm.AppendLogRecord(recovery.NewLogRecordTxn(txnID, types.InvalidLSN, recovery.Begin))

	tup := tuple.NewTuple(types.RID{}, []byte("uncommitted"))
	p, err = bpm.FetchPage(pageID)
	assert.NoError(t, err)
	tp := page.AsTablePage(p)
	bpm.WLatchPage(pageID)
	slot, err := tp.InsertTuple(tup)
	assert.NoError(t, err)
	rid := types.NewRID(pageID, slot)
	insertLSN := lm.AppendLogRecord(recovery.NewLogRecordWrite(txnID, prevLSN, recovery.Insert, rid, tup))
	tp.SetLSN(insertLSN)
	bpm.WUnlatchPage(pageID)
	assert.NoError(t, bpm.UnpinPage(pageID, true))
	// no Commit or Abort record: this transaction "crashed" mid-flight.
	lm.Flush()

	bpm2 := buffer.NewBufferPoolManager(10, dm, nil)
	lr := recovery.NewLogRecovery(dm, bpm2)
	lr.Redo()
	lr.Undo()

	recovered, err := bpm2.FetchPage(pageID)
	assert.NoError(t, err)
	_, err = page.AsTablePage(recovered).GetTupleAtSlot(slot)
	assert.Error(t, err)
	assert.NoError(t, bpm2.UnpinPage(pageID, false))
}
