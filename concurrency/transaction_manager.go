package concurrency

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/recovery"
	"github.com/latchdb/latchdb/types"
)

// durabilityPollInterval is how often Commit and Abort recheck the log
// manager's persistent LSN while waiting for their own record to reach
// disk. Neither forces a flush itself; the background flush thread (or a
// concurrent WakeupFlushThread call from the buffer pool) is what
// actually advances it.
const durabilityPollInterval = 10 * time.Millisecond

// TransactionManager hands out transaction ids, logs BEGIN/COMMIT/ABORT,
// drives undo on abort, and releases every lock a transaction held once
// it finishes. Every transaction holds the global transaction latch in
// shared mode from Begin until Commit or Abort, so BlockAllTransactions
// waits for in-flight transactions to finish and keeps new ones from
// beginning until ResumeTransactions.
type TransactionManager struct {
	mu          deadlock.Mutex
	nextTxnID   types.TxnID
	lockManager *LockManager
	logManager  *recovery.LogManager

	globalTxnLatch common.ReaderWriterLatch
}

func NewTransactionManager(lockManager *LockManager, logManager *recovery.LogManager) *TransactionManager {
	return &TransactionManager{
		lockManager:    lockManager,
		logManager:     logManager,
		globalTxnLatch: common.NewRWLatch(),
	}
}

// Begin starts a fresh transaction with the next txn id, takes the global
// transaction latch in shared mode until Commit or Abort, and logs its
// BEGIN record when logging is enabled.
func (tm *TransactionManager) Begin() *Transaction {
	tm.globalTxnLatch.RLock()

	tm.mu.Lock()
	tm.nextTxnID++
	txn := NewTransaction(tm.nextTxnID)
	tm.mu.Unlock()

	if tm.logManager != nil && tm.logManager.IsEnabledLogging() {
		rec := recovery.NewLogRecordTxn(txn.ID(), txn.PrevLSN(), recovery.Begin)
		txn.SetPrevLSN(tm.logManager.AppendLogRecord(rec))
	}
	return txn
}

// Commit drains txn's write set in reverse, applying every deferred
// delete (a MarkDelete the transaction never rolled back) so the tuple's
// space is reclaimed; inserts and updates already took effect in place
// and need nothing further. It then logs COMMIT, spins until that record
// is durable, and releases txn's locks.
func (tm *TransactionManager) Commit(txn *Transaction) {
	txn.SetState(Committed)

	writeSet := txn.WriteSet()
	for i := len(writeSet) - 1; i >= 0; i-- {
		rec := writeSet[i]
		if rec.Type == WDelete {
			rec.Table.ApplyDelete(rec.RID, txn)
		}
	}

	if tm.logManager != nil && tm.logManager.IsEnabledLogging() {
		rec := recovery.NewLogRecordTxn(txn.ID(), txn.PrevLSN(), recovery.Commit)
		txn.SetPrevLSN(tm.logManager.AppendLogRecord(rec))
		tm.awaitDurable(txn.PrevLSN())
	}

	tm.lockManager.UnlockAll(txn, txn.LockSet())
	tm.globalTxnLatch.RUnlock()
}

// Abort undoes every write in txn's undo set, newest first, logs ABORT,
// spins until that record is durable, and releases txn's locks.
func (tm *TransactionManager) Abort(txn *Transaction) {
	txn.SetState(Aborted)

	writeSet := txn.WriteSet()
	for i := len(writeSet) - 1; i >= 0; i-- {
		rec := writeSet[i]
		switch rec.Type {
		case WInsert:
			rec.Table.ApplyDelete(rec.RID, txn)
		case WDelete:
			rec.Table.RollbackDelete(rec.RID, txn)
		case WUpdate:
			rec.Table.UpdateTupleInPlace(rec.OldTuple, rec.RID, txn)
		}
	}

	if tm.logManager != nil && tm.logManager.IsEnabledLogging() {
		log := recovery.NewLogRecordTxn(txn.ID(), txn.PrevLSN(), recovery.Abort)
		txn.SetPrevLSN(tm.logManager.AppendLogRecord(log))
		tm.awaitDurable(txn.PrevLSN())
	}

	tm.lockManager.UnlockAll(txn, txn.LockSet())
	tm.globalTxnLatch.RUnlock()
}

// awaitDurable spins until lsn is on disk. It never forces a flush
// itself: it relies entirely on the background flush thread's cadence
// or a concurrent WakeupFlushThread call from the buffer pool to
// eventually advance the log manager's persistent LSN.
func (tm *TransactionManager) awaitDurable(lsn types.LSN) {
	for lsn > tm.logManager.GetPersistentLSN() {
		time.Sleep(durabilityPollInterval)
	}
}

// BlockAllTransactions and ResumeTransactions bracket a checkpoint: no
// transaction can begin, commit, or abort while the global latch is held
// exclusively.
func (tm *TransactionManager) BlockAllTransactions() { tm.globalTxnLatch.WLock() }
func (tm *TransactionManager) ResumeTransactions()   { tm.globalTxnLatch.WUnlock() }
