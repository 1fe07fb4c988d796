// Package concurrency provides the tuple-level lock manager and the
// transaction/transaction-manager pair that drive strict two-phase
// locking and wait-die deadlock prevention over the table heap.
package concurrency

import (
	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

// TransactionState follows strict 2PL's growing/shrinking split plus the
// two terminal states:
//
//	GROWING -> SHRINKING -> COMMITTED
//	   |___________|____________________> ABORTED
type TransactionState int32

const (
	Growing TransactionState = iota
	Shrinking
	Committed
	Aborted
)

// WType names what a WriteRecord undoes on abort.
type WType int32

const (
	WInsert WType = iota
	WDelete
	WUpdate
)

// UndoableTable is the slice of TableHeap's API that Abort needs to reverse
// a write. Declared here, rather than importing package storage/table,
// because table_heap.go needs *Transaction for its own lock/log-aware
// methods: TableHeap satisfies this interface structurally instead.
type UndoableTable interface {
	ApplyDelete(rid types.RID, txn *Transaction) error
	RollbackDelete(rid types.RID, txn *Transaction) error
	UpdateTupleInPlace(oldTuple *tuple.Tuple, rid types.RID, txn *Transaction) error
}

// WriteRecord is one entry of a transaction's undo set: enough to reverse
// a single table heap write if the transaction aborts. OldTuple is only
// populated for WUpdate.
type WriteRecord struct {
	RID      types.RID
	Type     WType
	OldTuple *tuple.Tuple
	Table    UndoableTable
}

// Transaction tracks one transaction's locks, undo log, and WAL position.
type Transaction struct {
	id      types.TxnID
	state   TransactionState
	prevLSN types.LSN

	writeSet []WriteRecord

	sharedLockSet    map[types.RID]bool
	exclusiveLockSet map[types.RID]bool
}

func NewTransaction(id types.TxnID) *Transaction {
	return &Transaction{
		id:               id,
		state:            Growing,
		prevLSN:          types.InvalidLSN,
		sharedLockSet:    make(map[types.RID]bool),
		exclusiveLockSet: make(map[types.RID]bool),
	}
}

func (txn *Transaction) ID() types.TxnID { return txn.id }

func (txn *Transaction) State() TransactionState { return txn.state }
func (txn *Transaction) SetState(state TransactionState) { txn.state = state }

func (txn *Transaction) PrevLSN() types.LSN { return txn.prevLSN }
func (txn *Transaction) SetPrevLSN(lsn types.LSN) { txn.prevLSN = lsn }

func (txn *Transaction) WriteSet() []WriteRecord { return txn.writeSet }

func (txn *Transaction) AppendWriteRecord(rec WriteRecord) {
	txn.writeSet = append(txn.writeSet, rec)
}

func (txn *Transaction) IsSharedLocked(rid types.RID) bool    { return txn.sharedLockSet[rid] }
func (txn *Transaction) IsExclusiveLocked(rid types.RID) bool { return txn.exclusiveLockSet[rid] }

func (txn *Transaction) addSharedLock(rid types.RID)      { txn.sharedLockSet[rid] = true }
func (txn *Transaction) addExclusiveLock(rid types.RID)   { txn.exclusiveLockSet[rid] = true }
func (txn *Transaction) removeSharedLock(rid types.RID)   { delete(txn.sharedLockSet, rid) }
func (txn *Transaction) removeExclusiveLock(rid types.RID) { delete(txn.exclusiveLockSet, rid) }

// LockSet returns every rid this transaction currently holds, shared or
// exclusive, for TransactionManager to release on commit/abort.
func (txn *Transaction) LockSet() []types.RID {
	rids := make([]types.RID, 0, len(txn.sharedLockSet)+len(txn.exclusiveLockSet))
	for rid := range txn.sharedLockSet {
		rids = append(rids, rid)
	}
	for rid := range txn.exclusiveLockSet {
		rids = append(rids, rid)
	}
	return rids
}
