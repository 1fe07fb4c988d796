package concurrency

import (
	"sync"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/latchdb/latchdb/types"
)

// LockMode is the mode a lock request asks for.
type LockMode int32

const (
	LockShared LockMode = iota
	LockExclusive
)

type lockRequest struct {
	txnID   types.TxnID
	mode    LockMode
	granted bool
}

// waiters is the per-RID queue: requests in arrival order plus the
// wait-die bookkeeping (how many exclusive requests are queued, and the
// oldest transaction id waiting on this RID).
type waiters struct {
	requests       []*lockRequest
	exclusiveCount int
	oldest         types.TxnID
}

// LockManager hands out shared/exclusive locks on tuple RIDs under
// wait-die: a transaction requesting a lock held by a younger transaction
// waits, one requested by an older transaction dies (aborts) rather than
// risk a deadlock cycle. strict2PL holds every lock until commit or
// abort; without it, a transaction may release locks once it enters its
// shrinking phase.
type LockManager struct {
	mu       deadlock.Mutex
	cond     *sync.Cond
	strict2PL bool
	lockTable map[types.RID]*waiters
}

func NewLockManager(strict2PL bool) *LockManager {
	lm := &LockManager{
		strict2PL: strict2PL,
		lockTable: make(map[types.RID]*waiters),
	}
	lm.cond = sync.NewCond(&lm.mu)
	return lm
}

// LockShared acquires rid in shared mode under wait-die: it returns false
// if txn is already aborted, aborts txn and returns false if an exclusive
// request is queued on rid and txn is younger than the oldest transaction
// there, and otherwise blocks until granted or until txn is aborted.
func (lm *LockManager) LockShared(txn *Transaction, rid types.RID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if txn.State() == Aborted {
		return false
	}

	w, ok := lm.lockTable[rid]
	if !ok {
		w = &waiters{oldest: txn.ID()}
		lm.lockTable[rid] = w
	} else if w.exclusiveCount != 0 && txn.ID() > w.oldest {
		txn.SetState(Aborted)
		return false
	} else if txn.ID() < w.oldest {
		w.oldest = txn.ID()
	}
	req := &lockRequest{txnID: txn.ID(), mode: LockShared}
	w.requests = append(w.requests, req)

	for !lm.canGrantShared(w, req) {
		lm.cond.Wait()
		if txn.State() == Aborted {
			lm.removeRequest(w, req)
			lm.cond.Broadcast()
			return false
		}
	}
	req.granted = true
	txn.addSharedLock(rid)
	lm.cond.Broadcast()
	return true
}

// canGrantShared holds once every request ahead of req in the same queue
// is either this same transaction or a granted shared lock.
func (lm *LockManager) canGrantShared(w *waiters, req *lockRequest) bool {
	for _, r := range w.requests {
		if r == req {
			return true
		}
		if r.mode != LockShared || !r.granted {
			return false
		}
	}
	return false
}

// LockExclusive acquires rid in exclusive mode. Only the head of the
// queue may hold an exclusive lock, so every other waiter blocks behind
// it regardless of mode.
func (lm *LockManager) LockExclusive(txn *Transaction, rid types.RID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if txn.State() == Aborted {
		return false
	}

	w, ok := lm.lockTable[rid]
	if !ok {
		w = &waiters{oldest: txn.ID()}
		lm.lockTable[rid] = w
	} else if txn.ID() > w.oldest {
		txn.SetState(Aborted)
		return false
	} else {
		w.oldest = txn.ID()
	}
	req := &lockRequest{txnID: txn.ID(), mode: LockExclusive}
	w.requests = append(w.requests, req)
	w.exclusiveCount++

	for len(w.requests) == 0 || w.requests[0] != req {
		lm.cond.Wait()
		if txn.State() == Aborted {
			w.exclusiveCount--
			lm.removeRequest(w, req)
			lm.cond.Broadcast()
			return false
		}
	}
	req.granted = true
	txn.addExclusiveLock(rid)
	return true
}

// LockUpgrade promotes txn's shared lock on rid to exclusive: it drops
// txn's shared request and re-queues it as a fresh exclusive request
// inserted just before the first exclusive request still queued at or
// after its own position (appended to the end if there is none), so it
// jumps ahead of any later-arrived shared readers without cutting in
// front of an exclusive waiter that arrived before it.
func (lm *LockManager) LockUpgrade(txn *Transaction, rid types.RID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if txn.State() == Aborted {
		return false
	}
	w, ok := lm.lockTable[rid]
	if !ok {
		return false
	}

	srcIndex := -1
	for i, r := range w.requests {
		if r.txnID == txn.ID() {
			srcIndex = i
			break
		}
	}
	if srcIndex == -1 {
		return false
	}

	tgt := len(w.requests)
	for i := srcIndex; i < len(w.requests); i++ {
		if w.requests[i].mode == LockExclusive {
			tgt = i
			break
		}
	}

	for i := 0; i < tgt; i++ {
		if i != srcIndex && w.requests[i].txnID < txn.ID() {
			txn.SetState(Aborted)
			return false
		}
	}
	if txn.ID() < w.oldest {
		w.oldest = txn.ID()
	}

	req := &lockRequest{txnID: txn.ID(), mode: LockExclusive}
	newRequests := make([]*lockRequest, 0, len(w.requests))
	for i, r := range w.requests {
		if i == srcIndex {
			continue
		}
		if i == tgt {
			newRequests = append(newRequests, req)
		}
		newRequests = append(newRequests, r)
	}
	if tgt == len(w.requests) {
		newRequests = append(newRequests, req)
	}
	w.requests = newRequests
	w.exclusiveCount++

	for len(w.requests) == 0 || w.requests[0] != req {
		lm.cond.Wait()
		if txn.State() == Aborted {
			w.exclusiveCount--
			lm.removeRequest(w, req)
			lm.cond.Broadcast()
			return false
		}
	}
	req.granted = true
	txn.removeSharedLock(rid)
	txn.addExclusiveLock(rid)
	return true
}

// Unlock releases txn's lock on rid. Under strict 2PL this is only legal
// once the transaction has committed or aborted; under plain 2PL it
// drops the transaction into its shrinking phase.
func (lm *LockManager) Unlock(txn *Transaction, rid types.RID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.unlockLocked(txn, rid)
}

func (lm *LockManager) unlockLocked(txn *Transaction, rid types.RID) bool {
	if lm.strict2PL {
		if txn.State() != Committed && txn.State() != Aborted {
			txn.SetState(Aborted)
			return false
		}
	} else if txn.State() == Growing {
		txn.SetState(Shrinking)
	}

	w, ok := lm.lockTable[rid]
	if !ok {
		return false
	}
	for i, r := range w.requests {
		if r.txnID != txn.ID() {
			continue
		}
		first := i == 0
		exclusive := r.mode == LockExclusive
		if exclusive {
			w.exclusiveCount--
		}
		w.requests = append(w.requests[:i], w.requests[i+1:]...)
		if first || exclusive {
			lm.cond.Broadcast()
		}
		break
	}
	txn.removeSharedLock(rid)
	txn.removeExclusiveLock(rid)
	return true
}

// UnlockAll releases every rid in rids, used by TransactionManager at
// commit and abort time.
func (lm *LockManager) UnlockAll(txn *Transaction, rids []types.RID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for _, rid := range rids {
		lm.unlockLocked(txn, rid)
	}
}

func (lm *LockManager) removeRequest(w *waiters, req *lockRequest) {
	for i, r := range w.requests {
		if r == req {
			w.requests = append(w.requests[:i], w.requests[i+1:]...)
			return
		}
	}
}
