package common

import deadlock "github.com/sasha-s/go-deadlock"

// ReaderWriterLatch is the page/structure latch used throughout the
// engine: short-term memory-access locking, distinct from the
// transaction-scoped row locks the lock manager hands out.
type ReaderWriterLatch interface {
	WLock()
	WUnlock()
	RLock()
	RUnlock()
}

// deadlockRWLatch backs every production latch with go-deadlock's
// RWMutex instead of sync.RWMutex, so a lock-ordering cycle introduced
// anywhere in the buffer pool, page table, or B+-tree descent surfaces as
// a logged goroutine dump instead of a silent hang.
type deadlockRWLatch struct {
	mu deadlock.RWMutex
}

func NewRWLatch() ReaderWriterLatch {
	return &deadlockRWLatch{}
}

func (l *deadlockRWLatch) WLock()   { l.mu.Lock() }
func (l *deadlockRWLatch) WUnlock() { l.mu.Unlock() }
func (l *deadlockRWLatch) RLock()   { l.mu.RLock() }
func (l *deadlockRWLatch) RUnlock() { l.mu.RUnlock() }
