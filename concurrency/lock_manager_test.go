package concurrency

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/types"
)

func TestLockManagerSharedLocksCoexist(t *testing.T) {
	lm := NewLockManager(true)
	rid := types.NewRID(1, 0)
	a := NewTransaction(1)
	b := NewTransaction(2)

	assert.True(t, lm.LockShared(a, rid))
	assert.True(t, lm.LockShared(b, rid))
	assert.True(t, a.IsSharedLocked(rid))
	assert.True(t, b.IsSharedLocked(rid))
}

func TestLockManagerExclusiveExcludesShared(t *testing.T) {
	lm := NewLockManager(true)
	rid := types.NewRID(1, 0)
	older := NewTransaction(1)
	younger := NewTransaction(2)

	assert.True(t, lm.LockExclusive(younger, rid))

	done := make(chan bool, 1)
	go func() { done <- lm.LockShared(older, rid) }()

	select {
	case <-done:
		t.Fatal("older transaction's shared lock granted while exclusive held")
	case <-time.After(50 * time.Millisecond):
	}

	younger.SetState(Committed)
	lm.Unlock(younger, rid)
	assert.True(t, <-done)
}

func TestLockManagerWaitDieAbortsYounger(t *testing.T) {
	lm := NewLockManager(true)
	rid := types.NewRID(1, 0)
	older := NewTransaction(1)
	younger := NewTransaction(2)

	assert.True(t, lm.LockExclusive(older, rid))
	assert.False(t, lm.LockExclusive(younger, rid))
	assert.Equal(t, Aborted, younger.State())
}

func TestLockManagerOlderWaitsForYounger(t *testing.T) {
	lm := NewLockManager(true)
	rid := types.NewRID(1, 0)
	younger := NewTransaction(2)
	older := NewTransaction(1)

	assert.True(t, lm.LockExclusive(younger, rid))

	var wg sync.WaitGroup
	wg.Add(1)
	granted := false
	go func() {
		defer wg.Done()
		granted = lm.LockExclusive(older, rid)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Growing, older.State())

	younger.SetState(Committed)
	lm.Unlock(younger, rid)
	wg.Wait()
	assert.True(t, granted)
}

func TestLockManagerUpgradeGrantsAfterSharedRelease(t *testing.T) {
	lm := NewLockManager(true)
	rid := types.NewRID(1, 0)
	owner := NewTransaction(1)
	reader := NewTransaction(2)

	assert.True(t, lm.LockShared(owner, rid))
	assert.True(t, lm.LockShared(reader, rid))

	var wg sync.WaitGroup
	wg.Add(1)
	upgraded := false
	go func() {
		defer wg.Done()
		upgraded = lm.LockUpgrade(owner, rid)
	}()

	time.Sleep(20 * time.Millisecond)
	reader.SetState(Committed)
	lm.Unlock(reader, rid)
	wg.Wait()

	assert.True(t, upgraded)
	assert.True(t, owner.IsExclusiveLocked(rid))
	assert.False(t, owner.IsSharedLocked(rid))
}

func TestLockManagerUpgradeInsertsBeforeLaterExclusiveWaiter(t *testing.T) {
	lm := NewLockManager(true)
	rid := types.NewRID(1, 0)
	owner := NewTransaction(5)
	older := NewTransaction(1)

	assert.True(t, lm.LockShared(owner, rid))

	var wg sync.WaitGroup
	wg.Add(1)
	olderGranted := false
	go func() {
		defer wg.Done()
		olderGranted = lm.LockExclusive(older, rid)
	}()
	time.Sleep(20 * time.Millisecond)

	// owner is still the lock's sole holder: its upgrade must jump ahead
	// of older's already-queued exclusive request and grant
	// immediately, not queue behind it (which would deadlock, since
	// older can't be granted until owner releases).
	assert.True(t, lm.LockUpgrade(owner, rid))
	assert.True(t, owner.IsExclusiveLocked(rid))

	owner.SetState(Committed)
	lm.Unlock(owner, rid)
	wg.Wait()
	assert.True(t, olderGranted)
}

func TestLockManagerStrict2PLForbidsEarlyUnlock(t *testing.T) {
	lm := NewLockManager(true)
	rid := types.NewRID(1, 0)
	txn := NewTransaction(1)

	assert.True(t, lm.LockExclusive(txn, rid))
	assert.False(t, lm.Unlock(txn, rid))
	assert.Equal(t, Aborted, txn.State())
}

func TestLockManagerNonStrictEntersShrinking(t *testing.T) {
	lm := NewLockManager(false)
	rid := types.NewRID(1, 0)
	txn := NewTransaction(1)

	assert.True(t, lm.LockExclusive(txn, rid))
	assert.True(t, lm.Unlock(txn, rid))
	assert.Equal(t, Shrinking, txn.State())
}
