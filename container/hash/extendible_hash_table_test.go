package hash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fixedHash lets a test pin exactly which low bits a key hashes to,
// instead of depending on murmur3's actual distribution.
func fixedHash(bits map[string]uint64) Hasher[string] {
	return func(key string) uint64 { return bits[key] }
}

func TestExtendibleHashTableSplitsOnThirdInsertWithBucketSizeTwo(t *testing.T) {
	ht := New[string, int](2, fixedHash(map[string]uint64{
		"a": 0,
		"b": 0,
		"c": 1,
	}))

	ht.Insert("a", 1)
	ht.Insert("b", 2)
	assert.EqualValues(t, 0, ht.GlobalDepth())
	assert.Equal(t, 1, ht.NumBuckets())

	ht.Insert("c", 3)
	assert.EqualValues(t, 1, ht.GlobalDepth())
	assert.Equal(t, 2, ht.NumBuckets())

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		v, ok := ht.Find(key)
		assert.True(t, ok, "key %q", key)
		assert.Equal(t, want, v)
	}
}

func TestExtendibleHashTableFindMissingKey(t *testing.T) {
	ht := New[string, int](2, fixedHash(nil))
	_, ok := ht.Find("missing")
	assert.False(t, ok)
}

func TestExtendibleHashTableInsertOverwritesExistingKey(t *testing.T) {
	ht := New[string, int](4, fixedHash(map[string]uint64{"k": 0}))
	ht.Insert("k", 1)
	ht.Insert("k", 2)
	assert.Equal(t, 1, ht.Size())
	v, ok := ht.Find("k")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestExtendibleHashTableRemove(t *testing.T) {
	ht := New[string, int](4, fixedHash(map[string]uint64{"k": 0}))
	ht.Insert("k", 1)
	assert.True(t, ht.Remove("k"))
	assert.False(t, ht.Remove("k"))
	_, ok := ht.Find("k")
	assert.False(t, ok)
}

func TestExtendibleHashTableOverflowStopsSplittingIdenticalHashes(t *testing.T) {
	bits := map[string]uint64{"a": 7, "b": 7, "c": 7}
	ht := New[string, int](2, fixedHash(bits))

	done := make(chan struct{})
	go func() {
		ht.Insert("a", 1)
		ht.Insert("b", 2)
		ht.Insert("c", 3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Insert deadlocked splitting a bucket whose keys can never separate")
	}

	assert.Equal(t, 3, ht.Size())
	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		v, ok := ht.Find(key)
		assert.True(t, ok, "key %q", key)
		assert.Equal(t, want, v)
	}
}

func TestExtendibleHashTableHashPageIDIsDeterministic(t *testing.T) {
	assert.Equal(t, HashPageID(7), HashPageID(7))
	assert.NotEqual(t, HashPageID(7), HashPageID(8))
}
