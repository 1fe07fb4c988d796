package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/types"
)

func TestLRUReplacerVictimIsLeastRecentlyUnpinned(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	assert.Equal(t, 3, r.Size())

	id, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, types.FrameID(1), id)
	assert.Equal(t, 2, r.Size())
}

func TestLRUReplacerPinRemovesFromTracking(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)
	assert.Equal(t, 1, r.Size())

	id, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, types.FrameID(2), id)
}

func TestLRUReplacerUnpinIsIdempotent(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(1)
	assert.Equal(t, 1, r.Size())
}

func TestLRUReplacerVictimOnEmptyReplacer(t *testing.T) {
	r := NewLRUReplacer()
	_, ok := r.Victim()
	assert.False(t, ok)
}
