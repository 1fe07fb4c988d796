package buffer

import (
	"container/list"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/latchdb/latchdb/types"
)

// LRUReplacer tracks which unpinned frames are eligible for eviction and
// picks the least recently used one as victim. A frame enters the
// replacer via Unpin and leaves it via Pin or Victim.
type LRUReplacer struct {
	mu     deadlock.Mutex
	list   *list.List
	lookup map[types.FrameID]*list.Element
}

func NewLRUReplacer() *LRUReplacer {
	return &LRUReplacer{
		list:   list.New(),
		lookup: make(map[types.FrameID]*list.Element),
	}
}

// Victim evicts and returns the least recently used tracked frame.
func (r *LRUReplacer) Victim() (types.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	front := r.list.Front()
	if front == nil {
		return 0, false
	}
	id := front.Value.(types.FrameID)
	r.list.Remove(front)
	delete(r.lookup, id)
	return id, true
}

// Unpin marks id as eligible for eviction, most recently used. A frame
// already tracked moves back to the most-recently-used end instead of
// staying at its old position, so a frame pinned and unpinned again
// doesn't get victimized ahead of frames nobody has touched since.
func (r *LRUReplacer) Unpin(id types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if elem, ok := r.lookup[id]; ok {
		r.list.MoveToBack(elem)
		return
	}
	r.lookup[id] = r.list.PushBack(id)
}

// Pin removes id from eviction tracking; it should not be victimized while
// pinned.
func (r *LRUReplacer) Pin(id types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	elem, ok := r.lookup[id]
	if !ok {
		return
	}
	r.list.Remove(elem)
	delete(r.lookup, id)
}

// Size returns the number of frames currently eligible for eviction.
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list.Len()
}
