package index

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/latchdb/latchdb/buffer"
	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// crabPath is the set of ancestor pages a write operation is still
// holding write-latched and pinned because none of them has yet been
// proven safe for the operation.
type crabPath struct {
	ids   []types.PageID
	pages []*page.Page
}

// BPlusTreeIndex is a disk-backed B+-tree over the buffer pool, keyed by
// a fixed-width generic key and valued by row id at its leaves. Keys are
// unique; the comparator and codec are supplied by the caller, since this
// package never looks inside K beyond them.
type BPlusTreeIndex[K any] struct {
	bpm             *buffer.BufferPoolManager
	name            string
	cmp             Comparator[K]
	codec           KeyCodec[K]
	leafMaxSize     int
	internalMaxSize int

	// rootMu serializes modifying descents against root-identity changes:
	// a writer holds it from the start of Insert/Remove until it has
	// proven the root will not change (crabbed down past a safe node),
	// at which point it releases rootMu and continues holding only page
	// latches. Reads never take it.
	rootMu deadlock.Mutex

	rootIDMu   deadlock.RWMutex
	rootPageID types.PageID
}

// NewBPlusTreeIndex opens (or, if name is unregistered, prepares to
// create) the named index over bpm. leafMaxSize and internalMaxSize
// bound node occupancy; pass 0 for either to derive it from page size
// and the codec's key width.
func NewBPlusTreeIndex[K any](bpm *buffer.BufferPoolManager, name string, cmp Comparator[K], codec KeyCodec[K], leafMaxSize, internalMaxSize int) *BPlusTreeIndex[K] {
	// The physical layout leaves room for one entry beyond MaxSize: an
	// insert into an already-full node is applied before the resulting
	// overflow is detected and split away, so the page must be able to
	// hold max_size+1 entries transiently.
	if leafMaxSize <= 0 {
		leafMaxSize = (common.PageSize-leafHeaderSize)/(codec.Size()+types.SizeOfRID) - 1
	}
	if internalMaxSize <= 0 {
		internalMaxSize = (common.PageSize-commonHeaderSize)/(codec.Size()+4) - 1
	}
	t := &BPlusTreeIndex[K]{
		bpm:             bpm,
		name:            name,
		cmp:             cmp,
		codec:           codec,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      types.InvalidPageID,
	}
	if hp, err := bpm.FetchPage(types.PageID(common.HeaderPageID)); err == nil {
		if id, err := page.AsHeaderPage(hp).GetRootID(name); err == nil {
			t.rootPageID = id
		}
		bpm.UnpinPage(types.PageID(common.HeaderPageID), false)
	}
	return t
}

func (t *BPlusTreeIndex[K]) getRootPageID() types.PageID {
	t.rootIDMu.RLock()
	defer t.rootIDMu.RUnlock()
	return t.rootPageID
}

func (t *BPlusTreeIndex[K]) setRootPageID(id types.PageID) {
	t.rootIDMu.Lock()
	t.rootPageID = id
	t.rootIDMu.Unlock()
	t.persistRoot(id)
}

// persistRoot mirrors a root-identity change into the header page's
// name -> root-id directory, so a restart can find this index again.
func (t *BPlusTreeIndex[K]) persistRoot(id types.PageID) {
	hp, err := t.bpm.FetchPage(types.PageID(common.HeaderPageID))
	if err != nil {
		return
	}
	h := page.AsHeaderPage(hp)
	if h.UpdateRecord(t.name, id) != nil {
		h.InsertRecord(t.name, id)
	}
	t.bpm.UnpinPage(types.PageID(common.HeaderPageID), true)
}

// IsEmpty reports whether the index currently has no root page at all.
func (t *BPlusTreeIndex[K]) IsEmpty() bool { return !t.getRootPageID().IsValid() }

// GetValue looks up key without mutating the tree: read-only crabbing,
// releasing each ancestor's latch as soon as its child is latched.
func (t *BPlusTreeIndex[K]) GetValue(key K) (types.RID, bool) {
	rootID := t.getRootPageID()
	if !rootID.IsValid() {
		return types.RID{}, false
	}

	pid := rootID
	cur, err := t.bpm.FetchPage(pid)
	if err != nil {
		return types.RID{}, false
	}
	t.bpm.RLatchPage(pid)

	for !IsLeafPage(cur) {
		in := AsInternalPage[K](cur, t.codec)
		childID := in.Lookup(key, t.cmp)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			t.bpm.RUnlatchPage(pid)
			t.bpm.UnpinPage(pid, false)
			return types.RID{}, false
		}
		t.bpm.RLatchPage(childID)
		t.bpm.RUnlatchPage(pid)
		t.bpm.UnpinPage(pid, false)
		pid, cur = childID, child
	}

	leaf := AsLeafPage[K](cur, t.codec)
	rid, ok := leaf.Lookup(key, t.cmp)
	t.bpm.RUnlatchPage(pid)
	t.bpm.UnpinPage(pid, false)
	return rid, ok
}

// Insert adds key/value, splitting nodes up the tree as needed. Returns
// false, with no side effect, if key is already present.
func (t *BPlusTreeIndex[K]) Insert(key K, value types.RID) (bool, error) {
	t.rootMu.Lock()
	rootHeld := true
	defer func() {
		if rootHeld {
			t.rootMu.Unlock()
		}
	}()

	if !t.getRootPageID().IsValid() {
		if err := t.startNewTree(key, value); err != nil {
			return false, err
		}
		return true, nil
	}

	leafID, leafPage, path, err := t.findLeafForWrite(key, t.isSafeForInsert, &rootHeld)
	if err != nil {
		return false, err
	}
	leaf := AsLeafPage[K](leafPage, t.codec)

	newSize := leaf.Insert(key, value, t.cmp)
	if newSize == -1 {
		t.bpm.WUnlatchPage(leafID)
		t.bpm.UnpinPage(leafID, false)
		t.releasePath(path, &rootHeld)
		return false, nil
	}
	if newSize <= leaf.GetMaxSize() {
		t.bpm.WUnlatchPage(leafID)
		t.bpm.UnpinPage(leafID, true)
		t.releasePath(path, &rootHeld)
		return true, nil
	}

	siblingID, sibling, err := t.newLeafPage(leaf.GetParentPageID())
	if err != nil {
		return false, err
	}
	leaf.MoveHalfTo(sibling)
	sibling.SetNextPageID(leaf.GetNextPageID())
	leaf.SetNextPageID(siblingID)
	upKey := sibling.KeyAt(0)

	t.bpm.WUnlatchPage(leafID)
	t.bpm.UnpinPage(leafID, true)
	t.bpm.UnpinPage(siblingID, true)

	if err := t.insertIntoParent(leafID, upKey, siblingID, path, &rootHeld); err != nil {
		return false, err
	}
	return true, nil
}

func (t *BPlusTreeIndex[K]) startNewTree(key K, value types.RID) error {
	leafID, leaf, err := t.newLeafPage(types.InvalidPageID)
	if err != nil {
		return err
	}
	leaf.Insert(key, value, t.cmp)
	t.bpm.UnpinPage(leafID, true)
	t.setRootPageID(leafID)
	return nil
}

// insertIntoParent threads a freshly split child's separator key up the
// tree, consuming path from its tail (the immediate parent) toward the
// root. An empty path means oldID was the root: a new root is allocated.
func (t *BPlusTreeIndex[K]) insertIntoParent(oldID types.PageID, key K, newID types.PageID, path *crabPath, rootHeld *bool) error {
	if len(path.ids) == 0 {
		newRootID, newRoot, err := t.newInternalPage(types.InvalidPageID)
		if err != nil {
			return err
		}
		newRoot.PopulateNewRoot(oldID, key, newID)
		t.bpm.UnpinPage(newRootID, true)
		t.reparent(oldID, newRootID)
		t.reparent(newID, newRootID)
		t.setRootPageID(newRootID)
		if *rootHeld {
			*rootHeld = false
			t.rootMu.Unlock()
		}
		return nil
	}

	n := len(path.ids)
	parentID := path.ids[n-1]
	parent := AsInternalPage[K](path.pages[n-1], t.codec)
	path.ids = path.ids[:n-1]
	path.pages = path.pages[:n-1]

	newSize := parent.InsertNodeAfter(oldID, key, newID)
	t.reparent(newID, parentID)

	if newSize <= parent.GetMaxSize() {
		t.bpm.WUnlatchPage(parentID)
		t.bpm.UnpinPage(parentID, true)
		t.releasePath(path, rootHeld)
		return nil
	}

	siblingID, sibling, err := t.newInternalPage(parent.GetParentPageID())
	if err != nil {
		return err
	}
	parent.MoveHalfTo(sibling)
	upKey := sibling.KeyAt(0)
	t.reparentAllChildrenOf(sibling, siblingID)

	t.bpm.WUnlatchPage(parentID)
	t.bpm.UnpinPage(parentID, true)
	t.bpm.UnpinPage(siblingID, true)

	return t.insertIntoParent(parentID, upKey, siblingID, path, rootHeld)
}

// Remove deletes key, coalescing or redistributing underflowed nodes up
// the tree. Returns false if key was not present.
func (t *BPlusTreeIndex[K]) Remove(key K) bool {
	t.rootMu.Lock()
	rootHeld := true
	defer func() {
		if rootHeld {
			t.rootMu.Unlock()
		}
	}()

	if !t.getRootPageID().IsValid() {
		return false
	}

	leafID, leafPage, path, err := t.findLeafForWrite(key, t.isSafeForDelete, &rootHeld)
	if err != nil {
		return false
	}
	leaf := AsLeafPage[K](leafPage, t.codec)

	_, found := leaf.RemoveAndDeleteRecord(key, t.cmp)
	if !found {
		t.bpm.WUnlatchPage(leafID)
		t.bpm.UnpinPage(leafID, false)
		t.releasePath(path, &rootHeld)
		return false
	}

	t.handleLeafUnderflow(leafID, leaf, path, &rootHeld)
	return true
}

func (t *BPlusTreeIndex[K]) handleLeafUnderflow(leafID types.PageID, leaf *LeafPage[K], path *crabPath, rootHeld *bool) {
	if len(path.ids) == 0 {
		empty := leaf.GetSize() == 0
		t.bpm.WUnlatchPage(leafID)
		t.bpm.UnpinPage(leafID, true)
		if empty {
			t.setRootPageID(types.InvalidPageID)
			t.bpm.DeletePage(leafID)
		}
		if *rootHeld {
			*rootHeld = false
			t.rootMu.Unlock()
		}
		return
	}

	if !leaf.IsUnderflow() {
		t.bpm.WUnlatchPage(leafID)
		t.bpm.UnpinPage(leafID, true)
		t.releasePath(path, rootHeld)
		return
	}

	n := len(path.ids)
	parentID := path.ids[n-1]
	parent := AsInternalPage[K](path.pages[n-1], t.codec)
	idx := parent.ValueIndex(leafID)

	var siblingID types.PageID
	var useLeft bool
	if idx > 0 {
		siblingID, useLeft = parent.ValueAt(idx-1), true
	} else {
		siblingID, useLeft = parent.ValueAt(idx+1), false
	}
	siblingPage, err := t.bpm.FetchPage(siblingID)
	if err != nil {
		return
	}
	t.bpm.WLatchPage(siblingID)
	sibling := AsLeafPage[K](siblingPage, t.codec)

	if sibling.GetSize()+leaf.GetSize() > leaf.GetMaxSize() {
		if useLeft {
			sibling.MoveLastToFrontOf(leaf)
			parent.SetKeyAt(idx, leaf.KeyAt(0))
		} else {
			sibling.MoveFirstToEndOf(leaf)
			parent.SetKeyAt(idx+1, sibling.KeyAt(0))
		}
		t.bpm.WUnlatchPage(siblingID)
		t.bpm.UnpinPage(siblingID, true)
		t.bpm.WUnlatchPage(leafID)
		t.bpm.UnpinPage(leafID, true)
		t.bpm.WUnlatchPage(parentID)
		t.bpm.UnpinPage(parentID, true)
		path.ids, path.pages = path.ids[:n-1], path.pages[:n-1]
		t.releasePath(path, rootHeld)
		return
	}

	if useLeft {
		leaf.MoveAllTo(sibling)
		t.bpm.WUnlatchPage(leafID)
		t.bpm.UnpinPage(leafID, true)
		t.bpm.DeletePage(leafID)
		t.bpm.WUnlatchPage(siblingID)
		t.bpm.UnpinPage(siblingID, true)
		parent.Remove(idx)
	} else {
		sibling.MoveAllTo(leaf)
		t.bpm.WUnlatchPage(siblingID)
		t.bpm.UnpinPage(siblingID, true)
		t.bpm.DeletePage(siblingID)
		t.bpm.WUnlatchPage(leafID)
		t.bpm.UnpinPage(leafID, true)
		parent.Remove(idx + 1)
	}

	path.ids, path.pages = path.ids[:n-1], path.pages[:n-1]
	t.handleInternalUnderflow(parentID, parent, path, rootHeld)
}

func (t *BPlusTreeIndex[K]) handleInternalUnderflow(nodeID types.PageID, node *InternalPage[K], path *crabPath, rootHeld *bool) {
	if len(path.ids) == 0 {
		if node.GetSize() == 1 {
			onlyChild := node.RemoveAndReturnOnlyChild()
			t.bpm.WUnlatchPage(nodeID)
			t.bpm.UnpinPage(nodeID, true)
			t.bpm.DeletePage(nodeID)
			t.reparent(onlyChild, types.InvalidPageID)
			t.setRootPageID(onlyChild)
		} else {
			t.bpm.WUnlatchPage(nodeID)
			t.bpm.UnpinPage(nodeID, true)
		}
		if *rootHeld {
			*rootHeld = false
			t.rootMu.Unlock()
		}
		return
	}

	min := (node.GetMaxSize() + 1) / 2
	if node.GetSize() >= min {
		t.bpm.WUnlatchPage(nodeID)
		t.bpm.UnpinPage(nodeID, true)
		t.releasePath(path, rootHeld)
		return
	}

	n := len(path.ids)
	parentID := path.ids[n-1]
	parent := AsInternalPage[K](path.pages[n-1], t.codec)
	idx := parent.ValueIndex(nodeID)

	var siblingID types.PageID
	var useLeft bool
	if idx > 0 {
		siblingID, useLeft = parent.ValueAt(idx-1), true
	} else {
		siblingID, useLeft = parent.ValueAt(idx+1), false
	}
	siblingPage, err := t.bpm.FetchPage(siblingID)
	if err != nil {
		return
	}
	t.bpm.WLatchPage(siblingID)
	sibling := AsInternalPage[K](siblingPage, t.codec)

	if sibling.GetSize()+node.GetSize() > node.GetMaxSize() {
		if useLeft {
			sepKey := parent.KeyAt(idx)
			sibling.MoveLastToFrontOf(node, sepKey)
			t.reparent(node.ValueAt(0), nodeID)
			parent.SetKeyAt(idx, node.KeyAt(0))
		} else {
			sepKey := parent.KeyAt(idx + 1)
			sibling.MoveFirstToEndOf(node, sepKey)
			t.reparent(node.ValueAt(node.GetSize()-1), nodeID)
			parent.SetKeyAt(idx+1, sibling.KeyAt(0))
		}
		t.bpm.WUnlatchPage(siblingID)
		t.bpm.UnpinPage(siblingID, true)
		t.bpm.WUnlatchPage(nodeID)
		t.bpm.UnpinPage(nodeID, true)
		t.bpm.WUnlatchPage(parentID)
		t.bpm.UnpinPage(parentID, true)
		path.ids, path.pages = path.ids[:n-1], path.pages[:n-1]
		t.releasePath(path, rootHeld)
		return
	}

	if useLeft {
		sepKey := parent.KeyAt(idx)
		base, count := sibling.GetSize(), node.GetSize()
		node.MoveAllTo(sibling, sepKey)
		for i := base; i < base+count; i++ {
			t.reparent(sibling.ValueAt(i), siblingID)
		}
		t.bpm.WUnlatchPage(nodeID)
		t.bpm.UnpinPage(nodeID, true)
		t.bpm.DeletePage(nodeID)
		t.bpm.WUnlatchPage(siblingID)
		t.bpm.UnpinPage(siblingID, true)
		parent.Remove(idx)
	} else {
		sepKey := parent.KeyAt(idx + 1)
		base, count := node.GetSize(), sibling.GetSize()
		sibling.MoveAllTo(node, sepKey)
		for i := base; i < base+count; i++ {
			t.reparent(node.ValueAt(i), nodeID)
		}
		t.bpm.WUnlatchPage(siblingID)
		t.bpm.UnpinPage(siblingID, true)
		t.bpm.DeletePage(siblingID)
		t.bpm.WUnlatchPage(nodeID)
		t.bpm.UnpinPage(nodeID, true)
		parent.Remove(idx + 1)
	}

	path.ids, path.pages = path.ids[:n-1], path.pages[:n-1]
	t.handleInternalUnderflow(parentID, parent, path, rootHeld)
}

// findLeafForWrite descends from the root holding write latches, tracking
// every ancestor not yet proven safe for the operation so the caller can
// propagate a split or merge up exactly that far. The returned leaf page
// is write-latched and pinned; the caller must release it.
func (t *BPlusTreeIndex[K]) findLeafForWrite(key K, safe func(*page.Page) bool, rootHeld *bool) (types.PageID, *page.Page, *crabPath, error) {
	path := &crabPath{}

	pid := t.getRootPageID()
	cur, err := t.bpm.FetchPage(pid)
	if err != nil {
		return 0, nil, nil, err
	}
	t.bpm.WLatchPage(pid)
	path.ids = append(path.ids, pid)
	path.pages = append(path.pages, cur)

	for !IsLeafPage(cur) {
		in := AsInternalPage[K](cur, t.codec)
		childID := in.Lookup(key, t.cmp)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			return 0, nil, nil, err
		}
		t.bpm.WLatchPage(childID)

		if safe(child) {
			t.releaseAncestors(path, rootHeld)
		}
		path.ids = append(path.ids, childID)
		path.pages = append(path.pages, child)
		pid, cur = childID, child
	}

	leafID := path.ids[len(path.ids)-1]
	leafPage := path.pages[len(path.pages)-1]
	path.ids = path.ids[:len(path.ids)-1]
	path.pages = path.pages[:len(path.pages)-1]
	return leafID, leafPage, path, nil
}

func (t *BPlusTreeIndex[K]) releaseAncestors(path *crabPath, rootHeld *bool) {
	for _, id := range path.ids {
		t.bpm.WUnlatchPage(id)
		t.bpm.UnpinPage(id, false)
	}
	path.ids = path.ids[:0]
	path.pages = path.pages[:0]
	if *rootHeld {
		*rootHeld = false
		t.rootMu.Unlock()
	}
}

func (t *BPlusTreeIndex[K]) releasePath(path *crabPath, rootHeld *bool) {
	for _, id := range path.ids {
		t.bpm.WUnlatchPage(id)
		t.bpm.UnpinPage(id, true)
	}
	path.ids, path.pages = nil, nil
	if *rootHeld {
		*rootHeld = false
		t.rootMu.Unlock()
	}
}

func (t *BPlusTreeIndex[K]) isSafeForInsert(p *page.Page) bool {
	if IsLeafPage(p) {
		lp := AsLeafPage[K](p, t.codec)
		return lp.GetSize() < lp.GetMaxSize()
	}
	ip := AsInternalPage[K](p, t.codec)
	return ip.GetSize() < ip.GetMaxSize()
}

func (t *BPlusTreeIndex[K]) isSafeForDelete(p *page.Page) bool {
	if IsLeafPage(p) {
		lp := AsLeafPage[K](p, t.codec)
		min := lp.GetMaxSize() / 2
		return lp.GetSize() > min+1
	}
	ip := AsInternalPage[K](p, t.codec)
	min := (ip.GetMaxSize() + 1) / 2
	return ip.GetSize() > min+1
}

func (t *BPlusTreeIndex[K]) newLeafPage(parentID types.PageID) (types.PageID, *LeafPage[K], error) {
	p, err := t.bpm.NewPage()
	if err != nil {
		return 0, nil, err
	}
	leaf := AsLeafPage[K](p, t.codec)
	leaf.Init(p.GetPageID(), parentID, t.leafMaxSize)
	return p.GetPageID(), leaf, nil
}

func (t *BPlusTreeIndex[K]) newInternalPage(parentID types.PageID) (types.PageID, *InternalPage[K], error) {
	p, err := t.bpm.NewPage()
	if err != nil {
		return 0, nil, err
	}
	in := AsInternalPage[K](p, t.codec)
	in.Init(p.GetPageID(), parentID, t.internalMaxSize)
	return p.GetPageID(), in, nil
}

// reparent fetches childID fresh (it is not held from any in-progress
// descent) just to stamp its parent pointer, used after a split or merge
// moves it under a different node.
func (t *BPlusTreeIndex[K]) reparent(childID, parentID types.PageID) {
	p, err := t.bpm.FetchPage(childID)
	if err != nil {
		return
	}
	t.bpm.WLatchPage(childID)
	if IsLeafPage(p) {
		AsLeafPage[K](p, t.codec).SetParentPageID(parentID)
	} else {
		AsInternalPage[K](p, t.codec).SetParentPageID(parentID)
	}
	t.bpm.WUnlatchPage(childID)
	t.bpm.UnpinPage(childID, true)
}

func (t *BPlusTreeIndex[K]) reparentAllChildrenOf(node *InternalPage[K], newParentID types.PageID) {
	for i := 0; i < node.GetSize(); i++ {
		t.reparent(node.ValueAt(i), newParentID)
	}
}
