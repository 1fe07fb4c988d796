package index

import (
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// nodeType tags a B+-tree page as internal or leaf; stored at offset 8,
// right after the common id+LSN header every page carries.
type nodeType int32

const (
	invalidNode nodeType = iota
	internalNode
	leafNode
)

// Common header, past the page's 8-byte id+LSN prefix, shared by internal
// and leaf pages: type, current size, max size, parent page id.
const (
	offsetNodeType   = 8
	offsetSize       = 12
	offsetMaxSize    = 16
	offsetParentID   = 20
	commonHeaderSize = 24
	// offsetNextLeafID is leaf-only, immediately past the common header.
	offsetNextLeafID = commonHeaderSize
	leafHeaderSize   = commonHeaderSize + 4
)

func getInt32(p *page.Page, offset int) int32 {
	b := p.Data()[offset : offset+4]
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func setInt32(p *page.Page, offset int, v int32) {
	b := p.Data()[offset : offset+4]
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}

func getPageID(p *page.Page, offset int) types.PageID { return types.PageID(getInt32(p, offset)) }
func setPageID(p *page.Page, offset int, id types.PageID) { setInt32(p, offset, int32(id)) }

// InternalPage views a Page as a B+-tree internal node: (key, child page
// id) pairs, with the key at index 0 unused (it is the left-most
// pointer's implicit "less than everything" separator).
type InternalPage[K any] struct {
	*page.Page
	codec KeyCodec[K]
}

func AsInternalPage[K any](p *page.Page, codec KeyCodec[K]) *InternalPage[K] {
	return &InternalPage[K]{Page: p, codec: codec}
}

func (n *InternalPage[K]) entrySize() int { return n.codec.Size() + 4 }

func (n *InternalPage[K]) Init(id, parentID types.PageID, maxSize int) {
	setInt32(n.Page, offsetNodeType, int32(internalNode))
	setInt32(n.Page, offsetSize, 0)
	setInt32(n.Page, offsetMaxSize, int32(maxSize))
	setPageID(n.Page, offsetParentID, parentID)
}

func (n *InternalPage[K]) IsLeaf() bool       { return false }
func (n *InternalPage[K]) GetSize() int       { return int(getInt32(n.Page, offsetSize)) }
func (n *InternalPage[K]) SetSize(s int)      { setInt32(n.Page, offsetSize, int32(s)) }
func (n *InternalPage[K]) GetMaxSize() int    { return int(getInt32(n.Page, offsetMaxSize)) }
func (n *InternalPage[K]) GetParentPageID() types.PageID {
	return getPageID(n.Page, offsetParentID)
}
func (n *InternalPage[K]) SetParentPageID(id types.PageID) { setPageID(n.Page, offsetParentID, id) }

// IsFull reports whether the node is at its maximum occupancy.
func (n *InternalPage[K]) IsFull() bool { return n.GetSize() >= n.GetMaxSize() }

// IsUnderflow reports whether the node (a non-root) has too few entries.
func (n *InternalPage[K]) IsUnderflow() bool { return n.GetSize() < (n.GetMaxSize()+1)/2 }

func (n *InternalPage[K]) keyOffset(i int) int { return commonHeaderSize + i*n.entrySize() }
func (n *InternalPage[K]) valueOffset(i int) int {
	return commonHeaderSize + i*n.entrySize() + n.codec.Size()
}

func (n *InternalPage[K]) KeyAt(i int) K {
	return n.codec.Decode(n.Data()[n.keyOffset(i) : n.keyOffset(i)+n.codec.Size()])
}

func (n *InternalPage[K]) SetKeyAt(i int, k K) {
	n.codec.Encode(k, n.Data()[n.keyOffset(i):n.keyOffset(i)+n.codec.Size()])
}

func (n *InternalPage[K]) ValueAt(i int) types.PageID { return getPageID(n.Page, n.valueOffset(i)) }

func (n *InternalPage[K]) SetValueAt(i int, v types.PageID) {
	setPageID(n.Page, n.valueOffset(i), v)
}

func (n *InternalPage[K]) copyEntry(dst, src int) {
	n.SetKeyAt(dst, n.KeyAt(src))
	n.SetValueAt(dst, n.ValueAt(src))
}

// ValueIndex returns the slot holding value, or -1.
func (n *InternalPage[K]) ValueIndex(value types.PageID) int {
	for i := 0; i < n.GetSize(); i++ {
		if n.ValueAt(i) == value {
			return i
		}
	}
	return -1
}

// Lookup finds the child to descend into for key: the right-most i with
// key >= KeyAt(i), or index 0 if key is smaller than every real key.
func (n *InternalPage[K]) Lookup(key K, cmp Comparator[K]) types.PageID {
	target := 0
	for i := 1; i < n.GetSize(); i++ {
		if cmp(key, n.KeyAt(i)) >= 0 {
			target = i
		} else {
			break
		}
	}
	return n.ValueAt(target)
}

// PopulateNewRoot lays out a brand new two-child root after the previous
// root (a leaf or internal page) split.
func (n *InternalPage[K]) PopulateNewRoot(oldValue types.PageID, newKey K, newValue types.PageID) {
	n.SetValueAt(0, oldValue)
	n.SetKeyAt(1, newKey)
	n.SetValueAt(1, newValue)
	n.SetSize(2)
}

// InsertNodeAfter inserts (newKey, newValue) immediately after the entry
// currently holding oldValue, and returns the new size.
func (n *InternalPage[K]) InsertNodeAfter(oldValue types.PageID, newKey K, newValue types.PageID) int {
	idx := n.ValueIndex(oldValue)
	size := n.GetSize()
	for i := size; i > idx+1; i-- {
		n.copyEntry(i, i-1)
	}
	n.SetKeyAt(idx+1, newKey)
	n.SetValueAt(idx+1, newValue)
	n.SetSize(size + 1)
	return size + 1
}

// Remove deletes the entry at index, shifting the tail left.
func (n *InternalPage[K]) Remove(index int) {
	size := n.GetSize()
	for i := index; i < size-1; i++ {
		n.copyEntry(i, i+1)
	}
	n.SetSize(size - 1)
}

// RemoveAndReturnOnlyChild empties a one-child root being collapsed away.
func (n *InternalPage[K]) RemoveAndReturnOnlyChild() types.PageID {
	v := n.ValueAt(0)
	n.SetSize(0)
	return v
}

// MoveHalfTo moves this node's upper half into recipient, used on split.
func (n *InternalPage[K]) MoveHalfTo(recipient *InternalPage[K]) {
	size := n.GetSize()
	half := size / 2
	for i := half; i < size; i++ {
		recipient.SetKeyAt(i-half, n.KeyAt(i))
		recipient.SetValueAt(i-half, n.ValueAt(i))
	}
	recipient.SetSize(size - half)
	n.SetSize(half)
}

// MoveAllTo appends every entry of n onto recipient, used when coalescing
// n into its left sibling; middleKey is the separator the parent held for
// n, which becomes the key for n's first (otherwise-unused) entry.
func (n *InternalPage[K]) MoveAllTo(recipient *InternalPage[K], middleKey K) {
	base := recipient.GetSize()
	recipient.SetKeyAt(base, middleKey)
	recipient.SetValueAt(base, n.ValueAt(0))
	for i := 1; i < n.GetSize(); i++ {
		recipient.SetKeyAt(base+i, n.KeyAt(i))
		recipient.SetValueAt(base+i, n.ValueAt(i))
	}
	recipient.SetSize(base + n.GetSize())
	n.SetSize(0)
}

// MoveFirstToEndOf redistributes n's first entry onto the end of
// recipient (n is the right sibling of recipient); middleKey is the
// parent's current separator key for n, which becomes valid for
// recipient's new last entry.
func (n *InternalPage[K]) MoveFirstToEndOf(recipient *InternalPage[K], middleKey K) {
	size := recipient.GetSize()
	recipient.SetKeyAt(size, middleKey)
	recipient.SetValueAt(size, n.ValueAt(0))
	recipient.SetSize(size + 1)
	n.Remove(0)
}

// MoveLastToFrontOf redistributes n's last entry onto the front of
// recipient (n is the left sibling of recipient); middleKey is the
// parent's current separator key for recipient. The moved entry's key is
// left at recipient's index 0, for the caller to push up as the new
// separator.
func (n *InternalPage[K]) MoveLastToFrontOf(recipient *InternalPage[K], middleKey K) {
	lastIdx := n.GetSize() - 1
	for i := recipient.GetSize(); i > 0; i-- {
		recipient.copyEntry(i, i-1)
	}
	recipient.SetKeyAt(1, middleKey)
	recipient.SetKeyAt(0, n.KeyAt(lastIdx))
	recipient.SetValueAt(0, n.ValueAt(lastIdx))
	recipient.SetSize(recipient.GetSize() + 1)
	n.SetSize(lastIdx)
}

// LeafPage views a Page as a B+-tree leaf: sorted (key, rid) pairs plus
// the next-leaf page id that threads every leaf into one ascending chain.
type LeafPage[K any] struct {
	*page.Page
	codec KeyCodec[K]
}

func AsLeafPage[K any](p *page.Page, codec KeyCodec[K]) *LeafPage[K] {
	return &LeafPage[K]{Page: p, codec: codec}
}

func (n *LeafPage[K]) entrySize() int { return n.codec.Size() + types.SizeOfRID }

func (n *LeafPage[K]) Init(id, parentID types.PageID, maxSize int) {
	setInt32(n.Page, offsetNodeType, int32(leafNode))
	setInt32(n.Page, offsetSize, 0)
	setInt32(n.Page, offsetMaxSize, int32(maxSize))
	setPageID(n.Page, offsetParentID, parentID)
	setPageID(n.Page, offsetNextLeafID, types.InvalidPageID)
}

func (n *LeafPage[K]) IsLeaf() bool    { return true }
func (n *LeafPage[K]) GetSize() int    { return int(getInt32(n.Page, offsetSize)) }
func (n *LeafPage[K]) SetSize(s int)   { setInt32(n.Page, offsetSize, int32(s)) }
func (n *LeafPage[K]) GetMaxSize() int { return int(getInt32(n.Page, offsetMaxSize)) }
func (n *LeafPage[K]) GetParentPageID() types.PageID {
	return getPageID(n.Page, offsetParentID)
}
func (n *LeafPage[K]) SetParentPageID(id types.PageID) { setPageID(n.Page, offsetParentID, id) }
func (n *LeafPage[K]) GetNextPageID() types.PageID     { return getPageID(n.Page, offsetNextLeafID) }
func (n *LeafPage[K]) SetNextPageID(id types.PageID)   { setPageID(n.Page, offsetNextLeafID, id) }

func (n *LeafPage[K]) IsFull() bool      { return n.GetSize() >= n.GetMaxSize() }
func (n *LeafPage[K]) IsUnderflow() bool { return n.GetSize() < n.GetMaxSize()/2 }

func (n *LeafPage[K]) keyOffset(i int) int { return leafHeaderSize + i*n.entrySize() }
func (n *LeafPage[K]) valueOffset(i int) int {
	return leafHeaderSize + i*n.entrySize() + n.codec.Size()
}

func (n *LeafPage[K]) KeyAt(i int) K {
	return n.codec.Decode(n.Data()[n.keyOffset(i) : n.keyOffset(i)+n.codec.Size()])
}

func (n *LeafPage[K]) SetKeyAt(i int, k K) {
	n.codec.Encode(k, n.Data()[n.keyOffset(i):n.keyOffset(i)+n.codec.Size()])
}

func (n *LeafPage[K]) ValueAt(i int) types.RID {
	return types.NewRIDFromBytes(n.Data()[n.valueOffset(i) : n.valueOffset(i)+types.SizeOfRID])
}

func (n *LeafPage[K]) SetValueAt(i int, v types.RID) {
	copy(n.Data()[n.valueOffset(i):n.valueOffset(i)+types.SizeOfRID], v.Serialize())
}

func (n *LeafPage[K]) copyEntry(dst, src int) {
	n.SetKeyAt(dst, n.KeyAt(src))
	n.SetValueAt(dst, n.ValueAt(src))
}

// Lookup does a linear scan for key (leaf capacities are small enough in
// the reference build that binary search is not worth the complexity);
// returns the matching rid or false.
func (n *LeafPage[K]) Lookup(key K, cmp Comparator[K]) (types.RID, bool) {
	for i := 0; i < n.GetSize(); i++ {
		if cmp(key, n.KeyAt(i)) == 0 {
			return n.ValueAt(i), true
		}
	}
	return types.RID{}, false
}

// Insert adds (key, value) in sorted position, rejecting a duplicate key.
// Returns the new size, or -1 if key was already present.
func (n *LeafPage[K]) Insert(key K, value types.RID, cmp Comparator[K]) int {
	size := n.GetSize()
	idx := size
	for i := 0; i < size; i++ {
		c := cmp(key, n.KeyAt(i))
		if c == 0 {
			return -1
		}
		if c < 0 {
			idx = i
			break
		}
	}
	for i := size; i > idx; i-- {
		n.copyEntry(i, i-1)
	}
	n.SetKeyAt(idx, key)
	n.SetValueAt(idx, value)
	n.SetSize(size + 1)
	return size + 1
}

// RemoveAndDeleteRecord deletes key if present, returning the new size and
// whether key was found; the leaf is left untouched if key was absent.
func (n *LeafPage[K]) RemoveAndDeleteRecord(key K, cmp Comparator[K]) (int, bool) {
	size := n.GetSize()
	for i := 0; i < size; i++ {
		if cmp(key, n.KeyAt(i)) == 0 {
			for j := i; j < size-1; j++ {
				n.copyEntry(j, j+1)
			}
			n.SetSize(size - 1)
			return size - 1, true
		}
	}
	return size, false
}

// MoveHalfTo moves this leaf's upper half into recipient, used on split.
func (n *LeafPage[K]) MoveHalfTo(recipient *LeafPage[K]) {
	size := n.GetSize()
	half := size / 2
	for i := half; i < size; i++ {
		recipient.SetKeyAt(i-half, n.KeyAt(i))
		recipient.SetValueAt(i-half, n.ValueAt(i))
	}
	recipient.SetSize(size - half)
	n.SetSize(half)
}

// MoveAllTo appends every entry of n onto recipient, used when coalescing
// n into its left sibling.
func (n *LeafPage[K]) MoveAllTo(recipient *LeafPage[K]) {
	base := recipient.GetSize()
	for i := 0; i < n.GetSize(); i++ {
		recipient.SetKeyAt(base+i, n.KeyAt(i))
		recipient.SetValueAt(base+i, n.ValueAt(i))
	}
	recipient.SetSize(base + n.GetSize())
	recipient.SetNextPageID(n.GetNextPageID())
	n.SetSize(0)
}

// MoveFirstToEndOf redistributes n's first pair onto the end of recipient.
func (n *LeafPage[K]) MoveFirstToEndOf(recipient *LeafPage[K]) {
	size := recipient.GetSize()
	recipient.SetKeyAt(size, n.KeyAt(0))
	recipient.SetValueAt(size, n.ValueAt(0))
	recipient.SetSize(size + 1)
	for i := 0; i < n.GetSize()-1; i++ {
		n.copyEntry(i, i+1)
	}
	n.SetSize(n.GetSize() - 1)
}

// MoveLastToFrontOf redistributes n's last pair onto the front of
// recipient.
func (n *LeafPage[K]) MoveLastToFrontOf(recipient *LeafPage[K]) {
	lastIdx := n.GetSize() - 1
	for i := recipient.GetSize(); i > 0; i-- {
		recipient.copyEntry(i, i-1)
	}
	recipient.SetKeyAt(0, n.KeyAt(lastIdx))
	recipient.SetValueAt(0, n.ValueAt(lastIdx))
	recipient.SetSize(recipient.GetSize() + 1)
	n.SetSize(lastIdx)
}

// NodeType reads the page-type tag off a raw page, used by the index to
// decide whether to view a freshly fetched page as internal or leaf
// before it knows which.
func NodeType(p *page.Page) nodeType {
	return nodeType(getInt32(p, offsetNodeType))
}

func IsLeafPage(p *page.Page) bool { return NodeType(p) == leafNode }
