package buffer

import (
	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// Frame is the buffer-pool bookkeeping that wraps a cached Page: its pin
// count, dirty flag, reader/writer latch, and which page id (if any) it
// currently holds. A Page itself carries none of this — see
// storage/page.Page's doc comment.
type Frame struct {
	latch    common.ReaderWriterLatch
	page     *page.Page
	pageID   types.PageID
	pinCount int
	dirty    bool
}

func newFrame() *Frame {
	return &Frame{
		latch:  common.NewRWLatch(),
		pageID: types.InvalidPageID,
	}
}

func (f *Frame) Page() *page.Page    { return f.page }
func (f *Frame) PageID() types.PageID { return f.pageID }
func (f *Frame) PinCount() int        { return f.pinCount }
func (f *Frame) IsDirty() bool        { return f.dirty }
func (f *Frame) SetDirty(dirty bool)  { f.dirty = dirty }

func (f *Frame) RLatch()   { f.latch.RLock() }
func (f *Frame) RUnlatch() { f.latch.RUnlock() }
func (f *Frame) WLatch()   { f.latch.WLock() }
func (f *Frame) WUnlatch() { f.latch.WUnlock() }
