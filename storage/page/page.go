// Package page defines the fixed-size on-disk page and the typed views
// over it (table heap pages, B+-tree internal/leaf pages, the header
// page). A Page is pure bytes plus an id and LSN; the buffer-pool
// bookkeeping that wraps it (pin count, dirty flag, latch) lives in
// buffer.Frame, not here — see SPEC_FULL.md §9 on replacing raw pointer
// graphs among pages with typed, pin-scoped handles.
package page

import (
	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/types"
)

const (
	// OffsetPageID is where every page's id is stored.
	OffsetPageID = 0
	// OffsetLSN is where every page's LSN is stored.
	OffsetLSN = 4
	// SizeOfHeader is the common id+LSN header every page begins with.
	SizeOfHeader = 8
)

// Page is exactly common.PageSize bytes. The first 8 bytes are the common
// id+LSN header; everything past that is typed by the page's role
// (table data page, B+-tree internal/leaf page, or the header page).
type Page struct {
	data [common.PageSize]byte
}

func NewPage(id types.PageID) *Page {
	p := &Page{}
	p.SetPageID(id)
	p.SetLSN(types.InvalidLSN)
	return p
}

func (p *Page) Data() []byte { return p.data[:] }

func (p *Page) GetPageID() types.PageID {
	return types.NewPageIDFromBytes(p.data[OffsetPageID : OffsetPageID+4])
}

func (p *Page) SetPageID(id types.PageID) {
	copy(p.data[OffsetPageID:], id.Serialize())
}

func (p *Page) GetLSN() types.LSN {
	return types.NewLSNFromBytes(p.data[OffsetLSN : OffsetLSN+4])
}

func (p *Page) SetLSN(lsn types.LSN) {
	copy(p.data[OffsetLSN:], lsn.Serialize())
}

// Copy writes data at offset within the page's byte array.
func (p *Page) Copy(offset uint32, data []byte) {
	copy(p.data[offset:], data)
}

// ResetMemory zeroes the page and reinitializes the common header.
func (p *Page) ResetMemory(id types.PageID) {
	p.data = [common.PageSize]byte{}
	p.SetPageID(id)
	p.SetLSN(types.InvalidLSN)
}
