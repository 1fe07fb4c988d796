package page

import (
	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/storage"
	"github.com/latchdb/latchdb/types"
)

// HeaderPage is always page id 0: a compact directory mapping an index or
// table's name to its current root page id, so every other page in the
// file can be found by walking from here after a restart.
//
// Format (bytes, past the common 8-byte id+LSN header):
//
//	----------------------------------------------------------------
//	| RecordCount (4) | Entry_1 name (32) | Entry_1 root id (4) | ... |
//	----------------------------------------------------------------
const (
	headerPageRecordCountOffset = 8
	headerPageRecordsOffset     = 12
	headerPageNameSize          = 32
	headerPageRecordSize        = headerPageNameSize + 4
	// MaxHeaderPageRecords bounds how many name/root-id records page 0 can
	// hold: (PageSize - recordsOffset) / recordSize with common.PageSize.
	MaxHeaderPageRecords = (4096 - headerPageRecordsOffset) / headerPageRecordSize
)

// HeaderPage views a Page as the name-to-root-page-id directory.
type HeaderPage struct {
	*Page
}

func AsHeaderPage(p *Page) *HeaderPage { return &HeaderPage{p} }

// Init lays out an empty directory.
func (hp *HeaderPage) Init() {
	hp.SetPageID(types.PageID(common.HeaderPageID))
	hp.setRecordCount(0)
}

func (hp *HeaderPage) recordCount() int {
	return int(types.UInt32FromBytes(hp.Data()[headerPageRecordCountOffset:]))
}

func (hp *HeaderPage) setRecordCount(n int) {
	hp.Copy(headerPageRecordCountOffset, types.UInt32Bytes(uint32(n)))
}

func recordOffset(i int) uint32 {
	return headerPageRecordsOffset + uint32(i)*headerPageRecordSize
}

func (hp *HeaderPage) nameAt(i int) string {
	raw := hp.Data()[recordOffset(i) : recordOffset(i)+headerPageNameSize]
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}

func (hp *HeaderPage) setNameAt(i int, name string) {
	buf := make([]byte, headerPageNameSize)
	copy(buf, name)
	hp.Copy(recordOffset(i), buf)
}

func (hp *HeaderPage) rootIDAt(i int) types.PageID {
	return types.NewPageIDFromBytes(hp.Data()[recordOffset(i)+headerPageNameSize:])
}

func (hp *HeaderPage) setRootIDAt(i int, id types.PageID) {
	hp.Copy(recordOffset(i)+headerPageNameSize, id.Serialize())
}

func (hp *HeaderPage) find(name string) int {
	for i := 0; i < hp.recordCount(); i++ {
		if hp.nameAt(i) == name {
			return i
		}
	}
	return -1
}

// GetRootID returns the root page id registered for name.
func (hp *HeaderPage) GetRootID(name string) (types.PageID, error) {
	i := hp.find(name)
	if i < 0 {
		return types.InvalidPageID, storage.ErrNotFound
	}
	return hp.rootIDAt(i), nil
}

// InsertRecord registers a fresh name -> rootID mapping.
func (hp *HeaderPage) InsertRecord(name string, rootID types.PageID) error {
	if hp.find(name) >= 0 {
		return storage.ErrDuplicateKey
	}
	count := hp.recordCount()
	if count >= MaxHeaderPageRecords {
		return storage.ErrNotEnoughSpace
	}
	hp.setNameAt(count, name)
	hp.setRootIDAt(count, rootID)
	hp.setRecordCount(count + 1)
	return nil
}

// UpdateRecord repoints an existing name at a new root page id, e.g. after a
// root split or an AdjustRoot collapse.
func (hp *HeaderPage) UpdateRecord(name string, rootID types.PageID) error {
	i := hp.find(name)
	if i < 0 {
		return storage.ErrNotFound
	}
	hp.setRootIDAt(i, rootID)
	return nil
}

// DeleteRecord removes name's directory entry, compacting the record array.
func (hp *HeaderPage) DeleteRecord(name string) error {
	i := hp.find(name)
	if i < 0 {
		return storage.ErrNotFound
	}
	count := hp.recordCount()
	for j := i; j < count-1; j++ {
		hp.setNameAt(j, hp.nameAt(j+1))
		hp.setRootIDAt(j, hp.rootIDAt(j+1))
	}
	hp.setRecordCount(count - 1)
	return nil
}

// RecordCount reports how many name/root-id entries are registered.
func (hp *HeaderPage) RecordCount() int { return hp.recordCount() }
