// Package disk implements the raw read/write capability over fixed-size
// page slots and the append-only log file. It is treated elsewhere in
// this engine as a capability behind the DiskManager interface, never
// reached into directly.
package disk

import "github.com/latchdb/latchdb/types"

// DiskManager allocates, reads and writes fixed-size pages, and appends to
// / reads from the log file.
type DiskManager interface {
	ReadPage(id types.PageID, out []byte) error
	WritePage(id types.PageID, data []byte) error
	AllocatePage() types.PageID
	DeallocatePage(id types.PageID)
	GetNumWrites() uint64
	ShutDown()
	Size() int64

	// WriteLog appends data to the log file; the caller (the log
	// manager's flusher) guarantees sequential, non-overlapping writes.
	WriteLog(data []byte) error
	// ReadLog reads len(out) bytes starting at offset. Returns false once
	// offset is at or past the current end of the log file.
	ReadLog(out []byte, offset int64, readBytes *int) bool
	GetLogFileSize() int64
	// GCLogFile truncates the log file to empty. engine.Open does not
	// call it: after recovery the log is left as it was, and the next
	// restart replays it again from the beginning.
	GCLogFile() error
}
