package recovery

import (
	"go.uber.org/zap"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// PageFetcher is the slice of BufferPoolManager's API that LogRecovery needs
// to replay pages. Declared here, rather than importing package buffer,
// because buffer already imports recovery for *LogManager: BufferPoolManager
// satisfies this interface structurally, and whoever wires up recovery after
// a restart passes the real buffer pool manager in.
type PageFetcher interface {
	FetchPage(id types.PageID) (*page.Page, error)
	NewPage() (*page.Page, error)
	UnpinPage(id types.PageID, isDirty bool) error
}

// LogRecovery replays the write-ahead log against the buffer pool after a
// crash: a redo pass that reapplies every logged write whose LSN is newer
// than the page's own, followed by an undo pass that reverses every
// write belonging to a transaction that never committed.
type LogRecovery struct {
	diskManager disk.DiskManager
	pages       PageFetcher

	activeTxn  map[types.TxnID]types.LSN
	lsnOffsets map[types.LSN]int64
}

func NewLogRecovery(diskManager disk.DiskManager, pages PageFetcher) *LogRecovery {
	return &LogRecovery{
		diskManager: diskManager,
		pages:       pages,
		activeTxn:   make(map[types.TxnID]types.LSN),
		lsnOffsets:  make(map[types.LSN]int64),
	}
}

// Redo replays the log from the beginning, reapplying every write whose
// LSN is newer than the page's current LSN, and builds the active
// transaction table Undo needs for its pass. There is no checkpoint to
// start from, so this always walks the entire log file.
func (lr *LogRecovery) Redo() {
	var fileOffset int64
	buf := make([]byte, common.LogBufferSize)

	for {
		var n int
		if !lr.diskManager.ReadLog(buf, fileOffset, &n) || n == 0 {
			return
		}
		bufferOffset := 0
		for {
			record, ok := DeserializeLogRecord(buf[bufferOffset:n])
			if !ok {
				break
			}
			lr.lsnOffsets[record.LSN] = fileOffset + int64(bufferOffset)

			switch record.Type {
			case Commit, Abort:
				delete(lr.activeTxn, record.TxnID)
			default:
				lr.activeTxn[record.TxnID] = record.LSN
				lr.redoOne(record)
			}
			bufferOffset += int(record.Size)
		}
		if bufferOffset == 0 {
			return
		}
		// Resume at the first record not decoded in full, so a record cut
		// by the end of this chunk is read again whole from the next one.
		fileOffset += int64(bufferOffset)
	}
}

func (lr *LogRecovery) redoOne(record *LogRecord) {
	switch record.Type {
	case Insert:
		lr.withPage(record.RID.PageID, record.LSN, func(tp *page.TablePage) {
			if _, err := tp.InsertTuple(record.Tuple); err != nil {
				common.Logger.Warn("redo insert failed", zap.Error(err))
			}
		})
	case MarkDelete:
		lr.withPage(record.RID.PageID, record.LSN, func(tp *page.TablePage) {
			tp.MarkDeleteSlot(record.RID.SlotNum)
		})
	case RollbackDelete:
		lr.withPage(record.RID.PageID, record.LSN, func(tp *page.TablePage) {
			tp.RollbackDeleteSlot(record.RID.SlotNum)
		})
	case ApplyDelete:
		lr.withPage(record.RID.PageID, record.LSN, func(tp *page.TablePage) {
			tp.ApplyDeleteSlot(record.RID.SlotNum)
		})
	case Update:
		lr.withPage(record.RID.PageID, record.LSN, func(tp *page.TablePage) {
			tp.UpdateTupleInPlace(record.RID.SlotNum, record.Tuple)
		})
	case NewPage:
		lr.redoNewPage(record)
	}
}

// withPage fetches id, applies fn if the page's LSN is stale relative to
// recordLSN, stamps the new LSN, and unpins dirty.
func (lr *LogRecovery) withPage(id types.PageID, recordLSN types.LSN, fn func(tp *page.TablePage)) {
	p, err := lr.pages.FetchPage(id)
	if err != nil {
		return
	}
	tp := page.AsTablePage(p)
	if p.GetLSN() < recordLSN {
		fn(tp)
		p.SetLSN(recordLSN)
	}
	lr.pages.UnpinPage(id, true)
}

func (lr *LogRecovery) redoNewPage(record *LogRecord) {
	if record.PrevPageID == types.InvalidPageID {
		p, err := lr.pages.NewPage()
		if err != nil {
			return
		}
		page.AsTablePage(p).Init(p.GetPageID(), types.InvalidPageID)
		lr.pages.UnpinPage(p.GetPageID(), true)
		return
	}

	prev, err := lr.pages.FetchPage(record.PrevPageID)
	if err != nil {
		return
	}
	prevTP := page.AsTablePage(prev)
	if prevTP.GetNextPageID() == types.InvalidPageID {
		next, err := lr.pages.NewPage()
		if err == nil {
			page.AsTablePage(next).Init(next.GetPageID(), record.PrevPageID)
			prevTP.SetNextPageID(next.GetPageID())
			lr.pages.UnpinPage(next.GetPageID(), true)
		}
	}
	lr.pages.UnpinPage(record.PrevPageID, true)
}

// Undo walks every transaction still active at the end of Redo (meaning
// it never reached a COMMIT or ABORT record) and reverses its writes,
// oldest-LSN-last, following each record's PrevLSN chain back to its
// BEGIN.
func (lr *LogRecovery) Undo() {
	buf := make([]byte, common.LogBufferSize)

	for _, lsn := range lr.activeTxn {
		cur := lsn
		for cur != types.InvalidLSN {
			offset, ok := lr.lsnOffsets[cur]
			if !ok {
				break
			}
			var n int
			if !lr.diskManager.ReadLog(buf, offset, &n) {
				break
			}
			record, ok := DeserializeLogRecord(buf[:n])
			if !ok || record.Type == Begin {
				break
			}
			lr.undoOne(record)
			cur = record.PrevLSN
		}
	}

	lr.activeTxn = make(map[types.TxnID]types.LSN)
	lr.lsnOffsets = make(map[types.LSN]int64)
}

func (lr *LogRecovery) undoOne(record *LogRecord) {
	switch record.Type {
	case Insert:
		lr.withPageNoStamp(record.RID.PageID, func(tp *page.TablePage) {
			tp.ApplyDeleteSlot(record.RID.SlotNum)
		})
	case MarkDelete:
		lr.withPageNoStamp(record.RID.PageID, func(tp *page.TablePage) {
			tp.RollbackDeleteSlot(record.RID.SlotNum)
		})
	case RollbackDelete:
		lr.withPageNoStamp(record.RID.PageID, func(tp *page.TablePage) {
			tp.MarkDeleteSlot(record.RID.SlotNum)
		})
	case ApplyDelete:
		lr.withPageNoStamp(record.RID.PageID, func(tp *page.TablePage) {
			tp.InsertTuple(record.Tuple)
		})
	case Update:
		lr.withPageNoStamp(record.RID.PageID, func(tp *page.TablePage) {
			tp.UpdateTupleInPlace(record.RID.SlotNum, record.OldTuple)
		})
	}
}

func (lr *LogRecovery) withPageNoStamp(id types.PageID, fn func(tp *page.TablePage)) {
	p, err := lr.pages.FetchPage(id)
	if err != nil {
		return
	}
	fn(page.AsTablePage(p))
	lr.pages.UnpinPage(id, true)
}
