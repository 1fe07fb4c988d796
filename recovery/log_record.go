package recovery

import (
	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

// LogRecordType names what a LogRecord describes. No checkpoint record
// exists: this engine always replays the whole log from the start.
type LogRecordType int32

const (
	Invalid LogRecordType = iota
	Insert
	MarkDelete
	ApplyDelete
	RollbackDelete
	Update
	Begin
	Commit
	Abort
	NewPage
)

// HeaderSize is the length, in bytes, of every LogRecord's fixed prefix:
// size, lsn, txn id, prev lsn, kind, each a 4-byte field.
const HeaderSize = 20

// LogRecord is a single write-ahead log entry. Every write-ahead write to
// a table page produces one of these before the page itself changes, so
// recovery can redo or undo it from the log alone.
//
// Wire format, past the HeaderSize header:
//
//	Insert/MarkDelete/ApplyDelete/RollbackDelete: | rid | tuple |
//	Update:                                       | rid | old tuple | new tuple |
//	NewPage:                                       | prev page id |
//	Begin/Commit/Abort:                            (header only)
type LogRecord struct {
	Size    uint32
	LSN     types.LSN
	TxnID   types.TxnID
	PrevLSN types.LSN
	Type    LogRecordType

	RID       types.RID
	Tuple     *tuple.Tuple
	OldTuple  *tuple.Tuple
	PrevPageID types.PageID
}

// NewLogRecordTxn builds a BEGIN/COMMIT/ABORT record, header only.
func NewLogRecordTxn(txnID types.TxnID, prevLSN types.LSN, kind LogRecordType) *LogRecord {
	return &LogRecord{Size: HeaderSize, TxnID: txnID, PrevLSN: prevLSN, Type: kind}
}

// NewLogRecordWrite builds an Insert/MarkDelete/ApplyDelete/RollbackDelete
// record carrying the affected rid and the tuple needed to undo it.
func NewLogRecordWrite(txnID types.TxnID, prevLSN types.LSN, kind LogRecordType, rid types.RID, t *tuple.Tuple) *LogRecord {
	return &LogRecord{
		Size:    HeaderSize + types.SizeOfRID + t.SerializedSize(),
		TxnID:   txnID,
		PrevLSN: prevLSN,
		Type:    kind,
		RID:     rid,
		Tuple:   t,
	}
}

// NewLogRecordUpdate builds an Update record carrying both the pre- and
// post-image of the tuple, so the update can be both redone and undone.
func NewLogRecordUpdate(txnID types.TxnID, prevLSN types.LSN, rid types.RID, oldTuple, newTuple *tuple.Tuple) *LogRecord {
	return &LogRecord{
		Size:     HeaderSize + types.SizeOfRID + oldTuple.SerializedSize() + newTuple.SerializedSize(),
		TxnID:    txnID,
		PrevLSN:  prevLSN,
		Type:     Update,
		RID:      rid,
		OldTuple: oldTuple,
		Tuple:    newTuple,
	}
}

// NewLogRecordNewPage builds a NewPage record, logging a table heap
// growing by one page so redo can replay the page chain.
func NewLogRecordNewPage(txnID types.TxnID, prevLSN types.LSN, prevPageID types.PageID) *LogRecord {
	return &LogRecord{
		Size:       HeaderSize + 4,
		TxnID:      txnID,
		PrevLSN:    prevLSN,
		Type:       NewPage,
		PrevPageID: prevPageID,
	}
}

// HeaderBytes serializes the fixed 20-byte prefix common to every record.
func (r *LogRecord) HeaderBytes() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], types.UInt32Bytes(r.Size))
	copy(buf[4:8], types.Int32Bytes(int32(r.LSN)))
	copy(buf[8:12], types.Int32Bytes(int32(r.TxnID)))
	copy(buf[12:16], types.Int32Bytes(int32(r.PrevLSN)))
	copy(buf[16:20], types.Int32Bytes(int32(r.Type)))
	return buf
}

// WritePayload serializes everything past the fixed header into buf,
// which must be at least r.Size-HeaderSize bytes.
func (r *LogRecord) WritePayload(buf []byte) {
	switch r.Type {
	case Insert, MarkDelete, ApplyDelete, RollbackDelete:
		copy(buf, r.RID.Serialize())
		r.Tuple.SerializeTo(buf[types.SizeOfRID:])
	case Update:
		copy(buf, r.RID.Serialize())
		pos := types.SizeOfRID
		r.OldTuple.SerializeTo(buf[pos:])
		pos += int(r.OldTuple.SerializedSize())
		r.Tuple.SerializeTo(buf[pos:])
	case NewPage:
		copy(buf, r.PrevPageID.Serialize())
	}
}

// DeserializeLogRecord reads a LogRecord's header and, if complete,
// its payload, from a flushed log buffer slice. It returns false if data
// doesn't hold a valid, fully-buffered record (end of log reached, or a
// torn write at crash time).
func DeserializeLogRecord(data []byte) (*LogRecord, bool) {
	if len(data) < HeaderSize {
		return nil, false
	}
	size := types.UInt32FromBytes(data[0:4])
	lsn := types.LSN(types.Int32FromBytes(data[4:8]))
	txnID := types.TxnID(types.Int32FromBytes(data[8:12]))
	prevLSN := types.LSN(types.Int32FromBytes(data[12:16]))
	kind := LogRecordType(types.Int32FromBytes(data[16:20]))

	if int32(size) < 0 || lsn == types.InvalidLSN || txnID == types.InvalidTxnID || kind == Invalid {
		return nil, false
	}
	if uint32(len(data)) < size {
		return nil, false
	}

	r := &LogRecord{Size: size, LSN: lsn, TxnID: txnID, PrevLSN: prevLSN, Type: kind}
	pos := HeaderSize
	switch kind {
	case Insert, MarkDelete, ApplyDelete, RollbackDelete:
		r.RID = types.NewRIDFromBytes(data[pos:])
		pos += types.SizeOfRID
		r.Tuple = new(tuple.Tuple)
		r.Tuple.DeserializeFrom(data[pos:])
	case Update:
		r.RID = types.NewRIDFromBytes(data[pos:])
		pos += types.SizeOfRID
		r.OldTuple = new(tuple.Tuple)
		r.OldTuple.DeserializeFrom(data[pos:])
		pos += int(r.OldTuple.SerializedSize())
		r.Tuple = new(tuple.Tuple)
		r.Tuple.DeserializeFrom(data[pos:])
	case NewPage:
		r.PrevPageID = types.NewPageIDFromBytes(data[pos:])
	}
	return r, true
}
