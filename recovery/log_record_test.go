package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

func serializeRoundTrip(t *testing.T, rec *LogRecord) *LogRecord {
	buf := make([]byte, rec.Size)
	copy(buf, rec.HeaderBytes())
	rec.WritePayload(buf[HeaderSize:])
	got, ok := DeserializeLogRecord(buf)
	assert.True(t, ok)
	return got
}

func TestLogRecordInsertRoundTrip(t *testing.T) {
	rid := types.NewRID(3, 7)
	tup := tuple.NewTuple(rid, []byte("hello world"))
	rec := NewLogRecordWrite(1, types.InvalidLSN, Insert, rid, tup)
	rec.LSN = 5

	got := serializeRoundTrip(t, rec)
	assert.Equal(t, Insert, got.Type)
	assert.Equal(t, types.LSN(5), got.LSN)
	assert.Equal(t, rid, got.RID)
	assert.Equal(t, tup.Data(), got.Tuple.Data())
}

func TestLogRecordUpdateRoundTrip(t *testing.T) {
	rid := types.NewRID(2, 1)
	oldTuple := tuple.NewTuple(rid, []byte("old"))
	newTuple := tuple.NewTuple(rid, []byte("new value"))
	rec := NewLogRecordUpdate(2, types.InvalidLSN, rid, oldTuple, newTuple)
	rec.LSN = 9

	got := serializeRoundTrip(t, rec)
	assert.Equal(t, Update, got.Type)
	assert.Equal(t, oldTuple.Data(), got.OldTuple.Data())
	assert.Equal(t, newTuple.Data(), got.Tuple.Data())
}

func TestLogRecordNewPageRoundTrip(t *testing.T) {
	rec := NewLogRecordNewPage(1, types.InvalidLSN, types.PageID(4))
	rec.LSN = 3

	got := serializeRoundTrip(t, rec)
	assert.Equal(t, NewPage, got.Type)
	assert.Equal(t, types.PageID(4), got.PrevPageID)
}

func TestLogRecordBeginCommitAbortRoundTrip(t *testing.T) {
	for _, kind := range []LogRecordType{Begin, Commit, Abort} {
		rec := NewLogRecordTxn(1, types.InvalidLSN, kind)
		rec.LSN = 1
		got := serializeRoundTrip(t, rec)
		assert.Equal(t, kind, got.Type)
	}
}

func TestDeserializeLogRecordRejectsTornWrite(t *testing.T) {
	rid := types.NewRID(1, 1)
	tup := tuple.NewTuple(rid, []byte("payload"))
	rec := NewLogRecordWrite(1, types.InvalidLSN, Insert, rid, tup)
	rec.LSN = 1

	buf := make([]byte, rec.Size)
	copy(buf, rec.HeaderBytes())
	rec.WritePayload(buf[HeaderSize:])

	_, ok := DeserializeLogRecord(buf[:len(buf)-1])
	assert.False(t, ok)
}
