package tuple

import (
	"bytes"
	"encoding/binary"

	"github.com/latchdb/latchdb/types"
)

// SizeOffsetInLogRecord is the width of the length prefix Tuple.SerializeTo
// writes before the tuple's own bytes; the log manager needs it to compute
// where a serialized tuple ends inside a log record payload.
const SizeOffsetInLogRecord = 4

// Tuple is the on-disk encoding of one row: a fixed-length region holding
// inlined values and out-of-line offset pointers, followed by the
// variable-length payloads those pointers reference.
type Tuple struct {
	rid  types.RID
	size uint32
	data []byte
}

func NewTuple(rid types.RID, data []byte) *Tuple {
	return &Tuple{rid: rid, size: uint32(len(data)), data: data}
}

// NewTupleFromSchema packs values into a tuple laid out according to
// schema: inlined columns at their fixed offset, variable-length columns
// as a relative offset pointer plus an appended (length, bytes) payload.
func NewTupleFromSchema(values []Value, schema *Schema) *Tuple {
	size := schema.Length()
	for _, colIndex := range schema.GetUnlinedColumns() {
		size += values[colIndex].Size()
	}

	t := &Tuple{size: size, data: make([]byte, size)}
	tail := schema.Length()
	for i := uint32(0); i < schema.GetColumnCount(); i++ {
		col := schema.GetColumn(i)
		if col.IsInlined() {
			t.Copy(col.GetOffset(), values[i].Serialize())
		} else {
			t.Copy(col.GetOffset(), types.UInt32Bytes(tail))
			t.Copy(tail, values[i].Serialize())
			tail += values[i].Size()
		}
	}
	return t
}

func (t *Tuple) GetValue(schema *Schema, colIndex uint32) Value {
	col := schema.GetColumn(colIndex)
	offset := col.GetOffset()
	if !col.IsInlined() {
		offset = types.UInt32FromBytes(t.data[offset : offset+4])
	}
	return NewValueFromBytes(t.data[offset:], col.GetType())
}

func (t *Tuple) Size() uint32          { return t.size }
func (t *Tuple) Data() []byte          { return t.data }
func (t *Tuple) GetRID() types.RID     { return t.rid }
func (t *Tuple) SetRID(rid types.RID)  { t.rid = rid }

func (t *Tuple) Copy(offset uint32, data []byte) {
	copy(t.data[offset:], data)
}

// SerializeTo writes an i32 length prefix followed by the tuple's bytes,
// the wire format used inside log record payloads (§4.5). Table pages
// store only the tuple's bytes; the slot array records their length.
func (t *Tuple) SerializeTo(storage []byte) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, t.size)
	copy(storage, buf.Bytes())
	copy(storage[SizeOffsetInLogRecord:SizeOffsetInLogRecord+int(t.size)], t.data)
}

func (t *Tuple) DeserializeFrom(storage []byte) {
	var size uint32
	binary.Read(bytes.NewReader(storage), binary.LittleEndian, &size)
	t.size = size
	t.data = make([]byte, size)
	copy(t.data, storage[SizeOffsetInLogRecord:SizeOffsetInLogRecord+int(size)])
}

// SerializedSize is how many bytes SerializeTo writes: the length prefix
// plus the payload.
func (t *Tuple) SerializedSize() uint32 {
	return SizeOffsetInLogRecord + t.size
}

func (t *Tuple) DeepCopy() *Tuple {
	data := make([]byte, len(t.data))
	copy(data, t.data)
	return &Tuple{rid: t.rid, size: t.size, data: data}
}
