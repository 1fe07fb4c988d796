package types

import (
	"bytes"
	"encoding/binary"
)

// UInt32Bytes and UInt32FromBytes are the little-endian uint32 codec used
// throughout the on-disk page layouts (slot offsets, free-space pointers,
// tuple counts, and the relative offsets variable-length tuple columns
// store in their fixed-length slot).

func UInt32Bytes(v uint32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func UInt32FromBytes(data []byte) uint32 {
	var v uint32
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &v)
	return v
}

func Int32Bytes(v int32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func Int32FromBytes(data []byte) int32 {
	var v int32
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &v)
	return v
}
