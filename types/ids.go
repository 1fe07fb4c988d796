// Package types holds the small value types shared across every layer of
// the storage engine: page and transaction identifiers, log sequence
// numbers, and row identifiers.
package types

import (
	"bytes"
	"encoding/binary"
)

// PageID identifies a page within the database file. Page 0 is reserved
// for the header page.
type PageID int32

// InvalidPageID is the sentinel for "no page".
const InvalidPageID PageID = -1

// IsValid reports whether id refers to a real page.
func (id PageID) IsValid() bool { return id != InvalidPageID }

// Serialize encodes id as 4 little-endian bytes.
func (id PageID) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, id)
	return buf.Bytes()
}

// NewPageIDFromBytes decodes a PageID from its little-endian encoding.
func NewPageIDFromBytes(data []byte) PageID {
	var id PageID
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &id)
	return id
}

// TxnID identifies a transaction. Smaller ids are older, which is the
// ordering the wait-die lock manager relies on.
type TxnID int32

// InvalidTxnID is the sentinel for "no transaction".
const InvalidTxnID TxnID = -1

func (id TxnID) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, id)
	return buf.Bytes()
}

func NewTxnIDFromBytes(data []byte) TxnID {
	var id TxnID
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &id)
	return id
}

// LSN is a log sequence number: a monotonically increasing id assigned to
// every log record by the log manager.
type LSN int32

// InvalidLSN is the sentinel for "no LSN has touched this page yet".
const InvalidLSN LSN = -1

func (lsn LSN) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, lsn)
	return buf.Bytes()
}

func NewLSNFromBytes(data []byte) LSN {
	var lsn LSN
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &lsn)
	return lsn
}

// RID is a row identifier: the (page id, slot number) pair that locates a
// tuple inside a table heap page.
type RID struct {
	PageID  PageID
	SlotNum uint32
}

func NewRID(pageID PageID, slotNum uint32) RID {
	return RID{PageID: pageID, SlotNum: slotNum}
}

// Encode packs the rid into a single 64-bit value, for use as a lock-table
// or hash-table key.
func (r RID) Encode() uint64 {
	return uint64(uint32(r.PageID))<<32 | uint64(r.SlotNum)
}

func RIDFromEncoded(v uint64) RID {
	return RID{PageID: PageID(int32(v >> 32)), SlotNum: uint32(v)}
}

func (r RID) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, r.PageID)
	binary.Write(buf, binary.LittleEndian, r.SlotNum)
	return buf.Bytes()
}

func NewRIDFromBytes(data []byte) RID {
	var r RID
	buf := bytes.NewReader(data)
	binary.Read(buf, binary.LittleEndian, &r.PageID)
	binary.Read(buf, binary.LittleEndian, &r.SlotNum)
	return r
}

// SizeOfRID is the encoded size of an RID in bytes.
const SizeOfRID = 8

// FrameID identifies a slot in the buffer pool's frame array.
type FrameID int32
