package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

func intSchema() *tuple.Schema {
	return tuple.NewSchema([]*tuple.Column{tuple.NewColumn("n", tuple.Integer)})
}

func TestEngineOpenInMemoryInitializesHeaderPage(t *testing.T) {
	e, err := OpenInMemory(4)
	assert.NoError(t, err)
	defer e.Close()

	_, err = e.BufferPool().FetchPage(0)
	assert.NoError(t, err)
	assert.NoError(t, e.BufferPool().UnpinPage(0, false))
}

func TestEngineCreateTableInsertAndCommit(t *testing.T) {
	e, err := OpenInMemory(8)
	assert.NoError(t, err)
	defer e.Close()

	schema := intSchema()
	txn := e.Begin()
	th, err := e.CreateTable("numbers", txn)
	assert.NoError(t, err)

	tup := tuple.NewTupleFromSchema([]tuple.Value{tuple.NewInteger(42)}, schema)
	rid, err := th.InsertTuple(tup, txn)
	assert.NoError(t, err)
	e.Commit(txn)

	readTxn := e.Begin()
	got, err := th.GetTuple(rid, readTxn)
	assert.NoError(t, err)
	assert.Equal(t, int32(42), got.GetValue(schema, 0).ToInteger())
	e.Commit(readTxn)

	_, ok := e.Table("numbers")
	assert.True(t, ok)
}

func TestEngineCreateTableRejectsDuplicateName(t *testing.T) {
	e, err := OpenInMemory(4)
	assert.NoError(t, err)
	defer e.Close()

	txn := e.Begin()
	_, err = e.CreateTable("t", txn)
	assert.NoError(t, err)
	_, err = e.CreateTable("t", txn)
	assert.Error(t, err)
	e.Commit(txn)
}

func TestEngineCreateIndexInsertAndFind(t *testing.T) {
	e, err := OpenInMemory(8)
	assert.NoError(t, err)
	defer e.Close()

	idx, err := e.CreateIndex("numbers_idx", 4, 4)
	assert.NoError(t, err)

	ok, err := idx.Insert(int64(1), types.NewRID(1, 0))
	assert.NoError(t, err)
	assert.True(t, ok)

	fetched, ok := e.Index("numbers_idx")
	assert.True(t, ok)
	rid, found := fetched.GetValue(int64(1))
	assert.True(t, found)
	assert.Equal(t, types.NewRID(1, 0), rid)
}

func TestEngineAbortUndoesInsert(t *testing.T) {
	e, err := OpenInMemory(8)
	assert.NoError(t, err)
	defer e.Close()

	schema := intSchema()
	setupTxn := e.Begin()
	th, err := e.CreateTable("t", setupTxn)
	assert.NoError(t, err)
	e.Commit(setupTxn)

	txn := e.Begin()
	tup := tuple.NewTupleFromSchema([]tuple.Value{tuple.NewInteger(7)}, schema)
	rid, err := th.InsertTuple(tup, txn)
	assert.NoError(t, err)
	e.Abort(txn)

	readTxn := e.Begin()
	_, err = th.GetTuple(rid, readTxn)
	assert.Error(t, err)
	e.Commit(readTxn)
}
