package vtable

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/engine"
	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

func numbersSchema() *tuple.Schema {
	return tuple.NewSchema([]*tuple.Column{tuple.NewColumn("n", tuple.Integer)})
}

func newTestVTable(t *testing.T, indexed bool) (*engine.Engine, *Table) {
	eng, err := engine.OpenInMemory(8)
	assert.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	schema := numbersSchema()
	txn := eng.Begin()
	_, err = eng.CreateTable("numbers", txn)
	assert.NoError(t, err)
	eng.Commit(txn)

	indexName := ""
	if indexed {
		indexName = "numbers_idx"
		_, err = eng.CreateIndex(indexName, 4, 4)
		assert.NoError(t, err)
	}

	vt, err := NewTable(eng, "numbers", schema, indexName, eng.Begin())
	assert.NoError(t, err)
	return eng, vt
}

func TestVirtualTableFullScan(t *testing.T) {
	eng, vt := newTestVTable(t, false)

	insertTxn := eng.Begin()
	for _, n := range []int32{1, 2, 3} {
		_, err := vt.Update(UpdateInsert, types.RID{}, []tuple.Value{tuple.NewInteger(n)}, insertTxn)
		assert.NoError(t, err)
	}
	eng.Commit(insertTxn)

	cur, err := vt.Open()
	assert.NoError(t, err)
	assert.NoError(t, cur.Filter(&IndexPlan{}))

	var seen []int32
	for !cur.EOF() {
		v, err := cur.Column(0)
		assert.NoError(t, err)
		seen = append(seen, v.ToInteger())
		assert.NoError(t, cur.Next())
	}
	assert.ElementsMatch(t, []int32{1, 2, 3}, seen)
}

func TestVirtualTableBestIndexUsesEqualityConstraint(t *testing.T) {
	_, vt := newTestVTable(t, true)

	plan := vt.BestIndex([]Constraint{{Column: 0, Op: OpEQ, Value: tuple.NewInteger(5)}})
	assert.True(t, plan.UseIndex)
	assert.EqualValues(t, 5, plan.EqKey)

	plan = vt.BestIndex([]Constraint{{Column: 0, Op: OpGE, Value: tuple.NewInteger(5)}})
	assert.False(t, plan.UseIndex)
}

func TestVirtualTableIndexedSeekFindsRow(t *testing.T) {
	eng, vt := newTestVTable(t, true)

	insertTxn := eng.Begin()
	rid, err := vt.Update(UpdateInsert, types.RID{}, []tuple.Value{tuple.NewInteger(9)}, insertTxn)
	assert.NoError(t, err)
	eng.Commit(insertTxn)

	idx, ok := eng.Index("numbers_idx")
	assert.True(t, ok)
	ok, err = idx.Insert(int64(9), rid)
	assert.NoError(t, err)
	assert.True(t, ok)

	cur, err := vt.Open()
	assert.NoError(t, err)
	assert.NoError(t, cur.Filter(&IndexPlan{UseIndex: true, EqKey: 9}))
	assert.False(t, cur.EOF())
	v, err := cur.Column(0)
	assert.NoError(t, err)
	assert.Equal(t, int32(9), v.ToInteger())
	assert.NoError(t, cur.Next())
	assert.True(t, cur.EOF())
}

func TestVirtualTableIndexedSeekMissingKeyIsEmpty(t *testing.T) {
	_, vt := newTestVTable(t, true)

	cur, err := vt.Open()
	assert.NoError(t, err)
	assert.NoError(t, cur.Filter(&IndexPlan{UseIndex: true, EqKey: 123}))
	assert.True(t, cur.EOF())
}

func TestVirtualTableUpdateDelete(t *testing.T) {
	eng, vt := newTestVTable(t, false)

	insertTxn := eng.Begin()
	rid, err := vt.Update(UpdateInsert, types.RID{}, []tuple.Value{tuple.NewInteger(4)}, insertTxn)
	assert.NoError(t, err)
	eng.Commit(insertTxn)

	deleteTxn := eng.Begin()
	_, err = vt.Update(UpdateDelete, rid, nil, deleteTxn)
	assert.NoError(t, err)
	eng.Commit(deleteTxn)
}
