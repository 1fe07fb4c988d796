// Package vtable expresses the engine's embedding surface as a
// SQLite-style virtual table module: a host that owns SQL parsing and
// query planning drives one VirtualTable per mapped table through
// Open/BestIndex/Filter/Next/Column/Rowid/Update, never reaching into
// engine.Engine's buffer pool, locks or log manager directly.
package vtable

import (
	"github.com/latchdb/latchdb/concurrency"
	"github.com/latchdb/latchdb/engine"
	"github.com/latchdb/latchdb/storage"
	"github.com/latchdb/latchdb/storage/table"
	"github.com/latchdb/latchdb/tuple"
	"github.com/latchdb/latchdb/types"
)

// ConstraintOp names the comparison a planner-supplied Constraint asks
// BestIndex to satisfy. Only equality on column 0 is index-accelerated;
// every other constraint gets a full scan, and the cursor does not apply
// the constraint: it returns every row.
type ConstraintOp int

const (
	OpEQ ConstraintOp = iota
	OpGE
	OpLE
)

// Constraint is one WHERE-clause term a host's planner offers BestIndex,
// named by column position against the table's schema.
type Constraint struct {
	Column int
	Op     ConstraintOp
	Value  tuple.Value
}

// IndexPlan is BestIndex's answer: whether Filter should use the table's
// index and, if so, the equality key to seek on. The zero value means
// "full table scan."
type IndexPlan struct {
	UseIndex bool
	EqKey    int64
}

// UpdateOp names the mutation Update is asked to perform.
type UpdateOp int

const (
	UpdateInsert UpdateOp = iota
	UpdateDelete
	UpdateModify
)

// VirtualTable is the adapter boundary: one table backed by one
// engine.Engine value, opened and scanned without the host needing to
// know about table heaps, B+-tree indexes, or transactions' lock sets.
type VirtualTable interface {
	Open() (Cursor, error)
	BestIndex(constraints []Constraint) *IndexPlan
	Update(op UpdateOp, rid types.RID, values []tuple.Value, txn *concurrency.Transaction) (types.RID, error)
}

// Cursor walks the rows a Filter call selected, SQLite-vtab style:
// Filter positions it, EOF/Next drive the walk, Column/Rowid read the
// row currently under it.
type Cursor interface {
	Filter(plan *IndexPlan) error
	Next() error
	EOF() bool
	Column(col int) (tuple.Value, error)
	Rowid() (types.RID, error)
	Close()
}

// Table adapts one named engine table, plus an optional rowid/integer
// index over its first column, into a VirtualTable.
type Table struct {
	eng       *engine.Engine
	schema    *tuple.Schema
	heap      *table.TableHeap
	indexName string
	txn       *concurrency.Transaction
}

// NewTable looks up name's table heap in eng and wraps it. indexName may
// be empty, in which case BestIndex never recommends index use and
// Filter always does a full scan.
func NewTable(eng *engine.Engine, name string, schema *tuple.Schema, indexName string, txn *concurrency.Transaction) (*Table, error) {
	heap, ok := eng.Table(name)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &Table{eng: eng, schema: schema, heap: heap, indexName: indexName, txn: txn}, nil
}

func (t *Table) Open() (Cursor, error) {
	return &tableCursor{table: t}, nil
}

// BestIndex recommends an indexed equality seek on column 0 when the
// planner offers one and this table has an index; every other case
// (range constraints, no constraints, no index) falls back to a scan
// that Filter performs via the table heap's own iterator.
func (t *Table) BestIndex(constraints []Constraint) *IndexPlan {
	if t.indexName == "" {
		return &IndexPlan{}
	}
	for _, c := range constraints {
		if c.Column == 0 && c.Op == OpEQ {
			return &IndexPlan{UseIndex: true, EqKey: int64(c.Value.ToInteger())}
		}
	}
	return &IndexPlan{}
}

// Update inserts, mark-deletes, or in-place-updates one row, delegating
// to the table heap's lock- and log-aware methods.
func (t *Table) Update(op UpdateOp, rid types.RID, values []tuple.Value, txn *concurrency.Transaction) (types.RID, error) {
	switch op {
	case UpdateInsert:
		tup := tuple.NewTupleFromSchema(values, t.schema)
		return t.heap.InsertTuple(tup, txn)
	case UpdateDelete:
		return rid, t.heap.MarkDelete(rid, txn)
	case UpdateModify:
		tup := tuple.NewTupleFromSchema(values, t.schema)
		return t.heap.UpdateTuple(tup, rid, txn)
	default:
		return types.RID{}, storage.ErrNotFound
	}
}

// tableCursor is the scan state behind one Open call: either a table
// heap iterator (full scan) or a single resolved row (indexed equality
// seek, which this B+-tree index treats as at most one match per key).
type tableCursor struct {
	table *Table

	usingIndex bool
	iter       *table.TableHeapIterator

	eqResolved bool
	eqTuple    *tuple.Tuple
}

func (c *tableCursor) Filter(plan *IndexPlan) error {
	if plan != nil && plan.UseIndex {
		idx, ok := c.table.eng.Index(c.table.indexName)
		if !ok {
			return storage.ErrNotFound
		}
		c.usingIndex = true
		c.eqResolved = true
		rid, found := idx.GetValue(plan.EqKey)
		if !found {
			c.eqTuple = nil
			return nil
		}
		tup, err := c.table.heap.GetTuple(rid, c.table.txn)
		if err != nil {
			return err
		}
		c.eqTuple = tup
		return nil
	}
	c.usingIndex = false
	c.iter = c.table.heap.Iterator(c.table.txn)
	return nil
}

func (c *tableCursor) Next() error {
	if c.usingIndex {
		c.eqTuple = nil
		return nil
	}
	c.iter.Next()
	return nil
}

func (c *tableCursor) EOF() bool {
	if c.usingIndex {
		return c.eqTuple == nil
	}
	return c.iter.End()
}

func (c *tableCursor) Column(col int) (tuple.Value, error) {
	tup := c.current()
	if tup == nil {
		return tuple.Value{}, storage.ErrNotFound
	}
	return tup.GetValue(c.table.schema, uint32(col)), nil
}

func (c *tableCursor) Rowid() (types.RID, error) {
	tup := c.current()
	if tup == nil {
		return types.RID{}, storage.ErrNotFound
	}
	return tup.GetRID(), nil
}

func (c *tableCursor) Close() {}

func (c *tableCursor) current() *tuple.Tuple {
	if c.usingIndex {
		return c.eqTuple
	}
	return c.iter.Current()
}
