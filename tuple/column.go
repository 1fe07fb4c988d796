package tuple

// Column describes one field of a Schema: its name, type, and where it
// lives in a serialized tuple. Variable-length columns store a relative
// offset at their schema slot; the payload itself lives past the
// fixed-length region.
type Column struct {
	name       string
	columnType TypeID
	// offset within the tuple's fixed-length region.
	offset uint32
	// fixedLength is the column's footprint if inlined (the 1-byte null
	// flag Value.Serialize writes plus the type's payload), or the width
	// of the relative-offset pointer if not.
	fixedLength uint32
}

func NewColumn(name string, columnType TypeID) *Column {
	c := &Column{name: name, columnType: columnType, fixedLength: columnType.Size() + 1}
	if columnType == Varchar {
		// the schema slot holds a 4-byte relative offset to the
		// out-of-line (length, bytes) payload, not the string itself.
		c.fixedLength = 4
	}
	return c
}

func (c *Column) IsInlined() bool        { return c.columnType != Varchar }
func (c *Column) GetType() TypeID        { return c.columnType }
func (c *Column) GetOffset() uint32      { return c.offset }
func (c *Column) FixedLength() uint32    { return c.fixedLength }
func (c *Column) GetColumnName() string  { return c.name }

// VariableLength is 0: this package never tracks a static bound on a
// VARCHAR's length, only its actual serialized size per-tuple.
func (c *Column) VariableLength() uint32 { return 0 }

func (c *Column) setOffset(offset uint32) { c.offset = offset }
