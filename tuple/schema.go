package tuple

// Schema is an ordered list of columns with precomputed offsets into a
// tuple's fixed-length region.
type Schema struct {
	columns         []*Column
	unlinedColumns  []uint32
	length          uint32
}

// NewSchema assigns each column its offset: inlined columns pack
// sequentially; a VARCHAR column's slot holds only the 4-byte relative
// offset pointer, same as at runtime.
func NewSchema(columns []*Column) *Schema {
	s := &Schema{columns: columns}
	var offset uint32
	for i, c := range columns {
		c.setOffset(offset)
		offset += c.FixedLength()
		if !c.IsInlined() {
			s.unlinedColumns = append(s.unlinedColumns, uint32(i))
		}
	}
	s.length = offset
	return s
}

func (s *Schema) GetColumn(colIndex uint32) *Column   { return s.columns[colIndex] }
func (s *Schema) GetColumns() []*Column                { return s.columns }
func (s *Schema) GetColumnCount() uint32                { return uint32(len(s.columns)) }
func (s *Schema) GetUnlinedColumns() []uint32           { return s.unlinedColumns }

// Length is the width of the tuple's fixed-length region: the region that
// holds inlined values and out-of-line offset pointers, not counting the
// variable-length payloads that trail it.
func (s *Schema) Length() uint32 { return s.length }

func (s *Schema) GetColIndex(columnName string) uint32 {
	for i, c := range s.columns {
		if c.GetColumnName() == columnName {
			return uint32(i)
		}
	}
	return uint32(len(s.columns))
}
