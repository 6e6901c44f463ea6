// Package chunk provides the columnar batch exchanged between the scan layer
// and pipeline operators.
//
// The representation is deliberately small: a Chunk is a set of equally-sized
// named columns. The engine's full vectorized representation lives above this
// layer; data sources only need to build, size and filter batches.
package chunk

import (
	"fmt"

	"github.com/petreldb/petrel/pkg/plan"
)

// Chunk is a columnar batch of rows.
type Chunk struct {
	names   []string
	columns []Column
	byName  map[string]int
}

// New creates an empty chunk matching the given tuple descriptor.
func New(desc *plan.TupleDescriptor, capacity int) *Chunk {
	c := &Chunk{byName: make(map[string]int, len(desc.Slots))}
	for _, slot := range desc.Slots {
		c.appendColumn(slot.Name, newColumn(slot.Type, capacity))
	}
	return c
}

// NewEmpty creates a chunk with no columns; columns are added with AddColumn.
func NewEmpty() *Chunk {
	return &Chunk{byName: make(map[string]int)}
}

// AddColumn appends a named column. Columns must all have the same length by
// the time the chunk is handed to a caller.
func (c *Chunk) AddColumn(name string, col Column) {
	c.appendColumn(name, col)
}

func (c *Chunk) appendColumn(name string, col Column) {
	c.byName[name] = len(c.columns)
	c.names = append(c.names, name)
	c.columns = append(c.columns, col)
}

// NumColumns returns the column count.
func (c *Chunk) NumColumns() int { return len(c.columns) }

// NumRows returns the row count of the chunk.
func (c *Chunk) NumRows() int {
	if len(c.columns) == 0 {
		return 0
	}
	return c.columns[0].Len()
}

// IsEmpty reports whether the chunk holds no rows.
func (c *Chunk) IsEmpty() bool { return c.NumRows() == 0 }

// Column returns the column with the given name, or nil.
func (c *Chunk) Column(name string) Column {
	if i, ok := c.byName[name]; ok {
		return c.columns[i]
	}
	return nil
}

// ColumnAt returns the i-th column.
func (c *Chunk) ColumnAt(i int) Column { return c.columns[i] }

// ColumnName returns the name of the i-th column.
func (c *Chunk) ColumnName(i int) string { return c.names[i] }

// AppendRow appends one row of values, one per column, in column order.
func (c *Chunk) AppendRow(values ...interface{}) error {
	if len(values) != len(c.columns) {
		return fmt.Errorf("chunk has %d columns, got %d values", len(c.columns), len(values))
	}
	for i, v := range values {
		if err := c.columns[i].Append(v); err != nil {
			return fmt.Errorf("column %s: %w", c.names[i], err)
		}
	}
	return nil
}

// Filter returns a new chunk keeping only rows where sel is true.
// len(sel) must equal NumRows.
func (c *Chunk) Filter(sel []bool) *Chunk {
	out := &Chunk{byName: make(map[string]int, len(c.columns))}
	for i, col := range c.columns {
		out.appendColumn(c.names[i], col.Gather(sel))
	}
	return out
}

// Truncate drops rows past n, in place.
func (c *Chunk) Truncate(n int) {
	for _, col := range c.columns {
		col.Truncate(n)
	}
}

// Reset clears all rows while keeping column structure and capacity.
func (c *Chunk) Reset() {
	for _, col := range c.columns {
		col.Reset()
	}
}

// MemoryUsage returns the approximate heap footprint of the chunk in bytes.
func (c *Chunk) MemoryUsage() int64 {
	var total int64
	for _, col := range c.columns {
		total += col.MemoryUsage()
	}
	return total
}

func newColumn(t plan.SlotType, capacity int) Column {
	switch t {
	case plan.SlotTypeInt64:
		return NewInt64Column(capacity)
	case plan.SlotTypeFloat64:
		return NewFloat64Column(capacity)
	case plan.SlotTypeString:
		return NewStringColumn(capacity)
	case plan.SlotTypeBool:
		return NewBoolColumn(capacity)
	default:
		return NewStringColumn(capacity)
	}
}
