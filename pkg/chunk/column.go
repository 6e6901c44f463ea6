package chunk

import "fmt"

// ColumnType represents the data type of a column
type ColumnType int

const (
	ColumnTypeInt64 ColumnType = iota
	ColumnTypeFloat64
	ColumnTypeString
	ColumnTypeBool
)

// Column is the base interface for all column types
type Column interface {
	Type() ColumnType
	Len() int
	Get(i int) interface{}
	Append(value interface{}) error
	// Gather returns a new column keeping rows where sel is true.
	Gather(sel []bool) Column
	Truncate(n int)
	Reset()
	MemoryUsage() int64
}

// Int64Column stores int64 values.
type Int64Column struct {
	values []int64
}

// NewInt64Column creates an int64 column with the given capacity.
func NewInt64Column(capacity int) *Int64Column {
	return &Int64Column{values: make([]int64, 0, capacity)}
}

func (c *Int64Column) Type() ColumnType { return ColumnTypeInt64 }

func (c *Int64Column) Len() int { return len(c.values) }

func (c *Int64Column) Get(i int) interface{} { return c.values[i] }

// GetInt64 returns the i-th value without boxing.
func (c *Int64Column) GetInt64(i int) int64 { return c.values[i] }

// AppendInt64 appends a value without boxing.
func (c *Int64Column) AppendInt64(v int64) { c.values = append(c.values, v) }

func (c *Int64Column) Append(value interface{}) error {
	switch v := value.(type) {
	case int64:
		c.values = append(c.values, v)
	case int:
		c.values = append(c.values, int64(v))
	case int32:
		c.values = append(c.values, int64(v))
	default:
		return fmt.Errorf("expected int64, got %T", value)
	}
	return nil
}

func (c *Int64Column) Gather(sel []bool) Column {
	out := NewInt64Column(len(c.values))
	for i, keep := range sel {
		if keep {
			out.values = append(out.values, c.values[i])
		}
	}
	return out
}

func (c *Int64Column) Truncate(n int) {
	if n < len(c.values) {
		c.values = c.values[:n]
	}
}

func (c *Int64Column) Reset() { c.values = c.values[:0] }

func (c *Int64Column) MemoryUsage() int64 { return int64(cap(c.values)) * 8 }

// Float64Column stores float64 values.
type Float64Column struct {
	values []float64
}

// NewFloat64Column creates a float64 column with the given capacity.
func NewFloat64Column(capacity int) *Float64Column {
	return &Float64Column{values: make([]float64, 0, capacity)}
}

func (c *Float64Column) Type() ColumnType { return ColumnTypeFloat64 }

func (c *Float64Column) Len() int { return len(c.values) }

func (c *Float64Column) Get(i int) interface{} { return c.values[i] }

// GetFloat64 returns the i-th value without boxing.
func (c *Float64Column) GetFloat64(i int) float64 { return c.values[i] }

// AppendFloat64 appends a value without boxing.
func (c *Float64Column) AppendFloat64(v float64) { c.values = append(c.values, v) }

func (c *Float64Column) Append(value interface{}) error {
	switch v := value.(type) {
	case float64:
		c.values = append(c.values, v)
	case float32:
		c.values = append(c.values, float64(v))
	case int64:
		c.values = append(c.values, float64(v))
	case int:
		c.values = append(c.values, float64(v))
	default:
		return fmt.Errorf("expected float64, got %T", value)
	}
	return nil
}

func (c *Float64Column) Gather(sel []bool) Column {
	out := NewFloat64Column(len(c.values))
	for i, keep := range sel {
		if keep {
			out.values = append(out.values, c.values[i])
		}
	}
	return out
}

func (c *Float64Column) Truncate(n int) {
	if n < len(c.values) {
		c.values = c.values[:n]
	}
}

func (c *Float64Column) Reset() { c.values = c.values[:0] }

func (c *Float64Column) MemoryUsage() int64 { return int64(cap(c.values)) * 8 }

// StringColumn stores string values.
type StringColumn struct {
	values []string
	bytes  int64
}

// NewStringColumn creates a string column with the given capacity.
func NewStringColumn(capacity int) *StringColumn {
	return &StringColumn{values: make([]string, 0, capacity)}
}

func (c *StringColumn) Type() ColumnType { return ColumnTypeString }

func (c *StringColumn) Len() int { return len(c.values) }

func (c *StringColumn) Get(i int) interface{} { return c.values[i] }

// GetString returns the i-th value without boxing.
func (c *StringColumn) GetString(i int) string { return c.values[i] }

// AppendString appends a value without boxing.
func (c *StringColumn) AppendString(v string) {
	c.values = append(c.values, v)
	c.bytes += int64(len(v))
}

func (c *StringColumn) Append(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	c.AppendString(s)
	return nil
}

func (c *StringColumn) Gather(sel []bool) Column {
	out := NewStringColumn(len(c.values))
	for i, keep := range sel {
		if keep {
			out.AppendString(c.values[i])
		}
	}
	return out
}

func (c *StringColumn) Truncate(n int) {
	if n < len(c.values) {
		for _, s := range c.values[n:] {
			c.bytes -= int64(len(s))
		}
		c.values = c.values[:n]
	}
}

func (c *StringColumn) Reset() {
	c.values = c.values[:0]
	c.bytes = 0
}

func (c *StringColumn) MemoryUsage() int64 {
	return int64(cap(c.values))*16 + c.bytes
}

// BoolColumn stores bool values.
type BoolColumn struct {
	values []bool
}

// NewBoolColumn creates a bool column with the given capacity.
func NewBoolColumn(capacity int) *BoolColumn {
	return &BoolColumn{values: make([]bool, 0, capacity)}
}

func (c *BoolColumn) Type() ColumnType { return ColumnTypeBool }

func (c *BoolColumn) Len() int { return len(c.values) }

func (c *BoolColumn) Get(i int) interface{} { return c.values[i] }

// GetBool returns the i-th value without boxing.
func (c *BoolColumn) GetBool(i int) bool { return c.values[i] }

// AppendBool appends a value without boxing.
func (c *BoolColumn) AppendBool(v bool) { c.values = append(c.values, v) }

func (c *BoolColumn) Append(value interface{}) error {
	b, ok := value.(bool)
	if !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	c.values = append(c.values, b)
	return nil
}

func (c *BoolColumn) Gather(sel []bool) Column {
	out := NewBoolColumn(len(c.values))
	for i, keep := range sel {
		if keep {
			out.values = append(out.values, c.values[i])
		}
	}
	return out
}

func (c *BoolColumn) Truncate(n int) {
	if n < len(c.values) {
		c.values = c.values[:n]
	}
}

func (c *BoolColumn) Reset() { c.values = c.values[:0] }

func (c *BoolColumn) MemoryUsage() int64 { return int64(cap(c.values)) }
