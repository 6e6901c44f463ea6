// Package expr provides the predicate and runtime-filter plumbing pushed down
// into data sources. Predicates evaluate against columnar chunks and combine
// conjunctively into a shared selection vector.
package expr

import (
	"fmt"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/errors"
)

// CompareOp is a comparison operator for column predicates.
type CompareOp int

const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

func (op CompareOp) String() string {
	switch op {
	case OpEQ:
		return "="
	case OpNE:
		return "!="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	}
	return "?"
}

// Predicate filters rows of a chunk. EvaluateSelection ANDs its result into
// sel: rows already false stay false, rows that fail the predicate become
// false. len(sel) must equal the chunk's row count.
type Predicate interface {
	Column() string
	String() string
	EvaluateSelection(c *chunk.Chunk, sel []bool) error
}

// comparePredicate compares one column against a constant.
type comparePredicate struct {
	column string
	op     CompareOp
	value  interface{}
}

// NewComparePredicate builds a column-vs-constant predicate. The constant is
// normalized so int means int64 and float32 means float64.
func NewComparePredicate(column string, op CompareOp, value interface{}) Predicate {
	switch v := value.(type) {
	case int:
		value = int64(v)
	case int32:
		value = int64(v)
	case float32:
		value = float64(v)
	}
	return &comparePredicate{column: column, op: op, value: value}
}

func (p *comparePredicate) Column() string { return p.column }

func (p *comparePredicate) String() string {
	return fmt.Sprintf("%s %s %v", p.column, p.op, p.value)
}

func (p *comparePredicate) EvaluateSelection(c *chunk.Chunk, sel []bool) error {
	col := c.Column(p.column)
	if col == nil {
		return errors.Newf(errors.ErrorTypeData, "predicate column %q not in chunk", p.column)
	}
	if len(sel) != col.Len() {
		return errors.Newf(errors.ErrorTypeData, "selection length %d does not match rows %d", len(sel), col.Len())
	}
	for i := range sel {
		if !sel[i] {
			continue
		}
		cmp, err := compareValues(col.Get(i), p.value)
		if err != nil {
			return err
		}
		sel[i] = opHolds(p.op, cmp)
	}
	return nil
}

func opHolds(op CompareOp, cmp int) bool {
	switch op {
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	}
	return false
}

// compareValues orders two cell values of the same logical type.
func compareValues(a, b interface{}) (int, error) {
	switch av := a.(type) {
	case int64:
		bv, ok := b.(int64)
		if !ok {
			return 0, errors.Newf(errors.ErrorTypeData, "cannot compare int64 with %T", b)
		}
		return compareOrdered(av, bv), nil
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, errors.Newf(errors.ErrorTypeData, "cannot compare float64 with %T", b)
		}
		return compareOrdered(av, bv), nil
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, errors.Newf(errors.ErrorTypeData, "cannot compare string with %T", b)
		}
		return compareOrdered(av, bv), nil
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, errors.Newf(errors.ErrorTypeData, "cannot compare bool with %T", b)
		}
		return compareOrdered(boolToInt(av), boolToInt(bv)), nil
	default:
		return 0, errors.Newf(errors.ErrorTypeData, "unsupported predicate value type %T", a)
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func compareOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
