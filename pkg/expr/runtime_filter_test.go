package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeFilterMightContain(t *testing.T) {
	f := NewRuntimeFilter("id", []interface{}{int64(1), int64(3), int64(5)})

	assert.True(t, f.MightContain(int64(1)))
	assert.True(t, f.MightContain(int64(5)))
	assert.False(t, f.MightContain(int64(2)))
	// Plain ints hash the same as int64.
	assert.True(t, f.MightContain(3))
}

func TestRuntimeFilterUnsupportedTypePasses(t *testing.T) {
	f := NewRuntimeFilter("id", []interface{}{int64(1)})
	assert.True(t, f.MightContain([]byte("opaque")))
}

func TestRuntimeFilterEvaluateSelection(t *testing.T) {
	c := intChunk(t, 1, 2, 3, 4)
	f := NewRuntimeFilter("id", []interface{}{int64(2), int64(4)})

	sel := allTrue(4)
	require.NoError(t, f.EvaluateSelection(c, sel))
	assert.Equal(t, []bool{false, true, false, true}, sel)
}

func TestRuntimeFilterMissingColumnIsNoop(t *testing.T) {
	c := intChunk(t, 1, 2)
	f := NewRuntimeFilter("other", []interface{}{int64(999)})

	sel := allTrue(2)
	require.NoError(t, f.EvaluateSelection(c, sel))
	assert.Equal(t, []bool{true, true}, sel)
}

func TestCollectorVersioning(t *testing.T) {
	col := NewRuntimeFilterCollector()
	assert.False(t, col.HasFilters())
	assert.Equal(t, uint64(0), col.Version())

	col.Add(NewRuntimeFilter("id", []interface{}{int64(1)}))
	assert.True(t, col.HasFilters())
	assert.Equal(t, uint64(1), col.Version())
	assert.Len(t, col.Filters(), 1)

	col.Add(NewRuntimeFilter("name", []interface{}{"x"}))
	assert.Equal(t, uint64(2), col.Version())
	assert.Len(t, col.Filters(), 2)
}
