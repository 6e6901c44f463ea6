package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/expr"
	"github.com/petreldb/petrel/pkg/pipeline"
	"github.com/petreldb/petrel/pkg/plan"
)

func testTupleDesc() *plan.TupleDescriptor {
	return &plan.TupleDescriptor{
		Slots: []plan.SlotDescriptor{
			{ID: 0, Name: "id", Type: plan.SlotTypeInt64},
			{ID: 1, Name: "name", Type: plan.SlotTypeString},
		},
	}
}

func testState(t *testing.T) *exec.State {
	t.Helper()
	return exec.NewState(context.Background(), "q1", "f1", nil)
}

func buildChunk(t *testing.T, ids ...int64) *chunk.Chunk {
	t.Helper()
	c := chunk.New(testTupleDesc(), len(ids))
	for _, id := range ids {
		require.NoError(t, c.AppendRow(id, "row"))
	}
	return c
}

func TestUpdateHasAnyPredicate(t *testing.T) {
	b := NewBaseDataSource("test", testTupleDesc())
	b.UpdateHasAnyPredicate()
	assert.False(t, b.HasAnyPredicate())

	b.SetPredicates([]expr.Predicate{expr.NewComparePredicate("id", expr.OpGT, int64(0))})
	b.UpdateHasAnyPredicate()
	assert.True(t, b.HasAnyPredicate())

	// Idempotent for unchanged inputs.
	b.UpdateHasAnyPredicate()
	assert.True(t, b.HasAnyPredicate())

	b.SetPredicates(nil)
	b.UpdateHasAnyPredicate()
	assert.False(t, b.HasAnyPredicate())

	col := expr.NewRuntimeFilterCollector()
	b.SetRuntimeFilters(col)
	b.UpdateHasAnyPredicate()
	assert.False(t, b.HasAnyPredicate())

	col.Add(expr.NewRuntimeFilter("id", []interface{}{int64(1)}))
	b.UpdateHasAnyPredicate()
	assert.True(t, b.HasAnyPredicate())
}

func TestFinishChunkRowConservation(t *testing.T) {
	b := NewBaseDataSource("test", testTupleDesc())
	b.SetPredicates([]expr.Predicate{expr.NewComparePredicate("id", expr.OpGT, int64(10))})
	b.UpdateHasAnyPredicate()

	out, err := b.FinishChunk(buildChunk(t, 5, 11, 15, 3), 100)
	require.NoError(t, err)

	assert.Equal(t, 2, out.NumRows())
	assert.Equal(t, int64(4), b.RawRowsRead())
	assert.Equal(t, int64(2), b.NumRowsRead())
	assert.Equal(t, int64(100), b.NumBytesRead())
	// Filtering can only shrink.
	assert.GreaterOrEqual(t, b.RawRowsRead(), b.NumRowsRead())
}

func TestFinishChunkNoPredicatePassesThrough(t *testing.T) {
	b := NewBaseDataSource("test", testTupleDesc())
	b.UpdateHasAnyPredicate()

	out, err := b.FinishChunk(buildChunk(t, 1, 2, 3), 30)
	require.NoError(t, err)
	assert.Equal(t, 3, out.NumRows())
	assert.Equal(t, int64(3), b.RawRowsRead())
	assert.Equal(t, int64(3), b.NumRowsRead())
}

func TestFinishChunkReadLimit(t *testing.T) {
	b := NewBaseDataSource("test", testTupleDesc())
	b.SetReadLimit(5)

	out, err := b.FinishChunk(buildChunk(t, 1, 2, 3), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, out.NumRows())
	assert.False(t, b.ReachedLimit())

	out, err = b.FinishChunk(buildChunk(t, 4, 5, 6, 7), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())
	assert.True(t, b.ReachedLimit())
	assert.Equal(t, int64(5), b.NumRowsRead())
}

func TestParseRuntimeFiltersDropsForeignColumns(t *testing.T) {
	b := NewBaseDataSource("test", testTupleDesc())
	col := expr.NewRuntimeFilterCollector()
	col.Add(expr.NewRuntimeFilter("id", []interface{}{int64(1)}))
	col.Add(expr.NewRuntimeFilter("other_table_col", []interface{}{int64(2)}))
	b.SetRuntimeFilters(col)

	state := testState(t)
	require.NoError(t, b.ParseRuntimeFilters(state))
	assert.True(t, b.HasAnyPredicate())

	// Only the filter on a produced column prunes rows.
	out, err := b.FinishChunk(buildChunk(t, 1, 2, 3), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumRows())
	assert.Equal(t, int64(1), out.Column("id").Get(0))
}

func TestParseRuntimeFiltersVersioned(t *testing.T) {
	b := NewBaseDataSource("test", testTupleDesc())
	col := expr.NewRuntimeFilterCollector()
	col.Add(expr.NewRuntimeFilter("id", []interface{}{int64(1), int64(2)}))
	b.SetRuntimeFilters(col)

	state := testState(t)
	require.NoError(t, b.ParseRuntimeFilters(state))

	out, err := b.FinishChunk(buildChunk(t, 1, 2, 3), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())

	// A filter arriving mid-scan has no effect until the next re-parse.
	col.Add(expr.NewRuntimeFilter("name", []interface{}{"other"}))
	out, err = b.FinishChunk(buildChunk(t, 1, 2, 3), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())

	// After re-parsing, all materialized filters apply conjunctively: the
	// name filter rejects every row produced by buildChunk.
	require.NoError(t, b.ParseRuntimeFilters(state))
	out, err = b.FinishChunk(buildChunk(t, 1, 2, 3), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, out.NumRows())
}

func TestRunCloseOnce(t *testing.T) {
	b := NewBaseDataSource("test", testTupleDesc())
	state := testState(t)

	calls := 0
	cleanup := func() error {
		calls++
		return errors.New("cleanup failed")
	}
	b.RunClose(state, cleanup)
	b.RunClose(state, cleanup)
	assert.Equal(t, 1, calls)
}

func TestSetMorselAdoptsSplitContext(t *testing.T) {
	b := NewBaseDataSource("test", testTupleDesc())
	rng, err := plan.NewScanRange(map[string]int{"x": 1}, 100)
	require.NoError(t, err)

	sc := &pipeline.SplitContext{Index: 1, Total: 2, StartRow: 10, EndRow: 20}
	b.SetMorsel(pipeline.NewSplitMorsel(1, rng, sc))
	assert.Equal(t, sc, b.SplitContext())
	assert.NotNil(t, b.Morsel())
}
