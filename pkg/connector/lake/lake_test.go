package lake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/config"
	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/expr"
	"github.com/petreldb/petrel/pkg/pipeline"
	"github.com/petreldb/petrel/pkg/plan"
)

func tabletDesc() *plan.TupleDescriptor {
	return &plan.TupleDescriptor{
		Slots: []plan.SlotDescriptor{
			{ID: 0, Name: "id", Type: plan.SlotTypeInt64},
			{ID: 1, Name: "value", Type: plan.SlotTypeFloat64},
		},
	}
}

func makeTablet(t *testing.T, id, version int64, numRows int) *Tablet {
	t.Helper()
	desc := tabletDesc()
	data := chunk.New(desc, numRows)
	for i := 0; i < numRows; i++ {
		require.NoError(t, data.AppendRow(int64(i), float64(i)*0.5))
	}
	return &Tablet{ID: id, Version: version, Desc: desc, Data: data}
}

func testSetup(t *testing.T, tablet *Tablet, limit int64) (*connector.ScanNode, connector.DataSourceProvider, *exec.State) {
	t.Helper()
	store := NewStore()
	store.AddTablet(tablet)

	node := &plan.PlanNode{
		NodeID:        7,
		ConnectorName: connector.NameLake,
		TupleDesc:     tabletDesc(),
		Limit:         limit,
	}
	scanNode := connector.NewScanNode(node)
	provider, err := NewConnector(store).CreateDataSourceProvider(scanNode, node)
	require.NoError(t, err)

	cfg := config.DefaultScanConfig()
	cfg.Limits.ChunkSize = 100
	state := exec.NewState(context.Background(), "q1", "f1", cfg)
	return scanNode, provider, state
}

// drain runs the full protocol on one data source and collects the rows.
func drain(t *testing.T, scanNode *connector.ScanNode, provider connector.DataSourceProvider,
	state *exec.State, m pipeline.Morsel) []int64 {
	t.Helper()
	ds, err := provider.CreateDataSource(m.ScanRange())
	require.NoError(t, err)
	scanNode.Bind(ds)
	ds.SetMorsel(m)
	require.NoError(t, ds.ParseRuntimeFilters(state))
	require.NoError(t, ds.Open(state))
	defer ds.Close(state)

	var ids []int64
	for {
		ch, err := ds.GetNext(state)
		if err == connector.ErrEndOfData {
			return ids
		}
		require.NoError(t, err)
		col := ch.Column("id")
		for i := 0; i < col.Len(); i++ {
			ids = append(ids, col.Get(i).(int64))
		}
	}
}

func TestLakeScanWholeTablet(t *testing.T) {
	tablet := makeTablet(t, 1, 3, 250)
	scanNode, provider, state := testSetup(t, tablet, -1)

	rng, err := NewScanRange(tablet)
	require.NoError(t, err)
	ids := drain(t, scanNode, provider, state, pipeline.NewScanMorsel(7, rng))

	require.Len(t, ids, 250)
	assert.Equal(t, int64(0), ids[0])
	assert.Equal(t, int64(249), ids[249])
}

func TestLakeScanWithPredicate(t *testing.T) {
	tablet := makeTablet(t, 1, 1, 100)
	scanNode, provider, state := testSetup(t, tablet, -1)
	scanNode.SetConjuncts([]expr.Predicate{expr.NewComparePredicate("id", expr.OpGT, int64(89))})

	rng, err := NewScanRange(tablet)
	require.NoError(t, err)
	ids := drain(t, scanNode, provider, state, pipeline.NewScanMorsel(7, rng))

	require.Len(t, ids, 10)
	assert.Equal(t, int64(90), ids[0])
}

func TestLakeScanWithLimit(t *testing.T) {
	tablet := makeTablet(t, 1, 1, 100)
	scanNode, provider, state := testSetup(t, tablet, 42)

	rng, err := NewScanRange(tablet)
	require.NoError(t, err)
	ids := drain(t, scanNode, provider, state, pipeline.NewScanMorsel(7, rng))
	assert.Len(t, ids, 42)
}

// Splitting a tablet across morsels must reproduce exactly the unsplit rows.
func TestLakeSplitMorselsCoverTablet(t *testing.T) {
	const numRows = 300_000
	tablet := makeTablet(t, 1, 1, numRows)
	scanNode, provider, state := testSetup(t, tablet, -1)
	state.Config().Limits.ChunkSize = 4096

	rng, err := NewScanRange(tablet)
	require.NoError(t, err)
	queue, err := provider.ConvertScanRangeToMorselQueue(
		[]*plan.ScanRange{rng}, 7, 4, true, config.TabletInternalParallelAuto, 1)
	require.NoError(t, err)
	require.Equal(t, 4, queue.NumMorsels())
	assert.Equal(t, int64(numRows), provider.SplittedScanRows())
	assert.Equal(t, 4, provider.ScanDop())

	seen := make(map[int64]bool, numRows)
	total := 0
	for {
		m, ok := queue.Pop()
		if !ok {
			break
		}
		require.NotNil(t, m.SplitContext())
		ids := drain(t, scanNode, provider, state, m)
		total += len(ids)
		for _, id := range ids {
			seen[id] = true
		}
	}
	// Same row count and distinct ids: no gaps, no overlap.
	assert.Equal(t, numRows, total)
	assert.Len(t, seen, numRows)
}

func TestLakeVersionMismatch(t *testing.T) {
	tablet := makeTablet(t, 1, 5, 10)
	scanNode, provider, state := testSetup(t, tablet, -1)

	rng, err := plan.NewScanRange(ScanRangeSpec{TabletID: 1, Version: 4}, 10)
	require.NoError(t, err)
	ds, err := provider.CreateDataSource(rng)
	require.NoError(t, err)
	scanNode.Bind(ds)

	err = ds.Open(state)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}

func TestLakeUnknownTablet(t *testing.T) {
	tablet := makeTablet(t, 1, 1, 10)
	scanNode, provider, state := testSetup(t, tablet, -1)

	rng, err := plan.NewScanRange(ScanRangeSpec{TabletID: 99, Version: 1}, 10)
	require.NoError(t, err)
	ds, err := provider.CreateDataSource(rng)
	require.NoError(t, err)
	scanNode.Bind(ds)

	err = ds.Open(state)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestLakeMalformedRange(t *testing.T) {
	tablet := makeTablet(t, 1, 1, 10)
	_, provider, _ := testSetup(t, tablet, -1)

	bad, err := plan.NewScanRange(ScanRangeSpec{TabletID: 0}, -1)
	require.NoError(t, err)
	_, err = provider.ConvertScanRangeToMorselQueue(
		[]*plan.ScanRange{bad}, 7, 1, false, config.TabletInternalParallelAuto, 1)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedRange))
}

func TestLakeMemEstimate(t *testing.T) {
	tablet := makeTablet(t, 1, 1, 100)
	scanNode, provider, state := testSetup(t, tablet, -1)

	rng, err := NewScanRange(tablet)
	require.NoError(t, err)
	ds, err := provider.CreateDataSource(rng)
	require.NoError(t, err)
	scanNode.Bind(ds)

	assert.True(t, ds.CanEstimateMemUsage())
	assert.Greater(t, ds.EstimatedMemUsage(), int64(0))
	require.NoError(t, ds.Open(state))
	assert.Greater(t, ds.EstimatedMemUsage(), int64(0))
	ds.Close(state)
}
