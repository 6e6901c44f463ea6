package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/config"
	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/expr"
	"github.com/petreldb/petrel/pkg/pipeline"
	"github.com/petreldb/petrel/pkg/plan"
)

func fileDesc() *plan.TupleDescriptor {
	return &plan.TupleDescriptor{
		Slots: []plan.SlotDescriptor{
			{ID: 0, Name: "id", Type: plan.SlotTypeInt64},
			{ID: 1, Name: "name", Type: plan.SlotTypeString},
		},
	}
}

func writeJSONL(t *testing.T, numRows int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < numRows; i++ {
		_, err := fmt.Fprintf(f, "{\"id\": %d, \"name\": \"row-%d\"}\n", i, i)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	return path
}

func fileState(t *testing.T) *exec.State {
	t.Helper()
	cfg := config.DefaultScanConfig()
	cfg.Limits.ChunkSize = 64
	return exec.NewState(context.Background(), "q1", "f1", cfg)
}

func scanFile(t *testing.T, path string, conjuncts []expr.Predicate, limit int64) []int64 {
	t.Helper()
	node := &plan.PlanNode{ConnectorName: connector.NameFile, TupleDesc: fileDesc(), Limit: limit}
	scanNode := connector.NewScanNode(node)
	scanNode.SetConjuncts(conjuncts)

	provider, err := NewConnector().CreateDataSourceProvider(scanNode, node)
	require.NoError(t, err)

	rng, err := NewScanRange(path)
	require.NoError(t, err)
	ds, err := provider.CreateDataSource(rng)
	require.NoError(t, err)
	scanNode.Bind(ds)
	ds.SetMorsel(pipeline.NewScanMorsel(0, rng))

	state := fileState(t)
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

func TestFileScanReadsAllRows(t *testing.T) {
	path := writeJSONL(t, 200)
	ids := scanFile(t, path, nil, -1)
	require.Len(t, ids, 200)
	assert.Equal(t, int64(0), ids[0])
	assert.Equal(t, int64(199), ids[199])
}

func TestFileScanWithPredicate(t *testing.T) {
	path := writeJSONL(t, 100)
	ids := scanFile(t, path, []expr.Predicate{expr.NewComparePredicate("id", expr.OpGT, int64(10))}, -1)
	require.Len(t, ids, 89)
	assert.Equal(t, int64(11), ids[0])
}

func TestFileScanWithLimit(t *testing.T) {
	path := writeJSONL(t, 100)
	ids := scanFile(t, path, nil, 7)
	assert.Len(t, ids, 7)
}

func TestFileScanEmptyFile(t *testing.T) {
	path := writeJSONL(t, 0)
	ids := scanFile(t, path, nil, -1)
	assert.Empty(t, ids)
}

func TestFileScanMissingFile(t *testing.T) {
	node := &plan.PlanNode{ConnectorName: connector.NameFile, TupleDesc: fileDesc(), Limit: -1}
	scanNode := connector.NewScanNode(node)
	provider, err := NewConnector().CreateDataSourceProvider(scanNode, node)
	require.NoError(t, err)

	rng, err := NewScanRange(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	ds, err := provider.CreateDataSource(rng)
	require.NoError(t, err)
	scanNode.Bind(ds)

	assert.Error(t, ds.Open(fileState(t)))
}

func TestFileScanMissingField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\": 1}\n"), 0o644))

	node := &plan.PlanNode{ConnectorName: connector.NameFile, TupleDesc: fileDesc(), Limit: -1}
	scanNode := connector.NewScanNode(node)
	provider, err := NewConnector().CreateDataSourceProvider(scanNode, node)
	require.NoError(t, err)

	rng, err := NewScanRange(path)
	require.NoError(t, err)
	ds, err := provider.CreateDataSource(rng)
	require.NoError(t, err)
	scanNode.Bind(ds)

	state := fileState(t)
	require.NoError(t, ds.Open(state))
	defer ds.Close(state)
	_, err = ds.GetNext(state)
	assert.Error(t, err)
}

func TestFileSinkRoundTrip(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out.jsonl")
	node := &plan.PlanNode{
		ConnectorName: connector.NameFile,
		TupleDesc:     fileDesc(),
		Limit:         -1,
		Properties:    map[string]string{"path": outPath},
	}

	sinkProvider, err := NewConnector().CreateDataSinkProvider()
	require.NoError(t, err)
	state := fileState(t)
	sink, err := sinkProvider.CreateChunkSink(node, state, 0)
	require.NoError(t, err)
	require.NoError(t, sink.Open(state))

	ch := chunk.New(fileDesc(), 3)
	require.NoError(t, ch.AppendRow(int64(1), "a"))
	require.NoError(t, ch.AppendRow(int64(2), "b"))
	require.NoError(t, ch.AppendRow(int64(3), "c"))
	require.NoError(t, sink.AppendChunk(ch))
	require.NoError(t, sink.Finish())

	// What the sink wrote, the source must read back.
	ids := scanFile(t, outPath, nil, -1)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestFileSinkDriverSuffix(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out.jsonl")
	node := &plan.PlanNode{
		TupleDesc:  fileDesc(),
		Limit:      -1,
		Properties: map[string]string{"path": outPath},
	}
	sinkProvider, err := NewConnector().CreateDataSinkProvider()
	require.NoError(t, err)
	state := fileState(t)

	sink, err := sinkProvider.CreateChunkSink(node, state, 2)
	require.NoError(t, err)
	require.NoError(t, sink.Open(state))
	require.NoError(t, sink.Finish())

	_, err = os.Stat(outPath + ".2")
	assert.NoError(t, err)
}

func TestFileSinkAbortRemovesOutput(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out.jsonl")
	node := &plan.PlanNode{
		TupleDesc:  fileDesc(),
		Limit:      -1,
		Properties: map[string]string{"path": outPath},
	}
	sinkProvider, err := NewConnector().CreateDataSinkProvider()
	require.NoError(t, err)
	state := fileState(t)

	sink, err := sinkProvider.CreateChunkSink(node, state, 0)
	require.NoError(t, err)
	require.NoError(t, sink.Open(state))
	sink.Abort(state)

	_, err = os.Stat(outPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFileSinkRequiresPath(t *testing.T) {
	node := &plan.PlanNode{TupleDesc: fileDesc(), Limit: -1}
	sinkProvider, err := NewConnector().CreateDataSinkProvider()
	require.NoError(t, err)
	_, err = sinkProvider.CreateChunkSink(node, fileState(t), 0)
	assert.Error(t, err)
}
