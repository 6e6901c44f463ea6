package jdbc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petreldb/petrel/pkg/config"
	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/plan"
)

func sqlDesc() *plan.TupleDescriptor {
	return &plan.TupleDescriptor{
		Slots: []plan.SlotDescriptor{
			{ID: 0, Name: "id", Type: plan.SlotTypeInt64},
			{ID: 1, Name: "name", Type: plan.SlotTypeString},
			{ID: 2, Name: "active", Type: plan.SlotTypeBool},
		},
	}
}

func sqlNode(props map[string]string) *plan.PlanNode {
	return &plan.PlanNode{
		ConnectorName: connector.NameJDBC,
		TupleDesc:     sqlDesc(),
		Limit:         -1,
		Properties:    props,
	}
}

func TestProviderRequiresDriverAndDSN(t *testing.T) {
	c := NewConnector()

	node := sqlNode(map[string]string{PropDSN: "dsn", PropTable: "t"})
	_, err := c.CreateDataSourceProvider(connector.NewScanNode(node), node)
	assert.Error(t, err, "missing driver")

	node = sqlNode(map[string]string{PropDriver: "mysql", PropTable: "t"})
	_, err = c.CreateDataSourceProvider(connector.NewScanNode(node), node)
	assert.Error(t, err, "missing dsn")

	node = sqlNode(map[string]string{PropDriver: "mysql", PropDSN: "dsn"})
	_, err = c.CreateDataSourceProvider(connector.NewScanNode(node), node)
	assert.Error(t, err, "missing table and query")
}

func TestProviderTraits(t *testing.T) {
	node := sqlNode(map[string]string{PropDriver: "mysql", PropDSN: "dsn", PropTable: "t"})
	p, err := NewConnector().CreateDataSourceProvider(connector.NewScanNode(node), node)
	require.NoError(t, err)

	// No range concept: the scheduler must not prune the scan to zero work,
	// and parallelism comes from an exchange above the scan.
	assert.False(t, p.AcceptEmptyScanRanges())
	assert.True(t, p.InsertLocalExchangeOperator())
	assert.False(t, p.CouldSplit())
	assert.False(t, p.StreamDataSource())
}

func TestEmptyRangesProduceWholeSourceMorsel(t *testing.T) {
	node := sqlNode(map[string]string{PropDriver: "mysql", PropDSN: "dsn", PropTable: "t"})
	p, err := NewConnector().CreateDataSourceProvider(connector.NewScanNode(node), node)
	require.NoError(t, err)

	q, err := p.ConvertScanRangeToMorselQueue(nil, 1, 8, false, config.TabletInternalParallelAuto, 0)
	require.NoError(t, err)
	require.Equal(t, 1, q.NumMorsels())
	assert.Equal(t, 1, p.ScanDop())

	m, ok := q.Pop()
	require.True(t, ok)
	assert.Nil(t, m.ScanRange())

	// A nil range is the normal case for SQL sources.
	ds, err := p.CreateDataSource(m.ScanRange())
	require.NoError(t, err)
	assert.Equal(t, connector.NameJDBC, ds.Name())
}

func TestBuildQueryFromTable(t *testing.T) {
	node := sqlNode(map[string]string{PropDriver: "mysql", PropDSN: "dsn", PropTable: "orders"})
	p, err := NewConnector().CreateDataSourceProvider(connector.NewScanNode(node), node)
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, name, active FROM orders",
		p.(*dataSourceProvider).buildQuery())
}

func TestBuildQueryOverride(t *testing.T) {
	node := sqlNode(map[string]string{
		PropDriver: "mysql",
		PropDSN:    "dsn",
		PropQuery:  "SELECT id, name, active FROM orders WHERE id > 10",
	})
	p, err := NewConnector().CreateDataSourceProvider(connector.NewScanNode(node), node)
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, name, active FROM orders WHERE id > 10",
		p.(*dataSourceProvider).buildQuery())
}

func TestDefaultDataSourceMemBytesScalesWithWidth(t *testing.T) {
	node := sqlNode(map[string]string{PropDriver: "mysql", PropDSN: "dsn", PropTable: "t"})
	p, err := NewConnector().CreateDataSourceProvider(connector.NewScanNode(node), node)
	require.NoError(t, err)

	min, max := p.DefaultDataSourceMemBytes()
	assert.Equal(t, connector.EstimateMemBytesForFields(3), min)
	assert.Equal(t, int64(connector.MaxDataSourceMemBytes), max)
}

func TestPinnedDriverIgnoresProperty(t *testing.T) {
	c := NewConnectorWithDriver(connector.ConnectorTypeMySQL, "mysql")
	assert.Equal(t, connector.ConnectorTypeMySQL, c.ConnectorType())

	// No driver property needed when the connector pins one.
	node := sqlNode(map[string]string{PropDSN: "dsn", PropTable: "t"})
	_, err := c.CreateDataSourceProvider(connector.NewScanNode(node), node)
	assert.NoError(t, err)
}
