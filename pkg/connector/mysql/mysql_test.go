package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/connector/jdbc"
	"github.com/petreldb/petrel/pkg/plan"
)

func mysqlNode(props map[string]string) *plan.PlanNode {
	return &plan.PlanNode{
		ConnectorName: connector.NameMySQL,
		TupleDesc: &plan.TupleDescriptor{
			Slots: []plan.SlotDescriptor{{ID: 0, Name: "id", Type: plan.SlotTypeInt64}},
		},
		Limit:      -1,
		Properties: props,
	}
}

func TestRequiresHost(t *testing.T) {
	node := mysqlNode(map[string]string{jdbc.PropTable: "t"})
	_, err := NewConnector().CreateDataSourceProvider(connector.NewScanNode(node), node)
	assert.Error(t, err)
}

func TestBuildsProviderFromConnectionProperties(t *testing.T) {
	node := mysqlNode(map[string]string{
		PropHost:       "db.internal",
		PropPort:       "3307",
		PropUser:       "reader",
		PropDatabase:   "shop",
		jdbc.PropTable: "orders",
	})
	p, err := NewConnector().CreateDataSourceProvider(connector.NewScanNode(node), node)
	require.NoError(t, err)
	assert.True(t, p.InsertLocalExchangeOperator())

	// The planner's node stays untouched; the DSN lives in the copy.
	assert.Empty(t, node.Property(jdbc.PropDSN, ""))
}

func TestConnectorType(t *testing.T) {
	assert.Equal(t, connector.ConnectorTypeMySQL, NewConnector().ConnectorType())
}
