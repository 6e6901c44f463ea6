package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/connector/binlog"
	"github.com/petreldb/petrel/pkg/connector/lake"
	"github.com/petreldb/petrel/pkg/plan"
)

func TestRegisterAllCore(t *testing.T) {
	m := connector.NewConnectorManager()
	require.NoError(t, RegisterAll(m, Options{}))

	assert.ElementsMatch(t, []string{
		connector.NameJDBC, connector.NameMySQL, connector.NameFile,
	}, m.Names())
}

func TestRegisterAllWithCollaborators(t *testing.T) {
	m := connector.NewConnectorManager()
	opts := Options{
		LakeStore: lake.NewStore(),
		BinlogReaderFactory: func(node *plan.PlanNode, spec binlog.ScanRangeSpec) (binlog.ChangelogReader, error) {
			return binlog.NewMemoryChangelog().NewReader(), nil
		},
	}
	require.NoError(t, RegisterAll(m, opts))

	for _, name := range []string{
		connector.NameJDBC, connector.NameMySQL, connector.NameFile,
		connector.NameLake, connector.NameBinlog,
	} {
		c, err := m.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, c.ConnectorType().String())
	}
}

func TestRegisterAllTwiceFails(t *testing.T) {
	m := connector.NewConnectorManager()
	require.NoError(t, RegisterAll(m, Options{}))
	assert.Error(t, RegisterAll(m, Options{}))
}
