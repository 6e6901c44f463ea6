// Package mysql implements the dedicated MySQL connector. It shares the
// jdbc read machinery but builds its DSN from structured connection
// properties instead of accepting a raw one.
package mysql

import (
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/connector/jdbc"
	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/plan"
)

// Plan node properties the mysql connector understands, in addition to the
// jdbc table/query properties.
const (
	PropHost     = "host"
	PropPort     = "port"
	PropUser     = "user"
	PropPassword = "password"
	PropDatabase = "database"
)

// Connector reads external MySQL servers. Read-only.
type Connector struct {
	connector.NoDataSink
	inner *jdbc.Connector
}

// NewConnector creates the mysql connector.
func NewConnector() *Connector {
	return &Connector{inner: jdbc.NewConnectorWithDriver(connector.ConnectorTypeMySQL, "mysql")}
}

// ConnectorType returns the backend tag.
func (c *Connector) ConnectorType() connector.ConnectorType {
	return connector.ConnectorTypeMySQL
}

// CreateDataSourceProvider builds the DSN from connection properties and
// delegates the scan machinery to the generic SQL provider.
func (c *Connector) CreateDataSourceProvider(scanNode *connector.ScanNode, node *plan.PlanNode) (connector.DataSourceProvider, error) {
	host := node.Property(PropHost, "")
	if host == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mysql scan requires a host property")
	}
	cfg := gomysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", host, node.Property(PropPort, "3306"))
	cfg.User = node.Property(PropUser, "root")
	cfg.Passwd = node.Property(PropPassword, "")
	cfg.DBName = node.Property(PropDatabase, "")
	cfg.ParseTime = true

	// Hand the generic provider a copy of the node carrying the built DSN;
	// the planner's node stays immutable.
	inner := *node
	inner.Properties = make(map[string]string, len(node.Properties)+1)
	for k, v := range node.Properties {
		inner.Properties[k] = v
	}
	inner.Properties[jdbc.PropDSN] = cfg.FormatDSN()
	return c.inner.CreateDataSourceProvider(scanNode, &inner)
}
