package connector

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/logger"
	"github.com/petreldb/petrel/pkg/plan"
)

// ConnectorType identifies one backend kind. The enum is closed; new backends
// implement the Connector interface under an existing or newly added tag
// without touching the registry or scheduler.
type ConnectorType int

const (
	ConnectorTypeHive ConnectorType = iota
	ConnectorTypeES
	ConnectorTypeJDBC
	ConnectorTypeMySQL
	ConnectorTypeFile
	ConnectorTypeLake
	ConnectorTypeBinlog
	ConnectorTypeIceberg
)

// Canonical connector names used as registry keys.
const (
	NameHive    = "hive"
	NameES      = "es"
	NameJDBC    = "jdbc"
	NameMySQL   = "mysql"
	NameFile    = "file"
	NameLake    = "lake"
	NameBinlog  = "binlog"
	NameIceberg = "iceberg"
)

func (t ConnectorType) String() string {
	switch t {
	case ConnectorTypeHive:
		return NameHive
	case ConnectorTypeES:
		return NameES
	case ConnectorTypeJDBC:
		return NameJDBC
	case ConnectorTypeMySQL:
		return NameMySQL
	case ConnectorTypeFile:
		return NameFile
	case ConnectorTypeLake:
		return NameLake
	case ConnectorTypeBinlog:
		return NameBinlog
	case ConnectorTypeIceberg:
		return NameIceberg
	default:
		return fmt.Sprintf("connector(%d)", int(t))
	}
}

// Connector is the identity and factory pair for one backend kind. Connectors
// are stateless singletons owning no per-query state; all per-scan state
// lives in the providers they create.
//
// A connector that does not support one of the two directions must fail fast
// and loudly (that is a wiring bug, not a runtime condition); embed
// NoDataSource or NoDataSink to get that behavior.
type Connector interface {
	ConnectorType() ConnectorType
	// CreateDataSourceProvider builds the read-path provider for one logical
	// scan.
	CreateDataSourceProvider(scanNode *ScanNode, node *plan.PlanNode) (DataSourceProvider, error)
	// CreateDataSinkProvider builds the write-path chunk sink provider.
	CreateDataSinkProvider() (ChunkSinkProvider, error)
}

// NoDataSource is embedded by write-only connectors; asking it for a read
// provider is a programming error and panics.
type NoDataSource struct{}

// CreateDataSourceProvider panics: the connector has no read path.
func (NoDataSource) CreateDataSourceProvider(*ScanNode, *plan.PlanNode) (DataSourceProvider, error) {
	panic("connector does not implement a data source; read path requested on a write-only connector")
}

// NoDataSink is embedded by read-only connectors; asking it for a sink
// provider is a programming error and panics.
type NoDataSink struct{}

// CreateDataSinkProvider panics: the connector has no write path.
func (NoDataSink) CreateDataSinkProvider() (ChunkSinkProvider, error) {
	panic("connector does not implement a chunk sink; write path requested on a read-only connector")
}

// ConnectorManager maps connector names to Connector instances. It is
// populated once at process startup from the compiled-in backend list, then
// read concurrently by planning threads. There is no removal or hot-reload
// path.
type ConnectorManager struct {
	mu         sync.RWMutex
	connectors map[string]Connector
	log        *zap.Logger
}

// NewConnectorManager creates an empty manager.
func NewConnectorManager() *ConnectorManager {
	return &ConnectorManager{
		connectors: make(map[string]Connector),
		log:        logger.With(zap.String("component", "connector_manager")),
	}
}

// Get returns the connector registered under name, or a not-found error.
func (m *ConnectorManager) Get(name string) (Connector, error) {
	m.mu.RLock()
	c, ok := m.connectors[name]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connector %q is not registered", name)
	}
	return c, nil
}

// Put registers a connector under its canonical name, transferring ownership
// to the manager. Registering the same name twice is a startup wiring bug.
func (m *ConnectorManager) Put(name string, c Connector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.connectors[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "connector %q already registered", name)
	}
	m.connectors[name] = c
	m.log.Info("connector registered",
		zap.String("name", name),
		zap.String("type", c.ConnectorType().String()))
	return nil
}

// Names returns the registered connector names.
func (m *ConnectorManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.connectors))
	for name := range m.connectors {
		names = append(names, name)
	}
	return names
}

var (
	defaultManager     *ConnectorManager
	defaultManagerOnce sync.Once
)

// DefaultManager returns the process-wide manager instance. Callers populate
// it fully at startup before exposing it to query traffic.
func DefaultManager() *ConnectorManager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewConnectorManager()
	})
	return defaultManager
}
