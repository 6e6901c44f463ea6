// Package jdbc implements the generic SQL-database connector over
// database/sql. Any registered driver works; the engine binary blank-imports
// the drivers it ships (mysql, pgx).
//
// SQL backends have no scan-range concept: the whole table is one unit of
// work, parallelism is capped at one driver per scan, and the scheduler gets
// full parallelism back by inserting a local exchange above the scan.
package jdbc

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/plan"
)

// Plan node properties the jdbc connector understands.
const (
	PropDriver = "driver" // database/sql driver name
	PropDSN    = "dsn"    // driver-specific data source name
	PropTable  = "table"  // table to scan
	PropQuery  = "query"  // full query overriding the generated one
)

// Connector reads external SQL databases. Read-only.
type Connector struct {
	connector.NoDataSink
	typ ConnectorTypeOverride
}

// ConnectorTypeOverride lets the dedicated mysql connector reuse this
// implementation under its own tag.
type ConnectorTypeOverride struct {
	Type   connector.ConnectorType
	Driver string // fixed driver name, empty means read from properties
}

// NewConnector creates the generic jdbc connector.
func NewConnector() *Connector {
	return &Connector{typ: ConnectorTypeOverride{Type: connector.ConnectorTypeJDBC}}
}

// NewConnectorWithDriver creates a jdbc-style connector pinned to one driver
// and reported under the given tag.
func NewConnectorWithDriver(t connector.ConnectorType, driver string) *Connector {
	return &Connector{typ: ConnectorTypeOverride{Type: t, Driver: driver}}
}

// ConnectorType returns the backend tag.
func (c *Connector) ConnectorType() connector.ConnectorType { return c.typ.Type }

// CreateDataSourceProvider binds a provider to one logical SQL table scan.
func (c *Connector) CreateDataSourceProvider(scanNode *connector.ScanNode, node *plan.PlanNode) (connector.DataSourceProvider, error) {
	driver := c.typ.Driver
	if driver == "" {
		driver = node.Property(PropDriver, "")
	}
	if driver == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "jdbc scan requires a driver property")
	}
	dsn := node.Property(PropDSN, "")
	if dsn == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "jdbc scan requires a dsn property")
	}
	if node.Property(PropTable, "") == "" && node.Property(PropQuery, "") == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "jdbc scan requires a table or query property")
	}
	return &dataSourceProvider{
		BaseDataSourceProvider: connector.NewBaseDataSourceProvider(connector.ProviderTraits{
			// No range concept: never prune to zero work, cap dop at one
			// per range and fan out above the scan instead.
			AcceptEmptyScanRanges: false,
			InsertLocalExchange:   true,
			AlwaysSharedScan:      true,
		}),
		node:   node,
		driver: driver,
		dsn:    dsn,
	}, nil
}

type dataSourceProvider struct {
	connector.BaseDataSourceProvider
	node   *plan.PlanNode
	driver string
	dsn    string
}

// CreateDataSource returns a source running one query against the database.
// SQL scans are whole-source: a nil range is the normal case.
func (p *dataSourceProvider) CreateDataSource(rng *plan.ScanRange) (connector.DataSource, error) {
	return &dataSource{
		BaseDataSource: connector.NewBaseDataSource(p.node.ConnectorName, p.node.TupleDesc),
		driver:         p.driver,
		dsn:            p.dsn,
		query:          p.buildQuery(),
	}, nil
}

// TupleDescriptor returns the scan's output layout.
func (p *dataSourceProvider) TupleDescriptor(state *exec.State) *plan.TupleDescriptor {
	return p.node.TupleDesc
}

// DefaultDataSourceMemBytes sizes the budget by output width: SQL sources
// buffer one row set window per field.
func (p *dataSourceProvider) DefaultDataSourceMemBytes() (int64, int64) {
	est := connector.EstimateMemBytesForFields(p.node.TupleDesc.NumFields())
	return est, connector.MaxDataSourceMemBytes
}

func (p *dataSourceProvider) buildQuery() string {
	if q := p.node.Property(PropQuery, ""); q != "" {
		return q
	}
	cols := make([]string, len(p.node.TupleDesc.Slots))
	for i, slot := range p.node.TupleDesc.Slots {
		cols[i] = slot.Name
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), p.node.Property(PropTable, ""))
}

type dataSource struct {
	connector.BaseDataSource
	driver string
	dsn    string
	query  string

	db   *sql.DB
	rows *sql.Rows
	done bool
}

// Open connects and issues the scan query.
func (d *dataSource) Open(state *exec.State) error {
	db, err := sql.Open(d.driver, d.dsn)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "open %s database", d.driver)
	}
	rows, err := db.QueryContext(state.Context(), d.query)
	if err != nil {
		// Query failure is a resource-acquisition failure for this source;
		// close the handle here since Close may never learn about it.
		_ = db.Close()
		return errors.Wrapf(err, errors.ErrorTypeConnection, "query %s database", d.driver)
	}
	d.db = db
	d.rows = rows
	if d.Profile() != nil {
		d.Profile().DataSourceOpened()
	}
	return nil
}

// GetNext pulls the next window of rows from the result set.
func (d *dataSource) GetNext(state *exec.State) (*chunk.Chunk, error) {
	for {
		if state.Cancelled() {
			return nil, errors.Wrap(state.Context().Err(), errors.ErrorTypeCancelled, "scan cancelled")
		}
		if d.done || d.ReachedLimit() {
			return nil, connector.ErrEndOfData
		}

		desc := d.TupleDescriptor()
		out := chunk.New(desc, state.ChunkSize())
		var bytes int64
		ioStart := time.Now()
		for out.NumRows() < state.ChunkSize() {
			if !d.rows.Next() {
				if err := d.rows.Err(); err != nil {
					return nil, errors.Wrapf(err, errors.ErrorTypeData, "read %s rows", d.driver)
				}
				d.done = true
				break
			}
			n, err := d.scanRow(out, desc)
			if err != nil {
				return nil, err
			}
			bytes += n
		}
		d.AddIOTime(time.Since(ioStart))

		if out.IsEmpty() && d.done {
			return nil, connector.ErrEndOfData
		}
		out, err := d.FinishChunk(out, bytes)
		if err != nil {
			return nil, err
		}
		if !out.IsEmpty() {
			return out, nil
		}
	}
}

// scanRow scans one SQL row into the chunk, returning its rough byte size.
func (d *dataSource) scanRow(out *chunk.Chunk, desc *plan.TupleDescriptor) (int64, error) {
	dest := make([]interface{}, len(desc.Slots))
	for i, slot := range desc.Slots {
		switch slot.Type {
		case plan.SlotTypeInt64:
			dest[i] = new(sql.NullInt64)
		case plan.SlotTypeFloat64:
			dest[i] = new(sql.NullFloat64)
		case plan.SlotTypeBool:
			dest[i] = new(sql.NullBool)
		default:
			dest[i] = new(sql.NullString)
		}
	}
	if err := d.rows.Scan(dest...); err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeData, "scan %s row", d.driver)
	}
	var bytes int64
	for i, slot := range desc.Slots {
		col := out.Column(slot.Name)
		switch v := dest[i].(type) {
		case *sql.NullInt64:
			col.(*chunk.Int64Column).AppendInt64(v.Int64)
			bytes += 8
		case *sql.NullFloat64:
			col.(*chunk.Float64Column).AppendFloat64(v.Float64)
			bytes += 8
		case *sql.NullBool:
			col.(*chunk.BoolColumn).AppendBool(v.Bool)
			bytes++
		case *sql.NullString:
			col.(*chunk.StringColumn).AppendString(v.String)
			bytes += int64(len(v.String))
		}
	}
	return bytes, nil
}

// Close releases the result set and connection; failures are logged only.
func (d *dataSource) Close(state *exec.State) {
	d.RunClose(state, func() error {
		var firstErr error
		if d.rows != nil {
			if err := d.rows.Close(); err != nil {
				firstErr = err
			}
		}
		if d.db != nil {
			if err := d.db.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}
