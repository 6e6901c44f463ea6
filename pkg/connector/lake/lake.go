package lake

import (
	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/plan"
)

// Connector reads internal tablet storage. Read-only: the write path of
// tablet storage goes through ingestion, not through chunk sinks.
type Connector struct {
	connector.NoDataSink
	store *Store
}

// NewConnector creates the lake connector over a tablet store.
func NewConnector(store *Store) *Connector {
	return &Connector{store: store}
}

// ConnectorType returns the backend tag.
func (c *Connector) ConnectorType() connector.ConnectorType {
	return connector.ConnectorTypeLake
}

// CreateDataSourceProvider binds a provider to one logical tablet scan.
func (c *Connector) CreateDataSourceProvider(scanNode *connector.ScanNode, node *plan.PlanNode) (connector.DataSourceProvider, error) {
	return &dataSourceProvider{
		BaseDataSourceProvider: connector.NewBaseDataSourceProvider(connector.ProviderTraits{
			CouldSplit:            true,
			CouldSplitPhysically:  true,
			AcceptEmptyScanRanges: true,
			AlwaysSharedScan:      true,
			ValidateRange:         validateRange,
		}),
		store: c.store,
		node:  node,
	}, nil
}

func validateRange(rng *plan.ScanRange) error {
	var spec ScanRangeSpec
	if err := rng.Decode(&spec); err != nil {
		return err
	}
	if spec.TabletID <= 0 {
		return errors.Newf(errors.ErrorTypeMalformedRange, "tablet id %d is not positive", spec.TabletID)
	}
	return nil
}

type dataSourceProvider struct {
	connector.BaseDataSourceProvider
	store      *Store
	node       *plan.PlanNode
	totalBytes int64
}

// CreateDataSource returns a source bound to exactly one tablet range.
func (p *dataSourceProvider) CreateDataSource(rng *plan.ScanRange) (connector.DataSource, error) {
	if rng == nil {
		return nil, errors.New(errors.ErrorTypeMalformedRange, "lake scan requires a tablet scan range")
	}
	var spec ScanRangeSpec
	if err := rng.Decode(&spec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedRange, "decode tablet scan range")
	}
	return &dataSource{
		BaseDataSource: connector.NewBaseDataSource("lake", p.node.TupleDesc),
		store:          p.store,
		spec:           spec,
	}, nil
}

// TupleDescriptor returns the scan's output layout.
func (p *dataSourceProvider) TupleDescriptor(state *exec.State) *plan.TupleDescriptor {
	return p.node.TupleDesc
}

// PeekScanRanges pre-aggregates the byte size of the tablets to scan.
func (p *dataSourceProvider) PeekScanRanges(ranges []*plan.ScanRange) {
	var total int64
	for _, rng := range ranges {
		var spec ScanRangeSpec
		if err := rng.Decode(&spec); err != nil {
			continue
		}
		if t, err := p.store.Tablet(spec.TabletID); err == nil {
			total += t.Data.MemoryUsage()
		}
	}
	p.totalBytes = total
}

// dataSource reads one tablet, or one sub-range of it when a split context is
// attached.
type dataSource struct {
	connector.BaseDataSource
	store  *Store
	spec   ScanRangeSpec
	tablet *Tablet

	cursor int
	end    int
	opened bool
}

// Open resolves the tablet and the row window this source covers.
func (d *dataSource) Open(state *exec.State) error {
	if d.opened {
		return errors.New(errors.ErrorTypeInternal, "lake data source opened twice")
	}
	t, err := d.store.Tablet(d.spec.TabletID)
	if err != nil {
		return err
	}
	if t.Version != d.spec.Version {
		return errors.Newf(errors.ErrorTypeConnection,
			"tablet %d version %d requested, have %d", d.spec.TabletID, d.spec.Version, t.Version)
	}
	d.tablet = t
	d.cursor = 0
	d.end = t.Data.NumRows()
	if sc := d.SplitContext(); sc != nil && sc.NumRows() >= 0 {
		d.cursor = int(sc.StartRow)
		d.end = int(sc.EndRow)
		if d.end > t.Data.NumRows() {
			d.end = t.Data.NumRows()
		}
	}
	d.opened = true
	if d.Profile() != nil {
		d.Profile().DataSourceOpened()
	}
	return nil
}

// GetNext copies the next window of rows out of the tablet and applies
// pushdown. Empty post-filter windows are skipped so callers only see
// non-empty chunks.
func (d *dataSource) GetNext(state *exec.State) (*chunk.Chunk, error) {
	for {
		if state.Cancelled() {
			return nil, errors.Wrap(state.Context().Err(), errors.ErrorTypeCancelled, "scan cancelled")
		}
		if d.cursor >= d.end || d.ReachedLimit() {
			return nil, connector.ErrEndOfData
		}
		n := state.ChunkSize()
		if d.cursor+n > d.end {
			n = d.end - d.cursor
		}
		out := chunk.New(d.TupleDescriptor(), n)
		var bytes int64
		for _, slot := range d.TupleDescriptor().Slots {
			src := d.tablet.Data.Column(slot.Name)
			if src == nil {
				return nil, errors.Newf(errors.ErrorTypeData, "tablet %d has no column %q", d.spec.TabletID, slot.Name)
			}
			dst := out.Column(slot.Name)
			for i := d.cursor; i < d.cursor+n; i++ {
				if err := dst.Append(src.Get(i)); err != nil {
					return nil, errors.Wrap(err, errors.ErrorTypeData, "copy tablet row")
				}
			}
		}
		bytes = out.MemoryUsage()
		d.cursor += n

		out, err := d.FinishChunk(out, bytes)
		if err != nil {
			return nil, err
		}
		if !out.IsEmpty() {
			return out, nil
		}
	}
}

// Close is idempotent; the tablet itself needs no teardown.
func (d *dataSource) Close(state *exec.State) {
	d.RunClose(state, nil)
}

// CanEstimateMemUsage is true: tablet reads are bounded by one chunk window.
func (d *dataSource) CanEstimateMemUsage() bool { return true }

// EstimatedMemUsage sizes one chunk window by the tablet's per-row footprint.
func (d *dataSource) EstimatedMemUsage() int64 {
	if d.tablet == nil || d.tablet.NumRows() == 0 {
		return connector.EstimateMemBytesForFields(len(d.TupleDescriptor().Slots))
	}
	perRow := d.tablet.Data.MemoryUsage() / d.tablet.NumRows()
	est := perRow * int64(estimateChunkRows)
	if est < 1 {
		est = 1
	}
	return est
}

// estimateChunkRows approximates a chunk window for estimation before Open.
const estimateChunkRows = 4096
