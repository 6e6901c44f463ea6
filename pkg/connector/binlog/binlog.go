package binlog

import (
	"io"
	"time"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/plan"
)

// ScanRangeSpec is the binlog backend's scan range payload: one changelog
// stream identity.
type ScanRangeSpec struct {
	Stream string `json:"stream"`
}

// NewScanRange builds a scan range covering one changelog stream.
func NewScanRange(stream string) (*plan.ScanRange, error) {
	return plan.NewScanRange(ScanRangeSpec{Stream: stream}, -1)
}

// ReaderFactory opens the changelog reader behind one scan range. The
// production factory dials MySQL replication; tests plug in a memory log.
type ReaderFactory func(node *plan.PlanNode, spec ScanRangeSpec) (ChangelogReader, error)

// Connector reads changelog streams through the StreamDataSource contract.
// Read-only.
type Connector struct {
	connector.NoDataSink
	factory ReaderFactory
}

// NewConnector creates the binlog connector with the given reader factory.
func NewConnector(factory ReaderFactory) *Connector {
	return &Connector{factory: factory}
}

// ConnectorType returns the backend tag.
func (c *Connector) ConnectorType() connector.ConnectorType {
	return connector.ConnectorTypeBinlog
}

// CreateDataSourceProvider binds a provider to one logical changelog scan.
func (c *Connector) CreateDataSourceProvider(scanNode *connector.ScanNode, node *plan.PlanNode) (connector.DataSourceProvider, error) {
	if c.factory == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "binlog connector has no changelog reader factory")
	}
	return &dataSourceProvider{
		BaseDataSourceProvider: connector.NewBaseDataSourceProvider(connector.ProviderTraits{
			AcceptEmptyScanRanges: true,
			StreamSource:          true,
			ValidateRange:         validateRange,
		}),
		node:    node,
		factory: c.factory,
	}, nil
}

func validateRange(rng *plan.ScanRange) error {
	var spec ScanRangeSpec
	if err := rng.Decode(&spec); err != nil {
		return err
	}
	if spec.Stream == "" {
		return errors.New(errors.ErrorTypeMalformedRange, "binlog scan range has empty stream")
	}
	return nil
}

type dataSourceProvider struct {
	connector.BaseDataSourceProvider
	node    *plan.PlanNode
	factory ReaderFactory
}

// CreateDataSource returns a stream source over one changelog stream.
func (p *dataSourceProvider) CreateDataSource(rng *plan.ScanRange) (connector.DataSource, error) {
	if rng == nil {
		return nil, errors.New(errors.ErrorTypeMalformedRange, "binlog scan requires a scan range")
	}
	var spec ScanRangeSpec
	if err := rng.Decode(&spec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedRange, "decode binlog scan range")
	}
	return &dataSource{
		BaseDataSource: connector.NewBaseDataSource("binlog", p.node.TupleDesc),
		node:           p.node,
		spec:           spec,
		factory:        p.factory,
	}, nil
}

// TupleDescriptor returns the scan's output layout.
func (p *dataSourceProvider) TupleDescriptor(state *exec.State) *plan.TupleDescriptor {
	return p.node.TupleDesc
}

// dataSource is the StreamDataSource over one changelog stream. Outside an
// epoch it is Idle; SetOffset enters Reading, end-of-epoch or an error
// returns it to Idle. Epoch counters reset at each SetOffset.
type dataSource struct {
	connector.BaseDataSource
	node    *plan.PlanNode
	spec    ScanRangeSpec
	factory ReaderFactory

	reader ChangelogReader

	inEpoch      bool
	epochErr     error
	epochRows    int64
	epochCPU     time.Duration
	committedVer int64
	committedID  int64
}

// Open acquires the changelog reader.
func (d *dataSource) Open(state *exec.State) error {
	r, err := d.factory(d.node, d.spec)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "open changelog stream %s", d.spec.Stream)
	}
	d.reader = r
	if d.Profile() != nil {
		d.Profile().DataSourceOpened()
	}
	return nil
}

// SetOffset repositions to a logical offset and starts a new epoch, resetting
// the epoch-scoped counters.
func (d *dataSource) SetOffset(tableVersion, changelogID int64) error {
	if d.reader == nil {
		return errors.New(errors.ErrorTypeInternal, "binlog data source not open")
	}
	if err := d.reader.SeekTo(tableVersion, changelogID); err != nil {
		return err
	}
	d.inEpoch = true
	d.epochErr = nil
	d.epochRows = 0
	d.epochCPU = 0
	d.committedVer = tableVersion
	d.committedID = changelogID
	return nil
}

// ResetStatus clears epoch-local error state, keeping the committed position
// so the caller can retry SetOffset from it.
func (d *dataSource) ResetStatus() error {
	d.epochErr = nil
	d.inEpoch = false
	return nil
}

// NumRowsReadInEpoch counts rows returned in the current epoch.
func (d *dataSource) NumRowsReadInEpoch() int64 { return d.epochRows }

// CPUTimeSpentInEpoch is the processing time of the current epoch.
func (d *dataSource) CPUTimeSpentInEpoch() time.Duration { return d.epochCPU }

// CommittedOffset returns the resume position: it starts at the offset the
// last successful SetOffset seeked to and advances past each event consumed
// by GetNext.
func (d *dataSource) CommittedOffset() (tableVersion, changelogID int64) {
	return d.committedVer, d.committedID
}

// GetNext returns the next chunk of the current epoch, ErrEndOfData at the
// epoch boundary or while Idle, and a sticky epoch error after a failure
// until ResetStatus.
func (d *dataSource) GetNext(state *exec.State) (*chunk.Chunk, error) {
	if d.epochErr != nil {
		return nil, d.epochErr
	}
	if !d.inEpoch {
		return nil, connector.ErrEndOfData
	}
	start := time.Now()
	defer func() { d.epochCPU += time.Since(start) }()

	for {
		if state.Cancelled() {
			return nil, errors.Wrap(state.Context().Err(), errors.ErrorTypeCancelled, "scan cancelled")
		}
		out := chunk.New(d.TupleDescriptor(), state.ChunkSize())
		var bytes int64
		epochDone := false
		for out.NumRows() < state.ChunkSize() {
			ev, err := d.reader.Next(state.Context())
			if err == io.EOF {
				epochDone = true
				break
			}
			if err != nil {
				d.epochErr = errors.Wrapf(err, errors.ErrorTypeStreamEpoch,
					"stream %s epoch at version %d failed", d.spec.Stream, d.committedVer)
				return nil, d.epochErr
			}
			if err := d.appendEvent(out, ev); err != nil {
				d.epochErr = err
				return nil, d.epochErr
			}
			bytes += int64(len(ev.Row)) * 16
			d.committedID = ev.ChangelogID
		}

		if epochDone {
			d.inEpoch = false
		}
		if out.IsEmpty() && epochDone {
			return nil, connector.ErrEndOfData
		}
		out, err := d.FinishChunk(out, bytes)
		if err != nil {
			d.epochErr = err
			return nil, err
		}
		if !out.IsEmpty() {
			d.epochRows += int64(out.NumRows())
			return out, nil
		}
		if epochDone {
			return nil, connector.ErrEndOfData
		}
	}
}

func (d *dataSource) appendEvent(out *chunk.Chunk, ev *Event) error {
	for _, slot := range d.TupleDescriptor().Slots {
		v, ok := ev.Row[slot.Name]
		if !ok {
			return errors.Newf(errors.ErrorTypeData,
				"changelog event at %d missing field %q", ev.ChangelogID, slot.Name)
		}
		if slot.Type == plan.SlotTypeInt64 {
			if f, isFloat := v.(float64); isFloat {
				v = int64(f)
			}
		}
		if err := out.Column(slot.Name).Append(v); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeData, "field %q at %d", slot.Name, ev.ChangelogID)
		}
	}
	return nil
}

// Close releases the reader; failures are logged, not returned.
func (d *dataSource) Close(state *exec.State) {
	d.RunClose(state, func() error {
		if d.reader != nil {
			return d.reader.Close()
		}
		return nil
	})
}
