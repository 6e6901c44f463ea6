// Package file implements the connector for local newline-delimited JSON
// files. It is the only backend in the tree with both a read path and a
// write path (chunk sink).
package file

import (
	"bufio"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/plan"
)

// ScanRangeSpec is the file backend's scan range payload.
type ScanRangeSpec struct {
	Path string `json:"path"`
}

// NewScanRange builds a scan range covering one file. Row counts of JSONL
// files are unknown up front.
func NewScanRange(path string) (*plan.ScanRange, error) {
	return plan.NewScanRange(ScanRangeSpec{Path: path}, -1)
}

// Connector reads and writes local JSONL files.
type Connector struct{}

// NewConnector creates the file connector.
func NewConnector() *Connector { return &Connector{} }

// ConnectorType returns the backend tag.
func (c *Connector) ConnectorType() connector.ConnectorType {
	return connector.ConnectorTypeFile
}

// CreateDataSourceProvider binds a provider to one logical file scan.
func (c *Connector) CreateDataSourceProvider(scanNode *connector.ScanNode, node *plan.PlanNode) (connector.DataSourceProvider, error) {
	return &dataSourceProvider{
		BaseDataSourceProvider: connector.NewBaseDataSourceProvider(connector.ProviderTraits{
			AcceptEmptyScanRanges: true,
			AlwaysSharedScan:      true,
			ValidateRange:         validateRange,
		}),
		node: node,
	}, nil
}

// CreateDataSinkProvider builds the JSONL write path.
func (c *Connector) CreateDataSinkProvider() (connector.ChunkSinkProvider, error) {
	return &chunkSinkProvider{}, nil
}

func validateRange(rng *plan.ScanRange) error {
	var spec ScanRangeSpec
	if err := rng.Decode(&spec); err != nil {
		return err
	}
	if spec.Path == "" {
		return errors.New(errors.ErrorTypeMalformedRange, "file scan range has empty path")
	}
	return nil
}

type dataSourceProvider struct {
	connector.BaseDataSourceProvider
	node *plan.PlanNode
}

// CreateDataSource returns a source reading exactly one file.
func (p *dataSourceProvider) CreateDataSource(rng *plan.ScanRange) (connector.DataSource, error) {
	if rng == nil {
		return nil, errors.New(errors.ErrorTypeMalformedRange, "file scan requires a scan range")
	}
	var spec ScanRangeSpec
	if err := rng.Decode(&spec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedRange, "decode file scan range")
	}
	return &dataSource{
		BaseDataSource: connector.NewBaseDataSource("file", p.node.TupleDesc),
		spec:           spec,
	}, nil
}

// TupleDescriptor returns the scan's output layout.
func (p *dataSourceProvider) TupleDescriptor(state *exec.State) *plan.TupleDescriptor {
	return p.node.TupleDesc
}

type dataSource struct {
	connector.BaseDataSource
	spec ScanRangeSpec

	f       *os.File
	scanner *bufio.Scanner
	eof     bool
}

// Open opens the underlying file.
func (d *dataSource) Open(state *exec.State) error {
	f, err := os.Open(d.spec.Path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "open %s", d.spec.Path)
	}
	d.f = f
	d.scanner = bufio.NewScanner(f)
	d.scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if d.Profile() != nil {
		d.Profile().DataSourceOpened()
	}
	return nil
}

// GetNext decodes the next window of JSONL rows into a chunk and applies
// pushdown, skipping windows filtering empties out.
func (d *dataSource) GetNext(state *exec.State) (*chunk.Chunk, error) {
	for {
		if state.Cancelled() {
			return nil, errors.Wrap(state.Context().Err(), errors.ErrorTypeCancelled, "scan cancelled")
		}
		if d.eof || d.ReachedLimit() {
			return nil, connector.ErrEndOfData
		}

		ioStart := time.Now()
		out := chunk.New(d.TupleDescriptor(), state.ChunkSize())
		var bytes int64
		for out.NumRows() < state.ChunkSize() {
			if !d.scanner.Scan() {
				if err := d.scanner.Err(); err != nil {
					return nil, errors.Wrapf(err, errors.ErrorTypeData, "read %s", d.spec.Path)
				}
				d.eof = true
				break
			}
			line := d.scanner.Bytes()
			bytes += int64(len(line))
			if err := d.appendRow(out, line); err != nil {
				return nil, err
			}
		}
		d.AddIOTime(time.Since(ioStart))

		if out.IsEmpty() && d.eof {
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

func (d *dataSource) appendRow(out *chunk.Chunk, line []byte) error {
	var row map[string]interface{}
	if err := json.Unmarshal(line, &row); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeData, "decode row in %s", d.spec.Path)
	}
	for _, slot := range d.TupleDescriptor().Slots {
		v, ok := row[slot.Name]
		if !ok {
			return errors.Newf(errors.ErrorTypeData, "row in %s missing field %q", d.spec.Path, slot.Name)
		}
		// JSON numbers decode as float64; coerce to the slot type.
		if slot.Type == plan.SlotTypeInt64 {
			if f, isFloat := v.(float64); isFloat {
				v = int64(f)
			}
		}
		if err := out.Column(slot.Name).Append(v); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeData, "field %q in %s", slot.Name, d.spec.Path)
		}
	}
	return nil
}

// Close releases the file handle; failures are logged, not returned.
func (d *dataSource) Close(state *exec.State) {
	d.RunClose(state, func() error {
		if d.f != nil {
			return d.f.Close()
		}
		return nil
	})
}

// chunkSinkProvider creates JSONL sinks, one output file per driver.
type chunkSinkProvider struct{}

// CreateChunkSink opens the sink for one driver. The output path comes from
// the plan node's "path" property; parallel drivers get numbered suffixes.
func (p *chunkSinkProvider) CreateChunkSink(node *plan.PlanNode, state *exec.State, driverSequence int) (connector.ChunkSink, error) {
	path := node.Property("path", "")
	if path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "file sink requires a path property")
	}
	if driverSequence > 0 {
		path = fmt.Sprintf("%s.%d", path, driverSequence)
	}
	return &chunkSink{path: path, desc: node.TupleDesc}, nil
}

type chunkSink struct {
	path string
	desc *plan.TupleDescriptor

	f *os.File
	w *bufio.Writer
}

// Open creates the output file.
func (s *chunkSink) Open(state *exec.State) error {
	f, err := os.Create(s.path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "create %s", s.path)
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	return nil
}

// AppendChunk writes one batch as JSONL rows.
func (s *chunkSink) AppendChunk(ch *chunk.Chunk) error {
	for i := 0; i < ch.NumRows(); i++ {
		row := make(map[string]interface{}, ch.NumColumns())
		for c := 0; c < ch.NumColumns(); c++ {
			row[ch.ColumnName(c)] = ch.ColumnAt(c).Get(i)
		}
		raw, err := json.Marshal(row)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "encode row")
		}
		if _, err := s.w.Write(raw); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeConnection, "write %s", s.path)
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeConnection, "write %s", s.path)
		}
	}
	return nil
}

// Finish flushes and closes the output file.
func (s *chunkSink) Finish() error {
	if err := s.w.Flush(); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "flush %s", s.path)
	}
	if err := s.f.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "close %s", s.path)
	}
	return nil
}

// Abort drops the partial output; failures are logged, never returned.
func (s *chunkSink) Abort(state *exec.State) {
	if s.f != nil {
		if err := s.f.Close(); err != nil {
			state.Logger().Warn("file sink close failed", zap.String("path", s.path), zap.Error(err))
		}
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		state.Logger().Warn("file sink cleanup failed", zap.String("path", s.path), zap.Error(err))
	}
}
