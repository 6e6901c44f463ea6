package expr

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/errors"
)

// RuntimeFilter is the probe-side, materialized form of a filter computed
// from one side of a join during execution and pushed down to a scan. How the
// build side constructs it is outside this layer; probing must be cheap per
// row, so membership is a hash set keyed by xxhash of the canonical value
// encoding.
type RuntimeFilter struct {
	column string
	hashes map[uint64]struct{}
}

// NewRuntimeFilter builds a filter over the given column accepting the given
// values. Unsupported value types are ignored, matching the always-pass
// behavior of a filter that cannot be applied.
func NewRuntimeFilter(column string, values []interface{}) *RuntimeFilter {
	f := &RuntimeFilter{
		column: column,
		hashes: make(map[uint64]struct{}, len(values)),
	}
	for _, v := range values {
		if h, ok := hashValue(v); ok {
			f.hashes[h] = struct{}{}
		}
	}
	return f
}

// Column returns the probe column name.
func (f *RuntimeFilter) Column() string { return f.column }

// MightContain reports whether the value may be in the build-side set.
func (f *RuntimeFilter) MightContain(v interface{}) bool {
	h, ok := hashValue(v)
	if !ok {
		return true
	}
	_, ok = f.hashes[h]
	return ok
}

// EvaluateSelection ANDs the filter into sel, row by row.
func (f *RuntimeFilter) EvaluateSelection(c *chunk.Chunk, sel []bool) error {
	col := c.Column(f.column)
	if col == nil {
		// The probe column is not produced by this scan; the filter cannot
		// prune anything here.
		return nil
	}
	if len(sel) != col.Len() {
		return errors.Newf(errors.ErrorTypeData, "selection length %d does not match rows %d", len(sel), col.Len())
	}
	for i := range sel {
		if sel[i] {
			sel[i] = f.MightContain(col.Get(i))
		}
	}
	return nil
}

func hashValue(v interface{}) (uint64, bool) {
	var buf [9]byte
	switch val := v.(type) {
	case int64:
		buf[0] = 'i'
		binary.LittleEndian.PutUint64(buf[1:], uint64(val))
		return xxhash.Sum64(buf[:]), true
	case int:
		return hashValue(int64(val))
	case int32:
		return hashValue(int64(val))
	case float64:
		buf[0] = 'f'
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(val))
		return xxhash.Sum64(buf[:]), true
	case string:
		return xxhash.Sum64String(val), true
	case bool:
		if val {
			return hashValue(int64(1))
		}
		return hashValue(int64(0))
	default:
		return 0, false
	}
}

// RuntimeFilterCollector accumulates the runtime filters targeting one scan.
// It is owned by the enclosing query fragment and outlives every DataSource
// that borrows it; filters may arrive while the scan is already running, so
// the collector is versioned and data sources re-materialize when the version
// moves.
type RuntimeFilterCollector struct {
	mu      sync.RWMutex
	version uint64
	filters []*RuntimeFilter
}

// NewRuntimeFilterCollector creates an empty collector.
func NewRuntimeFilterCollector() *RuntimeFilterCollector {
	return &RuntimeFilterCollector{}
}

// Add registers a filter and bumps the collector version.
func (c *RuntimeFilterCollector) Add(f *RuntimeFilter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append(c.filters, f)
	c.version++
}

// Filters returns a snapshot of the registered filters.
func (c *RuntimeFilterCollector) Filters() []*RuntimeFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RuntimeFilter, len(c.filters))
	copy(out, c.filters)
	return out
}

// Version returns the current collector version.
func (c *RuntimeFilterCollector) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// HasFilters reports whether any filter has been registered.
func (c *RuntimeFilterCollector) HasFilters() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters) > 0
}
