// Package connector is the pluggable scan/write abstraction of the engine.
// It decouples pipeline execution from heterogeneous storage backends behind
// three contracts: DataSource (pull iterator over columnar chunks),
// DataSourceProvider (per-scan factory and splitting policy) and
// Connector/ConnectorManager (backend registry).
package connector

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/expr"
	"github.com/petreldb/petrel/pkg/metrics"
	"github.com/petreldb/petrel/pkg/pipeline"
	"github.com/petreldb/petrel/pkg/plan"
)

// ErrEndOfData is the distinguished status GetNext returns once a data source
// has produced its last chunk. It is not a failure.
var ErrEndOfData = errors.New("end of data")

// DataSource reads one morsel (or one scan range in non-split mode) of a
// table scan. Exactly one driver owns a DataSource and calls its methods in
// strict order: Open, GetNext until ErrEndOfData or failure, Close. A
// DataSource is never reused across morsels.
//
// Predicate pushdown is the DataSource's responsibility: chunks returned by
// GetNext already satisfy the injected predicates and runtime filters.
type DataSource interface {
	// Name identifies the data source kind, for profiles and logs.
	Name() string
	// Open acquires backend resources. Must be called exactly once, before
	// the first GetNext.
	Open(state *exec.State) error
	// GetNext returns the next non-empty chunk, or ErrEndOfData. It must not
	// be called after end-of-data or after Close. It may block on backend
	// I/O; cancellation is cooperative through the state's context.
	GetNext(state *exec.State) (*chunk.Chunk, error)
	// Close releases resources. Safe to call multiple times; cleanup
	// failures are logged, never returned, so teardown always completes.
	Close(state *exec.State)

	// Statistics are snapshot reads, callable at any time without side
	// effects, and monotonically non-decreasing over the source's lifetime.
	RawRowsRead() int64
	NumRowsRead() int64
	NumBytesRead() int64
	CPUTimeSpent() time.Duration
	IOTimeSpent() time.Duration

	// Memory self-reporting for the admission layer; CanEstimateMemUsage is
	// false when estimation is unsupported.
	CanEstimateMemUsage() bool
	EstimatedMemUsage() int64

	// GetSplitTasks lets a source refine its own work into further split
	// tasks; most sources return none.
	GetSplitTasks() []*pipeline.SplitContext

	// HasAnyPredicate returns a cached flag consumed by fast paths that skip
	// filter evaluation entirely.
	HasAnyPredicate() bool
	// UpdateHasAnyPredicate recomputes the cached flag. It must be called
	// whenever predicates or runtime filters change.
	UpdateHasAnyPredicate()
	// ParseRuntimeFilters materializes the runtime-filter collector against
	// this source's tuple layout, once predicates are set and before the
	// first GetNext.
	ParseRuntimeFilters(state *exec.State) error

	// Framework-set inputs, injected by the provider/scheduler before Open.
	// The DataSource treats them as read-only borrows owned by the fragment.
	SetPredicates(conjuncts []expr.Predicate)
	SetRuntimeFilters(collector *expr.RuntimeFilterCollector)
	SetReadLimit(limit int64)
	SetSplitContext(splitCtx *pipeline.SplitContext)
	SetMorsel(morsel pipeline.Morsel)
	SetDriverSequence(seq int)
	SetProfile(collector *metrics.Collector)
}

// StreamDataSource is the DataSource specialization for continuously-updating
// changelog sources. Reads happen in epochs bounded by explicit offsets:
// Idle -> SetOffset -> Reading(epoch) -> (end of epoch | error) -> Idle.
// On an epoch error the driver calls ResetStatus and may retry SetOffset;
// retry budgets belong to the caller, not to this layer.
type StreamDataSource interface {
	DataSource
	// SetOffset repositions the read cursor to a logical table version and
	// changelog position. Fails when the position is no longer retrievable.
	SetOffset(tableVersion, changelogID int64) error
	// ResetStatus clears epoch-local error state without discarding the
	// committed read position.
	ResetStatus() error
	// NumRowsReadInEpoch counts rows returned in the current epoch only.
	NumRowsReadInEpoch() int64
	// CPUTimeSpentInEpoch is the CPU time of the current epoch only.
	CPUTimeSpentInEpoch() time.Duration
}

// BaseDataSource carries the framework-set fields and statistics shared by
// every DataSource implementation. Implementations embed it and call
// FinishChunk from their read loop to apply pushdown, limits and accounting.
type BaseDataSource struct {
	name      string
	tupleDesc *plan.TupleDescriptor

	// Borrowed from the enclosing fragment; valid for this source's lifetime.
	conjuncts      []expr.Predicate
	runtimeFilters *expr.RuntimeFilterCollector
	profile        *metrics.Collector

	parsedFilters []*expr.RuntimeFilter
	parsedVersion uint64

	hasAnyPredicate bool
	readLimit       int64
	splitCtx        *pipeline.SplitContext
	morsel          pipeline.Morsel
	driverSeq       int

	rawRowsRead  atomic.Int64
	numRowsRead  atomic.Int64
	numBytesRead atomic.Int64
	cpuTimeNs    atomic.Int64
	ioTimeNs     atomic.Int64

	closeOnce sync.Once
}

// NewBaseDataSource creates the shared state for a data source of the given
// kind producing the given tuple layout.
func NewBaseDataSource(name string, tupleDesc *plan.TupleDescriptor) BaseDataSource {
	return BaseDataSource{
		name:      name,
		tupleDesc: tupleDesc,
		readLimit: -1,
	}
}

// Name returns the data source kind.
func (b *BaseDataSource) Name() string { return b.name }

// TupleDescriptor returns the bound output layout.
func (b *BaseDataSource) TupleDescriptor() *plan.TupleDescriptor { return b.tupleDesc }

// SetPredicates injects the scan conjuncts. Borrowed, not owned.
func (b *BaseDataSource) SetPredicates(conjuncts []expr.Predicate) { b.conjuncts = conjuncts }

// SetRuntimeFilters injects the runtime-filter collector. Borrowed, not owned.
func (b *BaseDataSource) SetRuntimeFilters(collector *expr.RuntimeFilterCollector) {
	b.runtimeFilters = collector
}

// SetReadLimit bounds the rows this source returns; negative means no limit.
func (b *BaseDataSource) SetReadLimit(limit int64) { b.readLimit = limit }

// SetSplitContext attaches the provider's sub-range hint.
func (b *BaseDataSource) SetSplitContext(splitCtx *pipeline.SplitContext) { b.splitCtx = splitCtx }

// SetMorsel binds the morsel this source serves for its entire lifetime.
func (b *BaseDataSource) SetMorsel(morsel pipeline.Morsel) {
	b.morsel = morsel
	if morsel != nil && morsel.SplitContext() != nil {
		b.splitCtx = morsel.SplitContext()
	}
}

// SetDriverSequence records which driver owns this source.
func (b *BaseDataSource) SetDriverSequence(seq int) { b.driverSeq = seq }

// SetProfile attaches the metrics collector. Borrowed, not owned.
func (b *BaseDataSource) SetProfile(collector *metrics.Collector) { b.profile = collector }

// Morsel returns the bound morsel, nil before SetMorsel.
func (b *BaseDataSource) Morsel() pipeline.Morsel { return b.morsel }

// SplitContext returns the bound split hint, nil when the source covers its
// whole scan range.
func (b *BaseDataSource) SplitContext() *pipeline.SplitContext { return b.splitCtx }

// DriverSequence returns the owning driver's index.
func (b *BaseDataSource) DriverSequence() int { return b.driverSeq }

// ReadLimit returns the injected read limit, -1 for none.
func (b *BaseDataSource) ReadLimit() int64 { return b.readLimit }

// Profile returns the attached metrics collector, possibly nil.
func (b *BaseDataSource) Profile() *metrics.Collector { return b.profile }

// HasAnyPredicate returns the cached predicate-presence flag.
func (b *BaseDataSource) HasAnyPredicate() bool { return b.hasAnyPredicate }

// UpdateHasAnyPredicate recomputes the cached flag from the current
// predicates and runtime filters. Idempotent for unchanged inputs.
func (b *BaseDataSource) UpdateHasAnyPredicate() {
	b.hasAnyPredicate = len(b.conjuncts) > 0 ||
		(b.runtimeFilters != nil && b.runtimeFilters.HasFilters())
}

// ParseRuntimeFilters materializes the collector's filters against this
// source's tuple layout into a per-chunk testable form. Filters probing
// columns this scan does not produce are dropped.
func (b *BaseDataSource) ParseRuntimeFilters(state *exec.State) error {
	if b.runtimeFilters == nil {
		b.parsedFilters = nil
		return nil
	}
	version := b.runtimeFilters.Version()
	if version == b.parsedVersion && b.parsedFilters != nil {
		return nil
	}
	all := b.runtimeFilters.Filters()
	parsed := make([]*expr.RuntimeFilter, 0, len(all))
	for _, f := range all {
		if b.tupleDesc != nil && b.tupleDesc.Slot(f.Column()) == nil {
			continue
		}
		parsed = append(parsed, f)
	}
	b.parsedFilters = parsed
	b.parsedVersion = version
	b.UpdateHasAnyPredicate()
	return nil
}

// ReachedLimit reports whether the injected read limit has been met.
func (b *BaseDataSource) ReachedLimit() bool {
	return b.readLimit >= 0 && b.numRowsRead.Load() >= b.readLimit
}

// FinishChunk applies predicate pushdown, runtime filters, the read limit and
// statistics accounting to a chunk the implementation just read. The returned
// chunk may be empty after filtering; read loops skip empty chunks and keep
// pulling.
func (b *BaseDataSource) FinishChunk(ch *chunk.Chunk, bytesRead int64) (*chunk.Chunk, error) {
	start := time.Now()
	raw := int64(ch.NumRows())
	b.rawRowsRead.Add(raw)
	b.numBytesRead.Add(bytesRead)

	if b.hasAnyPredicate && raw > 0 {
		sel := make([]bool, ch.NumRows())
		for i := range sel {
			sel[i] = true
		}
		for _, p := range b.conjuncts {
			if err := p.EvaluateSelection(ch, sel); err != nil {
				return nil, err
			}
		}
		for _, f := range b.parsedFilters {
			if err := f.EvaluateSelection(ch, sel); err != nil {
				return nil, err
			}
		}
		ch = ch.Filter(sel)
	}

	if b.readLimit >= 0 {
		remaining := b.readLimit - b.numRowsRead.Load()
		if remaining < 0 {
			remaining = 0
		}
		if int64(ch.NumRows()) > remaining {
			ch.Truncate(int(remaining))
		}
	}

	rows := int64(ch.NumRows())
	b.numRowsRead.Add(rows)
	b.cpuTimeNs.Add(time.Since(start).Nanoseconds())
	if b.profile != nil {
		b.profile.RecordRowsRead(rows, raw)
		b.profile.RecordBytesRead(bytesRead)
	}
	return ch, nil
}

// AddCPUTime accrues processing time spent by the implementation.
func (b *BaseDataSource) AddCPUTime(d time.Duration) { b.cpuTimeNs.Add(d.Nanoseconds()) }

// AddIOTime accrues backend wait time spent by the implementation.
func (b *BaseDataSource) AddIOTime(d time.Duration) { b.ioTimeNs.Add(d.Nanoseconds()) }

// RawRowsRead returns rows read from the backend before filtering.
func (b *BaseDataSource) RawRowsRead() int64 { return b.rawRowsRead.Load() }

// NumRowsRead returns rows returned after filtering.
func (b *BaseDataSource) NumRowsRead() int64 { return b.numRowsRead.Load() }

// NumBytesRead returns bytes read from the backend.
func (b *BaseDataSource) NumBytesRead() int64 { return b.numBytesRead.Load() }

// CPUTimeSpent returns the accumulated processing time.
func (b *BaseDataSource) CPUTimeSpent() time.Duration {
	return time.Duration(b.cpuTimeNs.Load())
}

// IOTimeSpent returns the accumulated backend wait time.
func (b *BaseDataSource) IOTimeSpent() time.Duration {
	return time.Duration(b.ioTimeNs.Load())
}

// CanEstimateMemUsage defaults to unsupported.
func (b *BaseDataSource) CanEstimateMemUsage() bool { return false }

// EstimatedMemUsage defaults to zero for sources that cannot estimate.
func (b *BaseDataSource) EstimatedMemUsage() int64 { return 0 }

// GetSplitTasks defaults to no further splitting.
func (b *BaseDataSource) GetSplitTasks() []*pipeline.SplitContext { return nil }

// RunClose runs cleanup exactly once, logging failures instead of returning
// them so teardown always completes. Later Close calls are no-ops.
func (b *BaseDataSource) RunClose(state *exec.State, cleanup func() error) {
	b.closeOnce.Do(func() {
		if b.profile != nil {
			b.profile.DataSourceClosed()
		}
		if cleanup == nil {
			return
		}
		if err := cleanup(); err != nil {
			state.Logger().Warn("data source cleanup failed",
				zap.String("data_source", b.name),
				zap.Error(err))
		}
	})
}
