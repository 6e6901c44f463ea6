package connector

import (
	"github.com/petreldb/petrel/pkg/config"
	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/pipeline"
	"github.com/petreldb/petrel/pkg/plan"
	"github.com/petreldb/petrel/pkg/pool"
)

// Admission-control memory defaults for one open data source. Backends with a
// different per-row cost override DefaultDataSourceMemBytes.
const (
	MinDataSourceMemBytes = 16 * 1024 * 1024  // 16MB
	MaxDataSourceMemBytes = 256 * 1024 * 1024 // 256MB
	PerFieldMemBytes      = 4 * 1024 * 1024   // 4MB
)

// DataSourceProvider binds one logical table scan to its backend scan ranges
// and decides how the work is split and scheduled. After Init and
// ConvertScanRangeToMorselQueue the provider is read-only and freely shared
// across driver threads.
type DataSourceProvider interface {
	// CreateDataSource returns a new DataSource bound to exactly that scan
	// range. It is a pure factory: it fails only when the range is
	// structurally invalid for this backend.
	CreateDataSource(rng *plan.ScanRange) (DataSource, error)
	// Init runs one-time preparation (partition pruning, shared read schema)
	// before any CreateDataSource or splitting call.
	Init(objPool *pool.ObjectPool, state *exec.State) error
	// TupleDescriptor returns the output row layout of the sources this
	// provider creates; stable for the provider's lifetime.
	TupleDescriptor(state *exec.State) *plan.TupleDescriptor

	// InsertLocalExchangeOperator is true when the backend cannot be
	// parallelized by range splitting alone, so the scheduler should fan out
	// above the scan.
	InsertLocalExchangeOperator() bool
	// AcceptEmptyScanRanges is false for whole-table backends with no range
	// concept; the scheduler must not prune such a scan to zero work.
	AcceptEmptyScanRanges() bool
	// StreamDataSource is true when sources follow the StreamDataSource
	// contract end-to-end.
	StreamDataSource() bool
	// AlwaysSharedScan is true when all drivers share one logical scan
	// progress rather than disjoint static partitions.
	AlwaysSharedScan() bool
	// CouldSplit reports whether scan ranges may be subdivided at all.
	CouldSplit() bool
	// CouldSplitPhysically reports whether subdivision can use backend-native
	// sub-ranges instead of row boundaries.
	CouldSplitPhysically() bool

	// PeekScanRanges is a non-mutating inspection hook called before
	// splitting decisions, letting a backend pre-aggregate statistics.
	PeekScanRanges(ranges []*plan.ScanRange)
	// DefaultDataSourceMemBytes supplies the admission-control memory budget
	// window for one open source.
	DefaultDataSourceMemBytes() (minBytes, maxBytes int64)

	// ConvertScanRangeToMorselQueue turns raw scan ranges into the morsel
	// queue drivers consume, recording the achieved scan parallelism and
	// total split row count on the way.
	ConvertScanRangeToMorselQueue(
		ranges []*plan.ScanRange,
		nodeID int32,
		pipelineDop int,
		enableTabletInternalParallel bool,
		mode config.TabletInternalParallelMode,
		numTotalScanRanges int,
	) (pipeline.MorselQueue, error)
	// ScanDop is the effective achievable parallelism computed by conversion.
	ScanDop() int
	// SplittedScanRows is the total row count represented by the produced
	// morsels, when known.
	SplittedScanRows() int64
}

// ProviderTraits are the capability flags a backend fixes at provider
// construction time. They never change afterwards.
type ProviderTraits struct {
	CouldSplit            bool
	CouldSplitPhysically  bool
	AcceptEmptyScanRanges bool
	InsertLocalExchange   bool
	StreamSource          bool
	AlwaysSharedScan      bool
	// MinRowsPerMorsel floors split sizes; zero uses the config default.
	MinRowsPerMorsel int64
	// ValidateRange, when set, structurally checks each range before
	// splitting. A failure aborts the whole conversion.
	ValidateRange func(*plan.ScanRange) error
}

// BaseDataSourceProvider implements the splitting policy and capability
// surface shared by backends. Concrete providers embed it and implement
// CreateDataSource and TupleDescriptor.
type BaseDataSourceProvider struct {
	traits ProviderTraits

	// Derived once during ConvertScanRangeToMorselQueue, read-only after.
	scanDop          int
	splittedScanRows int64
}

// NewBaseDataSourceProvider creates provider state with the given traits.
func NewBaseDataSourceProvider(traits ProviderTraits) BaseDataSourceProvider {
	if traits.MinRowsPerMorsel <= 0 {
		traits.MinRowsPerMorsel = config.DefaultMinRowsPerMorsel
	}
	return BaseDataSourceProvider{traits: traits}
}

// Init defaults to no preparation.
func (p *BaseDataSourceProvider) Init(objPool *pool.ObjectPool, state *exec.State) error {
	return nil
}

// InsertLocalExchangeOperator returns the backend's fan-out requirement.
func (p *BaseDataSourceProvider) InsertLocalExchangeOperator() bool {
	return p.traits.InsertLocalExchange
}

// AcceptEmptyScanRanges reports whether empty range lists are valid input.
func (p *BaseDataSourceProvider) AcceptEmptyScanRanges() bool {
	return p.traits.AcceptEmptyScanRanges
}

// StreamDataSource reports whether this provider creates stream sources.
func (p *BaseDataSourceProvider) StreamDataSource() bool { return p.traits.StreamSource }

// AlwaysSharedScan reports whether drivers share one logical scan progress.
func (p *BaseDataSourceProvider) AlwaysSharedScan() bool { return p.traits.AlwaysSharedScan }

// CouldSplit reports whether ranges may be subdivided.
func (p *BaseDataSourceProvider) CouldSplit() bool { return p.traits.CouldSplit }

// CouldSplitPhysically reports whether subdivision can be physical.
func (p *BaseDataSourceProvider) CouldSplitPhysically() bool {
	return p.traits.CouldSplitPhysically
}

// PeekScanRanges defaults to no inspection.
func (p *BaseDataSourceProvider) PeekScanRanges(ranges []*plan.ScanRange) {}

// DefaultDataSourceMemBytes returns the standard 16MB-256MB budget window.
func (p *BaseDataSourceProvider) DefaultDataSourceMemBytes() (int64, int64) {
	return MinDataSourceMemBytes, MaxDataSourceMemBytes
}

// EstimateMemBytesForFields is the per-field heuristic available to callers
// sizing a source by its output width, clamped to the standard window.
func EstimateMemBytesForFields(numFields int) int64 {
	est := int64(numFields) * PerFieldMemBytes
	if est < MinDataSourceMemBytes {
		return MinDataSourceMemBytes
	}
	if est > MaxDataSourceMemBytes {
		return MaxDataSourceMemBytes
	}
	return est
}

// ScanDop returns the effective parallelism computed by conversion.
func (p *BaseDataSourceProvider) ScanDop() int { return p.scanDop }

// SplittedScanRows returns the total rows represented by the morsels, when
// known.
func (p *BaseDataSourceProvider) SplittedScanRows() int64 { return p.splittedScanRows }

// ConvertScanRangeToMorselQueue implements the shared splitting algorithm:
//
//  1. Non-splittable backends map each range to exactly one morsel, bounding
//     parallelism by the range count.
//  2. Splittable backends with tablet-internal parallelism enabled subdivide
//     ranges toward pipelineDop, physically when supported and permitted by
//     the mode, otherwise logically by row boundaries, never below the
//     per-morsel row floor.
//  3. The achieved scanDop and total split row count are recorded for the
//     scheduler's cost estimation.
//  4. A structurally invalid range aborts the conversion; an empty range
//     list is a valid empty scan unless the backend has no range concept.
func (p *BaseDataSourceProvider) ConvertScanRangeToMorselQueue(
	ranges []*plan.ScanRange,
	nodeID int32,
	pipelineDop int,
	enableTabletInternalParallel bool,
	mode config.TabletInternalParallelMode,
	numTotalScanRanges int,
) (pipeline.MorselQueue, error) {
	if pipelineDop <= 0 {
		pipelineDop = 1
	}
	if p.traits.ValidateRange != nil {
		for i, rng := range ranges {
			if err := p.traits.ValidateRange(rng); err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeMalformedRange,
					"scan range %d of node %d is invalid", i, nodeID)
			}
		}
	}

	for _, rng := range ranges {
		if rng.NumRows > 0 {
			p.splittedScanRows += rng.NumRows
		}
	}

	if len(ranges) == 0 {
		if p.traits.AcceptEmptyScanRanges {
			p.scanDop = 0
			return p.newQueue(nil), nil
		}
		// No range concept: one whole-source morsel, never zero work.
		p.scanDop = 1
		return p.newQueue([]pipeline.Morsel{pipeline.NewScanMorsel(nodeID, nil)}), nil
	}

	splittable := p.traits.CouldSplit && enableTabletInternalParallel
	physical := false
	if splittable {
		switch mode {
		case config.TabletInternalParallelForceRowSplit:
			physical = false
		case config.TabletInternalParallelForceSplit:
			if !p.traits.CouldSplitPhysically {
				splittable = false
			}
			physical = true
		default:
			physical = p.traits.CouldSplitPhysically
		}
	}

	var morsels []pipeline.Morsel
	if !splittable || len(ranges) >= pipelineDop {
		// Enough ranges already, or splitting is off: one morsel per range.
		for _, rng := range ranges {
			morsels = append(morsels, pipeline.NewScanMorsel(nodeID, rng))
		}
	} else {
		morsels = p.splitRanges(ranges, nodeID, pipelineDop, physical)
	}

	p.scanDop = len(morsels)
	if p.scanDop > pipelineDop {
		p.scanDop = pipelineDop
	}
	if !p.traits.CouldSplit && numTotalScanRanges > 0 && p.scanDop > numTotalScanRanges {
		p.scanDop = numTotalScanRanges
	}
	return p.newQueue(morsels), nil
}

// splitRanges subdivides ranges to raise the morsel count toward pipelineDop,
// balancing per-morsel overhead against idle drivers. Ranges with unknown row
// counts cannot be subdivided and stay whole.
func (p *BaseDataSourceProvider) splitRanges(
	ranges []*plan.ScanRange, nodeID int32, pipelineDop int, physical bool,
) []pipeline.Morsel {
	var totalRows int64
	for _, rng := range ranges {
		if rng.NumRows > 0 {
			totalRows += rng.NumRows
		}
	}

	kind := pipeline.SplitKindRows
	if physical {
		kind = pipeline.SplitKindPhysical
	}

	var morsels []pipeline.Morsel
	for _, rng := range ranges {
		if rng.NumRows <= 0 || totalRows == 0 {
			morsels = append(morsels, pipeline.NewScanMorsel(nodeID, rng))
			continue
		}
		// Proportional share of the dop target, floored by the per-morsel
		// row minimum so small ranges stay whole.
		splits := int((int64(pipelineDop)*rng.NumRows + totalRows - 1) / totalRows)
		maxByRows := int(rng.NumRows / p.traits.MinRowsPerMorsel)
		if maxByRows < 1 {
			maxByRows = 1
		}
		if splits > maxByRows {
			splits = maxByRows
		}
		if splits <= 1 {
			morsels = append(morsels, pipeline.NewScanMorsel(nodeID, rng))
			continue
		}
		rowsPerSplit := rng.NumRows / int64(splits)
		for i := 0; i < splits; i++ {
			start := int64(i) * rowsPerSplit
			end := start + rowsPerSplit
			if i == splits-1 {
				end = rng.NumRows
			}
			morsels = append(morsels, pipeline.NewSplitMorsel(nodeID, rng, &pipeline.SplitContext{
				Kind:     kind,
				Index:    i,
				Total:    splits,
				StartRow: start,
				EndRow:   end,
			}))
		}
	}
	return morsels
}

func (p *BaseDataSourceProvider) newQueue(morsels []pipeline.Morsel) pipeline.MorselQueue {
	if p.traits.AlwaysSharedScan {
		return pipeline.NewSharedMorselQueue(morsels)
	}
	return pipeline.NewFixedMorselQueue(morsels)
}
