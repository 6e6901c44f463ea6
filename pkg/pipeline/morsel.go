// Package pipeline holds the scan-side scheduling units: morsels, the
// concurrent morsel queue drivers pull from, and split contexts carrying
// sub-range hints from a provider to the data sources it creates.
package pipeline

import (
	"fmt"

	"github.com/petreldb/petrel/pkg/plan"
)

// SplitKind says how a split context subdivides its scan range.
type SplitKind int

const (
	// SplitKindRows subdivides logically by row boundaries.
	SplitKindRows SplitKind = iota
	// SplitKindPhysical subdivides by backend-native physical sub-ranges.
	SplitKindPhysical
)

// SplitContext carries scheduling hints attached by a provider to a morsel.
// A DataSource bound to the morsel consumes it to refine its own reading, and
// may produce further split tasks from it.
type SplitContext struct {
	Kind SplitKind
	// Index of this split within its parent scan range.
	Index int
	// Total splits of the parent scan range.
	Total int
	// Row window [StartRow, EndRow) for logical splits; physical splits set
	// it too when the backend can map sub-ranges back to row counts.
	StartRow int64
	EndRow   int64
}

// NumRows returns the row count of the split window, or -1 when unknown.
func (s *SplitContext) NumRows() int64 {
	if s.EndRow < s.StartRow {
		return -1
	}
	return s.EndRow - s.StartRow
}

func (s *SplitContext) String() string {
	return fmt.Sprintf("split %d/%d rows [%d,%d)", s.Index, s.Total, s.StartRow, s.EndRow)
}

// Morsel is the smallest unit of scan work the scheduler hands to exactly one
// driver. A morsel is consumed once: the driver attaches it to a fresh
// DataSource for the morsel's whole lifetime.
type Morsel interface {
	// Owner is the plan node id of the scan this morsel belongs to.
	Owner() int32
	// ScanRange is the backend descriptor this morsel covers. Nil only for
	// whole-source morsels of backends without a range concept.
	ScanRange() *plan.ScanRange
	// SplitContext is the optional sub-range hint, nil when the morsel
	// covers its entire scan range.
	SplitContext() *SplitContext
}

// ScanMorsel is the standard morsel implementation.
type ScanMorsel struct {
	nodeID   int32
	rng      *plan.ScanRange
	splitCtx *SplitContext
}

// NewScanMorsel creates a morsel covering a whole scan range.
func NewScanMorsel(nodeID int32, rng *plan.ScanRange) *ScanMorsel {
	return &ScanMorsel{nodeID: nodeID, rng: rng}
}

// NewSplitMorsel creates a morsel covering a sub-range of one scan range.
func NewSplitMorsel(nodeID int32, rng *plan.ScanRange, splitCtx *SplitContext) *ScanMorsel {
	return &ScanMorsel{nodeID: nodeID, rng: rng, splitCtx: splitCtx}
}

func (m *ScanMorsel) Owner() int32 { return m.nodeID }

func (m *ScanMorsel) ScanRange() *plan.ScanRange { return m.rng }

func (m *ScanMorsel) SplitContext() *SplitContext { return m.splitCtx }
