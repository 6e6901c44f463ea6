// Package lake implements the connector for internal tablet storage. It is
// the one splittable backend in the tree: tablets report row counts, support
// physical sub-range reads and feed the tablet-internal-parallelism path of
// the splitting algorithm.
package lake

import (
	"sync"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/plan"
)

// Tablet is one immutable tablet: a row-count-known columnar segment.
type Tablet struct {
	ID      int64
	Version int64
	Desc    *plan.TupleDescriptor
	Data    *chunk.Chunk
}

// NumRows returns the tablet's row count.
func (t *Tablet) NumRows() int64 { return int64(t.Data.NumRows()) }

// Store is the process-local tablet registry the lake connector reads from.
type Store struct {
	mu      sync.RWMutex
	tablets map[int64]*Tablet
}

// NewStore creates an empty tablet store.
func NewStore() *Store {
	return &Store{tablets: make(map[int64]*Tablet)}
}

// AddTablet registers a tablet. Tablets are immutable once added.
func (s *Store) AddTablet(t *Tablet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tablets[t.ID] = t
}

// Tablet returns the tablet with the given id.
func (s *Store) Tablet(id int64) (*Tablet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tablets[id]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "tablet %d not found", id)
	}
	return t, nil
}

// ScanRangeSpec is the lake backend's scan range payload: one tablet at one
// version.
type ScanRangeSpec struct {
	TabletID int64 `json:"tablet_id"`
	Version  int64 `json:"version"`
}

// NewScanRange builds a scan range covering one tablet.
func NewScanRange(t *Tablet) (*plan.ScanRange, error) {
	return plan.NewScanRange(ScanRangeSpec{TabletID: t.ID, Version: t.Version}, t.NumRows())
}
