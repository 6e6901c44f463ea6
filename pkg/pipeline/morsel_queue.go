package pipeline

import "sync/atomic"

// MorselQueue is the one structure of a scan shared for mutation across
// driver threads. Pop must deliver each morsel to exactly one consumer and
// lose none, under any interleaving.
type MorselQueue interface {
	// Pop takes the next morsel, returning false when the queue is drained.
	Pop() (Morsel, bool)
	// Len returns the number of morsels not yet delivered.
	Len() int
	// NumMorsels returns the total number of morsels produced for the scan.
	NumMorsels() int
	// MaxDegreeOfParallelism is the number of drivers the queue can keep
	// busy, i.e. its morsel count.
	MaxDegreeOfParallelism() int
	// SharedScan reports whether all drivers share one logical scan progress
	// instead of owning disjoint static partitions.
	SharedScan() bool
}

// fixedMorselQueue serves a frozen slice of morsels with an atomic cursor.
// The slice is never mutated after construction, so concurrent Pop needs no
// lock: fetch-add hands out disjoint indexes.
type fixedMorselQueue struct {
	morsels []Morsel
	next    atomic.Int64
	shared  bool
}

// NewFixedMorselQueue builds a queue where each driver takes disjoint morsels.
func NewFixedMorselQueue(morsels []Morsel) MorselQueue {
	return &fixedMorselQueue{morsels: morsels}
}

// NewSharedMorselQueue builds a queue for backends where all drivers share
// one logical scan progress (always_shared_scan).
func NewSharedMorselQueue(morsels []Morsel) MorselQueue {
	return &fixedMorselQueue{morsels: morsels, shared: true}
}

func (q *fixedMorselQueue) Pop() (Morsel, bool) {
	idx := q.next.Add(1) - 1
	if idx >= int64(len(q.morsels)) {
		return nil, false
	}
	return q.morsels[idx], true
}

func (q *fixedMorselQueue) Len() int {
	taken := q.next.Load()
	if taken > int64(len(q.morsels)) {
		taken = int64(len(q.morsels))
	}
	return len(q.morsels) - int(taken)
}

func (q *fixedMorselQueue) NumMorsels() int { return len(q.morsels) }

func (q *fixedMorselQueue) MaxDegreeOfParallelism() int { return len(q.morsels) }

func (q *fixedMorselQueue) SharedScan() bool { return q.shared }
