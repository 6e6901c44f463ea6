// Package exec carries the per-fragment execution state threaded through the
// scan layer: identifiers, cancellation and batch sizing.
package exec

import (
	"context"

	"go.uber.org/zap"

	"github.com/petreldb/petrel/pkg/config"
	"github.com/petreldb/petrel/pkg/logger"
)

// State is the execution context for one query fragment instance. It is
// created by the fragment and shared read-only by every driver of the scan;
// cancellation flows through the embedded context.
type State struct {
	ctx        context.Context
	queryID    string
	fragmentID string
	cfg        *config.ScanConfig
	log        *zap.Logger
}

// NewState creates execution state for one fragment instance.
func NewState(ctx context.Context, queryID, fragmentID string, cfg *config.ScanConfig) *State {
	if cfg == nil {
		cfg = config.DefaultScanConfig()
	}
	return &State{
		ctx:        ctx,
		queryID:    queryID,
		fragmentID: fragmentID,
		cfg:        cfg,
		log: logger.With(
			zap.String("query_id", queryID),
			zap.String("fragment_id", fragmentID),
		),
	}
}

// Context returns the fragment's context; drivers observe cancellation
// through it and stop calling GetNext cooperatively.
func (s *State) Context() context.Context { return s.ctx }

// QueryID returns the owning query's identifier.
func (s *State) QueryID() string { return s.queryID }

// FragmentID returns the fragment instance identifier.
func (s *State) FragmentID() string { return s.fragmentID }

// Config returns the scan configuration for this fragment.
func (s *State) Config() *config.ScanConfig { return s.cfg }

// ChunkSize returns the row capacity for one batch.
func (s *State) ChunkSize() int { return s.cfg.Limits.ChunkSize }

// Logger returns a logger annotated with query and fragment ids.
func (s *State) Logger() *zap.Logger { return s.log }

// Cancelled reports whether the fragment has been cancelled.
func (s *State) Cancelled() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}
