// Package pipeline runs the driver loop that pulls morsels through data
// sources. It owns scheduling only; all backend behavior stays behind the
// connector contracts.
package pipeline

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/pipeline"
	"github.com/petreldb/petrel/pkg/plan"
	"github.com/petreldb/petrel/pkg/pool"
)

// ChunkHandler consumes one output chunk. It is called concurrently from
// every driver and must be safe for that.
type ChunkHandler func(driverSeq int, ch *chunk.Chunk) error

// ScanExecutor drives one logical table scan end to end: provider setup,
// range-to-morsel conversion and a pool of drivers each running the
// Open/GetNext/Close protocol on the sources it pops.
type ScanExecutor struct {
	scanNode *connector.ScanNode
	provider connector.DataSourceProvider
	objPool  *pool.ObjectPool
}

// NewScanExecutor builds the executor for one scan node against a registered
// connector.
func NewScanExecutor(manager *connector.ConnectorManager, scanNode *connector.ScanNode) (*ScanExecutor, error) {
	node := scanNode.PlanNode()
	conn, err := manager.Get(node.ConnectorName)
	if err != nil {
		return nil, err
	}
	provider, err := conn.CreateDataSourceProvider(scanNode, node)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeInternal,
			"creating data source provider for node %d", node.NodeID)
	}
	return &ScanExecutor{
		scanNode: scanNode,
		provider: provider,
		objPool:  pool.NewObjectPool(),
	}, nil
}

// Provider exposes the underlying provider, mainly for admission decisions
// and post-run inspection of ScanDop and SplittedScanRows.
func (e *ScanExecutor) Provider() connector.DataSourceProvider { return e.provider }

// Run converts the given scan ranges into morsels and drains them with up to
// scanDop concurrent drivers, handing every produced chunk to handler. It
// returns the first driver error; remaining drivers stop cooperatively
// through the state's context.
func (e *ScanExecutor) Run(state *exec.State, ranges []*plan.ScanRange, handler ChunkHandler) error {
	defer e.objPool.Clear()
	if err := e.provider.Init(e.objPool, state); err != nil {
		return err
	}
	e.provider.PeekScanRanges(ranges)

	cfg := state.Config()
	queue, err := e.provider.ConvertScanRangeToMorselQueue(
		ranges,
		e.scanNode.PlanNode().NodeID,
		cfg.Parallelism.PipelineDop,
		cfg.Parallelism.EnableTabletInternalParallel,
		cfg.Parallelism.TabletInternalParallelMode,
		len(ranges),
	)
	if err != nil {
		return err
	}

	dop := e.provider.ScanDop()
	if dop < 1 {
		dop = 1
	}
	e.scanNode.Profile().SetQueueDepth(queue.Len())
	state.Logger().Info("scan started",
		zap.String("connector", e.scanNode.PlanNode().ConnectorName),
		zap.Int("morsels", queue.NumMorsels()),
		zap.Int("scan_dop", dop),
		zap.Int64("splitted_scan_rows", e.provider.SplittedScanRows()))

	g, ctx := errgroup.WithContext(state.Context())
	runState := exec.NewState(ctx, state.QueryID(), state.FragmentID(), cfg)
	for seq := 0; seq < dop; seq++ {
		seq := seq
		g.Go(func() error {
			return e.runDriver(runState, queue, seq, handler)
		})
	}
	return g.Wait()
}

// runDriver pops morsels until the queue drains, running one source per
// morsel through the full protocol.
func (e *ScanExecutor) runDriver(state *exec.State, queue pipeline.MorselQueue, seq int, handler ChunkHandler) error {
	for {
		if state.Cancelled() {
			return errors.Wrap(state.Context().Err(), errors.ErrorTypeCancelled, "scan driver stopped")
		}
		morsel, ok := queue.Pop()
		if !ok {
			return nil
		}
		if err := e.scanMorsel(state, morsel, seq, handler); err != nil {
			return err
		}
		e.scanNode.Profile().SetQueueDepth(queue.Len())
	}
}

func (e *ScanExecutor) scanMorsel(state *exec.State, morsel pipeline.Morsel, seq int, handler ChunkHandler) error {
	ds, err := e.provider.CreateDataSource(morsel.ScanRange())
	if err != nil {
		return err
	}
	e.scanNode.Bind(ds)
	ds.SetMorsel(morsel)
	ds.SetDriverSequence(seq)
	if err := ds.ParseRuntimeFilters(state); err != nil {
		return err
	}

	if err := ds.Open(state); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "opening %s source", ds.Name())
	}
	defer ds.Close(state)

	for {
		start := time.Now()
		ch, err := ds.GetNext(state)
		e.scanNode.Profile().ObserveGetNext(time.Since(start))
		if err == connector.ErrEndOfData {
			return nil
		}
		if err != nil {
			return err
		}
		if ch == nil || ch.NumRows() == 0 {
			continue
		}
		if err := handler(seq, ch); err != nil {
			return err
		}
	}
}
