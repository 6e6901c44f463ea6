package connector

import (
	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/plan"
)

// ChunkSink is the write-path counterpart of DataSource: one sink receives
// the chunks of one pipeline driver. Sinks follow the same single-owner
// discipline as sources: Open, AppendChunk repeatedly, then exactly one of
// Finish or Abort.
type ChunkSink interface {
	// Open acquires backend write resources.
	Open(state *exec.State) error
	// AppendChunk writes one columnar batch.
	AppendChunk(ch *chunk.Chunk) error
	// Finish flushes and commits what was appended.
	Finish() error
	// Abort discards buffered output; failures are logged, not returned,
	// because teardown always completes.
	Abort(state *exec.State)
}

// ChunkSinkProvider creates the sinks for one logical write, mirroring
// DataSourceProvider on the read path.
type ChunkSinkProvider interface {
	// CreateChunkSink returns a sink for one driver. driverSequence
	// distinguishes parallel writers of the same plan node.
	CreateChunkSink(node *plan.PlanNode, state *exec.State, driverSequence int) (ChunkSink, error)
}
