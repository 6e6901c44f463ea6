package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector("test_backend")
	c.RecordRowsRead(10, 25)
	c.RecordRowsRead(5, 5)
	c.RecordBytesRead(1024)
	c.DataSourceOpened()
	c.DataSourceClosed()
	c.ObserveGetNext(3 * time.Millisecond)
	c.SetQueueDepth(4)

	snap := c.Snapshot()
	assert.Equal(t, int64(15), snap["rows_read"])
	assert.Equal(t, int64(1024), snap["bytes_read"])
	assert.Equal(t, int64(1), snap["sources_opened"])

	// Snapshot is a copy, not a view.
	snap["rows_read"] = 999
	assert.Equal(t, int64(15), c.Snapshot()["rows_read"])
}

func TestCollectorName(t *testing.T) {
	assert.Equal(t, "lake", NewCollector("lake").Name())
}
