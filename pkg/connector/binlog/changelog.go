// Package binlog implements the stream connector for changelog-style
// sources. Reads happen in epochs bounded by (table version, changelog id)
// offsets; the data source follows the StreamDataSource contract.
package binlog

import (
	"context"
	"io"
	"sync"

	"github.com/petreldb/petrel/pkg/errors"
)

// Op is the change operation of one event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one changelog entry.
type Event struct {
	TableVersion int64
	ChangelogID  int64
	Op           Op
	Row          map[string]interface{}
}

// ChangelogReader positions into a changelog stream and iterates the events
// of one epoch. Next returns io.EOF at the epoch boundary; SeekTo starts the
// next epoch. Implementations are used by exactly one data source at a time.
type ChangelogReader interface {
	// SeekTo repositions to the given logical offset. It fails with a
	// stream_epoch error when the position is no longer retrievable (for
	// example, compacted away).
	SeekTo(tableVersion, changelogID int64) error
	// Next returns the next event of the current epoch, or io.EOF at the
	// epoch boundary.
	Next(ctx context.Context) (*Event, error)
	Close() error
}

// MemoryChangelog is an in-process changelog used by tests and the demo CLI.
// Events are ordered by (table version, changelog id); Compact discards the
// prefix below a changelog id, after which seeks into it fail.
type MemoryChangelog struct {
	mu              sync.Mutex
	events          []*Event
	truncatedBefore int64
}

// NewMemoryChangelog creates an empty changelog.
func NewMemoryChangelog() *MemoryChangelog {
	return &MemoryChangelog{}
}

// Append adds one event. Callers append in offset order.
func (l *MemoryChangelog) Append(ev *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// Compact drops events with changelog id below the given id.
func (l *MemoryChangelog) Compact(beforeID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.events[:0]
	for _, ev := range l.events {
		if ev.ChangelogID >= beforeID {
			kept = append(kept, ev)
		}
	}
	l.events = kept
	if beforeID > l.truncatedBefore {
		l.truncatedBefore = beforeID
	}
}

// NewReader returns a reader over this changelog.
func (l *MemoryChangelog) NewReader() ChangelogReader {
	return &memoryReader{log: l}
}

type memoryReader struct {
	log     *MemoryChangelog
	version int64
	cursor  int
	seeked  bool
}

func (r *memoryReader) SeekTo(tableVersion, changelogID int64) error {
	r.log.mu.Lock()
	defer r.log.mu.Unlock()
	if changelogID < r.log.truncatedBefore {
		return errors.Newf(errors.ErrorTypeStreamEpoch,
			"changelog position %d compacted away (retained from %d)", changelogID, r.log.truncatedBefore)
	}
	for i, ev := range r.log.events {
		if ev.TableVersion == tableVersion && ev.ChangelogID >= changelogID {
			r.version = tableVersion
			r.cursor = i
			r.seeked = true
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeStreamEpoch,
		"no changelog events at version %d from position %d", tableVersion, changelogID)
}

func (r *memoryReader) Next(ctx context.Context) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.log.mu.Lock()
	defer r.log.mu.Unlock()
	if !r.seeked || r.cursor >= len(r.log.events) {
		return nil, io.EOF
	}
	ev := r.log.events[r.cursor]
	if ev.TableVersion != r.version {
		return nil, io.EOF
	}
	r.cursor++
	return ev, nil
}

func (r *memoryReader) Close() error { return nil }
