// Package progress defines the event stream the sync pipeline emits and a
// few ready-made sinks. The core never renders progress itself; it only
// publishes events. Sinks must tolerate publishers on multiple goroutines.
package progress

import (
	"sync"

	"github.com/dustin/go-humanize"

	"pixelgardenlabs.io/janus/pkg/plog"
)

// Event is the closed set of progress notifications.
type Event interface {
	isEvent()
}

// ScanProgress reports cumulative scanner totals for one tree.
type ScanProgress struct {
	Root      string
	FilesSeen uint64
	BytesSeen uint64
}

// HashProgress reports cumulative hashing totals for one tree.
type HashProgress struct {
	Root        string
	FilesHashed uint64
	BytesHashed uint64
}

// PlanSummary reports the aggregate counters of a freshly built plan.
type PlanSummary struct {
	Copies      uint64
	Renames     uint64
	Overwrites  uint64
	Deletes     uint64
	BytesToCopy uint64
	BytesSaved  uint64
}

// ActionStarted marks the beginning of one plan action.
// The action is described by plain fields so sinks need no plan types.
type ActionStarted struct {
	ID   uint64
	Op   string
	Rel  string
	From string
	Size uint64
}

// ActionBytes reports streamed bytes for an in-flight action.
type ActionBytes struct {
	ID    uint64
	Delta uint64
}

// ActionDone marks the completion of an action. Err is nil on success.
type ActionDone struct {
	ID  uint64
	Err error
}

func (ScanProgress) isEvent()  {}
func (HashProgress) isEvent()  {}
func (PlanSummary) isEvent()   {}
func (ActionStarted) isEvent() {}
func (ActionBytes) isEvent()   {}
func (ActionDone) isEvent()    {}

// Sink consumes progress events. Publish may be called concurrently.
type Sink interface {
	Publish(Event)
}

// Discard is a Sink that drops every event. Used in quiet mode.
type Discard struct{}

func (Discard) Publish(Event) {}

// Log is a Sink that writes per-action NOTICE lines through plog.
// Byte-level events are intentionally not logged.
type Log struct{}

func (Log) Publish(ev Event) {
	switch e := ev.(type) {
	case ActionStarted:
		if e.From != "" && e.From != e.Rel {
			plog.Notice(e.Op, "path", e.Rel, "from", e.From)
		} else {
			plog.Notice(e.Op, "path", e.Rel)
		}
	case ActionDone:
		if e.Err != nil {
			plog.Warn("action failed", "id", e.ID, "error", e.Err)
		}
	case PlanSummary:
		plog.Info("PLAN",
			"copies", e.Copies,
			"renames", e.Renames,
			"overwrites", e.Overwrites,
			"deletes", e.Deletes,
			"bytesToCopy", humanize.IBytes(e.BytesToCopy),
			"bytesSaved", humanize.IBytes(e.BytesSaved),
		)
	}
}

// Channel is a bounded multi-producer single-consumer Sink. When the buffer
// is full, new events are dropped rather than blocking a worker.
type Channel struct {
	C chan Event

	mu     sync.Mutex
	closed bool
}

// NewChannel creates a Channel sink with the given buffer size.
func NewChannel(buffer int) *Channel {
	return &Channel{C: make(chan Event, buffer)}
}

// Publish enqueues the event, dropping it if the consumer lags.
func (c *Channel) Publish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.C <- ev:
	default:
	}
}

// Close stops the sink; subsequent publishes are dropped.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.C)
	}
}
