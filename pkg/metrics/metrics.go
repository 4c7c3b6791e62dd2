package metrics

import (
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"pixelgardenlabs.io/janus/pkg/plog"
)

// Metrics defines the interface for collecting and reporting run statistics.
type Metrics interface {
	AddFilesCopied(n int64)
	AddFilesRenamed(n int64)
	AddFilesDuplicated(n int64)
	AddFilesDeleted(n int64)
	AddDirsCreated(n int64)
	AddDirsDeleted(n int64)
	AddSymlinksCreated(n int64)
	AddMetaUpdates(n int64)
	AddBytesWritten(n int64)
	AddBytesSaved(n int64)
	Log()
}

// SyncMetrics holds the atomic counters for tracking a sync run.
// It is the concrete implementation of the Metrics interface.
type SyncMetrics struct {
	FilesCopied     atomic.Int64
	FilesRenamed    atomic.Int64
	FilesDuplicated atomic.Int64
	FilesDeleted    atomic.Int64
	DirsCreated     atomic.Int64
	DirsDeleted     atomic.Int64
	SymlinksCreated atomic.Int64
	MetaUpdates     atomic.Int64
	BytesWritten    atomic.Int64
	BytesSaved      atomic.Int64
}

func (m *SyncMetrics) AddFilesCopied(n int64)     { m.FilesCopied.Add(n) }
func (m *SyncMetrics) AddFilesRenamed(n int64)    { m.FilesRenamed.Add(n) }
func (m *SyncMetrics) AddFilesDuplicated(n int64) { m.FilesDuplicated.Add(n) }
func (m *SyncMetrics) AddFilesDeleted(n int64)    { m.FilesDeleted.Add(n) }
func (m *SyncMetrics) AddDirsCreated(n int64)     { m.DirsCreated.Add(n) }
func (m *SyncMetrics) AddDirsDeleted(n int64)     { m.DirsDeleted.Add(n) }
func (m *SyncMetrics) AddSymlinksCreated(n int64) { m.SymlinksCreated.Add(n) }
func (m *SyncMetrics) AddMetaUpdates(n int64)     { m.MetaUpdates.Add(n) }
func (m *SyncMetrics) AddBytesWritten(n int64)    { m.BytesWritten.Add(n) }
func (m *SyncMetrics) AddBytesSaved(n int64)      { m.BytesSaved.Add(n) }

// Log prints a summary of the run.
func (m *SyncMetrics) Log() {
	plog.Info("SUM",
		"filesCopied", m.FilesCopied.Load(),
		"filesRenamed", m.FilesRenamed.Load(),
		"filesDuplicated", m.FilesDuplicated.Load(),
		"filesDeleted", m.FilesDeleted.Load(),
		"dirsCreated", m.DirsCreated.Load(),
		"dirsDeleted", m.DirsDeleted.Load(),
		"symlinksCreated", m.SymlinksCreated.Load(),
		"metaUpdates", m.MetaUpdates.Load(),
		"bytesWritten", humanize.IBytes(uint64(m.BytesWritten.Load())),
		"bytesSaved", humanize.IBytes(uint64(m.BytesSaved.Load())),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no
// operations. It disables metrics collection without changing calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesCopied(n int64)     {}
func (m *NoopMetrics) AddFilesRenamed(n int64)    {}
func (m *NoopMetrics) AddFilesDuplicated(n int64) {}
func (m *NoopMetrics) AddFilesDeleted(n int64)    {}
func (m *NoopMetrics) AddDirsCreated(n int64)     {}
func (m *NoopMetrics) AddDirsDeleted(n int64)     {}
func (m *NoopMetrics) AddSymlinksCreated(n int64) {}
func (m *NoopMetrics) AddMetaUpdates(n int64)     {}
func (m *NoopMetrics) AddBytesWritten(n int64)    {}
func (m *NoopMetrics) AddBytesSaved(n int64)      {}
func (m *NoopMetrics) Log()                       {}

// Statically assert that our types implement the interface.
var _ Metrics = (*SyncMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
