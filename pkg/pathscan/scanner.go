// Package pathscan walks a directory tree in parallel and produces a frozen,
// sorted Inventory of everything it finds. Regular files are hashed as they
// are discovered; the scan is complete only once every scheduled hash has
// finished.
package pathscan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"pixelgardenlabs.io/janus/pkg/pathhash"
	"pixelgardenlabs.io/janus/pkg/plog"
	"pixelgardenlabs.io/janus/pkg/progress"
	"pixelgardenlabs.io/janus/pkg/sharded"
	"pixelgardenlabs.io/janus/pkg/util"
)

// ErrRootUnavailable reports that a tree root could not be opened at all.
// Unlike per-entry errors this aborts the scan immediately.
var ErrRootUnavailable = errors.New("root unavailable")

// EntryError records a single filesystem object that could not be read.
// The object is omitted from the inventory; the scan continues.
type EntryError struct {
	RelPath string
	Err     error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.RelPath, e.Err)
}

// Result bundles the inventory with the per-entry errors encountered.
type Result struct {
	Inventory *Inventory
	Errors    []EntryError
}

// Scanner walks trees with a bounded worker pool. The same Scanner may be
// used for several trees, sequentially or concurrently.
type Scanner struct {
	workers int
	hasher  *pathhash.Hasher
	sink    progress.Sink
}

// NewScanner creates a scanner with the given worker count. A non-positive
// count selects the number of logical CPUs via the caller's configuration;
// here it is clamped to 1.
func NewScanner(workers int, hasher *pathhash.Hasher, sink progress.Sink) *Scanner {
	if workers < 1 {
		workers = 1
	}
	if sink == nil {
		sink = progress.Discard{}
	}
	return &Scanner{workers: workers, hasher: hasher, sink: sink}
}

// scanState carries the shared mutable state of one Scan call.
type scanState struct {
	root string

	// entries receives directory and symlink records from dir workers, and
	// regular-file records from hash jobs once their digest is set. Frozen
	// and sorted once all workers and hash jobs are done.
	entries chan *FileMeta

	// errs records per-entry failures keyed by rel path.
	errs *sharded.Map

	filesSeen   atomic.Uint64
	bytesSeen   atomic.Uint64
	filesHashed atomic.Uint64
	bytesHashed atomic.Uint64
}

// Scan walks root and returns its inventory. The root directory itself is
// not part of the inventory. Per-entry failures are collected in the result;
// only an unreadable root or cancellation produce an error.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootUnavailable, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootUnavailable, root)
	}
	// Probe readability up front so a permission problem on the root is a
	// hard failure instead of a silent empty inventory.
	if _, err := os.ReadDir(root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootUnavailable, root, err)
	}

	st := &scanState{
		root:    root,
		entries: make(chan *FileMeta, s.workers*64),
		errs:    sharded.NewMap(),
	}

	// The collector drains entry records into a slice while workers run.
	collected := make([]*FileMeta, 0, 1024)
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for meta := range st.entries {
			collected = append(collected, meta)
		}
	}()

	// Directory workers pop from a shared queue; subdirectories are
	// enqueued for any worker to pick up, or walked inline when the queue
	// is saturated. Hash jobs run on their own group, throttled by a
	// semaphore of workers*2 so a huge tree cannot queue unbounded work.
	dirWorkers, dirCtx := errgroup.WithContext(ctx)
	hashGroup, hashCtx := errgroup.WithContext(ctx)
	hashSlots := semaphore.NewWeighted(int64(s.workers) * 2)

	queue := newDirQueue(s.workers * 128)
	queue.add(".")

	for n := 0; n < s.workers; n++ {
		dirWorkers.Go(func() error {
			for {
				dirKey, ok := queue.next(dirCtx)
				if !ok {
					return dirCtx.Err()
				}
				s.walkDir(dirCtx, hashCtx, st, queue, hashGroup, hashSlots, dirKey)
				queue.done()
			}
		})
	}

	walkErr := dirWorkers.Wait()
	hashErr := hashGroup.Wait()
	close(st.entries)
	<-collectorDone

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	if hashErr != nil {
		return nil, hashErr
	}

	// Merge into the final sorted inventory. Rel paths are unique, so a
	// plain sort is stable by construction.
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].RelPath < collected[j].RelPath
	})
	entries := make([]FileMeta, len(collected))
	for i, m := range collected {
		entries[i] = *m
	}

	errItems := st.errs.Items()
	entryErrs := make([]EntryError, 0, len(errItems))
	for path, v := range errItems {
		entryErrs = append(entryErrs, EntryError{RelPath: path, Err: v.(error)})
	}
	sort.Slice(entryErrs, func(i, j int) bool {
		return entryErrs[i].RelPath < entryErrs[j].RelPath
	})

	return &Result{
		Inventory: &Inventory{Root: root, Entries: entries},
		Errors:    entryErrs,
	}, nil
}

// walkDir reads one directory, records its entries and schedules hash jobs
// for regular files. Subdirectories go back on the queue.
func (s *Scanner) walkDir(ctx, hashCtx context.Context, st *scanState, queue *dirQueue, hashGroup *errgroup.Group, hashSlots *semaphore.Weighted, dirKey string) {
	absDir := util.DenormalizedAbsPath(st.root, dirKey)
	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		st.errs.Store(dirKey, err)
		plog.Warn("SKIP", "reason", "unreadable directory", "path", dirKey, "error", err)
		return
	}

	// os.ReadDir returns entries sorted by name, which keeps traversal
	// reproducible within a directory.
	for _, de := range dirEntries {
		if ctx.Err() != nil {
			return
		}

		relKey := de.Name()
		if dirKey != "." {
			relKey = dirKey + "/" + de.Name()
		}

		info, err := de.Info()
		if err != nil {
			st.errs.Store(relKey, err)
			plog.Warn("SKIP", "reason", "failed to stat", "path", relKey, "error", err)
			continue
		}

		mode := info.Mode()
		switch {
		case mode.IsDir():
			meta := &FileMeta{
				RelPath: relKey,
				Mtime:   info.ModTime(),
				Mode:    mode,
				Kind:    KindDir,
			}
			if !s.emit(ctx, st, meta) {
				return
			}
			// Walk inline when the queue is saturated; any order is fine
			// because the inventory is sorted at the end.
			if !queue.tryAdd(relKey) {
				s.walkDir(ctx, hashCtx, st, queue, hashGroup, hashSlots, relKey)
			}

		case mode&os.ModeSymlink != 0:
			// Symlinks are never followed; the target string is recorded.
			target, err := os.Readlink(util.DenormalizedAbsPath(st.root, relKey))
			if err != nil {
				st.errs.Store(relKey, err)
				plog.Warn("SKIP", "reason", "unreadable symlink", "path", relKey, "error", err)
				continue
			}
			meta := &FileMeta{
				RelPath:    relKey,
				Mtime:      info.ModTime(),
				Mode:       mode,
				Kind:       KindSymlink,
				LinkTarget: target,
			}
			if !s.emit(ctx, st, meta) {
				return
			}

		case mode.IsRegular():
			meta := &FileMeta{
				RelPath: relKey,
				Size:    uint64(info.Size()),
				Mtime:   info.ModTime(),
				Mode:    mode,
				Kind:    KindRegular,
			}
			st.filesSeen.Add(1)
			st.bytesSeen.Add(meta.Size)
			if !s.scheduleHash(ctx, hashCtx, st, hashGroup, hashSlots, meta) {
				return
			}

		default:
			// Sockets, pipes and devices are not synchronized.
			plog.Notice("SKIP", "type", mode.String(), "path", relKey)
		}
	}

	s.sink.Publish(progress.ScanProgress{
		Root:      st.root,
		FilesSeen: st.filesSeen.Load(),
		BytesSeen: st.bytesSeen.Load(),
	})
}

// emit sends one completed meta record to the collector.
func (s *Scanner) emit(ctx context.Context, st *scanState, meta *FileMeta) bool {
	select {
	case st.entries <- meta:
		return true
	case <-ctx.Done():
		return false
	}
}

// scheduleHash blocks on the backpressure semaphore, then hashes the file on
// the hash group. The entry only joins the inventory once its digest is
// computed; a hash failure records the entry as unreadable instead.
func (s *Scanner) scheduleHash(ctx, hashCtx context.Context, st *scanState, hashGroup *errgroup.Group, hashSlots *semaphore.Weighted, meta *FileMeta) bool {
	if err := hashSlots.Acquire(ctx, 1); err != nil {
		return false
	}
	hashGroup.Go(func() error {
		defer hashSlots.Release(1)

		absPath := util.DenormalizedAbsPath(st.root, meta.RelPath)
		digest, n, err := s.hasher.HashFile(hashCtx, absPath)
		if err != nil {
			if hashCtx.Err() != nil {
				return hashCtx.Err()
			}
			st.errs.Store(meta.RelPath, err)
			plog.Warn("SKIP", "reason", "failed to hash", "path", meta.RelPath, "error", err)
			return nil
		}
		meta.Hash = digest
		meta.HashValid = true

		st.filesHashed.Add(1)
		st.bytesHashed.Add(n)
		s.sink.Publish(progress.HashProgress{
			Root:        st.root,
			FilesHashed: st.filesHashed.Load(),
			BytesHashed: st.bytesHashed.Load(),
		})

		if !s.emit(hashCtx, st, meta) {
			return hashCtx.Err()
		}
		return nil
	})
	return true
}
