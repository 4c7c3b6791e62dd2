// Package pathexec applies a plan to the destination tree. It is the only
// writer in the pipeline. Copies are staged in temporary sibling files and
// atomically renamed into place, so an interrupted run never leaves a torn
// destination file.
package pathexec

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"pixelgardenlabs.io/janus/pkg/metrics"
	"pixelgardenlabs.io/janus/pkg/pathhash"
	"pixelgardenlabs.io/janus/pkg/pathplan"
	"pixelgardenlabs.io/janus/pkg/pathscan"
	"pixelgardenlabs.io/janus/pkg/plog"
	"pixelgardenlabs.io/janus/pkg/pool"
	"pixelgardenlabs.io/janus/pkg/progress"
	"pixelgardenlabs.io/janus/pkg/sharded"
	"pixelgardenlabs.io/janus/pkg/util"
)

// ErrHashMismatch reports that verification found a staged file whose
// content does not match the digest recorded in the plan.
var ErrHashMismatch = errors.New("hash mismatch after copy")

// Options tune one executor run.
type Options struct {
	// Threads bounds the parallel copy workers. Non-positive means 1.
	Threads int
	// BufferSize is the streaming chunk size. Non-positive selects the
	// hasher default of 64 KiB.
	BufferSize int64
	// Verify re-hashes every staged temporary before the atomic rename.
	Verify bool
}

// ActionError records one failed action.
type ActionError struct {
	Action pathplan.Action
	Err    error
}

func (e ActionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

// Result is the aggregate outcome of an Execute call.
type Result struct {
	Completed   uint64
	BytesCopied uint64
	Errors      []ActionError
	// Fatal is set when execution aborted early (disk full, destination
	// root gone or unwritable).
	Fatal error
	// Cancelled is set when the caller's context ended the run. It is not
	// a failure: the destination is a well-formed subset of the target
	// state, with no temporaries left behind.
	Cancelled bool
}

// Executor applies plans against one source/destination root pair.
type Executor struct {
	src  string
	dst  string
	opts Options

	buffers *pool.FixedBufferPool
	hasher  *pathhash.Hasher
	sink    progress.Sink
	met     metrics.Metrics

	// readyDirs caches destination directories known to exist; dirSF
	// deduplicates concurrent creation of the same parent.
	readyDirs *sharded.Set
	dirSF     singleflight.Group

	// temps tracks staged temporary paths for cleanup on cancellation.
	temps *sharded.Set

	mu        sync.Mutex
	errs      []ActionError
	fatal     error
	completed atomic.Uint64
	copied    atomic.Uint64
}

// New creates an executor for the given roots.
func New(sourceRoot, destRoot string, opts Options, sink progress.Sink, met metrics.Metrics) *Executor {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = pathhash.DefaultChunkSize
	}
	if sink == nil {
		sink = progress.Discard{}
	}
	if met == nil {
		met = &metrics.NoopMetrics{}
	}
	return &Executor{
		src:       sourceRoot,
		dst:       destRoot,
		opts:      opts,
		buffers:   pool.NewFixedBuffer(opts.BufferSize),
		hasher:    pathhash.New(opts.BufferSize),
		sink:      sink,
		met:       met,
		readyDirs: sharded.NewSet(),
		temps:     sharded.NewSet(),
	}
}

// indexed pairs an action with its position in the plan, which doubles as
// the action id in progress events.
type indexed struct {
	id uint64
	a  pathplan.Action
}

// Execute applies the plan in phase order. Renames and local copies run
// sequentially because the planner's emission order encodes their chain
// dependencies; copies, overwrites and file deletions are independent by
// construction and run on the worker pool.
func (x *Executor) Execute(ctx context.Context, plan *pathplan.Plan) *Result {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var dirs, moves, xfers, metas, links, fileDels, dirDels []indexed
	for i, a := range plan.Actions {
		ia := indexed{id: uint64(i), a: a}
		switch a.Op {
		case pathplan.OpCreateDir:
			dirs = append(dirs, ia)
		case pathplan.OpLocalRename, pathplan.OpLocalCopy:
			moves = append(moves, ia)
		case pathplan.OpCopy, pathplan.OpOverwrite:
			xfers = append(xfers, ia)
		case pathplan.OpUpdateMode, pathplan.OpUpdateMtime:
			metas = append(metas, ia)
		case pathplan.OpCreateSymlink:
			links = append(links, ia)
		case pathplan.OpDelete:
			if a.Kind == pathscan.KindDir {
				dirDels = append(dirDels, ia)
			} else {
				fileDels = append(fileDels, ia)
			}
		}
	}

	x.runSequential(runCtx, cancel, dirs)
	x.runSequential(runCtx, cancel, moves)
	x.runParallel(runCtx, cancel, xfers)
	x.runSequential(runCtx, cancel, metas)
	x.runSequential(runCtx, cancel, links)
	x.runParallel(runCtx, cancel, fileDels)
	// Directory deletions come last and in child-before-parent order, so
	// they stay sequential.
	x.runSequential(runCtx, cancel, dirDels)

	// Whatever ended the run, no staged temporary may survive it.
	x.cleanupTemps()

	res := &Result{
		Completed:   x.completed.Load(),
		BytesCopied: x.copied.Load(),
		Errors:      x.errs,
		Fatal:       x.fatal,
		Cancelled:   ctx.Err() != nil,
	}
	return res
}

func (x *Executor) runSequential(ctx context.Context, cancel context.CancelFunc, actions []indexed) {
	for _, ia := range actions {
		if ctx.Err() != nil {
			return
		}
		x.runAction(ctx, cancel, ia)
	}
}

func (x *Executor) runParallel(ctx context.Context, cancel context.CancelFunc, actions []indexed) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.Threads)
	for _, ia := range actions {
		ia := ia
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			x.runAction(gctx, cancel, ia)
			return nil
		})
	}
	// Workers never return errors; fatal conditions cancel the context and
	// the group drains in-flight actions before returning.
	_ = g.Wait()
}

// runAction dispatches one action, publishes its lifecycle events and
// records failures. A fatal failure cancels the run context so no further
// actions are scheduled.
func (x *Executor) runAction(ctx context.Context, cancel context.CancelFunc, ia indexed) {
	a := ia.a
	x.sink.Publish(progress.ActionStarted{
		ID: ia.id, Op: a.Op.String(), Rel: a.Rel, From: a.From, Size: a.Size,
	})

	var err error
	switch a.Op {
	case pathplan.OpCreateDir:
		err = x.createDir(a)
	case pathplan.OpLocalRename:
		err = x.localRename(ctx, ia)
	case pathplan.OpLocalCopy:
		err = x.localCopy(ctx, ia)
	case pathplan.OpCopy, pathplan.OpOverwrite:
		err = x.copyFromSource(ctx, ia)
	case pathplan.OpUpdateMode:
		x.updateMode(a)
	case pathplan.OpUpdateMtime:
		x.updateMtime(a)
	case pathplan.OpCreateSymlink:
		err = x.createSymlink(a)
	case pathplan.OpDelete:
		err = x.delete(a)
	default:
		err = fmt.Errorf("unknown plan op %d", a.Op)
	}

	if err != nil {
		if ctx.Err() != nil {
			// Interrupted mid-action: the staged temp is cleaned up later,
			// the destination file is untouched. Not recorded as a failure.
			x.sink.Publish(progress.ActionDone{ID: ia.id, Err: ctx.Err()})
			return
		}
		if fatal := x.classifyFatal(err); fatal != nil {
			x.mu.Lock()
			if x.fatal == nil {
				x.fatal = fatal
			}
			x.mu.Unlock()
			plog.Error("fatal error, aborting", "action", a.String(), "error", err)
			cancel()
		}
		x.mu.Lock()
		x.errs = append(x.errs, ActionError{Action: a, Err: err})
		x.mu.Unlock()
		x.sink.Publish(progress.ActionDone{ID: ia.id, Err: err})
		plog.Warn("action failed", "action", a.String(), "error", err)
		return
	}

	x.completed.Add(1)
	x.sink.Publish(progress.ActionDone{ID: ia.id})
}

// classifyFatal decides whether an action failure must abort the run:
// the disk is full, or the destination root itself vanished or became
// unwritable.
func (x *Executor) classifyFatal(err error) error {
	if isDiskFull(err) {
		return fmt.Errorf("destination disk full: %w", err)
	}
	if info, statErr := os.Stat(x.dst); statErr != nil || !info.IsDir() {
		return fmt.Errorf("destination root unavailable: %w", err)
	}
	if errors.Is(err, fs.ErrPermission) && !canWrite(x.dst) {
		return fmt.Errorf("destination root not writable: %w", err)
	}
	return nil
}

// cleanupTemps removes every staged temporary still tracked. Temporaries
// that made it through their atomic rename were already untracked.
func (x *Executor) cleanupTemps() {
	for _, tmp := range x.temps.Keys() {
		if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
			plog.Warn("failed to remove temporary file", "path", tmp, "error", err)
			continue
		}
		x.temps.Delete(tmp)
	}
}

// ensureParent guarantees the parent directory of relKey exists in the
// destination. Concurrent copy workers targeting the same new directory are
// funneled through singleflight so only one performs the MkdirAll.
func (x *Executor) ensureParent(relKey string) error {
	parent := util.ParentKey(relKey)
	if parent == "." || x.readyDirs.Has(parent) {
		return nil
	}
	_, err, _ := x.dirSF.Do(parent, func() (any, error) {
		if x.readyDirs.Has(parent) {
			return nil, nil
		}
		abs := util.DenormalizedAbsPath(x.dst, parent)
		if err := os.MkdirAll(abs, util.UserWritableDirPerms); err != nil {
			return nil, fmt.Errorf("failed to create parent directory %s: %w", parent, err)
		}
		x.readyDirs.Store(parent)
		return nil, nil
	})
	return err
}
