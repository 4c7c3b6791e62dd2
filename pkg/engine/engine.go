// Package engine orchestrates one sync run: preflight validation, the two
// tree scans, plan construction and plan execution, with a strict barrier
// between each stage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"pixelgardenlabs.io/janus/pkg/config"
	"pixelgardenlabs.io/janus/pkg/metrics"
	"pixelgardenlabs.io/janus/pkg/pathexec"
	"pixelgardenlabs.io/janus/pkg/pathhash"
	"pixelgardenlabs.io/janus/pkg/pathplan"
	"pixelgardenlabs.io/janus/pkg/pathscan"
	"pixelgardenlabs.io/janus/pkg/plog"
	"pixelgardenlabs.io/janus/pkg/preflight"
	"pixelgardenlabs.io/janus/pkg/progress"
)

// errorSummaryLimit bounds how many offending paths the final summary lists.
const errorSummaryLimit = 10

// Runner executes sync runs for one configuration.
type Runner struct {
	cfg  config.Config
	sink progress.Sink
	met  metrics.Metrics
}

// NewRunner creates a runner. A nil sink discards progress; a nil metrics
// implementation disables counters.
func NewRunner(cfg config.Config, sink progress.Sink, met metrics.Metrics) *Runner {
	if sink == nil {
		sink = progress.Discard{}
	}
	if met == nil {
		met = &metrics.NoopMetrics{}
	}
	return &Runner{cfg: cfg, sink: sink, met: met}
}

// RunResult carries everything a caller needs for reporting and exit codes.
type RunResult struct {
	Source string
	Dest   string

	Plan *pathplan.Plan
	// Exec is nil for dry runs.
	Exec *pathexec.Result

	SourceScanErrors []pathscan.EntryError
	DestScanErrors   []pathscan.EntryError
}

// Failed reports whether any non-fatal failure occurred during the run.
func (r *RunResult) Failed() bool {
	if len(r.SourceScanErrors) > 0 || len(r.DestScanErrors) > 0 {
		return true
	}
	return r.Exec != nil && len(r.Exec.Errors) > 0
}

// Run synchronizes dest with source. With dryRun set, the plan is built and
// summarized but the executor never starts and the destination root is not
// created.
func (r *Runner) Run(ctx context.Context, source, dest string, dryRun bool) (*RunResult, error) {
	absSource, absDest, err := preflight.ResolveRoots(source, dest)
	if err != nil {
		return nil, err
	}
	if err := preflight.CheckSourceAccessible(absSource); err != nil {
		return nil, fmt.Errorf("%w: %v", pathscan.ErrRootUnavailable, err)
	}
	if !dryRun {
		if err := preflight.EnsureDestRoot(absDest); err != nil {
			return nil, fmt.Errorf("%w: %v", pathscan.ErrRootUnavailable, err)
		}
	}

	plog.Info("SYN", "source", absSource, "dest", absDest, "dryRun", dryRun)

	hasher := pathhash.New(r.cfg.BufferSize())
	scanner := pathscan.NewScanner(r.cfg.Threads, hasher, r.sink)

	// Both trees scan concurrently; the planner only starts once both
	// inventories are frozen.
	var srcScan, dstScan *pathscan.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := scanner.Scan(gctx, absSource)
		if err != nil {
			return fmt.Errorf("source scan failed: %w", err)
		}
		srcScan = res
		return nil
	})
	g.Go(func() error {
		res, err := r.scanDest(gctx, scanner, absDest)
		if err != nil {
			return fmt.Errorf("destination scan failed: %w", err)
		}
		dstScan = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts := pathplan.Options{
		Delete:        r.cfg.Delete,
		PreserveMode:  r.cfg.PreserveMode,
		PreserveMtime: r.cfg.PreserveMtime,
	}
	plan := pathplan.Build(srcScan.Inventory, dstScan.Inventory, opts)

	r.sink.Publish(progress.PlanSummary{
		Copies:      plan.Summary.Copies,
		Renames:     plan.Summary.Renames,
		Overwrites:  plan.Summary.Overwrites,
		Deletes:     plan.Summary.Deletes,
		BytesToCopy: plan.Summary.BytesToCopy,
		BytesSaved:  plan.Summary.BytesSaved,
	})

	result := &RunResult{
		Source:           absSource,
		Dest:             absDest,
		Plan:             plan,
		SourceScanErrors: srcScan.Errors,
		DestScanErrors:   dstScan.Errors,
	}

	if dryRun {
		r.logScanErrors(result)
		return result, nil
	}

	if err := preflight.CheckFreeSpace(absDest, plan.Summary.BytesToCopy); err != nil {
		return nil, err
	}

	exec := pathexec.New(absSource, absDest, pathexec.Options{
		Threads:    r.cfg.Threads,
		BufferSize: r.cfg.BufferSize(),
		Verify:     r.cfg.Verify,
	}, r.sink, r.met)

	result.Exec = exec.Execute(ctx, plan)

	r.met.Log()
	r.logScanErrors(result)
	r.logExecErrors(result.Exec)

	if result.Exec.Fatal != nil {
		return result, result.Exec.Fatal
	}
	return result, nil
}

// scanDest scans the destination root, treating an absent root as an empty
// tree. Dry runs must work against a destination that does not exist yet.
func (r *Runner) scanDest(ctx context.Context, scanner *pathscan.Scanner, absDest string) (*pathscan.Result, error) {
	res, err := scanner.Scan(ctx, absDest)
	if err == nil {
		return res, nil
	}
	if isMissingRoot(err, absDest) {
		return &pathscan.Result{Inventory: &pathscan.Inventory{Root: absDest}}, nil
	}
	return nil, err
}

// isMissingRoot distinguishes "root does not exist" from other root
// failures such as permission problems, which stay fatal.
func isMissingRoot(err error, root string) bool {
	if !errors.Is(err, pathscan.ErrRootUnavailable) {
		return false
	}
	_, statErr := os.Stat(root)
	return os.IsNotExist(statErr)
}

func (r *Runner) logScanErrors(result *RunResult) {
	logEntryErrors("source", result.SourceScanErrors)
	logEntryErrors("destination", result.DestScanErrors)
}

func logEntryErrors(tree string, errs []pathscan.EntryError) {
	if len(errs) == 0 {
		return
	}
	plog.Warn(fmt.Sprintf("%d entries in the %s tree could not be read", len(errs), tree))
	for i, ee := range errs {
		if i == errorSummaryLimit {
			plog.Warn(fmt.Sprintf("... and %d more", len(errs)-errorSummaryLimit))
			break
		}
		plog.Warn("unreadable entry", "path", ee.RelPath, "error", ee.Err)
	}
}

func (r *Runner) logExecErrors(exec *pathexec.Result) {
	if len(exec.Errors) == 0 {
		return
	}
	plog.Warn(fmt.Sprintf("%d actions failed", len(exec.Errors)))
	for i, ae := range exec.Errors {
		if i == errorSummaryLimit {
			plog.Warn(fmt.Sprintf("... and %d more", len(exec.Errors)-errorSummaryLimit))
			break
		}
		plog.Warn("failed action", "action", ae.Action.String(), "error", ae.Err)
	}
}
