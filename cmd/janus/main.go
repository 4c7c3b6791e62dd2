package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"pixelgardenlabs.io/janus/pkg/buildinfo"
	"pixelgardenlabs.io/janus/pkg/config"
	"pixelgardenlabs.io/janus/pkg/engine"
	"pixelgardenlabs.io/janus/pkg/metrics"
	"pixelgardenlabs.io/janus/pkg/plog"
	"pixelgardenlabs.io/janus/pkg/progress"
)

// Exit codes form the CLI contract:
// 0 success, 1 at least one non-fatal failure, 2 fatal error, 3 bad usage.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
	exitUsage   = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet(buildinfo.Name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage of %s (version %s):\n", buildinfo.Name, buildinfo.Version)
		fmt.Fprintf(fs.Output(), "A one-way tree synchronizer with content-addressed rename detection.\n\n")
		fmt.Fprintf(fs.Output(), "  janus [flags] SOURCE DEST\n\n")
		fs.PrintDefaults()
	}

	// Long and short spellings share one variable.
	var (
		dryRun, del, yes, quiet, verify bool
		preserveMode, preserveMtime     bool
		showVersion                     bool
		threads                         int
		configPath, logLevel            string
	)
	fs.BoolVar(&dryRun, "dry-run", false, "Build and print the plan without changing the destination.")
	fs.BoolVar(&dryRun, "n", false, "Shorthand for -dry-run.")
	fs.BoolVar(&del, "delete", false, "Delete destination entries that are absent from the source.")
	fs.BoolVar(&del, "d", false, "Shorthand for -delete.")
	fs.BoolVar(&yes, "y", false, "Skip the confirmation prompt for destructive runs.")
	fs.BoolVar(&quiet, "quiet", false, "Discard progress output.")
	fs.BoolVar(&quiet, "q", false, "Shorthand for -quiet.")
	fs.IntVar(&threads, "threads", 0, "Worker pool size for scanning, hashing and copying (0 = logical CPUs).")
	fs.IntVar(&threads, "j", 0, "Shorthand for -threads.")
	fs.BoolVar(&verify, "verify", false, "Re-hash every written file before its atomic rename.")
	fs.BoolVar(&preserveMode, "preserve-mode", false, "Replicate permission changes onto files whose content is unchanged.")
	fs.BoolVar(&preserveMtime, "preserve-mtime", false, "Replicate timestamp changes onto files whose content is unchanged.")
	fs.StringVar(&configPath, "config", "", "Path to a "+config.ConfigFileName+" file.")
	fs.StringVar(&logLevel, "log-level", "", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	fs.BoolVar(&showVersion, "version", false, "Print the application version and exit.")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if showVersion {
		fmt.Printf("%s %s\n", buildinfo.Name, buildinfo.Version)
		return exitOK
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "expected exactly two arguments: SOURCE and DEST")
		fs.Usage()
		return exitUsage
	}
	source, dest := fs.Arg(0), fs.Arg(1)

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitUsage
		}
		cfg = loaded
	}

	// Flags override the config file.
	seen := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	if seen["delete"] || seen["d"] {
		cfg.Delete = del
	}
	if seen["threads"] || seen["j"] {
		cfg.Threads = threads
	}
	if seen["verify"] {
		cfg.Verify = verify
	}
	if seen["preserve-mode"] {
		cfg.PreserveMode = preserveMode
	}
	if seen["preserve-mtime"] {
		cfg.PreserveMtime = preserveMtime
	}
	if seen["quiet"] || seen["q"] {
		cfg.Quiet = quiet
	}
	if seen["log-level"] {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	level, err := plog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	plog.SetLevel(level)
	plog.SetQuiet(cfg.Quiet)

	var sink progress.Sink = progress.Log{}
	if cfg.Quiet {
		sink = progress.Discard{}
	}

	if cfg.Delete && !yes && !dryRun {
		if !confirmDeletion(dest) {
			plog.Info("aborted by user")
			return exitOK
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := engine.NewRunner(cfg, sink, &metrics.SyncMetrics{})
	result, err := runner.Run(ctx, source, dest, dryRun)
	if err != nil {
		plog.Error("sync failed", "error", err)
		return exitFatal
	}
	if errors.Is(ctx.Err(), context.Canceled) || (result.Exec != nil && result.Exec.Cancelled) {
		plog.Warn("sync cancelled")
		return exitFatal
	}

	if dryRun {
		plog.Info("DRY RUN", "plan", result.Plan.Summary.String())
		for _, a := range result.Plan.Actions {
			plog.Notice("[DRY RUN] "+a.Op.String(), "action", a.String())
		}
	}

	if result.Failed() {
		return exitPartial
	}
	return exitOK
}

// confirmDeletion asks for explicit consent before a destructive run.
func confirmDeletion(dest string) bool {
	fmt.Fprintf(os.Stderr, "This run may delete files under %s. Continue? [y/N] ", dest)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
