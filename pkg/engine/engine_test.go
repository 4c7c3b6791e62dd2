package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pixelgardenlabs.io/janus/pkg/config"
	"pixelgardenlabs.io/janus/pkg/engine"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Threads = 2
	cfg.Quiet = true
	return cfg
}

func TestRunSyncsAndIsIdempotent(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "src")
	dest := filepath.Join(base, "dst")
	writeFile(t, filepath.Join(source, "a.txt"), "hello")
	writeFile(t, filepath.Join(source, "nested", "b.txt"), "world")

	runner := engine.NewRunner(testConfig(), nil, nil)

	first, err := runner.Run(context.Background(), source, dest, false)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Failed() {
		t.Fatalf("first run reported failures: %+v", first)
	}
	if got, _ := os.ReadFile(filepath.Join(dest, "a.txt")); string(got) != "hello" {
		t.Errorf("a.txt = %q", got)
	}
	if got, _ := os.ReadFile(filepath.Join(dest, "nested", "b.txt")); string(got) != "world" {
		t.Errorf("nested/b.txt = %q", got)
	}

	// A second run over a converged pair must plan zero transfers.
	second, err := runner.Run(context.Background(), source, dest, false)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	for _, a := range second.Plan.Actions {
		if a.TransfersContent() {
			t.Errorf("idempotence violated: second run still plans %s", a)
		}
	}
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "src")
	dest := filepath.Join(base, "dst")
	writeFile(t, filepath.Join(source, "f"), "data")

	runner := engine.NewRunner(testConfig(), nil, nil)
	result, err := runner.Run(context.Background(), source, dest, true)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	if result.Exec != nil {
		t.Error("dry run must not execute")
	}
	if result.Plan.Summary.Copies != 1 {
		t.Errorf("expected one planned copy, got %+v", result.Plan.Summary)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("dry run must not create the destination root")
	}
}

func TestRunRenameAcrossRuns(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "src")
	dest := filepath.Join(base, "dst")
	writeFile(t, filepath.Join(source, "first-name.bin"), "stable content")

	cfg := testConfig()
	cfg.Delete = true
	runner := engine.NewRunner(cfg, nil, nil)

	if _, err := runner.Run(context.Background(), source, dest, false); err != nil {
		t.Fatalf("initial run failed: %v", err)
	}

	// Rename in the source; the next run must move, not re-copy.
	if err := os.Rename(filepath.Join(source, "first-name.bin"), filepath.Join(source, "second-name.bin")); err != nil {
		t.Fatal(err)
	}

	result, err := runner.Run(context.Background(), source, dest, false)
	if err != nil {
		t.Fatalf("rename run failed: %v", err)
	}
	if result.Plan.Summary.Renames != 1 || result.Plan.Summary.BytesToCopy != 0 {
		t.Errorf("expected a pure rename, got %s", result.Plan.Summary.String())
	}
	if _, err := os.Stat(filepath.Join(dest, "second-name.bin")); err != nil {
		t.Error("renamed file missing in destination")
	}
	if _, err := os.Stat(filepath.Join(dest, "first-name.bin")); !os.IsNotExist(err) {
		t.Error("old name still present in destination")
	}
}

func TestRunRejectsNestedRoots(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "src")
	writeFile(t, filepath.Join(source, "f"), "x")

	runner := engine.NewRunner(testConfig(), nil, nil)
	if _, err := runner.Run(context.Background(), source, filepath.Join(source, "sub"), false); err == nil {
		t.Error("nested destination must be rejected")
	}
}

func TestRunMissingSource(t *testing.T) {
	base := t.TempDir()
	runner := engine.NewRunner(testConfig(), nil, nil)
	_, err := runner.Run(context.Background(), filepath.Join(base, "absent"), filepath.Join(base, "dst"), false)
	if err == nil {
		t.Error("missing source must fail the run")
	}
}
