package pathexec

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pixelgardenlabs.io/janus/pkg/pathhash"
	"pixelgardenlabs.io/janus/pkg/pathplan"
	"pixelgardenlabs.io/janus/pkg/pathscan"
)

// helper to create a file with specific content.
func createFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for test file: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(raw)
}

func pathExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Lstat(path)
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	t.Fatalf("unexpected error checking path %s: %v", path, err)
	return false
}

// noTempsRemain fails the test if any staging file survived execution.
func noTempsRemain(t *testing.T, root string) {
	t.Helper()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.Contains(d.Name(), ".janus-tmp-") {
			t.Errorf("temporary file left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
}

// scanTree builds a frozen inventory for planning in tests.
func scanTree(t *testing.T, root string) *pathscan.Inventory {
	t.Helper()
	scanner := pathscan.NewScanner(2, pathhash.New(0), nil)
	res, err := scanner.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("scan of %s failed: %v", root, err)
	}
	if len(res.Errors) > 0 {
		t.Fatalf("scan of %s hit entry errors: %v", root, res.Errors)
	}
	return res.Inventory
}

// applySync plans and executes source -> dest, returning the result.
func applySync(t *testing.T, source, dest string, opts pathplan.Options, execOpts Options) *Result {
	t.Helper()
	plan := pathplan.Build(scanTree(t, source), scanTree(t, dest), opts)
	exec := New(source, dest, execOpts, nil, nil)
	res := exec.Execute(context.Background(), plan)
	if res.Fatal != nil {
		t.Fatalf("unexpected fatal error: %v", res.Fatal)
	}
	for _, ae := range res.Errors {
		t.Errorf("action failed: %v", ae)
	}
	return res
}

func TestExecuteIntoEmptyDest(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	createFile(t, filepath.Join(source, "a.txt"), "hello")
	createFile(t, filepath.Join(source, "b", "c.txt"), "world")

	res := applySync(t, source, dest, pathplan.Options{}, Options{Threads: 2})

	if got := readFile(t, filepath.Join(dest, "a.txt")); got != "hello" {
		t.Errorf("a.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "b", "c.txt")); got != "world" {
		t.Errorf("b/c.txt = %q", got)
	}
	if res.BytesCopied != 10 {
		t.Errorf("expected 10 bytes copied, got %d", res.BytesCopied)
	}
	noTempsRemain(t, dest)
}

func TestExecuteRenameMovesWithoutCopying(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	payload := strings.Repeat("payload!", 8192)
	createFile(t, filepath.Join(source, "renamed.bin"), payload)
	createFile(t, filepath.Join(dest, "orig.bin"), payload)

	res := applySync(t, source, dest, pathplan.Options{Delete: true}, Options{Threads: 2})

	if res.BytesCopied != 0 {
		t.Errorf("rename should not copy, got %d bytes", res.BytesCopied)
	}
	if pathExists(t, filepath.Join(dest, "orig.bin")) {
		t.Error("orig.bin still present")
	}
	if got := readFile(t, filepath.Join(dest, "renamed.bin")); got != payload {
		t.Error("renamed.bin content mismatch")
	}
	noTempsRemain(t, dest)
}

func TestExecuteSwapCycle(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	createFile(t, filepath.Join(source, "a"), "content-X")
	createFile(t, filepath.Join(source, "b"), "content-Y")
	createFile(t, filepath.Join(dest, "a"), "content-Y")
	createFile(t, filepath.Join(dest, "b"), "content-X")

	res := applySync(t, source, dest, pathplan.Options{}, Options{Threads: 2})

	if res.BytesCopied != 0 {
		t.Errorf("swap should not transfer, got %d bytes", res.BytesCopied)
	}
	if got := readFile(t, filepath.Join(dest, "a")); got != "content-X" {
		t.Errorf("a = %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "b")); got != "content-Y" {
		t.Errorf("b = %q", got)
	}
	noTempsRemain(t, dest)
}

func TestExecuteOverwrite(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	createFile(t, filepath.Join(source, "f"), "v2")
	createFile(t, filepath.Join(dest, "f"), "v1")

	applySync(t, source, dest, pathplan.Options{}, Options{Threads: 1, Verify: true})

	if got := readFile(t, filepath.Join(dest, "f")); got != "v2" {
		t.Errorf("f = %q", got)
	}
	noTempsRemain(t, dest)
}

func TestExecuteDedup(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	createFile(t, filepath.Join(source, "x"), "shared")
	createFile(t, filepath.Join(source, "y"), "shared")
	createFile(t, filepath.Join(dest, "z"), "shared")

	res := applySync(t, source, dest, pathplan.Options{Delete: true}, Options{Threads: 2})

	if res.BytesCopied != 0 {
		t.Errorf("dedup should not transfer, got %d bytes", res.BytesCopied)
	}
	if got := readFile(t, filepath.Join(dest, "x")); got != "shared" {
		t.Errorf("x = %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "y")); got != "shared" {
		t.Errorf("y = %q", got)
	}
	if pathExists(t, filepath.Join(dest, "z")) {
		t.Error("z should have been consumed by the rename")
	}
	noTempsRemain(t, dest)
}

func TestExecuteDeleteGating(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	createFile(t, filepath.Join(source, "keep"), "k")
	createFile(t, filepath.Join(dest, "keep"), "k")
	createFile(t, filepath.Join(dest, "stale", "old"), "o")

	applySync(t, source, dest, pathplan.Options{Delete: false}, Options{Threads: 1})
	if !pathExists(t, filepath.Join(dest, "stale", "old")) {
		t.Fatal("delete off must leave extras alone")
	}

	applySync(t, source, dest, pathplan.Options{Delete: true}, Options{Threads: 1})
	if pathExists(t, filepath.Join(dest, "stale")) {
		t.Error("stale directory should be deleted")
	}
}

func TestExecuteSymlink(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	createFile(t, filepath.Join(source, "data"), "d")
	if err := os.Symlink("data", filepath.Join(source, "link")); err != nil {
		t.Skipf("symlinks not supported here: %v", err)
	}

	applySync(t, source, dest, pathplan.Options{}, Options{Threads: 1})

	target, err := os.Readlink(filepath.Join(dest, "link"))
	if err != nil {
		t.Fatalf("dest link unreadable: %v", err)
	}
	if target != "data" {
		t.Errorf("link target = %q", target)
	}
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	createFile(t, filepath.Join(source, "f"), "data")

	plan := pathplan.Build(scanTree(t, source), scanTree(t, dest), pathplan.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(source, dest, Options{Threads: 1}, nil, nil).Execute(ctx, plan)

	if !res.Cancelled {
		t.Error("expected cancelled result")
	}
	if pathExists(t, filepath.Join(dest, "f")) {
		t.Error("cancelled run must not write")
	}
	noTempsRemain(t, dest)
}

func TestExecutePreservesMtimeOnCopy(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	createFile(t, filepath.Join(source, "f"), "data")
	stamp := time.Date(2020, 4, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(source, "f"), stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	applySync(t, source, dest, pathplan.Options{}, Options{Threads: 1})

	info, err := os.Stat(filepath.Join(dest, "f"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().Equal(stamp) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), stamp)
	}
}
