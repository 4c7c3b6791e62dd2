package preflight_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pixelgardenlabs.io/janus/pkg/preflight"
)

func TestResolveRootsRejectsIdenticalPaths(t *testing.T) {
	dir := t.TempDir()
	_, _, err := preflight.ResolveRoots(dir, dir)
	require.Error(t, err)
}

func TestResolveRootsRejectsNesting(t *testing.T) {
	parent := t.TempDir()
	child := filepath.Join(parent, "inner")
	require.NoError(t, os.MkdirAll(child, 0755))

	_, _, err := preflight.ResolveRoots(parent, child)
	require.Error(t, err)

	_, _, err = preflight.ResolveRoots(child, parent)
	require.Error(t, err)
}

func TestResolveRootsAcceptsSiblings(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	require.NoError(t, os.MkdirAll(src, 0755))

	absSrc, absDst, err := preflight.ResolveRoots(src, dst)
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(absSrc))
	require.True(t, filepath.IsAbs(absDst))
}

func TestCheckSourceAccessible(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, preflight.CheckSourceAccessible(dir))

	require.Error(t, preflight.CheckSourceAccessible(filepath.Join(dir, "missing")))

	f := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0644))
	require.Error(t, preflight.CheckSourceAccessible(f))
}

func TestEnsureDestRootCreatesMissingDir(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "new-dest")

	require.NoError(t, preflight.EnsureDestRoot(dest))
	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	// Idempotent on an existing directory.
	require.NoError(t, preflight.EnsureDestRoot(dest))
}

func TestEnsureDestRootRejectsFile(t *testing.T) {
	base := t.TempDir()
	f := filepath.Join(base, "occupied")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0644))

	require.Error(t, preflight.EnsureDestRoot(f))
}

func TestEnsureDestRootRejectsMissingParent(t *testing.T) {
	base := t.TempDir()
	require.Error(t, preflight.EnsureDestRoot(filepath.Join(base, "a", "b")))
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	// Zero bytes always fit.
	require.NoError(t, preflight.CheckFreeSpace(dir, 0))
}
