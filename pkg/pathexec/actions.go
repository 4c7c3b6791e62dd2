package pathexec

import (
	"context"
	"fmt"
	"io"
	"os"

	"pixelgardenlabs.io/janus/pkg/pathplan"
	"pixelgardenlabs.io/janus/pkg/pathscan"
	"pixelgardenlabs.io/janus/pkg/plog"
	"pixelgardenlabs.io/janus/pkg/progress"
	"pixelgardenlabs.io/janus/pkg/util"
)

// createDir materializes one planned directory. A conflicting non-directory
// at the target path is removed first; os.Rename cannot replace it for us.
func (x *Executor) createDir(a pathplan.Action) error {
	abs := util.DenormalizedAbsPath(x.dst, a.Rel)
	perms := util.WithUserWritePermission(a.Mode)

	info, err := os.Lstat(abs)
	switch {
	case err == nil && info.IsDir():
		x.readyDirs.Store(a.Rel)
		return nil
	case err == nil:
		plog.Warn("destination path exists but is not a directory, removing", "path", a.Rel, "type", info.Mode().String())
		if err := os.RemoveAll(abs); err != nil {
			return fmt.Errorf("failed to remove conflicting destination entry %s: %w", a.Rel, err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to lstat destination directory %s: %w", a.Rel, err)
	}

	if err := os.MkdirAll(abs, perms); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", a.Rel, err)
	}
	x.readyDirs.Store(a.Rel)
	x.met.AddDirsCreated(1)
	return nil
}

// localRename moves an existing destination file to a new path with the
// platform atomic-rename primitive. A cross-device rename degrades to a
// copy followed by removal of the original.
func (x *Executor) localRename(ctx context.Context, ia indexed) error {
	a := ia.a
	absFrom := util.DenormalizedAbsPath(x.dst, a.From)
	absTo := util.DenormalizedAbsPath(x.dst, a.Rel)

	if err := x.ensureParent(a.Rel); err != nil {
		return err
	}

	err := os.Rename(absFrom, absTo)
	if err == nil {
		x.met.AddFilesRenamed(1)
		x.met.AddBytesSaved(int64(a.Size))
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("failed to rename %s to %s: %w", a.From, a.Rel, err)
	}

	plog.Debug("cross-device rename, falling back to copy", "from", a.From, "to", a.Rel)
	if err := x.stageFile(ctx, absFrom, absTo, ia, false); err != nil {
		return err
	}
	if err := os.Remove(absFrom); err != nil {
		return fmt.Errorf("failed to remove %s after cross-device copy: %w", a.From, err)
	}
	x.met.AddFilesRenamed(1)
	x.met.AddBytesSaved(int64(a.Size))
	return nil
}

// localCopy duplicates an existing destination file to a new path.
func (x *Executor) localCopy(ctx context.Context, ia indexed) error {
	a := ia.a
	absFrom := util.DenormalizedAbsPath(x.dst, a.From)
	absTo := util.DenormalizedAbsPath(x.dst, a.Rel)

	if err := x.ensureParent(a.Rel); err != nil {
		return err
	}
	if err := x.stageFile(ctx, absFrom, absTo, ia, false); err != nil {
		return err
	}
	x.met.AddFilesDuplicated(1)
	x.met.AddBytesSaved(int64(a.Size))
	return nil
}

// copyFromSource streams one source file into the destination.
func (x *Executor) copyFromSource(ctx context.Context, ia indexed) error {
	a := ia.a
	absSrc := util.DenormalizedAbsPath(x.src, a.From)
	absDst := util.DenormalizedAbsPath(x.dst, a.Rel)

	if err := x.ensureParent(a.Rel); err != nil {
		return err
	}

	// The target may be occupied by a directory when the source replaced a
	// directory with a file; rename cannot overwrite it.
	if info, err := os.Lstat(absDst); err == nil && info.IsDir() {
		plog.Warn("destination is a directory, removing before copy", "path", a.Rel)
		if err := os.RemoveAll(absDst); err != nil {
			return fmt.Errorf("failed to remove directory at destination %s: %w", a.Rel, err)
		}
	}

	if err := x.stageFile(ctx, absSrc, absDst, ia, x.opts.Verify); err != nil {
		return err
	}
	x.met.AddFilesCopied(1)
	x.copied.Add(a.Size)
	return nil
}

// stageFile copies srcAbs into a temporary sibling of dstAbs and atomically
// renames it into place. The temporary is created with permissions that
// exclude other users until finalization, and is removed on any failure so
// the prior destination content (if any) survives untouched.
func (x *Executor) stageFile(ctx context.Context, srcAbs, dstAbs string, ia indexed, verify bool) error {
	a := ia.a

	in, err := os.Open(srcAbs)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcAbs, err)
	}
	defer in.Close()

	tmpPath, err := tempSibling(dstAbs)
	if err != nil {
		return err
	}
	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, util.PrivateFilePerms)
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", a.Rel, err)
	}
	x.temps.Store(tmpPath)

	staged := false
	defer func() {
		out.Close()
		if !staged {
			os.Remove(tmpPath)
			x.temps.Delete(tmpPath)
		}
	}()

	bufPtr := x.buffers.Get()
	defer x.buffers.Put(bufPtr)
	buf := *bufPtr
	buf = buf[:cap(buf)]

	for {
		// Cancellation is observed at chunk boundaries.
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("failed to write %s: %w", tmpPath, werr)
			}
			x.met.AddBytesWritten(int64(n))
			x.sink.Publish(progress.ActionBytes{ID: ia.id, Delta: uint64(n)})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("failed to read %s: %w", srcAbs, rerr)
		}
	}

	// Flush to disk before the rename makes the file visible.
	if err := out.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}

	if verify {
		digest, _, err := x.hasher.HashFile(ctx, tmpPath)
		if err != nil {
			return fmt.Errorf("failed to verify %s: %w", a.Rel, err)
		}
		if digest != a.Hash {
			return fmt.Errorf("%w: %s: want %s, got %s", ErrHashMismatch, a.Rel, a.Hash.Short(), digest.Short())
		}
	}

	// Final permissions are set on the temporary, then the mtime, then the
	// atomic rename. Chtimes must come after the last write/close-altering
	// operation on the content.
	perm := a.Mode.Perm()
	if perm == 0 {
		perm = util.PrivateFilePerms
	}
	if err := out.Chmod(util.WithUserWritePermission(perm)); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if !a.Mtime.IsZero() {
		if err := os.Chtimes(tmpPath, a.Mtime, a.Mtime); err != nil {
			plog.Warn("failed to set timestamps", "path", a.Rel, "error", err)
		}
	}
	if err := os.Rename(tmpPath, dstAbs); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", a.Rel, err)
	}
	staged = true
	x.temps.Delete(tmpPath)
	return nil
}

// updateMode applies a metadata-only permission fix. Best-effort: failures
// are logged, never fatal.
func (x *Executor) updateMode(a pathplan.Action) {
	abs := util.DenormalizedAbsPath(x.dst, a.Rel)
	if err := os.Chmod(abs, util.WithUserWritePermission(a.Mode.Perm())); err != nil {
		plog.Warn("failed to update mode", "path", a.Rel, "error", err)
		return
	}
	x.met.AddMetaUpdates(1)
}

// updateMtime applies a metadata-only timestamp fix. Best-effort.
func (x *Executor) updateMtime(a pathplan.Action) {
	abs := util.DenormalizedAbsPath(x.dst, a.Rel)
	if err := os.Chtimes(abs, a.Mtime, a.Mtime); err != nil {
		plog.Warn("failed to update mtime", "path", a.Rel, "error", err)
		return
	}
	x.met.AddMetaUpdates(1)
}

// createSymlink replaces whatever is at the target path with a symlink,
// atomically where the platform allows: the link is created under a
// temporary name and renamed into place.
func (x *Executor) createSymlink(a pathplan.Action) error {
	abs := util.DenormalizedAbsPath(x.dst, a.Rel)

	if err := x.ensureParent(a.Rel); err != nil {
		return err
	}

	// Directories cannot be replaced by rename.
	if info, err := os.Lstat(abs); err == nil && info.IsDir() {
		plog.Warn("destination is a directory, removing before symlink creation", "path", a.Rel)
		if err := os.RemoveAll(abs); err != nil {
			return fmt.Errorf("failed to remove destination directory %s: %w", a.Rel, err)
		}
	}

	tmpPath, err := tempSibling(abs)
	if err != nil {
		return err
	}
	x.temps.Store(tmpPath)
	staged := false
	defer func() {
		if !staged {
			os.Remove(tmpPath)
			x.temps.Delete(tmpPath)
		}
	}()

	if err := os.Symlink(a.Target, tmpPath); err != nil {
		return fmt.Errorf("failed to create symlink %s -> %s: %w", a.Rel, a.Target, err)
	}
	if err := os.Rename(tmpPath, abs); err != nil {
		return fmt.Errorf("failed to finalize symlink %s: %w", a.Rel, err)
	}
	staged = true
	x.temps.Delete(tmpPath)
	x.met.AddSymlinksCreated(1)
	return nil
}

// delete removes one destination entry. Directory deletions use os.Remove
// so a directory that unexpectedly still has children is reported rather
// than force-emptied.
func (x *Executor) delete(a pathplan.Action) error {
	abs := util.DenormalizedAbsPath(x.dst, a.Rel)

	if a.Kind == pathscan.KindDir {
		if err := os.Remove(abs); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to delete directory %s: %w", a.Rel, err)
		}
		x.met.AddDirsDeleted(1)
		return nil
	}

	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			// Already gone counts as deleted.
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", a.Rel, err)
	}
	x.met.AddFilesDeleted(1)
	return nil
}
