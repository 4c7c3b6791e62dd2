// Package preflight provides validation that runs before a sync begins.
// The checks are stateless and idempotent, with one exception: the
// destination root is created when absent.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"pixelgardenlabs.io/janus/pkg/util"
)

// ResolveRoots canonicalizes both roots to absolute paths and rejects
// nested or identical root pairs.
func ResolveRoots(source, dest string) (absSource, absDest string, err error) {
	source, err = util.ExpandPath(source)
	if err != nil {
		return "", "", err
	}
	dest, err = util.ExpandPath(dest)
	if err != nil {
		return "", "", err
	}

	absSource, err = filepath.Abs(source)
	if err != nil {
		return "", "", fmt.Errorf("could not resolve source path %s: %w", source, err)
	}
	absDest, err = filepath.Abs(dest)
	if err != nil {
		return "", "", fmt.Errorf("could not resolve destination path %s: %w", dest, err)
	}

	if absSource == absDest {
		return "", "", fmt.Errorf("source and destination are the same path: %s", absSource)
	}
	if util.IsNestedPath(absSource, absDest) {
		return "", "", fmt.Errorf("destination %s is inside source %s", absDest, absSource)
	}
	if util.IsNestedPath(absDest, absSource) {
		return "", "", fmt.Errorf("source %s is inside destination %s", absSource, absDest)
	}
	return absSource, absDest, nil
}

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// EnsureDestRoot creates the destination root when absent and verifies it
// is a directory. A root whose parent directory is also missing is rejected
// rather than created. Writability is not checked here. It provides
// friendlier errors than letting the executor's first MkdirAll fail.
func EnsureDestRoot(destPath string) error {
	info, err := os.Stat(destPath)
	if os.IsNotExist(err) {
		parent := filepath.Dir(destPath)
		if _, perr := os.Stat(parent); perr != nil {
			if os.IsNotExist(perr) {
				return fmt.Errorf("destination path and its parent directory do not exist: %s", parent)
			}
			return fmt.Errorf("cannot access parent directory %s: %w", parent, perr)
		}
		if err := os.MkdirAll(destPath, util.UserWritableDirPerms); err != nil {
			return fmt.Errorf("failed to create destination root %s: %w", destPath, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access destination path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination path exists but is not a directory: %s", destPath)
	}
	return nil
}

// CheckFreeSpace verifies the destination filesystem has room for the bytes
// the plan intends to transfer. Platform-specific; a platform that cannot
// report free space passes the check.
func CheckFreeSpace(destPath string, neededBytes uint64) error {
	free, ok := platformFreeSpace(destPath)
	if !ok {
		return nil
	}
	if free < neededBytes {
		return fmt.Errorf("destination %s has %d bytes free but the plan needs %d", destPath, free, neededBytes)
	}
	return nil
}
