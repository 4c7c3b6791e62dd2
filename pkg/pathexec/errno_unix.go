//go:build !windows

package pathexec

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isDiskFull reports whether err means the destination filesystem ran out
// of space (or the user ran out of quota).
func isDiskFull(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}

// isCrossDevice reports whether a rename failed because source and target
// live on different filesystems.
func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}

// canWrite reports whether the current user may write to path.
func canWrite(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}
