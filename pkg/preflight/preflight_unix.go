//go:build !windows

package preflight

import (
	"golang.org/x/sys/unix"
)

// platformFreeSpace returns the bytes available to an unprivileged caller
// on the filesystem holding path.
func platformFreeSpace(path string) (uint64, bool) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, false
	}
	return stat.Bavail * uint64(stat.Bsize), true
}
