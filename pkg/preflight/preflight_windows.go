//go:build windows

package preflight

import (
	"golang.org/x/sys/windows"
)

func platformFreeSpace(path string) (uint64, bool) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, false
	}
	var freeToCaller, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeToCaller, &total, &free); err != nil {
		return 0, false
	}
	return freeToCaller, true
}
