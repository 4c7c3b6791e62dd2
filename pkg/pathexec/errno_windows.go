//go:build windows

package pathexec

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

func isDiskFull(err error) bool {
	return errors.Is(err, windows.ERROR_DISK_FULL) || errors.Is(err, windows.ERROR_HANDLE_DISK_FULL)
}

func isCrossDevice(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_SAME_DEVICE)
}

func canWrite(path string) bool {
	// Windows access checks are ACL-driven; probe with a plain stat and let
	// the next write report the real story.
	_, err := os.Stat(path)
	return err == nil
}
