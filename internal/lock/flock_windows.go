//go:build windows

package lock

import (
	"os"

	"golang.org/x/sys/windows"
)

// sharedFlock takes a short-lived shared advisory lock on f via
// LockFileEx, matching the teacher's internal/instance/lock_windows.go use
// of golang.org/x/sys/windows.
func sharedFlock(f *os.File) error {
	var overlapped windows.Overlapped
	return windows.LockFileEx(windows.Handle(f.Fd()), 0, 0, 1, 0, &overlapped)
}

func unlockFlock(f *os.File) error {
	var overlapped windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, &overlapped)
}
