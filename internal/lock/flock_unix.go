//go:build !windows

package lock

import (
	"os"
	"syscall"
)

// sharedFlock takes a short-lived shared advisory lock on f, matching the
// intent of the teacher's Windows-only internal/instance/lock_windows.go
// generalized to syscall.Flock since no Unix variant exists in the
// teacher's tree — see DESIGN.md.
func sharedFlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_SH)
}

func unlockFlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
