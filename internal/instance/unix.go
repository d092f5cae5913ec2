//go:build !windows
// +build !windows

package instance

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// IsProcessRunning checks if a process with the given PID exists, via the
// null-signal trick: kill(pid, 0) succeeds iff the process exists and is
// signalable by this user.
func IsProcessRunning(pid int) (bool, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if err == syscall.ESRCH {
		return false, nil
	}
	if err == syscall.EPERM {
		// Process exists but belongs to another user.
		return true, nil
	}
	return false, nil
}

// GetProcessName retrieves the executable basename for a given PID, reading
// /proc/<pid>/comm and falling back to `ps` where /proc isn't mounted.
func GetProcessName(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	return getProcessNameViaPS(pid)
}

// GetProcessStartTime approximates the start time of a process by the
// modification time of its /proc/<pid> directory.
func GetProcessStartTime(pid int) (time.Time, error) {
	info, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat /proc/%d: %w", pid, err)
	}
	return info.ModTime(), nil
}

func getProcessNameViaPS(pid int) (string, error) {
	cmd := exec.Command("ps", "-o", "comm=", "-p", strconv.Itoa(pid))
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("ps command failed: %w", err)
	}
	name := strings.TrimSpace(string(output))
	if name == "" {
		return "", fmt.Errorf("process not found")
	}
	return name, nil
}

// KillProcess forcefully terminates a process with SIGKILL.
func KillProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}
