package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// InstanceManager enforces a single running copy of a coordctl process
// (controller or agent daemon) per PID/lock file pair, so a cron-style
// supervisor restarting a dead daemon can't end up with two live copies
// racing the same inbox/lock directory.
type InstanceManager struct {
	pidFilePath  string
	statePath    string
	port         int
	processName  string
	lockHandle   uintptr  // Windows handle value, interpreted only by lock_windows.go
	lockFile     *os.File // flock target, used only by lock_unix.go
	acquiredLock bool
}

// InstanceInfo describes an already-running instance found via the PID file.
type InstanceInfo struct {
	PID          int
	Port         int
	StartTime    time.Time
	IsRunning    bool
	IsResponding bool
	Version      string
	BasePath     string
}

// PIDFileData is the on-disk JSON representation of the PID file.
type PIDFileData struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	BasePath  string    `json:"base_path"`
	Hostname  string    `json:"hostname"`
}

// NewManager creates an instance manager. processName is the executable
// basename (e.g. "coordctl-controller") used to detect PID reuse.
func NewManager(pidFilePath, statePath, processName string, port int) *InstanceManager {
	return &InstanceManager{
		pidFilePath:  pidFilePath,
		statePath:    statePath,
		port:         port,
		processName:  processName,
		acquiredLock: false,
	}
}

// CheckExistingInstance reports whether a prior instance is still alive.
func (m *InstanceManager) CheckExistingInstance() (*InstanceInfo, error) {
	pidData, err := m.ReadPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read PID file: %w", err)
	}

	running, err := IsProcessRunning(pidData.PID)
	if err != nil {
		return nil, fmt.Errorf("failed to check process: %w", err)
	}

	if !running {
		fmt.Printf("detected stale PID file (process %d not running)\n", pidData.PID)
		m.RemovePIDFile()
		return nil, nil
	}

	name, err := GetProcessName(pidData.PID)
	if err != nil {
		fmt.Printf("warning: failed to get process name for PID %d: %v\n", pidData.PID, err)
	} else if m.processName != "" && name != m.processName {
		fmt.Printf("detected PID reuse (process %d is %s, not %s)\n", pidData.PID, name, m.processName)
		m.RemovePIDFile()
		return nil, nil
	}

	responding := HealthCheck(pidData.Port) == nil

	return &InstanceInfo{
		PID:          pidData.PID,
		Port:         pidData.Port,
		StartTime:    pidData.StartedAt,
		IsRunning:    true,
		IsResponding: responding,
		Version:      pidData.Version,
		BasePath:     pidData.BasePath,
	}, nil
}

// WritePIDFile records this process's identity for later conflict checks.
func (m *InstanceManager) WritePIDFile(pid, port int, basePath string) error {
	hostname, _ := os.Hostname()

	data := PIDFileData{
		PID:       pid,
		Port:      port,
		StartedAt: time.Now(),
		Version:   "1.0.0",
		BasePath:  basePath,
		Hostname:  hostname,
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal PID data: %w", err)
	}

	if err := os.WriteFile(m.pidFilePath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// ReadPIDFile reads and parses the PID file.
func (m *InstanceManager) ReadPIDFile() (*PIDFileData, error) {
	jsonData, err := os.ReadFile(m.pidFilePath)
	if err != nil {
		return nil, err
	}

	var data PIDFileData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse PID file: %w", err)
	}

	return &data, nil
}

// RemovePIDFile deletes the PID file.
func (m *InstanceManager) RemovePIDFile() error {
	if err := os.Remove(m.pidFilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// GetPort returns the port the instance manager is configured for.
func (m *InstanceManager) GetPort() int {
	return m.port
}

// SetPort updates the port (used when the resolver chooses a different one).
func (m *InstanceManager) SetPort(port int) {
	m.port = port
}
