// Package health parses per-agent HEALTH.md files and classifies each
// agent as healthy, degraded, down, or unknown, aggregating a worst-case
// system-wide status. Grounded on
// original_source/Controller/health_monitor.py.
package health

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/coordctl/coordctl/internal/statestore"
)

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Status is an agent's or the system's overall health classification.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
	StatusUnknown  Status = "unknown"
)

// Thresholds configures the failure-count and silence-duration cutoffs
// used by Classify.
type Thresholds struct {
	DegradedFailures     int
	DownFailures         int
	DegradedSilenceAfter time.Duration
	DownSilenceAfter     time.Duration
}

// DefaultThresholds mirrors the teacher's ControllerConfig defaults.
var DefaultThresholds = Thresholds{
	DegradedFailures:     3,
	DownFailures:         6,
	DegradedSilenceAfter: 10 * time.Minute,
	DownSilenceAfter:     30 * time.Minute,
}

// Snapshot is the parsed state of one agent's last HEALTH.md entry.
type Snapshot struct {
	AgentName            string     `json:"agent_name"`
	LastRunTimestamp      *time.Time `json:"last_run_timestamp"`
	LastStatus            string     `json:"last_status"`
	ConsecutiveFailures   int        `json:"consecutive_failures"`
}

// Summary aggregates health across every known agent.
type Summary struct {
	Timestamp     time.Time           `json:"timestamp"`
	Agents        map[string]Snapshot `json:"agents"`
	Healthy       []string            `json:"healthy"`
	Degraded      []string            `json:"degraded"`
	Down          []string            `json:"down"`
	Unknown       []string            `json:"unknown"`
	OverallStatus Status              `json:"overall_status"`
}

var tableRowPattern = regexp.MustCompile(`^\|\s*(.+?)\s*\|\s*(.+?)\s*\|`)

// ParseHealthFile extracts the key/value pairs of the last markdown table
// in text — each "### " header starts a new table, and the final complete
// table wins.
func ParseHealthFile(text string) map[string]string {
	var values map[string]string
	current := map[string]string{}
	inTable := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "###") {
			if len(current) > 0 {
				values = current
			}
			current = map[string]string{}
			inTable = false
			continue
		}

		if m := tableRowPattern.FindStringSubmatch(trimmed); m != nil {
			key, val := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
			if key == "Field" || strings.HasPrefix(key, "---") {
				continue
			}
			current[key] = val
			inTable = true
		} else if inTable && !strings.HasPrefix(trimmed, "|") {
			inTable = false
		}
	}

	if len(current) > 0 {
		values = current
	}
	return values
}

// ParseAgentHealth reads path (if present) and builds a Snapshot. A
// missing file or unparsable table yields a zero-value snapshot with
// LastStatus "unknown", never an error.
func ParseAgentHealth(agentName, path string) Snapshot {
	snapshot := Snapshot{AgentName: agentName, LastStatus: "unknown"}

	text, err := readFile(path)
	if err != nil {
		return snapshot
	}

	values := ParseHealthFile(text)
	if values == nil {
		return snapshot
	}

	if raw := values["last_run_timestamp"]; raw != "" {
		snapshot.LastRunTimestamp = parseTimestamp(raw)
	}
	if status := values["last_status"]; status != "" {
		snapshot.LastStatus = status
	}
	if raw := values["consecutive_failures"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			snapshot.ConsecutiveFailures = n
		}
	}

	return snapshot
}

func parseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	if t, err := time.Parse(time.RFC3339, strings.Replace(raw, "Z", "+00:00", 1)); err == nil {
		return &t
	}
	return nil
}

// Classify derives a Status from a Snapshot: failure counts take priority
// over silence duration, and a missing timestamp always means unknown.
func Classify(s Snapshot, now time.Time, th Thresholds) Status {
	if s.LastRunTimestamp == nil {
		return StatusUnknown
	}

	if s.ConsecutiveFailures >= th.DownFailures {
		return StatusDown
	}
	if s.ConsecutiveFailures >= th.DegradedFailures {
		return StatusDegraded
	}

	silence := now.Sub(*s.LastRunTimestamp)
	if silence >= th.DownSilenceAfter {
		return StatusDown
	}
	if silence >= th.DegradedSilenceAfter {
		return StatusDegraded
	}

	return StatusHealthy
}

// Monitor reads each registered agent's HEALTH.md and produces a
// system-wide Summary with a worst-case overall status.
type Monitor struct {
	AgentHealthPaths map[string]string // agent name -> HEALTH.md path
	Thresholds       Thresholds
}

// New returns a Monitor over the given agent-name→health-file-path map,
// using DefaultThresholds.
func New(agentHealthPaths map[string]string) *Monitor {
	return &Monitor{AgentHealthPaths: agentHealthPaths, Thresholds: DefaultThresholds}
}

// CheckAll classifies every registered agent and aggregates the
// worst-case overall status: down > degraded > healthy > unknown.
func (m *Monitor) CheckAll() Summary {
	now := time.Now().UTC()
	summary := Summary{Timestamp: now, Agents: map[string]Snapshot{}}

	for name, path := range m.AgentHealthPaths {
		snapshot := ParseAgentHealth(name, path)
		summary.Agents[name] = snapshot

		switch Classify(snapshot, now, m.Thresholds) {
		case StatusHealthy:
			summary.Healthy = append(summary.Healthy, name)
		case StatusDegraded:
			summary.Degraded = append(summary.Degraded, name)
		case StatusDown:
			summary.Down = append(summary.Down, name)
		default:
			summary.Unknown = append(summary.Unknown, name)
		}
	}

	switch {
	case len(summary.Down) > 0:
		summary.OverallStatus = StatusDown
	case len(summary.Degraded) > 0:
		summary.OverallStatus = StatusDegraded
	case len(summary.Healthy) > 0:
		summary.OverallStatus = StatusHealthy
	default:
		summary.OverallStatus = StatusUnknown
	}

	return summary
}

// WriteSystemHealthReport saves summary as indented JSON to path, atomically.
func (m *Monitor) WriteSystemHealthReport(path string, summary Summary) error {
	return statestore.Save(path, summary)
}
