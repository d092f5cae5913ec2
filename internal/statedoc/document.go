// Package statedoc implements the authoritative state document's text
// format: parsing STATE.md into a structured Document, rendering it back,
// applying typed changes, computing its own checksum, verifying
// consistency, and rebuilding it from scratch by replaying inbox reports.
//
// Grounded on original_source/Orchestrator/state_processor.py.
package statedoc

// Row is one row of a markdown table, keyed by column header.
type Row map[string]string

// Document is the parsed representation of STATE.md.
type Document struct {
	Frontmatter        map[string]string
	LastUpdated        string
	Teams               []Row
	Agents               []Row
	ActiveLocks          []Row
	PendingDirectives    []Row
	SystemMetrics        map[string]any
	CandidateChanges     []Row
	ChangeHistory        []Row
}

// Change is a single proposed mutation to the document.
type Change struct {
	Section     string // team_status | agent_status | active_locks | pending_directives | candidate_changes | system_metrics
	Field       string // row key value (ignored for system_metrics)
	Column      string
	OldValue    string
	NewValue    string
	Reason      string
	TriggeredBy string
}

// sectionKeyColumn maps a table section name to its row-identifying column.
var sectionKeyColumn = map[string]string{
	"team_status":        "Team",
	"agent_status":       "Agent",
	"active_locks":       "Sheet ID",
	"pending_directives":  "Directive ID",
	"candidate_changes":   "Change ID",
}

// ValidSections is every section name a Change may target, including the
// non-table system_metrics pseudo-section. change_history is deliberately
// excluded — it is append-only and managed internally by Apply.
var ValidSections = map[string]bool{
	"team_status":        true,
	"agent_status":       true,
	"active_locks":       true,
	"pending_directives":  true,
	"candidate_changes":   true,
	"system_metrics":      true,
}

// NewEmpty returns a blank Document with default frontmatter and metrics,
// matching state_processor.py's _make_initial_state.
func NewEmpty(nowISO, today string) Document {
	return Document{
		Frontmatter: map[string]string{
			"version":      "1.0.0",
			"last_updated": today,
			"owner":        "platform-team",
			"project":      "coordctl",
			"priority":     "HIGHEST — Single Source of Truth",
		},
		LastUpdated: nowISO,
		SystemMetrics: map[string]any{
			"cycle_timestamp":        nowISO,
			"total_tasks_completed":  0,
			"total_tasks_failed":     0,
			"total_cost_eur":         0.0,
			"total_tokens_consumed":  0,
			"active_teams":           0,
			"active_agents":          0,
		},
	}
}

func sectionRows(doc *Document, section string) *[]Row {
	switch section {
	case "team_status":
		return &doc.Teams
	case "agent_status":
		return &doc.Agents
	case "active_locks":
		return &doc.ActiveLocks
	case "pending_directives":
		return &doc.PendingDirectives
	case "candidate_changes":
		return &doc.CandidateChanges
	default:
		return nil
	}
}

func findRow(rows []Row, keyCol, keyVal string) Row {
	for _, r := range rows {
		if r[keyCol] == keyVal {
			return r
		}
	}
	return nil
}
