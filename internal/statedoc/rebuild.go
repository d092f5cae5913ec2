package statedoc

import "time"

// ReplayReport is the minimal projection of a report file needed to fold it
// into a Document during disaster-recovery rebuild. Callers (internal/statemgr)
// are responsible for walking the inbox tree, parsing report JSON, sorting
// by filename, and excluding self-reports / example files / hash companions
// before calling ApplyReplay — the filesystem walk itself is I/O the
// statedoc package deliberately stays free of.
type ReplayReport struct {
	Agent     string
	Status    string
	TaskID    string
	Timestamp string
	TeamName  string
	CostEUR   float64
	TokensIn  int64
	TokensOut int64
}

// ApplyReplay folds one ReplayReport onto doc: upserts the agent row, the
// team row (if TeamName is non-empty), and the aggregate metrics.
func ApplyReplay(doc *Document, r ReplayReport) {
	status := "idle"
	health := "healthy"
	if r.Status != "success" {
		status = "error"
		health = "degraded"
	}
	upsertRow(&doc.Agents, "Agent", r.Agent, Row{
		"Status":    status,
		"Last Task": valueOr(r.TaskID, "—"),
		"Health":    health,
	})

	if r.TeamName != "" {
		upsertRow(&doc.Teams, "Team", r.TeamName, Row{
			"Last Report": valueOr(r.Timestamp, "—"),
			"Status":      "idle",
		})
	}

	if doc.SystemMetrics == nil {
		doc.SystemMetrics = map[string]any{}
	}
	if r.Status == "success" {
		doc.SystemMetrics["total_tasks_completed"] = asInt(doc.SystemMetrics["total_tasks_completed"]) + 1
	} else {
		doc.SystemMetrics["total_tasks_failed"] = asInt(doc.SystemMetrics["total_tasks_failed"]) + 1
	}
	doc.SystemMetrics["total_cost_eur"] = asFloat(doc.SystemMetrics["total_cost_eur"]) + r.CostEUR
	doc.SystemMetrics["total_tokens_consumed"] = asInt(doc.SystemMetrics["total_tokens_consumed"]) + r.TokensIn + r.TokensOut
}

// FinalizeRebuild stamps the final cycle timestamp and active team/agent
// counts after all reports have been replayed.
func FinalizeRebuild(doc *Document) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	doc.LastUpdated = now
	if doc.SystemMetrics == nil {
		doc.SystemMetrics = map[string]any{}
	}
	doc.SystemMetrics["cycle_timestamp"] = now
	doc.SystemMetrics["active_teams"] = int64(len(doc.Teams))
	doc.SystemMetrics["active_agents"] = int64(len(doc.Agents))
}

func upsertRow(rows *[]Row, keyCol, keyVal string, updates Row) {
	for _, r := range *rows {
		if r[keyCol] == keyVal {
			for k, v := range updates {
				r[k] = v
			}
			return
		}
	}
	row := Row{keyCol: keyVal}
	for k, v := range updates {
		row[k] = v
	}
	*rows = append(*rows, row)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
