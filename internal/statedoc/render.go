package statedoc

import (
	"encoding/json"
	"sort"
	"strings"
)

var (
	teamHeaders      = []string{"Team", "Status", "Active Workers", "Last Report", "Pending Tasks"}
	agentHeaders     = []string{"Agent", "Team", "Status", "Last Task", "Health"}
	lockHeaders      = []string{"Sheet ID", "Owner", "Since", "Task ID"}
	directiveHeaders = []string{"Directive ID", "Target", "Command", "Created", "Status"}
	candidateHeaders = []string{"Change ID", "Team", "Sheet", "Description", "Submitted", "Status"}
	historyHeaders   = []string{"Timestamp", "Changed By", "Field", "Old Value", "New Value"}
)

// Render renders a Document back to STATE.md markdown. Render is the single
// canonical form: parsing a rendered document and rendering it again
// produces a byte-identical result.
func Render(doc Document) string {
	var b strings.Builder

	b.WriteString("---\n")
	for _, k := range sortedKeys(doc.Frontmatter) {
		b.WriteString(k)
		b.WriteString(`: "`)
		b.WriteString(doc.Frontmatter[k])
		b.WriteString("\"\n")
	}
	b.WriteString("---\n\n")

	b.WriteString("# Orchestrator — STATE.md\n\n")
	b.WriteString("> **HIGHEST PRIORITY:** This file is the **Single Source of Truth** for the\n")
	b.WriteString("> coordination system. Every Controller and Agent consults it to determine\n")
	b.WriteString("> current state.\n\n")
	b.WriteString("> **Rules:**\n")
	b.WriteString("> - Only the **Controller** may update this file.\n")
	b.WriteString("> - Every update is logged to `ops/logs/audit.log` with its hash.\n")
	b.WriteString("> - In case of conflict between this file and any other state, this file WINS.\n")
	b.WriteString("> - Agents read this file read-only.\n\n")

	b.WriteString("## Current System State\n\n")

	b.WriteString("### Last Updated Timestamp\n```\n")
	b.WriteString(doc.LastUpdated)
	b.WriteString("\n```\n\n")

	b.WriteString("### Team Status\n\n")
	b.WriteString(renderTable(teamHeaders, doc.Teams, "(no teams registered)"))
	b.WriteString("\n\n")

	b.WriteString("### Agent Status\n\n")
	b.WriteString(renderTable(agentHeaders, doc.Agents, "(no agents registered)"))
	b.WriteString("\n\n")

	b.WriteString("### Active Locks\n\n")
	b.WriteString(renderTable(lockHeaders, doc.ActiveLocks, "(no active locks)"))
	b.WriteString("\n\n")

	b.WriteString("### Pending Directives\n\n")
	b.WriteString(renderTable(directiveHeaders, doc.PendingDirectives, "(no pending directives)"))
	b.WriteString("\n\n")

	b.WriteString("### System Metrics (Last Cycle)\n\n```json\n")
	metricsJSON, _ := json.MarshalIndent(doc.SystemMetrics, "", "  ")
	b.Write(metricsJSON)
	b.WriteString("\n```\n\n")

	b.WriteString("### Candidate Changes (Awaiting Human Approval)\n\n")
	b.WriteString(renderTable(candidateHeaders, doc.CandidateChanges, "(no pending changes)"))
	b.WriteString("\n\n")

	b.WriteString("### Change History\n\n")
	b.WriteString("> Last 10 changes to this file (append-only in this section).\n\n")
	b.WriteString(renderTable(historyHeaders, doc.ChangeHistory, ""))
	b.WriteString("\n")

	return b.String()
}

func renderTable(headers []string, rows []Row, emptyPlaceholder string) string {
	var lines []string
	lines = append(lines, "| "+strings.Join(headers, " | ")+" |")
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, "|"+strings.Join(sep, "|")+"|")

	if len(rows) == 0 && emptyPlaceholder != "" {
		cells := make([]string, len(headers))
		cells[0] = emptyPlaceholder
		for i := 1; i < len(cells); i++ {
			cells[i] = "—"
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
	} else {
		for _, row := range rows {
			cells := make([]string, len(headers))
			for i, h := range headers {
				if v, ok := row[h]; ok {
					cells[i] = v
				} else {
					cells[i] = "—"
				}
			}
			lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		}
	}
	return strings.Join(lines, "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
