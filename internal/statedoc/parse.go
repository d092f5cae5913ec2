package statedoc

import (
	"encoding/json"
	"regexp"
	"strings"
)

var emptyMarkers = []string{
	"(no teams registered)",
	"(no agents registered)",
	"(no active locks)",
	"(no pending directives)",
	"(no pending changes)",
}

var sectionHeaderMap = map[string]string{
	"team status":                                 "teams",
	"agent status":                                "agents",
	"active locks":                                "active_locks",
	"pending directives":                          "pending_directives",
	"candidate changes (awaiting human approval)": "candidate_changes",
	"change history":                              "change_history",
}

var frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.*?)\n---`)
var timestampPattern = regexp.MustCompile(`(?s)### Last Updated Timestamp\s*\n` + "```" + `\n(.*?)\n` + "```")
var sectionPattern = regexp.MustCompile(`(?m)^### (.+)$`)
var metricsPattern = regexp.MustCompile(`(?s)### System Metrics.*?\n` + "```json" + `\n(.*?)\n` + "```")

// Parse parses raw STATE.md text into a Document. Parsing is tolerant:
// empty placeholder rows are skipped and a missing optional section simply
// leaves the corresponding field at its zero value.
func Parse(text string) Document {
	doc := Document{Frontmatter: map[string]string{}}

	if m := frontmatterPattern.FindStringSubmatch(text); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			if idx := strings.Index(line, ":"); idx >= 0 {
				key := strings.TrimSpace(line[:idx])
				val := strings.TrimSpace(line[idx+1:])
				val = strings.Trim(val, `"`)
				doc.Frontmatter[key] = val
			}
		}
	}

	if m := timestampPattern.FindStringSubmatch(text); m != nil {
		doc.LastUpdated = strings.TrimSpace(m[1])
	}

	parts := sectionPattern.Split(text, -1)
	headers := sectionPattern.FindAllStringSubmatch(text, -1)
	// parts[0] is text before the first header; parts[i+1] is the body
	// following headers[i].
	for i, h := range headers {
		header := strings.ToLower(strings.TrimSpace(h[1]))
		attr, ok := sectionHeaderMap[header]
		if !ok {
			continue
		}
		if i+1 >= len(parts) {
			continue
		}
		body := parts[i+1]
		var tableLines []string
		for _, ln := range strings.Split(body, "\n") {
			if strings.HasPrefix(strings.TrimSpace(ln), "|") {
				tableLines = append(tableLines, ln)
			}
		}
		if len(tableLines) == 0 {
			continue
		}
		_, rows := parseTable(tableLines)
		switch attr {
		case "teams":
			doc.Teams = rows
		case "agents":
			doc.Agents = rows
		case "active_locks":
			doc.ActiveLocks = rows
		case "pending_directives":
			doc.PendingDirectives = rows
		case "candidate_changes":
			doc.CandidateChanges = rows
		case "change_history":
			doc.ChangeHistory = rows
		}
	}

	if m := metricsPattern.FindStringSubmatch(text); m != nil {
		var metrics map[string]any
		if err := json.Unmarshal([]byte(m[1]), &metrics); err == nil {
			doc.SystemMetrics = metrics
		}
	}
	if doc.SystemMetrics == nil {
		doc.SystemMetrics = map[string]any{}
	}

	return doc
}

// parseTable parses a run of "| ... |" lines (header, separator, data...)
// into column headers and row maps. Placeholder rows naming an empty
// section are skipped.
func parseTable(lines []string) ([]string, []Row) {
	if len(lines) < 2 {
		return nil, nil
	}
	headers := splitCells(lines[0])

	var dataLines []string
	if len(lines) > 2 {
		dataLines = lines[2:]
	}

	var rows []Row
	for _, line := range dataLines {
		cells := splitCells(line)
		if len(cells) == 0 {
			continue
		}
		isEmpty := false
		for _, marker := range emptyMarkers {
			if strings.Contains(cells[0], marker) {
				isEmpty = true
				break
			}
		}
		if isEmpty {
			continue
		}
		row := Row{}
		for i, h := range headers {
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = "—"
			}
		}
		rows = append(rows, row)
	}
	return headers, rows
}

func splitCells(line string) []string {
	var out []string
	for _, c := range strings.Split(line, "|") {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
