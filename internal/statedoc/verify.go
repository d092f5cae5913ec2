package statedoc

import "fmt"

// VerifyResult is the outcome of a consistency check over a state document.
type VerifyResult struct {
	OK       bool
	Errors   []string
	Warnings []string
}

var requiredFrontmatter = []string{"version", "last_updated", "owner", "project"}
var requiredMetrics = []string{"cycle_timestamp", "total_tasks_completed", "total_tasks_failed"}

// Verify checks frontmatter completeness, referential integrity between
// agents and teams, and presence of required metrics keys. It does not
// itself check the file's checksum companion — callers that have the
// expected checksum in hand should compare Checksum(text) directly and fold
// a mismatch into the returned errors (see internal/statemgr).
func Verify(doc Document) VerifyResult {
	var errs, warnings []string

	var missingFM []string
	for _, f := range requiredFrontmatter {
		if _, ok := doc.Frontmatter[f]; !ok {
			missingFM = append(missingFM, f)
		}
	}
	if len(missingFM) > 0 {
		errs = append(errs, fmt.Sprintf("missing frontmatter fields: %v", missingFM))
	}

	teamNames := map[string]bool{"—": true}
	for _, t := range doc.Teams {
		teamNames[t["Team"]] = true
	}
	for _, a := range doc.Agents {
		team := a["Team"]
		if team == "" {
			team = "—"
		}
		if !teamNames[team] {
			warnings = append(warnings, fmt.Sprintf("agent %s references unknown team '%s'", a["Agent"], team))
		}
	}

	if len(doc.SystemMetrics) > 0 {
		var missingMetrics []string
		for _, m := range requiredMetrics {
			if _, ok := doc.SystemMetrics[m]; !ok {
				missingMetrics = append(missingMetrics, m)
			}
		}
		if len(missingMetrics) > 0 {
			warnings = append(warnings, fmt.Sprintf("system metrics missing fields: %v", missingMetrics))
		}
	} else {
		warnings = append(warnings, "system metrics section is empty")
	}

	return VerifyResult{OK: len(errs) == 0, Errors: errs, Warnings: warnings}
}
