package schema

import "fmt"

// bulkWriteRiskThreshold is the row count above which a bulk write proposal
// must be classified as high risk regardless of the agent's own estimate.
const bulkWriteRiskThreshold = 50

// CheckReportSemantics applies the cross-field rules of spec.md §4.6/§4.12
// on top of ReportSchema's structural validation: status=needs_review
// requires non-empty review_reasons, status=success requires empty errors,
// and metrics.duration_ms must be present and non-negative.
func CheckReportSemantics(data map[string]any) []string {
	var errs []string

	status, _ := data["status"].(string)
	reviewReasons, _ := data["review_reasons"].([]any)
	errorsList, _ := data["errors"].([]any)

	if status == "needs_review" && len(reviewReasons) == 0 {
		errs = append(errs, "status=needs_review requires at least one review_reason")
	}
	if status == "success" && len(errorsList) > 0 {
		errs = append(errs, "status=success requires an empty errors list")
	}

	metrics, _ := data["metrics"].(map[string]any)
	duration, ok := asFloat(metrics["duration_ms"])
	if !ok {
		errs = append(errs, "metrics.duration_ms is required and must be numeric")
	} else if duration < 0 {
		errs = append(errs, "metrics.duration_ms must be >= 0")
	}

	return errs
}

// CheckProposedChangeSemantics applies the per-operation cross-field rules
// named in spec.md §4.6: "revoke requires target id", "update requires
// values", "bulk write over threshold elevates risk to high". change is one
// entry of a report's proposed_changes array.
func CheckProposedChangeSemantics(change map[string]any) []string {
	var errs []string

	op, _ := change["operation"].(string)
	target, _ := change["target"].(string)
	risk, _ := change["risk"].(string)

	switch op {
	case "revoke":
		if target == "" {
			errs = append(errs, "operation=revoke requires a non-empty target")
		}
	case "update":
		values, hasValues := change["values"].(map[string]any)
		if !hasValues || len(values) == 0 {
			errs = append(errs, "operation=update requires non-empty values")
		}
	case "bulk_write":
		rows, _ := asFloat(change["row_count"])
		if rows > bulkWriteRiskThreshold && risk != "high" {
			errs = append(errs, fmt.Sprintf(
				"operation=bulk_write affecting %v rows (> %d) must be risk=high, got %q",
				change["row_count"], bulkWriteRiskThreshold, risk))
		}
	}

	return errs
}

// CheckTaskEnvelopeSemantics applies cross-field rules for inbound tasks:
// the request payload's shape must be consistent with the declared
// agent_kind, mirroring the enumerated request kinds of spec.md §3.
func CheckTaskEnvelopeSemantics(data map[string]any) []string {
	var errs []string

	kind, _ := data["agent_kind"].(string)
	request, _ := data["request"].(map[string]any)

	switch kind {
	case "spreadsheet":
		if _, ok := request["spreadsheet_id"]; !ok {
			errs = append(errs, "agent_kind=spreadsheet requires request.spreadsheet_id")
		}
	case "auth":
		if _, ok := request["action"]; !ok {
			errs = append(errs, "agent_kind=auth requires request.action")
		}
	}

	return errs
}
