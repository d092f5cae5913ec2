package schema

import "testing"

func TestValidateReportRejectsUnexpectedProperty(t *testing.T) {
	data := map[string]any{
		"agent":    "sheets-agent",
		"task_id":  "t1",
		"status":   "success",
		"summary":  "ok",
		"metrics":  map[string]any{"duration_ms": float64(10)},
		"bogus":    "field",
	}
	res := ValidateReport(data)
	if res.OK {
		t.Fatal("expected validation to fail on unexpected property")
	}
	found := false
	for _, e := range res.Errors {
		if e == "bogus: unexpected property" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unexpected-property error, got %v", res.Errors)
	}
}

func TestValidateReportNeedsReviewRequiresReasons(t *testing.T) {
	data := map[string]any{
		"agent":   "auth-agent",
		"task_id": "t2",
		"status":  "needs_review",
		"summary": "risky change",
		"metrics": map[string]any{"duration_ms": float64(5)},
	}
	res := ValidateReport(data)
	if res.OK {
		t.Fatal("expected failure: needs_review with no review_reasons")
	}
}

func TestValidateReportSuccessRequiresEmptyErrors(t *testing.T) {
	data := map[string]any{
		"agent":   "auth-agent",
		"task_id": "t3",
		"status":  "success",
		"summary": "fine",
		"metrics": map[string]any{"duration_ms": float64(5)},
		"errors":  []any{"boom"},
	}
	res := ValidateReport(data)
	if res.OK {
		t.Fatal("expected failure: success with non-empty errors")
	}
}

func TestCheckProposedChangeSemanticsBulkWriteElevatesRisk(t *testing.T) {
	change := map[string]any{
		"operation": "bulk_write",
		"target":    "sheet1",
		"risk":      "low",
		"row_count": float64(100),
	}
	errs := CheckProposedChangeSemantics(change)
	if len(errs) == 0 {
		t.Fatal("expected a risk-mismatch error for a 100-row bulk_write at risk=low")
	}
}

func TestCheckProposedChangeSemanticsRevokeRequiresTarget(t *testing.T) {
	errs := CheckProposedChangeSemantics(map[string]any{"operation": "revoke", "target": ""})
	if len(errs) == 0 {
		t.Fatal("expected an error for revoke with empty target")
	}
}

func TestValidateReportCollectsSchemaAndSemanticErrorsTogether(t *testing.T) {
	data := map[string]any{
		"agent":   "auth-agent",
		"task_id": "",
		"status":  "needs_review",
		"summary": "x",
		"metrics": map[string]any{"duration_ms": float64(-1)},
	}
	res := ValidateReport(data)
	if res.OK {
		t.Fatal("expected failure")
	}
	if len(res.Errors) < 3 {
		t.Fatalf("expected schema error (task_id length), semantic errors (duration_ms, review_reasons) together, got %v", res.Errors)
	}
}

func TestValidateTaskEnvelopeRequiresSpreadsheetID(t *testing.T) {
	data := map[string]any{
		"task_id":    "t1",
		"user_id":    "u1",
		"team_id":    "team-a",
		"agent_kind": "spreadsheet",
		"request":    map[string]any{},
	}
	res := ValidateTaskEnvelope(data)
	if res.OK {
		t.Fatal("expected failure: spreadsheet request missing spreadsheet_id")
	}
}
