package report

import (
	"testing"

	"github.com/coordctl/coordctl/internal/protocol"
)

func TestSpreadsheetGeneratorClearRangeNeedsReview(t *testing.T) {
	g := NewSpreadsheetGenerator()
	rep := g.Generate("sheets-agent", "t1", map[string]any{
		"operation":  "clear_range",
		"sheet_id":   "sheet-1",
		"sheet_name": "Sheet1",
		"range":      "A1:B2",
	})
	if rep.Status != protocol.ReportNeedsReview {
		t.Fatalf("expected needs_review for clear_range, got %s", rep.Status)
	}
	if len(rep.ProposedChanges) != 1 || rep.ProposedChanges[0].Risk != protocol.RiskHigh {
		t.Fatalf("expected a single high-risk proposed change, got %+v", rep.ProposedChanges)
	}
}

func TestSpreadsheetGeneratorUpdateSucceeds(t *testing.T) {
	g := NewSpreadsheetGenerator()
	rep := g.Generate("sheets-agent", "t2", map[string]any{
		"operation":  "update",
		"sheet_id":   "sheet-1",
		"sheet_name": "Sheet1",
		"range":      "A1",
	})
	if rep.Status != protocol.ReportSuccess {
		t.Fatalf("expected success, got %s", rep.Status)
	}
}

func TestAuthGeneratorRevokeServiceAccountEscalatesToHigh(t *testing.T) {
	g := NewAuthGenerator()
	rep := g.Generate("auth-agent", "t3", map[string]any{
		"operation":       "revoke_token",
		"user_id":         "u1",
		"target_user_id":  "svc-job-42",
		"auth_type":       "service_account",
	})
	if rep.ProposedChanges[0].Risk != protocol.RiskHigh {
		t.Fatalf("expected service_account revoke to escalate to high risk, got %s", rep.ProposedChanges[0].Risk)
	}
	if rep.Status != protocol.ReportNeedsReview {
		t.Fatalf("expected needs_review, got %s", rep.Status)
	}
}

func TestAuthGeneratorRevokeUserAccountStaysMedium(t *testing.T) {
	g := NewAuthGenerator()
	rep := g.Generate("auth-agent", "t4", map[string]any{
		"operation": "revoke_token",
		"user_id":   "u1",
		"auth_type": "oauth",
	})
	if rep.ProposedChanges[0].Risk != protocol.RiskMedium {
		t.Fatalf("expected medium risk for a non-service-account revoke, got %s", rep.ProposedChanges[0].Risk)
	}
	if rep.Status != protocol.ReportSuccess {
		t.Fatalf("expected success for medium risk, got %s", rep.Status)
	}
}

func TestGenerateErrorShape(t *testing.T) {
	rep := GenerateError("backend-agent", "t5", []string{"boom"})
	if rep.Status != protocol.ReportError {
		t.Fatalf("expected error status, got %s", rep.Status)
	}
	if len(rep.Errors) != 1 || rep.Errors[0] != "boom" {
		t.Fatalf("expected errors=[boom], got %v", rep.Errors)
	}
}

func TestMetricsGeneratorUnknownOperationIsHighRiskAndReview(t *testing.T) {
	g := NewMetricsGenerator()
	rep := g.Generate("metrics-agent", "t6", map[string]any{"operation": "nonexistent_op"})
	if rep.ProposedChanges[0].Risk != protocol.RiskHigh {
		t.Fatalf("expected unknown operation to default to high risk, got %s", rep.ProposedChanges[0].Risk)
	}
	if rep.Status != protocol.ReportNeedsReview {
		t.Fatalf("expected needs_review for unknown operation, got %s", rep.Status)
	}
}
