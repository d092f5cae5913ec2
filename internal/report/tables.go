package report

import (
	"fmt"

	"github.com/coordctl/coordctl/internal/protocol"
)

func str(req map[string]any, key string) string {
	s, _ := req[key].(string)
	return s
}

// SpreadsheetTable is grounded on
// original_source/Agents/sheets_agent/sheets_report_generator.py.
var SpreadsheetTable = Table{
	"update":      {Risk: protocol.RiskLow, Confidence: 0.95},
	"append_row":  {Risk: protocol.RiskLow, Confidence: 0.95},
	"delete_row":  {Risk: protocol.RiskMedium, Confidence: 0.85},
	"clear_range": {Risk: protocol.RiskHigh, Confidence: 0.80},
}

// NewSpreadsheetGenerator builds the sheets-agent report generator.
func NewSpreadsheetGenerator() *Generator {
	return &Generator{
		AgentKind: "spreadsheet",
		Table:     SpreadsheetTable,
		Explain: func(op string, req map[string]any) string {
			rng, sheet := str(req, "range"), str(req, "sheet_name")
			switch op {
			case "update":
				return fmt.Sprintf("Update cells %s on %s with provided values", rng, sheet)
			case "append_row":
				return fmt.Sprintf("Append new row(s) at %s on %s", rng, sheet)
			case "delete_row":
				return fmt.Sprintf("Delete row(s) at %s on %s", rng, sheet)
			case "clear_range":
				return fmt.Sprintf("Clear all values in %s on %s", rng, sheet)
			default:
				return "Unknown operation"
			}
		},
		Target: func(req map[string]any) string { return str(req, "sheet_id") },
		Validation: func(req map[string]any) []string {
			return []string{fmt.Sprintf("operation %q is valid", str(req, "operation"))}
		},
		Risks: func(op string, req map[string]any) []string {
			if op == "clear_range" {
				return []string{"clearing a range discards existing values irreversibly"}
			}
			return nil
		},
	}
}

// AuthTable is grounded on
// original_source/Agents/auth_agent/auth_report_generator.py.
var AuthTable = Table{
	"issue_token":      {Risk: protocol.RiskLow, Confidence: 0.95},
	"refresh_token":    {Risk: protocol.RiskLow, Confidence: 0.95},
	"validate_scopes":  {Risk: protocol.RiskLow, Confidence: 0.99},
	"revoke_token": {
		Risk:       protocol.RiskMedium,
		Confidence: 0.90,
		// A revoke against a service account is always escalated to high,
		// mirroring the teacher's explicit elevation rule.
		Escalate: func(req map[string]any) (protocol.Risk, bool) {
			if str(req, "auth_type") == "service_account" {
				return protocol.RiskHigh, true
			}
			return "", false
		},
	},
}

// NewAuthGenerator builds the auth-agent report generator. Token values
// themselves are never included — only operation metadata.
func NewAuthGenerator() *Generator {
	return &Generator{
		AgentKind: "auth",
		Table:     AuthTable,
		Explain: func(op string, req map[string]any) string {
			userID, targetUserID, authType := str(req, "user_id"), str(req, "target_user_id"), str(req, "auth_type")
			if targetUserID == "" {
				targetUserID = userID
			}
			switch op {
			case "issue_token":
				return fmt.Sprintf("Issue new %s token for user %s", authType, userID)
			case "refresh_token":
				return fmt.Sprintf("Refresh existing %s token for user %s", authType, userID)
			case "revoke_token":
				return fmt.Sprintf("Revoke %s token for target user %s", authType, targetUserID)
			case "validate_scopes":
				return fmt.Sprintf("Validate scopes against policy for user %s", userID)
			default:
				return "Unknown operation"
			}
		},
		Target: func(req map[string]any) string {
			if t := str(req, "target_user_id"); t != "" {
				return t
			}
			return str(req, "user_id")
		},
		Risks: func(op string, req map[string]any) []string {
			var risks []string
			if op == "revoke_token" {
				risks = append(risks, "revoking this token requires the user to re-authenticate")
			}
			if str(req, "auth_type") == "service_account" {
				risks = append(risks, "service account operation — verify the job is allow-listed")
			}
			return risks
		},
	}
}

// BackendTable is grounded on
// original_source/Agents/backend_agent/backend_report_generator.py.
var BackendTable = Table{
	"process_sheet_request": {Risk: protocol.RiskLow, Confidence: 0.90},
	"validate_payload":      {Risk: protocol.RiskLow, Confidence: 0.99},
	"aggregate_reports":     {Risk: protocol.RiskLow, Confidence: 0.95},
	"route_directive":       {Risk: protocol.RiskMedium, Confidence: 0.90},
	"compute_diff":          {Risk: protocol.RiskLow, Confidence: 0.95},
}

// NewBackendGenerator builds the backend-agent report generator.
func NewBackendGenerator() *Generator {
	return &Generator{
		AgentKind: "backend",
		Table:     BackendTable,
		Explain: func(op string, req map[string]any) string {
			switch op {
			case "process_sheet_request":
				return fmt.Sprintf("Process sheet request for sheet %s", str(req, "sheet_id"))
			case "validate_payload":
				return fmt.Sprintf("Validate payload against schema %q for user %s", str(req, "schema_name"), str(req, "user_id"))
			case "aggregate_reports":
				return "Aggregate reports into a summary"
			case "route_directive":
				return fmt.Sprintf("Route directive %q for user %s", str(req, "directive"), str(req, "user_id"))
			case "compute_diff":
				return fmt.Sprintf("Compute diff for sheet %s for user %s", str(req, "sheet_id"), str(req, "user_id"))
			default:
				return "Unknown operation"
			}
		},
		Target: func(req map[string]any) string { return str(req, "sheet_id") },
	}
}

// MetricsTable is grounded on
// original_source/Agents/metrics_agent/metrics_report_generator.py.
var MetricsTable = Table{
	"collect_agent_metrics": {Risk: protocol.RiskLow, Confidence: 0.95},
	"collect_team_metrics":  {Risk: protocol.RiskLow, Confidence: 0.95},
	"compute_cost":          {Risk: protocol.RiskLow, Confidence: 0.99},
	"check_slo":             {Risk: protocol.RiskLow, Confidence: 0.90},
	"generate_report":       {Risk: protocol.RiskLow, Confidence: 0.95},
}

// NewMetricsGenerator builds the metrics-agent report generator.
func NewMetricsGenerator() *Generator {
	return &Generator{
		AgentKind: "metrics",
		Table:     MetricsTable,
		Explain: func(op string, req map[string]any) string {
			switch op {
			case "collect_agent_metrics":
				return fmt.Sprintf("Collect metrics for agent %s in period %s", str(req, "target_agent_id"), str(req, "period"))
			case "collect_team_metrics":
				return fmt.Sprintf("Aggregate metrics for team %s in period %s", str(req, "target_team_id"), str(req, "period"))
			case "compute_cost":
				return fmt.Sprintf("Compute cost for period %s", str(req, "period"))
			case "check_slo":
				return fmt.Sprintf("Check SLO compliance for period %s", str(req, "period"))
			case "generate_report":
				return "Generate metrics summary report"
			default:
				return "Unknown operation"
			}
		},
		Target: func(req map[string]any) string {
			if t := str(req, "target_agent_id"); t != "" {
				return t
			}
			return str(req, "target_team_id")
		},
	}
}

// UITable is grounded on
// original_source/Agents/frontend_agent/frontend_report_generator.py.
var UITable = Table{
	"render_dashboard":      {Risk: protocol.RiskLow, Confidence: 0.95},
	"render_approval_form":  {Risk: protocol.RiskLow, Confidence: 0.95},
	"render_audit_log":      {Risk: protocol.RiskLow, Confidence: 0.95},
	"validate_input":        {Risk: protocol.RiskLow, Confidence: 0.99},
	"format_error":          {Risk: protocol.RiskLow, Confidence: 0.90},
}

// NewUIGenerator builds the frontend-agent ("UI render") report generator.
func NewUIGenerator() *Generator {
	return &Generator{
		AgentKind: "ui",
		Table:     UITable,
		Explain: func(op string, req map[string]any) string {
			switch op {
			case "render_dashboard":
				return "Render the team dashboard view"
			case "render_approval_form":
				return fmt.Sprintf("Render approval form for candidate %s", str(req, "candidate_id"))
			case "render_audit_log":
				return "Render the audit log view"
			case "validate_input":
				return "Validate form input"
			case "format_error":
				return "Format an error for display"
			default:
				return "Unknown operation"
			}
		},
		Target: func(req map[string]any) string { return str(req, "candidate_id") },
	}
}
