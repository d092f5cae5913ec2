// Package report implements the shared ReportGenerator algorithm of
// spec.md §4.8: map a validated task's operation through a per-agent-kind
// table of risk/confidence/explanation, escalate risk for specific
// cross-field cases, and derive the report's status from the result.
// Grounded on the five original_source/Agents/*/…_report_generator.py
// modules, which all share this exact shape with different tables.
package report

import (
	"fmt"
	"time"

	"github.com/coordctl/coordctl/internal/protocol"
)

// OperationSpec is one row of an agent kind's operation table.
type OperationSpec struct {
	Risk        protocol.Risk
	Confidence  float64
	Explanation string // used as-is when the Generator has no Explain function
	// Escalate, if non-nil, can raise Risk above the table default based on
	// the task's own fields (e.g. "revoke on a service account is high").
	Escalate func(req map[string]any) (protocol.Risk, bool)
}

// Table maps operation name to its spec for one agent kind.
type Table map[string]OperationSpec

// reviewConfidenceThreshold mirrors _NEEDS_REVIEW_CONFIDENCE_THRESHOLD
// across all five agent kinds' generators.
const reviewConfidenceThreshold = 0.85

// Generator produces reports for one agent kind.
type Generator struct {
	AgentKind string
	Table     Table
	// Explain builds the human-readable summary/explanation for an
	// operation given the request payload; falls back to "Unknown
	// operation" when the operation is not in Table.
	Explain func(op string, req map[string]any) string
	// Target extracts the proposed change's target identifier from the
	// request (e.g. sheet id, auth target user, resource id).
	Target func(req map[string]any) string
	// Validation produces the per-field validation entries for a task.
	Validation func(req map[string]any) []string
	// Risks produces free-form operational risk warnings for a task.
	Risks func(op string, req map[string]any) []string
}

// Generate transforms a validated task into a Report, following the same
// decision structure in all five teacher generators: look up the
// operation's base risk/confidence, apply any escalation, decide
// needs_review from risk-level or low-confidence, and build the summary
// from the same template used for the proposed change's explanation.
func (g *Generator) Generate(agentID, taskID string, req map[string]any) protocol.Report {
	now := time.Now().UTC()

	op, _ := req["operation"].(string)
	spec, known := g.Table[op]
	if !known {
		spec = OperationSpec{Risk: protocol.RiskHigh, Confidence: 0.5, Explanation: "Unknown operation"}
	}

	effectiveRisk := spec.Risk
	if spec.Escalate != nil {
		if escalated, ok := spec.Escalate(req); ok {
			effectiveRisk = escalated
		}
	}

	explanation := spec.Explanation
	if g.Explain != nil {
		explanation = g.Explain(op, req)
	}

	var reviewReasons []string
	if effectiveRisk == protocol.RiskHigh {
		reviewReasons = append(reviewReasons, fmt.Sprintf("%s: risk=%s", op, effectiveRisk))
	} else if spec.Confidence < reviewConfidenceThreshold {
		reviewReasons = append(reviewReasons, fmt.Sprintf("%s: confidence=%.2f", op, spec.Confidence))
	}

	status := protocol.ReportSuccess
	if len(reviewReasons) > 0 {
		status = protocol.ReportNeedsReview
	}

	target := ""
	if g.Target != nil {
		target = g.Target(req)
	}

	var validation []string
	if g.Validation != nil {
		validation = g.Validation(req)
	}
	var risks []string
	if g.Risks != nil {
		risks = g.Risks(op, req)
	}

	return protocol.Report{
		Agent:   agentID,
		TaskID:  taskID,
		Status:  status,
		Summary: explanation,
		Metrics: protocol.Metrics{DurationMs: 0},
		ProposedChanges: []protocol.ProposedChange{{
			Operation:   op,
			Target:      target,
			Risk:        effectiveRisk,
			Confidence:  spec.Confidence,
			Explanation: explanation,
		}},
		Validation:     validation,
		Risks:          risks,
		Errors:         nil,
		ReviewReasons:  reviewReasons,
		Artifacts:      nil,
		NextActions:    nil,
		TimestampUTC:   now.Format(time.RFC3339),
		TimestampLocal: now.Format(time.RFC3339),
	}
}

// GenerateError builds the uniform error report shape shared by all five
// teacher generators' generate_error_report functions.
func GenerateError(agentID, taskID string, errs []string) protocol.Report {
	now := time.Now().UTC()
	return protocol.Report{
		Agent:          agentID,
		TaskID:         taskID,
		Status:         protocol.ReportError,
		Summary:        fmt.Sprintf("error processing task %s", taskID),
		Metrics:        protocol.Metrics{DurationMs: 0},
		Errors:         errs,
		TimestampUTC:   now.Format(time.RFC3339),
		TimestampLocal: now.Format(time.RFC3339),
	}
}
