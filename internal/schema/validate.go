package schema

// ValidateReport runs ReportSchema plus CheckReportSemantics and returns
// both error sets together — schema and semantic violations are never
// short-circuited against each other, per spec.md §4.6.
func ValidateReport(data map[string]any) Result {
	res := ReportSchema.Validate(data)
	res.Errors = append(res.Errors, CheckReportSemantics(data)...)

	if changes, ok := data["proposed_changes"].([]any); ok {
		for _, c := range changes {
			if cm, ok := c.(map[string]any); ok {
				res.Errors = append(res.Errors, CheckProposedChangeSemantics(cm)...)
			}
		}
	}

	res.OK = len(res.Errors) == 0
	return res
}

// ValidateTaskEnvelope runs TaskEnvelopeSchema plus
// CheckTaskEnvelopeSemantics and returns both error sets together.
func ValidateTaskEnvelope(data map[string]any) Result {
	res := TaskEnvelopeSchema.Validate(data)
	res.Errors = append(res.Errors, CheckTaskEnvelopeSemantics(data)...)
	res.OK = len(res.Errors) == 0
	return res
}

// ValidateCandidateDecision runs CandidateDecisionSchema only; the
// review_candidate skill has no cross-field rules beyond structure.
func ValidateCandidateDecision(data map[string]any) Result {
	return CandidateDecisionSchema.Validate(data)
}

// ValidateAuditEntry runs AuditEntrySchema only.
func ValidateAuditEntry(data map[string]any) Result {
	return AuditEntrySchema.Validate(data)
}
