package schema

// TaskEnvelopeSchema validates the task envelope described in spec.md §3.
var TaskEnvelopeSchema = Record{
	Title: "TaskEnvelope",
	Fields: []Field{
		{Name: "task_id", Kind: KindString, Required: true, MinLength: 1},
		{Name: "user_id", Kind: KindString, Required: true, MinLength: 1},
		{Name: "team_id", Kind: KindString, Required: true, MinLength: 1},
		{Name: "agent_kind", Kind: KindString, Required: true, Enum: []string{
			"spreadsheet", "auth", "backend", "metrics", "ui",
		}},
		{Name: "request", Kind: KindObject, Required: true},
		{Name: "source", Kind: KindString, Required: false},
		{Name: "priority", Kind: KindString, Required: false},
		{Name: "timestamp", Kind: KindString, Required: false},
	},
}

// ReportSchema validates the report described in spec.md §3 and required by
// the Controller's inbox processing step in §4.12.
var ReportSchema = Record{
	Title: "Report",
	Fields: []Field{
		{Name: "agent", Kind: KindString, Required: true, MinLength: 1},
		{Name: "task_id", Kind: KindString, Required: true, MinLength: 1},
		{Name: "status", Kind: KindString, Required: true, Enum: []string{
			"success", "failure", "error", "needs_review", "partial",
		}},
		{Name: "summary", Kind: KindString, Required: true},
		{Name: "metrics", Kind: KindObject, Required: true},
		{Name: "proposed_changes", Kind: KindArray, Required: false},
		{Name: "validation", Kind: KindArray, Required: false},
		{Name: "risks", Kind: KindArray, Required: false},
		{Name: "errors", Kind: KindArray, Required: false},
		{Name: "review_reasons", Kind: KindArray, Required: false},
		{Name: "artifacts", Kind: KindArray, Required: false},
		{Name: "next_actions", Kind: KindArray, Required: false},
		{Name: "timestamp", Kind: KindString, Required: false},
		{Name: "timestamp_local", Kind: KindString, Required: false},
	},
}

// AuditEntrySchema validates the per-cycle audit record of spec.md §4.2/§4.7.
var AuditEntrySchema = Record{
	Title: "AuditLogEntry",
	Fields: []Field{
		{Name: "timestamp", Kind: KindString, Required: true, MinLength: 1},
		{Name: "task_id", Kind: KindString, Required: true, MinLength: 1},
		{Name: "agent", Kind: KindString, Required: false},
		{Name: "action", Kind: KindString, Required: true, MinLength: 1},
		{Name: "status", Kind: KindString, Required: true, MinLength: 1},
		{Name: "details", Kind: KindObject, Required: false},
	},
}

// CandidateDecisionSchema validates the review_candidate skill's payload
// from spec.md §4.13.
var CandidateDecisionSchema = Record{
	Title: "CandidateDecision",
	Fields: []Field{
		{Name: "candidate_id", Kind: KindString, Required: true, MinLength: 1},
		{Name: "decision", Kind: KindString, Required: true, Enum: []string{"approve", "reject"}},
		{Name: "reviewer", Kind: KindString, Required: true, MinLength: 1},
		{Name: "notes", Kind: KindString, Required: false},
	},
}
