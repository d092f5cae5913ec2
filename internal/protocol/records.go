package protocol

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/coordctl/coordctl/internal/canonjson"
)

// ReportStatus is the outcome of one agent invocation, as classified by the
// ReportGenerator and consumed by the Controller dispatch.
type ReportStatus string

const (
	ReportSuccess     ReportStatus = "success"
	ReportError       ReportStatus = "error"
	ReportFailure     ReportStatus = "failure"
	ReportNeedsReview ReportStatus = "needs_review"
	ReportPartial     ReportStatus = "partial"
)

// Risk is the severity classification of a proposed change.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Metrics captures the runtime cost of one agent invocation.
type Metrics struct {
	DurationMs float64  `json:"duration_ms"`
	TokensIn   *int64   `json:"tokens_in,omitempty"`
	TokensOut  *int64   `json:"tokens_out,omitempty"`
	CostEUR    *float64 `json:"cost_eur,omitempty"`
}

// ProposedChange describes one concrete change an agent would make, with
// enough metadata for a human reviewer — never the underlying secret
// payload.
type ProposedChange struct {
	Operation   string  `json:"operation"`
	Target      string  `json:"target"`
	Risk        Risk    `json:"risk"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	Details     any     `json:"details,omitempty"`
}

// Report is the structured output of one agent invocation for one task.
type Report struct {
	Agent           string           `json:"agent"`
	TaskID          string           `json:"task_id"`
	Status          ReportStatus     `json:"status"`
	Summary         string           `json:"summary"`
	Metrics         Metrics          `json:"metrics"`
	ProposedChanges []ProposedChange `json:"proposed_changes"`
	Validation      []string         `json:"validation,omitempty"`
	Risks           []string         `json:"risks,omitempty"`
	Errors          []string         `json:"errors,omitempty"`
	ReviewReasons   []string         `json:"review_reasons,omitempty"`
	Artifacts       []string         `json:"artifacts,omitempty"`
	NextActions     []string         `json:"next_actions,omitempty"`
	TimestampUTC    string           `json:"timestamp"`
	TimestampLocal  string           `json:"timestamp_local,omitempty"`
}

// Directive is a structured command emitted by the Controller to an agent
// or to the operator escalation queue.
type Directive struct {
	DirectiveID  string         `json:"directive_id"`
	TargetAgent  string         `json:"target_agent"`
	Command      string         `json:"command"`
	Parameters   map[string]any `json:"parameters"`
	IssuedBy     string         `json:"issued_by"`
	IssuedAtUTC  string         `json:"issued_at"`
	Signature    string         `json:"signature"`
}

// Sign computes the SHA-256 hex signature over the canonical-JSON payload
// of d with Signature cleared, and returns a copy with Signature set. The
// signature is reproducible: calling Sign again on the result yields the
// same value.
func (d Directive) Sign() (Directive, error) {
	unsigned := d
	unsigned.Signature = ""
	payload, err := canonjson.Marshal(unsigned)
	if err != nil {
		return Directive{}, err
	}
	sum := sha256.Sum256(payload)
	d.Signature = hex.EncodeToString(sum[:])
	return d, nil
}

// VerifySignature reports whether d.Signature matches the signature that
// Sign would compute for d's current payload.
func (d Directive) VerifySignature() (bool, error) {
	signed, err := d.Sign()
	if err != nil {
		return false, err
	}
	return signed.Signature == d.Signature, nil
}

// TaskEnvelope is produced by external producers and consumed by exactly
// one agent.
type TaskEnvelope struct {
	TaskID   string         `json:"task_id"`
	UserID   string         `json:"user_id"`
	TeamID   string         `json:"team_id"`
	Request  map[string]any `json:"request"`
	Source   string         `json:"source"`
	Priority string         `json:"priority"`
	Timestamp string        `json:"timestamp"`
}
