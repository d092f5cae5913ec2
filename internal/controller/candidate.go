package controller

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coordctl/coordctl/internal/protocol"
	"github.com/coordctl/coordctl/internal/statestore"
	"github.com/coordctl/coordctl/internal/stringutils"
)

// Candidate is a proposed change awaiting human approval, per spec.md §3 /
// §4.13. Grounded on controller.py::_handle_needs_review /
// _review_candidate.
type Candidate struct {
	CandidateID     string   `json:"candidate_id"`
	TaskID          string   `json:"task_id"`
	Agent           string   `json:"agent"`
	Team            string   `json:"team"`
	Status          string   `json:"status"`
	SubmittedAt     string   `json:"submitted_at"`
	Summary         string   `json:"summary"`
	ReviewReasons   []any    `json:"review_reasons"`
	Risks           []any    `json:"risks"`
	ProposedChanges []any    `json:"proposed_changes"`
	ReviewedAt      string   `json:"reviewed_at,omitempty"`
	Reviewer        string   `json:"reviewer,omitempty"`
	ReviewNotes     string   `json:"review_notes,omitempty"`
}

// handleNeedsReview composes a candidate record from a needs_review report,
// writes it atomically, and appends a "candidate_submitted" state change.
// Returns the new candidate's id.
func (c *Controller) handleNeedsReview(reportData map[string]any, agent, taskID, team string, stateChanges *[]StateChange) (string, error) {
	now := nowUTC()
	candidateID := "cand-" + taskID

	candidate := Candidate{
		CandidateID:     candidateID,
		TaskID:          taskID,
		Agent:           agent,
		Team:            team,
		Status:          "pending_review",
		SubmittedAt:     now.Format(time.RFC3339),
		Summary:         stringField(reportData, "summary"),
		ReviewReasons:   sliceField(reportData, "review_reasons"),
		Risks:           sliceField(reportData, "risks"),
		ProposedChanges: sliceField(reportData, "proposed_changes"),
	}

	path := c.candidatePath(now, candidateID)
	if err := statestore.Save(path, candidate); err != nil {
		return "", err
	}

	*stateChanges = append(*stateChanges, StateChange{
		Type:        "candidate_submitted",
		CandidateID: candidateID,
		Team:        team,
		Agent:       agent,
		TaskID:      taskID,
		Status:      "pending_review",
		Timestamp:   now.Format(time.RFC3339),
	})

	return candidateID, nil
}

func (c *Controller) candidatePath(ts time.Time, candidateID string) string {
	name := fmt.Sprintf("%s_%s.json", ts.Format("20060102T150405Z"), candidateID)
	return filepath.Join(c.cfg.CandidatesDir(), name)
}

// ReviewDecision is the input to the review_candidate skill.
type ReviewDecision struct {
	CandidateID string `json:"candidate_id"`
	Decision    string `json:"decision"` // approve | reject
	Reviewer    string `json:"reviewer"`
	Notes       string `json:"notes"`
}

// ReviewCandidate handles the review_candidate skill: it looks up the
// candidate file by id, updates its status, and on approval emits an
// execute_approved_change directive to the original agent.
func (c *Controller) ReviewCandidate(decision ReviewDecision) (bool, error) {
	if stringutils.IsEmpty(decision.CandidateID) || (decision.Decision != "approve" && decision.Decision != "reject") {
		return false, fmt.Errorf("review_candidate requires candidate_id and decision (approve|reject)")
	}

	candidatePath, candidate, err := c.findCandidate(decision.CandidateID)
	if err != nil {
		return false, err
	}
	if candidatePath == "" {
		return false, fmt.Errorf("candidate %s not found", decision.CandidateID)
	}

	now := nowUTC()
	reviewer := decision.Reviewer
	if stringutils.IsEmpty(reviewer) {
		reviewer = "unknown"
	}
	candidate.Status = "approved"
	if decision.Decision == "reject" {
		candidate.Status = "rejected"
	}
	candidate.ReviewedAt = now.Format(time.RFC3339)
	candidate.Reviewer = reviewer
	candidate.ReviewNotes = decision.Notes

	if err := statestore.Save(candidatePath, candidate); err != nil {
		return false, err
	}

	if decision.Decision == "reject" {
		log.Printf("candidate %s rejected by %s: %s", decision.CandidateID, reviewer, decision.Notes)
		return true, nil
	}

	directive, err := protocol.Directive{
		DirectiveID: "dir-" + decision.CandidateID,
		TargetAgent: candidate.Agent,
		Command:     "execute_approved_change",
		Parameters: map[string]any{
			"original_task_id": candidate.TaskID,
			"candidate_id":     decision.CandidateID,
			"proposed_changes": candidate.ProposedChanges,
		},
		IssuedBy:    c.cfg.ControllerID,
		IssuedAtUTC: now.Format(time.RFC3339),
	}.Sign()
	if err != nil {
		return false, err
	}

	team := candidate.Team
	if team == "" {
		team = "default"
	}
	target := candidate.Agent
	if target == "" {
		target = "unknown"
	}
	name := fmt.Sprintf("%s_approved_directive.json", now.Format("20060102T150405Z"))
	directivePath := filepath.Join(c.cfg.OutboxDir(), team, target, name)
	if err := statestore.Save(directivePath, directive); err != nil {
		return false, err
	}

	log.Printf("candidate %s approved by %s — directive emitted to %s", decision.CandidateID, reviewer, target)
	return true, nil
}

// findCandidate locates the candidate file matching "*_<candidateID>.json"
// under the candidates directory and parses it.
func (c *Controller) findCandidate(candidateID string) (string, Candidate, error) {
	dir := c.cfg.CandidatesDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", Candidate{}, nil
		}
		return "", Candidate{}, err
	}

	suffix := "_" + candidateID + ".json"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if len(e.Name()) < len(suffix) || e.Name()[len(e.Name())-len(suffix):] != suffix {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return "", Candidate{}, err
		}
		var candidate Candidate
		if err := json.Unmarshal(data, &candidate); err != nil {
			return "", Candidate{}, err
		}
		return path, candidate, nil
	}
	return "", Candidate{}, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func sliceField(m map[string]any, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}
