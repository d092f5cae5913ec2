package controller

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coordctl/coordctl/internal/protocol"
	"github.com/coordctl/coordctl/internal/statedoc"
	"github.com/coordctl/coordctl/internal/statemgr"
	"github.com/coordctl/coordctl/internal/statestore"
)

// Task is the typed request file the Controller accepts in addition to its
// inbox-scan entry point — grounded on controller.py::process_task.
type Task struct {
	TaskID string         `json:"task_id"`
	Skill  string         `json:"skill"`
	Input  map[string]any `json:"input"`
}

// ProcessTask parses a controller task file from disk and dispatches it by
// skill. Returns true on success.
func (c *Controller) ProcessTask(taskPath string) (bool, error) {
	raw, err := os.ReadFile(taskPath)
	if err != nil {
		return false, err
	}
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return false, fmt.Errorf("task validation failed: %w", err)
	}
	if task.Skill == "" {
		return false, fmt.Errorf("task is missing required field 'skill'")
	}
	return c.dispatchTask(task)
}

func (c *Controller) dispatchTask(task Task) (bool, error) {
	switch task.Skill {
	case "process_inbox":
		team, _ := task.Input["team"].(string)
		ok, err := c.RunOnce(team)
		return ok, err

	case "emit_directive":
		return c.emitDirectiveFromTask(task)

	case "check_health":
		summary := c.CheckHealth()
		log.Printf("health check result: %s", summary.OverallStatus)
		return true, nil

	case "review_candidate":
		decision := ReviewDecision{
			CandidateID: stringField(task.Input, "candidate_id"),
			Decision:    stringField(task.Input, "decision"),
			Reviewer:    stringField(task.Input, "reviewer"),
			Notes:       stringField(task.Input, "notes"),
		}
		return c.ReviewCandidate(decision)

	case "reroute_task":
		return c.rerouteTask(task)

	case "aggregate_team_reports":
		return c.aggregateTeamReports(task)

	case "update_state":
		return c.updateStateFromTask(task)

	default:
		log.Printf("skill %q not implemented", task.Skill)
		return false, nil
	}
}

// CheckHealth runs a standalone system-wide health check, writing the
// report as a side effect.
func (c *Controller) CheckHealth() healthSummary {
	summary := c.health.CheckAll()
	if err := c.health.WriteSystemHealthReport(c.cfg.SystemHealthFile(), summary); err != nil {
		log.Printf("writing system health report failed: %v", err)
	}
	return healthSummary{
		OverallStatus: string(summary.OverallStatus),
		Healthy:       summary.Healthy,
		Degraded:      summary.Degraded,
		Down:          summary.Down,
		Unknown:       summary.Unknown,
	}
}

type healthSummary struct {
	OverallStatus string   `json:"overall_status"`
	Healthy       []string `json:"healthy"`
	Degraded      []string `json:"degraded"`
	Down          []string `json:"down"`
	Unknown       []string `json:"unknown"`
}

// emitDirectiveFromTask handles the emit_directive skill: the caller
// supplies a directive body directly; the Controller signs and writes it.
func (c *Controller) emitDirectiveFromTask(task Task) (bool, error) {
	directiveData, _ := task.Input["directive"].(map[string]any)

	directiveID := stringField(directiveData, "directive_id")
	if directiveID == "" {
		directiveID = "dir-" + task.TaskID
	}
	targetAgent := stringField(directiveData, "target_agent")
	if targetAgent == "" {
		targetAgent = "unknown"
	}
	command := stringField(directiveData, "command")
	if command == "" {
		command = "noop"
	}
	params, _ := directiveData["parameters"].(map[string]any)
	team := stringField(directiveData, "team")
	if team == "" {
		team = "default"
	}

	directive, err := protocol.Directive{
		DirectiveID: directiveID,
		TargetAgent: targetAgent,
		Command:     command,
		Parameters:  params,
		IssuedBy:    c.cfg.ControllerID,
		IssuedAtUTC: nowUTC().Format(time.RFC3339),
	}.Sign()
	if err != nil {
		return false, err
	}

	name := fmt.Sprintf("%s_directive.json", nowUTC().Format("20060102T150405Z"))
	path := filepath.Join(c.cfg.OutboxDir(), team, targetAgent, name)
	if err := statestore.Save(path, directive); err != nil {
		return false, err
	}
	log.Printf("directive written to %s", path)
	return true, nil
}

// rerouteTask redirects a stuck or misassigned task to a different agent by
// emitting a reroute_task directive — a supplement beyond the original
// system's four implemented skills, following the same directive-emission
// shape as retry/escalation.
func (c *Controller) rerouteTask(task Task) (bool, error) {
	originalTaskID := stringField(task.Input, "task_id")
	fromAgent := stringField(task.Input, "from_agent")
	toAgent := stringField(task.Input, "to_agent")
	reason := stringField(task.Input, "reason")
	if originalTaskID == "" || toAgent == "" {
		return false, fmt.Errorf("reroute_task requires task_id and to_agent")
	}

	directive, err := protocol.Directive{
		DirectiveID: "reroute-" + originalTaskID,
		TargetAgent: toAgent,
		Command:     "reroute_task",
		Parameters: map[string]any{
			"original_task_id": originalTaskID,
			"from_agent":       fromAgent,
			"reason":           reason,
		},
		IssuedBy:    c.cfg.ControllerID,
		IssuedAtUTC: nowUTC().Format(time.RFC3339),
	}.Sign()
	if err != nil {
		return false, err
	}

	team := stringField(task.Input, "team")
	if team == "" {
		team = "default"
	}
	name := fmt.Sprintf("%s_reroute_directive.json", nowUTC().Format("20060102T150405Z"))
	path := filepath.Join(c.cfg.OutboxDir(), team, toAgent, name)
	if err := statestore.Save(path, directive); err != nil {
		return false, err
	}
	log.Printf("task %s rerouted from %s to %s", originalTaskID, fromAgent, toAgent)
	return true, nil
}

// aggregateTeamReports tallies processed/pending report counts for one team
// and writes an aggregate summary — a supplement beyond the original
// system, useful for the dashboard's team-level rollups.
func (c *Controller) aggregateTeamReports(task Task) (bool, error) {
	team := stringField(task.Input, "team")
	if team == "" {
		return false, fmt.Errorf("aggregate_team_reports requires team")
	}

	teamDir := filepath.Join(c.cfg.InboxDir(), team)
	var pending, processedCount int
	statusCounts := map[string]int{}

	err := filepath.Walk(teamDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") || strings.HasSuffix(info.Name(), ".hash") {
			return nil
		}
		if strings.HasSuffix(info.Name(), ".processed.json") {
			processedCount++
		} else {
			pending++
		}
		data, err := os.ReadFile(path)
		if err == nil {
			var decoded map[string]any
			if json.Unmarshal(data, &decoded) == nil {
				if status, ok := decoded["status"].(string); ok {
					statusCounts[status]++
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	summary := map[string]any{
		"team":            team,
		"pending":         pending,
		"processed":       processedCount,
		"status_counts":   statusCounts,
		"aggregated_at":   nowUTC().Format(time.RFC3339),
	}
	path := filepath.Join(c.cfg.StateDir(), "team_reports", team+"_aggregate.json")
	if err := statestore.Save(path, summary); err != nil {
		return false, err
	}
	log.Printf("aggregated %d pending / %d processed reports for team %s", pending, processedCount, team)
	return true, nil
}

// updateStateFromTask applies a batch of changes to the authoritative state
// document via statemgr.Manager.Update.
func (c *Controller) updateStateFromTask(task Task) (bool, error) {
	rawChanges, _ := task.Input["changes"].([]any)
	if len(rawChanges) == 0 {
		return false, fmt.Errorf("update_state requires a non-empty 'changes' array")
	}

	changes := make([]statedoc.Change, 0, len(rawChanges))
	for _, rc := range rawChanges {
		cm, ok := rc.(map[string]any)
		if !ok {
			continue
		}
		changes = append(changes, statedoc.Change{
			Section:     stringField(cm, "section"),
			Field:       stringField(cm, "field"),
			Column:      stringField(cm, "column"),
			OldValue:    stringField(cm, "old_value"),
			NewValue:    stringField(cm, "new_value"),
			Reason:      stringField(cm, "reason"),
			TriggeredBy: c.cfg.ControllerID,
		})
	}

	reason := stringField(task.Input, "reason")
	result := c.state.Update(statemgr.UpdateRequest{
		Origin:    "controller",
		Changes:   changes,
		Reason:    reason,
		RequestID: task.TaskID,
	})
	if !result.Success {
		return false, fmt.Errorf("update_state failed: %s", strings.Join(result.Errors, "; "))
	}
	return true, nil
}
