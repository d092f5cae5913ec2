// Package agent implements the shared per-agent lifecycle of spec.md
// §4.14: locate a task, validate it, check idempotency against the
// outbox, acquire a resource lock, optionally throttle, generate a
// report, optionally execute real external calls, write the report,
// archive the task, and record audit/health side effects.
//
// Grounded on original_source/Agents/sheets_agent/agent_loop.py (the
// poll-process-health cycle shape) generalized across all five agent
// kinds, each bringing its own internal/report.Generator.
package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coordctl/coordctl/internal/audit"
	"github.com/coordctl/coordctl/internal/config"
	"github.com/coordctl/coordctl/internal/health"
	"github.com/coordctl/coordctl/internal/lock"
	"github.com/coordctl/coordctl/internal/logging"
	"github.com/coordctl/coordctl/internal/protocol"
	"github.com/coordctl/coordctl/internal/queue"
	"github.com/coordctl/coordctl/internal/ratelimit"
	"github.com/coordctl/coordctl/internal/report"
	"github.com/coordctl/coordctl/internal/schema"
	"github.com/coordctl/coordctl/internal/statestore"
)

var log = logging.New("agent")

// Runner executes one agent kind's task lifecycle. It never talks to the
// Controller's state document directly — only the inbox/outbox file
// layout and its own resource locks.
type Runner struct {
	cfg       config.Agent
	lockMgr   *lock.Manager
	limiter   *ratelimit.Limiter // nil except for the spreadsheet kind
	auditor   *audit.Logger
	generator *report.Generator
	queueAdapter queue.Adapter // non-nil only when cfg.BrokerEnabled
	executor  Executor
}

// Executor performs (or simulates) the real external side effect for one
// proposed change. Executing actual agent business logic is explicitly
// out of scope; SimulatedExecutor is the only implementation this package
// provides, matching the toggle's off position. A caller embedding this
// package for a real deployment supplies its own Executor.
type Executor interface {
	Execute(change protocol.ProposedChange) (verified bool, err error)
}

// SimulatedExecutor always reports a change as applied without making any
// external call — the Executor a new Runner uses, and the only one this
// package ships. No Executor is called at all unless cfg.ExecuteReal is true.
type SimulatedExecutor struct{}

// Execute implements Executor.
func (SimulatedExecutor) Execute(change protocol.ProposedChange) (bool, error) { return true, nil }

// generatorForKind returns the report.Generator matching cfg.AgentKind.
func generatorForKind(kind string) *report.Generator {
	switch kind {
	case "auth":
		return report.NewAuthGenerator()
	case "backend":
		return report.NewBackendGenerator()
	case "metrics":
		return report.NewMetricsGenerator()
	case "ui":
		return report.NewUIGenerator()
	default:
		return report.NewSpreadsheetGenerator()
	}
}

// New wires a Runner from cfg.
func New(cfg config.Agent) *Runner {
	backend := lock.NewFileBackend(cfg.LocksDir())
	lockMgr := lock.New(backend, cfg.AgentKind+"_", cfg.AgentID,
		time.Duration(cfg.LockTimeoutSec)*time.Second, cfg.LockMaxRetries, 2*time.Second)

	var limiter *ratelimit.Limiter
	if cfg.AgentKind == "spreadsheet" {
		opts := []ratelimit.Option{
			ratelimit.WithRequestsPerMinute(cfg.RateRequestsPerMinute),
			ratelimit.WithRequestsPerDay(cfg.RateRequestsPerDay),
			ratelimit.WithMaxWait(time.Duration(cfg.RateMaxWaitSec * float64(time.Second))),
		}
		if !cfg.RateJitter {
			opts = append(opts, ratelimit.WithoutJitter())
		}
		limiter = ratelimit.New(cfg.RateStateDir(), cfg.AgentID, opts...)
	}

	var qa queue.Adapter
	if cfg.BrokerEnabled {
		if nc, err := queue.Connect(cfg.BrokerURL); err == nil {
			qa = queue.NewBrokerAdapter(nc, "coordctl")
		} else {
			log.Printf("broker connect failed, falling back to file queue: %v", err)
		}
	}

	return &Runner{
		cfg:          cfg,
		lockMgr:      lockMgr,
		limiter:      limiter,
		auditor:      audit.New(cfg.AuditDir()),
		generator:    generatorForKind(cfg.AgentKind),
		queueAdapter: qa,
		executor:     SimulatedExecutor{},
	}
}

// SetExecutor overrides the default SimulatedExecutor, e.g. for tests that
// want to assert execution was attempted without touching the filesystem.
func (r *Runner) SetExecutor(e Executor) { r.executor = e }

// RunOnce executes a single poll-process cycle. Returns true if a task
// was found and handled: a report was written (successfully or not), or
// the task was skipped because its report already exists in the outbox.
func (r *Runner) RunOnce() (bool, error) {
	t0 := time.Now()

	var opSteps []audit.OpStep
	step := func(name string) {
		opSteps = append(opSteps, audit.OpStep{Name: name, Timestamp: time.Now().UTC()})
	}

	step("locate_task")
	task, taskPath, fromBroker, err := r.locateTask()
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	taskID, _ := task["task_id"].(string)
	if taskID == "" {
		taskID = "unknown"
	}
	userID, _ := task["user_id"].(string)
	teamID, _ := task["team_id"].(string)
	if teamID == "" {
		teamID = r.cfg.TeamID
	}

	var invErr error
	var builtReport *protocol.Report
	var reportPath string

	step("validate_" + taskID)
	result := schema.ValidateTaskEnvelope(task)
	if !result.OK {
		rep := report.GenerateError(r.cfg.AgentID, taskID, result.Errors)
		builtReport = &rep
		invErr = fmt.Errorf("task validation failed: %s", strings.Join(result.Errors, "; "))
	}

	if builtReport == nil {
		step("idempotency_check")
		if r.reportAlreadyExists(taskID) {
			log.Printf("report for task %s already exists in outbox, skipping (idempotent)", taskID)
			if !fromBroker && taskPath != "" {
				if err := r.archiveTask(taskPath); err != nil {
					log.Printf("archiving already-processed task %s failed: %v", taskPath, err)
				}
			}
			return true, nil
		}

		resourceID := r.resourceID(task, taskID)
		step("acquire_lock")
		if err := r.lockMgr.Acquire(resourceID, taskID); err != nil {
			return false, fmt.Errorf("cannot acquire lock %s: %w", resourceID, err)
		}
		defer func() {
			if err := r.lockMgr.Release(resourceID); err != nil {
				log.Printf("release %s failed: %v", resourceID, err)
			}
		}()

		if r.limiter != nil {
			step("rate_limit")
			if err := r.limiter.Acquire(); err != nil {
				rep := report.GenerateError(r.cfg.AgentID, taskID, []string{err.Error()})
				builtReport = &rep
				invErr = err
			}
		}
	}

	if builtReport == nil {
		step("generate_report")
		request, _ := task["request"].(map[string]any)
		rep := r.generator.Generate(r.cfg.AgentID, taskID, request)

		if r.cfg.ExecuteReal {
			step("execute")
			r.executeChanges(&rep)
		}
		rep.Metrics.DurationMs = float64(time.Since(t0).Milliseconds())
		builtReport = &rep
	}

	step("write_report")
	reportPath = filepath.Join(r.cfg.OutboxDir(), fmt.Sprintf("%s_report.json", time.Now().UTC().Format("20060102T150405Z")))
	if err := statestore.Save(reportPath, builtReport); err != nil {
		return false, fmt.Errorf("writing report failed: %w", err)
	}

	if !fromBroker && taskPath != "" {
		step("archive_task")
		if err := r.archiveTask(taskPath); err != nil {
			log.Printf("archiving task %s failed: %v", taskPath, err)
		}
	}

	step("record_audit")
	var reportMap map[string]any
	if b, err := json.Marshal(builtReport); err == nil {
		_ = json.Unmarshal(b, &reportMap)
	}
	if _, err := r.auditor.Record(r.cfg.AgentID, taskID, userID, teamID, fmt.Sprint(r.cfg.Version), opSteps, reportPath, reportMap, invErr, time.Since(t0)); err != nil {
		log.Printf("writing audit record failed: %v", err)
	}

	r.appendHealth(invErr == nil)

	log.Printf("processed task %s (status=%s)", taskID, builtReport.Status)
	return true, nil
}

// locateTask returns the next task to process, either popped from the
// broker (fromBroker=true, no archival needed) or read from the file
// inbox (fromBroker=false, taskPath set for later archival). Returns a
// nil task when nothing is available.
func (r *Runner) locateTask() (map[string]any, string, bool, error) {
	if r.queueAdapter != nil {
		obj, err := r.queueAdapter.Pop("inbox:"+r.cfg.TeamID, time.Duration(r.cfg.TaskTimeoutSec)*time.Second)
		if err != nil {
			return nil, "", false, err
		}
		if obj == nil {
			return nil, "", false, nil
		}
		return obj, "", true, nil
	}

	dir := r.cfg.InboxDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", false, nil
		}
		return nil, "", false, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".done.json") {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, "", false, nil
	}
	sort.Strings(names)

	path := filepath.Join(dir, names[0])
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", false, err
	}
	var task map[string]any
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, "", false, fmt.Errorf("task file %s is not valid JSON: %w", path, err)
	}
	return task, path, false, nil
}

// archiveTask renames a processed file-sourced task with a ".done" suffix
// — append-only, never delete, matching the Controller's own report
// archival convention.
func (r *Runner) archiveTask(taskPath string) error {
	ext := filepath.Ext(taskPath)
	base := strings.TrimSuffix(taskPath, ext)
	return os.Rename(taskPath, base+".done"+ext)
}

// reportAlreadyExists scans the outbox for any report naming taskID,
// implementing the idempotency check of spec.md §4.14 step 3.
func (r *Runner) reportAlreadyExists(taskID string) bool {
	entries, err := os.ReadDir(r.cfg.OutboxDir())
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(r.cfg.OutboxDir(), e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var decoded map[string]any
		if json.Unmarshal(data, &decoded) != nil {
			continue
		}
		if id, _ := decoded["task_id"].(string); id == taskID {
			return true
		}
	}
	return false
}

// resourceID picks the lock resource for a task: spreadsheet id for the
// spreadsheet agent kind, task id for everything else.
func (r *Runner) resourceID(task map[string]any, taskID string) string {
	if r.cfg.AgentKind == "spreadsheet" {
		if request, ok := task["request"].(map[string]any); ok {
			if id, ok := request["spreadsheet_id"].(string); ok && id != "" {
				return "sheet-" + id
			}
			if id, ok := request["sheet_id"].(string); ok && id != "" {
				return "sheet-" + id
			}
		}
	}
	return "task-" + taskID
}

// executeChanges runs each proposed change through the Runner's Executor
// and records the verification outcome back onto the change's Details.
func (r *Runner) executeChanges(rep *protocol.Report) {
	for i := range rep.ProposedChanges {
		verified, err := r.executor.Execute(rep.ProposedChanges[i])
		if err != nil {
			rep.Errors = append(rep.Errors, err.Error())
			continue
		}
		rep.ProposedChanges[i].Details = map[string]any{"verified": verified}
	}
}

// appendHealth reads the prior snapshot (for consecutive-failure
// tracking), then appends a new markdown health entry in the same
// "### <ts> — ..." + table shape internal/health.ParseHealthFile expects.
func (r *Runner) appendHealth(success bool) {
	healthPath := r.cfg.HealthFile()
	prior := health.ParseAgentHealth(r.cfg.AgentID, healthPath)

	consecutiveFailures := 0
	status := "healthy"
	if success {
		consecutiveFailures = 0
	} else {
		consecutiveFailures = prior.ConsecutiveFailures + 1
		status = "error"
	}

	now := time.Now().UTC()
	entry := fmt.Sprintf(
		"\n### %s — Agent Health\n\n| Field | Value |\n|---|---|\n"+
			"| last_run_timestamp | %s |\n| last_status | %s |\n| consecutive_failures | %d |\n",
		now.Format(time.RFC3339), now.Format(time.RFC3339), status, consecutiveFailures)

	if err := os.MkdirAll(filepath.Dir(healthPath), 0o755); err != nil {
		log.Printf("creating health file directory failed: %v", err)
		return
	}
	f, err := os.OpenFile(healthPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("opening health file failed: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		log.Printf("writing health entry failed: %v", err)
	}
}
