// Package controller implements the Controller core described in spec.md
// §4.12-4.13: the inbox-scan-and-dispatch cycle, candidate review workflow,
// and the typed task-based entry point.
//
// Grounded on original_source/Controller/controller.py end to end.
package controller

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coordctl/coordctl/internal/audit"
	"github.com/coordctl/coordctl/internal/config"
	"github.com/coordctl/coordctl/internal/hashmgr"
	"github.com/coordctl/coordctl/internal/health"
	"github.com/coordctl/coordctl/internal/lock"
	"github.com/coordctl/coordctl/internal/logging"
	"github.com/coordctl/coordctl/internal/notify"
	"github.com/coordctl/coordctl/internal/retry"
	"github.com/coordctl/coordctl/internal/statemgr"
)

var log = logging.New("controller")

// Controller is the central coordinator: it never talks to external systems
// directly, only reads agent reports from the inbox and writes directives to
// the outbox plus the authoritative state document.
type Controller struct {
	cfg config.Controller

	lockMgr *lock.Manager
	health  *health.Monitor
	retry   *retry.Manager
	audit   *audit.Logger
	state   *statemgr.Manager
	notify  *notify.Notifier
}

// New wires a Controller from cfg. The lock manager uses the file backend
// rooted at cfg.LocksDir() namespaced "ctrl_" (owner-centric, per
// lock_manager.py's two coexisting namespaces).
func New(cfg config.Controller) *Controller {
	backend := lock.NewFileBackend(cfg.LocksDir())
	lockMgr := lock.New(backend, "ctrl_", cfg.ControllerID,
		time.Duration(cfg.LockTimeoutSec)*time.Second, cfg.LockMaxRetries, 2*time.Second)

	healthMonitor := health.New(resolveHealthPaths(cfg))
	healthMonitor.Thresholds = health.Thresholds{
		DegradedFailures:     cfg.HealthDegradedFailures,
		DownFailures:         cfg.HealthDownFailures,
		DegradedSilenceAfter: time.Duration(cfg.HealthCheckTimeoutSec) * time.Second,
		DownSilenceAfter:     time.Duration(cfg.HealthDownTimeoutSec) * time.Second,
	}

	retryMgr := retry.New(cfg.RetryStateFile(), cfg.OutboxDir(), cfg.ControllerID, cfg.RetryMaxPerTask, cfg.RetryBackoffBase)
	hasher := hashmgr.New(cfg.HashLogFile())
	auditLogger := audit.New(cfg.AuditDir())
	stateMgr := statemgr.New(cfg.StateFile(), cfg.BackupDir(), cfg.HealthFile(), cfg.ChangelogFile(), cfg.MistakeFile(), lockMgr, hasher)

	var channels []notify.Channel
	channels = append(channels, notify.NewToastChannel(cfg.ControllerID, dashboardURL(cfg.DashboardAddr)))
	if cfg.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel(cfg.WebhookURL, cfg.ControllerID))
	}

	return &Controller{
		cfg:     cfg,
		lockMgr: lockMgr,
		health:  healthMonitor,
		retry:   retryMgr,
		audit:   auditLogger,
		state:   stateMgr,
		notify:  notify.New(nil, channels...),
	}
}

// AddNotifyChannel registers an additional escalation channel (e.g. the
// dashboard's websocket broadcast) alongside the toast/webhook channels
// built in New.
func (c *Controller) AddNotifyChannel(ch notify.Channel) {
	c.notify.AddChannel(ch)
}

// HealthSummary runs the system-wide health check and returns the result,
// for read-only status surfaces (the dashboard) — it never writes the
// system health report file itself, unlike runHealthSideEffects.
func (c *Controller) HealthSummary() health.Summary {
	return c.health.CheckAll()
}

// RetrySnapshot returns a copy of every tracked retry entry.
func (c *Controller) RetrySnapshot() map[string]retry.Entry {
	return c.retry.Snapshot()
}

// ListCandidates returns every candidate record under the candidates
// directory, most recently submitted first by filename.
func (c *Controller) ListCandidates() ([]Candidate, error) {
	dir := c.cfg.CandidatesDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	candidates := make([]Candidate, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var candidate Candidate
		if err := json.Unmarshal(data, &candidate); err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// QueueDepth returns the number of pending (unprocessed) report files
// across every team's inbox subtree.
func (c *Controller) QueueDepth() (int, error) {
	files, err := c.scanInbox("")
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// dashboardURL turns a bind address like ":8088" into a browsable local
// URL for the toast notifier's "Open Dashboard" action.
func dashboardURL(addr string) string {
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return addr
}

// resolveHealthPaths joins each agent's configured HEALTH.md path (relative
// to config.py's convention) onto the project root.
func resolveHealthPaths(cfg config.Controller) map[string]string {
	resolved := make(map[string]string, len(cfg.AgentHealthPaths))
	for agent, rel := range cfg.AgentHealthPaths {
		resolved[agent] = filepath.Join(cfg.ProjectRoot, rel)
	}
	return resolved
}
