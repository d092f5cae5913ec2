// Package config loads Controller and Agent configuration from a YAML file
// (teams, paths, thresholds) with environment-variable overrides applied
// after load, following internal/agents/config.go's LoadTeamsConfig pattern.
//
// Grounded on original_source/Controller/config.py's ControllerConfig
// dataclass: every field below has a direct counterpart there, including
// the COORDCTL_-prefixed env override names in place of config.py's
// CTRL_-prefixed ones.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Controller holds every setting the Controller core needs, plus the
// derived filesystem layout rooted at ProjectRoot.
type Controller struct {
	ControllerID string `yaml:"controller_id"`
	Version      int    `yaml:"version"`
	ProjectRoot  string `yaml:"project_root"`

	LockBackend      string  `yaml:"lock_backend"`
	LockTimeoutSec   int     `yaml:"lock_timeout_seconds"`
	LockMaxRetries   int     `yaml:"lock_max_retries"`
	LockBackoffBase  float64 `yaml:"lock_backoff_base"`

	ProcessTimeoutSec int `yaml:"process_timeout_seconds"`

	HealthCheckTimeoutSec  int `yaml:"health_check_timeout_seconds"`
	HealthDownTimeoutSec   int `yaml:"health_down_timeout_seconds"`
	HealthDegradedFailures int `yaml:"health_degraded_failures"`
	HealthDownFailures     int `yaml:"health_down_failures"`

	RetryMaxPerTask  int     `yaml:"retry_max_per_task"`
	RetryBackoffBase float64 `yaml:"retry_backoff_base"`

	ZombieLockTimeoutSec int `yaml:"zombie_lock_timeout_seconds"`

	AgentHealthPaths map[string]string `yaml:"agent_health_paths"`

	BrokerEnabled bool   `yaml:"broker_enabled"`
	BrokerURL     string `yaml:"broker_url"`

	DashboardAddr string `yaml:"dashboard_addr"`

	WebhookURL string `yaml:"webhook_url"`
}

// Default returns a Controller populated with the same defaults as
// config.py's dataclass field defaults.
func Default() Controller {
	return Controller{
		ControllerID:           "controller-01",
		Version:                1,
		ProjectRoot:            ".",
		LockBackend:            "file",
		LockTimeoutSec:         120,
		LockMaxRetries:         5,
		LockBackoffBase:        2.0,
		ProcessTimeoutSec:      30,
		HealthCheckTimeoutSec:  600,
		HealthDownTimeoutSec:   1800,
		HealthDegradedFailures: 3,
		HealthDownFailures:     6,
		RetryMaxPerTask:        3,
		RetryBackoffBase:       2.0,
		ZombieLockTimeoutSec:   300,
		AgentHealthPaths: map[string]string{
			"sheets-agent":   "Agents/sheets_agent/HEALTH.md",
			"auth-agent":     "Agents/auth_agent/HEALTH.md",
			"backend-agent":  "Agents/backend_agent/HEALTH.md",
			"frontend-agent": "Agents/frontend_agent/HEALTH.md",
			"metrics-agent":  "Agents/metrics_agent/HEALTH.md",
		},
		DashboardAddr: ":8088",
	}
}

// Load reads a YAML file at path onto the default configuration, then
// applies environment overrides. A missing file is not an error — callers
// that only want env/default behavior pass an empty path.
func Load(path string) (Controller, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Controller{}, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Controller{}, err
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Controller) {
	if v := os.Getenv("COORDCTL_ID"); v != "" {
		cfg.ControllerID = v
	}
	if v := os.Getenv("COORDCTL_PROJECT_ROOT"); v != "" {
		cfg.ProjectRoot = v
	}
	if v := os.Getenv("COORDCTL_LOCK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LockTimeoutSec = n
		}
	}
	if v := os.Getenv("COORDCTL_PROCESS_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProcessTimeoutSec = n
		}
	}
	if v := os.Getenv("COORDCTL_HEALTH_CHECK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthCheckTimeoutSec = n
		}
	}
	if v := os.Getenv("COORDCTL_HEALTH_DOWN_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthDownTimeoutSec = n
		}
	}
	if v := os.Getenv("COORDCTL_HEALTH_DEGRADED_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthDegradedFailures = n
		}
	}
	if v := os.Getenv("COORDCTL_HEALTH_DOWN_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthDownFailures = n
		}
	}
	if v := os.Getenv("COORDCTL_RETRY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryMaxPerTask = n
		}
	}
	if v := os.Getenv("COORDCTL_RETRY_BACKOFF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RetryBackoffBase = f
		}
	}
	if v := os.Getenv("COORDCTL_ZOMBIE_LOCK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ZombieLockTimeoutSec = n
		}
	}
	if v := os.Getenv("COORDCTL_BROKER_ENABLED"); v == "1" || v == "true" {
		cfg.BrokerEnabled = true
	}
	if v := os.Getenv("COORDCTL_BROKER_URL"); v != "" {
		cfg.BrokerURL = v
	}
	if v := os.Getenv("COORDCTL_DASHBOARD_ADDR"); v != "" {
		cfg.DashboardAddr = v
	}
	if v := os.Getenv("COORDCTL_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
}

// Agent holds every setting one Agent runner needs, generalized across
// the five agent kinds (spreadsheet/auth/backend/metrics/ui) from the
// per-kind config.py modules (e.g. Agents/sheets_agent/config.py's
// SheetsAgentConfig) that all share this exact field set.
type Agent struct {
	AgentID     string `yaml:"agent_id"`
	AgentKind   string `yaml:"agent_kind"`
	TeamID      string `yaml:"team_id"`
	Version     int    `yaml:"version"`
	ProjectRoot string `yaml:"project_root"`

	LockBackend     string  `yaml:"lock_backend"`
	LockTimeoutSec  int     `yaml:"lock_timeout_seconds"`
	LockMaxRetries  int     `yaml:"lock_max_retries"`
	LockBackoffBase float64 `yaml:"lock_backoff_base"`

	TaskTimeoutSec int `yaml:"task_timeout_seconds"`

	RateRequestsPerMinute int     `yaml:"rate_requests_per_minute"`
	RateRequestsPerDay    int     `yaml:"rate_requests_per_day"`
	RateMaxWaitSec        float64 `yaml:"rate_max_wait_seconds"`
	RateJitter            bool    `yaml:"rate_jitter"`

	// ExecuteReal toggles real external calls for agent kinds that make
	// them (spreadsheet). Left off by default: simulated execution only.
	ExecuteReal  bool `yaml:"execute_real"`
	VerifyWrites bool `yaml:"verify_writes"`

	BrokerEnabled bool   `yaml:"broker_enabled"`
	BrokerURL     string `yaml:"broker_url"`
}

// DefaultAgent returns an Agent populated with the same defaults as
// SheetsAgentConfig's dataclass field defaults, generalized to agent_kind.
func DefaultAgent() Agent {
	return Agent{
		AgentID:               "agent-01",
		AgentKind:             "spreadsheet",
		TeamID:                "team-01",
		Version:               1,
		ProjectRoot:           ".",
		LockBackend:           "file",
		LockTimeoutSec:        120,
		LockMaxRetries:        5,
		LockBackoffBase:       2.0,
		TaskTimeoutSec:        60,
		RateRequestsPerMinute: 60,
		RateRequestsPerDay:    10_000,
		RateMaxWaitSec:        60.0,
		RateJitter:            true,
	}
}

// LoadAgent reads a YAML file at path onto DefaultAgent(), then applies
// environment overrides. A missing file is not an error.
func LoadAgent(path string) (Agent, error) {
	cfg := DefaultAgent()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Agent{}, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Agent{}, err
		}
	}
	applyAgentEnvOverrides(&cfg)
	return cfg, nil
}

func applyAgentEnvOverrides(cfg *Agent) {
	if v := os.Getenv("COORDCTL_AGENT_ID"); v != "" {
		cfg.AgentID = v
	}
	if v := os.Getenv("COORDCTL_AGENT_KIND"); v != "" {
		cfg.AgentKind = v
	}
	if v := os.Getenv("COORDCTL_AGENT_TEAM_ID"); v != "" {
		cfg.TeamID = v
	}
	if v := os.Getenv("COORDCTL_AGENT_PROJECT_ROOT"); v != "" {
		cfg.ProjectRoot = v
	}
	if v := os.Getenv("COORDCTL_AGENT_LOCK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LockTimeoutSec = n
		}
	}
	if v := os.Getenv("COORDCTL_AGENT_TASK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TaskTimeoutSec = n
		}
	}
	if v := os.Getenv("COORDCTL_AGENT_RATE_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateRequestsPerMinute = n
		}
	}
	if v := os.Getenv("COORDCTL_AGENT_RATE_RPD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateRequestsPerDay = n
		}
	}
	if v := os.Getenv("COORDCTL_AGENT_RATE_MAX_WAIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateMaxWaitSec = f
		}
	}
	if v := os.Getenv("COORDCTL_AGENT_EXECUTE_REAL"); v == "1" || v == "true" {
		cfg.ExecuteReal = true
	}
	if v := os.Getenv("COORDCTL_AGENT_BROKER_ENABLED"); v == "1" || v == "true" {
		cfg.BrokerEnabled = true
	}
	if v := os.Getenv("COORDCTL_AGENT_BROKER_URL"); v != "" {
		cfg.BrokerURL = v
	}
}

// --- Derived paths, matching the per-kind config.py's @property methods ---

// InboxDir is where this agent's own tasks arrive — project_root/inbox/
// <agent_kind>/<agent_id>, per sheets_agent/config.py's inbox_dir.
func (a Agent) InboxDir() string {
	return filepath.Join(a.ProjectRoot, "inbox", a.AgentKind, a.AgentID)
}

// OutboxDir is where this agent writes its reports — the same directory
// the Controller scans as its own inbox for this team/agent.
func (a Agent) OutboxDir() string {
	return filepath.Join(a.ProjectRoot, "controller", "inbox", a.TeamID, a.AgentID)
}

// DirectiveInboxDir is where this agent receives signed Controller
// directives — the same directory the Controller writes to as its own
// outbox for this team/agent.
func (a Agent) DirectiveInboxDir() string {
	return filepath.Join(a.ProjectRoot, "controller", "outbox", a.TeamID, a.AgentID)
}
func (a Agent) AuditDir() string {
	return filepath.Join(a.ProjectRoot, "audit", a.AgentKind, a.AgentID)
}
func (a Agent) LocksDir() string { return filepath.Join(a.ProjectRoot, "locks") }
func (a Agent) RateStateDir() string {
	return filepath.Join(a.ProjectRoot, "controller", "state", "rate_limits")
}
func (a Agent) HealthFile() string {
	return filepath.Join(a.ProjectRoot, "agents", a.AgentKind, a.AgentID, "HEALTH.md")
}
func (a Agent) PIDFile() string {
	return filepath.Join(a.ProjectRoot, "agents", a.AgentKind, a.AgentID, "agent.pid")
}

// --- Derived paths, matching config.py's @property methods ---

func (c Controller) InboxDir() string       { return filepath.Join(c.ProjectRoot, "controller", "inbox") }
func (c Controller) OutboxDir() string      { return filepath.Join(c.ProjectRoot, "controller", "outbox") }
func (c Controller) AuditDir() string       { return filepath.Join(c.ProjectRoot, "audit", "controller", c.ControllerID) }
func (c Controller) LocksDir() string       { return filepath.Join(c.ProjectRoot, "locks") }
func (c Controller) StateFile() string      { return filepath.Join(c.ProjectRoot, "orchestrator", "STATE.md") }
func (c Controller) StateDir() string       { return filepath.Join(c.ProjectRoot, "controller", "state") }
func (c Controller) RetryStateFile() string { return filepath.Join(c.StateDir(), "retry_state.json") }
func (c Controller) SystemHealthFile() string {
	return filepath.Join(c.StateDir(), "system_health.json")
}
func (c Controller) CandidatesDir() string { return filepath.Join(c.StateDir(), "candidates") }
func (c Controller) HealthFile() string    { return filepath.Join(c.ProjectRoot, "HEALTH.md") }
func (c Controller) ChangelogFile() string { return filepath.Join(c.ProjectRoot, "orchestrator", "CHANGELOG.md") }
func (c Controller) MistakeFile() string   { return filepath.Join(c.ProjectRoot, "orchestrator", "MISTAKES.md") }
func (c Controller) BackupDir() string     { return filepath.Join(c.ProjectRoot, "orchestrator", "backups") }
func (c Controller) HashLogFile() string   { return filepath.Join(c.AuditDir(), "hash_log.jsonl") }
func (c Controller) PIDFile() string       { return filepath.Join(c.StateDir(), "controller.pid") }
