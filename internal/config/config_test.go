package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controller.yaml")
	yamlContent := "controller_id: ctrl-test\nretry_max_per_task: 7\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ControllerID != "ctrl-test" {
		t.Fatalf("expected controller_id from YAML, got %q", cfg.ControllerID)
	}
	if cfg.RetryMaxPerTask != 7 {
		t.Fatalf("expected retry_max_per_task=7 from YAML, got %d", cfg.RetryMaxPerTask)
	}
	if cfg.LockTimeoutSec != 120 {
		t.Fatalf("expected default lock_timeout_seconds to survive, got %d", cfg.LockTimeoutSec)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ControllerID != "controller-01" {
		t.Fatalf("expected default controller id, got %q", cfg.ControllerID)
	}
}

func TestEnvOverrideWinsOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controller.yaml")
	if err := os.WriteFile(path, []byte("controller_id: ctrl-from-yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COORDCTL_ID", "ctrl-from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ControllerID != "ctrl-from-env" {
		t.Fatalf("expected env override to win, got %q", cfg.ControllerID)
	}
}

func TestDerivedPathsAreRootedAtProjectRoot(t *testing.T) {
	cfg := Default()
	cfg.ProjectRoot = "/srv/coordctl"

	if got := cfg.InboxDir(); got != "/srv/coordctl/controller/inbox" {
		t.Fatalf("unexpected inbox dir: %s", got)
	}
	if got := cfg.AuditDir(); got != "/srv/coordctl/audit/controller/controller-01" {
		t.Fatalf("unexpected audit dir: %s", got)
	}
}

func TestLoadAgentAppliesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	content := "agent_id: sheets-worker-02\nagent_kind: spreadsheet\nteam_id: sheets-team\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadAgent(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AgentID != "sheets-worker-02" {
		t.Fatalf("expected agent_id from YAML, got %q", cfg.AgentID)
	}
	if cfg.RateRequestsPerMinute != 60 {
		t.Fatalf("expected default rate_requests_per_minute to survive, got %d", cfg.RateRequestsPerMinute)
	}
}

func TestLoadAgentEnvOverrideWinsOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte("agent_id: agent-from-yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COORDCTL_AGENT_ID", "agent-from-env")
	cfg, err := LoadAgent(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AgentID != "agent-from-env" {
		t.Fatalf("expected env override to win, got %q", cfg.AgentID)
	}
}

func TestAgentDerivedPathsAreRootedAtProjectRoot(t *testing.T) {
	cfg := DefaultAgent()
	cfg.ProjectRoot = "/srv/coordctl"
	cfg.AgentKind = "spreadsheet"
	cfg.AgentID = "sheets-worker-01"
	cfg.TeamID = "sheets-team"

	if got := cfg.InboxDir(); got != "/srv/coordctl/inbox/spreadsheet/sheets-worker-01" {
		t.Fatalf("unexpected inbox dir: %s", got)
	}
	if got := cfg.OutboxDir(); got != "/srv/coordctl/controller/inbox/sheets-team/sheets-worker-01" {
		t.Fatalf("unexpected outbox dir: %s", got)
	}
	if got := cfg.DirectiveInboxDir(); got != "/srv/coordctl/controller/outbox/sheets-team/sheets-worker-01" {
		t.Fatalf("unexpected directive inbox dir: %s", got)
	}
}
