// Command agent runs one Agent's poll-process-health lifecycle, per
// spec.md §4.14. The -kind flag selects which of the five per-kind
// ReportGenerators the Runner uses; everything else is shared.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coordctl/coordctl/internal/agent"
	"github.com/coordctl/coordctl/internal/config"
	"github.com/coordctl/coordctl/internal/instance"
	"github.com/coordctl/coordctl/internal/logging"
)

var log = logging.New("agent-cmd")

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/agent.yaml", "Agent configuration file")
	kind := flag.String("kind", "", "Agent kind override (spreadsheet|auth|backend|metrics|ui)")
	once := flag.Bool("once", false, "Process a single task (if any) and exit")
	interval := flag.Duration("interval", 5*time.Second, "Poll interval in daemon mode")
	flag.Parse()

	cfg, err := config.LoadAgent(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *kind != "" {
		cfg.AgentKind = *kind
	}

	instMgr := instance.NewManager(cfg.PIDFile(), cfg.ProjectRoot, "coordctl-agent", 0)
	existing, err := instMgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to check for a running agent %s: %v\n", cfg.AgentID, err)
		return 1
	}
	if existing != nil && existing.IsRunning {
		resolver := instance.NewConflictResolver(instMgr, instance.IsInteractive())
		if err := resolver.Resolve(existing); err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve agent %s instance conflict: %v\n", cfg.AgentID, err)
			return 1
		}
	}
	if err := instMgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to acquire agent %s instance lock: %v\n", cfg.AgentID, err)
		return 1
	}
	if err := instMgr.WritePIDFile(os.Getpid(), instMgr.GetPort(), cfg.ProjectRoot); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write agent %s PID file: %v\n", cfg.AgentID, err)
		return 1
	}
	defer instMgr.RemovePIDFile()
	defer instMgr.ReleaseLock()

	runner := agent.New(cfg)

	if *once {
		processed, err := runner.RunOnce()
		if err != nil {
			fmt.Fprintf(os.Stderr, "run-once cycle failed: %v\n", err)
			return 1
		}
		if processed {
			log.Printf("processed one task")
		} else {
			log.Printf("no task found")
		}
		return 0
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	log.Printf("agent %s (%s) started, polling every %s", cfg.AgentID, cfg.AgentKind, *interval)
	for {
		select {
		case <-sigCh:
			log.Printf("shutdown signal received, stopping")
			return 0
		case <-ticker.C:
			if _, err := runner.RunOnce(); err != nil {
				log.Printf("poll cycle failed: %v", err)
			}
		}
	}
}
