// Command controller runs the Controller's inbox-scan-and-dispatch cycle,
// either once (for cron-style invocation) or as a daemon polling on an
// interval, per spec.md §4.12. Flag style follows cmd/cliaimonitor/main.go.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coordctl/coordctl/internal/config"
	"github.com/coordctl/coordctl/internal/controller"
	"github.com/coordctl/coordctl/internal/dashboard"
	"github.com/coordctl/coordctl/internal/instance"
	"github.com/coordctl/coordctl/internal/logging"
)

var log = logging.New("controller-cmd")

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/controller.yaml", "Controller configuration file")
	team := flag.String("team", "", "Restrict one dispatch cycle to a single team")
	once := flag.Bool("once", false, "Run a single dispatch cycle and exit")
	interval := flag.Duration("interval", 10*time.Second, "Poll interval in daemon mode")
	dashboardAddr := flag.String("dashboard-addr", "", "Address to serve the read-only dashboard on (empty disables it)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *dashboardAddr != "" {
		cfg.DashboardAddr = *dashboardAddr
	}

	instMgr := instance.NewManager(cfg.PIDFile(), cfg.ProjectRoot, "coordctl-controller", dashboardPort(cfg.DashboardAddr))
	existing, err := instMgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to check for a running controller: %v\n", err)
		return 1
	}
	if existing != nil && existing.IsRunning {
		resolver := instance.NewConflictResolver(instMgr, instance.IsInteractive())
		if err := resolver.Resolve(existing); err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve controller instance conflict: %v\n", err)
			return 1
		}
	}
	if err := instMgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to acquire controller instance lock: %v\n", err)
		return 1
	}
	if err := instMgr.WritePIDFile(os.Getpid(), instMgr.GetPort(), cfg.ProjectRoot); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write controller PID file: %v\n", err)
		return 1
	}
	defer instMgr.RemovePIDFile()
	defer instMgr.ReleaseLock()
	if port := instMgr.GetPort(); port != dashboardPort(cfg.DashboardAddr) {
		cfg.DashboardAddr = fmt.Sprintf(":%d", port)
	}

	ctrl := controller.New(cfg)

	var dash *dashboard.Server
	if cfg.DashboardAddr != "" {
		dash = dashboard.New(cfg.DashboardAddr, ctrl)
		ctrl.AddNotifyChannel(dash)
		go func() {
			if err := dash.Start(); err != nil {
				log.Printf("dashboard server stopped: %v", err)
			}
		}()
		defer dash.Shutdown()
	}

	if *once {
		return runOnce(ctrl, *team)
	}

	return runDaemon(ctrl, *team, *interval)
}

// dashboardPort extracts the numeric port from a ":PORT"-style listen
// address for the instance manager's PID-file bookkeeping; an empty or
// unparseable address (dashboard disabled) yields 0.
func dashboardPort(addr string) int {
	port, err := strconv.Atoi(strings.TrimPrefix(addr, ":"))
	if err != nil {
		return 0
	}
	return port
}

func runOnce(ctrl *controller.Controller, team string) int {
	processed, err := ctrl.RunOnce(team)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dispatch cycle failed: %v\n", err)
		return 1
	}
	if processed {
		log.Printf("dispatch cycle processed at least one report")
	} else {
		log.Printf("dispatch cycle found nothing to process")
	}
	return 0
}

func runDaemon(ctrl *controller.Controller, team string, interval time.Duration) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("controller daemon started, polling every %s", interval)
	for {
		select {
		case <-sigCh:
			log.Printf("shutdown signal received, stopping")
			return 0
		case <-ticker.C:
			if _, err := ctrl.RunOnce(team); err != nil {
				log.Printf("dispatch cycle failed: %v", err)
			}
		}
	}
}
