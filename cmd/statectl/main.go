// Command statectl is an admin CLI over STATE.md: verify its integrity
// hash and internal consistency, rebuild it from the inbox report history,
// back it up, or restore it from a prior backup. Adapted from
// cmd/dbctl/main.go's -action flag dispatch.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coordctl/coordctl/internal/config"
	"github.com/coordctl/coordctl/internal/hashmgr"
	"github.com/coordctl/coordctl/internal/lock"
	"github.com/coordctl/coordctl/internal/statemgr"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/controller.yaml", "Controller configuration file")
	action := flag.String("action", "", "Action to perform: verify, rebuild, backup, restore")
	backupPath := flag.String("backup-file", "", "Backup file path (required for restore)")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	if *action == "" {
		fmt.Fprintf(os.Stderr, "Usage: statectl -config <path> -action <action> [-backup-file <path>] [-json]\n")
		fmt.Fprintf(os.Stderr, "Actions: verify, rebuild, backup, restore\n")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	backend := lock.NewFileBackend(cfg.LocksDir())
	lockMgr := lock.New(backend, "statectl_", "statectl", time.Duration(cfg.LockTimeoutSec)*time.Second, cfg.LockMaxRetries, 2*time.Second)
	hasher := hashmgr.New(cfg.HashLogFile())
	mgr := statemgr.New(cfg.StateFile(), cfg.BackupDir(), cfg.HealthFile(), cfg.ChangelogFile(), cfg.MistakeFile(), lockMgr, hasher)

	switch *action {
	case "verify":
		return actionVerify(mgr, *jsonOutput)
	case "rebuild":
		return actionRebuild(mgr, cfg.InboxDir(), *jsonOutput)
	case "backup":
		return actionBackup(mgr, *jsonOutput)
	case "restore":
		if *backupPath == "" {
			fmt.Fprintf(os.Stderr, "restore requires -backup-file\n")
			return 1
		}
		return actionRestore(mgr, *backupPath, *jsonOutput)
	default:
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", *action)
		return 1
	}
}

func actionVerify(mgr *statemgr.Manager, jsonOutput bool) int {
	result, err := mgr.VerifyIntegrity()
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
		return 1
	}
	if jsonOutput {
		json.NewEncoder(os.Stdout).Encode(result)
	} else if result.OK {
		fmt.Println("STATE.md: OK")
	} else {
		fmt.Println("STATE.md: FAILED")
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	if !result.OK {
		return 1
	}
	return 0
}

func actionRebuild(mgr *statemgr.Manager, inboxDir string, jsonOutput bool) int {
	doc, count, err := mgr.Rebuild(inboxDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		return 1
	}
	path, err := mgr.SaveState(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "saving rebuilt state failed: %v\n", err)
		return 1
	}
	if jsonOutput {
		json.NewEncoder(os.Stdout).Encode(map[string]any{"reports_replayed": count, "path": path})
	} else {
		fmt.Printf("rebuilt STATE.md from %d reports -> %s\n", count, path)
	}
	return 0
}

func actionBackup(mgr *statemgr.Manager, jsonOutput bool) int {
	path, err := mgr.BackupState()
	if err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		return 1
	}
	if jsonOutput {
		json.NewEncoder(os.Stdout).Encode(map[string]string{"path": path})
	} else {
		fmt.Printf("backed up STATE.md -> %s\n", path)
	}
	return 0
}

func actionRestore(mgr *statemgr.Manager, backupPath string, jsonOutput bool) int {
	if err := mgr.RestoreState(backupPath); err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		return 1
	}
	if jsonOutput {
		json.NewEncoder(os.Stdout).Encode(map[string]string{"restored_from": backupPath})
	} else {
		fmt.Printf("restored STATE.md from %s\n", backupPath)
	}
	return 0
}
