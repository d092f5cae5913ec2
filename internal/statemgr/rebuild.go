package statemgr

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coordctl/coordctl/internal/statedoc"
)

type rawReport struct {
	Agent   string `json:"agent"`
	Status  string `json:"status"`
	TaskID  string `json:"task_id"`
	TeamID  string `json:"team_id"`
	Team    string `json:"team"`
	Metrics struct {
		CostEUR   float64 `json:"cost_eur"`
		TokensIn  int64   `json:"tokens_in"`
		TokensOut int64   `json:"tokens_out"`
	} `json:"metrics"`
	TimestampUTC string `json:"timestamp_utc"`
}

// Rebuild walks inboxRoot for report files (active and already-processed),
// sorted by filename so replay order matches arrival order, and projects
// each onto a fresh initial document. Returns the rebuilt document and the
// count of reports replayed.
func (m *Manager) Rebuild(inboxRoot string) (statedoc.Document, int, error) {
	now := time.Now().UTC()
	doc := statedoc.NewEmpty(now.Format(time.RFC3339), now.Format("2006-01-02"))

	var paths []string
	err := filepath.Walk(inboxRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if shouldSkipRebuildFile(info.Name()) || strings.Contains(info.Name(), "_self_report") {
			return nil
		}
		if rel, relErr := filepath.Rel(inboxRoot, path); relErr == nil && strings.Contains(rel, "example") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return statedoc.Document{}, 0, err
	}
	sort.Slice(paths, func(i, j int) bool {
		bi, bj := filepath.Base(paths[i]), filepath.Base(paths[j])
		if bi != bj {
			return bi < bj
		}
		return paths[i] < paths[j]
	})

	replayed := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("rebuild: skipping unreadable report %s: %v", path, err)
			continue
		}
		var raw rawReport
		if err := json.Unmarshal(data, &raw); err != nil {
			log.Printf("rebuild: skipping unparsable report %s: %v", path, err)
			continue
		}

		team := raw.TeamID
		if team == "" {
			team = raw.Team
		}
		statedoc.ApplyReplay(&doc, statedoc.ReplayReport{
			Agent:     raw.Agent,
			Status:    raw.Status,
			TaskID:    raw.TaskID,
			Timestamp: raw.TimestampUTC,
			TeamName:  team,
			CostEUR:   raw.Metrics.CostEUR,
			TokensIn:  raw.Metrics.TokensIn,
			TokensOut: raw.Metrics.TokensOut,
		})
		replayed++
	}

	statedoc.FinalizeRebuild(&doc)
	return doc, replayed, nil
}

// shouldSkipRebuildFile allows replaying both active and ".processed.json"
// reports during rebuild (spec.md §4.11's "both active and archived"),
// unlike the live inbox scan which skips processed ones.
func shouldSkipRebuildFile(name string) bool {
	if !strings.HasSuffix(name, ".json") {
		return true
	}
	return strings.HasSuffix(name, ".hash")
}
