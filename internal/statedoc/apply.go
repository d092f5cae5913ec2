package statedoc

import (
	"strconv"
	"time"
)

const maxChangeHistory = 10

// Apply mutates doc in place by applying each change, appending one
// change-history entry per applied change (trimmed to the last
// maxChangeHistory), and updating LastUpdated. Validation is the caller's
// responsibility (see internal/statemgr); Apply assumes every change
// targets a known section.
func Apply(doc *Document, changes []Change) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	for _, ch := range changes {
		if ch.Section == "system_metrics" {
			if doc.SystemMetrics == nil {
				doc.SystemMetrics = map[string]any{}
			}
			doc.SystemMetrics[ch.Column] = coerceMetric(ch.NewValue)
			appendHistory(doc, now, ch)
			continue
		}

		keyCol, ok := sectionKeyColumn[ch.Section]
		if !ok {
			continue
		}
		rows := sectionRows(doc, ch.Section)
		if rows == nil {
			continue
		}

		target := findRow(*rows, keyCol, ch.Field)
		if target != nil {
			target[ch.Column] = ch.NewValue
		} else {
			*rows = append(*rows, Row{keyCol: ch.Field, ch.Column: ch.NewValue})
		}

		appendHistory(doc, now, ch)
	}

	doc.LastUpdated = now
	if doc.Frontmatter == nil {
		doc.Frontmatter = map[string]string{}
	}
	if len(now) >= 10 {
		doc.Frontmatter["last_updated"] = now[:10]
	}
}

func appendHistory(doc *Document, timestamp string, ch Change) {
	entry := Row{
		"Timestamp":  timestamp,
		"Changed By": ch.TriggeredBy,
		"Field":      ch.Section + "." + ch.Field + "." + ch.Column,
		"Old Value":  ch.OldValue,
		"New Value":  ch.NewValue,
	}
	doc.ChangeHistory = append(doc.ChangeHistory, entry)
	if len(doc.ChangeHistory) > maxChangeHistory {
		doc.ChangeHistory = doc.ChangeHistory[len(doc.ChangeHistory)-maxChangeHistory:]
	}
}

// coerceMetric tries int, then float, falling back to the raw string —
// mirroring state_processor.py's _coerce_metric.
func coerceMetric(value string) any {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
