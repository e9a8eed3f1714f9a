package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gitstamp/gitstamp/pkg/types"
)

const baselineDateLayout = "2006-01-02"

var baselineAgedMeta = types.RuleMetadata{
	ID:              "BASELINE_AGED",
	Description:     "Baseline entry has been present longer than allowed",
	DefaultSeverity: types.SeverityWarn,
	Category:        "baseline",
	Enabled:         true,
}

// BaselineEntry captures an accepted finding recorded at a point in time.
type BaselineEntry struct {
	Rule       string `json:"rule"`
	Field      string `json:"field,omitempty"`
	Introduced string `json:"introduced,omitempty"`
}

// Baseline holds accepted findings keyed by rule and field. Head names are
// not part of the key so one baseline serves every branch.
type Baseline struct {
	Entries []BaselineEntry
	index   map[string]BaselineEntry
}

// LoadBaseline loads a baseline JSON file. Missing files yield an empty baseline.
func LoadBaseline(path string) (*Baseline, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Baseline{index: map[string]BaselineEntry{}}, nil
		}
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return &Baseline{index: map[string]BaselineEntry{}}, nil
	}
	var entries []BaselineEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse baseline: %w", err)
	}
	bl := &Baseline{Entries: entries, index: make(map[string]BaselineEntry, len(entries))}
	for _, entry := range entries {
		bl.index[baselineKey(entry.Rule, entry.Field)] = entry
	}
	return bl, nil
}

// WriteBaseline records findings at path, stamping them with today's date.
// Entries already present in previous keep their introduced date.
func WriteBaseline(path string, findings []types.Finding, previous *Baseline, now time.Time) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("baseline path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create baseline dir: %w", err)
	}
	today := now.UTC().Format(baselineDateLayout)
	entries := make([]BaselineEntry, 0, len(findings))
	seen := map[string]struct{}{}
	for _, f := range findings {
		if f.Category == baselineAgedMeta.Category || f.Category == "waiver" {
			continue
		}
		key := baselineKey(f.RuleID, string(f.Field))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entry := BaselineEntry{Rule: f.RuleID, Field: string(f.Field), Introduced: today}
		if previous != nil {
			if old, ok := previous.index[key]; ok && old.Introduced != "" {
				entry.Introduced = old.Introduced
			}
		}
		entries = append(entries, entry)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	return nil
}

// Filter removes baselined findings. It returns the remaining findings,
// BASELINE_AGED findings for entries older than agingDays, and the
// suppressed findings.
func (b *Baseline) Filter(findings []types.Finding, agingDays int, now time.Time) ([]types.Finding, []types.Finding, []types.Finding) {
	if b == nil || len(b.index) == 0 {
		return findings, nil, nil
	}
	var threshold time.Time
	if agingDays > 0 {
		threshold = now.Add(-time.Duration(agingDays) * 24 * time.Hour)
	}
	var aged, suppressed []types.Finding
	result := make([]types.Finding, 0, len(findings))
	for _, f := range findings {
		entry, ok := b.index[baselineKey(f.RuleID, string(f.Field))]
		if !ok {
			result = append(result, f)
			continue
		}
		suppressed = append(suppressed, f)
		if threshold.IsZero() {
			continue
		}
		introduced, err := time.Parse(baselineDateLayout, entry.Introduced)
		if err != nil || !introduced.Before(threshold) {
			continue
		}
		aged = append(aged, types.Finding{
			RuleID:   baselineAgedMeta.ID,
			Message:  fmt.Sprintf("baseline entry for %s older than %d days", f.RuleID, agingDays),
			Severity: baselineAgedMeta.DefaultSeverity,
			Head:     f.Head,
			Field:    f.Field,
			Category: baselineAgedMeta.Category,
		})
	}
	return result, aged, suppressed
}

func baselineKey(rule, field string) string {
	return strings.ToLower(strings.TrimSpace(rule)) + "|" + strings.ToLower(strings.TrimSpace(field))
}
