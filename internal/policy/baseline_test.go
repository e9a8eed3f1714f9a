package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gitstamp/gitstamp/internal/config"
	"github.com/gitstamp/gitstamp/pkg/types"
)

func TestLoadBaselineMissingFile(t *testing.T) {
	bl, err := LoadBaseline(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if bl == nil || len(bl.Entries) != 0 {
		t.Fatalf("expected empty baseline, got %+v", bl)
	}
}

func TestLoadBaselineEmptyPath(t *testing.T) {
	bl, err := LoadBaseline("")
	if err != nil || bl != nil {
		t.Fatalf("expected nil baseline, got %+v, %v", bl, err)
	}
}

func TestLoadBaselineInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadBaseline(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWriteBaselineRoundTripKeepsIntroduced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "baseline.json")
	findings := []types.Finding{
		{RuleID: "GS005", Field: types.FieldCommit, Category: "hygiene"},
		{RuleID: "GS005", Field: types.FieldCommit, Category: "hygiene"},
		{RuleID: "WAIVER_EXPIRED", Category: "waiver"},
	}
	first := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	if err := WriteBaseline(path, findings, nil, first); err != nil {
		t.Fatalf("write: %v", err)
	}
	bl, err := LoadBaseline(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(bl.Entries) != 1 {
		t.Fatalf("expected one deduplicated entry, got %+v", bl.Entries)
	}

	findings = append(findings, types.Finding{RuleID: "GS004", Category: "release"})
	if err := WriteBaseline(path, findings, bl, first.AddDate(0, 2, 0)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	bl, err = LoadBaseline(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	introduced := map[string]string{}
	for _, e := range bl.Entries {
		introduced[e.Rule] = e.Introduced
	}
	if introduced["GS005"] != "2025-01-10" {
		t.Fatalf("expected GS005 to keep its date, got %q", introduced["GS005"])
	}
	if introduced["GS004"] != "2025-03-10" {
		t.Fatalf("expected GS004 stamped today, got %q", introduced["GS004"])
	}
}

func TestBaselineFilterAging(t *testing.T) {
	bl := &Baseline{index: map[string]BaselineEntry{
		baselineKey("GS005", "commit"): {Rule: "GS005", Field: "commit", Introduced: "2025-01-01"},
	}}
	findings := []types.Finding{
		{RuleID: "GS005", Field: types.FieldCommit, Head: "main"},
		{RuleID: "GS004", Head: "main"},
	}
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	remaining, aged, suppressed := bl.Filter(findings, 0, now)
	if len(remaining) != 1 || remaining[0].RuleID != "GS004" {
		t.Fatalf("unexpected remaining %v", ruleIDs(remaining))
	}
	if len(aged) != 0 || len(suppressed) != 1 {
		t.Fatalf("expected no aging, got aged=%d suppressed=%d", len(aged), len(suppressed))
	}

	_, aged, _ = bl.Filter(findings, 30, now)
	if len(aged) != 1 || aged[0].RuleID != "BASELINE_AGED" {
		t.Fatalf("expected BASELINE_AGED, got %v", ruleIDs(aged))
	}
}

func TestNilBaselineFilter(t *testing.T) {
	var bl *Baseline
	findings := []types.Finding{{RuleID: "GS004"}}
	remaining, aged, suppressed := bl.Filter(findings, 10, time.Now())
	if len(remaining) != 1 || aged != nil || suppressed != nil {
		t.Fatalf("nil baseline must pass findings through")
	}
}

func TestRunnerAppliesBaseline(t *testing.T) {
	bl := &Baseline{index: map[string]BaselineEntry{
		baselineKey("GS005", "commit"): {Rule: "GS005", Field: "commit"},
	}}
	runner := NewRunner(config.Defaults()).WithBaseline(bl, 0)
	report, err := runner.Run(context.Background(), lenientSnapshot())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, f := range report.Findings {
		if f.RuleID == "GS005" {
			t.Fatalf("expected GS005 suppressed, got %v", ruleIDs(report.Findings))
		}
	}
	if len(report.Suppressed) != 1 {
		t.Fatalf("expected one suppressed finding, got %d", len(report.Suppressed))
	}
	if _, ok := report.RuleIndex["BASELINE_AGED"]; !ok {
		t.Fatalf("expected BASELINE_AGED in rule index")
	}
}
