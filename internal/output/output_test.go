package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/gitstamp/gitstamp/internal/policy"
	"github.com/gitstamp/gitstamp/pkg/types"
)

func sampleSnapshot() types.Snapshot {
	return types.Snapshot{
		Metadata:    types.BuildMetadata{Head: "main", Commit: "v1.0-1-gdef4567", BuildTime: "2025-06-01T08:30:00Z"},
		Description: types.Description{Tag: "v1.0", Distance: 1, Abbrev: "def4567"},
		Root:        "/src/project",
	}
}

func sampleReport() policy.Report {
	meta := types.RuleMetadata{ID: "GS005", Description: "working tree must be clean", Category: "reproducibility"}
	finding := types.Finding{
		RuleID:   "GS005",
		Message:  "tracked files have uncommitted changes",
		Severity: types.SeverityWarn,
		Head:     "main",
		Field:    types.FieldCommit,
		Hint:     "commit or stash local changes",
	}
	return policy.Report{
		Snapshot:  sampleSnapshot(),
		Findings:  []types.Finding{finding},
		RuleIndex: map[string]types.RuleMetadata{meta.ID: meta},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(sampleReport(), FormatJSON, &buf); err != nil {
		t.Fatalf("write json: %v", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal json: %v", err)
	}
	findings, ok := payload["findings"].([]interface{})
	if !ok || len(findings) != 1 {
		t.Fatalf("expected 1 finding in json output")
	}
	first, ok := findings[0].(map[string]interface{})
	if !ok || first["hint"] != "commit or stash local changes" {
		t.Fatalf("expected hint in json finding, got %v", findings[0])
	}
	metadata, ok := payload["metadata"].(map[string]interface{})
	if !ok || metadata["commit"] != "v1.0-1-gdef4567" {
		t.Fatalf("expected metadata in json output, got %v", payload["metadata"])
	}
}

func TestWriteJSONEmptyFindings(t *testing.T) {
	var buf bytes.Buffer
	report := policy.Report{Snapshot: sampleSnapshot()}
	if err := Write(report, FormatJSON, &buf); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if !strings.Contains(buf.String(), `"findings": []`) {
		t.Fatalf("expected empty findings array, got %s", buf.String())
	}
}

func TestWriteTableNoFindings(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(policy.Report{}, FormatTable, &buf); err != nil {
		t.Fatalf("write table: %v", err)
	}
	if !strings.Contains(buf.String(), "No findings.") {
		t.Fatalf("expected no findings message, got %s", buf.String())
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(sampleReport(), "", &buf); err != nil {
		t.Fatalf("write table: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"| WARN", "GS005", "(commit or stash local changes)", "Summary: 1 findings (1 warn)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table output:\n%s", want, out)
		}
	}
}

func TestWriteSARIF(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(sampleReport(), FormatSARIF, &buf); err != nil {
		t.Fatalf("write sarif: %v", err)
	}
	var payload struct {
		Version string `json:"version"`
		Runs    []struct {
			Results []struct {
				RuleID string `json:"ruleId"`
				Level  string `json:"level"`
			} `json:"results"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal sarif: %v", err)
	}
	if payload.Version != "2.1.0" || len(payload.Runs) != 1 || len(payload.Runs[0].Results) != 1 {
		t.Fatalf("unexpected sarif payload: %s", buf.String())
	}
	if payload.Runs[0].Results[0].Level != "warning" {
		t.Fatalf("expected warning level, got %s", payload.Runs[0].Results[0].Level)
	}
}

func TestWriteUnsupportedFormat(t *testing.T) {
	if err := Write(sampleReport(), "xml", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestSeverityHelpers(t *testing.T) {
	findings := []types.Finding{{Severity: types.SeverityInfo}, {Severity: types.SeverityWarn}}
	if got := HighestSeverity(findings); got != types.SeverityWarn {
		t.Fatalf("expected warn, got %s", got)
	}
	if Exceeds(findings, types.SeverityError) {
		t.Fatalf("warn must not exceed error threshold")
	}
	if !Exceeds(findings, types.SeverityWarn) {
		t.Fatalf("warn must meet warn threshold")
	}
	if got := SummaryString(findings); got != "2 findings (1 warn, 1 info)" {
		t.Fatalf("unexpected summary %q", got)
	}
}
