package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gitstamp/gitstamp/internal/policy"
	"github.com/gitstamp/gitstamp/pkg/types"
)

// Report formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// Write renders the report to the writer using the requested format.
func Write(report policy.Report, format string, w io.Writer) error {
	switch strings.ToLower(format) {
	case "", FormatTable:
		return writeTable(report, w)
	case FormatJSON:
		return writeJSON(report, w)
	case FormatSARIF:
		return writeSARIF(report, w)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeTable(report policy.Report, w io.Writer) error {
	if len(report.Findings) == 0 {
		if _, err := fmt.Fprintln(w, "No findings."); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\nSummary: %s\n", SummaryString(report.Findings))
		return err
	}
	headers := []string{"Severity", "Rule", "Head", "Field", "Message"}
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	rows := make([][]string, 0, len(report.Findings))
	for _, f := range report.Findings {
		severity := strings.ToUpper(string(f.Severity))
		if severity == "" {
			severity = "INFO"
		}
		message := f.Message
		if f.Hint != "" {
			message += " (" + f.Hint + ")"
		}
		row := []string{severity, f.RuleID, f.Head, string(f.Field), message}
		rows = append(rows, row)
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	separator := buildTableSeparator(widths)
	if _, err := fmt.Fprintln(w, separator); err != nil {
		return err
	}
	if err := writeTableRow(w, headers, widths); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, separator); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeTableRow(w, row, widths); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, separator); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nSummary: %s\n", SummaryString(report.Findings))
	return err
}

func buildTableSeparator(widths []int) string {
	parts := make([]string, len(widths))
	for i, width := range widths {
		parts[i] = strings.Repeat("-", width+2)
	}
	return "+" + strings.Join(parts, "+") + "+"
}

func writeTableRow(w io.Writer, values []string, widths []int) error {
	var b strings.Builder
	b.WriteString("|")
	for i, width := range widths {
		fmt.Fprintf(&b, " %-*s ", width, values[i])
		b.WriteString("|")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeJSON(report policy.Report, w io.Writer) error {
	payload := struct {
		Metadata types.BuildMetadata           `json:"metadata"`
		Degraded map[types.Field]string        `json:"degraded,omitempty"`
		Findings []types.Finding               `json:"findings"`
		Rules    map[string]types.RuleMetadata `json:"rules"`
	}{
		Metadata: report.Snapshot.Metadata,
		Degraded: report.Snapshot.Degraded,
		Findings: report.Findings,
		Rules:    report.RuleIndex,
	}
	if payload.Findings == nil {
		payload.Findings = []types.Finding{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID     string                 `json:"ruleId"`
	Level      string                 `json:"level"`
	Message    sarifMessage           `json:"message"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

type sarifRule struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	ShortDesc sarifMessage `json:"shortDescription"`
	HelpURI   string       `json:"helpUri,omitempty"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRun struct {
	Tool struct {
		Driver sarifDriver `json:"driver"`
	} `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

var sarifLevels = map[types.Severity]string{
	types.SeverityInfo:  "note",
	types.SeverityWarn:  "warning",
	types.SeverityError: "error",
}

func writeSARIF(report policy.Report, w io.Writer) error {
	ruleIDs := make([]string, 0, len(report.RuleIndex))
	for id := range report.RuleIndex {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)

	run := sarifRun{Results: make([]sarifResult, 0, len(report.Findings))}
	run.Tool.Driver = sarifDriver{
		Name:           "gitstamp",
		InformationURI: "https://github.com/gitstamp/gitstamp",
		Rules:          make([]sarifRule, 0, len(ruleIDs)),
	}
	for _, id := range ruleIDs {
		meta := report.RuleIndex[id]
		run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule{
			ID:        meta.ID,
			Name:      meta.Category,
			ShortDesc: sarifMessage{Text: meta.Description},
			HelpURI:   meta.HelpURL,
		})
	}
	for _, f := range report.Findings {
		level, ok := sarifLevels[f.Severity]
		if !ok {
			level = "note"
		}
		props := map[string]interface{}{"head": f.Head}
		if f.Field != "" {
			props["field"] = string(f.Field)
		}
		if f.Hint != "" {
			props["hint"] = f.Hint
		}
		run.Results = append(run.Results, sarifResult{
			RuleID:     f.RuleID,
			Level:      level,
			Message:    sarifMessage{Text: f.Message},
			Properties: props,
		})
	}

	payload := sarifLog{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs:    []sarifRun{run},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// HighestSeverity returns the highest severity in findings.
func HighestSeverity(findings []types.Finding) types.Severity {
	highest := types.SeverityInfo
	for _, f := range findings {
		highest = types.HigherSeverity(highest, f.Severity)
	}
	return highest
}

// Exceeds reports whether any finding is at or above threshold.
func Exceeds(findings []types.Finding, threshold types.Severity) bool {
	limit := types.SeverityOrder[threshold]
	for _, f := range findings {
		if types.SeverityOrder[f.Severity] >= limit {
			return true
		}
	}
	return false
}

// SummaryString generates a short textual summary.
func SummaryString(findings []types.Finding) string {
	if len(findings) == 0 {
		return "0 findings"
	}
	counts := map[types.Severity]int{}
	for _, f := range findings {
		counts[f.Severity]++
	}
	keys := []types.Severity{types.SeverityError, types.SeverityWarn, types.SeverityInfo}
	var parts []string
	for _, key := range keys {
		if counts[key] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[key], key))
		}
	}
	return fmt.Sprintf("%d findings (%s)", len(findings), strings.Join(parts, ", "))
}
