package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gitstamp/gitstamp/internal/policy"
	regoplugin "github.com/gitstamp/gitstamp/pkg/plugin/rego"
)

type ruleRow struct {
	Rule        string `json:"rule"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description"`
	HelpURL     string `json:"helpUrl,omitempty"`
	Source      string `json:"source"`
}

func runRules(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "list" {
		if len(args) > 0 {
			args = args[1:]
		}
		return runRulesList(args, stdout, stderr)
	}
	fmt.Fprintln(stderr, "Usage: gitstamp rules list [flags]")
	return 2
}

func runRulesList(args []string, stdout, stderr io.Writer) int {
	g := newFlagSet("rules list", stderr)
	format := g.fs.StringP("format", "o", "table", "Output format: table|json")
	policies := g.fs.StringSlice("policy", nil, "Rego policy file or directory (repeatable)")
	if ok, code := g.parse(args, stdout, stderr); !ok {
		return code
	}
	a, err := g.setup(stderr)
	if err != nil {
		return reportSetupError(stderr, err)
	}

	sources := map[string]string{}
	var paths []string
	for _, p := range a.cfg.Policies {
		paths = append(paths, a.configRelative(p))
	}
	for _, p := range *policies {
		resolved, err := ResolvePath(p)
		if err != nil {
			printError(stderr, "policy path", err)
			return 2
		}
		paths = append(paths, resolved)
	}
	if len(paths) > 0 {
		records, missing, err := regoplugin.DiscoverMetadata(context.Background(), paths...)
		if err != nil {
			printError(stderr, "plugin load", err)
			return 2
		}
		if len(missing) > 0 {
			printError(stderr, "policy path", fmt.Errorf("missing: %s", strings.Join(missing, ", ")))
			return 2
		}
		wd, _ := os.Getwd()
		for _, rec := range records {
			source := rec.Source
			if rel, relErr := filepath.Rel(wd, source); relErr == nil && wd != "" {
				source = rel
			}
			sources[rec.Metadata.ID] = source
		}
	}

	plugins, err := a.loadPlugins(context.Background(), *policies)
	if err != nil {
		printError(stderr, "plugin load", err)
		return 2
	}
	index := policy.NewRunner(a.cfg, plugins...).Metadata()

	// Rules resolve against the current head so branch overrides show up.
	head := ""
	if meta, err := a.resolver.Resolve(); err == nil {
		head = meta.Head
	} else {
		a.logger.Debug().Err(err).Msg("listing rules without branch overrides")
	}

	rows := make([]ruleRow, 0, len(index))
	for id, meta := range index {
		configured, err := a.cfg.Resolve(meta, head)
		if err != nil {
			printError(stderr, "config", err)
			return 2
		}
		source := "builtin"
		if s, ok := sources[id]; ok {
			source = s
		}
		rows = append(rows, ruleRow{
			Rule:        id,
			Severity:    string(configured.Severity),
			Enabled:     configured.Enabled,
			Category:    meta.Category,
			Description: meta.Description,
			HelpURL:     meta.HelpURL,
			Source:      source,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Rule < rows[j].Rule })

	switch strings.ToLower(*format) {
	case "", "table":
		if err := renderRuleTable(rows, stdout); err != nil {
			printError(stderr, "output", err)
			return 2
		}
		return 0
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			printError(stderr, "output", err)
			return 2
		}
		return 0
	default:
		printError(stderr, "format", fmt.Errorf("unsupported format %q", *format))
		return 2
	}
}

func renderRuleTable(rows []ruleRow, w io.Writer) error {
	headers := []string{"Rule", "Severity", "Enabled", "Category", "Description", "Source"}
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	data := make([][]string, 0, len(rows))
	for _, row := range rows {
		enabled := "yes"
		if !row.Enabled {
			enabled = "no"
		}
		entry := []string{row.Rule, strings.ToUpper(row.Severity), enabled, row.Category, row.Description, row.Source}
		data = append(data, entry)
		for i, cell := range entry {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	separator := make([]string, len(widths))
	for i, width := range widths {
		separator[i] = strings.Repeat("-", width+2)
	}
	line := func(values []string) string {
		var b strings.Builder
		b.WriteString("|")
		for i, width := range widths {
			fmt.Fprintf(&b, " %-*s ", width, values[i])
			b.WriteString("|")
		}
		b.WriteString("\n")
		return b.String()
	}
	sep := "+" + strings.Join(separator, "+") + "+"
	if _, err := fmt.Fprintln(w, sep); err != nil {
		return err
	}
	if _, err := io.WriteString(w, line(headers)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, sep); err != nil {
		return err
	}
	for _, row := range data {
		if _, err := io.WriteString(w, line(row)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, sep); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nTotal: %d rules\n", len(rows))
	return err
}
