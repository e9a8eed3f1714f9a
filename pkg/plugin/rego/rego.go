package rego

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	opaast "github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/gitstamp/gitstamp/pkg/plugin"
	"github.com/gitstamp/gitstamp/pkg/types"
)

// Loader discovers and instantiates Rego-backed plugins.
type Loader struct {
	files   []string
	missing []string
}

// NewLoader creates a Loader for the provided file or directory paths.
func NewLoader(paths ...string) *Loader {
	unique := make(map[string]struct{}, len(paths))
	var normalized []string
	var missing []string
	add := func(path string) {
		if _, seen := unique[path]; seen {
			return
		}
		unique[path] = struct{}{}
		normalized = append(normalized, path)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		info, statErr := os.Stat(abs)
		if statErr != nil {
			missing = append(missing, abs)
			continue
		}
		if !info.IsDir() {
			if strings.HasSuffix(abs, ".rego") {
				add(abs)
			}
			continue
		}
		_ = filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if strings.HasSuffix(d.Name(), ".rego") && !strings.HasSuffix(d.Name(), "_test.rego") {
				add(path)
			}
			return nil
		})
	}
	sort.Strings(normalized)
	sort.Strings(missing)
	return &Loader{files: normalized, missing: missing}
}

// Files returns the discovered module paths.
func (l *Loader) Files() []string {
	return append([]string(nil), l.files...)
}

// MetadataRecord describes a discovered plugin rule.
type MetadataRecord struct {
	Source   string
	Metadata types.RuleMetadata
}

// DiscoverMetadata loads metadata for the provided plugin paths without
// retaining the instantiated plugins. Missing paths are returned for caller
// awareness.
func DiscoverMetadata(ctx context.Context, paths ...string) ([]MetadataRecord, []string, error) {
	loader := NewLoader(paths...)
	records := make([]MetadataRecord, 0, len(loader.files))
	for _, file := range loader.files {
		p, err := loadFile(ctx, file)
		if err != nil {
			return nil, loader.missing, fmt.Errorf("load rego plugin %s: %w", file, err)
		}
		records = append(records, MetadataRecord{Source: p.source, Metadata: p.meta})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Metadata.ID == records[j].Metadata.ID {
			return records[i].Source < records[j].Source
		}
		return records[i].Metadata.ID < records[j].Metadata.ID
	})
	return records, loader.missing, nil
}

// Load instantiates RulePlugin implementations from the loader's files.
func (l *Loader) Load(ctx context.Context) ([]plugin.RulePlugin, error) {
	if len(l.missing) > 0 {
		return nil, fmt.Errorf("missing plugin paths: %s", strings.Join(l.missing, ", "))
	}
	plugins := make([]plugin.RulePlugin, 0, len(l.files))
	for _, file := range l.files {
		p, err := loadFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("load rego plugin %s: %w", file, err)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

type regoPlugin struct {
	source       string
	meta         types.RuleMetadata
	denyQuery    rego.PreparedEvalQuery
	appliesQuery *rego.PreparedEvalQuery
}

func (p *regoPlugin) Metadata() types.RuleMetadata {
	return p.meta
}

func (p *regoPlugin) Check(ctx context.Context, snap types.Snapshot) ([]types.Finding, error) {
	input := SnapshotInput(snap)

	if p.appliesQuery != nil {
		rs, err := p.appliesQuery.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return nil, fmt.Errorf("evaluate applies: %w", err)
		}
		matched := false
		for _, result := range rs {
			for _, exp := range result.Expressions {
				if b, ok := exp.Value.(bool); ok && b {
					matched = true
				}
			}
		}
		if !matched {
			return nil, nil
		}
	}

	rs, err := p.denyQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluate deny: %w", err)
	}
	var findings []types.Finding
	for _, result := range rs {
		for _, exp := range result.Expressions {
			entries, err := extractFindings(exp.Value)
			if err != nil {
				return nil, err
			}
			for _, entry := range entries {
				findings = append(findings, mapToFinding(entry, p.meta, snap))
			}
		}
	}
	return findings, nil
}

func loadFile(ctx context.Context, path string) (*regoPlugin, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}

	module, err := opaast.ParseModule(path, string(source))
	if err != nil {
		return nil, fmt.Errorf("parse module: %w", err)
	}

	compiler, err := opaast.CompileModules(map[string]string{path: string(source)})
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}

	pkgRef := module.Package.Path.String()

	metadataQuery, err := rego.New(
		rego.Compiler(compiler),
		rego.Query(pkgRef+".metadata"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare metadata query: %w", err)
	}

	denyQuery, err := rego.New(
		rego.Compiler(compiler),
		rego.Query(pkgRef+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare deny query: %w", err)
	}

	var appliesQuery *rego.PreparedEvalQuery
	if hasRule(module, "applies") {
		prepared, err := rego.New(
			rego.Compiler(compiler),
			rego.Query(pkgRef+".applies"),
		).PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("prepare applies query: %w", err)
		}
		appliesQuery = &prepared
	}

	meta, err := evaluateMetadata(ctx, metadataQuery)
	if err != nil {
		return nil, err
	}

	return &regoPlugin{source: path, meta: meta, denyQuery: denyQuery, appliesQuery: appliesQuery}, nil
}

// SnapshotInput is the document exposed to policies as input.
func SnapshotInput(snap types.Snapshot) map[string]interface{} {
	degraded := make([]interface{}, 0, len(snap.Degraded))
	for _, f := range snap.DegradedFields() {
		degraded = append(degraded, string(f))
	}
	desc := snap.Description
	return map[string]interface{}{
		"head":       snap.Metadata.Head,
		"commit":     snap.Metadata.Commit,
		"build_time": snap.Metadata.BuildTime,
		"stamp":      snap.Metadata.Stamp(),
		"root":       snap.Root,
		"tag":        desc.Tag,
		"distance":   desc.Distance,
		"hash":       desc.Hash,
		"abbrev":     desc.Abbrev,
		"exact":      desc.Exact,
		"dirty":      desc.Dirty,
		"degraded":   degraded,
	}
}

func hasRule(module *opaast.Module, name string) bool {
	for _, rule := range module.Rules {
		if rule.Head.Name.String() == name {
			return true
		}
	}
	return false
}

func evaluateMetadata(ctx context.Context, query rego.PreparedEvalQuery) (types.RuleMetadata, error) {
	rs, err := query.Eval(ctx)
	if err != nil {
		return types.RuleMetadata{}, fmt.Errorf("evaluate metadata: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return types.RuleMetadata{}, fmt.Errorf("metadata query returned no results")
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return types.RuleMetadata{}, fmt.Errorf("metadata must be an object")
	}
	meta := types.RuleMetadata{Enabled: true, DefaultSeverity: types.SeverityWarn}
	id, _ := obj["id"].(string)
	if id == "" {
		return types.RuleMetadata{}, fmt.Errorf("metadata.id is required")
	}
	meta.ID = id
	if desc, ok := obj["description"].(string); ok {
		meta.Description = desc
	}
	if category, ok := obj["category"].(string); ok {
		meta.Category = category
	}
	if help, ok := obj["help_url"].(string); ok {
		meta.HelpURL = help
	}
	if enabled, ok := obj["enabled"].(bool); ok {
		meta.Enabled = enabled
	}
	if severity, ok := obj["severity"].(string); ok {
		sev := types.Severity(strings.ToLower(severity))
		if _, known := types.SeverityOrder[sev]; !known {
			return types.RuleMetadata{}, fmt.Errorf("metadata.severity %q is not info|warn|error", severity)
		}
		meta.DefaultSeverity = sev
	}
	return meta, nil
}

func extractFindings(value interface{}) ([]map[string]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			switch typed := item.(type) {
			case map[string]interface{}:
				out = append(out, typed)
			case string:
				out = append(out, map[string]interface{}{"message": typed})
			default:
				return nil, fmt.Errorf("finding must be object or string, got %T", item)
			}
		}
		return out, nil
	case map[string]interface{}:
		return []map[string]interface{}{v}, nil
	default:
		return nil, fmt.Errorf("deny query must return objects or array of objects, got %T", value)
	}
}

func mapToFinding(raw map[string]interface{}, meta types.RuleMetadata, snap types.Snapshot) types.Finding {
	finding := types.Finding{
		RuleID:   meta.ID,
		Severity: meta.DefaultSeverity,
		Message:  "violation",
		Head:     snap.Metadata.Head,
		Category: meta.Category,
		HelpURL:  meta.HelpURL,
	}
	if msg, ok := raw["message"].(string); ok && msg != "" {
		finding.Message = msg
	}
	if ruleID, ok := raw["rule_id"].(string); ok && ruleID != "" {
		finding.RuleID = ruleID
	}
	if severity, ok := raw["severity"].(string); ok && severity != "" {
		finding.Severity = types.Severity(strings.ToLower(severity))
	}
	if field, ok := raw["field"].(string); ok && field != "" {
		finding.Field = types.Field(field)
	}
	if cat, ok := raw["category"].(string); ok && cat != "" {
		finding.Category = cat
	}
	if help, ok := raw["help_url"].(string); ok && help != "" {
		finding.HelpURL = help
	}
	if hint, ok := raw["hint"].(string); ok && hint != "" {
		finding.Hint = hint
	}
	return finding
}
