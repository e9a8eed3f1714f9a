package policy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gitstamp/gitstamp/internal/config"
	"github.com/gitstamp/gitstamp/internal/rule"
	"github.com/gitstamp/gitstamp/pkg/plugin"
	"github.com/gitstamp/gitstamp/pkg/types"
)

// Report is the policy result collection.
type Report struct {
	Snapshot  types.Snapshot
	Findings  []types.Finding
	RuleIndex map[string]types.RuleMetadata

	// Suppressed holds findings hidden by the baseline.
	Suppressed []types.Finding
}

// Runner evaluates built-in rules and plugins against a snapshot.
type Runner struct {
	rules   []rule.Rule
	plugins []plugin.RulePlugin
	cfg     config.Config
	now     func() time.Time

	baseline  *Baseline
	agingDays int
}

// NewRunner creates a Runner with the provided configuration and plugins.
func NewRunner(cfg config.Config, plugins ...plugin.RulePlugin) *Runner {
	return &Runner{
		rules:   rule.DefaultRules(),
		plugins: plugins,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithBaseline hides findings recorded in b. Entries older than agingDays
// produce BASELINE_AGED findings; zero disables aging.
func (r *Runner) WithBaseline(b *Baseline, agingDays int) *Runner {
	r.baseline = b
	r.agingDays = agingDays
	return r
}

// Metadata lists every rule the runner can report, keyed by ID.
func (r *Runner) Metadata() map[string]types.RuleMetadata {
	index := map[string]types.RuleMetadata{
		waiverExpiredMeta.ID: waiverExpiredMeta,
		waiverInvalidMeta.ID: waiverInvalidMeta,
	}
	if r.baseline != nil {
		index[baselineAgedMeta.ID] = baselineAgedMeta
	}
	for _, rl := range r.rules {
		index[rl.Metadata.ID] = rl.Metadata
	}
	for _, p := range r.plugins {
		meta := p.Metadata()
		index[meta.ID] = meta
	}
	return index
}

// Run executes every enabled rule and applies waivers.
func (r *Runner) Run(ctx context.Context, snap types.Snapshot) (Report, error) {
	head := snap.Metadata.Head
	rctx := &rule.Context{Config: r.cfg, Snapshot: snap}
	var findings []types.Finding

	for _, rl := range r.rules {
		cfg, err := r.cfg.Resolve(rl.Metadata, head)
		if err != nil {
			return Report{}, err
		}
		if !cfg.Enabled {
			continue
		}
		findings = append(findings, rl.Check(rctx, cfg)...)
	}

	for _, p := range r.plugins {
		meta := p.Metadata()
		cfg, err := r.cfg.Resolve(meta, head)
		if err != nil {
			return Report{}, err
		}
		if !cfg.Enabled {
			continue
		}
		pluginFindings, err := p.Check(ctx, snap)
		if err != nil {
			return Report{}, fmt.Errorf("plugin %s: %w", meta.ID, err)
		}
		for i := range pluginFindings {
			if pluginFindings[i].RuleID == meta.ID && cfg.Severity != meta.DefaultSeverity {
				pluginFindings[i].Severity = cfg.Severity
			}
		}
		findings = append(findings, pluginFindings...)
	}

	now := r.now()
	filtered, extra := applyWaivers(r.cfg.Waivers, findings, head, now)
	findings = append(filtered, extra...)

	remaining, aged, suppressed := r.baseline.Filter(findings, r.agingDays, now)
	findings = append(remaining, aged...)

	sort.SliceStable(findings, func(i, j int) bool {
		si, sj := types.SeverityOrder[findings[i].Severity], types.SeverityOrder[findings[j].Severity]
		if si != sj {
			return si > sj
		}
		if findings[i].RuleID == findings[j].RuleID {
			return findings[i].Message < findings[j].Message
		}
		return findings[i].RuleID < findings[j].RuleID
	})

	return Report{Snapshot: snap, Findings: findings, RuleIndex: r.Metadata(), Suppressed: suppressed}, nil
}
