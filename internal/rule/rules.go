package rule

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/gitstamp/gitstamp/internal/config"
	"github.com/gitstamp/gitstamp/pkg/types"
)

// Context provides data for rule evaluation.
type Context struct {
	Config   config.Config
	Snapshot types.Snapshot
}

// Rule is a policy rule definition.
type Rule struct {
	Metadata types.RuleMetadata
	Check    func(*Context, types.ConfiguredRule) []types.Finding
}

// DefaultRules returns all built-in rules.
func DefaultRules() []Rule {
	return []Rule{
		ruleFieldResolved("GS001", types.FieldHead, "head must resolve to a branch or tag name"),
		ruleFieldResolved("GS002", types.FieldCommit, "commit descriptor must resolve"),
		ruleFieldResolved("GS003", types.FieldBuildTime, "build time must resolve"),
		ruleReleaseFromTag(),
		ruleCleanTree(),
		ruleDetachedHead(),
		ruleSemverTag(),
	}
}

var hints = map[types.Field]string{
	types.FieldHead:      "check out a branch, or tag the detached commit",
	types.FieldCommit:    "create at least one commit before building",
	types.FieldBuildTime: "check the system clock",
}

func ruleFieldResolved(id string, field types.Field, description string) Rule {
	meta := types.RuleMetadata{
		ID:              id,
		Description:     description,
		DefaultSeverity: types.SeverityError,
		Category:        "resolution",
		Enabled:         true,
	}
	return Rule{
		Metadata: meta,
		Check: func(ctx *Context, cfg types.ConfiguredRule) []types.Finding {
			reason, degraded := ctx.Snapshot.Degraded[field]
			if !degraded {
				return nil
			}
			builder := types.FindingBuilder{Rule: cfg, Head: ctx.Snapshot.Metadata.Head}
			finding := builder.NewFinding(
				fmt.Sprintf("%s fell back to %q: %s", field, ctx.Snapshot.Metadata.Value(field), reason),
				field,
			)
			finding.Hint = hints[field]
			return []types.Finding{finding}
		},
	}
}

func ruleReleaseFromTag() Rule {
	meta := types.RuleMetadata{
		ID:              "GS004",
		Description:     "release branches must build from an exact tag",
		DefaultSeverity: types.SeverityWarn,
		Category:        "release",
		Enabled:         true,
	}
	return Rule{
		Metadata: meta,
		Check: func(ctx *Context, cfg types.ConfiguredRule) []types.Finding {
			snap := ctx.Snapshot
			if snap.IsDegraded(types.FieldHead) || snap.IsDegraded(types.FieldCommit) {
				return nil
			}
			head := snap.Metadata.Head
			if !ctx.Config.IsReleaseBranch(head) || snap.Description.Exact {
				return nil
			}
			builder := types.FindingBuilder{Rule: cfg, Head: head}
			finding := builder.NewFinding(
				fmt.Sprintf("release branch %q builds untagged commit %s", head, snap.Metadata.Commit),
				types.FieldCommit,
			)
			finding.Hint = "tag the release commit before building"
			return []types.Finding{finding}
		},
	}
}

func ruleCleanTree() Rule {
	meta := types.RuleMetadata{
		ID:              "GS005",
		Description:     "working tree must be clean",
		DefaultSeverity: types.SeverityWarn,
		Category:        "reproducibility",
		Enabled:         true,
	}
	return Rule{
		Metadata: meta,
		Check: func(ctx *Context, cfg types.ConfiguredRule) []types.Finding {
			if !ctx.Snapshot.Description.Dirty {
				return nil
			}
			builder := types.FindingBuilder{Rule: cfg, Head: ctx.Snapshot.Metadata.Head}
			finding := builder.NewFinding("tracked files have uncommitted changes", types.FieldCommit)
			finding.Hint = "commit or stash local changes"
			return []types.Finding{finding}
		},
	}
}

// A detached checkout at a tag reports the tag as head.
func ruleDetachedHead() Rule {
	meta := types.RuleMetadata{
		ID:              "GS006",
		Description:     "head should be a branch rather than a detached tag checkout",
		DefaultSeverity: types.SeverityInfo,
		Category:        "best-practice",
		Enabled:         true,
	}
	return Rule{
		Metadata: meta,
		Check: func(ctx *Context, cfg types.ConfiguredRule) []types.Finding {
			snap := ctx.Snapshot
			if snap.IsDegraded(types.FieldHead) {
				return nil
			}
			desc := snap.Description
			if !desc.Exact || desc.Tag == "" || desc.Tag != snap.Metadata.Head {
				return nil
			}
			builder := types.FindingBuilder{Rule: cfg, Head: snap.Metadata.Head}
			finding := builder.NewFinding(fmt.Sprintf("head is detached at tag %s", desc.Tag), types.FieldHead)
			return []types.Finding{finding}
		},
	}
}

func ruleSemverTag() Rule {
	meta := types.RuleMetadata{
		ID:              "GS007",
		Description:     "tags in the commit descriptor should be semantic versions",
		DefaultSeverity: types.SeverityInfo,
		Category:        "release",
		Enabled:         true,
	}
	return Rule{
		Metadata: meta,
		Check: func(ctx *Context, cfg types.ConfiguredRule) []types.Finding {
			tag := ctx.Snapshot.Description.Tag
			if tag == "" || ctx.Snapshot.IsDegraded(types.FieldCommit) {
				return nil
			}
			if _, err := semver.NewVersion(tag); err == nil {
				return nil
			}
			builder := types.FindingBuilder{Rule: cfg, Head: ctx.Snapshot.Metadata.Head}
			finding := builder.NewFinding(fmt.Sprintf("tag %q is not a semantic version", tag), types.FieldCommit)
			finding.Hint = "name release tags like v1.2.3"
			return []types.Finding{finding}
		},
	}
}
