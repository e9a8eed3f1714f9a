package types

import (
	"fmt"
	"sort"
)

// Field names one of the three stamped values.
type Field string

const (
	FieldHead      Field = "head"
	FieldCommit    Field = "commit"
	FieldBuildTime Field = "buildTime"
)

// Fields lists stamped fields in presentation order.
var Fields = []Field{FieldHead, FieldCommit, FieldBuildTime}

// BuildMetadata holds the values injected into a build.
type BuildMetadata struct {
	Head      string `json:"head" yaml:"head"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"buildTime" yaml:"buildTime"`
}

// Value returns the value of the named field.
func (m BuildMetadata) Value(f Field) string {
	switch f {
	case FieldHead:
		return m.Head
	case FieldCommit:
		return m.Commit
	case FieldBuildTime:
		return m.BuildTime
	default:
		return ""
	}
}

// Stamp joins head and commit the way version strings are usually shown.
func (m BuildMetadata) Stamp() string {
	return m.Head + "-" + m.Commit
}

// Description is a structured describe result.
type Description struct {
	Tag         string `json:"tag,omitempty"`
	Distance    int    `json:"distance"`
	Hash        string `json:"hash"`
	Abbrev      string `json:"abbrev"`
	Exact       bool   `json:"exact"`
	Dirty       bool   `json:"dirty"`
	DirtySuffix string `json:"-"`
}

// String renders the description in git describe format.
func (d Description) String() string {
	var out string
	switch {
	case d.Tag == "":
		out = d.Abbrev
	case d.Exact:
		out = d.Tag
	default:
		out = fmt.Sprintf("%s-%d-g%s", d.Tag, d.Distance, d.Abbrev)
	}
	if d.Dirty {
		out += d.DirtySuffix
	}
	return out
}

// Snapshot is one resolution of build metadata plus the detail behind it.
type Snapshot struct {
	Metadata    BuildMetadata    `json:"metadata"`
	Description Description      `json:"description"`
	Root        string           `json:"root,omitempty"`
	Degraded    map[Field]string `json:"degraded,omitempty"`
}

// IsDegraded reports whether the field carries a sentinel instead of a value.
func (s Snapshot) IsDegraded(f Field) bool {
	_, ok := s.Degraded[f]
	return ok
}

// DegradedFields returns degraded fields sorted by name.
func (s Snapshot) DegradedFields() []Field {
	out := make([]Field, 0, len(s.Degraded))
	for f := range s.Degraded {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Source yields memoized build metadata.
type Source interface {
	Resolve() (BuildMetadata, error)
	Snapshot() (Snapshot, error)
}

// Severity enumerates policy finding levels.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// SeverityOrder helps compare severities.
var SeverityOrder = map[Severity]int{
	SeverityInfo:  0,
	SeverityWarn:  1,
	SeverityError: 2,
}

// Finding represents a policy rule result.
type Finding struct {
	RuleID   string   `json:"ruleId"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Head     string   `json:"head"`
	Field    Field    `json:"field,omitempty"`
	Category string   `json:"category,omitempty"`
	HelpURL  string   `json:"helpUrl,omitempty"`
	Hint     string   `json:"hint,omitempty"`
}

// RuleMetadata keeps description for reporting.
type RuleMetadata struct {
	ID              string
	Description     string
	DefaultSeverity Severity
	HelpURL         string
	Category        string
	Enabled         bool
}

// ConfiguredRule holds runtime configuration.
type ConfiguredRule struct {
	Metadata RuleMetadata
	Severity Severity
	Enabled  bool
}

// FindingBuilder is used inside rule checks to construct findings.
type FindingBuilder struct {
	Rule ConfiguredRule
	Head string
}

// NewFinding creates a finding for the provided message.
func (b FindingBuilder) NewFinding(message string, field Field) Finding {
	return Finding{
		RuleID:   b.Rule.Metadata.ID,
		Message:  message,
		Severity: b.Rule.Severity,
		Head:     b.Head,
		Field:    field,
		Category: b.Rule.Metadata.Category,
		HelpURL:  b.Rule.Metadata.HelpURL,
	}
}

// HigherSeverity returns the higher of two severities.
func HigherSeverity(a, b Severity) Severity {
	if SeverityOrder[a] >= SeverityOrder[b] {
		return a
	}
	return b
}
