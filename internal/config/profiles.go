package config

import (
	"fmt"
	"sort"
	"strings"
)

type profile struct {
	rules     map[string]RuleConfig
	threshold string
	mode      string
}

var builtinProfiles = map[string]profile{
	"dev": {
		rules: map[string]RuleConfig{
			"GS004": {Severity: "info"},
			"GS005": {Severity: "info"},
			"GS006": {Severity: "info"},
		},
		threshold: "error",
		mode:      "lenient",
	},
	"ci": {
		rules: map[string]RuleConfig{
			"GS005": {Severity: "warn"},
			"GS006": {Severity: "warn"},
		},
		threshold: "error",
	},
	"release": {
		rules: map[string]RuleConfig{
			"GS001": {Severity: "error"},
			"GS002": {Severity: "error"},
			"GS003": {Severity: "error"},
			"GS004": {Severity: "error"},
			"GS005": {Severity: "error"},
		},
		threshold: "warn",
		mode:      "strict",
	},
}

// ApplyProfiles merges the provided built-in profiles into the configuration.
// A profile mode only applies when no mode was set explicitly.
func (cfg *Config) ApplyProfiles(names ...string) error {
	if len(names) == 0 {
		return nil
	}
	if cfg.Rules == nil {
		cfg.Rules = make(map[string]RuleConfig)
	}
	explicitMode := cfg.Mode != ""
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		profile, ok := builtinProfiles[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("unknown profile %q", name)
		}
		if profile.threshold != "" {
			cfg.Threshold = profile.threshold
		}
		if profile.mode != "" && !explicitMode {
			cfg.Mode = profile.mode
		}
		for ruleID, override := range profile.rules {
			existing := cfg.Rules[ruleID]
			if override.Enabled != nil {
				existing.Enabled = override.Enabled
			}
			if override.Severity != "" {
				existing.Severity = override.Severity
			}
			cfg.Rules[ruleID] = existing
		}
	}
	return nil
}

// AvailableProfiles returns a sorted list of built-in profile names.
func AvailableProfiles() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
