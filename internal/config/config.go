package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/gitstamp/gitstamp/internal/schema"
	"github.com/gitstamp/gitstamp/pkg/types"
)

// RuleConfig describes rule overrides.
type RuleConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Severity string `yaml:"severity"`
}

// Override applies rule overrides when the head name matches Pattern.
type Override struct {
	Pattern string                `yaml:"pattern"`
	Rules   map[string]RuleConfig `yaml:"rules"`
}

// DescribeConfig mirrors git describe flags.
type DescribeConfig struct {
	Abbrev      int    `yaml:"abbrev" env:"ABBREV" validate:"omitempty,min=4,max=40"`
	Candidates  int    `yaml:"candidates" env:"CANDIDATES" validate:"omitempty,min=1,max=100"`
	Match       string `yaml:"match" env:"MATCH"`
	Dirty       bool   `yaml:"dirty" env:"DIRTY"`
	DirtySuffix string `yaml:"dirtySuffix" env:"DIRTY_SUFFIX"`
}

// SentinelConfig overrides lenient-mode placeholders. Nil keeps the default.
type SentinelConfig struct {
	Head      *string `yaml:"head"`
	Commit    *string `yaml:"commit"`
	BuildTime *string `yaml:"buildTime"`
}

// GenerateConfig configures Go source generation.
type GenerateConfig struct {
	Package  string `yaml:"package" env:"PACKAGE"`
	Output   string `yaml:"output" env:"OUTPUT"`
	Template string `yaml:"template" env:"TEMPLATE"`
}

// LDFlagsConfig configures linker flag rendering.
type LDFlagsConfig struct {
	Package   string `yaml:"package" env:"PACKAGE"`
	HeadVar   string `yaml:"headVar" env:"HEAD_VAR"`
	CommitVar string `yaml:"commitVar" env:"COMMIT_VAR"`
	TimeVar   string `yaml:"buildTimeVar" env:"BUILD_TIME_VAR"`
}

// Config is the runtime configuration.
type Config struct {
	Mode            string                `yaml:"mode" env:"MODE" validate:"omitempty,oneof=strict lenient"`
	Backend         string                `yaml:"backend" env:"BACKEND" validate:"omitempty,oneof=gogit exec"`
	GitBinary       string                `yaml:"gitBinary" env:"GIT_BINARY"`
	LogLevel        string                `yaml:"logLevel" env:"LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Describe        DescribeConfig        `yaml:"describe" envPrefix:"DESCRIBE_"`
	Sentinels       SentinelConfig        `yaml:"sentinels"`
	Generate        GenerateConfig        `yaml:"generate" envPrefix:"GENERATE_"`
	LDFlags         LDFlagsConfig         `yaml:"ldflags" envPrefix:"LDFLAGS_"`
	Rules           map[string]RuleConfig `yaml:"rules"`
	Overrides       []Override            `yaml:"overrides"`
	Threshold       string                `yaml:"severityThreshold" env:"SEVERITY_THRESHOLD" validate:"omitempty,oneof=info warn error"`
	Profiles        []string              `yaml:"profiles" env:"PROFILES"`
	Waivers         []Waiver              `yaml:"waivers"`
	Policies        []string              `yaml:"policies" env:"POLICIES"`
	ReleaseBranches []string              `yaml:"releaseBranches" env:"RELEASE_BRANCHES"`
}

// Defaults returns the values used when neither file nor environment set them.
func Defaults() Config {
	return Config{
		Mode:      "strict",
		Backend:   "gogit",
		GitBinary: "git",
		LogLevel:  "warn",
		Describe: DescribeConfig{
			Abbrev:      7,
			Candidates:  10,
			DirtySuffix: "-dirty",
		},
		Generate: GenerateConfig{
			Output: "buildinfo_gen.go",
		},
		LDFlags: LDFlagsConfig{
			Package:   "github.com/gitstamp/gitstamp/pkg/buildinfo",
			HeadVar:   "head",
			CommitVar: "commit",
			TimeVar:   "buildTime",
		},
		Threshold:       string(types.SeverityError),
		ReleaseBranches: []string{"release/*", "release-*"},
	}
}

// Load reads configuration from file, layers GITSTAMP_* variables from
// environ on top, applies profiles and fills defaults. Empty path skips the
// file layer.
func Load(file string, environ map[string]string) (Config, error) {
	fileCfg, err := loadFile(file)
	if err != nil {
		return Config{}, err
	}
	cfg, err := parseEnv(environ)
	if err != nil {
		return Config{}, err
	}
	if err := mergo.Merge(&cfg, fileCfg); err != nil {
		return Config{}, fmt.Errorf("merge config: %w", err)
	}
	if err := cfg.ApplyProfiles(cfg.Profiles...); err != nil {
		return Config{}, err
	}
	if err := cfg.Complete(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Complete fills unset values from Defaults and validates the result.
func (c *Config) Complete() error {
	if err := mergo.Merge(c, Defaults()); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	return c.Validate()
}

func loadFile(file string) (Config, error) {
	if file == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Config{}, nil
	}
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := schema.ValidateConfig(doc); err != nil {
		return Config{}, fmt.Errorf("%s: %w", filepath.Base(file), err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Resolve merges default rule metadata with configuration overrides for head.
func (c Config) Resolve(rule types.RuleMetadata, head string) (types.ConfiguredRule, error) {
	result := types.ConfiguredRule{
		Metadata: rule,
		Severity: rule.DefaultSeverity,
		Enabled:  rule.Enabled,
	}
	apply := func(rc RuleConfig) error {
		if rc.Enabled != nil {
			result.Enabled = *rc.Enabled
		}
		if rc.Severity != "" {
			sev, err := ParseSeverity(rc.Severity)
			if err != nil {
				return err
			}
			result.Severity = sev
		}
		return nil
	}

	if ruleConfig, ok := c.Rules[rule.ID]; ok {
		if err := apply(ruleConfig); err != nil {
			return result, err
		}
	}
	for _, override := range c.Overrides {
		if override.Pattern == "" {
			continue
		}
		match, err := MatchBranch(override.Pattern, head)
		if err != nil {
			return result, err
		}
		if match {
			if rc, ok := override.Rules[rule.ID]; ok {
				if err := apply(rc); err != nil {
					return result, err
				}
			}
		}
	}
	return result, nil
}

// IsReleaseBranch reports whether head matches one of the release patterns.
func (c Config) IsReleaseBranch(head string) bool {
	for _, pattern := range c.ReleaseBranches {
		if ok, _ := MatchBranch(pattern, head); ok {
			return true
		}
	}
	return false
}

// ParseSeverity converts string to Severity type.
func ParseSeverity(value string) (types.Severity, error) {
	norm := strings.ToLower(strings.TrimSpace(value))
	switch norm {
	case string(types.SeverityInfo):
		return types.SeverityInfo, nil
	case string(types.SeverityWarn):
		return types.SeverityWarn, nil
	case string(types.SeverityError):
		return types.SeverityError, nil
	case "":
		return "", fmt.Errorf("empty severity")
	default:
		return "", errors.New("unknown severity: " + value)
	}
}
