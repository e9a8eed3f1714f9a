package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gitstamp/gitstamp/internal/config"
	"github.com/gitstamp/gitstamp/internal/output"
	"github.com/gitstamp/gitstamp/internal/policy"
	"github.com/gitstamp/gitstamp/internal/render"
	"github.com/gitstamp/gitstamp/pkg/plugin"
	regoplugin "github.com/gitstamp/gitstamp/pkg/plugin/rego"
)

func runShow(args []string, stdout, stderr io.Writer) int {
	g := newFlagSet("show", stderr)
	format := g.fs.StringP("format", "o", output.FormatText, "Output format: "+strings.Join(output.MetadataFormats, "|"))
	if ok, code := g.parse(args, stdout, stderr); !ok {
		return code
	}
	a, err := g.setup(stderr)
	if err != nil {
		return reportSetupError(stderr, err)
	}
	snap, err := a.resolver.Snapshot()
	if err != nil {
		printError(stderr, "resolve", err)
		return 2
	}
	if err := output.WriteMetadata(snap, *format, stdout); err != nil {
		printError(stderr, "output", err)
		return 2
	}
	return 0
}

func runGenerate(args []string, stdout, stderr io.Writer) int {
	g := newFlagSet("generate", stderr)
	pkg := g.fs.String("package", "", "Package name of the generated file (default: $GOPACKAGE)")
	out := g.fs.String("output", "", "Output file (default: buildinfo_gen.go)")
	tmplPath := g.fs.String("template", "", "Custom text/template file")
	toStdout := g.fs.Bool("stdout", false, "Print the generated source instead of writing a file")
	if ok, code := g.parse(args, stdout, stderr); !ok {
		return code
	}
	a, err := g.setup(stderr)
	if err != nil {
		return reportSetupError(stderr, err)
	}

	opts := render.GenerateOptions{Package: firstNonEmpty(*pkg, a.cfg.Generate.Package, a.environ["GOPACKAGE"])}
	if opts.Package == "" {
		printError(stderr, "generate", errors.New("package name unknown; pass --package or run via go generate"))
		return 2
	}
	templateFile := *tmplPath
	if templateFile == "" {
		templateFile = a.configRelative(a.cfg.Generate.Template)
	}
	if templateFile != "" {
		data, err := os.ReadFile(templateFile)
		if err != nil {
			printError(stderr, "template", err)
			return 2
		}
		opts.Template = string(data)
	}

	meta, err := a.resolver.Resolve()
	if err != nil {
		printError(stderr, "resolve", err)
		return 2
	}
	src, err := render.Generate(meta, opts)
	if err != nil {
		printError(stderr, "generate", err)
		return 2
	}
	if *toStdout {
		if _, err := stdout.Write(src); err != nil {
			printError(stderr, "output", err)
			return 2
		}
		return 0
	}
	target := firstNonEmpty(*out, a.cfg.Generate.Output)
	changed, err := render.WriteFile(target, src)
	if err != nil {
		printError(stderr, "write", err)
		return 2
	}
	a.logger.Info().Str("file", target).Bool("changed", changed).Msg("build metadata generated")
	return 0
}

func runLDFlags(args []string, stdout, stderr io.Writer) int {
	g := newFlagSet("ldflags", stderr)
	pkg := g.fs.String("package", "", "Import path holding the variables")
	headVar := g.fs.String("head-var", "", "Variable receiving the head name")
	commitVar := g.fs.String("commit-var", "", "Variable receiving the commit descriptor")
	timeVar := g.fs.String("build-time-var", "", "Variable receiving the build time")
	if ok, code := g.parse(args, stdout, stderr); !ok {
		return code
	}
	a, err := g.setup(stderr)
	if err != nil {
		return reportSetupError(stderr, err)
	}
	opts := render.LDFlagsOptions{
		Package:      firstNonEmpty(*pkg, a.cfg.LDFlags.Package),
		HeadVar:      firstNonEmpty(*headVar, a.cfg.LDFlags.HeadVar),
		CommitVar:    firstNonEmpty(*commitVar, a.cfg.LDFlags.CommitVar),
		BuildTimeVar: firstNonEmpty(*timeVar, a.cfg.LDFlags.TimeVar),
	}
	meta, err := a.resolver.Resolve()
	if err != nil {
		printError(stderr, "resolve", err)
		return 2
	}
	flags, err := render.LDFlags(meta, opts)
	if err != nil {
		printError(stderr, "ldflags", err)
		return 2
	}
	fmt.Fprintln(stdout, flags)
	return 0
}

func runCheck(args []string, stdout, stderr io.Writer) int {
	g := newFlagSet("check", stderr)
	format := g.fs.StringP("format", "o", output.FormatTable, "Output format: table|json|sarif")
	threshold := g.fs.String("severity-threshold", "", "Exit with status 1 at or above this severity (info|warn|error); overrides config")
	policies := g.fs.StringSlice("policy", nil, "Rego policy file or directory (repeatable)")
	baselinePath := g.fs.String("baseline", "", "Baseline file with accepted findings")
	writeBaseline := g.fs.Bool("write-baseline", false, "Record current findings in the baseline file and exit")
	agingDays := g.fs.Int("baseline-aging", 0, "Report baseline entries older than this many days")
	if ok, code := g.parse(args, stdout, stderr); !ok {
		return code
	}
	a, err := g.setup(stderr)
	if err != nil {
		return reportSetupError(stderr, err)
	}
	if *writeBaseline && *baselinePath == "" {
		printError(stderr, "baseline", errors.New("--write-baseline requires --baseline"))
		return 2
	}
	var baseline *policy.Baseline
	if *baselinePath != "" {
		if *baselinePath, err = ResolvePath(*baselinePath); err != nil {
			printError(stderr, "baseline", err)
			return 2
		}
		if baseline, err = policy.LoadBaseline(*baselinePath); err != nil {
			printError(stderr, "baseline", err)
			return 2
		}
	}

	thresholdValue := firstNonEmpty(*threshold, a.cfg.Threshold)
	thresholdSeverity, err := config.ParseSeverity(thresholdValue)
	if err != nil {
		printError(stderr, "threshold", err)
		return 2
	}

	ctx := context.Background()
	plugins, err := a.loadPlugins(ctx, *policies)
	if err != nil {
		printError(stderr, "plugin load", err)
		return 2
	}

	snap, err := a.resolver.Snapshot()
	if err != nil {
		printError(stderr, "resolve", err)
		return 2
	}
	if *writeBaseline {
		// Record everything, including findings the old baseline hid.
		report, err := policy.NewRunner(a.cfg, plugins...).Run(ctx, snap)
		if err != nil {
			printError(stderr, "check", err)
			return 2
		}
		if err := policy.WriteBaseline(*baselinePath, report.Findings, baseline, time.Now()); err != nil {
			printError(stderr, "baseline", err)
			return 2
		}
		a.logger.Info().Str("file", *baselinePath).Int("entries", len(report.Findings)).Msg("baseline written")
		return 0
	}
	report, err := policy.NewRunner(a.cfg, plugins...).WithBaseline(baseline, *agingDays).Run(ctx, snap)
	if err != nil {
		printError(stderr, "check", err)
		return 2
	}
	if len(report.Suppressed) > 0 {
		a.logger.Info().Int("count", len(report.Suppressed)).Msg("findings suppressed by baseline")
	}
	if err := output.Write(report, *format, stdout); err != nil {
		printError(stderr, "output", err)
		return 2
	}
	if len(report.Findings) > 0 {
		a.logger.Debug().Str("highest", string(output.HighestSeverity(report.Findings))).Str("threshold", string(thresholdSeverity)).Msg("policy evaluated")
	}
	if output.Exceeds(report.Findings, thresholdSeverity) {
		return 1
	}
	return 0
}

// loadPlugins loads policies named in the config file and on the command line.
func (a *app) loadPlugins(ctx context.Context, extra []string) ([]plugin.RulePlugin, error) {
	var paths []string
	for _, p := range a.cfg.Policies {
		paths = append(paths, a.configRelative(p))
	}
	for _, p := range extra {
		resolved, err := ResolvePath(p)
		if err != nil {
			return nil, err
		}
		paths = append(paths, resolved)
	}
	if len(paths) == 0 {
		return nil, nil
	}
	plugins, err := regoplugin.NewLoader(paths...).Load(ctx)
	if err != nil {
		return nil, err
	}
	registry := plugin.NewRegistry()
	registry.Register(plugins...)
	a.logger.Debug().Int("count", len(plugins)).Str("paths", strings.Join(relativeAll(a.dir, paths), ",")).Msg("policies loaded")
	return registry.Plugins(), nil
}

func relativeAll(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if rel, err := filepath.Rel(base, p); err == nil {
			p = rel
		}
		out = append(out, p)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
