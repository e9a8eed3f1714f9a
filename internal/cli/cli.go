package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/gitstamp/gitstamp/internal/config"
	"github.com/gitstamp/gitstamp/internal/gitrepo"
	"github.com/gitstamp/gitstamp/internal/loader"
	"github.com/gitstamp/gitstamp/internal/logging"
	"github.com/gitstamp/gitstamp/internal/resolver"
	"github.com/gitstamp/gitstamp/pkg/types"
	"github.com/gitstamp/gitstamp/pkg/version"
)

const usage = `Usage: gitstamp [command] [flags]

Commands:
  show         Print resolved build metadata (default)
  generate     Write a Go source file exposing build metadata
  ldflags      Print -X linker flags for go build -ldflags
  check        Evaluate policy rules against the resolved metadata
  rules list   List built-in and plugin rules
`

// Execute is the entrypoint for the CLI. Returns process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	command := "show"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	switch command {
	case "show":
		return runShow(args, stdout, stderr)
	case "generate":
		return runGenerate(args, stdout, stderr)
	case "ldflags":
		return runLDFlags(args, stdout, stderr)
	case "check":
		return runCheck(args, stdout, stderr)
	case "rules":
		return runRules(args, stdout, stderr)
	case "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		printError(stderr, "command", fmt.Errorf("unknown command %q", command))
		fmt.Fprint(stderr, usage)
		return 2
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	fs          *pflag.FlagSet
	configPath  *string
	dir         *string
	mode        *string
	backend     *string
	gitBinary   *string
	abbrev      *int
	candidates  *int
	match       *string
	dirty       *bool
	logLevel    *string
	profiles    *[]string
	showVersion *bool
}

func newFlagSet(name string, stderr io.Writer) *globalFlags {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return &globalFlags{
		fs:          fs,
		configPath:  fs.String("config", "", "Path to configuration file (default: discovered .gitstamp.yaml)"),
		dir:         fs.StringP("dir", "C", "", "Directory to start repository discovery from (default: working directory)"),
		mode:        fs.String("mode", "", "Failure handling: strict|lenient"),
		backend:     fs.String("backend", "", "Repository backend: gogit|exec"),
		gitBinary:   fs.String("git-binary", "", "git binary used by the exec backend"),
		abbrev:      fs.Int("abbrev", 0, "Minimum abbreviated hash length"),
		candidates:  fs.Int("candidates", 0, "Number of tagged commits considered when describing"),
		match:       fs.String("match", "", "Only consider tags matching this glob"),
		dirty:       fs.Bool("dirty", false, "Append the dirty suffix when tracked files changed"),
		logLevel:    fs.String("log-level", "", "Diagnostic level: trace|debug|info|warn|error|disabled"),
		profiles:    fs.StringSlice("profile", nil, "Apply built-in rule profiles ("+strings.Join(config.AvailableProfiles(), ", ")+")"),
		showVersion: fs.Bool("version", false, "Print gitstamp version and exit"),
	}
}

// overrides maps changed flags to the environment variables they replace.
func (g *globalFlags) overrides() map[string]string {
	out := map[string]string{}
	set := func(flag, key, value string) {
		if g.fs.Changed(flag) {
			out[config.EnvPrefix+key] = value
		}
	}
	set("mode", "MODE", *g.mode)
	set("backend", "BACKEND", *g.backend)
	set("git-binary", "GIT_BINARY", *g.gitBinary)
	set("abbrev", "DESCRIBE_ABBREV", strconv.Itoa(*g.abbrev))
	set("candidates", "DESCRIBE_CANDIDATES", strconv.Itoa(*g.candidates))
	set("match", "DESCRIBE_MATCH", *g.match)
	set("dirty", "DESCRIBE_DIRTY", strconv.FormatBool(*g.dirty))
	set("log-level", "LOG_LEVEL", *g.logLevel)
	set("profile", "PROFILES", strings.Join(*g.profiles, ","))
	return out
}

// app is the state shared by a single command invocation.
type app struct {
	cfg        config.Config
	configPath string
	dir        string
	environ    map[string]string
	logger     *zerolog.Logger
	resolver   types.Source
}

// parse parses args and reports whether the command should continue. When
// it returns false, code is the exit code.
func (g *globalFlags) parse(args []string, stdout, stderr io.Writer) (ok bool, code int) {
	if err := g.fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return false, 0
		}
		printError(stderr, "argument", err)
		return false, 2
	}
	if *g.showVersion {
		fmt.Fprintln(stdout, version.String())
		return false, 0
	}
	return true, 0
}

func (g *globalFlags) setup(stderr io.Writer) (*app, error) {
	dir := *g.dir
	if dir == "" {
		dir = "."
	}
	dir, err := ResolvePath(dir)
	if err != nil {
		return nil, stageError{"dir", err}
	}

	cfgPath := *g.configPath
	if cfgPath == "" {
		cfgPath, err = loader.FindConfig(dir)
		if err != nil {
			return nil, stageError{"config", err}
		}
	} else if cfgPath, err = ResolvePath(cfgPath); err != nil {
		return nil, stageError{"config", err}
	}

	environ, err := config.Environ(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, stageError{"env", err}
	}
	for key, value := range g.overrides() {
		environ[key] = value
	}
	cfg, err := config.Load(cfgPath, environ)
	if err != nil {
		return nil, stageError{"config", err}
	}

	logger, err := logging.New(stderr, cfg.LogLevel)
	if err != nil {
		return nil, stageError{"log level", err}
	}
	if cfgPath != "" {
		logger.Debug().Str("path", cfgPath).Msg("configuration loaded")
	}

	opener, err := gitrepo.NewOpener(cfg.Backend, cfg.GitBinary)
	if err != nil {
		return nil, stageError{"backend", err}
	}
	mode, err := resolver.ParseMode(cfg.Mode)
	if err != nil {
		return nil, stageError{"mode", err}
	}
	sentinels := cfg.SentinelValues()
	res := resolver.New(resolver.Options{
		Dir:  dir,
		Open: opener,
		Describe: gitrepo.DescribeOptions{
			Abbrev:      cfg.Describe.Abbrev,
			Candidates:  cfg.Describe.Candidates,
			Match:       cfg.Describe.Match,
			Dirty:       cfg.Describe.Dirty,
			DirtySuffix: cfg.Describe.DirtySuffix,
		},
		Mode:      mode,
		Sentinels: &sentinels,
		Logger:    logger,
	})
	return &app{
		cfg:        cfg,
		configPath: cfgPath,
		dir:        dir,
		environ:    environ,
		logger:     logger,
		resolver:   res,
	}, nil
}

// configRelative resolves a path declared in the config file against the
// file's directory.
func (a *app) configRelative(p string) string {
	if p == "" || filepath.IsAbs(p) || a.configPath == "" {
		return p
	}
	return filepath.Join(filepath.Dir(a.configPath), p)
}

type stageError struct {
	stage string
	err   error
}

func (e stageError) Error() string { return e.err.Error() }

func (e stageError) Unwrap() error { return e.err }

func reportSetupError(stderr io.Writer, err error) int {
	if se, ok := err.(stageError); ok {
		printError(stderr, se.stage, se.err)
		return 2
	}
	printError(stderr, "setup", err)
	return 2
}

// ResolvePath ensures the target is absolute relative to working dir.
func ResolvePath(target string) (string, error) {
	if filepath.IsAbs(target) {
		return target, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, target), nil
}

func printError(w io.Writer, stage string, err error) {
	fmt.Fprintf(w, "[ERROR] %-12s %v\n", strings.ToUpper(stage), err)
}
