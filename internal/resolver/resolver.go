// Package resolver resolves build metadata once and memoizes it.
//
// A Resolver is created by the caller and handed to every consumer that needs
// metadata. The first call to Resolve or Snapshot reads the repository and the
// clock; every later call returns the same values. Concurrent first callers
// block on a single resolution.
package resolver

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gitstamp/gitstamp/internal/gitrepo"
	"github.com/gitstamp/gitstamp/pkg/types"
)

// Mode selects how resolution failures are handled.
type Mode string

const (
	// ModeStrict fails resolution on the first error.
	ModeStrict Mode = "strict"
	// ModeLenient substitutes sentinels and records the failure.
	ModeLenient Mode = "lenient"
)

// ParseMode converts a string to a Mode. Empty selects strict.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeLenient:
		return ModeLenient, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected strict|lenient)", value)
	}
}

// Sentinels are the values substituted in lenient mode.
type Sentinels struct {
	Head      string
	Commit    string
	BuildTime string
}

// DefaultSentinels returns the lenient-mode placeholders.
func DefaultSentinels() Sentinels {
	return Sentinels{Head: "", Commit: "error", BuildTime: "unknown"}
}

// Options configures a Resolver.
type Options struct {
	// Dir is where repository discovery starts. Empty means the working directory.
	Dir       string
	Open      gitrepo.Opener
	Describe  gitrepo.DescribeOptions
	Mode      Mode
	// Sentinels replaces DefaultSentinels when non-nil.
	Sentinels *Sentinels
	Clock     func() time.Time
	Logger    *zerolog.Logger
}

// Resolver memoizes one Snapshot.
type Resolver struct {
	opts Options
	once sync.Once
	snap types.Snapshot
	err  error
}

// New constructs a Resolver. Nothing is read until the first access.
func New(opts Options) *Resolver {
	if opts.Open == nil {
		opts.Open = gitrepo.Open
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Mode == "" {
		opts.Mode = ModeStrict
	}
	if opts.Sentinels == nil {
		defaults := DefaultSentinels()
		opts.Sentinels = &defaults
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Resolver{opts: opts}
}

// Resolve returns the memoized build metadata.
func (r *Resolver) Resolve() (types.BuildMetadata, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return types.BuildMetadata{}, err
	}
	return snap.Metadata, nil
}

// Snapshot returns the memoized snapshot.
func (r *Resolver) Snapshot() (types.Snapshot, error) {
	r.once.Do(func() {
		r.snap, r.err = r.resolve()
	})
	return r.snap, r.err
}

func (r *Resolver) resolve() (types.Snapshot, error) {
	log := r.opts.Logger
	strict := r.opts.Mode == ModeStrict
	snap := types.Snapshot{}
	degrade := func(field types.Field, err error) {
		if snap.Degraded == nil {
			snap.Degraded = map[types.Field]string{}
		}
		snap.Degraded[field] = err.Error()
		log.Warn().Str("field", string(field)).Err(err).Msg("using sentinel value")
	}

	now := r.opts.Clock()
	if now.IsZero() {
		ferr := &FieldError{Field: types.FieldBuildTime, Err: types.ErrClockUnavailable}
		if strict {
			return types.Snapshot{}, ferr
		}
		snap.Metadata.BuildTime = r.opts.Sentinels.BuildTime
		degrade(types.FieldBuildTime, ferr)
	} else {
		snap.Metadata.BuildTime = now.UTC().Format(time.RFC3339)
	}

	repo, err := r.opts.Open(r.opts.Dir)
	if err != nil {
		if strict {
			return types.Snapshot{}, &FieldError{Field: types.FieldHead, Err: err}
		}
		// Outside a repository every field is a placeholder, the clock included.
		snap.Metadata = types.BuildMetadata{
			Head:      r.opts.Sentinels.Head,
			Commit:    r.opts.Sentinels.Commit,
			BuildTime: r.opts.Sentinels.BuildTime,
		}
		for _, field := range types.Fields {
			degrade(field, err)
		}
		return snap, nil
	}
	snap.Root = repo.Root()
	log.Debug().Str("root", snap.Root).Msg("repository discovered")

	head, err := repo.Head()
	if err != nil {
		if strict {
			return types.Snapshot{}, &FieldError{Field: types.FieldHead, Err: err}
		}
		head = r.opts.Sentinels.Head
		degrade(types.FieldHead, err)
	}
	snap.Metadata.Head = head

	desc, err := repo.Describe(r.opts.Describe)
	if err != nil {
		if strict {
			return types.Snapshot{}, &FieldError{Field: types.FieldCommit, Err: err}
		}
		snap.Metadata.Commit = r.opts.Sentinels.Commit
		degrade(types.FieldCommit, err)
	} else {
		snap.Description = desc
		snap.Metadata.Commit = desc.String()
	}

	log.Debug().
		Str("head", snap.Metadata.Head).
		Str("commit", snap.Metadata.Commit).
		Str("build_time", snap.Metadata.BuildTime).
		Msg("build metadata resolved")
	return snap, nil
}

// FieldError names the field whose resolution failed.
type FieldError struct {
	Field types.Field
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// FieldOf returns the field named by err, if any.
func FieldOf(err error) (types.Field, bool) {
	var ferr *FieldError
	if errors.As(err, &ferr) {
		return ferr.Field, true
	}
	return "", false
}
