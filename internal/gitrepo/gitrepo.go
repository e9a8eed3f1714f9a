// Package gitrepo reads head and describe information from a git repository.
package gitrepo

import (
	"fmt"
	"strings"

	"github.com/gitstamp/gitstamp/pkg/types"
)

// Backend names.
const (
	BackendGoGit = "gogit"
	BackendExec  = "exec"
)

const (
	// DefaultAbbrev matches git's minimum abbreviated hash length.
	DefaultAbbrev = 7
	// DefaultCandidates matches git describe --candidates.
	DefaultCandidates = 10
	// DefaultDirtySuffix matches git describe --dirty.
	DefaultDirtySuffix = "-dirty"
)

// DescribeOptions configures Describe.
type DescribeOptions struct {
	Abbrev      int
	Candidates  int
	Match       string
	Dirty       bool
	DirtySuffix string
}

// Normalized returns options with zero values replaced by defaults.
func (o DescribeOptions) Normalized() DescribeOptions {
	if o.Abbrev <= 0 {
		o.Abbrev = DefaultAbbrev
	}
	if o.Abbrev > 40 {
		o.Abbrev = 40
	}
	if o.Candidates <= 0 {
		o.Candidates = DefaultCandidates
	}
	if strings.TrimSpace(o.DirtySuffix) == "" {
		o.DirtySuffix = DefaultDirtySuffix
	}
	return o
}

// Repository is an opened repository.
type Repository interface {
	Root() string
	Head() (string, error)
	Describe(opts DescribeOptions) (types.Description, error)
}

// Opener discovers the repository enclosing dir.
type Opener func(dir string) (Repository, error)

// NewOpener returns the opener for the named backend.
func NewOpener(backend, gitBinary string) (Opener, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendGoGit:
		return Open, nil
	case BackendExec:
		return NewExecOpener(gitBinary), nil
	default:
		return nil, &UnsupportedBackendError{Backend: backend}
	}
}

// UnsupportedBackendError reports an unknown backend name.
type UnsupportedBackendError struct {
	Backend string
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("unsupported backend %q (expected gogit|exec)", e.Backend)
}
