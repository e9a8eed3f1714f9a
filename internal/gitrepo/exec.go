package gitrepo

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/gitstamp/gitstamp/pkg/types"
)

var describePattern = regexp.MustCompile(`^(.+)-(\d+)-g([0-9a-f]{4,64})$`)

type execRepo struct {
	binary string
	root   string
}

// NewExecOpener returns an Opener that shells out to the git binary.
func NewExecOpener(binary string) Opener {
	if strings.TrimSpace(binary) == "" {
		binary = "git"
	}
	return func(dir string) (Repository, error) {
		if strings.TrimSpace(dir) == "" {
			dir = "."
		}
		out, err := runGit(dir, binary, "rev-parse", "--show-toplevel")
		if err != nil {
			return nil, fmt.Errorf("%w: %s", types.ErrRepositoryNotFound, out)
		}
		return &execRepo{binary: binary, root: out}, nil
	}
}

func (r *execRepo) Root() string {
	return r.root
}

func (r *execRepo) Head() (string, error) {
	name, err := r.git("symbolic-ref", "--quiet", "--short", "HEAD")
	if err == nil {
		if _, err := r.git("rev-parse", "--verify", "--quiet", "HEAD"); err != nil {
			return "", fmt.Errorf("%w: %s has no commits", types.ErrHeadUnresolvable, name)
		}
		return validName(name)
	}
	tag, err := r.git("describe", "--tags", "--exact-match", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: detached HEAD: %s", types.ErrHeadUnresolvable, tag)
	}
	return validName(tag)
}

func validName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty reference name", types.ErrHeadUnresolvable)
	}
	return name, nil
}

func (r *execRepo) Describe(opts DescribeOptions) (types.Description, error) {
	opts = opts.Normalized()
	full, err := r.git("rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		return types.Description{}, fmt.Errorf("%w: no commits", types.ErrDescribeFailed)
	}
	args := []string{
		"describe", "--tags", "--always", "--long",
		"--abbrev=" + strconv.Itoa(opts.Abbrev),
		"--candidates=" + strconv.Itoa(opts.Candidates),
	}
	if opts.Match != "" {
		args = append(args, "--match", opts.Match)
	}
	if opts.Dirty {
		args = append(args, "--dirty="+opts.DirtySuffix)
	}
	out, err := r.git(args...)
	if err != nil {
		return types.Description{}, fmt.Errorf("%w: %s", types.ErrDescribeFailed, out)
	}
	return parseDescribe(out, full, opts), nil
}

// parseDescribe turns git describe --long output back into its parts. An
// exact match prints as <tag>-0-g<abbrev>, so hex-looking tag names never
// read as a bare hash.
func parseDescribe(out, full string, opts DescribeOptions) types.Description {
	desc := types.Description{Hash: full, DirtySuffix: opts.DirtySuffix}
	if opts.Dirty && strings.HasSuffix(out, opts.DirtySuffix) {
		desc.Dirty = true
		out = strings.TrimSuffix(out, opts.DirtySuffix)
	}
	if m := describePattern.FindStringSubmatch(out); m != nil && strings.HasPrefix(full, m[3]) {
		distance, _ := strconv.Atoi(m[2])
		desc.Tag = m[1]
		desc.Distance = distance
		desc.Exact = distance == 0
		desc.Abbrev = m[3]
		return desc
	}
	// no tag: --always printed the abbreviated hash
	if out != "" && strings.HasPrefix(full, out) {
		desc.Abbrev = out
		return desc
	}
	desc.Abbrev = abbrevOf(full, opts.Abbrev)
	return desc
}

func abbrevOf(full string, n int) string {
	if n > len(full) {
		return full
	}
	return full[:n]
}

func (r *execRepo) git(args ...string) (string, error) {
	return runGit(r.root, r.binary, args...)
}

func runGit(dir, binary string, args ...string) (string, error) {
	cmd := exec.Command(binary, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return msg, err
	}
	return strings.TrimSpace(stdout.String()), nil
}
