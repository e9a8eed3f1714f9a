package gitrepo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/gobwas/glob"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/gitstamp/gitstamp/pkg/types"
)

type goGitRepo struct {
	repo *git.Repository
	root string
}

// Open discovers the repository enclosing dir using go-git.
func Open(dir string) (Repository, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w (searched from %s)", types.ErrRepositoryNotFound, dir)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrRepositoryNotFound, err)
	}
	root := ""
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return &goGitRepo{repo: repo, root: root}, nil
}

func (r *goGitRepo) Root() string {
	return r.root
}

func (r *goGitRepo) Head() (string, error) {
	ref, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("%w: read HEAD: %v", types.ErrHeadUnresolvable, err)
	}
	if ref.Type() == plumbing.SymbolicReference {
		target := ref.Target()
		if _, err := r.repo.Reference(target, true); err != nil {
			return "", fmt.Errorf("%w: %s has no commits", types.ErrHeadUnresolvable, target)
		}
		return shortName(target)
	}
	tags, err := r.tagIndex(nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrHeadUnresolvable, err)
	}
	if refs := tags[ref.Hash()]; len(refs) > 0 {
		return shortName(plumbing.NewTagReferenceName(refs[0].name))
	}
	return "", fmt.Errorf("%w: detached HEAD at %s", types.ErrHeadUnresolvable, ref.Hash().String()[:DefaultAbbrev])
}

func shortName(name plumbing.ReferenceName) (string, error) {
	short := name.Short()
	if short == "" || !utf8.ValidString(short) {
		return "", fmt.Errorf("%w: %q", types.ErrHeadUnresolvable, string(name))
	}
	return short, nil
}

func (r *goGitRepo) Describe(opts DescribeOptions) (types.Description, error) {
	opts = opts.Normalized()
	var match glob.Glob
	if opts.Match != "" {
		// no separators: like git's wildmatch, * also spans '/'
		g, err := glob.Compile(opts.Match)
		if err != nil {
			return types.Description{}, fmt.Errorf("%w: invalid match pattern %q: %v", types.ErrDescribeFailed, opts.Match, err)
		}
		match = g
	}
	head, err := r.repo.Head()
	if err != nil {
		return types.Description{}, fmt.Errorf("%w: %v", types.ErrDescribeFailed, err)
	}
	headCommit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return types.Description{}, fmt.Errorf("%w: %v", types.ErrDescribeFailed, err)
	}
	abbrev, err := r.abbreviate(headCommit.Hash, opts.Abbrev)
	if err != nil {
		return types.Description{}, fmt.Errorf("%w: %v", types.ErrDescribeFailed, err)
	}
	desc := types.Description{
		Hash:        headCommit.Hash.String(),
		Abbrev:      abbrev,
		DirtySuffix: opts.DirtySuffix,
	}
	if opts.Dirty {
		dirty, err := r.dirty()
		if err != nil {
			return types.Description{}, fmt.Errorf("%w: %v", types.ErrDescribeFailed, err)
		}
		desc.Dirty = dirty
	}

	tags, err := r.tagIndex(match)
	if err != nil {
		return types.Description{}, fmt.Errorf("%w: %v", types.ErrDescribeFailed, err)
	}
	if refs := tags[headCommit.Hash]; len(refs) > 0 {
		desc.Tag = refs[0].name
		desc.Exact = true
		return desc, nil
	}
	if len(tags) == 0 {
		return desc, nil
	}

	candidates, err := r.candidates(headCommit, tags, opts.Candidates)
	if err != nil {
		return types.Description{}, fmt.Errorf("%w: %v", types.ErrDescribeFailed, err)
	}
	if len(candidates) == 0 {
		return desc, nil
	}
	reachable, err := ancestors(headCommit)
	if err != nil {
		return types.Description{}, fmt.Errorf("%w: %v", types.ErrDescribeFailed, err)
	}
	best := -1
	bestDepth := 0
	for i, cand := range candidates {
		tagged, err := ancestors(cand.commit)
		if err != nil {
			return types.Description{}, fmt.Errorf("%w: %v", types.ErrDescribeFailed, err)
		}
		depth := 0
		for h := range reachable {
			if _, ok := tagged[h]; !ok {
				depth++
			}
		}
		if best < 0 || depth < bestDepth {
			best, bestDepth = i, depth
		}
	}
	desc.Tag = candidates[best].tag.name
	desc.Distance = bestDepth
	return desc, nil
}

type tagRef struct {
	name      string
	annotated bool
	when      time.Time
}

type candidate struct {
	tag    tagRef
	commit *object.Commit
}

// tagIndex maps commit hashes to the tags pointing at them, best first.
// A nil match keeps every tag.
func (r *goGitRepo) tagIndex(match glob.Glob) (map[plumbing.Hash][]tagRef, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	index := map[plumbing.Hash][]tagRef{}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if match != nil && !match.Match(name) {
			return nil
		}
		tag, err := r.repo.TagObject(ref.Hash())
		switch {
		case err == nil:
			commit, err := r.peel(tag)
			if err != nil {
				return fmt.Errorf("read tag %s: %w", name, err)
			}
			if commit == nil {
				return nil
			}
			// the outer tag names the commit, whatever it wraps
			index[commit.Hash] = append(index[commit.Hash], tagRef{name: name, annotated: true, when: tag.Tagger.When})
			return nil
		case !errors.Is(err, plumbing.ErrObjectNotFound):
			return fmt.Errorf("read tag %s: %w", name, err)
		}
		commit, err := r.repo.CommitObject(ref.Hash())
		if err != nil {
			return nil
		}
		index[commit.Hash] = append(index[commit.Hash], tagRef{name: name, when: commit.Committer.When})
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, refs := range index {
		sort.SliceStable(refs, func(i, j int) bool {
			if refs[i].annotated != refs[j].annotated {
				return refs[i].annotated
			}
			if !refs[i].when.Equal(refs[j].when) {
				return refs[i].when.After(refs[j].when)
			}
			return refs[i].name < refs[j].name
		})
	}
	return index, nil
}

// peel follows a chain of tag objects down to the commit it points at.
// Tags of trees and blobs, and targets missing from a shallow clone, yield
// a nil commit.
func (r *goGitRepo) peel(tag *object.Tag) (*object.Commit, error) {
	for tag.TargetType == plumbing.TagObject {
		inner, err := r.repo.TagObject(tag.Target)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("peel %s: %w", tag.Target, err)
		}
		tag = inner
	}
	if tag.TargetType != plumbing.CommitObject {
		return nil, nil
	}
	commit, err := r.repo.CommitObject(tag.Target)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peel %s: %w", tag.Target, err)
	}
	return commit, nil
}

// candidates walks history newest first and collects up to limit tagged commits.
func (r *goGitRepo) candidates(head *object.Commit, tags map[plumbing.Hash][]tagRef, limit int) ([]candidate, error) {
	var out []candidate
	iter := object.NewCommitIterCTime(head, nil, nil)
	defer iter.Close()
	err := iter.ForEach(func(c *object.Commit) error {
		if refs := tags[c.Hash]; len(refs) > 0 {
			out = append(out, candidate{tag: refs[0], commit: c})
			if len(out) >= limit {
				return storer.ErrStop
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk history: %w", err)
	}
	return out, nil
}

func ancestors(from *object.Commit) (map[plumbing.Hash]struct{}, error) {
	seen := map[plumbing.Hash]struct{}{}
	iter := object.NewCommitPreorderIter(from, nil, nil)
	defer iter.Close()
	err := iter.ForEach(func(c *object.Commit) error {
		seen[c.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk ancestors of %s: %w", from.Hash, err)
	}
	return seen, nil
}

// abbreviate shortens h to at least minLen hex digits, growing until no other
// commit shares the prefix.
func (r *goGitRepo) abbreviate(h plumbing.Hash, minLen int) (string, error) {
	full := h.String()
	n := minLen
	iter, err := r.repo.CommitObjects()
	if err != nil {
		return "", fmt.Errorf("list commits: %w", err)
	}
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == h {
			return nil
		}
		if common := commonPrefix(full, c.Hash.String()); common+1 > n {
			n = common + 1
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan commits: %w", err)
	}
	if n > len(full) {
		n = len(full)
	}
	return full[:n], nil
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// dirty reports tracked changes; untracked files do not count, as in git describe --dirty.
func (r *goGitRepo) dirty() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return false, nil
		}
		return false, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("worktree status: %w", err)
	}
	for _, s := range status {
		if s.Staging == git.Untracked && s.Worktree == git.Untracked {
			continue
		}
		if s.Staging == git.Unmodified && s.Worktree == git.Unmodified {
			continue
		}
		return true, nil
	}
	return false, nil
}
