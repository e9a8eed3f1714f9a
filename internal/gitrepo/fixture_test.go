package gitrepo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	n    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	require.NoError(t, err)
	return &fixture{t: t, dir: dir, repo: repo}
}

func (f *fixture) signature() *object.Signature {
	return &object.Signature{Name: "Build Bot", Email: "bot@example.com", When: epoch.Add(time.Duration(f.n) * time.Minute)}
}

func (f *fixture) commit(msg string) plumbing.Hash {
	f.t.Helper()
	f.n++
	wt, err := f.repo.Worktree()
	require.NoError(f.t, err)
	name := filepath.Join(f.dir, "file.txt")
	require.NoError(f.t, os.WriteFile(name, []byte(msg), 0o644))
	_, err = wt.Add("file.txt")
	require.NoError(f.t, err)
	h, err := wt.Commit(msg, &git.CommitOptions{Author: f.signature(), Committer: f.signature()})
	require.NoError(f.t, err)
	return h
}

// annotatedTag tags h, a commit or another tag object, and returns the
// hash of the new tag object.
func (f *fixture) annotatedTag(name string, h plumbing.Hash) plumbing.Hash {
	f.t.Helper()
	ref, err := f.repo.CreateTag(name, h, &git.CreateTagOptions{Tagger: f.signature(), Message: "release " + name})
	require.NoError(f.t, err)
	return ref.Hash()
}

func (f *fixture) lightweightTag(name string, h plumbing.Hash) {
	f.t.Helper()
	_, err := f.repo.CreateTag(name, h, nil)
	require.NoError(f.t, err)
}

func (f *fixture) detach(h plumbing.Hash) {
	f.t.Helper()
	wt, err := f.repo.Worktree()
	require.NoError(f.t, err)
	require.NoError(f.t, wt.Checkout(&git.CheckoutOptions{Hash: h}))
}

func (f *fixture) open() Repository {
	f.t.Helper()
	repo, err := Open(f.dir)
	require.NoError(f.t, err)
	return repo
}
