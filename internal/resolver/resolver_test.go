package resolver

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitstamp/gitstamp/internal/gitrepo"
	"github.com/gitstamp/gitstamp/pkg/types"
)

type fakeRepo struct {
	head    string
	headErr error
	desc    types.Description
	descErr error
}

func (f *fakeRepo) Root() string { return "/src/project" }

func (f *fakeRepo) Head() (string, error) { return f.head, f.headErr }

func (f *fakeRepo) Describe(gitrepo.DescribeOptions) (types.Description, error) {
	return f.desc, f.descErr
}

func opener(repo gitrepo.Repository, calls *int32) gitrepo.Opener {
	return func(string) (gitrepo.Repository, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return repo, nil
	}
}

func failingOpener(dir string) (gitrepo.Repository, error) {
	return nil, fmt.Errorf("%w (searched from %s)", types.ErrRepositoryNotFound, dir)
}

var fixedTime = time.Date(2025, 6, 1, 10, 30, 0, 0, time.FixedZone("CEST", 2*60*60))

func fixedClock() time.Time { return fixedTime }

func TestResolveHappyPath(t *testing.T) {
	repo := &fakeRepo{head: "main", desc: types.Description{Tag: "v1.0", Distance: 1, Abbrev: "def4567"}}
	r := New(Options{Open: opener(repo, nil), Clock: fixedClock})

	meta, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, types.BuildMetadata{Head: "main", Commit: "v1.0-1-gdef4567", BuildTime: "2025-06-01T08:30:00Z"}, meta)

	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "/src/project", snap.Root)
	assert.Empty(t, snap.Degraded)
}

func TestResolveRunsOnce(t *testing.T) {
	var opens int32
	var ticks int32
	repo := &fakeRepo{head: "main", desc: types.Description{Abbrev: "abc1234"}}
	clock := func() time.Time {
		n := atomic.AddInt32(&ticks, 1)
		return fixedTime.Add(time.Duration(n) * time.Second)
	}
	r := New(Options{Open: opener(repo, &opens), Clock: clock})

	first, err := r.Resolve()
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := r.Resolve()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&opens))
	assert.EqualValues(t, 1, atomic.LoadInt32(&ticks))
}

func TestResolveConcurrentCallersShareResult(t *testing.T) {
	var opens int32
	repo := &fakeRepo{head: "main", desc: types.Description{Abbrev: "abc1234"}}
	r := New(Options{Open: opener(repo, &opens), Clock: fixedClock})

	var wg sync.WaitGroup
	results := make([]types.BuildMetadata, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta, err := r.Resolve()
			assert.NoError(t, err)
			results[i] = meta
		}(i)
	}
	wg.Wait()
	for _, meta := range results {
		assert.Equal(t, results[0], meta)
		assert.NotEmpty(t, meta.Head)
		assert.NotEmpty(t, meta.Commit)
		assert.NotEmpty(t, meta.BuildTime)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&opens))
}

func TestStrictRepositoryNotFound(t *testing.T) {
	r := New(Options{Dir: "/nowhere", Open: failingOpener, Clock: fixedClock})
	meta, err := r.Resolve()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRepositoryNotFound)
	assert.Equal(t, types.BuildMetadata{}, meta)
	field, ok := FieldOf(err)
	require.True(t, ok)
	assert.Equal(t, types.FieldHead, field)
	assert.Contains(t, err.Error(), "not inside a git repository")

	_, again := r.Resolve()
	assert.Same(t, err, again)
}

func TestLenientRepositoryNotFound(t *testing.T) {
	r := New(Options{Open: failingOpener, Clock: fixedClock, Mode: ModeLenient})
	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, types.BuildMetadata{Head: "", Commit: "error", BuildTime: "unknown"}, snap.Metadata)
	assert.Equal(t, []types.Field{types.FieldBuildTime, types.FieldCommit, types.FieldHead}, snap.DegradedFields())
	assert.Contains(t, snap.Degraded[types.FieldBuildTime], "not inside a git repository")
}

func TestStrictDetachedHead(t *testing.T) {
	repo := &fakeRepo{headErr: fmt.Errorf("%w: detached HEAD at abc1234", types.ErrHeadUnresolvable)}
	r := New(Options{Open: opener(repo, nil), Clock: fixedClock})
	_, err := r.Resolve()
	assert.ErrorIs(t, err, types.ErrHeadUnresolvable)
	assert.Contains(t, err.Error(), "resolve head")
}

func TestLenientDetachedHeadKeepsDescriptor(t *testing.T) {
	repo := &fakeRepo{
		headErr: types.ErrHeadUnresolvable,
		desc:    types.Description{Abbrev: "abc1234"},
	}
	r := New(Options{Open: opener(repo, nil), Clock: fixedClock, Mode: ModeLenient})
	meta, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "", meta.Head)
	assert.Equal(t, "abc1234", meta.Commit)
}

func TestStrictDescribeFailed(t *testing.T) {
	repo := &fakeRepo{head: "main", descErr: types.ErrDescribeFailed}
	r := New(Options{Open: opener(repo, nil), Clock: fixedClock})
	_, err := r.Resolve()
	assert.ErrorIs(t, err, types.ErrDescribeFailed)
	field, _ := FieldOf(err)
	assert.Equal(t, types.FieldCommit, field)
}

func TestLenientCustomSentinels(t *testing.T) {
	repo := &fakeRepo{headErr: types.ErrHeadUnresolvable, descErr: types.ErrDescribeFailed}
	r := New(Options{
		Open:      opener(repo, nil),
		Clock:     func() time.Time { return time.Time{} },
		Mode:      ModeLenient,
		Sentinels: &Sentinels{Head: "detached", Commit: "unknown", BuildTime: "never"},
	})
	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, types.BuildMetadata{Head: "detached", Commit: "unknown", BuildTime: "never"}, snap.Metadata)
	assert.Equal(t, []types.Field{types.FieldBuildTime, types.FieldCommit, types.FieldHead}, snap.DegradedFields())
}

func TestStrictClockUnavailable(t *testing.T) {
	repo := &fakeRepo{head: "main"}
	r := New(Options{Open: opener(repo, nil), Clock: func() time.Time { return time.Time{} }})
	_, err := r.Resolve()
	assert.True(t, errors.Is(err, types.ErrClockUnavailable))
}

func TestBuildTimeIsRFC3339NearNow(t *testing.T) {
	repo := &fakeRepo{head: "main", desc: types.Description{Abbrev: "abc1234"}}
	r := New(Options{Open: opener(repo, nil)})
	before := time.Now()
	meta, err := r.Resolve()
	require.NoError(t, err)
	parsed, err := time.Parse(time.RFC3339, meta.BuildTime)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, parsed.Location())
	assert.WithinDuration(t, before, parsed, 5*time.Second)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, mode)
	mode, err = ParseMode(" Lenient ")
	require.NoError(t, err)
	assert.Equal(t, ModeLenient, mode)
	_, err = ParseMode("loose")
	assert.Error(t, err)
}

func TestLenientEmptySentinels(t *testing.T) {
	r := New(Options{Open: failingOpener, Clock: fixedClock, Mode: ModeLenient, Sentinels: &Sentinels{}})
	meta, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "", meta.Commit)
}
