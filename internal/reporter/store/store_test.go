package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/internal/reporter/encoder"
	"github.com/coral-mesh/coral-profiler/internal/testutil"
)

type fixture struct {
	clock *clock.Mock
	path  string
	store *Store
}

func newFixture(t *testing.T, retention time.Duration) *fixture {
	t.Helper()

	f := &fixture{
		clock: testutil.NewMockClock(),
		path:  filepath.Join(t.TempDir(), "profiles.duckdb"),
	}
	f.store = f.open(t, retention)
	return f
}

func (f *fixture) open(t *testing.T, retention time.Duration) *Store {
	t.Helper()

	s := New(Options{
		Path:      f.path,
		AgentID:   "agent-1",
		Retention: retention,
		Modules:   encoder.NewModulePathExtractor([]string{"/src/"}),
		Clock:     f.clock,
		Logger:    testutil.NewTestLogger(t),
	})
	require.NoError(t, s.Setup(testutil.NewTestContext(t)))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func (f *fixture) profile(t *testing.T, group string) *model.Profile {
	t.Helper()

	p, err := model.NewProfile(model.ProfileOptions{
		ProfilingGroupName: group,
		SamplingInterval:   time.Second,
		Start:              f.clock.Now().UnixMilli(),
		Clock:              f.clock,
	})
	require.NoError(t, err)

	bottom := model.NewFrame("main").WithSource("/src/app/main.go").WithLine(10)
	mid := model.NewFrame("Serve").WithOwner("*Server").WithSource("/src/app/server.go").WithLine(20)
	top1 := model.NewFrame("read").WithSource("/src/app/io.go").WithLine(30)
	top2 := model.NewFrame("write").WithSource("/src/app/io.go").WithLine(40)

	f.clock.Add(time.Second)
	require.NoError(t, p.Add(model.Sample{
		Stacks:               [][]model.Frame{{bottom, mid, top1}, {bottom, mid, top2}, {bottom, mid, top1}},
		AttemptedThreadCount: 3,
		SeenThreadCount:      3,
	}))
	return p
}

func TestReport_RequiresSetup(t *testing.T) {
	s := New(Options{Logger: testutil.NewTestLogger(t)})
	ctx := testutil.NewTestContext(t)

	mock := testutil.NewMockClock()
	p, err := model.NewProfile(model.ProfileOptions{Start: mock.Now().UnixMilli(), Clock: mock})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Report(ctx, p), ErrNotSetup)
	_, err = s.ListProfiles(ctx, ProfileFilter{})
	assert.ErrorIs(t, err, ErrNotSetup)
	assert.NoError(t, s.Close())
}

func TestReportAndQuery(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testutil.NewTestContext(t)

	p := f.profile(t, "group-a")
	require.NoError(t, f.store.Report(ctx, p))

	profiles, err := f.store.ListProfiles(ctx, ProfileFilter{})
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	got := profiles[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "group-a", got.ProfilingGroup)
	assert.Equal(t, "agent-1", got.AgentID)
	assert.Equal(t, p.Start(), got.Start.UnixMilli())
	assert.Equal(t, p.End(), got.End.UnixMilli())
	assert.Equal(t, int64(1), got.SampleCount)
	assert.Equal(t, int64(3), got.SeenThreadCount)
	assert.Equal(t, int64(1000), got.DurationMs)

	top, err := f.store.TopFrames(ctx, got.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []FrameCount{
		{Frame: "app/io:read", Samples: 2},
		{Frame: "app/io:write", Samples: 1},
	}, top)

	stacks, err := f.store.Stacks(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"app/main:main;app/server:*Server:Serve;app/io:read":  2,
		"app/main:main;app/server:*Server:Serve;app/io:write": 1,
	}, stacks)
}

func TestListProfiles_Filters(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testutil.NewTestContext(t)

	first := f.clock.Now()
	require.NoError(t, f.store.Report(ctx, f.profile(t, "group-a")))
	f.clock.Add(time.Minute)
	second := f.clock.Now()
	require.NoError(t, f.store.Report(ctx, f.profile(t, "group-b")))
	f.clock.Add(time.Minute)
	require.NoError(t, f.store.Report(ctx, f.profile(t, "group-a")))

	all, err := f.store.ListProfiles(ctx, ProfileFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Start.After(all[1].Start), "newest first")

	groupA, err := f.store.ListProfiles(ctx, ProfileFilter{ProfilingGroup: "group-a"})
	require.NoError(t, err)
	assert.Len(t, groupA, 2)

	since, err := f.store.ListProfiles(ctx, ProfileFilter{Since: second})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	until, err := f.store.ListProfiles(ctx, ProfileFilter{Until: first})
	require.NoError(t, err)
	assert.Len(t, until, 1)

	limited, err := f.store.ListProfiles(ctx, ProfileFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFrameDictionary_SurvivesReopen(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testutil.NewTestContext(t)

	require.NoError(t, f.store.Report(ctx, f.profile(t, "group-a")))
	require.NoError(t, f.store.Close())

	reopened := f.open(t, 0)
	assert.Len(t, reopened.frameDictCache, 4)
	assert.Equal(t, int64(5), reopened.nextFrameID)

	require.NoError(t, reopened.Report(ctx, f.profile(t, "group-a")))
	assert.Len(t, reopened.frameDictCache, 4, "known frames are reused")

	profiles, err := reopened.ListProfiles(ctx, ProfileFilter{})
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}

func TestRetention(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := testutil.NewTestContext(t)

	require.NoError(t, f.store.Report(ctx, f.profile(t, "old")))
	f.clock.Add(2 * time.Hour)
	require.NoError(t, f.store.Report(ctx, f.profile(t, "new")))

	profiles, err := f.store.ListProfiles(ctx, ProfileFilter{})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "new", profiles[0].ProfilingGroup)

	stacks, err := f.store.Stacks(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, stacks)
}

func TestComputeStackHash(t *testing.T) {
	assert.Equal(t, computeStackHash([]int64{1, 2, 3}), computeStackHash([]int64{1, 2, 3}))
	assert.NotEqual(t, computeStackHash([]int64{1, 2, 3}), computeStackHash([]int64{3, 2, 1}))
}
