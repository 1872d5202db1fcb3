package pprofreport

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/internal/testutil"
)

func buildProfile(t *testing.T) *model.Profile {
	t.Helper()

	mock := testutil.NewMockClock()
	p, err := model.NewProfile(model.ProfileOptions{
		ProfilingGroupName: "test-group",
		SamplingInterval:   100 * time.Millisecond,
		Start:              mock.Now().UnixMilli(),
		Clock:              mock,
	})
	require.NoError(t, err)

	bottom := model.NewFrame("main").WithSource("/app/main.go").WithLine(10)
	mid := model.NewFrame("Serve").WithOwner("*Server").WithSource("/app/server.go").WithLine(20)
	top1 := model.NewFrame("read").WithSource("/app/io.go").WithLine(30)
	top2 := model.NewFrame("write").WithSource("/app/io.go").WithLine(40)

	mock.Add(2 * time.Second)
	require.NoError(t, p.Add(model.Sample{
		Stacks:               [][]model.Frame{{bottom, mid, top1}, {bottom, mid, top2}, {bottom, mid, top1}, {bottom, mid}},
		AttemptedThreadCount: 4,
		SeenThreadCount:      4,
	}))
	return p
}

func sampleByLeaf(out *profile.Profile) map[string]*profile.Sample {
	byLeaf := make(map[string]*profile.Sample)
	for _, s := range out.Sample {
		byLeaf[s.Location[0].Line[0].Function.Name] = s
	}
	return byLeaf
}

func TestConvert(t *testing.T) {
	p := buildProfile(t)

	out, err := Convert(p)
	require.NoError(t, err)

	assert.Equal(t, int64(100*time.Millisecond), out.Period)
	assert.Equal(t, p.Start()*int64(time.Millisecond), out.TimeNanos)
	assert.Equal(t, int64(2*time.Second), out.DurationNanos)
	require.Len(t, out.SampleType, 2)
	assert.Len(t, out.Function, 4)

	samples := sampleByLeaf(out)
	require.Len(t, samples, 3)

	read := samples["read"]
	require.NotNil(t, read)
	assert.Equal(t, []int64{2, int64(200 * time.Millisecond)}, read.Value)
	require.Len(t, read.Location, 3)
	assert.Equal(t, "*Server.Serve", read.Location[1].Line[0].Function.Name)
	assert.Equal(t, "main", read.Location[2].Line[0].Function.Name)
	assert.Equal(t, int64(30), read.Location[0].Line[0].Line)
	assert.Equal(t, "/app/io.go", read.Location[0].Line[0].Function.Filename)

	assert.Equal(t, []int64{1, int64(100 * time.Millisecond)}, samples["write"].Value)
	assert.Equal(t, []int64{1, int64(100 * time.Millisecond)}, samples["*Server.Serve"].Value)
	assert.Len(t, samples["*Server.Serve"].Location, 2)
}

func TestConvert_EmptyProfile(t *testing.T) {
	mock := testutil.NewMockClock()
	p, err := model.NewProfile(model.ProfileOptions{Start: mock.Now().UnixMilli(), Clock: mock})
	require.NoError(t, err)

	out, err := Convert(p)
	require.NoError(t, err)
	assert.Empty(t, out.Sample)
}

func TestWrite_RoundTrip(t *testing.T) {
	out, err := Convert(buildProfile(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, out))

	parsed, err := profile.Parse(&buf)
	require.NoError(t, err)
	assert.Len(t, parsed.Sample, 3)
	assert.Equal(t, out.Period, parsed.Period)
}

func TestReporter(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{
		Dir:    dir,
		Prefix: "test-",
		Clock:  testutil.NewMockClock(),
		Logger: testutil.NewTestLogger(t),
	})
	ctx := testutil.NewTestContext(t)

	require.NoError(t, r.Setup(ctx))
	require.NoError(t, r.RefreshConfiguration(ctx))
	require.NoError(t, r.Report(ctx, buildProfile(t)))

	f, err := os.Open(r.PathFor(testutil.Epoch))
	require.NoError(t, err)
	defer f.Close()

	parsed, err := profile.Parse(f)
	require.NoError(t, err)
	assert.Len(t, parsed.Sample, 3)
}
