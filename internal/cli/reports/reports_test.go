package reports

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-profiler/internal/cli/helpers"
	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/internal/reporter/encoder"
	"github.com/coral-mesh/coral-profiler/internal/reporter/store"
	"github.com/coral-mesh/coral-profiler/internal/testutil"
)

// seededStore returns a store holding one "checkout" profile with the stacks
// main>Serve>read (twice) and main>Serve>write.
func seededStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	ctx := testutil.NewTestContext(t)
	clk := testutil.NewMockClock()

	st := store.New(store.Options{
		Path:    filepath.Join(t.TempDir(), "profiles.duckdb"),
		AgentID: "agent-1",
		Modules: encoder.NewModulePathExtractor([]string{"/src/"}),
		Clock:   clk,
		Logger:  testutil.NewTestLogger(t),
	})
	require.NoError(t, st.Setup(ctx))
	t.Cleanup(func() { _ = st.Close() })

	p, err := model.NewProfile(model.ProfileOptions{
		ProfilingGroupName: "checkout",
		SamplingInterval:   time.Second,
		Start:              clk.Now().UnixMilli(),
		Clock:              clk,
	})
	require.NoError(t, err)

	bottom := model.NewFrame("main").WithSource("/src/app/main.go").WithLine(10)
	mid := model.NewFrame("Serve").WithOwner("*Server").WithSource("/src/app/server.go").WithLine(20)
	read := model.NewFrame("read").WithSource("/src/app/io.go").WithLine(30)
	write := model.NewFrame("write").WithSource("/src/app/io.go").WithLine(40)

	clk.Add(time.Second)
	require.NoError(t, p.Add(model.Sample{
		Stacks:               [][]model.Frame{{bottom, mid, read}, {bottom, mid, write}, {bottom, mid, read}},
		AttemptedThreadCount: 3,
		SeenThreadCount:      3,
	}))
	clk.Add(time.Second)
	require.NoError(t, st.Report(ctx, p))

	profiles, err := st.ListProfiles(ctx, store.ProfileFilter{})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	return st, profiles[0].ID
}

func TestRunListTable(t *testing.T) {
	st, id := seededStore(t)

	var buf bytes.Buffer
	require.NoError(t, runList(testutil.NewTestContext(t), st, store.ProfileFilter{ProfilingGroup: "checkout"}, helpers.FormatTable, &buf))

	out := buf.String()
	assert.Contains(t, out, "PROFILE")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "checkout")
	assert.NotContains(t, out, "agent-1")
}

func TestRunListJSON(t *testing.T) {
	st, id := seededStore(t)

	var buf bytes.Buffer
	require.NoError(t, runList(testutil.NewTestContext(t), st, store.ProfileFilter{}, helpers.FormatJSON, &buf))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0]["profile_id"])
	assert.Equal(t, "agent-1", rows[0]["agent_id"])
	assert.EqualValues(t, 1, rows[0]["samples"])
	assert.EqualValues(t, 3, rows[0]["avg_threads"])
}

func TestRunListEmpty(t *testing.T) {
	st, _ := seededStore(t)

	var buf bytes.Buffer
	require.NoError(t, runList(testutil.NewTestContext(t), st, store.ProfileFilter{ProfilingGroup: "billing"}, helpers.FormatTable, &buf))
	assert.Equal(t, "No profiles found.\n", buf.String())
}

func TestRunTop(t *testing.T) {
	st, id := seededStore(t)

	var buf bytes.Buffer
	require.NoError(t, runTop(testutil.NewTestContext(t), st, id, 1, helpers.FormatCSV, &buf))
	assert.Equal(t, "FRAME,SAMPLES,%\napp/io:read,2,66.667\n", buf.String())

	err := runTop(testutil.NewTestContext(t), st, "missing", 10, helpers.FormatTable, &buf)
	assert.Error(t, err)
}

func TestRunStacks(t *testing.T) {
	st, id := seededStore(t)

	var buf bytes.Buffer
	require.NoError(t, runStacks(testutil.NewTestContext(t), st, id, &buf))
	assert.Equal(t,
		"app/main:main;app/server:*Server:Serve;app/io:read 2\n"+
			"app/main:main;app/server:*Server:Serve;app/io:write 1\n",
		buf.String())
}

func TestNewProfileRow(t *testing.T) {
	row := newProfileRow(store.ProfileSummary{
		ID:               "p1",
		DurationMs:       1500,
		SampleCount:      4,
		SeenThreadCount:  10,
		MemoryUsageBytes: 2 * 1024 * 1024,
	})
	assert.Equal(t, "1.5s", row.Duration)
	assert.InDelta(t, 2.5, row.Threads, 1e-9)
	assert.InDelta(t, 2.0, row.MemoryMB, 1e-9)

	assert.Zero(t, newProfileRow(store.ProfileSummary{}).Threads)
}
