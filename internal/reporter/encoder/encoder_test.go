package encoder

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-profiler/internal/metadata"
	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/internal/testutil"
)

func frame(name, owner, file string, line int) model.Frame {
	return model.NewFrame(name).WithOwner(owner).WithSource(file).WithLine(line)
}

func newProfile(t *testing.T) (*model.Profile, *clock.Mock) {
	t.Helper()

	mock := testutil.NewMockClock()
	p, err := model.NewProfile(model.ProfileOptions{
		ProfilingGroupName: "test-group",
		SamplingInterval:   time.Second,
		HostWeight:         1.0,
		Start:              mock.Now().UnixMilli(),
		Clock:              mock,
	})
	require.NoError(t, err)
	return p, mock
}

func newEncoder(gz bool) *Encoder {
	return New(Options{
		Metadata: &metadata.Metadata{
			Fleet:          metadata.FleetInfo{AgentID: "agent-1", OS: "linux", Arch: "amd64"},
			Agent:          metadata.AgentInfo{Type: metadata.AgentType, Version: "test"},
			RuntimeVersion: "go1.25.0",
		},
		Gzip:    gz,
		Modules: NewModulePathExtractor([]string{"/src/"}),
	})
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestEncode_CallGraph(t *testing.T) {
	p, mock := newProfile(t)

	bottom := frame("main", "", "/src/app/main.go", 10)
	mid := frame("Serve", "*Server", "/src/app/server.go", 20)
	top1 := frame("read", "", "/src/app/io.go", 30)
	top2 := frame("write", "", "/src/app/io.go", 40)

	mock.Add(time.Second)
	require.NoError(t, p.Add(model.Sample{
		Stacks:               [][]model.Frame{{bottom, mid, top1}, {bottom, mid, top2}, {bottom, mid}},
		AttemptedThreadCount: 3,
		SeenThreadCount:      3,
	}))
	require.NoError(t, p.Add(model.Sample{
		Stacks:               [][]model.Frame{{bottom, mid.WithLine(25), top1}},
		AttemptedThreadCount: 1,
		SeenThreadCount:      1,
	}))

	var buf bytes.Buffer
	require.NoError(t, newEncoder(false).Encode(&buf, p))
	doc := decode(t, buf.Bytes())

	assert.Equal(t, float64(p.Start()), doc["start"])
	assert.Equal(t, float64(p.End()), doc["end"])
	assert.Contains(t, doc, "agentMetadata")

	root := doc["callgraph"].(map[string]any)
	assert.NotContains(t, root, "counts")
	assert.NotContains(t, root, "file")

	children := root["children"].(map[string]any)
	require.Len(t, children, 1)
	mainNode := children["app/main:main"].(map[string]any)
	assert.Equal(t, "/src/app/main.go", mainNode["file"])
	assert.Equal(t, []any{float64(10)}, mainNode["line"])
	assert.NotContains(t, mainNode, "counts")

	serve := mainNode["children"].(map[string]any)["app/server:*Server:Serve"].(map[string]any)
	assert.Equal(t, []any{float64(20), float64(25)}, serve["line"])
	assert.Equal(t, map[string]any{"WALL_TIME": float64(1)}, serve["counts"])

	tops := serve["children"].(map[string]any)
	require.Len(t, tops, 2)
	assert.Equal(t, map[string]any{"WALL_TIME": float64(2)}, tops["app/io:read"].(map[string]any)["counts"])
	assert.Equal(t, map[string]any{"WALL_TIME": float64(1)}, tops["app/io:write"].(map[string]any)["counts"])
	assert.NotContains(t, tops["app/io:read"].(map[string]any), "children")
}

func TestEncode_Gzip(t *testing.T) {
	p, mock := newProfile(t)
	mock.Add(time.Second)
	require.NoError(t, p.Add(model.Sample{
		Stacks:               [][]model.Frame{{model.NewFrame("main")}},
		AttemptedThreadCount: 1,
		SeenThreadCount:      1,
	}))

	enc := newEncoder(true)
	assert.True(t, enc.Gzip())

	var buf bytes.Buffer
	require.NoError(t, enc.Encode(&buf, p))

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.NoError(t, zr.Close())

	doc := decode(t, data)
	children := doc["callgraph"].(map[string]any)["children"].(map[string]any)
	assert.Contains(t, children, "main")
}

func TestFrameKey_SkipsEmptyParts(t *testing.T) {
	extractor := NewModulePathExtractor([]string{"/src/"})

	tests := []struct {
		name  string
		frame model.Frame
		want  string
	}{
		{"name only", model.NewFrame("<Sleep>"), "<Sleep>"},
		{"owner and name", model.NewFrame("Do").WithOwner("Client"), "Client:Do"},
		{"module and name", model.NewFrame("main").WithSource("/src/cmd/tool/main.go"), "cmd/tool/main:main"},
		{"all parts", model.NewFrame("Do").WithOwner("*Client").WithSource("/src/net/http/client.go"), "net/http/client:*Client:Do"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := model.NewCallGraphNode(tt.frame, nil)
			assert.Equal(t, tt.want, extractor.FrameKey(node))
		})
	}
}
