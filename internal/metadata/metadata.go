// Package metadata describes the running agent and its host, and renders the
// per-profile agent metadata block shipped with every report.
package metadata

import (
	"context"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/pkg/version"
)

// AgentType identifies this agent implementation in reports.
const AgentType = "coral-profiler-go"

const bytesPerMB = 1024 * 1024

// FleetInfo describes the host the profiled process runs on.
type FleetInfo struct {
	AgentID         string `json:"agentId"`
	Hostname        string `json:"hostname,omitempty"`
	OS              string `json:"os"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platformVersion,omitempty"`
	KernelVersion   string `json:"kernelVersion,omitempty"`
	Arch            string `json:"arch"`
	NumCPU          int    `json:"numCpu"`
	Environment     string `json:"environment,omitempty"`
}

// AgentInfo names the agent build.
type AgentInfo struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// Metadata is collected once at startup and reused for every report.
type Metadata struct {
	Fleet          FleetInfo
	Agent          AgentInfo
	RuntimeVersion string
}

// New collects the agent metadata. Host lookups that fail are logged and
// left empty; the agent id is always set.
func New(ctx context.Context, logger zerolog.Logger) *Metadata {
	logger = logger.With().Str("component", "metadata").Logger()

	fleet := FleetInfo{
		AgentID:     uuid.NewString(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		NumCPU:      runtime.NumCPU(),
		Environment: detectEnvironment(hostProbe),
	}

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to read host info")
		if name, herr := os.Hostname(); herr == nil {
			fleet.Hostname = name
		}
	} else {
		fleet.Hostname = info.Hostname
		fleet.Platform = info.Platform
		fleet.PlatformVersion = info.PlatformVersion
		fleet.KernelVersion = info.KernelVersion
		if info.OS != "" {
			fleet.OS = info.OS
		}
	}

	return &Metadata{
		Fleet: fleet,
		Agent: AgentInfo{
			Type:    AgentType,
			Version: version.Version,
		},
		RuntimeVersion: runtime.Version(),
	}
}

// Overhead is the cost the agent itself added to the process.
type Overhead struct {
	MemoryUsageMB float64 `json:"memory_usage_mb"`
	TimeInMs      int64   `json:"timeInMs,omitempty"`
}

// Metrics carries derived sampling statistics.
type Metrics struct {
	NumThreads float64 `json:"numThreads"`
}

// Document is the agentMetadata block of an encoded profile.
type Document struct {
	SampleWeights    map[string]float64 `json:"sampleWeights"`
	DurationInMs     int64              `json:"durationInMs"`
	FleetInfo        FleetInfo          `json:"fleetInfo"`
	AgentInfo        AgentInfo          `json:"agentInfo"`
	AgentOverhead    Overhead           `json:"agentOverhead"`
	RuntimeVersion   string             `json:"runtimeVersion"`
	CPUTimeInSeconds float64            `json:"cpuTimeInSeconds"`
	Metrics          Metrics            `json:"metrics"`
}

// Document renders the metadata block for p.
//
// The sample weight is samples per second of active profiling time, 1.0 for
// a profile with no active time. NumThreads is the average number of
// goroutines seen per sample.
func (m *Metadata) Document(p *model.Profile) Document {
	durationMs := p.ActiveMillisSinceStart()

	weight := 1.0
	if durationMs > 0 {
		weight = float64(p.TotalSampleCount) / (float64(durationMs) / 1000.0)
	}

	var numThreads float64
	if p.TotalSampleCount > 0 {
		numThreads = float64(p.TotalSeenThreadCount) / float64(p.TotalSampleCount)
	}

	return Document{
		SampleWeights:  map[string]float64{"WALL_TIME": weight},
		DurationInMs:   durationMs,
		FleetInfo:      m.Fleet,
		AgentInfo:      m.Agent,
		RuntimeVersion: m.RuntimeVersion,
		AgentOverhead: Overhead{
			MemoryUsageMB: float64(p.MemoryUsageBytes()) / bytesPerMB,
			TimeInMs:      int64(p.OverheadMillis),
		},
		CPUTimeInSeconds: p.CPUTimeSeconds,
		Metrics:          Metrics{NumThreads: numThreads},
	}
}
