package metadata

import (
	"os"
	"strings"
)

// Deployment environments reported in FleetInfo.Environment.
const (
	EnvironmentKubernetes = "kubernetes"
	EnvironmentDocker     = "docker"
)

// probe reads the process environment. Tests replace it.
type probe struct {
	getenv   func(string) string
	stat     func(string) (os.FileInfo, error)
	readFile func(string) ([]byte, error)
}

var hostProbe = probe{
	getenv:   os.Getenv,
	stat:     os.Stat,
	readFile: os.ReadFile,
}

// detectEnvironment names the container platform the process runs on, or
// returns "" outside containers.
func detectEnvironment(p probe) string {
	if p.getenv("KUBERNETES_SERVICE_HOST") != "" {
		return EnvironmentKubernetes
	}
	if _, err := p.stat("/.dockerenv"); err == nil {
		return EnvironmentDocker
	}
	if data, err := p.readFile("/proc/1/cgroup"); err == nil && strings.Contains(string(data), "docker") {
		return EnvironmentDocker
	}
	return ""
}
