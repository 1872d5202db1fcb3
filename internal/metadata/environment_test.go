package metadata

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fakeProbe(env map[string]string, files map[string]string) probe {
	return probe{
		getenv: func(k string) string { return env[k] },
		stat: func(path string) (os.FileInfo, error) {
			if _, ok := files[path]; ok {
				return nil, nil
			}
			return nil, os.ErrNotExist
		},
		readFile: func(path string) ([]byte, error) {
			if data, ok := files[path]; ok {
				return []byte(data), nil
			}
			return nil, os.ErrNotExist
		},
	}
}

func TestDetectEnvironment(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		files map[string]string
		want  string
	}{
		{"bare host", nil, map[string]string{"/proc/1/cgroup": "0::/init.scope"}, ""},
		{"kubernetes", map[string]string{"KUBERNETES_SERVICE_HOST": "10.0.0.1"}, nil, EnvironmentKubernetes},
		{"docker marker file", nil, map[string]string{"/.dockerenv": ""}, EnvironmentDocker},
		{"docker cgroup", nil, map[string]string{"/proc/1/cgroup": "12:cpu:/docker/abc"}, EnvironmentDocker},
		{
			"kubernetes wins over docker",
			map[string]string{"KUBERNETES_SERVICE_HOST": "10.0.0.1"},
			map[string]string{"/.dockerenv": ""},
			EnvironmentKubernetes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectEnvironment(fakeProbe(tt.env, tt.files)))
		})
	}
}
