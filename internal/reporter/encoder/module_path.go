package encoder

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/coral-mesh/coral-profiler/internal/model"
)

const frameDelimiter = ":"

// ModulePathExtractor turns source file paths into short module paths by
// removing the longest matching root and the ".go" suffix. Module cache
// version suffixes ("@v1.2.3") are dropped as well.
type ModulePathExtractor struct {
	roots []string

	mu    sync.Mutex
	cache map[string]string
}

// NewModulePathExtractor returns an extractor for roots. Longer roots are
// tried first.
func NewModulePathExtractor(roots []string) *ModulePathExtractor {
	sorted := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		sorted = append(sorted, filepath.ToSlash(root))
	}
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	return &ModulePathExtractor{
		roots: sorted,
		cache: make(map[string]string),
	}
}

// DefaultRoots returns the standard library source directory and the module
// cache of the current environment.
func DefaultRoots() []string {
	var roots []string

	goroot := os.Getenv("GOROOT")
	if goroot == "" {
		goroot = runtime.GOROOT()
	}
	if goroot != "" {
		roots = append(roots, filepath.Join(goroot, "src")+"/")
	}

	modCache := os.Getenv("GOMODCACHE")
	if modCache == "" {
		gopath := os.Getenv("GOPATH")
		if gopath == "" {
			if home, err := os.UserHomeDir(); err == nil {
				gopath = filepath.Join(home, "go")
			}
		}
		if gopath != "" {
			modCache = filepath.Join(gopath, "pkg", "mod")
		}
	}
	if modCache != "" {
		roots = append(roots, modCache+"/")
	}
	return roots
}

// ModulePath returns the module path of file, or "" for an empty file.
func (e *ModulePathExtractor) ModulePath(file string) string {
	if file == "" {
		return ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if path, ok := e.cache[file]; ok {
		return path
	}
	path := e.extract(file)
	e.cache[file] = path
	return path
}

func (e *ModulePathExtractor) extract(file string) string {
	path := filepath.ToSlash(file)
	for _, root := range e.roots {
		if rest, ok := strings.CutPrefix(path, root); ok {
			path = rest
			break
		}
	}

	path = strings.TrimSuffix(path, ".go")
	path = stripVersions(path)
	return strings.TrimPrefix(path, "/")
}

// stripVersions removes "@version" from every path segment.
func stripVersions(path string) string {
	if !strings.Contains(path, "@") {
		return path
	}
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if at := strings.IndexByte(segment, '@'); at > 0 {
			segments[i] = segment[:at]
		}
	}
	return strings.Join(segments, "/")
}

// FrameKey returns the "module:owner:name" key of n, skipping empty parts.
func (e *ModulePathExtractor) FrameKey(n *model.CallGraphNode) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{e.ModulePath(n.SourcePath), n.OwnerType, n.Name} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, frameDelimiter)
}
