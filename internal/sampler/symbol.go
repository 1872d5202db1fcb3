package sampler

import (
	"strings"
)

// Symbol is a Go function symbol split into its parts.
type Symbol struct {
	// Package is the import path, e.g. "net/http".
	Package string
	// Owner is the receiver type of a method, e.g. "*conn". Empty for
	// functions and closures not attached to a method.
	Owner string
	// Name is the function or method name, including closure suffixes.
	Name string
}

// ParseSymbol splits a symbol such as "net/http.(*conn).serve" into
// {"net/http", "*conn", "serve"}. Value receivers ("pkg.T.M") and closures
// ("pkg.Func.func1", "pkg.(*T).M.func2") are recognised.
func ParseSymbol(full string) Symbol {
	pkgEnd := 0
	if slash := strings.LastIndexByte(full, '/'); slash >= 0 {
		pkgEnd = slash
	}
	dot := strings.IndexByte(full[pkgEnd:], '.')
	if dot < 0 {
		return Symbol{Name: full}
	}
	// Dots in the last path element are escaped as %2e.
	pkg := strings.ReplaceAll(full[:pkgEnd+dot], "%2e", ".")
	rest := full[pkgEnd+dot+1:]

	if strings.HasPrefix(rest, "(") {
		if end := strings.Index(rest, ")."); end > 0 {
			return Symbol{Package: pkg, Owner: rest[1:end], Name: rest[end+2:]}
		}
		return Symbol{Package: pkg, Name: rest}
	}

	first, tail, ok := strings.Cut(rest, ".")
	if !ok || isClosureSuffix(tail) {
		return Symbol{Package: pkg, Name: rest}
	}
	return Symbol{Package: pkg, Owner: first, Name: tail}
}

// isClosureSuffix matches the compiler generated names following a function
// name: "func1", "gowrap2", "1".
func isClosureSuffix(s string) bool {
	seg, _, _ := strings.Cut(s, ".")
	for _, prefix := range []string{"func", "gowrap", "deferwrap"} {
		if strings.HasPrefix(seg, prefix) && isDigits(seg[len(prefix):]) {
			return true
		}
	}
	return isDigits(seg)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
