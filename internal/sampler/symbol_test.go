package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		want   Symbol
	}{
		{"main.main", Symbol{Package: "main", Name: "main"}},
		{"net/http.(*conn).serve", Symbol{Package: "net/http", Owner: "*conn", Name: "serve"}},
		{"net/http.HandlerFunc.ServeHTTP", Symbol{Package: "net/http", Owner: "HandlerFunc", Name: "ServeHTTP"}},
		{"example.com/app.Run.func1", Symbol{Package: "example.com/app", Name: "Run.func1"}},
		{"example.com/app.Run.func1.2", Symbol{Package: "example.com/app", Name: "Run.func1.2"}},
		{"example.com/app.(*Server).Start.gowrap1", Symbol{Package: "example.com/app", Owner: "*Server", Name: "Start.gowrap1"}},
		{"example.com/app.(*Cache[...]).Get", Symbol{Package: "example.com/app", Owner: "*Cache[...]", Name: "Get"}},
		{"gopkg.in/yaml%2ev3.(*decoder).unmarshal", Symbol{Package: "gopkg.in/yaml.v3", Owner: "*decoder", Name: "unmarshal"}},
		{"runtime.gopark", Symbol{Package: "runtime", Name: "gopark"}},
		{"nodot", Symbol{Name: "nodot"}},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSymbol(tt.symbol))
		})
	}
}
