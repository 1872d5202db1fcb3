package duckdb

import (
	"database/sql"
	"net/url"
	"strings"

	duckdbDriver "github.com/marcboeker/go-duckdb"
)

// Resource limits applied to every database opened by OpenDB unless the DSN
// sets them.
const (
	DefaultThreads     = "1"
	DefaultMemoryLimit = "64MB"
)

// OpenDB opens a DuckDB database with the in-process resource limits
// applied. An empty DSN or ":memory:" opens an in-memory database.
func OpenDB(dsn string) (*sql.DB, error) {
	connector, err := duckdbDriver.NewConnector(injectResourceLimits(dsn), nil)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

// injectResourceLimits adds threads and memory_limit to the DSN query
// parameters if not already set.
func injectResourceLimits(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return dsn
	}

	sep := strings.IndexByte(dsn, '?')
	path := dsn
	query := ""
	if sep >= 0 {
		path = dsn[:sep]
		query = dsn[sep+1:]
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		return dsn
	}

	if !params.Has("threads") {
		params.Set("threads", DefaultThreads)
	}
	if !params.Has("memory_limit") {
		params.Set("memory_limit", DefaultMemoryLimit)
	}

	return path + "?" + params.Encode()
}
