// Package duckdb opens the embedded DuckDB database used by the local profile
// store and builds the SELECT queries run against it.
//
// The profiler runs inside the profiled process, so OpenDB caps the
// database at one worker thread and a small memory limit unless the DSN
// says otherwise.
//
// The query builder generates SQL only and does not execute it:
//
//	query, args, err := duckdb.NewQueryBuilder("profiles").
//	    Select("profile_id", "start_time").
//	    Eq("profiling_group", group).
//	    Gte("start_time", since).
//	    OrderBy("-start_time").
//	    Limit(20).
//	    Build()
//
//	rows, err := db.QueryContext(ctx, query, args...)
//
// Empty string filters are skipped, so an unset flag means "any".
package duckdb
