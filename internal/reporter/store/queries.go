package store

import (
	"context"
	"fmt"
	"time"

	"github.com/coral-mesh/coral-profiler/internal/duckdb"
	coralerrors "github.com/coral-mesh/coral-profiler/internal/errors"
)

// ProfileFilter selects stored profiles. Zero fields match everything.
type ProfileFilter struct {
	ProfilingGroup string
	Since          time.Time
	Until          time.Time
	Limit          int
}

// ProfileSummary is one stored profile.
type ProfileSummary struct {
	ID               string
	ProfilingGroup   string
	AgentID          string
	Start            time.Time
	End              time.Time
	DurationMs       int64
	SampleCount      int64
	SeenThreadCount  int64
	MemoryUsageBytes int64
	OverheadMs       float64
	CPUTimeSeconds   float64
}

// FrameCount is the number of samples a frame was on top of the stack.
type FrameCount struct {
	Frame   string
	Samples int64
}

// ListProfiles returns stored profiles, newest first.
func (s *Store) ListProfiles(ctx context.Context, filter ProfileFilter) ([]ProfileSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotSetup
	}

	b := duckdb.NewQueryBuilder("profiles").
		Select(
			"profile_id", "profiling_group", "agent_id", "start_time", "end_time",
			"duration_ms", "sample_count", "seen_thread_count", "memory_usage_bytes",
			"overhead_ms", "cpu_time_seconds",
		).
		Eq("profiling_group", filter.ProfilingGroup)
	if !filter.Since.IsZero() {
		b.Gte("start_time", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		b.Lte("start_time", filter.Until.UTC())
	}
	query, args, err := b.OrderBy("-start_time").Limit(filter.Limit).Build()
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("query", duckdb.InterpolateQuery(query, args)).Msg("Listing profiles")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer coralerrors.DeferClose(s.logger, rows, "failed to close profile rows")

	var profiles []ProfileSummary
	for rows.Next() {
		var p ProfileSummary
		if err := rows.Scan(
			&p.ID, &p.ProfilingGroup, &p.AgentID, &p.Start, &p.End,
			&p.DurationMs, &p.SampleCount, &p.SeenThreadCount, &p.MemoryUsageBytes,
			&p.OverheadMs, &p.CPUTimeSeconds,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}

// TopFrames returns the frames most often on top of the stack in a profile,
// by decreasing sample count.
func (s *Store) TopFrames(ctx context.Context, profileID string, limit int) ([]FrameCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotSetup
	}

	query, args, err := duckdb.NewQueryBuilder("profile_stacks s JOIN profile_frame_dictionary d ON d.frame_id = s.leaf_frame_id").
		Select("d.frame_name", "CAST(SUM(s.sample_count) AS BIGINT) AS samples").
		Where("s.profile_id = ?", profileID).
		GroupBy("d.frame_name").
		OrderBy("-samples", "d.frame_name").
		Limit(limit).
		Build()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top frames: %w", err)
	}
	defer coralerrors.DeferClose(s.logger, rows, "failed to close top frame rows")

	var frames []FrameCount
	for rows.Next() {
		var f FrameCount
		if err := rows.Scan(&f.Frame, &f.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan top frame row: %w", err)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top frames: %w", err)
	}
	return frames, nil
}

// Stacks returns the self counts of a profile keyed by folded stack, bottom
// frame first.
func (s *Store) Stacks(ctx context.Context, profileID string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotSetup
	}

	names := make(map[int64]string, len(s.frameDictCache))
	for name, id := range s.frameDictCache {
		names[id] = name
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT stack_frame_ids, sample_count FROM profile_stacks WHERE profile_id = ?", profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stacks: %w", err)
	}
	defer coralerrors.DeferClose(s.logger, rows, "failed to close stack rows")

	stacks := make(map[string]int64)
	for rows.Next() {
		var raw any
		var count int64
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stack row: %w", err)
		}
		ids, err := duckdb.ArrayToInt64(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to convert stack frame ids")
			continue
		}
		stacks[foldStack(ids, names)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stacks: %w", err)
	}
	return stacks, nil
}

// foldStack renders a stack in the folded format: frames joined by ";".
func foldStack(ids []int64, names map[int64]string) string {
	folded := make([]byte, 0, len(ids)*16)
	for i, id := range ids {
		if i > 0 {
			folded = append(folded, ';')
		}
		name, ok := names[id]
		if !ok {
			name = fmt.Sprintf("unknown_frame_%d", id)
		}
		folded = append(folded, name...)
	}
	return string(folded)
}
