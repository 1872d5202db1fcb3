// Package store keeps reported profiles in a local DuckDB database so they
// can be listed and inspected without a backend.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/coral-profiler/internal/duckdb"
	coralerrors "github.com/coral-mesh/coral-profiler/internal/errors"
	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/internal/reporter/encoder"
	"github.com/coral-mesh/coral-profiler/internal/retry"
	"github.com/coral-mesh/coral-profiler/internal/safe"
)

// ErrNotSetup is returned by queries issued before Setup.
var ErrNotSetup = errors.New("profile store is not set up")

// Options configures a Store.
type Options struct {
	// Path of the database file. Empty opens an in-memory database.
	Path string
	// AgentID is recorded with every profile.
	AgentID string
	// Retention deletes profiles older than this after every report. Zero
	// keeps everything.
	Retention time.Duration
	Modules   *encoder.ModulePathExtractor
	Clock     clock.Clock
	Logger    zerolog.Logger
}

// writeRetry retries a report transaction that lost a write-write conflict.
var writeRetry = retry.Config{
	MaxRetries:     5,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     200 * time.Millisecond,
	Jitter:         0.1,
}

// Store is a reporter writing profiles into DuckDB.
//
// Frames are stored once in a dictionary and stacks reference them by id.
// Each stack row carries the self count of its top frame.
type Store struct {
	path      string
	agentID   string
	retention time.Duration
	modules   *encoder.ModulePathExtractor
	clock     clock.Clock
	logger    zerolog.Logger
	retry     retry.Config

	mu sync.RWMutex
	db *sql.DB

	// Frame dictionary cache: frame key -> frame id.
	frameDictCache map[string]int64
	nextFrameID    int64
}

// New creates a store. The database is opened by Setup.
func New(opts Options) *Store {
	if opts.Modules == nil {
		opts.Modules = encoder.NewModulePathExtractor(encoder.DefaultRoots())
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	logger := opts.Logger.With().Str("component", "profile_store").Logger()
	cfg := writeRetry
	cfg.Clock = opts.Clock
	cfg.OnRetry = func(attempt int, err error) {
		logger.Warn().Err(err).Int("attempt", attempt).Msg("Retrying profile write after conflict")
	}
	return &Store{
		path:           opts.Path,
		agentID:        opts.AgentID,
		retention:      opts.Retention,
		modules:        opts.Modules,
		clock:          opts.Clock,
		logger:         logger,
		retry:          cfg,
		frameDictCache: make(map[string]int64),
		nextFrameID:    1,
	}
}

// Setup opens the database, creates the schema and loads the frame
// dictionary. Calling it again is a no-op.
func (s *Store) Setup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := duckdb.OpenDB(s.path)
	if err != nil {
		return fmt.Errorf("failed to open profile store %s: %w", s.path, err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.db = db

	if err := s.loadFrameDictionary(ctx); err != nil {
		s.db = nil
		_ = db.Close()
		return fmt.Errorf("failed to load frame dictionary: %w", err)
	}

	s.logger.Info().
		Str("path", s.path).
		Int("frame_count", len(s.frameDictCache)).
		Msg("Profile store ready")
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// RefreshConfiguration is a no-op.
func (s *Store) RefreshConfiguration(context.Context) error {
	return nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS profile_frame_dictionary (
			frame_id    INTEGER PRIMARY KEY,
			frame_name  TEXT UNIQUE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS profiles (
			profile_id         TEXT PRIMARY KEY,
			profiling_group    TEXT      NOT NULL,
			agent_id           TEXT      NOT NULL,
			start_time         TIMESTAMP NOT NULL,
			end_time           TIMESTAMP NOT NULL,
			duration_ms        BIGINT    NOT NULL,
			sample_count       BIGINT    NOT NULL,
			seen_thread_count  BIGINT    NOT NULL,
			memory_usage_bytes BIGINT    NOT NULL,
			overhead_ms        DOUBLE    NOT NULL,
			cpu_time_seconds   DOUBLE    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_profiles_start_time ON profiles (start_time);
		CREATE INDEX IF NOT EXISTS idx_profiles_group ON profiles (profiling_group);

		CREATE TABLE IF NOT EXISTS profile_stacks (
			profile_id       TEXT      NOT NULL,
			stack_hash       TEXT      NOT NULL,
			stack_frame_ids  INTEGER[] NOT NULL,
			leaf_frame_id    INTEGER   NOT NULL,
			sample_count     BIGINT    NOT NULL,
			PRIMARY KEY (profile_id, stack_hash)
		);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) loadFrameDictionary(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT frame_id, frame_name FROM profile_frame_dictionary")
	if err != nil {
		return fmt.Errorf("failed to query frame dictionary: %w", err)
	}
	defer coralerrors.DeferClose(s.logger, rows, "failed to close frame dictionary rows")

	maxFrameID := int64(0)
	for rows.Next() {
		var frameID int64
		var frameName string
		if err := rows.Scan(&frameID, &frameName); err != nil {
			return fmt.Errorf("failed to scan frame dictionary row: %w", err)
		}
		s.frameDictCache[frameName] = frameID
		maxFrameID = max(maxFrameID, frameID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating frame dictionary: %w", err)
	}

	s.nextFrameID = maxFrameID + 1
	return nil
}

type stackRow struct {
	hash     string
	frameIDs []int64
	count    int64
}

// Report stores p with one row per stack whose top frame has a non-zero
// self count.
func (s *Store) Report(ctx context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrNotSetup
	}

	newFrames := make(map[string]int64)
	nextFrameID := s.nextFrameID
	frameID := func(key string) int64 {
		if id, ok := s.frameDictCache[key]; ok {
			return id
		}
		if id, ok := newFrames[key]; ok {
			return id
		}
		id := nextFrameID
		nextFrameID++
		newFrames[key] = id
		return id
	}

	var stacks []stackRow
	byHash := make(map[string]int)
	p.Root().Walk(func(node *model.CallGraphNode, path []*model.CallGraphNode) bool {
		if len(path) == 0 || node.LeafCount == 0 {
			return true
		}
		ids := make([]int64, 0, len(path))
		for _, ancestor := range path[1:] {
			ids = append(ids, frameID(s.modules.FrameKey(ancestor)))
		}
		ids = append(ids, frameID(s.modules.FrameKey(node)))
		hash := computeStackHash(ids)
		count, _ := safe.Uint64ToInt64(node.LeafCount)
		if i, ok := byHash[hash]; ok {
			stacks[i].count += count
			return true
		}
		byHash[hash] = len(stacks)
		stacks = append(stacks, stackRow{hash: hash, frameIDs: ids, count: count})
		return true
	})

	profileID := uuid.NewString()
	err := retry.Do(ctx, s.retry, func() error {
		return s.write(ctx, p, profileID, newFrames, stacks)
	}, duckdb.IsTransactionConflict)
	if err != nil {
		return err
	}

	for key, id := range newFrames {
		s.frameDictCache[key] = id
	}
	s.nextFrameID = nextFrameID

	s.logger.Debug().
		Str("profile_id", profileID).
		Int("stacks", len(stacks)).
		Int("new_frames", len(newFrames)).
		Msg("Stored profile")

	if s.retention > 0 {
		if err := s.cleanup(ctx, s.clock.Now().Add(-s.retention)); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to delete expired profiles")
		}
	}
	return nil
}

// write inserts one profile in a single transaction. It is safe to call
// again after a failure: nothing is kept from a rolled back attempt.
func (s *Store) write(ctx context.Context, p *model.Profile, profileID string, newFrames map[string]int64, stacks []stackRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer coralerrors.DeferRollback(s.logger, tx)

	for key, id := range newFrames {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO profile_frame_dictionary (frame_id, frame_name) VALUES (?, ?)",
			id, key,
		); err != nil {
			return fmt.Errorf("failed to insert frame %q: %w", key, err)
		}
	}

	end := p.End()
	if end == 0 {
		end = p.Start()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (
			profile_id, profiling_group, agent_id, start_time, end_time, duration_ms,
			sample_count, seen_thread_count, memory_usage_bytes, overhead_ms, cpu_time_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profileID,
		p.ProfilingGroupName,
		s.agentID,
		time.UnixMilli(p.Start()).UTC(),
		time.UnixMilli(end).UTC(),
		p.ActiveMillisSinceStart(),
		p.TotalSampleCount,
		p.TotalSeenThreadCount,
		p.MemoryUsageBytes(),
		p.OverheadMillis,
		p.CPUTimeSeconds,
	); err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	for _, stack := range stacks {
		// #nosec G202 - the list literal is formatted from integers, not user input.
		query := `
			INSERT INTO profile_stacks (
				profile_id, stack_hash, stack_frame_ids, leaf_frame_id, sample_count
			) VALUES (?, ?, ` + duckdb.Int64ArrayToString(stack.frameIDs) + `, ?, ?)`
		if _, err := tx.ExecContext(ctx, query,
			profileID,
			stack.hash,
			stack.frameIDs[len(stack.frameIDs)-1],
			stack.count,
		); err != nil {
			return fmt.Errorf("failed to insert stack: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// cleanup removes profiles that started before cutoff. Callers hold mu.
func (s *Store) cleanup(ctx context.Context, cutoff time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer coralerrors.DeferRollback(s.logger, tx)

	cutoff = cutoff.UTC()
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM profile_stacks
		WHERE profile_id IN (SELECT profile_id FROM profiles WHERE start_time < ?)`, cutoff); err != nil {
		return fmt.Errorf("failed to delete expired stacks: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM profiles WHERE start_time < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete expired profiles: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if deleted, _ := result.RowsAffected(); deleted > 0 {
		s.logger.Debug().
			Int64("profiles_deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Deleted expired profiles")
	}
	return nil
}

// computeStackHash hashes the frame ids of a stack with xxh3.
func computeStackHash(frameIDs []int64) string {
	buf := make([]byte, 8*len(frameIDs))
	for i, id := range frameIDs {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(id))
	}
	return strconv.FormatUint(xxh3.Hash(buf), 16)
}
