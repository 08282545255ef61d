package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/glyphcore/internal/glyph"
	"github.com/leapstack-labs/glyphcore/pkg/core"
)

// Options configures a SQLiteStore.
type Options struct {
	// Retention caps stored glyphs after every save, newest kept. 0 keeps all.
	Retention int
	// Clock stamps rows. Defaults to time.Now.
	Clock func() time.Time
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// SQLiteStore stores glyphs in SQLite. All glyphs saved through one store
// belong to the same run, created on first save.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	retention int
	clock     func() time.Time
	logger    *slog.Logger

	mu    sync.Mutex
	runID string
}

// NewSQLiteStore creates a new SQLite glyph store instance.
func NewSQLiteStore(opts Options) *SQLiteStore {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{
		retention: opts.Retention,
		clock:     clock,
		logger:    logger,
	}
}

// NewSQLiteStoreWithDB wraps an already opened database. The caller runs
// Migrate if needed.
func NewSQLiteStoreWithDB(db *sql.DB, opts Options) *SQLiteStore {
	s := NewSQLiteStore(opts)
	s.db = db
	return s
}

// Open opens the database at path and applies migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path

	if err := s.Migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}

	s.logger.Debug("glyph store opened", "path", path)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunID returns the current run id, or "" before the first save.
func (s *SQLiteStore) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// ensureRun creates the run row on first use.
func (s *SQLiteStore) ensureRun(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != "" {
		return s.runID, nil
	}

	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		id, s.clock().UTC().UnixNano(),
	); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	s.runID = id
	s.logger.Debug("glyph run started", "run_id", id)
	return id, nil
}

// SaveGlyph stores a glyph with no source. It satisfies session.GlyphSink.
func (s *SQLiteStore) SaveGlyph(ctx context.Context, g core.IdentityGlyph) error {
	return s.save(ctx, "", g)
}

// ForSource returns a sink that tags every saved glyph with source,
// typically a graph node id. Glyphs are content-addressed: when two sources
// form the same glyph, one row is kept and ListGlyphs finds it under both.
func (s *SQLiteStore) ForSource(source string) *SourceSink {
	return &SourceSink{store: s, source: source}
}

// SourceSink saves glyphs under a fixed source.
type SourceSink struct {
	store  *SQLiteStore
	source string
}

// SaveGlyph stores g under the sink's source.
func (k *SourceSink) SaveGlyph(ctx context.Context, g core.IdentityGlyph) error {
	return k.store.save(ctx, k.source, g)
}

func (s *SQLiteStore) save(ctx context.Context, source string, g core.IdentityGlyph) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	runID, err := s.ensureRun(ctx)
	if err != nil {
		return err
	}

	coeffs, err := json.Marshal(g.SpectralCoefficients)
	if err != nil {
		return fmt.Errorf("failed to encode coefficients: %w", err)
	}
	var attractorID sql.NullInt64
	if g.SourceAttractorID != nil {
		attractorID = sql.NullInt64{Int64: int64(*g.SourceAttractorID), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO glyphs (id, run_id, source, first_step, last_step, formation_step,
			has_phase, source_attractor_id, coefficients, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		g.ID, runID, source, g.StepRange.First, g.StepRange.Last, g.FormationStep,
		g.HasPhase, attractorID, string(coeffs), s.clock().UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to save glyph %s: %w", g.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO glyph_sources (glyph_id, source) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		g.ID, source,
	); err != nil {
		return fmt.Errorf("failed to tag glyph %s: %w", g.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit glyph %s: %w", g.ID, err)
	}

	if s.retention > 0 {
		if _, err := s.Prune(ctx, s.retention); err != nil {
			return err
		}
	}
	return nil
}

const selectGlyph = `
	SELECT g.id, g.run_id, g.source, g.first_step, g.last_step, g.formation_step,
		g.has_phase, g.source_attractor_id, g.coefficients, g.created_at
	FROM glyphs g`

// selectGlyphBySource reports the matched source, so a glyph formed by
// several nodes lists under each of them.
const selectGlyphBySource = `
	SELECT g.id, g.run_id, gs.source, g.first_step, g.last_step, g.formation_step,
		g.has_phase, g.source_attractor_id, g.coefficients, g.created_at
	FROM glyphs g
	JOIN glyph_sources gs ON gs.glyph_id = g.id
	WHERE gs.source = ?`

// GetGlyph retrieves a glyph by id. A missing id yields an error wrapping
// ErrNotFound.
func (s *SQLiteStore) GetGlyph(ctx context.Context, id string) (*GlyphRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rec, err := scanGlyph(s.db.QueryRowContext(ctx, selectGlyph+` WHERE g.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get glyph: %w", err)
	}
	return rec, nil
}

// ListGlyphs returns stored glyphs, newest first.
func (s *SQLiteStore) ListGlyphs(ctx context.Context, opts ListOptions) ([]GlyphRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := selectGlyph
	var args []any
	if opts.Source != "" {
		query = selectGlyphBySource
		args = append(args, opts.Source)
	}
	query += ` ORDER BY g.rowid DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list glyphs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []GlyphRecord
	for rows.Next() {
		rec, err := scanGlyph(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan glyph: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list glyphs: %w", err)
	}
	return out, nil
}

// Nearest returns up to k stored glyphs closest to target by spectral
// distance, nearest first. Glyphs with a different coefficient count are
// not comparable and are skipped. Equal distances order by id.
func (s *SQLiteStore) Nearest(ctx context.Context, target core.IdentityGlyph, k int) ([]Match, error) {
	if k < 1 {
		return nil, &core.ConfigurationError{Field: "k", Value: k, Reason: "must be >= 1"}
	}

	all, err := s.ListGlyphs(ctx, ListOptions{})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(all))
	for _, rec := range all {
		d, err := glyph.Distance(target, rec.IdentityGlyph)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Record: rec, Distance: d})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Prune deletes all but the newest keep glyphs and returns how many were
// removed. keep <= 0 removes nothing.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	if keep <= 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM glyphs WHERE rowid NOT IN (SELECT rowid FROM glyphs ORDER BY rowid DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune glyphs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune glyphs: %w", err)
	}
	if n > 0 {
		s.logger.Debug("glyphs pruned", "removed", n, "kept", keep)
	}
	return n, nil
}

// Count returns the number of stored glyphs.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM glyphs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count glyphs: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGlyph(row scanner) (*GlyphRecord, error) {
	var (
		rec         GlyphRecord
		attractorID sql.NullInt64
		coeffs      string
		createdAt   int64
	)
	if err := row.Scan(
		&rec.ID, &rec.RunID, &rec.Source,
		&rec.StepRange.First, &rec.StepRange.Last, &rec.FormationStep,
		&rec.HasPhase, &attractorID, &coeffs, &createdAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(coeffs), &rec.SpectralCoefficients); err != nil {
		return nil, fmt.Errorf("decode coefficients of %s: %w", rec.ID, err)
	}
	if attractorID.Valid {
		id := int(attractorID.Int64)
		rec.SourceAttractorID = &id
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return &rec, nil
}
