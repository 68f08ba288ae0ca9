package scroll

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shiboru/internal/models"
)

// ErrSessionNotFound is returned for unknown or expired scroll ids.
var ErrSessionNotFound = errors.New("scroll session not found")

// Store persists scroll sessions in SQLite so sessions survive restarts.
// The engine above serializes executions per session; the store itself only
// guards its own connection.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the session database at dbPath. Parent
// directories are created if they do not exist.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create scroll store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open scroll store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize scroll schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scroll_sessions (
		id TEXT PRIMARY KEY,
		request TEXT NOT NULL,
		last_doc INTEGER NOT NULL,
		has_last_doc INTEGER NOT NULL,
		last_max_score REAL,
		total_hits INTEGER NOT NULL,
		total_relation INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scroll_updated_at ON scroll_sessions(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Create registers a fresh session holding the serialized originating
// request and returns the session id.
func (s *Store) Create(ctx context.Context, request string) (string, error) {
	id := uuid.NewString()
	state := models.NewScrollState()
	if err := s.put(ctx, id, request, state); err != nil {
		return "", err
	}
	return id, nil
}

// Get loads the state of a session together with the serialized request
// that opened it.
func (s *Store) Get(ctx context.Context, id string) (*models.ScrollState, string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT request, last_doc, has_last_doc, last_max_score, total_hits, total_relation
		 FROM scroll_sessions WHERE id = ?`, id)

	state := models.NewScrollState()
	var request string
	var hasLast, relation int
	var maxScore sql.NullFloat64
	err := row.Scan(&request, &state.LastEmittedDoc, &hasLast, &maxScore, &state.TotalHits, &relation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrSessionNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load scroll session: %w", err)
	}
	state.HasLastEmitted = hasLast != 0
	state.TotalRelation = models.HitRelation(relation)
	if maxScore.Valid {
		state.LastMaxScore = maxScore.Float64
	}
	return state, request, nil
}

// Save writes back the state of a session after an execution.
func (s *Store) Save(ctx context.Context, id, request string, state *models.ScrollState) error {
	return s.put(ctx, id, request, state)
}

func (s *Store) put(ctx context.Context, id, request string, state *models.ScrollState) error {
	hasLast := 0
	if state.HasLastEmitted {
		hasLast = 1
	}
	maxScore := sql.NullFloat64{}
	if state.LastMaxScore == state.LastMaxScore { // not NaN
		maxScore = sql.NullFloat64{Float64: state.LastMaxScore, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scroll_sessions (id, request, last_doc, has_last_doc, last_max_score, total_hits, total_relation, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			request = excluded.request,
			last_doc = excluded.last_doc,
			has_last_doc = excluded.has_last_doc,
			last_max_score = excluded.last_max_score,
			total_hits = excluded.total_hits,
			total_relation = excluded.total_relation,
			updated_at = excluded.updated_at`,
		id, request, int64(state.LastEmittedDoc), hasLast, maxScore, state.TotalHits, int(state.TotalRelation), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save scroll session: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scroll_sessions WHERE id = ?`, id)
	return err
}

// Expire removes sessions idle for longer than ttl and returns how many were
// removed.
func (s *Store) Expire(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scroll_sessions WHERE updated_at < ?`, time.Now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to expire scroll sessions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
