package persistence

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wfunc/gonu/models"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStore keeps records in a single SQLite file. Changes are announced
// through an in-process Hub, so it serves one server process.
type SQLiteStore struct {
	db  *sql.DB
	hub *Hub
}

// OpenSQLite creates or opens the database at path (":memory:" works for tests).
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite 只有一个写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, hub: NewHub()}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, sess *models.GameSession) error {
	sess.Version = 1
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO game_sessions (id, version, status, data, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sess.ID, sess.Version, string(sess.Status), data, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite create %s: %w", sess.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	s.hub.Publish(Change{ID: sess.ID, Session: sess})
	return nil
}

func (s *SQLiteStore) Read(ctx context.Context, id string) (*models.GameSession, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM game_sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read %s: %w", id, err)
	}
	return decodeSession(data)
}

func (s *SQLiteStore) Write(ctx context.Context, sess *models.GameSession, expectedVersion int64) error {
	next := sess.Clone()
	next.Version = expectedVersion + 1
	data, err := encodeSession(next)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE game_sessions SET version = ?, status = ?, data = ?, updated_at = ? WHERE id = ? AND version = ?`,
		next.Version, string(next.Status), data, next.UpdatedAt, next.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("sqlite write %s: %w", sess.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.missOrConflict(ctx, sess.ID)
	}
	sess.Version = next.Version
	s.hub.Publish(Change{ID: sess.ID, Session: next})
	return nil
}

func (s *SQLiteStore) missOrConflict(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM game_sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM game_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.hub.Publish(Change{ID: id, Deleted: true})
	return nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, id string) (<-chan Change, error) {
	return s.hub.Subscribe(ctx, id), nil
}

func (s *SQLiteStore) SaveMatch(ctx context.Context, rec *models.MatchRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO match_records (session_id, map_id, winner_id, loser_id, moves, duration_ms, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.MapID, rec.WinnerID, rec.LoserID, rec.Moves, rec.Duration.Milliseconds(), rec.EndedAt)
	if err != nil {
		return fmt.Errorf("sqlite save match %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	stats := &models.PlayerStats{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN winner_id = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN loser_id = ? THEN 1 ELSE 0 END), 0)
		FROM match_records
		WHERE winner_id = ? OR loser_id = ?`,
		userID, userID, userID, userID,
	).Scan(&stats.TotalGames, &stats.Wins, &stats.Losses)
	if err != nil {
		return nil, fmt.Errorf("sqlite player stats %s: %w", userID, err)
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	s.hub.Close()
	return s.db.Close()
}
