// Package history keeps an index of backup runs and the copies they made.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/tangthinker/foldersnap/internal/backup"
)

// Run is one recorded backup run.
type Run struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Target   string    `json:"target"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"` // zero while running or after a crash
	Reason   string    `json:"reason"`
	Copies   int       `json:"copies"`
	Errors   int       `json:"errors"`
}

// Copy is one recorded folder copy.
type Copy struct {
	ID       int64         `json:"id"`
	RunID    string        `json:"run_id"`
	Folder   string        `json:"folder"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Errors   int           `json:"errors"`
	Journal  string        `json:"journal,omitempty"`
}

// SQLite stores history in a SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ backup.Recorder = (*SQLite)(nil)

// NewSQLite opens the database at path, creating it and its tables if needed.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	// 单写者，避免 database is locked
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the tables.
func (s *SQLite) Init() error {
	statements := []string{
		"PRAGMA foreign_keys = ON",
		"CREATE TABLE IF NOT EXISTS runs (" +
			"id TEXT PRIMARY KEY, " +
			"label TEXT NOT NULL, " +
			"target TEXT NOT NULL, " +
			"started INTEGER NOT NULL, " +
			"finished INTEGER NOT NULL DEFAULT 0, " +
			"reason TEXT NOT NULL DEFAULT ''" +
			")",
		"CREATE TABLE IF NOT EXISTS copies (" +
			"id INTEGER PRIMARY KEY AUTOINCREMENT, " +
			"run_id TEXT NOT NULL, " +
			"folder TEXT NOT NULL, " +
			"started INTEGER NOT NULL, " +
			"duration_ms INTEGER NOT NULL, " +
			"errors INTEGER NOT NULL, " +
			"journal TEXT NOT NULL DEFAULT '', " +
			"FOREIGN KEY(run_id) REFERENCES runs(id)" +
			")",
		"CREATE INDEX IF NOT EXISTS copies_run ON copies(run_id)",
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialise history: %w", err)
		}
	}
	log.Debug().Msg("history tables ready")
	return nil
}

func (s *SQLite) StartRun(label, target string, started time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec("INSERT INTO runs (id, label, target, started) VALUES(?, ?, ?, ?)",
		id, label, target, started.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

func (s *SQLite) RecordCopy(runID string, result backup.CopyResult) error {
	_, err := s.db.Exec("INSERT INTO copies (run_id, folder, started, duration_ms, errors, journal) VALUES(?, ?, ?, ?, ?, ?)",
		runID, result.Folder, result.Started.UnixNano(), result.Duration.Milliseconds(), result.Errors, result.Journal)
	if err != nil {
		return fmt.Errorf("failed to record copy: %w", err)
	}
	return nil
}

func (s *SQLite) FinishRun(runID string, finished time.Time, reason string) error {
	res, err := s.db.Exec("UPDATE runs SET finished = ?, reason = ? WHERE id = ?", finished.UnixNano(), reason, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// Runs returns the most recent runs first. A limit <= 0 returns all of them.
func (s *SQLite) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		"SELECT r.id, r.label, r.target, r.started, r.finished, r.reason, "+
			"COUNT(c.id), COALESCE(SUM(c.errors), 0) "+
			"FROM runs r LEFT JOIN copies c ON c.run_id = r.id "+
			"GROUP BY r.id ORDER BY r.started DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Label, &r.Target, &started, &finished, &r.Reason, &r.Copies, &r.Errors); err != nil {
			return nil, err
		}
		r.Started = time.Unix(0, started)
		if finished != 0 {
			r.Finished = time.Unix(0, finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Copies returns the copies of a run in the order they were made.
func (s *SQLite) Copies(runID string) ([]Copy, error) {
	rows, err := s.db.Query(
		"SELECT id, run_id, folder, started, duration_ms, errors, journal FROM copies WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list copies: %w", err)
	}
	defer rows.Close()

	copies := make([]Copy, 0)
	for rows.Next() {
		var c Copy
		var started, ms int64
		if err := rows.Scan(&c.ID, &c.RunID, &c.Folder, &started, &ms, &c.Errors, &c.Journal); err != nil {
			return nil, err
		}
		c.Started = time.Unix(0, started)
		c.Duration = time.Duration(ms) * time.Millisecond
		copies = append(copies, c)
	}
	return copies, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
