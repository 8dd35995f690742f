// Package store persists accounts, login sessions and quiz attempts in
// sqlite.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/lecturequiz/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every new connection to :memory: is a fresh database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS quiz_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		segment_id TEXT NOT NULL,
		correct INTEGER NOT NULL,
		total INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_quiz_attempts_user ON quiz_attempts(user_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordAttempt stores the outcome of one answer check.
func (s *Store) RecordAttempt(a model.QuizAttempt) (int64, error) {
	if a.Total < 0 || a.Correct < 0 || a.Correct > a.Total {
		return 0, fmt.Errorf("invalid score %d/%d", a.Correct, a.Total)
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO quiz_attempts (user_id, segment_id, correct, total, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.UserID, a.SegmentID, a.Correct, a.Total, created,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentAttempts returns a user's latest attempts, newest first. A limit of
// zero or less returns all of them.
func (s *Store) RecentAttempts(userID int64, limit int) ([]model.QuizAttempt, error) {
	query := `SELECT id, user_id, segment_id, correct, total, created_at
		FROM quiz_attempts WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.QuizAttempt
	for rows.Next() {
		var a model.QuizAttempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.SegmentID, &a.Correct, &a.Total, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// BestAttempt returns the user's highest-scoring attempt on a segment, or nil.
func (s *Store) BestAttempt(userID int64, segmentID string) (*model.QuizAttempt, error) {
	var a model.QuizAttempt
	err := s.db.QueryRow(
		`SELECT id, user_id, segment_id, correct, total, created_at
		 FROM quiz_attempts WHERE user_id = ? AND segment_id = ?
		 ORDER BY CAST(correct AS REAL) / MAX(total, 1) DESC, created_at ASC, id ASC LIMIT 1`,
		userID, segmentID,
	).Scan(&a.ID, &a.UserID, &a.SegmentID, &a.Correct, &a.Total, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AttemptCount returns the total number of recorded attempts.
func (s *Store) AttemptCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM quiz_attempts`).Scan(&count)
	return count, err
}
