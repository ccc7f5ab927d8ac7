// Package db persists a best-effort audit log of served predictions.
package db

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ID            int64     `json:"id"`
	Inputs        string    `json:"inputs"`
	Prediction    string    `json:"prediction"`
	Confidence    float64   `json:"confidence"`
	AbnormalCount int       `json:"abnormal_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store wraps the SQLite prediction log.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and its directory) if needed and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        inputs TEXT NOT NULL,
        predicted_label TEXT NOT NULL,
        confidence REAL DEFAULT 0,
        abnormal_count INTEGER DEFAULT 0,
        created_at DATETIME NOT NULL
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &Store{db: database}, nil
}

// SavePrediction appends one record to the log.
func (s *Store) SavePrediction(rec PredictionRecord) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
        INSERT INTO predictions (inputs, predicted_label, confidence, abnormal_count, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		rec.Inputs, rec.Prediction, rec.Confidence, rec.AbnormalCount, createdAt)
	return err
}

// RecentPredictions returns the newest records first.
func (s *Store) RecentPredictions(limit int) ([]PredictionRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
        SELECT id, inputs, predicted_label, confidence, abnormal_count, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		if err := rows.Scan(&rec.ID, &rec.Inputs, &rec.Prediction, &rec.Confidence, &rec.AbnormalCount, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
