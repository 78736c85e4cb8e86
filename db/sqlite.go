package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"voice-auth/models"
	"voice-auth/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// SQLiteClient journals verification attempts for audit and threshold
// calibration. Attempts are append-only; nothing in the live pipeline reads
// them back.
type SQLiteClient struct {
	db *sql.DB
}

// NewSQLiteClient opens (and if necessary creates) the attempts database.
func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	// Create the directory if it doesn't exist (cross-platform)
	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000" // 5 seconds
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist
func createTables(db *sql.DB) error {
	createAttemptsTable := `
    CREATE TABLE IF NOT EXISTS verification_attempts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        user_id TEXT NOT NULL,
        similarity REAL NOT NULL DEFAULT 0,
        threshold REAL NOT NULL DEFAULT 0,
        matched INTEGER NOT NULL DEFAULT 0,
        snr_db REAL
    );
    CREATE INDEX IF NOT EXISTS idx_attempts_timestamp ON verification_attempts(timestamp);
    CREATE INDEX IF NOT EXISTS idx_attempts_user ON verification_attempts(user_id);
    `

	if _, err := db.Exec(createAttemptsTable); err != nil {
		return fmt.Errorf("error creating verification_attempts table: %w", err)
	}

	return nil
}

func (c *SQLiteClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// RecordAttempt appends one verification attempt.
func (c *SQLiteClient) RecordAttempt(ctx context.Context, attempt models.VerificationAttempt) error {
	matched := 0
	if attempt.Matched {
		matched = 1
	}

	_, err := c.db.ExecContext(ctx, `
        INSERT INTO verification_attempts (timestamp, user_id, similarity, threshold, matched, snr_db)
        VALUES (?, ?, ?, ?, ?, ?)`,
		attempt.Timestamp, attempt.UserID, attempt.Similarity, attempt.Threshold, matched, attempt.SNRDb,
	)
	if err != nil {
		return fmt.Errorf("error recording verification attempt: %w", err)
	}
	return nil
}

// RecentAttempts returns the latest attempts for a user, newest first.
func (c *SQLiteClient) RecentAttempts(ctx context.Context, userID string, limit int) ([]models.VerificationAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.QueryContext(ctx, `
        SELECT id, timestamp, user_id, similarity, threshold, matched, snr_db
        FROM verification_attempts
        WHERE user_id = ?
        ORDER BY timestamp DESC
        LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying verification attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.VerificationAttempt
	for rows.Next() {
		var attempt models.VerificationAttempt
		var matched int
		var snr sql.NullFloat64
		if err := rows.Scan(&attempt.ID, &attempt.Timestamp, &attempt.UserID,
			&attempt.Similarity, &attempt.Threshold, &matched, &snr); err != nil {
			return nil, fmt.Errorf("error scanning verification attempt: %w", err)
		}
		attempt.Matched = matched != 0
		if snr.Valid {
			attempt.SNRDb = snr.Float64
		}
		attempts = append(attempts, attempt)
	}

	return attempts, rows.Err()
}
