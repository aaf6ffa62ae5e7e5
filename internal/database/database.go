package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/toboto/moltbot-wecom-channel/internal/errors"
	"github.com/toboto/moltbot-wecom-channel/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// schema is the message-log schema. WeCom redelivers a callback when the
// five second response budget is missed; msg_id dedup keeps redeliveries
// from re-dispatching to the backend.
const schema = `
CREATE TABLE IF NOT EXISTS processed_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	msg_id TEXT NOT NULL UNIQUE,
	sender TEXT NOT NULL,
	account_id TEXT NOT NULL,
	received_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_processed_messages_received_at ON processed_messages(received_at);
`

// Database is the SQLite-backed inbound message log
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// New opens (creating if needed) the message log at dbPath
func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	// Validate database path to prevent directory traversal
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to apply schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	enc, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

// MarkProcessed records an inbound message id and reports whether it was
// seen for the first time. A duplicate id returns false with no error.
func (d *Database) MarkProcessed(ctx context.Context, msgID, sender, accountID string) (bool, error) {
	if msgID == "" {
		// Messages without an id (e.g. events) cannot be deduplicated.
		return true, nil
	}

	encSender, err := d.encryptor.Encrypt(sender)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt sender: %w", err)
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_messages (msg_id, sender, account_id) VALUES (?, ?, ?)`,
		msgID, encSender, accountID,
	)
	if err != nil {
		return false, apperrors.NewDatabaseError("mark_processed", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewDatabaseError("mark_processed", err)
	}

	return rows > 0, nil
}

// CleanupOlderThan removes message-log rows older than the retention window
func (d *Database) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	res, err := d.db.ExecContext(ctx,
		`DELETE FROM processed_messages WHERE received_at < ?`, cutoff,
	)
	if err != nil {
		return 0, apperrors.NewDatabaseError("cleanup", err)
	}

	return res.RowsAffected()
}

// Close closes the underlying database handle
func (d *Database) Close() error {
	return d.db.Close()
}
