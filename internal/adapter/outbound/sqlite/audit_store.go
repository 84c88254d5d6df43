// Package sqlite provides a modernc.org/sqlite-backed audit.Store, the
// durable/queryable alternative to the JSON-file audit log for
// deployments that want SQL-queryable retention (storage.driver: sqlite).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/toolgate/toolgate/internal/domain/audit"
)

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp  TEXT NOT NULL,
	event_type TEXT NOT NULL,
	client_id  TEXT NOT NULL DEFAULT '',
	username   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	detail     TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_client_id ON audit_entries(client_id);
CREATE INDEX IF NOT EXISTS idx_audit_entries_event_type ON audit_entries(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries(timestamp);
`

// AuditStore is an audit.Store backed by a SQLite database file.
type AuditStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditStore opens (creating if necessary) a SQLite database at path and
// ensures its schema exists.
func NewAuditStore(path string, logger *slog.Logger) (*AuditStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY under concurrent appends.

	if _, err := db.Exec(createAuditTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &AuditStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// Append inserts e as a new row.
func (s *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	var detail sql.NullString
	if len(e.Detail) > 0 {
		raw, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("sqlite: marshal detail: %w", err)
		}
		detail = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (timestamp, event_type, client_id, username, status, message, error, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), string(e.EventType), e.ClientID, e.Username,
		string(e.Status), e.Message, e.Error, detail,
	)
	if err != nil {
		return fmt.Errorf("sqlite: append audit entry: %w", err)
	}
	return nil
}

// Query returns every entry matching f, built as a parameterized WHERE
// clause rather than scan-then-filter so it scales with the log's size.
func (s *AuditStore) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var where []string
	var args []interface{}

	if !f.StartTime.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.StartTime.UTC().Format(time.RFC3339Nano))
	}
	if !f.EndTime.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, f.EndTime.UTC().Format(time.RFC3339Nano))
	}
	if f.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(f.EventType))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := "SELECT timestamp, event_type, client_id, username, status, message, error, detail FROM audit_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var ts string
		var detail sql.NullString
		if err := rows.Scan(&ts, &e.EventType, &e.ClientID, &e.Username, &e.Status, &e.Message, &e.Error, &detail); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse timestamp: %w", err)
		}
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate audit entries: %w", err)
	}
	return entries, nil
}

var _ audit.Store = (*AuditStore)(nil)
