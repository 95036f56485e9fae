package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"noise-lab/identity"
	"noise-lab/utils"
)

// SQLiteClient stores identity lifecycle events. The journal is write-mostly
// and is never replayed into the model.
type SQLiteClient struct {
	db *sql.DB
}

// Entry is one stored lifecycle event.
type Entry struct {
	ID int64 `json:"id"`
	identity.Event
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}
	// single writer; also keeps in-memory databases on one connection
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SQLiteClient{db: db}, nil
}

func createTables(db *sql.DB) error {
	createEventsTable := `
    CREATE TABLE IF NOT EXISTS identity_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        at DATETIME NOT NULL,
        kind TEXT NOT NULL,
        identity_id TEXT,
        source_id TEXT,
        observations INTEGER NOT NULL DEFAULT 0,
        strength REAL NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS idx_identity_events_at ON identity_events(at);
    CREATE INDEX IF NOT EXISTS idx_identity_events_identity ON identity_events(identity_id);
    `

	if _, err := db.Exec(createEventsTable); err != nil {
		return fmt.Errorf("error creating identity_events table: %w", err)
	}
	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// StoreEvent appends one lifecycle event.
func (db *SQLiteClient) StoreEvent(ctx context.Context, e identity.Event) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO identity_events (at, kind, identity_id, source_id, observations, strength)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.At.UTC(),
		string(e.Kind),
		nullable(e.IdentityID),
		nullable(e.SourceID),
		e.Observations,
		e.Strength,
	)
	if err != nil {
		return fmt.Errorf("error storing event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (db *SQLiteClient) RecentEvents(ctx context.Context, limit int) ([]Entry, error) {
	return db.queryEvents(ctx, `
		SELECT id, at, kind, identity_id, source_id, observations, strength
		FROM identity_events
		ORDER BY id DESC
		LIMIT ?`, limit)
}

// EventsForIdentity returns the history of one identity, oldest first. A
// promoted identity's history includes its pending predecessor.
func (db *SQLiteClient) EventsForIdentity(ctx context.Context, id string) ([]Entry, error) {
	return db.queryEvents(ctx, `
		SELECT id, at, kind, identity_id, source_id, observations, strength
		FROM identity_events
		WHERE identity_id = ?
		   OR identity_id = (SELECT source_id FROM identity_events WHERE kind = ? AND identity_id = ? LIMIT 1)
		ORDER BY id ASC`, id, string(identity.EventPromoted), id)
}

// CountByKind returns the number of stored events per kind.
func (db *SQLiteClient) CountByKind(ctx context.Context) (map[identity.EventKind]int, error) {
	rows, err := db.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM identity_events GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("error counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[identity.EventKind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("error scanning count: %w", err)
		}
		counts[identity.EventKind(kind)] = count
	}
	return counts, rows.Err()
}

func (db *SQLiteClient) queryEvents(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var kind string
		var identityID, sourceID sql.NullString
		var at time.Time

		if err := rows.Scan(&e.ID, &at, &kind, &identityID, &sourceID, &e.Observations, &e.Strength); err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		e.At = at
		e.Kind = identity.EventKind(kind)
		e.IdentityID = identityID.String
		e.SourceID = sourceID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
