// Package ledger keeps a local SQLite history of every version zensync has
// published, one row per publish.
package ledger

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS publications (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL DEFAULT '',
	path          TEXT NOT NULL,
	checksum      TEXT NOT NULL DEFAULT '',
	deposition_id INTEGER NOT NULL DEFAULT 0,
	record_id     INTEGER NOT NULL DEFAULT 0,
	doi           TEXT NOT NULL DEFAULT '',
	concept_doi   TEXT NOT NULL DEFAULT '',
	published_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_publications_path ON publications(path, id);
CREATE INDEX IF NOT EXISTS idx_publications_concept ON publications(concept_doi);
`

// DB wraps a sql.DB with ledger-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
