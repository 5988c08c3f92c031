package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/zensync/internal/models"
)

// Recorder is the write side used by the sync orchestrator.
type Recorder interface {
	Record(p models.Publication) error
	LatestChecksum(path string) (string, error)
}

// Reader is the query side used by the status surfaces.
type Reader interface {
	History(path string, limit int) ([]models.Publication, error)
	Paths() ([]string, error)
}

// Verify *DB satisfies both sides at compile time.
var (
	_ Recorder = (*DB)(nil)
	_ Reader   = (*DB)(nil)
)

// Record appends one published version.
func (db *DB) Record(p models.Publication) error {
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO publications (run_id, path, checksum, deposition_id, record_id, doi, concept_doi, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.RunID, p.Path, p.Checksum, p.DepositionID, p.RecordID, p.DOI, p.ConceptDOI, p.PublishedAt.UTC())
	if err != nil {
		return fmt.Errorf("ledger: record %s: %w", p.Path, err)
	}
	return nil
}

// LatestChecksum returns the checksum of the last version published for
// path, or "" when path was never published.
func (db *DB) LatestChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`
		SELECT checksum FROM publications WHERE path = ? ORDER BY id DESC LIMIT 1
	`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: latest checksum %s: %w", path, err)
	}
	return cs, nil
}

// History returns publications newest first. An empty path lists every
// file; limit <= 0 defaults to 50.
func (db *DB) History(path string, limit int) ([]models.Publication, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT run_id, path, checksum, deposition_id, record_id, doi, concept_doi, published_at
		FROM publications`
	args := []any{}
	if path != "" {
		query += ` WHERE path = ?`
		args = append(args, path)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: history: %w", err)
	}
	defer rows.Close()

	var out []models.Publication
	for rows.Next() {
		var p models.Publication
		if err := rows.Scan(&p.RunID, &p.Path, &p.Checksum, &p.DepositionID, &p.RecordID, &p.DOI, &p.ConceptDOI, &p.PublishedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Paths returns every path with at least one publication, sorted.
func (db *DB) Paths() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT path FROM publications ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("ledger: paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
