// Package jitcache stores compile artifacts on disk in a SQLite database,
// keyed by code-object hash. A fresh process uses it to compile functions it
// has already seen on their first invocation; the compile itself still runs
// the full analysis.
package jitcache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/pyrite/pkg/dist"
)

// ErrMiss is returned by Get when no artifact is stored for a hash.
var ErrMiss = errors.New("jitcache: miss")

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	code_hash  TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Cache is an on-disk artifact store. Safe for concurrent use; SQLite
// serializes writers.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jitcache: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("jitcache: init schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores an artifact, replacing any previous entry for the same hash.
func (c *Cache) Put(a *dist.Artifact) error {
	payload, err := dist.MarshalArtifact(a)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(
		`INSERT INTO artifacts (code_hash, version, payload, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(code_hash) DO UPDATE SET
		   version = excluded.version,
		   payload = excluded.payload,
		   created_at = excluded.created_at`,
		a.CodeHash, a.Version, payload, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("jitcache: put %s: %w", a.CodeHash, err)
	}
	return nil
}

// Get loads the artifact for a code hash, or ErrMiss.
func (c *Cache) Get(codeHash string) (*dist.Artifact, error) {
	var payload []byte
	err := c.db.QueryRow(
		`SELECT payload FROM artifacts WHERE code_hash = ? AND version = ?`,
		codeHash, dist.ArtifactVersion,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("jitcache: get %s: %w", codeHash, err)
	}
	return dist.UnmarshalArtifact(payload)
}

// Prune removes entries older than the given age and entries from other
// format versions. It returns the number of rows removed.
func (c *Cache) Prune(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := c.db.Exec(
		`DELETE FROM artifacts WHERE created_at < ? OR version != ?`,
		cutoff, dist.ArtifactVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("jitcache: prune: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored artifacts.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM artifacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("jitcache: count: %w", err)
	}
	return n, nil
}
