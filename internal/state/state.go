// Package state persists run history and cached import trees in a sqlite
// database under the .specsync directory.
package state

import (
	"database/sql"
	"fmt"
	"time"

	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  commit_hash TEXT NOT NULL,
  branch TEXT NOT NULL,
  tree_digest TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trees (
  digest TEXT PRIMARY KEY,
  content BLOB NOT NULL,
  created_at INTEGER NOT NULL
);
`

// DB stores update runs and cached trees.
type DB struct {
	conn *sql.DB
}

// Run records one completed update: where it ran and what the import tree
// looked like.
type Run struct {
	CommitHash string
	Branch     string
	TreeDigest string
	CreatedAt  time.Time
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// TreeDigest returns the hex blake3 digest of tree inputs or content.
func TreeDigest(content []byte) string {
	sum := blake3.Sum256(content)
	return fmt.Sprintf("%x", sum[:])
}

// StoreTree caches serialized tree content under a digest of the inputs it
// was built from. Re-storing an existing digest replaces the content.
func (db *DB) StoreTree(digest string, content []byte) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO trees (digest, content, created_at) VALUES (?, ?, ?)",
		digest, content, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storing tree: %w", err)
	}
	return nil
}

// Tree returns cached tree content by digest, or nil when absent.
func (db *DB) Tree(digest string) ([]byte, error) {
	var content []byte
	err := db.conn.QueryRow("SELECT content FROM trees WHERE digest = ?", digest).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading tree: %w", err)
	}
	return content, nil
}

// RecordRun appends a run for the given commit and branch.
func (db *DB) RecordRun(commitHash, branch, treeDigest string) error {
	_, err := db.conn.Exec(
		"INSERT INTO runs (commit_hash, branch, tree_digest, created_at) VALUES (?, ?, ?, ?)",
		commitHash, branch, treeDigest, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run on a branch, or nil when the branch
// has none.
func (db *DB) LastRun(branch string) (*Run, error) {
	row := db.conn.QueryRow(
		"SELECT commit_hash, branch, tree_digest, created_at FROM runs WHERE branch = ? ORDER BY id DESC LIMIT 1",
		branch,
	)

	var r Run
	var createdAt int64
	err := row.Scan(&r.CommitHash, &r.Branch, &r.TreeDigest, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading last run: %w", err)
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}
