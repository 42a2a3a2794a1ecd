// Package store provides the SQLite-backed audit ledger for evaluations and
// artifact writes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Rogers-F/governance-engine/internal/domain"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS evaluations (
	id               TEXT PRIMARY KEY,
	repo_fingerprint TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	reason_code      TEXT NOT NULL,
	phase            TEXT NOT NULL DEFAULT '',
	effective_mode   TEXT NOT NULL DEFAULT '',
	activation_hash  TEXT NOT NULL DEFAULT '',
	payload_json     TEXT NOT NULL DEFAULT '{}',
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evaluations_repo_created ON evaluations(repo_fingerprint, created_at);

CREATE TABLE IF NOT EXISTS persist_records (
	id                 TEXT PRIMARY KEY,
	repo_fingerprint   TEXT NOT NULL,
	artifact_kind      TEXT NOT NULL,
	phase              TEXT NOT NULL DEFAULT '',
	allowed            INTEGER NOT NULL DEFAULT 0,
	policy_reason_code TEXT NOT NULL DEFAULT '',
	path               TEXT NOT NULL DEFAULT '',
	bytes              INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_persist_repo_created ON persist_records(repo_fingerprint, created_at);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration. The parent directory is created if needed.
func NewDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domain.WrapEngineError(domain.ErrStoreInit, path, err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreInit, "open database", err)
	}

	// WAL allows concurrent readers but a single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, domain.WrapEngineError(domain.ErrStoreInit, "migrate schema", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
