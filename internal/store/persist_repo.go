package store

import (
	"context"
	"database/sql"

	"github.com/Rogers-F/governance-engine/internal/domain"
)

// PersistRepo handles persistence for PersistRecord entries.
type PersistRepo struct{}

// Record inserts a persistence record.
func (r *PersistRepo) Record(ctx context.Context, db *sql.DB, rec domain.PersistRecord) error {
	const q = `INSERT INTO persist_records (id, repo_fingerprint, artifact_kind, phase, allowed, policy_reason_code, path, bytes, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.RepoFingerprint,
		string(rec.ArtifactKind),
		rec.Phase,
		rec.Allowed,
		rec.PolicyReasonCode,
		rec.Path,
		rec.Bytes,
		rec.CreatedAt,
	)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite, "record persistence", err)
	}
	return nil
}

// ListByRepo returns every persistence record for a repository, ordered by
// creation time.
func (r *PersistRepo) ListByRepo(ctx context.Context, db *sql.DB, fingerprint string) ([]domain.PersistRecord, error) {
	const q = `SELECT id, repo_fingerprint, artifact_kind, phase, allowed, policy_reason_code, path, bytes, created_at
FROM persist_records
WHERE repo_fingerprint = ?
ORDER BY created_at ASC, rowid ASC`

	rows, err := db.QueryContext(ctx, q, fingerprint)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery, "list persist records", err)
	}
	defer rows.Close()

	var records []domain.PersistRecord
	for rows.Next() {
		var p domain.PersistRecord
		var kind string
		if err := rows.Scan(&p.ID, &p.RepoFingerprint, &kind, &p.Phase, &p.Allowed,
			&p.PolicyReasonCode, &p.Path, &p.Bytes, &p.CreatedAt); err != nil {
			return nil, domain.WrapEngineError(domain.ErrStoreQuery, "scan persist record", err)
		}
		p.ArtifactKind = domain.ArtifactKind(kind)
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery, "list persist records", err)
	}
	return records, nil
}
