package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Rogers-F/governance-engine/internal/domain"
)

// EvaluationRepo handles persistence for EvaluationRecord entries.
type EvaluationRepo struct{}

const evaluationColumns = `id, repo_fingerprint, status, reason_code, phase, effective_mode, activation_hash, payload_json, created_at`

// Record inserts an evaluation record.
func (r *EvaluationRepo) Record(ctx context.Context, db *sql.DB, rec domain.EvaluationRecord) error {
	const q = `INSERT INTO evaluations (` + evaluationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.RepoFingerprint,
		string(rec.Status),
		rec.ReasonCode,
		rec.Phase,
		rec.EffectiveMode,
		rec.ActivationHash,
		rec.PayloadJSON,
		rec.CreatedAt,
	)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite, "record evaluation", err)
	}
	return nil
}

// ListByRepo returns the most recent evaluations for a repository in
// chronological order. A limit <= 0 returns every record.
func (r *EvaluationRepo) ListByRepo(ctx context.Context, db *sql.DB, fingerprint string, limit int) ([]domain.EvaluationRecord, error) {
	const q = `SELECT ` + evaluationColumns + `
FROM evaluations
WHERE repo_fingerprint = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?`
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, q, fingerprint, limit)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery, "list evaluations", err)
	}
	defer rows.Close()

	var records []domain.EvaluationRecord
	for rows.Next() {
		rec, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery, "list evaluations", err)
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Latest returns the newest evaluation for a repository.
func (r *EvaluationRepo) Latest(ctx context.Context, db *sql.DB, fingerprint string) (domain.EvaluationRecord, error) {
	const q = `SELECT ` + evaluationColumns + `
FROM evaluations
WHERE repo_fingerprint = ?
ORDER BY created_at DESC, rowid DESC
LIMIT 1`

	rec, err := scanEvaluation(db.QueryRowContext(ctx, q, fingerprint))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EvaluationRecord{}, domain.WrapEngineError(domain.ErrNotFound, "evaluation for "+fingerprint, nil)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(s scanner) (domain.EvaluationRecord, error) {
	var rec domain.EvaluationRecord
	var status string
	err := s.Scan(&rec.ID, &rec.RepoFingerprint, &status, &rec.ReasonCode, &rec.Phase,
		&rec.EffectiveMode, &rec.ActivationHash, &rec.PayloadJSON, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, domain.WrapEngineError(domain.ErrStoreQuery, "scan evaluation", err)
	}
	rec.Status = domain.Status(status)
	return rec, nil
}
