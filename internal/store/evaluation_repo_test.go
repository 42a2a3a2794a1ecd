package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Rogers-F/governance-engine/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func evalRecord(id, fp string, status domain.Status, code string, at int64) domain.EvaluationRecord {
	return domain.EvaluationRecord{
		ID:              id,
		RepoFingerprint: fp,
		Status:          status,
		ReasonCode:      code,
		Phase:           "1.1-Bootstrap",
		EffectiveMode:   "user",
		ActivationHash:  "h-" + id,
		PayloadJSON:     `{"status":"` + string(status) + `"}`,
		CreatedAt:       at,
	}
}

func TestEvaluationRepo_RecordAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &EvaluationRepo{}

	records := []domain.EvaluationRecord{
		evalRecord("ev-1", "fp-a", domain.StatusOK, "none", 100),
		evalRecord("ev-2", "fp-a", domain.StatusBlocked, "BLOCKED-PACK-LOCK-MISMATCH", 101),
		evalRecord("ev-3", "fp-b", domain.StatusWarn, "WARN-MODE-DOWNGRADED", 102),
		evalRecord("ev-4", "fp-a", domain.StatusNotVerified, "NOT_VERIFIED-MISSING-EVIDENCE", 103),
	}
	for _, r := range records {
		if err := repo.Record(ctx, db, r); err != nil {
			t.Fatalf("Record %s: %v", r.ID, err)
		}
	}

	got, err := repo.ListByRepo(ctx, db, "fp-a", 0)
	if err != nil {
		t.Fatalf("ListByRepo: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, want := range []string{"ev-1", "ev-2", "ev-4"} {
		if got[i].ID != want {
			t.Errorf("record %d ID = %q, want %q", i, got[i].ID, want)
		}
	}
	if got[1] != records[1] {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got[1], records[1])
	}
}

func TestEvaluationRepo_ListByRepo_Limit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &EvaluationRepo{}

	for i, id := range []string{"ev-1", "ev-2", "ev-3"} {
		if err := repo.Record(ctx, db, evalRecord(id, "fp-a", domain.StatusOK, "none", int64(100+i))); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := repo.ListByRepo(ctx, db, "fp-a", 2)
	if err != nil {
		t.Fatalf("ListByRepo: %v", err)
	}
	if len(got) != 2 || got[0].ID != "ev-2" || got[1].ID != "ev-3" {
		t.Fatalf("expected the two newest records in order, got %+v", got)
	}
}

func TestEvaluationRepo_Latest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &EvaluationRepo{}

	_, err := repo.Latest(ctx, db, "fp-a")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Same timestamp: insertion order breaks the tie.
	if err := repo.Record(ctx, db, evalRecord("ev-1", "fp-a", domain.StatusOK, "none", 200)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := repo.Record(ctx, db, evalRecord("ev-2", "fp-a", domain.StatusBlocked, "BLOCKED-RULESET-HASH-MISMATCH", 200)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	latest, err := repo.Latest(ctx, db, "fp-a")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != "ev-2" || latest.Status != domain.StatusBlocked {
		t.Errorf("Latest = %+v, want ev-2 blocked", latest)
	}
}

func TestEvaluationRepo_DuplicateID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &EvaluationRepo{}

	rec := evalRecord("ev-dup", "fp-a", domain.StatusOK, "none", 1)
	if err := repo.Record(ctx, db, rec); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	err := repo.Record(ctx, db, rec)
	if !errors.Is(err, domain.ErrStoreWrite) {
		t.Errorf("expected ErrStoreWrite on duplicate ID, got %v", err)
	}
}

func TestEvaluationRepo_ListByRepo_Empty(t *testing.T) {
	db := openTestDB(t)
	got, err := (&EvaluationRepo{}).ListByRepo(context.Background(), db, "nope", 10)
	if err != nil {
		t.Fatalf("ListByRepo: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestPersistRepo_RecordAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &PersistRepo{}

	records := []domain.PersistRecord{
		{ID: "p-1", RepoFingerprint: "fp-a", ArtifactKind: domain.ArtifactRepoCache, Phase: "1.1", Allowed: false, PolicyReasonCode: "PERSIST_PHASE_MISMATCH", CreatedAt: 10},
		{ID: "p-2", RepoFingerprint: "fp-a", ArtifactKind: domain.ArtifactRepoCache, Phase: "2", Allowed: true, PolicyReasonCode: "PERSIST_ALLOWED", Path: "/ws/fp-a/repo-cache.yaml", Bytes: 42, CreatedAt: 11},
		{ID: "p-3", RepoFingerprint: "fp-b", ArtifactKind: domain.ArtifactDecisionPack, Phase: "2.1", Allowed: true, CreatedAt: 12},
	}
	for _, r := range records {
		if err := repo.Record(ctx, db, r); err != nil {
			t.Fatalf("Record %s: %v", r.ID, err)
		}
	}

	got, err := repo.ListByRepo(ctx, db, "fp-a")
	if err != nil {
		t.Fatalf("ListByRepo: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0] != records[0] || got[1] != records[1] {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
