package logging

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE provenance_log (
		snapshot_id TEXT NOT NULL,
		path        TEXT NOT NULL,
		value       REAL NOT NULL,
		vector_json TEXT,
		source      TEXT NOT NULL,
		status      TEXT NOT NULL,
		decision    TEXT NOT NULL,
		reason      TEXT,
		created_at  TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-write-tests
func TestLogWrite_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		SnapshotID: "s1",
		Path:       "higgs.mass",
		Value:      125.1,
		Source:     "pdg",
		Status:     "ESTABLISHED",
		Decision:   DecisionRecorded,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogWrite(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM provenance_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var path, decision string
	var value float64
	db.QueryRow("SELECT path, value, decision FROM provenance_log").Scan(&path, &value, &decision)
	if path != "higgs.mass" {
		t.Errorf("expected path 'higgs.mass', got %q", path)
	}
	if value != 125.1 {
		t.Errorf("expected value 125.1, got %v", value)
	}
	if decision != DecisionRecorded {
		t.Errorf("expected decision %q, got %q", DecisionRecorded, decision)
	}
}

func TestLogWrite_InsideTx(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, p := range []string{"a", "b"} {
		if err := LogWrite(tx, ProvenanceEntry{SnapshotID: "s", Path: p, Source: "x", Status: "DERIVED", Decision: DecisionCreated}); err != nil {
			t.Fatalf("log %s: %v", p, err)
		}
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM provenance_log").Scan(&count)
	if count != 0 {
		t.Errorf("expected rolled back rows to vanish, got %d", count)
	}
}

func TestLogWrite_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		SnapshotID: "s2",
		Path:       "gauge.alpha_gut",
		Source:     "unification",
		Status:     "DERIVED",
		Decision:   DecisionUpdated,
	}

	before := time.Now().UTC()
	if err := LogWrite(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM provenance_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogWrite_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		SnapshotID: "s3",
		Path:       "top.yukawa",
		Source:     "rge",
		Status:     "PREDICTED",
		Decision:   DecisionRejected,
		CreatedAt:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogWrite(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var vectorJSON, reason sql.NullString
	db.QueryRow("SELECT vector_json, reason FROM provenance_log").Scan(&vectorJSON, &reason)
	if vectorJSON.Valid {
		t.Error("expected NULL vector_json for empty string")
	}
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
}

func TestLogWrite_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	entry := ProvenanceEntry{
		SnapshotID: "s4",
		Path:       "x",
		Source:     "y",
		Status:     "DERIVED",
		Decision:   DecisionRecorded,
	}

	if err := LogWrite(db, entry); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-write-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
