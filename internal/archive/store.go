package archive

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/paramreg/internal/logging"
	"github.com/danielpatrickdp/paramreg/internal/registry"
	"github.com/danielpatrickdp/paramreg/internal/report"
)

// ErrNotFound means the requested snapshot or report is not archived.
var ErrNotFound = errors.New("not found in archive")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS parameter_snapshots (
	snapshot_id     TEXT PRIMARY KEY,
	parent_id       TEXT,
	exported_at     TEXT NOT NULL,
	entry_count     INTEGER NOT NULL,
	parameters_json TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES parameter_snapshots(snapshot_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_id TEXT NOT NULL,
	path        TEXT NOT NULL,
	value       REAL NOT NULL,
	vector_json TEXT,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL,
	decision    TEXT NOT NULL,
	reason      TEXT,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (snapshot_id) REFERENCES parameter_snapshots(snapshot_id)
);

CREATE INDEX IF NOT EXISTS provenance_log_snapshot ON provenance_log(snapshot_id, path);

CREATE TABLE IF NOT EXISTS validation_reports (
	report_id        TEXT PRIMARY KEY,
	snapshot_id      TEXT NOT NULL,
	generated_at     TEXT NOT NULL,
	overall_status   TEXT NOT NULL,
	total_chi_square REAL NOT NULL,
	dof              INTEGER NOT NULL,
	p_value          REAL NOT NULL,
	report_json      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_snapshot (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	snapshot_id TEXT NOT NULL,
	FOREIGN KEY (snapshot_id) REFERENCES parameter_snapshots(snapshot_id)
);
`

// #endregion schema

// #region store-struct
// Store archives registry snapshots, their provenance and validation
// reports in SQLite.
type Store struct {
	db *sql.DB
}

// SnapshotRecord describes one archived parameter snapshot.
type SnapshotRecord struct {
	SnapshotID string    `json:"snapshot_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
	EntryCount int       `json:"entry_count"`
}

// ReportRecord is the summary row of an archived report.
type ReportRecord struct {
	ReportID         string    `json:"report_id"`
	SnapshotID       string    `json:"snapshot_id"`
	GeneratedAt      time.Time `json:"generated_at"`
	OverallStatus    string    `json:"overall_status"`
	TotalChiSquare   float64   `json:"total_chi_square"`
	DegreesOfFreedom int       `json:"degrees_of_freedom"`
	PValue           float64   `json:"p_value"`
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region save-parameters
// SaveParameters archives snap and makes it the active snapshot. The
// previously active snapshot becomes its parent.
func (s *Store) SaveParameters(snap registry.ParametersSnapshot) error {
	if snap.SnapshotID == "" {
		return fmt.Errorf("save parameters: empty snapshot id")
	}
	body, err := json.Marshal(snap.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(`SELECT snapshot_id FROM active_snapshot WHERE id = 1`).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("get active: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO parameter_snapshots (snapshot_id, parent_id, exported_at, entry_count, parameters_json)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.SnapshotID, parent, snap.ExportedAt.UTC().Format(time.RFC3339Nano), len(snap.Parameters), string(body),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_snapshot (id, snapshot_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		snap.SnapshotID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// #endregion save-parameters

// #region save-provenance
// SaveProvenance appends every record of prov to provenance_log under
// snapshotID, which must already be archived. Paths are written in sorted
// order, records oldest first, in one transaction.
func (s *Store) SaveProvenance(snapshotID string, prov registry.ProvenanceSnapshot) error {
	var entries []logging.ProvenanceEntry
	for _, path := range prov.Paths() {
		for _, rec := range prov.Provenance[path] {
			e, err := provenanceEntry(snapshotID, path, rec, logging.DecisionRecorded)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
	}
	return s.LogEntries(entries)
}

// LogEntries writes provenance rows in one transaction.
func (s *Store) LogEntries(entries []logging.ProvenanceEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if err := logging.LogWrite(tx, e); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func provenanceEntry(snapshotID, path string, rec registry.Record, decision string) (logging.ProvenanceEntry, error) {
	e := logging.ProvenanceEntry{
		SnapshotID: snapshotID,
		Path:       path,
		Value:      rec.Value,
		Source:     rec.Source,
		Status:     string(rec.Status),
		Decision:   decision,
		CreatedAt:  rec.Timestamp.UTC(),
	}
	if rec.Vector != nil {
		b, err := json.Marshal(rec.Vector)
		if err != nil {
			return logging.ProvenanceEntry{}, fmt.Errorf("marshal vector %s: %w", path, err)
		}
		e.VectorJSON = string(b)
	}
	return e, nil
}

// #endregion save-provenance

// #region get-parameters
// GetParameters loads an archived snapshot by ID.
func (s *Store) GetParameters(id string) (registry.ParametersSnapshot, error) {
	var exported, body string
	err := s.db.QueryRow(
		`SELECT exported_at, parameters_json FROM parameter_snapshots WHERE snapshot_id = ?`, id,
	).Scan(&exported, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.ParametersSnapshot{}, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return registry.ParametersSnapshot{}, fmt.Errorf("get snapshot %s: %w", id, err)
	}

	snap := registry.ParametersSnapshot{SnapshotID: id}
	snap.ExportedAt, _ = time.Parse(time.RFC3339Nano, exported)
	if err := json.Unmarshal([]byte(body), &snap.Parameters); err != nil {
		return registry.ParametersSnapshot{}, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return snap, nil
}

// LatestParameters loads the active snapshot.
func (s *Store) LatestParameters() (registry.ParametersSnapshot, error) {
	var id string
	err := s.db.QueryRow(`SELECT snapshot_id FROM active_snapshot WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.ParametersSnapshot{}, fmt.Errorf("active snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return registry.ParametersSnapshot{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetParameters(id)
}

// Activate points the active snapshot at an archived one.
func (s *Store) Activate(id string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM parameter_snapshots WHERE snapshot_id = ?`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	_, err = s.db.Exec(
		`INSERT INTO active_snapshot (id, snapshot_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot_id = excluded.snapshot_id`, id,
	)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}

// #endregion get-parameters

// #region load-provenance
// LoadProvenance rebuilds the provenance snapshot archived under
// snapshotID. Only "recorded" rows take part; replay outcomes logged under
// the same snapshot are skipped.
func (s *Store) LoadProvenance(snapshotID string) (registry.ProvenanceSnapshot, error) {
	var exported string
	err := s.db.QueryRow(
		`SELECT exported_at FROM parameter_snapshots WHERE snapshot_id = ?`, snapshotID,
	).Scan(&exported)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.ProvenanceSnapshot{}, fmt.Errorf("snapshot %s: %w", snapshotID, ErrNotFound)
	}
	if err != nil {
		return registry.ProvenanceSnapshot{}, fmt.Errorf("get snapshot %s: %w", snapshotID, err)
	}

	rows, err := s.db.Query(
		`SELECT path, value, vector_json, source, status, created_at
		 FROM provenance_log WHERE snapshot_id = ? AND decision = ? ORDER BY id`,
		snapshotID, logging.DecisionRecorded,
	)
	if err != nil {
		return registry.ProvenanceSnapshot{}, fmt.Errorf("load provenance: %w", err)
	}
	defer rows.Close()

	prov := registry.ProvenanceSnapshot{
		SnapshotID: snapshotID,
		Provenance: make(map[string][]registry.Record),
	}
	prov.ExportedAt, _ = time.Parse(time.RFC3339Nano, exported)
	for rows.Next() {
		var path, status, created string
		var vectorJSON sql.NullString
		var rec registry.Record
		if err := rows.Scan(&path, &rec.Value, &vectorJSON, &rec.Source, &status, &created); err != nil {
			return registry.ProvenanceSnapshot{}, fmt.Errorf("scan row: %w", err)
		}
		rec.Status = registry.Status(status)
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		if vectorJSON.Valid {
			if err := json.Unmarshal([]byte(vectorJSON.String), &rec.Vector); err != nil {
				return registry.ProvenanceSnapshot{}, fmt.Errorf("unmarshal vector %s: %w", path, err)
			}
		}
		prov.Provenance[path] = append(prov.Provenance[path], rec)
	}
	return prov, rows.Err()
}

// #endregion load-provenance

// #region list-snapshots
// ListSnapshots returns the most recent snapshots, newest first.
func (s *Store) ListSnapshots(limit int) ([]SnapshotRecord, error) {
	rows, err := s.db.Query(
		`SELECT snapshot_id, parent_id, exported_at, entry_count
		 FROM parameter_snapshots ORDER BY exported_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var records []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		var parentID sql.NullString
		var exported string
		if err := rows.Scan(&rec.SnapshotID, &parentID, &exported, &rec.EntryCount); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.ParentID = parentID.String
		rec.ExportedAt, _ = time.Parse(time.RFC3339Nano, exported)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-snapshots

// #region reports
// SaveReport archives a validation report.
func (s *Store) SaveReport(rep report.ValidationReport) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO validation_reports (report_id, snapshot_id, generated_at, overall_status, total_chi_square, dof, p_value, report_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ReportID, rep.SnapshotID, rep.GeneratedAt.UTC().Format(time.RFC3339Nano),
		string(rep.OverallStatus), rep.TotalChiSquare, rep.DegreesOfFreedom, rep.PValue, string(body),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport loads an archived report by ID.
func (s *Store) GetReport(id string) (report.ValidationReport, error) {
	var body string
	err := s.db.QueryRow(`SELECT report_json FROM validation_reports WHERE report_id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return report.ValidationReport{}, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return report.ValidationReport{}, fmt.Errorf("get report %s: %w", id, err)
	}
	var rep report.ValidationReport
	if err := json.Unmarshal([]byte(body), &rep); err != nil {
		return report.ValidationReport{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return rep, nil
}

// ListReports returns report summaries, newest first.
func (s *Store) ListReports(limit int) ([]ReportRecord, error) {
	rows, err := s.db.Query(
		`SELECT report_id, snapshot_id, generated_at, overall_status, total_chi_square, dof, p_value
		 FROM validation_reports ORDER BY generated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var records []ReportRecord
	for rows.Next() {
		var rec ReportRecord
		var generated string
		if err := rows.Scan(&rec.ReportID, &rec.SnapshotID, &generated, &rec.OverallStatus,
			&rec.TotalChiSquare, &rec.DegreesOfFreedom, &rec.PValue); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.GeneratedAt, _ = time.Parse(time.RFC3339Nano, generated)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion reports
