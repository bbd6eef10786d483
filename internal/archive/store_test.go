package archive

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/paramreg/internal/dataset"
	"github.com/danielpatrickdp/paramreg/internal/logging"
	"github.com/danielpatrickdp/paramreg/internal/measure"
	"github.com/danielpatrickdp/paramreg/internal/registry"
	"github.com/danielpatrickdp/paramreg/internal/report"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seeded returns a registry whose clock advances one second per call so
// archived timestamps sort deterministically.
func seeded(t *testing.T) *registry.Registry {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	reg := registry.New(registry.WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))
	u := measure.Symmetric(0.14)
	if _, err := reg.Set("higgs.mass", 125.1, "pdg", registry.StatusEstablished, registry.WithUncertainty(u)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := reg.Set("gut.alpha", 0.041, "rge", registry.StatusDerived); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := reg.Set("gut.alpha", 0.0412, "rge", registry.StatusDerived); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := reg.SetVector("ckm.row1", []float64{0.974, 0.225, 0.004}, "fit", registry.StatusCalibrated); err != nil {
		t.Fatalf("set vector: %v", err)
	}
	return reg
}

func TestSaveAndGetParameters(t *testing.T) {
	s := tempDB(t)
	reg := seeded(t)
	snap := reg.ExportParameters()

	if err := s.SaveParameters(snap); err != nil {
		t.Fatalf("SaveParameters: %v", err)
	}

	got, err := s.GetParameters(snap.SnapshotID)
	if err != nil {
		t.Fatalf("GetParameters: %v", err)
	}
	if len(got.Parameters) != 3 {
		t.Fatalf("expected 3 parameters, got %d", len(got.Parameters))
	}
	e, ok := got.Entry("gut.alpha")
	if !ok {
		t.Fatal("expected gut.alpha in archived snapshot")
	}
	if e.Value != 0.0412 || e.Status != registry.StatusDerived || e.Source != "rge" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	higgs, _ := got.Entry("higgs.mass")
	if higgs.Uncertainty == nil || higgs.Uncertainty.Upper != 0.14 {
		t.Fatalf("expected uncertainty 0.14, got %+v", higgs.Uncertainty)
	}
	ckm, _ := got.Entry("ckm.row1")
	if len(ckm.Vector) != 3 || ckm.Vector[1] != 0.225 {
		t.Fatalf("unexpected vector: %v", ckm.Vector)
	}
	if !got.ExportedAt.Equal(snap.ExportedAt) {
		t.Fatalf("exported_at: expected %v, got %v", snap.ExportedAt, got.ExportedAt)
	}
}

func TestLatestAndLineage(t *testing.T) {
	s := tempDB(t)
	reg := seeded(t)

	if _, err := s.LatestParameters(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty archive, got %v", err)
	}

	first := reg.ExportParameters()
	if err := s.SaveParameters(first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if _, err := reg.Set("gut.alpha", 0.05, "rge", registry.StatusDerived); err != nil {
		t.Fatalf("set: %v", err)
	}
	second := reg.ExportParameters()
	if err := s.SaveParameters(second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	latest, err := s.LatestParameters()
	if err != nil {
		t.Fatalf("LatestParameters: %v", err)
	}
	if latest.SnapshotID != second.SnapshotID {
		t.Fatalf("expected latest %s, got %s", second.SnapshotID, latest.SnapshotID)
	}

	list, err := s.ListSnapshots(10)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(list))
	}
	if list[0].SnapshotID != second.SnapshotID || list[0].ParentID != first.SnapshotID {
		t.Fatalf("unexpected lineage: %+v", list[0])
	}
	if list[1].ParentID != "" {
		t.Fatalf("expected first snapshot without parent, got %s", list[1].ParentID)
	}
	if list[0].EntryCount != 3 {
		t.Fatalf("expected 3 entries, got %d", list[0].EntryCount)
	}

	if err := s.Activate(first.SnapshotID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	latest, _ = s.LatestParameters()
	if latest.SnapshotID != first.SnapshotID {
		t.Fatalf("expected activated %s, got %s", first.SnapshotID, latest.SnapshotID)
	}
	if err := s.Activate("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAndLoadProvenance(t *testing.T) {
	s := tempDB(t)
	reg := seeded(t)
	snap := reg.ExportParameters()
	prov := reg.ExportProvenance()

	if err := s.SaveParameters(snap); err != nil {
		t.Fatalf("SaveParameters: %v", err)
	}
	if err := s.SaveProvenance(snap.SnapshotID, prov); err != nil {
		t.Fatalf("SaveProvenance: %v", err)
	}
	// replay outcomes under the same snapshot must not leak into provenance
	if err := s.LogEntries([]logging.ProvenanceEntry{{
		SnapshotID: snap.SnapshotID, Path: "gut.alpha", Source: "x", Status: "DERIVED", Decision: logging.DecisionRejected,
	}}); err != nil {
		t.Fatalf("LogEntries: %v", err)
	}

	got, err := s.LoadProvenance(snap.SnapshotID)
	if err != nil {
		t.Fatalf("LoadProvenance: %v", err)
	}
	alpha := got.Provenance["gut.alpha"]
	if len(alpha) != 2 {
		t.Fatalf("expected 2 records for gut.alpha, got %d", len(alpha))
	}
	if alpha[0].Value != 0.041 || alpha[1].Value != 0.0412 {
		t.Fatalf("unexpected order: %+v", alpha)
	}
	if !alpha[0].Timestamp.Equal(prov.Provenance["gut.alpha"][0].Timestamp) {
		t.Fatalf("timestamp not preserved: %v", alpha[0].Timestamp)
	}
	ckm := got.Provenance["ckm.row1"]
	if len(ckm) != 1 || len(ckm[0].Vector) != 3 {
		t.Fatalf("unexpected vector provenance: %+v", ckm)
	}
	if got.Provenance["higgs.mass"][0].Status != registry.StatusEstablished {
		t.Fatalf("unexpected status: %s", got.Provenance["higgs.mass"][0].Status)
	}
}

func TestSaveProvenanceRequiresSnapshot(t *testing.T) {
	s := tempDB(t)
	reg := seeded(t)
	if err := s.SaveProvenance("unknown", reg.ExportProvenance()); err == nil {
		t.Fatal("expected foreign key failure for unarchived snapshot")
	}
	var count int
	s.DB().QueryRow(`SELECT COUNT(*) FROM provenance_log`).Scan(&count)
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
	if _, err := s.LoadProvenance("unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAndGetReport(t *testing.T) {
	s := tempDB(t)
	reg := seeded(t)
	snap := reg.ExportParameters()

	u := measure.Symmetric(0.001)
	r, err := report.NewReporter(report.Config{})
	if err != nil {
		t.Fatalf("NewReporter: %v", err)
	}
	rep := r.Generate(snap, []dataset.ExperimentalConstraint{{
		ParameterPath: "gut.alpha", CentralValue: 0.041, Uncertainty: &u, BoundType: measure.BoundMeasured,
	}}, nil)

	if err := s.SaveReport(rep); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	got, err := s.GetReport(rep.ReportID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.OverallStatus != rep.OverallStatus || len(got.Results) != 1 {
		t.Fatalf("unexpected report: %+v", got)
	}
	if *got.Results[0].SigmaDeviation != *rep.Results[0].SigmaDeviation {
		t.Fatalf("sigma mismatch: %v vs %v", *got.Results[0].SigmaDeviation, *rep.Results[0].SigmaDeviation)
	}

	list, err := s.ListReports(5)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(list) != 1 || list[0].ReportID != rep.ReportID || list[0].SnapshotID != snap.SnapshotID {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[0].DegreesOfFreedom != 1 {
		t.Fatalf("expected dof 1, got %d", list[0].DegreesOfFreedom)
	}

	if _, err := s.GetReport("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SaveReport(rep); err == nil {
		t.Fatal("expected duplicate report id to fail")
	}
}

func TestSaveParametersRejectsEmptyID(t *testing.T) {
	s := tempDB(t)
	if err := s.SaveParameters(registry.ParametersSnapshot{}); err == nil {
		t.Fatal("expected error for empty snapshot id")
	}
}
