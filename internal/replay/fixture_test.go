package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/paramreg/internal/registry"
)

func TestLoadFixtureNonexistent(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestLoadFixtureMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"writes": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected error for malformed json")
	}
}

func TestLoadFixtureCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.json")
	data := `{
  "writes": [
    {"path": "a.b", "value": 1, "source": "s", "status": "DERIVED"},
    {"path": "a.c", "value": 2, "source": "s", "status": "DERIVED"}
  ],
  "expected_results": [{"path": "a.b", "action": "created"}]
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected error for result count mismatch")
	}
}

func TestFixtureTolerance(t *testing.T) {
	f := &Fixture{}
	if f.ToTolerance() != registry.DefaultTolerance() {
		t.Fatalf("nil tolerance should fall back to default, got %+v", f.ToTolerance())
	}

	f, err := LoadFixture("testdata/loose_tolerance.json")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	want := registry.Tolerance{Relative: 0.05, Absolute: 0}
	if f.ToTolerance() != want {
		t.Fatalf("tolerance = %+v, want %+v", f.ToTolerance(), want)
	}
}

func TestFixtureDecodesUncertainty(t *testing.T) {
	f, err := LoadFixture("testdata/session.json")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	higgs := f.Writes[0].Uncertainty
	if higgs == nil || !higgs.IsSymmetric() || higgs.Upper != 0.14 {
		t.Fatalf("higgs uncertainty = %+v", higgs)
	}
	top := f.Writes[10].Uncertainty
	if top == nil || top.Lower != 0.01 || top.Upper != 0.02 {
		t.Fatalf("top uncertainty = %+v", top)
	}
	if f.Writes[11].Metadata["units"] != "1" {
		t.Fatalf("metadata not decoded: %v", f.Writes[11].Metadata)
	}
}
