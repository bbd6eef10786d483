package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/paramreg/internal/registry"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Tolerance       *FixtureTolerance       `json:"tolerance,omitempty"`
	Writes          []Write                 `json:"writes"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
	ExpectedValues  map[string]float64      `json:"expected_values,omitempty"`
}

// FixtureTolerance mirrors registry.Tolerance with JSON tags.
type FixtureTolerance struct {
	Relative float64 `json:"relative"`
	Absolute float64 `json:"absolute"`
}

// FixtureExpectedResult captures the expected action per write.
type FixtureExpectedResult struct {
	Path   string `json:"path"`
	Action string `json:"action"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads a JSON fixture from disk.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal fixture %s: %w", path, err)
	}
	if len(f.ExpectedResults) > 0 && len(f.ExpectedResults) != len(f.Writes) {
		return nil, fmt.Errorf("fixture %s: %d expected results for %d writes", path, len(f.ExpectedResults), len(f.Writes))
	}
	return &f, nil
}

// ToTolerance returns the fixture's tolerance, or the registry default.
func (f *Fixture) ToTolerance() registry.Tolerance {
	if f.Tolerance == nil {
		return registry.DefaultTolerance()
	}
	return registry.Tolerance{Relative: f.Tolerance.Relative, Absolute: f.Tolerance.Absolute}
}

// NewRegistry builds an empty registry configured for the fixture.
func (f *Fixture) NewRegistry(opts ...registry.Option) *registry.Registry {
	return registry.New(append([]registry.Option{registry.WithTolerance(f.ToTolerance())}, opts...)...)
}

// #endregion fixture-loader
