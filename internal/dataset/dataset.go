package dataset

import (
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/danielpatrickdp/paramreg/internal/measure"
	"github.com/danielpatrickdp/paramreg/internal/stats"
)

// UncertaintyPolicy says what to do with a one-sided asymmetric
// uncertainty.
type UncertaintyPolicy string

const (
	// PolicyStrict rejects a constraint that gives only one side.
	PolicyStrict UncertaintyPolicy = "strict"
	// PolicySymmetricFallback mirrors the given side onto the missing one.
	PolicySymmetricFallback UncertaintyPolicy = "symmetric_fallback"
)

// ExperimentalConstraint is one reference measurement or limit.
type ExperimentalConstraint struct {
	ParameterPath  string               `json:"parameter_path"`
	Key            string               `json:"key"`
	CentralValue   float64              `json:"central_value"`
	Uncertainty    *measure.Uncertainty `json:"uncertainty"`
	Units          string               `json:"units,omitempty"`
	SourceCitation string               `json:"source_citation,omitempty"`
	BoundType      measure.BoundType    `json:"bound_type"`
}

// HasUncertainty reports whether the constraint carries an uncertainty.
func (c ExperimentalConstraint) HasUncertainty() bool {
	return c.Uncertainty != nil
}

func (c ExperimentalConstraint) clone() ExperimentalConstraint {
	if c.Uncertainty != nil {
		u := *c.Uncertainty
		c.Uncertainty = &u
	}
	return c
}

// Dataset is a parsed, validated reference file. It is immutable once
// loaded; accessors hand out copies.
type Dataset struct {
	Name          string
	Source        string
	SchemaVersion *semver.Version
	Policy        UncertaintyPolicy

	keys        []string
	constraints map[string]ExperimentalConstraint
	groups      []*stats.CorrelationGroup
}

// Keys returns the constraint keys in sorted order.
func (d *Dataset) Keys() []string {
	return slices.Clone(d.keys)
}

// Constraints returns every constraint in key order.
func (d *Dataset) Constraints() []ExperimentalConstraint {
	out := make([]ExperimentalConstraint, 0, len(d.keys))
	for _, k := range d.keys {
		out = append(out, d.constraints[k].clone())
	}
	return out
}

// Constraint returns the constraint stored under key.
func (d *Dataset) Constraint(key string) (ExperimentalConstraint, bool) {
	c, ok := d.constraints[key]
	if !ok {
		return ExperimentalConstraint{}, false
	}
	return c.clone(), true
}

// ForPath returns the constraints that target a registry path.
func (d *Dataset) ForPath(path string) []ExperimentalConstraint {
	var out []ExperimentalConstraint
	for _, k := range d.keys {
		if c := d.constraints[k]; c.ParameterPath == path {
			out = append(out, c.clone())
		}
	}
	return out
}

// Groups returns the dataset's correlation groups. Group members are
// registry paths.
func (d *Dataset) Groups() []*stats.CorrelationGroup {
	return slices.Clone(d.groups)
}

// Len returns the number of constraints.
func (d *Dataset) Len() int {
	return len(d.keys)
}
