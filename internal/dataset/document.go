package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"path"
	"reflect"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/paramreg/internal/measure"
	"github.com/danielpatrickdp/paramreg/internal/stats"
)

// SchemaVersion is the dataset format this package reads. Files declare
// their own schema_version, which must be caret-compatible with it.
const SchemaVersion = "1.0.0"

// #region document
type document struct {
	SchemaVersion     string                  `yaml:"schema_version" json:"schema_version" validate:"required"`
	Source            string                  `yaml:"source" json:"source" validate:"required"`
	UncertaintyPolicy string                  `yaml:"uncertainty_policy" json:"uncertainty_policy" validate:"omitempty,oneof=strict symmetric_fallback"`
	Parameters        map[string]parameterDoc `yaml:"parameters" json:"parameters" validate:"required,min=1,dive"`
	Correlations      []correlationDoc        `yaml:"correlations" json:"correlations" validate:"dive"`
}

type parameterDoc struct {
	Path             string   `yaml:"path" json:"path"`
	CentralValue     *float64 `yaml:"central_value" json:"central_value" validate:"required"`
	Uncertainty      *float64 `yaml:"uncertainty" json:"uncertainty" validate:"omitempty,gte=0"`
	UncertaintyLower *float64 `yaml:"uncertainty_lower" json:"uncertainty_lower" validate:"omitempty,gte=0"`
	UncertaintyUpper *float64 `yaml:"uncertainty_upper" json:"uncertainty_upper" validate:"omitempty,gte=0"`
	Units            string   `yaml:"units" json:"units"`
	SourceName       string   `yaml:"source_name" json:"source_name"`
	BoundType        string   `yaml:"bound_type" json:"bound_type" validate:"omitempty,oneof=measured upper_bound lower_bound"`
}

type correlationDoc struct {
	Name       string      `yaml:"name" json:"name" validate:"required"`
	Parameters []string    `yaml:"parameters" json:"parameters" validate:"required,min=1"`
	Matrix     [][]float64 `yaml:"matrix" json:"matrix" validate:"required"`
}

// #endregion document

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// #region parse
// Parse decodes and validates a dataset. name is used for error messages
// and picks the decoder: ".json" files are decoded as JSON, everything else
// as YAML. Unknown fields are rejected.
func Parse(name string, data []byte) (*Dataset, error) {
	malformed := func(field, format string, args ...any) error {
		return &MalformedDatasetError{File: name, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	var doc document
	if err := decode(name, data, &doc); err != nil {
		return nil, malformed("", "decode: %v", err)
	}
	if err := validate.Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := slices.MinFunc(verrs, func(a, b validator.FieldError) int {
				return strings.Compare(a.Namespace(), b.Namespace())
			})
			_, field, _ := strings.Cut(fe.Namespace(), ".")
			return nil, malformed(field, "failed %q check", tagWithParam(fe))
		}
		return nil, malformed("", "%v", err)
	}

	version, err := semver.NewVersion(doc.SchemaVersion)
	if err != nil {
		return nil, malformed("schema_version", "invalid version %q: %v", doc.SchemaVersion, err)
	}
	constraint, err := semver.NewConstraint("^" + SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("schema constraint: %w", err)
	}
	if !constraint.Check(version) {
		return nil, malformed("schema_version", "version %s is not compatible with %s", version, SchemaVersion)
	}

	policy := UncertaintyPolicy(doc.UncertaintyPolicy)
	if policy == "" {
		policy = PolicyStrict
	}

	ds := &Dataset{
		Name:          name,
		Source:        doc.Source,
		SchemaVersion: version,
		Policy:        policy,
		constraints:   make(map[string]ExperimentalConstraint, len(doc.Parameters)),
	}
	for _, key := range slices.Sorted(maps.Keys(doc.Parameters)) {
		p := doc.Parameters[key]
		c, err := p.constraint(key, doc.Source, policy)
		if err != nil {
			return nil, malformed("parameters."+key, "%v", err)
		}
		ds.constraints[key] = c
		ds.keys = append(ds.keys, key)
	}

	for i, cd := range doc.Correlations {
		field := fmt.Sprintf("correlations[%d]", i)
		paths := make([]string, len(cd.Parameters))
		for j, key := range cd.Parameters {
			c, ok := ds.constraints[key]
			if !ok {
				return nil, malformed(field, "unknown parameter %q", key)
			}
			paths[j] = c.ParameterPath
		}
		g, err := stats.NewCorrelationGroup(cd.Name, paths, cd.Matrix)
		if err != nil {
			return nil, malformed(field, "%v", err)
		}
		ds.groups = append(ds.groups, g)
	}
	return ds, nil
}

func decode(name string, data []byte, doc *document) error {
	if strings.EqualFold(path.Ext(name), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(doc)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(doc)
}

func tagWithParam(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func (p parameterDoc) constraint(key, source string, policy UncertaintyPolicy) (ExperimentalConstraint, error) {
	bt, err := measure.ParseBoundType(p.BoundType)
	if err != nil {
		return ExperimentalConstraint{}, err
	}
	if math.IsNaN(*p.CentralValue) || math.IsInf(*p.CentralValue, 0) {
		return ExperimentalConstraint{}, fmt.Errorf("central_value is not finite")
	}
	c := ExperimentalConstraint{
		ParameterPath:  p.Path,
		Key:            key,
		CentralValue:   *p.CentralValue,
		Units:          p.Units,
		SourceCitation: p.SourceName,
		BoundType:      bt,
	}
	if c.ParameterPath == "" {
		c.ParameterPath = key
	}
	if c.SourceCitation == "" {
		c.SourceCitation = source
	}

	lo, hi := p.UncertaintyLower, p.UncertaintyUpper
	switch {
	case p.Uncertainty != nil && (lo != nil || hi != nil):
		return ExperimentalConstraint{}, fmt.Errorf("both symmetric and asymmetric uncertainty given")
	case p.Uncertainty != nil:
		u := measure.Symmetric(*p.Uncertainty)
		c.Uncertainty = &u
	case lo != nil && hi != nil:
		u := measure.Asymmetric(*lo, *hi)
		c.Uncertainty = &u
	case lo != nil || hi != nil:
		if policy != PolicySymmetricFallback {
			return ExperimentalConstraint{}, fmt.Errorf("only one side of asymmetric uncertainty given")
		}
		side := lo
		if side == nil {
			side = hi
		}
		u := measure.Symmetric(*side)
		c.Uncertainty = &u
	}
	if c.Uncertainty != nil {
		if err := c.Uncertainty.Validate(); err != nil {
			return ExperimentalConstraint{}, err
		}
	}
	return c, nil
}

// #endregion parse
