package registry

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/danielpatrickdp/paramreg/internal/measure"
)

// #region status
// Status is the trust tier of a parameter. It is a ranking, not a workflow:
// the only ordering that matters is ESTABLISHED above everything else.
type Status string

const (
	StatusEstablished Status = "ESTABLISHED"
	StatusGeometric   Status = "GEOMETRIC"
	StatusDerived     Status = "DERIVED"
	StatusPredicted   Status = "PREDICTED"
	StatusCalibrated  Status = "CALIBRATED"
)

// Statuses lists every valid status.
func Statuses() []Status {
	return []Status{StatusEstablished, StatusGeometric, StatusDerived, StatusPredicted, StatusCalibrated}
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the five known statuses.
func (s Status) Valid() bool {
	return slices.Contains(Statuses(), s)
}

// Protects reports whether an entry holding status s must refuse an
// overwrite carrying the incoming status.
func (s Status) Protects(incoming Status) bool {
	return s == StatusEstablished && incoming != StatusEstablished
}

// Scored reports whether entries with this status are checked against
// experiment. Established and geometric values are inputs.
func (s Status) Scored() bool {
	return s == StatusDerived || s == StatusPredicted
}

// #endregion status

// #region entry
// Entry is the current state of one parameter path.
type Entry struct {
	Path        string               `json:"-"`
	Value       float64              `json:"value"`
	Vector      []float64            `json:"vector,omitempty"`
	Uncertainty *measure.Uncertainty `json:"uncertainty"`
	Status      Status               `json:"status"`
	Source      string               `json:"source"`
	Metadata    map[string]string    `json:"metadata,omitempty"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// IsVector reports whether the entry holds a vector value.
func (e Entry) IsVector() bool {
	return e.Vector != nil
}

func (e Entry) clone() Entry {
	out := e
	out.Vector = slices.Clone(e.Vector)
	out.Metadata = maps.Clone(e.Metadata)
	if e.Uncertainty != nil {
		u := *e.Uncertainty
		out.Uncertainty = &u
	}
	return out
}

// #endregion entry

// #region record
// Record is one append-only provenance row for a path.
type Record struct {
	Value     float64   `json:"value"`
	Vector    []float64 `json:"vector,omitempty"`
	Source    string    `json:"source"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (r Record) clone() Record {
	r.Vector = slices.Clone(r.Vector)
	return r
}

// #endregion record

// #region mismatch
// Mismatch notes that a permitted overwrite moved a value by more than the
// registry tolerance. For vectors the fields describe the component that
// moved furthest; Component is -1 for scalars. ShapeChanged marks a write
// that switched between scalar and vector or changed vector length.
type Mismatch struct {
	Path           string    `json:"path"`
	Component      int       `json:"component"`
	ShapeChanged   bool      `json:"shape_changed,omitempty"`
	Previous       float64   `json:"previous"`
	Incoming       float64   `json:"incoming"`
	AbsDiff        float64   `json:"abs_diff"`
	Threshold      float64   `json:"threshold"`
	PreviousSource string    `json:"previous_source"`
	IncomingSource string    `json:"incoming_source"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Outcome is what a successful Set reports back.
type Outcome struct {
	Created  bool
	Mismatch *Mismatch
}

// #endregion mismatch

// #region tolerance
// Tolerance decides when two values of the same parameter disagree.
// The allowed drift is max(Absolute, Relative*max(|a|,|b|)).
type Tolerance struct {
	Relative float64
	Absolute float64
}

// DefaultTolerance allows 0.1% relative drift.
func DefaultTolerance() Tolerance {
	return Tolerance{Relative: 1e-3, Absolute: 1e-12}
}

// Threshold returns the allowed absolute difference between a and b.
func (t Tolerance) Threshold(a, b float64) float64 {
	return math.Max(t.Absolute, t.Relative*math.Max(math.Abs(a), math.Abs(b)))
}

// Exceeded reports whether a and b differ by more than the threshold.
func (t Tolerance) Exceeded(a, b float64) bool {
	return math.Abs(a-b) > t.Threshold(a, b)
}

// Validate rejects negative or NaN tolerances.
func (t Tolerance) Validate() error {
	if math.IsNaN(t.Relative) || math.IsNaN(t.Absolute) || t.Relative < 0 || t.Absolute < 0 {
		return fmt.Errorf("tolerance must be non-negative, got rel=%g abs=%g", t.Relative, t.Absolute)
	}
	return nil
}

// #endregion tolerance

// #region paths
// Delimiter separates path segments, as in "gauge.alpha_gut".
const Delimiter = "."

// ValidatePath checks that path is a non-empty sequence of non-empty,
// whitespace-free segments.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	for i, seg := range strings.Split(path, Delimiter) {
		if seg == "" {
			return fmt.Errorf("path %q: empty segment %d", path, i)
		}
		if strings.ContainsFunc(seg, unicode.IsSpace) {
			return fmt.Errorf("path %q: whitespace in segment %q", path, seg)
		}
	}
	return nil
}

// underPrefix reports whether path equals prefix or sits below it.
func underPrefix(path, prefix string) bool {
	if prefix == "" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+Delimiter)
}

// #endregion paths
