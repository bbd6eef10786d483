package report

import (
	"time"

	"github.com/danielpatrickdp/paramreg/internal/measure"
	"github.com/danielpatrickdp/paramreg/internal/registry"
	"github.com/danielpatrickdp/paramreg/internal/stats"
)

// NoData is the overall status of a report that scored nothing.
const NoData stats.Tier = "NO_DATA"

// #region result
// ValidationResult is the outcome of scoring one registry entry against
// its experimental constraint. SigmaDeviation is nil when the deviation is
// undefined; ChiSquareContribution is nil when the result does not enter
// the total (bounds, unscored results).
type ValidationResult struct {
	Path                  string            `json:"path"`
	Source                string            `json:"source"`
	Status                registry.Status   `json:"status"`
	ComputedValue         float64           `json:"computed_value"`
	ExperimentalValue     float64           `json:"experimental_value"`
	UncertaintyUsed       *float64          `json:"uncertainty_used"`
	SigmaDeviation        *float64          `json:"sigma_deviation"`
	Tier                  stats.Tier        `json:"tier"`
	ChiSquareContribution *float64          `json:"chi_square_contribution,omitempty"`
	BoundType             measure.BoundType `json:"bound_type"`
	Reference             string            `json:"reference,omitempty"`
	Units                 string            `json:"units,omitempty"`
	Group                 string            `json:"group,omitempty"`
	Note                  string            `json:"note,omitempty"`
}

// Scored reports whether the result landed in one of the four tiers.
func (r ValidationResult) Scored() bool {
	return r.Tier.Severity() >= 0
}

// #endregion result

// #region group-result
// GroupResult is the joint chi-square of one correlation group. An
// unscoreable group carries Reason and Code; its members are then scored
// independently.
type GroupResult struct {
	Name             string   `json:"name"`
	Paths            []string `json:"paths"`
	ChiSquare        float64  `json:"chi_square"`
	DegreesOfFreedom int      `json:"degrees_of_freedom"`
	PValue           float64  `json:"p_value"`
	Unscoreable      bool     `json:"unscoreable,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	Code             string   `json:"code,omitempty"`
}

// #endregion group-result

// #region report
// ValidationReport aggregates every result of one Generate call.
type ValidationReport struct {
	ReportID         string             `json:"report_id"`
	GeneratedAt      time.Time          `json:"generated_at"`
	SnapshotID       string             `json:"snapshot_id"`
	OverallStatus    stats.Tier         `json:"overall_status"`
	TotalChiSquare   float64            `json:"total_chi_square"`
	DegreesOfFreedom int                `json:"degrees_of_freedom"`
	PValue           float64            `json:"p_value"`
	NPass            int                `json:"n_pass"`
	NTension         int                `json:"n_tension"`
	NWarning         int                `json:"n_warning"`
	NFail            int                `json:"n_fail"`
	NUnscored        int                `json:"n_unscored"`
	Results          []ValidationResult `json:"results"`
	Groups           []GroupResult      `json:"groups,omitempty"`
	Unconstrained    []string           `json:"unconstrained,omitempty"`
	Conflicts        []string           `json:"conflicts"`
	Recommendations  []string           `json:"recommendations"`
}

// Result returns the result for path.
func (r ValidationReport) Result(path string) (ValidationResult, bool) {
	for _, res := range r.Results {
		if res.Path == path {
			return res, true
		}
	}
	return ValidationResult{}, false
}

// Group returns the group result named name.
func (r ValidationReport) Group(name string) (GroupResult, bool) {
	for _, g := range r.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return GroupResult{}, false
}

// Count returns the number of results in tier t.
func (r ValidationReport) Count(t stats.Tier) int {
	switch t {
	case stats.TierPass:
		return r.NPass
	case stats.TierTension:
		return r.NTension
	case stats.TierWarning:
		return r.NWarning
	case stats.TierFail:
		return r.NFail
	case stats.TierUnscored:
		return r.NUnscored
	}
	return 0
}

// #endregion report
