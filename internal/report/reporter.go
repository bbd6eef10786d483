package report

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/paramreg/internal/dataset"
	"github.com/danielpatrickdp/paramreg/internal/measure"
	"github.com/danielpatrickdp/paramreg/internal/registry"
	"github.com/danielpatrickdp/paramreg/internal/stats"
)

// Codes for unscoreable groups that do not come from a typed error.
const (
	CodeIncompleteGroup  = "INCOMPLETE_GROUP"
	CodeOverlappingGroup = "OVERLAPPING_GROUP"
)

// #region reporter
// Observer is told about every generated report, e.g. for metrics.
type Observer interface {
	ReportGenerated(rep ValidationReport, elapsed time.Duration)
}

// Config is the reporter's policy.
type Config struct {
	// Rules is the recommendation table. Nil means DefaultRules.
	Rules []Rule
	// CombineUncertainties adds the entry's own uncertainty to the
	// experimental one in quadrature.
	CombineUncertainties bool
}

// Reporter scores registry snapshots against experimental constraints.
// It holds no state between calls.
type Reporter struct {
	cfg      Config
	rules    []compiledRule
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(r *Reporter) { r.observer = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReporter compiles the rule table. It fails only on a bad rule.
func NewReporter(cfg Config, opts ...Option) (*Reporter, error) {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	rules, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}
	r := &Reporter{
		cfg:    cfg,
		rules:  rules,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// #endregion reporter

// #region generate
// scored is the working state for one constrained entry.
type scored struct {
	result  ValidationResult
	sigma   float64 // experimental uncertainty on the side of the computed value
	ok      bool    // measured, with a defined sigma
	chi2    float64
	inJoint bool
}

// Generate scores every DERIVED and PREDICTED entry in snap. Structural
// problems inside the inputs (duplicate constraints, singular or incomplete
// correlation groups) become conflicts; they never abort the report.
func (r *Reporter) Generate(snap registry.ParametersSnapshot, constraints []dataset.ExperimentalConstraint, groups []*stats.CorrelationGroup) ValidationReport {
	start := r.now()
	rep := ValidationReport{
		ReportID:        uuid.New().String(),
		GeneratedAt:     start.UTC(),
		SnapshotID:      snap.SnapshotID,
		Results:         []ValidationResult{},
		Conflicts:       []string{},
		Recommendations: []string{},
	}

	byPath := r.indexConstraints(constraints, &rep)

	work := make(map[string]*scored)
	var order []string
	for _, path := range snap.Paths() {
		e, _ := snap.Entry(path)
		if !e.Status.Scored() {
			continue
		}
		c, ok := byPath[path]
		if !ok {
			rep.Unconstrained = append(rep.Unconstrained, path)
			continue
		}
		work[path] = r.score(e, c)
		order = append(order, path)
	}

	r.scoreGroups(groups, work, &rep)

	for _, path := range order {
		s := work[path]
		if s.ok && !s.inJoint {
			chi2 := s.chi2
			s.result.ChiSquareContribution = &chi2
			rep.TotalChiSquare += chi2
			rep.DegreesOfFreedom++
		}
		rep.Results = append(rep.Results, s.result)
	}
	for _, g := range rep.Groups {
		if !g.Unscoreable {
			rep.TotalChiSquare += g.ChiSquare
			rep.DegreesOfFreedom += g.DegreesOfFreedom
		}
	}

	rep.PValue = 1
	if rep.DegreesOfFreedom > 0 {
		if p, err := stats.PValue(rep.TotalChiSquare, rep.DegreesOfFreedom); err == nil {
			rep.PValue = p
		}
	}

	rep.OverallStatus = NoData
	for _, res := range rep.Results {
		switch res.Tier {
		case stats.TierPass:
			rep.NPass++
		case stats.TierTension:
			rep.NTension++
		case stats.TierWarning:
			rep.NWarning++
		case stats.TierFail:
			rep.NFail++
		default:
			rep.NUnscored++
			continue
		}
		if rep.OverallStatus == NoData {
			rep.OverallStatus = res.Tier
		} else {
			rep.OverallStatus = stats.Worse(rep.OverallStatus, res.Tier)
		}
	}

	for _, rule := range r.rules {
		msgs, err := rule.evaluate(rep)
		if err != nil {
			r.logger.Warn("recommendation rule failed", zap.String("rule", rule.Name), zap.Error(err))
			continue
		}
		rep.Recommendations = append(rep.Recommendations, msgs...)
	}

	elapsed := r.now().Sub(start)
	r.logger.Info("validation report generated",
		zap.String("report_id", rep.ReportID),
		zap.String("overall_status", string(rep.OverallStatus)),
		zap.Float64("total_chi_square", rep.TotalChiSquare),
		zap.Int("dof", rep.DegreesOfFreedom),
		zap.Float64("p_value", rep.PValue),
		zap.Int("n_pass", rep.NPass),
		zap.Int("n_tension", rep.NTension),
		zap.Int("n_warning", rep.NWarning),
		zap.Int("n_fail", rep.NFail),
		zap.Int("n_unscored", rep.NUnscored),
		zap.Int("conflicts", len(rep.Conflicts)),
	)
	if r.observer != nil {
		r.observer.ReportGenerated(rep, elapsed)
	}
	return rep
}

// indexConstraints keeps the first constraint per path and records later
// ones as conflicts.
func (r *Reporter) indexConstraints(constraints []dataset.ExperimentalConstraint, rep *ValidationReport) map[string]dataset.ExperimentalConstraint {
	byPath := make(map[string]dataset.ExperimentalConstraint, len(constraints))
	for _, c := range constraints {
		if first, dup := byPath[c.ParameterPath]; dup {
			rep.Conflicts = append(rep.Conflicts, fmt.Sprintf(
				"duplicate constraint for %s: using %s (%g), ignoring %s (%g)",
				c.ParameterPath, first.SourceCitation, first.CentralValue, c.SourceCitation, c.CentralValue))
			continue
		}
		byPath[c.ParameterPath] = c
	}
	return byPath
}

// score computes the independent result of one entry.
func (r *Reporter) score(e registry.Entry, c dataset.ExperimentalConstraint) *scored {
	s := &scored{result: ValidationResult{
		Path:              e.Path,
		Source:            e.Source,
		Status:            e.Status,
		ComputedValue:     e.Value,
		ExperimentalValue: c.CentralValue,
		Tier:              stats.TierUnscored,
		BoundType:         c.BoundType,
		Reference:         c.SourceCitation,
		Units:             c.Units,
	}}
	if e.IsVector() {
		s.result.Note = "vector-valued parameter cannot be scored against a scalar constraint"
		return s
	}

	var unc float64
	hasUnc := c.Uncertainty != nil
	if hasUnc {
		unc = c.Uncertainty.Toward(e.Value, c.CentralValue)
		if r.cfg.CombineUncertainties && e.Uncertainty != nil {
			unc = stats.Quadrature(unc, e.Uncertainty.Toward(c.CentralValue, e.Value))
		}
		u := unc
		s.result.UncertaintyUsed = &u
	}

	switch {
	case c.BoundType != measure.BoundMeasured && c.BoundType.Satisfied(e.Value, c.CentralValue):
		zero := 0.0
		s.result.SigmaDeviation = &zero
		s.result.Tier = stats.TierPass
	case c.BoundType != measure.BoundMeasured:
		if sigma, ok := stats.SigmaDeviation(e.Value, c.CentralValue, unc); hasUnc && ok {
			s.result.SigmaDeviation = &sigma
			s.result.Tier = stats.Classify(sigma)
		} else {
			s.result.Tier = stats.TierFail
			s.result.Note = "bound violated with no uncertainty"
		}
	default:
		sigma, ok := stats.SigmaDeviation(e.Value, c.CentralValue, unc)
		if !hasUnc || !ok {
			s.result.Note = "experimental uncertainty missing or zero"
			return s
		}
		s.result.SigmaDeviation = &sigma
		s.result.Tier = stats.Classify(sigma)
		s.sigma = unc
		s.ok = true
		s.chi2 = sigma * sigma
	}
	return s
}

// scoreGroups replaces independent chi-square terms with one joint term per
// fully scoreable group. Groups with no scored member are ignored.
func (r *Reporter) scoreGroups(groups []*stats.CorrelationGroup, work map[string]*scored, rep *ValidationReport) {
	owner := make(map[string]string)
	for _, g := range groups {
		if g == nil {
			continue
		}
		var present, missing []string
		for _, p := range g.Paths {
			if s, ok := work[p]; ok && s.ok {
				present = append(present, p)
			} else {
				missing = append(missing, p)
			}
		}
		if len(present) == 0 {
			continue
		}

		gr := GroupResult{Name: g.Name, Paths: slices.Clone(g.Paths)}
		unscoreable := func(code, reason string) {
			gr.Unscoreable, gr.Code, gr.Reason = true, code, reason
			rep.Groups = append(rep.Groups, gr)
			rep.Conflicts = append(rep.Conflicts, fmt.Sprintf("correlation group %s is unscoreable: %s", g.Name, reason))
			r.logger.Warn("correlation group unscoreable",
				zap.String("group", g.Name),
				zap.String("code", code),
				zap.String("reason", reason),
			)
		}

		if len(missing) > 0 {
			unscoreable(CodeIncompleteGroup, "no scoreable measurement for "+strings.Join(missing, ", "))
			continue
		}
		if taken := overlapping(g.Paths, owner); taken != "" {
			unscoreable(CodeOverlappingGroup, fmt.Sprintf("%s already belongs to group %s", taken, owner[taken]))
			continue
		}

		n := g.Size()
		computed := make([]float64, n)
		reference := make([]float64, n)
		sigmas := make([]float64, n)
		for i, p := range g.Paths {
			s := work[p]
			computed[i] = s.result.ComputedValue
			reference[i] = s.result.ExperimentalValue
			sigmas[i] = s.sigma
		}
		precision, err := g.Precision(sigmas)
		if err != nil {
			unscoreable(errorCode(err), err.Error())
			continue
		}
		chi2, err := stats.JointChiSquare(computed, reference, precision)
		if err != nil {
			unscoreable(errorCode(err), err.Error())
			continue
		}
		parts, err := stats.Contributions(computed, reference, precision)
		if err != nil {
			unscoreable(errorCode(err), err.Error())
			continue
		}

		gr.ChiSquare = chi2
		gr.DegreesOfFreedom = n
		gr.PValue, _ = stats.PValue(math.Max(chi2, 0), n)
		rep.Groups = append(rep.Groups, gr)
		for i, p := range g.Paths {
			s := work[p]
			s.inJoint = true
			part := parts[i]
			s.result.ChiSquareContribution = &part
			s.result.Group = g.Name
			owner[p] = g.Name
		}
	}
}

func overlapping(paths []string, owner map[string]string) string {
	for _, p := range paths {
		if _, ok := owner[p]; ok {
			return p
		}
	}
	return ""
}

// errorCode extracts a stable code from typed errors.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return "UNSCOREABLE"
}

// #endregion generate
