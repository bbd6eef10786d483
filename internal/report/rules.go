package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/paramreg/internal/stats"
)

// #region rule-types
// Scope is what a rule counts over.
type Scope string

const (
	// ScopeGlobal fires once for the whole report.
	ScopeGlobal Scope = "global"
	// ScopeSource fires once per entry source.
	ScopeSource Scope = "source"
	// ScopeParameter fires once per result.
	ScopeParameter Scope = "parameter"
	// ScopeGroup fires once per scored correlation group.
	ScopeGroup Scope = "group"
)

// Rule turns report findings into a recommendation. A rule fires when at
// least MinCount results in its scope reach MinTier and, if MaxPValue is
// set, the relevant p-value is below it. Message is a text/template
// rendered with a RuleContext.
type Rule struct {
	Name      string     `yaml:"name" validate:"required"`
	Scope     Scope      `yaml:"scope" validate:"required,oneof=global source parameter group"`
	MinTier   stats.Tier `yaml:"min_tier" validate:"omitempty,oneof=PASS TENSION WARNING FAIL"`
	MinCount  int        `yaml:"min_count" validate:"gte=0"`
	MaxPValue *float64   `yaml:"max_p_value" validate:"omitempty,gt=0,lte=1"`
	Message   string     `yaml:"message" validate:"required"`
}

// RuleContext is the data a rule message is rendered with. Fields that do
// not apply to the rule's scope are zero.
type RuleContext struct {
	Rule             string
	Path             string
	Source           string
	Group            string
	Paths            []string
	Tier             stats.Tier
	Count            int
	Sigma            float64
	HasSigma         bool
	ChiSquare        float64
	DegreesOfFreedom int
	PValue           float64
}

// #endregion rule-types

// #region default-rules
// DefaultRules is the built-in rule table.
func DefaultRules() []Rule {
	p05, p01 := 0.05, 0.01
	return []Rule{
		{
			Name:     "review-source",
			Scope:    ScopeSource,
			MinTier:  stats.TierTension,
			MinCount: 1,
			Message:  `Review source {{.Source}}: {{.Count}} parameter(s) at {{.Tier}} or worse ({{join .Paths ", "}})`,
		},
		{
			Name:    "rederive-failing",
			Scope:   ScopeParameter,
			MinTier: stats.TierFail,
			Message: `Re-derive {{.Path}}{{if .HasSigma}}: {{printf "%.1f" .Sigma}} sigma from experiment{{else}}: outside its experimental bound{{end}}`,
		},
		{
			Name:      "correlated-tension",
			Scope:     ScopeGroup,
			MaxPValue: &p05,
			Message:   `Correlation group {{.Group}} is jointly in tension (chi2={{printf "%.2f" .ChiSquare}}, dof={{.DegreesOfFreedom}}, p={{printf "%.3g" .PValue}})`,
		},
		{
			Name:      "global-fit",
			Scope:     ScopeGlobal,
			MaxPValue: &p01,
			Message:   `Overall agreement is poor (chi2={{printf "%.2f" .ChiSquare}} over {{.DegreesOfFreedom}} dof, p={{printf "%.3g" .PValue}}); audit shared inputs`,
		},
	}
}

// #endregion default-rules

// #region load-rules
type ruleFile struct {
	Rules []Rule `yaml:"rules" validate:"required,min=1,dive"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		return name
	})
}

// LoadRules reads a YAML rule table from path.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes and checks a YAML rule table of the form
// "rules: [...]". Templates are parsed here so a bad message fails early.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid rule field %s: failed %q check", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("validate rules: %w", err)
	}
	if _, err := compileRules(f.Rules); err != nil {
		return nil, err
	}
	return f.Rules, nil
}

// #endregion load-rules

// #region evaluate
type compiledRule struct {
	Rule
	tmpl *template.Template
}

var ruleFuncs = template.FuncMap{"join": strings.Join}

func compileRules(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate rule %q", r.Name)
		}
		seen[r.Name] = true
		if (r.Scope == ScopeParameter || r.Scope == ScopeSource) && r.MinTier == "" {
			return nil, fmt.Errorf("rule %q: scope %s needs min_tier", r.Name, r.Scope)
		}
		if r.Scope == ScopeGroup && r.MaxPValue == nil {
			return nil, fmt.Errorf("rule %q: scope group needs max_p_value", r.Name)
		}
		tmpl, err := template.New(r.Name).Funcs(ruleFuncs).Option("missingkey=error").Parse(r.Message)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		out = append(out, compiledRule{Rule: r, tmpl: tmpl})
	}
	return out, nil
}

func (r compiledRule) render(ctx RuleContext) (string, error) {
	ctx.Rule = r.Name
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("render rule %q: %w", r.Name, err)
	}
	return buf.String(), nil
}

func (r compiledRule) minCount() int {
	return max(r.MinCount, 1)
}

func (r compiledRule) pValueBelow(p float64) bool {
	return r.MaxPValue == nil || p < *r.MaxPValue
}

// matches counts the scored results at or above MinTier. Without a MinTier
// every scored result counts.
func (r compiledRule) matches(results []ValidationResult) []ValidationResult {
	var out []ValidationResult
	for _, res := range results {
		if !res.Scored() {
			continue
		}
		if r.MinTier == "" || res.Tier.AtLeast(r.MinTier) {
			out = append(out, res)
		}
	}
	return out
}

// evaluate returns the recommendations rule r produces for rep.
func (r compiledRule) evaluate(rep ValidationReport) ([]string, error) {
	var ctxs []RuleContext
	switch r.Scope {
	case ScopeGlobal:
		hits := r.matches(rep.Results)
		if r.MinTier != "" && len(hits) < r.minCount() {
			break
		}
		if r.MaxPValue != nil && (rep.DegreesOfFreedom == 0 || !r.pValueBelow(rep.PValue)) {
			break
		}
		ctxs = append(ctxs, RuleContext{
			Tier:             r.MinTier,
			Count:            len(hits),
			Paths:            resultPaths(hits),
			ChiSquare:        rep.TotalChiSquare,
			DegreesOfFreedom: rep.DegreesOfFreedom,
			PValue:           rep.PValue,
		})
	case ScopeSource:
		bySource := make(map[string][]ValidationResult)
		for _, res := range r.matches(rep.Results) {
			bySource[res.Source] = append(bySource[res.Source], res)
		}
		sources := make([]string, 0, len(bySource))
		for s := range bySource {
			sources = append(sources, s)
		}
		slices.Sort(sources)
		for _, s := range sources {
			hits := bySource[s]
			if len(hits) < r.minCount() {
				continue
			}
			ctxs = append(ctxs, RuleContext{Source: s, Tier: r.MinTier, Count: len(hits), Paths: resultPaths(hits)})
		}
	case ScopeParameter:
		for _, res := range r.matches(rep.Results) {
			ctx := RuleContext{
				Path:   res.Path,
				Source: res.Source,
				Group:  res.Group,
				Tier:   res.Tier,
				Count:  1,
				Paths:  []string{res.Path},
			}
			if res.SigmaDeviation != nil {
				ctx.Sigma, ctx.HasSigma = *res.SigmaDeviation, true
			}
			ctxs = append(ctxs, ctx)
		}
	case ScopeGroup:
		for _, g := range rep.Groups {
			if g.Unscoreable || !r.pValueBelow(g.PValue) {
				continue
			}
			ctxs = append(ctxs, RuleContext{
				Group:            g.Name,
				Paths:            g.Paths,
				Count:            len(g.Paths),
				ChiSquare:        g.ChiSquare,
				DegreesOfFreedom: g.DegreesOfFreedom,
				PValue:           g.PValue,
			})
		}
	}

	out := make([]string, 0, len(ctxs))
	for _, ctx := range ctxs {
		msg, err := r.render(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func resultPaths(results []ValidationResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Path
	}
	return out
}

// #endregion evaluate
