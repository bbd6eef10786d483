package stats

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// symmetryTolerance bounds |rho[i][j]-rho[j][i]| and |rho[i][i]-1|.
const symmetryTolerance = 1e-9

// MaxCondition is the largest condition number of the correlation part of a
// covariance accepted before the covariance is treated as singular.
const MaxCondition = 1e12

// #region correlation-group
// CorrelationGroup is a named set of parameter paths sharing a correlation
// matrix. The matrix is validated once, at construction.
type CorrelationGroup struct {
	Name  string
	Paths []string
	rho   *mat.SymDense
}

// NewCorrelationGroup validates rho and builds the group. rho must be
// square with one row per path, symmetric, with a unit diagonal and entries
// in [-1, 1].
func NewCorrelationGroup(name string, paths []string, rho [][]float64) (*CorrelationGroup, error) {
	fail := func(format string, args ...any) (*CorrelationGroup, error) {
		return nil, &CorrelationError{Group: name, Reason: fmt.Sprintf(format, args...)}
	}

	n := len(paths)
	if n == 0 {
		return fail("no parameters")
	}
	seen := make(map[string]bool, n)
	for _, p := range paths {
		if p == "" {
			return fail("empty parameter path")
		}
		if seen[p] {
			return fail("duplicate parameter %q", p)
		}
		seen[p] = true
	}
	if len(rho) != n {
		return fail("matrix has %d rows, want %d", len(rho), n)
	}
	for i, row := range rho {
		if len(row) != n {
			return fail("row %d has %d columns, want %d", i, len(row), n)
		}
	}

	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := rho[i][j]
			if math.IsNaN(v) || v < -1 || v > 1 {
				return fail("entry [%d][%d]=%g outside [-1, 1]", i, j, v)
			}
			if i == j && math.Abs(v-1) > symmetryTolerance {
				return fail("diagonal entry [%d][%d]=%g, want 1", i, i, v)
			}
			if math.Abs(v-rho[j][i]) > symmetryTolerance {
				return fail("not symmetric at [%d][%d]: %g vs %g", i, j, v, rho[j][i])
			}
			data[i*n+j] = v
		}
	}
	return &CorrelationGroup{
		Name:  name,
		Paths: slices.Clone(paths),
		rho:   mat.NewSymDense(n, data),
	}, nil
}

// IdentityGroup builds an uncorrelated group.
func IdentityGroup(name string, paths []string) (*CorrelationGroup, error) {
	n := len(paths)
	rho := make([][]float64, n)
	for i := range rho {
		rho[i] = make([]float64, n)
		rho[i][i] = 1
	}
	return NewCorrelationGroup(name, paths, rho)
}

// Size returns the number of parameters in the group.
func (g *CorrelationGroup) Size() int {
	return len(g.Paths)
}

// Index returns the position of path in the group or -1.
func (g *CorrelationGroup) Index(path string) int {
	return slices.Index(g.Paths, path)
}

// Correlation returns rho[i][j].
func (g *CorrelationGroup) Correlation(i, j int) float64 {
	return g.rho.At(i, j)
}

// Matrix returns a copy of the correlation matrix as rows.
func (g *CorrelationGroup) Matrix() [][]float64 {
	n := g.Size()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = g.rho.At(i, j)
		}
	}
	return out
}

// Covariance builds Cov[i][j] = rho[i][j]*sigma[i]*sigma[j].
func (g *CorrelationGroup) Covariance(sigmas []float64) (*mat.SymDense, error) {
	n := g.Size()
	if len(sigmas) != n {
		return nil, fmt.Errorf("covariance of group %q: %w: %d sigmas for %d parameters", g.Name, ErrDimension, len(sigmas), n)
	}
	for i, s := range sigmas {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return nil, fmt.Errorf("covariance of group %q: sigma %d is %g", g.Name, i, s)
		}
	}
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, g.rho.At(i, j)*sigmas[i]*sigmas[j])
		}
	}
	return cov, nil
}

// Precision returns the inverse of the group's covariance for sigmas.
func (g *CorrelationGroup) Precision(sigmas []float64) (*mat.SymDense, error) {
	cov, err := g.Covariance(sigmas)
	if err != nil {
		return nil, err
	}
	p, err := Precision(cov)
	if err != nil {
		var sce *SingularCovarianceError
		if errors.As(err, &sce) {
			sce.Group = g.Name
		}
		return nil, err
	}
	return p, nil
}

// #endregion correlation-group

// #region precision
// Precision inverts a covariance matrix. The conditioning check runs on the
// correlation matrix D⁻¹·Cov·D⁻¹ with D = diag(sqrt(Cov[i][i])), so it does
// not depend on the units of the parameters; the inverse is rescaled as
// D⁻¹·ρ⁻¹·D⁻¹. A zero variance or a numerically singular correlation fails
// with ErrSingularCovariance; no pseudo-inverse is substituted.
func Precision(cov mat.Symmetric) (*mat.SymDense, error) {
	n := cov.SymmetricDim()
	if n == 0 {
		return nil, fmt.Errorf("precision: %w: empty covariance", ErrDimension)
	}
	d := make([]float64, n)
	for i := range d {
		v := cov.At(i, i)
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, &SingularCovarianceError{Condition: math.Inf(1)}
		}
		d[i] = math.Sqrt(v)
	}
	rho := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			rho.SetSym(i, j, cov.At(i, j)/(d[i]*d[j]))
		}
	}

	cond := mat.Cond(rho, 1)
	if math.IsInf(cond, 0) || math.IsNaN(cond) || cond > MaxCondition {
		return nil, &SingularCovarianceError{Condition: cond}
	}
	var inv mat.Dense
	if err := inv.Inverse(rho); err != nil {
		return nil, &SingularCovarianceError{Condition: cond}
	}
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (inv.At(i, j)+inv.At(j, i))/2/(d[i]*d[j]))
		}
	}
	return out, nil
}

// #endregion precision
