package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// #region joint-chi-square
// JointChiSquare returns dxᵀ·P·dx with dx = computed-reference. With a
// diagonal P this is the sum of the squared per-component sigma deviations.
func JointChiSquare(computed, reference []float64, precision mat.Symmetric) (float64, error) {
	dx, err := residual(computed, reference, precision)
	if err != nil {
		return 0, err
	}
	return mat.Inner(dx, precision, dx), nil
}

// Contributions splits the joint chi-square into per-component terms
// dx[i]*(P·dx)[i]. They sum to JointChiSquare; individual terms can be
// negative when correlations are negative.
func Contributions(computed, reference []float64, precision mat.Symmetric) ([]float64, error) {
	dx, err := residual(computed, reference, precision)
	if err != nil {
		return nil, err
	}
	var pdx mat.VecDense
	pdx.MulVec(precision, dx)
	out := make([]float64, dx.Len())
	for i := range out {
		out[i] = dx.AtVec(i) * pdx.AtVec(i)
	}
	return out, nil
}

func residual(computed, reference []float64, precision mat.Symmetric) (*mat.VecDense, error) {
	n := len(computed)
	if n == 0 {
		return nil, fmt.Errorf("chi-square: %w: empty vectors", ErrDimension)
	}
	if len(reference) != n || precision.SymmetricDim() != n {
		return nil, fmt.Errorf("chi-square: %w: computed %d, reference %d, precision %d",
			ErrDimension, n, len(reference), precision.SymmetricDim())
	}
	dx := mat.NewVecDense(n, nil)
	for i := range computed {
		dx.SetVec(i, computed[i]-reference[i])
	}
	return dx, nil
}

// #endregion joint-chi-square

// #region p-value
// PValue is the chi-squared survival function P(X >= chiSquare) for the
// given degrees of freedom.
func PValue(chiSquare float64, dof int) (float64, error) {
	if dof <= 0 {
		return 0, fmt.Errorf("p-value: degrees of freedom must be positive, got %d", dof)
	}
	if math.IsNaN(chiSquare) || chiSquare < 0 {
		return 0, fmt.Errorf("p-value: chi-square must be non-negative, got %g", chiSquare)
	}
	return distuv.ChiSquared{K: float64(dof)}.Survival(chiSquare), nil
}

// #endregion p-value
