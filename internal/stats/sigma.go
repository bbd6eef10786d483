package stats

import "math"

// SigmaDeviation returns |computed-reference|/uncertainty. ok is false when
// the uncertainty is not a positive finite number: the deviation is then
// undefined, which is not the same as zero.
func SigmaDeviation(computed, reference, uncertainty float64) (sigma float64, ok bool) {
	if math.IsNaN(uncertainty) || math.IsInf(uncertainty, 0) || uncertainty <= 0 {
		return 0, false
	}
	if math.IsNaN(computed) || math.IsNaN(reference) {
		return 0, false
	}
	return math.Abs(computed-reference) / uncertainty, true
}

// Quadrature combines independent uncertainties.
func Quadrature(us ...float64) float64 {
	var sum float64
	for _, u := range us {
		sum += u * u
	}
	return math.Sqrt(sum)
}
