package measure

import "fmt"

// BoundType says how a reference value constrains a parameter.
type BoundType string

const (
	BoundMeasured BoundType = "measured"
	BoundUpper    BoundType = "upper_bound"
	BoundLower    BoundType = "lower_bound"
)

// ParseBoundType maps a dataset string onto a BoundType. Empty means measured.
func ParseBoundType(s string) (BoundType, error) {
	switch BoundType(s) {
	case "", BoundMeasured:
		return BoundMeasured, nil
	case BoundUpper, BoundLower:
		return BoundType(s), nil
	}
	return "", fmt.Errorf("unknown bound type %q", s)
}

// Satisfied reports whether value lies inside the region allowed by a bound
// at central. Measured constraints are never "satisfied" in this sense.
func (b BoundType) Satisfied(value, central float64) bool {
	switch b {
	case BoundUpper:
		return value <= central
	case BoundLower:
		return value >= central
	}
	return false
}
