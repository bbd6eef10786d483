package stats

import (
	"errors"
	"fmt"
)

var (
	// ErrSingularCovariance means a covariance matrix could not be inverted.
	ErrSingularCovariance = errors.New("singular covariance")
	// ErrInvalidCorrelationMatrix means a correlation matrix failed
	// construction checks (shape, symmetry, unit diagonal, range).
	ErrInvalidCorrelationMatrix = errors.New("invalid correlation matrix")
	// ErrDimension means vector and matrix sizes disagree.
	ErrDimension = errors.New("dimension mismatch")
)

// CorrelationError describes why a correlation group was refused.
type CorrelationError struct {
	Group  string
	Reason string
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("correlation group %q: %s", e.Group, e.Reason)
}

func (e *CorrelationError) Unwrap() error { return ErrInvalidCorrelationMatrix }

// Code returns the stable error code.
func (e *CorrelationError) Code() string { return "INVALID_CORRELATION_MATRIX" }

// SingularCovarianceError names the group whose covariance is not invertible.
type SingularCovarianceError struct {
	Group     string
	Condition float64
}

func (e *SingularCovarianceError) Error() string {
	return fmt.Sprintf("covariance of group %q cannot be inverted (condition number %.3g)", e.Group, e.Condition)
}

func (e *SingularCovarianceError) Unwrap() error { return ErrSingularCovariance }

// Code returns the stable error code.
func (e *SingularCovarianceError) Code() string { return "SINGULAR_COVARIANCE" }
