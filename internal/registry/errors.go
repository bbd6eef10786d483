package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingParameter is returned by Get for an unknown path.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrProtectedOverwrite is returned when a non-ESTABLISHED write targets
	// an ESTABLISHED entry.
	ErrProtectedOverwrite = errors.New("protected overwrite")
	// ErrInvalidWrite covers malformed paths, NaN values, unknown statuses
	// and negative uncertainties.
	ErrInvalidWrite = errors.New("invalid write")
	// ErrVectorValue is returned by Get when the entry holds a vector.
	ErrVectorValue = errors.New("parameter holds a vector value")
)

// MissingParameterError names the absent path.
type MissingParameterError struct {
	Path string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameter %q", e.Path)
}

func (e *MissingParameterError) Unwrap() error { return ErrMissingParameter }

// Code returns the stable error code.
func (e *MissingParameterError) Code() string { return "MISSING_PARAMETER" }

// ProtectedOverwriteError describes a rejected write. The entry and its
// provenance are untouched when this is returned.
type ProtectedOverwriteError struct {
	Path     string
	Existing Status
	Incoming Status
	Source   string
}

func (e *ProtectedOverwriteError) Error() string {
	return fmt.Sprintf("protected overwrite of %q: %s entry cannot be replaced by %s write from %q",
		e.Path, e.Existing, e.Incoming, e.Source)
}

func (e *ProtectedOverwriteError) Unwrap() error { return ErrProtectedOverwrite }

// Code returns the stable error code.
func (e *ProtectedOverwriteError) Code() string { return "PROTECTED_OVERWRITE" }
