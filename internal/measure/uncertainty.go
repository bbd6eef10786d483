package measure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// #region uncertainty
// Uncertainty is a one-sigma error band around a value. Symmetric
// uncertainties carry the same width on both sides.
type Uncertainty struct {
	Lower float64
	Upper float64
}

// Symmetric returns an uncertainty of width u on both sides.
func Symmetric(u float64) Uncertainty {
	return Uncertainty{Lower: u, Upper: u}
}

// Asymmetric returns an uncertainty with distinct lower and upper widths.
func Asymmetric(lower, upper float64) Uncertainty {
	return Uncertainty{Lower: lower, Upper: upper}
}

// IsSymmetric reports whether both sides have the same width.
func (u Uncertainty) IsSymmetric() bool {
	return u.Lower == u.Upper
}

// Validate rejects negative and NaN widths.
func (u Uncertainty) Validate() error {
	if math.IsNaN(u.Lower) || math.IsNaN(u.Upper) {
		return fmt.Errorf("uncertainty is NaN")
	}
	if math.IsInf(u.Lower, 0) || math.IsInf(u.Upper, 0) {
		return fmt.Errorf("uncertainty is not finite")
	}
	if u.Lower < 0 || u.Upper < 0 {
		return fmt.Errorf("uncertainty must be non-negative, got -%g/+%g", u.Lower, u.Upper)
	}
	return nil
}

// Toward returns the width on the side of central that computed lies on.
// A computed value at or above central uses the upper width.
func (u Uncertainty) Toward(computed, central float64) float64 {
	if computed >= central {
		return u.Upper
	}
	return u.Lower
}

// Max returns the larger of the two widths.
func (u Uncertainty) Max() float64 {
	return math.Max(u.Lower, u.Upper)
}

// #endregion uncertainty

// #region json
type asymmetricJSON struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// MarshalJSON encodes symmetric uncertainties as a bare number and
// asymmetric ones as {"lower":..,"upper":..}.
func (u Uncertainty) MarshalJSON() ([]byte, error) {
	if u.IsSymmetric() {
		return json.Marshal(u.Upper)
	}
	return json.Marshal(asymmetricJSON{Lower: u.Lower, Upper: u.Upper})
}

// UnmarshalJSON accepts either encoding produced by MarshalJSON.
func (u *Uncertainty) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var a asymmetricJSON
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("decode asymmetric uncertainty: %w", err)
		}
		*u = Asymmetric(a.Lower, a.Upper)
		return u.Validate()
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode uncertainty: %w", err)
	}
	*u = Symmetric(v)
	return u.Validate()
}

// #endregion json
