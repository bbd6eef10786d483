package stats

import (
	"fmt"
	"math"
	"strings"
)

// Sigma boundaries between tiers. Each boundary belongs to the tier above
// it: the bins are [0,1) [1,2) [2,3) [3,inf).
const (
	TensionSigma = 1.0
	WarningSigma = 2.0
	FailSigma    = 3.0
)

// #region tier
// Tier classifies a sigma deviation.
type Tier string

const (
	TierPass    Tier = "PASS"
	TierTension Tier = "TENSION"
	TierWarning Tier = "WARNING"
	TierFail    Tier = "FAIL"
	// TierUnscored marks a result whose sigma is undefined. It is never
	// counted as a pass.
	TierUnscored Tier = "UNSCORED"
)

// Classify maps a non-negative sigma deviation onto its tier. NaN maps to
// TierUnscored.
func Classify(sigma float64) Tier {
	switch {
	case math.IsNaN(sigma):
		return TierUnscored
	case sigma < TensionSigma:
		return TierPass
	case sigma < WarningSigma:
		return TierTension
	case sigma < FailSigma:
		return TierWarning
	}
	return TierFail
}

// ParseTier accepts a tier name in any case.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TierPass, TierTension, TierWarning, TierFail, TierUnscored:
		return t, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Severity orders tiers from PASS (0) to FAIL (3). Unscored is -1.
func (t Tier) Severity() int {
	switch t {
	case TierPass:
		return 0
	case TierTension:
		return 1
	case TierWarning:
		return 2
	case TierFail:
		return 3
	}
	return -1
}

// AtLeast reports whether t is scored and at least as severe as min.
func (t Tier) AtLeast(min Tier) bool {
	return t.Severity() >= 0 && t.Severity() >= min.Severity()
}

// Worse returns the more severe of a and b.
func Worse(a, b Tier) Tier {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// #endregion tier
