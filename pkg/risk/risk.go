// Package risk derives an equipment risk assessment from its usage counters.
//
// Every value produced here is a deterministic function of hours used and MTBF.
// The thresholds and the short-horizon bump are fixed business policy.
package risk

import (
	"errors"
	"fmt"
	"math"
)

// Tier is the coarse risk classification of a piece of equipment.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

const (
	// MediumThreshold is the usage ratio above which equipment is at least medium risk.
	MediumThreshold = 0.7
	// HighThreshold is the usage ratio above which equipment is high risk.
	HighThreshold = 0.9
	// ProbabilityBump is added to the raw score to estimate failure within five days.
	ProbabilityBump = 10
	// ScoreCeiling caps both percentages.
	ScoreCeiling = 100
)

// ErrInvalidParameter is matched by every error Classify returns.
var ErrInvalidParameter = errors.New("invalid risk parameter")

// InvalidParameterError reports which input was rejected.
type InvalidParameterError struct {
	Field string
	Value float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("%s: %s must be a finite value (got %v)", ErrInvalidParameter, e.Field, e.Value)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

// Assessment holds the derived risk fields of an equipment record.
type Assessment struct {
	Tier                 Tier    `json:"risk_level"`
	UsageRatio           float64 `json:"usage_ratio"`
	Score                int     `json:"risk_score_value"`
	ForecastHours        int64   `json:"failure_forecast_hours"`
	FailureProbability5d int     `json:"failure_probability_5d_value"`
}

// RiskScore formats the score as an integer percentage, e.g. "82%".
func (a Assessment) RiskScore() string { return percent(a.Score) }

// FailureForecast formats the remaining hours, e.g. "1700h restantes".
func (a Assessment) FailureForecast() string {
	return fmt.Sprintf("%dh restantes", a.ForecastHours)
}

// FailureProbability formats the five-day failure probability as a percentage.
func (a Assessment) FailureProbability() string { return percent(a.FailureProbability5d) }

// Classify computes the assessment for the given usage counters. mtbf must be
// positive and both inputs finite; otherwise an *InvalidParameterError is returned
// and the zero Assessment must be ignored.
func Classify(hoursUsed, mtbf float64) (Assessment, error) {
	if math.IsNaN(hoursUsed) || math.IsInf(hoursUsed, 0) {
		return Assessment{}, &InvalidParameterError{Field: "hoursUsed", Value: hoursUsed}
	}
	if math.IsNaN(mtbf) || math.IsInf(mtbf, 0) || mtbf <= 0 {
		return Assessment{}, &InvalidParameterError{Field: "mtbf", Value: mtbf}
	}

	ratio := hoursUsed / mtbf

	return Assessment{
		Tier:                 tierFor(ratio),
		UsageRatio:           ratio,
		Score:                clampScore(ratio * 100),
		ForecastHours:        forecastHours(mtbf, hoursUsed),
		FailureProbability5d: clampScore(ratio*100 + ProbabilityBump),
	}, nil
}

func tierFor(ratio float64) Tier {
	switch {
	case ratio > HighThreshold:
		return TierHigh
	case ratio > MediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// forecastHours rounds the remaining hours and bounds them to
// [0, math.MaxInt64].
func forecastHours(mtbf, hoursUsed float64) int64 {
	v := math.Round(mtbf - hoursUsed)
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(v)
}

// clampScore rounds v and bounds it to [0, ScoreCeiling].
func clampScore(v float64) int {
	v = math.Round(math.Min(v, ScoreCeiling))
	if v < 0 {
		return 0
	}
	return int(v)
}

func percent(v int) string { return fmt.Sprintf("%d%%", v) }

// ParseTier validates a textual tier.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierLow, TierMedium, TierHigh:
		return Tier(s), true
	default:
		return "", false
	}
}

// Rank orders tiers so escalations can be detected.
func (t Tier) Rank() int {
	switch t {
	case TierHigh:
		return 2
	case TierMedium:
		return 1
	default:
		return 0
	}
}
