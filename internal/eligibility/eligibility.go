// Package eligibility decides, for one (material, date) pair, whether a
// candidate is schedulable on that date, and why not when it isn't
// (spec.md §4.1).
package eligibility

import (
	"time"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// Reason codes surfaced on a Blocked decision.
const (
	ReasonNotYetMature = "NOT_YET_MATURE"
	ReasonImmatureTemp = "IMMATURE_TEMPERATURE"
	ReasonSchedState   = "SCHED_STATE_BLOCKED"
	ReasonEligible     = "ELIGIBLE"
)

// Decision is the outcome of evaluating one candidate on one date.
type Decision struct {
	Eligible   bool
	ReasonCode string
}

// Evaluate decides eligibility for a candidate on date d, k days into the
// recalc window from baseDate, per spec.md §4.1.
func Evaluate(master domain.MaterialMaster, state domain.MaterialState, baseDate, d time.Time, season config.SeasonConfig) Decision {
	k := DaysOffset(baseDate, d)

	switch state.SchedState {
	case domain.StateReady, domain.StateLocked, domain.StateForceRelease:
		// provisionally eligible, subject to the temperature-maturity gate below
	case domain.StatePendingMature:
		if state.ReadyInDays > k {
			return Decision{Eligible: false, ReasonCode: ReasonNotYetMature}
		}
	default:
		// BLOCKED, SCHEDULED, and any other state are never eligible.
		return Decision{Eligible: false, ReasonCode: ReasonSchedState}
	}

	if !isTemperatureMature(master, k, d, season) {
		return Decision{Eligible: false, ReasonCode: ReasonImmatureTemp}
	}
	return Decision{Eligible: true, ReasonCode: ReasonEligible}
}

// DaysOffset returns the whole-day offset of d from baseDate.
func DaysOffset(baseDate, d time.Time) int {
	return int(d.Sub(baseDate).Hours() / 24)
}

// isTemperatureMature applies the season-dependent min-temp-days threshold
// to the dynamically-aged output_age_days_raw + k, so a material that is
// immature today can still mature on a later day within the same recalc
// window (spec.md §4.1.2: "not mature today -> never mature" bug guard).
func isTemperatureMature(master domain.MaterialMaster, k int, d time.Time, season config.SeasonConfig) bool {
	age := master.OutputAgeDaysRaw + k
	return age >= requiredTempDays(d, season)
}

func requiredTempDays(d time.Time, season config.SeasonConfig) int {
	if isWinterMonth(d.Month(), season.WinterMonths) {
		return season.MinTempDays
	}
	return season.MinTempDaysSummer
}

func isWinterMonth(m time.Month, winterMonths []int) bool {
	for _, wm := range winterMonths {
		if time.Month(wm) == m {
			return true
		}
	}
	return false
}
