// Package urgency derives a material's urgency level from its due date,
// contract class, and any operator-pinned override (spec.md §4.2).
package urgency

import (
	"time"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// Derive computes the urgency level for a material given its due date and
// the evaluation's base date, honoring a manual override when present.
func Derive(master domain.MaterialMaster, state domain.MaterialState, baseDate time.Time, cfg config.UrgencyConfig) domain.UrgencyLevel {
	if state.UrgentLevelManual {
		return state.UrgentLevel
	}

	delta := daysUntil(master.DueDate, baseDate)
	switch {
	case delta <= cfg.N1Days:
		return domain.UrgencyL3
	case delta <= cfg.N2Days:
		return domain.UrgencyL2
	case master.RushFlag:
		return domain.UrgencyL1
	default:
		return domain.UrgencyL0
	}
}

func daysUntil(dueDate, baseDate time.Time) int {
	return int(dueDate.Sub(baseDate).Hours() / 24)
}

// WriteBack reports whether a derived urgency should be persisted to
// MaterialState: only simulations of the base_date itself may write back,
// so future-day projections never pollute current state (spec.md §4.2).
func WriteBack(baseDate, evalDate time.Time) bool {
	return baseDate.Equal(evalDate)
}
