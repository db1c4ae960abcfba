// Package pathrule gates a candidate's geometry against the current path
// anchor, classifying violations and letting sufficiently urgent materials
// through as pending overrides (spec.md §4.4).
package pathrule

import (
	"math"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/anchor"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// Result is the outcome of gating one candidate against the current anchor.
type Result struct {
	Pass          bool
	Pending       bool // violation, but allowed through pending human confirmation
	ViolationType domain.ViolationType
	WidthDeltaMM  float64
	ThicknessDeltaMM float64
}

// Evaluate gates (widthMM, thicknessMM) against a, downgrading a violation
// to a pending override when urgentLevel is in cfg's allowed set.
func Evaluate(widthMM, thicknessMM float64, a anchor.Anchor, urgentLevel domain.UrgencyLevel, cfg config.PathRuleConfig) Result {
	widthDelta := math.Abs(widthMM - a.WidthMM)
	thicknessDelta := math.Abs(thicknessMM - a.ThicknessMM)

	widthOK := widthDelta <= cfg.WidthTolMM
	thicknessOK := thicknessDelta <= cfg.ThicknessTolMM
	if widthOK && thicknessOK {
		return Result{Pass: true, WidthDeltaMM: widthDelta, ThicknessDeltaMM: thicknessDelta}
	}

	vt := domain.ViolationPathWidth
	if widthOK && !thicknessOK {
		vt = domain.ViolationPathThickness
	}

	pending := isAllowedOverride(urgentLevel, cfg.AllowedOverrideUrgency)
	return Result{
		Pass:             pending,
		Pending:          pending,
		ViolationType:    vt,
		WidthDeltaMM:     widthDelta,
		ThicknessDeltaMM: thicknessDelta,
	}
}

func isAllowedOverride(level domain.UrgencyLevel, allowed []string) bool {
	for _, a := range allowed {
		if domain.UrgencyLevel(a) == level {
			return true
		}
	}
	return false
}
