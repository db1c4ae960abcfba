package pathrule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/anchor"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

func cfg() config.PathRuleConfig {
	return config.PathRuleConfig{WidthTolMM: 25, ThicknessTolMM: 0.8, AllowedOverrideUrgency: []string{"L2", "L3"}}
}

func TestEvaluatePassesWithinTolerance(t *testing.T) {
	a := anchor.Anchor{WidthMM: 1000, ThicknessMM: 5}
	r := Evaluate(1010, 5.5, a, domain.UrgencyL0, cfg())
	require.True(t, r.Pass)
	require.False(t, r.Pending)
}

func TestEvaluateHardRejectWhenNotUrgentEnough(t *testing.T) {
	a := anchor.Anchor{WidthMM: 1000, ThicknessMM: 5}
	r := Evaluate(1100, 5, a, domain.UrgencyL0, cfg())
	require.False(t, r.Pass)
	require.False(t, r.Pending)
	require.Equal(t, domain.ViolationPathWidth, r.ViolationType)
}

func TestEvaluatePendingOverrideWhenUrgentEnough(t *testing.T) {
	a := anchor.Anchor{WidthMM: 1000, ThicknessMM: 5}
	r := Evaluate(1100, 5, a, domain.UrgencyL3, cfg())
	require.True(t, r.Pass)
	require.True(t, r.Pending)
	require.Equal(t, domain.ViolationPathWidth, r.ViolationType)
}

func TestEvaluateThicknessViolation(t *testing.T) {
	a := anchor.Anchor{WidthMM: 1000, ThicknessMM: 5}
	r := Evaluate(1000, 6.5, a, domain.UrgencyL0, cfg())
	require.False(t, r.Pass)
	require.Equal(t, domain.ViolationPathThickness, r.ViolationType)
}
