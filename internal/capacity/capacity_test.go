package capacity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/anchor"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/campaign"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

func pathCfg() config.PathRuleConfig {
	return config.PathRuleConfig{WidthTolMM: 1000, ThicknessTolMM: 1000, AllowedOverrideUrgency: []string{"L2", "L3"}}
}

// S2 scenario from spec.md §8: one machine, limit=1000, five candidates
// each 250t; expect 4 placed (used=1000, overflow=0), 1 skipped unless
// marked FORCE_RELEASE.
func TestFillCapacityOverflowScenarioS2(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	var candidates []Candidate
	for i := 0; i < 5; i++ {
		candidates = append(candidates, Candidate{MaterialID: string(rune('A' + i)), WeightT: 250, SchedState: domain.StateReady})
	}

	res := Fill(Input{
		MachineCode: "H032", PlanDate: day,
		Eligible: candidates,
		Pool:     domain.CapacityPool{LimitCapacityT: 1000},
		Campaign: campaign.NewCampaign("v1", "H032", day, config.CampaignConfig{SuggestThresholdT: 3000, HardLimitT: 3600}),
		PathCfg:  pathCfg(),
	})

	require.Len(t, res.PlacedItems, 4)
	require.Len(t, res.SkippedMaterialIDs, 1)
	require.Equal(t, 1000.0, res.Pool.UsedCapacityT)
	require.Equal(t, 0.0, res.Pool.OverflowT)
}

func TestFillForceReleaseCausesOverflowButIsPlaced(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	candidates := []Candidate{
		{MaterialID: "A", WeightT: 900, SchedState: domain.StateReady},
		{MaterialID: "B", WeightT: 200, SchedState: domain.StateForceRelease},
	}
	res := Fill(Input{
		MachineCode: "H032", PlanDate: day, Eligible: candidates,
		Pool:     domain.CapacityPool{LimitCapacityT: 1000},
		Campaign: campaign.NewCampaign("v1", "H032", day, config.CampaignConfig{SuggestThresholdT: 3000, HardLimitT: 3600}),
		PathCfg:  pathCfg(),
	})
	require.Len(t, res.PlacedItems, 2)
	require.Equal(t, 1100.0, res.Pool.UsedCapacityT)
	require.Equal(t, 100.0, res.Pool.OverflowT)
}

func TestFillNeverDisplacesFrozenItems(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	frozen := []domain.PlanItem{
		{MaterialID: "F1", SeqNo: 1, WeightT: 900, LockedInPlan: true, WidthMM: 100, ThicknessMM: 2},
	}
	candidates := []Candidate{
		{MaterialID: "A", WeightT: 200, SchedState: domain.StateReady},
	}
	res := Fill(Input{
		MachineCode: "H032", PlanDate: day, FrozenToday: frozen, Eligible: candidates,
		Pool:     domain.CapacityPool{LimitCapacityT: 1000},
		Anchor:   anchor.Anchor{},
		Campaign: campaign.NewCampaign("v1", "H032", day, config.CampaignConfig{SuggestThresholdT: 3000, HardLimitT: 3600}),
		PathCfg:  pathCfg(),
	})
	require.Len(t, res.PlacedItems, 1)
	require.Equal(t, "F1", res.PlacedItems[0].MaterialID)
	require.Equal(t, 1, res.PlacedItems[0].SeqNo)
	require.Contains(t, res.SkippedMaterialIDs, "A")
}

func TestFillPathRuleViolationBlocksUnlessUrgent(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	tightCfg := config.PathRuleConfig{WidthTolMM: 5, ThicknessTolMM: 0.1, AllowedOverrideUrgency: []string{"L3"}}
	anch := anchor.Anchor{WidthMM: 100, ThicknessMM: 2}

	notUrgent := Fill(Input{
		MachineCode: "H032", PlanDate: day, Anchor: anch,
		Eligible: []Candidate{{MaterialID: "A", WidthMM: 500, ThicknessMM: 2, WeightT: 100, UrgentLevel: domain.UrgencyL0}},
		Pool:     domain.CapacityPool{LimitCapacityT: 1000},
		Campaign: campaign.NewCampaign("v1", "H032", day, config.CampaignConfig{SuggestThresholdT: 3000, HardLimitT: 3600}),
		PathCfg:  tightCfg,
	})
	require.Empty(t, notUrgent.PlacedItems)

	urgent := Fill(Input{
		MachineCode: "H032", PlanDate: day, Anchor: anch,
		Eligible: []Candidate{{MaterialID: "A", WidthMM: 500, ThicknessMM: 2, WeightT: 100, UrgentLevel: domain.UrgencyL3}},
		Pool:     domain.CapacityPool{LimitCapacityT: 1000},
		Campaign: campaign.NewCampaign("v1", "H032", day, config.CampaignConfig{SuggestThresholdT: 3000, HardLimitT: 3600}),
		PathCfg:  tightCfg,
	})
	require.Len(t, urgent.PlacedItems, 1)
	require.Len(t, urgent.PendingOverrides, 1)
}
