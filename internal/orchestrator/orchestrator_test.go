package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/anchor"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/priority"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunSliceComposesEngines(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	materials := []domain.MaterialMaster{
		{MaterialID: "M1", WeightT: 100, WidthMM: 1000, ThicknessMM: 5, DueDate: base.AddDate(0, 0, 1), OutputAgeDaysRaw: 10},
		{MaterialID: "M2", WeightT: 100, WidthMM: 1000, ThicknessMM: 5, DueDate: base.AddDate(0, 0, 30), OutputAgeDaysRaw: 10},
	}
	states := map[string]domain.MaterialState{
		"M1": {SchedState: domain.StateReady},
		"M2": {SchedState: domain.StateReady},
	}

	out := RunSlice(Input{
		MachineCode: "H032", BaseDate: base, PlanDate: base,
		Materials: materials, States: states,
		Pool:       domain.CapacityPool{LimitCapacityT: 1000},
		Strategy:   priority.Strategy{Preset: priority.PresetBalanced},
		SeasonCfg:  config.SeasonConfig{WinterMonths: []int{11, 12, 1, 2, 3}, MinTempDays: 3, MinTempDaysSummer: 1},
		UrgencyCfg: config.UrgencyConfig{N1Days: 2, N2Days: 5},
		PathCfg:    config.PathRuleConfig{WidthTolMM: 10000, ThicknessTolMM: 10000},
	})

	require.Len(t, out.PlanItems, 2)
	require.Empty(t, out.BlockedList)
	// M1 is due sooner, so it must be placed first under balanced ordering.
	require.Equal(t, "M1", out.PlanItems[0].MaterialID)
}

func TestRunSliceBlocksImmatureMaterial(t *testing.T) {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC) // winter, needs 3 temp-days
	materials := []domain.MaterialMaster{
		{MaterialID: "M1", WeightT: 100, OutputAgeDaysRaw: 0},
	}
	states := map[string]domain.MaterialState{"M1": {SchedState: domain.StateReady}}

	out := RunSlice(Input{
		MachineCode: "H032", BaseDate: base, PlanDate: base,
		Materials: materials, States: states,
		Pool:       domain.CapacityPool{LimitCapacityT: 1000},
		Strategy:   priority.Strategy{Preset: priority.PresetBalanced},
		SeasonCfg:  config.SeasonConfig{WinterMonths: []int{11, 12, 1, 2, 3}, MinTempDays: 3, MinTempDaysSummer: 1},
		UrgencyCfg: config.UrgencyConfig{N1Days: 2, N2Days: 5},
		PathCfg:    config.PathRuleConfig{},
	})

	require.Empty(t, out.PlanItems)
	require.Len(t, out.BlockedList, 1)
}

// TestRunSliceAdvancesCampaignOnEmptyDay covers the empty-day fallback
// (spec.md §4.5): the persisted campaign anchor is so far from every
// eligible candidate's geometry that nothing clears the path rule, but a
// fresh anchor seeded from the candidate pool would place enough tonnage
// to clear min_schedulable_t, so the slice must advance the campaign and
// re-fill rather than leave the day empty.
func TestRunSliceAdvancesCampaignOnEmptyDay(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	materials := []domain.MaterialMaster{
		{MaterialID: "M1", WeightT: 100, WidthMM: 2000, ThicknessMM: 50, DueDate: base.AddDate(0, 0, 5), OutputAgeDaysRaw: 10},
	}
	states := map[string]domain.MaterialState{"M1": {SchedState: domain.StateReady}}

	stalePersisted := domain.RollerCampaign{
		VersionID: "v1", MachineCode: "H032", CampaignNo: 1, StartDate: base.AddDate(0, 0, -10),
		PathAnchorMaterialID: "OLD", PathAnchorWidthMM: 100, PathAnchorThicknessMM: 2, AnchorSource: domain.AnchorFrozenLast,
	}
	campaignCfg := config.CampaignConfig{SuggestThresholdT: 1_000_000, HardLimitT: 2_000_000, MinSchedulableT: 50}
	pathCfg := config.PathRuleConfig{WidthTolMM: 10, ThicknessTolMM: 1, SmallSampleFallbackN: 5}

	out := RunSlice(Input{
		MachineCode: "H032", BaseDate: base, PlanDate: base,
		Materials: materials, States: states,
		Pool:     domain.CapacityPool{LimitCapacityT: 1000},
		Campaign: stalePersisted,
		AnchorInput: anchor.Input{
			PersistedCampaign: &stalePersisted,
			CandidatePool:     materials,
		},
		Strategy:    priority.Strategy{Preset: priority.PresetBalanced},
		SeasonCfg:   config.SeasonConfig{WinterMonths: []int{11, 12, 1, 2, 3}, MinTempDays: 3, MinTempDaysSummer: 1},
		UrgencyCfg:  config.UrgencyConfig{N1Days: 2, N2Days: 5},
		PathCfg:     pathCfg,
		CampaignCfg: campaignCfg,
	})

	require.Len(t, out.PlanItems, 1)
	require.Equal(t, "M1", out.PlanItems[0].MaterialID)
	require.Empty(t, out.BlockedList)

	require.NotNil(t, out.ClosedCampaign)
	require.NotNil(t, out.ClosedCampaign.EndDate)
	require.Equal(t, stalePersisted.CampaignNo, out.ClosedCampaign.CampaignNo)

	require.Equal(t, stalePersisted.CampaignNo+1, out.UpdatedCampaign.CampaignNo)
	require.Equal(t, domain.AnchorSeedS2, out.RollCycleAnchor.Source)
	require.Equal(t, "M1", out.RollCycleAnchor.MaterialID)
}

// TestRunSliceDoesNotAdvanceWhenAnchorAlreadySchedulesEnough ensures the
// fallback only fires when today's direct fill genuinely falls short;
// a day that already clears min_schedulable_t under its current anchor
// must not churn the campaign.
func TestRunSliceDoesNotAdvanceWhenAnchorAlreadySchedulesEnough(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	materials := []domain.MaterialMaster{
		{MaterialID: "M1", WeightT: 100, WidthMM: 1000, ThicknessMM: 5, DueDate: base.AddDate(0, 0, 5), OutputAgeDaysRaw: 10},
	}
	states := map[string]domain.MaterialState{"M1": {SchedState: domain.StateReady}}

	persisted := domain.RollerCampaign{
		VersionID: "v1", MachineCode: "H032", CampaignNo: 1, StartDate: base.AddDate(0, 0, -10),
		PathAnchorMaterialID: "M0", PathAnchorWidthMM: 1000, PathAnchorThicknessMM: 5, AnchorSource: domain.AnchorFrozenLast,
	}
	campaignCfg := config.CampaignConfig{SuggestThresholdT: 1_000_000, HardLimitT: 2_000_000, MinSchedulableT: 50}
	pathCfg := config.PathRuleConfig{WidthTolMM: 10, ThicknessTolMM: 1, SmallSampleFallbackN: 5}

	out := RunSlice(Input{
		MachineCode: "H032", BaseDate: base, PlanDate: base,
		Materials: materials, States: states,
		Pool:     domain.CapacityPool{LimitCapacityT: 1000},
		Campaign: persisted,
		AnchorInput: anchor.Input{
			PersistedCampaign: &persisted,
			CandidatePool:     materials,
		},
		Strategy:    priority.Strategy{Preset: priority.PresetBalanced},
		SeasonCfg:   config.SeasonConfig{WinterMonths: []int{11, 12, 1, 2, 3}, MinTempDays: 3, MinTempDaysSummer: 1},
		UrgencyCfg:  config.UrgencyConfig{N1Days: 2, N2Days: 5},
		PathCfg:     pathCfg,
		CampaignCfg: campaignCfg,
	})

	require.Len(t, out.PlanItems, 1)
	require.Nil(t, out.ClosedCampaign)
	require.Equal(t, persisted.CampaignNo, out.UpdatedCampaign.CampaignNo)
}
