package recalc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/events"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/priority"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *config.Config) {
	t.Helper()
	s := newTestStore(t)
	cfg := config.DefaultConfig()
	cfg.Machines.Codes = []string{"H032"}
	return New(s, cfg, events.NoopPublisher{}), s, cfg
}

func seedMaterial(t *testing.T, s *store.Store, id string, weight float64, due time.Time, state domain.SchedState) {
	t.Helper()
	require.NoError(t, s.UpsertMaterialMaster(domain.MaterialMaster{
		MaterialID: id, WidthMM: 1200, ThicknessMM: 6, WeightT: weight,
		SteelMark: "Q235", DueDate: due, NextMachineCode: "H032", OutputAgeDaysRaw: 10, StockAgeDays: 10,
	}))
	require.NoError(t, s.UpsertMaterialState(domain.MaterialState{
		MaterialID: id, SchedState: state, UrgentLevel: domain.UrgencyL0,
	}))
}

func TestRunProductionPersistsPlanItemsAndActivates(t *testing.T) {
	e, s, _ := newTestEngine(t)
	plan := domain.Plan{PlanID: uuid.NewString(), Name: "baseline", PlanType: domain.PlanTypeBaseline, CreatedBy: "tester", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePlan(plan))

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedMaterial(t, s, "M1", 100, base.AddDate(0, 0, 2), domain.StateReady)
	seedMaterial(t, s, "M2", 100, base.AddDate(0, 0, 30), domain.StateReady)

	resp, err := e.Run(context.Background(), Request{
		PlanID: plan.PlanID, BaseDate: base, WindowDaysOverride: 3,
		StrategyKey: "balanced", Operator: "tester", Mode: ModeProduction, AutoActivate: true,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, 2, resp.PlanItemsCount)
	require.Empty(t, resp.Warning)

	active, err := s.ActiveVersion(plan.PlanID)
	require.NoError(t, err)
	require.Equal(t, resp.VersionID, active.VersionID)

	pools, err := s.ListCapacityPoolForVersion(resp.VersionID)
	require.NoError(t, err)
	require.NotEmpty(t, pools)

	logs, err := s.ActionLogForVersion(resp.VersionID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
}

func TestRunDryRunDoesNotPersist(t *testing.T) {
	e, s, _ := newTestEngine(t)
	plan := domain.Plan{PlanID: uuid.NewString(), Name: "baseline", PlanType: domain.PlanTypeBaseline, CreatedBy: "tester", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePlan(plan))

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedMaterial(t, s, "M1", 100, base.AddDate(0, 0, 2), domain.StateReady)

	resp, err := e.Run(context.Background(), Request{
		PlanID: plan.PlanID, BaseDate: base, WindowDaysOverride: 3,
		StrategyKey: "balanced", Operator: "tester", Mode: ModeDryRun,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, 1, resp.PlanItemsCount)

	_, err = s.ActiveVersion(plan.PlanID)
	require.Error(t, err, "dry run must not activate or persist a version")

	items, err := s.ListPlanItemsForVersion(resp.VersionID)
	require.NoError(t, err)
	require.Empty(t, items, "dry run must not write plan_items")
}

func TestRunCopiesFrozenItemsFromBaseVersion(t *testing.T) {
	e, s, cfg := newTestEngine(t)
	cfg.Recalc.FrozenDaysBeforeToday = 3
	plan := domain.Plan{PlanID: uuid.NewString(), Name: "baseline", PlanType: domain.PlanTypeBaseline, CreatedBy: "tester", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePlan(plan))

	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	v1, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: plan.PlanID, Status: domain.VersionActive,
		FrozenFromDate: base, RecalcWindowDays: 14, CreatedBy: "tester", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, s.ActivateVersion(v1.VersionID))

	frozenItem := domain.PlanItem{
		VersionID: v1.VersionID, MaterialID: "FROZEN1", MachineCode: "H032",
		PlanDate: base.AddDate(0, 0, -5), SeqNo: 1, WeightT: 80,
		SourceType: domain.SourceCalc, LockedInPlan: true,
	}
	require.NoError(t, s.UpsertPlanItems([]domain.PlanItem{frozenItem}))

	seedMaterial(t, s, "M1", 100, base.AddDate(0, 0, 2), domain.StateReady)

	resp, err := e.Run(context.Background(), Request{
		PlanID: plan.PlanID, BaseDate: base, WindowDaysOverride: 3,
		StrategyKey: "balanced", Operator: "tester", Mode: ModeProduction,
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.FrozenItemsCount)

	copied, err := s.ListPlanItemsForVersionInRange(resp.VersionID, time.Time{}, base)
	require.NoError(t, err)
	require.Len(t, copied, 1)
	require.Equal(t, domain.SourceFrozen, copied[0].SourceType)
}

func TestResolveStrategyFallsBackOnInvalidKey(t *testing.T) {
	e, _, _ := newTestEngine(t)
	strat, _, _, warning := e.resolveStrategy("not_a_real_strategy")
	require.Equal(t, priority.PresetBalanced, strat.Preset)
	require.NotEmpty(t, warning)
}

func TestResolveStrategyFallsBackOnUnknownCustomID(t *testing.T) {
	e, _, _ := newTestEngine(t)
	strat, _, _, warning := e.resolveStrategy("custom:does-not-exist")
	require.Equal(t, priority.PresetBalanced, strat.Preset)
	require.NotEmpty(t, warning)
}

func TestRollbackSkipsConfigRestoreForNoteSnapshot(t *testing.T) {
	e, s, _ := newTestEngine(t)
	plan := domain.Plan{PlanID: uuid.NewString(), Name: "baseline", PlanType: domain.PlanTypeBaseline, CreatedBy: "tester", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePlan(plan))

	target, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: plan.PlanID, Status: domain.VersionDraft,
		FrozenFromDate: time.Now().UTC(), RecalcWindowDays: 14,
		ConfigSnapshot: map[string]string{"__meta_run_id": "r1", "note": "manual patch applied by shift lead"},
		CreatedBy: "tester", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	resp, err := e.Rollback(context.Background(), RollbackRequest{
		PlanID: plan.PlanID, TargetVersionID: target.VersionID, Operator: "tester", Reason: "bad recalc",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ConfigRestoreSkipped)

	active, err := s.ActiveVersion(plan.PlanID)
	require.NoError(t, err)
	require.Equal(t, target.VersionID, active.VersionID)
}

func TestRollbackRestoresRealConfigSnapshot(t *testing.T) {
	e, s, _ := newTestEngine(t)
	plan := domain.Plan{PlanID: uuid.NewString(), Name: "baseline", PlanType: domain.PlanTypeBaseline, CreatedBy: "tester", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePlan(plan))

	target, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: plan.PlanID, Status: domain.VersionDraft,
		FrozenFromDate: time.Now().UTC(), RecalcWindowDays: 14,
		ConfigSnapshot: map[string]string{"strategy_key": "urgent_first", "w_u": "0.5"},
		CreatedBy: "tester", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	resp, err := e.Rollback(context.Background(), RollbackRequest{
		PlanID: plan.PlanID, TargetVersionID: target.VersionID, Operator: "tester", Reason: "bad recalc",
	})
	require.NoError(t, err)
	require.Empty(t, resp.ConfigRestoreSkipped)
}

func TestRollbackRequiresReason(t *testing.T) {
	e, s, _ := newTestEngine(t)
	plan := domain.Plan{PlanID: uuid.NewString(), Name: "baseline", PlanType: domain.PlanTypeBaseline, CreatedBy: "tester", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePlan(plan))
	_, err := e.Rollback(context.Background(), RollbackRequest{PlanID: plan.PlanID, TargetVersionID: "v1", Operator: "tester"})
	require.Error(t, err)
}

func seedVersion(t *testing.T, s *store.Store, planID string, base time.Time) string {
	t.Helper()
	require.NoError(t, s.CreatePlan(domain.Plan{PlanID: planID, Name: "p", PlanType: domain.PlanTypeBaseline, CreatedBy: "tester", CreatedAt: time.Now().UTC()}))
	v, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: planID, Status: domain.VersionDraft,
		FrozenFromDate: base, RecalcWindowDays: 14, CreatedBy: "tester", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return v.VersionID
}

func TestMoveItemsStrictRejectsFrozenItems(t *testing.T) {
	e, s, _ := newTestEngine(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	versionID := seedVersion(t, s, uuid.NewString(), base)
	require.NoError(t, s.UpsertPlanItems([]domain.PlanItem{
		{VersionID: versionID, MaterialID: "FROZEN1", MachineCode: "H032", PlanDate: base, SeqNo: 1, WeightT: 50, LockedInPlan: true, SourceType: domain.SourceFrozen},
		{VersionID: versionID, MaterialID: "M1", MachineCode: "H032", PlanDate: base, SeqNo: 2, WeightT: 50, SourceType: domain.SourceCalc},
	}))

	results, err := e.MoveItems(context.Background(), versionID, []MoveRequest{
		{MaterialID: "FROZEN1", MachineCode: "H033", PlanDate: base.AddDate(0, 0, 1)},
		{MaterialID: "M1", MachineCode: "H033", PlanDate: base.AddDate(0, 0, 1)},
	}, domain.MoveStrict, "tester", "rebalance")
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]MoveResult{}
	for _, r := range results {
		byID[r.MaterialID] = r
	}
	require.False(t, byID["FROZEN1"].Success)
	require.Equal(t, domain.ViolationFrozenZone, byID["FROZEN1"].ViolationType)
	require.True(t, byID["M1"].Success)

	items, err := s.ListPlanItemsForVersion(versionID)
	require.NoError(t, err)
	for _, it := range items {
		if it.MaterialID == "FROZEN1" {
			require.Equal(t, "H032", it.MachineCode, "frozen item must not move in STRICT mode")
		}
		if it.MaterialID == "M1" {
			require.Equal(t, "H033", it.MachineCode)
		}
	}
}

func TestMoveItemsAutoFixSkipsFrozenWithoutError(t *testing.T) {
	e, s, _ := newTestEngine(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	versionID := seedVersion(t, s, uuid.NewString(), base)
	require.NoError(t, s.UpsertPlanItems([]domain.PlanItem{
		{VersionID: versionID, MaterialID: "FROZEN1", MachineCode: "H032", PlanDate: base, SeqNo: 1, WeightT: 50, LockedInPlan: true, SourceType: domain.SourceFrozen},
	}))

	results, err := e.MoveItems(context.Background(), versionID, []MoveRequest{
		{MaterialID: "FROZEN1", MachineCode: "H033", PlanDate: base.AddDate(0, 0, 1)},
	}, domain.MoveAutoFix, "tester", "rebalance")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.Equal(t, domain.ViolationFrozenZoneSkipped, results[0].ViolationType)
}

func TestCompareVersionsCountsMovedAddedRemoved(t *testing.T) {
	e, s, _ := newTestEngine(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	planID := uuid.NewString()
	vA := seedVersion(t, s, planID, base)
	vB := seedVersion(t, s, planID, base)

	require.NoError(t, s.UpsertPlanItems([]domain.PlanItem{
		{VersionID: vA, MaterialID: "M1", MachineCode: "H032", PlanDate: base, SeqNo: 1, WeightT: 50},
		{VersionID: vA, MaterialID: "M2", MachineCode: "H032", PlanDate: base, SeqNo: 2, WeightT: 50},
	}))
	require.NoError(t, s.UpsertPlanItems([]domain.PlanItem{
		{VersionID: vB, MaterialID: "M1", MachineCode: "H033", PlanDate: base, SeqNo: 1, WeightT: 50}, // moved
		{VersionID: vB, MaterialID: "M3", MachineCode: "H032", PlanDate: base, SeqNo: 2, WeightT: 50}, // added; M2 removed
	}))

	res, err := e.CompareVersions(vA, vB)
	require.NoError(t, err)
	require.Equal(t, 1, res.MovedCount)
	require.Equal(t, 1, res.AddedCount)
	require.Equal(t, 1, res.RemovedCount)
}

func TestRunPartialPreservesFrozenItemsInsideRange(t *testing.T) {
	e, s, _ := newTestEngine(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	versionID := seedVersion(t, s, uuid.NewString(), base)

	require.NoError(t, s.UpsertPlanItems([]domain.PlanItem{
		{VersionID: versionID, MaterialID: "FROZEN1", MachineCode: "H032", PlanDate: base, SeqNo: 1, WeightT: 80, LockedInPlan: true, SourceType: domain.SourceFrozen},
	}))
	seedMaterial(t, s, "M1", 100, base.AddDate(0, 0, 1), domain.StateReady)

	resp, err := e.RunPartial(context.Background(), PartialRequest{
		VersionID: versionID, From: base, To: base.AddDate(0, 0, 2),
		StrategyKey: "balanced", Operator: "tester",
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.FrozenItemsCount)

	items, err := s.ListPlanItemsForVersion(versionID)
	require.NoError(t, err)
	found := false
	for _, it := range items {
		if it.MaterialID == "FROZEN1" {
			found = true
			require.True(t, it.LockedInPlan)
		}
	}
	require.True(t, found, "frozen item must survive the partial recalc's delete+reinsert")
}

// TestRunPlacesPendingMatureMaterialOnceItMaturesWithinWindow covers
// scenario S6: a material that is not yet mature at the window's base
// date becomes eligible partway through the same recalc run, without
// needing a second recalc call.
func TestRunPlacesPendingMatureMaterialOnceItMaturesWithinWindow(t *testing.T) {
	e, s, _ := newTestEngine(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	plan := domain.Plan{PlanID: uuid.NewString(), Name: "p", PlanType: domain.PlanTypeBaseline, CreatedBy: "tester", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePlan(plan))

	require.NoError(t, s.UpsertMaterialMaster(domain.MaterialMaster{
		MaterialID: "M1", WidthMM: 1200, ThicknessMM: 6, WeightT: 100,
		SteelMark: "Q235", DueDate: base.AddDate(0, 0, 10), NextMachineCode: "H032",
		OutputAgeDaysRaw: 10, StockAgeDays: 10,
	}))
	require.NoError(t, s.UpsertMaterialState(domain.MaterialState{
		MaterialID: "M1", SchedState: domain.StatePendingMature, UrgentLevel: domain.UrgencyL0, ReadyInDays: 2,
	}))

	resp, err := e.Run(context.Background(), Request{
		PlanID: plan.PlanID, BaseDate: base, WindowDaysOverride: 5,
		StrategyKey: "balanced", Operator: "tester", Mode: ModeProduction,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	var placedOn *time.Time
	for _, it := range resp.PlanItems {
		if it.MaterialID == "M1" {
			d := it.PlanDate
			placedOn = &d
		}
	}
	require.NotNil(t, placedOn, "material must be placed once it matures inside the window")
	require.True(t, placedOn.Equal(base.AddDate(0, 0, 2)), "material must be placed on its ready day, not base_date or later")
}
