// Package recalc is the Recalculation Engine: it owns the version
// lifecycle (create, activate, rollback, delete), the day×machine fill
// loop that drives the Orchestrator across a scheduling window, and the
// comparison/move operations layered on top of a persisted version
// (spec.md §4.8).
package recalc

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/anchor"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/audit"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/campaign"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/events"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/logging"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/orchestrator"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/priority"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/risk"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/scripting"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/store"
)

// Mode selects between a persisted run and a pure preview run.
type Mode string

const (
	ModeProduction Mode = "PRODUCTION"
	ModeDryRun     Mode = "DRY_RUN"
)

// Request is one recalc_full/simulate_recalc call.
type Request struct {
	PlanID             string
	BaseDate           time.Time
	WindowDaysOverride int // 0 means "use config default"; clamped to [1,60]
	StrategyKey        string
	Operator           string
	Mode               Mode
	AutoActivate       bool
}

// Response mirrors the RecalcResponse contract (spec.md §6), plus the
// full computed bundle a dry-run caller (the Strategy-Draft Manager)
// needs to build its diff without re-querying storage.
type Response struct {
	RunID            string
	VersionID        string
	PlanRev          int
	PlanItemsCount   int
	FrozenItemsCount int
	Success          bool
	Message          string
	Warning          string

	PlanItems        []domain.PlanItem
	CapacityPools    []domain.CapacityPool
	Campaigns        []domain.RollerCampaign
	RiskSnapshots    []domain.RiskSnapshot
	PendingOverrides []domain.PathOverridePending
}

// Engine composes the sub-engines into the full recalc procedure.
type Engine struct {
	store     *store.Store
	cfg       *config.Config
	audit     *audit.Writer
	publisher events.Publisher
}

// New builds a recalc Engine over the given store and configuration. A
// nil publisher is valid — events publish best-effort against a no-op.
func New(s *store.Store, cfg *config.Config, pub events.Publisher) *Engine {
	return &Engine{store: s, cfg: cfg, audit: audit.NewWriter(s), publisher: pub}
}

func clampWindow(requested, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	if requested < 1 {
		return 1
	}
	if requested > 60 {
		return 60
	}
	return requested
}

// resolveStrategy parses the strategy key and resolves a custom
// strategy's weights/scorer from configuration, falling back to balanced
// (never failing) on any invalid or unknown reference (spec.md §4.8.1).
func (e *Engine) resolveStrategy(key string) (priority.Strategy, priority.Weights, *scripting.Scorer, string) {
	strat, fellBack := priority.ParseKey(key)
	var warning string
	if fellBack {
		warning = fmt.Sprintf("strategy key %q is invalid, falling back to balanced", key)
	}
	if !strat.IsCustom() {
		return strat, priority.Weights{}, nil, warning
	}

	sw, ok := e.cfg.Strategy.Custom[strat.CustomID]
	if !ok {
		return priority.Strategy{Preset: priority.PresetBalanced}, priority.Weights{}, nil,
			fmt.Sprintf("custom strategy %q not configured, falling back to balanced", strat.CustomID)
	}

	weights := priority.Weights{WU: sw.WU, WC: sw.WC, WS: sw.WS, WD: sw.WD, WR: sw.WR, ColdAgeThresholdDays: sw.ColdAgeThreshold}
	strat = strat.WithBasePreset(priority.Preset(sw.BasePreset))

	var scorer *scripting.Scorer
	if sw.ScoreScript != "" {
		s, err := scripting.Compile(sw.ScoreScript)
		if err != nil {
			logging.Get(logging.CategoryRecalc).Warn("custom strategy %s score script failed to compile, using linear formula: %v", strat.CustomID, err)
			if warning == "" {
				warning = fmt.Sprintf("custom strategy %q score script invalid, using its linear weights instead", strat.CustomID)
			}
		} else {
			scorer = s
		}
	}
	return strat, weights, scorer, warning
}

// candidatePool loads every material currently in a schedulable sched_state,
// the working set every recalc run draws its placements from.
func (e *Engine) candidatePool() ([]domain.MaterialMaster, map[string]domain.MaterialState, error) {
	states, err := e.store.ListMaterialStateBySchedStates([]domain.SchedState{
		domain.StateReady, domain.StatePendingMature, domain.StateLocked, domain.StateForceRelease,
	})
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(states))
	byID := make(map[string]domain.MaterialState, len(states))
	for i, st := range states {
		ids[i] = st.MaterialID
		byID[st.MaterialID] = st
	}
	masters, err := e.store.ListMaterialMasterByIDs(ids)
	if err != nil {
		return nil, nil, err
	}
	return masters, byID, nil
}

func defaultPool(versionID, machineCode string, planDate time.Time, mc config.MachinesConfig) domain.CapacityPool {
	return domain.CapacityPool{
		VersionID: versionID, MachineCode: machineCode, PlanDate: planDate,
		TargetCapacityT: mc.DefaultTargetCapacityT, LimitCapacityT: mc.DefaultLimitCapacityT,
	}
}

// windowState is the mutable working set threaded across the sequential
// day×machine loop: candidates shrink as they're placed, campaigns and
// pools accumulate, and only base_date's derived urgency gets written
// back to MaterialState (spec.md §4.7, §5).
type windowState struct {
	materials         []domain.MaterialMaster
	states            map[string]domain.MaterialState
	campaigns         map[string]*domain.RollerCampaign
	pools             map[string]map[time.Time]domain.CapacityPool
	lastFrozen        map[string]*domain.PlanItem
	lastLocked        map[string]*domain.PlanItem
	lastUserConfirmed map[string]*domain.PlanItem
	frozenByDate      map[string]map[time.Time][]domain.PlanItem

	placedItems      []domain.PlanItem
	pendingOverrides []domain.PathOverridePending
	blocked          []orchestrator.BlockedEntry
	baseDateStates   map[string]domain.MaterialState
	allMaterialsByID map[string]domain.MaterialMaster
	closedCampaigns  []domain.RollerCampaign
}

func (w *windowState) poolFor(machine string, date time.Time, mc config.MachinesConfig, versionID string) domain.CapacityPool {
	if byDate, ok := w.pools[machine]; ok {
		if p, ok := byDate[date]; ok {
			return p
		}
	}
	return defaultPool(versionID, machine, date, mc)
}

func (w *windowState) setPool(machine string, date time.Time, p domain.CapacityPool) {
	if w.pools[machine] == nil {
		w.pools[machine] = make(map[time.Time]domain.CapacityPool)
	}
	w.pools[machine][date] = p
}

// runWindow drives the sequential day×machine loop over [from, to) for
// versionID, invoking the Orchestrator once per slice. It mutates w in
// place and is shared by the full-window Run and the partial/cascade
// RunPartial.
func (e *Engine) runWindow(versionID string, baseDate, from, to time.Time, machines []string, strat priority.Strategy, weights priority.Weights, scorer *scripting.Scorer, w *windowState) {
	log := logging.Get(logging.CategoryRecalc)

	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		for _, machine := range machines {
			pool := w.poolFor(machine, d, e.cfg.Machines, versionID)
			camp := w.campaigns[machine]
			if camp == nil {
				nc := campaign.NewCampaign(versionID, machine, d, e.cfg.Campaign)
				camp = &nc
				w.campaigns[machine] = camp
			}

			var frozenToday []domain.PlanItem
			if byDate, ok := w.frozenByDate[machine]; ok {
				frozenToday = byDate[d]
			}

			persistedCampaign := *camp
			out := orchestrator.RunSlice(orchestrator.Input{
				VersionID: versionID, MachineCode: machine, BaseDate: baseDate, PlanDate: d,
				Materials: w.materials, States: w.states,
				FrozenToday: frozenToday, Pool: pool, Campaign: *camp,
				AnchorInput: anchor.Input{
					TodayFrozenItems:      frozenToday,
					PersistedCampaign:     &persistedCampaign,
					LastFrozenItem:        w.lastFrozen[machine],
					LastLockedItem:        w.lastLocked[machine],
					LastUserConfirmedItem: w.lastUserConfirmed[machine],
					CandidatePool:         w.materials,
				},
				Strategy: strat, Weights: weights, CustomScorer: scorer,
				SeasonCfg: e.cfg.Season, UrgencyCfg: e.cfg.Urgency, PathCfg: e.cfg.PathRule, CampaignCfg: e.cfg.Campaign,
			})

			placedIDs := make(map[string]bool, len(out.PlanItems))
			for _, it := range out.PlanItems {
				placedIDs[it.MaterialID] = true
				if it.SeqNo > 0 {
					ic := it
					w.lastFrozen[machine] = &ic
				}
			}
			w.placedItems = append(w.placedItems, out.PlanItems...)
			w.pendingOverrides = append(w.pendingOverrides, out.PathOverridePending...)
			w.blocked = append(w.blocked, out.BlockedList...)
			w.setPool(machine, d, out.UpdatedPool)
			if out.ClosedCampaign != nil {
				w.closedCampaigns = append(w.closedCampaigns, *out.ClosedCampaign)
			}

			// Persist the resolved anchor and its source onto the campaign
			// record before it's stored, so anchor path (B) ("persisted
			// campaign anchor if valid") can fire on later days and later
			// recalc runs (spec.md §4.4, §4.7).
			updatedCampaign := out.UpdatedCampaign
			updatedCampaign.PathAnchorMaterialID = out.RollCycleAnchor.MaterialID
			updatedCampaign.PathAnchorWidthMM = out.RollCycleAnchor.WidthMM
			updatedCampaign.PathAnchorThicknessMM = out.RollCycleAnchor.ThicknessMM
			updatedCampaign.AnchorSource = out.RollCycleAnchor.Source
			w.campaigns[machine] = &updatedCampaign

			if d.Equal(baseDate) {
				for id, st := range out.EligibleUpdatedStates {
					w.baseDateStates[id] = st
				}
			}

			if len(placedIDs) > 0 {
				remaining := w.materials[:0:0]
				for _, m := range w.materials {
					if !placedIDs[m.MaterialID] {
						remaining = append(remaining, m)
					}
				}
				w.materials = remaining
			}
		}
		log.Debug("recalc %s: day %s processed, %d materials remain eligible", versionID, d.Format("2006-01-02"), len(w.materials))
	}
}

// Run executes the full recalc procedure for a brand-new version
// (spec.md §4.8 steps 1-10).
func (e *Engine) Run(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	runID := uuid.NewString()

	plan, err := e.store.GetPlan(req.PlanID)
	if err != nil {
		return Response{}, err
	}

	strat, weights, scorer, warning := e.resolveStrategy(req.StrategyKey)
	windowDays := clampWindow(req.WindowDaysOverride, e.cfg.Recalc.DefaultWindowDays)
	frozenFromDate := req.BaseDate.AddDate(0, 0, -e.cfg.Recalc.FrozenDaysBeforeToday)
	windowEnd := req.BaseDate.AddDate(0, 0, windowDays)

	baseVersion, err := e.store.ActiveVersion(req.PlanID)
	hasBase := err == nil
	if err != nil && !apperrors.IsKind(err, apperrors.KindNotFound) {
		return Response{}, err
	}

	newVersionID := uuid.NewString()
	var version domain.PlanVersion
	var frozenItems []domain.PlanItem
	var baseHistory []domain.PlanItem

	if hasBase {
		baseHistory, err = e.store.ListPlanItemsForVersionInRange(baseVersion.VersionID, time.Time{}, frozenFromDate)
		if err != nil {
			return Response{}, err
		}
	}

	if req.Mode == ModeProduction {
		version, err = e.store.CreateVersionWithNextVersionNo(domain.PlanVersion{
			VersionID: newVersionID, PlanID: plan.PlanID, Status: domain.VersionDraft,
			FrozenFromDate: frozenFromDate, RecalcWindowDays: windowDays,
			ConfigSnapshot: map[string]string{
				"__meta_run_id":       runID,
				"__meta_strategy_key": req.StrategyKey,
				"__meta_base_date":    req.BaseDate.Format("2006-01-02"),
				"__meta_说明":          fmt.Sprintf("全量重排，基准日 %s，窗口 %d 天", req.BaseDate.Format("2006-01-02"), windowDays),
			},
			CreatedBy: req.Operator, CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return Response{}, err
		}
		if hasBase {
			if _, err := e.store.CopyFrozenItems(baseVersion.VersionID, newVersionID, frozenFromDate); err != nil {
				return Response{}, err
			}
			frozenItems, err = e.store.ListPlanItemsForVersionInRange(newVersionID, time.Time{}, frozenFromDate)
			if err != nil {
				return Response{}, err
			}
		}
		if err := e.store.ClearPathOverridePendingInRange(newVersionID, req.BaseDate, windowEnd); err != nil {
			return Response{}, err
		}
	} else {
		version = domain.PlanVersion{VersionID: newVersionID, PlanID: plan.PlanID, Status: domain.VersionDraft, FrozenFromDate: frozenFromDate, RecalcWindowDays: windowDays}
		for _, it := range baseHistory {
			if !it.LockedInPlan {
				continue
			}
			it.VersionID = newVersionID
			it.SourceType = domain.SourceFrozen
			frozenItems = append(frozenItems, it)
		}
	}

	materials, states, err := e.candidatePool()
	if err != nil {
		return Response{}, err
	}

	w := &windowState{
		materials:         materials,
		states:            states,
		campaigns:         make(map[string]*domain.RollerCampaign),
		pools:             make(map[string]map[time.Time]domain.CapacityPool),
		lastFrozen:        lastFrozenPerMachine(frozenItems),
		lastLocked:        lastMatchingPerMachine(baseHistory, func(it domain.PlanItem) bool { return it.SchedState == domain.StateLocked }),
		lastUserConfirmed: lastMatchingPerMachine(baseHistory, func(it domain.PlanItem) bool { return it.SourceType == domain.SourceManual }),
		frozenByDate:      groupByMachineDate(frozenItems),
		baseDateStates:    make(map[string]domain.MaterialState),
		allMaterialsByID:  materialsByID(materials),
	}
	if hasBase {
		for _, machine := range e.cfg.Machines.Codes {
			if c, err := e.store.CurrentCampaign(baseVersion.VersionID, machine); err == nil {
				c.VersionID = newVersionID
				w.campaigns[machine] = &c
			}
		}
	}

	e.runWindow(newVersionID, req.BaseDate, req.BaseDate, windowEnd, e.cfg.Machines.Codes, strat, weights, scorer, w)

	matureCount, immatureCount := countBacklog(w.blocked)
	riskSnapshots := e.buildRiskSnapshots(ctx, newVersionID, w)

	if req.Mode == ModeProduction {
		if err := e.store.UpsertPlanItems(w.placedItems); err != nil {
			return Response{}, err
		}
		for _, byDate := range w.pools {
			for _, p := range byDate {
				if err := e.store.UpsertCapacityPool(p); err != nil {
					return Response{}, err
				}
			}
		}
		for _, c := range w.campaigns {
			if err := e.store.UpsertRollerCampaign(*c); err != nil {
				return Response{}, err
			}
		}
		for _, c := range w.closedCampaigns {
			if err := e.store.UpsertRollerCampaign(c); err != nil {
				return Response{}, err
			}
		}
		for _, p := range w.pendingOverrides {
			if err := e.store.UpsertPathOverridePending(p); err != nil {
				return Response{}, err
			}
		}
		for _, st := range w.baseDateStates {
			if err := e.store.UpsertMaterialState(st); err != nil {
				return Response{}, err
			}
		}
		for _, rs := range riskSnapshots {
			if err := e.store.UpsertRiskSnapshot(rs); err != nil {
				return Response{}, err
			}
		}

		e.audit.RecordRecalc(newVersionID, req.Operator, req.StrategyKey, windowDays, map[string]any{
			"plan_items_count":   len(w.placedItems),
			"frozen_items_count": len(frozenItems),
			"mature_count":       matureCount,
			"immature_count":     immatureCount,
			"elapsed_ms":         time.Since(start).Milliseconds(),
			"strategy":           req.StrategyKey,
			"window_days":        windowDays,
		})

		if req.AutoActivate {
			if err := e.store.ActivateVersion(newVersionID); err != nil {
				return Response{}, err
			}
			if err := e.store.RecomputeCapacityPoolForVersion(newVersionID); err != nil {
				return Response{}, err
			}
		}

		events.PublishBestEffort(ctx, e.publisher, events.ScheduleEvent{
			VersionID: newVersionID, Type: events.TypePlanItemChanged,
			Scope: events.Scope{Full: true}, Reason: "recalc_full",
		})
	}

	allItems := append(append([]domain.PlanItem(nil), frozenItems...), w.placedItems...)
	pools := flattenPools(w.pools)
	campaigns := flattenCampaigns(w.campaigns)

	return Response{
		RunID: runID, VersionID: newVersionID, PlanRev: version.Revision,
		PlanItemsCount: len(w.placedItems), FrozenItemsCount: len(frozenItems),
		Success: true, Message: "recalc completed", Warning: warning,
		PlanItems: allItems, CapacityPools: pools, Campaigns: campaigns,
		RiskSnapshots: riskSnapshots, PendingOverrides: w.pendingOverrides,
	}, nil
}

// PartialRequest reruns a sub-range of an existing, already-persisted
// version — the partial/cascade recalc path (spec.md §4.8's final
// paragraph).
type PartialRequest struct {
	VersionID   string
	From, To    time.Time
	StrategyKey string
	Operator    string
}

// RunPartial preserves the frozen items inside [From, To) by re-inserting
// them after deleting the range, then reruns the day×machine loop over
// that range only.
func (e *Engine) RunPartial(ctx context.Context, req PartialRequest) (Response, error) {
	version, err := e.store.GetVersion(req.VersionID)
	if err != nil {
		return Response{}, err
	}

	existing, err := e.store.ListPlanItemsForVersionInRange(req.VersionID, req.From, req.To)
	if err != nil {
		return Response{}, err
	}
	var preserve []domain.PlanItem
	for _, it := range existing {
		if it.LockedInPlan {
			preserve = append(preserve, it)
		}
	}

	if err := e.store.DeletePlanItemsInRange(req.VersionID, req.From, req.To); err != nil {
		return Response{}, err
	}
	if len(preserve) > 0 {
		if err := e.store.UpsertPlanItems(preserve); err != nil {
			return Response{}, err
		}
	}
	if err := e.store.ClearPathOverridePendingInRange(req.VersionID, req.From, req.To); err != nil {
		return Response{}, err
	}

	strat, weights, scorer, warning := e.resolveStrategy(req.StrategyKey)

	materials, states, err := e.candidatePool()
	if err != nil {
		return Response{}, err
	}

	w := &windowState{
		materials:        materials,
		states:           states,
		campaigns:        make(map[string]*domain.RollerCampaign),
		pools:            make(map[string]map[time.Time]domain.CapacityPool),
		lastFrozen:       lastFrozenPerMachine(preserve),
		frozenByDate:     groupByMachineDate(preserve),
		baseDateStates:   make(map[string]domain.MaterialState),
		allMaterialsByID: materialsByID(materials),
	}
	for _, machine := range e.cfg.Machines.Codes {
		if c, err := e.store.CurrentCampaign(req.VersionID, machine); err == nil {
			w.campaigns[machine] = &c
		}
	}

	e.runWindow(req.VersionID, req.From, req.From, req.To, e.cfg.Machines.Codes, strat, weights, scorer, w)

	riskSnapshots := e.buildRiskSnapshots(ctx, req.VersionID, w)

	if err := e.store.UpsertPlanItems(w.placedItems); err != nil {
		return Response{}, err
	}
	for _, byDate := range w.pools {
		for _, p := range byDate {
			if err := e.store.UpsertCapacityPool(p); err != nil {
				return Response{}, err
			}
		}
	}
	for _, c := range w.campaigns {
		if err := e.store.UpsertRollerCampaign(*c); err != nil {
			return Response{}, err
		}
	}
	for _, c := range w.closedCampaigns {
		if err := e.store.UpsertRollerCampaign(c); err != nil {
			return Response{}, err
		}
	}
	for _, p := range w.pendingOverrides {
		if err := e.store.UpsertPathOverridePending(p); err != nil {
			return Response{}, err
		}
	}
	for _, rs := range riskSnapshots {
		if err := e.store.UpsertRiskSnapshot(rs); err != nil {
			return Response{}, err
		}
	}

	e.audit.RecordRecalc(req.VersionID, req.Operator, req.StrategyKey, int(req.To.Sub(req.From).Hours()/24), map[string]any{
		"plan_items_count":   len(w.placedItems),
		"frozen_items_count": len(preserve),
		"partial":            true,
	})

	events.PublishBestEffort(ctx, e.publisher, events.ScheduleEvent{
		VersionID: req.VersionID, Type: events.TypePlanItemChanged,
		Scope: events.Scope{Machines: e.cfg.Machines.Codes, DateRangeStart: &req.From, DateRangeEnd: &req.To},
		Reason: "recalc_partial",
	})

	allItems := append(append([]domain.PlanItem(nil), preserve...), w.placedItems...)
	return Response{
		VersionID: req.VersionID, PlanRev: version.Revision,
		PlanItemsCount: len(w.placedItems), FrozenItemsCount: len(preserve),
		Success: true, Message: "partial recalc completed", Warning: warning,
		PlanItems: allItems, CapacityPools: flattenPools(w.pools), Campaigns: flattenCampaigns(w.campaigns),
		RiskSnapshots: riskSnapshots, PendingOverrides: w.pendingOverrides,
	}, nil
}

// Activate promotes versionID to ACTIVE, archiving any other ACTIVE
// version of the same plan, then recomputes its CapacityPool tonnage by
// SQL aggregation (spec.md §4.8's "Version activation").
func (e *Engine) Activate(ctx context.Context, versionID, actor string) error {
	if err := e.store.ActivateVersion(versionID); err != nil {
		return err
	}
	if err := e.store.RecomputeCapacityPoolForVersion(versionID); err != nil {
		return err
	}
	e.audit.RecordRecalc(versionID, actor, "(activate)", 0, map[string]any{"action": "activate_version"})
	events.PublishBestEffort(ctx, e.publisher, events.ScheduleEvent{VersionID: versionID, Type: events.TypePlanItemChanged, Scope: events.Scope{Full: true}, Reason: "activate_version"})
	return nil
}

// RollbackRequest is a rollback_version call.
type RollbackRequest struct {
	PlanID          string
	TargetVersionID string
	Operator        string
	Reason          string
}

// RollbackResponse reports whether config_snapshot restoration was
// skipped and why (spec.md scenario S5's "note" quirk).
type RollbackResponse struct {
	VersionID            string
	ConfigRestoreSkipped string
}

// Rollback reactivates a target version. Unless its config_snapshot looks
// like a historical free-text note rather than real key-value
// configuration, the snapshot is written back onto the target version's
// own row via UpdateConfigSnapshot; no other plan-level configuration is
// changed (spec.md §4.8's "Rollback" paragraph).
func (e *Engine) Rollback(ctx context.Context, req RollbackRequest) (RollbackResponse, error) {
	if req.Reason == "" {
		return RollbackResponse{}, apperrors.Invalidf("rollback reason is required")
	}
	if _, err := e.store.GetPlan(req.PlanID); err != nil {
		return RollbackResponse{}, err
	}
	target, err := e.store.GetVersion(req.TargetVersionID)
	if err != nil {
		return RollbackResponse{}, err
	}
	if target.PlanID != req.PlanID {
		return RollbackResponse{}, apperrors.Invalidf("version %s does not belong to plan %s", req.TargetVersionID, req.PlanID)
	}

	skipped := ""
	nonMeta := target.NonMetaKeys()
	if _, hasNote := nonMeta["note"]; hasNote && len(nonMeta) <= 2 {
		skipped = "config_snapshot looks like a free-text note, not configuration; restoration skipped"
	} else if err := e.store.UpdateConfigSnapshot(req.TargetVersionID, target.ConfigSnapshot); err != nil {
		return RollbackResponse{}, err
	}

	if err := e.store.ActivateVersion(req.TargetVersionID); err != nil {
		return RollbackResponse{}, err
	}
	if err := e.store.RecomputeCapacityPoolForVersion(req.TargetVersionID); err != nil {
		return RollbackResponse{}, err
	}

	e.audit.RecordRollback(req.TargetVersionID, req.Operator, req.Reason, skipped)
	events.PublishBestEffort(ctx, e.publisher, events.ScheduleEvent{VersionID: req.TargetVersionID, Type: events.TypePlanItemChanged, Scope: events.Scope{Full: true}, Reason: "rollback"})

	return RollbackResponse{VersionID: req.TargetVersionID, ConfigRestoreSkipped: skipped}, nil
}

// MoveRequest is one material's requested relocation.
type MoveRequest struct {
	MaterialID  string
	MachineCode string
	PlanDate    time.Time
}

// MoveResult reports per-move success and, on rejection, the violation
// that blocked it.
type MoveResult struct {
	MaterialID    string
	Success       bool
	ViolationType domain.ViolationType
}

// MoveItems relocates non-frozen items within versionID; frozen items are
// rejected in STRICT mode and silently skipped in AUTO_FIX mode
// (spec.md §6's move_items contract).
func (e *Engine) MoveItems(ctx context.Context, versionID string, moves []MoveRequest, mode domain.MoveMode, operator, reason string) ([]MoveResult, error) {
	items, err := e.store.ListPlanItemsForVersion(versionID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.PlanItem, len(items))
	for _, it := range items {
		byID[it.MaterialID] = it
	}

	var results []MoveResult
	var moved []string
	var toUpsert []domain.PlanItem
	for _, mv := range moves {
		it, ok := byID[mv.MaterialID]
		if !ok {
			results = append(results, MoveResult{MaterialID: mv.MaterialID, Success: false})
			continue
		}
		if it.LockedInPlan {
			if mode == domain.MoveStrict {
				results = append(results, MoveResult{MaterialID: mv.MaterialID, Success: false, ViolationType: domain.ViolationFrozenZone})
			} else {
				results = append(results, MoveResult{MaterialID: mv.MaterialID, Success: false, ViolationType: domain.ViolationFrozenZoneSkipped})
			}
			continue
		}
		it.MachineCode = mv.MachineCode
		it.PlanDate = mv.PlanDate
		it.SourceType = domain.SourceManual
		toUpsert = append(toUpsert, it)
		moved = append(moved, mv.MaterialID)
		results = append(results, MoveResult{MaterialID: mv.MaterialID, Success: true})
	}

	if len(toUpsert) > 0 {
		if err := e.store.UpsertPlanItems(toUpsert); err != nil {
			return nil, err
		}
	}

	e.audit.RecordMoveItems(versionID, operator, string(mode), moved, reason)
	events.PublishBestEffort(ctx, e.publisher, events.ScheduleEvent{VersionID: versionID, Type: events.TypePlanItemChanged, Scope: events.Scope{Full: true}, Reason: "move_items"})

	return results, nil
}

// ConfigChange is one non-meta config_snapshot key that differs between
// two versions.
type ConfigChange struct {
	Key      string
	OldValue string
	NewValue string
}

// CompareResult is the compare_versions contract: diff counts, per-date
// risk deltas, per-(machine,date) capacity deltas, and config changes.
type CompareResult struct {
	AddedCount     int
	RemovedCount   int
	MovedCount     int
	RiskDeltas     map[string]string // date (YYYY-MM-DD) -> "A_LEVEL -> B_LEVEL"
	CapacityDeltas map[string]float64 // "machine|date" -> used_capacity_t delta (B - A)
	ConfigChanges  []ConfigChange
}

// CompareVersions diffs two persisted versions of the same plan.
func (e *Engine) CompareVersions(versionA, versionB string) (CompareResult, error) {
	a, err := e.store.GetVersion(versionA)
	if err != nil {
		return CompareResult{}, err
	}
	b, err := e.store.GetVersion(versionB)
	if err != nil {
		return CompareResult{}, err
	}
	itemsA, err := e.store.ListPlanItemsForVersion(versionA)
	if err != nil {
		return CompareResult{}, err
	}
	itemsB, err := e.store.ListPlanItemsForVersion(versionB)
	if err != nil {
		return CompareResult{}, err
	}

	byIDA := make(map[string]domain.PlanItem, len(itemsA))
	for _, it := range itemsA {
		byIDA[it.MaterialID] = it
	}
	byIDB := make(map[string]domain.PlanItem, len(itemsB))
	for _, it := range itemsB {
		byIDB[it.MaterialID] = it
	}

	res := CompareResult{RiskDeltas: map[string]string{}, CapacityDeltas: map[string]float64{}}
	for id, itB := range byIDB {
		itA, ok := byIDA[id]
		if !ok {
			res.AddedCount++
			continue
		}
		if itA.MachineCode != itB.MachineCode || !itA.PlanDate.Equal(itB.PlanDate) {
			res.MovedCount++
		}
	}
	for id := range byIDA {
		if _, ok := byIDB[id]; !ok {
			res.RemovedCount++
		}
	}

	poolsA, err := e.store.ListCapacityPoolForVersion(versionA)
	if err != nil {
		return CompareResult{}, err
	}
	poolsB, err := e.store.ListCapacityPoolForVersion(versionB)
	if err != nil {
		return CompareResult{}, err
	}
	poolKeyA := make(map[string]domain.CapacityPool, len(poolsA))
	for _, p := range poolsA {
		poolKeyA[poolKey(p.MachineCode, p.PlanDate)] = p
	}
	for _, pb := range poolsB {
		key := poolKey(pb.MachineCode, pb.PlanDate)
		pa := poolKeyA[key]
		res.CapacityDeltas[key] = pb.UsedCapacityT - pa.UsedCapacityT
	}

	risksA, err := e.store.ListRiskSnapshots(versionA)
	if err != nil {
		return CompareResult{}, err
	}
	risksB, err := e.store.ListRiskSnapshots(versionB)
	if err != nil {
		return CompareResult{}, err
	}
	riskByDate := make(map[string]domain.RiskLevel, len(risksA))
	for _, r := range risksA {
		riskByDate[r.SnapshotDate.Format("2006-01-02")] = r.RiskLevel
	}
	for _, r := range risksB {
		date := r.SnapshotDate.Format("2006-01-02")
		if prior, ok := riskByDate[date]; ok && prior != r.RiskLevel {
			res.RiskDeltas[date] = fmt.Sprintf("%s -> %s", prior, r.RiskLevel)
		}
	}

	aNonMeta := a.NonMetaKeys()
	bNonMeta := b.NonMetaKeys()
	keys := make(map[string]bool)
	for k := range aNonMeta {
		keys[k] = true
	}
	for k := range bNonMeta {
		keys[k] = true
	}
	sortedKeys := make([]string, 0, len(keys))
	for k := range keys {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)
	for _, k := range sortedKeys {
		if aNonMeta[k] != bNonMeta[k] {
			res.ConfigChanges = append(res.ConfigChanges, ConfigChange{Key: k, OldValue: aNonMeta[k], NewValue: bNonMeta[k]})
		}
	}

	return res, nil
}

func poolKey(machine string, date time.Time) string {
	return machine + "|" + date.Format("2006-01-02")
}

// buildRiskSnapshots turns the window's blocked/not-placed materials into
// BacklogItem tonnage so every snapshot's urgent/mature/immature totals
// reflect what actually failed to place, not just capacity usage. Blocked
// entries carry no machine attribution (the Orchestrator reports them
// window-wide), so the same backlog is charged against every machine's
// snapshot for that day — a deliberate flat attribution, not a per-machine
// split.
func (e *Engine) buildRiskSnapshots(ctx context.Context, versionID string, w *windowState) []domain.RiskSnapshot {
	backlog := make([]risk.BacklogItem, 0, len(w.blocked))
	for _, b := range w.blocked {
		mat, ok := w.allMaterialsByID[b.MaterialID]
		if !ok {
			continue
		}
		st := w.states[b.MaterialID]
		mature := b.ReasonCode != "NOT_YET_MATURE" && b.ReasonCode != "IMMATURE_TEMPERATURE"
		backlog = append(backlog, risk.BacklogItem{WeightT: mat.WeightT, UrgentLevel: st.UrgentLevel, Mature: mature})
	}

	var inputs []risk.Input
	now := time.Now().UTC()
	for machine, byDate := range w.pools {
		for _, pool := range byDate {
			var status *domain.CampaignStatus
			if c := w.campaigns[machine]; c != nil {
				s := c.Status
				status = &s
			}
			inputs = append(inputs, risk.Input{Pool: pool, Backlog: backlog, CampaignStatus: status, Now: now})
		}
	}
	snapshots, err := risk.BuildAll(ctx, inputs)
	if err != nil {
		logging.Get(logging.CategoryRecalc).Warn("risk snapshot build failed for version %s: %v", versionID, err)
		return nil
	}
	return snapshots
}

func materialsByID(materials []domain.MaterialMaster) map[string]domain.MaterialMaster {
	out := make(map[string]domain.MaterialMaster, len(materials))
	for _, m := range materials {
		out[m.MaterialID] = m
	}
	return out
}

func countBacklog(blocked []orchestrator.BlockedEntry) (mature, immature int) {
	for _, b := range blocked {
		if b.ReasonCode == "NOT_YET_MATURE" || b.ReasonCode == "IMMATURE_TEMPERATURE" {
			immature++
		} else {
			mature++
		}
	}
	return mature, immature
}

func lastFrozenPerMachine(items []domain.PlanItem) map[string]*domain.PlanItem {
	return lastMatchingPerMachine(items, func(domain.PlanItem) bool { return true })
}

// lastMatchingPerMachine picks, per MachineCode, the item matching pred
// with the latest PlanDate (ties broken by highest SeqNo) — the same
// "most recent placement" rule lastFrozenPerMachine applies, generalized
// to the LockedLast/UserConfirmedLast rungs of the anchor fallback chain
// (spec.md §4.4).
func lastMatchingPerMachine(items []domain.PlanItem, pred func(domain.PlanItem) bool) map[string]*domain.PlanItem {
	out := make(map[string]*domain.PlanItem)
	for i := range items {
		it := items[i]
		if !pred(it) {
			continue
		}
		cur := out[it.MachineCode]
		if cur == nil || it.PlanDate.After(cur.PlanDate) || (it.PlanDate.Equal(cur.PlanDate) && it.SeqNo > cur.SeqNo) {
			out[it.MachineCode] = &it
		}
	}
	return out
}

func groupByMachineDate(items []domain.PlanItem) map[string]map[time.Time][]domain.PlanItem {
	out := make(map[string]map[time.Time][]domain.PlanItem)
	for _, it := range items {
		if out[it.MachineCode] == nil {
			out[it.MachineCode] = make(map[time.Time][]domain.PlanItem)
		}
		out[it.MachineCode][it.PlanDate] = append(out[it.MachineCode][it.PlanDate], it)
	}
	return out
}

func flattenPools(pools map[string]map[time.Time]domain.CapacityPool) []domain.CapacityPool {
	var out []domain.CapacityPool
	for _, byDate := range pools {
		for _, p := range byDate {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MachineCode != out[j].MachineCode {
			return out[i].MachineCode < out[j].MachineCode
		}
		return out[i].PlanDate.Before(out[j].PlanDate)
	})
	return out
}

func flattenCampaigns(campaigns map[string]*domain.RollerCampaign) []domain.RollerCampaign {
	var out []domain.RollerCampaign
	for _, c := range campaigns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MachineCode < out[j].MachineCode })
	return out
}
