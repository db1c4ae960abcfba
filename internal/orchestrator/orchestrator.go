// Package orchestrator composes Eligibility, Urgency, Priority, Anchor,
// Path-Rule, and Capacity Filler for one (machine, date) slice. It is a
// pure function of its inputs: the two persistence side effects (campaign
// anchor writeback, and same-day MaterialState writeback) are left to the
// caller (spec.md §4.7).
package orchestrator

import (
	"time"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/anchor"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/campaign"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/capacity"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/eligibility"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/priority"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/scripting"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/urgency"
)

// BlockedEntry names why one material was not eligible on this slice.
type BlockedEntry struct {
	MaterialID string
	ReasonCode string
}

// Input bundles the candidate pool and configuration for one (machine,
// date) slice.
type Input struct {
	VersionID   string
	MachineCode string
	BaseDate    time.Time
	PlanDate    time.Time

	Materials []domain.MaterialMaster
	States    map[string]domain.MaterialState // keyed by MaterialID

	FrozenToday []domain.PlanItem
	Pool        domain.CapacityPool
	Campaign    domain.RollerCampaign
	AnchorInput anchor.Input

	Strategy       priority.Strategy
	Weights        priority.Weights
	CustomScorer   *scripting.Scorer // compiled once per recalc run, reused across every slice

	SeasonCfg   config.SeasonConfig
	UrgencyCfg  config.UrgencyConfig
	PathCfg     config.PathRuleConfig
	CampaignCfg config.CampaignConfig
}

// Output is everything one slice produced. EligibleUpdatedStates holds the
// freshly-derived urgency per material; the caller only persists these
// back to MaterialState when PlanDate equals BaseDate (urgency.WriteBack).
type Output struct {
	PlanItems             []domain.PlanItem
	UpdatedPool           domain.CapacityPool
	EligibleUpdatedStates map[string]domain.MaterialState
	BlockedList           []BlockedEntry
	RollCycleAnchor       anchor.Anchor
	UpdatedCampaign       domain.RollerCampaign
	PathOverridePending   []domain.PathOverridePending

	// ClosedCampaign is set when the empty-day fallback advanced the
	// campaign this slice: the prior campaign record, with its end_date
	// set, for the caller to persist alongside UpdatedCampaign.
	ClosedCampaign *domain.RollerCampaign
}

// RunSlice composes the sub-engines for one (machine, date) slice.
func RunSlice(in Input) Output {
	out := Output{EligibleUpdatedStates: make(map[string]domain.MaterialState)}

	byID := make(map[string]domain.MaterialMaster, len(in.Materials))
	var priorityCandidates []priority.Candidate

	for _, m := range in.Materials {
		byID[m.MaterialID] = m
		state := in.States[m.MaterialID]

		dec := eligibility.Evaluate(m, state, in.BaseDate, in.PlanDate, in.SeasonCfg)
		if !dec.Eligible {
			out.BlockedList = append(out.BlockedList, BlockedEntry{MaterialID: m.MaterialID, ReasonCode: dec.ReasonCode})
			continue
		}

		derived := urgency.Derive(m, state, in.BaseDate, in.UrgencyCfg)
		state.UrgentLevel = derived
		out.EligibleUpdatedStates[m.MaterialID] = state

		priorityCandidates = append(priorityCandidates, priority.Candidate{
			MaterialID:           m.MaterialID,
			SchedState:           state.SchedState,
			UrgentLevel:          derived,
			WeightT:              m.WeightT,
			StockAgeDays:         m.StockAgeDays,
			DueDate:              m.DueDate,
			RollingOutputAgeDays: state.RollingOutputAgeDays,
		})
	}

	if in.Strategy.IsCustom() {
		priority.SortCustom(priorityCandidates, in.Weights, in.Strategy.Preset, in.BaseDate, in.CustomScorer)
	} else {
		priority.Sort(priorityCandidates, in.Strategy.Preset, in.BaseDate)
	}

	capacityCandidates := make([]capacity.Candidate, len(priorityCandidates))
	for i, pc := range priorityCandidates {
		m := byID[pc.MaterialID]
		capacityCandidates[i] = capacity.Candidate{
			MaterialID:  m.MaterialID,
			WidthMM:     m.WidthMM,
			ThicknessMM: m.ThicknessMM,
			WeightT:     m.WeightT,
			UrgentLevel: pc.UrgentLevel,
			SchedState:  pc.SchedState,
			SteelGrade:  m.SteelMark,
		}
	}

	resolvedAnchor := anchor.Resolve(in.AnchorInput, in.PathCfg)

	fillInput := capacity.Input{
		VersionID:   in.VersionID,
		MachineCode: in.MachineCode,
		PlanDate:    in.PlanDate,
		FrozenToday: in.FrozenToday,
		Eligible:    capacityCandidates,
		Pool:        in.Pool,
		Anchor:      resolvedAnchor,
		Campaign:    in.Campaign,
		PathCfg:     in.PathCfg,
	}
	fillResult := capacity.Fill(fillInput)

	// Empty-day fallback (spec.md §4.5): when today's anchor leaves the
	// day under min_schedulable_t but a fresh anchor would clear it,
	// advance the campaign and re-fill under the fresh anchor instead of
	// letting the day go idle.
	directSchedulableT := fillResult.Pool.UsedCapacityT - fillResult.Pool.FrozenCapacityT
	freshAnchorInput := in.AnchorInput
	freshAnchorInput.PersistedCampaign = nil
	freshAnchorInput.LastFrozenItem = nil
	freshAnchorInput.LastLockedItem = nil
	freshAnchorInput.LastUserConfirmedItem = nil
	freshAnchor := anchor.Resolve(freshAnchorInput, in.PathCfg)

	if freshAnchor != resolvedAnchor {
		trialInput := fillInput
		trialInput.Anchor = freshAnchor
		trialResult := capacity.Fill(trialInput)
		wouldBeSchedulableT := trialResult.Pool.UsedCapacityT - trialResult.Pool.FrozenCapacityT

		if campaign.ShouldAdvanceForEmptyDay(directSchedulableT, wouldBeSchedulableT, in.CampaignCfg) {
			closeDate := in.PlanDate
			closed := in.Campaign
			closed.EndDate = &closeDate
			advanced := campaign.Advance(in.Campaign, in.PlanDate, in.CampaignCfg)

			out.ClosedCampaign = &closed
			fillInput.Anchor = freshAnchor
			fillInput.Campaign = advanced
			fillResult = capacity.Fill(fillInput)
		}
	}

	out.PlanItems = fillResult.PlacedItems
	out.UpdatedPool = fillResult.Pool
	out.UpdatedCampaign = fillResult.Campaign
	out.RollCycleAnchor = fillResult.FinalAnchor
	out.PathOverridePending = fillResult.PendingOverrides

	for _, materialID := range fillResult.SkippedMaterialIDs {
		out.BlockedList = append(out.BlockedList, BlockedEntry{MaterialID: materialID, ReasonCode: "CAPACITY_OR_PATH_RULE"})
	}

	return out
}
