// Package capacity runs the per-day per-machine greedy fill loop: frozen
// items first, then eligible candidates in priority order, under a
// tonnage budget and the path-rule gate (spec.md §4.6).
package capacity

import (
	"sort"
	"time"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/anchor"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/campaign"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/pathrule"
)

// Candidate is the subset of material attributes the filler needs to
// place an item and gate it against the path rule.
type Candidate struct {
	MaterialID  string
	WidthMM     float64
	ThicknessMM float64
	WeightT     float64
	UrgentLevel domain.UrgencyLevel
	SchedState  domain.SchedState
	SteelGrade  string
}

// Input is everything the filler needs for one (machine, date) bucket.
type Input struct {
	VersionID   string
	MachineCode string
	PlanDate    time.Time

	// FrozenToday are items already committed to this bucket (from a
	// prior frozen copy); they are emitted first and never displaced.
	FrozenToday []domain.PlanItem
	// Eligible candidates, already in priority order (internal/priority).
	Eligible []Candidate

	Pool     domain.CapacityPool // used/frozen/overflow pre-reset by the caller
	Anchor   anchor.Anchor       // resolved anchor before today's frozen items are folded in
	Campaign domain.RollerCampaign
	PathCfg  config.PathRuleConfig
}

// Result is the outcome of one bucket's fill pass.
type Result struct {
	PlacedItems        []domain.PlanItem
	SkippedMaterialIDs []string
	PendingOverrides   []domain.PathOverridePending
	Pool               domain.CapacityPool
	Campaign           domain.RollerCampaign
	FinalAnchor        anchor.Anchor
}

// Fill runs the greedy placement loop described in spec.md §4.6. It is
// deterministic given its inputs and the candidates' priority order, and
// never displaces a frozen item: a FORCE_RELEASE candidate may push
// overflow above zero, which is reported rather than blocked.
func Fill(in Input) Result {
	var placed []domain.PlanItem
	var pending []domain.PathOverridePending
	var skipped []string

	seq := 0
	used := 0.0
	frozenT := 0.0
	curAnchor := in.Anchor
	camp := in.Campaign

	frozenSorted := append([]domain.PlanItem(nil), in.FrozenToday...)
	sort.Slice(frozenSorted, func(i, j int) bool { return frozenSorted[i].SeqNo < frozenSorted[j].SeqNo })
	for _, it := range frozenSorted {
		seq++
		it.SeqNo = seq
		used += it.WeightT
		frozenT += it.WeightT
		placed = append(placed, it)
	}
	if len(frozenSorted) > 0 {
		last := frozenSorted[len(frozenSorted)-1]
		curAnchor = anchor.Anchor{WidthMM: last.WidthMM, ThicknessMM: last.ThicknessMM, Source: domain.AnchorFrozenLast, MaterialID: last.MaterialID}
	}

	for _, c := range in.Eligible {
		if used+c.WeightT > in.Pool.LimitCapacityT && c.SchedState != domain.StateForceRelease {
			skipped = append(skipped, c.MaterialID)
			continue
		}

		pr := pathrule.Evaluate(c.WidthMM, c.ThicknessMM, curAnchor, c.UrgentLevel, in.PathCfg)
		if !pr.Pass {
			skipped = append(skipped, c.MaterialID)
			continue
		}

		seq++
		item := domain.PlanItem{
			VersionID:    in.VersionID,
			MaterialID:   c.MaterialID,
			MachineCode:  in.MachineCode,
			PlanDate:     in.PlanDate,
			SeqNo:        seq,
			WeightT:      c.WeightT,
			SourceType:   domain.SourceCalc,
			UrgentLevel:  c.UrgentLevel,
			SchedState:   domain.StateScheduled,
			AssignReason: assignReason(c, pr),
			SteelGrade:   c.SteelGrade,
			WidthMM:      c.WidthMM,
			ThicknessMM:  c.ThicknessMM,
		}
		if pr.Pending {
			item.ViolationFlags = []string{string(pr.ViolationType)}
			pending = append(pending, domain.PathOverridePending{
				VersionID: in.VersionID, MachineCode: in.MachineCode, PlanDate: in.PlanDate, MaterialID: c.MaterialID,
				ViolationType: pr.ViolationType, UrgentLevel: c.UrgentLevel, WidthMM: c.WidthMM, ThicknessMM: c.ThicknessMM,
				AnchorWidthMM: curAnchor.WidthMM, AnchorThicknessMM: curAnchor.ThicknessMM,
				WidthDeltaMM: pr.WidthDeltaMM, ThicknessDeltaMM: pr.ThicknessDeltaMM,
			})
		}

		placed = append(placed, item)
		used += c.WeightT
		curAnchor = anchor.Anchor{WidthMM: c.WidthMM, ThicknessMM: c.ThicknessMM, Source: curAnchor.Source, MaterialID: c.MaterialID}
		campaign.RecordPlacement(&camp, c.WeightT)
	}

	pool := in.Pool
	pool.UsedCapacityT = used
	pool.FrozenCapacityT = frozenT
	pool.OverflowT = 0
	if used > pool.LimitCapacityT {
		pool.OverflowT = used - pool.LimitCapacityT
	}
	pool.AccumulatedTonnageT += used

	return Result{
		PlacedItems:        placed,
		SkippedMaterialIDs: skipped,
		PendingOverrides:   pending,
		Pool:               pool,
		Campaign:           camp,
		FinalAnchor:        curAnchor,
	}
}

func assignReason(c Candidate, pr pathrule.Result) string {
	if pr.Pending {
		return "PATH_OVERRIDE_PENDING:" + string(pr.ViolationType)
	}
	return "CALC"
}
