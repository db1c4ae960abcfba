// Package anchor resolves the path anchor — the (width_mm, thickness_mm)
// pair a new rolling cycle starts from — at the top of each (machine,
// date) slice (spec.md §4.4).
package anchor

import (
	"sort"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// Anchor is the resolved (width, thickness) gate point, with the source
// that produced it for persistence on the active campaign.
type Anchor struct {
	WidthMM     float64
	ThicknessMM float64
	Source      domain.AnchorSource
	MaterialID  string
}

// Input bundles the lookups Resolve needs, in the priority order spec.md
// §4.4 specifies: today's already-frozen items, the persisted campaign
// anchor, and the FrozenLast -> LockedLast -> UserConfirmedLast -> SeedS2
// historical fallback chain.
type Input struct {
	TodayFrozenItems       []domain.PlanItem
	PersistedCampaign      *domain.RollerCampaign
	LastFrozenItem         *domain.PlanItem
	LastLockedItem         *domain.PlanItem
	LastUserConfirmedItem  *domain.PlanItem
	CandidatePool          []domain.MaterialMaster
}

// Resolve picks the anchor for a (machine, date) slice.
func Resolve(in Input, cfg config.PathRuleConfig) Anchor {
	if a, ok := lastFrozenOfDay(in.TodayFrozenItems); ok {
		return a
	}
	if in.PersistedCampaign != nil && campaignAnchorValid(in.PersistedCampaign) {
		return Anchor{
			WidthMM:     in.PersistedCampaign.PathAnchorWidthMM,
			ThicknessMM: in.PersistedCampaign.PathAnchorThicknessMM,
			Source:      in.PersistedCampaign.AnchorSource,
			MaterialID:  in.PersistedCampaign.PathAnchorMaterialID,
		}
	}
	if in.LastFrozenItem != nil {
		return fromItem(*in.LastFrozenItem, domain.AnchorFrozenLast)
	}
	if in.LastLockedItem != nil {
		return fromItem(*in.LastLockedItem, domain.AnchorLockedLast)
	}
	if in.LastUserConfirmedItem != nil {
		return fromItem(*in.LastUserConfirmedItem, domain.AnchorUserConfirmedLast)
	}
	return seedS2(in.CandidatePool, cfg)
}

func lastFrozenOfDay(items []domain.PlanItem) (Anchor, bool) {
	var best *domain.PlanItem
	for i := range items {
		it := &items[i]
		if !it.LockedInPlan {
			continue
		}
		if best == nil || it.SeqNo > best.SeqNo {
			best = it
		}
	}
	if best == nil {
		return Anchor{}, false
	}
	return fromItem(*best, domain.AnchorFrozenLast), true
}

func fromItem(it domain.PlanItem, source domain.AnchorSource) Anchor {
	return Anchor{WidthMM: it.WidthMM, ThicknessMM: it.ThicknessMM, Source: source, MaterialID: it.MaterialID}
}

func campaignAnchorValid(c *domain.RollerCampaign) bool {
	return c.PathAnchorMaterialID != "" && c.AnchorSource != domain.AnchorNone
}

// seedS2 picks a representative percentile of width/thickness over the
// candidate pool, falling back to the pool's max when the sample is too
// small for a percentile to be meaningful (spec.md §4.4).
func seedS2(pool []domain.MaterialMaster, cfg config.PathRuleConfig) Anchor {
	if len(pool) == 0 {
		return Anchor{Source: domain.AnchorSeedS2}
	}
	if len(pool) < cfg.SmallSampleFallbackN {
		return Anchor{
			WidthMM:     maxOf(pool, func(m domain.MaterialMaster) float64 { return m.WidthMM }),
			ThicknessMM: maxOf(pool, func(m domain.MaterialMaster) float64 { return m.ThicknessMM }),
			Source:      domain.AnchorSeedS2,
		}
	}
	return Anchor{
		WidthMM:     percentile(pool, cfg.SeedS2Percentile, func(m domain.MaterialMaster) float64 { return m.WidthMM }),
		ThicknessMM: percentile(pool, cfg.SeedS2Percentile, func(m domain.MaterialMaster) float64 { return m.ThicknessMM }),
		Source:      domain.AnchorSeedS2,
	}
}

func maxOf(pool []domain.MaterialMaster, get func(domain.MaterialMaster) float64) float64 {
	max := get(pool[0])
	for _, m := range pool[1:] {
		if v := get(m); v > max {
			max = v
		}
	}
	return max
}

// percentile computes the p-th percentile (0..1) of get(m) over pool using
// linear interpolation between the two bracketing sorted samples.
func percentile(pool []domain.MaterialMaster, p float64, get func(domain.MaterialMaster) float64) float64 {
	vals := make([]float64, len(pool))
	for i, m := range pool {
		vals[i] = get(m)
	}
	sort.Float64s(vals)

	if p <= 0 {
		return vals[0]
	}
	if p >= 1 {
		return vals[len(vals)-1]
	}
	pos := p * float64(len(vals)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(vals) {
		return vals[lo]
	}
	frac := pos - float64(lo)
	return vals[lo] + frac*(vals[hi]-vals[lo])
}
