// Package priority produces a total order over eligible candidates for one
// (machine, date) bucket, either by a fixed preset key list or a scripted
// custom weighted score (spec.md §4.3).
package priority

import (
	"sort"
	"strings"
	"time"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/scripting"
)

// Preset names a fixed lexicographic ordering.
type Preset string

const (
	PresetBalanced       Preset = "balanced"
	PresetUrgentFirst    Preset = "urgent_first"
	PresetCapacityFirst  Preset = "capacity_first"
	PresetColdStockFirst Preset = "cold_stock_first"
)

func (p Preset) valid() bool {
	switch p {
	case PresetBalanced, PresetUrgentFirst, PresetCapacityFirst, PresetColdStockFirst:
		return true
	default:
		return false
	}
}

// Strategy is the parsed form of a strategy key: either a bare preset, or
// a custom:<id> with the preset it falls back to on score ties.
type Strategy struct {
	Preset     Preset
	CustomID   string // empty for a plain preset
}

// IsCustom reports whether this strategy scores candidates via weights
// instead of a fixed preset order.
func (s Strategy) IsCustom() bool { return s.CustomID != "" }

// ParseKey parses the "balanced | urgent_first | capacity_first |
// cold_stock_first | custom:<id>" grammar. An empty or unrecognized key
// falls back to balanced; the bool return reports whether a fallback
// happened, so callers can log a warning without failing (spec.md §4.8.1).
func ParseKey(key string) (Strategy, bool) {
	if after, ok := strings.CutPrefix(key, "custom:"); ok {
		id := after
		if id == "" {
			return Strategy{Preset: PresetBalanced}, true
		}
		return Strategy{Preset: PresetBalanced, CustomID: id}, false
	}
	p := Preset(key)
	if !p.valid() {
		return Strategy{Preset: PresetBalanced}, true
	}
	return Strategy{Preset: p}, false
}

// WithBasePreset overrides the fallback preset used for tie-breaking a
// custom strategy, normally sourced from the strategy's configured
// base_preset.
func (s Strategy) WithBasePreset(p Preset) Strategy {
	if p.valid() {
		s.Preset = p
	}
	return s
}

// Candidate is the subset of material/state fields the sorter needs.
type Candidate struct {
	MaterialID           string
	SchedState           domain.SchedState
	UrgentLevel          domain.UrgencyLevel
	WeightT              float64
	StockAgeDays         int
	DueDate              time.Time
	RollingOutputAgeDays int
}

// schedStateRank enforces the red-line priority invariant: FORCE_RELEASE
// precedes LOCKED precedes everything else, in every preset and custom
// ordering (spec.md §4.3, §8 property 9).
func schedStateRank(s domain.SchedState) int {
	switch s {
	case domain.StateForceRelease:
		return 0
	case domain.StateLocked:
		return 1
	default:
		return 2
	}
}

func urgencyRank(u domain.UrgencyLevel) int {
	switch u {
	case domain.UrgencyL3:
		return 3
	case domain.UrgencyL2:
		return 2
	case domain.UrgencyL1:
		return 1
	default:
		return 0
	}
}

func daysToDue(c Candidate, baseDate time.Time) int {
	return int(c.DueDate.Sub(baseDate).Hours() / 24)
}

// Sort orders candidates in place for one (machine, date) bucket using a
// preset's fixed key list. It is stable and deterministic: ties are always
// ultimately broken by material_id (spec.md §4.3).
func Sort(candidates []Candidate, preset Preset, baseDate time.Time) {
	less := presetLess(preset, baseDate)
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ra, rb := schedStateRank(a.SchedState), schedStateRank(b.SchedState); ra != rb {
			return ra < rb
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.MaterialID < b.MaterialID
	})
}

func presetLess(preset Preset, baseDate time.Time) func(a, b Candidate) bool {
	switch preset {
	case PresetUrgentFirst:
		return func(a, b Candidate) bool {
			if ra, rb := urgencyRank(a.UrgentLevel), urgencyRank(b.UrgentLevel); ra != rb {
				return ra > rb
			}
			return daysToDue(a, baseDate) < daysToDue(b, baseDate)
		}
	case PresetCapacityFirst:
		return func(a, b Candidate) bool {
			if a.WeightT != b.WeightT {
				return a.WeightT > b.WeightT
			}
			return urgencyRank(a.UrgentLevel) > urgencyRank(b.UrgentLevel)
		}
	case PresetColdStockFirst:
		return func(a, b Candidate) bool {
			if a.StockAgeDays != b.StockAgeDays {
				return a.StockAgeDays > b.StockAgeDays
			}
			return urgencyRank(a.UrgentLevel) > urgencyRank(b.UrgentLevel)
		}
	default: // PresetBalanced
		return func(a, b Candidate) bool {
			if ra, rb := urgencyRank(a.UrgentLevel), urgencyRank(b.UrgentLevel); ra != rb {
				return ra > rb
			}
			if a.StockAgeDays != b.StockAgeDays {
				return a.StockAgeDays > b.StockAgeDays
			}
			if da, db := daysToDue(a, baseDate), daysToDue(b, baseDate); da != db {
				return da < db
			}
			return a.WeightT > b.WeightT
		}
	}
}

// Weights is the custom-strategy linear scoring formula's parameters
// (spec.md §4.3): S = wU*urgency_rank + wC*weight_t + wS*cold_age_adj +
// wD*due_urgency + wR*rolling_output_age.
type Weights struct {
	WU, WC, WS, WD, WR float64
	ColdAgeThresholdDays int
}

func clampDays(d int) int {
	if d < -3650 {
		return -3650
	}
	if d > 3650 {
		return 3650
	}
	return d
}

// Score computes the linear custom-strategy formula for one candidate.
func Score(c Candidate, baseDate time.Time, w Weights) float64 {
	coldAgeAdj := c.StockAgeDays - w.ColdAgeThresholdDays
	if coldAgeAdj < 0 {
		coldAgeAdj = 0
	}
	dueUrgency := -float64(clampDays(daysToDue(c, baseDate)))
	return w.WU*float64(urgencyRank(c.UrgentLevel)) +
		w.WC*c.WeightT +
		w.WS*float64(coldAgeAdj) +
		w.WD*dueUrgency +
		w.WR*float64(c.RollingOutputAgeDays)
}

// SortCustom orders candidates by the Weights formula, falling back to
// basePreset order on score ties, and finally to material_id (spec.md
// §4.3). scorer, when non-nil, is a compiled custom-score script reused
// across every candidate in this run in place of the linear Weights
// formula; it must already have been compiled once per recalc run by the
// caller, never per candidate.
func SortCustom(candidates []Candidate, w Weights, basePreset Preset, baseDate time.Time, scorer *scripting.Scorer) {
	scoreOf := func(c Candidate) float64 { return Score(c, baseDate, w) }
	if scorer != nil {
		scoreOf = func(c Candidate) float64 {
			return scripting.EvalWithFallbackScorer(scorer, toScoreInputs(c, baseDate, w), func(scripting.ScoreInputs) float64 {
				return Score(c, baseDate, w)
			})
		}
	}

	less := presetLess(basePreset, baseDate)
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ra, rb := schedStateRank(a.SchedState), schedStateRank(b.SchedState); ra != rb {
			return ra < rb
		}
		sa, sb := scoreOf(a), scoreOf(b)
		if sa != sb {
			return sa > sb
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.MaterialID < b.MaterialID
	})
}

func toScoreInputs(c Candidate, baseDate time.Time, w Weights) scripting.ScoreInputs {
	coldAgeAdj := c.StockAgeDays - w.ColdAgeThresholdDays
	if coldAgeAdj < 0 {
		coldAgeAdj = 0
	}
	return scripting.ScoreInputs{
		UrgencyRank:      urgencyRank(c.UrgentLevel),
		CampaignFitT:     c.WeightT,
		StockAgeDays:     coldAgeAdj,
		DueDateSlackDays: clampDays(daysToDue(c, baseDate)),
		RiskPenalty:      float64(c.RollingOutputAgeDays),
	}
}
