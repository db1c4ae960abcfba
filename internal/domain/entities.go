package domain

import "time"

// MetaKeyPrefix marks config_snapshot keys as engine-internal bookkeeping;
// these are never surfaced in ConfigChange diffs (spec.md 4.8, 9).
const MetaKeyPrefix = "__meta_"

// Plan owns a family of PlanVersions.
type Plan struct {
	PlanID    string
	Name      string
	PlanType  PlanType
	CreatedBy string
	CreatedAt time.Time
}

// PlanVersion is one scheduling run over a Plan's candidate pool.
type PlanVersion struct {
	VersionID        string
	PlanID           string
	VersionNo        int
	Status           VersionStatus
	FrozenFromDate   time.Time
	RecalcWindowDays int
	ConfigSnapshot   map[string]string
	Revision         int
	CreatedBy        string
	CreatedAt        time.Time
}

// NonMetaKeys returns the config_snapshot keys that are not engine metadata.
func (v *PlanVersion) NonMetaKeys() map[string]string {
	out := make(map[string]string, len(v.ConfigSnapshot))
	for k, val := range v.ConfigSnapshot {
		if !isMetaKey(k) {
			out[k] = val
		}
	}
	return out
}

func isMetaKey(k string) bool {
	return len(k) >= len(MetaKeyPrefix) && k[:len(MetaKeyPrefix)] == MetaKeyPrefix
}

// PlanItem is one scheduled (or frozen/manual) placement of a material.
type PlanItem struct {
	VersionID           string
	MaterialID           string
	MachineCode          string
	PlanDate             time.Time
	SeqNo                int
	WeightT              float64
	SourceType           SourceType
	LockedInPlan         bool
	ForceReleaseInPlan   bool
	ViolationFlags       []string

	// Denormalized snapshot fields, frozen at placement time.
	UrgentLevel   UrgencyLevel
	SchedState    SchedState
	AssignReason  string
	SteelGrade    string
	WidthMM       float64
	ThicknessMM   float64
}

// Key returns the (version_id, material_id) primary key pair.
func (p PlanItem) Key() (string, string) { return p.VersionID, p.MaterialID }

// BucketKey returns the (machine_code, plan_date) bucket this item belongs to.
func (p PlanItem) BucketKey() (string, time.Time) { return p.MachineCode, p.PlanDate }

// MaterialMaster holds stable physical/contractual attributes of a slab.
type MaterialMaster struct {
	MaterialID       string
	WidthMM          float64
	ThicknessMM      float64
	WeightT          float64
	SteelMark        string
	DueDate          time.Time
	NextMachineCode  string
	OutputAgeDaysRaw int
	StockAgeDays     int
	RushFlag         bool
	ProductCategory  string
}

// MaterialState is the mutable per-material scheduling state.
type MaterialState struct {
	MaterialID             string
	SchedState             SchedState
	UrgentLevel            UrgencyLevel
	UrgentLevelManual       bool // operator-pinned override, wins over derived value
	ReadyInDays            int
	EarliestSchedDate      time.Time
	RollingOutputAgeDays   int
	InFrozenZone           bool
	ScheduledDate          time.Time
	ScheduledMachineCode   string
	SeqNo                  int
}

// CapacityPool is the derived per (version, machine, date) tonnage ledger.
type CapacityPool struct {
	VersionID            string
	MachineCode          string
	PlanDate             time.Time
	TargetCapacityT      float64
	LimitCapacityT       float64
	UsedCapacityT        float64
	OverflowT            float64
	FrozenCapacityT      float64
	AccumulatedTonnageT  float64
	RollCampaignID       string
}

// Recompute derives Used/Overflow/Frozen from a bucket's items (spec.md 3).
func (c *CapacityPool) Recompute(items []PlanItem) {
	var used, frozen float64
	for _, it := range items {
		used += it.WeightT
		if it.LockedInPlan {
			frozen += it.WeightT
		}
	}
	c.UsedCapacityT = used
	c.FrozenCapacityT = frozen
	c.OverflowT = 0
	if used > c.LimitCapacityT {
		c.OverflowT = used - c.LimitCapacityT
	}
}

// RollerCampaign tracks cumulative tonnage and path anchor for one
// (version, machine) continuous run between roll changes.
type RollerCampaign struct {
	VersionID              string
	MachineCode            string
	CampaignNo             int
	StartDate              time.Time
	EndDate                *time.Time
	CumWeightT             float64
	SuggestThresholdT      float64
	HardLimitT             float64
	Status                 CampaignStatus
	PathAnchorMaterialID   string
	PathAnchorWidthMM      float64
	PathAnchorThicknessMM  float64
	AnchorSource           AnchorSource
}

// RiskSnapshot is a derived per (version, machine, date) health record.
type RiskSnapshot struct {
	VersionID         string
	MachineCode       string
	SnapshotDate      time.Time
	RiskLevel         RiskLevel
	Reasons           []string
	TargetCapacityT   float64
	UsedCapacityT     float64
	LimitCapacityT    float64
	OverflowT         float64
	UrgentTotalT      float64
	MatureBacklogT    float64
	ImmatureBacklogT  float64
	CampaignStatus    *CampaignStatus
	GeneratedAt       time.Time
}

// StrategyDraft is a persisted, TTL-bounded dry-run result.
type StrategyDraft struct {
	DraftID              string
	BaseVersionID        string
	PlanDateFrom         time.Time
	PlanDateTo           time.Time
	StrategyKey          string
	BaseStrategy         string
	Title                string
	ParametersJSON       string
	Status               DraftStatus
	CreatedAt            time.Time
	ExpiresAt            time.Time
	LockedBy             string
	LockedAt             *time.Time
	PublishedAsVersionID string
	SummaryJSON          string
	DiffItemsJSON        string
	DiffItemsTotal       int
	DiffItemsTruncated   bool
}

// IsExpired reports whether the draft's TTL has elapsed as of now.
func (d *StrategyDraft) IsExpired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// LockStale reports whether a held lock is older than the staleness window.
func (d *StrategyDraft) LockStale(now time.Time, staleAfter time.Duration) bool {
	if d.LockedAt == nil {
		return true
	}
	return now.Sub(*d.LockedAt) > staleAfter
}

// ActionLog is an append-only audit record. VersionID is nullable because
// a version may be deleted while its audit trail must survive.
type ActionLog struct {
	ActionID          string
	VersionID         *string
	ActionType        string
	ActionTS          time.Time
	Actor             string
	PayloadJSON       string
	ImpactSummaryJSON string
	MachineCode       *string
	DateRangeStart    *time.Time
	DateRangeEnd      *time.Time
	Detail            *string
}

// PathOverridePending is a path-rule violation allowed through pending
// human confirmation.
type PathOverridePending struct {
	VersionID       string
	MachineCode     string
	PlanDate        time.Time
	MaterialID      string
	ViolationType   ViolationType
	UrgentLevel     UrgencyLevel
	WidthMM         float64
	ThicknessMM     float64
	AnchorWidthMM   float64
	AnchorThicknessMM float64
	WidthDeltaMM    float64
	ThicknessDeltaMM float64
}
