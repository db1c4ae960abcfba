// Package risk derives the per (version, machine, date) health record:
// utilization, overflow, and urgent/mature/immature backlog, mapped to a
// risk level (spec.md §4.10).
package risk

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// BacklogItem is one not-yet-placed material counted toward a snapshot's
// urgent/mature/immature backlog totals.
type BacklogItem struct {
	WeightT     float64
	UrgentLevel domain.UrgencyLevel
	Mature      bool
}

// Input is everything Build needs for one (version, machine, date) cell.
type Input struct {
	Pool           domain.CapacityPool
	Backlog        []BacklogItem
	CampaignStatus *domain.CampaignStatus
	Now            time.Time
}

// Build computes one RiskSnapshot from its capacity pool and backlog.
func Build(in Input) domain.RiskSnapshot {
	var urgentTotal, matureBacklog, immatureBacklog float64
	for _, b := range in.Backlog {
		if b.UrgentLevel == domain.UrgencyL2 || b.UrgentLevel == domain.UrgencyL3 {
			urgentTotal += b.WeightT
		}
		if b.Mature {
			matureBacklog += b.WeightT
		} else {
			immatureBacklog += b.WeightT
		}
	}

	level := riskLevel(in.Pool)
	return domain.RiskSnapshot{
		VersionID:        in.Pool.VersionID,
		MachineCode:      in.Pool.MachineCode,
		SnapshotDate:     in.Pool.PlanDate,
		RiskLevel:        level,
		Reasons:          reasonsFor(in.Pool, level),
		TargetCapacityT:  in.Pool.TargetCapacityT,
		UsedCapacityT:    in.Pool.UsedCapacityT,
		LimitCapacityT:   in.Pool.LimitCapacityT,
		OverflowT:        in.Pool.OverflowT,
		UrgentTotalT:     urgentTotal,
		MatureBacklogT:   matureBacklog,
		ImmatureBacklogT: immatureBacklog,
		CampaignStatus:   in.CampaignStatus,
		GeneratedAt:      in.Now,
	}
}

// BuildAll computes a snapshot for every input concurrently: each cell is
// an independent, read-only derivation, so the Recalc Engine's single
// post-window snapshot pass fans the per-(machine, date) builds out across goroutines instead
// of looping them sequentially (spec.md §4.10, §5's "concurrent reads
// everywhere" allowance).
func BuildAll(ctx context.Context, inputs []Input) ([]domain.RiskSnapshot, error) {
	results := make([]domain.RiskSnapshot, len(inputs))
	g, _ := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			results[i] = Build(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func riskLevel(pool domain.CapacityPool) domain.RiskLevel {
	if pool.OverflowT > 0 || pool.UsedCapacityT > pool.LimitCapacityT {
		return domain.RiskCritical
	}
	u := utilization(pool)
	switch {
	case u >= 0.95:
		return domain.RiskHigh
	case u >= 0.80:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func utilization(pool domain.CapacityPool) float64 {
	if pool.TargetCapacityT == 0 {
		return 0
	}
	return pool.UsedCapacityT / pool.TargetCapacityT
}

func reasonsFor(pool domain.CapacityPool, level domain.RiskLevel) []string {
	var reasons []string
	if pool.OverflowT > 0 {
		reasons = append(reasons, fmt.Sprintf("overflow %.1ft over limit %.1ft", pool.OverflowT, pool.LimitCapacityT))
	}
	u := utilization(pool)
	switch level {
	case domain.RiskHigh:
		reasons = append(reasons, fmt.Sprintf("utilization %.0f%% at/above 95%%", u*100))
	case domain.RiskMedium:
		reasons = append(reasons, fmt.Sprintf("utilization %.0f%% at/above 80%%", u*100))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "within normal capacity")
	}
	return reasons
}
