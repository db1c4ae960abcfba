package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

func TestBuildRiskLevels(t *testing.T) {
	cases := []struct {
		name string
		pool domain.CapacityPool
		want domain.RiskLevel
	}{
		{"low", domain.CapacityPool{TargetCapacityT: 1000, LimitCapacityT: 1000, UsedCapacityT: 500}, domain.RiskLow},
		{"medium", domain.CapacityPool{TargetCapacityT: 1000, LimitCapacityT: 1000, UsedCapacityT: 850}, domain.RiskMedium},
		{"high", domain.CapacityPool{TargetCapacityT: 1000, LimitCapacityT: 1000, UsedCapacityT: 960}, domain.RiskHigh},
		{"critical overflow", domain.CapacityPool{TargetCapacityT: 1000, LimitCapacityT: 1000, UsedCapacityT: 1100, OverflowT: 100}, domain.RiskCritical},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			snap := Build(Input{Pool: c.pool, Now: time.Now()})
			require.Equal(t, c.want, snap.RiskLevel)
		})
	}
}

func TestBuildBacklogTotals(t *testing.T) {
	snap := Build(Input{
		Pool: domain.CapacityPool{TargetCapacityT: 1000, LimitCapacityT: 1000, UsedCapacityT: 500},
		Backlog: []BacklogItem{
			{WeightT: 10, UrgentLevel: domain.UrgencyL3, Mature: true},
			{WeightT: 20, UrgentLevel: domain.UrgencyL0, Mature: false},
		},
	})
	require.Equal(t, 10.0, snap.UrgentTotalT)
	require.Equal(t, 10.0, snap.MatureBacklogT)
	require.Equal(t, 20.0, snap.ImmatureBacklogT)
}

func TestBuildAllRunsConcurrently(t *testing.T) {
	inputs := make([]Input, 8)
	for i := range inputs {
		inputs[i] = Input{Pool: domain.CapacityPool{TargetCapacityT: 1000, LimitCapacityT: 1000, UsedCapacityT: float64(i * 100)}}
	}
	out, err := BuildAll(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, out, 8)
}
