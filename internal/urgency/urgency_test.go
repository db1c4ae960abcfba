package urgency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

func cfg() config.UrgencyConfig { return config.UrgencyConfig{N1Days: 2, N2Days: 5} }

func TestDeriveThresholds(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		due  time.Time
		rush bool
		want domain.UrgencyLevel
	}{
		{"within n1", base.AddDate(0, 0, 2), false, domain.UrgencyL3},
		{"at n1 boundary", base.AddDate(0, 0, 2), false, domain.UrgencyL3},
		{"between n1 and n2", base.AddDate(0, 0, 5), false, domain.UrgencyL2},
		{"beyond n2 rush", base.AddDate(0, 0, 10), true, domain.UrgencyL1},
		{"beyond n2 no rush", base.AddDate(0, 0, 10), false, domain.UrgencyL0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := domain.MaterialMaster{DueDate: c.due, RushFlag: c.rush}
			got := Derive(m, domain.MaterialState{}, base, cfg())
			require.Equal(t, c.want, got)
		})
	}
}

func TestDeriveManualOverrideWins(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := domain.MaterialMaster{DueDate: base.AddDate(0, 0, 100)}
	s := domain.MaterialState{UrgentLevelManual: true, UrgentLevel: domain.UrgencyL3}
	got := Derive(m, s, base, cfg())
	require.Equal(t, domain.UrgencyL3, got)
}

func TestWriteBackOnlyAtBaseDate(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.True(t, WriteBack(base, base))
	require.False(t, WriteBack(base, base.AddDate(0, 0, 1)))
}
