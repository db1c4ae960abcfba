package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

func TestParseKey(t *testing.T) {
	s, fellBack := ParseKey("balanced")
	require.False(t, fellBack)
	require.Equal(t, PresetBalanced, s.Preset)
	require.False(t, s.IsCustom())

	s, fellBack = ParseKey("custom:myprofile")
	require.False(t, fellBack)
	require.True(t, s.IsCustom())
	require.Equal(t, "myprofile", s.CustomID)

	s, fellBack = ParseKey("bogus")
	require.True(t, fellBack)
	require.Equal(t, PresetBalanced, s.Preset)

	s, fellBack = ParseKey("")
	require.True(t, fellBack)
	require.Equal(t, PresetBalanced, s.Preset)

	s, fellBack = ParseKey("custom:")
	require.True(t, fellBack)
}

func TestSortRedLinePriority(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{MaterialID: "C", SchedState: domain.StateReady},
		{MaterialID: "B", SchedState: domain.StateLocked},
		{MaterialID: "A", SchedState: domain.StateForceRelease},
	}
	Sort(cands, PresetBalanced, base)
	require.Equal(t, []string{"A", "B", "C"}, ids(cands))
}

func TestSortTieBreaksOnMaterialID(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{MaterialID: "M2", SchedState: domain.StateReady, UrgentLevel: domain.UrgencyL1},
		{MaterialID: "M1", SchedState: domain.StateReady, UrgentLevel: domain.UrgencyL1},
	}
	Sort(cands, PresetBalanced, base)
	require.Equal(t, []string{"M1", "M2"}, ids(cands))
}

func TestSortCustomFallsBackOnTie(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{MaterialID: "M2", SchedState: domain.StateReady, UrgentLevel: domain.UrgencyL2},
		{MaterialID: "M1", SchedState: domain.StateReady, UrgentLevel: domain.UrgencyL2},
	}
	w := Weights{WU: 1}
	SortCustom(cands, w, PresetBalanced, base, nil)
	require.Equal(t, []string{"M1", "M2"}, ids(cands))
}

func ids(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.MaterialID
	}
	return out
}
