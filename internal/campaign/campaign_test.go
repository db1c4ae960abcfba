package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

func cfg() config.CampaignConfig {
	return config.CampaignConfig{SuggestThresholdT: 3000, HardLimitT: 3600, MinSchedulableT: 50}
}

func TestRecordPlacementTransitionsStatus(t *testing.T) {
	c := NewCampaign("v1", "H032", time.Now(), cfg())
	RecordPlacement(&c, 2999)
	require.Equal(t, domain.CampaignNormal, c.Status)

	RecordPlacement(&c, 1)
	require.Equal(t, domain.CampaignSuggest, c.Status)

	RecordPlacement(&c, 600)
	require.Equal(t, domain.CampaignHardStop, c.Status)
}

func TestAdvanceResetsTonnageAndAnchor(t *testing.T) {
	c := NewCampaign("v1", "H032", time.Now(), cfg())
	RecordPlacement(&c, 3500)
	next := Advance(c, time.Now().AddDate(0, 0, 1), cfg())
	require.Equal(t, c.CampaignNo+1, next.CampaignNo)
	require.Equal(t, 0.0, next.CumWeightT)
	require.Equal(t, domain.AnchorNone, next.AnchorSource)
	require.NotNil(t, c.EndDate)
}

func TestShouldAdvanceForEmptyDay(t *testing.T) {
	require.True(t, ShouldAdvanceForEmptyDay(10, 80, cfg()))
	require.False(t, ShouldAdvanceForEmptyDay(60, 80, cfg()))
	require.False(t, ShouldAdvanceForEmptyDay(10, 20, cfg()))
}
