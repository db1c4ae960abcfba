// Package campaign tracks cumulative tonnage per roll campaign on a
// machine, advancing to a fresh campaign on a roll change or when the
// current anchor is starving an otherwise-schedulable day (spec.md §4.5).
package campaign

import (
	"time"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// RecordPlacement adds weightT to the campaign's cumulative tonnage and
// recomputes its status against the configured thresholds.
func RecordPlacement(c *domain.RollerCampaign, weightT float64) {
	c.CumWeightT += weightT
	c.Status = statusFor(c.CumWeightT, c.SuggestThresholdT, c.HardLimitT)
}

func statusFor(cum, suggestT, hardT float64) domain.CampaignStatus {
	switch {
	case cum >= hardT:
		return domain.CampaignHardStop
	case cum >= suggestT:
		return domain.CampaignSuggest
	default:
		return domain.CampaignNormal
	}
}

// Advance starts a fresh campaign on the same machine, resetting the
// anchor and cumulative tonnage. Used on a genuine roll change, and as the
// empty-day fallback when the current anchor is too restrictive to use
// any of today's capacity (spec.md §4.5).
func Advance(prev domain.RollerCampaign, startDate time.Time, cfg config.CampaignConfig) domain.RollerCampaign {
	now := startDate
	prev.EndDate = &now
	return domain.RollerCampaign{
		VersionID:         prev.VersionID,
		MachineCode:       prev.MachineCode,
		CampaignNo:        prev.CampaignNo + 1,
		StartDate:         startDate,
		CumWeightT:        0,
		SuggestThresholdT: cfg.SuggestThresholdT,
		HardLimitT:        cfg.HardLimitT,
		Status:            domain.CampaignNormal,
		AnchorSource:       domain.AnchorNone,
	}
}

// ShouldAdvanceForEmptyDay reports the "empty-day fallback" condition: the
// tonnage directly schedulable under the current anchor falls below
// min_schedulable_t, but would clear that bar if materials the current
// anchor rejected could re-participate under a fresh anchor (spec.md §4.5).
func ShouldAdvanceForEmptyDay(directSchedulableT, wouldBeSchedulableT float64, cfg config.CampaignConfig) bool {
	return directSchedulableT < cfg.MinSchedulableT && wouldBeSchedulableT >= cfg.MinSchedulableT
}

// NewCampaign starts the very first campaign for a (version, machine).
func NewCampaign(versionID, machineCode string, startDate time.Time, cfg config.CampaignConfig) domain.RollerCampaign {
	return domain.RollerCampaign{
		VersionID:         versionID,
		MachineCode:       machineCode,
		CampaignNo:        1,
		StartDate:         startDate,
		SuggestThresholdT: cfg.SuggestThresholdT,
		HardLimitT:        cfg.HardLimitT,
		Status:            domain.CampaignNormal,
		AnchorSource:       domain.AnchorNone,
	}
}
