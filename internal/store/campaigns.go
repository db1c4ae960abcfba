package store

import (
	"database/sql"
	"errors"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// UpsertRollerCampaign inserts or replaces one (version, machine, campaign_no) row.
func (s *Store) UpsertRollerCampaign(c domain.RollerCampaign) error {
	_, err := s.db.Exec(
		`INSERT INTO roller_campaigns
			(version_id, machine_code, campaign_no, start_date, end_date, cum_weight_t, suggest_threshold_t, hard_limit_t, status, path_anchor_material_id, path_anchor_width_mm, path_anchor_thickness_mm, anchor_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id, machine_code, campaign_no) DO UPDATE SET
			start_date=excluded.start_date, end_date=excluded.end_date, cum_weight_t=excluded.cum_weight_t,
			suggest_threshold_t=excluded.suggest_threshold_t, hard_limit_t=excluded.hard_limit_t, status=excluded.status,
			path_anchor_material_id=excluded.path_anchor_material_id, path_anchor_width_mm=excluded.path_anchor_width_mm,
			path_anchor_thickness_mm=excluded.path_anchor_thickness_mm, anchor_source=excluded.anchor_source`,
		c.VersionID, c.MachineCode, c.CampaignNo, c.StartDate, c.EndDate, c.CumWeightT, c.SuggestThresholdT, c.HardLimitT, string(c.Status),
		c.PathAnchorMaterialID, c.PathAnchorWidthMM, c.PathAnchorThicknessMM, string(c.AnchorSource),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "upsert roller campaign")
	}
	return nil
}

// CurrentCampaign returns the highest campaign_no (open or most recently
// closed) for a (version, machine) pair — the Anchor Resolver's starting
// point for path-anchor lookups.
func (s *Store) CurrentCampaign(versionID, machineCode string) (domain.RollerCampaign, error) {
	row := s.db.QueryRow(
		`SELECT version_id, machine_code, campaign_no, start_date, end_date, cum_weight_t, suggest_threshold_t, hard_limit_t, status, path_anchor_material_id, path_anchor_width_mm, path_anchor_thickness_mm, anchor_source
		 FROM roller_campaigns WHERE version_id = ? AND machine_code = ? ORDER BY campaign_no DESC LIMIT 1`, versionID, machineCode)
	var c domain.RollerCampaign
	var status, anchorSource string
	if err := row.Scan(&c.VersionID, &c.MachineCode, &c.CampaignNo, &c.StartDate, &c.EndDate, &c.CumWeightT, &c.SuggestThresholdT, &c.HardLimitT, &status, &c.PathAnchorMaterialID, &c.PathAnchorWidthMM, &c.PathAnchorThicknessMM, &anchorSource); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, apperrors.NotFoundf("no roller campaign for %s/%s", versionID, machineCode)
		}
		return c, apperrors.Wrap(apperrors.KindDatabaseError, err, "get current campaign")
	}
	c.Status = domain.CampaignStatus(status)
	c.AnchorSource = domain.AnchorSource(anchorSource)
	return c, nil
}
