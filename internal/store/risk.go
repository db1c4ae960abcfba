package store

import (
	"encoding/json"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// UpsertRiskSnapshot inserts or replaces one (version, machine, date) risk row.
func (s *Store) UpsertRiskSnapshot(r domain.RiskSnapshot) error {
	reasons, err := json.Marshal(r.Reasons)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternalError, err, "marshal risk reasons")
	}
	var campaignStatus *string
	if r.CampaignStatus != nil {
		v := string(*r.CampaignStatus)
		campaignStatus = &v
	}

	_, err = s.db.Exec(
		`INSERT INTO risk_snapshots
			(version_id, machine_code, snapshot_date, risk_level, reasons, target_capacity_t, used_capacity_t, limit_capacity_t, overflow_t, urgent_total_t, mature_backlog_t, immature_backlog_t, campaign_status, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id, machine_code, snapshot_date) DO UPDATE SET
			risk_level=excluded.risk_level, reasons=excluded.reasons, target_capacity_t=excluded.target_capacity_t,
			used_capacity_t=excluded.used_capacity_t, limit_capacity_t=excluded.limit_capacity_t, overflow_t=excluded.overflow_t,
			urgent_total_t=excluded.urgent_total_t, mature_backlog_t=excluded.mature_backlog_t, immature_backlog_t=excluded.immature_backlog_t,
			campaign_status=excluded.campaign_status, generated_at=excluded.generated_at`,
		r.VersionID, r.MachineCode, r.SnapshotDate, string(r.RiskLevel), string(reasons), r.TargetCapacityT, r.UsedCapacityT, r.LimitCapacityT,
		r.OverflowT, r.UrgentTotalT, r.MatureBacklogT, r.ImmatureBacklogT, campaignStatus, r.GeneratedAt,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "upsert risk snapshot")
	}
	return nil
}

// ListRiskSnapshots returns every risk snapshot for a version, ordered by
// machine then date.
func (s *Store) ListRiskSnapshots(versionID string) ([]domain.RiskSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT version_id, machine_code, snapshot_date, risk_level, reasons, target_capacity_t, used_capacity_t, limit_capacity_t, overflow_t, urgent_total_t, mature_backlog_t, immature_backlog_t, campaign_status, generated_at
		 FROM risk_snapshots WHERE version_id = ? ORDER BY machine_code, snapshot_date`, versionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "list risk snapshots")
	}
	defer rows.Close()

	var out []domain.RiskSnapshot
	for rows.Next() {
		var r domain.RiskSnapshot
		var riskLevel, reasons string
		var campaignStatus *string
		if err := rows.Scan(&r.VersionID, &r.MachineCode, &r.SnapshotDate, &riskLevel, &reasons, &r.TargetCapacityT, &r.UsedCapacityT, &r.LimitCapacityT, &r.OverflowT, &r.UrgentTotalT, &r.MatureBacklogT, &r.ImmatureBacklogT, &campaignStatus, &r.GeneratedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "scan risk snapshot row")
		}
		r.RiskLevel = domain.RiskLevel(riskLevel)
		if err := json.Unmarshal([]byte(reasons), &r.Reasons); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternalError, err, "unmarshal risk reasons")
		}
		if campaignStatus != nil {
			cs := domain.CampaignStatus(*campaignStatus)
			r.CampaignStatus = &cs
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
