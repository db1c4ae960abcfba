package store

import (
	"database/sql"
	"errors"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// UpsertCapacityPool inserts or replaces a CapacityPool bucket row.
func (s *Store) UpsertCapacityPool(c domain.CapacityPool) error {
	_, err := s.db.Exec(
		`INSERT INTO capacity_pool
			(version_id, machine_code, plan_date, target_capacity_t, limit_capacity_t, used_capacity_t, overflow_t, frozen_capacity_t, accumulated_tonnage_t, roll_campaign_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id, machine_code, plan_date) DO UPDATE SET
			target_capacity_t=excluded.target_capacity_t, limit_capacity_t=excluded.limit_capacity_t,
			used_capacity_t=excluded.used_capacity_t, overflow_t=excluded.overflow_t,
			frozen_capacity_t=excluded.frozen_capacity_t, accumulated_tonnage_t=excluded.accumulated_tonnage_t,
			roll_campaign_id=excluded.roll_campaign_id`,
		c.VersionID, c.MachineCode, c.PlanDate, c.TargetCapacityT, c.LimitCapacityT, c.UsedCapacityT, c.OverflowT, c.FrozenCapacityT, c.AccumulatedTonnageT, c.RollCampaignID,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "upsert capacity pool")
	}
	return nil
}

// GetCapacityPool fetches a single (version, machine, date) bucket.
func (s *Store) GetCapacityPool(versionID, machineCode string, planDate any) (domain.CapacityPool, error) {
	var c domain.CapacityPool
	row := s.db.QueryRow(
		`SELECT version_id, machine_code, plan_date, target_capacity_t, limit_capacity_t, used_capacity_t, overflow_t, frozen_capacity_t, accumulated_tonnage_t, roll_campaign_id
		 FROM capacity_pool WHERE version_id = ? AND machine_code = ? AND plan_date = ?`, versionID, machineCode, planDate)
	if err := row.Scan(&c.VersionID, &c.MachineCode, &c.PlanDate, &c.TargetCapacityT, &c.LimitCapacityT, &c.UsedCapacityT, &c.OverflowT, &c.FrozenCapacityT, &c.AccumulatedTonnageT, &c.RollCampaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, apperrors.NotFoundf("capacity pool %s/%s not found", versionID, machineCode)
		}
		return c, apperrors.Wrap(apperrors.KindDatabaseError, err, "get capacity pool")
	}
	return c, nil
}

// RecomputeCapacityPoolForVersion recomputes used/frozen/overflow tonnage
// for every bucket in a version by SQL aggregation over plan_items, never
// by loading rows into memory — used after version activation (spec.md
// §4.8's "Version activation" step).
func (s *Store) RecomputeCapacityPoolForVersion(versionID string) error {
	_, err := s.db.Exec(
		`UPDATE capacity_pool SET
			used_capacity_t = COALESCE((SELECT SUM(weight_t) FROM plan_items
				WHERE plan_items.version_id = capacity_pool.version_id
				  AND plan_items.machine_code = capacity_pool.machine_code
				  AND plan_items.plan_date = capacity_pool.plan_date), 0),
			frozen_capacity_t = COALESCE((SELECT SUM(weight_t) FROM plan_items
				WHERE plan_items.version_id = capacity_pool.version_id
				  AND plan_items.machine_code = capacity_pool.machine_code
				  AND plan_items.plan_date = capacity_pool.plan_date
				  AND plan_items.locked_in_plan = 1), 0)
		 WHERE capacity_pool.version_id = ?`, versionID,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "recompute capacity pool tonnage")
	}
	_, err = s.db.Exec(
		`UPDATE capacity_pool SET overflow_t = MAX(0, used_capacity_t - limit_capacity_t) WHERE version_id = ?`, versionID,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "recompute capacity pool overflow")
	}
	return nil
}

// ListCapacityPoolForVersion returns every bucket for a version, ordered
// by machine then date.
func (s *Store) ListCapacityPoolForVersion(versionID string) ([]domain.CapacityPool, error) {
	rows, err := s.db.Query(
		`SELECT version_id, machine_code, plan_date, target_capacity_t, limit_capacity_t, used_capacity_t, overflow_t, frozen_capacity_t, accumulated_tonnage_t, roll_campaign_id
		 FROM capacity_pool WHERE version_id = ? ORDER BY machine_code, plan_date`, versionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "list capacity pool")
	}
	defer rows.Close()

	var out []domain.CapacityPool
	for rows.Next() {
		var c domain.CapacityPool
		if err := rows.Scan(&c.VersionID, &c.MachineCode, &c.PlanDate, &c.TargetCapacityT, &c.LimitCapacityT, &c.UsedCapacityT, &c.OverflowT, &c.FrozenCapacityT, &c.AccumulatedTonnageT, &c.RollCampaignID); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "scan capacity pool row")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
