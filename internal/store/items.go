package store

import (
	"encoding/json"
	"time"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// UpsertPlanItems batch-writes plan items inside a single transaction —
// the recalc engine's per-day commit and the draft publish path both
// write whole buckets at once.
func (s *Store) UpsertPlanItems(items []domain.PlanItem) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO plan_items
			(version_id, material_id, machine_code, plan_date, seq_no, weight_t, source_type, locked_in_plan, force_release_in_plan, violation_flags, urgent_level, sched_state, assign_reason, steel_grade, width_mm, thickness_mm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id, material_id) DO UPDATE SET
			machine_code=excluded.machine_code, plan_date=excluded.plan_date, seq_no=excluded.seq_no, weight_t=excluded.weight_t,
			source_type=excluded.source_type, locked_in_plan=excluded.locked_in_plan, force_release_in_plan=excluded.force_release_in_plan,
			violation_flags=excluded.violation_flags, urgent_level=excluded.urgent_level, sched_state=excluded.sched_state,
			assign_reason=excluded.assign_reason, steel_grade=excluded.steel_grade, width_mm=excluded.width_mm, thickness_mm=excluded.thickness_mm`,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "prepare upsert plan item")
	}
	defer stmt.Close()

	for _, it := range items {
		flags, err := json.Marshal(it.ViolationFlags)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternalError, err, "marshal violation flags")
		}
		if _, err := stmt.Exec(
			it.VersionID, it.MaterialID, it.MachineCode, it.PlanDate, it.SeqNo, it.WeightT, string(it.SourceType),
			it.LockedInPlan, it.ForceReleaseInPlan, string(flags), string(it.UrgentLevel), string(it.SchedState),
			it.AssignReason, it.SteelGrade, it.WidthMM, it.ThicknessMM,
		); err != nil {
			return apperrors.Wrapf(apperrors.KindDatabaseError, err, "upsert plan item %s/%s", it.VersionID, it.MaterialID)
		}
	}

	return tx.Commit()
}

// DeletePlanItem removes a single plan item, used when the capacity
// filler squeezes a candidate back out of a full bucket.
func (s *Store) DeletePlanItem(versionID, materialID string) error {
	_, err := s.db.Exec(`DELETE FROM plan_items WHERE version_id = ? AND material_id = ?`, versionID, materialID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "delete plan item")
	}
	return nil
}

// ListPlanItemsForVersion returns every plan item for a version, ordered
// by machine/date/seq_no (bucket-then-sequence order).
func (s *Store) ListPlanItemsForVersion(versionID string) ([]domain.PlanItem, error) {
	return s.queryPlanItems(`SELECT version_id, material_id, machine_code, plan_date, seq_no, weight_t, source_type, locked_in_plan, force_release_in_plan, violation_flags, urgent_level, sched_state, assign_reason, steel_grade, width_mm, thickness_mm
		FROM plan_items WHERE version_id = ? ORDER BY machine_code, plan_date, seq_no`, versionID)
}

// ListPlanItemsInBucket returns the items placed on one (machine, date)
// bucket for a version, in seq_no order.
func (s *Store) ListPlanItemsInBucket(versionID, machineCode string, planDate any) ([]domain.PlanItem, error) {
	return s.queryPlanItems(`SELECT version_id, material_id, machine_code, plan_date, seq_no, weight_t, source_type, locked_in_plan, force_release_in_plan, violation_flags, urgent_level, sched_state, assign_reason, steel_grade, width_mm, thickness_mm
		FROM plan_items WHERE version_id = ? AND machine_code = ? AND plan_date = ? ORDER BY seq_no`, versionID, machineCode, planDate)
}

// ListPlanItemsForVersionInRange returns items for a version within
// [from, to), ordered bucket-then-sequence.
func (s *Store) ListPlanItemsForVersionInRange(versionID string, from, to time.Time) ([]domain.PlanItem, error) {
	return s.queryPlanItems(`SELECT version_id, material_id, machine_code, plan_date, seq_no, weight_t, source_type, locked_in_plan, force_release_in_plan, violation_flags, urgent_level, sched_state, assign_reason, steel_grade, width_mm, thickness_mm
		FROM plan_items WHERE version_id = ? AND plan_date >= ? AND plan_date < ? ORDER BY machine_code, plan_date, seq_no`, versionID, from, to)
}

// DeletePlanItemsInRange removes every item in [from, to) for a version,
// used by partial/cascade recalc before re-inserting frozen items and
// re-running the day loop over the partial window (spec.md §4.8).
func (s *Store) DeletePlanItemsInRange(versionID string, from, to time.Time) error {
	_, err := s.db.Exec(`DELETE FROM plan_items WHERE version_id = ? AND plan_date >= ? AND plan_date < ?`, versionID, from, to)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "delete plan items in range")
	}
	return nil
}

// CopyFrozenItems copies every locked_in_plan item before frozenFromDate
// from baseVersionID into newVersionID, rewriting source_type to FROZEN.
// Used by the Recalc Engine to seed a new version's frozen prefix
// (spec.md §4.8.3).
func (s *Store) CopyFrozenItems(baseVersionID, newVersionID string, frozenFromDate time.Time) (int, error) {
	res, err := s.db.Exec(
		`INSERT INTO plan_items
			(version_id, material_id, machine_code, plan_date, seq_no, weight_t, source_type, locked_in_plan, force_release_in_plan, violation_flags, urgent_level, sched_state, assign_reason, steel_grade, width_mm, thickness_mm)
		 SELECT ?, material_id, machine_code, plan_date, seq_no, weight_t, 'FROZEN', locked_in_plan, force_release_in_plan, violation_flags, urgent_level, sched_state, assign_reason, steel_grade, width_mm, thickness_mm
		 FROM plan_items WHERE version_id = ? AND locked_in_plan = 1 AND plan_date < ?`,
		newVersionID, baseVersionID, frozenFromDate,
	)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabaseError, err, "copy frozen items")
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) queryPlanItems(query string, args ...any) ([]domain.PlanItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "query plan items")
	}
	defer rows.Close()

	var out []domain.PlanItem
	for rows.Next() {
		var it domain.PlanItem
		var sourceType, urgentLevel, schedState, flags string
		if err := rows.Scan(&it.VersionID, &it.MaterialID, &it.MachineCode, &it.PlanDate, &it.SeqNo, &it.WeightT, &sourceType, &it.LockedInPlan, &it.ForceReleaseInPlan, &flags, &urgentLevel, &schedState, &it.AssignReason, &it.SteelGrade, &it.WidthMM, &it.ThicknessMM); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "scan plan item row")
		}
		it.SourceType = domain.SourceType(sourceType)
		it.UrgentLevel = domain.UrgencyLevel(urgentLevel)
		it.SchedState = domain.SchedState(schedState)
		if err := json.Unmarshal([]byte(flags), &it.ViolationFlags); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternalError, err, "unmarshal violation flags")
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
