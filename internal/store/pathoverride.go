package store

import (
	"time"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// UpsertPathOverridePending records a path-rule violation that was let
// through pending human confirmation.
func (s *Store) UpsertPathOverridePending(p domain.PathOverridePending) error {
	_, err := s.db.Exec(
		`INSERT INTO path_override_pending
			(version_id, machine_code, plan_date, material_id, violation_type, urgent_level, width_mm, thickness_mm, anchor_width_mm, anchor_thickness_mm, width_delta_mm, thickness_delta_mm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id, machine_code, plan_date, material_id) DO UPDATE SET
			violation_type=excluded.violation_type, urgent_level=excluded.urgent_level, width_mm=excluded.width_mm,
			thickness_mm=excluded.thickness_mm, anchor_width_mm=excluded.anchor_width_mm, anchor_thickness_mm=excluded.anchor_thickness_mm,
			width_delta_mm=excluded.width_delta_mm, thickness_delta_mm=excluded.thickness_delta_mm`,
		p.VersionID, p.MachineCode, p.PlanDate, p.MaterialID, string(p.ViolationType), string(p.UrgentLevel),
		p.WidthMM, p.ThicknessMM, p.AnchorWidthMM, p.AnchorThicknessMM, p.WidthDeltaMM, p.ThicknessDeltaMM,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "upsert path override pending")
	}
	return nil
}

// ListPathOverridePending returns every pending override for a version.
func (s *Store) ListPathOverridePending(versionID string) ([]domain.PathOverridePending, error) {
	rows, err := s.db.Query(
		`SELECT version_id, machine_code, plan_date, material_id, violation_type, urgent_level, width_mm, thickness_mm, anchor_width_mm, anchor_thickness_mm, width_delta_mm, thickness_delta_mm
		 FROM path_override_pending WHERE version_id = ? ORDER BY machine_code, plan_date`, versionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "list path override pending")
	}
	defer rows.Close()

	var out []domain.PathOverridePending
	for rows.Next() {
		var p domain.PathOverridePending
		var violationType, urgentLevel string
		if err := rows.Scan(&p.VersionID, &p.MachineCode, &p.PlanDate, &p.MaterialID, &violationType, &urgentLevel, &p.WidthMM, &p.ThicknessMM, &p.AnchorWidthMM, &p.AnchorThicknessMM, &p.WidthDeltaMM, &p.ThicknessDeltaMM); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "scan path override pending row")
		}
		p.ViolationType = domain.ViolationType(violationType)
		p.UrgentLevel = domain.UrgencyLevel(urgentLevel)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClearPathOverridePendingInRange removes every pending override in
// [from, to) for a version before a recalc re-derives the window — a
// stale override from a superseded plan must not linger (spec.md §4.8).
func (s *Store) ClearPathOverridePendingInRange(versionID string, from, to time.Time) error {
	_, err := s.db.Exec(
		`DELETE FROM path_override_pending WHERE version_id = ? AND plan_date >= ? AND plan_date < ?`,
		versionID, from, to,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "clear path override pending in range")
	}
	return nil
}

// ClearPathOverridePending removes a resolved pending override.
func (s *Store) ClearPathOverridePending(versionID, machineCode string, planDate any, materialID string) error {
	_, err := s.db.Exec(
		`DELETE FROM path_override_pending WHERE version_id = ? AND machine_code = ? AND plan_date = ? AND material_id = ?`,
		versionID, machineCode, planDate, materialID,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "clear path override pending")
	}
	return nil
}
