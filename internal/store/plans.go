package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// CreatePlan inserts a new Plan row.
func (s *Store) CreatePlan(p domain.Plan) error {
	_, err := s.db.Exec(
		`INSERT INTO plans (plan_id, name, plan_type, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.PlanID, p.Name, string(p.PlanType), p.CreatedBy, p.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "create plan")
	}
	return nil
}

// GetPlan fetches a Plan by id.
func (s *Store) GetPlan(planID string) (domain.Plan, error) {
	var p domain.Plan
	var planType string
	row := s.db.QueryRow(`SELECT plan_id, name, plan_type, created_by, created_at FROM plans WHERE plan_id = ?`, planID)
	if err := row.Scan(&p.PlanID, &p.Name, &planType, &p.CreatedBy, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, apperrors.NotFoundf("plan %s not found", planID)
		}
		return p, apperrors.Wrap(apperrors.KindDatabaseError, err, "get plan")
	}
	p.PlanType = domain.PlanType(planType)
	return p, nil
}

// CreateVersionWithNextVersionNo inserts a new PlanVersion, assigning the
// next version_no for v.PlanID inside a transaction so concurrent creates
// never collide (spec.md invariant: version numbers are dense per plan).
func (s *Store) CreateVersionWithNextVersionNo(v domain.PlanVersion) (domain.PlanVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return v, apperrors.Wrap(apperrors.KindDatabaseError, err, "begin tx")
	}
	defer tx.Rollback()

	var maxNo sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(version_no) FROM plan_versions WHERE plan_id = ?`, v.PlanID).Scan(&maxNo); err != nil {
		return v, apperrors.Wrap(apperrors.KindDatabaseError, err, "read max version_no")
	}
	v.VersionNo = int(maxNo.Int64) + 1

	snapshot, err := json.Marshal(v.ConfigSnapshot)
	if err != nil {
		return v, apperrors.Wrap(apperrors.KindInternalError, err, "marshal config snapshot")
	}

	_, err = tx.Exec(
		`INSERT INTO plan_versions
			(version_id, plan_id, version_no, status, frozen_from_date, recalc_window_days, config_snapshot, revision, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VersionID, v.PlanID, v.VersionNo, string(v.Status), v.FrozenFromDate, v.RecalcWindowDays, string(snapshot), v.Revision, v.CreatedBy, v.CreatedAt,
	)
	if err != nil {
		return v, apperrors.Wrap(apperrors.KindDatabaseError, err, "insert plan version")
	}

	if err := tx.Commit(); err != nil {
		return v, apperrors.Wrap(apperrors.KindDatabaseError, err, "commit tx")
	}
	return v, nil
}

// GetVersion fetches a PlanVersion by id.
func (s *Store) GetVersion(versionID string) (domain.PlanVersion, error) {
	var v domain.PlanVersion
	var status, snapshot string
	row := s.db.QueryRow(
		`SELECT version_id, plan_id, version_no, status, frozen_from_date, recalc_window_days, config_snapshot, revision, created_by, created_at
		 FROM plan_versions WHERE version_id = ?`, versionID)
	if err := row.Scan(&v.VersionID, &v.PlanID, &v.VersionNo, &status, &v.FrozenFromDate, &v.RecalcWindowDays, &snapshot, &v.Revision, &v.CreatedBy, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return v, apperrors.NotFoundf("plan version %s not found", versionID)
		}
		return v, apperrors.Wrap(apperrors.KindDatabaseError, err, "get plan version")
	}
	v.Status = domain.VersionStatus(status)
	if err := json.Unmarshal([]byte(snapshot), &v.ConfigSnapshot); err != nil {
		return v, apperrors.Wrap(apperrors.KindInternalError, err, "unmarshal config snapshot")
	}
	return v, nil
}

// ActiveVersion returns the single ACTIVE PlanVersion for a plan, if any.
func (s *Store) ActiveVersion(planID string) (domain.PlanVersion, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM plan_versions WHERE plan_id = ? AND status = ?`, planID, string(domain.VersionActive)).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlanVersion{}, apperrors.NotFoundf("no active version for plan %s", planID)
	}
	if err != nil {
		return domain.PlanVersion{}, apperrors.Wrap(apperrors.KindDatabaseError, err, "get active version")
	}
	return s.GetVersion(versionID)
}

// ActivateVersion archives any currently ACTIVE version of the same plan
// and promotes versionID to ACTIVE, all inside one transaction — this is
// the at-most-one-active-version invariant.
func (s *Store) ActivateVersion(versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "begin tx")
	}
	defer tx.Rollback()

	var planID string
	if err := tx.QueryRow(`SELECT plan_id FROM plan_versions WHERE version_id = ?`, versionID).Scan(&planID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFoundf("plan version %s not found", versionID)
		}
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "lookup plan_id")
	}

	if _, err := tx.Exec(
		`UPDATE plan_versions SET status = ? WHERE plan_id = ? AND status = ? AND version_id != ?`,
		string(domain.VersionArchived), planID, string(domain.VersionActive), versionID,
	); err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "archive previous active version")
	}

	if _, err := tx.Exec(`UPDATE plan_versions SET status = ? WHERE version_id = ?`, string(domain.VersionActive), versionID); err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "activate version")
	}

	return tx.Commit()
}

// RollbackToVersion archives the currently ACTIVE version and reactivates
// targetVersionID, recording an action_log entry.
func (s *Store) RollbackToVersion(targetVersionID, actor string) error {
	if err := s.ActivateVersion(targetVersionID); err != nil {
		return err
	}
	v, err := s.GetVersion(targetVersionID)
	if err != nil {
		return err
	}
	return s.AppendActionLog(ActionLogEntry{
		ActionType: "ROLLBACK",
		Actor:      actor,
		VersionID:  &v.VersionID,
		Detail:     fmt.Sprintf("rolled back to version_no=%d", v.VersionNo),
	})
}

// UpdateConfigSnapshot overwrites a PlanVersion's config_snapshot. Rollback
// calls it with the target version's own snapshot, rewriting that row in
// place; the store keeps no separate plan-level working configuration
// (spec.md §4.8, scenario S5's "note" quirk: callers decide
// whether to call this at all before invoking it).
func (s *Store) UpdateConfigSnapshot(versionID string, snapshot map[string]string) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternalError, err, "marshal config snapshot")
	}
	res, err := s.db.Exec(`UPDATE plan_versions SET config_snapshot = ? WHERE version_id = ?`, string(data), versionID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "update config snapshot")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "rows affected")
	}
	if n == 0 {
		return apperrors.NotFoundf("plan version %s not found", versionID)
	}
	return nil
}

// DeleteVersion removes a PlanVersion and its plan_items, capacity_pool,
// roller_campaigns, risk_snapshots and path_override_pending rows, but
// never touches action_log (audit trail outlives the version it describes).
func (s *Store) DeleteVersion(versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "begin tx")
	}
	defer tx.Rollback()

	for _, table := range []string{
		"plan_items", "capacity_pool", "roller_campaigns", "risk_snapshots", "path_override_pending",
	} {
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE version_id = ?`, table), versionID); err != nil {
			return apperrors.Wrapf(apperrors.KindDatabaseError, err, "delete from %s", table)
		}
	}
	if _, err := tx.Exec(`UPDATE strategy_drafts SET published_as_version_id = '' WHERE published_as_version_id = ?`, versionID); err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "clear draft publish refs")
	}
	if _, err := tx.Exec(`UPDATE action_log SET version_id = NULL WHERE version_id = ?`, versionID); err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "detach action_log from version")
	}
	if _, err := tx.Exec(`DELETE FROM plan_versions WHERE version_id = ?`, versionID); err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "delete plan version")
	}

	return tx.Commit()
}

// BumpRevision increments and returns a PlanVersion's revision counter,
// failing with VersionConflict if expectedRevision does not match the
// stored one (optimistic concurrency for concurrent recalc/move calls).
func (s *Store) BumpRevision(versionID string, expectedRevision int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE plan_versions SET revision = revision + 1 WHERE version_id = ? AND revision = ?`,
		versionID, expectedRevision,
	)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabaseError, err, "bump revision")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabaseError, err, "rows affected")
	}
	if n == 0 {
		var actual int
		_ = s.db.QueryRow(`SELECT revision FROM plan_versions WHERE version_id = ?`, versionID).Scan(&actual)
		return actual, apperrors.New(apperrors.KindStalePlanRevision, "plan revision changed concurrently").
			WithDetails(map[string]any{"expected": expectedRevision, "actual": actual})
	}
	return expectedRevision + 1, nil
}
