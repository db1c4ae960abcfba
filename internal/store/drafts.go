package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// CreateDraft inserts a new StrategyDraft row.
func (s *Store) CreateDraft(d domain.StrategyDraft) error {
	_, err := s.db.Exec(
		`INSERT INTO strategy_drafts
			(draft_id, base_version_id, plan_date_from, plan_date_to, strategy_key, base_strategy, title, parameters_json, status, created_at, expires_at, locked_by, locked_at, published_as_version_id, summary_json, diff_items_json, diff_items_total, diff_items_truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DraftID, d.BaseVersionID, d.PlanDateFrom, d.PlanDateTo, d.StrategyKey, d.BaseStrategy, d.Title, d.ParametersJSON,
		string(d.Status), d.CreatedAt, d.ExpiresAt, d.LockedBy, d.LockedAt, d.PublishedAsVersionID, d.SummaryJSON, d.DiffItemsJSON, d.DiffItemsTotal, d.DiffItemsTruncated,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "create strategy draft")
	}
	return nil
}

// GetDraft fetches a StrategyDraft by id.
func (s *Store) GetDraft(draftID string) (domain.StrategyDraft, error) {
	var d domain.StrategyDraft
	var status string
	var lockedAt sql.NullTime
	row := s.db.QueryRow(
		`SELECT draft_id, base_version_id, plan_date_from, plan_date_to, strategy_key, base_strategy, title, parameters_json, status, created_at, expires_at, locked_by, locked_at, published_as_version_id, summary_json, diff_items_json, diff_items_total, diff_items_truncated
		 FROM strategy_drafts WHERE draft_id = ?`, draftID)
	if err := row.Scan(&d.DraftID, &d.BaseVersionID, &d.PlanDateFrom, &d.PlanDateTo, &d.StrategyKey, &d.BaseStrategy, &d.Title, &d.ParametersJSON,
		&status, &d.CreatedAt, &d.ExpiresAt, &d.LockedBy, &lockedAt, &d.PublishedAsVersionID, &d.SummaryJSON, &d.DiffItemsJSON, &d.DiffItemsTotal, &d.DiffItemsTruncated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, apperrors.NotFoundf("draft %s not found", draftID)
		}
		return d, apperrors.Wrap(apperrors.KindDatabaseError, err, "get draft")
	}
	d.Status = domain.DraftStatus(status)
	if lockedAt.Valid {
		t := lockedAt.Time
		d.LockedAt = &t
	}
	return d, nil
}

// ListDrafts returns drafts, optionally filtered to a base version.
func (s *Store) ListDrafts(baseVersionID string) ([]domain.StrategyDraft, error) {
	query := `SELECT draft_id, base_version_id, plan_date_from, plan_date_to, strategy_key, base_strategy, title, parameters_json, status, created_at, expires_at, locked_by, locked_at, published_as_version_id, summary_json, diff_items_json, diff_items_total, diff_items_truncated
		FROM strategy_drafts`
	var args []any
	if baseVersionID != "" {
		query += ` WHERE base_version_id = ?`
		args = append(args, baseVersionID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "list drafts")
	}
	defer rows.Close()

	var out []domain.StrategyDraft
	for rows.Next() {
		var d domain.StrategyDraft
		var status string
		var lockedAt sql.NullTime
		if err := rows.Scan(&d.DraftID, &d.BaseVersionID, &d.PlanDateFrom, &d.PlanDateTo, &d.StrategyKey, &d.BaseStrategy, &d.Title, &d.ParametersJSON,
			&status, &d.CreatedAt, &d.ExpiresAt, &d.LockedBy, &lockedAt, &d.PublishedAsVersionID, &d.SummaryJSON, &d.DiffItemsJSON, &d.DiffItemsTotal, &d.DiffItemsTruncated); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "scan draft row")
		}
		d.Status = domain.DraftStatus(status)
		if lockedAt.Valid {
			t := lockedAt.Time
			d.LockedAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AcquireDraftLock claims draftID for actor if it is unlocked or the
// existing lock is stale, returning a BusinessRuleViolation error if a
// live lock is held by someone else.
func (s *Store) AcquireDraftLock(draftID, actor string, staleAfter time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.GetDraft(draftID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if d.LockedBy != "" && d.LockedBy != actor && !d.LockStale(now, staleAfter) {
		return apperrors.BusinessRuleViolationf("draft %s is locked by %s", draftID, d.LockedBy)
	}

	_, err = s.db.Exec(`UPDATE strategy_drafts SET locked_by = ?, locked_at = ? WHERE draft_id = ?`, actor, now, draftID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "acquire draft lock")
	}
	return nil
}

// ReleaseDraftLock clears a draft's lock fields.
func (s *Store) ReleaseDraftLock(draftID string) error {
	_, err := s.db.Exec(`UPDATE strategy_drafts SET locked_by = '', locked_at = NULL WHERE draft_id = ?`, draftID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "release draft lock")
	}
	return nil
}

// PublishDraft marks a draft PUBLISHED and records the new version it
// produced. Fails if the draft is already PUBLISHED or EXPIRED.
func (s *Store) PublishDraft(draftID, publishedVersionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.GetDraft(draftID)
	if err != nil {
		return err
	}
	if d.Status != domain.DraftStatusDraft {
		return apperrors.BusinessRuleViolationf("draft %s is not in DRAFT status (got %s)", draftID, d.Status)
	}

	_, err = s.db.Exec(
		`UPDATE strategy_drafts SET status = ?, published_as_version_id = ?, locked_by = '', locked_at = NULL WHERE draft_id = ?`,
		string(domain.DraftStatusPublished), publishedVersionID, draftID,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "publish draft")
	}
	return nil
}

// ExpireStaleDrafts marks any DRAFT row past its expires_at as EXPIRED
// and returns how many rows changed.
func (s *Store) ExpireStaleDrafts(now time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE strategy_drafts SET status = ? WHERE status = ? AND expires_at < ?`,
		string(domain.DraftStatusExpired), string(domain.DraftStatusDraft), now,
	)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabaseError, err, "expire stale drafts")
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CleanupDrafts deletes EXPIRED/PUBLISHED drafts older than keepDays.
func (s *Store) CleanupDrafts(keepDays int, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -keepDays)
	res, err := s.db.Exec(
		`DELETE FROM strategy_drafts WHERE status IN (?, ?) AND created_at < ?`,
		string(domain.DraftStatusExpired), string(domain.DraftStatusPublished), cutoff,
	)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabaseError, err, "cleanup drafts")
	}
	n, err := res.RowsAffected()
	return int(n), err
}
