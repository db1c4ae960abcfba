package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// ActionLogEntry is the write-side shape for AppendActionLog; callers fill
// in only the fields relevant to their action type.
type ActionLogEntry struct {
	ActionType     string
	Actor          string
	VersionID      *string
	PayloadJSON    any
	ImpactSummary  any
	MachineCode    *string
	DateRangeStart *time.Time
	DateRangeEnd   *time.Time
	Detail         string
}

// AppendActionLog writes one append-only audit record. The action log
// survives deletion of the version it references (spec.md §3).
func (s *Store) AppendActionLog(e ActionLogEntry) error {
	payload, err := json.Marshal(e.PayloadJSON)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternalError, err, "marshal action payload")
	}
	impact, err := json.Marshal(e.ImpactSummary)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternalError, err, "marshal impact summary")
	}

	var detail *string
	if e.Detail != "" {
		detail = &e.Detail
	}

	_, err = s.db.Exec(
		`INSERT INTO action_log
			(action_id, version_id, action_type, action_ts, actor, payload_json, impact_summary_json, machine_code, date_range_start, date_range_end, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), e.VersionID, e.ActionType, time.Now().UTC(), e.Actor, string(payload), string(impact), e.MachineCode, e.DateRangeStart, e.DateRangeEnd, detail,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "append action log")
	}
	return nil
}

// ActionLogForVersion returns all action_log rows referencing versionID,
// newest first.
func (s *Store) ActionLogForVersion(versionID string) ([]domain.ActionLog, error) {
	rows, err := s.db.Query(
		`SELECT action_id, version_id, action_type, action_ts, actor, payload_json, impact_summary_json, machine_code, date_range_start, date_range_end, detail
		 FROM action_log WHERE version_id = ? ORDER BY action_ts DESC`, versionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "query action log")
	}
	defer rows.Close()

	var out []domain.ActionLog
	for rows.Next() {
		var a domain.ActionLog
		var versionIDNull, machineCodeNull, detailNull sql.NullString
		var startNull, endNull sql.NullTime
		if err := rows.Scan(&a.ActionID, &versionIDNull, &a.ActionType, &a.ActionTS, &a.Actor, &a.PayloadJSON, &a.ImpactSummaryJSON, &machineCodeNull, &startNull, &endNull, &detailNull); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "scan action log row")
		}
		if versionIDNull.Valid {
			v := versionIDNull.String
			a.VersionID = &v
		}
		if machineCodeNull.Valid {
			v := machineCodeNull.String
			a.MachineCode = &v
		}
		if detailNull.Valid {
			v := detailNull.String
			a.Detail = &v
		}
		if startNull.Valid {
			v := startNull.Time
			a.DateRangeStart = &v
		}
		if endNull.Valid {
			v := endNull.Time
			a.DateRangeEnd = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
