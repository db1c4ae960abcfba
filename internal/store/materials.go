package store

import (
	"database/sql"
	"errors"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

// UpsertMaterialMaster inserts or replaces a MaterialMaster row.
func (s *Store) UpsertMaterialMaster(m domain.MaterialMaster) error {
	_, err := s.db.Exec(
		`INSERT INTO material_master
			(material_id, width_mm, thickness_mm, weight_t, steel_mark, due_date, next_machine_code, output_age_days_raw, stock_age_days, rush_flag, product_category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(material_id) DO UPDATE SET
			width_mm=excluded.width_mm, thickness_mm=excluded.thickness_mm, weight_t=excluded.weight_t,
			steel_mark=excluded.steel_mark, due_date=excluded.due_date, next_machine_code=excluded.next_machine_code,
			output_age_days_raw=excluded.output_age_days_raw, stock_age_days=excluded.stock_age_days,
			rush_flag=excluded.rush_flag, product_category=excluded.product_category`,
		m.MaterialID, m.WidthMM, m.ThicknessMM, m.WeightT, m.SteelMark, m.DueDate, m.NextMachineCode,
		m.OutputAgeDaysRaw, m.StockAgeDays, m.RushFlag, m.ProductCategory,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "upsert material master")
	}
	return nil
}

// GetMaterialMaster fetches a MaterialMaster by id.
func (s *Store) GetMaterialMaster(materialID string) (domain.MaterialMaster, error) {
	var m domain.MaterialMaster
	row := s.db.QueryRow(
		`SELECT material_id, width_mm, thickness_mm, weight_t, steel_mark, due_date, next_machine_code, output_age_days_raw, stock_age_days, rush_flag, product_category
		 FROM material_master WHERE material_id = ?`, materialID)
	if err := row.Scan(&m.MaterialID, &m.WidthMM, &m.ThicknessMM, &m.WeightT, &m.SteelMark, &m.DueDate, &m.NextMachineCode, &m.OutputAgeDaysRaw, &m.StockAgeDays, &m.RushFlag, &m.ProductCategory); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, apperrors.NotFoundf("material %s not found", materialID)
		}
		return m, apperrors.Wrap(apperrors.KindDatabaseError, err, "get material master")
	}
	return m, nil
}

// ListMaterialMasterByIDs batch-fetches MaterialMaster rows, skipping any
// id that does not exist rather than failing.
func (s *Store) ListMaterialMasterByIDs(ids []string) ([]domain.MaterialMaster, error) {
	out := make([]domain.MaterialMaster, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMaterialMaster(id)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// UpsertMaterialState inserts or replaces a MaterialState row.
func (s *Store) UpsertMaterialState(ms domain.MaterialState) error {
	_, err := s.db.Exec(
		`INSERT INTO material_state
			(material_id, sched_state, urgent_level, urgent_level_manual, ready_in_days, earliest_sched_date, rolling_output_age_days, in_frozen_zone, scheduled_date, scheduled_machine_code, seq_no)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(material_id) DO UPDATE SET
			sched_state=excluded.sched_state, urgent_level=excluded.urgent_level, urgent_level_manual=excluded.urgent_level_manual,
			ready_in_days=excluded.ready_in_days, earliest_sched_date=excluded.earliest_sched_date,
			rolling_output_age_days=excluded.rolling_output_age_days, in_frozen_zone=excluded.in_frozen_zone,
			scheduled_date=excluded.scheduled_date, scheduled_machine_code=excluded.scheduled_machine_code, seq_no=excluded.seq_no`,
		ms.MaterialID, string(ms.SchedState), string(ms.UrgentLevel), ms.UrgentLevelManual, ms.ReadyInDays, ms.EarliestSchedDate,
		ms.RollingOutputAgeDays, ms.InFrozenZone, ms.ScheduledDate, ms.ScheduledMachineCode, ms.SeqNo,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseError, err, "upsert material state")
	}
	return nil
}

// GetMaterialState fetches a MaterialState by material id.
func (s *Store) GetMaterialState(materialID string) (domain.MaterialState, error) {
	var ms domain.MaterialState
	var schedState, urgentLevel string
	row := s.db.QueryRow(
		`SELECT material_id, sched_state, urgent_level, urgent_level_manual, ready_in_days, earliest_sched_date, rolling_output_age_days, in_frozen_zone, scheduled_date, scheduled_machine_code, seq_no
		 FROM material_state WHERE material_id = ?`, materialID)
	if err := row.Scan(&ms.MaterialID, &schedState, &urgentLevel, &ms.UrgentLevelManual, &ms.ReadyInDays, &ms.EarliestSchedDate, &ms.RollingOutputAgeDays, &ms.InFrozenZone, &ms.ScheduledDate, &ms.ScheduledMachineCode, &ms.SeqNo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ms, apperrors.NotFoundf("material state %s not found", materialID)
		}
		return ms, apperrors.Wrap(apperrors.KindDatabaseError, err, "get material state")
	}
	ms.SchedState = domain.SchedState(schedState)
	ms.UrgentLevel = domain.UrgencyLevel(urgentLevel)
	return ms, nil
}

// ListMaterialStateBySchedStates fetches every MaterialState whose
// sched_state is in states, the candidate pool read for a recalc run.
func (s *Store) ListMaterialStateBySchedStates(states []domain.SchedState) ([]domain.MaterialState, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, st := range states {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	query := `SELECT material_id, sched_state, urgent_level, urgent_level_manual, ready_in_days, earliest_sched_date, rolling_output_age_days, in_frozen_zone, scheduled_date, scheduled_machine_code, seq_no
		FROM material_state WHERE sched_state IN (` + joinPlaceholders(placeholders) + `)`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "list material state")
	}
	defer rows.Close()

	var out []domain.MaterialState
	for rows.Next() {
		var ms domain.MaterialState
		var schedState, urgentLevel string
		if err := rows.Scan(&ms.MaterialID, &schedState, &urgentLevel, &ms.UrgentLevelManual, &ms.ReadyInDays, &ms.EarliestSchedDate, &ms.RollingOutputAgeDays, &ms.InFrozenZone, &ms.ScheduledDate, &ms.ScheduledMachineCode, &ms.SeqNo); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabaseError, err, "scan material state row")
		}
		ms.SchedState = domain.SchedState(schedState)
		ms.UrgentLevel = domain.UrgencyLevel(urgentLevel)
		out = append(out, ms)
	}
	return out, rows.Err()
}

func joinPlaceholders(ps []string) string {
	out := ""
	for i, p := range ps {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
