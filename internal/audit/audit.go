// Package audit writes ActionLog rows on behalf of the engines that need
// to record an operator-visible trail, translating domain-shaped impact
// summaries into the store's append-only log (spec.md §3, §4.8).
package audit

import (
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/logging"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/store"
)

// Writer appends ActionLog rows, logging (never failing the caller's
// operation) on a write failure — auditing a successful op is less
// important than the op itself succeeding (spec.md §5).
type Writer struct {
	s *store.Store
}

// NewWriter wraps a Store for best-effort audit writes.
func NewWriter(s *store.Store) *Writer {
	return &Writer{s: s}
}

// RecordRecalc logs a completed recalc_full/simulate_recalc run.
func (w *Writer) RecordRecalc(versionID, actor, strategy string, windowDays int, impact map[string]any) {
	w.append(store.ActionLogEntry{
		ActionType:    "RECALC",
		Actor:         actor,
		VersionID:     &versionID,
		PayloadJSON:   map[string]any{"strategy": strategy, "window_days": windowDays},
		ImpactSummary: impact,
	})
}

// RecordRollback logs a rollback_version call.
func (w *Writer) RecordRollback(versionID, actor, reason string, configRestoreSkipped string) {
	w.append(store.ActionLogEntry{
		ActionType:    "ROLLBACK",
		Actor:         actor,
		VersionID:     &versionID,
		PayloadJSON:   map[string]any{"reason": reason},
		ImpactSummary: map[string]any{"config_restore_skipped": configRestoreSkipped},
	})
}

// RecordMoveItems logs a move_items call with the moved material list.
func (w *Writer) RecordMoveItems(versionID, actor string, mode string, materialIDs []string, reason string) {
	w.append(store.ActionLogEntry{
		ActionType:    "MOVE_ITEMS",
		Actor:         actor,
		VersionID:     &versionID,
		PayloadJSON:   map[string]any{"mode": mode, "materials": materialIDs, "reason": reason},
		ImpactSummary: map[string]any{"moved_count": len(materialIDs)},
	})
}

// RecordApplyStrategyDraft logs a successful draft publish.
func (w *Writer) RecordApplyStrategyDraft(publishedVersionID, actor, draftID string) {
	w.append(store.ActionLogEntry{
		ActionType:    "APPLY_STRATEGY_DRAFT",
		Actor:         actor,
		VersionID:     &publishedVersionID,
		PayloadJSON:   map[string]any{"draft_id": draftID},
		ImpactSummary: map[string]any{},
	})
}

func (w *Writer) append(e store.ActionLogEntry) {
	if err := w.s.AppendActionLog(e); err != nil {
		logging.Get(logging.CategoryStore).Warn("action log write failed for %s: %v", e.ActionType, err)
	}
}
