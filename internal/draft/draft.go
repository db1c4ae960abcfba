// Package draft is the Strategy-Draft Manager: it runs dry-run recalcs
// for a set of candidate strategies, diffs each result against the
// plan's current active version, and persists the previews as
// TTL-bounded StrategyDraft rows a planner can later publish into a
// real version (spec.md §4.9).
package draft

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/audit"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/events"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/logging"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/recalc"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/store"
)

// mustMarshalJSON serializes v to a JSON string, returning "null" on any
// (practically unreachable) marshal failure rather than propagating it
// into a draft's summary/diff persistence path.
func mustMarshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// DiffItem is one material's change between a draft's computed result
// and the plan's base version, sorted (change_type, plan_date,
// machine_code, material_id) per spec.md §4.9.3.
type DiffItem struct {
	ChangeType      domain.ChangeType
	MaterialID      string
	MachineCode     string
	PlanDate        time.Time
	FromMachineCode string    `json:",omitempty"`
	FromPlanDate    time.Time `json:",omitempty"`
}

// Manager owns draft generation, publication, listing and cleanup.
type Manager struct {
	store  *store.Store
	cfg    *config.Config
	recalc *recalc.Engine
	audit  *audit.Writer
	pub    events.Publisher
}

// New builds a draft Manager over the given store, configuration, and
// the recalc Engine it delegates dry-run and production runs to.
func New(s *store.Store, cfg *config.Config, re *recalc.Engine, pub events.Publisher) *Manager {
	return &Manager{store: s, cfg: cfg, recalc: re, audit: audit.NewWriter(s), pub: pub}
}

// GenerateRequest is one strategy-draft preview request, possibly
// spanning multiple candidate strategies in one call.
type GenerateRequest struct {
	PlanID       string
	BaseDate     time.Time
	WindowDays   int
	StrategyKeys []string
	Operator     string
	Title        string
}

// GenerateResult is one strategy's persisted preview outcome.
type GenerateResult struct {
	DraftID      string
	StrategyKey  string
	AddedCount   int
	MovedCount   int
	SqueezedOut  int
	Truncated    bool
	Warning      string
}

func dedupeStrategies(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	var out []string
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Generate runs a dry-run recalc per de-duplicated strategy key and
// persists each as a draft. The base version must be the plan's current
// ACTIVE version, and the window is capped at cfg.Draft.MaxWindowDays
// (spec.md §4.9: "base_version_id equals plan's current ACTIVE version").
func (m *Manager) Generate(ctx context.Context, req GenerateRequest) ([]GenerateResult, error) {
	active, err := m.store.ActiveVersion(req.PlanID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBusinessRuleViolation, err, "plan has no active version to draft against")
	}

	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = m.cfg.Recalc.DefaultWindowDays
	}
	if windowDays > m.cfg.Draft.MaxWindowDays {
		windowDays = m.cfg.Draft.MaxWindowDays
	}
	windowEnd := req.BaseDate.AddDate(0, 0, windowDays)

	base, err := m.store.ListPlanItemsForVersionInRange(active.VersionID, req.BaseDate, windowEnd)
	if err != nil {
		return nil, err
	}
	baseByID := make(map[string]domain.PlanItem, len(base))
	for _, it := range base {
		baseByID[it.MaterialID] = it
	}

	strategies := dedupeStrategies(req.StrategyKeys)
	now := time.Now().UTC()
	var results []GenerateResult

	for _, strategyKey := range strategies {
		resp, err := m.recalc.Run(ctx, recalc.Request{
			PlanID: req.PlanID, BaseDate: req.BaseDate, WindowDaysOverride: windowDays,
			StrategyKey: strategyKey, Operator: req.Operator, Mode: recalc.ModeDryRun,
		})
		if err != nil {
			return results, err
		}

		diff := diffAgainstBase(baseByID, resp.PlanItems, m.cfg.Draft.DiffPreviewCap)

		summary := map[string]any{
			"added":        countChange(diff.items, domain.ChangeAdded),
			"moved":        countChange(diff.items, domain.ChangeMoved),
			"squeezed_out": countChange(diff.items, domain.ChangeSqueezedOut),
			"truncated":    diff.truncated,
			"warning":      resp.Warning,
		}

		d := domain.StrategyDraft{
			DraftID: uuid.NewString(), BaseVersionID: active.VersionID,
			PlanDateFrom: req.BaseDate, PlanDateTo: windowEnd,
			StrategyKey: strategyKey, BaseStrategy: strategyKey, Title: req.Title,
			Status: domain.DraftStatusDraft, CreatedAt: now, ExpiresAt: now.Add(m.cfg.Draft.TTLDuration()),
			SummaryJSON: mustMarshalJSON(summary), DiffItemsJSON: mustMarshalJSON(diff.items),
			DiffItemsTotal: diff.total, DiffItemsTruncated: diff.truncated,
		}
		if err := m.store.CreateDraft(d); err != nil {
			return results, err
		}

		results = append(results, GenerateResult{
			DraftID: d.DraftID, StrategyKey: strategyKey,
			AddedCount: countChange(diff.items, domain.ChangeAdded), MovedCount: countChange(diff.items, domain.ChangeMoved),
			SqueezedOut: countChange(diff.items, domain.ChangeSqueezedOut), Truncated: diff.truncated, Warning: resp.Warning,
		})
	}

	return results, nil
}

type diffResult struct {
	items     []DiffItem
	total     int
	truncated bool
}

// diffAgainstBase classifies every material's change between the base
// version's persisted window and a candidate result into
// MOVED/ADDED/SQUEEZED_OUT, sorted and capped per spec.md §4.9.3.
func diffAgainstBase(baseByID map[string]domain.PlanItem, candidate []domain.PlanItem, maxItems int) diffResult {
	candByID := make(map[string]domain.PlanItem, len(candidate))
	for _, it := range candidate {
		candByID[it.MaterialID] = it
	}

	var items []DiffItem
	for id, c := range candByID {
		b, existed := baseByID[id]
		switch {
		case !existed:
			items = append(items, DiffItem{ChangeType: domain.ChangeAdded, MaterialID: id, MachineCode: c.MachineCode, PlanDate: c.PlanDate})
		case b.MachineCode != c.MachineCode || !b.PlanDate.Equal(c.PlanDate):
			items = append(items, DiffItem{
				ChangeType: domain.ChangeMoved, MaterialID: id, MachineCode: c.MachineCode, PlanDate: c.PlanDate,
				FromMachineCode: b.MachineCode, FromPlanDate: b.PlanDate,
			})
		}
	}
	for id, b := range baseByID {
		if _, ok := candByID[id]; !ok {
			items = append(items, DiffItem{ChangeType: domain.ChangeSqueezedOut, MaterialID: id, FromMachineCode: b.MachineCode, FromPlanDate: b.PlanDate})
		}
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ra, rb := domain.ChangeTypeRank(a.ChangeType), domain.ChangeTypeRank(b.ChangeType); ra != rb {
			return ra < rb
		}
		if !a.PlanDate.Equal(b.PlanDate) {
			return a.PlanDate.Before(b.PlanDate)
		}
		if a.MachineCode != b.MachineCode {
			return a.MachineCode < b.MachineCode
		}
		return a.MaterialID < b.MaterialID
	})

	total := len(items)
	truncated := false
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
		truncated = true
	}
	return diffResult{items: items, total: total, truncated: truncated}
}

func countChange(items []DiffItem, ct domain.ChangeType) int {
	n := 0
	for _, it := range items {
		if it.ChangeType == ct {
			n++
		}
	}
	return n
}

// PublishRequest is a request to turn a stored draft into a real,
// persisted recalc version.
type PublishRequest struct {
	DraftID  string
	Operator string
}

// PublishResponse reports the version produced by publishing a draft.
type PublishResponse struct {
	VersionID string
}

// Publish claims a draft's publish lock, re-verifies its base version is
// still the plan's active version, then runs a production recalc with
// the draft's stored strategy profile (spec.md §4.9's publish
// procedure: expire-check, try_lock_for_publish, re-verify, recalc,
// APPLY_STRATEGY_DRAFT log).
func (m *Manager) Publish(ctx context.Context, req PublishRequest) (PublishResponse, error) {
	now := time.Now().UTC()
	if _, err := m.store.ExpireStaleDrafts(now); err != nil {
		logging.Get(logging.CategoryDraft).Warn("expire stale drafts failed before publish: %v", err)
	}

	d, err := m.store.GetDraft(req.DraftID)
	if err != nil {
		return PublishResponse{}, err
	}
	if d.Status == domain.DraftStatusExpired {
		return PublishResponse{}, apperrors.BusinessRuleViolationf("draft %s has expired", req.DraftID)
	}
	if d.Status == domain.DraftStatusPublished {
		return PublishResponse{}, apperrors.BusinessRuleViolationf("draft %s was already published as version %s", req.DraftID, d.PublishedAsVersionID)
	}

	if err := m.store.AcquireDraftLock(req.DraftID, req.Operator, m.cfg.Draft.LockStaleAfterDuration()); err != nil {
		return PublishResponse{}, err
	}

	baseVersion, err := m.store.GetVersion(d.BaseVersionID)
	if err != nil {
		_ = m.store.ReleaseDraftLock(req.DraftID)
		return PublishResponse{}, err
	}
	active, err := m.store.ActiveVersion(baseVersion.PlanID)
	if err != nil {
		_ = m.store.ReleaseDraftLock(req.DraftID)
		return PublishResponse{}, err
	}
	if active.VersionID != d.BaseVersionID {
		_ = m.store.ReleaseDraftLock(req.DraftID)
		return PublishResponse{}, apperrors.VersionConflictf("draft %s's base version %s has drifted from the plan's active version %s", req.DraftID, d.BaseVersionID, active.VersionID)
	}

	windowDays := int(d.PlanDateTo.Sub(d.PlanDateFrom).Hours() / 24)
	resp, err := m.recalc.Run(ctx, recalc.Request{
		PlanID: baseVersion.PlanID, BaseDate: d.PlanDateFrom, WindowDaysOverride: windowDays,
		StrategyKey: d.StrategyKey, Operator: req.Operator, Mode: recalc.ModeProduction, AutoActivate: true,
	})
	if err != nil {
		_ = m.store.ReleaseDraftLock(req.DraftID)
		return PublishResponse{}, err
	}

	if err := m.store.PublishDraft(req.DraftID, resp.VersionID); err != nil {
		return PublishResponse{}, err
	}

	m.audit.RecordApplyStrategyDraft(resp.VersionID, req.Operator, req.DraftID)
	events.PublishBestEffort(ctx, m.pub, events.ScheduleEvent{VersionID: resp.VersionID, Type: events.TypePlanItemChanged, Scope: events.Scope{Full: true}, Reason: "apply_strategy_draft"})

	return PublishResponse{VersionID: resp.VersionID}, nil
}

// List returns the latest draft per strategy key for a base version,
// lazily marking stale rows EXPIRED first.
func (m *Manager) List(baseVersionID string) ([]domain.StrategyDraft, error) {
	if _, err := m.store.ExpireStaleDrafts(time.Now().UTC()); err != nil {
		logging.Get(logging.CategoryDraft).Warn("expire stale drafts failed before list: %v", err)
	}

	all, err := m.store.ListDrafts(baseVersionID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]domain.StrategyDraft, len(all))
	for _, d := range all {
		cur, ok := latest[d.StrategyKey]
		if !ok || d.CreatedAt.After(cur.CreatedAt) {
			latest[d.StrategyKey] = d
		}
	}

	out := make([]domain.StrategyDraft, 0, len(latest))
	for _, d := range latest {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyKey < out[j].StrategyKey })
	return out, nil
}

// Cleanup deletes EXPIRED/PUBLISHED drafts older than keepDays, clamped
// to [1,90] with a default of 7 (spec.md §4.9's cleanup procedure).
func (m *Manager) Cleanup(keepDays int) (int, error) {
	if keepDays <= 0 {
		keepDays = m.cfg.Draft.DefaultKeepDays
	}
	if keepDays < 1 {
		keepDays = 1
	}
	if keepDays > 90 {
		keepDays = 90
	}
	return m.store.CleanupDrafts(keepDays, time.Now().UTC())
}
