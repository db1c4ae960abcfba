package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/apperrors"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreatePlan(t *testing.T, s *Store) domain.Plan {
	t.Helper()
	p := domain.Plan{PlanID: uuid.NewString(), Name: "baseline", PlanType: domain.PlanTypeBaseline, CreatedBy: "tester", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePlan(p))
	return p
}

func TestCreateVersionAssignsDenseVersionNumbers(t *testing.T) {
	s := newTestStore(t)
	p := mustCreatePlan(t, s)

	v1, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: p.PlanID, Status: domain.VersionDraft,
		FrozenFromDate: time.Now().UTC(), RecalcWindowDays: 14, CreatedBy: "tester", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, v1.VersionNo)

	v2, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: p.PlanID, Status: domain.VersionDraft,
		FrozenFromDate: time.Now().UTC(), RecalcWindowDays: 14, CreatedBy: "tester", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, 2, v2.VersionNo)
}

func TestActivateVersionIsAtMostOneActive(t *testing.T) {
	s := newTestStore(t)
	p := mustCreatePlan(t, s)

	v1, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: p.PlanID, Status: domain.VersionDraft,
		FrozenFromDate: time.Now().UTC(), RecalcWindowDays: 14, CreatedBy: "tester", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	v2, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: p.PlanID, Status: domain.VersionDraft,
		FrozenFromDate: time.Now().UTC(), RecalcWindowDays: 14, CreatedBy: "tester", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, s.ActivateVersion(v1.VersionID))
	require.NoError(t, s.ActivateVersion(v2.VersionID))

	got1, err := s.GetVersion(v1.VersionID)
	require.NoError(t, err)
	require.Equal(t, domain.VersionArchived, got1.Status)

	got2, err := s.GetVersion(v2.VersionID)
	require.NoError(t, err)
	require.Equal(t, domain.VersionActive, got2.Status)

	active, err := s.ActiveVersion(p.PlanID)
	require.NoError(t, err)
	require.Equal(t, v2.VersionID, active.VersionID)
}

func TestBumpRevisionDetectsStaleConflict(t *testing.T) {
	s := newTestStore(t)
	p := mustCreatePlan(t, s)

	v, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: p.PlanID, Status: domain.VersionDraft,
		FrozenFromDate: time.Now().UTC(), RecalcWindowDays: 14, CreatedBy: "tester", CreatedAt: time.Now().UTC(), Revision: 0,
	})
	require.NoError(t, err)

	next, err := s.BumpRevision(v.VersionID, 0)
	require.NoError(t, err)
	require.Equal(t, 1, next)

	_, err = s.BumpRevision(v.VersionID, 0)
	require.Error(t, err)
	require.True(t, apperrors.IsKind(err, apperrors.KindStalePlanRevision))
}

func TestUpsertPlanItemsRoundTrips(t *testing.T) {
	s := newTestStore(t)
	p := mustCreatePlan(t, s)
	v, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: p.PlanID, Status: domain.VersionDraft,
		FrozenFromDate: time.Now().UTC(), RecalcWindowDays: 14, CreatedBy: "tester", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	items := []domain.PlanItem{
		{VersionID: v.VersionID, MaterialID: "M1", MachineCode: "H032", PlanDate: day, SeqNo: 1, WeightT: 20, SourceType: domain.SourceCalc, UrgentLevel: domain.UrgencyL1, SchedState: domain.StateScheduled},
		{VersionID: v.VersionID, MaterialID: "M2", MachineCode: "H032", PlanDate: day, SeqNo: 2, WeightT: 22, SourceType: domain.SourceCalc, UrgentLevel: domain.UrgencyL0, SchedState: domain.StateScheduled},
	}
	require.NoError(t, s.UpsertPlanItems(items))

	got, err := s.ListPlanItemsForVersion(v.VersionID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "M1", got[0].MaterialID)
	require.Equal(t, 1, got[0].SeqNo)
}

func TestDraftLockAndPublish(t *testing.T) {
	s := newTestStore(t)
	p := mustCreatePlan(t, s)
	v, err := s.CreateVersionWithNextVersionNo(domain.PlanVersion{
		VersionID: uuid.NewString(), PlanID: p.PlanID, Status: domain.VersionActive,
		FrozenFromDate: time.Now().UTC(), RecalcWindowDays: 14, CreatedBy: "tester", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	d := domain.StrategyDraft{
		DraftID: uuid.NewString(), BaseVersionID: v.VersionID, PlanDateFrom: now, PlanDateTo: now.AddDate(0, 0, 7),
		StrategyKey: "balanced", Status: domain.DraftStatusDraft, CreatedAt: now, ExpiresAt: now.Add(72 * time.Hour),
	}
	require.NoError(t, s.CreateDraft(d))

	require.NoError(t, s.AcquireDraftLock(d.DraftID, "alice", 10*time.Minute))
	err = s.AcquireDraftLock(d.DraftID, "bob", 10*time.Minute)
	require.Error(t, err)
	require.True(t, apperrors.IsKind(err, apperrors.KindBusinessRuleViolation))

	require.NoError(t, s.PublishDraft(d.DraftID, "new-version-id"))
	got, err := s.GetDraft(d.DraftID)
	require.NoError(t, err)
	require.Equal(t, domain.DraftStatusPublished, got.Status)
	require.Equal(t, "new-version-id", got.PublishedAsVersionID)

	err = s.PublishDraft(d.DraftID, "again")
	require.Error(t, err)
	require.True(t, apperrors.IsKind(err, apperrors.KindBusinessRuleViolation))
}
