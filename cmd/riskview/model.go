// Package main implements riskview, a read-only terminal dashboard over
// a plan's current RiskSnapshot rows and its open StrategyDraft diffs.
// It never writes to the database — all mutation goes through the
// rollsched CLI.
package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/store"
)

// riskItem adapts a RiskSnapshot to bubbles/list's list.Item interface.
type riskItem struct {
	snap domain.RiskSnapshot
}

func (i riskItem) Title() string {
	return fmt.Sprintf("%s  %s  %s", i.snap.MachineCode, i.snap.SnapshotDate.Format("2006-01-02"), i.snap.RiskLevel)
}

func (i riskItem) Description() string {
	return fmt.Sprintf("used %.1ft / limit %.1ft  urgent %.1ft  mature %.1ft  immature %.1ft",
		i.snap.UsedCapacityT, i.snap.LimitCapacityT, i.snap.UrgentTotalT, i.snap.MatureBacklogT, i.snap.ImmatureBacklogT)
}

func (i riskItem) FilterValue() string { return i.snap.MachineCode }

// draftItem adapts a StrategyDraft to bubbles/list's list.Item interface.
type draftItem struct {
	d domain.StrategyDraft
}

func (i draftItem) Title() string {
	return fmt.Sprintf("%s  %s", i.d.StrategyKey, i.d.Status)
}

func (i draftItem) Description() string {
	return fmt.Sprintf("draft=%s expires=%s diff_items=%d", i.d.DraftID, i.d.ExpiresAt.Format("2006-01-02 15:04"), i.d.DiffItemsTotal)
}

func (i draftItem) FilterValue() string { return i.d.StrategyKey }

type focusPane int

const (
	focusRisk focusPane = iota
	focusDrafts
)

// Model is the riskview bubbletea model: two side-by-side lists (risk
// snapshots, strategy drafts). NewModel builds a glamour renderer, but
// View renders no detail panel for the selected row.
type Model struct {
	store     *store.Store
	versionID string

	riskList   list.Model
	draftList  list.Model
	spinner    spinner.Model
	renderer   *glamour.TermRenderer

	focus   focusPane
	loading bool
	err     error
	width   int
	height  int
}

type dataLoadedMsg struct {
	snapshots []domain.RiskSnapshot
	drafts    []domain.StrategyDraft
	err       error
}

func loadData(s *store.Store, versionID string) tea.Cmd {
	return func() tea.Msg {
		snaps, err := s.ListRiskSnapshots(versionID)
		if err != nil {
			return dataLoadedMsg{err: err}
		}
		drafts, err := s.ListDrafts(versionID)
		if err != nil {
			return dataLoadedMsg{err: err}
		}
		return dataLoadedMsg{snapshots: snaps, drafts: drafts}
	}
}

// NewModel builds the initial riskview model for a plan's currently
// active version.
func NewModel(s *store.Store, versionID string) Model {
	riskDelegate := list.NewDefaultDelegate()
	draftDelegate := list.NewDefaultDelegate()

	rl := list.New(nil, riskDelegate, 0, 0)
	rl.Title = "Risk Snapshots"
	rl.SetShowHelp(false)

	dl := list.New(nil, draftDelegate, 0, 0)
	dl.Title = "Strategy Drafts"
	dl.SetShowHelp(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(60))

	return Model{
		store: s, versionID: versionID,
		riskList: rl, draftList: dl, spinner: sp, renderer: renderer,
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadData(m.store, m.versionID))
}

func refreshEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return refreshTickMsg{} })
}

type refreshTickMsg struct{}
