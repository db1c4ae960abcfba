package main

import (
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const refreshInterval = 10 * time.Second

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		listWidth := m.width / 2
		listHeight := m.height - 4
		m.riskList.SetSize(listWidth, listHeight)
		m.draftList.SetSize(m.width-listWidth, listHeight)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			if m.focus == focusRisk {
				m.focus = focusDrafts
			} else {
				m.focus = focusRisk
			}
			return m, nil
		case "r":
			m.loading = true
			return m, loadData(m.store, m.versionID)
		}

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, refreshEvery(refreshInterval)
		}
		m.err = nil
		items := make([]list.Item, 0, len(msg.snapshots))
		for _, s := range msg.snapshots {
			items = append(items, riskItem{snap: s})
		}
		m.riskList.SetItems(items)

		ditems := make([]list.Item, 0, len(msg.drafts))
		for _, d := range msg.drafts {
			ditems = append(ditems, draftItem{d: d})
		}
		m.draftList.SetItems(ditems)
		return m, refreshEvery(refreshInterval)

	case refreshTickMsg:
		m.loading = true
		return m, loadData(m.store, m.versionID)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if m.focus == focusRisk {
		m.riskList, cmd = m.riskList.Update(msg)
	} else {
		m.draftList, cmd = m.draftList.Update(msg)
	}
	return m, cmd
}
