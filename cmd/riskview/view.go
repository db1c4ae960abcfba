package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	focusStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62"))
	blurStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	riskColor   = map[domain.RiskLevel]string{
		domain.RiskLow:      "10",
		domain.RiskMedium:   "11",
		domain.RiskHigh:     "208",
		domain.RiskCritical: "196",
	}
)

func riskBadge(level domain.RiskLevel) string {
	color, ok := riskColor[level]
	if !ok {
		color = "246"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render(string(level))
}

func (m Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("riskview: failed to load data: %v\n\npress q to quit, r to retry\n", m.err)
	}
	if m.loading && len(m.riskList.Items()) == 0 {
		return fmt.Sprintf("\n  %s loading version %s ...\n", m.spinner.View(), m.versionID)
	}

	header := headerStyle.Render(fmt.Sprintf("riskview  version=%s  (tab switch, r refresh, q quit)", m.versionID))

	riskPane := blurStyle
	draftPane := blurStyle
	if m.focus == focusRisk {
		riskPane = focusStyle
	} else {
		draftPane = focusStyle
	}

	var legend strings.Builder
	for _, lvl := range []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical} {
		legend.WriteString(riskBadge(lvl))
		legend.WriteString("  ")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		riskPane.Render(m.riskList.View()),
		draftPane.Render(m.draftList.View()),
	)

	return lipgloss.JoinVertical(lipgloss.Left, header, legend.String(), body)
}
