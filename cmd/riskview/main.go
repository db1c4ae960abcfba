package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/store"
)

func main() {
	configPath := flag.String("config", "rollsched.yaml", "path to the YAML config file")
	planID := flag.String("plan", "", "plan id to watch (required)")
	flag.Parse()

	if *planID == "" {
		fmt.Fprintln(os.Stderr, "riskview: --plan is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "riskview: load config: %v\n", err)
		os.Exit(1)
	}

	s, err := store.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "riskview: open store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	active, err := s.ActiveVersion(*planID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "riskview: plan %s has no active version: %v\n", *planID, err)
		os.Exit(1)
	}

	p := tea.NewProgram(NewModel(s, active.VersionID), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "riskview: %v\n", err)
		os.Exit(1)
	}
}
