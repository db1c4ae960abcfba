// Package main implements the rollsched CLI - the operator-facing front
// end for the hot-rolling production scheduling engine.
//
// # File Index
//
//   - main.go        - entry point, rootCmd, global flags, engine wiring
//   - cmd_recalc.go  - recalcCmd, simulateCmd
//   - cmd_version.go - rollbackCmd, activateCmd, compareCmd
//   - cmd_move.go    - moveCmd
//   - cmd_draft.go   - draftCmd and its generate/list/publish/cleanup subcommands
//   - cmd_watch.go   - watchCmd, partial recalc on each config-file reload
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/draft"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/events"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/logging"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/recalc"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/store"
)

var (
	verbose    bool
	dbPath     string
	configPath string
	operator   string

	logger *zap.Logger

	cfg    *config.Config
	db     *store.Store
	pub    events.Publisher
	engine *recalc.Engine
	drafts *draft.Manager
)

var rootCmd = &cobra.Command{
	Use:   "rollsched",
	Short: "rollsched - hot-rolling finish line production scheduling engine",
	Long: `rollsched drives the day-by-day, machine-by-machine fill loop that
schedules hot-rolling finish-line production: eligibility and urgency
derivation, path-rule and roll-campaign continuity, capacity filling,
risk snapshots, and the recalc/draft/rollback lifecycle on top of it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "rollsched" {
			return nil
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("build zap logger: %w", err)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		if dbPath != "" {
			cfg.DatabasePath = dbPath
		}

		if err := logging.Initialize(".", cfg.Logging.ToSettings()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: file logging init failed: %v\n", err)
		}

		db, err = store.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}

		pub = events.NoopPublisher{}
		engine = recalc.New(db, cfg, pub)
		drafts = draft.New(db, cfg, engine, pub)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			_ = db.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the sqlite database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "rollsched.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&operator, "operator", "cli", "operator name recorded on action log entries")

	rootCmd.AddCommand(recalcCmd, simulateCmd, moveCmd, rollbackCmd, activateCmd, compareCmd, draftCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
