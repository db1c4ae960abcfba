package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/config"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/recalc"
)

var watchPlanID string

// watchCmd reloads cfg whenever the config file changes on disk and
// re-runs a production recalc against the plan's active version using
// the freshly-loaded configuration, so operators can tune machine
// capacities, urgency thresholds, or path rules without restarting the
// process.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "hot-reload the config file and recalc the plan on every change",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, err := config.NewWatcher(configPath, func(newCfg *config.Config, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "config reload failed: %v\n", err)
				return
			}
			cfg = newCfg
			engine = recalc.New(db, cfg, pub)

			active, err := db.ActiveVersion(watchPlanID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "watch: no active version for plan %s: %v\n", watchPlanID, err)
				return
			}
			windowDays := active.RecalcWindowDays
			if windowDays <= 0 {
				windowDays = cfg.Recalc.DefaultWindowDays
			}
			resp, err := engine.RunPartial(ctx, recalc.PartialRequest{
				VersionID: active.VersionID, From: active.FrozenFromDate, To: active.FrozenFromDate.AddDate(0, 0, windowDays),
				StrategyKey: "balanced", Operator: "config-watch",
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "watch: recalc failed: %v\n", err)
				return
			}
			fmt.Printf("config changed, recalculated version=%s placed=%d\n", resp.VersionID, resp.PlanItemsCount)
		})
		if err != nil {
			return fmt.Errorf("start config watcher: %w", err)
		}
		defer w.Close()

		fmt.Printf("watching %s for changes, plan=%s (ctrl-c to stop)\n", configPath, watchPlanID)
		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchPlanID, "plan", "", "plan id to recalc on config changes (required)")
	_ = watchCmd.MarkFlagRequired("plan")
}
