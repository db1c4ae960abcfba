package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/recalc"
)

var (
	rollbackPlanID   string
	rollbackTarget   string
	rollbackReason   string
	activateVersion  string
	compareVersionA  string
	compareVersionB  string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "reactivate a prior version, restoring its config snapshot where applicable",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := engine.Rollback(context.Background(), recalc.RollbackRequest{
			PlanID: rollbackPlanID, TargetVersionID: rollbackTarget, Operator: operator, Reason: rollbackReason,
		})
		if err != nil {
			return err
		}
		fmt.Printf("rolled back to version=%s\n", resp.VersionID)
		if resp.ConfigRestoreSkipped != "" {
			fmt.Printf("note: %s\n", resp.ConfigRestoreSkipped)
		}
		return nil
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "activate a specific version, archiving the plan's current active version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.Activate(context.Background(), activateVersion, operator); err != nil {
			return err
		}
		fmt.Printf("activated version=%s\n", activateVersion)
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "diff two versions of the same plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := engine.CompareVersions(compareVersionA, compareVersionB)
		if err != nil {
			return err
		}
		fmt.Printf("added=%d removed=%d moved=%d\n", res.AddedCount, res.RemovedCount, res.MovedCount)
		for date, delta := range res.RiskDeltas {
			fmt.Printf("  risk %s: %s\n", date, delta)
		}
		for key, delta := range res.CapacityDeltas {
			fmt.Printf("  capacity %s: %+.1ft\n", key, delta)
		}
		for _, c := range res.ConfigChanges {
			fmt.Printf("  config %s: %s -> %s\n", c.Key, c.OldValue, c.NewValue)
		}
		return nil
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackPlanID, "plan", "", "plan id (required)")
	rollbackCmd.Flags().StringVar(&rollbackTarget, "version", "", "target version id to roll back to (required)")
	rollbackCmd.Flags().StringVar(&rollbackReason, "reason", "", "reason for the rollback (required)")
	_ = rollbackCmd.MarkFlagRequired("plan")
	_ = rollbackCmd.MarkFlagRequired("version")
	_ = rollbackCmd.MarkFlagRequired("reason")

	activateCmd.Flags().StringVar(&activateVersion, "version", "", "version id to activate (required)")
	_ = activateCmd.MarkFlagRequired("version")

	compareCmd.Flags().StringVar(&compareVersionA, "a", "", "version id A (required)")
	compareCmd.Flags().StringVar(&compareVersionB, "b", "", "version id B (required)")
	_ = compareCmd.MarkFlagRequired("a")
	_ = compareCmd.MarkFlagRequired("b")
}
