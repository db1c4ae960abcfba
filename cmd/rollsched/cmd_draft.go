package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/draft"
)

var (
	draftPlanID      string
	draftBaseDate    string
	draftWindowDays  int
	draftStrategies  []string
	draftTitle       string
	draftID          string
	draftBaseVersion string
	draftKeepDays    int
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "generate, list, publish, or clean up strategy-comparison drafts",
}

var draftGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "dry-run one or more strategies and persist each as a draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := parseBaseDate(draftBaseDate)
		if err != nil {
			return fmt.Errorf("parse --base-date: %w", err)
		}
		var keys []string
		for _, k := range draftStrategies {
			keys = append(keys, strings.Split(k, ",")...)
		}
		results, err := drafts.Generate(context.Background(), draft.GenerateRequest{
			PlanID: draftPlanID, BaseDate: base, WindowDays: draftWindowDays,
			StrategyKeys: keys, Operator: operator, Title: draftTitle,
		})
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%s: draft=%s added=%d moved=%d squeezed_out=%d truncated=%v\n",
				r.StrategyKey, r.DraftID, r.AddedCount, r.MovedCount, r.SqueezedOut, r.Truncated)
			if r.Warning != "" {
				fmt.Printf("  warning: %s\n", r.Warning)
			}
		}
		return nil
	},
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "list the latest draft per strategy for a base version",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := drafts.List(draftBaseVersion)
		if err != nil {
			return err
		}
		for _, d := range list {
			fmt.Printf("%s  strategy=%-16s status=%-10s expires=%s\n", d.DraftID, d.StrategyKey, d.Status, d.ExpiresAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var draftPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "publish a draft into a real, activated version",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := drafts.Publish(context.Background(), draft.PublishRequest{DraftID: draftID, Operator: operator})
		if err != nil {
			return err
		}
		fmt.Printf("published as version=%s\n", resp.VersionID)
		return nil
	},
}

var draftCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "delete expired/published drafts older than keep-days",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := drafts.Cleanup(draftKeepDays)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d drafts\n", n)
		return nil
	},
}

func init() {
	draftGenerateCmd.Flags().StringVar(&draftPlanID, "plan", "", "plan id (required)")
	draftGenerateCmd.Flags().StringVar(&draftBaseDate, "base-date", "", "base date YYYY-MM-DD (default today)")
	draftGenerateCmd.Flags().IntVar(&draftWindowDays, "window-days", 0, "window length in days (default from config)")
	draftGenerateCmd.Flags().StringArrayVar(&draftStrategies, "strategy", nil, "strategy key, repeatable or comma-separated (required)")
	draftGenerateCmd.Flags().StringVar(&draftTitle, "title", "", "human-readable title for the draft")
	_ = draftGenerateCmd.MarkFlagRequired("plan")
	_ = draftGenerateCmd.MarkFlagRequired("strategy")

	draftListCmd.Flags().StringVar(&draftBaseVersion, "base-version", "", "base version id (required)")
	_ = draftListCmd.MarkFlagRequired("base-version")

	draftPublishCmd.Flags().StringVar(&draftID, "draft", "", "draft id (required)")
	_ = draftPublishCmd.MarkFlagRequired("draft")

	draftCleanupCmd.Flags().IntVar(&draftKeepDays, "keep-days", 0, "days to retain expired/published drafts, clamped [1,90]")

	draftCmd.AddCommand(draftGenerateCmd, draftListCmd, draftPublishCmd, draftCleanupCmd)
}
