package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/domain"
	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/recalc"
)

var (
	moveVersionID string
	moveEntries   []string
	moveMode      string
	moveReason    string
)

// parseMoveEntry turns "MATERIAL:MACHINE:YYYY-MM-DD" into a MoveRequest.
func parseMoveEntry(s string) (recalc.MoveRequest, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return recalc.MoveRequest{}, fmt.Errorf("move entry %q must be MATERIAL:MACHINE:DATE", s)
	}
	d, err := time.Parse("2006-01-02", parts[2])
	if err != nil {
		return recalc.MoveRequest{}, fmt.Errorf("move entry %q has invalid date: %w", s, err)
	}
	return recalc.MoveRequest{MaterialID: parts[0], MachineCode: parts[1], PlanDate: d}, nil
}

var moveCmd = &cobra.Command{
	Use:   "move",
	Short: "relocate one or more materials within a version's plan window",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := domain.MoveMode(strings.ToUpper(moveMode))
		if mode != domain.MoveStrict && mode != domain.MoveAutoFix {
			return fmt.Errorf("--mode must be STRICT or AUTO_FIX, got %q", moveMode)
		}

		moves := make([]recalc.MoveRequest, 0, len(moveEntries))
		for _, e := range moveEntries {
			mv, err := parseMoveEntry(e)
			if err != nil {
				return err
			}
			moves = append(moves, mv)
		}

		results, err := engine.MoveItems(context.Background(), moveVersionID, moves, mode, operator, moveReason)
		if err != nil {
			return err
		}
		for _, r := range results {
			status := "ok"
			if !r.Success {
				status = fmt.Sprintf("rejected (%s)", r.ViolationType)
			}
			fmt.Printf("%s: %s\n", r.MaterialID, status)
		}
		return nil
	},
}

func init() {
	moveCmd.Flags().StringVar(&moveVersionID, "version", "", "version id to modify (required)")
	moveCmd.Flags().StringArrayVar(&moveEntries, "move", nil, "MATERIAL:MACHINE:DATE, repeatable (required)")
	moveCmd.Flags().StringVar(&moveMode, "mode", "STRICT", "STRICT or AUTO_FIX")
	moveCmd.Flags().StringVar(&moveReason, "reason", "", "reason recorded on the action log")
	_ = moveCmd.MarkFlagRequired("version")
	_ = moveCmd.MarkFlagRequired("move")
}
