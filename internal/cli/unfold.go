package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/springtally/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "unfold <record> <runs>",
		Short: "Print the unfolded form of a line",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runUnfold,
	}

	cmd.Flags().Int("factor", 0, "Unfold factor (default: engine.unfold_factor from config)")

	RootCmd.AddCommand(cmd)
}

func runUnfold(cmd *cobra.Command, args []string) {
	factor := cfg.Engine.UnfoldFactor
	if cmd.Flags().Changed("factor") {
		factor, _ = cmd.Flags().GetInt("factor")
	}

	rec, runs, err := model.ParseLine(strings.Join(args, " "))
	if err != nil {
		exitErr("parse", err)
	}
	urec, uruns, err := model.Unfold(rec, runs, factor)
	if err != nil {
		exitErr("unfold", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", urec, uruns)
}
