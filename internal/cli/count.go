package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/springtally/internal/model"
	"github.com/rcliao/springtally/internal/solve"
)

func init() {
	cmd := &cobra.Command{
		Use:   "count <record> <runs>",
		Short: "Count completions of a single line",
		Long:  `Count completions of a single line, e.g. springtally count "???.### 1,1,3".`,
		Args:  cobra.RangeArgs(1, 2),
		Run:   runCount,
	}

	cmd.Flags().Int("factor", 1, "Unfold factor")

	RootCmd.AddCommand(cmd)
}

func runCount(cmd *cobra.Command, args []string) {
	factor, _ := cmd.Flags().GetInt("factor")
	text := strings.Join(args, " ")

	rec, runs, err := model.ParseLine(text)
	if err != nil {
		exitErr("parse", err)
	}
	line := model.Line{Num: 1, Record: rec, Runs: runs}

	n, err := solve.New(nil, solve.Options{Workers: 1, Logger: logger}).Count(cmd.Context(), line, factor)
	if err != nil {
		exitErr("count", err)
	}

	if formatFlag == "text" {
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return
	}
	printJSON(cmd, map[string]any{
		"line":   line.Key(),
		"factor": factor,
		"count":  n,
	})
}
