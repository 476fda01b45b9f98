package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/springtally/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs",
		Run:   runList,
	}

	cmd.Flags().StringP("source", "s", "", "Filter by input source")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("ids-only", false, "Only output run IDs")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	runs, err := s.ListRuns(cmd.Context(), store.ListRunsParams{
		Source: source,
		Limit:  limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, r := range runs {
			fmt.Fprintln(cmd.OutOrStdout(), r.ID)
		}
		return
	}

	if formatFlag == "text" {
		for _, r := range runs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  lines=%d  task1=%d  task2=%d\n",
				r.ID, r.Source, r.Lines, r.DirectTotal, r.UnfoldedTotal)
		}
		return
	}
	printJSON(cmd, runs)
}
