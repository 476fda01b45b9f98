package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/springtally/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search cached line counts",
		Long:  "Find cached line counts whose canonical line contains the given text.",
		Args:  cobra.ExactArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().Int("factor", 0, "Only this unfold factor (0 = all)")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	factor, _ := cmd.Flags().GetInt("factor")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.SearchCounts(cmd.Context(), store.SearchParams{
		Query:  args[0],
		Factor: factor,
		Limit:  limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if formatFlag == "text" {
		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  x%d  %d\n", r.Line, r.Factor, r.Count)
		}
		return
	}
	printJSON(cmd, results)
}
