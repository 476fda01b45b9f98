package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/springtally/internal/engine"
	"github.com/rcliao/springtally/internal/model"
	"github.com/rcliao/springtally/internal/solve"
	"github.com/rcliao/springtally/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "solve [file]",
		Short: "Sum counts over every line of an input",
		Long:  "Sum completion counts over every line of a file (or stdin), as given and unfolded. One malformed line aborts the whole input.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSolve,
	}

	cmd.Flags().IntP("workers", "w", 0, "Parallel workers (default: engine.workers from config, 0 = one per CPU)")
	cmd.Flags().Int("batch-size", 0, "Lines per worker batch (default: engine.batch_size from config)")
	cmd.Flags().Int("factor", 0, "Unfold factor for the second total (default: engine.unfold_factor from config)")
	cmd.Flags().Bool("no-cache", false, "Do not read or write cached line counts")
	cmd.Flags().Bool("save", false, "Record the run in the database")

	RootCmd.AddCommand(cmd)
}

// solveOutput is the JSON shape of a solve.
type solveOutput struct {
	RunID string `json:"run_id,omitempty"`
	*solve.Report
}

func runSolve(cmd *cobra.Command, args []string) {
	workers := cfg.Engine.Workers
	if cmd.Flags().Changed("workers") {
		workers, _ = cmd.Flags().GetInt("workers")
	}
	batchSize := cfg.Engine.BatchSize
	if cmd.Flags().Changed("batch-size") {
		batchSize, _ = cmd.Flags().GetInt("batch-size")
	}
	factor := cfg.Engine.UnfoldFactor
	if cmd.Flags().Changed("factor") {
		factor, _ = cmd.Flags().GetInt("factor")
	}
	if factor < 1 {
		exitErr("solve", fmt.Errorf("%w: %d", model.ErrInvalidFactor, factor))
	}
	noCache, _ := cmd.Flags().GetBool("no-cache")
	save, _ := cmd.Flags().GetBool("save")

	input, source, err := readInput(cmd, args)
	if err != nil {
		exitErr("read input", err)
	}

	opts := solve.Options{
		Workers:      workers,
		BatchSize:    batchSize,
		UnfoldFactor: factor,
		Logger:       logger,
	}

	var s *store.SQLiteStore
	useCache := cfg.Store.CacheLines && !noCache
	if useCache || save {
		s, err = openStore()
		if err != nil {
			exitErr("open store", err)
		}
		defer s.Close()
		if useCache {
			opts.Cache = s
		}
	}

	solver := solve.New(engine.NewCounter(), opts)
	report, err := solver.Solve(cmd.Context(), input)
	if err != nil {
		exitErr("solve", err)
	}

	out := solveOutput{Report: report}
	if save {
		run, err := s.PutRun(cmd.Context(), store.PutRunParams{
			Source:        source,
			Lines:         report.Lines,
			Factor:        report.Factor,
			DirectTotal:   report.Direct,
			UnfoldedTotal: report.Unfolded,
			Workers:       solver.Workers(),
			DurationMS:    report.Duration.Milliseconds(),
		})
		if err != nil {
			exitErr("save run", err)
		}
		out.RunID = run.ID
		logger.Info("saved run", zap.String("id", run.ID), zap.String("source", source))
	}

	if formatFlag == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "task 1: %d\ntask 2: %d\n", report.Direct, report.Unfolded)
		return
	}
	printJSON(cmd, out)
}

// readInput reads the file named by args[0], or stdin when no file is given.
func readInput(cmd *cobra.Command, args []string) (string, string, error) {
	if len(args) > 0 {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", err
		}
		return string(b), args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", "", err
	}
	return string(b), "stdin", nil
}
