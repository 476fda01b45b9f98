package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rcliao/springtally/internal/engine"
	"github.com/rcliao/springtally/internal/model"
)

// Export is the JSON document produced by ExportAll.
type Export struct {
	Runs       []model.Run       `json:"runs"`
	LineCounts []model.LineCount `json:"line_counts"`
}

// ExportAll returns all non-deleted runs and every cached line count.
func (s *SQLiteStore) ExportAll(ctx context.Context) (*Export, error) {
	out := &Export{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE deleted_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out.Runs = append(out.Runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lcRows, err := s.db.QueryContext(ctx,
		`SELECT line, factor, count, created_at FROM line_counts ORDER BY factor, line`)
	if err != nil {
		return nil, err
	}
	defer lcRows.Close()
	for lcRows.Next() {
		lc, err := scanLineCount(lcRows)
		if err != nil {
			return nil, err
		}
		out.LineCounts = append(out.LineCounts, lc)
	}
	return out, lcRows.Err()
}

// Import restores an export. Runs keep their IDs and are skipped if the ID
// already exists; line counts never overwrite cached entries.
// Every line count is recounted first and nothing is written if any line is
// malformed or carries a different count.
func (s *SQLiteStore) Import(ctx context.Context, e *Export) (runs int, counts int, err error) {
	lineCounts, err := verifyLineCounts(e.LineCounts)
	if err != nil {
		return 0, 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	for _, r := range e.Runs {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO runs (id, source, lines, factor, direct_total, unfolded_total, workers, duration_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Source, r.Lines, r.Factor,
			strconv.FormatUint(r.DirectTotal, 10), strconv.FormatUint(r.UnfoldedTotal, 10),
			r.Workers, r.DurationMS, r.CreatedAt.UTC().Format(timeLayout))
		if err != nil {
			return 0, 0, fmt.Errorf("import run %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			runs++
		}
	}

	for _, lc := range lineCounts {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO line_counts (line, factor, count, created_at) VALUES (?, ?, ?, ?)`,
			lc.Line, lc.Factor, strconv.FormatUint(lc.Count, 10), lc.CreatedAt.UTC().Format(timeLayout))
		if err != nil {
			return 0, 0, fmt.Errorf("import line count %q: %w", lc.Line, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			counts++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return runs, counts, nil
}

// verifyLineCounts recounts each entry and returns them keyed by the
// canonical form of their line.
func verifyLineCounts(in []model.LineCount) ([]model.LineCount, error) {
	counter := engine.NewCounter()
	out := make([]model.LineCount, 0, len(in))
	for _, lc := range in {
		rec, runs, err := model.ParseLine(lc.Line)
		if err != nil {
			return nil, fmt.Errorf("import line count %q: %w", lc.Line, err)
		}
		urec, uruns, err := model.Unfold(rec, runs, lc.Factor)
		if err != nil {
			return nil, fmt.Errorf("import line count %q: %w", lc.Line, err)
		}
		want, err := counter.Count(urec, uruns)
		if err != nil {
			return nil, fmt.Errorf("import line count %q: %w", lc.Line, err)
		}
		if lc.Count != want {
			return nil, fmt.Errorf("import line count %q factor %d: %w: got %d, want %d",
				lc.Line, lc.Factor, ErrCountMismatch, lc.Count, want)
		}
		lc.Line = model.Line{Record: rec, Runs: runs}.Key()
		out = append(out, lc)
	}
	return out, nil
}
