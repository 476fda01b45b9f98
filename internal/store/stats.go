package store

import (
	"context"
	"fmt"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath       string        `json:"db_path"`
	DBSizeBytes  int64         `json:"db_size_bytes"`
	TotalRuns    int           `json:"total_runs"`
	ActiveRuns   int           `json:"active_runs"`
	CachedCounts int           `json:"cached_counts"`
	Factors      []FactorStats `json:"factors"`
}

// FactorStats holds cached line counts per unfold factor.
type FactorStats struct {
	Factor int `json:"factor"`
	Lines  int `json:"lines"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM runs`, &st.TotalRuns},
		{`SELECT COUNT(*) FROM runs WHERE deleted_at IS NULL`, &st.ActiveRuns},
		{`SELECT COUNT(*) FROM line_counts`, &st.CachedCounts},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT factor, COUNT(*) FROM line_counts
		GROUP BY factor ORDER BY factor`)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fs FactorStats
		if err := rows.Scan(&fs.Factor, &fs.Lines); err != nil {
			return nil, err
		}
		st.Factors = append(st.Factors, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return st, nil
}
