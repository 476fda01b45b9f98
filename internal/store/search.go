package store

import (
	"context"
	"strings"

	"github.com/rcliao/springtally/internal/model"
)

// SearchParams holds parameters for searching cached line counts.
type SearchParams struct {
	Query  string // substring of the canonical line
	Factor int    // 0 matches every factor
	Limit  int
}

// SearchCounts finds cached line counts whose line contains the query.
func (s *SQLiteStore) SearchCounts(ctx context.Context, p SearchParams) ([]model.LineCount, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"instr(line, ?) > 0"}
	args := []interface{}{p.Query}
	if p.Factor > 0 {
		where = append(where, "factor = ?")
		args = append(args, p.Factor)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT line, factor, count, created_at FROM line_counts
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY line, factor LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.LineCount
	for rows.Next() {
		lc, err := scanLineCount(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, lc)
	}
	return results, rows.Err()
}
