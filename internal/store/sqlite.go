package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/springtally/internal/model"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex // guards entropy
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Solver workers share the store; one connection serializes their writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		source         TEXT NOT NULL,
		lines          INTEGER NOT NULL,
		factor         INTEGER NOT NULL,
		direct_total   TEXT NOT NULL,
		unfolded_total TEXT NOT NULL,
		workers        INTEGER NOT NULL DEFAULT 1,
		duration_ms    INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL,
		deleted_at     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
	CREATE INDEX IF NOT EXISTS idx_runs_deleted ON runs(deleted_at);

	CREATE TABLE IF NOT EXISTS line_counts (
		line       TEXT NOT NULL,
		factor     INTEGER NOT NULL,
		count      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (line, factor)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) PutRun(ctx context.Context, p PutRunParams) (*model.Run, error) {
	now := time.Now().UTC()
	id := s.newID()

	source := p.Source
	if source == "" {
		source = "stdin"
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, lines, factor, direct_total, unfolded_total, workers, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, source, p.Lines, p.Factor,
		strconv.FormatUint(p.DirectTotal, 10), strconv.FormatUint(p.UnfoldedTotal, 10),
		workers, p.DurationMS, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	return &model.Run{
		ID:            id,
		Source:        source,
		Lines:         p.Lines,
		Factor:        p.Factor,
		DirectTotal:   p.DirectTotal,
		UnfoldedTotal: p.UnfoldedTotal,
		Workers:       workers,
		DurationMS:    p.DurationMS,
		CreatedAt:     now,
	}, nil
}

const runColumns = `id, source, lines, factor, direct_total, unfolded_total, workers, duration_ms, created_at, deleted_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? AND deleted_at IS NULL`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, p ListRunsParams) ([]model.Run, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"deleted_at IS NULL"}
	var args []interface{}
	if p.Source != "" {
		where = append(where, "source = ?")
		args = append(args, p.Source)
	}
	args = append(args, limit)

	query := `SELECT ` + runColumns + ` FROM runs WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) RmRun(ctx context.Context, p RmRunParams) error {
	var res sql.Result
	var err error
	if p.Hard {
		res, err = s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, p.ID)
	} else {
		now := time.Now().UTC().Format(timeLayout)
		res, err = s.db.ExecContext(ctx,
			`UPDATE runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, p.ID)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) LookupCount(ctx context.Context, line string, factor int) (uint64, bool, error) {
	var count string
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM line_counts WHERE line = ? AND factor = ?`, line, factor).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseUint(count, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt count for %q: %w", line, err)
	}
	return n, true, nil
}

func (s *SQLiteStore) SaveCount(ctx context.Context, line string, factor int, count uint64) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO line_counts (line, factor, count, created_at) VALUES (?, ?, ?, ?)`,
		line, factor, strconv.FormatUint(count, 10), now)
	if err != nil {
		return fmt.Errorf("insert line count: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (model.Run, error) {
	var r model.Run
	var direct, unfolded, createdAt string
	var deletedAt sql.NullString

	err := row.Scan(
		&r.ID, &r.Source, &r.Lines, &r.Factor, &direct, &unfolded,
		&r.Workers, &r.DurationMS, &createdAt, &deletedAt,
	)
	if err != nil {
		return r, err
	}

	if r.DirectTotal, err = strconv.ParseUint(direct, 10, 64); err != nil {
		return r, fmt.Errorf("corrupt direct total %q: %w", direct, err)
	}
	if r.UnfoldedTotal, err = strconv.ParseUint(unfolded, 10, 64); err != nil {
		return r, fmt.Errorf("corrupt unfolded total %q: %w", unfolded, err)
	}
	r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if deletedAt.Valid {
		t, _ := time.Parse(timeLayout, deletedAt.String)
		r.DeletedAt = &t
	}

	return r, nil
}

func scanLineCount(row scanner) (model.LineCount, error) {
	var lc model.LineCount
	var count, createdAt string
	if err := row.Scan(&lc.Line, &lc.Factor, &count, &createdAt); err != nil {
		return lc, err
	}
	n, err := strconv.ParseUint(count, 10, 64)
	if err != nil {
		return lc, fmt.Errorf("corrupt count for %q: %w", lc.Line, err)
	}
	lc.Count = n
	lc.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return lc, nil
}
