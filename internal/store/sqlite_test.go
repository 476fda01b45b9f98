package store

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndGetRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run, err := s.PutRun(ctx, PutRunParams{
		Source: "input.txt", Lines: 6, Factor: 5,
		DirectTotal: 21, UnfoldedTotal: 525152, Workers: 4, DurationMS: 3,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if run.ID == "" {
		t.Error("expected non-empty ID")
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Source != "input.txt" || got.Lines != 6 || got.Factor != 5 {
		t.Errorf("unexpected run %+v", got)
	}
	if got.DirectTotal != 21 || got.UnfoldedTotal != 525152 {
		t.Errorf("expected totals 21/525152, got %d/%d", got.DirectTotal, got.UnfoldedTotal)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("created_at mismatch: %v vs %v", got.CreatedAt, run.CreatedAt)
	}
}

func TestPutRunDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run, _ := s.PutRun(ctx, PutRunParams{Lines: 1, Factor: 5})
	if run.Source != "stdin" {
		t.Errorf("expected source 'stdin', got %q", run.Source)
	}
	if run.Workers != 1 {
		t.Errorf("expected 1 worker, got %d", run.Workers)
	}
}

func TestRunTotalsAboveInt64(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run, _ := s.PutRun(ctx, PutRunParams{DirectTotal: math.MaxUint64, UnfoldedTotal: math.MaxInt64 + 1})
	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DirectTotal != math.MaxUint64 {
		t.Errorf("expected MaxUint64, got %d", got.DirectTotal)
	}
	if got.UnfoldedTotal != math.MaxInt64+1 {
		t.Errorf("expected MaxInt64+1, got %d", got.UnfoldedTotal)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, _ := s.PutRun(ctx, PutRunParams{Source: "a.txt"})
	s.PutRun(ctx, PutRunParams{Source: "b.txt"})
	last, _ := s.PutRun(ctx, PutRunParams{Source: "a.txt"})

	all, _ := s.ListRuns(ctx, ListRunsParams{})
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	if all[0].ID != last.ID || all[2].ID != first.ID {
		t.Error("expected newest first")
	}

	bySource, _ := s.ListRuns(ctx, ListRunsParams{Source: "a.txt"})
	if len(bySource) != 2 {
		t.Errorf("expected 2, got %d", len(bySource))
	}

	limited, _ := s.ListRuns(ctx, ListRunsParams{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected 1, got %d", len(limited))
	}
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run, _ := s.PutRun(ctx, PutRunParams{Source: "x"})
	if err := s.RmRun(ctx, RmRunParams{ID: run.ID}); err != nil {
		t.Fatalf("rm: %v", err)
	}

	if _, err := s.GetRun(ctx, run.ID); err == nil {
		t.Error("expected error after soft delete")
	}
	if err := s.RmRun(ctx, RmRunParams{ID: run.ID}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}

	st, _ := s.Stats(ctx, "")
	if st.TotalRuns != 1 || st.ActiveRuns != 0 {
		t.Errorf("expected 1 total / 0 active, got %d / %d", st.TotalRuns, st.ActiveRuns)
	}
}

func TestHardDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run, _ := s.PutRun(ctx, PutRunParams{Source: "x"})
	if err := s.RmRun(ctx, RmRunParams{ID: run.ID, Hard: true}); err != nil {
		t.Fatalf("rm hard: %v", err)
	}

	st, _ := s.Stats(ctx, "")
	if st.TotalRuns != 0 {
		t.Errorf("expected 0 runs after hard delete, got %d", st.TotalRuns)
	}
	if err := s.RmRun(ctx, RmRunParams{ID: run.ID, Hard: true}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLineCountCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, ok, err := s.LookupCount(ctx, "???.### 1,1,3", 5); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := s.SaveCount(ctx, "?###???????? 3,2,1", 5, 506250); err != nil {
		t.Fatalf("save: %v", err)
	}
	n, ok, err := s.LookupCount(ctx, "?###???????? 3,2,1", 5)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if n != 506250 {
		t.Errorf("expected 506250, got %d", n)
	}

	// Other factors are separate entries
	if _, ok, _ := s.LookupCount(ctx, "?###???????? 3,2,1", 1); ok {
		t.Error("expected miss for factor 1")
	}

	// Entries are write-once
	s.SaveCount(ctx, "?###???????? 3,2,1", 5, 1)
	n, _, _ = s.LookupCount(ctx, "?###???????? 3,2,1", 5)
	if n != 506250 {
		t.Errorf("expected cached value to stay 506250, got %d", n)
	}
}

func TestLineCountCacheConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.SaveCount(ctx, "# 1", 1, 1); err != nil {
				errs <- err
				return
			}
			if _, _, err := s.LookupCount(ctx, "# 1", 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent access: %v", err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "stats.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer s.Close()

	s.PutRun(ctx, PutRunParams{Source: "x"})
	s.SaveCount(ctx, "# 1", 1, 1)
	s.SaveCount(ctx, "# 1", 5, 1)
	s.SaveCount(ctx, "?? 1", 1, 2)

	st, err := s.Stats(ctx, dbPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.ActiveRuns != 1 || st.CachedCounts != 3 {
		t.Errorf("expected 1 run / 3 counts, got %d / %d", st.ActiveRuns, st.CachedCounts)
	}
	if len(st.Factors) != 2 || st.Factors[0].Factor != 1 || st.Factors[0].Lines != 2 {
		t.Errorf("unexpected factor stats %+v", st.Factors)
	}
	if st.DBSizeBytes == 0 {
		t.Error("expected non-zero db size")
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}

func TestStatsClosedStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	st, err := s.Stats(context.Background(), "")
	if err == nil {
		t.Fatalf("expected error from a closed store, got %+v", st)
	}
}
