// Package solve parses puzzle input and sums completion counts over its lines.
package solve

import (
	"context"
	"fmt"
	"math/bits"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/springtally/internal/batch"
	"github.com/rcliao/springtally/internal/engine"
	"github.com/rcliao/springtally/internal/model"
)

// LineCache persists counts of whole lines across runs. Implementations must
// be safe for concurrent use.
type LineCache interface {
	LookupCount(ctx context.Context, line string, factor int) (uint64, bool, error)
	SaveCount(ctx context.Context, line string, factor int, count uint64) error
}

// Options configures a Solver.
type Options struct {
	Workers      int // <= 0 means one per CPU
	BatchSize    int
	UnfoldFactor int // 0 means model.DefaultUnfoldFactor
	Cache        LineCache
	Logger       *zap.Logger
}

// Report holds both totals for one input.
type Report struct {
	Lines    int               `json:"lines"`
	Direct   uint64            `json:"direct"`
	Unfolded uint64            `json:"unfolded"`
	Factor   int               `json:"factor"`
	Cache    engine.CacheStats `json:"cache"`
	Duration time.Duration     `json:"duration_ns"`
}

// Solver sums counts over input lines. All sums share one engine cache.
type Solver struct {
	counter   *engine.Counter
	cache     LineCache
	logger    *zap.Logger
	workers   int
	batchSize int
	factor    int
}

// New creates a Solver backed by counter. A nil counter gets a fresh one.
func New(counter *engine.Counter, opts Options) *Solver {
	if counter == nil {
		counter = engine.NewCounter()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = batch.DefaultSize
	}
	if opts.UnfoldFactor == 0 {
		opts.UnfoldFactor = model.DefaultUnfoldFactor
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Solver{
		counter:   counter,
		cache:     opts.Cache,
		logger:    opts.Logger,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		factor:    opts.UnfoldFactor,
	}
}

// Workers returns the configured parallelism.
func (s *Solver) Workers() int { return s.workers }

// SolveDirect sums the counts of every line as given.
func (s *Solver) SolveDirect(ctx context.Context, input string) (uint64, error) {
	return s.Sum(ctx, input, 1)
}

// SolveUnfolded sums the counts of every line after unfolding.
func (s *Solver) SolveUnfolded(ctx context.Context, input string) (uint64, error) {
	return s.Sum(ctx, input, s.factor)
}

// Solve computes the direct and unfolded totals of input.
func (s *Solver) Solve(ctx context.Context, input string) (*Report, error) {
	start := time.Now()

	batches, err := parseBatches(input, batch.Options{Size: s.batchSize})
	if err != nil {
		return nil, err
	}

	direct, err := s.sumBatches(ctx, batches, 1)
	if err != nil {
		return nil, err
	}
	unfolded, err := s.sumBatches(ctx, batches, s.factor)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Lines:    countLines(batches),
		Direct:   direct,
		Unfolded: unfolded,
		Factor:   s.factor,
		Cache:    s.counter.Stats(),
		Duration: time.Since(start),
	}
	s.logger.Info("solved input",
		zap.Int("lines", r.Lines),
		zap.Uint64("direct", r.Direct),
		zap.Uint64("unfolded", r.Unfolded),
		zap.Int("cache_entries", r.Cache.Entries),
		zap.Uint64("cache_hits", r.Cache.Hits),
		zap.Uint64("cache_misses", r.Cache.Misses),
		zap.Duration("duration", r.Duration))
	return r, nil
}

// Sum parses input and sums the counts of every line unfolded by factor.
// Any malformed line aborts the sum before counting starts.
func (s *Solver) Sum(ctx context.Context, input string, factor int) (uint64, error) {
	if factor < 1 {
		return 0, fmt.Errorf("%w: %d", model.ErrInvalidFactor, factor)
	}
	batches, err := parseBatches(input, batch.Options{Size: s.batchSize})
	if err != nil {
		return 0, err
	}
	return s.sumBatches(ctx, batches, factor)
}

// Count returns the count of a single parsed line unfolded by factor.
func (s *Solver) Count(ctx context.Context, line model.Line, factor int) (uint64, error) {
	key := line.Key()
	if s.cache != nil {
		n, ok, err := s.cache.LookupCount(ctx, key, factor)
		if err != nil {
			return 0, fmt.Errorf("line %d: lookup cache: %w", line.Num, err)
		}
		if ok {
			return n, nil
		}
	}

	rec, runs, err := model.Unfold(line.Record, line.Runs, factor)
	if err != nil {
		return 0, err
	}
	n, err := s.counter.Count(rec, runs)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", line.Num, err)
	}

	if s.cache != nil {
		if err := s.cache.SaveCount(ctx, key, factor, n); err != nil {
			return 0, fmt.Errorf("line %d: save cache: %w", line.Num, err)
		}
	}
	return n, nil
}

// Parse parses every non-blank line of input in order. The error names the
// first malformed line.
func Parse(input string) ([]model.Line, error) {
	batches, err := parseBatches(input, batch.DefaultOptions())
	if err != nil {
		return nil, err
	}
	var lines []model.Line
	for _, b := range batches {
		lines = append(lines, b.lines...)
	}
	return lines, nil
}

// lineBatch is a parsed batch.Batch.
type lineBatch struct {
	lines     []model.Line
	startLine int
	endLine   int
}

func parseBatches(input string, opts batch.Options) ([]lineBatch, error) {
	var out []lineBatch
	for _, b := range batch.Split(input, opts) {
		lines := make([]model.Line, 0, len(b.Entries))
		for _, e := range b.Entries {
			rec, runs, err := model.ParseLine(e.Text)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", e.Num, err)
			}
			lines = append(lines, model.Line{Num: e.Num, Record: rec, Runs: runs})
		}
		out = append(out, lineBatch{lines: lines, startLine: b.StartLine, endLine: b.EndLine})
	}
	return out, nil
}

func countLines(batches []lineBatch) int {
	n := 0
	for _, b := range batches {
		n += len(b.lines)
	}
	return n
}

func (s *Solver) sumBatches(ctx context.Context, batches []lineBatch, factor int) (uint64, error) {
	var (
		mu    sync.Mutex
		total uint64
	)
	add := func(n uint64) error {
		mu.Lock()
		defer mu.Unlock()
		var carry uint64
		total, carry = bits.Add64(total, n, 0)
		if carry != 0 {
			return engine.ErrOverflow
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, group := range batches {
		group := group
		g.Go(func() error {
			var sub uint64
			for _, l := range group.lines {
				if err := gctx.Err(); err != nil {
					return err
				}
				n, err := s.Count(gctx, l, factor)
				if err != nil {
					return err
				}
				var carry uint64
				sub, carry = bits.Add64(sub, n, 0)
				if carry != 0 {
					return fmt.Errorf("line %d: %w", l.Num, engine.ErrOverflow)
				}
			}
			s.logger.Debug("batch counted",
				zap.Int("start_line", group.startLine),
				zap.Int("end_line", group.endLine),
				zap.Int("factor", factor),
				zap.Uint64("subtotal", sub))
			return add(sub)
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total, nil
}
