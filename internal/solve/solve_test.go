package solve

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rcliao/springtally/internal/engine"
	"github.com/rcliao/springtally/internal/model"
)

const example = `???.### 1,1,3
.??..??...?##. 1,1,3
?#?#?#?#?#?#?#? 1,3,1,6
????.#...#... 4,1,1
????.######..#####. 1,6,5
?###???????? 3,2,1
`

type cacheKey struct {
	line   string
	factor int
}

type memCache struct {
	mu      sync.Mutex
	counts  map[cacheKey]uint64
	lookups int
	saves   int
	fixed   *uint64
}

func newMemCache() *memCache {
	return &memCache{counts: make(map[cacheKey]uint64)}
}

func (c *memCache) LookupCount(ctx context.Context, line string, factor int) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	if c.fixed != nil {
		return *c.fixed, true, nil
	}
	n, ok := c.counts[cacheKey{line, factor}]
	return n, ok, nil
}

func (c *memCache) SaveCount(ctx context.Context, line string, factor int, count uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.counts[cacheKey{line, factor}] = count
	return nil
}

type failingCache struct{}

func (failingCache) LookupCount(context.Context, string, int) (uint64, bool, error) {
	return 0, false, errors.New("disk on fire")
}

func (failingCache) SaveCount(context.Context, string, int, uint64) error { return nil }

func TestSolve_Example(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(nil, Options{Workers: 4, BatchSize: 2})
	r, err := s.Solve(context.Background(), example)
	require.NoError(t, err)
	assert.Equal(t, 6, r.Lines)
	assert.Equal(t, uint64(21), r.Direct)
	assert.Equal(t, uint64(525152), r.Unfolded)
	assert.Equal(t, 5, r.Factor)
	assert.Positive(t, r.Cache.Entries)
}

func TestSolveDirectAndUnfolded(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	s := New(engine.NewCounter(), Options{Workers: 1})
	direct, err := s.SolveDirect(ctx, example)
	require.NoError(t, err)
	assert.Equal(t, uint64(21), direct)

	unfolded, err := s.SolveUnfolded(ctx, example)
	require.NoError(t, err)
	assert.Equal(t, uint64(525152), unfolded)
}

func TestSolve_WorkerCountsAgree(t *testing.T) {
	defer goleak.VerifyNone(t)
	input := strings.Repeat(example, 20)

	for _, workers := range []int{1, 2, 8} {
		for _, size := range []int{1, 5, 64} {
			s := New(nil, Options{Workers: workers, BatchSize: size})
			r, err := s.Solve(context.Background(), input)
			require.NoError(t, err)
			assert.Equal(t, uint64(21*20), r.Direct, "workers=%d size=%d", workers, size)
			assert.Equal(t, uint64(525152*20), r.Unfolded, "workers=%d size=%d", workers, size)
		}
	}
}

func TestSum_CustomFactor(t *testing.T) {
	s := New(nil, Options{})
	got, err := s.Sum(context.Background(), "???.### 1,1,3\n.??..??...?##. 1,1,3", 2)
	require.NoError(t, err)
	// 1 + 32 for the two-fold variant
	assert.Equal(t, uint64(33), got)

	_, err = s.Sum(context.Background(), example, 0)
	assert.ErrorIs(t, err, model.ErrInvalidFactor)
}

func TestSolve_EmptyInput(t *testing.T) {
	s := New(nil, Options{})
	r, err := s.Solve(context.Background(), "\n\n")
	require.NoError(t, err)
	assert.Equal(t, 0, r.Lines)
	assert.Zero(t, r.Direct)
	assert.Zero(t, r.Unfolded)
}

func TestSolve_FirstMalformedLineAborts(t *testing.T) {
	defer goleak.VerifyNone(t)
	cache := newMemCache()

	input := "???.### 1,1,3\n\n??x 1\n??? 0\n"
	s := New(nil, Options{Workers: 4, BatchSize: 1, Cache: cache})
	_, err := s.Solve(context.Background(), input)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrMalformedInput)
	assert.Contains(t, err.Error(), "line 3")
	assert.Zero(t, cache.lookups, "no line should be counted after a parse failure")
}

func TestSolve_UsesLineCache(t *testing.T) {
	cache := newMemCache()
	s := New(nil, Options{Cache: cache})

	r, err := s.Solve(context.Background(), example)
	require.NoError(t, err)
	assert.Equal(t, uint64(525152), r.Unfolded)
	assert.Equal(t, 12, cache.saves)
	assert.Equal(t, uint64(10), cache.counts[cacheKey{"?###???????? 3,2,1", 1}])
	assert.Equal(t, uint64(506250), cache.counts[cacheKey{"?###???????? 3,2,1", 5}])

	// A second solver with a cold engine answers from the line cache.
	s2 := New(nil, Options{Cache: cache})
	r2, err := s2.Solve(context.Background(), example)
	require.NoError(t, err)
	assert.Equal(t, r.Direct, r2.Direct)
	assert.Equal(t, r.Unfolded, r2.Unfolded)
	assert.Equal(t, 12, cache.saves)
	assert.Zero(t, r2.Cache.Entries)
}

func TestSolve_CacheErrorPropagates(t *testing.T) {
	s := New(nil, Options{Cache: failingCache{}})
	_, err := s.Solve(context.Background(), example)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestSum_OverflowAcrossLines(t *testing.T) {
	huge := uint64(math.MaxUint64)
	cache := newMemCache()
	cache.fixed = &huge

	for _, size := range []int{1, 64} {
		s := New(nil, Options{Cache: cache, BatchSize: size})
		_, err := s.SolveDirect(context.Background(), "# 1\n# 1\n")
		assert.ErrorIs(t, err, engine.ErrOverflow, "batch size %d", size)
	}
}

func TestSolve_CanceledContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(nil, Options{Workers: 2, BatchSize: 1})
	_, err := s.Solve(ctx, example)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolve_LogsSummary(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := New(nil, Options{Logger: zap.New(core), BatchSize: 3})

	_, err := s.Solve(context.Background(), example)
	require.NoError(t, err)

	summary := logs.FilterMessage("solved input").All()
	require.Len(t, summary, 1)
	fields := summary[0].ContextMap()
	assert.Equal(t, uint64(21), fields["direct"])
	assert.Equal(t, uint64(525152), fields["unfolded"])
	batches := logs.FilterMessage("batch counted").All()
	require.Len(t, batches, 4)
	ranges := make(map[[2]int64]int)
	for _, e := range batches {
		f := e.ContextMap()
		ranges[[2]int64{f["start_line"].(int64), f["end_line"].(int64)}]++
	}
	assert.Equal(t, map[[2]int64]int{{1, 3}: 2, {4, 6}: 2}, ranges)
}

func TestParse(t *testing.T) {
	lines, err := Parse("# 1\n\n.#? 1,1\n")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Num)
	assert.Equal(t, 3, lines[1].Num)
	assert.Equal(t, ".#? 1,1", lines[1].Key())
}

func TestSolve_EmptyRecordLine(t *testing.T) {
	s := New(nil, Options{BatchSize: 1})
	r, err := s.Solve(context.Background(), " 1\r\n  \n# 1\n")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Lines)
	assert.Equal(t, uint64(1), r.Direct)
	assert.Equal(t, uint64(1), r.Unfolded)
}
