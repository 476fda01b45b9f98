// Package engine counts the completions of a spring record that satisfy its
// damaged run lengths.
package engine

import (
	"encoding/binary"
	"errors"
	"math/bits"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rcliao/springtally/internal/model"
)

// ErrOverflow is returned when a count does not fit in a uint64.
var ErrOverflow = errors.New("count overflows uint64")

// runWidth is the number of bytes per encoded run length.
const runWidth = 4

// key identifies a subproblem by content. Both fields are substring views of
// immutable backing strings, so building a key never copies.
type key struct {
	springs string
	runs    string
}

// CacheStats reports memo cache usage.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Counter counts completions with a memo cache shared by every call.
// It is safe for concurrent use.
type Counter struct {
	mu     sync.RWMutex
	memo   map[key]uint64
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCounter returns a Counter with an empty cache.
func NewCounter() *Counter {
	return &Counter{memo: make(map[key]uint64)}
}

// Count returns the number of ways to resolve every Unknown in rec so that
// its damaged runs equal runs, using a fresh cache.
func Count(rec model.Record, runs model.Runs) (uint64, error) {
	return NewCounter().Count(rec, runs)
}

// Count returns the number of ways to resolve every Unknown in rec so that
// its damaged runs equal runs.
func (c *Counter) Count(rec model.Record, runs model.Runs) (uint64, error) {
	return c.count(rec.String(), encodeRuns(runs))
}

// Stats returns a snapshot of the cache counters.
func (c *Counter) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.memo)
	c.mu.RUnlock()
	return CacheStats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func encodeRuns(runs model.Runs) string {
	buf := make([]byte, 0, len(runs)*runWidth)
	for _, n := range runs {
		buf = binary.BigEndian.AppendUint32(buf, uint32(n))
	}
	return string(buf)
}

// firstRun decodes the leading run length of an encoded run list.
func firstRun(runs string) int {
	return int(runs[0])<<24 | int(runs[1])<<16 | int(runs[2])<<8 | int(runs[3])
}

func (c *Counter) count(springs, runs string) (uint64, error) {
	if len(springs) == 0 {
		if len(runs) == 0 {
			return 1, nil
		}
		return 0, nil
	}
	if len(runs) == 0 {
		// Remaining unknowns are forced operational.
		if strings.IndexByte(springs, byte(model.Damaged)) >= 0 {
			return 0, nil
		}
		return 1, nil
	}

	k := key{springs: springs, runs: runs}
	if v, ok := c.lookup(k); ok {
		return v, nil
	}

	var total uint64
	first := model.Symbol(springs[0])

	if first != model.Damaged {
		n, err := c.count(springs[1:], runs)
		if err != nil {
			return 0, err
		}
		total = n
	}

	if g := firstRun(runs); first != model.Operational && fitsRun(springs, g) {
		rest := ""
		if g < len(springs) {
			rest = springs[g+1:]
		}
		n, err := c.count(rest, runs[runWidth:])
		if err != nil {
			return 0, err
		}
		var carry uint64
		total, carry = bits.Add64(total, n, 0)
		if carry != 0 {
			return 0, ErrOverflow
		}
	}

	c.store(k, total)
	return total, nil
}

// fitsRun reports whether a damaged run of length g can start at springs[0].
// The length check must come before the trailing symbol check.
func fitsRun(springs string, g int) bool {
	if g > len(springs) {
		return false
	}
	if strings.IndexByte(springs[:g], byte(model.Operational)) >= 0 {
		return false
	}
	return g == len(springs) || model.Symbol(springs[g]) != model.Damaged
}

func (c *Counter) lookup(k key) (uint64, bool) {
	c.mu.RLock()
	v, ok := c.memo[k]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// store records v unless another goroutine already did; entries never change.
func (c *Counter) store(k key, v uint64) {
	c.mu.Lock()
	if _, ok := c.memo[k]; !ok {
		c.memo[k] = v
	}
	c.mu.Unlock()
}
