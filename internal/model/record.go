// Package model defines the spring record types and their parsing.
package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Symbol is the observed state of a single spring.
type Symbol byte

const (
	Operational Symbol = '.'
	Damaged     Symbol = '#'
	Unknown     Symbol = '?'
)

// ValidSymbols are the characters a record may contain.
var ValidSymbols = map[byte]bool{
	byte(Operational): true,
	byte(Damaged):     true,
	byte(Unknown):     true,
}

// DefaultUnfoldFactor is the replication factor of the unfolded variant.
const DefaultUnfoldFactor = 5

var (
	// ErrMalformedInput is returned for lines outside the record grammar.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInvalidFactor is returned when an unfold factor is below one.
	ErrInvalidFactor = errors.New("invalid unfold factor")
)

// Record is an immutable row of springs. The zero value is the empty record.
type Record struct {
	symbols string
}

// Len returns the number of springs in the record.
func (r Record) Len() int { return len(r.symbols) }

// At returns the symbol at index i.
func (r Record) At(i int) Symbol { return Symbol(r.symbols[i]) }

// String returns the record in its input notation.
func (r Record) String() string { return r.symbols }

// Runs is the ordered list of damaged run lengths a record must produce.
type Runs []int

// String returns the comma-separated notation, e.g. "1,1,3".
func (r Runs) String() string {
	parts := make([]string, len(r))
	for i, n := range r {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// Line is one parsed input line.
type Line struct {
	Num    int
	Record Record
	Runs   Runs
}

// Key returns the canonical "<record> <runs>" text of the line.
func (l Line) Key() string {
	return l.Record.String() + " " + l.Runs.String()
}

// ParseRecord maps a symbol string to a Record.
func ParseRecord(s string) (Record, error) {
	for i := 0; i < len(s); i++ {
		if !ValidSymbols[s[i]] {
			return Record{}, fmt.Errorf("%w: unknown symbol %q at column %d", ErrMalformedInput, s[i], i+1)
		}
	}
	return Record{symbols: s}, nil
}

// ParseRuns parses a comma-separated list of positive run lengths.
func ParseRuns(s string) (Runs, error) {
	tokens := strings.Split(s, ",")
	runs := make(Runs, 0, len(tokens))
	for _, tok := range tokens {
		n, err := strconv.ParseUint(tok, 10, 32)
		if err != nil || n == 0 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%w: run length %q is not a positive integer", ErrMalformedInput, tok)
		}
		runs = append(runs, int(n))
	}
	return runs, nil
}

// ParseLine splits "<symbols> <runs>" on its single separating space.
func ParseLine(line string) (Record, Runs, error) {
	left, right, ok := strings.Cut(line, " ")
	if !ok {
		return Record{}, nil, fmt.Errorf("%w: missing space between record and runs in %q", ErrMalformedInput, line)
	}

	rec, err := ParseRecord(left)
	if err != nil {
		return Record{}, nil, err
	}
	runs, err := ParseRuns(right)
	if err != nil {
		return Record{}, nil, err
	}
	return rec, runs, nil
}

// Unfold replicates the record factor times, joining copies with a single
// Unknown, and concatenates factor copies of runs. A factor of 1 returns the
// inputs unchanged.
func Unfold(rec Record, runs Runs, factor int) (Record, Runs, error) {
	if factor < 1 {
		return Record{}, nil, fmt.Errorf("%w: %d", ErrInvalidFactor, factor)
	}
	if factor == 1 {
		return rec, runs, nil
	}

	copies := make([]string, factor)
	for i := range copies {
		copies[i] = rec.symbols
	}

	unfolded := make(Runs, 0, len(runs)*factor)
	for i := 0; i < factor; i++ {
		unfolded = append(unfolded, runs...)
	}

	return Record{symbols: strings.Join(copies, string(Unknown))}, unfolded, nil
}
