// Package batch splits puzzle input into line-numbered batches for workers.
package batch

import (
	"strings"
)

const DefaultSize = 64

// Options configures batching behavior.
type Options struct {
	Size int
}

// DefaultOptions returns default batching options.
func DefaultOptions() Options {
	return Options{Size: DefaultSize}
}

// Entry is a single non-blank input line.
type Entry struct {
	Num  int
	Text string
}

// Batch is a run of consecutive entries with their position in the input.
type Batch struct {
	Entries   []Entry
	StartLine int
	EndLine   int
}

// Split groups the non-blank lines of text into batches of at most
// opts.Size entries. Line numbers are 1-based and count blank lines.
func Split(text string, opts Options) []Batch {
	if opts.Size <= 0 {
		opts = DefaultOptions()
	}

	entries := splitEntries(text)
	if len(entries) == 0 {
		return nil
	}

	var batches []Batch
	for start := 0; start < len(entries); start += opts.Size {
		end := min(start+opts.Size, len(entries))
		group := entries[start:end]
		batches = append(batches, Batch{
			Entries:   group,
			StartLine: group[0].Num,
			EndLine:   group[len(group)-1].Num,
		})
	}
	return batches
}

// splitEntries returns the non-blank lines of text with trailing whitespace
// removed. Leading space is kept: it marks an empty record.
func splitEntries(text string) []Entry {
	var entries []Entry
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, Entry{Num: i + 1, Text: line})
	}
	return entries
}
