package model

import "time"

// Run is a persisted solve of one input.
type Run struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	Lines         int        `json:"lines"`
	Factor        int        `json:"factor"`
	DirectTotal   uint64     `json:"direct_total"`
	UnfoldedTotal uint64     `json:"unfolded_total"`
	Workers       int        `json:"workers"`
	DurationMS    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `json:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// LineCount is a cached completion count for one canonical line.
type LineCount struct {
	Line      string    `json:"line"`
	Factor    int       `json:"factor"`
	Count     uint64    `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}
