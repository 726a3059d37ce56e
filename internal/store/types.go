package store

import "time"

// Removal is one journaled removal workflow.
type Removal struct {
	ID               string
	Package          string
	Purge            bool
	RemoveDependents bool
	State            string // "cancelled", "succeeded" or "failed"
	Path             string // "primary", "fallback" or empty
	Message          string
	BackendURL       string
	StartedAt        time.Time
	FinishedAt       time.Time
	Trace            []string // only populated by GetRemoval
}

// RemovalFilter narrows ListRemovals. Zero values match everything.
type RemovalFilter struct {
	Package string
	State   string
	Limit   int
}
