package store

import "github.com/blackwell-systems/luciprune/internal/remover"

// FromOutcome converts a finished removal workflow into a journal entry.
func FromOutcome(o remover.Outcome) *Removal {
	return &Removal{
		ID:               o.ID,
		Package:          o.Removal.Package,
		Purge:            o.Removal.Purge,
		RemoveDependents: o.Removal.RemoveDependents,
		State:            string(o.State),
		Path:             string(o.Path),
		Message:          o.Message,
		BackendURL:       o.Request.BaseURL,
		StartedAt:        o.StartedAt,
		FinishedAt:       o.FinishedAt,
		Trace:            append([]string(nil), o.Trace...),
	}
}
