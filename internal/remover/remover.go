// Package remover drives the package removal workflow.
//
// A removal runs as a fixed sequence of steps, each one waiting for the
// previous to finish:
//
//	confirm -> dispatch primary -> interpret
//	        -> (dispatch fallback -> interpret)
//	        -> notify success and refresh | notify failure
//
// The fallback resubmits the same parameters as a GET query. It exists for
// deployments that block or mis-route the primary POST. It only runs once a
// response to the primary request has been received; a connection failure
// ends the workflow immediately.
//
// Remove never returns an error. Every failure is reported through the
// Notifier and reflected in the returned Outcome.
package remover

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/message"

	"github.com/blackwell-systems/luciprune/internal/luci"
)

// Backend dispatches removal requests over a transport path.
type Backend interface {
	Remove(ctx context.Context, rc luci.RequestContext, req luci.RemovalRequest, path luci.DispatchPath) (luci.Exchange, error)
}

// Prompt is the yes/no question put to the operator.
type Prompt struct {
	Title  string
	Detail string // may be empty
}

// Confirmer asks the operator to approve a removal. An error is treated
// as a refusal.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelDanger
)

// Notification is a message shown to the operator.
type Notification struct {
	Level   Level
	Message string
}

// Notifier shows notifications.
type Notifier interface {
	Notify(n Notification)
}

// Progress is the indicator shown while requests are in flight. Trace lines
// are informational only.
type Progress interface {
	Begin(title string)
	Trace(line string)
	End()
}

// Refresher reloads the displayed inventory after a successful removal.
type Refresher interface {
	Refresh(ctx context.Context)
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context)

// Refresh implements Refresher.
func (f RefreshFunc) Refresh(ctx context.Context) { f(ctx) }

// State is the terminal state of one removal workflow.
type State string

const (
	StateCancelled State = "cancelled"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Outcome describes how a removal workflow ended.
type Outcome struct {
	ID         string
	Request    luci.RequestContext
	Removal    luci.RemovalRequest
	State      State
	Path       luci.DispatchPath // last path dispatched; empty when cancelled
	Message    string
	Trace      []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Config wires the collaborators of an Orchestrator. Backend and Confirmer
// are required; the others may be nil.
type Config struct {
	Backend   Backend
	Confirmer Confirmer
	Notifier  Notifier
	Progress  Progress
	Refresher Refresher
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Orchestrator runs removal workflows.
type Orchestrator struct {
	backend   Backend
	confirmer Confirmer
	notifier  Notifier
	progress  Progress
	refresher Refresher
	now       func() time.Time
	newID     func() string
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if cfg.Confirmer == nil {
		return nil, fmt.Errorf("confirmer cannot be nil")
	}
	o := &Orchestrator{
		backend:   cfg.Backend,
		confirmer: cfg.Confirmer,
		notifier:  cfg.Notifier,
		progress:  cfg.Progress,
		refresher: cfg.Refresher,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
	if o.notifier == nil {
		o.notifier = discard{}
	}
	if o.progress == nil {
		o.progress = discard{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = newOperationID
	}
	return o, nil
}

type discard struct{}

func (discard) Notify(Notification) {}
func (discard) Begin(string)        {}
func (discard) Trace(string)        {}
func (discard) End()                {}

// interpretation is what a single dispatch yielded.
type interpretation struct {
	result luci.RemovalResult
	err    error // transport or decode failure
}

func (i interpretation) ok() bool {
	return i.err == nil && i.result.OK
}

// dispatch sends req over path and decodes the reply, tracing both.
func (o *Orchestrator) dispatch(ctx context.Context, rc luci.RequestContext, req luci.RemovalRequest, path luci.DispatchPath, out *Outcome) interpretation {
	out.Path = path

	ex, err := o.backend.Remove(ctx, rc, req, path)
	if ex.Request.Method != "" {
		o.trace(out, fmt.Sprintf("%s: %s", path, ex.Request))
	}
	if err != nil {
		o.trace(out, fmt.Sprintf("%s: error: %v", path, err))
		return interpretation{err: err}
	}
	o.trace(out, fmt.Sprintf("%s: response: %s", path, compact(ex.Body)))

	result, err := luci.DecodeRemovalResult(ex.Body)
	if err != nil {
		o.trace(out, fmt.Sprintf("%s: %v", path, err))
		return interpretation{err: err}
	}
	return interpretation{result: result}
}

func (o *Orchestrator) trace(out *Outcome, line string) {
	out.Trace = append(out.Trace, line)
	o.progress.Trace(line)
}

// compact renders a JSON body on one line for tracing.
func compact(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(b)
}

func confirmPrompt(p *message.Printer, req luci.RemovalRequest) Prompt {
	prompt := Prompt{Title: p.Sprintf("Remove package %s?", req.Package)}
	if req.Purge {
		prompt.Detail = p.Sprintf("Configuration files will also be removed.")
	}
	if req.RemoveDependents {
		dependents := p.Sprintf("Packages depending on it will also be removed.")
		if prompt.Detail != "" {
			prompt.Detail += " " + dependents
		} else {
			prompt.Detail = dependents
		}
	}
	return prompt
}
