package remover

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/blackwell-systems/luciprune/internal/locale"
	"github.com/blackwell-systems/luciprune/internal/luci"
)

func newOperationID() string {
	return uuid.New().String()
}

// Remove runs one removal workflow for req against the device described
// by rc. It blocks until the workflow reaches a terminal state.
func (o *Orchestrator) Remove(ctx context.Context, rc luci.RequestContext, req luci.RemovalRequest) Outcome {
	p := locale.Printer(rc.Locale)
	out := Outcome{
		ID:        o.newID(),
		Request:   rc,
		Removal:   req,
		StartedAt: o.now(),
	}
	logger := log.WithFields(log.Fields{
		"operation": out.ID,
		"package":   req.Package,
		"purge":     req.Purge,
	})

	confirmed, err := o.confirmer.Confirm(ctx, confirmPrompt(p, req))
	if err != nil {
		logger.WithError(err).Debug("remover: confirmation failed, treating as cancel")
	}
	if err != nil || !confirmed {
		out.State = StateCancelled
		out.FinishedAt = o.now()
		logger.Info("remover: cancelled")
		return out
	}

	o.progress.Begin(p.Sprintf("Removing %s…", req.Package))
	primary := o.dispatch(ctx, rc, req, luci.PathPrimary, &out)

	final := primary
	if !primary.ok() && !luci.IsConnectionFailure(primary.err) && ctx.Err() == nil {
		logger.WithField("reason", reason(primary)).Info("remover: primary request did not succeed, trying fallback")
		final = o.dispatch(ctx, rc, req, luci.PathFallback, &out)
	}
	defer o.progress.End()

	out.FinishedAt = o.now()
	if final.ok() {
		out.State = StateSucceeded
		out.Message = p.Sprintf("Package %s removed", req.Package)
		o.notifier.Notify(Notification{Level: LevelSuccess, Message: out.Message})
		logger.WithField("path", out.Path).Info("remover: succeeded")
		if o.refresher != nil {
			o.refresher.Refresh(ctx)
		}
		return out
	}

	out.State = StateFailed
	switch {
	case final.err != nil:
		out.Message = p.Sprintf("Request failed: %v", final.err)
	case final.result.Message != "":
		out.Message = final.result.Message
	default:
		out.Message = p.Sprintf("Removal failed")
	}
	o.notifier.Notify(Notification{Level: LevelDanger, Message: out.Message})
	logger.WithField("path", out.Path).WithField("reason", reason(final)).Warn("remover: failed")
	return out
}

func reason(i interpretation) string {
	if i.err != nil {
		return i.err.Error()
	}
	if i.result.Message != "" {
		return i.result.Message
	}
	return "ok=false"
}
