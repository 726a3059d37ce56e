// Package inventory fetches and filters the installed package list.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	jujuerrors "github.com/juju/errors"
	"github.com/juju/retry"
	log "github.com/sirupsen/logrus"

	"github.com/blackwell-systems/luciprune/internal/luci"
)

// DefaultRetryDelays are the waits before the second and third attempt
// when the backend reports an empty inventory. Backends enumerate packages
// asynchronously after boot, so a short-lived empty list is expected.
var DefaultRetryDelays = []time.Duration{300 * time.Millisecond, 500 * time.Millisecond}

// MaxRetries is the number of extra attempts made after an empty inventory.
const MaxRetries = 2

// Source lists the installed packages of a device.
type Source interface {
	ListPackages(ctx context.Context, rc luci.RequestContext) (luci.Snapshot, error)
}

// errEmptyInventory marks an attempt that succeeded with zero records.
var errEmptyInventory = errors.New("empty inventory")

// Fetcher retrieves inventory snapshots, retrying a bounded number of times
// when the backend returns an empty list. Transport failures and backend
// rejections are never retried.
type Fetcher struct {
	source Source
	delays []time.Duration
	clock  clock.Clock
}

// NewFetcher creates a Fetcher. delays holds the wait before each of the
// MaxRetries extra attempts; nil uses DefaultRetryDelays.
func NewFetcher(source Source, delays []time.Duration, clk clock.Clock) (*Fetcher, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if delays == nil {
		delays = DefaultRetryDelays
	}
	if len(delays) != MaxRetries {
		return nil, fmt.Errorf("expected %d retry delays, got %d", MaxRetries, len(delays))
	}
	for i, d := range delays {
		if d <= 0 {
			return nil, fmt.Errorf("retry delay %d must be positive, got %s", i+1, d)
		}
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Fetcher{
		source: source,
		delays: append([]time.Duration(nil), delays...),
		clock:  clk,
	}, nil
}

// Fetch returns the current inventory. An inventory that is still empty
// after the last retry is returned as an empty snapshot, not an error.
func (f *Fetcher) Fetch(ctx context.Context, rc luci.RequestContext) (luci.Snapshot, error) {
	var snapshot luci.Snapshot
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			s, err := f.source.ListPackages(ctx, rc)
			if err != nil {
				return err
			}
			snapshot = s
			if len(s) == 0 {
				return errEmptyInventory
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errEmptyInventory)
		},
		NotifyFunc: func(err error, attempt int) {
			log.WithField("attempt", attempt).Debug("inventory: backend returned no packages, retrying")
		},
		Attempts: len(f.delays) + 1,
		Delay:    f.delays[0],
		BackoffFunc: func(_ time.Duration, attempt int) time.Duration {
			if attempt > len(f.delays) {
				return f.delays[len(f.delays)-1]
			}
			return f.delays[attempt-1]
		},
		Clock: f.clock,
		Stop:  ctx.Done(),
	})

	switch {
	case err == nil:
		return snapshot, nil
	case retry.IsAttemptsExceeded(err):
		return luci.Snapshot{}, nil
	case retry.IsRetryStopped(err):
		return nil, ctx.Err()
	default:
		return nil, jujuerrors.Cause(err)
	}
}
