package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	log "github.com/sirupsen/logrus"

	"github.com/blackwell-systems/luciprune/internal/inventory"
	"github.com/blackwell-systems/luciprune/internal/luci"
)

// Fetcher returns the current inventory.
type Fetcher interface {
	Fetch(ctx context.Context, rc luci.RequestContext) (luci.Snapshot, error)
}

// Change reports the difference between two consecutive polls. The first
// poll is reported with Initial set and every package in Added.
type Change struct {
	Initial  bool
	Snapshot luci.Snapshot
	Added    luci.Snapshot
	Removed  luci.Snapshot
	At       time.Time
}

// InventoryWatcher polls the inventory on a fixed interval.
type InventoryWatcher struct {
	fetcher  Fetcher
	request  func() luci.RequestContext
	interval time.Duration
	clock    clock.Clock

	onChange func(Change)
	onError  func(error)

	mu      sync.Mutex
	current luci.Snapshot
	started bool

	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an InventoryWatcher. request is called before every poll so
// that a reloaded token takes effect immediately.
func New(fetcher Fetcher, request func() luci.RequestContext, interval time.Duration) (*InventoryWatcher, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if request == nil {
		return nil, fmt.Errorf("request context func cannot be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return &InventoryWatcher{
		fetcher:  fetcher,
		request:  request,
		interval: interval,
		clock:    clock.WallClock,
		onChange: func(Change) {},
		onError:  func(error) {},
		stopCh:   make(chan struct{}),
	}, nil
}

// SetClock replaces the wall clock (useful for testing). Must be called
// before Start.
func (w *InventoryWatcher) SetClock(clk clock.Clock) {
	w.clock = clk
}

// OnChange registers the callback for inventory changes. Polls that find
// no change are not reported.
func (w *InventoryWatcher) OnChange(fn func(Change)) {
	w.onChange = fn
}

// OnError registers the callback for failed polls. The watcher keeps
// polling after an error.
func (w *InventoryWatcher) OnError(fn func(error)) {
	w.onError = fn
}

// Current returns the last snapshot fetched.
func (w *InventoryWatcher) Current() luci.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start polls once immediately and then on every interval until Stop is
// called or ctx is done.
func (w *InventoryWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.started = true
	w.mu.Unlock()

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *InventoryWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	first := true
	for {
		if w.poll(ctx, first) {
			first = false
		}

		select {
		case <-w.clock.After(w.interval):
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// poll fetches once and reports the result. It returns whether a snapshot
// was obtained.
func (w *InventoryWatcher) poll(ctx context.Context, initial bool) bool {
	next, err := w.fetcher.Fetch(ctx, w.request())
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Debug("watcher: poll failed")
			w.onError(err)
		}
		return false
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	w.mu.Unlock()

	change := Change{Initial: initial, Snapshot: next, At: w.clock.Now()}
	if initial {
		change.Added = next
	} else {
		change.Added, change.Removed = inventory.Diff(prev, next)
		if len(change.Added) == 0 && len(change.Removed) == 0 {
			return true
		}
	}
	w.onChange(change)
	return true
}

// Stop halts polling and waits for an in-flight poll to finish.
func (w *InventoryWatcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopCh)
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}
