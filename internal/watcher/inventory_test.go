package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/luciprune/internal/luci"
)

// scriptedFetcher replays results in order, repeating the last one.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	tokens  []string
}

type fetchResult struct {
	snap luci.Snapshot
	err  error
}

func (f *scriptedFetcher) Fetch(_ context.Context, rc luci.RequestContext) (luci.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tokens = append(f.tokens, rc.Token)
	idx := f.calls - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx].snap, f.results[idx].err
}

func names(pkgs ...string) luci.Snapshot {
	s := make(luci.Snapshot, len(pkgs))
	for i, n := range pkgs {
		s[i] = luci.Package{Name: n}
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	rc := func() luci.RequestContext { return luci.RequestContext{} }

	_, err := New(nil, rc, time.Second)
	assert.Error(t, err)
	_, err = New(&scriptedFetcher{}, nil, time.Second)
	assert.Error(t, err)
	_, err = New(&scriptedFetcher{}, rc, 0)
	assert.Error(t, err)
}

func TestInventoryWatcher_ReportsChanges(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	fetcher := &scriptedFetcher{results: []fetchResult{
		{snap: names("app-a", "app-b")},
		{snap: names("app-a", "app-b")},
		{err: errors.New("connection refused")},
		{snap: names("app-a", "app-c")},
	}}

	token := "t1"
	w, err := New(fetcher, func() luci.RequestContext { return luci.RequestContext{Token: token} }, time.Minute)
	require.NoError(t, err)
	w.SetClock(clk)

	changes := make(chan Change, 10)
	errs := make(chan error, 10)
	w.OnChange(func(c Change) { changes <- c })
	w.OnError(func(err error) { errs <- err })

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	first := receive(t, changes)
	assert.True(t, first.Initial)
	assert.Equal(t, []string{"app-a", "app-b"}, first.Added.Names())

	// Unchanged poll is not reported.
	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))

	// Failed poll is reported and polling continues.
	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "connection refused")
	case <-time.After(5 * time.Second):
		t.Fatal("poll error was not reported")
	}

	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
	change := receive(t, changes)
	assert.False(t, change.Initial)
	assert.Equal(t, []string{"app-c"}, change.Added.Names())
	assert.Equal(t, []string{"app-b"}, change.Removed.Names())
	assert.Equal(t, []string{"app-a", "app-c"}, w.Current().Names())

	select {
	case c := <-changes:
		t.Fatalf("unexpected extra change %+v", c)
	default:
	}
}

func TestInventoryWatcher_StopIsIdempotent(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{{snap: names("app-a")}}}
	w, err := New(fetcher, func() luci.RequestContext { return luci.RequestContext{} }, time.Hour)
	require.NoError(t, err)

	assert.NoError(t, w.Stop(), "stop before start")
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start")
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestInventoryWatcher_StopsWithContext(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{{snap: names("app-a")}}}
	w, err := New(fetcher, func() luci.RequestContext { return luci.RequestContext{} }, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}
