package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/luciprune/internal/luci"
)

// stubSource replays a fixed sequence of results, repeating the last one.
type stubSource struct {
	mu      sync.Mutex
	results []luci.Snapshot
	err     error
	calls   int
}

func (s *stubSource) ListPackages(_ context.Context, _ luci.RequestContext) (luci.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	return s.results[idx], nil
}

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var rc = luci.RequestContext{BaseURL: "http://router.lan"}

func fastFetcher(t *testing.T, src Source) *Fetcher {
	t.Helper()
	f, err := NewFetcher(src, []time.Duration{time.Millisecond, 2 * time.Millisecond}, clock.WallClock)
	require.NoError(t, err)
	return f
}

func TestFetch_FirstAttemptNonEmpty(t *testing.T) {
	src := &stubSource{results: []luci.Snapshot{{{Name: "app-a"}}}}

	snap, err := fastFetcher(t, src).Fetch(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, []string{"app-a"}, snap.Names())
	assert.Equal(t, 1, src.Calls())
}

func TestFetch_EmptyTwiceThenNonEmpty(t *testing.T) {
	src := &stubSource{results: []luci.Snapshot{{}, {}, {{Name: "app-a", Version: "1.0"}}}}

	snap, err := fastFetcher(t, src).Fetch(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, []string{"app-a"}, snap.Names())
	assert.Equal(t, 3, src.Calls())
}

func TestFetch_EmptyThreeTimesIsEmptySnapshot(t *testing.T) {
	src := &stubSource{results: []luci.Snapshot{{}}}

	snap, err := fastFetcher(t, src).Fetch(context.Background(), rc)
	require.NoError(t, err)
	assert.NotNil(t, snap)
	assert.Empty(t, snap)
	assert.Equal(t, 3, src.Calls(), "exactly two extra attempts")
}

func TestFetch_TransportErrorIsNotRetried(t *testing.T) {
	want := &luci.TransportError{Method: "GET", URL: "http://router.lan", Kind: luci.ConnectionFailed, Err: errors.New("refused")}
	src := &stubSource{err: want}

	_, err := fastFetcher(t, src).Fetch(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, luci.IsConnectionFailure(err))
	assert.Equal(t, 1, src.Calls())
}

func TestFetch_RejectionIsNotRetried(t *testing.T) {
	src := &stubSource{err: &luci.RejectionError{Message: "malformed package list"}}

	_, err := fastFetcher(t, src).Fetch(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, luci.IsRejection(err))
	assert.Equal(t, 1, src.Calls())
}

func TestFetch_WaitsConfiguredDelays(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	src := &stubSource{results: []luci.Snapshot{{}, {}, {{Name: "app-a"}}}}
	f, err := NewFetcher(src, nil, clk)
	require.NoError(t, err)

	type result struct {
		snap luci.Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := f.Fetch(context.Background(), rc)
		done <- result{snap, err}
	}()

	require.NoError(t, clk.WaitAdvance(300*time.Millisecond, time.Second, 1))
	require.NoError(t, clk.WaitAdvance(500*time.Millisecond, time.Second, 1))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, []string{"app-a"}, r.snap.Names())
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not return after both retry delays elapsed")
	}
	assert.Equal(t, 3, src.Calls())
}

func TestFetch_ContextCancelledDuringWait(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	src := &stubSource{results: []luci.Snapshot{{}}}
	f, err := NewFetcher(src, nil, clk)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, rc)
		done <- err
	}()

	// Wait until the fetcher is blocked on its first delay.
	require.NoError(t, clk.WaitAdvance(0, time.Second, 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not return after cancellation")
	}
}

func TestNewFetcher_Validation(t *testing.T) {
	_, err := NewFetcher(nil, nil, nil)
	assert.Error(t, err)

	_, err = NewFetcher(&stubSource{}, []time.Duration{time.Second, 0}, nil)
	assert.Error(t, err)

	for _, delays := range [][]time.Duration{
		{},
		{time.Millisecond},
		{time.Millisecond, time.Millisecond, time.Millisecond, time.Millisecond},
	} {
		_, err = NewFetcher(&stubSource{}, delays, nil)
		require.Error(t, err, "%d delays", len(delays))
		assert.Contains(t, err.Error(), "expected 2 retry delays")
	}
}

func TestFetch_NeverExceedsTwoRetries(t *testing.T) {
	src := &stubSource{results: []luci.Snapshot{{}}}
	f, err := NewFetcher(src, []time.Duration{time.Millisecond, time.Millisecond}, nil)
	require.NoError(t, err)

	snap, err := f.Fetch(context.Background(), rc)
	require.NoError(t, err)
	assert.Empty(t, snap)
	assert.Equal(t, 1+MaxRetries, src.Calls())
}
