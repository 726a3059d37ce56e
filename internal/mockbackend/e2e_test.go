package mockbackend_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/luciprune/internal/inventory"
	"github.com/blackwell-systems/luciprune/internal/luci"
	"github.com/blackwell-systems/luciprune/internal/mockbackend"
	"github.com/blackwell-systems/luciprune/internal/remover"
)

type yes struct{}

func (yes) Confirm(context.Context, remover.Prompt) (bool, error) { return true, nil }

type session struct {
	backend *mockbackend.Server
	rc      luci.RequestContext
	client  *luci.Client
	fetcher *inventory.Fetcher
}

func newSession(t *testing.T, transport string, seed []mockbackend.Package, opts mockbackend.Options) *session {
	t.Helper()
	backend := mockbackend.New(seed, opts)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	tr, err := luci.NewTransport(transport, luci.DefaultHTTPClient(5*time.Second))
	require.NoError(t, err)
	client, err := luci.NewClient(tr, luci.ClientConfig{})
	require.NoError(t, err)
	fetcher, err := inventory.NewFetcher(client, []time.Duration{time.Millisecond, time.Millisecond}, nil)
	require.NoError(t, err)

	return &session{
		backend: backend,
		rc:      luci.RequestContext{BaseURL: backend.BaseURL(srv.URL), Token: opts.Token, Locale: "en"},
		client:  client,
		fetcher: fetcher,
	}
}

func TestEndToEnd_FilterRemoveRefresh(t *testing.T) {
	for _, transport := range []string{luci.TransportFetch, luci.TransportRequest} {
		t.Run(transport, func(t *testing.T) {
			s := newSession(t, transport,
				[]mockbackend.Package{{Name: "app-a", Version: "1.0"}},
				mockbackend.Options{Token: "secret"})
			ctx := context.Background()

			snap, err := s.fetcher.Fetch(ctx, s.rc)
			require.NoError(t, err)
			assert.Equal(t, []string{"app-a"}, inventory.Visible(snap, "a", "").Names())
			assert.Empty(t, inventory.Visible(snap, "z", ""))

			var refreshed luci.Snapshot
			orch, err := remover.New(remover.Config{
				Backend:   s.client,
				Confirmer: yes{},
				Refresher: remover.RefreshFunc(func(ctx context.Context) {
					refreshed, err = s.fetcher.Fetch(ctx, s.rc)
					require.NoError(t, err)
				}),
			})
			require.NoError(t, err)

			out := orch.Remove(ctx, s.rc, luci.RemovalRequest{Package: "app-a"})
			assert.Equal(t, remover.StateSucceeded, out.State)
			assert.Equal(t, luci.PathPrimary, out.Path)
			assert.NotNil(t, refreshed)
			assert.Empty(t, refreshed)
		})
	}
}

func TestEndToEnd_BlockedPostFallsBackToGet(t *testing.T) {
	for _, transport := range []string{luci.TransportFetch, luci.TransportRequest} {
		t.Run(transport, func(t *testing.T) {
			s := newSession(t, transport,
				[]mockbackend.Package{{Name: "app-a"}, {Name: "app-b"}},
				mockbackend.Options{Token: "secret", RejectPost: true})

			orch, err := remover.New(remover.Config{Backend: s.client, Confirmer: yes{}})
			require.NoError(t, err)

			out := orch.Remove(context.Background(), s.rc, luci.RemovalRequest{Package: "app-a", Purge: true})
			assert.Equal(t, remover.StateSucceeded, out.State)
			assert.Equal(t, luci.PathFallback, out.Path)

			removals := s.backend.Removals()
			require.Len(t, removals, 1)
			assert.Equal(t, "GET", removals[0].Method)
			assert.True(t, removals[0].Purge)
			for _, line := range out.Trace {
				assert.NotContains(t, line, "secret")
			}
		})
	}
}

func TestEndToEnd_BackendRefusal(t *testing.T) {
	s := newSession(t, luci.TransportAuto,
		[]mockbackend.Package{{Name: "lib"}, {Name: "app", Depends: []string{"lib"}}},
		mockbackend.Options{})

	orch, err := remover.New(remover.Config{Backend: s.client, Confirmer: yes{}})
	require.NoError(t, err)

	out := orch.Remove(context.Background(), s.rc, luci.RemovalRequest{Package: "lib"})
	assert.Equal(t, remover.StateFailed, out.State)
	assert.Equal(t, luci.PathFallback, out.Path)
	assert.Equal(t, "Package lib is depended upon by: app", out.Message)
	assert.Len(t, s.backend.Packages(), 2)
}

func TestEndToEnd_BootTimeEmptyList(t *testing.T) {
	s := newSession(t, luci.TransportAuto,
		[]mockbackend.Package{{Name: "app-a"}},
		mockbackend.Options{EmptyListCalls: 2})

	snap, err := s.fetcher.Fetch(context.Background(), s.rc)
	require.NoError(t, err)
	assert.Equal(t, []string{"app-a"}, snap.Names())
	assert.Equal(t, 3, s.backend.ListCalls())
}

func TestEndToEnd_UnreachableBackend(t *testing.T) {
	s := newSession(t, luci.TransportAuto, []mockbackend.Package{{Name: "app-a"}}, mockbackend.Options{})
	s.rc.BaseURL = "http://127.0.0.1:1/cgi-bin/luci"

	orch, err := remover.New(remover.Config{Backend: s.client, Confirmer: yes{}})
	require.NoError(t, err)

	out := orch.Remove(context.Background(), s.rc, luci.RemovalRequest{Package: "app-a"})
	assert.Equal(t, remover.StateFailed, out.State)
	assert.Equal(t, luci.PathPrimary, out.Path, "no fallback after a connection failure")
	assert.Contains(t, out.Message, "Request failed")
}
