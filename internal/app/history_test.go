package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/luciprune/internal/mockbackend"
	"github.com/blackwell-systems/luciprune/internal/store"
)

func TestHistoryCommand(t *testing.T) {
	if historyCmd.Use != "history" {
		t.Errorf("expected Use to be 'history', got '%s'", historyCmd.Use)
	}

	found := false
	for _, sub := range historyCmd.Commands() {
		if sub.Name() == "show" {
			found = true
		}
	}
	if !found {
		t.Error("expected 'history show' to be registered")
	}

	limit := historyCmd.Flags().Lookup("limit")
	if limit == nil || limit.DefValue != "20" {
		t.Error("expected --limit flag defaulting to 20")
	}
}

func TestHistory_NoJournal(t *testing.T) {
	env := newTestEnv(t, nil, mockbackend.Options{})

	stdout, _, err := env.run(t, "", "history")
	require.NoError(t, err)
	assert.Equal(t, "No removals recorded.\n", stdout)
	assert.NoFileExists(t, env.db, "reading history must not create the journal")
}

func TestHistory_ListAndShow(t *testing.T) {
	env := newTestEnv(t, []mockbackend.Package{{Name: "app-a"}, {Name: "app-b"}}, mockbackend.Options{RejectPost: true})

	_, _, err := env.run(t, "", "remove", "app-a", "--yes", "--list=false")
	require.NoError(t, err)
	_, _, err = env.run(t, "n\n", "remove", "app-b")
	require.NoError(t, err)

	stdout, _, err := env.run(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "app-a")
	assert.Contains(t, stdout, "app-b")
	assert.Contains(t, stdout, "succeeded")
	assert.Contains(t, stdout, "cancelled")

	stdout, _, err = env.run(t, "", "history", "--state", "succeeded")
	require.NoError(t, err)
	assert.Contains(t, stdout, "app-a")
	assert.NotContains(t, stdout, "app-b")

	recorded := journal(t, env)
	var id string
	for _, r := range recorded {
		if r.Package == "app-a" {
			id = r.ID
		}
	}
	require.NotEmpty(t, id)

	stdout, _, err = env.run(t, "", "history", "show", id[:8])
	require.NoError(t, err)
	assert.Contains(t, stdout, "Package:  app-a")
	assert.Contains(t, stdout, "Path:     fallback")
	assert.Contains(t, stdout, "primary: POST")
	assert.Contains(t, stdout, "fallback: GET")
	assert.Contains(t, stdout, "fallback: response: {\"ok\":true}")
}

func TestHistory_ShowUnknown(t *testing.T) {
	env := newTestEnv(t, nil, mockbackend.Options{})

	_, _, err := env.run(t, "", "history", "show", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestHistory_Prune(t *testing.T) {
	env := newTestEnv(t, nil, mockbackend.Options{})

	st, err := store.Open(env.db)
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, st.RecordOutcome(&store.Removal{ID: "old", Package: "app-a", State: "succeeded", StartedAt: old, FinishedAt: old}))
	require.NoError(t, st.RecordOutcome(&store.Removal{ID: "new", Package: "app-b", State: "failed", StartedAt: time.Now(), FinishedAt: time.Now()}))
	require.NoError(t, st.Close())

	stdout, _, err := env.run(t, "", "history", "--prune", "24h")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Deleted 1 removal(s)")

	recorded := journal(t, env)
	require.Len(t, recorded, 1)
	assert.Equal(t, "new", recorded[0].ID)
}

func TestHistory_InvalidFlags(t *testing.T) {
	env := newTestEnv(t, nil, mockbackend.Options{})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown state", []string{"history", "--state", "done"}, "invalid state"},
		{"negative limit", []string{"history", "--limit", "-1"}, "--limit"},
		{"negative prune", []string{"history", "--prune", "-1h"}, "--prune"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.run(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
