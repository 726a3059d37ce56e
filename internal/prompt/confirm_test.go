package prompt

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/luciprune/internal/locale"
	"github.com/blackwell-systems/luciprune/internal/remover"
)

func TestLineConfirmer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"y", "y\n", true},
		{"yes uppercase", "YES\n", true},
		{"padded", "  yes  \n", true},
		{"n", "n\n", false},
		{"empty line", "\n", false},
		{"no newline", "y", true},
		{"end of input", "", false},
		{"other", "sure\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewLineConfirmer(strings.NewReader(tt.input), &out)

			got, err := c.Confirm(context.Background(), remover.Prompt{Title: "Remove package app-a?"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Remove package app-a? [y/N]: ")
		})
	}
}

func TestLineConfirmer_ShowsDetail(t *testing.T) {
	var out bytes.Buffer
	c := NewLineConfirmer(strings.NewReader("n\n"), &out)

	_, err := c.Confirm(context.Background(), remover.Prompt{
		Title:  "Remove package app-a?",
		Detail: "Configuration files will also be removed.",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "Configuration files will also be removed.\n"))
}

func TestLineConfirmer_Sequential(t *testing.T) {
	c := NewLineConfirmer(strings.NewReader("y\nn\n"), &bytes.Buffer{})

	first, err := c.Confirm(context.Background(), remover.Prompt{Title: "a"})
	require.NoError(t, err)
	second, err := c.Confirm(context.Background(), remover.Prompt{Title: "b"})
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestAutoConfirmer(t *testing.T) {
	var out bytes.Buffer
	ok, err := (&AutoConfirmer{Out: &out}).Confirm(context.Background(), remover.Prompt{Title: "Remove package app-a?"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Remove package app-a? [y/N]: y\n", out.String())
}

func TestNewConfirmer_Selection(t *testing.T) {
	p := locale.Printer("en")

	assert.IsType(t, &AutoConfirmer{}, NewConfirmer(p, true, nil, &bytes.Buffer{}))
	// A nil file is never a terminal.
	assert.IsType(t, &LineConfirmer{}, NewConfirmer(p, false, nil, &bytes.Buffer{}))
}
