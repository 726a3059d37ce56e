// Package prompt asks the operator questions, either with interactive
// terminal forms or with plain line prompts when stdin is not a terminal.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/message"

	"github.com/blackwell-systems/luciprune/internal/remover"
)

// IsInteractive reports whether f is a terminal.
func IsInteractive(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewConfirmer picks the confirmer for the current session: automatic when
// assumeYes is set, a form on a terminal, a [y/N] line prompt otherwise.
func NewConfirmer(p *message.Printer, assumeYes bool, in *os.File, out io.Writer) remover.Confirmer {
	switch {
	case assumeYes:
		return &AutoConfirmer{Out: out}
	case IsInteractive(in):
		return &FormConfirmer{Printer: p}
	default:
		return NewLineConfirmer(in, out)
	}
}

// FormConfirmer asks with a huh confirm field.
type FormConfirmer struct {
	Printer *message.Printer
}

// Confirm implements remover.Confirmer. Aborting the form (ctrl+c) is
// reported as huh.ErrUserAborted, which the orchestrator treats as "no".
func (c *FormConfirmer) Confirm(ctx context.Context, pr remover.Prompt) (bool, error) {
	var ok bool
	confirm := huh.NewConfirm().
		Title(pr.Title).
		Affirmative(c.Printer.Sprintf("Yes")).
		Negative(c.Printer.Sprintf("No")).
		Value(&ok)
	if pr.Detail != "" {
		confirm = confirm.Description(pr.Detail)
	}

	if err := huh.NewForm(huh.NewGroup(confirm)).RunWithContext(ctx); err != nil {
		return false, err
	}
	return ok, nil
}

// LineConfirmer reads a y/N answer from a line-oriented reader.
type LineConfirmer struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewLineConfirmer creates a LineConfirmer.
func NewLineConfirmer(in io.Reader, out io.Writer) *LineConfirmer {
	if out == nil {
		out = os.Stdout
	}
	return &LineConfirmer{reader: bufio.NewReader(in), out: out}
}

// Confirm implements remover.Confirmer. Only "y" and "yes" confirm; an
// empty answer or end of input declines.
func (c *LineConfirmer) Confirm(_ context.Context, pr remover.Prompt) (bool, error) {
	if pr.Detail != "" {
		fmt.Fprintln(c.out, pr.Detail)
	}
	fmt.Fprintf(c.out, "%s [y/N]: ", pr.Title)

	response, err := c.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && response != "") {
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out)
			return false, nil
		}
		return false, fmt.Errorf("failed to read answer: %w", err)
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

// AutoConfirmer approves every prompt, echoing it for the record.
type AutoConfirmer struct {
	Out io.Writer
}

// Confirm implements remover.Confirmer.
func (c *AutoConfirmer) Confirm(_ context.Context, pr remover.Prompt) (bool, error) {
	if c.Out != nil {
		fmt.Fprintf(c.Out, "%s [y/N]: y\n", pr.Title)
	}
	return true, nil
}
