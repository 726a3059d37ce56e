package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/luciprune/internal/inventory"
	"github.com/blackwell-systems/luciprune/internal/luci"
	"github.com/blackwell-systems/luciprune/internal/output"
	"github.com/blackwell-systems/luciprune/internal/prompt"
	"github.com/blackwell-systems/luciprune/internal/remover"
)

var (
	browseAll bool

	browseCmd = &cobra.Command{
		Use:   "browse",
		Short: "Pick packages to remove interactively",
		Long: `Browse the installed packages in the terminal and remove them one at a
time.

Each round asks for a name filter, shows the matching packages and lets you
pick one along with the removal options. The package list is loaded again
after every successful removal. Choose "Quit" or press ctrl+c to leave.

When the token comes from --token-file, edits to the file take effect on
the next request.`,
		Example: `  luciprune browse --url http://192.168.1.1/cgi-bin/luci --token-file ~/.luci-token`,
		RunE:    runBrowse,
	}
)

func init() {
	browseCmd.Flags().BoolVar(&browseAll, "all", false, "ignore the configured name prefix")

	RootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	if f, ok := cmd.InOrStdin().(*os.File); !ok || !prompt.IsInteractive(f) {
		return fmt.Errorf("browse needs an interactive terminal; use 'luciprune list' and 'luciprune remove' instead")
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	snap, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	refresher := remover.RefreshFunc(func(ctx context.Context) {
		next, err := s.fetch(ctx)
		if err != nil {
			return
		}
		added, removed := inventory.Diff(snap, next)
		log.WithFields(log.Fields{"added": len(added), "removed": len(removed)}).Debug("inventory refreshed")
		snap = next
	})
	orch, err := s.orchestrator(&prompt.FormConfirmer{Printer: s.printer}, refresher)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	opts := prompt.BrowseOptions{
		OfferDependents: s.cfg.Variant.RemoveDependents,
		DefaultPurge:    s.cfg.Variant.DefaultPurge,
		DefaultDeps:     s.cfg.Variant.DefaultRemoveDependents,
	}

	query := ""
	for {
		query, err = prompt.AskFilter(ctx, s.printer, query)
		if err != nil {
			return quietAbort(err)
		}

		visible := inventory.Visible(snap, query, s.namePrefix(browseAll))
		if len(visible) == 0 {
			fmt.Fprint(s.out, output.RenderInventoryTable(s.printer, visible, s.view(len(snap))))
			continue
		}

		choice, err := prompt.PickPackage(ctx, s.printer, visible, opts)
		if err != nil {
			return quietAbort(err)
		}
		if choice.Package == prompt.Quit {
			return nil
		}

		outcome := orch.Remove(ctx, s.requestContext(), luci.RemovalRequest{
			Package:          choice.Package,
			Purge:            choice.Purge,
			RemoveDependents: choice.RemoveDependents,
		})
		s.record(outcome)
		if outcome.State == remover.StateCancelled {
			fmt.Fprintln(s.out, s.printer.Sprintf("Removal cancelled."))
		}
	}
}

// quietAbort turns leaving a form into a normal exit.
func quietAbort(err error) error {
	if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
