package app

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/luciprune/internal/inventory"
	"github.com/blackwell-systems/luciprune/internal/luci"
	"github.com/blackwell-systems/luciprune/internal/output"
	"github.com/blackwell-systems/luciprune/internal/remover"
)

var (
	removeFlagPurge bool
	removeFlagDeps  bool
	removeFlagYes   bool
	removeFlagList  bool

	removeCmd = &cobra.Command{
		Use:   "remove <package> [package...]",
		Short: "Remove packages from the device",
		Long: `Remove one or more packages from the device.

Each package is removed in turn and every removal asks for confirmation
first, unless --yes is given. The removal is sent as a POST; when the
device answers it with anything other than success the same parameters
are sent once more as a GET request. If the device cannot be reached at
all no second request is made.

--purge also deletes the package's configuration files. --remove-deps also
removes the packages that depend on it; it is only available when
variant.remove_dependents is enabled for the device.

After a successful removal the remaining packages are listed again.`,
		Example: `  # Remove a package, keeping its configuration
  luciprune remove luci-app-ddns

  # Remove two packages and their configuration without prompting
  luciprune remove luci-app-ddns luci-app-statistics --purge --yes`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRemove,
	}
)

func init() {
	removeCmd.Flags().BoolVar(&removeFlagPurge, "purge", false, "also remove configuration files")
	removeCmd.Flags().BoolVar(&removeFlagDeps, "remove-deps", false, "also remove packages that depend on it")
	removeCmd.Flags().BoolVarP(&removeFlagYes, "yes", "y", false, "skip confirmation prompts")
	removeCmd.Flags().BoolVar(&removeFlagList, "list", true, "list remaining packages after a successful removal")

	RootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	purge := s.cfg.Variant.DefaultPurge
	if cmd.Flags().Changed("purge") {
		purge = removeFlagPurge
	}
	deps := s.cfg.Variant.DefaultRemoveDependents
	if cmd.Flags().Changed("remove-deps") {
		deps = removeFlagDeps
	}
	if deps && !s.cfg.Variant.RemoveDependents {
		return fmt.Errorf("--remove-deps is not supported by this device (set variant.remove_dependents to enable it)")
	}

	// A removal changes the inventory; list it once the batch is done
	// instead of after every package.
	refreshed := false
	refresher := remover.RefreshFunc(func(context.Context) { refreshed = true })

	orch, err := s.orchestrator(s.confirmer(cmd, removeFlagYes), refresher)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	var errs *multierror.Error
	for _, name := range args {
		outcome := orch.Remove(cmd.Context(), s.requestContext(), luci.RemovalRequest{
			Package:          name,
			Purge:            purge,
			RemoveDependents: deps,
		})
		s.record(outcome)

		switch outcome.State {
		case remover.StateCancelled:
			fmt.Fprintln(s.out, s.printer.Sprintf("Removal cancelled."))
		case remover.StateFailed:
			errs = multierror.Append(errs, fmt.Errorf("%s: %s", name, outcome.Message))
		}
		if cmd.Context().Err() != nil {
			break
		}
	}

	if refreshed && removeFlagList {
		snap, err := s.fetch(cmd.Context())
		if err == nil {
			visible := inventory.Visible(snap, "", s.namePrefix(false))
			fmt.Fprintln(s.out)
			fmt.Fprint(s.out, output.RenderInventoryTable(s.printer, visible, s.view(len(snap))))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return reported(fmt.Errorf("%d of %d removals failed: %w", len(errs.Errors), len(args), err))
	}
	return nil
}
