package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/luciprune/internal/inventory"
	"github.com/blackwell-systems/luciprune/internal/output"
)

var (
	listFilter string
	listAll    bool
	listFormat string

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Long: `List the packages installed on the device, in the order the device
reports them.

--filter keeps packages whose name contains the given text, ignoring case.
When variant.name_prefix is configured only packages with that prefix are
shown; --all lifts that restriction. Packages installed recently carry a
"new" badge.

When the device reports an empty list it is asked again twice, since a
device that has just booted may not have its package database ready.`,
		Example: `  # All packages
  luciprune list

  # Only packages whose name contains "ddns"
  luciprune list --filter ddns

  # Machine-readable output
  luciprune list --format json`,
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().StringVarP(&listFilter, "filter", "f", "", "show packages whose name contains this text")
	listCmd.Flags().BoolVar(&listAll, "all", false, "ignore the configured name prefix")
	listCmd.Flags().StringVar(&listFormat, "format", output.FormatTable, "output format (table, json, yaml)")

	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	switch listFormat {
	case output.FormatTable, output.FormatJSON, output.FormatYAML:
	default:
		return fmt.Errorf("invalid format %q: must be one of: table, json, yaml", listFormat)
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	snap, err := s.fetch(cmd.Context())
	if err != nil {
		return err
	}
	visible := inventory.Visible(snap, listFilter, s.namePrefix(listAll))

	if listFormat != output.FormatTable {
		records := output.Records(visible, time.Now(), s.cfg.Variant.RecentThreshold)
		return output.WriteRecords(s.out, listFormat, records)
	}
	fmt.Fprint(s.out, output.RenderInventoryTable(s.printer, visible, s.view(len(snap))))
	return nil
}
