package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/luciprune/internal/output"
	"github.com/blackwell-systems/luciprune/internal/remover"
	"github.com/blackwell-systems/luciprune/internal/store"
)

var (
	historyLimit   int
	historyPackage string
	historyState   string
	historyPrune   time.Duration

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show past removals",
		Long: `Show the removals recorded in the local journal, newest first.

Every removal is recorded, including cancelled ones, together with the
requests that were sent and the responses received. Use 'history show'
with an ID, or a unique prefix of one, to see the full trace.

--prune deletes entries that finished longer ago than the given duration.`,
		Example: `  # The last 20 removals
  luciprune history

  # Failed removals of one package
  luciprune history --package luci-app-ddns --state failed

  # Forget removals older than 30 days
  luciprune history --prune 720h`,
		RunE: runHistory,
	}

	historyShowCmd = &cobra.Command{
		Use:   "show <id>",
		Short: "Show one removal with its request trace",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of removals to show (0 for all)")
	historyCmd.Flags().StringVar(&historyPackage, "package", "", "only show removals of this package")
	historyCmd.Flags().StringVar(&historyState, "state", "", "only show removals in this state (succeeded, failed, cancelled)")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "delete removals that finished longer ago than this")

	historyCmd.AddCommand(historyShowCmd)
	RootCmd.AddCommand(historyCmd)
}

// openJournal opens the journal for reading. It returns nil without error
// when no journal exists yet.
func openJournal(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Journal.Path); os.IsNotExist(err) {
		return nil, nil
	}
	st, err := store.New(cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return st, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	switch remover.State(historyState) {
	case "", remover.StateSucceeded, remover.StateFailed, remover.StateCancelled:
	default:
		return fmt.Errorf("invalid state %q: must be one of: succeeded, failed, cancelled", historyState)
	}
	if historyLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	if historyPrune < 0 {
		return fmt.Errorf("--prune must not be negative")
	}

	out := cmd.OutOrStdout()
	st, err := openJournal(cmd)
	if err != nil {
		return err
	}
	if st == nil {
		fmt.Fprint(out, output.RenderRemovalTable(nil))
		return nil
	}
	defer st.Close()

	if historyPrune > 0 {
		cutoff := time.Now().Add(-historyPrune)
		n, err := st.DeleteRemovalsBefore(cutoff)
		if err != nil && !errors.Is(err, store.ErrNotInitialized) {
			return fmt.Errorf("failed to prune journal: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d removal(s) finished before %s.\n", n, humanize.Time(cutoff))
		return nil
	}

	removals, err := st.ListRemovals(store.RemovalFilter{
		Package: historyPackage,
		State:   historyState,
		Limit:   historyLimit,
	})
	if err != nil && !errors.Is(err, store.ErrNotInitialized) {
		return fmt.Errorf("failed to list removals: %w", err)
	}
	fmt.Fprint(out, output.RenderRemovalTable(removals))
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	st, err := openJournal(cmd)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("removal %s not found: no removals recorded", args[0])
	}
	defer st.Close()

	r, err := st.GetRemoval(args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderRemovalDetail(r))
	return nil
}
