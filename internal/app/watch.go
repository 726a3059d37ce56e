package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/luciprune/internal/inventory"
	"github.com/blackwell-systems/luciprune/internal/output"
	"github.com/blackwell-systems/luciprune/internal/watcher"
)

var (
	watchInterval time.Duration
	watchAll      bool

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Follow package installs and removals on the device",
		Long: `Poll the device's package list and print the packages that were
installed or removed since the previous poll.

The first poll prints the current package table. Polls that fail are
reported and polling continues. Press ctrl+c to stop.

When the token comes from --token-file, edits to the file take effect on
the next poll.`,
		Example: `  # Poll every 10 seconds
  luciprune watch --interval 10s`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "time between polls")
	watchCmd.Flags().BoolVar(&watchAll, "all", false, "ignore the configured name prefix")

	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", watchInterval)
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	w, err := watcher.New(s.fetcher, s.requestContext, watchInterval)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	prefix := s.namePrefix(watchAll)
	w.OnChange(func(c watcher.Change) {
		snap := inventory.Visible(c.Snapshot, "", prefix)
		if c.Initial {
			fmt.Fprint(s.out, output.RenderInventoryTable(s.printer, snap, s.view(len(c.Snapshot))))
			return
		}
		added := inventory.Visible(c.Added, "", prefix)
		removed := inventory.Visible(c.Removed, "", prefix)
		if len(added) == 0 && len(removed) == 0 {
			return
		}
		fmt.Fprintf(s.out, "\n%s\n", c.At.Format("15:04:05"))
		fmt.Fprint(s.out, output.RenderChange(s.printer, added, removed))
	})
	w.OnError(func(err error) {
		fmt.Fprintln(s.errOut, s.printer.Sprintf("Failed to load package list: %v", err))
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	log.WithField("interval", watchInterval).Debug("watching inventory")

	var updated <-chan struct{}
	if s.tokens != nil {
		updated = s.tokens.Updated()
	}
	for {
		select {
		case <-updated:
			log.WithField("path", s.tokens.Path()).Info("token reloaded")
		case <-ctx.Done():
			return w.Stop()
		}
	}
}
