package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/blackwell-systems/luciprune/internal/config"
	"github.com/blackwell-systems/luciprune/internal/inventory"
	"github.com/blackwell-systems/luciprune/internal/locale"
	"github.com/blackwell-systems/luciprune/internal/luci"
	"github.com/blackwell-systems/luciprune/internal/output"
	"github.com/blackwell-systems/luciprune/internal/prompt"
	"github.com/blackwell-systems/luciprune/internal/remover"
	"github.com/blackwell-systems/luciprune/internal/store"
	"github.com/blackwell-systems/luciprune/internal/watcher"
)

// flagKeys maps config keys to the persistent flags that override them.
var flagKeys = map[string]string{
	"backend.url":        "url",
	"backend.token":      "token",
	"backend.token_file": "token-file",
	"backend.locale":     "locale",
	"journal.path":       "db",
}

// loadConfig reads and validates the configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile: cfgFile,
		Flags:      cmd.Flags(),
		FlagKeys:   flagKeys,
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// session bundles what a command needs to talk to one device.
type session struct {
	cfg     *config.Config
	printer *message.Printer
	client  *luci.Client
	fetcher *inventory.Fetcher
	tokens  *watcher.TokenFile // nil when the token is static
	journal *store.Store       // opened on first use
	out     io.Writer
	errOut  io.Writer
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	transport, err := luci.NewTransport(cfg.Backend.Transport, luci.DefaultHTTPClient(cfg.Backend.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	client, err := luci.NewClient(transport, cfg.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	fetcher, err := inventory.NewFetcher(client, cfg.Fetch.RetryDelays, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	s := &session{
		cfg:     cfg,
		printer: locale.Printer(cfg.Backend.Locale),
		client:  client,
		fetcher: fetcher,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
	}

	// An explicit token wins over the token file.
	if cfg.Backend.Token == "" && cfg.Backend.TokenFile != "" {
		tf, err := watcher.OpenTokenFile(cfg.Backend.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token file: %w", err)
		}
		s.tokens = tf
	}

	log.WithFields(log.Fields{
		"url":       cfg.Backend.URL,
		"transport": cfg.Backend.Transport,
		"encoding":  cfg.Remove.Encoding,
		"config":    cfg.File,
	}).Debug("session ready")
	return s, nil
}

func (s *session) close() {
	if s.tokens != nil {
		s.tokens.Close()
	}
	if s.journal != nil {
		s.journal.Close()
	}
}

// requestContext returns the request context with the current token.
func (s *session) requestContext() luci.RequestContext {
	tok := s.cfg.Backend.Token
	if s.tokens != nil {
		tok = s.tokens.Token()
	}
	return s.cfg.RequestContext(tok)
}

// fetch loads the inventory, reporting a failure to the operator.
func (s *session) fetch(ctx context.Context) (luci.Snapshot, error) {
	snap, err := s.fetcher.Fetch(ctx, s.requestContext())
	if err != nil {
		s.notifier().Notify(remover.Notification{
			Level:   remover.LevelDanger,
			Message: s.printer.Sprintf("Failed to load package list: %v", err),
		})
		return nil, reported(err)
	}
	return snap, nil
}

func (s *session) notifier() *output.Notifier {
	return output.NewNotifier(s.out, s.errOut)
}

// namePrefix returns the name prefix restricting listed packages.
func (s *session) namePrefix(all bool) string {
	if all {
		return ""
	}
	return s.cfg.Variant.NamePrefix
}

// view returns the table layout for a filtered snapshot taken from total
// installed packages.
func (s *session) view(total int) output.InventoryView {
	v := output.InventoryView{
		Now:             time.Now(),
		RecentThreshold: s.cfg.Variant.RecentThreshold,
	}
	if total > 0 {
		v.Empty = s.printer.Sprintf("No packages match the filter.")
	}
	return v
}

// confirmer picks how removals are confirmed for cmd's input.
func (s *session) confirmer(cmd *cobra.Command, assumeYes bool) remover.Confirmer {
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		return prompt.NewConfirmer(s.printer, assumeYes, f, s.out)
	}
	if assumeYes {
		return &prompt.AutoConfirmer{Out: s.out}
	}
	return prompt.NewLineConfirmer(cmd.InOrStdin(), s.out)
}

func (s *session) orchestrator(confirmer remover.Confirmer, refresher remover.Refresher) (*remover.Orchestrator, error) {
	progress := output.NewProgressLog(s.out, verbose, s.cfg.Backend.Timeout)
	return remover.New(remover.Config{
		Backend:   s.client,
		Confirmer: confirmer,
		Notifier:  s.notifier().Above(progress),
		Progress:  progress,
		Refresher: refresher,
	})
}

// record journals a finished workflow. Journal problems never fail the
// command.
func (s *session) record(o remover.Outcome) {
	if s.journal == nil {
		st, err := store.Open(s.cfg.Journal.Path)
		if err != nil {
			log.WithError(err).WithField("path", s.cfg.Journal.Path).Warn("journal unavailable, outcome not recorded")
			return
		}
		s.journal = st
	}
	if err := s.journal.RecordOutcome(store.FromOutcome(o)); err != nil {
		log.WithError(err).WithField("operation", o.ID).Warn("failed to record outcome")
	}
}
