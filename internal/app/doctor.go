package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/luciprune/internal/config"
	"github.com/blackwell-systems/luciprune/internal/luci"
	"github.com/blackwell-systems/luciprune/internal/output"
	"github.com/blackwell-systems/luciprune/internal/store"
	"github.com/blackwell-systems/luciprune/internal/watcher"
)

var doctorTimeout time.Duration

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and connectivity",
	Long: `Runs diagnostic checks on your luciprune setup.

Checks:
  • Configuration is valid
  • A session token is available
  • The device answers the package list endpoint
  • The removal journal can be opened`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 10*time.Second, "time allowed for the backend check")

	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Running luciprune diagnostics...")
	fmt.Fprintln(out)

	criticalIssues := 0
	warningIssues := 0

	// Check 1: configuration
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintln(out, "✗ Configuration:", err)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Found 1 critical issue.")
		return reported(fmt.Errorf("diagnostics failed"))
	}
	if cfg.File != "" {
		fmt.Fprintln(out, "✓ Config file:", cfg.File)
	} else {
		fmt.Fprintln(out, "✓ Using defaults (no config file)")
	}
	fmt.Fprintf(out, "  Backend: %s (transport %s, encoding %s)\n", cfg.Backend.URL, cfg.Backend.Transport, cfg.Remove.Encoding)

	// Check 2: token
	tok := cfg.Backend.Token
	switch {
	case tok != "":
		fmt.Fprintln(out, "✓ Token set")
	case cfg.Backend.TokenFile != "":
		tf, err := watcher.OpenTokenFile(cfg.Backend.TokenFile)
		if err != nil {
			fmt.Fprintln(out, "✗ Token file unreadable:", err)
			criticalIssues++
		} else {
			tok = tf.Token()
			tf.Close()
			if tok == "" {
				fmt.Fprintln(out, "⚠ Token file is empty; requests are sent without a token:", cfg.Backend.TokenFile)
				warningIssues++
			} else {
				fmt.Fprintln(out, "✓ Token file:", cfg.Backend.TokenFile)
			}
		}
	default:
		fmt.Fprintln(out, "⚠ No token configured; removals will be rejected by most devices")
		fmt.Fprintln(out, "  Action: set backend.token_file or pass --token-file")
		warningIssues++
	}

	// Check 3: backend answers the list endpoint, without retries
	client, err := doctorClient(cfg)
	if err != nil {
		fmt.Fprintln(out, "✗ Cannot create backend client:", err)
		criticalIssues++
	} else {
		spinner := output.NewSpinner("Contacting backend...")
		spinner.SetWriter(out)
		spinner.Start()

		ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
		snap, err := client.ListPackages(ctx, cfg.RequestContext(tok))
		cancel()

		switch {
		case err != nil:
			spinner.StopWithMessage(fmt.Sprintf("✗ Backend check failed: %v", err))
			if luci.IsConnectionFailure(err) {
				fmt.Fprintln(out, "  Action: check backend.url and that the device is reachable")
			}
			criticalIssues++
		case len(snap) == 0:
			spinner.StopWithMessage("⚠ Backend reports no installed packages")
			fmt.Fprintln(out, "  This is normal for a device that is still booting")
			warningIssues++
		default:
			spinner.StopWithMessage(fmt.Sprintf("✓ Backend reachable (%d packages installed)", len(snap)))
		}
	}

	// Check 4: journal
	if _, statErr := os.Stat(cfg.Journal.Path); os.IsNotExist(statErr) {
		fmt.Fprintln(out, "✓ Journal will be created at:", cfg.Journal.Path)
	} else if st, err := store.New(cfg.Journal.Path); err != nil {
		fmt.Fprintln(out, "⚠ Cannot open journal:", err)
		warningIssues++
	} else {
		removals, err := st.ListRemovals(store.RemovalFilter{})
		switch {
		case errors.Is(err, store.ErrNotInitialized):
			fmt.Fprintln(out, "✓ Journal found (empty):", cfg.Journal.Path)
		case err != nil:
			fmt.Fprintln(out, "⚠ Cannot read journal:", err)
			warningIssues++
		default:
			fmt.Fprintf(out, "✓ Journal found: %s (%d removals recorded)\n", cfg.Journal.Path, len(removals))
		}
		st.Close()
	}

	fmt.Fprintln(out)
	if criticalIssues == 0 && warningIssues == 0 {
		fmt.Fprintln(out, "✓ All checks passed!")
		return nil
	}
	if criticalIssues > 0 {
		fmt.Fprintf(out, "Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return reported(fmt.Errorf("diagnostics failed"))
	}
	fmt.Fprintf(out, "Found %d warning(s). luciprune is usable but not fully configured.\n", warningIssues)
	return nil
}

func doctorClient(cfg *config.Config) (*luci.Client, error) {
	transport, err := luci.NewTransport(cfg.Backend.Transport, luci.DefaultHTTPClient(doctorTimeout))
	if err != nil {
		return nil, err
	}
	return luci.NewClient(transport, cfg.ClientConfig())
}
