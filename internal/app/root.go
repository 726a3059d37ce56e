package app

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	backendURL   string
	backendToken string
	tokenFile    string
	localeTag    string
	dbPath       string
	verbose      bool

	// RootCmd is the root command for luciprune
	RootCmd = &cobra.Command{
		Use:   "luciprune",
		Short: "Remove packages from OpenWrt devices through LuCI",
		Long: `luciprune lists the packages installed on an OpenWrt device and removes
them through the LuCI uninstall endpoints, the same way the web interface
does.

Every removal asks for confirmation first. When the device rejects or
mis-routes the removal POST, luciprune retries once with a GET request
carrying the same parameters. Outcomes are recorded in a local journal.

Configuration is read from ~/.config/luciprune/config.yaml, from
LUCIPRUNE_* environment variables and from the flags below.

Examples:
  # List installed packages
  luciprune list --url http://192.168.1.1/cgi-bin/luci --token-file ~/.luci-token

  # Remove a package and its configuration files
  luciprune remove luci-app-ddns --purge

  # Pick packages to remove interactively
  luciprune browse

  # Show past removals
  luciprune history`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "luciprune: OpenWrt package removal through LuCI")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run 'luciprune list' to see installed packages.")
			fmt.Fprintln(out, "Run 'luciprune doctor' to check your configuration.")
			fmt.Fprintln(out, "Run 'luciprune --help' for all commands.")
			return nil
		},
	}
)

// errReported marks a failure whose details were already shown to the
// operator.
type errReported struct {
	err error
}

func (e *errReported) Error() string { return e.err.Error() }
func (e *errReported) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &errReported{err: err}
}

// IsReported reports whether err was already shown to the operator, so the
// caller should exit non-zero without printing it again.
func IsReported(err error) bool {
	var r *errReported
	return errors.As(err, &r)
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/luciprune/config.yaml)")
	flags.StringVar(&backendURL, "url", "", "LuCI base URL, e.g. http://192.168.1.1/cgi-bin/luci")
	flags.StringVar(&backendToken, "token", "", "session token sent with every request")
	flags.StringVar(&tokenFile, "token-file", "", "file holding the session token, reloaded when it changes")
	flags.StringVar(&localeTag, "locale", "", "locale for messages (en, zh-cn)")
	flags.StringVar(&dbPath, "db", "", "journal path (default: ~/.luciprune/journal.db)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "show request traces and debug logs")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

func configureLogging(verbose bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	if verbose {
		log.SetLevel(log.DebugLevel)
		return
	}
	log.SetLevel(log.WarnLevel)
}
