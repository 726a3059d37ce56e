package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/luciprune/internal/mockbackend"
)

var (
	previewAddr       string
	previewData       string
	previewPrefix     string
	previewToken      string
	previewRejectPost bool
	previewEmptyLists int

	previewCmd = &cobra.Command{
		Use:   "preview-server",
		Short: "Serve a simulated LuCI uninstall backend",
		Long: `Run an in-memory stand-in for the LuCI uninstall endpoints, for trying
luciprune without a device.

The server answers the package list and removal endpoints under --prefix.
Removed packages disappear from later lists. Removing a package that other
packages depend on fails unless dependents are removed as well.

--data seeds the package list from a JSON file in list-reply format:
  {"packages": [{"name": "luci-app-ddns", "version": "2.8.2-r1",
                 "install_time": 1700000000, "depends": ["ddns-scripts"]}]}

--reject-post answers every removal POST with an HTML error page, the way
some proxies do, so the GET fallback can be observed. --empty-lists makes
the first N list calls return no packages, as a device does while booting.`,
		Example: `  # Start the server and point luciprune at it
  luciprune preview-server --addr 127.0.0.1:8080 &
  luciprune list --url http://127.0.0.1:8080/cgi-bin/luci`,
		RunE: runPreview,
	}
)

func init() {
	previewCmd.Flags().StringVar(&previewAddr, "addr", "127.0.0.1:8080", "listen address")
	previewCmd.Flags().StringVar(&previewData, "data", "", "JSON file with the initial package list")
	previewCmd.Flags().StringVar(&previewPrefix, "prefix", mockbackend.DefaultPrefix, "URL prefix of the endpoints")
	previewCmd.Flags().StringVar(&previewToken, "require-token", "", "reject removals that do not carry this token")
	previewCmd.Flags().BoolVar(&previewRejectPost, "reject-post", false, "answer removal POSTs with an HTML error page")
	previewCmd.Flags().IntVar(&previewEmptyLists, "empty-lists", 0, "return an empty list for the first N list calls")

	RootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	if !verbose {
		log.SetLevel(log.InfoLevel)
	}

	pkgs := mockbackend.SamplePackages(time.Now())
	if previewData != "" {
		loaded, err := mockbackend.LoadPackagesFile(previewData)
		if err != nil {
			return err
		}
		pkgs = loaded
	}

	backend := mockbackend.New(pkgs, mockbackend.Options{
		Prefix:         previewPrefix,
		Token:          previewToken,
		RejectPost:     previewRejectPost,
		EmptyListCalls: previewEmptyLists,
	})

	ln, err := net.Listen("tcp", previewAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", previewAddr, err)
	}
	srv := &http.Server{
		Handler:           backend,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d packages at %s\n", len(pkgs), backend.BaseURL("http://"+ln.Addr().String()))
	fmt.Fprintln(cmd.OutOrStdout(), "Press ctrl+c to stop.")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("preview server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop preview server: %w", err)
	}
	return nil
}
