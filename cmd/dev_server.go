package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/pharmastock/cli"
	"github.com/grovetools/pharmastock/internal/fakehub"
	"github.com/grovetools/pharmastock/internal/pidfile"
	"github.com/grovetools/pharmastock/logging"
	"github.com/grovetools/pharmastock/pkg/paths"
	"github.com/spf13/cobra"
)

// NewDevServerCmd returns the dev-server command with subcommands.
func NewDevServerCmd() *cobra.Command {
	var (
		addr       string
		token      string
		interval   time.Duration
		transports []string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run a local pharmacy API and dashboard hub",
		Long: `Serves the dashboard REST API under /api and the dashboard hub under
/hubs/dashboard, backed by an in-memory demo pharmacy. Stock movements,
notifications and expiry alerts are generated continuously.

Examples:
  # Serve on the default API address
  pharmastock dev-server

  # Require a token and only offer Server-Sent Events
  pharmastock dev-server --token secret --transports ServerSentEvents`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("fakehub")
			pidPath := paths.DevServerPidPath()

			if err := pidfile.Acquire(pidPath); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			st := fakehub.NewStore()
			st.Seed(time.Now())
			srv := fakehub.NewServer(st, fakehub.Options{AccessToken: token, Transports: transports}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !quiet {
				sim := fakehub.NewDefaultSimulator(st, interval, logger)
				go sim.Start(ctx)
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe(addr)
			}()

			logger.WithField("pid", os.Getpid()).WithField("addr", addr).Info("Dev server started")
			fmt.Fprintf(cmd.OutOrStdout(), "API: http://%s/api\nHub: http://%s%s\n", addr, addr, fakehub.HubPath)

			select {
			case err := <-errCh:
				if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Received stop signal")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("Server shutdown error: %v", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "Listen address")
	cmd.Flags().StringVar(&token, "token", "", "Require this bearer token")
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "Interval between generated stock movements")
	cmd.Flags().StringSliceVar(&transports, "transports", nil, "Negotiated transports to offer (WebSockets, ServerSentEvents)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Serve the seeded data without generating events")

	cmd.AddCommand(newDevServerStopCmd())
	cmd.AddCommand(newDevServerStatusCmd())
	return cmd
}

func newDevServerStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running dev server",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.DevServerPidPath()
			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return err
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Dev server is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to stop dev server: %w", err)
			}

			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				if !pidfile.Alive(pid) {
					fmt.Fprintf(cmd.OutOrStdout(), "Dev server (PID %d) stopped\n", pid)
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("dev server (PID %d) did not stop within 5s", pid)
		},
	}
}

func newDevServerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a dev server is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.DevServerPidPath())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, map[string]interface{}{"running": running, "pid": pid})
			}
			if running {
				fmt.Fprintf(cmd.OutOrStdout(), "Dev server is running (PID %d)\n", pid)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Dev server is not running")
			}
			return nil
		},
	}
}
