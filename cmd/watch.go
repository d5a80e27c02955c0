package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/pharmastock/cli"
	"github.com/grovetools/pharmastock/config"
	"github.com/grovetools/pharmastock/internal/metrics"
	"github.com/grovetools/pharmastock/logging"
	"github.com/grovetools/pharmastock/pkg/broadcast"
	"github.com/grovetools/pharmastock/pkg/hub"
	"github.com/grovetools/pharmastock/pkg/live"
	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/grovetools/pharmastock/pkg/profiling"
	"github.com/grovetools/pharmastock/state"
	"github.com/grovetools/pharmastock/tui"
	"github.com/grovetools/pharmastock/tui/dashboard"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const configReloadDebounce = 500 * time.Millisecond

// NewWatchCmd creates the `watch` command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the live pharmacy dashboard",
		Long: `Loads the dashboard snapshot, then keeps it current from the dashboard hub.
The connection is retried in the background; the dashboard shows whether
it is live, reconnecting or offline.

Examples:
  # Interactive dashboard
  pharmastock watch

  # Line output, e.g. for a log file
  pharmastock watch --plain

  # Expose Prometheus metrics while watching
  pharmastock watch --metrics-addr :9464`,
	}
	flags := cli.AddConnectionFlags(cmd.Flags())
	plain := cmd.Flags().Bool("plain", false, "Print events as lines instead of the interactive dashboard")
	metricsAddr := cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (default: metrics.listen)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		logger := cli.GetLogger(cmd)
		b, err := connect(cmd, flags)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := *metricsAddr
		if addr == "" {
			addr = b.cfg.Metrics.Listen
		}
		if addr != "" {
			srv := serveMetrics(addr, logger)
			defer shutdownServer(srv, logger)
		}
		watchConfig(ctx, logger)

		ch, err := b.channel()
		if err != nil {
			return err
		}
		defer ch.Close()

		dash := live.NewDashboard(b.client, ch, live.DashboardOptions{
			RecentMovements: b.cfg.Dashboard.RecentMovements,
			Logger:          logging.NewLogger("live"),
		})
		defer dash.Close()
		dash.Start()

		interactive := !*plain && isatty.IsTerminal(os.Stdout.Fd())
		var notices *broadcast.Subscription[models.Notice]
		var events *hubEvents
		if interactive {
			notices = ch.Notices()
		} else {
			events = subscribeEvents(ch)
			defer events.close()
		}

		span := profiling.Start("snapshot")
		if err := dash.Load(ctx); err != nil {
			logger.WithError(err).Warn("Dashboard snapshot incomplete")
		}
		span.Stop()

		// Connect keeps retrying in the background after a failed first attempt.
		span = profiling.Start("hub connect")
		if err := ch.Connect(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Warn("Hub unavailable, retrying in the background")
		}
		span.Stop()

		if !interactive {
			printSnapshot(cmd.OutOrStdout(), dash)
			streamEvents(ctx, cmd.OutOrStdout(), events)
			return nil
		}

		tui.InitializeTUI()
		filter, err := state.GetString(state.KeyDashboardFilter)
		if err != nil {
			logger.WithError(err).Debug("Ignoring unreadable state file")
		}
		model := dashboard.New(dash, dashboard.Options{Connection: ch, Notices: notices, Filter: live.Filter(filter)})
		defer model.Close()

		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		restoreLogs := logging.RedirectGlobalOutput(io.Discard)
		final, err := program.Run()
		restoreLogs()
		if err != nil && !stderrors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("dashboard failed: %w", err)
		}
		if m, ok := final.(dashboard.Model); ok {
			if err := state.Set(state.KeyDashboardFilter, string(m.Filter())); err != nil {
				logger.WithError(err).Debug("Failed to save dashboard state")
			}
		}
		return nil
	}
	return cmd
}

// serveMetrics starts the Prometheus endpoint in the background.
func serveMetrics(addr string, logger *logrus.Entry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.WithField("addr", addr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()
	return srv
}

func shutdownServer(srv *http.Server, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Server shutdown error")
	}
}

// watchConfig re-applies logging settings whenever the configuration file
// changes. Connection settings take effect on the next start.
func watchConfig(ctx context.Context, logger *logrus.Entry) {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	watcher, err := config.NewWatcher(cwd, configReloadDebounce, logger, func(cfg *config.Config, err error) {
		if err != nil {
			logger.WithError(err).Warn("Ignoring invalid configuration change")
			return
		}
		logging.Reconfigure(cfg)
		logger.Info("Configuration reloaded")
	})
	if err != nil {
		logger.WithError(err).Debug("Config watcher unavailable")
		return
	}
	go func() {
		defer watcher.Close()
		watcher.Start(ctx)
	}()
}

// hubEvents holds the channel subscriptions printed in line mode.
type hubEvents struct {
	states        *broadcast.Subscription[hub.ConnectionState]
	stats         *broadcast.Subscription[models.DashboardStats]
	alerts        *broadcast.Subscription[models.DashboardAlerts]
	movements     *broadcast.Subscription[models.RecentMovement]
	notifications *broadcast.Subscription[models.Notification]
	notices       *broadcast.Subscription[models.Notice]
}

func subscribeEvents(ch *hub.Channel) *hubEvents {
	return &hubEvents{
		states:        ch.States(),
		stats:         ch.Stats(),
		alerts:        ch.Alerts(),
		movements:     ch.Movements(),
		notifications: ch.Notifications(),
		notices:       ch.Notices(),
	}
}

func (e *hubEvents) close() {
	e.states.Unsubscribe()
	e.stats.Unsubscribe()
	e.alerts.Unsubscribe()
	e.movements.Unsubscribe()
	e.notifications.Unsubscribe()
	e.notices.Unsubscribe()
}

func printSnapshot(w io.Writer, dash *live.Dashboard) {
	stats := dash.Stats.Current()
	fmt.Fprintf(w, "%s snapshot: %d medicines, value %s, %d critical, %d warning, %d low stock, %d unread\n",
		timestamp(), stats.TotalMedicines, stats.TotalInventoryValue.StringFixed(2),
		stats.CriticalAlerts, stats.WarningAlerts, stats.LowStockItems, dash.Notifications.UnreadCount())
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// streamEvents prints one line per hub event until ctx is done.
func streamEvents(ctx context.Context, w io.Writer, e *hubEvents) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-e.states.C():
			if !ok {
				return
			}
			fmt.Fprintf(w, "%s connection: %s\n", timestamp(), s)
		case s, ok := <-e.stats.C():
			if !ok {
				return
			}
			fmt.Fprintf(w, "%s stats: %d medicines, value %s, %d low stock\n",
				timestamp(), s.TotalMedicines, s.TotalInventoryValue.StringFixed(2), s.LowStockItems)
		case a, ok := <-e.alerts.C():
			if !ok {
				return
			}
			fmt.Fprintf(w, "%s alerts: %d critical, %d warning\n", timestamp(), len(a.Critical), len(a.Warning))
		case m, ok := <-e.movements.C():
			if !ok {
				return
			}
			sign := "-"
			if m.Inbound() {
				sign = "+"
			}
			fmt.Fprintf(w, "%s movement: %s %s%d %s by %s\n",
				timestamp(), m.MedicineName, sign, m.Quantity, m.DisplayType(), m.PerformedBy)
		case n, ok := <-e.notifications.C():
			if !ok {
				return
			}
			fmt.Fprintf(w, "%s notification [%s]: %s: %s\n", timestamp(), n.Type, n.Title, n.Message)
		case n, ok := <-e.notices.C():
			if !ok {
				return
			}
			fmt.Fprintf(w, "%s notice: %s\n", timestamp(), n.Message)
		}
	}
}
