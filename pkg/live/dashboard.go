package live

import (
	"context"
	stderrors "errors"

	"github.com/grovetools/pharmastock/logging"
	"github.com/grovetools/pharmastock/pkg/broadcast"
	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultRecentMovements is the capacity of the recent movements view.
const DefaultRecentMovements = 5

// Loader fetches dashboard snapshots. *api.Client implements it.
type Loader interface {
	NotificationService
	GetStats(ctx context.Context) (models.DashboardStats, error)
	GetSystemAlerts(ctx context.Context) ([]models.Notification, error)
	GetRecentMovements(ctx context.Context, count int) ([]models.RecentMovement, error)
}

// Source delivers live events. *hub.Channel implements it.
type Source interface {
	Stats() *broadcast.Subscription[models.DashboardStats]
	Alerts() *broadcast.Subscription[models.DashboardAlerts]
	Movements() *broadcast.Subscription[models.RecentMovement]
	Notifications() *broadcast.Subscription[models.Notification]
}

// DashboardOptions configures a Dashboard.
type DashboardOptions struct {
	// RecentMovements is the capacity of the movements view.
	RecentMovements int
	Logger          *logrus.Entry
}

// Dashboard groups the views of the dashboard screen.
type Dashboard struct {
	Stats         *View[models.DashboardStats]
	Alerts        *View[models.DashboardAlerts]
	Movements     *View[[]models.RecentMovement]
	Notifications *NotificationList

	source   Source
	capacity int
	logger   *logrus.Entry
}

// NewDashboard creates the views seeded with empty values. source may be nil
// for snapshot-only use.
func NewDashboard(loader Loader, source Source, opts DashboardOptions) *Dashboard {
	capacity := opts.RecentMovements
	if capacity <= 0 {
		capacity = DefaultRecentMovements
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("live")
	}

	return &Dashboard{
		Stats: NewView("stats", models.DashboardStats{}, ViewOptions[models.DashboardStats]{
			Loader: loader.GetStats,
			Logger: logger,
		}),
		Alerts: NewView("alerts", models.EmptyAlerts(), ViewOptions[models.DashboardAlerts]{
			Loader: func(ctx context.Context) (models.DashboardAlerts, error) {
				notifications, err := loader.GetSystemAlerts(ctx)
				if err != nil {
					return models.DashboardAlerts{}, err
				}
				return models.AlertsFromNotifications(notifications), nil
			},
			Logger: logger,
		}),
		Movements: NewView("movements", []models.RecentMovement{}, ViewOptions[[]models.RecentMovement]{
			Loader: func(ctx context.Context) ([]models.RecentMovement, error) {
				movements, err := loader.GetRecentMovements(ctx, capacity)
				if len(movements) > capacity {
					movements = movements[:capacity]
				}
				return movements, err
			},
			Logger: logger,
		}),
		Notifications: NewNotificationList(loader, logger),
		source:        source,
		capacity:      capacity,
		logger:        logger,
	}
}

func movementID(m models.RecentMovement) int64 { return m.ID }

// Start follows the live topics of the source.
func (d *Dashboard) Start() {
	if d.source == nil {
		return
	}
	Follow(d.Stats, d.source.Stats(), Replace[models.DashboardStats])
	Follow(d.Alerts, d.source.Alerts(), Replace[models.DashboardAlerts])
	Follow(d.Movements, d.source.Movements(), Prepend(d.capacity, movementID))
	d.Notifications.Follow(d.source.Notifications())
}

// Load loads every view concurrently. Views that fail keep their value; the
// errors are joined.
func (d *Dashboard) Load(ctx context.Context) error {
	loads := []func(context.Context) error{
		d.Stats.Load,
		d.Alerts.Load,
		d.Movements.Load,
		d.Notifications.Load,
	}

	errs := make([]error, len(loads))
	g, gctx := errgroup.WithContext(ctx)
	for i, load := range loads {
		g.Go(func() error {
			errs[i] = load(gctx)
			return nil
		})
	}
	_ = g.Wait()

	err := stderrors.Join(errs...)
	if err != nil {
		d.logger.WithError(err).Warn("Dashboard load incomplete")
	}
	return err
}

// RefreshAlerts re-issues the system alerts snapshot.
func (d *Dashboard) RefreshAlerts(ctx context.Context) error {
	return d.Alerts.Refresh(ctx)
}

// Close releases every view and its subscriptions.
func (d *Dashboard) Close() {
	d.Stats.Close()
	d.Alerts.Close()
	d.Movements.Close()
	d.Notifications.Close()
}
