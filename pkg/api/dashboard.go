package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/grovetools/pharmastock/pkg/models"
)

// DefaultLowStockThreshold is the quantity below which a medicine counts as low on stock.
const DefaultLowStockThreshold = 50

// GetStats fetches the headline dashboard counters.
func (c *Client) GetStats(ctx context.Context) (models.DashboardStats, error) {
	var stats models.DashboardStats
	err := c.do(ctx, request{method: http.MethodGet, path: "/dashboard/stats"}, &stats)
	return stats, err
}

// GetAlerts fetches the expiry alerts grouped by severity. Missing lists are
// returned empty, never nil.
func (c *Client) GetAlerts(ctx context.Context) (models.DashboardAlerts, error) {
	var alerts models.DashboardAlerts
	if err := c.do(ctx, request{method: http.MethodGet, path: "/dashboard/alerts"}, &alerts); err != nil {
		return models.EmptyAlerts(), err
	}
	return alerts.OrEmpty(), nil
}

// GetRecentMovements fetches the newest count stock movements, newest first.
func (c *Client) GetRecentMovements(ctx context.Context, count int) ([]models.RecentMovement, error) {
	req := request{method: http.MethodGet, path: "/dashboard/recent-movements"}
	if count > 0 {
		req.query = url.Values{"count": {strconv.Itoa(count)}}
	}

	movements := []models.RecentMovement{}
	if err := c.do(ctx, req, &movements); err != nil {
		return nil, err
	}
	if movements == nil {
		movements = []models.RecentMovement{}
	}
	return movements, nil
}

// GetValuation fetches the total value of stock on hand.
func (c *Client) GetValuation(ctx context.Context) (models.InventoryValuation, error) {
	var valuation models.InventoryValuation
	err := c.do(ctx, request{method: http.MethodGet, path: "/dashboard/valuation"}, &valuation)
	return valuation, err
}

// GetLowStock fetches medicines whose total quantity is below threshold.
// A non-positive threshold uses DefaultLowStockThreshold.
func (c *Client) GetLowStock(ctx context.Context, threshold int) ([]models.LowStockAlert, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	req := request{
		method: http.MethodGet,
		path:   "/dashboard/low-stock",
		query:  url.Values{"threshold": {strconv.Itoa(threshold)}},
	}

	items := []models.LowStockAlert{}
	if err := c.do(ctx, req, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.LowStockAlert{}
	}
	return items, nil
}

// Health checks that the API answers at all. Any response below 500 counts as
// healthy, since the base path usually has no handler of its own.
func (c *Client) Health(ctx context.Context) error {
	status, body, err := c.roundTrip(ctx, request{method: http.MethodGet, path: "/"})
	if err != nil {
		return err
	}
	if status >= http.StatusInternalServerError {
		return c.interpret(request{method: http.MethodGet, path: "/"}, status, body, nil, nil)
	}
	return nil
}
