package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/grovetools/pharmastock/pkg/models"
)

// GetMyNotifications fetches the notifications addressed to the signed-in user.
func (c *Client) GetMyNotifications(ctx context.Context) ([]models.Notification, error) {
	return c.listNotifications(ctx, "/notifications")
}

// GetSystemAlerts fetches the system-wide alert notifications.
func (c *Client) GetSystemAlerts(ctx context.Context) ([]models.Notification, error) {
	return c.listNotifications(ctx, "/notifications/system-alerts")
}

func (c *Client) listNotifications(ctx context.Context, path string) ([]models.Notification, error) {
	notifications := []models.Notification{}
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &notifications); err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	return notifications, nil
}

// MarkAsRead marks one notification as read.
func (c *Client) MarkAsRead(ctx context.Context, id int64) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   fmt.Sprintf("/notifications/%d/read", id),
		label:  "/notifications/{id}/read",
	}, nil)
}

// MarkAllAsRead marks every notification of the user as read.
func (c *Client) MarkAllAsRead(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodPut, path: "/notifications/read-all"}, nil)
}

// DeleteNotification removes one notification.
func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   fmt.Sprintf("/notifications/%d", id),
		label:  "/notifications/{id}",
	}, nil)
}
