package live

import (
	"context"
	"sync/atomic"

	"github.com/grovetools/pharmastock/pkg/broadcast"
	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/sirupsen/logrus"
)

// NotificationService is the part of the API client the notification list uses.
type NotificationService interface {
	GetMyNotifications(ctx context.Context) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id int64) error
	MarkAllAsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id int64) error
}

// Filter selects which notifications Visible returns.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
)

// NotificationList is the signed-in user's notifications, newest first.
// Read flags change optimistically and are rolled back if the server
// rejects the change; deletions wait for the server.
type NotificationList struct {
	*View[[]models.Notification]
	service NotificationService
	// loads counts successful snapshot fetches. A rollback is skipped when
	// a snapshot arrived after the optimistic change.
	loads atomic.Int64
}

// NewNotificationList creates an empty list backed by service.
func NewNotificationList(service NotificationService, logger *logrus.Entry) *NotificationList {
	l := &NotificationList{service: service}
	l.View = NewView("notifications", []models.Notification{}, ViewOptions[[]models.Notification]{
		Loader: func(ctx context.Context) ([]models.Notification, error) {
			notifications, err := service.GetMyNotifications(ctx)
			if err == nil {
				l.loads.Add(1)
			}
			return notifications, err
		},
		Logger: logger,
	})
	return l
}

func notificationID(n models.Notification) int64 { return n.ID }

// Follow prepends every pushed notification.
func (l *NotificationList) Follow(sub *broadcast.Subscription[models.Notification]) {
	Follow(l.View, sub, Prepend(0, notificationID))
}

// UnreadCount returns the number of unread notifications.
func (l *NotificationList) UnreadCount() int {
	return models.CountUnread(l.Current())
}

// Visible returns the notifications matching filter.
func (l *NotificationList) Visible(filter Filter) []models.Notification {
	return FilterNotifications(l.Current(), filter)
}

// FilterNotifications returns the notifications in list matching filter.
// Anything but FilterUnread returns list unchanged.
func FilterNotifications(list []models.Notification, filter Filter) []models.Notification {
	if filter != FilterUnread {
		return list
	}
	unread := make([]models.Notification, 0, len(list))
	for _, n := range list {
		if !n.IsRead {
			unread = append(unread, n)
		}
	}
	return unread
}

// MarkAsRead marks one notification read right away and confirms with the
// server. If the server call fails the flag is restored, unless a snapshot
// loaded in the meantime.
func (l *NotificationList) MarkAsRead(ctx context.Context, id int64) error {
	loads := l.loads.Load()
	changed := l.setRead(func(n models.Notification) bool { return n.ID == id }, true)
	if err := l.service.MarkAsRead(ctx, id); err != nil {
		l.rollback(changed, loads)
		l.logger.WithError(err).WithField("id", id).Warn("Mark as read failed, rolled back")
		return err
	}
	return nil
}

// MarkAllAsRead marks every notification read right away and confirms with
// the server. If the server call fails exactly the changed flags are restored,
// unless a snapshot loaded in the meantime.
func (l *NotificationList) MarkAllAsRead(ctx context.Context) error {
	loads := l.loads.Load()
	changed := l.setRead(func(models.Notification) bool { return true }, true)
	if err := l.service.MarkAllAsRead(ctx); err != nil {
		l.rollback(changed, loads)
		l.logger.WithError(err).WithField("count", len(changed)).Warn("Mark all as read failed, rolled back")
		return err
	}
	return nil
}

// Delete removes a notification once the server has deleted it.
func (l *NotificationList) Delete(ctx context.Context, id int64) error {
	if err := l.service.DeleteNotification(ctx, id); err != nil {
		return err
	}
	l.Update(func(current []models.Notification) []models.Notification {
		next := make([]models.Notification, 0, len(current))
		for _, n := range current {
			if n.ID != id {
				next = append(next, n)
			}
		}
		return next
	})
	return nil
}

// setRead sets IsRead on the matching notifications and returns the ids
// whose flag actually changed.
func (l *NotificationList) setRead(match func(models.Notification) bool, read bool) map[int64]bool {
	changed := make(map[int64]bool)
	l.Update(func(current []models.Notification) []models.Notification {
		next := make([]models.Notification, len(current))
		for i, n := range current {
			if match(n) && n.IsRead != read {
				n.IsRead = read
				changed[n.ID] = true
			}
			next[i] = n
		}
		return next
	})
	return changed
}

// rollback marks the changed ids unread again. A snapshot loaded since
// loads was read carries the server's flags, which are kept.
func (l *NotificationList) rollback(changed map[int64]bool, loads int64) {
	if len(changed) == 0 {
		return
	}
	if l.loads.Load() != loads {
		l.logger.WithField("count", len(changed)).Debug("Snapshot loaded since the change, keeping server flags")
		return
	}
	l.setRead(func(n models.Notification) bool { return changed[n.ID] }, false)
}
