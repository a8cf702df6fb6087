package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
)

// NotificationService serves the in-app inbox and its unread badge
type NotificationService struct {
	repo     domain.NotificationRepository
	q        *query.Coordinator
	mutate   *query.Engine
	policies Policies
	logger   *slog.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(repo domain.NotificationRepository, q *query.Coordinator, mutate *query.Engine, policies Policies, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{repo: repo, q: q, mutate: mutate, policies: policies, logger: logger}
}

// List returns the notifications, newest first as sent by the server
func (s *NotificationService) List(ctx context.Context) ([]domain.Notification, error) {
	list, err := query.Get(ctx, s.q, NotificationsKey(), s.policies.Default, s.repo.GetNotifications)
	if err != nil {
		return list, fmt.Errorf("load notifications: %w", err)
	}
	return list, nil
}

// UnreadCount returns the unread badge count
func (s *NotificationService) UnreadCount(ctx context.Context) (int, error) {
	n, err := query.Get(ctx, s.q, UnreadCountKey(), s.policies.Unread, s.repo.GetUnreadCount)
	if err != nil {
		return n, fmt.Errorf("load unread count: %w", err)
	}
	return n, nil
}

// WatchUnread polls the unread count until the returned func is called
func (s *NotificationService) WatchUnread() func() {
	return s.q.Subscribe(UnreadCountKey(), func(ctx context.Context) (any, error) {
		return s.repo.GetUnreadCount(ctx)
	}, s.policies.Unread)
}

// MarkRead marks one notification read. The badge is decremented only
// when the cached inbox shows the notification as unread at the moment the
// mutation takes hold of the notification keys.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	wasUnread := false
	_, err := s.mutate.Execute(ctx, query.Mutation{
		Name: "notification.read",
		Keys: []query.Key{{RootNotifications}},
		Prepare: func(c *query.Cache) {
			list, _ := query.Peek[[]domain.Notification](c, NotificationsKey())
			for _, n := range list {
				if n.ID == id && !n.IsRead {
					wasUnread = true
					break
				}
			}
		},
		Predict: func(_ query.Key, data any) (any, bool) {
			switch v := data.(type) {
			case []domain.Notification:
				return markRead(v, func(n domain.Notification) bool { return n.ID == id })
			case int:
				if !wasUnread || v <= 0 {
					return nil, false
				}
				return v - 1, true
			}
			return nil, false
		},
		Commit: func(ctx context.Context) (any, error) {
			return nil, s.repo.MarkRead(ctx, id)
		},
	})
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead clears the inbox and the badge
func (s *NotificationService) MarkAllRead(ctx context.Context) error {
	_, err := s.mutate.Execute(ctx, query.Mutation{
		Name: "notification.read_all",
		Keys: []query.Key{{RootNotifications}},
		Predict: func(_ query.Key, data any) (any, bool) {
			switch v := data.(type) {
			case []domain.Notification:
				return markRead(v, func(domain.Notification) bool { return true })
			case int:
				if v == 0 {
					return nil, false
				}
				return 0, true
			}
			return nil, false
		},
		Commit: func(ctx context.Context) (any, error) {
			return nil, s.repo.MarkAllRead(ctx)
		},
	})
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func markRead(list []domain.Notification, match func(domain.Notification) bool) (any, bool) {
	changed := false
	out := make([]domain.Notification, len(list))
	for i, n := range list {
		if match(n) && !n.IsRead {
			n.IsRead = true
			changed = true
		}
		out[i] = n
	}
	if !changed {
		return nil, false
	}
	return out, true
}
