package forum

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pribylovaa/go-forum-client/internal/models"
)

// Notifications возвращает ленту уведомлений текущего пользователя.
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	const op = "forum.Client.Notifications"

	var list []models.Notification
	if err := c.call(ctx, http.MethodGet, "/notifications", nil, &list); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return list, nil
}

// MarkRead помечает уведомление прочитанным и возвращает его новую версию.
func (c *Client) MarkRead(ctx context.Context, notificationID string) (*models.Notification, error) {
	const op = "forum.Client.MarkRead"

	id, err := segment("notification id", notificationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var n models.Notification
	if err := c.call(ctx, http.MethodPut, "/notifications/read/"+id, nil, &n); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if n.ID == "" {
		// Бэкенд мог ответить только сообщением.
		n.ID = notificationID
		n.Read = true
	}

	return &n, nil
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	const op = "forum.Client.MarkAllRead"

	if err := c.call(ctx, http.MethodPut, "/notifications/read-all", nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Client) DeleteNotification(ctx context.Context, notificationID string) error {
	const op = "forum.Client.DeleteNotification"

	id, err := segment("notification id", notificationID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.call(ctx, http.MethodDelete, "/notifications/"+id, nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
