// forum — типизированные REST-вызовы бэкенда форума (чаты, уведомления,
// комментарии) и источник снапшотов транскриптов поверх них.
package forum

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/models"
	"github.com/pribylovaa/go-forum-client/internal/transport"
)

// Doer — HTTP-клиент бэкенда (transport.Client).
type Doer interface {
	Do(ctx context.Context, method, path string, body any) (*transport.Response, error)
}

type Client struct {
	tr Doer
}

func New(tr Doer) *Client {
	return &Client{tr: tr}
}

// Snapshot загружает полную историю топика. Лента уведомлений всегда
// принадлежит текущему пользователю, поэтому id топика в запрос не идёт.
func (c *Client) Snapshot(ctx context.Context, topic models.Topic) ([]models.Event, error) {
	const op = "forum.Client.Snapshot"

	switch topic.Kind {
	case models.KindChat:
		chat, err := c.Chat(ctx, topic.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		events, err := chat.Events()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return events, nil

	case models.KindNotifications:
		list, err := c.Notifications(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return toEvents(list, models.Notification.Event)

	case models.KindComments:
		list, err := c.Comments(ctx, topic.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return toEvents(list, models.Comment.Event)

	default:
		return nil, fmt.Errorf("%s: %s: %w", op, topic, apierrors.ErrUnknownTopic)
	}
}

func toEvents[T any](items []T, conv func(T) (models.Event, error)) ([]models.Event, error) {
	out := make([]models.Event, 0, len(items))
	for _, it := range items {
		ev, err := conv(it)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}

	return out, nil
}

// call выполняет запрос и декодирует ответ в out (если out != nil).
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.tr.Do(ctx, method, path, body)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	return nil
}

// segment экранирует id для подстановки в путь.
func segment(field, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%s is required: %w", field, apierrors.ErrInvalidArgument)
	}

	return url.PathEscape(id), nil
}
