package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/go-forum-client/internal/models"
	"github.com/pribylovaa/go-forum-client/pkg/log"
)

func (s *Service) ListChats(ctx context.Context) ([]models.Chat, error) {
	const op = "service.Service.ListChats"

	chats, err := s.forum.ListChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return chats, nil
}

// CreateChat открывает чат с продавцом товара.
func (s *Service) CreateChat(ctx context.Context, itemID string) (*models.Chat, error) {
	const op = "service.Service.CreateChat"

	chat, err := s.forum.CreateChat(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("chat_created", slog.String("op", op), slog.String("chat_id", chat.ID))
	return chat, nil
}

// SendMessage отправляет сообщение. Серверное эхо сразу попадает
// в транскрипт открытого чата; последующая push-доставка того же
// сообщения отбрасывается как дубликат.
func (s *Service) SendMessage(ctx context.Context, chatID, content string) (*models.Message, error) {
	const op = "service.Service.SendMessage"

	msg, err := s.forum.SendMessage(ctx, chatID, content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	topic := models.ChatTopic(chatID)
	if s.isMounted(topic) {
		ev, err := msg.Event()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.rec.ApplyPushEvent(topic, ev)
	}

	return msg, nil
}

// NotificationsTopic возвращает ленту текущего пользователя.
func (s *Service) NotificationsTopic() (models.Topic, error) {
	const op = "service.Service.NotificationsTopic"

	if s.sessions == nil {
		return models.Topic{}, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}

	sess := s.sessions.Current()
	if !sess.Authenticated || sess.Identity == nil {
		return models.Topic{}, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}

	return models.NotificationsTopic(sess.Identity.ID), nil
}

// MarkRead помечает уведомление прочитанным и отражает это в ленте.
func (s *Service) MarkRead(ctx context.Context, notificationID string) error {
	const op = "service.Service.MarkRead"

	n, err := s.forum.MarkRead(ctx, notificationID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, topic := range s.mountedOf(models.KindNotifications) {
		if !n.CreatedAt.IsZero() {
			if ev, err := n.Event(); err == nil && s.rec.UpdateEvent(topic, ev) {
				continue
			}
		}

		s.rec.MapEvents(topic, func(ev models.Event) (models.Event, bool) {
			if ev.ID != notificationID {
				return ev, false
			}
			out, err := models.MarkRead(ev)
			return out, err == nil
		})
	}

	return nil
}

func (s *Service) MarkAllRead(ctx context.Context) error {
	const op = "service.Service.MarkAllRead"

	if err := s.forum.MarkAllRead(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, topic := range s.mountedOf(models.KindNotifications) {
		n := s.rec.MapEvents(topic, func(ev models.Event) (models.Event, bool) {
			cur, err := models.NotificationFromEvent(ev)
			if err != nil || cur.Read {
				return ev, false
			}
			out, err := models.MarkRead(ev)
			return out, err == nil
		})
		log.From(ctx).Debug("notifications_marked_read", slog.String("op", op), slog.Int("count", n))
	}

	return nil
}

func (s *Service) DeleteNotification(ctx context.Context, notificationID string) error {
	const op = "service.Service.DeleteNotification"

	if err := s.forum.DeleteNotification(ctx, notificationID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, topic := range s.mountedOf(models.KindNotifications) {
		s.rec.RemoveEvent(topic, notificationID)
	}

	return nil
}

// CreateComment создаёт комментарий и добавляет его в открытую ветку поста.
func (s *Service) CreateComment(ctx context.Context, req models.CreateCommentRequest) (*models.Comment, error) {
	const op = "service.Service.CreateComment"

	cm, err := s.forum.CreateComment(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	topic := models.CommentsTopic(cm.PostID)
	if s.isMounted(topic) {
		ev, err := cm.Event()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.rec.ApplyPushEvent(topic, ev)
	}

	return cm, nil
}

// LikeComment переключает лайк и обновляет комментарий в открытых ветках.
func (s *Service) LikeComment(ctx context.Context, commentID string) (*models.Comment, error) {
	const op = "service.Service.LikeComment"

	cm, err := s.forum.LikeComment(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cm.ID == "" {
		return cm, nil
	}

	ev, err := cm.Event()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	topics := s.mountedOf(models.KindComments)
	if cm.PostID != "" {
		topics = []models.Topic{models.CommentsTopic(cm.PostID)}
	}
	for _, topic := range topics {
		if s.rec.UpdateEvent(topic, ev) {
			break
		}
	}

	return cm, nil
}
