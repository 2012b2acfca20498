package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/models"
	"github.com/pribylovaa/go-forum-client/internal/realtime"
	"github.com/pribylovaa/go-forum-client/pkg/log"
)

// OpenConversation монтирует разговор: создаёт транскрипт, подписывается
// на push (для чатов и ленты уведомлений) и загружает снапшот.
// Повторный вызов для смонтированного топика возвращает текущее представление,
// а если предыдущая загрузка не удалась, повторяет её.
//
// Ошибка загрузки снапшота не демонтирует разговор: вместе с ней
// возвращается текущее (возможно, тёплое из кэша) представление.
func (s *Service) OpenConversation(ctx context.Context, topic models.Topic) (models.View, error) {
	const op = "service.Service.OpenConversation"

	ctx, lg := log.With(ctx, "op", op, "topic", topic.String())

	s.mu.Lock()
	_, mounted := s.mounted[topic]
	if !mounted {
		s.mounted[topic] = struct{}{}
	}
	s.mu.Unlock()

	if mounted {
		if s.rec.Loaded(topic) {
			return s.View(topic)
		}
		// Тёплый кэш не отменяет повторную загрузку после неудачи.
		return s.load(ctx, topic)
	}

	s.rec.Track(ctx, topic)

	if topic.Realtime() {
		if s.ch == nil {
			s.unmount(topic)
			return models.View{}, fmt.Errorf("%s: %w", op, apierrors.ErrChannelClosed)
		}

		// Обработчики регистрируются до Join, чтобы не потерять первые события.
		s.ch.OnEvent(topic, s.onPush(topic))
		s.ch.OnState(topic, s.onState(topic))

		if _, err := s.ch.Join(ctx, topic); err != nil {
			lg.Warn("conversation_join_failed", slog.String("err", err.Error()))
			// Снимает зарегистрированные обработчики.
			_ = s.ch.Leave(ctx, topic)
			s.unmount(topic)
			return models.View{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	lg.Info("conversation_opened")
	return s.load(ctx, topic)
}

func (s *Service) load(ctx context.Context, topic models.Topic) (models.View, error) {
	const op = "service.Service.load"

	if _, err := s.rec.LoadSnapshot(ctx, topic); err != nil {
		view, _ := s.rec.View(topic)
		return view, fmt.Errorf("%s: %w", op, err)
	}

	if !topic.Realtime() {
		// Комментарии синхронизируются только снапшотами.
		s.rec.SetConnectionState(topic, models.StateLive)
	}

	return s.View(topic)
}

// CloseConversation синхронно отписывается от push и удаляет транскрипт;
// незавершённая загрузка снапшота для него будет отброшена.
func (s *Service) CloseConversation(ctx context.Context, topic models.Topic) error {
	const op = "service.Service.CloseConversation"

	s.mu.Lock()
	_, mounted := s.mounted[topic]
	s.mu.Unlock()

	if !mounted {
		return fmt.Errorf("%s: %s: %w", op, topic, apierrors.ErrUnknownTopic)
	}

	var leaveErr error
	if topic.Realtime() && s.ch != nil {
		leaveErr = s.ch.Leave(ctx, topic)
	}

	s.unmount(topic)
	log.From(ctx).Info("conversation_closed", slog.String("op", op), slog.String("topic", topic.String()))

	if leaveErr != nil {
		return fmt.Errorf("%s: %w", op, leaveErr)
	}
	return nil
}

func (s *Service) unmount(topic models.Topic) {
	s.mu.Lock()
	delete(s.mounted, topic)
	s.mu.Unlock()

	s.rec.Close(topic)
}

// View возвращает представление транскрипта. Отметка о пропуске после
// переподключения отдаётся один раз.
func (s *Service) View(topic models.Topic) (models.View, error) {
	const op = "service.Service.View"

	view, err := s.rec.View(topic)
	if err != nil {
		return models.View{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.rec.AckGap(topic); errors.Is(err, apierrors.ErrTranscriptSyncGap) {
		view.Gap = true
	}

	return view, nil
}

func (s *Service) isMounted(topic models.Topic) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.mounted[topic]
	return ok
}

func (s *Service) mountedOf(kind models.TopicKind) []models.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Topic
	for t := range s.mounted {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// onPush переводит push-событие в событие транскрипта.
func (s *Service) onPush(topic models.Topic) realtime.EventHandler {
	return func(p realtime.Push) {
		ev, err := pushEvent(topic, p.Data)
		if err != nil {
			s.log.Warn("push_event_decode_failed",
				slog.String("topic", topic.String()),
				slog.String("err", err.Error()),
			)
			return
		}

		if !s.rec.ApplyPushEvent(topic, ev) {
			s.log.Debug("push_event_skipped", slog.String("topic", topic.String()), slog.String("event_id", ev.ID))
		}
	}
}

func pushEvent(topic models.Topic, data json.RawMessage) (models.Event, error) {
	switch topic.Kind {
	case models.KindChat:
		var m models.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return models.Event{}, err
		}
		if m.ChatID == "" {
			m.ChatID = topic.ID
		}
		return m.Event()

	case models.KindNotifications:
		var n models.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			return models.Event{}, err
		}
		return n.Event()

	default:
		return models.Event{}, fmt.Errorf("%s: %w", topic, realtime.ErrNotRealtime)
	}
}

// onState отражает состояние канала в транскрипте. После переподключения
// пересинхронизация идёт в отдельной горутине, чтобы не блокировать чтение канала.
func (s *Service) onState(topic models.Topic) realtime.StateHandler {
	return func(state models.ConnectionState, resumed bool) {
		if resumed && state == models.StateLive {
			s.resync(topic)
			return
		}

		s.rec.SetConnectionState(topic, state)
	}
}

func (s *Service) resync(topic models.Topic) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.base, s.timeout)
		defer cancel()

		ctx = log.Into(ctx, s.log)
		if err := s.rec.OnReconnect(ctx, topic); err != nil && !errors.Is(err, apierrors.ErrUnknownTopic) {
			s.log.Warn("conversation_resync_failed",
				slog.String("topic", topic.String()),
				slog.String("err", err.Error()),
			)
		}
	}()
}
