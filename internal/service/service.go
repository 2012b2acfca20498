// service содержит прикладную логику клиента: монтирование разговоров
// (подписка на push + снапшот), их демонтаж и отражение результатов
// локальных изменений (отправка сообщения, прочтение уведомления)
// в транскриптах.
package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pribylovaa/go-forum-client/internal/cache"
	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/models"
	"github.com/pribylovaa/go-forum-client/internal/realtime"
	"github.com/pribylovaa/go-forum-client/internal/transcript"
)

//go:generate mockgen -destination=../../mocks/mock_channel.go -package=mocks github.com/pribylovaa/go-forum-client/internal/service Channel

// Channel — push-канал (realtime.Channel).
type Channel interface {
	OnEvent(topic models.Topic, h realtime.EventHandler)
	OnState(topic models.Topic, h realtime.StateHandler)
	Join(ctx context.Context, topic models.Topic) (realtime.Subscription, error)
	Leave(ctx context.Context, topic models.Topic) error
}

// Forum — REST-вызовы бэкенда (forum.Client).
type Forum interface {
	ListChats(ctx context.Context) ([]models.Chat, error)
	CreateChat(ctx context.Context, itemID string) (*models.Chat, error)
	SendMessage(ctx context.Context, chatID, content string) (*models.Message, error)
	MarkRead(ctx context.Context, notificationID string) (*models.Notification, error)
	MarkAllRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, notificationID string) error
	CreateComment(ctx context.Context, req models.CreateCommentRequest) (*models.Comment, error)
	LikeComment(ctx context.Context, commentID string) (*models.Comment, error)
}

// Sessions — наблюдаемое состояние сессии (session.Store).
type Sessions interface {
	Current() models.Session
	Subscribe(fn func(models.Session)) (cancel func())
}

// ErrNotAuthenticated — операция требует аутентифицированной сессии.
var ErrNotAuthenticated = apierrors.ErrNotAuthenticated

type Options struct {
	Channel  Channel
	Forum    Forum
	Sessions Sessions
	// Cache — кэш транскриптов; очищается при выходе из аккаунта.
	Cache cache.TranscriptCache
	// Timeout — таймаут фоновых операций (пересинхронизация, отписка).
	Timeout time.Duration
	Logger  *slog.Logger
}

type Service struct {
	ch       Channel
	forum    Forum
	sessions Sessions
	cache    cache.TranscriptCache
	rec      *transcript.Reconciler
	timeout  time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	mounted map[models.Topic]struct{}
	authed  bool
	// closed запрещает новые фоновые пересинхронизации; wg.Add — только под mu.
	closed bool

	unsubscribe func()
	// base отменяется в Close и прерывает фоновые пересинхронизации.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New создаёт сервис и подписывает его на изменения сессии: при выходе
// (или истечении) сессии все разговоры демонтируются.
func New(rec *transcript.Reconciler, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	base, cancel := context.WithCancel(context.Background())

	s := &Service{
		ch:       opts.Channel,
		forum:    opts.Forum,
		sessions: opts.Sessions,
		cache:    opts.Cache,
		rec:      rec,
		timeout:  opts.Timeout,
		log:      opts.Logger.With("component", "service"),
		mounted:  make(map[models.Topic]struct{}),
		base:     base,
		cancel:   cancel,
	}

	if s.sessions != nil {
		s.authed = s.sessions.Current().Authenticated
		s.unsubscribe = s.sessions.Subscribe(s.onSession)
	}

	return s
}

// Close демонтирует все разговоры и ждёт фоновые пересинхронизации.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	s.unmountAll("service_closed")
	s.cancel()
	s.wg.Wait()
}

// Mounted возвращает смонтированные топики.
func (s *Service) Mounted() []models.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Topic, 0, len(s.mounted))
	for t := range s.mounted {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })

	return out
}

func (s *Service) onSession(sess models.Session) {
	s.mu.Lock()
	was := s.authed
	s.authed = sess.Authenticated
	s.mu.Unlock()

	if !was || sess.Authenticated {
		return
	}

	s.unmountAll("session_ended")

	if s.cache != nil {
		ctx, cancel := context.WithTimeout(s.base, s.timeout)
		defer cancel()

		n, err := s.cache.Purge(ctx)
		if err != nil {
			s.log.Warn("transcript_cache_purge_failed", slog.String("err", err.Error()))
			return
		}
		s.log.Debug("transcript_cache_purged", slog.Int("entries", n))
	}
}

func (s *Service) unmountAll(reason string) {
	s.mu.Lock()
	topics := make([]models.Topic, 0, len(s.mounted))
	for t := range s.mounted {
		topics = append(topics, t)
	}
	s.mu.Unlock()

	if len(topics) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	for _, t := range topics {
		_ = s.CloseConversation(ctx, t)
	}

	s.log.Info("conversations_unmounted", slog.String("reason", reason), slog.Int("count", len(topics)))
}
