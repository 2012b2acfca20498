// session — хранилище состояния аутентификации процесса.
//
// Store — единственный владелец models.Session: изменяют её только
// Verify/Login/Logout и Expire (вызывается транспортом при неустранимом
// отказе refresh). Подписчики уведомляются синхронно, до возврата из
// изменяющего вызова, поэтому route guard не видит устаревшего состояния.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/models"
	"github.com/pribylovaa/go-forum-client/internal/transport"
	"github.com/pribylovaa/go-forum-client/pkg/log"
	"github.com/pribylovaa/go-forum-client/pkg/redact"
)

//go:generate mockgen -destination=../../mocks/mock_transport.go -package=mocks github.com/pribylovaa/go-forum-client/internal/session Transport

// Transport — то, что Store требует от HTTP-клиента.
type Transport interface {
	Do(ctx context.Context, method, path string, body any) (*transport.Response, error)
	SetCredential(cred string)
	ClearCredential()
}

type Store struct {
	tr  Transport
	log *slog.Logger
	now func() time.Time

	// notifyMu сериализует изменение+уведомление, чтобы подписчики
	// видели изменения в том же порядке, в каком они применялись.
	notifyMu sync.Mutex

	mu     sync.Mutex
	sess   models.Session
	subs   map[int]func(models.Session)
	nextID int
}

// New создаёт Store в состоянии unauthenticated (начальная проверка не выполнена).
func New(tr Transport, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		tr:   tr,
		log:  log,
		now:  time.Now,
		subs: make(map[int]func(models.Session)),
	}
}

// Current возвращает копию текущей сессии.
func (s *Store) Current() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copySession(s.sess)
}

// Subscribe регистрирует наблюдателя. fn вызывается синхронно на каждое
// изменение и не должна вызывать изменяющие методы Store.
func (s *Store) Subscribe(fn func(models.Session)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Verify тихо проверяет сессию через GET /auth/me. Никогда не возвращает ошибку:
// любой отказ даёт unauthenticated.
func (s *Store) Verify(ctx context.Context) models.Session {
	const op = "session.Store.Verify"

	lg := log.From(ctx).With("op", op)

	user, err := s.fetchIdentity(ctx)
	if err != nil {
		lg.Debug("verify_unauthenticated", slog.String("err", err.Error()))
		return s.set(models.Session{Verified: true})
	}

	lg.Debug("verify_authenticated", slog.String("user_id", user.ID))
	return s.set(models.Session{
		Authenticated:  true,
		Identity:       user.Identity(),
		LastVerifiedAt: s.now(),
		Verified:       true,
	})
}

// Login выполняет POST /auth/login.
//
// Ошибки:
//   - *apierrors.LoginError — бэкенд отклонил вход (с ошибками полей, если есть);
//   - *apierrors.NetworkError — бэкенд недоступен.
//
// При любой ошибке сессия остаётся unauthenticated.
func (s *Store) Login(ctx context.Context, creds models.Credentials) error {
	const op = "session.Store.Login"

	lg := log.From(ctx).With("op", op, "login", redactLogin(creds.Login))

	if creds.Login == "" || creds.Password == "" {
		le := &apierrors.LoginError{Message: "login and password are required"}
		if creds.Login == "" {
			le.Fields = append(le.Fields, apierrors.FieldError{Field: "login", Message: "required"})
		}
		if creds.Password == "" {
			le.Fields = append(le.Fields, apierrors.FieldError{Field: "password", Message: "required"})
		}
		return fmt.Errorf("%s: %w", op, le)
	}

	resp, err := s.tr.Do(ctx, http.MethodPost, transport.PathLogin, creds)
	if err != nil {
		lg.Info("login_failed", slog.String("err", err.Error()))
		return fmt.Errorf("%s: %w", op, toLoginError(err))
	}

	var body struct {
		Message     string       `json:"message"`
		AccessToken string       `json:"accessToken"`
		User        *models.User `json:"user"`
	}
	if err := resp.Decode(&body); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}

	if body.AccessToken != "" {
		s.tr.SetCredential(body.AccessToken)
	}

	user := body.User
	if user == nil || user.ID == "" {
		// Бэкенд отвечает только сообщением — личность берём из /auth/me.
		user, err = s.fetchIdentity(ctx)
		if err != nil {
			s.tr.ClearCredential()
			lg.Warn("login_identity_unavailable", slog.String("err", err.Error()))
			return fmt.Errorf("%s: fetch identity: %w", op, err)
		}
	}

	s.set(models.Session{
		Authenticated:  true,
		Identity:       user.Identity(),
		LastVerifiedAt: s.now(),
		Verified:       true,
	})

	lg.Info("login_succeeded", slog.String("user_id", user.ID))
	return nil
}

// Register выполняет POST /auth/register. Не аутентифицирует:
// после регистрации нужен отдельный Login.
func (s *Store) Register(ctx context.Context, data models.RegisterData) error {
	const op = "session.Store.Register"

	lg := log.From(ctx).With("op", op, "email", redact.Email(data.Email))

	if _, err := s.tr.Do(ctx, http.MethodPost, transport.PathRegister, data); err != nil {
		lg.Info("register_failed", slog.String("err", err.Error()))

		var se *apierrors.StatusError
		if errors.As(err, &se) {
			return fmt.Errorf("%s: %w", op, se)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("register_succeeded")
	return nil
}

// Logout выполняет POST /auth/logout по возможности; локальное состояние
// очищается независимо от исхода сетевого вызова.
func (s *Store) Logout(ctx context.Context) {
	const op = "session.Store.Logout"

	lg := log.From(ctx).With("op", op)

	if _, err := s.tr.Do(ctx, http.MethodPost, transport.PathLogout, nil); err != nil {
		lg.Warn("logout_call_failed", slog.String("err", err.Error()))
	}

	s.tr.ClearCredential()
	s.set(models.Session{Verified: true})

	lg.Info("logged_out")
}

// Expire переводит сессию в unauthenticated после неустранимого отказа refresh.
func (s *Store) Expire() {
	if s.Current().Authenticated {
		s.log.Info("session_expired")
	}

	s.set(models.Session{Verified: true})
}

func (s *Store) fetchIdentity(ctx context.Context) (*models.User, error) {
	resp, err := s.tr.Do(ctx, http.MethodGet, transport.PathMe, nil)
	if err != nil {
		return nil, err
	}

	// /auth/me отдаёт пользователя как есть или в обёртке {"user": {...}}.
	var wrapped struct {
		User *models.User `json:"user"`
	}
	if err := resp.Decode(&wrapped); err == nil && wrapped.User != nil && wrapped.User.ID != "" {
		return wrapped.User, nil
	}

	var user models.User
	if err := resp.Decode(&user); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}

	if user.ID == "" {
		return nil, errors.New("identity without id")
	}

	return &user, nil
}

func (s *Store) set(next models.Session) models.Session {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.sess = next
	subs := make([]func(models.Session), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(copySession(next))
	}

	return copySession(next)
}

// toLoginError переводит отказ бэкенда в LoginError. Сетевые ошибки
// и прочие отказы возвращаются как есть.
func toLoginError(err error) error {
	var se *apierrors.StatusError
	if !errors.As(err, &se) {
		return err
	}

	if se.Status >= http.StatusInternalServerError {
		return err
	}

	return &apierrors.LoginError{Fields: se.Fields, Message: se.Message}
}

func copySession(s models.Session) models.Session {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}

// redactLogin маскирует логин, если это e-mail; nickname пишется как есть.
func redactLogin(login string) string {
	if strings.Contains(login, "@") {
		return redact.Email(login)
	}
	return login
}
