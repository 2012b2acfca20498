// guard решает, можно ли войти на защищённый или гостевой маршрут,
// по текущему состоянию сессии.
//
// Пока начальная проверка сессии не завершена, guard отвечает Loading
// и никогда не переадресует: иначе уже вошедший пользователь на мгновение
// увидел бы страницу входа.
package guard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pribylovaa/go-forum-client/internal/models"
	"github.com/pribylovaa/go-forum-client/pkg/log"
)

// Outcome — исход проверки маршрута.
type Outcome int

const (
	Loading Outcome = iota
	Allow
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Loading:
		return "loading"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision — решение guard. Target заполнен только для Redirect.
type Decision struct {
	Outcome Outcome
	Target  string
}

// Sessions — источник текущей сессии (session.Store).
type Sessions interface {
	Current() models.Session
}

type Options struct {
	// LoginPath — куда отправлять гостя с защищённого маршрута.
	LoginPath string
	// HomePath — куда отправлять вошедшего пользователя с гостевого маршрута.
	HomePath string
	// RetryAfter — подсказка клиенту, когда повторить запрос в состоянии Loading.
	RetryAfter time.Duration
}

type Guard struct {
	sessions   Sessions
	loginPath  string
	homePath   string
	retryAfter time.Duration
}

func New(sessions Sessions, opts Options) *Guard {
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.HomePath == "" {
		opts.HomePath = "/"
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}

	return &Guard{
		sessions:   sessions,
		loginPath:  opts.LoginPath,
		homePath:   opts.HomePath,
		retryAfter: opts.RetryAfter,
	}
}

func (g *Guard) CanEnterProtected() bool { return g.sessions.Current().Authenticated }

func (g *Guard) CanEnterPublicOnly() bool { return !g.sessions.Current().Authenticated }

// Protected — решение для маршрута, доступного только вошедшим.
func (g *Guard) Protected() Decision {
	return g.decide(true)
}

// PublicOnly — решение для маршрута, доступного только гостям (вход, регистрация).
func (g *Guard) PublicOnly() Decision {
	return g.decide(false)
}

func (g *Guard) decide(protected bool) Decision {
	sess := g.sessions.Current()

	switch {
	case !sess.Verified:
		return Decision{Outcome: Loading}
	case sess.Authenticated == protected:
		return Decision{Outcome: Allow}
	case protected:
		return Decision{Outcome: Redirect, Target: g.loginPath}
	default:
		return Decision{Outcome: Redirect, Target: g.homePath}
	}
}

// RequireProtected — мидлвар для защищённых маршрутов.
func (g *Guard) RequireProtected() func(http.Handler) http.Handler {
	return g.middleware(g.Protected)
}

// RequirePublicOnly — мидлвар для гостевых маршрутов.
func (g *Guard) RequirePublicOnly() func(http.Handler) http.Handler {
	return g.middleware(g.PublicOnly)
}

func (g *Guard) middleware(decide func() Decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := decide()

			switch d.Outcome {
			case Allow:
				next.ServeHTTP(w, r)

			case Loading:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int((g.retryAfter+time.Second-1)/time.Second)))
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"state": d.Outcome.String()})

			case Redirect:
				log.From(r.Context()).Debug("guard_redirect",
					slog.String("path", r.URL.Path),
					slog.String("target", d.Target),
				)
				http.Redirect(w, r, d.Target, http.StatusSeeOther)
			}
		})
	}
}
