package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-forum-client/internal/metrics"
	"github.com/pribylovaa/go-forum-client/pkg/log"
)

type CtxKey string

// CtxRequestID — ключ контекста с request id входящего запроса view API;
// исходящие вызовы бэкенда наследуют его в X-Request-Id.
const CtxRequestID CtxKey = "request_id"

// RoundTripperFunc — адаптер функции к http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Middleware оборачивает http.RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// Chain применяет мидлвары в порядке перечисления (первый — внешний).
func Chain(rt http.RoundTripper, mws ...Middleware) http.RoundTripper {
	for i := len(mws) - 1; i >= 0; i-- {
		rt = mws[i](rt)
	}
	return rt
}

// WithMetadata добавляет в исходящий запрос:
//   - X-Request-Id (из контекста, если заголовок ещё не задан);
//   - User-Agent (если передан параметром).
func WithMetadata(userAgent string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			rid, _ := r.Context().Value(CtxRequestID).(string)
			needRID := rid != "" && r.Header.Get("X-Request-Id") == ""
			needUA := userAgent != ""

			if needRID || needUA {
				r = r.Clone(r.Context())
				if needRID {
					r.Header.Set("X-Request-Id", rid)
				}
				if needUA {
					r.Header.Set("User-Agent", userAgent)
				}
			}

			return next.RoundTrip(r)
		})
	}
}

// WithLogging — логирование исходящих вызовов:
//   - берёт X-Request-Id из запроса или генерирует новый (uuid);
//   - пишет одну итоговую запись уровня Debug: msg="http_call", status, dur;
//   - учитывает вызов в метриках.
//
// Тела и заголовки авторизации не логируются.
func WithLogging(base *slog.Logger, m *metrics.Metrics) Middleware {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			rid := r.Header.Get("X-Request-Id")
			if rid == "" {
				rid = uuid.NewString()
				r = r.Clone(r.Context())
				r.Header.Set("X-Request-Id", rid)
			}

			l := base.With(
				slog.String("request_id", rid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			r = r.WithContext(log.Into(r.Context(), l))

			resp, err := next.RoundTrip(r)
			dur := time.Since(start)

			if err != nil {
				m.Request(r.Method, 0, dur)
				l.Warn("http_call", slog.String("err", err.Error()), slog.Duration("dur", dur))
				return nil, err
			}

			m.Request(r.Method, resp.StatusCode, dur)
			l.Debug("http_call", slog.Int("status", resp.StatusCode), slog.Duration("dur", dur))

			return resp, nil
		})
	}
}

// withDefaultTimeout навешивает таймаут d, если у контекста ещё нет дедлайна.
// d <= 0 — контекст не меняется.
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}

	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, d)
}
