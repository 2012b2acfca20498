package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-forum-client/internal/transport"
)

// HeaderRequestID — заголовок с id запроса.
const HeaderRequestID = "X-Request-Id"

// RequestID берёт X-Request-Id из запроса или генерирует новый,
// возвращает его в ответе и кладёт в контекст по ключу transport.CtxRequestID:
// оттуда его забирают исходящие запросы к бэкенду.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
				// WriteError читает id из заголовка запроса.
				r.Header.Set(HeaderRequestID, id)
			}
			w.Header().Set(HeaderRequestID, id)

			ctx := context.WithValue(r.Context(), transport.CtxRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
