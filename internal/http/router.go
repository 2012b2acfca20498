package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-forum-client/internal/guard"
	"github.com/pribylovaa/go-forum-client/internal/http/handlers"
	"github.com/pribylovaa/go-forum-client/internal/http/middleware"
)

// Options — параметры сборки роутера view API.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает view API: общие мидлвары, затем группы маршрутов
// под guard (гостевые, общие и защищённые).
func NewRouter(h *handlers.Handlers, g *guard.Guard, opts Options) http.Handler {
	root := chi.NewRouter()

	// Внешний -> внутренний.
	root.Use(
		middleware.Recover(),
		middleware.RequestID(), // до Logging: id попадает в логгер запроса
		middleware.Logging(opts.Logger),
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout))
	}

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, g)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, g)
	return root
}

func registerRoutes(r chi.Router, h *handlers.Handlers, g *guard.Guard) {
	r.Get("/auth/session", h.Session)

	r.Group(func(r chi.Router) {
		r.Use(g.RequirePublicOnly())

		r.Post("/auth/login", h.Login)
		r.Post("/auth/register", h.Register)
	})

	r.Group(func(r chi.Router) {
		r.Use(g.RequireProtected())

		r.Post("/auth/logout", h.Logout)

		// chats
		r.Get("/chats", h.ListChats)
		r.Post("/chats/item/{itemID}", h.CreateChat)
		r.Put("/chats/{id}/open", h.OpenChat)
		r.Get("/chats/{id}", h.Chat)
		r.Post("/chats/{id}/messages", h.SendMessage)
		r.Delete("/chats/{id}", h.CloseChat)

		// notifications
		r.Get("/notifications", h.Notifications)
		r.Put("/notifications/read-all", h.MarkAllRead)
		r.Put("/notifications/read/{id}", h.MarkRead)
		r.Delete("/notifications/{id}", h.DeleteNotification)

		// comments
		r.Get("/comments/{postID}", h.Comments)
		r.Post("/comments", h.CreateComment)
		r.Put("/comments/like/{id}", h.LikeComment)
	})
}
