package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
)

// Notifications монтирует ленту уведомлений (если ещё не смонтирована)
// и отдаёт её представление с числом непрочитанных.
func (h *Handlers) Notifications(w http.ResponseWriter, r *http.Request) {
	topic, err := h.Conversations.NotificationsTopic()
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	view, err := h.Conversations.OpenConversation(r.Context(), topic)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	if err := h.Conversations.MarkRead(r.Context(), id); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeFeed(w, r)
}

func (h *Handlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Conversations.MarkAllRead(r.Context()); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeFeed(w, r)
}

func (h *Handlers) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	if err := h.Conversations.DeleteNotification(r.Context(), id); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeFeed(w, r)
}

// writeFeed отвечает обновлённой лентой; если лента не смонтирована — 204.
func (h *Handlers) writeFeed(w http.ResponseWriter, r *http.Request) {
	topic, err := h.Conversations.NotificationsTopic()
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	view, err := h.Conversations.View(topic)
	switch {
	case errors.Is(err, apierrors.ErrUnknownTopic):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		apierrors.WriteError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, view)
	}
}
