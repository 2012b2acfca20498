package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/models"
)

func (h *Handlers) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.Conversations.ListChats(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if chats == nil {
		chats = []models.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *Handlers) CreateChat(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	if itemID == "" {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	chat, err := h.Conversations.CreateChat(r.Context(), itemID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, chat)
}

// OpenChat монтирует чат: подписка на push и загрузка истории.
func (h *Handlers) OpenChat(w http.ResponseWriter, r *http.Request) {
	topic, ok := chatTopic(w, r)
	if !ok {
		return
	}

	view, err := h.Conversations.OpenConversation(r.Context(), topic)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Chat отдаёт текущее представление открытого чата.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	topic, ok := chatTopic(w, r)
	if !ok {
		return
	}

	view, err := h.Conversations.View(topic)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	topic, ok := chatTopic(w, r)
	if !ok {
		return
	}

	var in models.SendMessageRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	msg, err := h.Conversations.SendMessage(r.Context(), topic.ID, in.Content)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// CloseChat демонтирует чат.
func (h *Handlers) CloseChat(w http.ResponseWriter, r *http.Request) {
	topic, ok := chatTopic(w, r)
	if !ok {
		return
	}

	if err := h.Conversations.CloseConversation(r.Context(), topic); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func chatTopic(w http.ResponseWriter, r *http.Request) (models.Topic, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return models.Topic{}, false
	}

	return models.ChatTopic(id), true
}
