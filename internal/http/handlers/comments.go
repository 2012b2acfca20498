package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/models"
)

// Comments открывает ветку комментариев поста. Ветка обновляется только
// снапшотами, поэтому ?reload=1 принудительно перечитывает её.
func (h *Handlers) Comments(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	if postID == "" {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	topic := models.CommentsTopic(postID)
	if r.URL.Query().Get("reload") == "1" {
		// Ошибка означает лишь, что ветка ещё не открыта.
		_ = h.Conversations.CloseConversation(r.Context(), topic)
	}

	view, err := h.Conversations.OpenConversation(r.Context(), topic)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	var in models.CreateCommentRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	cm, err := h.Conversations.CreateComment(r.Context(), in)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, cm)
}

func (h *Handlers) LikeComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	cm, err := h.Conversations.LikeComment(r.Context(), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cm)
}
