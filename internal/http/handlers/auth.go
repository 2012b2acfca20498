package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/models"
)

// Session отдаёт текущее состояние сессии (в том числе до завершения
// начальной проверки: verified=false).
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Sessions.Current())
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in models.Credentials
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.Sessions.Login(r.Context(), in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.Sessions.Current())
}

// Register не выполняет вход: UI после успеха отправляет Login.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in models.RegisterData
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.Sessions.Register(r.Context(), in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Logout(r.Context())
	writeJSON(w, http.StatusOK, h.Sessions.Current())
}
