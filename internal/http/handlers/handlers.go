// handlers — обработчики локального view API. Ошибки отдаются
// через apierrors.WriteError в едином JSON-конверте.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/models"
)

// Sessions — операции над сессией (session.Store).
type Sessions interface {
	Current() models.Session
	Login(ctx context.Context, creds models.Credentials) error
	Register(ctx context.Context, data models.RegisterData) error
	Logout(ctx context.Context)
}

// Conversations — прикладной сервис (service.Service).
type Conversations interface {
	OpenConversation(ctx context.Context, topic models.Topic) (models.View, error)
	CloseConversation(ctx context.Context, topic models.Topic) error
	View(topic models.Topic) (models.View, error)

	ListChats(ctx context.Context) ([]models.Chat, error)
	CreateChat(ctx context.Context, itemID string) (*models.Chat, error)
	SendMessage(ctx context.Context, chatID, content string) (*models.Message, error)

	NotificationsTopic() (models.Topic, error)
	MarkRead(ctx context.Context, notificationID string) error
	MarkAllRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, notificationID string) error

	CreateComment(ctx context.Context, req models.CreateCommentRequest) (*models.Comment, error)
	LikeComment(ctx context.Context, commentID string) (*models.Comment, error)
}

type Handlers struct {
	Sessions      Sessions
	Conversations Conversations
}

func New(s Sessions, c Conversations) *Handlers {
	return &Handlers{Sessions: s, Conversations: c}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: неизвестные поля запрещены.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, apierrors.ErrInvalidArgument)
	}
	return nil
}
