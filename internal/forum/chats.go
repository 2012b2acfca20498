package forum

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/models"
)

// ListChats возвращает чаты текущего пользователя.
func (c *Client) ListChats(ctx context.Context) ([]models.Chat, error) {
	const op = "forum.Client.ListChats"

	var chats []models.Chat
	if err := c.call(ctx, http.MethodGet, "/chat", nil, &chats); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return chats, nil
}

// Chat возвращает чат вместе с историей сообщений.
func (c *Client) Chat(ctx context.Context, chatID string) (*models.Chat, error) {
	const op = "forum.Client.Chat"

	id, err := segment("chat id", chatID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var chat models.Chat
	if err := c.call(ctx, http.MethodGet, "/chat/"+id, nil, &chat); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	fillChatID(&chat)
	return &chat, nil
}

// CreateChat открывает (или возвращает существующий) чат с продавцом товара.
func (c *Client) CreateChat(ctx context.Context, itemID string) (*models.Chat, error) {
	const op = "forum.Client.CreateChat"

	id, err := segment("item id", itemID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var chat models.Chat
	if err := c.call(ctx, http.MethodPost, "/chat/item/"+id, nil, &chat); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	fillChatID(&chat)
	return &chat, nil
}

// SendMessage отправляет сообщение и возвращает его серверную копию (эхо).
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (*models.Message, error) {
	const op = "forum.Client.SendMessage"

	id, err := segment("chat id", chatID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%s: content is required: %w", op, apierrors.ErrInvalidArgument)
	}

	var msg models.Message
	req := models.SendMessageRequest{Content: content}
	if err := c.call(ctx, http.MethodPost, "/chat/"+id+"/messages", req, &msg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if msg.ChatID == "" {
		msg.ChatID = chatID
	}

	return &msg, nil
}

func fillChatID(chat *models.Chat) {
	for i := range chat.Messages {
		if chat.Messages[i].ChatID == "" {
			chat.Messages[i].ChatID = chat.ID
		}
	}
}
