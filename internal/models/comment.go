package models

import (
	"encoding/json"
	"time"
)

// Comment — комментарий к посту. Likes — id пользователей, поставивших лайк.
type Comment struct {
	ID        string    `json:"_id"`
	AuthorID  string    `json:"authorId"`
	PostID    string    `json:"postId"`
	Content   string    `json:"content"`
	ReplyTo   string    `json:"replyTo,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Likes     []string  `json:"likes"`
	Author    *User     `json:"author,omitempty"`
}

// CreateCommentRequest — тело POST /comments.
type CreateCommentRequest struct {
	Content string `json:"content"`
	PostID  string `json:"postId"`
	ReplyTo string `json:"replyTo,omitempty"`
}

// SendMessageRequest — тело POST /chat/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

func (c Comment) Event() (Event, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return Event{}, err
	}

	id := c.ID
	if id == "" {
		key := c.AuthorID + "\x00" + c.CreatedAt.UTC().Format(time.RFC3339Nano) + "\x00" + c.Content
		id = syntheticID(key)
	}

	return Event{
		ID:         id,
		AuthorID:   c.AuthorID,
		Payload:    payload,
		OccurredAt: c.CreatedAt,
	}, nil
}
