package forum

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/models"
)

// Comments возвращает комментарии поста.
func (c *Client) Comments(ctx context.Context, postID string) ([]models.Comment, error) {
	const op = "forum.Client.Comments"

	id, err := segment("post id", postID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var list []models.Comment
	if err := c.call(ctx, http.MethodGet, "/comments/"+id, nil, &list); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return list, nil
}

// CreateComment создаёт комментарий или ответ (ReplyTo).
func (c *Client) CreateComment(ctx context.Context, req models.CreateCommentRequest) (*models.Comment, error) {
	const op = "forum.Client.CreateComment"

	switch {
	case strings.TrimSpace(req.PostID) == "":
		return nil, fmt.Errorf("%s: post id is required: %w", op, apierrors.ErrInvalidArgument)
	case strings.TrimSpace(req.Content) == "":
		return nil, fmt.Errorf("%s: content is required: %w", op, apierrors.ErrInvalidArgument)
	}

	var cm models.Comment
	if err := c.call(ctx, http.MethodPost, "/comments", req, &cm); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cm.PostID == "" {
		cm.PostID = req.PostID
	}

	return &cm, nil
}

// LikeComment переключает лайк и возвращает обновлённый комментарий.
func (c *Client) LikeComment(ctx context.Context, commentID string) (*models.Comment, error) {
	const op = "forum.Client.LikeComment"

	id, err := segment("comment id", commentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var cm models.Comment
	if err := c.call(ctx, http.MethodPut, "/comments/like/"+id, nil, &cm); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cm, nil
}
