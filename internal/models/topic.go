package models

import (
	"fmt"
	"strings"
)

// TopicKind — вид разговора, синхронизируемого транскриптом.
type TopicKind string

const (
	KindChat          TopicKind = "chat"
	KindNotifications TopicKind = "notifications"
	KindComments      TopicKind = "comments"
)

// Topic — адрес разговора: комната чата, лента уведомлений пользователя
// или ветка комментариев поста.
type Topic struct {
	Kind TopicKind
	ID   string
}

func ChatTopic(chatID string) Topic { return Topic{Kind: KindChat, ID: chatID} }
func NotificationsTopic(userID string) Topic { return Topic{Kind: KindNotifications, ID: userID} }
func CommentsTopic(postID string) Topic { return Topic{Kind: KindComments, ID: postID} }

func (t Topic) String() string { return string(t.Kind) + ":" + t.ID }

// Realtime сообщает, доставляются ли события топика через push-канал.
// Комментарии синхронизируются только REST-снапшотами.
func (t Topic) Realtime() bool {
	return t.Kind == KindChat || t.Kind == KindNotifications
}

// ParseTopic разбирает строку вида "chat:<id>".
func ParseTopic(s string) (Topic, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Topic{}, fmt.Errorf("invalid topic %q", s)
	}

	switch TopicKind(kind) {
	case KindChat, KindNotifications, KindComments:
		return Topic{Kind: TopicKind(kind), ID: id}, nil
	default:
		return Topic{}, fmt.Errorf("invalid topic kind %q", kind)
	}
}
