package models

import (
	"encoding/json"
	"time"
)

// NotificationType — тип уведомления.
type NotificationType string

const (
	NotificationComment NotificationType = "comment"
	NotificationLike    NotificationType = "like"
	NotificationReply   NotificationType = "reply"
	NotificationMention NotificationType = "mention"
	NotificationSystem  NotificationType = "system"
)

// Notification — уведомление пользователя.
type Notification struct {
	ID        string           `json:"_id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Content   string           `json:"content"`
	Link      string           `json:"link,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

func (n Notification) Event() (Event, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:         n.ID,
		AuthorID:   n.UserID,
		Payload:    payload,
		OccurredAt: n.CreatedAt,
	}, nil
}

// NotificationFromEvent восстанавливает уведомление из события транскрипта.
func NotificationFromEvent(ev Event) (Notification, error) {
	var n Notification
	err := json.Unmarshal(ev.Payload, &n)
	return n, err
}

// UnreadCount считает непрочитанные уведомления в событиях ленты.
// Нераспознанные события пропускаются.
func UnreadCount(events []Event) int {
	n := 0
	for _, ev := range events {
		var probe struct {
			Read bool `json:"read"`
		}
		if err := json.Unmarshal(ev.Payload, &probe); err != nil {
			continue
		}
		if !probe.Read {
			n++
		}
	}

	return n
}

// MarkRead возвращает событие с read=true в payload.
func MarkRead(ev Event) (Event, error) {
	n, err := NotificationFromEvent(ev)
	if err != nil {
		return ev, err
	}

	n.Read = true
	return n.Event()
}
