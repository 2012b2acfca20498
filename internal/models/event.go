package models

import (
	"encoding/json"
	"time"
)

// ConnectionState — состояние push-доставки для транскрипта.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateLive         ConnectionState = "live"
)

// Event — единица транскрипта. ID уникален внутри транскрипта.
type Event struct {
	ID         string          `json:"id"`
	AuthorID   string          `json:"author_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// View — снимок транскрипта для читателей (копия, не разделяет память).
type View struct {
	Topic        string          `json:"topic"`
	Events       []Event         `json:"events"`
	State        ConnectionState `json:"state"`
	LastSyncedAt time.Time       `json:"last_synced_at"`
	// Gap — уведомление о том, что после переподключения история была перечитана.
	Gap bool `json:"gap,omitempty"`
	// Unread — число непрочитанных (только для ленты уведомлений).
	Unread int `json:"unread,omitempty"`
}
