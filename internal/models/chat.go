package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// eventNamespace — пространство имён для детерминированных id событий
// (UUIDv5), когда бэкенд не присылает собственный _id.
var eventNamespace = uuid.MustParse("6f1c1f0e-6a53-4c1b-9a4e-9d7f0f5b2c11")

// Message — сообщение чата.
type Message struct {
	ID        string    `json:"_id,omitempty"`
	ChatID    string    `json:"chatId,omitempty"`
	Sender    User      `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemRef — товар маркетплейса, к которому привязан чат.
type ItemRef struct {
	ID    string  `json:"_id"`
	Title string  `json:"title,omitempty"`
	Price float64 `json:"price,omitempty"`
}

// Chat — чат покупателя и продавца по товару.
type Chat struct {
	ID           string    `json:"_id"`
	Participants []User    `json:"participants"`
	Item         *ItemRef  `json:"item,omitempty"`
	Messages     []Message `json:"messages,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// EventID возвращает _id сообщения или детерминированный id
// из (отправитель, время, текст), чтобы push и снапшот совпадали.
func (m Message) EventID() string {
	if m.ID != "" {
		return m.ID
	}

	key := m.Sender.ID + "\x00" + m.Timestamp.UTC().Format(time.RFC3339Nano) + "\x00" + m.Content
	return syntheticID(key)
}

func syntheticID(key string) string {
	return uuid.NewSHA1(eventNamespace, []byte(key)).String()
}

// Event переводит сообщение в событие транскрипта.
func (m Message) Event() (Event, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:         m.EventID(),
		AuthorID:   m.Sender.ID,
		Payload:    payload,
		OccurredAt: m.Timestamp,
	}, nil
}

// Events переводит историю чата в события транскрипта.
func (c Chat) Events() ([]Event, error) {
	out := make([]Event, 0, len(c.Messages))
	for _, m := range c.Messages {
		ev, err := m.Event()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}

	return out, nil
}
