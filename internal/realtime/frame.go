package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"github.com/pribylovaa/go-forum-client/internal/models"
)

// Имена событий протокола.
const (
	EventJoinChat           = "join-chat"
	EventLeaveChat          = "leave-chat"
	EventJoinNotifications  = "join-notifications"
	EventLeaveNotifications = "leave-notifications"
	EventReceiveMessage     = "receive-message"
	EventNotification       = "notification"
)

// Frame — JSON-кадр канала в обе стороны.
// Topic — id комнаты (чата или пользователя).
type Frame struct {
	Event string          `json:"event"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Push — доставленное сервером событие топика.
type Push struct {
	Topic models.Topic
	Event string
	Data  json.RawMessage
}

type topicEvents struct {
	join, leave, push string
	// idField — поле data, из которого берётся id комнаты, если topic не задан.
	idField string
}

var eventsByKind = map[models.TopicKind]topicEvents{
	models.KindChat:          {join: EventJoinChat, leave: EventLeaveChat, push: EventReceiveMessage, idField: "chatId"},
	models.KindNotifications: {join: EventJoinNotifications, leave: EventLeaveNotifications, push: EventNotification, idField: "userId"},
}

var kindByPush = map[string]models.TopicKind{
	EventReceiveMessage: models.KindChat,
	EventNotification:   models.KindNotifications,
}

const frameSchema = `{
  "type": "object",
  "required": ["event"],
  "properties": {
    "event": {"type": "string", "minLength": 1},
    "topic": {"type": "string"}
  }
}`

const messageSchema = `{
  "type": "object",
  "required": ["content", "timestamp", "sender"],
  "properties": {
    "_id": {"type": "string"},
    "chatId": {"type": "string"},
    "content": {"type": "string"},
    "timestamp": {"type": "string"},
    "sender": {"type": ["string", "object"]}
  }
}`

const notificationSchema = `{
  "type": "object",
  "required": ["_id", "content", "createdAt"],
  "properties": {
    "_id": {"type": "string", "minLength": 1},
    "userId": {"type": "string"},
    "type": {"type": "string"},
    "content": {"type": "string"},
    "read": {"type": "boolean"},
    "createdAt": {"type": "string"}
  }
}`

// validator проверяет входящие кадры по JSON Schema.
type validator struct {
	frame *jsonschema.Schema
	data  map[string]*jsonschema.Schema
}

func newValidator() (*validator, error) {
	frame, err := compile("frame", frameSchema)
	if err != nil {
		return nil, err
	}

	msg, err := compile("message", messageSchema)
	if err != nil {
		return nil, err
	}

	notif, err := compile("notification", notificationSchema)
	if err != nil {
		return nil, err
	}

	return &validator{
		frame: frame,
		data: map[string]*jsonschema.Schema{
			EventReceiveMessage: msg,
			EventNotification:   notif,
		},
	}, nil
}

func compile(name, src string) (*jsonschema.Schema, error) {
	schema, err := jsonschema.NewCompiler().Compile([]byte(src))
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}

	return schema, nil
}

// decode проверяет кадр и декодирует его.
func (v *validator) decode(raw []byte) (Frame, error) {
	if res := v.frame.ValidateJSON(raw); !res.IsValid() {
		return Frame{}, fmt.Errorf("frame schema validation failed: %v", res.Errors)
	}

	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	if s, ok := v.data[f.Event]; ok {
		if len(f.Data) == 0 {
			return Frame{}, fmt.Errorf("event %q without data", f.Event)
		}
		if res := s.ValidateJSON(f.Data); !res.IsValid() {
			return Frame{}, fmt.Errorf("event %q data validation failed: %v", f.Event, res.Errors)
		}
	}

	return f, nil
}

// topicOf определяет топик push-кадра.
func topicOf(f Frame) (models.Topic, bool) {
	kind, ok := kindByPush[f.Event]
	if !ok {
		return models.Topic{}, false
	}

	id := f.Topic
	if id == "" {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(f.Data, &probe); err == nil {
			_ = json.Unmarshal(probe[eventsByKind[kind].idField], &id)
		}
	}

	if id == "" {
		return models.Topic{}, false
	}

	return models.Topic{Kind: kind, ID: id}, true
}
