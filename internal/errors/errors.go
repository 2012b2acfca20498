// errors описывает таксономию ошибок клиента и их отображение
// в ответы локального view API.
//
// Классы ошибок:
//   - сетевые (NetworkError) — повторяются только каналом при переподключении;
//   - истечение аутентификации (ErrAuthExpired) — терминальна после одного refresh+replay;
//   - валидационные (LoginError, StatusError с Fields) — не повторяются, поля отдаются UI;
//   - бизнес-конфликты (StatusError) — отдаются как есть.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

var (
	// ErrAuthExpired — сессия не может быть восстановлена refresh-ом
	// (refresh отклонён или повторный запрос снова получил 401).
	// View API: 401.
	ErrAuthExpired = stderrors.New("auth expired")

	// ErrLoginFailed — базовая ошибка для LoginError (errors.Is).
	// View API: 401 или 400 (если есть ошибки полей).
	ErrLoginFailed = stderrors.New("login failed")

	// ErrTranscriptSyncGap — после переподключения история могла иметь пропуски
	// и была перечитана снапшотом. Это уведомление, а не отказ.
	ErrTranscriptSyncGap = stderrors.New("transcript sync gap")

	// ErrSnapshotFailed — загрузка REST-снапшота не удалась; события не изменены,
	// операцию можно повторить. View API: 503.
	ErrSnapshotFailed = stderrors.New("snapshot load failed")

	// ErrUnknownTopic — транскрипт для топика не открыт. View API: 404.
	ErrUnknownTopic = stderrors.New("unknown topic")

	// ErrChannelClosed — realtime-канал закрыт. View API: 503.
	ErrChannelClosed = stderrors.New("realtime channel closed")

	// ErrNotAuthenticated — операция требует вошедшего пользователя. View API: 401.
	ErrNotAuthenticated = stderrors.New("not authenticated")

	// ErrInvalidArgument — некорректный вход view API. View API: 400.
	ErrInvalidArgument = stderrors.New("invalid argument")
)

// FieldError — ошибка валидации конкретного поля формы.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// LoginError — неудачный вход. Fields заполнен, если бэкенд вернул ошибки полей.
type LoginError struct {
	Fields  []FieldError
	Message string
}

func (e *LoginError) Error() string {
	if len(e.Fields) == 0 {
		if e.Message == "" {
			return ErrLoginFailed.Error()
		}
		return ErrLoginFailed.Error() + ": " + e.Message
	}

	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}

	return ErrLoginFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *LoginError) Is(target error) bool { return target == ErrLoginFailed }

// StatusError — не-2xx ответ бэкенда (кроме обработанного 401).
type StatusError struct {
	Status  int
	Message string
	Fields  []FieldError
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend status %d", e.Status)
	}

	return fmt.Sprintf("backend status %d: %s", e.Status, e.Message)
}

// NetworkError — запрос не дошёл до бэкенда или ответ не прочитан.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return "network: " + e.Op + ": " + e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRetryable сообщает, имеет ли смысл повторить операцию позже.
func IsRetryable(err error) bool {
	var ne *NetworkError
	switch {
	case err == nil:
		return false
	case stderrors.As(err, &ne):
		return true
	case stderrors.Is(err, ErrSnapshotFailed):
		return true
	}

	var se *StatusError
	if stderrors.As(err, &se) {
		return se.Status >= http.StatusInternalServerError
	}

	return false
}

// APIError — единый формат ошибки view API.
// Code — короткий стабильный код для машиночитаемой обработки в UI.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id.
// Fields — ошибки полей формы (валидация логина/регистрации).
type APIError struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	RequestID string       `json:"request_id,omitempty"`
	Fields    []FieldError `json:"fields,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/internal;
//   - известные sentinel/типизированные ошибки маппятся по таблице;
//   - прочее — 500/internal без утечки деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return internal()
	}

	var (
		le *LoginError
		se *StatusError
		ne *NetworkError
	)

	switch {
	case stderrors.As(err, &le):
		status := http.StatusUnauthorized
		if len(le.Fields) > 0 {
			status = http.StatusBadRequest
		}
		msg := le.Message
		if msg == "" {
			msg = "login failed"
		}
		return status, ErrorResponse{Error: APIError{Code: "login_failed", Message: msg, Fields: le.Fields}}

	case stderrors.Is(err, ErrAuthExpired):
		return http.StatusUnauthorized, respond("auth_expired", "session expired")

	case stderrors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized, respond("unauthenticated", "unauthenticated")

	case stderrors.As(err, &se):
		status, code, msg := baseFromStatus(se.Status)
		if se.Message != "" && se.Status < http.StatusInternalServerError {
			msg = se.Message
		}
		return status, ErrorResponse{Error: APIError{Code: code, Message: msg, Fields: se.Fields}}

	case stderrors.As(err, &ne):
		return http.StatusBadGateway, respond("network", "backend unreachable")

	case stderrors.Is(err, ErrSnapshotFailed):
		return http.StatusServiceUnavailable, respond("snapshot_failed", "history unavailable, retry later")

	case stderrors.Is(err, ErrChannelClosed):
		return http.StatusServiceUnavailable, respond("channel_closed", "realtime channel closed")

	case stderrors.Is(err, ErrUnknownTopic):
		return http.StatusNotFound, respond("not_found", "not found")

	case stderrors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, respond("invalid_argument", "invalid argument")

	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, respond("canceled", "canceled")

	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, respond("deadline_exceeded", "deadline exceeded")
	}

	return internal()
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func respond(code, msg string) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

func internal() (int, ErrorResponse) {
	return http.StatusInternalServerError, respond("internal", "internal error")
}

// baseFromStatus — маппинг статуса бэкенда в статус/код view API.
//   - 400, 422 -> 400 invalid_argument
//   - 403 -> 403 permission_denied
//   - 404 -> 404 not_found
//   - 409 -> 409 already_exists
//   - 429 -> 429 resource_exhausted
//   - 5xx -> 502 upstream (детали не пробрасываются)
func baseFromStatus(s int) (int, string, string) {
	switch {
	case s == http.StatusBadRequest, s == http.StatusUnprocessableEntity:
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case s == http.StatusUnauthorized:
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case s == http.StatusForbidden:
		return http.StatusForbidden, "permission_denied", "permission denied"
	case s == http.StatusNotFound:
		return http.StatusNotFound, "not_found", "not found"
	case s == http.StatusConflict:
		return http.StatusConflict, "already_exists", "already exists"
	case s == http.StatusTooManyRequests:
		return http.StatusTooManyRequests, "resource_exhausted", "resource exhausted"
	case s >= http.StatusInternalServerError:
		return http.StatusBadGateway, "upstream", "upstream error"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
