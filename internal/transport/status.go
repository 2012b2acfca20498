package transport

import (
	"encoding/json"
	"strings"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
)

// backendError — известные формы тела ошибки бэкенда:
//
//	{"message": "..."}
//	{"error": "..."}
//	{"errors": [{"path"|"param"|"field": "...", "msg"|"message": "..."}]}
type backendError struct {
	Message string       `json:"message"`
	Error   string       `json:"error"`
	Errors  []fieldError `json:"errors"`
}

type fieldError struct {
	Field   string `json:"field"`
	Path    string `json:"path"`
	Param   string `json:"param"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

func decodeStatusError(resp *Response) *apierrors.StatusError {
	se := &apierrors.StatusError{Status: resp.StatusCode}

	var be backendError
	if err := json.Unmarshal(resp.Body, &be); err != nil {
		se.Message = strings.TrimSpace(string(truncate(resp.Body, 256)))
		return se
	}

	se.Message = be.Message
	if se.Message == "" {
		se.Message = be.Error
	}

	for _, f := range be.Errors {
		name := firstNonEmpty(f.Field, f.Path, f.Param)
		msg := firstNonEmpty(f.Message, f.Msg)
		if name == "" && msg == "" {
			continue
		}
		se.Fields = append(se.Fields, apierrors.FieldError{Field: name, Message: msg})
	}

	return se
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
