package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/transport"
)

// capHandler — slog.Handler, запоминающий последнюю запись вместе
// с атрибутами, добавленными через Logger.With.
type capHandler struct {
	mu      *sync.Mutex
	base    []slog.Attr
	records *[]capRecord
}

type capRecord struct {
	msg   string
	attrs map[string]any
}

func newCapHandler() *capHandler {
	return &capHandler{mu: &sync.Mutex{}, records: &[]capRecord{}}
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, capRecord{msg: r.Message, attrs: out})
	h.mu.Unlock()
	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	base := append(append([]slog.Attr{}, h.base...), attrs...)
	return &capHandler{mu: h.mu, base: base, records: h.records}
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func (h *capHandler) last(t *testing.T) capRecord {
	t.Helper()

	h.mu.Lock()
	defer h.mu.Unlock()

	require.NotEmpty(t, *h.records)
	return (*h.records)[len(*h.records)-1]
}

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+"-begin")
				next.ServeHTTP(w, r)
				order = append(order, name+"-end")
			})
		}
	}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	Chain(final, mw("m1"), mw("m2")).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chain", nil))

	require.Equal(t, []string{"m1-begin", "m2-begin", "handler", "m2-end", "m1-end"}, order)
	require.Equal(t, http.StatusTeapot, rr.Code)
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	var seenHeader, seenCtx string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenHeader = r.Header.Get(HeaderRequestID)
		seenCtx, _ = r.Context().Value(transport.CtxRequestID).(string)
	})

	rr := httptest.NewRecorder()
	Chain(h, RequestID()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rid", nil))

	id := rr.Header().Get(HeaderRequestID)
	require.Len(t, id, 36)
	require.Equal(t, id, seenHeader)
	require.Equal(t, id, seenCtx)
}

func TestRequestID_UseExisting(t *testing.T) {
	const given = "rid-existing"
	var seenCtx string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCtx, _ = r.Context().Value(transport.CtxRequestID).(string)
	})

	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(HeaderRequestID, given)

	rr := httptest.NewRecorder()
	Chain(h, RequestID()).ServeHTTP(rr, req)

	require.Equal(t, given, rr.Header().Get(HeaderRequestID))
	require.Equal(t, given, seenCtx)
}

func TestTimeout_SetsDeadline_WhenAbsent(t *testing.T) {
	var left time.Duration
	var ok bool

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var dl time.Time
		dl, ok = r.Context().Deadline()
		left = time.Until(dl)
	})

	Chain(h, Timeout(time.Second)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, ok)
	require.Greater(t, left, time.Duration(0))
}

func TestTimeout_KeepsExistingDeadline(t *testing.T) {
	var child time.Time

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		child, _ = r.Context().Deadline()
	})

	parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(parent)
	Chain(h, Timeout(time.Minute)).ServeHTTP(httptest.NewRecorder(), req)

	want, _ := parent.Deadline()
	require.WithinDuration(t, want, child, time.Millisecond)
}

func TestTimeout_DisabledIsNoop(t *testing.T) {
	var ok bool

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = r.Context().Deadline()
	})

	Chain(h, Timeout(0)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, ok)
}

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rr := httptest.NewRecorder()
	Chain(h, RequestID(), Recover()).ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var env apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "internal", env.Error.Code)
	require.NotContains(t, env.Error.Message, "boom")
	require.Equal(t, rr.Header().Get(HeaderRequestID), env.Error.RequestID)
}

func TestLogging_WritesRecord(t *testing.T) {
	capture := newCapHandler()
	logger := slog.New(capture)

	const rid = "rid-456"
	r := chi.NewRouter()
	r.Use(RequestID(), Logging(logger))
	r.Get("/chats/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	})

	req := httptest.NewRequest(http.MethodGet, "/chats/c1", nil)
	req.Header.Set(HeaderRequestID, rid)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	rec := capture.last(t)
	require.Equal(t, "view_api_request", rec.msg)
	require.Equal(t, http.MethodGet, rec.attrs["method"])
	require.Equal(t, "/chats/c1", rec.attrs["path"])
	require.Equal(t, "/chats/{id}", rec.attrs["route"])
	require.EqualValues(t, http.StatusOK, rec.attrs["status"])
	require.EqualValues(t, 10, rec.attrs["bytes"])
	require.Equal(t, rid, rec.attrs["request_id"])
	require.Contains(t, rec.attrs, "dur")
}

func TestStatusWriter_DefaultsTo200(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	require.Equal(t, http.StatusOK, sw.code())

	_, _ = sw.Write([]byte("abcd"))
	sw.WriteHeader(http.StatusTeapot)

	require.Equal(t, http.StatusOK, sw.status)
	require.Equal(t, 4, sw.count)
}
