package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-forum-client/internal/cache"
	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/metrics"
	"github.com/pribylovaa/go-forum-client/internal/models"
	"github.com/pribylovaa/go-forum-client/mocks"
)

var chat = models.ChatTopic("c1")

func silent() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func ev(id string, sec int64) models.Event {
	return models.Event{
		ID:         id,
		AuthorID:   "u1",
		Payload:    json.RawMessage(`{"id":"` + id + `"}`),
		OccurredAt: time.Unix(sec, 0).UTC(),
	}
}

func ids(events []models.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

// sourceFunc — источник снапшотов для тестов с ручным управлением загрузкой.
type sourceFunc func(ctx context.Context, topic models.Topic) ([]models.Event, error)

func (f sourceFunc) Snapshot(ctx context.Context, topic models.Topic) ([]models.Event, error) {
	return f(ctx, topic)
}

func newReconciler(t *testing.T, snapshot ...models.Event) (*Reconciler, *mocks.MockSnapshotSource) {
	t.Helper()

	ctrl := gomock.NewController(t)
	src := mocks.NewMockSnapshotSource(ctrl)
	r := New(Options{Source: src, Logger: silent()})

	src.EXPECT().Snapshot(gomock.Any(), chat).Return(snapshot, nil)
	_, err := r.Open(context.Background(), chat)
	require.NoError(t, err)

	return r, src
}

func mustEvents(t *testing.T, r *Reconciler, topic models.Topic) []string {
	t.Helper()

	events, err := r.Events(topic)
	require.NoError(t, err)
	return ids(events)
}

func TestApplyPushEvent_SameIDTwice_AppliedOnce(t *testing.T) {
	t.Parallel()

	r, _ := newReconciler(t, ev("m1", 1))

	// m1 уже пришёл снапшотом.
	require.False(t, r.ApplyPushEvent(chat, ev("m1", 1)))

	require.True(t, r.ApplyPushEvent(chat, ev("m2", 2)))
	once := mustEvents(t, r, chat)

	require.False(t, r.ApplyPushEvent(chat, ev("m2", 2)))
	require.Equal(t, once, mustEvents(t, r, chat))
	require.Equal(t, []string{"m1", "m2"}, once)
}

func TestApplyPushEvent_OutOfOrderArrivalsSorted(t *testing.T) {
	t.Parallel()

	r, _ := newReconciler(t)

	for _, e := range []models.Event{ev("t3", 3), ev("t1", 1), ev("t2", 2)} {
		require.True(t, r.ApplyPushEvent(chat, e))
	}

	require.Equal(t, []string{"t1", "t2", "t3"}, mustEvents(t, r, chat))
}

func TestApplyPushEvent_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	t.Parallel()

	r, _ := newReconciler(t, ev("a", 5))

	require.True(t, r.ApplyPushEvent(chat, ev("b", 5)))
	require.True(t, r.ApplyPushEvent(chat, ev("early", 1)))
	require.True(t, r.ApplyPushEvent(chat, ev("c", 5)))

	require.Equal(t, []string{"early", "a", "b", "c"}, mustEvents(t, r, chat))
}

func TestApplyPushEvent_UnknownTopicAndEmptyID(t *testing.T) {
	t.Parallel()

	r, _ := newReconciler(t)

	require.False(t, r.ApplyPushEvent(models.ChatTopic("nope"), ev("m1", 1)))
	require.False(t, r.ApplyPushEvent(chat, models.Event{OccurredAt: time.Now()}))
	require.Empty(t, mustEvents(t, r, chat))
}

func TestLoadSnapshot_ReplacesWholesale(t *testing.T) {
	t.Parallel()

	r, src := newReconciler(t, ev("m1", 1), ev("m2", 2))

	src.EXPECT().Snapshot(gomock.Any(), chat).Return([]models.Event{ev("m3", 3), ev("m2", 2), ev("m2", 2)}, nil)

	got, err := r.LoadSnapshot(context.Background(), chat)
	require.NoError(t, err)
	require.Equal(t, []string{"m2", "m3"}, ids(got))
	require.Equal(t, []string{"m2", "m3"}, mustEvents(t, r, chat))

	view, err := r.View(chat)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), view.LastSyncedAt, time.Second)
}

func TestLoadSnapshot_FailureLeavesEventsUntouched(t *testing.T) {
	t.Parallel()

	r, src := newReconciler(t, ev("m1", 1))
	require.True(t, r.ApplyPushEvent(chat, ev("m2", 2)))
	before := mustEvents(t, r, chat)

	boom := &apierrors.NetworkError{Op: "GET /chat/c1", Err: errors.New("connection refused")}
	src.EXPECT().Snapshot(gomock.Any(), chat).Return(nil, boom)

	_, err := r.LoadSnapshot(context.Background(), chat)
	require.ErrorIs(t, err, apierrors.ErrSnapshotFailed)
	require.ErrorIs(t, err, boom)
	require.True(t, apierrors.IsRetryable(err))

	require.Equal(t, before, mustEvents(t, r, chat))
}

func TestLoadSnapshot_PushDuringFetchIsKept(t *testing.T) {
	t.Parallel()

	r := New(Options{Logger: silent(), Source: sourceFunc(func(ctx context.Context, topic models.Topic) ([]models.Event, error) {
		return nil, nil
	})})
	require.True(t, r.Track(context.Background(), chat))

	// До начала загрузки: снапшот этого события не содержит, оно уходит.
	require.True(t, r.ApplyPushEvent(chat, ev("before", 1)))

	r.src = sourceFunc(func(ctx context.Context, topic models.Topic) ([]models.Event, error) {
		require.True(t, r.ApplyPushEvent(topic, ev("during", 4)))
		require.True(t, r.ApplyPushEvent(topic, ev("m2", 2)))
		return []models.Event{ev("m2", 2), ev("m3", 3)}, nil
	})

	got, err := r.LoadSnapshot(context.Background(), chat)
	require.NoError(t, err)
	require.Equal(t, []string{"m2", "m3", "during"}, ids(got))
}

func TestLoadSnapshot_ClosedDuringFetchDiscarded(t *testing.T) {
	t.Parallel()

	r := New(Options{Logger: silent()})
	r.src = sourceFunc(func(ctx context.Context, topic models.Topic) ([]models.Event, error) {
		require.True(t, r.Close(topic))
		return []models.Event{ev("m1", 1)}, nil
	})

	_, err := r.Open(context.Background(), chat)
	require.ErrorIs(t, err, apierrors.ErrUnknownTopic)

	_, err = r.Events(chat)
	require.ErrorIs(t, err, apierrors.ErrUnknownTopic)
	require.Empty(t, r.Topics())
}

func TestLoadSnapshot_OlderResultDiscarded(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{})

	var (
		mu    sync.Mutex
		calls int
	)
	r := New(Options{Logger: silent(), Source: sourceFunc(func(ctx context.Context, topic models.Topic) ([]models.Event, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			close(entered)
			<-release
			return []models.Event{ev("old", 1)}, nil
		}
		return []models.Event{ev("new", 2)}, nil
	})})
	require.True(t, r.Track(context.Background(), chat))

	type result struct {
		events []models.Event
		err    error
	}
	done := make(chan result)
	go func() {
		got, err := r.LoadSnapshot(context.Background(), chat)
		done <- result{events: got, err: err}
	}()

	<-entered
	got, err := r.LoadSnapshot(context.Background(), chat)
	require.NoError(t, err)
	require.Equal(t, []string{"new"}, ids(got))

	close(release)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, []string{"new"}, ids(res.events))
	require.Equal(t, []string{"new"}, mustEvents(t, r, chat))
}

func TestOnReconnect_MissedEventRecovered(t *testing.T) {
	t.Parallel()

	r, src := newReconciler(t, ev("m1", 1))

	var states []models.ConnectionState
	cancel, err := r.Subscribe(chat, func(v models.View) { states = append(states, v.State) })
	require.NoError(t, err)
	defer cancel()

	require.True(t, r.SetConnectionState(chat, models.StateLive))
	require.True(t, r.SetConnectionState(chat, models.StateDisconnected))

	// m2 отправлен, пока канал был разорван, и push не пришёл.
	src.EXPECT().Snapshot(gomock.Any(), chat).Return([]models.Event{ev("m1", 1), ev("m2", 2)}, nil)

	require.NoError(t, r.OnReconnect(context.Background(), chat))
	require.Equal(t, []string{"m1", "m2"}, mustEvents(t, r, chat))
	require.Equal(t, []models.ConnectionState{
		models.StateLive,
		models.StateDisconnected,
		models.StateConnecting,
		models.StateLive,
		models.StateLive, // снапшот
		models.StateLive, // отметка о пропуске
	}, states)

	view, err := r.View(chat)
	require.NoError(t, err)
	require.True(t, view.Gap)

	require.ErrorIs(t, r.AckGap(chat), apierrors.ErrTranscriptSyncGap)
	require.NoError(t, r.AckGap(chat))

	view, err = r.View(chat)
	require.NoError(t, err)
	require.False(t, view.Gap)
}

func TestOnReconnect_SnapshotFailure(t *testing.T) {
	t.Parallel()

	r, src := newReconciler(t, ev("m1", 1))
	src.EXPECT().Snapshot(gomock.Any(), chat).Return(nil, errors.New("503"))

	err := r.OnReconnect(context.Background(), chat)
	require.ErrorIs(t, err, apierrors.ErrSnapshotFailed)

	view, err := r.View(chat)
	require.NoError(t, err)
	require.False(t, view.Gap)
	require.Equal(t, models.StateLive, view.State)
	require.Equal(t, []string{"m1"}, ids(view.Events))
}

func notification(id string, sec int64, read bool) models.Event {
	n := models.Notification{
		ID:        id,
		UserID:    "u1",
		Type:      models.NotificationComment,
		Content:   "new comment",
		Read:      read,
		CreatedAt: time.Unix(sec, 0).UTC(),
	}
	e, _ := n.Event()
	return e
}

func TestNotifications_UpdateRemoveMap(t *testing.T) {
	t.Parallel()

	feed := models.NotificationsTopic("u1")

	ctrl := gomock.NewController(t)
	src := mocks.NewMockSnapshotSource(ctrl)
	r := New(Options{Source: src, Logger: silent()})

	src.EXPECT().Snapshot(gomock.Any(), feed).Return([]models.Event{
		notification("n1", 1, false),
		notification("n2", 2, false),
		notification("n3", 3, true),
	}, nil)

	view, err := r.Open(context.Background(), feed)
	require.NoError(t, err)
	require.Equal(t, 2, view.Unread)

	read, err := models.MarkRead(notification("n1", 1, false))
	require.NoError(t, err)
	require.True(t, r.UpdateEvent(feed, read))
	require.False(t, r.UpdateEvent(feed, notification("missing", 1, true)))

	view, err = r.View(feed)
	require.NoError(t, err)
	require.Equal(t, 1, view.Unread)
	require.Equal(t, []string{"n1", "n2", "n3"}, ids(view.Events))

	require.True(t, r.RemoveEvent(feed, "n3"))
	require.False(t, r.RemoveEvent(feed, "n3"))

	require.True(t, r.ApplyPushEvent(feed, notification("n4", 4, false)))

	changed := r.MapEvents(feed, func(e models.Event) (models.Event, bool) {
		n, err := models.NotificationFromEvent(e)
		if err != nil || n.Read {
			return e, false
		}
		out, err := models.MarkRead(e)
		return out, err == nil
	})
	require.Equal(t, 2, changed)

	view, err = r.View(feed)
	require.NoError(t, err)
	require.Equal(t, 0, view.Unread)
	require.Equal(t, []string{"n1", "n2", "n4"}, ids(view.Events))
}

func TestUpdateEvent_MovesOnTimeChange(t *testing.T) {
	t.Parallel()

	r, _ := newReconciler(t, ev("a", 1), ev("b", 2), ev("c", 3))

	require.True(t, r.UpdateEvent(chat, ev("a", 4)))
	require.Equal(t, []string{"b", "c", "a"}, mustEvents(t, r, chat))
}

func TestSubscribe_SyncAndCancel(t *testing.T) {
	t.Parallel()

	r, _ := newReconciler(t)

	var got []models.View
	cancel, err := r.Subscribe(chat, func(v models.View) { got = append(got, v) })
	require.NoError(t, err)

	require.True(t, r.ApplyPushEvent(chat, ev("m1", 1)))
	require.Len(t, got, 1)
	require.Equal(t, "chat:c1", got[0].Topic)
	require.Equal(t, []string{"m1"}, ids(got[0].Events))

	// Копия: изменение представления не затрагивает транскрипт.
	got[0].Events[0].ID = "mutated"
	require.Equal(t, []string{"m1"}, mustEvents(t, r, chat))

	// Дубликат не уведомляет.
	require.False(t, r.ApplyPushEvent(chat, ev("m1", 1)))
	require.Len(t, got, 1)

	cancel()
	require.True(t, r.ApplyPushEvent(chat, ev("m2", 2)))
	require.Len(t, got, 1)

	_, err = r.Subscribe(models.ChatTopic("nope"), func(models.View) {})
	require.ErrorIs(t, err, apierrors.ErrUnknownTopic)
}

func TestOpen_Idempotent(t *testing.T) {
	t.Parallel()

	r, _ := newReconciler(t, ev("m1", 1))

	// Второй Open не загружает снапшот повторно (mock ожидает один вызов).
	view, err := r.Open(context.Background(), chat)
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, ids(view.Events))
	require.Equal(t, []models.Topic{chat}, r.Topics())

	require.True(t, r.Close(chat))
	require.False(t, r.Close(chat))
}

func TestOpen_WarmStartFromCache(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache("redis://"+mr.Addr(), "test:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	syncedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Set(context.Background(), chat.String(), &cache.Entry{
		Events:   []models.Event{ev("cached", 1)},
		SyncedAt: syncedAt,
	}, time.Hour))

	ctrl := gomock.NewController(t)
	src := mocks.NewMockSnapshotSource(ctrl)
	r := New(Options{Source: src, Cache: c, CacheTTL: time.Hour, Logger: silent()})

	src.EXPECT().Snapshot(gomock.Any(), chat).Return(nil, errors.New("offline"))

	view, err := r.Open(context.Background(), chat)
	require.ErrorIs(t, err, apierrors.ErrSnapshotFailed)
	require.Equal(t, []string{"cached"}, ids(view.Events))
	require.Equal(t, syncedAt, view.LastSyncedAt)
	// Тёплый старт не считается загрузкой.
	require.False(t, r.Loaded(chat))

	src.EXPECT().Snapshot(gomock.Any(), chat).Return([]models.Event{ev("cached", 1), ev("fresh", 2)}, nil)
	_, err = r.LoadSnapshot(context.Background(), chat)
	require.NoError(t, err)
	require.True(t, r.Loaded(chat))
	require.False(t, r.Loaded(models.ChatTopic("unknown")))

	entry, ok, err := c.Get(context.Background(), chat.String())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"cached", "fresh"}, ids(entry.Events))
}

func TestMetrics_SnapshotAndPushOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()

	ctrl := gomock.NewController(t)
	src := mocks.NewMockSnapshotSource(ctrl)
	r := New(Options{Source: src, Logger: silent(), Metrics: metrics.New(reg)})

	src.EXPECT().Snapshot(gomock.Any(), chat).Return([]models.Event{ev("m1", 1)}, nil)
	src.EXPECT().Snapshot(gomock.Any(), chat).Return(nil, errors.New("down"))

	_, err := r.Open(context.Background(), chat)
	require.NoError(t, err)
	_, err = r.LoadSnapshot(context.Background(), chat)
	require.Error(t, err)

	r.ApplyPushEvent(chat, ev("m1", 1))
	r.ApplyPushEvent(chat, ev("m2", 2))

	n, err := testutil.GatherAndCount(reg, "forum_client_snapshot_loads_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(reg, "forum_client_push_events_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
