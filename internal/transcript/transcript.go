// transcript — сведение REST-снапшотов и push-событий в одну упорядоченную
// последовательность без дубликатов, отдельно для каждого разговора.
//
// Изменения одного транскрипта сериализуются его мьютексом; загрузка
// снапшота идёт вне блокировки, а результат применяется целиком. Push-события,
// пришедшие во время загрузки и отсутствующие в снапшоте, добавляются
// к нему повторно. Результат загрузки для закрытого транскрипта или более
// старой загрузки, чем уже применённая, отбрасывается.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pribylovaa/go-forum-client/internal/cache"
	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/metrics"
	"github.com/pribylovaa/go-forum-client/internal/models"
	"github.com/pribylovaa/go-forum-client/pkg/log"
)

//go:generate mockgen -destination=../../mocks/mock_snapshot_source.go -package=mocks github.com/pribylovaa/go-forum-client/internal/transcript SnapshotSource

// SnapshotSource загружает полную историю топика через REST.
type SnapshotSource interface {
	Snapshot(ctx context.Context, topic models.Topic) ([]models.Event, error)
}

type Options struct {
	Source SnapshotSource
	// Cache — необязательный кэш последних снапшотов для тёплого старта.
	Cache    cache.TranscriptCache
	CacheTTL time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Reconciler — единственный владелец транскриптов; читатели получают копии.
type Reconciler struct {
	src     SnapshotSource
	cache   cache.TranscriptCache
	ttl     time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu   sync.Mutex
	open map[models.Topic]*transcript
}

func New(opts Options) *Reconciler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}

	return &Reconciler{
		src:     opts.Source,
		cache:   opts.Cache,
		ttl:     opts.CacheTTL,
		log:     opts.Logger.With("component", "transcript"),
		metrics: opts.Metrics,
		now:     time.Now,
		open:    make(map[models.Topic]*transcript),
	}
}

// pushed — push-событие с номером поступления.
type pushed struct {
	ev models.Event
	at uint64
}

type transcript struct {
	topic models.Topic

	// notifyMu сериализует изменение+уведомление подписчиков.
	notifyMu sync.Mutex

	mu       sync.Mutex
	events   []models.Event
	ids      map[string]struct{}
	state    models.ConnectionState
	syncedAt time.Time
	gap      bool
	closed   bool

	// loads — последний выданный номер загрузки, applied — последний применённый.
	loads   uint64
	applied uint64
	// loadStart — номер последнего push на момент начала незавершённой загрузки.
	loadStart map[uint64]uint64
	pushes    uint64
	pushLog   []pushed

	subs    map[int]func(models.View)
	nextSub int
}

func newTranscript(topic models.Topic) *transcript {
	return &transcript{
		topic:     topic,
		ids:       make(map[string]struct{}),
		state:     models.StateDisconnected,
		loadStart: make(map[uint64]uint64),
		subs:      make(map[int]func(models.View)),
	}
}

// Open создаёт транскрипт (если его нет) и загружает снапшот.
// Повторный Open открытого топика возвращает текущее представление.
func (r *Reconciler) Open(ctx context.Context, topic models.Topic) (models.View, error) {
	const op = "transcript.Reconciler.Open"

	if !r.Track(ctx, topic) {
		return r.View(topic)
	}

	if _, err := r.LoadSnapshot(ctx, topic); err != nil {
		// Тёплые данные из кэша остаются доступны.
		view, _ := r.View(topic)
		return view, fmt.Errorf("%s: %w", op, err)
	}

	return r.View(topic)
}

// Track создаёт пустой транскрипт без загрузки снапшота, чтобы push-события
// применялись ещё до первой загрузки. При наличии кэша транскрипт
// заполняется последним сохранённым снапшотом. false — транскрипт уже был.
func (r *Reconciler) Track(ctx context.Context, topic models.Topic) bool {
	const op = "transcript.Reconciler.Track"

	r.mu.Lock()
	if _, ok := r.open[topic]; ok {
		r.mu.Unlock()
		return false
	}
	t := newTranscript(topic)
	r.open[topic] = t
	r.mu.Unlock()

	if r.cache == nil {
		return true
	}

	lg := log.From(ctx).With("op", op, "topic", topic.String())

	entry, ok, err := r.cache.Get(ctx, topic.String())
	if err != nil {
		lg.Warn("transcript_cache_get_failed", slog.String("err", err.Error()))
		return true
	}
	if !ok {
		return true
	}

	r.mutate(t, func() bool {
		if t.applied > 0 {
			return false
		}
		for _, ev := range entry.Events {
			t.insert(ev)
		}
		t.syncedAt = entry.SyncedAt
		return true
	})

	lg.Debug("transcript_warm_started", slog.Int("events", len(entry.Events)))
	return true
}

// LoadSnapshot загружает снапшот и целиком заменяет им события транскрипта.
// При ошибке события не меняются, возвращается ошибка с ErrSnapshotFailed.
func (r *Reconciler) LoadSnapshot(ctx context.Context, topic models.Topic) ([]models.Event, error) {
	const op = "transcript.Reconciler.LoadSnapshot"

	t, err := r.lookup(topic)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg := log.From(ctx).With("op", op, "topic", topic.String())

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("%s: %s: %w", op, topic, apierrors.ErrUnknownTopic)
	}
	t.loads++
	n := t.loads
	t.loadStart[n] = t.pushes
	t.mu.Unlock()

	snapshot, fetchErr := r.src.Snapshot(ctx, topic)

	t.notifyMu.Lock()
	t.mu.Lock()

	start := t.loadStart[n]
	delete(t.loadStart, n)

	switch {
	case t.closed:
		t.mu.Unlock()
		t.notifyMu.Unlock()

		r.metrics.SnapshotLoad(string(topic.Kind), "discarded")
		lg.Debug("snapshot_discarded")
		return nil, fmt.Errorf("%s: %s: %w", op, topic, apierrors.ErrUnknownTopic)

	case fetchErr != nil:
		t.prune()
		t.mu.Unlock()
		t.notifyMu.Unlock()

		r.metrics.SnapshotLoad(string(topic.Kind), "failed")
		lg.Warn("snapshot_load_failed", slog.String("err", fetchErr.Error()))
		return nil, fmt.Errorf("%s: %w: %w", op, apierrors.ErrSnapshotFailed, fetchErr)

	case n < t.applied:
		t.prune()
		current := t.copyEvents()
		t.mu.Unlock()
		t.notifyMu.Unlock()

		r.metrics.SnapshotLoad(string(topic.Kind), "stale")
		lg.Debug("snapshot_stale")
		return current, nil
	}

	t.replace(snapshot, start)
	t.applied = n
	t.syncedAt = r.now()
	t.prune()

	result := t.copyEvents()
	entry := &cache.Entry{Events: t.copyEvents(), SyncedAt: t.syncedAt}
	views := t.views()
	t.mu.Unlock()

	for _, v := range views {
		v.fn(v.view)
	}
	t.notifyMu.Unlock()

	r.metrics.SnapshotLoad(string(topic.Kind), "ok")
	lg.Debug("snapshot_loaded", slog.Int("events", len(result)))

	if r.cache != nil {
		if err := r.cache.Set(ctx, topic.String(), entry, r.ttl); err != nil {
			lg.Warn("transcript_cache_set_failed", slog.String("err", err.Error()))
		}
	}

	return result, nil
}

// ApplyPushEvent вставляет событие по времени. Событие с уже известным id
// отбрасывается (false).
func (r *Reconciler) ApplyPushEvent(topic models.Topic, ev models.Event) bool {
	t, err := r.lookup(topic)
	if err != nil {
		r.metrics.PushEvent(string(topic.Kind), "unrouted")
		return false
	}

	if ev.ID == "" {
		r.metrics.PushEvent(string(topic.Kind), "dropped")
		r.log.Warn("push_event_without_id", slog.String("topic", topic.String()))
		return false
	}

	applied := r.mutate(t, func() bool {
		if !t.insert(ev) {
			return false
		}

		t.pushes++
		if len(t.loadStart) > 0 {
			t.pushLog = append(t.pushLog, pushed{ev: cloneEvent(ev), at: t.pushes})
		}
		return true
	})

	if applied {
		r.metrics.PushEvent(string(topic.Kind), "applied")
	} else {
		r.metrics.PushEvent(string(topic.Kind), "duplicate")
	}

	return applied
}

// UpdateEvent заменяет существующее событие с тем же id.
func (r *Reconciler) UpdateEvent(topic models.Topic, ev models.Event) bool {
	t, err := r.lookup(topic)
	if err != nil {
		return false
	}

	return r.mutate(t, func() bool {
		i := t.index(ev.ID)
		if i < 0 {
			return false
		}

		if t.events[i].OccurredAt.Equal(ev.OccurredAt) {
			t.events[i] = cloneEvent(ev)
		} else {
			t.remove(i)
			t.insert(ev)
		}

		for j := range t.pushLog {
			if t.pushLog[j].ev.ID == ev.ID {
				t.pushLog[j].ev = cloneEvent(ev)
			}
		}
		return true
	})
}

// RemoveEvent удаляет событие по id.
func (r *Reconciler) RemoveEvent(topic models.Topic, id string) bool {
	t, err := r.lookup(topic)
	if err != nil {
		return false
	}

	return r.mutate(t, func() bool {
		i := t.index(id)
		if i < 0 {
			return false
		}
		t.remove(i)

		kept := t.pushLog[:0]
		for _, p := range t.pushLog {
			if p.ev.ID != id {
				kept = append(kept, p)
			}
		}
		t.pushLog = kept
		return true
	})
}

// MapEvents применяет fn ко всем событиям. fn возвращает новое событие и
// признак изменения; id события сохраняется. Возвращает число изменённых.
func (r *Reconciler) MapEvents(topic models.Topic, fn func(models.Event) (models.Event, bool)) int {
	t, err := r.lookup(topic)
	if err != nil {
		return 0
	}

	changed := 0
	r.mutate(t, func() bool {
		resort := false
		for i, ev := range t.events {
			out, ok := fn(cloneEvent(ev))
			if !ok {
				continue
			}
			out.ID = ev.ID
			if !out.OccurredAt.Equal(ev.OccurredAt) {
				resort = true
			}
			t.events[i] = out
			changed++
		}
		if resort {
			sort.SliceStable(t.events, func(i, j int) bool {
				return t.events[i].OccurredAt.Before(t.events[j].OccurredAt)
			})
		}

		for j, p := range t.pushLog {
			if out, ok := fn(cloneEvent(p.ev)); ok {
				out.ID = p.ev.ID
				t.pushLog[j].ev = out
			}
		}
		return changed > 0
	})

	return changed
}

// OnReconnect переводит транскрипт в connecting, затем в live и
// перечитывает снапшот. После успешной перезагрузки представление несёт
// отметку о пропуске (см. AckGap).
func (r *Reconciler) OnReconnect(ctx context.Context, topic models.Topic) error {
	const op = "transcript.Reconciler.OnReconnect"

	t, err := r.lookup(topic)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.SetConnectionState(topic, models.StateConnecting)
	r.SetConnectionState(topic, models.StateLive)

	if _, err := r.LoadSnapshot(ctx, topic); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mutate(t, func() bool {
		t.gap = true
		return true
	})

	log.From(ctx).Info("transcript_resynced", slog.String("op", op), slog.String("topic", topic.String()))
	return nil
}

// AckGap снимает отметку о пропуске и возвращает ErrTranscriptSyncGap,
// если она была.
func (r *Reconciler) AckGap(topic models.Topic) error {
	t, err := r.lookup(topic)
	if err != nil {
		return nil
	}

	if r.mutate(t, func() bool {
		had := t.gap
		t.gap = false
		return had
	}) {
		return fmt.Errorf("%s: %w", topic, apierrors.ErrTranscriptSyncGap)
	}

	return nil
}

// SetConnectionState меняет состояние доставки. false — топик не открыт
// или состояние не изменилось.
func (r *Reconciler) SetConnectionState(topic models.Topic, state models.ConnectionState) bool {
	t, err := r.lookup(topic)
	if err != nil {
		return false
	}

	return r.mutate(t, func() bool {
		if t.state == state {
			return false
		}
		t.state = state
		return true
	})
}

// Events возвращает копию событий транскрипта.
func (r *Reconciler) Events(topic models.Topic) ([]models.Event, error) {
	const op = "transcript.Reconciler.Events"

	t, err := r.lookup(topic)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.copyEvents(), nil
}

func (r *Reconciler) View(topic models.Topic) (models.View, error) {
	const op = "transcript.Reconciler.View"

	t, err := r.lookup(topic)
	if err != nil {
		return models.View{}, fmt.Errorf("%s: %w", op, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.view(), nil
}

// Loaded сообщает, применён ли к транскрипту хотя бы один снапшот с момента
// открытия. Тёплый старт из кэша загрузкой не считается.
func (r *Reconciler) Loaded(topic models.Topic) bool {
	t, err := r.lookup(topic)
	if err != nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.applied > 0
}

// Subscribe регистрирует наблюдателя транскрипта. fn вызывается синхронно
// после каждого изменения и не должна изменять транскрипт.
func (r *Reconciler) Subscribe(topic models.Topic, fn func(models.View)) (cancel func(), err error) {
	const op = "transcript.Reconciler.Subscribe"

	t, err := r.lookup(topic)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}, nil
}

// Close удаляет транскрипт; незавершённые загрузки будут отброшены.
func (r *Reconciler) Close(topic models.Topic) bool {
	r.mu.Lock()
	t, ok := r.open[topic]
	delete(r.open, topic)
	r.mu.Unlock()

	if !ok {
		return false
	}

	t.mu.Lock()
	t.closed = true
	t.events = nil
	t.ids = nil
	t.pushLog = nil
	t.subs = make(map[int]func(models.View))
	t.mu.Unlock()

	return true
}

// Topics возвращает открытые топики.
func (r *Reconciler) Topics() []models.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Topic, 0, len(r.open))
	for t := range r.open {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })

	return out
}

func (r *Reconciler) lookup(topic models.Topic) (*transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.open[topic]
	if !ok {
		return nil, fmt.Errorf("%s: %w", topic, apierrors.ErrUnknownTopic)
	}

	return t, nil
}

// mutate применяет fn под блокировкой и уведомляет подписчиков, если
// fn сообщила об изменении.
func (r *Reconciler) mutate(t *transcript, fn func() bool) bool {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if t.closed || !fn() {
		t.mu.Unlock()
		return false
	}
	views := t.views()
	t.mu.Unlock()

	for _, v := range views {
		v.fn(v.view)
	}

	return true
}

type pendingView struct {
	fn   func(models.View)
	view models.View
}

// views строит по копии представления на подписчика. Требует t.mu.
func (t *transcript) views() []pendingView {
	out := make([]pendingView, 0, len(t.subs))
	for _, fn := range t.subs {
		out = append(out, pendingView{fn: fn, view: t.view()})
	}
	return out
}

// view требует t.mu.
func (t *transcript) view() models.View {
	v := models.View{
		Topic:        t.topic.String(),
		Events:       t.copyEvents(),
		State:        t.state,
		LastSyncedAt: t.syncedAt,
		Gap:          t.gap,
	}
	if t.topic.Kind == models.KindNotifications {
		v.Unread = models.UnreadCount(t.events)
	}

	return v
}

// insert вставляет событие после всех событий с тем же или более ранним
// временем, поэтому равные времена остаются в порядке поступления.
func (t *transcript) insert(ev models.Event) bool {
	if _, dup := t.ids[ev.ID]; dup {
		return false
	}

	i := sort.Search(len(t.events), func(i int) bool {
		return t.events[i].OccurredAt.After(ev.OccurredAt)
	})

	t.events = append(t.events, models.Event{})
	copy(t.events[i+1:], t.events[i:])
	t.events[i] = cloneEvent(ev)
	t.ids[ev.ID] = struct{}{}

	return true
}

func (t *transcript) remove(i int) {
	delete(t.ids, t.events[i].ID)
	t.events = append(t.events[:i], t.events[i+1:]...)
}

func (t *transcript) index(id string) int {
	if _, ok := t.ids[id]; !ok {
		return -1
	}
	for i := range t.events {
		if t.events[i].ID == id {
			return i
		}
	}
	return -1
}

// replace заменяет события снапшотом и добавляет push-события, пришедшие
// после начала загрузки (номер start). Требует t.mu.
func (t *transcript) replace(snapshot []models.Event, start uint64) {
	events := make([]models.Event, 0, len(snapshot)+len(t.pushLog))
	ids := make(map[string]struct{}, len(snapshot))

	for _, ev := range snapshot {
		if ev.ID == "" {
			continue
		}
		if _, dup := ids[ev.ID]; dup {
			continue
		}
		ids[ev.ID] = struct{}{}
		events = append(events, cloneEvent(ev))
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})

	t.events = events
	t.ids = ids

	for _, p := range t.pushLog {
		if p.at > start {
			t.insert(p.ev)
		}
	}
}

// prune оставляет в журнале только push-события, нужные незавершённым
// (и ещё не устаревшим) загрузкам. Требует t.mu.
func (t *transcript) prune() {
	var (
		minStart uint64
		pending  bool
	)
	for n, s := range t.loadStart {
		if n <= t.applied {
			continue
		}
		if !pending || s < minStart {
			minStart = s
			pending = true
		}
	}

	if !pending {
		t.pushLog = nil
		return
	}

	kept := t.pushLog[:0]
	for _, p := range t.pushLog {
		if p.at > minStart {
			kept = append(kept, p)
		}
	}
	t.pushLog = kept
}

// copyEvents требует t.mu.
func (t *transcript) copyEvents() []models.Event {
	out := make([]models.Event, len(t.events))
	for i, ev := range t.events {
		out[i] = cloneEvent(ev)
	}
	return out
}

func cloneEvent(ev models.Event) models.Event {
	if ev.Payload != nil {
		ev.Payload = append(json.RawMessage(nil), ev.Payload...)
	}
	return ev
}
