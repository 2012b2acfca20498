// realtime — push-канал поверх одного WebSocket-соединения,
// мультиплексирующего подписки на топики (комнаты чатов, ленты уведомлений).
//
// Обработчики событий вызываются одной горутиной чтения в порядке получения.
// При обрыве все активные подписки получают StateDisconnected, канал
// переподключается с экспоненциальной паузой, заново отправляет join для
// каждого активного топика и сообщает StateConnecting, затем StateLive
// (resumed=true). Повтор пропущенных событий не предполагается: потребитель
// сам перечитывает историю.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/metrics"
	"github.com/pribylovaa/go-forum-client/internal/models"
	"github.com/pribylovaa/go-forum-client/pkg/log"
)

// ErrNotRealtime — топик не доставляется через push-канал.
var ErrNotRealtime = errors.New("topic is not delivered in realtime")

// EventHandler получает push-события топика.
type EventHandler func(Push)

// StateHandler получает изменения состояния доставки топика.
// resumed == true — состояние после переподключения. Обработчик вызывается
// под внутренней блокировкой канала и не должен синхронно вызывать Join/Leave.
type StateHandler func(state models.ConnectionState, resumed bool)

// Subscription — состояние подписки на топик.
type Subscription struct {
	Topic  models.Topic
	Active bool
}

type Options struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	// Header возвращает заголовки handshake (Authorization) на момент дозвона.
	Header func() http.Header
	// Jar — cookie для handshake (cookie-аутентификация).
	Jar     http.CookieJar
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type subscription struct {
	active   bool
	handlers []EventHandler
	states   []StateHandler
}

type Channel struct {
	opts      Options
	dialer    *websocket.Dialer
	validator *validator
	log       *slog.Logger
	metrics   *metrics.Metrics

	// opMu сериализует Join/Leave/Close и переподключение (сетевые операции).
	opMu sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[models.Topic]*subscription
	closed bool
	done   chan struct{}
	lost   chan struct{}

	writeMu sync.Mutex
}

// New создаёт канал. Соединение устанавливается при первом Join.
func New(opts Options) (*Channel, error) {
	const op = "realtime.New"

	if opts.URL == "" {
		return nil, fmt.Errorf("%s: empty url", op)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	v, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := &Channel{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			Jar:              opts.Jar,
		},
		validator: v,
		log:       opts.Logger.With("component", "realtime"),
		metrics:   opts.Metrics,
		subs:      make(map[models.Topic]*subscription),
		done:      make(chan struct{}),
		lost:      make(chan struct{}, 1),
	}

	go c.supervise()
	return c, nil
}

// OnEvent регистрирует обработчик push-событий топика. Регистрировать
// можно до Join, чтобы не пропустить события сразу после подписки.
func (c *Channel) OnEvent(topic models.Topic, h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sub(topic).handlers = append(c.sub(topic).handlers, h)
}

// OnState регистрирует обработчик состояния доставки топика.
func (c *Channel) OnState(topic models.Topic, h StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sub(topic).states = append(c.sub(topic).states, h)
}

// Join подписывает на топик. Повторный Join активного топика ничего не делает.
func (c *Channel) Join(ctx context.Context, topic models.Topic) (Subscription, error) {
	const op = "realtime.Channel.Join"

	if !topic.Realtime() {
		return Subscription{}, fmt.Errorf("%s: %s: %w", op, topic, ErrNotRealtime)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Subscription{}, fmt.Errorf("%s: %w", op, apierrors.ErrChannelClosed)
	}
	if s := c.subs[topic]; s != nil && s.active {
		c.mu.Unlock()
		return Subscription{Topic: topic, Active: true}, nil
	}
	conn := c.conn
	c.mu.Unlock()

	lg := log.From(ctx).With("op", op, "topic", topic.String())

	if conn == nil {
		var err error
		conn, err = c.establish(ctx)
		if err != nil {
			lg.Warn("realtime_dial_failed", slog.String("err", err.Error()))
			return Subscription{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	// Подписка активна до отправки join, чтобы не потерять первые события.
	c.mu.Lock()
	c.sub(topic).active = true
	c.mu.Unlock()

	if err := c.write(conn, Frame{Event: eventsByKind[topic.Kind].join, Topic: topic.ID}); err != nil {
		c.mu.Lock()
		if s := c.subs[topic]; s != nil {
			s.active = false
		}
		orphan := c.activeCount() == 0 && c.conn == conn
		if orphan {
			c.conn = nil
		}
		c.mu.Unlock()

		if orphan {
			_ = conn.Close()
		}

		lg.Warn("realtime_join_failed", slog.String("err", err.Error()))
		return Subscription{}, fmt.Errorf("%s: %w", op, &apierrors.NetworkError{Op: "join " + topic.String(), Err: err})
	}

	c.mu.Lock()
	states := append([]StateHandler(nil), c.subs[topic].states...)
	c.mu.Unlock()

	lg.Debug("realtime_joined")
	for _, h := range states {
		h(models.StateLive, false)
	}

	return Subscription{Topic: topic, Active: true}, nil
}

// Leave отписывает от топика и снимает его обработчики. Если подписок
// не осталось, соединение закрывается.
func (c *Channel) Leave(ctx context.Context, topic models.Topic) error {
	const op = "realtime.Channel.Leave"

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	s := c.subs[topic]
	delete(c.subs, topic)
	if s == nil || !s.active {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	last := c.activeCount() == 0
	if last {
		c.conn = nil
	}
	c.mu.Unlock()

	lg := log.From(ctx).With("op", op, "topic", topic.String())

	if conn != nil {
		if err := c.write(conn, Frame{Event: eventsByKind[topic.Kind].leave, Topic: topic.ID}); err != nil {
			lg.Debug("realtime_leave_frame_failed", slog.String("err", err.Error()))
		}
		if last {
			c.closeConn(conn)
			lg.Debug("realtime_connection_closed")
		}
	}

	lg.Debug("realtime_left")
	return nil
}

// Subscription возвращает состояние подписки на топик.
func (c *Channel) Subscription(topic models.Topic) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.subs[topic]
	return Subscription{Topic: topic, Active: s != nil && s.active}
}

// Connected сообщает, есть ли открытое соединение.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// Close закрывает соединение и снимает все подписки. Повторный вызов безопасен.
func (c *Channel) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.subs = make(map[models.Topic]*subscription)
	c.mu.Unlock()

	if conn != nil {
		c.closeConn(conn)
	}

	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	var header http.Header
	if c.opts.Header != nil {
		header = c.opts.Header()
	}

	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return nil, &apierrors.NetworkError{Op: "dial " + c.opts.URL, Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return conn, nil
}

func (c *Channel) write(conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Channel) closeConn(conn *websocket.Conn) {
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	_ = conn.Close()
}

// readLoop — единственный читатель соединения; обработчики вызываются
// в порядке получения кадров.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.onDisconnect(conn, err)
			return
		}

		c.dispatch(raw)
	}
}

func (c *Channel) dispatch(raw []byte) {
	f, err := c.validator.decode(raw)
	if err != nil {
		c.metrics.PushEvent("unknown", "dropped")
		c.log.Warn("realtime_frame_invalid", slog.String("err", err.Error()))
		return
	}

	topic, ok := topicOf(f)
	if !ok {
		c.log.Debug("realtime_frame_ignored", slog.String("event", f.Event))
		return
	}

	c.mu.Lock()
	var handlers []EventHandler
	if s := c.subs[topic]; s != nil && s.active {
		handlers = append(handlers, s.handlers...)
	}
	c.mu.Unlock()

	if len(handlers) == 0 {
		c.metrics.PushEvent(string(topic.Kind), "unrouted")
		return
	}

	p := Push{Topic: topic, Event: f.Event, Data: f.Data}
	for _, h := range handlers {
		h(p)
	}
}

func (c *Channel) onDisconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// Соединение закрыто намеренно (Leave/Close) или уже заменено.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.closed || c.activeCount() == 0 {
		c.mu.Unlock()
		return
	}
	notify := c.stateHandlers()
	c.mu.Unlock()

	c.log.Warn("realtime_disconnected", slog.String("err", cause.Error()))
	for _, h := range notify {
		h(models.StateDisconnected, false)
	}

	select {
	case c.lost <- struct{}{}:
	default:
	}
}

// supervise — единственная горутина переподключения.
func (c *Channel) supervise() {
	for {
		select {
		case <-c.done:
			return
		case <-c.lost:
			c.reconnectLoop()
		}
	}
}

func (c *Channel) reconnectLoop() {
	delay := c.opts.ReconnectMin
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		err := c.reconnect()
		if err == nil {
			return
		}

		c.log.Debug("realtime_reconnect_failed", slog.Int("attempt", attempt), slog.String("err", err.Error()))

		delay *= 2
		if delay > c.opts.ReconnectMax {
			delay = c.opts.ReconnectMax
		}
	}
}

// reconnect делает одну попытку. nil — переподключились или это больше не нужно.
func (c *Channel) reconnect() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	idle := c.closed || c.activeCount() == 0 || c.conn != nil
	c.mu.Unlock()

	if idle {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.handshakeTimeout())
	defer cancel()

	_, err := c.establish(ctx)
	return err
}

// establish открывает соединение и заново подписывает все активные топики.
// Требует opMu.
func (c *Channel) establish(ctx context.Context) (*websocket.Conn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	topics := make([]models.Topic, 0, len(c.subs))
	for t, s := range c.subs {
		if s.active {
			topics = append(topics, t)
		}
	}
	notify := c.stateHandlers()
	c.mu.Unlock()

	if len(topics) == 0 {
		return conn, nil
	}

	for _, h := range notify {
		h(models.StateConnecting, true)
	}

	for _, t := range topics {
		if err := c.write(conn, Frame{Event: eventsByKind[t.Kind].join, Topic: t.ID}); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()

			return nil, &apierrors.NetworkError{Op: "rejoin " + t.String(), Err: err}
		}
	}

	c.metrics.Reconnect()
	c.log.Info("realtime_reconnected", slog.Int("topics", len(topics)))

	for _, h := range notify {
		h(models.StateLive, true)
	}

	return conn, nil
}

func (c *Channel) handshakeTimeout() time.Duration {
	if c.opts.HandshakeTimeout > 0 {
		return c.opts.HandshakeTimeout
	}
	return 10 * time.Second
}

// sub возвращает (создавая при необходимости) запись подписки. Требует c.mu.
func (c *Channel) sub(topic models.Topic) *subscription {
	s := c.subs[topic]
	if s == nil {
		s = &subscription{}
		c.subs[topic] = s
	}
	return s
}

// activeCount требует c.mu.
func (c *Channel) activeCount() int {
	n := 0
	for _, s := range c.subs {
		if s.active {
			n++
		}
	}
	return n
}

// stateHandlers собирает обработчики состояния активных подписок. Требует c.mu.
func (c *Channel) stateHandlers() []StateHandler {
	var out []StateHandler
	for _, s := range c.subs {
		if s.active {
			out = append(out, s.states...)
		}
	}
	return out
}
