// transport — HTTP-клиент бэкенда форума.
//
// Клиент прикладывает учётные данные к каждому запросу (cookie из jar и,
// если есть, Bearer), а на 401 координирует единственный POST /auth/refresh
// для всей волны одновременных отказов и повторяет исходный запрос ровно один раз.
// Неустранимый отказ refresh очищает credential и вызывает обработчики
// OnAuthExpired (сессия переходит в unauthenticated).
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	apierrors "github.com/pribylovaa/go-forum-client/internal/errors"
	"github.com/pribylovaa/go-forum-client/internal/metrics"
	"github.com/pribylovaa/go-forum-client/pkg/log"
	"github.com/pribylovaa/go-forum-client/pkg/redact"
)

// Пути auth-эндпойнтов бэкенда.
const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
	PathLogout   = "/auth/logout"
	PathMe       = "/auth/me"
	PathRefresh  = "/auth/refresh"
)

// Ответы на эти пути не запускают refresh: 401 на них — окончательный результат.
var noRefresh = map[string]struct{}{
	PathLogin:    {},
	PathRegister: {},
	PathRefresh:  {},
}

const maxBodyBytes = 8 << 20

// Options — параметры сборки клиента.
type Options struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration // дефолтный таймаут запроса, если у ctx нет дедлайна
	RefreshTimeout time.Duration // таймаут POST /auth/refresh
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	// Base — нижний RoundTripper (по умолчанию http.DefaultTransport).
	Base http.RoundTripper
	// Jar — хранилище cookie (по умолчанию новый cookiejar).
	Jar http.CookieJar
}

// Response — прочитанный ответ бэкенда.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode декодирует тело ответа в v. Пустое тело не считается ошибкой.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}

	return json.Unmarshal(r.Body, v)
}

type Client struct {
	base           string
	http           *http.Client
	jar            http.CookieJar
	log            *slog.Logger
	metrics        *metrics.Metrics
	timeout        time.Duration
	refreshTimeout time.Duration

	mu         sync.RWMutex
	credential string
	generation uint64
	onExpired  []func()

	ticket Ticket
}

// New создаёт клиент.
func New(opts Options) (*Client, error) {
	const op = "transport.New"

	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: invalid base url %q", op, opts.BaseURL)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}

	if opts.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		opts.Jar = jar
	}

	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 10 * time.Second
	}

	rt := Chain(opts.Base,
		WithMetadata(opts.UserAgent),
		WithLogging(opts.Logger, opts.Metrics),
	)

	return &Client{
		base:           strings.TrimRight(u.String(), "/"),
		http:           &http.Client{Transport: rt, Jar: opts.Jar},
		jar:            opts.Jar,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		timeout:        opts.Timeout,
		refreshTimeout: opts.RefreshTimeout,
	}, nil
}

// Jar — cookie-хранилище клиента (refresh-токен живёт здесь и наружу не отдаётся).
func (c *Client) Jar() http.CookieJar { return c.jar }

// BaseURL — базовый адрес REST API.
func (c *Client) BaseURL() string { return c.base }

// AuthHeader — заголовки аутентификации для стороннего соединения
// (handshake realtime-канала). Пусто, если Bearer не установлен.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	if cred := c.currentCredential(); cred != "" {
		h.Set("Authorization", "Bearer "+cred)
	}
	return h
}

// SetCredential применяет новый access credential ко всем последующим запросам.
func (c *Client) SetCredential(cred string) {
	c.mu.Lock()
	c.credential = cred
	c.generation++
	c.mu.Unlock()

	info := inspectCredential(cred)
	attrs := []any{slog.String("credential", redact.Fingerprint(cred)), slog.Bool("jwt", info.JWT)}
	if info.JWT {
		attrs = append(attrs, slog.String("sub", info.Subject), slog.Time("exp", info.ExpiresAt))
	}
	c.log.Debug("credential_applied", attrs...)
}

// ClearCredential удаляет Bearer credential. Cookie остаются в jar:
// их жизненным циклом управляет бэкенд (logout/refresh).
func (c *Client) ClearCredential() {
	c.mu.Lock()
	c.credential = ""
	c.generation++
	c.mu.Unlock()
}

// OnAuthExpired регистрирует обработчик неустранимой потери аутентификации.
// Обработчики вызываются синхронно, до того как ожидающие запросы получат ErrAuthExpired.
func (c *Client) OnAuthExpired(fn func()) {
	c.mu.Lock()
	c.onExpired = append(c.onExpired, fn)
	c.mu.Unlock()
}

// TicketState — текущее состояние координатора refresh.
func (c *Client) TicketState() TicketState { return c.ticket.State() }

func (c *Client) currentCredential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential
}

func (c *Client) snapshot() (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential, c.generation
}

// Do выполняет запрос к бэкенду. body (если не nil) кодируется в JSON.
//
// Ошибки:
//   - apierrors.ErrAuthExpired — refresh не удался или повтор снова получил 401;
//   - *apierrors.StatusError — прочие не-2xx ответы;
//   - *apierrors.NetworkError — запрос не выполнен.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	const op = "transport.Client.Do"

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		payload = b
	}

	ctx, cancel := withDefaultTimeout(ctx, c.timeout)
	defer cancel()

	resp, gen, err := c.send(ctx, method, path, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.StatusCode != http.StatusUnauthorized || !refreshable(path) {
		return finish(op, resp)
	}

	lg := log.From(ctx).With("op", op, "method", method, "path", path)

	// Credential уже обновлён другим запросом — повторяем без нового refresh.
	if _, cur := c.snapshot(); cur == gen {
		if err := c.awaitRefresh(ctx); err != nil {
			lg.Info("request_rejected_after_refresh", slog.String("err", err.Error()))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	resp, _, err = c.send(ctx, method, path, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: replay: %w", op, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		lg.Warn("replay_unauthorized")
		c.expire()
		return nil, fmt.Errorf("%s: %w", op, apierrors.ErrAuthExpired)
	}

	return finish(op, resp)
}

// send выполняет одну попытку запроса и возвращает поколение credential,
// с которым он был отправлен.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*Response, uint64, error) {
	cred, gen := c.snapshot()

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, gen, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred != "" {
		req.Header.Set("Authorization", "Bearer "+cred)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, gen, ctxErr
		}
		return nil, gen, &apierrors.NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, gen, &apierrors.NetworkError{Op: method + " " + path, Err: err}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, gen, nil
}

// awaitRefresh присоединяется к тикету и ждёт общий исход refresh.
// Если тикет был idle, запускает refresh сам.
func (c *Client) awaitRefresh(ctx context.Context) error {
	done := make(chan error, 1)

	leader := c.ticket.Join(func(_ string, err error) { done <- err })
	if leader {
		// Отмена ctx ведущего не должна срывать refresh для остальных.
		go c.runRefresh(context.WithoutCancel(ctx))
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) runRefresh(ctx context.Context) {
	const op = "transport.Client.refresh"

	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	lg := log.From(ctx).With("op", op)
	lg.Debug("refresh_started")

	cred, err := c.refresh(ctx)
	if err != nil {
		c.metrics.Refresh("failed")
		lg.Warn("refresh_failed", slog.String("err", err.Error()))

		c.expire()
		c.ticket.Settle("", fmt.Errorf("%w: %v", apierrors.ErrAuthExpired, err))
		return
	}

	if cred != "" {
		c.SetCredential(cred)
	} else {
		c.mu.Lock()
		c.generation++
		c.mu.Unlock()
	}

	c.metrics.Refresh("ok")
	lg.Debug("refresh_succeeded")
	c.ticket.Settle(cred, nil)
}

// refresh выполняет POST /auth/refresh (refresh-токен уходит cookie из jar).
// Возвращает новый access credential из тела, если бэкенд его прислал.
func (c *Client) refresh(ctx context.Context) (string, error) {
	resp, _, err := c.send(ctx, http.MethodPost, PathRefresh, nil)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeStatusError(resp)
	}

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := resp.Decode(&body); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}

	return body.AccessToken, nil
}

// expire очищает credential и уведомляет подписчиков OnAuthExpired.
func (c *Client) expire() {
	c.ClearCredential()

	c.mu.RLock()
	hooks := append([]func(){}, c.onExpired...)
	c.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

func refreshable(path string) bool {
	p := path
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}

	_, skip := noRefresh[p]
	return !skip
}

func finish(op string, resp *Response) (*Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, nil
	}

	return nil, fmt.Errorf("%s: %w", op, decodeStatusError(resp))
}

// IsStatus сообщает, является ли err ответом бэкенда с данным статусом.
func IsStatus(err error, status int) bool {
	var se *apierrors.StatusError
	return errors.As(err, &se) && se.Status == status
}
