package transport

import "sync"

// TicketState — состояние координатора refresh.
type TicketState int

const (
	TicketIdle TicketState = iota
	TicketRefreshing
)

func (s TicketState) String() string {
	if s == TicketRefreshing {
		return "refreshing"
	}
	return "idle"
}

// Continuation получает общий исход refresh: новый credential (может быть
// пустым при cookie-аутентификации) или ошибку.
type Continuation func(credential string, err error)

// Ticket координирует обновление учётных данных: не более одного refresh
// одновременно, все ожидающие получают один и тот же исход в порядке
// постановки в очередь (FIFO).
type Ticket struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []Continuation
}

// Join ставит продолжение в очередь. Возвращает true, если тикет был idle:
// вызывающий становится ведущим и обязан выполнить refresh и вызвать Settle.
func (t *Ticket) Join(cont Continuation) (leader bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.waiters = append(t.waiters, cont)
	if t.refreshing {
		return false
	}

	t.refreshing = true
	return true
}

// Settle возвращает тикет в idle и разрешает всех ожидающих по порядку.
// Продолжения вызываются вне блокировки.
func (t *Ticket) Settle(credential string, err error) {
	t.mu.Lock()
	waiters := t.waiters
	t.waiters = nil
	t.refreshing = false
	t.mu.Unlock()

	for _, cont := range waiters {
		cont(credential, err)
	}
}

func (t *Ticket) State() TicketState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.refreshing {
		return TicketRefreshing
	}
	return TicketIdle
}

// Pending — число ожидающих продолжений.
func (t *Ticket) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.waiters)
}
