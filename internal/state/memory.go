package state

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

type history struct {
	items     []Exchange
	expiresAt time.Time
}

const sweepInterval = 10 * time.Minute

// MemoryStore хранит состояния в памяти процесса
type MemoryStore struct {
	mu      sync.Mutex
	states  map[int64]entry
	history map[int64]*history
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore создает хранилище в памяти и запускает очистку истекших записей
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		states:  make(map[int64]entry),
		history: make(map[int64]*history),
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go m.sweepRoutine()

	return m
}

func (m *MemoryStore) sweepRoutine() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

// sweep удаляет истекшие состояния и истории гостей, которые не вернулись
func (m *MemoryStore) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for userID, e := range m.states {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.states, userID)
		}
	}
	for userID, h := range m.history {
		if !now.Before(h.expiresAt) {
			delete(m.history, userID)
		}
	}
}

// size возвращает число хранимых состояний и историй
func (m *MemoryStore) size() (states, histories int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states), len(m.history)
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.states[userID]
	if !ok {
		return "", nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.states, userID)
		return "", nil
	}
	return e.value, nil
}

func (m *MemoryStore) Set(_ context.Context, userID int64, state string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: state}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.states[userID] = e
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
	return nil
}

func (m *MemoryStore) AppendHistory(_ context.Context, userID int64, ex Exchange, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.liveHistory(userID)
	if h == nil {
		h = &history{}
		m.history[userID] = h
	}
	h.items = append(h.items, ex)
	if limit > 0 && len(h.items) > limit {
		h.items = append([]Exchange(nil), h.items[len(h.items)-limit:]...)
	}
	h.expiresAt = m.now().Add(historyTTL)
	return nil
}

func (m *MemoryStore) History(_ context.Context, userID int64, limit int) ([]Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.liveHistory(userID)
	if h == nil {
		return nil, nil
	}
	items := h.items
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return append([]Exchange(nil), items...), nil
}

// liveHistory возвращает неистекшую историю; вызывается под мьютексом
func (m *MemoryStore) liveHistory(userID int64) *history {
	h, ok := m.history[userID]
	if !ok {
		return nil
	}
	if !m.now().Before(h.expiresAt) {
		delete(m.history, userID)
		return nil
	}
	return h
}

// Close останавливает очистку
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
