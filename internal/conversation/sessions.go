package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yungbote/ragdesk-backend/internal/domain"
)

// SessionStore holds one history per session id. Get on an unknown id returns
// a fresh history holding only the system turn.
type SessionStore interface {
	Get(ctx context.Context, id string) (domain.History, error)
	Append(ctx context.Context, id string, turns ...domain.Turn) error
}

const (
	DefaultMaxSessions = 1024
	DefaultSessionTTL  = 24 * time.Hour
)

// MemorySessions keeps histories in process, evicting the least recently used
// session past capacity and any session idle longer than ttl.
type MemorySessions struct {
	systemPrompt string
	cache        *expirable.LRU[string, domain.History]
}

var _ SessionStore = (*MemorySessions)(nil)

func NewMemorySessions(systemPrompt string, capacity int, ttl time.Duration) *MemorySessions {
	if capacity <= 0 {
		capacity = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessions{
		systemPrompt: systemPrompt,
		cache:        expirable.NewLRU[string, domain.History](capacity, nil, ttl),
	}
}

func (m *MemorySessions) Get(ctx context.Context, id string) (domain.History, error) {
	if h, ok := m.cache.Get(id); ok {
		return h.Clone(), nil
	}
	return domain.NewHistory(m.systemPrompt), nil
}

func (m *MemorySessions) Append(ctx context.Context, id string, turns ...domain.Turn) error {
	h, ok := m.cache.Get(id)
	if !ok {
		h = domain.NewHistory(m.systemPrompt)
	}
	next := h.Clone()
	next = append(next, turns...)
	m.cache.Add(id, next)
	return nil
}

func (m *MemorySessions) Len() int { return m.cache.Len() }

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedLock{}}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l := k.locks[key]
	if l == nil {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
