package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/room"
)

// Memory is a process-local stand-in for Redis used when REDIS_URL is unset. Values are
// kept JSON-encoded so callers never share pointers with the store.
type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]memEntry
}

type memEntry struct {
	raw     []byte
	expires time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, data: make(map[string]memEntry)}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) SaveGame(_ context.Context, code string, g *pvpchess.Game) error {
	if err := m.put(keyGame(code), g); err != nil {
		return err
	}
	m.touch(keyRoster(code))
	return nil
}

func (m *Memory) LoadGame(_ context.Context, code string) (*pvpchess.Game, error) {
	var g pvpchess.Game
	ok, err := m.get(keyGame(code), &g)
	if !ok || err != nil {
		return nil, err
	}
	return &g, nil
}

func (m *Memory) DeleteGame(_ context.Context, code string) error {
	m.del(keyGame(code))
	return nil
}

func (m *Memory) SaveRoster(_ context.Context, code string, r *room.Roster) error {
	return m.put(keyRoster(code), r)
}

func (m *Memory) LoadRoster(_ context.Context, code string) (*room.Roster, error) {
	var r room.Roster
	ok, err := m.get(keyRoster(code), &r)
	if !ok || err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *Memory) DeleteRoster(_ context.Context, code string) error {
	m.del(keyRoster(code))
	return nil
}

func (m *Memory) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memEntry{raw: raw, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) get(key string, v any) (bool, error) {
	m.mu.Lock()
	e, ok := m.data[key]
	if ok && !m.now().Before(e.expires) {
		delete(m.data, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(e.raw, v)
}

// touch extends a live entry's expiry. Missing or expired entries stay gone.
func (m *Memory) touch(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return
	}
	now := m.now()
	if !now.Before(e.expires) {
		delete(m.data, key)
		return
	}
	e.expires = now.Add(m.ttl)
	m.data[key] = e
}

func (m *Memory) del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}
