package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memItem struct {
	val       []byte
	expiresAt time.Time
}

// MemoryKV: in-memory реализация KV для тестов и локального запуска без Redis.
type MemoryKV struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]memItem
	lists map[string][][]byte
}

var _ KV = (*MemoryKV)(nil)

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		now:   time.Now,
		items: make(map[string]memItem),
		lists: make(map[string][][]byte),
	}
}

func (m *MemoryKV) alive(key string) (memItem, bool) {
	it, ok := m.items[key]
	if !ok {
		return memItem{}, false
	}
	if !it.expiresAt.IsZero() && !m.now().Before(it.expiresAt) {
		delete(m.items, key)
		return memItem{}, false
	}
	return it, true
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.alive(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), it.val...), nil
}

func (m *MemoryKV) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := memItem{val: append([]byte(nil), val...)}
	if ttl > 0 {
		it.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = it
	return nil
}

func (m *MemoryKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.items, k)
		delete(m.lists, k)
	}
	return nil
}

func (m *MemoryKV) Scan(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			if _, ok := m.alive(k); ok {
				keys = append(keys, k)
			}
		}
	}
	for k := range m.lists {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryKV) IncrByFloat(_ context.Context, key string, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := 0.0
	if it, ok := m.alive(key); ok {
		v, err := strconv.ParseFloat(string(it.val), 64)
		if err != nil {
			return 0, err
		}
		cur = v
	}
	cur += delta
	it := m.items[key]
	it.val = []byte(strconv.FormatFloat(cur, 'f', -1, 64))
	m.items[key] = it
	return cur, nil
}

func (m *MemoryKV) RPush(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists[key] = append(m.lists[key], append([]byte(nil), val...))
	return nil
}

func (m *MemoryKV) LRange(_ context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.lists[key]
	out := make([][]byte, 0, len(src))
	for _, v := range src {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

func (m *MemoryKV) LTrimHead(_ context.Context, key string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.lists[key]
	if n >= len(src) {
		delete(m.lists, key)
		return nil
	}
	if n > 0 {
		m.lists[key] = append([][]byte(nil), src[n:]...)
	}
	return nil
}
